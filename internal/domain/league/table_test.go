package league

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
)

func TestResolveDefaultTable(t *testing.T) {
	table := MustDefault()

	tests := []struct {
		xp   int64
		want string
	}{
		{0, "Novato"},
		{999, "Novato"},
		{1000, "Aprendiz (Bronce)"},
		{2999, "Aprendiz (Bronce)"},
		{3000, "Aprendiz (Plata)"},
		{7000, "Aprendiz (Oro)"},
		{15000, "Experto"},
		{39999, "Experto"},
		{40000, "Maestro"},
		{1 << 40, "Maestro"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, table.Resolve(tt.xp), "xp=%d", tt.xp)
	}
	assert.Equal(t, "Novato", table.Lowest())
}

func TestNext(t *testing.T) {
	table := MustDefault()

	next, missing, ok := table.Next(1150)
	require.True(t, ok)
	assert.Equal(t, "Aprendiz (Plata)", next.Name)
	assert.Equal(t, int64(1850), missing)

	next, missing, ok = table.Next(0)
	require.True(t, ok)
	assert.Equal(t, "Aprendiz (Bronce)", next.Name)
	assert.Equal(t, int64(1000), missing)

	_, _, ok = table.Next(40000)
	assert.False(t, ok)
}

func TestNewTableValidation(t *testing.T) {
	tests := []struct {
		name  string
		tiers []Tier
	}{
		{"empty", nil},
		{"first not zero", []Tier{{MinXP: 10, Name: "A"}}},
		{"blank name", []Tier{{MinXP: 0, Name: "A"}, {MinXP: 5, Name: " "}}},
		{"not ascending", []Tier{{MinXP: 0, Name: "A"}, {MinXP: 5, Name: "B"}, {MinXP: 5, Name: "C"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.tiers)
			require.Error(t, err)
			assert.True(t, shared.IsValidation(err))
		})
	}
}

func TestTableCopiesTiers(t *testing.T) {
	tiers := []Tier{{MinXP: 0, Name: "A"}, {MinXP: 10, Name: "B"}}
	table, err := NewTable(tiers)
	require.NoError(t, err)

	tiers[1].Name = "changed"
	assert.Equal(t, "B", table.Resolve(10))

	out := table.Tiers()
	out[0].Name = "changed"
	assert.Equal(t, "A", table.Lowest())
}
