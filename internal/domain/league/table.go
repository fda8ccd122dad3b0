// Package league maps cumulative XP to a tier label.
// The mapping is a pure function over a configurable threshold table.
package league

import (
	"fmt"
	"strings"

	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
)

// Tier is one row of the threshold table.
type Tier struct {
	MinXP int64  `mapstructure:"min_xp" json:"min_xp"`
	Name  string `mapstructure:"name" json:"name"`
}

// Table is an ascending list of tiers starting at 0 XP.
type Table struct {
	tiers []Tier
}

// DefaultTiers is the table used when configuration provides none.
func DefaultTiers() []Tier {
	return []Tier{
		{MinXP: 0, Name: "Novato"},
		{MinXP: 1000, Name: "Aprendiz (Bronce)"},
		{MinXP: 3000, Name: "Aprendiz (Plata)"},
		{MinXP: 7000, Name: "Aprendiz (Oro)"},
		{MinXP: 15000, Name: "Experto"},
		{MinXP: 40000, Name: "Maestro"},
	}
}

// NewTable validates tiers and builds a Table. Minimums must be strictly
// ascending, the first must be 0 and names must be non-empty.
func NewTable(tiers []Tier) (*Table, error) {
	if len(tiers) == 0 {
		return nil, shared.NewDomainError("league", "NewTable", shared.ErrInvalidInput, "league table is empty")
	}
	if tiers[0].MinXP != 0 {
		return nil, shared.NewDomainError("league", "NewTable", shared.ErrInvalidInput, "first tier must start at 0 XP")
	}
	for i, t := range tiers {
		if strings.TrimSpace(t.Name) == "" {
			return nil, shared.NewDomainError("league", "NewTable", shared.ErrEmptyValue, fmt.Sprintf("tier %d has no name", i))
		}
		if i > 0 && t.MinXP <= tiers[i-1].MinXP {
			return nil, shared.NewDomainError("league", "NewTable", shared.ErrInvalidInput,
				fmt.Sprintf("tier %q must have a higher minimum than %q", t.Name, tiers[i-1].Name))
		}
	}
	cp := make([]Tier, len(tiers))
	copy(cp, tiers)
	return &Table{tiers: cp}, nil
}

// MustDefault returns the default table.
func MustDefault() *Table {
	t, err := NewTable(DefaultTiers())
	if err != nil {
		panic(err)
	}
	return t
}

// Lowest returns the name of the first tier.
func (t *Table) Lowest() string {
	return t.tiers[0].Name
}

// Resolve returns the highest tier whose minimum does not exceed xp.
func (t *Table) Resolve(xp int64) string {
	return t.tiers[t.index(xp)].Name
}

// Next returns the tier after the one xp resolves to and the XP still
// missing to reach it. ok is false at the top tier.
func (t *Table) Next(xp int64) (next Tier, missing int64, ok bool) {
	i := t.index(xp)
	if i+1 >= len(t.tiers) {
		return Tier{}, 0, false
	}
	n := t.tiers[i+1]
	return n, n.MinXP - xp, true
}

// Tiers returns a copy of the table rows.
func (t *Table) Tiers() []Tier {
	cp := make([]Tier, len(t.tiers))
	copy(cp, t.tiers)
	return cp
}

func (t *Table) index(xp int64) int {
	idx := 0
	for i, tier := range t.tiers {
		if tier.MinXP > xp {
			break
		}
		idx = i
	}
	return idx
}
