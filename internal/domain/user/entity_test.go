package user

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/uconnect/uconnect-ledger/internal/domain/shared"
)

func TestValidateRegistration(t *testing.T) {
	assert.NoError(t, ValidateRegistration("42", "Ana"))
	assert.NoError(t, ValidateRegistration("42", strings.Repeat("ñ", MaxDisplayNameLength)))

	assert.ErrorIs(t, ValidateRegistration(" ", "Ana"), shared.ErrInvalidUserID)

	err := ValidateRegistration("42", "   ")
	assert.ErrorIs(t, err, shared.ErrEmptyValue)

	err = ValidateRegistration("42", strings.Repeat("a", MaxDisplayNameLength+1))
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)
}

func TestCloneIsIndependent(t *testing.T) {
	p := &Profile{ID: "1", DisplayName: "Ana", XPTotal: 10}
	c := p.Clone()
	c.XPTotal = 99

	assert.Equal(t, int64(10), p.XPTotal)
	assert.Nil(t, (*Profile)(nil).Clone())
}
