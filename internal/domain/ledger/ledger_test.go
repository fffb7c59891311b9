package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidAmount(t *testing.T) {
	assert.True(t, validAmount(0.5))
	assert.True(t, validAmount(1))
	assert.True(t, validAmount(2.5))
	assert.False(t, validAmount(0))
	assert.False(t, validAmount(-1))
	assert.False(t, validAmount(0.25))
	assert.False(t, validAmount(1.3))
}

func TestBalanceColumn(t *testing.T) {
	col, err := balanceColumn(BalanceLeave)
	assert.NoError(t, err)
	assert.Equal(t, "leave_balance", col)

	col, err = balanceColumn(BalanceCCL)
	assert.NoError(t, err)
	assert.Equal(t, "ccl_balance", col)

	_, err = balanceColumn(Balance("vacation"))
	assert.Error(t, err)
}

func TestInsufficientBalanceErrorMessage(t *testing.T) {
	err := &InsufficientBalanceError{Balance: BalanceCCL, Available: 0.5, Required: 1}
	assert.Equal(t, "insufficient ccl balance: have 0.5, need 1.0", err.Error())
}
