package leave

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStatusHappyPath(t *testing.T) {
	next, err := NextStatus(StatusPending, EventForward)
	require.NoError(t, err)
	assert.Equal(t, StatusForwarded, next)

	next, err = NextStatus(StatusForwarded, EventApprove)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, next)

	next, err = NextStatus(StatusForwarded, EventReject)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, next)
}

func TestNextStatusApprovedCanStillBeRejected(t *testing.T) {
	next, err := NextStatus(StatusApproved, EventReject)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, next)
}

func TestNextStatusTerminalGuards(t *testing.T) {
	_, err := NextStatus(StatusApproved, EventApprove)
	assert.ErrorIs(t, err, ErrAlreadyTerminal)

	_, err = NextStatus(StatusRejected, EventApprove)
	assert.ErrorIs(t, err, ErrAlreadyTerminal)

	_, err = NextStatus(StatusRejected, EventReject)
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
}

func TestNextStatusInvalidTransitions(t *testing.T) {
	_, err := NextStatus(StatusPending, EventApprove)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = NextStatus(StatusApproved, EventForward)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = NextStatus(StatusForwarded, EventForward)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
