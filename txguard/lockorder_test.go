package txguard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockOrderAcquire(t *testing.T) {
	var o LockOrder

	require.NoError(t, o.Acquire(RankCoarse))
	require.NoError(t, o.Acquire(RankCoarse)) // same rank again is fine
	require.NoError(t, o.Acquire(RankOwner))
	require.NoError(t, o.Acquire(RankFine))

	err := o.Acquire(RankOwner)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockOrderViolation))

	var loe *LockOrderError
	require.True(t, errors.As(err, &loe))
	assert.Equal(t, RankFine, loe.Held)
	assert.Equal(t, RankOwner, loe.Requested)
}

func TestLockOrderSkipCoarse(t *testing.T) {
	// A pipeline that never touches a coarse entity may start at any rank.
	var o LockOrder
	require.NoError(t, o.Acquire(RankOwner))
	require.Error(t, o.Acquire(RankCoarse))
}

func TestGuardErrorUnwrap(t *testing.T) {
	err := &GuardError{Op: "enroll", EntityID: "t1", UserID: "u1", Err: ErrCapacityExceeded}
	assert.True(t, errors.Is(err, ErrCapacityExceeded))
	assert.Contains(t, err.Error(), "enroll")
	assert.Contains(t, err.Error(), "u1")

	noUser := &GuardError{Op: "finalize", EntityID: "t1", Err: ErrInvalidTransition}
	assert.NotContains(t, noUser.Error(), "user=")
}
