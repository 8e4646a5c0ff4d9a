// Package txguard implements the transactional guard primitives shared by the
// enrollment, booking, reward and progression pipelines: blocking row locks,
// single-statement guarded counter updates, savepoint-backed idempotent
// inserts, and the lock-ordering assertion.
//
// Guard-clause rejections (capacity, balance, duplicates) are expected
// business outcomes: they roll back cleanly and propagate as the sentinel
// errors below. LockOrderViolation is a defect marker and should never occur
// in correct code.
package txguard

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a row lock targets a row that does not
	// exist. Distinct from lock-acquisition failure.
	ErrNotFound = errors.New("row not found")

	// ErrCapacityExceeded is the guard rejection for count-based limits.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrInsufficientBalance is the guard rejection for balance floors.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDuplicateMembership is returned where an idempotent insert reported
	// "already existed" and the caller treats that as a user-facing conflict.
	ErrDuplicateMembership = errors.New("duplicate membership")

	// ErrDuplicateAchievement mirrors ErrDuplicateMembership for badges.
	ErrDuplicateAchievement = errors.New("duplicate achievement")

	// ErrLockOrderViolation means a transaction tried to acquire a lower-rank
	// lock while holding a higher-rank one. Fatal defect, not user-facing.
	ErrLockOrderViolation = errors.New("lock order violation")

	// ErrInvalidTransition is returned when a status change is requested from
	// a state that has not yet reached the transition's source.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrClosed is returned when the target entity no longer accepts new
	// membership (tournament not open, session closed).
	ErrClosed = errors.New("not accepting members")
)

// LockOrderError carries the ranks involved in an out-of-order acquisition.
type LockOrderError struct {
	Held      Rank
	Requested Rank
}

func (e *LockOrderError) Error() string {
	return fmt.Sprintf("lock order violation: holding rank %d, requested rank %d", e.Held, e.Requested)
}

func (e *LockOrderError) Unwrap() error { return ErrLockOrderViolation }

// GuardError wraps a sentinel with the identifiers of the guarded operation so
// defect logs carry full context without the pipeline re-assembling it.
type GuardError struct {
	Op       string
	EntityID string
	UserID   string
	Err      error
}

func (e *GuardError) Error() string {
	if e.UserID != "" {
		return fmt.Sprintf("%s: %v (entity=%s user=%s)", e.Op, e.Err, e.EntityID, e.UserID)
	}
	return fmt.Sprintf("%s: %v (entity=%s)", e.Op, e.Err, e.EntityID)
}

func (e *GuardError) Unwrap() error { return e.Err }
