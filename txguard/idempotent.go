package txguard

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Outcome of an idempotent insert.
type Outcome int

const (
	Created Outcome = iota + 1
	AlreadyExisted
)

var savepointSeq atomic.Uint64

// InsertUnique attempts to insert row inside a savepoint. If the insert hits a
// uniqueness constraint, only the savepoint is rolled back. The outer
// transaction and any locks already held survive, and AlreadyExisted is
// returned so the caller can re-query the pre-existing row.
//
// The database constraint is the source of truth for uniqueness; any pre-check
// a caller performs is an optimization, never the guarantee.
func InsertUnique(tx *gorm.DB, row any) (Outcome, error) {
	sp := fmt.Sprintf("guard_sp_%d", savepointSeq.Add(1))
	if err := tx.SavePoint(sp).Error; err != nil {
		return 0, fmt.Errorf("savepoint -> %w", err)
	}
	if err := tx.Create(row).Error; err != nil {
		if IsUniqueViolation(err) {
			if rbErr := tx.RollbackTo(sp).Error; rbErr != nil {
				return 0, fmt.Errorf("rollback to savepoint -> %w", rbErr)
			}
			return AlreadyExisted, nil
		}
		return 0, err
	}
	return Created, nil
}

// WithSavepoint runs fn inside a savepoint on the outer transaction. On error
// the savepoint is rolled back and the error returned; the outer transaction
// stays usable. This is how a secondary write (audit log) or one participant's
// reward sub-flow is isolated from the rest of the transaction.
func WithSavepoint(tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	sp := fmt.Sprintf("guard_sp_%d", savepointSeq.Add(1))
	if err := tx.SavePoint(sp).Error; err != nil {
		return fmt.Errorf("savepoint -> %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.RollbackTo(sp).Error; rbErr != nil {
			return fmt.Errorf("rollback to savepoint after %v -> %w", err, rbErr)
		}
		return err
	}
	return nil
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
