package txguard

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockRow acquires a blocking exclusive row lock (SELECT ... FOR UPDATE) on
// the row matching conds and loads it into dest. The lock is held until the
// enclosing transaction commits or rolls back. A concurrent holder of the same
// row lock serializes this call; LockRow itself never retries, callers decide
// whether blocking surfaces as latency or is bounded by a request timeout.
//
// Returns ErrNotFound when no row matches, which is distinct from any
// lock-acquisition failure.
func LockRow(tx *gorm.DB, r Rank, dest any, conds ...any) error {
	if err := acquire(tx, r); err != nil {
		return err
	}
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(dest, conds...).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Locked returns a query handle with FOR UPDATE applied, after asserting the
// lock order at rank r. For lookups that need Where/Order beyond a primary
// key, e.g. "next waiting booking by slot". The caller must finish the query
// inside the same transaction.
func Locked(tx *gorm.DB, r Rank) (*gorm.DB, error) {
	if err := acquire(tx, r); err != nil {
		return nil, err
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}), nil
}
