package txguard

import (
	"fmt"

	"gorm.io/gorm"
)

// AddGuarded applies a signed delta to a numeric column as one conditional
// UPDATE:
//
//	UPDATE <model> SET col = col + delta WHERE <guard>
//
// It reports whether the guard passed (exactly one row updated). A false
// return means the business rule embedded in the guard rejected the change;
// the caller must treat that as a typed rejection and must roll back anything
// it already wrote in the same logical operation.
//
// This is the only sanctioned way to mutate capacity counters and balances.
// Read-modify-save on those columns is exactly the race this layer exists to
// prevent.
func AddGuarded(tx *gorm.DB, model any, column string, delta int64, guard string, guardArgs ...any) (bool, error) {
	res := tx.Model(model).
		Where(guard, guardArgs...).
		UpdateColumn(column, gorm.Expr(fmt.Sprintf("%s + ?", column), delta))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
