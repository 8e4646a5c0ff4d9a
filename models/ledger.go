package models

import (
	"fmt"
	"time"
)

// CreditTransaction is an append-only record of one balance mutation. Rows are
// never updated or deleted; corrections are new rows with the opposite sign.
//
// The unique idempotency key is what makes every balance-changing operation
// safely retryable: a retried request produces the same key and the insert
// collapses into "already recorded".
type CreditTransaction struct {
	ID     string `json:"id" gorm:"primaryKey;type:uuid"`
	UserID string `json:"user_id" gorm:"not null;index"`

	// Balance names which column the entry moved: "credits" or "xp".
	Balance string `json:"balance" gorm:"not null;type:varchar(16)"`
	Amount  int64  `json:"amount" gorm:"not null"` // signed; negative = deduction

	Operation string `json:"operation" gorm:"not null;type:varchar(32)"` // enroll, refund, book, prize, grant...
	RefID     string `json:"ref_id,omitempty" gorm:"index"`              // tournament/session id

	IdempotencyKey string `json:"idempotency_key" gorm:"uniqueIndex;not null"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// LedgerKey derives the idempotency key for a logical balance-changing event.
// Same (user, target, operation) always yields the same key, so a retried
// request cannot double-charge or double-credit.
func LedgerKey(userID, refID, operation string) string {
	return fmt.Sprintf("%s:%s:%s", userID, refID, operation)
}
