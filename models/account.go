package models

import "time"

// UserAccount holds a user's spendable credit balance and accumulated XP.
//
// Both columns carry a database CHECK (>= 0) and are mutated exclusively via
// single-statement guarded updates, never via read-modify-save. The CHECK is
// the last line of defense; the guarded update is the primary one.
type UserAccount struct {
	ID     string `json:"id" gorm:"primaryKey;type:uuid"`
	UserID string `json:"user_id" gorm:"uniqueIndex;not null"`

	Credits int64 `json:"credits" gorm:"not null;default:0;check:credits >= 0"`
	XP      int64 `json:"xp" gorm:"not null;default:0;check:xp >= 0"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Balance column names accepted by the ledger and the guarded updates.
const (
	BalanceCredits = "credits"
	BalanceXP      = "xp"
)
