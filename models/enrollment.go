package models

import "time"

// Enrollment is one user's claim on a tournament slot. Rows are never deleted;
// cancellation flips Active to false so history and refunds stay auditable.
//
// At most one active row may exist per (tournament, user) pair. That is
// enforced by a partial unique index (see migrate.go), not by application
// pre-checks; concurrent duplicate attempts are resolved by the constraint.
type Enrollment struct {
	ID           string `json:"id" gorm:"primaryKey;type:uuid"`
	TournamentID string `json:"tournament_id" gorm:"not null;index"`
	UserID       string `json:"user_id" gorm:"not null;index"`

	Active bool  `json:"active" gorm:"not null;default:true"`
	Cost   int64 `json:"cost" gorm:"not null;default:0"` // credits charged at enrollment time

	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}
