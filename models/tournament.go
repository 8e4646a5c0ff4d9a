package models

import (
	"time"
)

// Tournament status lifecycle. Transitions only move forward; tournaments are
// archived, never deleted.
const (
	TournamentStatusDraft       = "draft"
	TournamentStatusOpen        = "open"
	TournamentStatusInProgress  = "in_progress"
	TournamentStatusCompleted   = "completed"
	TournamentStatusDistributed = "rewards_distributed"
	TournamentStatusArchived    = "archived"
)

// statusOrder ranks statuses for "at or past" idempotency checks.
var statusOrder = map[string]int{
	TournamentStatusDraft:       0,
	TournamentStatusOpen:        1,
	TournamentStatusInProgress:  2,
	TournamentStatusCompleted:   3,
	TournamentStatusDistributed: 4,
	TournamentStatusArchived:    5,
}

// StatusAtOrPast reports whether status has already reached target in the
// lifecycle. Used by the finalize pipeline's repeat-call check, which must run
// under the tournament row lock.
func StatusAtOrPast(status, target string) bool {
	return statusOrder[status] >= statusOrder[target]
}

// Tournament is the coarse capacity-owning entity. Its entrant count is only
// ever compared against MaxEntrants while the row is locked.
type Tournament struct {
	ID          string `json:"id" gorm:"primaryKey;type:uuid"`
	Slug        string `json:"slug" gorm:"uniqueIndex;not null"`
	Name        string `json:"name" gorm:"not null"`
	Description string `json:"description"`

	// MaxEntrants <= 0 means unlimited.
	MaxEntrants int   `json:"max_entrants" gorm:"default:0"`
	EntryFee    int64 `json:"entry_fee" gorm:"default:0;check:entry_fee >= 0"` // credits

	Status        string     `json:"status" gorm:"default:'draft';index"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	DistributedAt *time.Time `json:"distributed_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Enrollments []Enrollment `json:"enrollments,omitempty" gorm:"foreignKey:TournamentID"`

	// Calculated, not stored.
	EntrantCount int64 `json:"entrant_count,omitempty" gorm:"-"`
}
