package models

import "time"

// Badge categories granted during reward distribution.
const (
	BadgeCategoryWinner      = "winner"
	BadgeCategoryPodium      = "podium"
	BadgeCategoryParticipant = "participant"
)

// Badge marks that a (user, tournament, category) triple was granted once.
// Uniqueness on the triple is a database constraint; concurrent award attempts
// resolve to a single row via the idempotent-insert primitive.
type Badge struct {
	ID           string `json:"id" gorm:"primaryKey;type:uuid"`
	UserID       string `json:"user_id" gorm:"not null;index;uniqueIndex:uniq_badges_triple"`
	TournamentID string `json:"tournament_id" gorm:"not null;uniqueIndex:uniq_badges_triple"`
	Category     string `json:"category" gorm:"not null;type:varchar(32);uniqueIndex:uniq_badges_triple"`

	AwardedAt time.Time `json:"awarded_at" gorm:"autoCreateTime"`
}

// TournamentParticipation gates reward distribution: rewards for a participant
// are granted only in the same transaction scope that created this row, so a
// re-run of distribution skips everyone already recorded.
type TournamentParticipation struct {
	ID           string `json:"id" gorm:"primaryKey;type:uuid"`
	UserID       string `json:"user_id" gorm:"not null;index;uniqueIndex:uniq_participations_pair"`
	TournamentID string `json:"tournament_id" gorm:"not null;uniqueIndex:uniq_participations_pair"`

	Placement      int   `json:"placement" gorm:"default:0"` // 0 = unplaced
	CreditsAwarded int64 `json:"credits_awarded" gorm:"default:0"`
	XPAwarded      int64 `json:"xp_awarded" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
