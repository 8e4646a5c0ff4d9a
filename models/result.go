package models

import "time"

// TournamentResult is an immutable per-event score row consumed by the derived
// skill writer's replay. The auto-increment ID is the replay tie-break, so two
// rows recorded in the same clock tick still apply in a fixed order
// (recorded_at ASC, id ASC).
type TournamentResult struct {
	ID           uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	TournamentID string `json:"tournament_id" gorm:"not null;index"`
	UserID       string `json:"user_id" gorm:"not null;index"`

	SkillKey string `json:"skill_key" gorm:"not null"`
	Score    int    `json:"score" gorm:"not null"`

	RecordedAt time.Time `json:"recorded_at" gorm:"not null;index"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}
