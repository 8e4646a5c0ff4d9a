package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Skill delta sources.
const (
	SkillSourceAssessment = "assessment"
	SkillSourceTournament = "tournament"
)

// SkillDelta is one recorded change to a skill rating.
type SkillDelta struct {
	Source string    `json:"source"`
	Change int       `json:"change"`
	At     time.Time `json:"at"`
	Ref    string    `json:"ref,omitempty"`
}

// SkillRating is the structured per-skill value stored in the license map.
// Historically some entries were written as a bare number; those decode into
// {baseline: v, current_level: v, deltas: []} (see UnmarshalJSON).
type SkillRating struct {
	Baseline     int          `json:"baseline"`
	CurrentLevel int          `json:"current_level"`
	Deltas       []SkillDelta `json:"deltas,omitempty"`
}

func (r *SkillRating) UnmarshalJSON(data []byte) error {
	type plain SkillRating
	var p plain
	if err := json.Unmarshal(data, &p); err == nil {
		*r = SkillRating(p)
		return nil
	}
	// Legacy scalar entry.
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("skill rating: unsupported encoding %q", string(data))
	}
	*r = SkillRating{Baseline: int(v), CurrentLevel: int(v)}
	return nil
}

// SkillMap is the JSONB skills column. Two independent pipelines write it
// (periodic assessment and tournament-driven recompute); both must merge under
// the license row lock, never replace the column wholesale.
type SkillMap map[string]SkillRating

func (m SkillMap) Value() (driver.Value, error) {
	if m == nil {
		m = SkillMap{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *SkillMap) Scan(src any) error {
	if src == nil {
		*m = SkillMap{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("skill map: cannot scan %T", src)
	}
	if len(data) == 0 {
		*m = SkillMap{}
		return nil
	}
	return json.Unmarshal(data, m)
}

// NormalizeSkillKey canonicalizes a skill key: NFC-normalized, lower-cased,
// trimmed, inner spaces collapsed to underscores.
func NormalizeSkillKey(key string) string {
	key = norm.NFC.String(key)
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.Join(strings.Fields(key), "_")
}

// Normalized returns a copy with canonical keys and legacy entries upgraded to
// the structured form. Writers call this before merging so no scalar-format
// entry survives a write they participated in.
func (m SkillMap) Normalized() SkillMap {
	out := make(SkillMap, len(m))
	for k, v := range m {
		key := NormalizeSkillKey(k)
		if v.Baseline == 0 && v.CurrentLevel != 0 && len(v.Deltas) == 0 {
			// Entry written before baselines existed; adopt the level.
			v.Baseline = v.CurrentLevel
		}
		if existing, ok := out[key]; ok {
			// Key collision after canonicalization: keep the richer entry.
			if len(existing.Deltas) > len(v.Deltas) {
				continue
			}
		}
		out[key] = v
	}
	return out
}

// UserLicense owns the per-user progression state. The skills column is the
// shared semi-structured state both skill writers serialize on.
type UserLicense struct {
	ID     string `json:"id" gorm:"primaryKey;type:uuid"`
	UserID string `json:"user_id" gorm:"uniqueIndex;not null"`

	Skills SkillMap `json:"skills" gorm:"type:jsonb;not null;default:'{}'"`

	LastAssessedAt   *time.Time `json:"last_assessed_at,omitempty"`
	LastRecomputedAt *time.Time `json:"last_recomputed_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
