package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tournament-enrollment-system/models"
	"tournament-enrollment-system/txguard"
)

type ProgressionService struct {
	DB *gorm.DB
}

func NewProgressionService(db *gorm.DB) *ProgressionService {
	return &ProgressionService{DB: db}
}

// ensureLicense mirrors EnsureAccount for the license row.
func ensureLicense(tx *gorm.DB, userID string) (*models.UserLicense, error) {
	var license models.UserLicense
	err := tx.Where("user_id = ?", userID).First(&license).Error
	if err == nil {
		return &license, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	license = models.UserLicense{ID: uuid.NewString(), UserID: userID, Skills: models.SkillMap{}}
	outcome, err := txguard.InsertUnique(tx, &license)
	if err != nil {
		return nil, fmt.Errorf("create license -> %w", err)
	}
	if outcome == txguard.AlreadyExisted {
		if err := tx.Where("user_id = ?", userID).First(&license).Error; err != nil {
			return nil, err
		}
	}
	return &license, nil
}

// RecordAssessment writes fresh baselines for the assessed skills. Two rules
// keep the two skill writers from trampling each other:
//
//   - the merge happens under the license row lock, so the other writer's
//     transaction is fully serialized with this one
//   - only the assessed keys are touched; every other key in the map passes
//     through unchanged
//
// A re-assessed skill keeps its recorded tournament deltas: the new current
// level is the new baseline plus the sum of those deltas.
func (s *ProgressionService) RecordAssessment(ctx context.Context, userID string, ratings map[string]int) (*models.UserLicense, error) {
	if len(ratings) == 0 {
		return nil, fmt.Errorf("assessment must rate at least one skill")
	}
	var license *models.UserLicense
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = txguard.Track(tx)

		if _, err := ensureLicense(tx, userID); err != nil {
			return err
		}
		var row models.UserLicense
		if err := txguard.LockRow(tx, txguard.RankOwner, &row, "user_id = ?", userID); err != nil {
			return err
		}

		now := tx.NowFunc()
		skills := row.Skills.Normalized()
		for key, value := range ratings {
			key = models.NormalizeSkillKey(key)
			if key == "" {
				continue
			}
			entry := skills[key]
			entry.Baseline = value
			entry.CurrentLevel = value + deltaSum(entry.Deltas)
			skills[key] = entry
		}

		license = &row
		license.Skills = skills
		license.LastAssessedAt = &now
		if err := tx.Model(&row).
			Updates(map[string]any{"skills": skills, "last_assessed_at": now}).Error; err != nil {
			return fmt.Errorf("store assessment -> %w", err)
		}
		writeAudit(tx, "assessment", userID, "", map[string]any{"skills": len(ratings)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return license, nil
}

func deltaSum(deltas []models.SkillDelta) int {
	total := 0
	for _, d := range deltas {
		total += d.Change
	}
	return total
}

// RecomputeSkills rebuilds the tournament-derived part of the skill map from
// the full result history. The replay is deterministic: results are consumed
// in (recorded_at, id) order and each one pulls the running level a quarter of
// the way toward the recorded score:
//
//	level' = (level*3 + score) / 4
//
// Each replayed skill restarts from its baseline and gets its delta list
// rebuilt from scratch; skills with no results are left exactly as they were.
// Running the recompute twice with no new results is a no-op.
func (s *ProgressionService) RecomputeSkills(ctx context.Context, userID string) (*models.UserLicense, error) {
	var license *models.UserLicense
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = txguard.Track(tx)

		if _, err := ensureLicense(tx, userID); err != nil {
			return err
		}
		var row models.UserLicense
		if err := txguard.LockRow(tx, txguard.RankOwner, &row, "user_id = ?", userID); err != nil {
			return err
		}

		var results []models.TournamentResult
		if err := tx.Where("user_id = ?", userID).
			Order("recorded_at ASC, id ASC").
			Find(&results).Error; err != nil {
			return fmt.Errorf("load results -> %w", err)
		}

		now := tx.NowFunc()
		skills := row.Skills.Normalized()
		ReplayResults(skills, results)

		license = &row
		license.Skills = skills
		license.LastRecomputedAt = &now
		if err := tx.Model(&row).
			Updates(map[string]any{"skills": skills, "last_recomputed_at": now}).Error; err != nil {
			return fmt.Errorf("store recompute -> %w", err)
		}
		writeAudit(tx, "recompute", userID, "", map[string]any{"results": len(results)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return license, nil
}

// ReplayResults folds an ordered result history into the skill map in place.
// The caller is responsible for ordering and for holding the license lock.
func ReplayResults(skills models.SkillMap, results []models.TournamentResult) {
	touched := make(map[string]bool)
	for _, r := range results {
		key := models.NormalizeSkillKey(r.SkillKey)
		entry := skills[key]
		if !touched[key] {
			entry.CurrentLevel = entry.Baseline
			entry.Deltas = entry.Deltas[:0]
			touched[key] = true
		}
		next := (entry.CurrentLevel*3 + r.Score) / 4
		entry.Deltas = append(entry.Deltas, models.SkillDelta{
			Source: models.SkillSourceTournament,
			Change: next - entry.CurrentLevel,
			At:     r.RecordedAt,
			Ref:    r.TournamentID,
		})
		entry.CurrentLevel = next
		skills[key] = entry
	}
}

// GetLicense loads a user's license without creating it.
func (s *ProgressionService) GetLicense(ctx context.Context, userID string) (*models.UserLicense, error) {
	var license models.UserLicense
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&license).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, txguard.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	license.Skills = license.Skills.Normalized()
	return &license, nil
}
