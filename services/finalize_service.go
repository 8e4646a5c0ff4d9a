package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tournament-enrollment-system/models"
	"tournament-enrollment-system/txguard"
)

type FinalizeService struct {
	DB        *gorm.DB
	Payouts   PayoutTable
	XPPayouts PayoutTable
}

func NewFinalizeService(db *gorm.DB, payouts, xpPayouts PayoutTable) *FinalizeService {
	return &FinalizeService{DB: db, Payouts: payouts, XPPayouts: xpPayouts}
}

// RecordResult appends an immutable score row for one entrant. Results only
// accumulate while the tournament is in progress; the derived skill replay and
// reward placement both consume them later.
func (s *FinalizeService) RecordResult(ctx context.Context, tournamentID, userID, skillKey string, score int, recordedAt time.Time) (*models.TournamentResult, error) {
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	result := models.TournamentResult{
		TournamentID: tournamentID,
		UserID:       userID,
		SkillKey:     models.NormalizeSkillKey(skillKey),
		Score:        score,
		RecordedAt:   recordedAt,
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = txguard.Track(tx)

		var tournament models.Tournament
		if err := txguard.LockRow(tx, txguard.RankCoarse, &tournament, "id = ?", tournamentID); err != nil {
			return err
		}
		if tournament.Status != models.TournamentStatusInProgress {
			return &txguard.GuardError{Op: "record_result", EntityID: tournamentID, UserID: userID, Err: txguard.ErrInvalidTransition}
		}
		var active int64
		if err := tx.Model(&models.Enrollment{}).
			Where("tournament_id = ? AND user_id = ? AND active", tournamentID, userID).
			Count(&active).Error; err != nil {
			return err
		}
		if active == 0 {
			return &txguard.GuardError{Op: "record_result", EntityID: tournamentID, UserID: userID, Err: txguard.ErrNotFound}
		}
		return tx.Create(&result).Error
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Finalize moves an open or in-progress tournament to completed. Repeating the
// call once the tournament is already at or past completed succeeds without
// changing anything and reports alreadyFinalized, so callers can tell the
// no-op apart from the transition; calling it on a draft is an invalid
// transition. Both checks run under the tournament row lock so two racing
// finalizers resolve to exactly one state change.
func (s *FinalizeService) Finalize(ctx context.Context, tournamentID string) (tournament *models.Tournament, alreadyFinalized bool, err error) {
	var row models.Tournament
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = txguard.Track(tx)

		if err := txguard.LockRow(tx, txguard.RankCoarse, &row, "id = ?", tournamentID); err != nil {
			return err
		}
		if models.StatusAtOrPast(row.Status, models.TournamentStatusCompleted) {
			alreadyFinalized = true
			return nil
		}
		if row.Status != models.TournamentStatusOpen && row.Status != models.TournamentStatusInProgress {
			return &txguard.GuardError{Op: "finalize", EntityID: tournamentID, Err: txguard.ErrInvalidTransition}
		}

		now := tx.NowFunc()
		if err := tx.Model(&row).
			Updates(map[string]any{"status": models.TournamentStatusCompleted, "completed_at": now}).Error; err != nil {
			return fmt.Errorf("complete tournament -> %w", err)
		}
		writeAudit(tx, "finalize", "", tournamentID, nil)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &row, alreadyFinalized, nil
}

// DistributeRewards grants prizes, XP and badges to every active entrant of a
// completed tournament, exactly once per entrant.
//
// The participation row is the gate: each entrant's rewards are granted in the
// same savepoint that inserts their participation row, so a crashed or
// partially failed run leaves some entrants fully rewarded and the rest fully
// untouched. Re-running skips everyone whose participation row exists and
// finishes the remainder. The tournament only moves to rewards_distributed
// when a run completes with zero failures.
func (s *FinalizeService) DistributeRewards(ctx context.Context, tournamentID string) (*models.Tournament, error) {
	var tournament models.Tournament
	var failed int
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = txguard.Track(tx)

		if err := txguard.LockRow(tx, txguard.RankCoarse, &tournament, "id = ?", tournamentID); err != nil {
			return err
		}
		if models.StatusAtOrPast(tournament.Status, models.TournamentStatusDistributed) {
			return nil
		}
		if !models.StatusAtOrPast(tournament.Status, models.TournamentStatusCompleted) {
			return &txguard.GuardError{Op: "distribute", EntityID: tournamentID, Err: txguard.ErrInvalidTransition}
		}

		placements, err := resolvePlacements(tx, tournamentID)
		if err != nil {
			return err
		}

		// Entrants are processed in user_id order. Each sub-flow locks that
		// user's account, and rank alone says nothing about two locks of the
		// same rank: two distributions over overlapping entrant sets must take
		// the account locks in one total order or they can deadlock AB/BA.
		var entrants []models.Enrollment
		if err := tx.Where("tournament_id = ? AND active", tournamentID).
			Order("user_id ASC").Find(&entrants).Error; err != nil {
			return fmt.Errorf("load entrants -> %w", err)
		}

		for _, entrant := range entrants {
			placement := placements[entrant.UserID]
			err := txguard.WithSavepoint(tx, func(tx *gorm.DB) error {
				return s.rewardParticipant(tx, tournamentID, entrant.UserID, placement)
			})
			if err != nil {
				failed++
				zap.L().Error("participant_reward_failed",
					zap.String("tournament_id", tournamentID),
					zap.String("user_id", entrant.UserID),
					zap.Error(err))
			}
		}
		if failed > 0 {
			// Successful entrants keep their savepoint-committed rewards; a
			// re-run will pick up only the failures.
			return nil
		}

		now := tx.NowFunc()
		if err := tx.Model(&tournament).
			Updates(map[string]any{"status": models.TournamentStatusDistributed, "distributed_at": now}).Error; err != nil {
			return fmt.Errorf("mark distributed -> %w", err)
		}
		writeAudit(tx, "distribute", "", tournamentID, map[string]any{"entrants": len(entrants)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if failed > 0 {
		return nil, fmt.Errorf("reward distribution incomplete: %d participant(s) failed", failed)
	}
	return &tournament, nil
}

// rewardParticipant runs one entrant's reward sub-flow. The idempotent
// participation insert decides everything: AlreadyExisted means a previous run
// already rewarded this entrant and the whole sub-flow is skipped.
func (s *FinalizeService) rewardParticipant(tx *gorm.DB, tournamentID, userID string, placement int) error {
	credits := s.Payouts.ForPlacement(placement)
	xp := s.XPPayouts.ForPlacement(placement)

	participation := models.TournamentParticipation{
		ID:             uuid.NewString(),
		UserID:         userID,
		TournamentID:   tournamentID,
		Placement:      placement,
		CreditsAwarded: credits,
		XPAwarded:      xp,
	}
	outcome, err := txguard.InsertUnique(tx, &participation)
	if err != nil {
		return fmt.Errorf("insert participation -> %w", err)
	}
	if outcome == txguard.AlreadyExisted {
		return nil
	}

	if _, err := EnsureAccount(tx, userID); err != nil {
		return err
	}
	var account models.UserAccount
	if err := txguard.LockRow(tx, txguard.RankOwner, &account, "user_id = ?", userID); err != nil {
		return err
	}
	if credits > 0 {
		key := models.LedgerKey(userID, tournamentID, "prize")
		if err := creditAccount(tx, userID, models.BalanceCredits, credits, "prize", tournamentID, key); err != nil {
			return err
		}
	}
	if xp > 0 {
		key := models.LedgerKey(userID, tournamentID, "prize_xp")
		if err := creditAccount(tx, userID, models.BalanceXP, xp, "prize_xp", tournamentID, key); err != nil {
			return err
		}
	}

	for _, category := range badgeCategories(placement) {
		badge := models.Badge{
			ID:           uuid.NewString(),
			UserID:       userID,
			TournamentID: tournamentID,
			Category:     category,
		}
		if _, err := txguard.InsertUnique(tx, &badge); err != nil {
			return fmt.Errorf("insert badge %s -> %w", category, err)
		}
	}
	return nil
}

func badgeCategories(placement int) []string {
	switch {
	case placement == 1:
		return []string{models.BadgeCategoryWinner, models.BadgeCategoryPodium, models.BadgeCategoryParticipant}
	case placement == 2 || placement == 3:
		return []string{models.BadgeCategoryPodium, models.BadgeCategoryParticipant}
	default:
		return []string{models.BadgeCategoryParticipant}
	}
}

// resolvePlacements ranks entrants by total recorded score. Ties break on
// user_id so two runs over the same data always produce the same podium.
// Users with no results stay unplaced (0).
func resolvePlacements(tx *gorm.DB, tournamentID string) (map[string]int, error) {
	type standing struct {
		UserID string
		Total  int
	}
	var standings []standing
	err := tx.Model(&models.TournamentResult{}).
		Select("user_id, SUM(score) AS total").
		Where("tournament_id = ?", tournamentID).
		Group("user_id").
		Order("total DESC, user_id ASC").
		Scan(&standings).Error
	if err != nil {
		return nil, fmt.Errorf("rank results -> %w", err)
	}
	placements := make(map[string]int, len(standings))
	for i, st := range standings {
		placements[st.UserID] = i + 1
	}
	return placements, nil
}
