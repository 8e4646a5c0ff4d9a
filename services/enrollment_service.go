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

type EnrollmentService struct {
	DB *gorm.DB
}

func NewEnrollmentService(db *gorm.DB) *EnrollmentService {
	return &EnrollmentService{DB: db}
}

// Enroll claims a tournament slot for userID and charges the entry fee, all in
// one transaction:
//
//  1. lock the tournament row (coarse rank)
//  2. reject unless the tournament is open
//  3. count active enrollments under that lock, reject at capacity
//  4. idempotent insert of the active enrollment (partial unique index)
//  5. lock the account (owner rank) and charge entry fee with a guarded
//     deduction plus ledger row
//
// Any rejection rolls the whole thing back, so a capacity or balance failure
// never leaves a half-enrolled user. A user who already holds an active
// enrollment gets ErrDuplicateMembership, never a second row or a second
// charge.
func (s *EnrollmentService) Enroll(ctx context.Context, tournamentID, userID string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = txguard.Track(tx)

		var tournament models.Tournament
		if err := txguard.LockRow(tx, txguard.RankCoarse, &tournament, "id = ?", tournamentID); err != nil {
			return err
		}
		if tournament.Status != models.TournamentStatusOpen {
			return &txguard.GuardError{Op: "enroll", EntityID: tournamentID, UserID: userID, Err: txguard.ErrClosed}
		}

		if tournament.MaxEntrants > 0 {
			var active int64
			if err := tx.Model(&models.Enrollment{}).
				Where("tournament_id = ? AND active", tournamentID).
				Count(&active).Error; err != nil {
				return fmt.Errorf("count entrants -> %w", err)
			}
			if active >= int64(tournament.MaxEntrants) {
				return &txguard.GuardError{Op: "enroll", EntityID: tournamentID, UserID: userID, Err: txguard.ErrCapacityExceeded}
			}
		}

		enrollment = models.Enrollment{
			ID:           uuid.NewString(),
			TournamentID: tournamentID,
			UserID:       userID,
			Active:       true,
			Cost:         tournament.EntryFee,
		}
		outcome, err := txguard.InsertUnique(tx, &enrollment)
		if err != nil {
			return fmt.Errorf("insert enrollment -> %w", err)
		}
		if outcome == txguard.AlreadyExisted {
			return &txguard.GuardError{Op: "enroll", EntityID: tournamentID, UserID: userID, Err: txguard.ErrDuplicateMembership}
		}

		if tournament.EntryFee > 0 {
			if _, err := EnsureAccount(tx, userID); err != nil {
				return err
			}
			var account models.UserAccount
			if err := txguard.LockRow(tx, txguard.RankOwner, &account, "user_id = ?", userID); err != nil {
				return err
			}
			// Keyed on the enrollment row, not the tournament: cancelling and
			// re-enrolling is a new charge, retrying this enrollment is not.
			key := models.LedgerKey(userID, enrollment.ID, "enroll")
			if err := creditAccount(tx, userID, models.BalanceCredits, -tournament.EntryFee, "enroll", tournamentID, key); err != nil {
				return err
			}
		}

		writeAudit(tx, "enroll", userID, tournamentID, map[string]any{
			"enrollment_id": enrollment.ID,
			"fee":           tournament.EntryFee,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// CancelEnrollment deactivates the user's active enrollment and refunds the
// fee that was charged for it. Cancelling twice is a no-op: the second call
// finds no active row and returns the already-cancelled state; the refund's
// ledger key stops a double refund even if the row lookup races.
func (s *EnrollmentService) CancelEnrollment(ctx context.Context, tournamentID, userID string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = txguard.Track(tx)

		var tournament models.Tournament
		if err := txguard.LockRow(tx, txguard.RankCoarse, &tournament, "id = ?", tournamentID); err != nil {
			return err
		}

		locked, err := txguard.Locked(tx, txguard.RankFine)
		if err != nil {
			return err
		}
		err = locked.Where("tournament_id = ? AND user_id = ? AND active", tournamentID, userID).
			First(&enrollment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Already cancelled (or never enrolled). Surface the latest row if
			// one exists so the caller sees the final state.
			findErr := tx.Where("tournament_id = ? AND user_id = ?", tournamentID, userID).
				Order("created_at DESC").First(&enrollment).Error
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return txguard.ErrNotFound
			}
			return findErr
		}
		if err != nil {
			return err
		}

		now := tx.NowFunc()
		if err := tx.Model(&enrollment).
			Updates(map[string]any{"active": false, "cancelled_at": now}).Error; err != nil {
			return fmt.Errorf("deactivate enrollment -> %w", err)
		}
		enrollment.Active = false
		enrollment.CancelledAt = &now

		if enrollment.Cost > 0 {
			key := models.LedgerKey(userID, enrollment.ID, "refund")
			if err := creditAccount(tx, userID, models.BalanceCredits, enrollment.Cost, "refund", tournamentID, key); err != nil {
				return err
			}
		}

		writeAudit(tx, "cancel_enrollment", userID, tournamentID, map[string]any{
			"enrollment_id": enrollment.ID,
			"refund":        enrollment.Cost,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListEntrants returns the active enrollments for a tournament.
func (s *EnrollmentService) ListEntrants(ctx context.Context, tournamentID string) ([]models.Enrollment, error) {
	var entrants []models.Enrollment
	err := s.DB.WithContext(ctx).Where("tournament_id = ? AND active", tournamentID).
		Order("created_at ASC").
		Find(&entrants).Error
	return entrants, err
}
