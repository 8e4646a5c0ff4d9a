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

type BookingService struct {
	DB *gorm.DB
}

func NewBookingService(db *gorm.DB) *BookingService {
	return &BookingService{DB: db}
}

// Book claims a seat in a session. When the session is full the call fails
// with ErrCapacityExceeded unless the caller opted into the waitlist, in
// which case the user joins it instead. The session row lock taken first
// serializes every booking mutation for that session, which is what makes
// the waitlist ordinals safe to assign as MAX(slot)+1.
//
// Seats are tracked in the booked_count counter; the guarded increment
// (booked_count < capacity) is the capacity check. Waitlisted users are
// charged at join time, the same as seated users, so promotion later never
// needs a balance check.
func (s *BookingService) Book(ctx context.Context, sessionID, userID string, waitlist bool) (*models.Booking, error) {
	var booking models.Booking
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = txguard.Track(tx)

		var session models.Session
		if err := txguard.LockRow(tx, txguard.RankCoarse, &session, "id = ?", sessionID); err != nil {
			return err
		}
		if !session.Open {
			return &txguard.GuardError{Op: "book", EntityID: sessionID, UserID: userID, Err: txguard.ErrClosed}
		}

		// The user already holds a seat or a waitlist position.
		err := tx.Where("session_id = ? AND user_id = ? AND (active OR slot IS NOT NULL)", sessionID, userID).
			First(&booking).Error
		if err == nil {
			return &txguard.GuardError{Op: "book", EntityID: sessionID, UserID: userID, Err: txguard.ErrDuplicateMembership}
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		bookingID := uuid.NewString()
		if session.CreditCost > 0 {
			if _, err := EnsureAccount(tx, userID); err != nil {
				return err
			}
			var account models.UserAccount
			if err := txguard.LockRow(tx, txguard.RankOwner, &account, "user_id = ?", userID); err != nil {
				return err
			}
			// Keyed on the booking row so a cancel-and-rebook charges again.
			key := models.LedgerKey(userID, bookingID, "book")
			if err := creditAccount(tx, userID, models.BalanceCredits, -session.CreditCost, "book", sessionID, key); err != nil {
				return err
			}
		}

		seated, err := txguard.AddGuarded(tx, &models.Session{}, "booked_count", 1,
			"id = ? AND booked_count < capacity", sessionID)
		if err != nil {
			return fmt.Errorf("seat counter -> %w", err)
		}

		booking = models.Booking{
			ID:        bookingID,
			SessionID: sessionID,
			UserID:    userID,
			Cost:      session.CreditCost,
		}
		if seated {
			booking.Active = true
		} else {
			if !waitlist {
				// Rolls back the charge above too.
				return &txguard.GuardError{Op: "book", EntityID: sessionID, UserID: userID, Err: txguard.ErrCapacityExceeded}
			}
			next, err := nextWaitlistSlot(tx, sessionID)
			if err != nil {
				return err
			}
			booking.Slot = &next
		}
		if _, err := txguard.InsertUnique(tx, &booking); err != nil {
			return fmt.Errorf("insert booking -> %w", err)
		}

		writeAudit(tx, "book", userID, sessionID, map[string]any{
			"booking_id": booking.ID,
			"seated":     seated,
			"cost":       session.CreditCost,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// nextWaitlistSlot computes MAX(slot)+1 for the session. Only called under the
// session row lock.
func nextWaitlistSlot(tx *gorm.DB, sessionID string) (int, error) {
	var max int
	err := tx.Model(&models.Booking{}).
		Where("session_id = ? AND slot IS NOT NULL", sessionID).
		Select("COALESCE(MAX(slot), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("waitlist max -> %w", err)
	}
	return max + 1, nil
}

// CancelBooking releases the user's seat or waitlist position and refunds the
// booking cost. Releasing a seat promotes the head of the waitlist into it, so
// booked_count only drops when nobody is waiting. Cancelling twice is a no-op.
func (s *BookingService) CancelBooking(ctx context.Context, sessionID, userID string) (*models.Booking, error) {
	var booking models.Booking
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = txguard.Track(tx)

		var session models.Session
		if err := txguard.LockRow(tx, txguard.RankCoarse, &session, "id = ?", sessionID); err != nil {
			return err
		}

		locked, err := txguard.Locked(tx, txguard.RankFine)
		if err != nil {
			return err
		}
		err = locked.Where("session_id = ? AND user_id = ? AND (active OR slot IS NOT NULL)", sessionID, userID).
			First(&booking).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			findErr := tx.Where("session_id = ? AND user_id = ?", sessionID, userID).
				Order("created_at DESC").First(&booking).Error
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return txguard.ErrNotFound
			}
			return findErr
		}
		if err != nil {
			return err
		}

		wasSeated := booking.Active
		removedSlot := 0
		if booking.Slot != nil {
			removedSlot = *booking.Slot
		}

		now := tx.NowFunc()
		if err := tx.Model(&booking).
			Updates(map[string]any{"active": false, "slot": nil, "cancelled_at": now}).Error; err != nil {
			return fmt.Errorf("deactivate booking -> %w", err)
		}
		booking.Active = false
		booking.Slot = nil
		booking.CancelledAt = &now

		if booking.Cost > 0 {
			key := models.LedgerKey(userID, booking.ID, "refund")
			if err := creditAccount(tx, userID, models.BalanceCredits, booking.Cost, "refund", sessionID, key); err != nil {
				return err
			}
		}

		if wasSeated {
			promoted, err := promoteWaitlistHead(tx, sessionID)
			if err != nil {
				return err
			}
			if !promoted {
				// Seat goes back to the pool.
				ok, err := txguard.AddGuarded(tx, &models.Session{}, "booked_count", -1,
					"id = ? AND booked_count > 0", sessionID)
				if err != nil {
					return fmt.Errorf("seat counter -> %w", err)
				}
				if !ok {
					// The counter says zero seats taken while an active booking
					// just released one. That is drift, not a business rejection.
					return fmt.Errorf("seat counter underflow for session %s", sessionID)
				}
			}
		} else if removedSlot > 0 {
			if err := closeWaitlistGap(tx, sessionID, removedSlot); err != nil {
				return err
			}
		}

		writeAudit(tx, "cancel_booking", userID, sessionID, map[string]any{
			"booking_id": booking.ID,
			"was_seated": wasSeated,
			"refund":     booking.Cost,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// promoteWaitlistHead moves the lowest-ordinal waiting booking into the freed
// seat, then shifts the remaining ordinals down by one. Reports whether anyone
// was waiting. The promoted user paid at join time, so no charge happens here.
func promoteWaitlistHead(tx *gorm.DB, sessionID string) (bool, error) {
	locked, err := txguard.Locked(tx, txguard.RankFine)
	if err != nil {
		return false, err
	}
	var head models.Booking
	err = locked.Where("session_id = ? AND slot IS NOT NULL", sessionID).
		Order("slot ASC").First(&head).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	headSlot := *head.Slot
	if err := tx.Model(&head).
		Updates(map[string]any{"active": true, "slot": nil}).Error; err != nil {
		return false, fmt.Errorf("promote booking -> %w", err)
	}
	return true, closeWaitlistGap(tx, sessionID, headSlot)
}

// closeWaitlistGap shifts every ordinal above the removed one down by one.
// The shift runs in two statements, negating first, because a direct
// "slot = slot - 1" sweep could transiently collide with a still-occupied
// ordinal under the unique (session_id, slot) index.
func closeWaitlistGap(tx *gorm.DB, sessionID string, removed int) error {
	if err := tx.Model(&models.Booking{}).
		Where("session_id = ? AND slot > ?", sessionID, removed).
		UpdateColumn("slot", gorm.Expr("-slot")).Error; err != nil {
		return fmt.Errorf("waitlist shift -> %w", err)
	}
	if err := tx.Model(&models.Booking{}).
		Where("session_id = ? AND slot < 0", sessionID).
		UpdateColumn("slot", gorm.Expr("-slot - 1")).Error; err != nil {
		return fmt.Errorf("waitlist shift -> %w", err)
	}
	return nil
}

// Waitlist returns the waiting bookings for a session in promotion order.
func (s *BookingService) Waitlist(ctx context.Context, sessionID string) ([]models.Booking, error) {
	var waiting []models.Booking
	err := s.DB.WithContext(ctx).Where("session_id = ? AND slot IS NOT NULL", sessionID).
		Order("slot ASC").
		Find(&waiting).Error
	return waiting, err
}
