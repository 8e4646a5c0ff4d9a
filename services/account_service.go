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

type AccountService struct {
	DB *gorm.DB
}

func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{DB: db}
}

// EnsureAccount returns the account row for userID, creating it on first
// contact. Concurrent first contacts resolve through the unique index on
// user_id; the loser of the race re-reads the winner's row.
func EnsureAccount(tx *gorm.DB, userID string) (*models.UserAccount, error) {
	var account models.UserAccount
	err := tx.Where("user_id = ?", userID).First(&account).Error
	if err == nil {
		return &account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	account = models.UserAccount{ID: uuid.NewString(), UserID: userID}
	outcome, err := txguard.InsertUnique(tx, &account)
	if err != nil {
		return nil, fmt.Errorf("create account -> %w", err)
	}
	if outcome == txguard.AlreadyExisted {
		if err := tx.Where("user_id = ?", userID).First(&account).Error; err != nil {
			return nil, err
		}
	}
	return &account, nil
}

// GetAccount loads the account for userID without creating it.
func (s *AccountService) GetAccount(ctx context.Context, userID string) (*models.UserAccount, error) {
	var account models.UserAccount
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, txguard.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// creditAccount applies a signed amount to one balance column and records the
// matching ledger row under key. Both happen in the caller's transaction. A
// replayed key means this logical movement already happened: the balance is
// left untouched and the call succeeds.
//
// For deductions the guard includes the balance floor; a guard rejection maps
// to ErrInsufficientBalance.
func creditAccount(tx *gorm.DB, userID, balance string, amount int64, operation, refID, key string) error {
	entry := models.CreditTransaction{
		ID:             uuid.NewString(),
		UserID:         userID,
		Balance:        balance,
		Amount:         amount,
		Operation:      operation,
		RefID:          refID,
		IdempotencyKey: key,
	}
	outcome, err := txguard.InsertUnique(tx, &entry)
	if err != nil {
		return fmt.Errorf("ledger insert -> %w", err)
	}
	if outcome == txguard.AlreadyExisted {
		return nil
	}

	guard := "user_id = ?"
	args := []any{userID}
	if amount < 0 {
		guard = fmt.Sprintf("user_id = ? AND %s >= ?", balance)
		args = append(args, -amount)
	}
	ok, err := txguard.AddGuarded(tx, &models.UserAccount{}, balance, amount, guard, args...)
	if err != nil {
		return fmt.Errorf("balance update -> %w", err)
	}
	if !ok {
		if amount < 0 {
			return &txguard.GuardError{Op: operation, EntityID: refID, UserID: userID, Err: txguard.ErrInsufficientBalance}
		}
		return &txguard.GuardError{Op: operation, EntityID: refID, UserID: userID, Err: txguard.ErrNotFound}
	}
	return nil
}

// GrantCredits adds amount credits to a user (admin top-up, promo grant). The
// caller supplies grantID so retries of the same grant collapse into one
// ledger row.
func (s *AccountService) GrantCredits(ctx context.Context, userID, grantID string, amount int64) (*models.UserAccount, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	var account models.UserAccount
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = txguard.Track(tx)
		if _, err := EnsureAccount(tx, userID); err != nil {
			return err
		}
		if err := txguard.LockRow(tx, txguard.RankOwner, &account, "user_id = ?", userID); err != nil {
			return err
		}
		key := models.LedgerKey(userID, grantID, "grant")
		if err := creditAccount(tx, userID, models.BalanceCredits, amount, "grant", grantID, key); err != nil {
			return err
		}
		writeAudit(tx, "credit_grant", userID, grantID, map[string]any{"amount": amount})
		return tx.Where("user_id = ?", userID).First(&account).Error
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// History returns the user's ledger entries, newest first.
func (s *AccountService) History(ctx context.Context, userID string, limit int) ([]models.CreditTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var entries []models.CreditTransaction
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
