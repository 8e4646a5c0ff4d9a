package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tournament-enrollment-system/models"
	"tournament-enrollment-system/testutil"
	"tournament-enrollment-system/txguard"
)

var ctx = context.Background()

func seedTournament(t *testing.T, db *gorm.DB, maxEntrants int, fee int64) *models.Tournament {
	t.Helper()
	tournament := &models.Tournament{
		ID:          uuid.NewString(),
		Slug:        "test-" + uuid.NewString()[:8],
		Name:        "Test Open",
		MaxEntrants: maxEntrants,
		EntryFee:    fee,
		Status:      models.TournamentStatusOpen,
	}
	require.NoError(t, db.Create(tournament).Error)
	return tournament
}

func seedAccount(t *testing.T, db *gorm.DB, userID string, credits int64) {
	t.Helper()
	require.NoError(t, db.Create(&models.UserAccount{
		ID: uuid.NewString(), UserID: userID, Credits: credits,
	}).Error)
}

func TestEnrollCapacityUnderContention(t *testing.T) {
	db := testutil.DB(t)
	testutil.Reset(t, db)
	svc := NewEnrollmentService(db)

	const capacity = 3
	const contenders = 10
	tournament := seedTournament(t, db, capacity, 0)

	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Enroll(ctx, tournament.ID, fmt.Sprintf("user-%d", i))
		}(i)
	}
	wg.Wait()

	won, lost := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, txguard.ErrCapacityExceeded):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, capacity, won)
	assert.Equal(t, contenders-capacity, lost)

	var active int64
	require.NoError(t, db.Model(&models.Enrollment{}).
		Where("tournament_id = ? AND active", tournament.ID).Count(&active).Error)
	assert.EqualValues(t, capacity, active)
}

func TestEnrollDuplicateRace(t *testing.T) {
	db := testutil.DB(t)
	testutil.Reset(t, db)
	svc := NewEnrollmentService(db)

	tournament := seedTournament(t, db, 0, 0)

	var wg sync.WaitGroup
	const attempts = 8
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Enroll(ctx, tournament.ID, "same-user")
		}(i)
	}
	wg.Wait()

	// Exactly one attempt wins; every other one surfaces the conflict.
	won, duplicate := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, txguard.ErrDuplicateMembership):
			duplicate++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, attempts-1, duplicate)

	var count int64
	require.NoError(t, db.Model(&models.Enrollment{}).
		Where("tournament_id = ? AND user_id = ? AND active", tournament.ID, "same-user").
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestEnrollDuplicateDoesNotRecharge(t *testing.T) {
	db := testutil.DB(t)
	testutil.Reset(t, db)
	svc := NewEnrollmentService(db)

	tournament := seedTournament(t, db, 0, 100)
	seedAccount(t, db, "payer", 250)

	_, err := svc.Enroll(ctx, tournament.ID, "payer")
	require.NoError(t, err)
	_, err = svc.Enroll(ctx, tournament.ID, "payer")
	assert.True(t, errors.Is(err, txguard.ErrDuplicateMembership))

	var account models.UserAccount
	require.NoError(t, db.Where("user_id = ?", "payer").First(&account).Error)
	assert.EqualValues(t, 150, account.Credits)

	var entries int64
	require.NoError(t, db.Model(&models.CreditTransaction{}).
		Where("user_id = ?", "payer").Count(&entries).Error)
	assert.EqualValues(t, 1, entries)
}

func TestEnrollConcurrentDeductionsKeepBalanceFloor(t *testing.T) {
	db := testutil.DB(t)
	testutil.Reset(t, db)
	svc := NewEnrollmentService(db)

	// Five fee charges race against a balance that covers two of them.
	const fee = 100
	const attempts = 5
	seedAccount(t, db, "spender", 250)
	tournaments := make([]*models.Tournament, attempts)
	for i := range tournaments {
		tournaments[i] = seedTournament(t, db, 0, fee)
	}

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Enroll(ctx, tournaments[i].ID, "spender")
		}(i)
	}
	wg.Wait()

	won, broke := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, txguard.ErrInsufficientBalance):
			broke++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 2, won)
	assert.Equal(t, attempts-2, broke)

	// Final balance reflects exactly the successful charges.
	var account models.UserAccount
	require.NoError(t, db.Where("user_id = ?", "spender").First(&account).Error)
	assert.EqualValues(t, 250-int64(won)*fee, account.Credits)

	var entries int64
	require.NoError(t, db.Model(&models.CreditTransaction{}).
		Where("user_id = ? AND operation = ?", "spender", "enroll").Count(&entries).Error)
	assert.EqualValues(t, won, entries)
}

func TestEnrollInsufficientBalanceRollsBack(t *testing.T) {
	db := testutil.DB(t)
	testutil.Reset(t, db)
	svc := NewEnrollmentService(db)

	tournament := seedTournament(t, db, 0, 100)
	seedAccount(t, db, "broke", 40)

	_, err := svc.Enroll(ctx, tournament.ID, "broke")
	require.Error(t, err)
	assert.True(t, errors.Is(err, txguard.ErrInsufficientBalance))

	// The rejected charge must not leave a half-enrolled user behind.
	var count int64
	require.NoError(t, db.Model(&models.Enrollment{}).
		Where("tournament_id = ? AND user_id = ?", tournament.ID, "broke").
		Count(&count).Error)
	assert.Zero(t, count)

	var account models.UserAccount
	require.NoError(t, db.Where("user_id = ?", "broke").First(&account).Error)
	assert.EqualValues(t, 40, account.Credits)
}

func TestEnrollClosedTournament(t *testing.T) {
	db := testutil.DB(t)
	testutil.Reset(t, db)
	svc := NewEnrollmentService(db)

	tournament := seedTournament(t, db, 0, 0)
	require.NoError(t, db.Model(tournament).UpdateColumn("status", models.TournamentStatusCompleted).Error)

	_, err := svc.Enroll(ctx, tournament.ID, "late-user")
	assert.True(t, errors.Is(err, txguard.ErrClosed))
}

func TestCancelEnrollmentIdempotentRefund(t *testing.T) {
	db := testutil.DB(t)
	testutil.Reset(t, db)
	svc := NewEnrollmentService(db)

	tournament := seedTournament(t, db, 0, 100)
	seedAccount(t, db, "payer", 100)

	_, err := svc.Enroll(ctx, tournament.ID, "payer")
	require.NoError(t, err)

	first, err := svc.CancelEnrollment(ctx, tournament.ID, "payer")
	require.NoError(t, err)
	assert.False(t, first.Active)
	assert.NotNil(t, first.CancelledAt)

	second, err := svc.CancelEnrollment(ctx, tournament.ID, "payer")
	require.NoError(t, err)
	assert.False(t, second.Active)

	var account models.UserAccount
	require.NoError(t, db.Where("user_id = ?", "payer").First(&account).Error)
	assert.EqualValues(t, 100, account.Credits) // refunded exactly once

	// Freed capacity is reusable.
	_, err = svc.Enroll(ctx, tournament.ID, "payer")
	require.NoError(t, err)
}
