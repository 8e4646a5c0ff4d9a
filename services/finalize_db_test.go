package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tournament-enrollment-system/models"
	"tournament-enrollment-system/testutil"
	"tournament-enrollment-system/txguard"
)

var testPayouts = PayoutTable{Winner: 500, Second: 250, Third: 100, Participation: 25}
var testXP = PayoutTable{Winner: 300, Second: 200, Third: 150, Participation: 100}

func TestFinalizeLifecycle(t *testing.T) {
	db := testutil.DB(t)
	testutil.Reset(t, db)
	svc := NewFinalizeService(db, testPayouts, testXP)

	tournament := seedTournament(t, db, 0, 0)

	done, already, err := svc.Finalize(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TournamentStatusCompleted, done.Status)
	assert.False(t, already)

	// Repeat call is an idempotent success, distinguishable from the first.
	again, already, err := svc.Finalize(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TournamentStatusCompleted, again.Status)
	assert.True(t, already)

	// Draft cannot be finalized.
	draft := seedTournament(t, db, 0, 0)
	require.NoError(t, db.Model(draft).UpdateColumn("status", models.TournamentStatusDraft).Error)
	_, _, err = svc.Finalize(ctx, draft.ID)
	assert.True(t, errors.Is(err, txguard.ErrInvalidTransition))
}

func TestFinalizeConcurrent(t *testing.T) {
	db := testutil.DB(t)
	testutil.Reset(t, db)
	svc := NewFinalizeService(db, testPayouts, testXP)

	tournament := seedTournament(t, db, 0, 0)

	var wg sync.WaitGroup
	errs := make([]error, 6)
	transitioned := make([]bool, 6)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var already bool
			_, already, errs[i] = svc.Finalize(ctx, tournament.ID)
			transitioned[i] = !already
		}(i)
	}
	wg.Wait()
	firsts := 0
	for i, err := range errs {
		assert.NoError(t, err)
		if transitioned[i] {
			firsts++
		}
	}
	// Exactly one racer performed the transition; the rest saw the no-op.
	assert.Equal(t, 1, firsts)

	var fresh models.Tournament
	require.NoError(t, db.First(&fresh, "id = ?", tournament.ID).Error)
	assert.Equal(t, models.TournamentStatusCompleted, fresh.Status)
	assert.NotNil(t, fresh.CompletedAt)
}

func TestDistributeRewardsExactlyOnce(t *testing.T) {
	db := testutil.DB(t)
	testutil.Reset(t, db)
	enroll := NewEnrollmentService(db)
	svc := NewFinalizeService(db, testPayouts, testXP)

	tournament := seedTournament(t, db, 0, 0)
	users := []string{"alice", "bob", "carol", "dave"}
	for _, u := range users {
		_, err := enroll.Enroll(ctx, tournament.ID, u)
		require.NoError(t, err)
	}
	require.NoError(t, db.Model(tournament).UpdateColumn("status", models.TournamentStatusInProgress).Error)

	base := time.Now().Add(-time.Hour)
	scores := map[string]int{"alice": 90, "bob": 70, "carol": 50, "dave": 30}
	for u, score := range scores {
		_, err := svc.RecordResult(ctx, tournament.ID, u, "serve", score, base)
		require.NoError(t, err)
	}

	_, _, err := svc.Finalize(ctx, tournament.ID)
	require.NoError(t, err)

	// Two concurrent distributions plus a serial retry.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.DistributeRewards(ctx, tournament.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	_, err = svc.DistributeRewards(ctx, tournament.ID)
	require.NoError(t, err)

	var fresh models.Tournament
	require.NoError(t, db.First(&fresh, "id = ?", tournament.ID).Error)
	assert.Equal(t, models.TournamentStatusDistributed, fresh.Status)

	// One participation row per entrant, placements by score.
	var parts []models.TournamentParticipation
	require.NoError(t, db.Where("tournament_id = ?", tournament.ID).
		Order("placement ASC").Find(&parts).Error)
	require.Len(t, parts, len(users))
	assert.Equal(t, "alice", parts[0].UserID)
	assert.Equal(t, 1, parts[0].Placement)
	assert.EqualValues(t, 500, parts[0].CreditsAwarded)

	// Prizes paid exactly once.
	var alice models.UserAccount
	require.NoError(t, db.Where("user_id = ?", "alice").First(&alice).Error)
	assert.EqualValues(t, 500, alice.Credits)
	assert.EqualValues(t, 300, alice.XP)

	var dave models.UserAccount
	require.NoError(t, db.Where("user_id = ?", "dave").First(&dave).Error)
	assert.EqualValues(t, 25, dave.Credits) // off-podium participation payout

	// Winner holds all three badge categories, exactly once each.
	var badges []models.Badge
	require.NoError(t, db.Where("tournament_id = ? AND user_id = ?", tournament.ID, "alice").
		Find(&badges).Error)
	assert.Len(t, badges, 3)

	var daveBadges int64
	require.NoError(t, db.Model(&models.Badge{}).
		Where("tournament_id = ? AND user_id = ?", tournament.ID, "dave").
		Count(&daveBadges).Error)
	assert.EqualValues(t, 1, daveBadges)
}

func TestDistributeOverlappingTournamentsConcurrently(t *testing.T) {
	db := testutil.DB(t)
	testutil.Reset(t, db)
	enroll := NewEnrollmentService(db)
	svc := NewFinalizeService(db, testPayouts, testXP)

	// The same entrants in two tournaments distributed at once. Account locks
	// are taken in user_id order, so the two runs cannot deadlock on them.
	users := []string{"alice", "bob", "carol"}
	tournaments := make([]*models.Tournament, 2)
	for i := range tournaments {
		tournaments[i] = seedTournament(t, db, 0, 0)
		for _, u := range users {
			_, err := enroll.Enroll(ctx, tournaments[i].ID, u)
			require.NoError(t, err)
		}
		_, _, err := svc.Finalize(ctx, tournaments[i].ID)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(tournaments))
	for i := range tournaments {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.DistributeRewards(ctx, tournaments[i].ID)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	// No results were recorded, so everyone got the participation payout from
	// each tournament.
	for _, u := range users {
		var account models.UserAccount
		require.NoError(t, db.Where("user_id = ?", u).First(&account).Error)
		assert.EqualValues(t, 2*testPayouts.Participation, account.Credits)
		assert.EqualValues(t, 2*testXP.Participation, account.XP)
	}
}

func TestDistributeRequiresCompleted(t *testing.T) {
	db := testutil.DB(t)
	testutil.Reset(t, db)
	svc := NewFinalizeService(db, testPayouts, testXP)

	tournament := seedTournament(t, db, 0, 0)
	_, err := svc.DistributeRewards(ctx, tournament.ID)
	assert.True(t, errors.Is(err, txguard.ErrInvalidTransition))
}

func TestRecordResultRequiresEnrolledEntrant(t *testing.T) {
	db := testutil.DB(t)
	testutil.Reset(t, db)
	svc := NewFinalizeService(db, testPayouts, testXP)

	tournament := seedTournament(t, db, 0, 0)
	require.NoError(t, db.Model(tournament).UpdateColumn("status", models.TournamentStatusInProgress).Error)

	_, err := svc.RecordResult(ctx, tournament.ID, "stranger", "serve", 50, time.Now())
	assert.True(t, errors.Is(err, txguard.ErrNotFound))
}
