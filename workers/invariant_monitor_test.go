package workers

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tournament-enrollment-system/models"
	"tournament-enrollment-system/testutil"
)

func TestRunOnceCleanDatabase(t *testing.T) {
	db := testutil.DB(t)
	testutil.Reset(t, db)

	monitor := NewInvariantMonitor(db, nil)
	report, err := monitor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Violations)
}

func TestRunOnceDetectsCounterDrift(t *testing.T) {
	db := testutil.DB(t)
	testutil.Reset(t, db)

	// A session claiming 3 seats with no bookings behind them.
	require.NoError(t, db.Create(&models.Session{
		ID: uuid.NewString(), Title: "Drifted", Capacity: 5, BookedCount: 3, Open: true,
	}).Error)

	monitor := NewInvariantMonitor(db, nil)
	report, err := monitor.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Violations, 1)
	assert.Equal(t, "booked_count_drift", report.Violations[0].Check)
}

func TestRunOnceDetectsOverbookedTournament(t *testing.T) {
	db := testutil.DB(t)
	testutil.Reset(t, db)

	tournamentID := uuid.NewString()
	require.NoError(t, db.Create(&models.Tournament{
		ID: tournamentID, Slug: "over-" + tournamentID[:8], Name: "Over",
		MaxEntrants: 1, Status: models.TournamentStatusOpen,
	}).Error)
	// Two active entrants forced in past the limit, bypassing the pipeline.
	for _, u := range []string{"a", "b"} {
		require.NoError(t, db.Create(&models.Enrollment{
			ID: uuid.NewString(), TournamentID: tournamentID, UserID: u, Active: true,
		}).Error)
	}

	monitor := NewInvariantMonitor(db, nil)
	report, err := monitor.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Violations, 1)
	assert.Equal(t, "overbooked_tournaments", report.Violations[0].Check)
	assert.Contains(t, report.Violations[0].Detail, tournamentID)
}

func TestRunOnceDetectsLedgerBalanceDrift(t *testing.T) {
	db := testutil.DB(t)
	testutil.Reset(t, db)

	// A balance fully explained by its ledger is clean.
	require.NoError(t, db.Create(&models.UserAccount{
		ID: uuid.NewString(), UserID: "ledgered", Credits: 100,
	}).Error)
	require.NoError(t, db.Create(&models.CreditTransaction{
		ID: uuid.NewString(), UserID: "ledgered",
		Balance: models.BalanceCredits, Amount: 100,
		Operation: "grant", IdempotencyKey: models.LedgerKey("ledgered", "g1", "grant"),
	}).Error)

	monitor := NewInvariantMonitor(db, nil)
	report, err := monitor.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Violations)

	// A balance mutation with no entry behind it is not.
	require.NoError(t, db.Model(&models.UserAccount{}).
		Where("user_id = ?", "ledgered").
		UpdateColumn("credits", 140).Error)

	report, err = monitor.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, "ledger_balance_drift", report.Violations[0].Check)
	assert.Contains(t, report.Violations[0].Detail, "ledgered")
}

func TestGuardIndexCheckPasses(t *testing.T) {
	db := testutil.DB(t)
	testutil.Reset(t, db)

	monitor := NewInvariantMonitor(db, nil)
	found, err := monitor.guardIndexesPresent(context.Background())
	require.NoError(t, err)
	assert.Empty(t, found)
}
