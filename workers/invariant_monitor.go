package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tournament-enrollment-system/models"
	"tournament-enrollment-system/utils"
)

// Violation is one detected break of a data invariant the guard layer is
// supposed to make impossible. Any violation is a defect in the pipelines, a
// missing index, or out-of-band writes to the database.
type Violation struct {
	Check  string `json:"check"`
	Detail string `json:"detail"`
}

// Report is one monitor sweep's outcome.
type Report struct {
	RanAt      time.Time   `json:"ran_at"`
	Duration   string      `json:"duration"`
	Violations []Violation `json:"violations,omitempty"`
}

// InvariantMonitor periodically cross-checks the database against the
// invariants the transactional pipelines enforce. It reads with plain
// statement-level consistency; a sweep racing a live transaction can produce
// a false positive on the drift checks, so a violation is confirmed by the
// next sweep before anyone gets paged.
type InvariantMonitor struct {
	DB      *gorm.DB
	Reports *utils.R2Client // nil disables report upload
}

func NewInvariantMonitor(db *gorm.DB, reports *utils.R2Client) *InvariantMonitor {
	return &InvariantMonitor{DB: db, Reports: reports}
}

// RunOnce executes every check and returns the sweep report.
func (m *InvariantMonitor) RunOnce(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{RanAt: start}

	checks := []struct {
		name string
		run  func(ctx context.Context) ([]Violation, error)
	}{
		{"duplicate_active_enrollments", m.duplicateActiveEnrollments},
		{"duplicate_active_bookings", m.duplicateActiveBookings},
		{"duplicate_waitlist_slots", m.duplicateWaitlistSlots},
		{"negative_balances", m.negativeBalances},
		{"overbooked_tournaments", m.overbookedTournaments},
		{"booked_count_drift", m.bookedCountDrift},
		{"duplicate_badges", m.duplicateBadges},
		{"duplicate_ledger_keys", m.duplicateLedgerKeys},
		{"ledger_balance_drift", m.ledgerBalanceDrift},
		{"guard_indexes_present", m.guardIndexesPresent},
	}
	for _, check := range checks {
		found, err := check.run(ctx)
		if err != nil {
			return nil, fmt.Errorf("check %s -> %w", check.name, err)
		}
		report.Violations = append(report.Violations, found...)
	}
	report.Duration = time.Since(start).String()

	if len(report.Violations) > 0 {
		zap.L().Error("invariant_violations_detected",
			zap.Int("count", len(report.Violations)),
			zap.Any("violations", report.Violations))
		m.uploadReport(ctx, report)
	} else {
		zap.L().Info("invariant_sweep_clean", zap.String("duration", report.Duration))
	}
	return report, nil
}

func (m *InvariantMonitor) uploadReport(ctx context.Context, report *Report) {
	if m.Reports == nil {
		return
	}
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return
	}
	key := fmt.Sprintf("invariant-reports/%s.json", report.RanAt.UTC().Format("2006-01-02T15-04-05Z"))
	if url, err := m.Reports.UploadReport(ctx, key, body); err != nil {
		zap.L().Warn("report_upload_failed", zap.Error(err))
	} else {
		zap.L().Info("report_uploaded", zap.String("url", url))
	}
}

// Start schedules recurring sweeps and returns the scheduler for shutdown.
func (m *InvariantMonitor) Start(interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func(ctx context.Context) {
			if _, err := m.RunOnce(ctx); err != nil {
				zap.L().Error("invariant_sweep_failed", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	sched.Start()
	return sched, nil
}

type pairCount struct {
	A string
	B string
	N int64
}

func (m *InvariantMonitor) duplicateActiveEnrollments(ctx context.Context) ([]Violation, error) {
	var rows []pairCount
	err := m.DB.WithContext(ctx).Model(&models.Enrollment{}).
		Select("tournament_id AS a, user_id AS b, COUNT(*) AS n").
		Where("active").
		Group("tournament_id, user_id").
		Having("COUNT(*) > 1").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	var found []Violation
	for _, r := range rows {
		found = append(found, Violation{
			Check:  "duplicate_active_enrollments",
			Detail: fmt.Sprintf("tournament=%s user=%s count=%d", r.A, r.B, r.N),
		})
	}
	return found, nil
}

func (m *InvariantMonitor) duplicateActiveBookings(ctx context.Context) ([]Violation, error) {
	var rows []pairCount
	err := m.DB.WithContext(ctx).Model(&models.Booking{}).
		Select("session_id AS a, user_id AS b, COUNT(*) AS n").
		Where("active OR slot IS NOT NULL").
		Group("session_id, user_id").
		Having("COUNT(*) > 1").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	var found []Violation
	for _, r := range rows {
		found = append(found, Violation{
			Check:  "duplicate_active_bookings",
			Detail: fmt.Sprintf("session=%s user=%s count=%d", r.A, r.B, r.N),
		})
	}
	return found, nil
}

func (m *InvariantMonitor) duplicateWaitlistSlots(ctx context.Context) ([]Violation, error) {
	type slotCount struct {
		A    string
		Slot int
		N    int64
	}
	var rows []slotCount
	err := m.DB.WithContext(ctx).Model(&models.Booking{}).
		Select("session_id AS a, slot, COUNT(*) AS n").
		Where("slot IS NOT NULL").
		Group("session_id, slot").
		Having("COUNT(*) > 1").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	var found []Violation
	for _, r := range rows {
		found = append(found, Violation{
			Check:  "duplicate_waitlist_slots",
			Detail: fmt.Sprintf("session=%s slot=%d count=%d", r.A, r.Slot, r.N),
		})
	}
	return found, nil
}

func (m *InvariantMonitor) negativeBalances(ctx context.Context) ([]Violation, error) {
	var accounts []models.UserAccount
	err := m.DB.WithContext(ctx).
		Where("credits < 0 OR xp < 0").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	var found []Violation
	for _, a := range accounts {
		found = append(found, Violation{
			Check:  "negative_balances",
			Detail: fmt.Sprintf("user=%s credits=%d xp=%d", a.UserID, a.Credits, a.XP),
		})
	}
	return found, nil
}

func (m *InvariantMonitor) overbookedTournaments(ctx context.Context) ([]Violation, error) {
	type overCount struct {
		ID  string
		Max int
		N   int64
	}
	var rows []overCount
	err := m.DB.WithContext(ctx).Raw(`
		SELECT t.id, t.max_entrants AS max, COUNT(e.id) AS n
		FROM tournaments t
		JOIN enrollments e ON e.tournament_id = t.id AND e.active
		WHERE t.max_entrants > 0
		GROUP BY t.id, t.max_entrants
		HAVING COUNT(e.id) > t.max_entrants`).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	var found []Violation
	for _, r := range rows {
		found = append(found, Violation{
			Check:  "overbooked_tournaments",
			Detail: fmt.Sprintf("tournament=%s max=%d active=%d", r.ID, r.Max, r.N),
		})
	}
	return found, nil
}

func (m *InvariantMonitor) bookedCountDrift(ctx context.Context) ([]Violation, error) {
	type driftRow struct {
		ID      string
		Counter int
		Actual  int64
	}
	var rows []driftRow
	err := m.DB.WithContext(ctx).Raw(`
		SELECT s.id, s.booked_count AS counter, COUNT(b.id) FILTER (WHERE b.active) AS actual
		FROM sessions s
		LEFT JOIN bookings b ON b.session_id = s.id
		GROUP BY s.id, s.booked_count, s.capacity
		HAVING s.booked_count <> COUNT(b.id) FILTER (WHERE b.active)
		    OR s.booked_count > s.capacity`).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	var found []Violation
	for _, r := range rows {
		found = append(found, Violation{
			Check:  "booked_count_drift",
			Detail: fmt.Sprintf("session=%s counter=%d actual_active=%d", r.ID, r.Counter, r.Actual),
		})
	}
	return found, nil
}

func (m *InvariantMonitor) duplicateBadges(ctx context.Context) ([]Violation, error) {
	type tripleCount struct {
		A string
		B string
		C string
		N int64
	}
	var rows []tripleCount
	err := m.DB.WithContext(ctx).Model(&models.Badge{}).
		Select("user_id AS a, tournament_id AS b, category AS c, COUNT(*) AS n").
		Group("user_id, tournament_id, category").
		Having("COUNT(*) > 1").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	var found []Violation
	for _, r := range rows {
		found = append(found, Violation{
			Check:  "duplicate_badges",
			Detail: fmt.Sprintf("user=%s tournament=%s category=%s count=%d", r.A, r.B, r.C, r.N),
		})
	}
	return found, nil
}

func (m *InvariantMonitor) duplicateLedgerKeys(ctx context.Context) ([]Violation, error) {
	type keyCount struct {
		Key string
		N   int64
	}
	var rows []keyCount
	err := m.DB.WithContext(ctx).Model(&models.CreditTransaction{}).
		Select("idempotency_key AS key, COUNT(*) AS n").
		Group("idempotency_key").
		Having("COUNT(*) > 1").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	var found []Violation
	for _, r := range rows {
		found = append(found, Violation{
			Check:  "duplicate_ledger_keys",
			Detail: fmt.Sprintf("key=%s count=%d", r.Key, r.N),
		})
	}
	return found, nil
}

// ledgerBalanceDrift reconciles each stored balance against the sum of its
// ledger entries. Balances only move through ledgered operations, so any gap
// between the two means a mutation was lost or applied without its entry.
func (m *InvariantMonitor) ledgerBalanceDrift(ctx context.Context) ([]Violation, error) {
	type driftRow struct {
		UserID        string
		Credits       int64
		XP            int64
		LedgerCredits int64
		LedgerXP      int64
	}
	var rows []driftRow
	err := m.DB.WithContext(ctx).Raw(`
		SELECT a.user_id,
		       a.credits,
		       a.xp,
		       COALESCE(SUM(t.amount) FILTER (WHERE t.balance = 'credits'), 0) AS ledger_credits,
		       COALESCE(SUM(t.amount) FILTER (WHERE t.balance = 'xp'), 0) AS ledger_xp
		FROM user_accounts a
		LEFT JOIN credit_transactions t ON t.user_id = a.user_id
		GROUP BY a.user_id, a.credits, a.xp
		HAVING a.credits <> COALESCE(SUM(t.amount) FILTER (WHERE t.balance = 'credits'), 0)
		    OR a.xp <> COALESCE(SUM(t.amount) FILTER (WHERE t.balance = 'xp'), 0)`).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	var found []Violation
	for _, r := range rows {
		found = append(found, Violation{
			Check: "ledger_balance_drift",
			Detail: fmt.Sprintf("user=%s credits=%d ledger_credits=%d xp=%d ledger_xp=%d",
				r.UserID, r.Credits, r.LedgerCredits, r.XP, r.LedgerXP),
		})
	}
	return found, nil
}

// guardIndexesPresent verifies the partial unique indexes the idempotent
// inserts depend on actually exist. A migration that silently skipped them
// leaves every pipeline running unprotected.
func (m *InvariantMonitor) guardIndexesPresent(ctx context.Context) ([]Violation, error) {
	var names []string
	err := m.DB.WithContext(ctx).
		Raw(`SELECT indexname FROM pg_indexes WHERE schemaname = current_schema()`).
		Scan(&names).Error
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}
	var found []Violation
	for name, table := range models.GuardIndexes {
		if !present[name] {
			found = append(found, Violation{
				Check:  "guard_indexes_present",
				Detail: fmt.Sprintf("missing index %s on %s", name, table),
			})
		}
	}
	return found, nil
}
