package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetalert/internal/models"
	"fleetalert/internal/processor"
	"fleetalert/internal/rules"
	"fleetalert/internal/store"
)

func newTestService(t *testing.T) (*Service, store.AlertStore) {
	t.Helper()
	mem := store.NewMemory()
	ruleSet := rules.NewSet(rules.Defaults())
	engine := rules.NewEngine(ruleSet, 30*time.Minute)
	coordinator := processor.NewCoordinator(mem, engine)
	scheduler := processor.NewScheduler(coordinator, mem, time.Minute, 30*24*time.Hour)
	return New(mem, ruleSet, coordinator, scheduler), mem
}

func TestCreateAlert(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)

	alert, err := svc.CreateAlert(ctx, "overspeed", models.SeverityHigh, map[string]interface{}{
		"driverId": "DRV001",
		"speed":    132,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, models.SeverityHigh, alert.Severity)
	assert.Equal(t, models.StatusOpen, alert.Status)

	persisted, err := mem.Get(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, alert.ID, persisted.ID)
}

func TestCreateAlertDefaultSeverity(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	alert, err := svc.CreateAlert(ctx, "feedback", "", nil)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSeverity, alert.Severity)
}

func TestCreateAlertValidation(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)

	_, err := svc.CreateAlert(ctx, "", "", nil)
	assert.ErrorIs(t, err, models.ErrEmptySourceType)

	_, err = svc.CreateAlert(ctx, "overspeed", "URGENT", nil)
	assert.ErrorIs(t, err, models.ErrInvalidSeverity)

	// Rejected before persistence.
	all, err := mem.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateAlertTriggersImmediateEvaluation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	// Compliance default rule auto-closes on documentValid.
	alert, err := svc.CreateAlert(ctx, "compliance", "", map[string]interface{}{
		"documentValid": true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAutoClosed, alert.Status, "returned alert reflects the immediate transition")
}

func TestCreateAlertCountEscalation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	meta := map[string]interface{}{"driverId": "DRV001"}
	first, err := svc.CreateAlert(ctx, "overspeed", "", meta)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, first.Status)

	second, err := svc.CreateAlert(ctx, "overspeed", "", meta)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, second.Status)

	// Third overspeed alert for the same driver within the window hits
	// the default escalateIfCount=3 rule.
	third, err := svc.CreateAlert(ctx, "overspeed", "", meta)
	require.NoError(t, err)
	assert.Equal(t, models.StatusEscalated, third.Status)
	assert.Equal(t, models.SeverityCritical, third.Severity)

	// A fourth within the cooldown window does not escalate again.
	fourth, err := svc.CreateAlert(ctx, "overspeed", "", meta)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, fourth.Status)
	assert.Equal(t, 0, fourth.EscalationCount)
}

func TestGetAlertsFiltersAndSort(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)

	mk := func(id, sourceType, driver string, sev models.Severity, age time.Duration) *models.Alert {
		a := models.NewAlert(id, sourceType, sev, map[string]interface{}{"driverId": driver})
		a.CreatedAt = time.Now().UTC().Add(-age)
		require.NoError(t, mem.Save(ctx, a))
		return a
	}
	mk("a1", "overspeed", "DRV001", models.SeverityHigh, 3*time.Hour)
	mk("a2", "overspeed", "DRV002", models.SeverityLow, 2*time.Hour)
	mk("a3", "fatigue", "DRV001", models.SeverityHigh, time.Hour)

	all, err := svc.GetAlerts(ctx, Filters{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a3", "a2", "a1"}, []string{all[0].ID, all[1].ID, all[2].ID}, "newest first")

	bySource, err := svc.GetAlerts(ctx, Filters{SourceType: "overspeed"})
	require.NoError(t, err)
	assert.Len(t, bySource, 2)

	byDriver, err := svc.GetAlerts(ctx, Filters{DriverID: "DRV001"})
	require.NoError(t, err)
	assert.Len(t, byDriver, 2)

	combined, err := svc.GetAlerts(ctx, Filters{SourceType: "overspeed", Severity: models.SeverityHigh})
	require.NoError(t, err)
	require.Len(t, combined, 1)
	assert.Equal(t, "a1", combined[0].ID)

	byStatus, err := svc.GetAlerts(ctx, Filters{Status: models.StatusEscalated})
	require.NoError(t, err)
	assert.Empty(t, byStatus)
}

func TestGetAlertByID(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	created, err := svc.CreateAlert(ctx, "fatigue", "", nil)
	require.NoError(t, err)

	got, err := svc.GetAlertByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.GetAlertByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestResolveAlert(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)

	created, err := svc.CreateAlert(ctx, "fatigue", "", map[string]interface{}{"driverId": "DRV001"})
	require.NoError(t, err)

	resolved, err := svc.ResolveAlert(ctx, created.ID, "driver rested")
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	persisted, err := mem.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, persisted.Status)

	// Resolving again fails: the alert is no longer active.
	_, err = svc.ResolveAlert(ctx, created.ID, "again")
	assert.ErrorIs(t, err, models.ErrNotActive)

	_, err = svc.ResolveAlert(ctx, "missing", "x")
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestResolvedAlertNeverReprocessed(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)

	// Metadata satisfies the auto-close rule, but resolution happened
	// first: no automatic transition may follow.
	a := models.NewAlert("c1", "compliance", models.SeverityMedium, map[string]interface{}{
		"documentValid": true,
	})
	require.NoError(t, a.Resolve("handled manually"))
	require.NoError(t, mem.Save(ctx, a))

	svc.ProcessAllAlerts(ctx)

	persisted, err := mem.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, persisted.Status)
	assert.Len(t, persisted.History, 2)
}

func TestUpdateRules(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	before := svc.Rules()
	err := svc.UpdateRules(map[string]rules.Rule{
		"geofence": {EscalateIfCount: 1, WindowMinutes: 10, EscalateToSeverity: models.SeverityHigh},
	})
	require.NoError(t, err)

	after := svc.Rules()
	assert.Len(t, after, len(before)+1)
	for st, r := range before {
		assert.Equal(t, r, after[st], "previously configured type %q must be unchanged", st)
	}

	// The new type is immediately evaluable.
	alert, err := svc.CreateAlert(ctx, "geofence", "", map[string]interface{}{"driverId": "DRV009"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusEscalated, alert.Status)

	// A malformed update is rejected and the configuration retained.
	err = svc.UpdateRules(map[string]rules.Rule{"bad": {EscalateToSeverity: "URGENT"}})
	require.Error(t, err)
	assert.Equal(t, after, svc.Rules())
}

func TestProcessAllAlerts(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService(t)

	// Seed an OPEN compliance alert whose condition became true after
	// creation; the manual sweep picks it up.
	a := models.NewAlert("c1", "compliance", models.SeverityMedium, nil)
	require.NoError(t, mem.Save(ctx, a))

	svc.ProcessAllAlerts(ctx)
	mid, err := mem.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, mid.Status)

	a.Metadata = map[string]interface{}{"documentValid": "true"}
	require.NoError(t, mem.Save(ctx, a))

	svc.ProcessAllAlerts(ctx)
	after, err := mem.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAutoClosed, after.Status)
}
