package rules

import (
	"fmt"
	"testing"
	"time"

	"fleetalert/internal/models"
)

func overspeedAlert(id, driver, vehicle string, age time.Duration) *models.Alert {
	meta := map[string]interface{}{}
	if driver != "" {
		meta["driverId"] = driver
	}
	if vehicle != "" {
		meta["vehicleId"] = vehicle
	}
	a := models.NewAlert(id, "overspeed", models.SeverityMedium, meta)
	a.CreatedAt = time.Now().UTC().Add(-age)
	return a
}

func testEngine(t *testing.T, rule Rule) *Engine {
	t.Helper()
	set := NewSet(map[string]Rule{"overspeed": rule})
	return NewEngine(set, 30*time.Minute)
}

func TestCountWindowEscalation(t *testing.T) {
	e := testEngine(t, Rule{EscalateIfCount: 3, WindowMinutes: 60, EscalateToSeverity: models.SeverityCritical})

	var snapshot []*models.Alert
	for i := 0; i < 3; i++ {
		snapshot = append(snapshot, overspeedAlert(fmt.Sprintf("a%d", i), "DRV001", "", time.Duration(i)*10*time.Minute))
	}
	subject := snapshot[0]

	act := e.Evaluate(subject, snapshot)
	if act == nil {
		t.Fatal("three matching alerts within the window should escalate")
	}
	if act.Type != ActionEscalate || act.Severity != models.SeverityCritical {
		t.Errorf("action = %+v, want escalate to CRITICAL", act)
	}
}

func TestCountWindowBelowThreshold(t *testing.T) {
	e := testEngine(t, Rule{EscalateIfCount: 3, WindowMinutes: 60, EscalateToSeverity: models.SeverityCritical})

	snapshot := []*models.Alert{
		overspeedAlert("a1", "DRV001", "", 5*time.Minute),
		overspeedAlert("a2", "DRV001", "", 10*time.Minute),
	}
	if act := e.Evaluate(snapshot[0], snapshot); act != nil {
		t.Errorf("two matches with threshold three should not escalate, got %+v", act)
	}
}

func TestCountWindowExcludesOldAndInactive(t *testing.T) {
	e := testEngine(t, Rule{EscalateIfCount: 3, WindowMinutes: 60, EscalateToSeverity: models.SeverityCritical})

	resolved := overspeedAlert("a3", "DRV001", "", 5*time.Minute)
	_ = resolved.Resolve("done")
	snapshot := []*models.Alert{
		overspeedAlert("a1", "DRV001", "", 5*time.Minute),
		overspeedAlert("a2", "DRV001", "", 2*time.Hour), // outside window
		resolved,                                        // not active
		overspeedAlert("a4", "DRV001", "", 10*time.Minute),
	}
	if act := e.Evaluate(snapshot[0], snapshot); act != nil {
		t.Errorf("old and inactive alerts must not count, got %+v", act)
	}
}

func TestCountWindowDriverOrVehicleMatch(t *testing.T) {
	e := testEngine(t, Rule{EscalateIfCount: 3, WindowMinutes: 60, EscalateToSeverity: models.SeverityCritical})

	// Subject shares a driver with one alert and a vehicle with another;
	// both count (OR semantics, not AND).
	subject := overspeedAlert("a1", "DRV001", "VEH001", 0)
	snapshot := []*models.Alert{
		subject,
		overspeedAlert("a2", "DRV001", "VEH999", 5*time.Minute),
		overspeedAlert("a3", "DRV999", "VEH001", 10*time.Minute),
	}
	if act := e.Evaluate(subject, snapshot); act == nil {
		t.Error("driver-only and vehicle-only matches should both count")
	}

	// No identifiers on the subject: the count rule cannot match.
	bare := overspeedAlert("a4", "", "", 0)
	if act := e.Evaluate(bare, snapshot); act != nil {
		t.Errorf("subject without driver or vehicle should not escalate, got %+v", act)
	}
}

func TestCountWindowCooldownSuppresses(t *testing.T) {
	e := testEngine(t, Rule{EscalateIfCount: 2, WindowMinutes: 60, EscalateToSeverity: models.SeverityCritical})

	subject := overspeedAlert("a1", "DRV001", "", 5*time.Minute)
	if err := subject.Escalate(models.SeverityHigh, "earlier", 0); err != nil {
		t.Fatal(err)
	}
	snapshot := []*models.Alert{
		subject,
		overspeedAlert("a2", "DRV001", "", 10*time.Minute),
	}
	// The count condition holds but the recent escalation blocks the
	// action; this is a silent skip, not an error.
	if act := e.Evaluate(subject, snapshot); act != nil {
		t.Errorf("cooldown should suppress escalation, got %+v", act)
	}
}

func TestCountWindowGroupCooldown(t *testing.T) {
	e := testEngine(t, Rule{EscalateIfCount: 2, WindowMinutes: 60, EscalateToSeverity: models.SeverityCritical})

	// A sibling in the matched group escalated moments ago; a brand-new
	// alert for the same driver must not escalate inside the cooldown.
	sibling := overspeedAlert("a1", "DRV001", "", 10*time.Minute)
	if err := sibling.Escalate(models.SeverityCritical, "earlier", 0); err != nil {
		t.Fatal(err)
	}
	subject := overspeedAlert("a2", "DRV001", "", 0)
	snapshot := []*models.Alert{sibling, subject}

	if act := e.Evaluate(subject, snapshot); act != nil {
		t.Errorf("group cooldown should suppress a fresh alert, got %+v", act)
	}

	// Once the sibling's escalation has cooled down, the fresh alert may
	// escalate.
	past := time.Now().UTC().Add(-2 * time.Hour)
	sibling.LastEscalatedAt = &past
	if act := e.Evaluate(subject, snapshot); act == nil {
		t.Error("expired cooldown should allow escalation")
	}
}

func TestCooldownFollowsEngineClock(t *testing.T) {
	e := testEngine(t, Rule{EscalateIfCount: 2, WindowMinutes: 600, EscalateToSeverity: models.SeverityCritical})

	// Escalated at wall-clock now; the gate must be measured against the
	// engine's clock, not time.Now, so a pinned clock one hour ahead sees
	// the 30-minute cooldown as expired.
	subject := overspeedAlert("a1", "DRV001", "", 5*time.Minute)
	if err := subject.Escalate(models.SeverityHigh, "earlier", 0); err != nil {
		t.Fatal(err)
	}
	snapshot := []*models.Alert{
		subject,
		overspeedAlert("a2", "DRV001", "", 10*time.Minute),
	}

	e.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	if act := e.Evaluate(subject, snapshot); act == nil {
		t.Error("cooldown expired under the engine clock, expected escalation")
	}

	e.now = func() time.Time { return time.Now().UTC().Add(10 * time.Minute) }
	if act := e.Evaluate(subject, snapshot); act != nil {
		t.Errorf("cooldown still running under the engine clock, got %+v", act)
	}
}

func TestAgeEscalation(t *testing.T) {
	set := NewSet(map[string]Rule{"compliance": {EscalateIfDays: 7, EscalateToSeverity: models.SeverityHigh}})
	e := NewEngine(set, 30*time.Minute)

	a := models.NewAlert("c1", "compliance", models.SeverityMedium, nil)
	a.CreatedAt = time.Now().UTC().AddDate(0, 0, -8)

	act := e.Evaluate(a, []*models.Alert{a})
	if act == nil || act.Type != ActionEscalate || act.Severity != models.SeverityHigh {
		t.Fatalf("8-day-old OPEN alert should escalate, got %+v", act)
	}

	// Already-escalated alerts are not age-escalated again.
	b := models.NewAlert("c2", "compliance", models.SeverityMedium, nil)
	b.CreatedAt = time.Now().UTC().AddDate(0, 0, -8)
	past := time.Now().UTC().Add(-24 * time.Hour)
	b.Status = models.StatusEscalated
	b.LastEscalatedAt = &past
	if act := e.Evaluate(b, []*models.Alert{b}); act != nil {
		t.Errorf("ESCALATED alert should not age-escalate, got %+v", act)
	}

	// Too young.
	c := models.NewAlert("c3", "compliance", models.SeverityMedium, nil)
	c.CreatedAt = time.Now().UTC().AddDate(0, 0, -3)
	if act := e.Evaluate(c, []*models.Alert{c}); act != nil {
		t.Errorf("3-day-old alert should not escalate, got %+v", act)
	}
}

func TestAutoClose(t *testing.T) {
	tests := []struct {
		name      string
		condition string
		metadata  map[string]interface{}
		want      bool
	}{
		{"bool true", "documentValid", map[string]interface{}{"documentValid": true}, true},
		{"string true", "documentValid", map[string]interface{}{"documentValid": "true"}, true},
		{"bool false", "documentValid", map[string]interface{}{"documentValid": false}, false},
		{"string false", "documentValid", map[string]interface{}{"documentValid": "false"}, false},
		{"missing key", "documentValid", map[string]interface{}{}, false},
		{"non-boolean value", "documentValid", map[string]interface{}{"documentValid": 1}, false},
		{"alias documentsValid", "documentValid", map[string]interface{}{"documentsValid": true}, true},
		{"alias documentRenewed", "documentValid", map[string]interface{}{"documentRenewed": "true"}, true},
		{"alias maintenanceDone", "maintenanceCompleted", map[string]interface{}{"maintenanceDone": true}, true},
		{"alias serviceCompleted", "maintenanceCompleted", map[string]interface{}{"serviceCompleted": true}, true},
		{"custom key literal", "inspectionPassed", map[string]interface{}{"inspectionPassed": true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := NewSet(map[string]Rule{"compliance": {EscalateToSeverity: models.SeverityHigh, AutoCloseIf: tt.condition}})
			e := NewEngine(set, 30*time.Minute)
			a := models.NewAlert("c1", "compliance", models.SeverityMedium, tt.metadata)

			act := e.Evaluate(a, []*models.Alert{a})
			got := act != nil && act.Type == ActionAutoClose
			if got != tt.want {
				t.Errorf("auto-close = %v, want %v (action %+v)", got, tt.want, act)
			}
		})
	}
}

func TestEscalationWinsOverAutoClose(t *testing.T) {
	set := NewSet(map[string]Rule{"compliance": {
		EscalateIfDays:     7,
		EscalateToSeverity: models.SeverityHigh,
		AutoCloseIf:        "documentValid",
	}})
	e := NewEngine(set, 30*time.Minute)

	a := models.NewAlert("c1", "compliance", models.SeverityMedium, map[string]interface{}{"documentValid": true})
	a.CreatedAt = time.Now().UTC().AddDate(0, 0, -8)

	act := e.Evaluate(a, []*models.Alert{a})
	if act == nil || act.Type != ActionEscalate {
		t.Fatalf("escalation rules are checked before auto-close, got %+v", act)
	}
}

func TestEvaluateNoRuleOrInactive(t *testing.T) {
	e := testEngine(t, Rule{EscalateIfCount: 1, WindowMinutes: 60, EscalateToSeverity: models.SeverityCritical})

	unknown := models.NewAlert("u1", "unknown-type", models.SeverityLow, nil)
	if act := e.Evaluate(unknown, nil); act != nil {
		t.Errorf("unknown source type should yield no action, got %+v", act)
	}

	resolved := overspeedAlert("r1", "DRV001", "", 0)
	_ = resolved.Resolve("done")
	if act := e.Evaluate(resolved, []*models.Alert{resolved}); act != nil {
		t.Errorf("inactive alert should yield no action, got %+v", act)
	}

	if act := e.Evaluate(nil, nil); act != nil {
		t.Errorf("nil alert should yield no action, got %+v", act)
	}
}
