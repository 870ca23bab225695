package rules

import (
	"fmt"
	"time"

	"fleetalert/internal/models"
)

// ActionType discriminates the possible outcomes of an evaluation.
type ActionType string

const (
	ActionEscalate  ActionType = "escalate"
	ActionAutoClose ActionType = "auto_close"
)

// Action is the tagged result of evaluating one alert against its rule.
type Action struct {
	Type     ActionType
	Severity models.Severity // escalation target; unset for auto-close
	Reason   string
}

// conditionAliases maps an auto-close condition key to the metadata keys
// that satisfy it. Document validity, document renewal, and maintenance
// completion are recognized by name as equivalent boolean triggers even
// when the source expressed them through differently-named fields.
var conditionAliases = map[string][]string{
	"documentValid":        {"documentValid", "documentsValid", "documentRenewed"},
	"documentsValid":       {"documentsValid", "documentValid", "documentRenewed"},
	"documentRenewed":      {"documentRenewed", "documentValid", "documentsValid"},
	"maintenanceCompleted": {"maintenanceCompleted", "maintenanceDone", "serviceCompleted"},
	"maintenanceDone":      {"maintenanceDone", "maintenanceCompleted", "serviceCompleted"},
}

// Engine is the stateless rule evaluator. It reads the rule set and a
// snapshot of all alerts; it never mutates either.
type Engine struct {
	rules    *Set
	cooldown time.Duration

	// now is swapped in tests
	now func() time.Time
}

// NewEngine creates an evaluator bound to a rule set with the given
// escalation cooldown.
func NewEngine(rules *Set, cooldown time.Duration) *Engine {
	return &Engine{
		rules:    rules,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Cooldown returns the escalation cooldown the engine gates with.
func (e *Engine) Cooldown() time.Duration {
	return e.cooldown
}

// canEscalate is the per-alert cooldown gate, measured against the
// engine's clock so evaluation stays deterministic under a fixed now.
func (e *Engine) canEscalate(a *models.Alert) bool {
	if !a.IsActive() {
		return false
	}
	if a.LastEscalatedAt == nil {
		return true
	}
	return e.now().Sub(*a.LastEscalatedAt) >= e.cooldown
}

// Evaluate returns the action the alert's rule calls for, or nil. Order is
// fixed: count-in-window escalation, then age escalation, then auto-close;
// the first match wins, so an alert is never escalated and auto-closed in
// the same pass.
func (e *Engine) Evaluate(alert *models.Alert, snapshot []*models.Alert) *Action {
	if alert == nil || !alert.IsActive() {
		return nil
	}
	rule, ok := e.rules.Get(alert.SourceType)
	if !ok {
		return nil
	}

	if act := e.evaluateCountWindow(alert, rule, snapshot); act != nil {
		return act
	}
	if act := e.evaluateAge(alert, rule); act != nil {
		return act
	}
	return e.evaluateAutoClose(alert, rule)
}

// evaluateCountWindow applies the count-in-window escalation rule: count
// active alerts of the same source type inside the trailing window that
// share a driver or a vehicle with the subject.
func (e *Engine) evaluateCountWindow(alert *models.Alert, rule Rule, snapshot []*models.Alert) *Action {
	if rule.EscalateIfCount <= 0 || rule.WindowMinutes <= 0 {
		return nil
	}
	driver := alert.DriverID()
	vehicle := alert.VehicleID()
	if driver == "" && vehicle == "" {
		return nil
	}

	window := time.Duration(rule.WindowMinutes) * time.Minute
	cutoff := e.now().Add(-window)

	count := 0
	var lastEscalated time.Time
	for _, other := range snapshot {
		if other.SourceType != alert.SourceType || !other.IsActive() {
			continue
		}
		if other.CreatedAt.Before(cutoff) {
			continue
		}
		// Same driver OR same vehicle; an alert matching on driver alone
		// still counts.
		if (driver != "" && other.DriverID() == driver) ||
			(vehicle != "" && other.VehicleID() == vehicle) {
			count++
			if other.LastEscalatedAt != nil && other.LastEscalatedAt.After(lastEscalated) {
				lastEscalated = *other.LastEscalatedAt
			}
		}
	}
	if count < rule.EscalateIfCount {
		return nil
	}
	// The count condition holds but a recent escalation blocks a new one:
	// skipped silently, not an error. The gate covers the whole matched
	// group, so a fresh alert cannot restart an escalation storm while a
	// sibling's escalation is still cooling down.
	if !e.canEscalate(alert) {
		return nil
	}
	if !lastEscalated.IsZero() && e.now().Sub(lastEscalated) < e.cooldown {
		return nil
	}
	return &Action{
		Type:     ActionEscalate,
		Severity: rule.EscalateToSeverity,
		Reason:   fmt.Sprintf("%d %s alerts within %d minutes", count, alert.SourceType, rule.WindowMinutes),
	}
}

// evaluateAge applies the age-based escalation rule to alerts that are
// still OPEN (not already escalated).
func (e *Engine) evaluateAge(alert *models.Alert, rule Rule) *Action {
	if rule.EscalateIfDays <= 0 || alert.Status != models.StatusOpen {
		return nil
	}
	ageDays := int(e.now().Sub(alert.CreatedAt).Hours() / 24)
	if ageDays < rule.EscalateIfDays {
		return nil
	}
	if !e.canEscalate(alert) {
		return nil
	}
	return &Action{
		Type:     ActionEscalate,
		Severity: rule.EscalateToSeverity,
		Reason:   fmt.Sprintf("alert open for %d days (threshold %d)", ageDays, rule.EscalateIfDays),
	}
}

func (e *Engine) evaluateAutoClose(alert *models.Alert, rule Rule) *Action {
	if rule.AutoCloseIf == "" {
		return nil
	}
	keys := []string{rule.AutoCloseIf}
	if aliases, ok := conditionAliases[rule.AutoCloseIf]; ok {
		keys = aliases
	}
	for _, key := range keys {
		if metadataTrue(alert.Metadata, key) {
			return &Action{
				Type:   ActionAutoClose,
				Reason: fmt.Sprintf("condition %q satisfied", key),
			}
		}
	}
	return nil
}

// metadataTrue accepts both a literal boolean and the string "true".
func metadataTrue(metadata map[string]interface{}, key string) bool {
	if metadata == nil {
		return false
	}
	switch v := metadata[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}
