package models

import (
	"errors"
	"fmt"
	"time"
)

// Severity represents alert severity levels
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// DefaultSeverity is applied when the caller does not supply one.
const DefaultSeverity = SeverityMedium

// Status represents the lifecycle state of an alert
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusEscalated  Status = "ESCALATED"
	StatusAutoClosed Status = "AUTO_CLOSED"
	StatusResolved   Status = "RESOLVED"
	StatusExpired    Status = "EXPIRED"
)

// History event actions
const (
	ActionCreated    = "created"
	ActionEscalated  = "escalated"
	ActionAutoClosed = "auto_closed"
	ActionResolved   = "resolved"
	ActionExpired    = "expired"
)

// Validation and transition errors
var (
	ErrEmptySourceType = errors.New("source type cannot be empty")
	ErrInvalidSeverity = errors.New("invalid severity level")
	ErrTooManyMetadata = errors.New("too many metadata keys")
	ErrNotActive       = errors.New("alert is not active")
	ErrCooldownActive  = errors.New("escalation cooldown has not elapsed")
)

// MaxMetadataKeys caps the metadata mapping supplied by alert sources.
const MaxMetadataKeys = 50

// HistoryEvent is one entry in an alert's append-only history.
type HistoryEvent struct {
	Action           string    `json:"action"`
	Timestamp        time.Time `json:"timestamp"`
	Details          string    `json:"details,omitempty"`
	PreviousStatus   Status    `json:"previous_status,omitempty"`
	PreviousSeverity Severity  `json:"previous_severity,omitempty"`
}

// Alert represents a single reported incident from a vehicle or driver.
// Its status moves only along the edges implemented by the transition
// methods below; every transition appends exactly one history event.
type Alert struct {
	// Unique identifier assigned at creation
	ID string `json:"id"`

	// Category of the originating condition (e.g. "overspeed", "compliance");
	// selects which rule applies
	SourceType string `json:"source_type"`

	// Current severity; mutated only by escalation
	Severity Severity `json:"severity"`

	// Lifecycle status
	Status Status `json:"status"`

	// Open mapping supplied by the alert source (driver id, vehicle id,
	// condition flags); never mutated by the core
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Append-only transition history
	History []HistoryEvent `json:"history"`

	// Number of times this alert has been escalated
	EscalationCount int `json:"escalation_count"`

	LastEscalatedAt *time.Time `json:"last_escalated_at,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	ExpiredAt       *time.Time `json:"expired_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewAlert constructs an OPEN alert with a created history event.
func NewAlert(id, sourceType string, severity Severity, metadata map[string]interface{}) *Alert {
	now := time.Now().UTC()
	return &Alert{
		ID:         id,
		SourceType: sourceType,
		Severity:   severity,
		Status:     StatusOpen,
		Metadata:   metadata,
		History: []HistoryEvent{{
			Action:    ActionCreated,
			Timestamp: now,
			Details:   fmt.Sprintf("alert created with severity %s", severity),
		}},
		CreatedAt: now,
	}
}

// Validate checks the fields an external caller controls.
func (a *Alert) Validate() error {
	if a.SourceType == "" {
		return ErrEmptySourceType
	}
	if !a.Severity.IsValid() {
		return ErrInvalidSeverity
	}
	if len(a.Metadata) > MaxMetadataKeys {
		return ErrTooManyMetadata
	}
	return nil
}

// IsValid checks if the severity level is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// IsValid checks if the status is one of the known lifecycle states
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusEscalated, StatusAutoClosed, StatusResolved, StatusExpired:
		return true
	default:
		return false
	}
}

// IsActive reports whether the alert is still subject to automatic
// processing (rule evaluation and expiry).
func (a *Alert) IsActive() bool {
	return a.Status == StatusOpen || a.Status == StatusEscalated
}

// CanEscalate reports whether the escalation cooldown gate passes: a
// previous escalation inside the cooldown window blocks a new one.
func (a *Alert) CanEscalate(cooldown time.Duration) bool {
	if !a.IsActive() {
		return false
	}
	if a.LastEscalatedAt == nil {
		return true
	}
	return time.Since(*a.LastEscalatedAt) >= cooldown
}

// Escalate raises the alert to newSeverity and marks it ESCALATED. The
// caller is expected to have checked CanEscalate; a cooldown violation is
// still rejected here so the invariant holds on every path.
func (a *Alert) Escalate(newSeverity Severity, reason string, cooldown time.Duration) error {
	if !a.IsActive() {
		return ErrNotActive
	}
	if !a.CanEscalate(cooldown) {
		return ErrCooldownActive
	}
	now := time.Now().UTC()
	a.History = append(a.History, HistoryEvent{
		Action:           ActionEscalated,
		Timestamp:        now,
		Details:          reason,
		PreviousStatus:   a.Status,
		PreviousSeverity: a.Severity,
	})
	a.Status = StatusEscalated
	a.Severity = newSeverity
	a.EscalationCount++
	a.LastEscalatedAt = &now
	return nil
}

// AutoClose terminally closes the alert because a configured external
// condition is satisfied. Irreversible.
func (a *Alert) AutoClose(reason string) error {
	if !a.IsActive() {
		return ErrNotActive
	}
	now := time.Now().UTC()
	a.History = append(a.History, HistoryEvent{
		Action:         ActionAutoClosed,
		Timestamp:      now,
		Details:        reason,
		PreviousStatus: a.Status,
	})
	a.Status = StatusAutoClosed
	a.ClosedAt = &now
	return nil
}

// Resolve manually closes the alert. Allowed from any active state,
// regardless of escalation. Irreversible.
func (a *Alert) Resolve(resolution string) error {
	if !a.IsActive() {
		return ErrNotActive
	}
	now := time.Now().UTC()
	a.History = append(a.History, HistoryEvent{
		Action:         ActionResolved,
		Timestamp:      now,
		Details:        resolution,
		PreviousStatus: a.Status,
	})
	a.Status = StatusResolved
	a.ResolvedAt = &now
	return nil
}

// Expire terminally ages the alert out. Only the reconciliation scheduler
// calls this, for active alerts past the retention threshold.
func (a *Alert) Expire() error {
	if !a.IsActive() {
		return ErrNotActive
	}
	now := time.Now().UTC()
	a.History = append(a.History, HistoryEvent{
		Action:         ActionExpired,
		Timestamp:      now,
		Details:        fmt.Sprintf("alert expired after retention period (created %s)", a.CreatedAt.Format(time.RFC3339)),
		PreviousStatus: a.Status,
	})
	a.Status = StatusExpired
	a.ExpiredAt = &now
	return nil
}

// Age returns how long ago the alert was created.
func (a *Alert) Age() time.Duration {
	return time.Since(a.CreatedAt)
}

// DriverID returns the driver identifier from metadata, if present.
func (a *Alert) DriverID() string {
	return a.metaString("driverId")
}

// VehicleID returns the vehicle identifier from metadata, if present.
func (a *Alert) VehicleID() string {
	return a.metaString("vehicleId")
}

func (a *Alert) metaString(key string) string {
	if a.Metadata == nil {
		return ""
	}
	if v, ok := a.Metadata[key].(string); ok {
		return v
	}
	return ""
}
