package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"fleetalert/internal/logger"
	"fleetalert/internal/metrics"
	"fleetalert/internal/models"
	"fleetalert/internal/processor"
	"fleetalert/internal/rules"
	"fleetalert/internal/store"
)

// ErrAlertNotFound is returned when an alert id does not exist.
var ErrAlertNotFound = errors.New("alert not found")

// Service is the boundary exposed to the transport layer: alert creation,
// querying, manual resolution, rule management, and the manual sweep
// trigger.
type Service struct {
	store       store.AlertStore
	rules       *rules.Set
	coordinator *processor.Coordinator
	scheduler   *processor.Scheduler
}

// New wires the boundary service.
func New(st store.AlertStore, ruleSet *rules.Set, coordinator *processor.Coordinator, scheduler *processor.Scheduler) *Service {
	return &Service{
		store:       st,
		rules:       ruleSet,
		coordinator: coordinator,
		scheduler:   scheduler,
	}
}

// CreateAlert constructs and persists an alert, then immediately evaluates
// it. The returned alert reflects any transition the evaluation applied.
func (s *Service) CreateAlert(ctx context.Context, sourceType string, severity models.Severity, metadata map[string]interface{}) (*models.Alert, error) {
	if severity == "" {
		severity = models.DefaultSeverity
	}
	alert := models.NewAlert(uuid.New().String(), sourceType, severity, metadata)
	if err := alert.Validate(); err != nil {
		metrics.ValidationErrorsTotal.WithLabelValues(err.Error()).Inc()
		return nil, err
	}
	if err := s.store.Save(ctx, alert); err != nil {
		return nil, fmt.Errorf("persist alert: %w", err)
	}
	metrics.AlertsCreatedTotal.WithLabelValues(sourceType).Inc()
	log := logger.WithAlert("service", alert.ID, sourceType)
	log.Info().
		Str("severity", string(severity)).
		Msg("alert created")

	// Evaluation failures do not fail creation; the next sweep retries.
	if _, err := s.coordinator.Process(ctx, alert); err != nil {
		log.Warn().Err(err).Msg("initial evaluation failed")
	}
	return alert, nil
}

// Filters narrows the result of GetAlerts; zero values match everything.
type Filters struct {
	SourceType string
	Severity   models.Severity
	Status     models.Status
	DriverID   string
}

func (f Filters) matches(a *models.Alert) bool {
	if f.SourceType != "" && a.SourceType != f.SourceType {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.DriverID != "" && a.DriverID() != f.DriverID {
		return false
	}
	return true
}

// GetAlerts returns matching alerts sorted newest first.
func (s *Service) GetAlerts(ctx context.Context, f Filters) ([]*models.Alert, error) {
	alerts, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := alerts[:0]
	for _, a := range alerts {
		if f.matches(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// GetAlertByID returns one alert, or ErrAlertNotFound.
func (s *Service) GetAlertByID(ctx context.Context, id string) (*models.Alert, error) {
	alert, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	return alert, nil
}

// GetAlertsByDriver reads through the driver index, most recent first.
func (s *Service) GetAlertsByDriver(ctx context.Context, driverID string, limit int) ([]*models.Alert, error) {
	return s.store.GetByDriver(ctx, driverID, limit)
}

// GetAlertsByVehicle reads through the vehicle index, most recent first.
func (s *Service) GetAlertsByVehicle(ctx context.Context, vehicleID string, limit int) ([]*models.Alert, error) {
	return s.store.GetByVehicle(ctx, vehicleID, limit)
}

// ResolveAlert manually resolves an alert regardless of escalation state.
func (s *Service) ResolveAlert(ctx context.Context, id, resolution string) (*models.Alert, error) {
	alert, err := s.GetAlertByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := alert.Resolve(resolution); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, alert); err != nil {
		return nil, fmt.Errorf("persist resolution: %w", err)
	}
	metrics.AlertsResolvedTotal.WithLabelValues(alert.SourceType).Inc()
	log := logger.WithAlert("service", alert.ID, alert.SourceType)
	log.Info().Msg("alert resolved")
	return alert, nil
}

// ProcessAllAlerts triggers one reconciliation sweep, equivalent to a
// scheduler tick.
func (s *Service) ProcessAllAlerts(ctx context.Context) {
	s.scheduler.Sweep(ctx)
}

// Rules returns a snapshot of the current rule configuration.
func (s *Service) Rules() map[string]rules.Rule {
	return s.rules.Snapshot()
}

// UpdateRules merges the partial rule mapping into the configuration. A
// malformed update is rejected and the prior configuration retained.
func (s *Service) UpdateRules(partial map[string]rules.Rule) error {
	if err := s.rules.Update(partial); err != nil {
		return err
	}
	log := logger.WithComponent("service")
	log.Info().
		Int("rules", len(partial)).
		Msg("rule configuration updated")
	return nil
}
