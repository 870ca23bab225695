package processor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"fleetalert/internal/logger"
	"fleetalert/internal/metrics"
	"fleetalert/internal/models"
	"fleetalert/internal/rules"
	"fleetalert/internal/store"
)

// Coordinator runs rule evaluation for alerts while guaranteeing at most
// one concurrent evaluation per alert id within the process. A second call
// for an id already in flight is dropped, not queued; callers treat that
// as "try later".
type Coordinator struct {
	store  store.AlertStore
	engine *rules.Engine

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewCoordinator creates a coordinator over the given store and engine.
func NewCoordinator(st store.AlertStore, engine *rules.Engine) *Coordinator {
	return &Coordinator{
		store:    st,
		engine:   engine,
		inflight: make(map[string]struct{}),
	}
}

// begin marks the id in flight; it reports false when already claimed.
func (c *Coordinator) begin(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[id]; busy {
		return false
	}
	c.inflight[id] = struct{}{}
	return true
}

func (c *Coordinator) end(id string) {
	c.mu.Lock()
	delete(c.inflight, id)
	c.mu.Unlock()
}

// Process evaluates one alert against its rule and applies the resulting
// transition, if any. The returned bool reports whether the evaluation ran
// (false means it was skipped because the id was already in flight).
func (c *Coordinator) Process(ctx context.Context, alert *models.Alert) (processed bool, err error) {
	if alert == nil {
		return false, nil
	}
	if !c.begin(alert.ID) {
		metrics.InflightSkippedTotal.Inc()
		log := logger.WithAlert("coordinator", alert.ID, alert.SourceType)
		log.Debug().Msg("evaluation already in flight, skipping")
		return false, nil
	}
	// Release on every exit path, panics included.
	defer func() {
		if r := recover(); r != nil {
			log := logger.WithAlert("coordinator", alert.ID, alert.SourceType)
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("evaluation panic recovered")
			metrics.EvaluationErrorsTotal.Inc()
			err = fmt.Errorf("evaluation panic: %v", r)
		}
		c.end(alert.ID)
	}()

	return true, c.evaluate(ctx, alert)
}

func (c *Coordinator) evaluate(ctx context.Context, alert *models.Alert) error {
	if !alert.IsActive() {
		return nil
	}
	log := logger.WithAlert("coordinator", alert.ID, alert.SourceType)

	snapshot, err := c.store.GetAll(ctx)
	if err != nil {
		metrics.EvaluationErrorsTotal.Inc()
		return fmt.Errorf("snapshot alerts: %w", err)
	}

	metrics.EvaluationsTotal.Inc()
	action := c.engine.Evaluate(alert, snapshot)
	if action == nil {
		return nil
	}

	switch action.Type {
	case rules.ActionEscalate:
		if err := alert.Escalate(action.Severity, action.Reason, c.engine.Cooldown()); err != nil {
			metrics.EvaluationErrorsTotal.Inc()
			return fmt.Errorf("escalate: %w", err)
		}
		metrics.AlertsEscalatedTotal.WithLabelValues(alert.SourceType).Inc()
		log.Info().
			Str("severity", string(action.Severity)).
			Str("reason", action.Reason).
			Msg("alert escalated")
	case rules.ActionAutoClose:
		if err := alert.AutoClose(action.Reason); err != nil {
			metrics.EvaluationErrorsTotal.Inc()
			return fmt.Errorf("auto-close: %w", err)
		}
		metrics.AlertsAutoClosedTotal.WithLabelValues(alert.SourceType).Inc()
		log.Info().
			Str("reason", action.Reason).
			Msg("alert auto-closed")
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}

	if err := c.store.Save(ctx, alert); err != nil {
		return fmt.Errorf("persist transition: %w", err)
	}
	return nil
}
