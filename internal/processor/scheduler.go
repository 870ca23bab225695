package processor

import (
	"context"
	"sync/atomic"
	"time"

	"fleetalert/internal/logger"
	"fleetalert/internal/metrics"
	"fleetalert/internal/store"
)

// Scheduler fires the periodic reconciliation sweep: re-evaluate every
// active alert and expire the ones past retention. Each sweep is
// idempotent; a tick is skipped when the previous sweep is still running.
type Scheduler struct {
	coordinator *Coordinator
	store       store.AlertStore
	interval    time.Duration
	retention   time.Duration

	sweeping atomic.Bool
}

// NewScheduler creates a scheduler with the given sweep interval and
// retention threshold.
func NewScheduler(coordinator *Coordinator, st store.AlertStore, interval time.Duration, retention time.Duration) *Scheduler {
	return &Scheduler{
		coordinator: coordinator,
		store:       st,
		interval:    interval,
		retention:   retention,
	}
}

// Run ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	log := logger.WithComponent("scheduler")
	log.Info().
		Dur("interval", s.interval).
		Dur("retention", s.retention).
		Msg("scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.trySweep(ctx)
		}
	}
}

// trySweep runs one sweep unless the previous one is still in progress.
func (s *Scheduler) trySweep(ctx context.Context) {
	if !s.sweeping.CompareAndSwap(false, true) {
		metrics.SweepsSkippedTotal.Inc()
		log := logger.WithComponent("scheduler")
		log.Warn().Msg("previous sweep still running, skipping tick")
		return
	}
	defer s.sweeping.Store(false)
	s.sweep(ctx)
}

// Sweep runs one full reconciliation pass. Exported for the manual
// process-all trigger; concurrent calls serialize on the same guard the
// ticker uses.
func (s *Scheduler) Sweep(ctx context.Context) {
	s.trySweep(ctx)
}

func (s *Scheduler) sweep(ctx context.Context) {
	log := logger.WithComponent("scheduler")
	start := time.Now()
	metrics.SweepsTotal.Inc()

	alerts, err := s.store.GetAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("sweep: fetching alerts failed")
		return
	}

	evaluated, expired := 0, 0
	// Re-evaluation pass. One alert's failure never aborts the sweep.
	for _, alert := range alerts {
		if !alert.IsActive() {
			continue
		}
		processed, err := s.coordinator.Process(ctx, alert)
		if err != nil {
			log.Error().Err(err).Str("alert_id", alert.ID).Msg("sweep: evaluation failed")
			continue
		}
		if processed {
			evaluated++
		}
	}

	// Expiry pass over a fresh read, so alerts closed above are not
	// considered.
	alerts, err = s.store.GetAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("sweep: fetching alerts for expiry failed")
		return
	}
	for _, alert := range alerts {
		if !alert.IsActive() || alert.Age() < s.retention {
			continue
		}
		if err := alert.Expire(); err != nil {
			log.Error().Err(err).Str("alert_id", alert.ID).Msg("sweep: expire failed")
			continue
		}
		if err := s.store.Save(ctx, alert); err != nil {
			log.Error().Err(err).Str("alert_id", alert.ID).Msg("sweep: persisting expiry failed")
			continue
		}
		metrics.AlertsExpiredTotal.Inc()
		expired++
	}

	duration := time.Since(start)
	metrics.SweepDuration.Observe(duration.Seconds())
	log.Info().
		Int("total", len(alerts)).
		Int("evaluated", evaluated).
		Int("expired", expired).
		Dur("duration", duration).
		Msg("sweep completed")
}
