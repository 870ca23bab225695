package store

import (
	"context"

	"fleetalert/internal/logger"
	"fleetalert/internal/metrics"
	"fleetalert/internal/models"
)

// Failover composes a primary store with an in-process fallback. The
// backend is selected per call: a primary failure degrades that call to
// the fallback without surfacing an error, and the next call probes the
// primary again, so a change in availability is reflected immediately.
type Failover struct {
	primary  AlertStore
	fallback AlertStore
}

// NewFailover builds the decorator over primary and fallback stores.
func NewFailover(primary, fallback AlertStore) *Failover {
	return &Failover{primary: primary, fallback: fallback}
}

// degrade records a primary failure and switches the call to the fallback.
func (f *Failover) degrade(op string, err error) AlertStore {
	metrics.StoreFallbackTotal.WithLabelValues(op).Inc()
	log := logger.WithComponent("store.failover")
	log.Warn().
		Err(err).
		Str("op", op).
		Msg("primary store unavailable, using fallback")
	return f.fallback
}

func (f *Failover) Save(ctx context.Context, alert *models.Alert) error {
	if err := f.primary.Save(ctx, alert); err != nil {
		return f.degrade("save", err).Save(ctx, alert)
	}
	return nil
}

func (f *Failover) Get(ctx context.Context, id string) (*models.Alert, error) {
	alert, err := f.primary.Get(ctx, id)
	if err == nil || err == ErrNotFound {
		if err == ErrNotFound {
			// The record may live only in the fallback after an outage.
			if a, ferr := f.fallback.Get(ctx, id); ferr == nil {
				return a, nil
			}
		}
		return alert, err
	}
	return f.degrade("get", err).Get(ctx, id)
}

func (f *Failover) GetAll(ctx context.Context) ([]*models.Alert, error) {
	primary, err := f.primary.GetAll(ctx)
	if err != nil {
		return f.degrade("get_all", err).GetAll(ctx)
	}
	// Merge in fallback-only records written while the primary was away.
	fallback, ferr := f.fallback.GetAll(ctx)
	if ferr != nil || len(fallback) == 0 {
		return primary, nil
	}
	seen := make(map[string]struct{}, len(primary))
	for _, a := range primary {
		seen[a.ID] = struct{}{}
	}
	for _, a := range fallback {
		if _, ok := seen[a.ID]; !ok {
			primary = append(primary, a)
		}
	}
	return primary, nil
}

func (f *Failover) Delete(ctx context.Context, id string) error {
	if err := f.primary.Delete(ctx, id); err != nil {
		return f.degrade("delete", err).Delete(ctx, id)
	}
	// Remove any fallback copy as well so GetAll does not resurrect it.
	return f.fallback.Delete(ctx, id)
}

func (f *Failover) GetByDriver(ctx context.Context, driverID string, limit int) ([]*models.Alert, error) {
	alerts, err := f.primary.GetByDriver(ctx, driverID, limit)
	if err != nil {
		return f.degrade("get_by_driver", err).GetByDriver(ctx, driverID, limit)
	}
	return alerts, nil
}

func (f *Failover) GetByVehicle(ctx context.Context, vehicleID string, limit int) ([]*models.Alert, error) {
	alerts, err := f.primary.GetByVehicle(ctx, vehicleID, limit)
	if err != nil {
		return f.degrade("get_by_vehicle", err).GetByVehicle(ctx, vehicleID, limit)
	}
	return alerts, nil
}
