package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"fleetalert/internal/logger"
	"fleetalert/internal/metrics"
	"fleetalert/internal/models"
)

// Redis key layout: one record per alert under alertKey, an id registry
// set, and most-recent-first id lists per driver and per vehicle.
const (
	alertKeyPrefix   = "alert:"
	alertIDsKey      = "alerts:ids"
	driverKeyPrefix  = "alerts:driver:"
	vehicleKeyPrefix = "alerts:vehicle:"
)

// Redis is the primary, network-accessible alert store.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing go-redis client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Available reports whether the backend currently answers a ping.
func (r *Redis) Available(ctx context.Context) bool {
	return r.client.Ping(ctx).Err() == nil
}

func (r *Redis) Save(ctx context.Context, alert *models.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := r.client.Set(ctx, alertKeyPrefix+alert.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("save alert %s: %w", alert.ID, err)
	}
	if err := r.client.SAdd(ctx, alertIDsKey, alert.ID).Err(); err != nil {
		return fmt.Errorf("register alert %s: %w", alert.ID, err)
	}

	// Secondary indices are best-effort; a failure here must not fail
	// the save of the primary record.
	log := logger.WithComponent("store.redis")
	if d := alert.DriverID(); d != "" {
		if err := r.pushIndex(ctx, driverKeyPrefix+d, alert.ID); err != nil {
			metrics.StoreIndexErrors.Inc()
			log.Warn().Err(err).Str("alert_id", alert.ID).Str("driver_id", d).Msg("driver index update failed")
		}
	}
	if v := alert.VehicleID(); v != "" {
		if err := r.pushIndex(ctx, vehicleKeyPrefix+v, alert.ID); err != nil {
			metrics.StoreIndexErrors.Inc()
			log.Warn().Err(err).Str("alert_id", alert.ID).Str("vehicle_id", v).Msg("vehicle index update failed")
		}
	}
	return nil
}

// pushIndex moves id to the head of the index list.
func (r *Redis) pushIndex(ctx context.Context, key, id string) error {
	if err := r.client.LRem(ctx, key, 0, id).Err(); err != nil {
		return err
	}
	return r.client.LPush(ctx, key, id).Err()
}

func (r *Redis) Get(ctx context.Context, id string) (*models.Alert, error) {
	data, err := r.client.Get(ctx, alertKeyPrefix+id).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get alert %s: %w", id, err)
	}
	return decode([]byte(data))
}

func (r *Redis) GetAll(ctx context.Context) ([]*models.Alert, error) {
	ids, err := r.client.SMembers(ctx, alertIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list alert ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = alertKeyPrefix + id
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch alerts: %w", err)
	}
	out := make([]*models.Alert, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			// Registry entry without a record; skip.
			continue
		}
		alert, err := decode([]byte(s))
		if err != nil {
			return nil, err
		}
		out = append(out, alert)
	}
	return out, nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	alert, err := r.Get(ctx, id)
	if err != nil {
		if err == ErrNotFound {
			return nil
		}
		return err
	}
	if err := r.client.Del(ctx, alertKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete alert %s: %w", id, err)
	}
	if err := r.client.SRem(ctx, alertIDsKey, id).Err(); err != nil {
		return fmt.Errorf("unregister alert %s: %w", id, err)
	}
	if d := alert.DriverID(); d != "" {
		r.client.LRem(ctx, driverKeyPrefix+d, 0, id)
	}
	if v := alert.VehicleID(); v != "" {
		r.client.LRem(ctx, vehicleKeyPrefix+v, 0, id)
	}
	return nil
}

func (r *Redis) GetByDriver(ctx context.Context, driverID string, limit int) ([]*models.Alert, error) {
	return r.byIndex(ctx, driverKeyPrefix+driverID, limit)
}

func (r *Redis) GetByVehicle(ctx context.Context, vehicleID string, limit int) ([]*models.Alert, error) {
	return r.byIndex(ctx, vehicleKeyPrefix+vehicleID, limit)
}

func (r *Redis) byIndex(ctx context.Context, key string, limit int) ([]*models.Alert, error) {
	end := int64(-1)
	if limit > 0 {
		end = int64(limit) - 1
	}
	ids, err := r.client.LRange(ctx, key, 0, end).Result()
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", key, err)
	}
	out := make([]*models.Alert, 0, len(ids))
	for _, id := range ids {
		alert, err := r.Get(ctx, id)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, alert)
	}
	return out, nil
}
