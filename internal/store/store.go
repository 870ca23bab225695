package store

import (
	"context"
	"errors"

	"fleetalert/internal/models"
)

// ErrNotFound is returned by Get when no alert exists under the id.
var ErrNotFound = errors.New("alert not found")

// AlertStore is the durable (or best-effort) keyed store for alerts plus
// secondary indices by driver and vehicle. Implementations keep indexed
// reads off the full scan path.
type AlertStore interface {
	// Save persists the alert and updates the driver/vehicle indices.
	// Index maintenance is best-effort: an index failure must not fail
	// the save of the primary record.
	Save(ctx context.Context, alert *models.Alert) error

	// Get returns the alert by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*models.Alert, error)

	// GetAll returns every alert in no particular order.
	GetAll(ctx context.Context) ([]*models.Alert, error)

	// Delete removes the alert and its index entries.
	Delete(ctx context.Context, id string) error

	// GetByDriver returns up to limit alerts for the driver, most recent
	// first, read through the driver index.
	GetByDriver(ctx context.Context, driverID string, limit int) ([]*models.Alert, error)

	// GetByVehicle returns up to limit alerts for the vehicle, most
	// recent first, read through the vehicle index.
	GetByVehicle(ctx context.Context, vehicleID string, limit int) ([]*models.Alert, error)
}
