package store

import (
	"context"
	"encoding/json"
	"sync"

	"fleetalert/internal/models"
)

// Memory is the in-process fallback store. It keeps one record per alert
// plus most-recent-first id lists per driver and per vehicle, mirroring
// the record shape of the primary backend.
type Memory struct {
	mu        sync.RWMutex
	alerts    map[string][]byte
	byDriver  map[string][]string
	byVehicle map[string][]string
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		alerts:    make(map[string][]byte),
		byDriver:  make(map[string][]string),
		byVehicle: make(map[string][]string),
	}
}

func (m *Memory) Save(ctx context.Context, alert *models.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[alert.ID] = data
	if d := alert.DriverID(); d != "" {
		m.byDriver[d] = promote(m.byDriver[d], alert.ID)
	}
	if v := alert.VehicleID(); v != "" {
		m.byVehicle[v] = promote(m.byVehicle[v], alert.ID)
	}
	return nil
}

// promote moves id to the front of the list, inserting it if absent.
func promote(ids []string, id string) []string {
	out := make([]string, 0, len(ids)+1)
	out = append(out, id)
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

func (m *Memory) Get(ctx context.Context, id string) (*models.Alert, error) {
	m.mu.RLock()
	data, ok := m.alerts[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(data)
}

func (m *Memory) GetAll(ctx context.Context) ([]*models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Alert, 0, len(m.alerts))
	for _, data := range m.alerts {
		alert, err := decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, alert)
	}
	return out, nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.alerts[id]
	if !ok {
		return nil
	}
	delete(m.alerts, id)
	if alert, err := decode(data); err == nil {
		if d := alert.DriverID(); d != "" {
			m.byDriver[d] = remove(m.byDriver[d], id)
		}
		if v := alert.VehicleID(); v != "" {
			m.byVehicle[v] = remove(m.byVehicle[v], id)
		}
	}
	return nil
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

func (m *Memory) GetByDriver(ctx context.Context, driverID string, limit int) ([]*models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byIndex(m.byDriver[driverID], limit)
}

func (m *Memory) GetByVehicle(ctx context.Context, vehicleID string, limit int) ([]*models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byIndex(m.byVehicle[vehicleID], limit)
}

func (m *Memory) byIndex(ids []string, limit int) ([]*models.Alert, error) {
	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}
	out := make([]*models.Alert, 0, limit)
	for _, id := range ids[:limit] {
		data, ok := m.alerts[id]
		if !ok {
			continue
		}
		alert, err := decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, alert)
	}
	return out, nil
}

func decode(data []byte) (*models.Alert, error) {
	var alert models.Alert
	if err := json.Unmarshal(data, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}
