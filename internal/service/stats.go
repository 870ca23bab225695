package service

import (
	"context"
	"sort"
	"time"

	"fleetalert/internal/models"
)

// Overview aggregates alert counts for the dashboard.
type Overview struct {
	Total          int            `json:"total"`
	Active         int            `json:"active"`
	BySeverity     map[string]int `json:"by_severity"`
	ByStatus       map[string]int `json:"by_status"`
	BySourceType   map[string]int `json:"by_source_type"`
	EscalationRate float64        `json:"escalation_rate"`
}

// Overview returns severity and source-type counts among active alerts
// and the escalation rate (escalated / active). ByStatus covers every
// alert: a status breakdown restricted to active alerts would always
// read OPEN and ESCALATED only, hiding the terminal states the
// dashboard needs.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	alerts, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	ov := &Overview{
		Total:        len(alerts),
		BySeverity:   make(map[string]int),
		ByStatus:     make(map[string]int),
		BySourceType: make(map[string]int),
	}
	escalated := 0
	for _, a := range alerts {
		ov.ByStatus[string(a.Status)]++
		if !a.IsActive() {
			continue
		}
		ov.Active++
		ov.BySeverity[string(a.Severity)]++
		ov.BySourceType[a.SourceType]++
		if a.Status == models.StatusEscalated {
			escalated++
		}
	}
	if ov.Active > 0 {
		ov.EscalationRate = float64(escalated) / float64(ov.Active)
	}
	return ov, nil
}

// DriverCount pairs a driver with their active alert count.
type DriverCount struct {
	DriverID string `json:"driver_id"`
	Count    int    `json:"count"`
}

// TopDrivers returns the n drivers with the most active alerts.
func (s *Service) TopDrivers(ctx context.Context, n int) ([]DriverCount, error) {
	alerts, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, a := range alerts {
		if !a.IsActive() {
			continue
		}
		if d := a.DriverID(); d != "" {
			counts[d]++
		}
	}
	out := make([]DriverCount, 0, len(counts))
	for d, c := range counts {
		out = append(out, DriverCount{DriverID: d, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].DriverID < out[j].DriverID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// RecentAutoClosed returns the n most recently auto-closed alerts.
func (s *Service) RecentAutoClosed(ctx context.Context, n int) ([]*models.Alert, error) {
	alerts, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	closed := alerts[:0]
	for _, a := range alerts {
		if a.Status == models.StatusAutoClosed && a.ClosedAt != nil {
			closed = append(closed, a)
		}
	}
	sort.Slice(closed, func(i, j int) bool {
		return closed[i].ClosedAt.After(*closed[j].ClosedAt)
	})
	if n > 0 && len(closed) > n {
		closed = closed[:n]
	}
	return closed, nil
}

// TrendBucket is one day of alert activity.
type TrendBucket struct {
	Date       string `json:"date"` // YYYY-MM-DD
	Created    int    `json:"created"`
	Escalated  int    `json:"escalated"`
	AutoClosed int    `json:"auto_closed"`
}

// Trend returns per-day counts of created, escalated, and auto-closed
// alerts over the trailing days, oldest bucket first. Escalations are
// counted from history so repeated escalations of one alert all register.
func (s *Service) Trend(ctx context.Context, days int) ([]TrendBucket, error) {
	if days <= 0 {
		days = 7
	}
	alerts, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	start := now.AddDate(0, 0, -(days - 1)).Truncate(24 * time.Hour)
	buckets := make([]TrendBucket, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i).Format("2006-01-02")
		buckets[i] = TrendBucket{Date: date}
		index[date] = i
	}

	bump := func(ts time.Time, f func(*TrendBucket)) {
		if i, ok := index[ts.UTC().Format("2006-01-02")]; ok {
			f(&buckets[i])
		}
	}
	for _, a := range alerts {
		bump(a.CreatedAt, func(b *TrendBucket) { b.Created++ })
		for _, ev := range a.History {
			switch ev.Action {
			case models.ActionEscalated:
				bump(ev.Timestamp, func(b *TrendBucket) { b.Escalated++ })
			case models.ActionAutoClosed:
				bump(ev.Timestamp, func(b *TrendBucket) { b.AutoClosed++ })
			}
		}
	}
	return buckets, nil
}
