package analytics

import (
	"context"
	"time"
)

// memStore is a deterministic in-memory Store for tests.
type memStore struct {
	stations   []Station
	connectors map[string][]Connector
	events     map[string][]StatusEvent
	reports    map[string][]ReportEvent
	metrics    map[string]ReliabilityMetric
	anomalies  map[string]*Anomaly
	scores     map[string]float64

	metricUpserts int
	statusErr     map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		connectors: map[string][]Connector{},
		events:     map[string][]StatusEvent{},
		reports:    map[string][]ReportEvent{},
		metrics:    map[string]ReliabilityMetric{},
		anomalies:  map[string]*Anomaly{},
		scores:     map[string]float64{},
		statusErr:  map[string]error{},
	}
}

func (m *memStore) addStation(id string, connectors ...Connector) {
	m.stations = append(m.stations, Station{ID: id, Name: id})
	m.connectors[id] = connectors
}

func (m *memStore) addEvents(stationID string, events ...StatusEvent) {
	m.events[stationID] = append(m.events[stationID], events...)
}

func (m *memStore) addReports(stationID string, reports ...ReportEvent) {
	m.reports[stationID] = append(m.reports[stationID], reports...)
}

func (m *memStore) ListStations(ctx context.Context) ([]Station, error) {
	return m.stations, nil
}

func (m *memStore) ListConnectors(ctx context.Context, stationID string) ([]Connector, error) {
	return m.connectors[stationID], nil
}

func (m *memStore) UpdateStationScore(ctx context.Context, stationID string, score float64, at time.Time) error {
	m.scores[stationID] = score
	return nil
}

func (m *memStore) StatusHistory(ctx context.Context, stationID string, from, to time.Time) ([]StatusEvent, error) {
	if err := m.statusErr[stationID]; err != nil {
		return nil, err
	}
	results := []StatusEvent{}
	for _, e := range m.events[stationID] {
		if !e.RecordedAt.Before(from) && !e.RecordedAt.After(to) {
			results = append(results, e)
		}
	}
	return results, nil
}

func (m *memStore) ReportHistory(ctx context.Context, stationID string, from, to time.Time) ([]ReportEvent, error) {
	results := []ReportEvent{}
	for _, r := range m.reports[stationID] {
		if !r.CreatedAt.Before(from) && !r.CreatedAt.After(to) {
			results = append(results, r)
		}
	}
	return results, nil
}

func (m *memStore) CountReports(ctx context.Context, stationID string) (int, error) {
	return len(m.reports[stationID]), nil
}

func (m *memStore) UpsertReliabilityMetric(ctx context.Context, metric ReliabilityMetric) error {
	if existing, ok := m.metrics[metric.StationID]; ok {
		metric.CreatedAt = existing.CreatedAt
	} else {
		metric.CreatedAt = metric.UpdatedAt
	}
	m.metrics[metric.StationID] = metric
	m.metricUpserts++
	return nil
}

func (m *memStore) UnresolvedAnomalies(ctx context.Context, stationID string) ([]Anomaly, error) {
	results := []Anomaly{}
	for _, a := range m.anomalies {
		if a.StationID == stationID && !a.Resolved {
			results = append(results, *a)
		}
	}
	return results, nil
}

func (m *memStore) AllUnresolved(ctx context.Context) ([]Anomaly, error) {
	results := []Anomaly{}
	for _, a := range m.anomalies {
		if !a.Resolved {
			results = append(results, *a)
		}
	}
	return results, nil
}

func (m *memStore) SaveAnomaly(ctx context.Context, anomaly *Anomaly) error {
	saved := *anomaly
	m.anomalies[anomaly.ID] = &saved
	return nil
}

func (m *memStore) openAnomalies(stationID string) []Anomaly {
	results, _ := m.UnresolvedAnomalies(context.Background(), stationID)
	return results
}
