package analytics

import (
	"context"
	"time"
)

// StationStore exposes the station inventory and the live connector view kept
// by ingestion.
type StationStore interface {
	ListStations(ctx context.Context) ([]Station, error)
	ListConnectors(ctx context.Context, stationID string) ([]Connector, error)
	UpdateStationScore(ctx context.Context, stationID string, score float64, at time.Time) error
}

// HistoryStore answers time-windowed queries over recorded status transitions
// and user reports. StatusHistory returns events ordered ascending by
// RecordedAt.
type HistoryStore interface {
	StatusHistory(ctx context.Context, stationID string, from, to time.Time) ([]StatusEvent, error)
	ReportHistory(ctx context.Context, stationID string, from, to time.Time) ([]ReportEvent, error)
	CountReports(ctx context.Context, stationID string) (int, error)
}

// MetricStore upserts the one-row-per-station reliability metric.
type MetricStore interface {
	UpsertReliabilityMetric(ctx context.Context, metric ReliabilityMetric) error
}

// AnomalyStore persists anomalies and serves the unresolved set detectors
// dedup against. SaveAnomaly inserts new records and updates existing ones by
// ID; a conflict on the (station, type, sub_key) unresolved key resolves to an
// update of the existing row.
type AnomalyStore interface {
	UnresolvedAnomalies(ctx context.Context, stationID string) ([]Anomaly, error)
	AllUnresolved(ctx context.Context) ([]Anomaly, error)
	SaveAnomaly(ctx context.Context, anomaly *Anomaly) error
}

// Store is the full collaborator surface the analytics core runs against.
type Store interface {
	StationStore
	HistoryStore
	MetricStore
	AnomalyStore
}
