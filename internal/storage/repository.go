package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"chargewatch-backend/internal/analytics"
)

// Repository implements the analytics store interfaces on Postgres.
type Repository struct {
	Store *Store
}

func NewRepository(store *Store) *Repository {
	return &Repository{Store: store}
}

func (r *Repository) ListStations(ctx context.Context) ([]analytics.Station, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, name, reliability_score, last_status_update
		FROM stations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []analytics.Station{}
	for rows.Next() {
		var s analytics.Station
		if err := rows.Scan(&s.ID, &s.Name, &s.ReliabilityScore, &s.LastStatusUpdate); err != nil {
			return nil, err
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

func (r *Repository) ListConnectors(ctx context.Context, stationID string) ([]analytics.Connector, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT station_id, id, status, updated_at
		FROM connectors WHERE station_id=$1 ORDER BY id`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []analytics.Connector{}
	for rows.Next() {
		var c analytics.Connector
		var status string
		if err := rows.Scan(&c.StationID, &c.ID, &status, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Status = analytics.ParseConnectorStatus(status)
		results = append(results, c)
	}
	return results, rows.Err()
}

func (r *Repository) UpdateStationScore(ctx context.Context, stationID string, score float64, at time.Time) error {
	tag, err := r.Store.Pool.Exec(ctx, `
		UPDATE stations SET reliability_score=$1, last_status_update=$2 WHERE id=$3`,
		score, at, stationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) StatusHistory(ctx context.Context, stationID string, from, to time.Time) ([]analytics.StatusEvent, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT station_id, connector_id, status, source, recorded_at
		FROM status_events
		WHERE station_id=$1 AND recorded_at >= $2 AND recorded_at <= $3
		ORDER BY recorded_at ASC`, stationID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []analytics.StatusEvent{}
	for rows.Next() {
		var e analytics.StatusEvent
		var status string
		if err := rows.Scan(&e.StationID, &e.ConnectorID, &status, &e.Source, &e.RecordedAt); err != nil {
			return nil, err
		}
		e.Status = analytics.ParseConnectorStatus(status)
		results = append(results, e)
	}
	return results, rows.Err()
}

func (r *Repository) ReportHistory(ctx context.Context, stationID string, from, to time.Time) ([]analytics.ReportEvent, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT station_id, device_id, report_type, description, status, created_at
		FROM report_events
		WHERE station_id=$1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at ASC`, stationID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []analytics.ReportEvent{}
	for rows.Next() {
		var e analytics.ReportEvent
		if err := rows.Scan(&e.StationID, &e.DeviceID, &e.ReportType, &e.Description, &e.Status, &e.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

func (r *Repository) CountReports(ctx context.Context, stationID string) (int, error) {
	row := r.Store.Pool.QueryRow(ctx, `SELECT count(*) FROM report_events WHERE station_id=$1`, stationID)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *Repository) UpsertReliabilityMetric(ctx context.Context, metric analytics.ReliabilityMetric) error {
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO reliability_metrics (station_id, uptime_percentage, report_count, downtime_frequency, sample_size, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),$6)
		ON CONFLICT (station_id) DO UPDATE SET
			uptime_percentage=EXCLUDED.uptime_percentage,
			report_count=EXCLUDED.report_count,
			downtime_frequency=EXCLUDED.downtime_frequency,
			sample_size=EXCLUDED.sample_size,
			updated_at=EXCLUDED.updated_at`,
		metric.StationID, metric.UptimePercentage, metric.ReportCount, metric.DowntimeFrequency, metric.SampleSize, metric.UpdatedAt)
	return err
}

func (r *Repository) UnresolvedAnomalies(ctx context.Context, stationID string) ([]analytics.Anomaly, error) {
	return r.queryAnomalies(ctx, `
		SELECT id, station_id, anomaly_type, sub_key, description, severity, severity_score, is_resolved, detected_at, resolved_at, last_checked
		FROM anomalies WHERE station_id=$1 AND NOT is_resolved ORDER BY detected_at`, stationID)
}

func (r *Repository) AllUnresolved(ctx context.Context) ([]analytics.Anomaly, error) {
	return r.queryAnomalies(ctx, `
		SELECT id, station_id, anomaly_type, sub_key, description, severity, severity_score, is_resolved, detected_at, resolved_at, last_checked
		FROM anomalies WHERE NOT is_resolved ORDER BY detected_at`)
}

func (r *Repository) queryAnomalies(ctx context.Context, sql string, args ...any) ([]analytics.Anomaly, error) {
	rows, err := r.Store.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []analytics.Anomaly{}
	for rows.Next() {
		var a analytics.Anomaly
		var anomalyType, severity string
		if err := rows.Scan(&a.ID, &a.StationID, &anomalyType, &a.SubKey, &a.Description, &severity,
			&a.SeverityScore, &a.Resolved, &a.DetectedAt, &a.ResolvedAt, &a.LastChecked); err != nil {
			return nil, err
		}
		parsedType, _ := analytics.ParseAnomalyType(anomalyType)
		a.Type = parsedType
		parsedSeverity, _ := analytics.ParseSeverity(severity)
		a.Severity = parsedSeverity
		results = append(results, a)
	}
	return results, rows.Err()
}

// mergeOpenSeverity applies the escalate-only invariant when a write lands on
// an already-open anomaly: the surviving row's severity never downgrades.
func mergeOpenSeverity(existing, incoming string) string {
	current, _ := analytics.ParseSeverity(existing)
	next, _ := analytics.ParseSeverity(incoming)
	return string(analytics.Escalate(current, next))
}

// SaveAnomaly inserts or updates by id. A concurrent detector may have
// created the same (station, type, sub_key) open anomaly first; the partial
// unique index rejects the insert and the write is retried as an
// escalate-aware update of the surviving row, whose id the caller adopts.
func (r *Repository) SaveAnomaly(ctx context.Context, anomaly *analytics.Anomaly) error {
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO anomalies (id, station_id, anomaly_type, sub_key, description, severity, severity_score, is_resolved, detected_at, resolved_at, last_checked)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			description=EXCLUDED.description,
			severity=EXCLUDED.severity,
			severity_score=EXCLUDED.severity_score,
			is_resolved=EXCLUDED.is_resolved,
			resolved_at=EXCLUDED.resolved_at,
			last_checked=EXCLUDED.last_checked`,
		anomaly.ID, anomaly.StationID, string(anomaly.Type), anomaly.SubKey, anomaly.Description,
		string(anomaly.Severity), anomaly.SeverityScore, anomaly.Resolved, anomaly.DetectedAt,
		anomaly.ResolvedAt, anomaly.LastChecked)
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT id, severity, detected_at FROM anomalies
		WHERE station_id=$1 AND anomaly_type=$2 AND sub_key=$3 AND NOT is_resolved`,
		anomaly.StationID, string(anomaly.Type), anomaly.SubKey)
	var survivorID, survivorSeverity string
	var survivorDetectedAt time.Time
	if err := row.Scan(&survivorID, &survivorSeverity, &survivorDetectedAt); err != nil {
		return err
	}
	severity := mergeOpenSeverity(survivorSeverity, string(anomaly.Severity))
	if _, err := r.Store.Pool.Exec(ctx, `
		UPDATE anomalies SET description=$1, severity=$2, severity_score=$3, last_checked=$4
		WHERE id=$5`,
		anomaly.Description, severity, anomaly.SeverityScore, anomaly.LastChecked, survivorID); err != nil {
		return err
	}
	anomaly.ID = survivorID
	anomaly.Severity = analytics.Severity(severity)
	anomaly.DetectedAt = survivorDetectedAt
	return nil
}
