package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// findOpen returns the unresolved anomaly matching (type, subKey) among the
// station's open anomalies, or nil.
func findOpen(open []Anomaly, typ AnomalyType, subKey string) *Anomaly {
	for i := range open {
		if open[i].Type == typ && open[i].SubKey == subKey {
			return &open[i]
		}
	}
	return nil
}

// upsertAnomaly records a detection. If an unresolved anomaly with the same
// (station, type, subKey) key exists it is refreshed in place: description and
// severity score take the new reading, last_checked is bumped, and severity
// only ever escalates. Otherwise a new anomaly is created.
func upsertAnomaly(ctx context.Context, store AnomalyStore, stationID string, typ AnomalyType, subKey string, severity Severity, score float64, description string, now time.Time) error {
	open, err := store.UnresolvedAnomalies(ctx, stationID)
	if err != nil {
		return err
	}
	if existing := findOpen(open, typ, subKey); existing != nil {
		existing.Severity = Escalate(existing.Severity, severity)
		existing.SeverityScore = score
		existing.Description = description
		existing.LastChecked = now
		return store.SaveAnomaly(ctx, existing)
	}
	anomaly := Anomaly{
		ID:            uuid.NewString(),
		StationID:     stationID,
		Type:          typ,
		SubKey:        subKey,
		Description:   description,
		Severity:      severity,
		SeverityScore: score,
		DetectedAt:    now,
		LastChecked:   now,
	}
	return store.SaveAnomaly(ctx, &anomaly)
}
