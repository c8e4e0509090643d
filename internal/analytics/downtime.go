package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ExtendedDowntimeDetector flags stations with a connector continuously
// offline beyond a threshold duration.
type ExtendedDowntimeDetector struct {
	store Store
	cfg   DowntimeConfig
	now   func() time.Time
}

func NewExtendedDowntimeDetector(store Store, cfg DowntimeConfig) *ExtendedDowntimeDetector {
	return &ExtendedDowntimeDetector{
		store: store,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (d *ExtendedDowntimeDetector) Type() AnomalyType {
	return AnomalyExtendedDowntime
}

// offlineDurations computes, for every connector currently OFFLINE, how long
// it has been down: the gap from its most recent transition into OFFLINE
// inside the window up to now. Connectors whose offline transition predates
// the window are not measurable and are skipped.
func offlineDurations(connectors []Connector, events []StatusEvent, now time.Time) map[string]time.Duration {
	durations := map[string]time.Duration{}
	for _, c := range connectors {
		if c.Status != StatusOffline {
			continue
		}
		for i := len(events) - 1; i >= 0; i-- {
			e := events[i]
			if e.ConnectorID == c.ID && e.Status == StatusOffline {
				durations[c.ID] = now.Sub(e.RecordedAt)
				break
			}
		}
	}
	return durations
}

func (d *ExtendedDowntimeDetector) severityFor(hours float64) Severity {
	switch {
	case hours >= float64(d.cfg.HighHours):
		return SeverityHigh
	case hours >= float64(d.cfg.MediumHours):
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Detect raises or refreshes one EXTENDED_DOWNTIME anomaly for the station
// when any connector has been offline for at least MinHours. The severity
// score is the worst downtime in hours; severity escalates on refresh but
// never downgrades.
func (d *ExtendedDowntimeDetector) Detect(ctx context.Context, station Station) (int, error) {
	now := d.now()
	from := now.Add(-time.Duration(d.cfg.WindowHours) * time.Hour)
	connectors, err := d.store.ListConnectors(ctx, station.ID)
	if err != nil {
		return 0, err
	}
	events, err := d.store.StatusHistory(ctx, station.ID, from, now)
	if err != nil {
		return 0, err
	}

	durations := offlineDurations(connectors, events, now)
	worstHours := 0.0
	parts := []string{}
	for id, dur := range durations {
		hours := dur.Hours()
		if hours < float64(d.cfg.MinHours) {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s offline %.1fh", id, hours))
		if hours > worstHours {
			worstHours = hours
		}
	}
	if len(parts) == 0 {
		return 0, nil
	}
	sort.Strings(parts)
	description := "extended downtime: connector " + strings.Join(parts, "; ")
	if err := upsertAnomaly(ctx, d.store, station.ID, AnomalyExtendedDowntime, "", d.severityFor(worstHours), worstHours, description, now); err != nil {
		return 0, err
	}
	return 1, nil
}

// Resolved reports whether no connector of the station remains offline beyond
// the downtime threshold. A connector whose live status is OFFLINE but whose
// transition into OFFLINE predates the query window has been down longer than
// the window itself and keeps the anomaly open.
func (d *ExtendedDowntimeDetector) Resolved(ctx context.Context, anomaly Anomaly) (bool, error) {
	now := d.now()
	from := now.Add(-time.Duration(d.cfg.WindowHours) * time.Hour)
	connectors, err := d.store.ListConnectors(ctx, anomaly.StationID)
	if err != nil {
		return false, err
	}
	events, err := d.store.StatusHistory(ctx, anomaly.StationID, from, now)
	if err != nil {
		return false, err
	}
	durations := offlineDurations(connectors, events, now)
	for _, c := range connectors {
		if c.Status != StatusOffline {
			continue
		}
		dur, ok := durations[c.ID]
		if !ok {
			return false, nil
		}
		if dur.Hours() >= float64(d.cfg.MinHours) {
			return false, nil
		}
	}
	return true, nil
}
