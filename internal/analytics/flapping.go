package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// StatusFlappingDetector flags stations where a connector's status oscillates
// too many times within a short window.
type StatusFlappingDetector struct {
	store Store
	cfg   FlappingConfig
	now   func() time.Time
}

func NewStatusFlappingDetector(store Store, cfg FlappingConfig) *StatusFlappingDetector {
	return &StatusFlappingDetector{
		store: store,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (d *StatusFlappingDetector) Type() AnomalyType {
	return AnomalyStatusFlapping
}

// transitionsPerConnector counts recorded status changes per connector. Every
// stored event is a transition, so the count is the slice length per key.
func transitionsPerConnector(events []StatusEvent) map[string]int {
	counts := map[string]int{}
	for _, e := range events {
		counts[e.ConnectorID]++
	}
	return counts
}

// flappingConnectors returns the connectors at or above the flap threshold,
// sorted by id, and the worst transition count seen.
func flappingConnectors(counts map[string]int, threshold int) ([]string, int) {
	flagged := []string{}
	worst := 0
	for id, n := range counts {
		if n >= threshold {
			flagged = append(flagged, id)
		}
		if n > worst {
			worst = n
		}
	}
	sort.Strings(flagged)
	return flagged, worst
}

func (d *StatusFlappingDetector) severityFor(worst int) Severity {
	switch {
	case worst >= 3*d.cfg.MinTransitions:
		return SeverityHigh
	case worst >= 2*d.cfg.MinTransitions:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Detect raises or refreshes one STATUS_FLAPPING anomaly for the station when
// any connector changed status at least MinTransitions times inside the
// window. Returns the number of anomalies raised this run.
func (d *StatusFlappingDetector) Detect(ctx context.Context, station Station) (int, error) {
	now := d.now()
	from := now.Add(-time.Duration(d.cfg.WindowHours) * time.Hour)
	events, err := d.store.StatusHistory(ctx, station.ID, from, now)
	if err != nil {
		return 0, err
	}
	flagged, worst := flappingConnectors(transitionsPerConnector(events), d.cfg.MinTransitions)
	if len(flagged) == 0 {
		return 0, nil
	}
	description := fmt.Sprintf("status flapping on connector(s) %s: up to %d status changes in the last %dh",
		strings.Join(flagged, ", "), worst, d.cfg.WindowHours)
	if err := upsertAnomaly(ctx, d.store, station.ID, AnomalyStatusFlapping, "", d.severityFor(worst), float64(worst), description, now); err != nil {
		return 0, err
	}
	return 1, nil
}

// Resolved reports whether the flapping condition has cleared: every
// connector's transition count inside the window is back below the threshold.
func (d *StatusFlappingDetector) Resolved(ctx context.Context, anomaly Anomaly) (bool, error) {
	now := d.now()
	from := now.Add(-time.Duration(d.cfg.WindowHours) * time.Hour)
	events, err := d.store.StatusHistory(ctx, anomaly.StationID, from, now)
	if err != nil {
		return false, err
	}
	flagged, _ := flappingConnectors(transitionsPerConnector(events), d.cfg.MinTransitions)
	return len(flagged) == 0, nil
}
