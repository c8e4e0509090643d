package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// PatternDeviationDetector flags connectors whose live status deviates from
// the status they usually hold on the current day of week.
type PatternDeviationDetector struct {
	store Store
	cfg   PatternConfig
	now   func() time.Time
}

func NewPatternDeviationDetector(store Store, cfg PatternConfig) *PatternDeviationDetector {
	return &PatternDeviationDetector{
		store: store,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (d *PatternDeviationDetector) Type() AnomalyType {
	return AnomalyPatternDeviation
}

// dayHistogram counts one connector's events per day-of-week and status.
// UNKNOWN events carry no usage signal and are excluded.
func dayHistogram(events []StatusEvent) map[time.Weekday]map[ConnectorStatus]int {
	hist := map[time.Weekday]map[ConnectorStatus]int{}
	for _, e := range events {
		if e.Status == StatusUnknown {
			continue
		}
		day := e.RecordedAt.Weekday()
		if hist[day] == nil {
			hist[day] = map[ConnectorStatus]int{}
		}
		hist[day][e.Status]++
	}
	return hist
}

// expectedStatus picks the most common status in one day's histogram row and
// the row's total sample count. Empty rows and ties default to AVAILABLE.
func expectedStatus(row map[ConnectorStatus]int) (ConnectorStatus, int) {
	total := 0
	best := StatusAvailable
	bestCount := 0
	ties := 0
	for _, status := range []ConnectorStatus{StatusAvailable, StatusOccupied, StatusOffline} {
		n := row[status]
		total += n
		if n > bestCount {
			best = status
			bestCount = n
			ties = 1
		} else if n == bestCount && n > 0 {
			ties++
		}
	}
	if bestCount == 0 || ties > 1 {
		return StatusAvailable, total
	}
	return best, total
}

// deviation describes one connector off its learned pattern.
type deviation struct {
	connectorID string
	expected    ConnectorStatus
	actual      ConnectorStatus
}

// evaluateDeviations compares each connector's live status against its
// learned day-of-week pattern. A connector only qualifies with at least
// minHistory events in the window and at least minDaySamples events in the
// current day's histogram row.
func evaluateDeviations(cfg PatternConfig, connectors []Connector, events []StatusEvent, now time.Time) []deviation {
	byConnector := map[string][]StatusEvent{}
	for _, e := range events {
		byConnector[e.ConnectorID] = append(byConnector[e.ConnectorID], e)
	}

	deviations := []deviation{}
	for _, c := range connectors {
		history := byConnector[c.ID]
		if len(history) < cfg.MinHistory {
			continue
		}
		expected, daySamples := expectedStatus(dayHistogram(history)[now.Weekday()])
		if daySamples < cfg.MinDaySamples {
			continue
		}
		if c.Status != expected {
			deviations = append(deviations, deviation{connectorID: c.ID, expected: expected, actual: c.Status})
		}
	}
	sort.Slice(deviations, func(i, j int) bool { return deviations[i].connectorID < deviations[j].connectorID })
	return deviations
}

// Detect raises or refreshes one PATTERN_DEVIATION anomaly for the station
// when any connector deviates from its learned pattern. Severity is fixed at
// MEDIUM with a placeholder magnitude; the deviation size is not yet scored.
func (d *PatternDeviationDetector) Detect(ctx context.Context, station Station) (int, error) {
	now := d.now()
	from := now.Add(-time.Duration(d.cfg.WindowDays) * 24 * time.Hour)
	connectors, err := d.store.ListConnectors(ctx, station.ID)
	if err != nil {
		return 0, err
	}
	events, err := d.store.StatusHistory(ctx, station.ID, from, now)
	if err != nil {
		return 0, err
	}
	deviations := evaluateDeviations(d.cfg, connectors, events, now)
	if len(deviations) == 0 {
		return 0, nil
	}
	parts := make([]string, 0, len(deviations))
	for _, dev := range deviations {
		parts = append(parts, fmt.Sprintf("%s is %s, usually %s on %s", dev.connectorID, dev.actual, dev.expected, now.Weekday()))
	}
	description := "pattern deviation: connector " + strings.Join(parts, "; ")
	if err := upsertAnomaly(ctx, d.store, station.ID, AnomalyPatternDeviation, "", SeverityMedium, 0.5, description, now); err != nil {
		return 0, err
	}
	return 1, nil
}

// Resolved reports whether every connector is back on its learned pattern, or
// no longer has enough history to support an expectation.
func (d *PatternDeviationDetector) Resolved(ctx context.Context, anomaly Anomaly) (bool, error) {
	now := d.now()
	from := now.Add(-time.Duration(d.cfg.WindowDays) * 24 * time.Hour)
	connectors, err := d.store.ListConnectors(ctx, anomaly.StationID)
	if err != nil {
		return false, err
	}
	events, err := d.store.StatusHistory(ctx, anomaly.StationID, from, now)
	if err != nil {
		return false, err
	}
	return len(evaluateDeviations(d.cfg, connectors, events, now)) == 0, nil
}
