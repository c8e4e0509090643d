package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Detector is one anomaly-detection algorithm. Detect raises or refreshes
// anomalies for a station and returns how many it raised; Resolved checks
// whether an open anomaly's condition has cleared.
type Detector interface {
	Type() AnomalyType
	Detect(ctx context.Context, station Station) (int, error)
	Resolved(ctx context.Context, anomaly Anomaly) (bool, error)
}

// Orchestrator runs every detector over every station and separately sweeps
// open anomalies for resolution.
type Orchestrator struct {
	store     Store
	detectors []Detector
	workers   int
	logger    *slog.Logger
	now       func() time.Time
}

func NewOrchestrator(store Store, detectors []Detector, workers int, logger *slog.Logger) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		store:     store,
		detectors: detectors,
		workers:   workers,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RunSummary aggregates one detection batch.
type RunSummary struct {
	Stations int
	Detected int
	Failed   int
}

// DetectForStation runs all detectors against one station in sequence and
// returns the summed anomaly count.
func (o *Orchestrator) DetectForStation(ctx context.Context, station Station) (int, error) {
	total := 0
	for _, detector := range o.detectors {
		count, err := detector.Detect(ctx, station)
		if err != nil {
			return total, err
		}
		total += count
	}
	return total, nil
}

// RunAll iterates all stations through the detector set. Stations are fanned
// out to a bounded worker pool; each station is owned by exactly one worker,
// so per-station find-or-create sequences never race. A failing station is
// logged and does not stop the batch.
func (o *Orchestrator) RunAll(ctx context.Context) (RunSummary, error) {
	stations, err := o.store.ListStations(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	var mu sync.Mutex
	summary := RunSummary{Stations: len(stations)}
	queue := make(chan Station)
	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for station := range queue {
				count, err := o.DetectForStation(ctx, station)
				mu.Lock()
				summary.Detected += count
				if err != nil {
					summary.Failed++
				}
				mu.Unlock()
				if err != nil {
					o.logger.Error("anomaly detection failed",
						slog.String("stationId", station.ID),
						slog.String("error", err.Error()))
				}
			}
		}()
	}
	for _, station := range stations {
		queue <- station
	}
	close(queue)
	wg.Wait()

	o.logger.Info("anomaly detection batch finished",
		slog.Int("stations", summary.Stations),
		slog.Int("detected", summary.Detected),
		slog.Int("failed", summary.Failed))
	return summary, nil
}

// ResolveSweep walks all unresolved anomalies and asks the owning detector
// whether the condition has cleared. Cleared anomalies are marked resolved
// with a timestamp; anomalies whose condition persists are left untouched.
// The sweep never creates or re-opens anomalies.
func (o *Orchestrator) ResolveSweep(ctx context.Context) (int, error) {
	open, err := o.store.AllUnresolved(ctx)
	if err != nil {
		return 0, err
	}
	byType := map[AnomalyType]Detector{}
	for _, detector := range o.detectors {
		byType[detector.Type()] = detector
	}

	resolved := 0
	for i := range open {
		anomaly := open[i]
		detector, ok := byType[anomaly.Type]
		if !ok {
			o.logger.Warn("no detector for anomaly type", slog.String("type", string(anomaly.Type)))
			continue
		}
		cleared, err := detector.Resolved(ctx, anomaly)
		if err != nil {
			o.logger.Error("resolution check failed",
				slog.String("anomalyId", anomaly.ID),
				slog.String("stationId", anomaly.StationID),
				slog.String("error", err.Error()))
			continue
		}
		if !cleared {
			continue
		}
		now := o.now()
		anomaly.Resolved = true
		anomaly.ResolvedAt = &now
		anomaly.LastChecked = now
		if err := o.store.SaveAnomaly(ctx, &anomaly); err != nil {
			o.logger.Error("failed to mark anomaly resolved",
				slog.String("anomalyId", anomaly.ID),
				slog.String("error", err.Error()))
			continue
		}
		resolved++
	}
	o.logger.Info("resolution sweep finished",
		slog.Int("open", len(open)),
		slog.Int("resolved", resolved))
	return resolved, nil
}
