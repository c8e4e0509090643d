package analytics

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// ReliabilityScorer derives the per-station reliability score from the status
// and report history of a fixed trailing window.
type ReliabilityScorer struct {
	store  Store
	cfg    ReliabilityConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewReliabilityScorer(store Store, cfg ReliabilityConfig, logger *slog.Logger) *ReliabilityScorer {
	return &ReliabilityScorer{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Scorecard holds the sub-scores behind one composite reliability score.
type Scorecard struct {
	Uptime     float64
	Stability  float64
	Report     float64
	Confidence float64
	Composite  float64
	SampleSize int
}

// ComputeScorecard evaluates the scoring model over one window of history.
// Sub-scores:
//
//	uptime    = available events / total events * 100 (50 when no data)
//	stability = 100 * (1 - min(transitions, cap)/cap)
//	report    = 100 * (1 - min(reports, cap)/cap)
//
// The composite is the weighted sum of the three, down-weighted by a
// confidence factor of 0.5 + n/minDataPoints when the sample is smaller than
// minDataPoints, capped at 1.0. Rounded half-up to two decimals.
func ComputeScorecard(cfg ReliabilityConfig, events []StatusEvent, reportCount int) Scorecard {
	card := Scorecard{SampleSize: len(events)}

	if len(events) == 0 {
		card.Uptime = 50.0
	} else {
		available := 0
		for _, e := range events {
			if e.Status == StatusAvailable {
				available++
			}
		}
		card.Uptime = float64(available) / float64(len(events)) * 100
	}

	card.Stability = cappedInverseScore(len(events), cfg.MaxTransitions)
	card.Report = cappedInverseScore(reportCount, cfg.MaxReports)

	if len(events) >= cfg.MinDataPoints {
		card.Confidence = 1.0
	} else {
		card.Confidence = math.Min(1.0, 0.5+float64(len(events))/float64(cfg.MinDataPoints))
	}

	weighted := cfg.UptimeWeight*card.Uptime + cfg.StabilityWeight*card.Stability + cfg.ReportWeight*card.Report
	card.Composite = round2(card.Confidence * weighted)
	return card
}

// cappedInverseScore maps a count to [0,100], 100 at zero occurrences and 0 at
// the cap or beyond.
func cappedInverseScore(count, limit int) float64 {
	if count > limit {
		count = limit
	}
	return 100 * (1 - float64(count)/float64(limit))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// CalculateForStation recomputes and persists the reliability metric and the
// station score for one station.
func (s *ReliabilityScorer) CalculateForStation(ctx context.Context, station Station) error {
	now := s.now()
	from := now.Add(-time.Duration(s.cfg.WindowDays) * 24 * time.Hour)

	events, err := s.store.StatusHistory(ctx, station.ID, from, now)
	if err != nil {
		return err
	}
	reports, err := s.store.ReportHistory(ctx, station.ID, from, now)
	if err != nil {
		return err
	}
	totalReports, err := s.store.CountReports(ctx, station.ID)
	if err != nil {
		return err
	}

	card := ComputeScorecard(s.cfg, events, len(reports))

	metric := ReliabilityMetric{
		StationID:         station.ID,
		UptimePercentage:  card.Uptime,
		ReportCount:       totalReports,
		DowntimeFrequency: 100 - card.Stability,
		SampleSize:        card.SampleSize,
		UpdatedAt:         now,
	}
	if err := s.store.UpsertReliabilityMetric(ctx, metric); err != nil {
		return err
	}
	return s.store.UpdateStationScore(ctx, station.ID, card.Composite, now)
}

// CalculateAllStations runs the scorer over every known station. A failure on
// one station is logged and does not stop the batch.
func (s *ReliabilityScorer) CalculateAllStations(ctx context.Context) error {
	stations, err := s.store.ListStations(ctx)
	if err != nil {
		return err
	}
	failed := 0
	for _, station := range stations {
		if err := s.CalculateForStation(ctx, station); err != nil {
			failed++
			s.logger.Error("reliability calculation failed",
				slog.String("stationId", station.ID),
				slog.String("error", err.Error()))
		}
	}
	s.logger.Info("reliability batch finished",
		slog.Int("stations", len(stations)),
		slog.Int("failed", failed))
	return nil
}
