package analytics

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"
)

var testBase = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func statusEvent(stationID, connectorID string, status ConnectorStatus, at time.Time) StatusEvent {
	return StatusEvent{StationID: stationID, ConnectorID: connectorID, Status: status, Source: "test", RecordedAt: at}
}

func TestScorecardNoHistoryDefaultsUptime(t *testing.T) {
	card := ComputeScorecard(DefaultConfig().Reliability, nil, 0)
	if card.Uptime != 50.0 {
		t.Fatalf("expected uptime 50 got %v", card.Uptime)
	}
	if card.Confidence != 0.5 {
		t.Fatalf("expected confidence 0.5 got %v", card.Confidence)
	}
	// 0.5 * (0.6*50 + 0.2*100 + 0.2*100)
	if card.Composite != 35.0 {
		t.Fatalf("expected composite 35 got %v", card.Composite)
	}
}

func TestScorecardConfidenceCap(t *testing.T) {
	cfg := DefaultConfig().Reliability
	events := func(n int) []StatusEvent {
		out := make([]StatusEvent, n)
		for i := range out {
			out[i] = statusEvent("s1", "c1", StatusAvailable, testBase.Add(-time.Duration(i)*time.Hour))
		}
		return out
	}
	if card := ComputeScorecard(cfg, events(10), 0); card.Confidence != 1.0 {
		t.Fatalf("expected full confidence at 10 samples got %v", card.Confidence)
	}
	// 0.5 + 9/10 overshoots 1.0 and must be capped.
	if card := ComputeScorecard(cfg, events(9), 0); card.Confidence != 1.0 {
		t.Fatalf("expected capped confidence at 9 samples got %v", card.Confidence)
	}
	if card := ComputeScorecard(cfg, events(4), 0); card.Confidence != 0.9 {
		t.Fatalf("expected confidence 0.9 at 4 samples got %v", card.Confidence)
	}
}

func TestScorecardStabilityMonotonic(t *testing.T) {
	cfg := DefaultConfig().Reliability
	prev := 101.0
	for n := 0; n <= 25; n++ {
		events := make([]StatusEvent, n)
		for i := range events {
			events[i] = statusEvent("s1", "c1", StatusAvailable, testBase.Add(-time.Duration(i)*time.Minute))
		}
		card := ComputeScorecard(cfg, events, 0)
		if card.Stability > prev {
			t.Fatalf("stability increased at %d transitions: %v > %v", n, card.Stability, prev)
		}
		prev = card.Stability
		if n >= cfg.MaxTransitions && card.Stability != 0 {
			t.Fatalf("expected stability floor 0 at %d transitions got %v", n, card.Stability)
		}
	}
}

func TestScorecardUptimeShare(t *testing.T) {
	cfg := DefaultConfig().Reliability
	events := []StatusEvent{
		statusEvent("s1", "c1", StatusAvailable, testBase.Add(-1*time.Hour)),
		statusEvent("s1", "c1", StatusOffline, testBase.Add(-2*time.Hour)),
		statusEvent("s1", "c1", StatusAvailable, testBase.Add(-3*time.Hour)),
		statusEvent("s1", "c1", StatusOccupied, testBase.Add(-4*time.Hour)),
	}
	card := ComputeScorecard(cfg, events, 0)
	if card.Uptime != 50.0 {
		t.Fatalf("expected uptime 50 for 2/4 available got %v", card.Uptime)
	}
	if card.SampleSize != 4 {
		t.Fatalf("expected sample size 4 got %d", card.SampleSize)
	}
}

func TestCalculateForStationPersistsMetric(t *testing.T) {
	store := newMemStore()
	store.addStation("s1")
	for i := 0; i < 12; i++ {
		status := StatusAvailable
		if i%3 == 0 {
			status = StatusOffline
		}
		store.addEvents("s1", statusEvent("s1", "c1", status, testBase.Add(-time.Duration(i+1)*time.Hour)))
	}
	store.addReports("s1", ReportEvent{StationID: "s1", ReportType: "CONNECTOR_ISSUE", CreatedAt: testBase.Add(-2 * time.Hour)})

	scorer := NewReliabilityScorer(store, DefaultConfig().Reliability, testLogger())
	scorer.now = func() time.Time { return testBase }

	if err := scorer.CalculateForStation(context.Background(), Station{ID: "s1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	metric, ok := store.metrics["s1"]
	if !ok {
		t.Fatalf("expected metric row")
	}
	if metric.SampleSize != 12 {
		t.Fatalf("expected sample size 12 got %d", metric.SampleSize)
	}
	if metric.ReportCount != 1 {
		t.Fatalf("expected report count 1 got %d", metric.ReportCount)
	}
	// 12 transitions: stability = 100*(1-12/20) = 40, downtime frequency 60.
	if metric.DowntimeFrequency != 60.0 {
		t.Fatalf("expected downtime frequency 60 got %v", metric.DowntimeFrequency)
	}
	if _, ok := store.scores["s1"]; !ok {
		t.Fatalf("expected station score update")
	}
}

func TestCalculateAllStationsIdempotent(t *testing.T) {
	store := newMemStore()
	store.addStation("s1")
	for i := 0; i < 15; i++ {
		store.addEvents("s1", statusEvent("s1", "c1", StatusAvailable, testBase.Add(-time.Duration(i+1)*time.Hour)))
	}

	scorer := NewReliabilityScorer(store, DefaultConfig().Reliability, testLogger())
	scorer.now = func() time.Time { return testBase }

	if err := scorer.CalculateAllStations(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := store.scores["s1"]
	firstCreated := store.metrics["s1"].CreatedAt
	if err := scorer.CalculateAllStations(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.scores["s1"] != first {
		t.Fatalf("expected stable score, got %v then %v", first, store.scores["s1"])
	}
	if len(store.metrics) != 1 {
		t.Fatalf("expected a single metric row, got %d", len(store.metrics))
	}
	if !store.metrics["s1"].CreatedAt.Equal(firstCreated) {
		t.Fatalf("expected created_at preserved on upsert")
	}
}

func TestCalculateAllStationsIsolatesFailures(t *testing.T) {
	store := newMemStore()
	store.addStation("bad")
	store.addStation("good")
	store.statusErr["bad"] = context.DeadlineExceeded
	store.addEvents("good", statusEvent("good", "c1", StatusAvailable, testBase.Add(-time.Hour)))

	scorer := NewReliabilityScorer(store, DefaultConfig().Reliability, testLogger())
	scorer.now = func() time.Time { return testBase }

	if err := scorer.CalculateAllStations(context.Background()); err != nil {
		t.Fatalf("batch should not fail: %v", err)
	}
	if _, ok := store.metrics["bad"]; ok {
		t.Fatalf("expected no partial metric write for failed station")
	}
	if _, ok := store.metrics["good"]; !ok {
		t.Fatalf("expected metric for healthy station")
	}
}
