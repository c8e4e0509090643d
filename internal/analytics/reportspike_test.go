package analytics

import (
	"context"
	"testing"
	"time"
)

func report(stationID, reportType string, at time.Time) ReportEvent {
	return ReportEvent{StationID: stationID, ReportType: reportType, CreatedAt: at}
}

func newSpikeDetector(store Store) *ReportSpikeDetector {
	d := NewReportSpikeDetector(store, DefaultConfig().Spike)
	d.now = func() time.Time { return testBase }
	return d
}

func TestSpikeConditionBNewIssueType(t *testing.T) {
	store := newMemStore()
	store.addStation("s1")
	for i := 0; i < 6; i++ {
		store.addReports("s1", report("s1", "CONNECTOR_ISSUE", testBase.Add(-time.Duration(i+1)*12*time.Hour)))
	}

	d := newSpikeDetector(store)
	count, err := d.Detect(context.Background(), Station{ID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 anomaly got %d", count)
	}
	open := store.openAnomalies("s1")
	if len(open) != 1 {
		t.Fatalf("expected 1 open anomaly got %d", len(open))
	}
	if open[0].Type != AnomalyReportSpike {
		t.Fatalf("expected REPORT_SPIKE got %s", open[0].Type)
	}
	if open[0].SubKey != "CONNECTOR_ISSUE" {
		t.Fatalf("expected sub key CONNECTOR_ISSUE got %q", open[0].SubKey)
	}
	// No baseline: factor is the raw recent count.
	if open[0].SeverityScore != 6.0 {
		t.Fatalf("expected factor 6 got %v", open[0].SeverityScore)
	}
	if open[0].Severity != SeverityHigh {
		t.Fatalf("expected HIGH for factor 6 got %s", open[0].Severity)
	}
}

func TestSpikeBelowMinReports(t *testing.T) {
	store := newMemStore()
	store.addStation("s1")
	store.addReports("s1",
		report("s1", "PAYMENT_ISSUE", testBase.Add(-24*time.Hour)),
		report("s1", "PAYMENT_ISSUE", testBase.Add(-48*time.Hour)),
	)

	d := newSpikeDetector(store)
	count, err := d.Detect(context.Background(), Station{ID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no anomaly below MIN_REPORTS got %d", count)
	}
}

func TestSpikeConditionAAgainstBaseline(t *testing.T) {
	store := newMemStore()
	store.addStation("s1")
	// Baseline: 4 reports over 23 days (~0.17/day). Recent: 4 over 7 days
	// (~0.57/day), factor ~3.3.
	for i := 0; i < 4; i++ {
		store.addReports("s1", report("s1", "CONNECTOR_ISSUE", testBase.Add(-time.Duration(10+i)*24*time.Hour)))
	}
	for i := 0; i < 4; i++ {
		store.addReports("s1", report("s1", "CONNECTOR_ISSUE", testBase.Add(-time.Duration(i+1)*24*time.Hour)))
	}

	d := newSpikeDetector(store)
	count, err := d.Detect(context.Background(), Station{ID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 anomaly got %d", count)
	}
	open := store.openAnomalies("s1")
	if open[0].Severity != SeverityMedium {
		t.Fatalf("expected MEDIUM for factor ~3.3 got %s", open[0].Severity)
	}
}

func TestSpikeSteadyRateDoesNotTrigger(t *testing.T) {
	store := newMemStore()
	store.addStation("s1")
	// One report per day across the whole span: recent rate equals baseline.
	for i := 1; i <= 29; i++ {
		store.addReports("s1", report("s1", "CONNECTOR_ISSUE", testBase.Add(-time.Duration(i)*24*time.Hour)))
	}

	d := newSpikeDetector(store)
	count, err := d.Detect(context.Background(), Station{ID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected steady rate not to spike, got %d", count)
	}
}

func TestSpikeSeparateAnomalyPerReportType(t *testing.T) {
	store := newMemStore()
	store.addStation("s1")
	for i := 0; i < 6; i++ {
		store.addReports("s1",
			report("s1", "CONNECTOR_ISSUE", testBase.Add(-time.Duration(i+1)*12*time.Hour)),
			report("s1", "PAYMENT_ISSUE", testBase.Add(-time.Duration(i+1)*10*time.Hour)),
		)
	}

	d := newSpikeDetector(store)
	count, err := d.Detect(context.Background(), Station{ID: "s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected one anomaly per report type got %d", count)
	}
	if open := store.openAnomalies("s1"); len(open) != 2 {
		t.Fatalf("expected 2 open anomalies got %d", len(open))
	}

	// A second run must update, not duplicate.
	if _, err := d.Detect(context.Background(), Station{ID: "s1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if open := store.openAnomalies("s1"); len(open) != 2 {
		t.Fatalf("expected updates not duplicates, got %d", len(open))
	}
}

func TestSpikeResolved(t *testing.T) {
	store := newMemStore()
	store.addStation("s1")
	for i := 0; i < 6; i++ {
		store.addReports("s1", report("s1", "CONNECTOR_ISSUE", testBase.Add(-time.Duration(i+1)*12*time.Hour)))
	}
	d := newSpikeDetector(store)
	anomaly := Anomaly{ID: "a1", StationID: "s1", Type: AnomalyReportSpike, SubKey: "CONNECTOR_ISSUE"}

	resolved, err := d.Resolved(context.Background(), anomaly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved {
		t.Fatalf("expected unresolved while spike persists")
	}

	// Same station spiking on a different type does not hold this one open.
	store.reports["s1"] = nil
	for i := 0; i < 6; i++ {
		store.addReports("s1", report("s1", "PAYMENT_ISSUE", testBase.Add(-time.Duration(i+1)*12*time.Hour)))
	}
	resolved, err = d.Resolved(context.Background(), anomaly)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resolved {
		t.Fatalf("expected resolved once the type stops spiking")
	}
}
