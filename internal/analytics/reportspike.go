package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// ReportSpikeDetector flags stations whose recent user-report rate for a
// report type spikes against the historical baseline.
type ReportSpikeDetector struct {
	store Store
	cfg   SpikeConfig
	now   func() time.Time
}

func NewReportSpikeDetector(store Store, cfg SpikeConfig) *ReportSpikeDetector {
	return &ReportSpikeDetector{
		store: store,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (d *ReportSpikeDetector) Type() AnomalyType {
	return AnomalyReportSpike
}

// spikeReading is the recent-vs-baseline comparison for one report type.
type spikeReading struct {
	reportType    string
	recentCount   int
	baselineCount int
	factor        float64
}

// evaluateSpikes splits the reports into the recent window and the baseline
// that precedes it, counts per report type, and returns the types whose
// recent rate spikes. Two conditions trigger: the recent daily rate reaching
// MinFactor times a non-zero baseline rate, or a type with no baseline at all
// reaching twice MinReports in the recent window.
func evaluateSpikes(cfg SpikeConfig, reports []ReportEvent, now time.Time) []spikeReading {
	recentStart := now.Add(-time.Duration(cfg.RecentDays) * 24 * time.Hour)
	recent := map[string]int{}
	baseline := map[string]int{}
	for _, r := range reports {
		if r.CreatedAt.After(recentStart) {
			recent[r.ReportType]++
		} else {
			baseline[r.ReportType]++
		}
	}

	readings := []spikeReading{}
	for reportType, recentCount := range recent {
		if recentCount < cfg.MinReports {
			continue
		}
		baselineCount := baseline[reportType]
		recentRate := float64(recentCount) / float64(cfg.RecentDays)
		baselineRate := float64(baselineCount) / float64(cfg.BaselineDays)

		spiked := false
		factor := 0.0
		if baselineRate > 0 && recentRate >= cfg.MinFactor*baselineRate {
			spiked = true
			factor = recentRate / baselineRate
		} else if baselineCount == 0 && recentCount >= 2*cfg.MinReports {
			spiked = true
			factor = float64(recentCount)
		}
		if spiked {
			readings = append(readings, spikeReading{
				reportType:    reportType,
				recentCount:   recentCount,
				baselineCount: baselineCount,
				factor:        factor,
			})
		}
	}
	sort.Slice(readings, func(i, j int) bool { return readings[i].reportType < readings[j].reportType })
	return readings
}

func (d *ReportSpikeDetector) severityFor(factor float64) Severity {
	switch {
	case factor >= d.cfg.HighFactor:
		return SeverityHigh
	case factor >= d.cfg.MediumFactor:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Detect raises or refreshes one REPORT_SPIKE anomaly per spiking report
// type, keyed by the report type so distinct issue types never collapse into
// one record. Returns the number of anomalies raised this run.
func (d *ReportSpikeDetector) Detect(ctx context.Context, station Station) (int, error) {
	now := d.now()
	from := now.Add(-time.Duration(d.cfg.RecentDays+d.cfg.BaselineDays) * 24 * time.Hour)
	reports, err := d.store.ReportHistory(ctx, station.ID, from, now)
	if err != nil {
		return 0, err
	}
	raised := 0
	for _, reading := range evaluateSpikes(d.cfg, reports, now) {
		description := fmt.Sprintf("report spike for type %s: %d reports in %dd against %d baseline (factor %.1f)",
			reading.reportType, reading.recentCount, d.cfg.RecentDays, reading.baselineCount, reading.factor)
		if err := upsertAnomaly(ctx, d.store, station.ID, AnomalyReportSpike, reading.reportType, d.severityFor(reading.factor), reading.factor, description, now); err != nil {
			return raised, err
		}
		raised++
	}
	return raised, nil
}

// Resolved reports whether the spike condition no longer holds for the
// anomaly's report type.
func (d *ReportSpikeDetector) Resolved(ctx context.Context, anomaly Anomaly) (bool, error) {
	now := d.now()
	from := now.Add(-time.Duration(d.cfg.RecentDays+d.cfg.BaselineDays) * 24 * time.Hour)
	reports, err := d.store.ReportHistory(ctx, anomaly.StationID, from, now)
	if err != nil {
		return false, err
	}
	for _, reading := range evaluateSpikes(d.cfg, reports, now) {
		if reading.reportType == anomaly.SubKey {
			return false, nil
		}
	}
	return true, nil
}
