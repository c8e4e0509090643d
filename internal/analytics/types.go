package analytics

import "time"

type ConnectorStatus string

const (
	StatusAvailable ConnectorStatus = "AVAILABLE"
	StatusOccupied  ConnectorStatus = "OCCUPIED"
	StatusOffline   ConnectorStatus = "OFFLINE"
	StatusUnknown   ConnectorStatus = "UNKNOWN"
)

// ParseConnectorStatus maps free-form input to a known status. Unknown input
// folds into StatusUnknown rather than erroring; status strings arrive from
// external providers and must never break a batch.
func ParseConnectorStatus(s string) ConnectorStatus {
	switch ConnectorStatus(s) {
	case StatusAvailable, StatusOccupied, StatusOffline:
		return ConnectorStatus(s)
	default:
		return StatusUnknown
	}
}

type AnomalyType string

const (
	AnomalyStatusFlapping   AnomalyType = "STATUS_FLAPPING"
	AnomalyExtendedDowntime AnomalyType = "EXTENDED_DOWNTIME"
	AnomalyReportSpike      AnomalyType = "REPORT_SPIKE"
	AnomalyPatternDeviation AnomalyType = "PATTERN_DEVIATION"
)

// ParseAnomalyType returns the matching type and whether the input was valid.
// Callers at the API boundary treat !ok as an empty result, not an error.
func ParseAnomalyType(s string) (AnomalyType, bool) {
	switch AnomalyType(s) {
	case AnomalyStatusFlapping, AnomalyExtendedDowntime, AnomalyReportSpike, AnomalyPatternDeviation:
		return AnomalyType(s), true
	default:
		return "", false
	}
}

type Station struct {
	ID               string
	Name             string
	ReliabilityScore *float64
	LastStatusUpdate *time.Time
}

// Connector carries the live status of one plug on a station, as last observed
// by ingestion.
type Connector struct {
	StationID string
	ID        string
	Status    ConnectorStatus
	UpdatedAt time.Time
}

// StatusEvent is one recorded status transition. Events are append-only and
// written only when the observed status differs from the previous one, so the
// number of events in a window equals the number of transitions in it.
type StatusEvent struct {
	StationID   string
	ConnectorID string
	Status      ConnectorStatus
	Source      string
	RecordedAt  time.Time
}

// ReportEvent is a user-submitted problem report. Read-only for analytics.
type ReportEvent struct {
	StationID   string
	DeviceID    string
	ReportType  string
	Description string
	Status      string
	CreatedAt   time.Time
}

// ReliabilityMetric holds the derived per-station reliability figures. At most
// one row exists per station; recalculation updates it in place.
type ReliabilityMetric struct {
	StationID         string
	UptimePercentage  float64
	ReportCount       int
	DowntimeFrequency float64
	SampleSize        int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Anomaly is one detected abnormality for a station. SubKey narrows the
// dedup key for types that need it (the report type for REPORT_SPIKE); it is
// empty for the other types.
type Anomaly struct {
	ID            string
	StationID     string
	Type          AnomalyType
	SubKey        string
	Description   string
	Severity      Severity
	SeverityScore float64
	Resolved      bool
	DetectedAt    time.Time
	ResolvedAt    *time.Time
	LastChecked   time.Time
}
