package analytics

type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// ParseSeverity returns the matching severity and whether the input was valid.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return Severity(s), true
	default:
		return "", false
	}
}

func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s ranks at or above other.
func (s Severity) AtLeast(other Severity) bool {
	return s.rank() >= other.rank()
}

// Escalate returns the higher-ranked of the two severities. Detectors use it
// on repeated detection so severity never downgrades while an anomaly is open.
func Escalate(current, next Severity) Severity {
	if next.rank() > current.rank() {
		return next
	}
	return current
}
