package domain

// Severity grades an anomaly
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Severities lists every severity from most to least severe
var Severities = []Severity{SeverityError, SeverityWarning, SeverityInfo}

// ParseSeverity converts a string to Severity, returning false when unknown
func ParseSeverity(s string) (Severity, bool) {
	switch s {
	case "error":
		return SeverityError, true
	case "warning":
		return SeverityWarning, true
	case "info":
		return SeverityInfo, true
	default:
		return "", false
	}
}

// ErrorKind is the error taxonomy an anomaly belongs to
type ErrorKind string

const (
	KindFieldInvalid          ErrorKind = "FieldInvalid"          // Value failed its validator
	KindFieldMissing          ErrorKind = "FieldMissing"          // Value absent or placeholder
	KindFieldNote             ErrorKind = "FieldNote"             // Value accepted with a caveat
	KindDerivationSkipped     ErrorKind = "DerivationSkipped"     // Prerequisite field invalid
	KindEnrichmentUnavailable ErrorKind = "EnrichmentUnavailable" // Collaborator missing, slow or malformed
	KindEnrichmentApplied     ErrorKind = "EnrichmentApplied"     // Field filled by the collaborator
	KindRowUnparseable        ErrorKind = "RowUnparseable"        // Row could not be split into fields
)

// AnomalyEntry records one rule violation for a row and field
type AnomalyEntry struct {
	RowID       int       `json:"row_id"`
	Field       string    `json:"field"`
	Severity    Severity  `json:"severity"`
	Reason      string    `json:"reason"`
	Remediation string    `json:"remediation"`
	Kind        ErrorKind `json:"kind"`
	Value       string    `json:"value,omitempty"`
}

// maxAnomalyValueLen bounds the offending value echoed into the report
const maxAnomalyValueLen = 120

// NewAnomaly creates an anomaly entry, clipping the offending value
func NewAnomaly(rowID int, field string, severity Severity, kind ErrorKind, reason, remediation, value string) AnomalyEntry {
	return AnomalyEntry{
		RowID:       rowID,
		Field:       field,
		Severity:    severity,
		Reason:      reason,
		Remediation: remediation,
		Kind:        kind,
		Value:       Clip(value, maxAnomalyValueLen),
	}
}

// Clip flattens newlines and truncates s to at most n bytes with an ellipsis
func Clip(s string, n int) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\r' || r == '\n' {
			r = ' '
		}
		out = append(out, r)
	}
	clipped := string(out)
	if n <= 3 || len(clipped) <= n {
		return clipped
	}
	// Trim on a rune boundary
	cut := n - 3
	for cut > 0 && !isRuneStart(clipped[cut]) {
		cut--
	}
	return clipped[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
