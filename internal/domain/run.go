package domain

import "time"

// RunStatus tracks a normalization run through its lifecycle
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is the summary of one pass over an inventory source
type Run struct {
	ID          string           `json:"id"`
	Source      string           `json:"source"`
	Status      RunStatus        `json:"status"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Rows        int              `json:"rows"`
	Enriched    int              `json:"enriched"`
	Anomalies   int              `json:"anomalies"`
	BySeverity  map[Severity]int `json:"by_severity,omitempty"`
	ByField     map[string]int   `json:"by_field,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Batch is one parsed input: readable rows plus anomalies for rows that
// could not be split into fields
type Batch struct {
	Source   string
	Records  []RawRecord
	Rejected []AnomalyEntry
}

// Rows returns the number of input rows, readable or not
func (b Batch) Rows() int {
	return len(b.Records) + len(b.Rejected)
}
