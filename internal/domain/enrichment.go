package domain

import "time"

// AmbiguousOwner groups owner_name, owner_email and owner_team for enrichment
const AmbiguousOwner = "owner"

// EnrichmentRequest is the bounded context handed to the enrichment collaborator
type EnrichmentRequest struct {
	RowID           int               `json:"row_id"`
	AmbiguousFields []string          `json:"ambiguous_fields"`
	Glimpse         map[string]string `json:"glimpse"`
	AllowedTypes    []string          `json:"allowed_device_types"`
	Temperature     float64           `json:"temperature"`
}

// EnrichmentStatus is the collaborator's explicit success signal
type EnrichmentStatus string

const (
	EnrichmentOK       EnrichmentStatus = "ok"
	EnrichmentNoUpdate EnrichmentStatus = "no_update"
)

// EnrichmentResult is the structured answer of the collaborator.
// Nil fields mean the collaborator declined to answer them.
type EnrichmentResult struct {
	Status               EnrichmentStatus `json:"status"`
	DeviceType           *string          `json:"device_type"`
	DeviceTypeConfidence *float64         `json:"device_type_confidence"`
	Owner                *string          `json:"owner"`
	OwnerEmail           *string          `json:"owner_email"`
	OwnerTeam            *string          `json:"owner_team"`
	ReasoningShort       string           `json:"reasoning_short,omitempty"`
	// SchemaValid is set by the collaborator once the response matched the output schema
	SchemaValid bool `json:"-"`
}

// AuditEntry records one enrichment attempt for the human-readable audit log
type AuditEntry struct {
	RowID           int               `json:"row_id"`
	Provider        string            `json:"provider"`
	AmbiguousFields []string          `json:"ambiguous_fields"`
	Glimpse         map[string]string `json:"glimpse,omitempty"`
	AllowedTypes    []string          `json:"allowed_device_types"`
	Temperature     float64           `json:"temperature"`
	Instruction     string            `json:"instruction"`
	Outcome         EnrichmentStatus  `json:"outcome"`
	Reason          string            `json:"reason,omitempty"`
	Applied         map[string]string `json:"applied,omitempty"`
	Duration        time.Duration     `json:"duration"`
	AttemptedAt     time.Time         `json:"attempted_at"`
}

// ConservativeFillInstruction is stated in every audit entry and prompt
const ConservativeFillInstruction = "Fill missing fields conservatively; prefer null or unknown when uncertain."
