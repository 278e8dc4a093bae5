package domain

// Canonical raw field names
const (
	FieldIP         = "ip"
	FieldMAC        = "mac"
	FieldHostname   = "hostname"
	FieldFQDN       = "fqdn"
	FieldOwner      = "owner"
	FieldDeviceType = "device_type"
	FieldSite       = "site"
	FieldNotes      = "notes"
)

// Derived and split field names used in anomalies and enrichment
const (
	FieldOwnerName            = "owner_name"
	FieldOwnerEmail           = "owner_email"
	FieldOwnerTeam            = "owner_team"
	FieldDeviceTypeConfidence = "device_type_confidence"
	FieldReversePTR           = "reverse_ptr"
	FieldSubnetCIDR           = "subnet_cidr"
	FieldRow                  = "row"
	FieldEnrichment           = "enrichment"
)

// RequiredFields must be present in the input header (directly or via alias)
var RequiredFields = []string{
	FieldIP,
	FieldHostname,
	FieldFQDN,
	FieldOwner,
	FieldDeviceType,
	FieldSite,
	FieldNotes,
}

// RawRecord is one inventory row as read from the source
type RawRecord struct {
	RowID    int               `json:"row_id"`
	SourceID string            `json:"source_id,omitempty"`
	Fields   map[string]string `json:"fields"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Get returns the raw value for a canonical field name
func (r RawRecord) Get(field string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[field]
}

// FieldSource records where a field value came from
type FieldSource string

const (
	SourceRule       FieldSource = "rule"
	SourceLLM        FieldSource = "llm"
	SourceUnresolved FieldSource = "unresolved"
)

// EnrichableFields are the fields that carry a FieldSource
var EnrichableFields = []string{
	FieldDeviceType,
	FieldOwnerName,
	FieldOwnerEmail,
	FieldOwnerTeam,
}

// NormalizedRecord is the validated, typed form of a RawRecord.
// Nil pointers are nulls in the output.
type NormalizedRecord struct {
	RowID                int                    `json:"row_id" yaml:"row_id"`
	SourceID             string                 `json:"source_id,omitempty" yaml:"source_id,omitempty"`
	IP                   *string                `json:"ip" yaml:"ip"`
	IPVersion            *int                   `json:"ip_version" yaml:"ip_version"`
	MAC                  *string                `json:"mac" yaml:"mac"`
	Hostname             *string                `json:"hostname" yaml:"hostname"`
	FQDN                 *string                `json:"fqdn" yaml:"fqdn"`
	FQDNConsistent       bool                   `json:"fqdn_consistent" yaml:"fqdn_consistent"`
	OwnerName            *string                `json:"owner_name" yaml:"owner_name"`
	OwnerEmail           *string                `json:"owner_email" yaml:"owner_email"`
	OwnerTeam            *string                `json:"owner_team" yaml:"owner_team"`
	DeviceType           DeviceType             `json:"device_type" yaml:"device_type"`
	DeviceTypeConfidence float64                `json:"device_type_confidence" yaml:"device_type_confidence"`
	Site                 *string                `json:"site" yaml:"site"`
	ReversePTR           *string                `json:"reverse_ptr" yaml:"reverse_ptr"`
	SubnetCIDR           *string                `json:"subnet_cidr" yaml:"subnet_cidr"`
	Notes                string                 `json:"notes,omitempty" yaml:"notes,omitempty"`
	Source               map[string]FieldSource `json:"source" yaml:"source"`
	Steps                []string               `json:"normalization_steps,omitempty" yaml:"normalization_steps,omitempty"`
	Extra                map[string]string      `json:"extra,omitempty" yaml:"extra,omitempty"`

	// TeamConflict is set when the owner text carried contradictory team tokens
	TeamConflict bool `json:"-" yaml:"-"`
}

// NewNormalizedRecord creates a record with every enrichable field unresolved
func NewNormalizedRecord(rowID int) *NormalizedRecord {
	rec := &NormalizedRecord{
		RowID:      rowID,
		DeviceType: DeviceTypeUnknown,
		Source:     make(map[string]FieldSource, len(EnrichableFields)),
	}
	for _, f := range EnrichableFields {
		rec.Source[f] = SourceUnresolved
	}
	return rec
}

// SourceOf returns the recorded source of a field, unresolved when absent
func (r *NormalizedRecord) SourceOf(field string) FieldSource {
	if r == nil || r.Source == nil {
		return SourceUnresolved
	}
	if s, ok := r.Source[field]; ok {
		return s
	}
	return SourceUnresolved
}

// SetSource records the source of a field
func (r *NormalizedRecord) SetSource(field string, source FieldSource) {
	if r.Source == nil {
		r.Source = make(map[string]FieldSource)
	}
	r.Source[field] = source
}

// AddStep appends to the normalization step trail
func (r *NormalizedRecord) AddStep(step string) {
	r.Steps = append(r.Steps, step)
}

// Clone returns a deep copy so merges never alias the rule-engine output
func (r *NormalizedRecord) Clone() *NormalizedRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.IP = clonePtr(r.IP)
	c.IPVersion = clonePtr(r.IPVersion)
	c.MAC = clonePtr(r.MAC)
	c.Hostname = clonePtr(r.Hostname)
	c.FQDN = clonePtr(r.FQDN)
	c.OwnerName = clonePtr(r.OwnerName)
	c.OwnerEmail = clonePtr(r.OwnerEmail)
	c.OwnerTeam = clonePtr(r.OwnerTeam)
	c.Site = clonePtr(r.Site)
	c.ReversePTR = clonePtr(r.ReversePTR)
	c.SubnetCIDR = clonePtr(r.SubnetCIDR)
	if r.Source != nil {
		c.Source = make(map[string]FieldSource, len(r.Source))
		for k, v := range r.Source {
			c.Source[k] = v
		}
	}
	if r.Steps != nil {
		c.Steps = append([]string(nil), r.Steps...)
	}
	if r.Extra != nil {
		c.Extra = make(map[string]string, len(r.Extra))
		for k, v := range r.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// StringPtr returns a pointer to s, or nil for the empty string
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or ""
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
