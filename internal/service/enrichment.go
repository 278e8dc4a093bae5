package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"invnorm/internal/domain"
	"invnorm/internal/validator"
)

// Enricher is the enrichment collaborator. Implementations return an error
// when they cannot produce a structured answer; the gate treats every
// error as "unavailable".
type Enricher interface {
	Name() string
	Resolve(ctx context.Context, req domain.EnrichmentRequest) (*domain.EnrichmentResult, error)
}

const (
	// maxGlimpseValue bounds each value in the context payload
	maxGlimpseValue = 200
	// maxOwnerName bounds an enriched owner name
	maxOwnerName = 120
	// defaultEnrichedConfidence applies when the collaborator omits a confidence
	defaultEnrichedConfidence = 0.5
	unavailablePrefix         = "enrichment unavailable"
)

// GateConfig tunes the enrichment gate
type GateConfig struct {
	// Threshold marks a device type below this confidence as ambiguous
	Threshold float64
	// MaxConfidence caps the confidence of an enriched device type
	MaxConfidence float64
	Timeout       time.Duration
	Temperature   float64
}

// DefaultGateConfig mirrors the config package defaults
func DefaultGateConfig() GateConfig {
	return GateConfig{
		Threshold:     0.40,
		MaxConfidence: 0.9,
		Timeout:       10 * time.Second,
		Temperature:   0.1,
	}
}

// EnrichmentGate decides which fields remain ambiguous and merges the
// collaborator's answer under the non-override policy
type EnrichmentGate struct {
	enricher Enricher
	cfg      GateConfig
	log      zerolog.Logger
}

// NewEnrichmentGate creates a gate. A nil enricher disables enrichment.
func NewEnrichmentGate(enricher Enricher, cfg GateConfig, log zerolog.Logger) *EnrichmentGate {
	def := DefaultGateConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.MaxConfidence <= 0 || cfg.MaxConfidence >= 1 {
		cfg.MaxConfidence = def.MaxConfidence
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &EnrichmentGate{enricher: enricher, cfg: cfg, log: log}
}

// Enabled reports whether a collaborator is configured
func (g *EnrichmentGate) Enabled() bool {
	return g != nil && g.enricher != nil
}

// AmbiguousFields lists the field groups the rules left unresolved:
// device_type when unknown or below the threshold, owner when both
// owner_name and owner_team are null
func (g *EnrichmentGate) AmbiguousFields(rec *domain.NormalizedRecord) []string {
	var fields []string
	if rec.SourceOf(domain.FieldDeviceType) != domain.SourceRule &&
		(!rec.DeviceType.IsResolved() || rec.DeviceTypeConfidence < g.cfg.Threshold) {
		fields = append(fields, domain.FieldDeviceType)
	}
	if rec.OwnerName == nil && rec.OwnerTeam == nil {
		fields = append(fields, domain.AmbiguousOwner)
	}
	return fields
}

// Enrich asks the collaborator about the ambiguous fields of rec and merges
// the answer. The input record is never modified; when nothing is applied
// the same pointer is returned. The audit entry is nil when no call was made.
func (g *EnrichmentGate) Enrich(ctx context.Context, raw domain.RawRecord, rec *domain.NormalizedRecord) (*domain.NormalizedRecord, []domain.AnomalyEntry, *domain.AuditEntry) {
	if !g.Enabled() {
		return rec, nil, nil
	}
	fields := g.AmbiguousFields(rec)
	if len(fields) == 0 {
		return rec, nil, nil
	}

	req := domain.EnrichmentRequest{
		RowID:           rec.RowID,
		AmbiguousFields: fields,
		Glimpse:         Glimpse(raw, rec),
		AllowedTypes:    domain.AllowedDeviceTypeNames(),
		Temperature:     g.cfg.Temperature,
	}
	audit := &domain.AuditEntry{
		RowID:           rec.RowID,
		Provider:        g.enricher.Name(),
		AmbiguousFields: fields,
		Glimpse:         req.Glimpse,
		AllowedTypes:    req.AllowedTypes,
		Temperature:     req.Temperature,
		Instruction:     domain.ConservativeFillInstruction,
		Outcome:         domain.EnrichmentNoUpdate,
		AttemptedAt:     time.Now().UTC(),
	}
	an := &rowAnomalies{rowID: rec.RowID}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	res, err := g.enricher.Resolve(callCtx, req)
	audit.Duration = time.Since(start)

	if err != nil {
		reason := unavailableReason(err)
		audit.Reason = reason
		g.log.Warn().Err(err).Int("row_id", rec.RowID).Msg("Enrichment unavailable")
		an.add(domain.FieldEnrichment, domain.SeverityInfo, domain.KindEnrichmentUnavailable,
			reason,
			"Row kept as produced by rules; resolve "+strings.Join(fields, ", ")+" manually.", "")
		return rec, an.entries, audit
	}

	if res == nil || res.Status != domain.EnrichmentOK {
		audit.Reason = "collaborator returned no_update"
		return rec, nil, audit
	}

	answer, err := g.check(res)
	if err != nil {
		audit.Reason = "response rejected: " + err.Error()
		g.log.Debug().Err(err).Int("row_id", rec.RowID).Msg("Enrichment response rejected")
		an.add(domain.FieldEnrichment, domain.SeverityInfo, domain.KindEnrichmentUnavailable,
			"enrichment response rejected: "+err.Error(),
			"Row kept as produced by rules; resolve "+strings.Join(fields, ", ")+" manually.", "")
		return rec, an.entries, audit
	}

	out, applied := g.merge(rec, fields, answer)
	if len(applied) == 0 {
		audit.Reason = "nothing eligible to apply"
		return rec, nil, audit
	}

	audit.Outcome = domain.EnrichmentOK
	audit.Applied = applied
	for _, f := range []string{domain.FieldDeviceType, domain.FieldOwnerName, domain.FieldOwnerEmail, domain.FieldOwnerTeam} {
		v, ok := applied[f]
		if !ok {
			continue
		}
		an.add(f, domain.SeverityInfo, domain.KindEnrichmentApplied,
			fmt.Sprintf("%s filled by enrichment (%s)", f, g.enricher.Name()),
			"Review: enriched values are suggestions, not authoritative.", v)
	}
	return out, an.entries, audit
}

// unavailableReason states a collaborator failure once, whether or not the
// error already carries the unavailable prefix
func unavailableReason(err error) string {
	msg := err.Error()
	if strings.HasPrefix(msg, unavailablePrefix) {
		return msg
	}
	return unavailablePrefix + ": " + msg
}

// checkedAnswer is a response that passed every value constraint
type checkedAnswer struct {
	deviceType domain.DeviceType
	confidence float64
	owner      string
	email      string
	team       string
}

// check validates the whole response. One bad value rejects all of it.
func (g *EnrichmentGate) check(res *domain.EnrichmentResult) (checkedAnswer, error) {
	var a checkedAnswer
	if !res.SchemaValid {
		return a, errors.New("response did not match the output schema")
	}

	if v := trimmed(res.DeviceType); v != "" {
		v = strings.ToLower(v)
		if !domain.IsAllowedDeviceType(v) {
			return a, errors.New("device_type is not allowed")
		}
		a.deviceType = domain.DeviceType(v)
	}

	a.confidence = defaultEnrichedConfidence
	if res.DeviceTypeConfidence != nil {
		c := *res.DeviceTypeConfidence
		if math.IsNaN(c) || c < 0 || c > 1 {
			return a, errors.New("device_type_confidence is outside [0, 1]")
		}
		a.confidence = c
	}
	a.confidence = math.Min(a.confidence, g.cfg.MaxConfidence)

	if v := trimmed(res.OwnerEmail); v != "" {
		email, err := validator.ParseEmail(v)
		if err != nil {
			return a, errors.New("owner_email is not a valid address")
		}
		a.email = email
	}

	if v := trimmed(res.OwnerTeam); v != "" {
		team, err := validator.ParseTeam(v)
		if err != nil {
			return a, errors.New("owner_team is not a known team")
		}
		a.team = team
	}

	if v := validator.CollapseSpace(trimmed(res.Owner)); v != "" {
		if len(v) > maxOwnerName {
			return a, fmt.Errorf("owner is longer than %d characters", maxOwnerName)
		}
		if validator.EmailRE.MatchString(v) {
			return a, errors.New("owner must be a name, not an address")
		}
		a.owner = v
	}

	return a, nil
}

// merge applies the answer to a copy of rec, only into fields that are
// still empty, not rule-sourced and not contradicted by rule evidence
func (g *EnrichmentGate) merge(rec *domain.NormalizedRecord, fields []string, a checkedAnswer) (*domain.NormalizedRecord, map[string]string) {
	out := rec.Clone()
	applied := make(map[string]string)

	if contains(fields, domain.FieldDeviceType) && a.deviceType.IsResolved() &&
		out.SourceOf(domain.FieldDeviceType) != domain.SourceRule && !out.DeviceType.IsResolved() {
		out.DeviceType = a.deviceType
		out.DeviceTypeConfidence = a.confidence
		out.SetSource(domain.FieldDeviceType, domain.SourceLLM)
		out.AddStep("llm_device_type_applied")
		applied[domain.FieldDeviceType] = string(a.deviceType)
	}

	if contains(fields, domain.AmbiguousOwner) {
		if a.owner != "" && out.OwnerName == nil && out.SourceOf(domain.FieldOwnerName) != domain.SourceRule {
			out.OwnerName = domain.StringPtr(a.owner)
			out.SetSource(domain.FieldOwnerName, domain.SourceLLM)
			out.AddStep("llm_owner_name_applied")
			applied[domain.FieldOwnerName] = a.owner
		}
		if a.email != "" && out.OwnerEmail == nil && out.SourceOf(domain.FieldOwnerEmail) != domain.SourceRule {
			out.OwnerEmail = domain.StringPtr(a.email)
			out.SetSource(domain.FieldOwnerEmail, domain.SourceLLM)
			out.AddStep("llm_owner_email_applied")
			applied[domain.FieldOwnerEmail] = a.email
		}
		if a.team != "" && out.OwnerTeam == nil && !out.TeamConflict && out.SourceOf(domain.FieldOwnerTeam) != domain.SourceRule {
			out.OwnerTeam = domain.StringPtr(a.team)
			out.SetSource(domain.FieldOwnerTeam, domain.SourceLLM)
			out.AddStep("llm_owner_team_applied")
			applied[domain.FieldOwnerTeam] = a.team
		}
	}

	return out, applied
}

// Glimpse builds the bounded context payload: non-empty raw values and the
// validated values the rules produced, each clipped
func Glimpse(raw domain.RawRecord, rec *domain.NormalizedRecord) map[string]string {
	g := make(map[string]string)
	for _, f := range []string{domain.FieldIP, domain.FieldHostname, domain.FieldFQDN, domain.FieldOwner,
		domain.FieldDeviceType, domain.FieldSite, domain.FieldNotes} {
		if v := validator.Clean(raw.Get(f)); v != "" {
			g[f] = domain.Clip(v, maxGlimpseValue)
		}
	}

	normalized := map[string]*string{
		"normalized_ip":          rec.IP,
		"normalized_hostname":    rec.Hostname,
		"normalized_fqdn":        rec.FQDN,
		"normalized_owner_email": rec.OwnerEmail,
		"normalized_owner_team":  rec.OwnerTeam,
		"normalized_site":        rec.Site,
		"subnet_cidr":            rec.SubnetCIDR,
	}
	for k, v := range normalized {
		if v != nil && *v != "" {
			g[k] = domain.Clip(*v, maxGlimpseValue)
		}
	}
	return g
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return validator.Clean(*s)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
