package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invnorm/internal/domain"
	"invnorm/internal/logger"
)

// fakeEnricher returns a fixed answer and counts calls
type fakeEnricher struct {
	result *domain.EnrichmentResult
	err    error
	block  bool
	calls  atomic.Int32

	mu   sync.Mutex
	last domain.EnrichmentRequest
}

func (f *fakeEnricher) Name() string { return "fake" }

func (f *fakeEnricher) Resolve(ctx context.Context, req domain.EnrichmentRequest) (*domain.EnrichmentResult, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.result, f.err
}

func okResult(deviceType string, confidence float64, owner, email, team string) *domain.EnrichmentResult {
	return &domain.EnrichmentResult{
		Status:               domain.EnrichmentOK,
		DeviceType:           &deviceType,
		DeviceTypeConfidence: &confidence,
		Owner:                &owner,
		OwnerEmail:           &email,
		OwnerTeam:            &team,
		ReasoningShort:       "notes mention a camera",
		SchemaValid:          true,
	}
}

func newTestGate(e Enricher) *EnrichmentGate {
	return NewEnrichmentGate(e, DefaultGateConfig(), logger.NewTestLogger())
}

func broadcastRow() domain.RawRecord {
	return rawRow(12, map[string]string{
		"ip":          "192.168.1.255",
		"hostname":    "bcast",
		"device_type": "",
		"owner":       "",
		"notes":       "Potential broadcast",
	})
}

func TestEnrichmentEndToEndScenario(t *testing.T) {
	raw := broadcastRow()
	rec, _ := NewNormalizer().Normalize(raw)

	fake := &fakeEnricher{result: okResult("camera", 0.8, "Alice", "alice@example.com", "devops")}
	gate := newTestGate(fake)

	assert.Equal(t, []string{domain.FieldDeviceType, domain.AmbiguousOwner}, gate.AmbiguousFields(rec))

	out, anomalies, audit := gate.Enrich(context.Background(), raw, rec)

	assert.Equal(t, int32(1), fake.calls.Load())
	assert.Equal(t, domain.DeviceTypeCamera, out.DeviceType)
	assert.InDelta(t, 0.8, out.DeviceTypeConfidence, 1e-9)
	assert.Equal(t, "Alice", domain.Deref(out.OwnerName))
	assert.Equal(t, "alice@example.com", domain.Deref(out.OwnerEmail))
	assert.Equal(t, "devops", domain.Deref(out.OwnerTeam))
	for _, f := range domain.EnrichableFields {
		assert.Equal(t, domain.SourceLLM, out.SourceOf(f), f)
	}

	// The rule output is untouched
	assert.Equal(t, domain.DeviceTypeUnknown, rec.DeviceType)
	assert.Nil(t, rec.OwnerName)

	require.NotNil(t, audit)
	assert.Equal(t, domain.EnrichmentOK, audit.Outcome)
	assert.Equal(t, "camera", audit.Applied[domain.FieldDeviceType])
	assert.Equal(t, domain.ConservativeFillInstruction, audit.Instruction)
	assert.Len(t, anomalies, 4)
	for _, a := range anomalies {
		assert.Equal(t, domain.KindEnrichmentApplied, a.Kind)
	}

	// The glimpse carries raw and validated values only
	assert.Equal(t, "Potential broadcast", fake.last.Glimpse["notes"])
	assert.Equal(t, "192.168.1.0/24", fake.last.Glimpse["subnet_cidr"])
	assert.Contains(t, fake.last.AllowedTypes, "wireless-ap")
}

func TestEnrichmentNeverOverridesRules(t *testing.T) {
	raw := rawRow(1, map[string]string{"ip": "10.0.0.9", "device_type": "switch", "owner": "jane@example.com"})
	rec, _ := NewNormalizer().Normalize(raw)

	fake := &fakeEnricher{result: okResult("camera", 0.8, "Alice", "alice@example.com", "devops")}
	gate := newTestGate(fake)

	// Name was derived from the email, so nothing is ambiguous
	assert.Empty(t, gate.AmbiguousFields(rec))

	out, anomalies, audit := gate.Enrich(context.Background(), raw, rec)
	assert.Same(t, rec, out)
	assert.Nil(t, anomalies)
	assert.Nil(t, audit)
	assert.Equal(t, int32(0), fake.calls.Load())
	assert.Equal(t, domain.DeviceTypeSwitch, out.DeviceType)
}

func TestEnrichmentRuleDeviceTypeKeptWhenOwnerEnriched(t *testing.T) {
	raw := rawRow(1, map[string]string{"device_type": "switch"})
	rec, _ := NewNormalizer().Normalize(raw)

	fake := &fakeEnricher{result: okResult("camera", 0.8, "Alice", "", "")}
	out, _, audit := newTestGate(fake).Enrich(context.Background(), raw, rec)

	assert.Equal(t, domain.DeviceTypeSwitch, out.DeviceType)
	assert.Equal(t, 1.0, out.DeviceTypeConfidence)
	assert.Equal(t, domain.SourceRule, out.SourceOf(domain.FieldDeviceType))
	assert.Equal(t, "Alice", domain.Deref(out.OwnerName))
	assert.Equal(t, domain.SourceLLM, out.SourceOf(domain.FieldOwnerName))
	require.NotNil(t, audit)
	assert.NotContains(t, audit.Applied, domain.FieldDeviceType)
}

func TestEnrichmentRejections(t *testing.T) {
	tests := []struct {
		name   string
		result *domain.EnrichmentResult
		err    error
		reason string
		anom   bool
	}{
		{"disallowed device type", okResult("toaster", 0.8, "Alice", "", ""), nil, "not allowed", true},
		{"bad email", okResult("camera", 0.8, "Alice", "alice at example", ""), nil, "owner_email", true},
		{"unknown team", okResult("camera", 0.8, "Alice", "", "marketing"), nil, "not a known team", true},
		{"confidence out of range", okResult("camera", 1.7, "", "", ""), nil, "outside", true},
		{"collaborator error", nil, errors.New("connection refused"), "unavailable", true},
		{"explicit no_update", &domain.EnrichmentResult{Status: domain.EnrichmentNoUpdate, SchemaValid: true}, nil, "no_update", false},
		{"schema mismatch", func() *domain.EnrichmentResult {
			r := okResult("camera", 0.8, "", "", "")
			r.SchemaValid = false
			return r
		}(), nil, "schema", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := broadcastRow()
			rec, _ := NewNormalizer().Normalize(raw)
			before := rec.Clone()

			fake := &fakeEnricher{result: tt.result, err: tt.err}
			out, anomalies, audit := newTestGate(fake).Enrich(context.Background(), raw, rec)

			assert.Same(t, rec, out)
			assert.Equal(t, before, rec)
			require.NotNil(t, audit)
			assert.Equal(t, domain.EnrichmentNoUpdate, audit.Outcome)
			assert.Contains(t, audit.Reason, tt.reason)
			if tt.anom {
				require.Len(t, anomalies, 1)
				assert.Equal(t, domain.KindEnrichmentUnavailable, anomalies[0].Kind)
				assert.Equal(t, domain.SeverityInfo, anomalies[0].Severity)
			} else {
				assert.Empty(t, anomalies)
			}
		})
	}
}

func TestEnrichmentTimeout(t *testing.T) {
	raw := broadcastRow()
	rec, _ := NewNormalizer().Normalize(raw)

	cfg := DefaultGateConfig()
	cfg.Timeout = 20 * time.Millisecond
	fake := &fakeEnricher{block: true}
	gate := NewEnrichmentGate(fake, cfg, logger.NewTestLogger())

	start := time.Now()
	out, anomalies, audit := gate.Enrich(context.Background(), raw, rec)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Same(t, rec, out)
	require.Len(t, anomalies, 1)
	assert.Equal(t, domain.KindEnrichmentUnavailable, anomalies[0].Kind)
	assert.Equal(t, domain.EnrichmentNoUpdate, audit.Outcome)
	assert.Equal(t, int32(1), fake.calls.Load())
}

func TestEnrichmentConfidenceCapped(t *testing.T) {
	raw := broadcastRow()
	rec, _ := NewNormalizer().Normalize(raw)

	fake := &fakeEnricher{result: okResult("camera", 0.99, "", "", "")}
	out, _, _ := newTestGate(fake).Enrich(context.Background(), raw, rec)

	assert.Equal(t, domain.DeviceTypeCamera, out.DeviceType)
	assert.InDelta(t, 0.9, out.DeviceTypeConfidence, 1e-9)
	assert.Less(t, out.DeviceTypeConfidence, 1.0)
}

func TestEnrichmentSkipsConflictingTeam(t *testing.T) {
	raw := rawRow(1, map[string]string{"device_type": "server", "owner": "ops / security"})
	rec, _ := NewNormalizer().Normalize(raw)
	require.True(t, rec.TeamConflict)

	fake := &fakeEnricher{result: okResult("server", 0.8, "Alice", "", "devops")}
	out, _, audit := newTestGate(fake).Enrich(context.Background(), raw, rec)

	assert.Equal(t, "Alice", domain.Deref(out.OwnerName))
	assert.Nil(t, out.OwnerTeam)
	assert.Equal(t, domain.SourceUnresolved, out.SourceOf(domain.FieldOwnerTeam))
	assert.NotContains(t, audit.Applied, domain.FieldOwnerTeam)
}

func TestEnrichmentDisabled(t *testing.T) {
	raw := broadcastRow()
	rec, _ := NewNormalizer().Normalize(raw)

	gate := newTestGate(nil)
	assert.False(t, gate.Enabled())

	out, anomalies, audit := gate.Enrich(context.Background(), raw, rec)
	assert.Same(t, rec, out)
	assert.Nil(t, anomalies)
	assert.Nil(t, audit)
}

func TestGlimpseIsBounded(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	raw := rawRow(1, map[string]string{"notes": string(long), "owner": "n/a"})
	rec, _ := NewNormalizer().Normalize(raw)

	g := Glimpse(raw, rec)
	assert.LessOrEqual(t, len(g["notes"]), maxGlimpseValue)
	assert.NotContains(t, g, "owner")
}
