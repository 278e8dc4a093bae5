package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"invnorm/internal/domain"
)

// RunRecorder persists runs as they progress
type RunRecorder interface {
	BeginRun(ctx context.Context, run *domain.Run) error
	AppendAnomalies(ctx context.Context, runID string, entries []domain.AnomalyEntry) error
	CompleteRun(ctx context.Context, run *domain.Run, records []*domain.NormalizedRecord, audit []domain.AuditEntry) error
}

// RunResult is everything a run produced, ordered by row id
type RunResult struct {
	Run       domain.Run
	Records   []*domain.NormalizedRecord
	Anomalies []domain.AnomalyEntry
	Audit     []domain.AuditEntry
	Summary   AnomalySummary
}

// PipelineOption configures a Pipeline
type PipelineOption func(*Pipeline)

// WithWorkers bounds the number of rows processed concurrently
func WithWorkers(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithEventBus publishes run progress on bus
func WithEventBus(bus *EventBus) PipelineOption {
	return func(p *Pipeline) {
		p.bus = bus
	}
}

// WithRecorder persists runs through r
func WithRecorder(r RunRecorder) PipelineOption {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// WithLogger sets the pipeline logger
func WithLogger(l zerolog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.log = l
	}
}

// Pipeline runs normalization and enrichment over a batch
type Pipeline struct {
	normalizer *Normalizer
	gate       *EnrichmentGate
	bus        *EventBus
	recorder   RunRecorder
	workers    int
	log        zerolog.Logger
}

// NewPipeline creates a pipeline. gate may be nil to skip enrichment.
func NewPipeline(normalizer *Normalizer, gate *EnrichmentGate, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		normalizer: normalizer,
		gate:       gate,
		workers:    4,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// rowResult is the output of one worker
type rowResult struct {
	record    *domain.NormalizedRecord
	anomalies []domain.AnomalyEntry
	audit     *domain.AuditEntry
}

// Run normalizes every row of batch. Row and field failures become
// anomalies; only cancellation of ctx aborts the run. An empty batch
// completes with no records.
func (p *Pipeline) Run(ctx context.Context, batch domain.Batch) (*RunResult, error) {
	run := domain.Run{
		ID:        uuid.NewString(),
		Source:    batch.Source,
		Status:    domain.RunRunning,
		StartedAt: time.Now().UTC(),
		Rows:      batch.Rows(),
	}
	log := p.log.With().Str("run_id", run.ID).Logger()

	if p.recorder != nil {
		if err := p.recorder.BeginRun(ctx, &run); err != nil {
			return nil, fmt.Errorf("begin run: %w", err)
		}
	}

	p.bus.Publish(Event{
		Type:    EventRunStarted,
		Payload: map[string]interface{}{"run_id": run.ID, "source": run.Source, "rows": run.Rows},
	})
	log.Info().Str("source", batch.Source).Int("rows", run.Rows).Msg("Run started")

	results, err := p.process(ctx, run.ID, batch.Records)
	if err != nil {
		p.fail(&run, err, log)
		return nil, fmt.Errorf("run %s: %w", run.ID, err)
	}

	collectorOpts := []CollectorOption{}
	if p.recorder != nil {
		collectorOpts = append(collectorOpts, WithSink(SinkFunc(func(entries []domain.AnomalyEntry) error {
			return p.recorder.AppendAnomalies(ctx, run.ID, entries)
		})))
	}
	collector := NewAnomalyCollector(collectorOpts...)

	result := &RunResult{Records: make([]*domain.NormalizedRecord, 0, len(results))}
	for _, group := range mergeByRow(results, batch.Rejected) {
		if err := collector.Append(group...); err != nil {
			log.Warn().Err(err).Msg("Failed to persist anomalies")
		}
	}
	for _, r := range results {
		result.Records = append(result.Records, r.record)
		if r.audit != nil {
			result.Audit = append(result.Audit, *r.audit)
			if r.audit.Outcome == domain.EnrichmentOK {
				run.Enriched++
			}
		}
	}

	result.Anomalies = collector.Entries()
	result.Summary = collector.Summary()

	completed := time.Now().UTC()
	run.CompletedAt = &completed
	run.Status = domain.RunCompleted
	run.Anomalies = result.Summary.Total
	run.BySeverity = result.Summary.BySeverity
	run.ByField = result.Summary.ByField
	if err := collector.SinkErr(); err != nil {
		run.Error = "anomaly persistence: " + err.Error()
	}

	if p.recorder != nil {
		if err := p.recorder.CompleteRun(ctx, &run, result.Records, result.Audit); err != nil {
			log.Error().Err(err).Msg("Failed to persist run")
			run.Error = "run persistence: " + err.Error()
		}
	}
	result.Run = run

	p.bus.Publish(Event{Type: EventRunCompleted, Payload: run})
	log.Info().
		Int("rows", run.Rows).
		Int("anomalies", run.Anomalies).
		Int("enriched", run.Enriched).
		Dur("elapsed", completed.Sub(run.StartedAt)).
		Msg("Run completed")

	return result, nil
}

// process runs every row on the worker pool; results keep input order
func (p *Pipeline) process(ctx context.Context, runID string, records []domain.RawRecord) ([]rowResult, error) {
	results := make([]rowResult, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, raw := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			rec, anomalies := p.normalizer.Normalize(raw)
			if p.gate != nil {
				enriched, more, audit := p.gate.Enrich(gctx, raw, rec)
				rec = enriched
				anomalies = append(anomalies, more...)
				results[i].audit = audit
				if audit != nil {
					p.bus.Publish(Event{
						Type:    EventEnrichmentAttempted,
						Payload: map[string]interface{}{"run_id": runID, "row_id": raw.RowID, "outcome": audit.Outcome},
					})
				}
			}
			results[i].record = rec
			results[i].anomalies = anomalies

			p.bus.Publish(Event{
				Type:    EventRowNormalized,
				Payload: map[string]interface{}{"run_id": runID, "row_id": raw.RowID, "anomalies": len(anomalies)},
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].record.RowID < results[j].record.RowID
	})
	return results, nil
}

// mergeByRow interleaves per-row anomalies with rejected-row anomalies in
// row-id order, one group per row
func mergeByRow(results []rowResult, rejected []domain.AnomalyEntry) [][]domain.AnomalyEntry {
	type group struct {
		rowID   int
		entries []domain.AnomalyEntry
	}
	groups := make([]group, 0, len(results)+len(rejected))
	for _, r := range results {
		groups = append(groups, group{rowID: r.record.RowID, entries: r.anomalies})
	}
	for _, a := range rejected {
		groups = append(groups, group{rowID: a.RowID, entries: []domain.AnomalyEntry{a}})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].rowID < groups[j].rowID
	})

	out := make([][]domain.AnomalyEntry, 0, len(groups))
	for _, g := range groups {
		if len(g.entries) > 0 {
			out = append(out, g.entries)
		}
	}
	return out
}

func (p *Pipeline) fail(run *domain.Run, err error, log zerolog.Logger) {
	completed := time.Now().UTC()
	run.CompletedAt = &completed
	run.Status = domain.RunFailed
	run.Error = err.Error()

	if p.recorder != nil {
		// The caller's context may be the reason we failed
		if rerr := p.recorder.CompleteRun(context.Background(), run, nil, nil); rerr != nil {
			log.Error().Err(rerr).Msg("Failed to persist failed run")
		}
	}
	p.bus.Publish(Event{Type: EventRunFailed, Payload: *run})
	log.Error().Err(err).Msg("Run failed")
}
