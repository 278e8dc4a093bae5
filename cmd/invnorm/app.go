package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"invnorm/internal/adapter"
	"invnorm/internal/codec"
	"invnorm/internal/config"
	"invnorm/internal/domain"
	"invnorm/internal/logger"
	"invnorm/internal/repository/sqlite"
	"invnorm/internal/service"
)

// app holds the wiring shared by every command
type app struct {
	cfg *config.Config
	log zerolog.Logger
	bus *service.EventBus

	// store is nil when run history is disabled
	store *sqlite.Repository

	// pipeline records runs, ephemeral never touches the store
	pipeline  *service.Pipeline
	ephemeral *service.Pipeline

	importer codec.Importer
	provider string
}

func newApp(cfg *config.Config) (*app, error) {
	log := logger.WithComponent("invnorm")
	a := &app{
		cfg:      cfg,
		log:      log,
		bus:      service.NewEventBus(),
		importer: codec.NewCSVCodec(),
		provider: "none",
	}

	enricher, err := adapter.New(cfg.Enrichment, cfg.APIKey(), logger.WithComponent("enrichment"))
	if err != nil {
		return nil, fmt.Errorf("enrichment: %w", err)
	}

	var gate *service.EnrichmentGate
	if enricher != nil {
		a.provider = enricher.Name()
		gate = service.NewEnrichmentGate(enricher, service.GateConfig{
			Threshold:     cfg.Enrichment.ConfidenceThreshold,
			MaxConfidence: cfg.Enrichment.MaxConfidence,
			Timeout:       cfg.Enrichment.Timeout.Duration(),
			Temperature:   adapter.ClampTemperature(cfg.Enrichment.Temperature),
		}, logger.WithComponent("gate"))
	}

	normalizer := service.NewNormalizer()
	opts := []service.PipelineOption{
		service.WithWorkers(cfg.Normalizer.Workers),
		service.WithEventBus(a.bus),
		service.WithLogger(logger.WithComponent("pipeline")),
	}

	if cfg.Database.Path != "" {
		store, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open run history: %w", err)
		}
		a.store = store
		log.Debug().Str("path", cfg.Database.Path).Msg("Run history enabled")
		a.pipeline = service.NewPipeline(normalizer, gate, append(opts, service.WithRecorder(store))...)
	} else {
		a.pipeline = service.NewPipeline(normalizer, gate, opts...)
	}

	a.ephemeral = service.NewPipeline(normalizer, gate,
		service.WithWorkers(cfg.Normalizer.Workers),
		service.WithLogger(logger.WithComponent("pipeline")),
	)
	return a, nil
}

// Close releases the run history database
func (a *app) Close() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Close run history")
	}
}

func (a *app) artifactPaths() codec.ArtifactPaths {
	out := a.cfg.Output
	return codec.ArtifactPaths{
		CleanCSV:  a.cfg.OutputPath(out.CleanCSV),
		Anomalies: a.cfg.OutputPath(out.Anomalies),
		AuditLog:  a.cfg.OutputPath(out.AuditLog),
		YAML:      a.cfg.OutputPath(out.YAML),
		JSON:      a.cfg.OutputPath(out.JSON),
	}
}

// runFile normalizes one CSV file and writes the run artifacts
func (a *app) runFile(ctx context.Context, path string) (*service.RunResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	batch, err := a.importer.Parse(f, path)
	if err != nil {
		return nil, fmt.Errorf("parse %s %s: %w", a.importer.Format(), path, err)
	}

	result, err := a.pipeline.Run(ctx, *batch)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(a.cfg.Output.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	err = codec.WriteArtifacts(a.artifactPaths(), codec.Artifacts{
		Records:   result.Records,
		Anomalies: result.Anomalies,
		Audit:     result.Audit,
		AuditMeta: codec.AuditMeta{
			Provider:    a.provider,
			Temperature: adapter.ClampTemperature(a.cfg.Enrichment.Temperature),
			GeneratedAt: time.Now().UTC(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("write artifacts: %w", err)
	}

	return result, nil
}

func printSummary(w io.Writer, result *service.RunResult, paths codec.ArtifactPaths) {
	fmt.Fprintf(w, "Run %s: %d rows, %d anomalies, %d enriched\n",
		result.Run.ID, result.Run.Rows, result.Summary.Total, result.Run.Enriched)

	if result.Summary.Total > 0 {
		rows := [][]string{{"severity", "count"}}
		for _, sev := range domain.Severities {
			if n := result.Summary.BySeverity[sev]; n > 0 {
				rows = append(rows, []string{string(sev), strconv.Itoa(n)})
			}
		}
		printTable(w, rows)

		fields := make([]string, 0, len(result.Summary.ByField))
		for f := range result.Summary.ByField {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		rows = [][]string{{"field", "count"}}
		for _, f := range fields {
			rows = append(rows, []string{f, strconv.Itoa(result.Summary.ByField[f])})
		}
		printTable(w, rows)
	}

	for _, p := range []string{paths.CleanCSV, paths.Anomalies, paths.AuditLog, paths.YAML, paths.JSON} {
		if p != "" {
			fmt.Fprintf(w, "  wrote %s\n", p)
		}
	}
}

func printRuns(w io.Writer, runs []domain.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	rows := [][]string{{"id", "started", "status", "rows", "anomalies", "enriched", "source"}}
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			string(r.Status),
			strconv.Itoa(r.Rows),
			strconv.Itoa(r.Anomalies),
			strconv.Itoa(r.Enriched),
			r.Source,
		})
	}
	printTable(w, rows)
}

func printTable(w io.Writer, rows [][]string) {
	for _, line := range codec.RenderTable(rows) {
		fmt.Fprintln(w, line)
	}
}

func printAnomalies(w io.Writer, anomalies []domain.AnomalyEntry) {
	if len(anomalies) == 0 {
		fmt.Fprintln(w, "No anomalies")
		return
	}
	rows := [][]string{{"row", "field", "severity", "reason", "remediation"}}
	for _, an := range anomalies {
		rows = append(rows, []string{
			strconv.Itoa(an.RowID),
			an.Field,
			string(an.Severity),
			an.Reason,
			an.Remediation,
		})
	}
	printTable(w, rows)
}
