package repository

import (
	"context"
	"errors"

	"invnorm/internal/domain"
)

// ErrNotFound is returned when a run does not exist
var ErrNotFound = errors.New("not found")

// RunStore defines the interface for run history persistence
type RunStore interface {
	// Write operations, called by the pipeline as a run progresses
	BeginRun(ctx context.Context, run *domain.Run) error
	AppendAnomalies(ctx context.Context, runID string, entries []domain.AnomalyEntry) error
	CompleteRun(ctx context.Context, run *domain.Run, records []*domain.NormalizedRecord, audit []domain.AuditEntry) error

	// Read operations
	ListRuns(ctx context.Context, limit int) ([]domain.Run, error)
	GetRun(ctx context.Context, id string) (*domain.Run, error)
	ListRecords(ctx context.Context, runID string) ([]*domain.NormalizedRecord, error)
	ListAnomalies(ctx context.Context, runID string, severity domain.Severity) ([]domain.AnomalyEntry, error)
	ListAudit(ctx context.Context, runID string) ([]domain.AuditEntry, error)

	// Close releases resources
	Close() error
}
