package service

import (
	"sync"

	"invnorm/internal/domain"
)

// Sink receives each batch of anomalies as soon as it is appended
type Sink interface {
	Flush(entries []domain.AnomalyEntry) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(entries []domain.AnomalyEntry) error

// Flush implements Sink
func (f SinkFunc) Flush(entries []domain.AnomalyEntry) error {
	return f(entries)
}

// AnomalySummary is the aggregate view of a report
type AnomalySummary struct {
	Total      int                     `json:"total"`
	BySeverity map[domain.Severity]int `json:"by_severity"`
	ByField    map[string]int          `json:"by_field"`
}

// CollectorOption configures an AnomalyCollector
type CollectorOption func(*AnomalyCollector)

// WithSink streams every append to s
func WithSink(s Sink) CollectorOption {
	return func(c *AnomalyCollector) {
		c.sink = s
	}
}

// WithoutRetention keeps only counters in memory; entries go to the sink alone
func WithoutRetention() CollectorOption {
	return func(c *AnomalyCollector) {
		c.retain = false
	}
}

// AnomalyCollector is an append-only anomaly report. Entries are never
// deduplicated or modified once appended.
type AnomalyCollector struct {
	mu         sync.Mutex
	entries    []domain.AnomalyEntry
	total      int
	bySeverity map[domain.Severity]int
	byField    map[string]int
	sink       Sink
	sinkErr    error
	retain     bool
}

// NewAnomalyCollector creates an empty collector
func NewAnomalyCollector(opts ...CollectorOption) *AnomalyCollector {
	c := &AnomalyCollector{
		bySeverity: make(map[domain.Severity]int),
		byField:    make(map[string]int),
		retain:     true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Append adds entries in order. A sink failure is returned but the entries
// are still counted and retained; later appends keep flushing.
func (c *AnomalyCollector) Append(entries ...domain.AnomalyEntry) error {
	if len(entries) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range entries {
		c.total++
		c.bySeverity[e.Severity]++
		c.byField[e.Field]++
	}
	if c.retain {
		c.entries = append(c.entries, entries...)
	}

	if c.sink == nil {
		return nil
	}
	batch := make([]domain.AnomalyEntry, len(entries))
	copy(batch, entries)
	if err := c.sink.Flush(batch); err != nil {
		if c.sinkErr == nil {
			c.sinkErr = err
		}
		return err
	}
	return nil
}

// Entries returns a copy of the retained report in append order
func (c *AnomalyCollector) Entries() []domain.AnomalyEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.AnomalyEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Count returns the total number of anomalies appended
func (c *AnomalyCollector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// CountBySeverity returns counts for every severity, including zeros
func (c *AnomalyCollector) CountBySeverity() map[domain.Severity]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[domain.Severity]int, len(domain.Severities))
	for _, s := range domain.Severities {
		out[s] = c.bySeverity[s]
	}
	return out
}

// ByField groups the retained entries by field name
func (c *AnomalyCollector) ByField() map[string][]domain.AnomalyEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string][]domain.AnomalyEntry)
	for _, e := range c.entries {
		out[e.Field] = append(out[e.Field], e)
	}
	return out
}

// Summary returns totals by severity and by field
func (c *AnomalyCollector) Summary() AnomalySummary {
	bySeverity := c.CountBySeverity()

	c.mu.Lock()
	defer c.mu.Unlock()
	byField := make(map[string]int, len(c.byField))
	for k, v := range c.byField {
		byField[k] = v
	}
	return AnomalySummary{Total: c.total, BySeverity: bySeverity, ByField: byField}
}

// SinkErr returns the first sink failure, if any
func (c *AnomalyCollector) SinkErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sinkErr
}
