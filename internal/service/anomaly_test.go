package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invnorm/internal/domain"
)

func TestAnomalyCollector(t *testing.T) {
	c := NewAnomalyCollector()

	a := domain.NewAnomaly(1, domain.FieldIP, domain.SeverityError, domain.KindFieldInvalid, "bad", "fix", "x")
	b := domain.NewAnomaly(2, domain.FieldIP, domain.SeverityError, domain.KindFieldInvalid, "bad", "fix", "x")
	d := domain.NewAnomaly(2, domain.FieldSite, domain.SeverityInfo, domain.KindFieldMissing, "empty", "fill", "")

	require.NoError(t, c.Append(a))
	require.NoError(t, c.Append(b, d))
	require.NoError(t, c.Append())

	// Identical entries on different rows are both kept
	assert.Equal(t, 3, c.Count())
	assert.Equal(t, []domain.AnomalyEntry{a, b, d}, c.Entries())
	assert.Equal(t, map[domain.Severity]int{
		domain.SeverityError:   2,
		domain.SeverityWarning: 0,
		domain.SeverityInfo:    1,
	}, c.CountBySeverity())

	byField := c.ByField()
	assert.Len(t, byField[domain.FieldIP], 2)
	assert.Len(t, byField[domain.FieldSite], 1)

	summary := c.Summary()
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.ByField[domain.FieldIP])
}

func TestAnomalyCollectorEntriesAreCopies(t *testing.T) {
	c := NewAnomalyCollector()
	require.NoError(t, c.Append(domain.NewAnomaly(1, "ip", domain.SeverityError, domain.KindFieldInvalid, "bad", "fix", "")))

	entries := c.Entries()
	entries[0].Reason = "changed"
	assert.Equal(t, "bad", c.Entries()[0].Reason)
}

func TestAnomalyCollectorStreaming(t *testing.T) {
	var flushed [][]domain.AnomalyEntry
	sink := SinkFunc(func(entries []domain.AnomalyEntry) error {
		flushed = append(flushed, entries)
		return nil
	})

	c := NewAnomalyCollector(WithSink(sink), WithoutRetention())
	require.NoError(t, c.Append(domain.NewAnomaly(1, "ip", domain.SeverityError, domain.KindFieldInvalid, "bad", "fix", "")))
	require.NoError(t, c.Append(domain.NewAnomaly(2, "site", domain.SeverityInfo, domain.KindFieldMissing, "empty", "fill", "")))

	assert.Len(t, flushed, 2)
	assert.Empty(t, c.Entries())
	assert.Equal(t, 2, c.Count())
	assert.Equal(t, 1, c.CountBySeverity()[domain.SeverityInfo])
}

func TestAnomalyCollectorSinkError(t *testing.T) {
	boom := errors.New("disk full")
	c := NewAnomalyCollector(WithSink(SinkFunc(func([]domain.AnomalyEntry) error { return boom })))

	err := c.Append(domain.NewAnomaly(1, "ip", domain.SeverityError, domain.KindFieldInvalid, "bad", "fix", ""))
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, c.SinkErr(), boom)
	assert.Equal(t, 1, c.Count())
	assert.Len(t, c.Entries(), 1)
}
