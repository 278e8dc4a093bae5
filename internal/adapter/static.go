package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"invnorm/internal/domain"
)

// StaticEnricher answers from a fixed table of raw JSON answers keyed by
// row id. Rows without an entry are reported as unavailable.
type StaticEnricher struct {
	answers map[int]json.RawMessage
}

// NewStaticEnricher creates an enricher from in-memory answers
func NewStaticEnricher(answers map[int]json.RawMessage) *StaticEnricher {
	if answers == nil {
		answers = make(map[int]json.RawMessage)
	}
	return &StaticEnricher{answers: answers}
}

// LoadStaticEnricher reads a JSON object mapping row ids to answers
func LoadStaticEnricher(path string) (*StaticEnricher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read static answers: %w", err)
	}

	var byKey map[string]json.RawMessage
	if err := json.Unmarshal(data, &byKey); err != nil {
		return nil, fmt.Errorf("parse static answers: %w", err)
	}

	answers := make(map[int]json.RawMessage, len(byKey))
	for key, raw := range byKey {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("static answer key %q is not a row id", key)
		}
		answers[id] = raw
	}
	return NewStaticEnricher(answers), nil
}

// Name returns the provider identifier
func (s *StaticEnricher) Name() string {
	return "static"
}

// Resolve returns the stored answer for the row
func (s *StaticEnricher) Resolve(ctx context.Context, req domain.EnrichmentRequest) (*domain.EnrichmentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("%v", err)
	}
	raw, ok := s.answers[req.RowID]
	if !ok {
		return nil, unavailable("no static answer for row %d", req.RowID)
	}
	return DecodeAnswer(raw)
}
