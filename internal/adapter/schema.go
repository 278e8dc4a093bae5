package adapter

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"invnorm/internal/domain"
)

//go:embed enrichment.schema.json
var answerSchemaJSON string

const answerSchemaURL = "enrichment.schema.json"

var (
	answerSchemaOnce sync.Once
	answerSchema     *jsonschema.Schema
	answerSchemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	answerSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(answerSchemaURL, strings.NewReader(answerSchemaJSON)); err != nil {
			answerSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		answerSchema, answerSchemaErr = compiler.Compile(answerSchemaURL)
		if answerSchemaErr != nil {
			answerSchemaErr = fmt.Errorf("compile schema: %w", answerSchemaErr)
		}
	})
	return answerSchema, answerSchemaErr
}

// DecodeAnswer validates raw against the answer schema and decodes it.
// The returned result has SchemaValid set.
func DecodeAnswer(raw []byte) (*domain.EnrichmentResult, error) {
	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, rejectAnswer(err, "answer is not JSON (%d bytes)", len(raw))
	}
	if err := schema.Validate(payload); err != nil {
		return nil, rejectAnswer(err, "answer violates schema (%d bytes)", len(raw))
	}

	var res domain.EnrichmentResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, rejectAnswer(err, "answer could not be decoded (%d bytes)", len(raw))
	}
	res.SchemaValid = true
	return &res, nil
}

// ExtractJSON returns the JSON object carried by text: the whole text when
// it parses, else the first balanced {...} span. It returns nil when no
// object can be found.
func ExtractJSON(text string) []byte {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if json.Valid([]byte(text)) && strings.HasPrefix(text, "{") {
		return []byte(text)
	}

	start := strings.IndexByte(text, '{')
	for start >= 0 {
		if end := matchBrace(text, start); end > start {
			candidate := []byte(text[start : end+1])
			if json.Valid(candidate) {
				return bytes.Clone(candidate)
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil
}

// matchBrace returns the index of the brace closing text[start], skipping
// braces inside string literals, or -1
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
