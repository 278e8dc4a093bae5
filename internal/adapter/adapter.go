package adapter

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"invnorm/internal/config"
	"invnorm/internal/service"
)

// ErrUnavailable wraps every failure to produce a structured answer
var ErrUnavailable = errors.New("enrichment unavailable")

// MaxTemperature is the hard ceiling on sampling temperature
const MaxTemperature = 0.2

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}

// AnswerError is a rejected collaborator answer. Error carries only a
// classification; Detail may quote collaborator output and must only be
// logged at debug level.
type AnswerError struct {
	Class  string
	Detail error
}

func (e *AnswerError) Error() string {
	return ErrUnavailable.Error() + ": " + e.Class
}

func (e *AnswerError) Unwrap() error {
	return ErrUnavailable
}

func rejectAnswer(detail error, format string, args ...any) error {
	return &AnswerError{Class: fmt.Sprintf(format, args...), Detail: detail}
}

// ClampTemperature bounds t to [0, MaxTemperature]
func ClampTemperature(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > MaxTemperature {
		return MaxTemperature
	}
	return t
}

// New builds the collaborator selected by cfg. It returns nil when
// enrichment is disabled.
func New(cfg config.EnrichmentConfig, apiKey string, log zerolog.Logger) (service.Enricher, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Provider {
	case config.ProviderHTTP:
		opts := []Option{
			WithModel(cfg.Model),
			WithTemperature(cfg.Temperature),
			WithMaxTokens(cfg.MaxTokens),
			WithLogger(log),
		}
		if apiKey != "" {
			opts = append(opts, WithAPIKey(apiKey))
		}
		if d := cfg.Timeout.Duration(); d > 0 {
			opts = append(opts, WithTimeout(d+time.Second))
		}
		h, err := NewHTTPEnricher(cfg.Endpoint, opts...)
		if err != nil {
			return nil, err
		}
		return h, nil
	case config.ProviderStatic:
		s, err := LoadStaticEnricher(cfg.StaticPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown enrichment provider %q", cfg.Provider)
	}
}
