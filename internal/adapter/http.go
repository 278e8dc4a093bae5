package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"invnorm/internal/domain"
)

const (
	chatCompletionsPath = "/v1/chat/completions"
	defaultMaxTokens    = 280
	defaultHTTPTimeout  = 15 * time.Second
	maxResponseBytes    = 1 << 20
)

const systemPrompt = "You are a data-cleaning assistant for an IP address inventory.\n" +
	"Return ONLY a JSON object with keys: status, device_type, device_type_confidence, " +
	"owner, owner_email, owner_team, reasoning_short.\n" +
	"status is \"ok\" when you answer any field, otherwise \"no_update\".\n" +
	"device_type must be one of the allowed device types or null.\n" +
	"No markdown and no text outside the JSON object. If unsure use null.\n"

// Option is a functional option for configuring HTTPEnricher
type Option func(*HTTPEnricher)

// WithModel sets the model name sent with each request
func WithModel(model string) Option {
	return func(h *HTTPEnricher) {
		h.model = model
	}
}

// WithAPIKey sets the bearer token
func WithAPIKey(key string) Option {
	return func(h *HTTPEnricher) {
		h.apiKey = key
	}
}

// WithTemperature sets the sampling temperature, clamped to MaxTemperature
func WithTemperature(t float64) Option {
	return func(h *HTTPEnricher) {
		h.temperature = ClampTemperature(t)
	}
}

// WithMaxTokens bounds the completion length
func WithMaxTokens(n int) Option {
	return func(h *HTTPEnricher) {
		if n > 0 {
			h.maxTokens = n
		}
	}
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(d time.Duration) Option {
	return func(h *HTTPEnricher) {
		h.client.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPEnricher) {
		if c != nil {
			h.client = c
		}
	}
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(h *HTTPEnricher) {
		h.log = log
	}
}

// HTTPEnricher resolves ambiguous fields through an OpenAI-compatible
// chat completions endpoint
type HTTPEnricher struct {
	endpoint    string
	model       string
	apiKey      string
	temperature float64
	maxTokens   int
	client      *http.Client
	log         zerolog.Logger
}

// NewHTTPEnricher creates an enricher for the given base URL
func NewHTTPEnricher(endpoint string, opts ...Option) (*HTTPEnricher, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("enrichment endpoint is required")
	}
	if !strings.HasSuffix(endpoint, chatCompletionsPath) {
		endpoint += chatCompletionsPath
	}

	h := &HTTPEnricher{
		endpoint:    endpoint,
		temperature: 0.1,
		maxTokens:   defaultMaxTokens,
		client:      &http.Client{Timeout: defaultHTTPTimeout},
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Name returns the provider identifier
func (h *HTTPEnricher) Name() string {
	return "http"
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model,omitempty"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Text string `json:"text"`
	} `json:"choices"`
}

// userPrompt is the context payload sent as the user message
type userPrompt struct {
	Task        string                   `json:"task"`
	Instruction string                   `json:"instruction"`
	Request     domain.EnrichmentRequest `json:"context"`
}

// Resolve sends one request and decodes the structured answer
func (h *HTTPEnricher) Resolve(ctx context.Context, req domain.EnrichmentRequest) (*domain.EnrichmentResult, error) {
	temperature := h.temperature
	if req.Temperature > 0 {
		temperature = ClampTemperature(req.Temperature)
	}
	req.Temperature = temperature

	prompt, err := json.Marshal(userPrompt{
		Task:        "Resolve ambiguous inventory fields for IPAM/DNS normalization",
		Instruction: domain.ConservativeFillInstruction,
		Request:     req,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal prompt: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: h.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(prompt)},
		},
		Temperature:    temperature,
		MaxTokens:      h.maxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, unavailable("build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	start := time.Now()
	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, unavailable("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, unavailable("read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, unavailable("endpoint returned %s", resp.Status)
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return nil, h.reject(req.RowID, rejectAnswer(err, "malformed response body (%d bytes)", len(raw)))
	}
	if len(chat.Choices) == 0 {
		return nil, unavailable("response has no choices")
	}
	text := chat.Choices[0].Message.Content
	if text == "" {
		text = chat.Choices[0].Text
	}

	answer := ExtractJSON(text)
	if answer == nil {
		h.log.Debug().
			Int("row_id", req.RowID).
			Str("excerpt", domain.Clip(text, 220)).
			Msg("Reply carries no JSON object")
		return nil, rejectAnswer(nil, "no JSON object in reply (%d bytes)", len(text))
	}

	res, err := DecodeAnswer(answer)
	if err != nil {
		return nil, h.reject(req.RowID, err)
	}

	h.log.Debug().
		Int("row_id", req.RowID).
		Str("status", string(res.Status)).
		Dur("elapsed", time.Since(start)).
		Msg("Enrichment answer received")
	return res, nil
}

// reject logs the detail of a rejected answer at debug level and returns err
func (h *HTTPEnricher) reject(rowID int, err error) error {
	var ae *AnswerError
	if errors.As(err, &ae) && ae.Detail != nil {
		h.log.Debug().Err(ae.Detail).Int("row_id", rowID).Msg("Enrichment answer rejected")
	}
	return err
}
