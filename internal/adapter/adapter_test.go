package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invnorm/internal/codec"
	"invnorm/internal/config"
	"invnorm/internal/domain"
	"invnorm/internal/service"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "whole text", text: `{"status":"ok"}`, want: `{"status":"ok"}`},
		{name: "surrounded by prose", text: "Sure! {\"status\":\"no_update\"} hope that helps", want: `{"status":"no_update"}`},
		{name: "fenced", text: "```json\n{\"status\":\"ok\",\"owner\":\"a}b\"}\n```", want: `{"status":"ok","owner":"a}b"}`},
		{name: "nested", text: `x {"status":"ok","n":{"a":1}} y`, want: `{"status":"ok","n":{"a":1}}`},
		{name: "skips broken first object", text: `{oops} {"status":"ok"}`, want: `{"status":"ok"}`},
		{name: "empty", text: "  ", want: ""},
		{name: "no object", text: "I cannot help", want: ""},
		{name: "array is not an object", text: `[1,2]`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSON(tt.text)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestDecodeAnswer(t *testing.T) {
	t.Run("valid answer", func(t *testing.T) {
		res, err := DecodeAnswer([]byte(`{"status":"ok","device_type":"server","device_type_confidence":0.7,"owner":null,"owner_email":null,"owner_team":"ops","reasoning_short":"notes say rack"}`))
		require.NoError(t, err)
		assert.True(t, res.SchemaValid)
		assert.Equal(t, domain.EnrichmentOK, res.Status)
		require.NotNil(t, res.DeviceType)
		assert.Equal(t, "server", *res.DeviceType)
		require.NotNil(t, res.DeviceTypeConfidence)
		assert.InDelta(t, 0.7, *res.DeviceTypeConfidence, 1e-9)
		assert.Nil(t, res.Owner)
	})

	invalid := map[string]string{
		"missing status":       `{"device_type":"server"}`,
		"unknown status":       `{"status":"maybe"}`,
		"unexpected key":       `{"status":"ok","hostname":"x"}`,
		"confidence too large": `{"status":"ok","device_type_confidence":1.5}`,
		"wrong type":           `{"status":"ok","owner":42}`,
		"not json":             `status ok`,
	}
	for name, raw := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeAnswer([]byte(raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestClampTemperature(t *testing.T) {
	assert.Equal(t, 0.0, ClampTemperature(-1))
	assert.Equal(t, 0.1, ClampTemperature(0.1))
	assert.Equal(t, MaxTemperature, ClampTemperature(0.9))
}

func chatServer(t *testing.T, status int, content string, seen *chatRequest, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		assert.Equal(t, chatCompletionsPath, r.URL.Path)
		if seen != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(seen))
			seen.Messages = append(seen.Messages, chatMessage{Role: "auth", Content: r.Header.Get("Authorization")})
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
}

func sampleRequest() domain.EnrichmentRequest {
	return domain.EnrichmentRequest{
		RowID:           7,
		AmbiguousFields: []string{domain.FieldDeviceType},
		Glimpse:         map[string]string{"notes": "rack A3 hypervisor"},
		AllowedTypes:    domain.AllowedDeviceTypeNames(),
		Temperature:     0.5,
	}
}

func TestHTTPEnricher_Resolve(t *testing.T) {
	t.Run("decodes answer and clamps temperature", func(t *testing.T) {
		var seen chatRequest
		srv := chatServer(t, http.StatusOK, "Here you go: {\"status\":\"ok\",\"device_type\":\"server\"}", &seen, nil)
		defer srv.Close()

		h, err := NewHTTPEnricher(srv.URL+"/", WithAPIKey("secret"), WithModel("tiny"), WithMaxTokens(100))
		require.NoError(t, err)

		res, err := h.Resolve(context.Background(), sampleRequest())
		require.NoError(t, err)
		assert.True(t, res.SchemaValid)
		assert.Equal(t, "server", *res.DeviceType)

		assert.Equal(t, "tiny", seen.Model)
		assert.Equal(t, 100, seen.MaxTokens)
		assert.LessOrEqual(t, seen.Temperature, MaxTemperature)
		require.Len(t, seen.Messages, 3)
		assert.Equal(t, "system", seen.Messages[0].Role)
		assert.Contains(t, seen.Messages[1].Content, "rack A3 hypervisor")
		assert.Contains(t, seen.Messages[1].Content, domain.ConservativeFillInstruction)
		assert.Equal(t, "Bearer secret", seen.Messages[2].Content)
	})

	failures := []struct {
		name    string
		status  int
		content string
	}{
		{name: "server error", status: http.StatusInternalServerError},
		{name: "prose reply", status: http.StatusOK, content: "the device is probably a server"},
		{name: "schema violation", status: http.StatusOK, content: `{"status":"ok","device_type":["server"]}`},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			srv := chatServer(t, tt.status, tt.content, nil, nil)
			defer srv.Close()

			h, err := NewHTTPEnricher(srv.URL)
			require.NoError(t, err)
			_, err = h.Resolve(context.Background(), sampleRequest())
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}

	t.Run("context deadline", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()

		h, err := NewHTTPEnricher(srv.URL)
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err = h.Resolve(ctx, sampleRequest())
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("empty endpoint", func(t *testing.T) {
		_, err := NewHTTPEnricher(" ")
		assert.Error(t, err)
	})
}

func TestRejectedReplyStaysOutOfAuditLog(t *testing.T) {
	tests := []struct {
		name    string
		content string
		secret  string
		class   string
	}{
		{
			name:    "prose reply",
			content: "SECRET-MODEL-PROSE I think this is a camera owned by Alice",
			secret:  "SECRET-MODEL-PROSE",
			class:   "no JSON object in reply",
		},
		{
			name:    "unexpected property",
			content: `{"status":"ok","SECRET-KEY-NAME":"SECRET-VALUE"}`,
			secret:  "SECRET-",
			class:   "answer violates schema",
		},
		{
			name:    "wrong value type",
			content: `{"status":"ok","owner":["SECRET-OWNER"]}`,
			secret:  "SECRET-OWNER",
			class:   "answer violates schema",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := chatServer(t, http.StatusOK, tt.content, nil, nil)
			defer srv.Close()

			h, err := NewHTTPEnricher(srv.URL)
			require.NoError(t, err)
			gate := service.NewEnrichmentGate(h, service.DefaultGateConfig(), zerolog.Nop())

			raw := domain.RawRecord{RowID: 1, Fields: map[string]string{
				domain.FieldIP:       "192.168.1.255",
				domain.FieldHostname: "bcast",
				domain.FieldNotes:    "Potential broadcast",
			}}
			rec, _ := service.NewNormalizer().Normalize(raw)

			out, anomalies, audit := gate.Enrich(context.Background(), raw, rec)
			assert.Same(t, rec, out)
			require.NotNil(t, audit)
			require.Len(t, anomalies, 1)

			reason := anomalies[0].Reason
			assert.Contains(t, reason, tt.class)
			assert.Equal(t, 1, strings.Count(reason, "enrichment unavailable"), reason)
			assert.NotContains(t, reason, tt.secret)
			assert.NotContains(t, anomalies[0].Value, tt.secret)

			var buf bytes.Buffer
			require.NoError(t, codec.NewAuditWriter(codec.AuditMeta{Provider: h.Name()}).
				Write([]domain.AuditEntry{*audit}, &buf))
			assert.Contains(t, buf.String(), tt.class)
			assert.NotContains(t, buf.String(), tt.secret)
		})
	}
}

func TestAnswerErrorKeepsDetailOutOfMessage(t *testing.T) {
	_, err := DecodeAnswer([]byte(`{"status":"ok","SECRET-KEY":1}`))
	require.Error(t, err)

	var ae *AnswerError
	require.ErrorAs(t, err, &ae)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotContains(t, err.Error(), "SECRET-KEY")
	require.Error(t, ae.Detail)
}

func TestStaticEnricher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answers.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "7": {"status": "ok", "owner_team": "ops"},
  "8": {"status": "ok", "device_type": 3}
}`), 0o644))

	s, err := LoadStaticEnricher(path)
	require.NoError(t, err)
	assert.Equal(t, "static", s.Name())

	res, err := s.Resolve(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "ops", *res.OwnerTeam)

	req := sampleRequest()
	req.RowID = 8
	_, err = s.Resolve(context.Background(), req)
	assert.ErrorIs(t, err, ErrUnavailable)

	req.RowID = 9
	_, err = s.Resolve(context.Background(), req)
	assert.ErrorIs(t, err, ErrUnavailable)

	t.Run("bad key", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{"row-1": {"status":"ok"}}`), 0o644))
		_, err := LoadStaticEnricher(bad)
		assert.Error(t, err)
	})
}

func TestNew(t *testing.T) {
	log := zerolog.Nop()

	e, err := New(config.EnrichmentConfig{Enabled: false}, "", log)
	require.NoError(t, err)
	assert.Nil(t, e)

	e, err = New(config.EnrichmentConfig{Enabled: true, Provider: config.ProviderHTTP, Endpoint: "http://127.0.0.1:1", Temperature: 0.1}, "k", log)
	require.NoError(t, err)
	assert.Equal(t, "http", e.Name())

	_, err = New(config.EnrichmentConfig{Enabled: true, Provider: "carrier-pigeon"}, "", log)
	assert.Error(t, err)
}
