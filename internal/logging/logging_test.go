package logging

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "json", Output: &buf})

	logger.Debug().Msg("hidden")
	logger.Info().Str("k", "v").Msg("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "shown", line["message"])
	assert.Equal(t, "v", line["k"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf})

	var inner zerolog.Logger
	handler := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = FromRequest(r, zerolog.Nop())
		w.WriteHeader(http.StatusTeapot)
	}))

	t.Run("generates request id", func(t *testing.T) {
		buf.Reset()
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/songs", nil))

		assert.Equal(t, http.StatusTeapot, rr.Code)
		assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
		assert.Contains(t, buf.String(), `"status":418`)
		assert.Contains(t, buf.String(), `"path":"/api/songs"`)
		assert.NotEqual(t, zerolog.Disabled, inner.GetLevel())
	})

	t.Run("keeps incoming request id", func(t *testing.T) {
		buf.Reset()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, "abc-123", rr.Header().Get(RequestIDHeader))
		assert.Contains(t, buf.String(), `"request_id":"abc-123"`)
	})
}

func TestFromRequest_Fallback(t *testing.T) {
	var buf bytes.Buffer
	fallback := zerolog.New(&buf)

	got := FromRequest(httptest.NewRequest(http.MethodGet, "/", nil), fallback)
	got.Info().Msg("via fallback")

	assert.Contains(t, buf.String(), "via fallback")
}
