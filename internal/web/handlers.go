// Package web provides the HTTP API serving listening data and photos to the
// site.
package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/gokaybiz/site-api/internal/lastfm"
	"github.com/gokaybiz/site-api/internal/logging"
	"github.com/gokaybiz/site-api/internal/upstream"
	"github.com/gokaybiz/site-api/internal/vsco"
)

// AllowedMethods is advertised on every API response.
const AllowedMethods = "GET, OPTIONS"

// ListeningSource produces a user's listening aggregate.
type ListeningSource interface {
	GetListeningData(ctx context.Context, user string) (*lastfm.ListeningData, error)
}

// PhotoSource produces the published photo list.
type PhotoSource interface {
	GetImages(ctx context.Context) ([]vsco.Image, error)
}

// HandlersConfig configures Handlers.
type HandlersConfig struct {
	Songs  ListeningSource
	Photos PhotoSource

	// DefaultUser is queried when a request names no user.
	DefaultUser string

	// AllowOrigin is sent as Access-Control-Allow-Origin. Empty leaves the
	// header to the CORS middleware.
	AllowOrigin string

	Logger zerolog.Logger
}

// Handlers contains the HTTP handlers of the API.
type Handlers struct {
	songs       ListeningSource
	photos      PhotoSource
	defaultUser string
	allowOrigin string
	logger      zerolog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(cfg HandlersConfig) *Handlers {
	defaultUser := cfg.DefaultUser
	if defaultUser == "" {
		defaultUser = lastfm.DefaultUser
	}

	return &Handlers{
		songs:       cfg.Songs,
		photos:      cfg.Photos,
		defaultUser: defaultUser,
		allowOrigin: cfg.AllowOrigin,
		logger:      cfg.Logger,
	}
}

// Songs serves the listening aggregate (GET /api/songs?user=<name>).
//
// Upstream failures are logged and answered with 200 and the empty
// aggregate so the widget renders an empty state.
func (h *Handlers) Songs(w http.ResponseWriter, r *http.Request) {
	if !h.accept(w, r) {
		return
	}

	user := strings.TrimSpace(r.URL.Query().Get("user"))
	if user == "" {
		user = h.defaultUser
	}

	data, err := h.songs.GetListeningData(r.Context(), user)
	if err != nil {
		h.logFailure(r, err, "lastfm").Str("user", user).Msg("serving empty listening data")
		data = lastfm.EmptyListeningData()
	}

	h.writeJSON(w, r, http.StatusOK, data)
}

// Photos serves the photo list (GET /api/photos). Failures yield [].
func (h *Handlers) Photos(w http.ResponseWriter, r *http.Request) {
	if !h.accept(w, r) {
		return
	}

	images, err := h.photos.GetImages(r.Context())
	if err != nil {
		h.logFailure(r, err, "vsco").Msg("serving empty photo list")
		images = nil
	}
	if images == nil {
		images = []vsco.Image{}
	}

	h.writeJSON(w, r, http.StatusOK, images)
}

// Health reports liveness (GET /healthz).
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// accept sets the CORS headers and handles non-GET methods. It reports
// whether the handler should go on to serve a GET.
func (h *Handlers) accept(w http.ResponseWriter, r *http.Request) bool {
	header := w.Header()
	if h.allowOrigin != "" {
		header.Set("Access-Control-Allow-Origin", h.allowOrigin)
	}
	header.Set("Access-Control-Allow-Methods", AllowedMethods)
	header.Set("Access-Control-Allow-Headers", "Content-Type")
	header.Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		return true
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return false
	default:
		header.Set("Allow", AllowedMethods)
		h.writeJSON(w, r, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
		return false
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// logFailure starts a log event for a failed upstream lookup. A missing
// credential is expected in development and logs at warn.
func (h *Handlers) logFailure(r *http.Request, err error, service string) *zerolog.Event {
	logger := logging.FromRequest(r, h.logger)

	if errors.Is(err, upstream.ErrConfigurationMissing) {
		return logger.Warn().Str("service", service).Err(err)
	}

	ev := logger.Error().Str("service", service).Err(err)

	var statusErr *upstream.StatusError
	var transportErr *upstream.TransportError
	switch {
	case errors.As(err, &statusErr):
		ev = ev.Str("kind", "status").Int("status", statusErr.Status)
	case errors.As(err, &transportErr):
		ev = ev.Str("kind", "transport")
	}
	return ev
}

func (h *Handlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := logging.FromRequest(r, h.logger)
		logger.Warn().Err(err).Msg("writing response")
	}
}

// songsLimited answers a rate-limited songs request the way an upstream
// failure is answered.
func (h *Handlers) songsLimited(w http.ResponseWriter, r *http.Request) {
	if !h.accept(w, r) {
		return
	}
	logger := logging.FromRequest(r, h.logger)
	logger.Debug().Msg("rate limited, serving empty listening data")
	h.writeJSON(w, r, http.StatusOK, lastfm.EmptyListeningData())
}

// photosLimited answers a rate-limited photos request with [].
func (h *Handlers) photosLimited(w http.ResponseWriter, r *http.Request) {
	if !h.accept(w, r) {
		return
	}
	logger := logging.FromRequest(r, h.logger)
	logger.Debug().Msg("rate limited, serving empty photo list")
	h.writeJSON(w, r, http.StatusOK, []vsco.Image{})
}
