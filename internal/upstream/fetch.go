package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/gokaybiz/site-api/internal/metrics"
)

const (
	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 10 * time.Second

	userAgent    = "site-api/1.0"
	maxBodyBytes = 10 << 20
)

// BreakerSettings configures the per-service circuit breaker.
type BreakerSettings struct {
	// ConsecutiveFailures opens the breaker after this many exhausted calls in
	// a row. Zero disables the breaker.
	ConsecutiveFailures uint32

	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// DefaultBreakerSettings opens after 5 consecutive failed calls for 30s.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
	}
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	// Service labels logs and metrics, e.g. "lastfm".
	Service string

	// HTTPClient defaults to a client with Timeout.
	HTTPClient *http.Client

	// Timeout bounds each request of the default client. Zero means
	// DefaultTimeout.
	Timeout time.Duration

	Retry   RetryPolicy
	Breaker BreakerSettings

	// Header is added to every request.
	Header http.Header

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Fetcher performs GET requests against one upstream service, decoding JSON
// responses, retrying failures with backoff and guarding the service with a
// circuit breaker.
type Fetcher struct {
	service    string
	httpClient *http.Client
	policy     RetryPolicy
	header     http.Header
	breaker    *gobreaker.CircuitBreaker[struct{}]
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

// NewFetcher creates a Fetcher from the provided configuration.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{
			Timeout: timeout,
		}
	}

	f := &Fetcher{
		service:    cfg.Service,
		httpClient: httpClient,
		policy:     cfg.Retry.normalized(),
		header:     cfg.Header.Clone(),
		logger:     cfg.Logger.With().Str("service", cfg.Service).Logger(),
		metrics:    cfg.Metrics,
	}

	if cfg.Breaker.ConsecutiveFailures > 0 {
		f.breaker = f.newBreaker(cfg.Breaker)
	}

	return f
}

func (f *Fetcher) newBreaker(s BreakerSettings) *gobreaker.CircuitBreaker[struct{}] {
	f.metrics.SetBreakerState(f.service, 0)

	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        f.service,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.logger.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			f.metrics.SetBreakerState(name, breakerStateValue(to))
		},
		// Callers giving up is not an upstream failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// GetJSON fetches rawURL and decodes the JSON body into out, which must be a
// non-nil pointer. out is only written on success.
//
// Failures are *TransportError or *StatusError. Every failed attempt is
// retried per the retry policy; the last failure is returned once attempts
// are exhausted.
func (f *Fetcher) GetJSON(ctx context.Context, rawURL string, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("decoding into %T: out must be a non-nil pointer", out)
	}

	start := time.Now()
	redacted := RedactURL(rawURL)

	var decoded reflect.Value
	call := func() error {
		v, err := Retry(ctx, f.policy, func(ctx context.Context) (reflect.Value, error) {
			return f.attempt(ctx, rawURL, redacted, rv.Type().Elem())
		}, func(attempt int, err error, wait time.Duration) {
			f.metrics.IncRetry(f.service)
			f.logger.Warn().
				Err(err).
				Str("kind", kind(err)).
				Int("attempt", attempt).
				Int("max_attempts", f.policy.MaxAttempts).
				Dur("retry_in", wait).
				Str("url", redacted).
				Msg("upstream request failed, retrying")
		})
		decoded = v
		return err
	}

	var err error
	if f.breaker != nil {
		_, err = f.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, call()
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			f.metrics.ObserveUpstream(f.service, metrics.OutcomeRejected, time.Since(start))
			f.logger.Warn().Err(err).Str("url", redacted).Msg("upstream request rejected by circuit breaker")
			return &TransportError{URL: redacted, Err: err}
		}
	} else {
		err = call()
	}

	if err != nil {
		outcome := metrics.OutcomeTransport
		if kind(err) == "status" {
			outcome = metrics.OutcomeStatus
		}
		f.metrics.ObserveUpstream(f.service, outcome, time.Since(start))

		ev := f.logger.Error().Err(err).Str("kind", kind(err)).Str("url", redacted)
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			ev = ev.Int("status", statusErr.Status)
		}
		ev.Msg("upstream request failed")
		return err
	}

	f.metrics.ObserveUpstream(f.service, metrics.OutcomeSuccess, time.Since(start))
	rv.Elem().Set(decoded)
	return nil
}

// attempt performs a single HTTP request and decodes the body into a fresh
// value of type t.
func (f *Fetcher) attempt(ctx context.Context, rawURL, redacted string, t reflect.Type) (reflect.Value, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return reflect.Value{}, &TransportError{URL: redacted, Err: fmt.Errorf("creating request: %w", err)}
	}

	for k, vs := range f.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return reflect.Value{}, &TransportError{URL: redacted, Err: fmt.Errorf("executing request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return reflect.Value{}, &TransportError{URL: redacted, Err: fmt.Errorf("reading response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		code, message := parseErrorEnvelope(body)
		return reflect.Value{}, &StatusError{
			URL:     redacted,
			Status:  resp.StatusCode,
			Code:    code,
			Message: message,
		}
	}

	ptr := reflect.New(t)
	if err := json.Unmarshal(body, ptr.Interface()); err != nil {
		return reflect.Value{}, &TransportError{URL: redacted, Err: fmt.Errorf("parsing response: %w", err)}
	}

	if eb, ok := ptr.Interface().(ErrorBody); ok {
		if code, message := eb.ErrorDetail(); code != 0 {
			return reflect.Value{}, &StatusError{
				URL:     redacted,
				Status:  resp.StatusCode,
				Code:    code,
				Message: message,
			}
		}
	}

	return ptr.Elem(), nil
}

// parseErrorEnvelope extracts {"error": ..., "message": ...} from an error
// body. Last.fm sends a numeric code; other APIs send a string.
func parseErrorEnvelope(body []byte) (int, string) {
	var env struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return 0, ""
	}

	switch v := env.Error.(type) {
	case float64:
		return int(v), env.Message
	case string:
		if env.Message == "" {
			return 0, v
		}
	}
	return 0, env.Message
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
