// Package upstream provides the shared fetch-with-retry layer used to talk to
// third-party JSON APIs.
package upstream

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrConfigurationMissing is returned when a client lacks the credentials it
// needs to call its upstream. No request is made.
var ErrConfigurationMissing = errors.New("upstream configuration missing")

// TransportError reports a failure before an HTTP status was known, or a
// response body that could not be read or decoded.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError reports an upstream that answered with a non-success status,
// or with an error object in an otherwise successful response.
type StatusError struct {
	URL     string
	Status  int
	Code    int    // API-specific error code, 0 if none
	Message string // API-specific error message, if any
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("HTTP error %d from %s", e.Status, e.URL)
	if e.Code != 0 {
		msg += fmt.Sprintf(" (API error %d)", e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// ErrorBody is implemented by response shapes that can carry an API error
// inside an HTTP 2xx body. A zero code means no error.
type ErrorBody interface {
	ErrorDetail() (code int, message string)
}

// secretParams are masked in URLs that end up in logs and errors.
var secretParams = []string{"api_key", "token", "key"}

// RedactURL masks credentials in rawURL's query string.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	q := u.Query()
	changed := false
	for _, p := range secretParams {
		if q.Has(p) {
			q.Set(p, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return rawURL
	}

	u.RawQuery = q.Encode()
	return u.String()
}

// kind names an error for logs and metrics.
func kind(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return "status"
	}
	return "transport"
}
