// Package lastfm provides Last.fm API integration for aggregating a user's
// listening activity.
package lastfm

// DefaultUser is used when no Last.fm user is configured.
const DefaultUser = "gokaybiz"

// DefaultMaxAttempts is the total number of attempts per upstream call.
const DefaultMaxAttempts = 5

// Config holds Last.fm API configuration.
// An empty APIKey is allowed; the client then reports
// upstream.ErrConfigurationMissing instead of calling the API.
type Config struct {
	APIKey string `koanf:"api_key"`
	User   string `koanf:"user" validate:"required"`

	// MaxAttempts is the total number of attempts per upstream call.
	MaxAttempts int `koanf:"max_attempts" validate:"gte=1,lte=10"`
}
