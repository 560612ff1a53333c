// Package vsco reads a user's published photos from the VSCO API.
package vsco

const (
	// DefaultUser is the VSCO profile served when none is configured.
	DefaultUser = "gokaybiz"

	// DefaultMaxAttempts is the number of tries per VSCO request.
	DefaultMaxAttempts = 3
)

// Config holds VSCO API settings.
type Config struct {
	User        string `koanf:"user" validate:"required"`
	Token       string `koanf:"token"`
	MaxAttempts int    `koanf:"max_attempts" validate:"gte=1,lte=10"`
}
