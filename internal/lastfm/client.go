package lastfm

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gokaybiz/site-api/internal/upstream"
)

const (
	baseURL = "https://ws.audioscrobbler.com/2.0/"

	// ServiceName labels Last.fm calls in logs and metrics.
	ServiceName = "lastfm"

	recentTracksLimit = 50
	topTracksLimit    = 10
	topTracksPeriod   = "1month"
)

// Client is a read-only Last.fm API client.
type Client struct {
	apiKey      string
	defaultUser string
	baseURL     string
	fetcher     *upstream.Fetcher
	now         func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithClock sets the time source used for the recent-plays window.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewFetcher creates the upstream fetcher for Last.fm. base supplies the
// HTTP client settings, logger and metrics; the service name, retry policy
// and circuit breaker are set here.
func NewFetcher(cfg *Config, base upstream.FetcherConfig) *upstream.Fetcher {
	base.Service = ServiceName
	base.Retry = upstream.NewRetryPolicy(cfg.MaxAttempts)
	base.Breaker = upstream.DefaultBreakerSettings()
	return upstream.NewFetcher(base)
}

// NewClient creates a new Last.fm API client from the provided configuration.
func NewClient(cfg *Config, fetcher *upstream.Fetcher, opts ...Option) *Client {
	c := &Client{
		apiKey:      cfg.APIKey,
		defaultUser: cfg.User,
		baseURL:     baseURL,
		fetcher:     fetcher,
		now:         time.Now,
	}
	if c.defaultUser == "" {
		c.defaultUser = DefaultUser
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultUser returns the account used when a request names none.
func (c *Client) DefaultUser() string {
	return c.defaultUser
}

// BuildURL builds a Last.fm request URL for method. Param values may be
// strings or numbers. format=json and api_key are always set exactly once,
// overriding any value for those keys in params.
func BuildURL(base, method string, params map[string]any, apiKey string) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, fmt.Sprint(v))
	}
	values.Set("method", method)
	values.Set("api_key", apiKey)
	values.Set("format", "json")

	return base + "?" + values.Encode()
}

// GetRecentTracks fetches the user's most recent scrobbles, newest first,
// with extended artist metadata. A currently playing track may lead the list
// without a date.
func (c *Client) GetRecentTracks(ctx context.Context, user string, limit int) ([]Track, error) {
	if c.apiKey == "" {
		return nil, upstream.ErrConfigurationMissing
	}

	reqURL := BuildURL(c.baseURL, "user.getrecenttracks", map[string]any{
		"user":     user,
		"limit":    limit,
		"extended": 1,
	}, c.apiKey)

	var resp recentTracksResponse
	if err := c.fetcher.GetJSON(ctx, reqURL, &resp); err != nil {
		return nil, fmt.Errorf("fetching recent tracks: %w", err)
	}

	return nonNil(resp.RecentTracks.Track), nil
}

// GetTopTracks fetches the user's most played tracks over period
// (overall, 7day, 1month, 3month, 6month or 12month).
func (c *Client) GetTopTracks(ctx context.Context, user, period string, limit int) ([]Track, error) {
	if c.apiKey == "" {
		return nil, upstream.ErrConfigurationMissing
	}

	reqURL := BuildURL(c.baseURL, "user.gettoptracks", map[string]any{
		"user":   user,
		"period": period,
		"limit":  limit,
	}, c.apiKey)

	var resp topTracksResponse
	if err := c.fetcher.GetJSON(ctx, reqURL, &resp); err != nil {
		return nil, fmt.Errorf("fetching top tracks: %w", err)
	}

	return nonNil(resp.TopTracks.Track), nil
}

// GetListeningData fetches recent and monthly top tracks concurrently and
// aggregates them. An empty user means the configured default. If either
// fetch fails the whole call fails; there is no partial result.
func (c *Client) GetListeningData(ctx context.Context, user string) (*ListeningData, error) {
	if c.apiKey == "" {
		return nil, upstream.ErrConfigurationMissing
	}

	user = strings.TrimSpace(user)
	if user == "" {
		user = c.defaultUser
	}

	var recent, top []Track

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		recent, err = c.GetRecentTracks(gctx, user, recentTracksLimit)
		return err
	})
	g.Go(func() error {
		var err error
		top, err = c.GetTopTracks(gctx, user, topTracksPeriod, topTracksLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return Aggregate(recent, top, c.now()), nil
}

func nonNil(l trackList) []Track {
	if l == nil {
		return []Track{}
	}
	return l
}
