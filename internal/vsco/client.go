package vsco

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gokaybiz/site-api/internal/cache"
	"github.com/gokaybiz/site-api/internal/upstream"
)

const (
	baseURL = "https://vsco.co/api/"

	// ServiceName labels VSCO calls in logs and metrics.
	ServiceName = "vsco"

	// MaxPages bounds media pagination.
	MaxPages = 50
)

// ErrSiteNotFound is returned when the user has no VSCO site.
var ErrSiteNotFound = errors.New("vsco: no site found for user")

// Client is a read-only VSCO API client.
type Client struct {
	user    string
	token   string
	baseURL string
	fetcher *upstream.Fetcher
	siteIDs *cache.Gate[int64]
	logger  zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithSiteIDCache sets the gate used to remember site ids.
func WithSiteIDCache(g *cache.Gate[int64]) Option {
	return func(c *Client) {
		c.siteIDs = g
	}
}

// WithLogger sets the client's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewFetcher creates the upstream fetcher for VSCO, sending cfg's bearer
// token with every request. base supplies the HTTP client settings, logger
// and metrics.
func NewFetcher(cfg *Config, base upstream.FetcherConfig) *upstream.Fetcher {
	header := base.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}

	base.Service = ServiceName
	base.Retry = upstream.NewRetryPolicy(cfg.MaxAttempts)
	base.Breaker = upstream.DefaultBreakerSettings()
	base.Header = header
	return upstream.NewFetcher(base)
}

// NewClient creates a new VSCO API client. Site ids are cached for the life
// of the process unless WithSiteIDCache says otherwise.
func NewClient(cfg *Config, fetcher *upstream.Fetcher, opts ...Option) *Client {
	c := &Client{
		user:    cfg.User,
		token:   cfg.Token,
		baseURL: baseURL,
		fetcher: fetcher,
		logger:  zerolog.Nop(),
	}
	if c.user == "" {
		c.user = DefaultUser
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.siteIDs == nil {
		c.siteIDs = cache.NewGate[int64](cache.GateConfig{Name: "vsco_site", Logger: c.logger})
	}
	return c
}

func buildURL(base, version, path string, params url.Values) string {
	return base + version + "/" + path + "?" + params.Encode()
}

// SiteID returns the VSCO site id of the configured user.
func (c *Client) SiteID(ctx context.Context) (int64, error) {
	if c.token == "" {
		return 0, upstream.ErrConfigurationMissing
	}

	return c.siteIDs.Do(ctx, c.user, func(ctx context.Context) (int64, error) {
		reqURL := buildURL(c.baseURL, "2.0", "sites", url.Values{"subdomain": {c.user}})

		var resp sitesResponse
		if err := c.fetcher.GetJSON(ctx, reqURL, &resp); err != nil {
			return 0, fmt.Errorf("fetching site id: %w", err)
		}
		if len(resp.Sites) == 0 || resp.Sites[0].ID == 0 {
			return 0, fmt.Errorf("%w: %s", ErrSiteNotFound, c.user)
		}

		c.logger.Debug().Str("user", c.user).Int64("site_id", resp.Sites[0].ID).Msg("resolved vsco site id")
		return resp.Sites[0].ID, nil
	})
}

// GetImages returns the user's photos, newest first. Videos and non-image
// media are skipped.
func (c *Client) GetImages(ctx context.Context) ([]Image, error) {
	siteID, err := c.SiteID(ctx)
	if err != nil {
		return nil, err
	}

	media, err := c.fetchAllMedia(ctx, siteID)
	if err != nil {
		return nil, err
	}

	images := make([]Image, 0, len(media))
	for _, item := range media {
		if !item.isPhoto() {
			continue
		}
		images = append(images, Image{
			PhotoURL: normalizeURL(item.Image.ResponsiveURL),
			Date:     item.Image.date(),
		})
	}

	sort.SliceStable(images, func(i, j int) bool {
		return images[i].Date > images[j].Date
	})

	return images, nil
}

// fetchAllMedia follows previous_cursor until VSCO stops returning one.
func (c *Client) fetchAllMedia(ctx context.Context, siteID int64) ([]mediaItem, error) {
	var all []mediaItem
	cursor := ""
	seen := make(map[string]bool)

	for page := 0; page < MaxPages; page++ {
		params := url.Values{"site_id": {strconv.FormatInt(siteID, 10)}}
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var resp mediaResponse
		if err := c.fetcher.GetJSON(ctx, buildURL(c.baseURL, "3.0", "medias/profile", params), &resp); err != nil {
			return nil, fmt.Errorf("fetching media page %d: %w", page+1, err)
		}
		all = append(all, resp.Media...)

		if resp.PreviousCursor == "" || seen[resp.PreviousCursor] {
			return all, nil
		}
		seen[resp.PreviousCursor] = true
		cursor = resp.PreviousCursor
	}

	c.logger.Warn().Int("pages", MaxPages).Int64("site_id", siteID).Msg("media pagination truncated")
	return all, nil
}

// normalizeURL adds the https scheme VSCO omits from responsive URLs.
func normalizeURL(u string) string {
	switch {
	case strings.HasPrefix(u, "https://"), strings.HasPrefix(u, "http://"):
		return u
	case strings.HasPrefix(u, "//"):
		return "https:" + u
	default:
		return "https://" + u
	}
}
