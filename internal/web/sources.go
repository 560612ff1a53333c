package web

import (
	"context"
	"strings"

	"github.com/gokaybiz/site-api/internal/cache"
	"github.com/gokaybiz/site-api/internal/lastfm"
	"github.com/gokaybiz/site-api/internal/vsco"
)

type cachedListening struct {
	src  ListeningSource
	gate *cache.Gate[*lastfm.ListeningData]
}

// CacheListening memoizes src per user through gate.
func CacheListening(src ListeningSource, gate *cache.Gate[*lastfm.ListeningData]) ListeningSource {
	return &cachedListening{src: src, gate: gate}
}

func (c *cachedListening) GetListeningData(ctx context.Context, user string) (*lastfm.ListeningData, error) {
	// Last.fm user names are case-insensitive.
	key := strings.ToLower(strings.TrimSpace(user))
	return c.gate.Do(ctx, key, func(ctx context.Context) (*lastfm.ListeningData, error) {
		return c.src.GetListeningData(ctx, user)
	})
}

type cachedPhotos struct {
	src  PhotoSource
	gate *cache.Gate[[]vsco.Image]
}

// CachePhotos memoizes src through gate.
func CachePhotos(src PhotoSource, gate *cache.Gate[[]vsco.Image]) PhotoSource {
	return &cachedPhotos{src: src, gate: gate}
}

func (c *cachedPhotos) GetImages(ctx context.Context) ([]vsco.Image, error) {
	return c.gate.Do(ctx, "images", c.src.GetImages)
}
