package web

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gokaybiz/site-api/internal/cache"
	"github.com/gokaybiz/site-api/internal/lastfm"
	"github.com/gokaybiz/site-api/internal/vsco"
)

func TestCacheListening(t *testing.T) {
	src := new(MockListening)
	data := &lastfm.ListeningData{
		RecentTracks:   []lastfm.Track{},
		FrequentRecent: []lastfm.FrequentTrack{{Name: "A", Artist: "X", PlayCount: 4}},
		TopMonthly:     []lastfm.Track{},
	}
	src.On("GetListeningData", mock.Anything, "Alice").Return(data, nil).Once()
	src.On("GetListeningData", mock.Anything, "bob").Return(lastfm.EmptyListeningData(), nil).Once()

	cached := CacheListening(src, cache.NewGate[*lastfm.ListeningData](cache.GateConfig{Name: "songs"}))
	ctx := context.Background()

	got, err := cached.GetListeningData(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// Same user in another case is served from cache.
	got, err = cached.GetListeningData(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = cached.GetListeningData(ctx, "bob")
	require.NoError(t, err)

	src.AssertExpectations(t)
}

func TestCacheListening_ErrorsNotCached(t *testing.T) {
	src := new(MockListening)
	boom := errors.New("boom")
	src.On("GetListeningData", mock.Anything, "alice").Return(nil, boom).Once()
	src.On("GetListeningData", mock.Anything, "alice").Return(lastfm.EmptyListeningData(), nil).Once()

	cached := CacheListening(src, cache.NewGate[*lastfm.ListeningData](cache.GateConfig{Name: "songs"}))

	_, err := cached.GetListeningData(context.Background(), "alice")
	assert.ErrorIs(t, err, boom)

	got, err := cached.GetListeningData(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, lastfm.EmptyListeningData(), got)
	src.AssertExpectations(t)
}

func TestCachePhotos(t *testing.T) {
	src := new(MockPhotos)
	images := []vsco.Image{{PhotoURL: "https://im.vsco.co/a.jpg", Date: 1}}
	src.On("GetImages", mock.Anything).Return(images, nil).Once()

	cached := CachePhotos(src, cache.NewGate[[]vsco.Image](cache.GateConfig{Name: "photos"}))

	for i := 0; i < 3; i++ {
		got, err := cached.GetImages(context.Background())
		require.NoError(t, err)
		assert.Equal(t, images, got)
	}
	src.AssertExpectations(t)
}
