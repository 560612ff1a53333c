package lastfm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokaybiz/site-api/internal/upstream"
)

var testNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, server *httptest.Server, apiKey string, attempts int) *Client {
	t.Helper()
	fetcher := upstream.NewFetcher(upstream.FetcherConfig{
		Service:    ServiceName,
		HTTPClient: server.Client(),
		Retry:      upstream.RetryPolicy{MaxAttempts: attempts, Multiplier: 2},
		Logger:     zerolog.Nop(),
	})
	cfg := &Config{APIKey: apiKey, User: "alice", MaxAttempts: attempts}
	return NewClient(cfg, fetcher, WithBaseURL(server.URL+"/2.0/"), WithClock(func() time.Time { return testNow }))
}

func scrobble(name, artist string, at time.Time) string {
	return fmt.Sprintf(`{"name":%q,"artist":{"name":%q,"url":"https://www.last.fm/music/x"},"image":[],"date":{"uts":"%d","#text":"x"}}`,
		name, artist, at.Unix())
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   url.Values
	}{
		{
			name:   "string and number params",
			params: map[string]any{"user": "alice", "limit": 50},
			want: url.Values{
				"method":  {"user.getrecenttracks"},
				"user":    {"alice"},
				"limit":   {"50"},
				"api_key": {"k"},
				"format":  {"json"},
			},
		},
		{
			name:   "caller cannot override format or key",
			params: map[string]any{"format": "xml", "api_key": "other"},
			want: url.Values{
				"method":  {"user.getrecenttracks"},
				"api_key": {"k"},
				"format":  {"json"},
			},
		},
		{
			name:   "values are escaped",
			params: map[string]any{"user": "a b&c"},
			want: url.Values{
				"method":  {"user.getrecenttracks"},
				"user":    {"a b&c"},
				"api_key": {"k"},
				"format":  {"json"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := BuildURL("https://ws.audioscrobbler.com/2.0/", "user.getrecenttracks", tt.params, "k")

			u, err := url.Parse(raw)
			require.NoError(t, err)
			assert.Equal(t, "ws.audioscrobbler.com", u.Host)
			assert.Equal(t, "/2.0/", u.Path)
			assert.Equal(t, tt.want, u.Query())
		})
	}
}

func TestGetListeningData_Success(t *testing.T) {
	var requests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		q := r.URL.Query()
		assert.Equal(t, "/2.0/", r.URL.Path)
		assert.Equal(t, "test-key", q.Get("api_key"))
		assert.Equal(t, "json", q.Get("format"))
		assert.Equal(t, "alice", q.Get("user"))

		w.Header().Set("Content-Type", "application/json")
		switch q.Get("method") {
		case "user.getrecenttracks":
			assert.Equal(t, "50", q.Get("limit"))
			assert.Equal(t, "1", q.Get("extended"))
			fmt.Fprintf(w, `{"recenttracks":{"track":[
				{"name":"Now","artist":{"name":"Playing"},"image":[],"@attr":{"nowplaying":"true"}},
				%s,%s,%s,%s
			]}}`,
				scrobble("Song A", "Artist 1", testNow.Add(-time.Hour)),
				scrobble("Song A", "Artist 1", testNow.Add(-2*time.Hour)),
				scrobble("Song A", "Artist 1", testNow.Add(-3*time.Hour)),
				scrobble("Song B", "Artist 2", testNow.Add(-4*time.Hour)),
			)
		case "user.gettoptracks":
			assert.Equal(t, "1month", q.Get("period"))
			assert.Equal(t, "10", q.Get("limit"))
			fmt.Fprint(w, `{"toptracks":{"track":[
				{"name":"Top","artist":{"name":"Band","mbid":""},"playcount":"42","listeners":"7","image":[{"size":"small","#text":"https://img/s.png"}]}
			]}}`)
		default:
			t.Errorf("unexpected method %q", q.Get("method"))
		}
	}))
	defer server.Close()

	client := newTestClient(t, server, "test-key", 1)

	data, err := client.GetListeningData(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int32(2), requests.Load())

	require.Len(t, data.RecentTracks, 4)
	assert.Equal(t, "Song A", data.RecentTracks[0].Name)

	require.Len(t, data.FrequentRecent, 1)
	assert.Equal(t, FrequentTrack{Name: "Song A", Artist: "Artist 1", PlayCount: 3}, data.FrequentRecent[0])

	require.Len(t, data.TopMonthly, 1)
	top := data.TopMonthly[0]
	assert.Equal(t, "Band", top.Artist.Name)
	require.NotNil(t, top.PlayCount)
	assert.Equal(t, Count(42), *top.PlayCount)
	assert.Equal(t, "https://img/s.png", top.Image[0].URL)
}

func TestGetListeningData_UserOverride(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bob", r.URL.Query().Get("user"))
		fmt.Fprint(w, `{"recenttracks":{"track":[]},"toptracks":{"track":[]}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server, "test-key", 1)

	data, err := client.GetListeningData(context.Background(), " bob ")
	require.NoError(t, err)
	assert.Equal(t, EmptyListeningData(), data)
}

func TestGetListeningData_MissingKey(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	client := newTestClient(t, server, "", 1)

	_, err := client.GetListeningData(context.Background(), "")
	assert.ErrorIs(t, err, upstream.ErrConfigurationMissing)
	assert.Equal(t, int32(0), requests.Load())
}

func TestGetListeningData_OneFetchFails(t *testing.T) {
	var topRequests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("method") == "user.gettoptracks" {
			topRequests.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"recenttracks":{"track":[]}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server, "test-key", 3)

	data, err := client.GetListeningData(context.Background(), "")
	require.Error(t, err)
	assert.Nil(t, data)
	assert.Contains(t, err.Error(), "fetching top tracks")

	var statusErr *upstream.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.Status)
	assert.Equal(t, int32(3), topRequests.Load())
}

func TestGetRecentTracks_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":6,"message":"User not found"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server, "test-key", 1)

	_, err := client.GetRecentTracks(context.Background(), "nobody", 50)
	require.Error(t, err)

	var statusErr *upstream.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 6, statusErr.Code)
	assert.Equal(t, "User not found", statusErr.Message)
	assert.NotContains(t, err.Error(), "test-key")
}

func TestGetRecentTracks_SingleObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"recenttracks":{"track":%s}}`, scrobble("Only", "One", testNow))
	}))
	defer server.Close()

	client := newTestClient(t, server, "test-key", 1)

	tracks, err := client.GetRecentTracks(context.Background(), "alice", 50)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "Only", tracks[0].Name)
	assert.Equal(t, "One", tracks[0].Artist.Name)
}

func TestGetTopTracks_MissingList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"toptracks":{}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server, "test-key", 1)

	tracks, err := client.GetTopTracks(context.Background(), "alice", "1month", 10)
	require.NoError(t, err)
	assert.NotNil(t, tracks)
	assert.Empty(t, tracks)
}

func TestNewClient_DefaultUser(t *testing.T) {
	c := NewClient(&Config{APIKey: "k"}, nil)
	assert.Equal(t, DefaultUser, c.DefaultUser())
}
