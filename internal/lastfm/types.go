package lastfm

import (
	"bytes"
	"strconv"

	"github.com/goccy/go-json"
)

// Artist is the artist of a track. Recent tracks requested with extended=1
// and top tracks both use this shape.
type Artist struct {
	Name string `json:"name"`
	MBID string `json:"mbid,omitempty"`
	URL  string `json:"url,omitempty"`
}

// UnmarshalJSON also accepts the non-extended shape {"#text": name}.
func (a *Artist) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name string `json:"name"`
		Text string `json:"#text"`
		MBID string `json:"mbid"`
		URL  string `json:"url"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*a = Artist{Name: raw.Name, MBID: raw.MBID, URL: raw.URL}
	if a.Name == "" {
		a.Name = raw.Text
	}
	return nil
}

// Image is one size of a track's artwork.
type Image struct {
	Size string `json:"size"`
	URL  string `json:"#text"`
}

// Date is the scrobble time of a completed play.
type Date struct {
	UTS  string `json:"uts"`
	Text string `json:"#text,omitempty"`
}

// Track is a track as returned by user.getrecenttracks or user.gettoptracks.
// Recent tracks without a Date are currently playing.
type Track struct {
	Name      string  `json:"name"`
	Artist    Artist  `json:"artist"`
	URL       string  `json:"url,omitempty"`
	MBID      string  `json:"mbid,omitempty"`
	PlayCount *Count  `json:"playcount,omitempty"`
	Listeners *Count  `json:"listeners,omitempty"`
	Image     []Image `json:"image"`
	Date      *Date   `json:"date,omitempty"`
}

// HasTimestamp reports whether the track is a completed play.
func (t Track) HasTimestamp() bool {
	return t.Date != nil && t.Date.UTS != ""
}

// FrequentTrack is a track played repeatedly within the recent window.
type FrequentTrack struct {
	Name      string `json:"name"`
	Artist    string `json:"artist"`
	PlayCount int    `json:"playcount"`
}

// ListeningData is the aggregate served to the site.
type ListeningData struct {
	RecentTracks   []Track         `json:"recentTracks"`
	FrequentRecent []FrequentTrack `json:"frequentRecent"`
	TopMonthly     []Track         `json:"topMonthly"`
}

// EmptyListeningData returns the canonical empty aggregate, whose lists
// encode as [] rather than null.
func EmptyListeningData() *ListeningData {
	return &ListeningData{
		RecentTracks:   []Track{},
		FrequentRecent: []FrequentTrack{},
		TopMonthly:     []Track{},
	}
}

// Count is a non-negative integer that Last.fm encodes as either a JSON
// number or a string.
type Count int

// UnmarshalJSON accepts 12, "12" and "".
func (c *Count) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*c = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*c = Count(n)
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = Count(n)
	return nil
}

// trackList decodes a "track" field that Last.fm sends as an array, or as a
// single object when there is exactly one track.
type trackList []Track

func (l *trackList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*l = nil
		return nil
	case data[0] == '{':
		var t Track
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}
		*l = trackList{t}
		return nil
	default:
		var ts []Track
		if err := json.Unmarshal(data, &ts); err != nil {
			return err
		}
		*l = ts
		return nil
	}
}

// apiError represents a Last.fm API error response.
type apiError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// ErrorDetail implements upstream.ErrorBody.
func (e apiError) ErrorDetail() (int, string) {
	return e.Error, e.Message
}

// recentTracksResponse is the JSON response for user.getRecentTracks.
type recentTracksResponse struct {
	apiError
	RecentTracks struct {
		Track trackList `json:"track"`
	} `json:"recenttracks"`
}

// topTracksResponse is the JSON response for user.getTopTracks.
type topTracksResponse struct {
	apiError
	TopTracks struct {
		Track trackList `json:"track"`
	} `json:"toptracks"`
}
