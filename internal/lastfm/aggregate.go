package lastfm

import (
	"sort"
	"strconv"
	"time"
)

const (
	// RecentWindow is how far back plays count towards FrequentRecent.
	RecentWindow = 3 * 24 * time.Hour

	MaxRecentTracks   = 15
	MaxFrequentTracks = 10
	MaxTopTracks      = 10

	// MinFrequentPlays is the play count a track needs within RecentWindow to
	// be listed as frequent.
	MinFrequentPlays = 3
)

// trackKey groups plays of the same track by the same artist.
type trackKey struct {
	name   string
	artist string
}

// Aggregate derives the listening aggregate from raw recent and top tracks.
//
// FrequentRecent counts plays newer than now-RecentWindow per (name, artist),
// keeps tracks with at least MinFrequentPlays plays, and orders them by play
// count descending, ties in order of first appearance. RecentTracks drops
// entries without a timestamp. TopMonthly is passed through. All lists are
// capped.
func Aggregate(recent, top []Track, now time.Time) *ListeningData {
	data := EmptyListeningData()
	cutoff := now.Add(-RecentWindow)

	counts := make(map[trackKey]int)
	var order []trackKey
	for _, t := range recent {
		playedAt, ok := playedAt(t)
		if !ok || !playedAt.After(cutoff) {
			continue
		}

		key := trackKey{name: t.Name, artist: t.Artist.Name}
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}

	for _, key := range order {
		if counts[key] < MinFrequentPlays {
			continue
		}
		data.FrequentRecent = append(data.FrequentRecent, FrequentTrack{
			Name:      key.name,
			Artist:    key.artist,
			PlayCount: counts[key],
		})
	}
	sort.SliceStable(data.FrequentRecent, func(i, j int) bool {
		return data.FrequentRecent[i].PlayCount > data.FrequentRecent[j].PlayCount
	})
	data.FrequentRecent = capped(data.FrequentRecent, MaxFrequentTracks)

	for _, t := range recent {
		if len(data.RecentTracks) == MaxRecentTracks {
			break
		}
		if t.HasTimestamp() {
			data.RecentTracks = append(data.RecentTracks, t)
		}
	}

	if len(top) > 0 {
		data.TopMonthly = capped(top, MaxTopTracks)
	}

	return data
}

// playedAt parses the track's scrobble time.
func playedAt(t Track) (time.Time, bool) {
	if !t.HasTimestamp() {
		return time.Time{}, false
	}
	uts, err := strconv.ParseInt(t.Date.UTS, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(uts, 0), true
}

func capped[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
