// Package media defines shared types for the animewatch application.
package media

import "strings"

// Transport is the delivery format of a rendition.
type Transport int

const (
	MP4 Transport = iota
	HLS
)

func (t Transport) String() string {
	switch t {
	case HLS:
		return "hls"
	case MP4:
		return "mp4"
	default:
		return "unknown"
	}
}

// ClassifyTransport reports HLS when the file URL points at an m3u8 playlist
// or the declared type says so, MP4 otherwise.
func ClassifyTransport(fileURL, declaredType string) Transport {
	if strings.Contains(fileURL, ".m3u8") {
		return HLS
	}
	t := strings.ToLower(declaredType)
	if strings.Contains(t, "hls") || strings.Contains(t, "m3u8") {
		return HLS
	}
	return MP4
}

// Rendition is one quality/format variant of an episode stream.
type Rendition struct {
	FileURL   string    // Playable URL
	Transport Transport // HLS or MP4
	Label     string    // Quality label as sent by the backend, e.g. "720 P"
}

// Title is a catalog entry.
type Title struct {
	Name string // Display title, also the watch-history key
	Link string // Absolute URL of the title page
}

// EpisodeRange is the inclusive range of episode numbers a title page offers.
type EpisodeRange struct {
	Start int
	End   int
}
