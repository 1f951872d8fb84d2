package models

import "time"

// StreamingFormat selects the adaptive streaming protocol
type StreamingFormat string

// StreamingFormat constants
const (
	StreamingFormatHLS  StreamingFormat = "hls"
	StreamingFormatDASH StreamingFormat = "dash"
)

// Valid reports whether f is a supported format
func (f StreamingFormat) Valid() bool {
	return f == StreamingFormatHLS || f == StreamingFormatDASH
}

// ManifestName returns the manifest object name for the format
func (f StreamingFormat) ManifestName() string {
	if f == StreamingFormatDASH {
		return "manifest.mpd"
	}
	return "master.m3u8"
}

// StreamingDescriptor is the playback answer handed to a client. It is
// composed per request and never persisted.
type StreamingDescriptor struct {
	AssetID         string          `json:"asset_id"`
	Format          StreamingFormat `json:"format"`
	ManifestURL     string          `json:"manifest_url"`
	CDNBaseURL      string          `json:"cdn_base_url"`
	Qualities       []QualityLevel  `json:"qualities"`
	Subtitles       []SubtitleTrack `json:"subtitles,omitempty"`
	Poster          string          `json:"poster,omitempty"`
	DurationSeconds float64         `json:"duration_seconds"`
	ExpiresAt       time.Time       `json:"expires_at"`
	Manifest        []byte          `json:"-"`
}
