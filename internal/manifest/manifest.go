// Package manifest renders HLS master playlists and DASH MPD documents from
// an ordered list of qualities. Generation is pure: identical input always
// produces identical bytes.
package manifest

import (
	"fmt"
	"strings"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
)

// DefaultTargetDuration is the advertised segment length in seconds
const DefaultTargetDuration = 6

// Entry pairs a quality with the base URL its rendition lives under
// (<cdnBase>/<assetBaseKey>).
type Entry struct {
	Quality models.QualityLevel
	BaseURL string
}

type options struct {
	targetDuration  int
	durationSeconds float64
}

// Option tweaks generation
type Option func(*options)

// WithDuration sets the presentation duration advertised by DASH manifests
func WithDuration(seconds float64) Option {
	return func(o *options) {
		o.durationSeconds = seconds
	}
}

// WithTargetDuration overrides the HLS target duration
func WithTargetDuration(seconds int) Option {
	return func(o *options) {
		o.targetDuration = seconds
	}
}

// Generate renders the manifest for format. Entries are emitted in the order
// given. Any malformed entry fails the whole call with ErrManifestGeneration.
func Generate(format models.StreamingFormat, entries []Entry, opts ...Option) ([]byte, error) {
	o := options{targetDuration: DefaultTargetDuration}
	for _, opt := range opts {
		opt(&o)
	}

	if err := validate(entries); err != nil {
		return nil, err
	}
	if o.targetDuration <= 0 {
		return nil, fmt.Errorf("%w: target duration must be positive", models.ErrManifestGeneration)
	}
	if o.durationSeconds < 0 {
		return nil, fmt.Errorf("%w: negative presentation duration", models.ErrManifestGeneration)
	}

	switch format {
	case models.StreamingFormatHLS:
		return generateHLS(entries, o), nil
	case models.StreamingFormatDASH:
		return generateDASH(entries, o)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", models.ErrManifestGeneration, format)
	}
}

// ContentType returns the HTTP media type for a manifest format
func ContentType(format models.StreamingFormat) string {
	if format == models.StreamingFormatDASH {
		return "application/dash+xml"
	}
	return "application/vnd.apple.mpegurl"
}

// RenditionPlaylistURL is where the HLS media playlist for a quality lives
func RenditionPlaylistURL(baseURL, qualityID string) string {
	return strings.TrimRight(baseURL, "/") + "/" + qualityID + "/playlist.m3u8"
}

// RenditionSegmentsURL is where the fragmented MP4 for a quality lives
func RenditionSegmentsURL(baseURL, qualityID string) string {
	return strings.TrimRight(baseURL, "/") + "/" + qualityID + "/segments.mp4"
}

func validate(entries []Entry) error {
	if len(entries) == 0 {
		return fmt.Errorf("%w: no qualities", models.ErrManifestGeneration)
	}

	for i, e := range entries {
		q := e.Quality
		switch {
		case q.ID == "":
			return fmt.Errorf("%w: entry %d has empty quality id", models.ErrManifestGeneration, i)
		case strings.ContainsAny(q.ID, "/\r\n\t \","):
			return fmt.Errorf("%w: quality id %q contains reserved characters", models.ErrManifestGeneration, q.ID)
		case q.BandwidthBps <= 0:
			return fmt.Errorf("%w: quality %s has non-positive bandwidth", models.ErrManifestGeneration, q.ID)
		case q.Resolution.Width <= 0 || q.Resolution.Height <= 0:
			return fmt.Errorf("%w: quality %s has invalid resolution %s", models.ErrManifestGeneration, q.ID, q.Resolution)
		case strings.TrimSpace(e.BaseURL) == "":
			return fmt.Errorf("%w: quality %s has empty base URL", models.ErrManifestGeneration, q.ID)
		case strings.ContainsAny(e.BaseURL, "\r\n"):
			return fmt.Errorf("%w: quality %s base URL contains a line break", models.ErrManifestGeneration, q.ID)
		}
	}
	return nil
}
