package manifest

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"testing"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/ladder"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase = "https://cdn.example.com/uploads/1700000000000000000-movie"

func entriesFor(t *testing.T, ids ...string) []Entry {
	t.Helper()

	levels, err := ladder.Default().Resolve(ids)
	require.NoError(t, err)

	entries := make([]Entry, len(levels))
	for i, l := range levels {
		entries[i] = Entry{Quality: l, BaseURL: testBase}
	}
	return entries
}

func TestGenerateHLS(t *testing.T) {
	out, err := Generate(models.StreamingFormatHLS, entriesFor(t, models.QualityHD720, models.QualitySD480))
	require.NoError(t, err)

	want := "#EXTM3U\n" +
		"#EXT-X-VERSION:3\n" +
		"#EXT-X-TARGETDURATION:6\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=2928000,RESOLUTION=1280x720\n" +
		testBase + "/hd720/playlist.m3u8\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=1528000,RESOLUTION=854x480\n" +
		testBase + "/sd480/playlist.m3u8\n"
	assert.Equal(t, want, string(out))
}

func TestGenerateHLSTargetDuration(t *testing.T) {
	out, err := Generate(models.StreamingFormatHLS, entriesFor(t, models.QualitySD360), WithTargetDuration(4))
	require.NoError(t, err)
	assert.Contains(t, string(out), "#EXT-X-TARGETDURATION:4\n")
}

type parsedMPD struct {
	Type     string `xml:"type,attr"`
	Profiles string `xml:"profiles,attr"`
	Duration string `xml:"mediaPresentationDuration,attr"`
	Periods  []struct {
		ID   string `xml:"id,attr"`
		Sets []struct {
			ContentType     string `xml:"contentType,attr"`
			MimeType        string `xml:"mimeType,attr"`
			Representations []struct {
				ID        string `xml:"id,attr"`
				Bandwidth int64  `xml:"bandwidth,attr"`
				Width     int    `xml:"width,attr"`
				Height    int    `xml:"height,attr"`
				BaseURL   string `xml:"BaseURL"`
			} `xml:"Representation"`
		} `xml:"AdaptationSet"`
	} `xml:"Period"`
}

func TestGenerateDASH(t *testing.T) {
	out, err := Generate(models.StreamingFormatDASH, entriesFor(t, models.QualityHD1080, models.QualityHD720), WithDuration(90))
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte(xml.Header)))

	var doc parsedMPD
	require.NoError(t, xml.Unmarshal(out, &doc))

	assert.Equal(t, "static", doc.Type)
	assert.Equal(t, dashProfile, doc.Profiles)
	assert.Equal(t, "PT1M30S", doc.Duration)
	require.Len(t, doc.Periods, 1)
	assert.Equal(t, "0", doc.Periods[0].ID)
	require.Len(t, doc.Periods[0].Sets, 1)

	set := doc.Periods[0].Sets[0]
	assert.Equal(t, "video", set.ContentType)
	assert.Equal(t, "video/mp4", set.MimeType)
	require.Len(t, set.Representations, 2)

	first := set.Representations[0]
	assert.Equal(t, "hd1080", first.ID)
	assert.Equal(t, int64(5128000), first.Bandwidth)
	assert.Equal(t, 1920, first.Width)
	assert.Equal(t, 1080, first.Height)
	assert.Equal(t, testBase+"/hd1080/segments.mp4", first.BaseURL)
	assert.Equal(t, "hd720", set.Representations[1].ID)
}

func TestGenerateDASHOmitsUnknownDuration(t *testing.T) {
	out, err := Generate(models.StreamingFormatDASH, entriesFor(t, models.QualitySD360))
	require.NoError(t, err)
	assert.NotContains(t, string(out), "mediaPresentationDuration")
}

func TestGenerateDASHEscapesBaseURL(t *testing.T) {
	entries := entriesFor(t, models.QualitySD360)
	entries[0].BaseURL = "https://cdn.example.com/a?x=1&y=2"

	out, err := Generate(models.StreamingFormatDASH, entries)
	require.NoError(t, err)
	assert.Contains(t, string(out), "x=1&amp;y=2")

	var doc parsedMPD
	require.NoError(t, xml.Unmarshal(out, &doc))
}

// Variant count and bandwidths must match the ladder exactly for every subset
func TestGenerateMatchesLadderForAllSubsets(t *testing.T) {
	reg := ladder.Default()
	ids := reg.IDs()

	for mask := 1; mask < 1<<len(ids); mask++ {
		var subset []string
		for i, id := range ids {
			if mask&(1<<i) != 0 {
				subset = append(subset, id)
			}
		}
		entries := entriesFor(t, subset...)

		t.Run(fmt.Sprintf("hls/%s", strings.Join(subset, "+")), func(t *testing.T) {
			out, err := Generate(models.StreamingFormatHLS, entries)
			require.NoError(t, err)

			lines := strings.Split(strings.TrimSuffix(string(out), "\n"), "\n")
			var variants []string
			for _, line := range lines {
				if strings.HasPrefix(line, "#EXT-X-STREAM-INF:") {
					variants = append(variants, line)
				}
			}
			require.Len(t, variants, len(entries))
			for i, e := range entries {
				assert.Contains(t, variants[i], fmt.Sprintf("BANDWIDTH=%d,", e.Quality.BandwidthBps))
			}
		})

		t.Run(fmt.Sprintf("dash/%s", strings.Join(subset, "+")), func(t *testing.T) {
			out, err := Generate(models.StreamingFormatDASH, entries)
			require.NoError(t, err)

			var doc parsedMPD
			require.NoError(t, xml.Unmarshal(out, &doc))
			reps := doc.Periods[0].Sets[0].Representations
			require.Len(t, reps, len(entries))
			for i, e := range entries {
				assert.Equal(t, e.Quality.BandwidthBps, reps[i].Bandwidth)
			}
		})
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	for _, format := range []models.StreamingFormat{models.StreamingFormatHLS, models.StreamingFormatDASH} {
		entries := entriesFor(t, models.QualityHD720, models.QualitySD480)
		first, err := Generate(format, entries, WithDuration(12.5))
		require.NoError(t, err)
		second, err := Generate(format, entries, WithDuration(12.5))
		require.NoError(t, err)
		assert.Equal(t, first, second, "format %s", format)
	}
}

func TestGenerateRejectsMalformedInput(t *testing.T) {
	valid := func() []Entry { return entriesFor(t, models.QualityHD720) }

	tests := []struct {
		name    string
		format  models.StreamingFormat
		entries func() []Entry
		opts    []Option
	}{
		{"empty list", models.StreamingFormatHLS, func() []Entry { return nil }, nil},
		{"empty id", models.StreamingFormatHLS, func() []Entry {
			e := valid()
			e[0].Quality.ID = ""
			return e
		}, nil},
		{"id with slash", models.StreamingFormatDASH, func() []Entry {
			e := valid()
			e[0].Quality.ID = "hd/720"
			return e
		}, nil},
		{"zero bandwidth", models.StreamingFormatDASH, func() []Entry {
			e := valid()
			e[0].Quality.BandwidthBps = 0
			return e
		}, nil},
		{"zero resolution", models.StreamingFormatHLS, func() []Entry {
			e := valid()
			e[0].Quality.Resolution = models.Resolution{}
			return e
		}, nil},
		{"empty base url", models.StreamingFormatHLS, func() []Entry {
			e := valid()
			e[0].BaseURL = " "
			return e
		}, nil},
		{"base url with newline", models.StreamingFormatHLS, func() []Entry {
			e := valid()
			e[0].BaseURL = "https://cdn\n#EXT-X-ENDLIST"
			return e
		}, nil},
		{"unknown format", models.StreamingFormat("smooth"), valid, nil},
		{"negative duration", models.StreamingFormatDASH, valid, []Option{WithDuration(-1)}},
		{"zero target duration", models.StreamingFormatHLS, valid, []Option{WithTargetDuration(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Generate(tt.format, tt.entries(), tt.opts...)
			assert.ErrorIs(t, err, models.ErrManifestGeneration)
			assert.Nil(t, out, "no partial output on failure")
		})
	}
}

func TestIsoDuration(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0.5, "PT0.5S"},
		{90, "PT1M30S"},
		{3600, "PT1H"},
		{3725.25, "PT1H2M5.25S"},
	}

	for _, tt := range tests {
		if got := isoDuration(tt.seconds); got != tt.want {
			t.Errorf("isoDuration(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/vnd.apple.mpegurl", ContentType(models.StreamingFormatHLS))
	assert.Equal(t, "application/dash+xml", ContentType(models.StreamingFormatDASH))
}
