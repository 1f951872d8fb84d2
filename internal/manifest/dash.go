package manifest

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"math"
	"strconv"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
)

const (
	dashNamespace     = "urn:mpeg:dash:schema:mpd:2011"
	dashProfile       = "urn:mpeg:dash:profile:isoff-on-demand:2011"
	dashMinBufferTime = "PT2S"
)

type mpd struct {
	XMLName                   xml.Name `xml:"MPD"`
	Xmlns                     string   `xml:"xmlns,attr"`
	Type                      string   `xml:"type,attr"`
	Profiles                  string   `xml:"profiles,attr"`
	MinBufferTime             string   `xml:"minBufferTime,attr"`
	MediaPresentationDuration string   `xml:"mediaPresentationDuration,attr,omitempty"`
	Period                    period   `xml:"Period"`
}

type period struct {
	ID            string        `xml:"id,attr"`
	AdaptationSet adaptationSet `xml:"AdaptationSet"`
}

type adaptationSet struct {
	ContentType      string           `xml:"contentType,attr"`
	MimeType         string           `xml:"mimeType,attr"`
	SegmentAlignment bool             `xml:"segmentAlignment,attr"`
	Representations  []representation `xml:"Representation"`
}

type representation struct {
	ID        string `xml:"id,attr"`
	Bandwidth int64  `xml:"bandwidth,attr"`
	Width     int    `xml:"width,attr"`
	Height    int    `xml:"height,attr"`
	BaseURL   string `xml:"BaseURL"`
}

func generateDASH(entries []Entry, o options) ([]byte, error) {
	doc := mpd{
		Xmlns:         dashNamespace,
		Type:          "static",
		Profiles:      dashProfile,
		MinBufferTime: dashMinBufferTime,
		Period: period{
			ID: "0",
			AdaptationSet: adaptationSet{
				ContentType:      "video",
				MimeType:         "video/mp4",
				SegmentAlignment: true,
				Representations:  make([]representation, 0, len(entries)),
			},
		},
	}
	if o.durationSeconds > 0 {
		doc.MediaPresentationDuration = isoDuration(o.durationSeconds)
	}

	for _, e := range entries {
		doc.Period.AdaptationSet.Representations = append(doc.Period.AdaptationSet.Representations, representation{
			ID:        e.Quality.ID,
			Bandwidth: e.Quality.BandwidthBps,
			Width:     e.Quality.Resolution.Width,
			Height:    e.Quality.Resolution.Height,
			BaseURL:   RenditionSegmentsURL(e.BaseURL, e.Quality.ID),
		})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("%w: failed to encode MPD: %w", models.ErrManifestGeneration, err)
	}
	buf.WriteByte('\n')

	return buf.Bytes(), nil
}

// isoDuration formats seconds as an ISO 8601 duration, e.g. PT1H2M3.5S
func isoDuration(seconds float64) string {
	// Millisecond precision keeps the output stable across float noise
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000

	out := "PT"
	if h > 0 {
		out += strconv.FormatInt(h, 10) + "H"
	}
	if m > 0 {
		out += strconv.FormatInt(m, 10) + "M"
	}
	if ms > 0 || (h == 0 && m == 0) {
		out += strconv.FormatFloat(float64(ms)/1000, 'f', -1, 64) + "S"
	}
	return out
}
