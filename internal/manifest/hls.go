package manifest

import (
	"fmt"
	"strings"
)

func generateHLS(entries []Entry, o options) []byte {
	var content strings.Builder

	content.WriteString("#EXTM3U\n")
	content.WriteString("#EXT-X-VERSION:3\n")
	content.WriteString(fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", o.targetDuration))

	for _, e := range entries {
		content.WriteString(fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n",
			e.Quality.BandwidthBps,
			e.Quality.Resolution.Width,
			e.Quality.Resolution.Height,
		))
		content.WriteString(RenditionPlaylistURL(e.BaseURL, e.Quality.ID) + "\n")
	}

	return []byte(content.String())
}
