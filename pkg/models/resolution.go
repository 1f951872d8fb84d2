package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Resolution is a frame size in pixels
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// String formats the resolution as WIDTHxHEIGHT
func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// IsZero reports whether either dimension is unset
func (r Resolution) IsZero() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Fits reports whether r fits inside max in both dimensions
func (r Resolution) Fits(max Resolution) bool {
	return r.Width <= max.Width && r.Height <= max.Height
}

// Common device class resolutions
var (
	Resolution360p  = Resolution{Width: 640, Height: 360}
	Resolution480p  = Resolution{Width: 854, Height: 480}
	Resolution720p  = Resolution{Width: 1280, Height: 720}
	Resolution1080p = Resolution{Width: 1920, Height: 1080}
	Resolution4K    = Resolution{Width: 3840, Height: 2160}
)

// ParseResolution parses "1280x720" or a short name such as "720p" or "4k"
func ParseResolution(value string) (Resolution, error) {
	value = strings.ToLower(strings.TrimSpace(value))

	named := map[string]Resolution{
		"360p":  Resolution360p,
		"480p":  Resolution480p,
		"720p":  Resolution720p,
		"1080p": Resolution1080p,
		"2160p": Resolution4K,
		"4k":    Resolution4K,
	}
	if res, ok := named[value]; ok {
		return res, nil
	}

	parts := strings.Split(value, "x")
	if len(parts) != 2 {
		return Resolution{}, fmt.Errorf("invalid resolution %q", value)
	}

	width, err := strconv.Atoi(parts[0])
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid resolution width %q: %w", parts[0], err)
	}
	height, err := strconv.Atoi(parts[1])
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid resolution height %q: %w", parts[1], err)
	}

	res := Resolution{Width: width, Height: height}
	if res.IsZero() {
		return Resolution{}, fmt.Errorf("invalid resolution %q", value)
	}
	return res, nil
}
