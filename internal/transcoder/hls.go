package transcoder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
)

// File names written for every rendition. The master manifests reference
// these relative to <base>/<qualityId>/.
const (
	PlaylistName = "playlist.m3u8"
	SegmentsName = "segments.mp4"
)

// RenditionOptions holds options for encoding one quality level
type RenditionOptions struct {
	InputPath       string
	OutputDir       string
	Quality         models.QualityLevel
	SegmentTime     int // Segment duration in seconds (default: 6)
	Preset          string
	AudioBitrate    string
	DurationSeconds float64
}

// RenditionResult lists the files produced for a quality level
type RenditionResult struct {
	QualityID    string
	Dir          string
	PlaylistPath string
	SegmentsPath string
	Files        []string
}

// EncodeRendition encodes a single quality into a progressive MP4 for DASH
// and packages the same stream as an HLS media playlist with TS segments.
// Output lands in <OutputDir>/<qualityId>/.
func (f *FFmpeg) EncodeRendition(ctx context.Context, opts RenditionOptions, progressCB ProgressCallback) (*RenditionResult, error) {
	if opts.Quality.ID == "" || opts.Quality.Resolution.IsZero() || opts.Quality.BitrateKbps <= 0 {
		return nil, fmt.Errorf("invalid quality level %+v", opts.Quality)
	}
	if opts.SegmentTime <= 0 {
		opts.SegmentTime = 6
	}
	if opts.Preset == "" {
		opts.Preset = "medium"
	}
	if opts.AudioBitrate == "" {
		opts.AudioBitrate = "128k"
	}

	dir := filepath.Join(opts.OutputDir, opts.Quality.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &RenditionResult{
		QualityID:    opts.Quality.ID,
		Dir:          dir,
		PlaylistPath: filepath.Join(dir, PlaylistName),
		SegmentsPath: filepath.Join(dir, SegmentsName),
	}

	if err := f.Transcode(ctx, renditionTranscodeOptions(opts, result.SegmentsPath), progressCB); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", opts.Quality.ID, err)
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, hlsPackageArgs(result.SegmentsPath, dir, opts.SegmentTime)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg HLS packaging failed for %s: %w, stderr: %s", opts.Quality.ID, err, stderr.String())
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list rendition output: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			result.Files = append(result.Files, filepath.Join(dir, e.Name()))
		}
	}

	return result, nil
}

// renditionTranscodeOptions maps a quality level onto H.264/AAC settings
func renditionTranscodeOptions(opts RenditionOptions, outputPath string) TranscodeOptions {
	q := opts.Quality

	profile := "high"
	if q.Resolution.Height <= 480 {
		profile = "main"
	}

	return TranscodeOptions{
		InputPath:    opts.InputPath,
		OutputPath:   outputPath,
		Width:        q.Resolution.Width,
		Height:       q.Resolution.Height,
		VideoBitrate: fmt.Sprintf("%dk", q.BitrateKbps),
		AudioBitrate: opts.AudioBitrate,
		VideoCodec:   "libx264",
		AudioCodec:   "aac",
		Preset:       opts.Preset,
		Format:       "mp4",
		ExtraArgs: []string{
			"-maxrate", fmt.Sprintf("%dk", q.BitrateKbps),
			"-bufsize", fmt.Sprintf("%dk", q.BitrateKbps*2),
			"-profile:v", profile,
			"-level:v", "4.0",
			// keyframes on segment boundaries so HLS and DASH cut identically
			"-force_key_frames", fmt.Sprintf("expr:gte(t,n_forced*%d)", opts.SegmentTime),
			"-movflags", "+faststart",
		},
		DurationSeconds: opts.DurationSeconds,
	}
}

// hlsPackageArgs repackages an encoded MP4 as a VOD media playlist without re-encoding
func hlsPackageArgs(inputPath, dir string, segmentTime int) []string {
	return []string{
		"-i", inputPath,
		"-y",
		"-c", "copy",
		"-f", "hls",
		"-hls_time", fmt.Sprintf("%d", segmentTime),
		"-hls_playlist_type", "vod",
		"-hls_flags", "independent_segments+temp_file",
		"-hls_segment_type", "mpegts",
		"-hls_segment_filename", filepath.Join(dir, "segment_%03d.ts"),
		filepath.Join(dir, PlaylistName),
	}
}
