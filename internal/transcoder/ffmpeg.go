package transcoder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// FFmpeg wraps FFmpeg operations
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpeg creates a new FFmpeg instance
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// VideoMetadata holds video metadata extracted from ffprobe
type VideoMetadata struct {
	Format  FormatInfo   `json:"format"`
	Streams []StreamInfo `json:"streams"`
}

// FormatInfo holds format information
type FormatInfo struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// StreamInfo holds stream information
type StreamInfo struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	BitRate      string `json:"bit_rate"`
	FrameRate    string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

// ProbeVideo extracts metadata from a video file
func (f *FFmpeg) ProbeVideo(ctx context.Context, inputPath string) (*VideoMetadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, stderr.String())
	}

	var metadata VideoMetadata
	if err := json.Unmarshal(stdout.Bytes(), &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	return &metadata, nil
}

// SourceInfo is the subset of probe output the encoder acts on
type SourceInfo struct {
	DurationSeconds float64
	Width           int
	Height          int
	Codec           string
	FrameRate       float64
	HasAudio        bool
}

// Probe extracts basic information about a source file
func (f *FFmpeg) Probe(ctx context.Context, inputPath string) (*SourceInfo, error) {
	metadata, err := f.ProbeVideo(ctx, inputPath)
	if err != nil {
		return nil, err
	}
	return sourceInfo(metadata), nil
}

func sourceInfo(metadata *VideoMetadata) *SourceInfo {
	info := &SourceInfo{}

	if duration, err := strconv.ParseFloat(metadata.Format.Duration, 64); err == nil {
		info.DurationSeconds = duration
	}

	videoFound := false
	for _, stream := range metadata.Streams {
		switch stream.CodecType {
		case "audio":
			info.HasAudio = true
		case "video":
			if videoFound {
				continue
			}
			videoFound = true
			info.Width = stream.Width
			info.Height = stream.Height
			info.Codec = stream.CodecName
			info.FrameRate = parseFrameRate(stream.AvgFrameRate)
		}
	}

	return info
}

// parseFrameRate turns an ffprobe rational like "30000/1001" into fps
func parseFrameRate(value string) float64 {
	parts := strings.Split(value, "/")
	if len(parts) != 2 {
		return 0
	}
	num, _ := strconv.ParseFloat(parts[0], 64)
	den, _ := strconv.ParseFloat(parts[1], 64)
	if den == 0 {
		return 0
	}
	return num / den
}

// TranscodeOptions holds transcoding options
type TranscodeOptions struct {
	InputPath    string
	OutputPath   string
	Width        int
	Height       int
	VideoBitrate string
	AudioBitrate string
	VideoCodec   string
	AudioCodec   string
	Preset       string
	Format       string
	ExtraArgs    []string

	// DurationSeconds drives progress reporting; probed when zero
	DurationSeconds float64
}

// ProgressCallback is called with progress updates
type ProgressCallback func(progress float64)

// Transcode transcodes a video file with progress tracking
func (f *FFmpeg) Transcode(ctx context.Context, opts TranscodeOptions, progressCB ProgressCallback) error {
	totalDuration := opts.DurationSeconds
	if totalDuration <= 0 && progressCB != nil {
		if info, err := f.Probe(ctx, opts.InputPath); err == nil {
			totalDuration = info.DurationSeconds
		}
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, transcodeArgs(opts)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	// Parse progress
	progressRegex := regexp.MustCompile(`out_time_ms=(\d+)`)
	scanner := bufio.NewScanner(stdout)

	done := make(chan struct{}, 2)
	go func() {
		defer func() { done <- struct{}{} }()
		for scanner.Scan() {
			line := scanner.Text()
			if matches := progressRegex.FindStringSubmatch(line); len(matches) > 1 {
				if timeMs, err := strconv.ParseFloat(matches[1], 64); err == nil {
					currentTime := timeMs / 1000000.0 // Convert to seconds
					if totalDuration > 0 {
						progress := (currentTime / totalDuration) * 100
						if progress > 100 {
							progress = 100
						}
						if progressCB != nil {
							progressCB(progress)
						}
					}
				}
			}
		}
	}()

	// Capture stderr for error reporting
	var stderrBuf bytes.Buffer
	go func() {
		defer func() { done <- struct{}{} }()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			stderrBuf.WriteString(scanner.Text() + "\n")
		}
	}()

	// Pipes must be drained before Wait closes them
	<-done
	<-done

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, stderrBuf.String())
	}

	// Final progress update
	if progressCB != nil {
		progressCB(100)
	}

	return nil
}

// transcodeArgs builds the ffmpeg argument list for opts
func transcodeArgs(opts TranscodeOptions) []string {
	args := []string{
		"-i", opts.InputPath,
		"-y", // overwrite output
	}

	// Video codec
	if opts.VideoCodec != "" {
		args = append(args, "-c:v", opts.VideoCodec)
	} else {
		args = append(args, "-c:v", "libx264")
	}

	// Video bitrate
	if opts.VideoBitrate != "" {
		args = append(args, "-b:v", opts.VideoBitrate)
	}

	// Resolution
	if opts.Width > 0 && opts.Height > 0 {
		args = append(args, "-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height))
	}

	// Preset
	if opts.Preset != "" {
		args = append(args, "-preset", opts.Preset)
	} else {
		args = append(args, "-preset", "medium")
	}

	// Audio codec
	if opts.AudioCodec != "" {
		args = append(args, "-c:a", opts.AudioCodec)
	} else {
		args = append(args, "-c:a", "aac")
	}

	// Audio bitrate
	if opts.AudioBitrate != "" {
		args = append(args, "-b:a", opts.AudioBitrate)
	}

	// Extra arguments
	args = append(args, opts.ExtraArgs...)

	// Progress tracking
	args = append(args, "-progress", "pipe:1")

	// Output
	return append(args, opts.OutputPath)
}

// ExtractThumbnail extracts a thumbnail from a video at a specific time
func (f *FFmpeg) ExtractThumbnail(ctx context.Context, inputPath, outputPath string, timeSeconds float64) error {
	args := []string{
		"-i", inputPath,
		"-ss", fmt.Sprintf("%.2f", timeSeconds),
		"-vframes", "1",
		"-q:v", "2",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to extract thumbnail: %w, stderr: %s", err, stderr.String())
	}

	return nil
}
