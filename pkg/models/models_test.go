package models

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		from JobStatus
		to   JobStatus
		want bool
	}{
		{JobStatusQueued, JobStatusSubmitted, true},
		{JobStatusQueued, JobStatusFailed, true},
		{JobStatusQueued, JobStatusProcessing, false},
		{JobStatusQueued, JobStatusComplete, false},
		{JobStatusSubmitted, JobStatusProcessing, true},
		{JobStatusSubmitted, JobStatusQueued, false},
		{JobStatusSubmitted, JobStatusComplete, false},
		{JobStatusProcessing, JobStatusComplete, true},
		{JobStatusProcessing, JobStatusFailed, true},
		{JobStatusProcessing, JobStatusSubmitted, false},
		{JobStatusComplete, JobStatusFailed, false},
		{JobStatusFailed, JobStatusQueued, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTransitionsNeverDecreaseRank(t *testing.T) {
	statuses := []JobStatus{
		JobStatusQueued,
		JobStatusSubmitted,
		JobStatusProcessing,
		JobStatusComplete,
		JobStatusFailed,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			if from.CanTransitionTo(to) && to.Rank() <= from.Rank() {
				t.Errorf("transition %s -> %s moves backward", from, to)
			}
		}
	}
}

func TestTranscodeJobTransition(t *testing.T) {
	job := &TranscodeJob{ID: "job-1", Status: JobStatusQueued}
	now := time.Now()

	if err := job.Transition(JobStatusSubmitted, now); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if job.Status != JobStatusSubmitted || !job.UpdatedAt.Equal(now) {
		t.Errorf("unexpected job state %+v", job)
	}

	err := job.Transition(JobStatusQueued, now)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if job.Status != JobStatusSubmitted {
		t.Errorf("status changed on rejected transition: %s", job.Status)
	}
}

func TestTranscodeJobClone(t *testing.T) {
	job := &TranscodeJob{ID: "job-1", RequestedLadder: []string{QualitySD480}}
	clone := job.Clone()
	clone.RequestedLadder[0] = "mutated"

	if job.RequestedLadder[0] != QualitySD480 {
		t.Error("Clone shares ladder slice with original")
	}
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		input   string
		want    Resolution
		wantErr bool
	}{
		{"1280x720", Resolution720p, false},
		{"720p", Resolution720p, false},
		{"4K", Resolution4K, false},
		{" 854x480 ", Resolution480p, false},
		{"1280", Resolution{}, true},
		{"0x720", Resolution{}, true},
		{"wide", Resolution{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseResolution(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseResolution(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseResolution(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolutionFits(t *testing.T) {
	if !Resolution720p.Fits(Resolution1080p) {
		t.Error("720p should fit inside 1080p")
	}
	if Resolution1080p.Fits(Resolution720p) {
		t.Error("1080p should not fit inside 720p")
	}
}

func TestNoPlayableRenditionError(t *testing.T) {
	var err error = &NoPlayableRenditionError{AssetID: "a1", Reason: ReasonNotReady}
	wrapped := fmt.Errorf("resolve: %w", err)

	if !errors.Is(wrapped, ErrNoPlayableRendition) {
		t.Error("expected wrapped error to match ErrNoPlayableRendition")
	}

	var target *NoPlayableRenditionError
	if !errors.As(wrapped, &target) || target.Reason != ReasonNotReady {
		t.Errorf("expected reason %s, got %+v", ReasonNotReady, target)
	}
}

func TestStreamingFormat(t *testing.T) {
	if StreamingFormatHLS.ManifestName() != "master.m3u8" {
		t.Errorf("unexpected HLS manifest name %s", StreamingFormatHLS.ManifestName())
	}
	if StreamingFormatDASH.ManifestName() != "manifest.mpd" {
		t.Errorf("unexpected DASH manifest name %s", StreamingFormatDASH.ManifestName())
	}
	if StreamingFormat("smooth").Valid() {
		t.Error("smooth streaming should not be valid")
	}
}
