package models

import (
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a transcode job
type JobStatus string

// JobStatus constants
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusSubmitted  JobStatus = "submitted"
	JobStatusProcessing JobStatus = "processing"
	JobStatusComplete   JobStatus = "complete"
	JobStatusFailed     JobStatus = "failed"
)

// jobTransitions lists the legal successor states for each status.
// Queued may fail directly when submission is exhausted or rejected.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:     {JobStatusSubmitted, JobStatusFailed},
	JobStatusSubmitted:  {JobStatusProcessing},
	JobStatusProcessing: {JobStatusComplete, JobStatusFailed},
	JobStatusComplete:   nil,
	JobStatusFailed:     nil,
}

// Valid reports whether s is a known status
func (s JobStatus) Valid() bool {
	_, ok := jobTransitions[s]
	return ok
}

// Terminal reports whether no further transitions are possible
func (s JobStatus) Terminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed
}

// Rank orders statuses along the lifecycle. Complete and Failed share a rank.
func (s JobStatus) Rank() int {
	switch s {
	case JobStatusQueued:
		return 0
	case JobStatusSubmitted:
		return 1
	case JobStatusProcessing:
		return 2
	case JobStatusComplete, JobStatusFailed:
		return 3
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving from s to next is legal
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TranscodeJob tracks a single submission of an asset to the external encoder
type TranscodeJob struct {
	ID              string    `json:"id" db:"id"`
	AssetID         string    `json:"asset_id" db:"asset_id"`
	RequestedLadder []string  `json:"requested_ladder" db:"requested_ladder"`
	Status          JobStatus `json:"status" db:"status"`
	ExternalJobID   string    `json:"external_job_id,omitempty" db:"external_job_id"`
	Attempts        int       `json:"attempts" db:"attempts"`
	LastError       string    `json:"last_error,omitempty" db:"last_error"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Transition moves the job to next, rejecting illegal moves
func (j *TranscodeJob) Transition(next JobStatus, at time.Time) error {
	if !j.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, next)
	}
	j.Status = next
	j.UpdatedAt = at
	return nil
}

// Clone returns a deep copy so callers cannot mutate stored state
func (j *TranscodeJob) Clone() *TranscodeJob {
	if j == nil {
		return nil
	}
	c := *j
	c.RequestedLadder = append([]string(nil), j.RequestedLadder...)
	return &c
}
