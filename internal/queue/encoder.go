package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
)

// Publisher hands encode jobs to the worker fleet
type Publisher interface {
	PublishJob(ctx context.Context, desc *models.EncodeJobDescription) error
}

// StatusStore is where workers report encode progress
type StatusStore interface {
	SetEncodeStatus(ctx context.Context, handle string, status models.ExternalStatus, ttl time.Duration) error
	GetEncodeStatus(ctx context.Context, handle string) (*models.ExternalStatus, error)
}

// Encoder is the transcoding collaborator backed by the worker queue.
// Submissions are published to RabbitMQ; workers write status to Redis.
type Encoder struct {
	publisher Publisher
	statuses  StatusStore
	statusTTL time.Duration
}

// NewEncoder creates an encoder client
func NewEncoder(publisher Publisher, statuses StatusStore, statusTTL time.Duration) *Encoder {
	return &Encoder{
		publisher: publisher,
		statuses:  statuses,
		statusTTL: statusTTL,
	}
}

// Submit enqueues desc and returns the handle used for status queries.
// Malformed descriptions are rejected with ErrEncoderRejected.
func (e *Encoder) Submit(ctx context.Context, desc models.EncodeJobDescription) (string, error) {
	if desc.JobID == "" || desc.InputKey == "" || desc.OutputPrefix == "" {
		return "", fmt.Errorf("%w: job id, input key and output prefix are required", models.ErrEncoderRejected)
	}
	if len(desc.RequestedQualities) == 0 {
		return "", fmt.Errorf("%w: no qualities requested", models.ErrEncoderRejected)
	}

	handle := desc.JobID

	// Seed status first so a poll racing the worker sees the job as queued
	pending := models.ExternalStatus{State: models.ExternalQueued}
	if err := e.statuses.SetEncodeStatus(ctx, handle, pending, e.statusTTL); err != nil {
		return "", fmt.Errorf("failed to record encode status: %w", err)
	}

	if err := e.publisher.PublishJob(ctx, &desc); err != nil {
		return "", err
	}

	return handle, nil
}

// Status reports the latest state of an encode. A handle with no recorded
// status has expired or never existed, which is terminal.
func (e *Encoder) Status(ctx context.Context, handle string) (models.ExternalStatus, error) {
	status, err := e.statuses.GetEncodeStatus(ctx, handle)
	if errors.Is(err, models.ErrNotFound) {
		return models.ExternalStatus{
			State:   models.ExternalError,
			Message: fmt.Sprintf("no status recorded for encode %s", handle),
		}, nil
	}
	if err != nil {
		return models.ExternalStatus{}, err
	}
	return *status, nil
}
