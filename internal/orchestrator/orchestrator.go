// Package orchestrator drives transcode jobs through their lifecycle:
// submission to the external encoder, status polling or push updates,
// rendition registration and timeout expiry.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/config"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/ladder"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/logging"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/metrics"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/retry"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/storage"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/tracing"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
	"github.com/google/uuid"
)

// Config controls retry and timeout behavior
type Config struct {
	MaxAttempts    int
	PollAttempts   int
	Backoff        retry.Backoff
	RequestTimeout time.Duration
	JobTimeout     time.Duration
}

// ConfigFrom maps the orchestrator config section
func ConfigFrom(cfg config.OrchestratorConfig) Config {
	return Config{
		MaxAttempts:    cfg.MaxAttempts,
		PollAttempts:   cfg.PollAttempts,
		Backoff:        retry.Backoff{Base: cfg.BackoffBase, Max: cfg.BackoffMax},
		RequestTimeout: cfg.RequestTimeout,
		JobTimeout:     cfg.JobTimeout,
	}
}

// TransitionHook observes every persisted status change
type TransitionHook func(jobID string, from, to models.JobStatus)

// Orchestrator owns TranscodeJob state
type Orchestrator struct {
	store    Store
	encoder  Encoder
	registry *ladder.Registry
	locker   Locker
	cfg      Config
	logger   *logging.Logger
	now      func() time.Time
	hooks    []TransitionHook

	// submitMu serializes the active-job check with job creation
	submitMu sync.Mutex
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithLocker replaces the in-process locker, e.g. with a Redis-backed one
func WithLocker(l Locker) Option {
	return func(o *Orchestrator) {
		o.locker = l
	}
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithTransitionHook registers an observer for status changes
func WithTransitionHook(h TransitionHook) Option {
	return func(o *Orchestrator) {
		o.hooks = append(o.hooks, h)
	}
}

// New creates an orchestrator
func New(store Store, encoder Encoder, registry *ladder.Registry, cfg Config, opts ...Option) *Orchestrator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.PollAttempts < 1 {
		cfg.PollAttempts = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}

	o := &Orchestrator{
		store:    store,
		encoder:  encoder,
		registry: registry,
		locker:   NewLocalLocker(),
		cfg:      cfg,
		logger:   logging.NewNopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.WithComponent("orchestrator")
	return o
}

func jobLockKey(jobID string) string {
	return "job:" + jobID
}

// Submit creates a job for assetID and hands it to the encoder. Transport
// failures are retried with backoff; a rejection is not. Cancelling ctx after
// the job is created does not cut the retry budget short. When submission
// ends in failure the failed job is returned together with the error.
func (o *Orchestrator) Submit(ctx context.Context, assetID string, ladderIDs []string) (job *models.TranscodeJob, err error) {
	span, ctx := tracing.StartSpan(ctx, "orchestrator.submit")
	tracing.SetTag(span, "asset_id", assetID)
	defer func() { tracing.FinishSpan(span, err) }()

	if len(ladderIDs) == 0 {
		return nil, fmt.Errorf("%w: empty ladder", models.ErrInvalidLadder)
	}
	levels, err := o.registry.Resolve(ladderIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidLadder, err)
	}

	asset, err := o.store.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}

	job, err = o.createJob(ctx, asset.ID, levels)
	if err != nil {
		return nil, err
	}
	tracing.SetTag(span, "job_id", job.ID)

	release, locked, lerr := o.locker.TryLock(ctx, jobLockKey(job.ID))
	if lerr != nil {
		o.logger.WithJobID(job.ID).WithError(lerr).Warn("Submitting without job lock")
	}
	if locked {
		defer release()
	}

	desc := models.EncodeJobDescription{
		JobID:              job.ID,
		InputKey:           asset.SourceKey,
		OutputPrefix:       storage.BaseKey(asset.SourceKey),
		RequestedQualities: levels,
	}

	// Once created, the job must reach a recorded state even if the caller
	// has gone away. Each attempt is still bounded by RequestTimeout.
	detached := context.WithoutCancel(ctx)

	attempts := 0
	var handle string
	submitErr := retry.Do(detached, o.cfg.MaxAttempts, o.cfg.Backoff, isRejection, func(ctx context.Context, attempt int) error {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
		defer cancel()

		h, err := o.encoder.Submit(callCtx, desc)
		if err != nil {
			o.logger.WithJobID(job.ID).WithError(err).Warnf("Encoder submission attempt %d failed", attempt+1)
			return err
		}
		handle = h
		return nil
	})

	switch {
	case submitErr == nil:
		err = o.advance(detached, job, models.JobStatusSubmitted, func(j *models.TranscodeJob) {
			j.ExternalJobID = handle
			j.Attempts = attempts
		})
		if err != nil {
			return nil, err
		}
		metrics.RecordSubmission("submitted", attempts)
		o.logger.LogJobEvent(job.ID, "submitted", string(job.Status), map[string]interface{}{
			"asset_id":        job.AssetID,
			"external_job_id": handle,
			"attempts":        attempts,
		})
		return job, nil

	case isRejection(submitErr):
		return o.failSubmission(detached, job, attempts, "rejected", models.ErrExternalJobRejected, submitErr)

	default:
		return o.failSubmission(detached, job, attempts, "failed", models.ErrSubmissionFailed, submitErr)
	}
}

func isRejection(err error) bool {
	return errors.Is(err, models.ErrEncoderRejected)
}

func (o *Orchestrator) createJob(ctx context.Context, assetID string, levels []models.QualityLevel) (*models.TranscodeJob, error) {
	o.submitMu.Lock()
	defer o.submitMu.Unlock()

	if active, err := o.store.ActiveJobForAsset(ctx, assetID); err == nil {
		return nil, fmt.Errorf("%w: job %s is %s", models.ErrJobInProgress, active.ID, active.Status)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	ids := make([]string, len(levels))
	for i, l := range levels {
		ids[i] = l.ID
	}

	now := o.now()
	job := &models.TranscodeJob{
		ID:              uuid.New().String(),
		AssetID:         assetID,
		RequestedLadder: ids,
		Status:          models.JobStatusQueued,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	o.logger.LogJobEvent(job.ID, "created", string(job.Status), map[string]interface{}{
		"asset_id": assetID,
		"ladder":   ids,
	})
	return job, nil
}

func (o *Orchestrator) failSubmission(ctx context.Context, job *models.TranscodeJob, attempts int, outcome string, class, cause error) (*models.TranscodeJob, error) {
	err := o.advance(ctx, job, models.JobStatusFailed, func(j *models.TranscodeJob) {
		j.Attempts = attempts
		j.LastError = cause.Error()
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordSubmission(outcome, attempts)
	metrics.RecordError("orchestrator", "submission_"+outcome)
	o.logger.WithJobID(job.ID).WithError(cause).Errorf("Submission %s after %d attempts", outcome, attempts)

	return job, fmt.Errorf("%w: job %s: %w", class, job.ID, cause)
}

// Poll queries the encoder for a job's status and applies it. Terminal jobs
// are returned untouched. If another poll holds the job, the current state
// is returned without querying. Transport errors leave the status unchanged
// and surface as ErrPollTransport.
func (o *Orchestrator) Poll(ctx context.Context, jobID string) (job *models.TranscodeJob, err error) {
	span, ctx := tracing.StartSpan(ctx, "orchestrator.poll")
	tracing.SetTag(span, "job_id", jobID)
	defer func() { tracing.FinishSpan(span, err) }()

	job, err = o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		metrics.RecordPoll("terminal")
		return job, nil
	}

	release, locked, err := o.locker.TryLock(ctx, jobLockKey(jobID))
	if err != nil {
		return job, fmt.Errorf("%w: failed to lock job %s: %w", models.ErrPollTransport, jobID, err)
	}
	if !locked {
		metrics.RecordPoll("busy")
		return job, nil
	}
	defer release()

	// Re-read under the lock; another holder may have moved it on
	job, err = o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() || job.ExternalJobID == "" {
		metrics.RecordPoll("skipped")
		return job, nil
	}

	var status models.ExternalStatus
	err = retry.Do(ctx, o.cfg.PollAttempts, o.cfg.Backoff, nil, func(ctx context.Context, attempt int) error {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
		defer cancel()

		s, err := o.encoder.Status(callCtx, job.ExternalJobID)
		if err != nil {
			return err
		}
		status = s
		return nil
	})
	if err != nil {
		metrics.RecordPoll("transport_error")
		o.logger.WithJobID(jobID).WithError(err).Warn("Status poll failed")
		return job, fmt.Errorf("%w: job %s: %w", models.ErrPollTransport, jobID, err)
	}

	metrics.RecordPoll(string(status.State))
	return o.apply(ctx, job, status)
}

// ApplyStatus applies an externally pushed status, following the same state
// machine as Poll. A job already being updated yields ErrConcurrentUpdate so
// the sender can retry.
func (o *Orchestrator) ApplyStatus(ctx context.Context, jobID string, status models.ExternalStatus) (job *models.TranscodeJob, err error) {
	span, ctx := tracing.StartSpan(ctx, "orchestrator.apply_status")
	tracing.SetTag(span, "job_id", jobID)
	tracing.SetTag(span, "state", string(status.State))
	defer func() { tracing.FinishSpan(span, err) }()

	release, locked, err := o.locker.TryLock(ctx, jobLockKey(jobID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock job %s: %w", jobID, err)
	}
	if !locked {
		return nil, fmt.Errorf("job %s is locked: %w", jobID, models.ErrConcurrentUpdate)
	}
	defer release()

	job, err = o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, nil
	}
	if job.Status == models.JobStatusQueued {
		return job, fmt.Errorf("job %s has not been submitted: %w", jobID, models.ErrInvalidTransition)
	}

	return o.apply(ctx, job, status)
}

// apply maps an external status onto job. The caller holds the job lock.
func (o *Orchestrator) apply(ctx context.Context, job *models.TranscodeJob, status models.ExternalStatus) (*models.TranscodeJob, error) {
	switch status.State {
	case models.ExternalQueued:
		// Accepted but not started; the job stays where it is
		return job, nil

	case models.ExternalInProgress:
		if err := o.ensureProcessing(ctx, job); err != nil {
			return o.settle(ctx, job, err)
		}
		return job, nil

	case models.ExternalSuccess:
		if err := o.ensureProcessing(ctx, job); err != nil {
			return o.settle(ctx, job, err)
		}
		if err := o.registerOutputs(ctx, job, status.Outputs); err != nil {
			return job, err
		}
		if err := o.advance(ctx, job, models.JobStatusComplete, nil); err != nil {
			return o.settle(ctx, job, err)
		}
		return job, nil

	case models.ExternalError, models.ExternalCancelled:
		if err := o.ensureProcessing(ctx, job); err != nil {
			return o.settle(ctx, job, err)
		}
		msg := status.Message
		if msg == "" {
			msg = "encoder reported " + string(status.State)
		}
		err := o.advance(ctx, job, models.JobStatusFailed, func(j *models.TranscodeJob) {
			j.LastError = msg
		})
		if err != nil {
			return o.settle(ctx, job, err)
		}
		return job, nil

	default:
		return job, fmt.Errorf("%w: job %s: unrecognized encoder state %q", models.ErrPollTransport, job.ID, status.State)
	}
}

// ensureProcessing walks a Submitted job through Processing so the recorded
// history never skips a state.
func (o *Orchestrator) ensureProcessing(ctx context.Context, job *models.TranscodeJob) error {
	if job.Status != models.JobStatusSubmitted {
		return nil
	}
	return o.advance(ctx, job, models.JobStatusProcessing, nil)
}

// settle resolves a lost compare-and-set by returning the stored state
func (o *Orchestrator) settle(ctx context.Context, job *models.TranscodeJob, err error) (*models.TranscodeJob, error) {
	if !errors.Is(err, models.ErrConcurrentUpdate) {
		return job, err
	}
	current, gerr := o.store.GetJob(ctx, job.ID)
	if gerr != nil {
		return job, err
	}
	return current, nil
}

// registerOutputs marks one rendition ready per produced quality that was
// requested and is known to the registry.
func (o *Orchestrator) registerOutputs(ctx context.Context, job *models.TranscodeJob, outputs []models.EncodedOutput) error {
	requested := make(map[string]bool, len(job.RequestedLadder))
	for _, id := range job.RequestedLadder {
		requested[id] = true
	}

	for _, out := range outputs {
		if _, known := o.registry.Get(out.QualityID); !known || !requested[out.QualityID] || out.Key == "" {
			o.logger.WithJobID(job.ID).Warnf("Ignoring encoder output %q", out.QualityID)
			continue
		}

		err := o.store.RegisterRendition(ctx, &models.Rendition{
			AssetID:    job.AssetID,
			QualityID:  out.QualityID,
			StorageKey: out.Key,
			Ready:      true,
			CreatedAt:  o.now(),
		})
		if err != nil {
			return fmt.Errorf("failed to register rendition %s for job %s: %w", out.QualityID, job.ID, err)
		}
		metrics.RecordRendition(out.QualityID)
	}

	if len(outputs) < len(job.RequestedLadder) {
		o.logger.LogJobEvent(job.ID, "partial_ladder", string(job.Status), map[string]interface{}{
			"requested": len(job.RequestedLadder),
			"produced":  len(outputs),
		})
	}
	return nil
}

// ExpireStale fails every non-terminal job older than the job timeout.
// Renditions registered so far stay ready. It returns the number of jobs expired.
func (o *Orchestrator) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	if o.cfg.JobTimeout <= 0 {
		return 0, nil
	}

	jobs, err := o.store.ListActiveJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active jobs: %w", err)
	}

	expired := 0
	for _, candidate := range jobs {
		if now.Sub(candidate.CreatedAt) <= o.cfg.JobTimeout {
			continue
		}

		ok, err := o.expire(ctx, candidate.ID, now)
		if err != nil {
			o.logger.WithJobID(candidate.ID).WithError(err).Warn("Failed to expire job")
			continue
		}
		if ok {
			expired++
		}
	}

	return expired, nil
}

func (o *Orchestrator) expire(ctx context.Context, jobID string, now time.Time) (bool, error) {
	release, locked, err := o.locker.TryLock(ctx, jobLockKey(jobID))
	if err != nil || !locked {
		return false, err
	}
	defer release()

	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.Status.Terminal() || now.Sub(job.CreatedAt) <= o.cfg.JobTimeout {
		return false, nil
	}

	if err := o.ensureProcessing(ctx, job); err != nil {
		return false, err
	}
	err = o.advance(ctx, job, models.JobStatusFailed, func(j *models.TranscodeJob) {
		j.LastError = fmt.Sprintf("timed out after %s", o.cfg.JobTimeout)
	})
	if err != nil {
		return false, err
	}

	metrics.RecordError("orchestrator", "job_timeout")
	return true, nil
}

// Job returns a job by id
func (o *Orchestrator) Job(ctx context.Context, id string) (*models.TranscodeJob, error) {
	return o.store.GetJob(ctx, id)
}

// ActiveJobs returns every non-terminal job
func (o *Orchestrator) ActiveJobs(ctx context.Context) ([]*models.TranscodeJob, error) {
	return o.store.ListActiveJobs(ctx)
}

// advance validates and persists a single transition, then updates job in place
func (o *Orchestrator) advance(ctx context.Context, job *models.TranscodeJob, next models.JobStatus, mutate func(*models.TranscodeJob)) error {
	from := job.Status

	updated := job.Clone()
	if err := updated.Transition(next, o.now()); err != nil {
		return err
	}
	if mutate != nil {
		mutate(updated)
	}

	if err := o.store.UpdateJob(ctx, updated, from); err != nil {
		return err
	}
	*job = *updated

	metrics.RecordTransition(string(from), string(next))
	if next.Terminal() {
		metrics.RecordJobCompleted(string(next), job.UpdatedAt.Sub(job.CreatedAt).Seconds())
	}
	o.logger.LogJobTransition(job.ID, job.AssetID, string(from), string(next))
	for _, h := range o.hooks {
		h(job.ID, from, next)
	}
	return nil
}
