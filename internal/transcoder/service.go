package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/config"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/logging"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/metrics"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/storage"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
)

// MediaEncoder is the ffmpeg surface the service drives
type MediaEncoder interface {
	Probe(ctx context.Context, inputPath string) (*SourceInfo, error)
	EncodeRendition(ctx context.Context, opts RenditionOptions, progressCB ProgressCallback) (*RenditionResult, error)
	ExtractThumbnail(ctx context.Context, inputPath, outputPath string, timeSeconds float64) error
}

// ObjectStore moves files between local disk and object storage
type ObjectStore interface {
	DownloadFile(ctx context.Context, key, filePath string) error
	UploadFile(ctx context.Context, key, filePath string) error
}

// StatusWriter records the externally visible job status
type StatusWriter interface {
	SetEncodeStatus(ctx context.Context, handle string, status models.ExternalStatus, ttl time.Duration) error
}

// StatusNotifier pushes status changes to the API
type StatusNotifier interface {
	NotifyStatus(ctx context.Context, jobID string, status models.ExternalStatus) error
}

// ServiceConfig holds worker settings
type ServiceConfig struct {
	TempDir     string
	SegmentTime int
	Preset      string
	StatusTTL   time.Duration
}

// ServiceConfigFrom maps the worker config section
func ServiceConfigFrom(cfg config.WorkerConfig) ServiceConfig {
	return ServiceConfig{
		TempDir:     cfg.TempDir,
		SegmentTime: cfg.SegmentTime,
		Preset:      cfg.Preset,
		StatusTTL:   cfg.StatusTTL,
	}
}

// Service executes encode jobs: it downloads the source, encodes each
// requested quality, uploads the results and reports status.
type Service struct {
	encoder  MediaEncoder
	objects  ObjectStore
	statuses StatusWriter
	notifier StatusNotifier
	cfg      ServiceConfig
	logger   *logging.Logger
}

// NewService creates a new transcoder service. notifier may be nil.
func NewService(encoder MediaEncoder, objects ObjectStore, statuses StatusWriter, notifier StatusNotifier, cfg ServiceConfig, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Service{
		encoder:  encoder,
		objects:  objects,
		statuses: statuses,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.WithComponent("transcoder"),
	}
}

// ProcessJob runs one encode job to completion. A job whose qualities all
// fail is reported as an error; if at least one quality succeeds the job is
// reported as a success listing only the produced outputs. The returned error
// is non-nil only when the status itself could not be recorded.
func (s *Service) ProcessJob(ctx context.Context, desc *models.EncodeJobDescription) error {
	logger := s.logger.WithJobID(desc.JobID)
	logger.LogJobEvent(desc.JobID, "encode_started", string(models.ExternalInProgress), map[string]interface{}{
		"input_key": desc.InputKey,
		"qualities": len(desc.RequestedQualities),
	})

	if err := s.report(ctx, desc.JobID, models.ExternalStatus{State: models.ExternalInProgress}); err != nil {
		return err
	}

	outputs, err := s.encode(ctx, desc)

	status := models.ExternalStatus{State: models.ExternalSuccess, Outputs: outputs}
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		status = models.ExternalStatus{State: models.ExternalCancelled, Message: "worker shut down"}
	case len(outputs) == 0:
		msg := "no quality could be encoded"
		if err != nil {
			msg = err.Error()
		}
		status = models.ExternalStatus{State: models.ExternalError, Message: msg}
	}

	// Report even if the job context is gone
	if rerr := s.report(context.WithoutCancel(ctx), desc.JobID, status); rerr != nil {
		return rerr
	}

	logger.LogJobEvent(desc.JobID, "encode_finished", string(status.State), map[string]interface{}{
		"outputs": len(outputs),
	})
	return nil
}

func (s *Service) encode(ctx context.Context, desc *models.EncodeJobDescription) ([]models.EncodedOutput, error) {
	tempDir := filepath.Join(s.cfg.TempDir, desc.JobID)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	inputPath := filepath.Join(tempDir, "input"+filepath.Ext(desc.InputKey))
	if err := s.objects.DownloadFile(ctx, desc.InputKey, inputPath); err != nil {
		return nil, fmt.Errorf("failed to download source: %w", err)
	}

	info, err := s.encoder.Probe(ctx, inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to probe source: %w", err)
	}

	s.uploadPoster(ctx, desc, inputPath, tempDir, info)

	var outputs []models.EncodedOutput
	var lastErr error
	for _, q := range desc.RequestedQualities {
		if ctx.Err() != nil {
			return outputs, ctx.Err()
		}

		key, err := s.encodeQuality(ctx, desc, q, inputPath, tempDir, info)
		if err != nil {
			lastErr = err
			s.logger.WithJobID(desc.JobID).WithError(err).Warnf("Quality %s failed", q.ID)
			continue
		}
		outputs = append(outputs, models.EncodedOutput{QualityID: q.ID, Key: key})
	}

	return outputs, lastErr
}

func (s *Service) encodeQuality(ctx context.Context, desc *models.EncodeJobDescription, q models.QualityLevel, inputPath, tempDir string, info *SourceInfo) (string, error) {
	// Never upscale past the source
	if info.Height > 0 && q.Resolution.Height > info.Height {
		return "", fmt.Errorf("quality %s exceeds source height %d", q.ID, info.Height)
	}

	start := time.Now()
	result, err := s.encoder.EncodeRendition(ctx, RenditionOptions{
		InputPath:       inputPath,
		OutputDir:       filepath.Join(tempDir, "out"),
		Quality:         q,
		SegmentTime:     s.cfg.SegmentTime,
		Preset:          s.cfg.Preset,
		DurationSeconds: info.DurationSeconds,
	}, nil)
	metrics.RecordEncode(q.ID, metrics.Status(err), time.Since(start).Seconds())
	if err != nil {
		return "", err
	}

	for _, file := range result.Files {
		key := storage.RenditionKey(desc.OutputPrefix, q.ID, filepath.Base(file))
		if err := s.objects.UploadFile(ctx, key, file); err != nil {
			return "", fmt.Errorf("failed to upload %s: %w", key, err)
		}
	}

	return storage.RenditionKey(desc.OutputPrefix, q.ID, PlaylistName), nil
}

// uploadPoster grabs a frame a tenth of the way in. Failure only costs the poster.
func (s *Service) uploadPoster(ctx context.Context, desc *models.EncodeJobDescription, inputPath, tempDir string, info *SourceInfo) {
	posterPath := filepath.Join(tempDir, "poster.jpg")
	if err := s.encoder.ExtractThumbnail(ctx, inputPath, posterPath, info.DurationSeconds/10); err != nil {
		s.logger.WithJobID(desc.JobID).WithError(err).Warn("Failed to extract poster")
		return
	}
	if err := s.objects.UploadFile(ctx, storage.PosterKey(desc.InputKey), posterPath); err != nil {
		s.logger.WithJobID(desc.JobID).WithError(err).Warn("Failed to upload poster")
	}
}

func (s *Service) report(ctx context.Context, jobID string, status models.ExternalStatus) error {
	if err := s.statuses.SetEncodeStatus(ctx, jobID, status, s.cfg.StatusTTL); err != nil {
		return fmt.Errorf("failed to record status for job %s: %w", jobID, err)
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyStatus(ctx, jobID, status); err != nil {
			// polling still picks the status up from the store
			s.logger.WithJobID(jobID).WithError(err).Warn("Status callback failed")
		}
	}
	return nil
}
