package transcoder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/ladder"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEncoder struct {
	info    SourceInfo
	failFor map[string]bool
}

func (f *fakeEncoder) Probe(ctx context.Context, inputPath string) (*SourceInfo, error) {
	info := f.info
	return &info, nil
}

func (f *fakeEncoder) EncodeRendition(ctx context.Context, opts RenditionOptions, progressCB ProgressCallback) (*RenditionResult, error) {
	if f.failFor[opts.Quality.ID] {
		return nil, errors.New("encoder crashed")
	}
	dir := filepath.Join(opts.OutputDir, opts.Quality.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	files := []string{filepath.Join(dir, PlaylistName), filepath.Join(dir, "segment_000.ts"), filepath.Join(dir, SegmentsName)}
	for _, file := range files {
		if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
			return nil, err
		}
	}
	return &RenditionResult{QualityID: opts.Quality.ID, Dir: dir, Files: files}, nil
}

func (f *fakeEncoder) ExtractThumbnail(ctx context.Context, inputPath, outputPath string, timeSeconds float64) error {
	return os.WriteFile(outputPath, []byte("jpg"), 0644)
}

type fakeObjects struct {
	mu          sync.Mutex
	uploaded    []string
	downloadErr error
}

func (f *fakeObjects) DownloadFile(ctx context.Context, key, filePath string) error {
	if f.downloadErr != nil {
		return f.downloadErr
	}
	return os.WriteFile(filePath, []byte("source"), 0644)
}

func (f *fakeObjects) UploadFile(ctx context.Context, key, filePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded = append(f.uploaded, key)
	return nil
}

type recordedStatuses struct {
	mu      sync.Mutex
	history []models.ExternalStatus
}

func (r *recordedStatuses) SetEncodeStatus(ctx context.Context, handle string, status models.ExternalStatus, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, status)
	return nil
}

func (r *recordedStatuses) NotifyStatus(ctx context.Context, jobID string, status models.ExternalStatus) error {
	return errors.New("api unreachable")
}

func (r *recordedStatuses) last() models.ExternalStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history[len(r.history)-1]
}

func newTestService(t *testing.T, enc *fakeEncoder, objects *fakeObjects, statuses *recordedStatuses) *Service {
	return NewService(enc, objects, statuses, statuses, ServiceConfig{
		TempDir:     t.TempDir(),
		SegmentTime: 6,
		StatusTTL:   time.Hour,
	}, nil)
}

func description(t *testing.T, ids ...string) *models.EncodeJobDescription {
	levels, err := ladder.Default().Resolve(ids)
	require.NoError(t, err)
	return &models.EncodeJobDescription{
		JobID:              "job-1",
		InputKey:           "uploads/1-movie.mp4",
		OutputPrefix:       "uploads/1-movie",
		RequestedQualities: levels,
	}
}

func TestProcessJobSuccess(t *testing.T) {
	enc := &fakeEncoder{info: SourceInfo{DurationSeconds: 60, Width: 1920, Height: 1080}}
	objects := &fakeObjects{}
	statuses := &recordedStatuses{}
	svc := newTestService(t, enc, objects, statuses)

	err := svc.ProcessJob(context.Background(), description(t, models.QualitySD480, models.QualityHD720))
	require.NoError(t, err)

	require.Len(t, statuses.history, 2)
	assert.Equal(t, models.ExternalInProgress, statuses.history[0].State)

	final := statuses.last()
	assert.Equal(t, models.ExternalSuccess, final.State)
	assert.Equal(t, []models.EncodedOutput{
		{QualityID: models.QualitySD480, Key: "uploads/1-movie/sd480/playlist.m3u8"},
		{QualityID: models.QualityHD720, Key: "uploads/1-movie/hd720/playlist.m3u8"},
	}, final.Outputs)

	assert.Contains(t, objects.uploaded, "uploads/1-movie/poster.jpg")
	assert.Contains(t, objects.uploaded, "uploads/1-movie/hd720/segments.mp4")
	assert.Contains(t, objects.uploaded, "uploads/1-movie/sd480/segment_000.ts")
}

func TestProcessJobPartialLadder(t *testing.T) {
	// 720p source cannot produce 1080p; sd480 crashes
	enc := &fakeEncoder{
		info:    SourceInfo{DurationSeconds: 60, Width: 1280, Height: 720},
		failFor: map[string]bool{models.QualitySD480: true},
	}
	statuses := &recordedStatuses{}
	svc := newTestService(t, enc, &fakeObjects{}, statuses)

	err := svc.ProcessJob(context.Background(), description(t, models.QualitySD480, models.QualityHD720, models.QualityHD1080))
	require.NoError(t, err)

	final := statuses.last()
	assert.Equal(t, models.ExternalSuccess, final.State)
	require.Len(t, final.Outputs, 1)
	assert.Equal(t, models.QualityHD720, final.Outputs[0].QualityID)
}

func TestProcessJobAllQualitiesFail(t *testing.T) {
	statuses := &recordedStatuses{}
	svc := newTestService(t, &fakeEncoder{}, &fakeObjects{downloadErr: errors.New("no such key")}, statuses)

	err := svc.ProcessJob(context.Background(), description(t, models.QualitySD480))
	require.NoError(t, err)

	final := statuses.last()
	assert.Equal(t, models.ExternalError, final.State)
	assert.Contains(t, final.Message, "no such key")
}

func TestProcessJobCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	statuses := &recordedStatuses{}
	svc := newTestService(t, &fakeEncoder{info: SourceInfo{Height: 1080}}, &fakeObjects{}, statuses)

	require.NoError(t, svc.ProcessJob(ctx, description(t, models.QualitySD480)))
	assert.Equal(t, models.ExternalCancelled, statuses.last().State)
}
