package orchestrator

import (
	"context"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
)

// Encoder is the external transcoding engine
type Encoder interface {
	// Submit hands off a job and returns an opaque handle. A definitive
	// refusal is reported as ErrEncoderRejected; anything else is transport.
	Submit(ctx context.Context, desc models.EncodeJobDescription) (string, error)
	Status(ctx context.Context, handle string) (models.ExternalStatus, error)
}

// JobStore persists transcode jobs
type JobStore interface {
	CreateJob(ctx context.Context, job *models.TranscodeJob) error
	GetJob(ctx context.Context, id string) (*models.TranscodeJob, error)
	// UpdateJob must fail with ErrConcurrentUpdate unless the stored status equals expected
	UpdateJob(ctx context.Context, job *models.TranscodeJob, expected models.JobStatus) error
	ActiveJobForAsset(ctx context.Context, assetID string) (*models.TranscodeJob, error)
	ListActiveJobs(ctx context.Context) ([]*models.TranscodeJob, error)
}

// RenditionStore records renditions as they become ready
type RenditionStore interface {
	RegisterRendition(ctx context.Context, rendition *models.Rendition) error
}

// AssetStore looks up uploaded assets
type AssetStore interface {
	GetAsset(ctx context.Context, id string) (*models.Asset, error)
}

// Store is everything the orchestrator reads and writes
type Store interface {
	AssetStore
	JobStore
	RenditionStore
}

// Locker provides non-blocking mutual exclusion per key
type Locker interface {
	TryLock(ctx context.Context, key string) (release func(), acquired bool, err error)
}
