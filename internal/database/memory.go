package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
	"github.com/google/uuid"
)

// MemoryRepository is an in-process stand-in for Repository, used in tests
// and when the API runs without Postgres. All returned values are copies.
type MemoryRepository struct {
	mu         sync.RWMutex
	assets     map[string]*models.Asset
	jobs       map[string]*models.TranscodeJob
	renditions map[string]map[string]*models.Rendition
	subtitles  map[string]map[string]*models.Subtitle
	now        func() time.Time
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		assets:     make(map[string]*models.Asset),
		jobs:       make(map[string]*models.TranscodeJob),
		renditions: make(map[string]map[string]*models.Rendition),
		subtitles:  make(map[string]map[string]*models.Subtitle),
		now:        time.Now,
	}
}

// CreateAsset stores a new asset
func (m *MemoryRepository) CreateAsset(ctx context.Context, asset *models.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if asset.ID == "" {
		asset.ID = uuid.New().String()
	}
	if _, exists := m.assets[asset.ID]; exists {
		return fmt.Errorf("failed to create asset: duplicate id %s", asset.ID)
	}
	asset.CreatedAt = m.now()

	a := *asset
	m.assets[a.ID] = &a
	return nil
}

// GetAsset retrieves an asset by ID
func (m *MemoryRepository) GetAsset(ctx context.Context, id string) (*models.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.assets[id]
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", id, models.ErrNotFound)
	}
	out := *a
	return &out, nil
}

// ListAssets retrieves assets with pagination, newest first
func (m *MemoryRepository) ListAssets(ctx context.Context, limit, offset int) ([]*models.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*models.Asset, 0, len(m.assets))
	for _, a := range m.assets {
		c := *a
		all = append(all, &c)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// CreateJob stores a job, rejecting a second non-terminal job for the same asset
func (m *MemoryRepository) CreateJob(ctx context.Context, job *models.TranscodeJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if _, exists := m.jobs[job.ID]; exists {
		return fmt.Errorf("failed to create job: duplicate id %s", job.ID)
	}
	if active := m.activeJobLocked(job.AssetID); active != nil && !job.Status.Terminal() {
		return fmt.Errorf("asset %s: %w", job.AssetID, models.ErrJobInProgress)
	}

	m.jobs[job.ID] = job.Clone()
	return nil
}

// GetJob retrieves a job by ID
func (m *MemoryRepository) GetJob(ctx context.Context, id string) (*models.TranscodeJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	return job.Clone(), nil
}

// UpdateJob writes job only if the stored status still equals expected
func (m *MemoryRepository) UpdateJob(ctx context.Context, job *models.TranscodeJob, expected models.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.jobs[job.ID]
	if !ok {
		return fmt.Errorf("job %s: %w", job.ID, models.ErrNotFound)
	}
	if stored.Status != expected {
		return fmt.Errorf("job %s no longer %s: %w", job.ID, expected, models.ErrConcurrentUpdate)
	}

	updated := job.Clone()
	updated.AssetID = stored.AssetID
	updated.RequestedLadder = append([]string(nil), stored.RequestedLadder...)
	updated.CreatedAt = stored.CreatedAt
	m.jobs[job.ID] = updated
	return nil
}

// ActiveJobForAsset returns the non-terminal job for an asset, if any
func (m *MemoryRepository) ActiveJobForAsset(ctx context.Context, assetID string) (*models.TranscodeJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if job := m.activeJobLocked(assetID); job != nil {
		return job.Clone(), nil
	}
	return nil, fmt.Errorf("active job for asset %s: %w", assetID, models.ErrNotFound)
}

func (m *MemoryRepository) activeJobLocked(assetID string) *models.TranscodeJob {
	for _, job := range m.jobs {
		if job.AssetID == assetID && !job.Status.Terminal() {
			return job
		}
	}
	return nil
}

// ListActiveJobs returns every non-terminal job, oldest first
func (m *MemoryRepository) ListActiveJobs(ctx context.Context) ([]*models.TranscodeJob, error) {
	return m.listJobs(func(j *models.TranscodeJob) bool { return !j.Status.Terminal() }, true), nil
}

// ListJobsForAsset returns the job history of an asset, newest first
func (m *MemoryRepository) ListJobsForAsset(ctx context.Context, assetID string) ([]*models.TranscodeJob, error) {
	return m.listJobs(func(j *models.TranscodeJob) bool { return j.AssetID == assetID }, false), nil
}

func (m *MemoryRepository) listJobs(keep func(*models.TranscodeJob) bool, oldestFirst bool) []*models.TranscodeJob {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var jobs []*models.TranscodeJob
	for _, job := range m.jobs {
		if keep(job) {
			jobs = append(jobs, job.Clone())
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		if oldestFirst {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// RegisterRendition records a rendition. A rendition that is already ready
// is left untouched.
func (m *MemoryRepository) RegisterRendition(ctx context.Context, rendition *models.Rendition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byQuality, ok := m.renditions[rendition.AssetID]
	if !ok {
		byQuality = make(map[string]*models.Rendition)
		m.renditions[rendition.AssetID] = byQuality
	}
	if existing, ok := byQuality[rendition.QualityID]; ok && existing.Ready {
		return nil
	}

	r := *rendition
	if r.CreatedAt.IsZero() {
		r.CreatedAt = m.now()
	}
	byQuality[r.QualityID] = &r
	return nil
}

// ReadyRenditions returns the ready renditions of an asset
func (m *MemoryRepository) ReadyRenditions(ctx context.Context, assetID string) ([]*models.Rendition, error) {
	return m.listRenditions(assetID, true), nil
}

// ListRenditions returns every rendition of an asset
func (m *MemoryRepository) ListRenditions(ctx context.Context, assetID string) ([]*models.Rendition, error) {
	return m.listRenditions(assetID, false), nil
}

func (m *MemoryRepository) listRenditions(assetID string, readyOnly bool) []*models.Rendition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Rendition
	for _, r := range m.renditions[assetID] {
		if readyOnly && !r.Ready {
			continue
		}
		c := *r
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QualityID < out[j].QualityID })
	return out
}

// UpsertSubtitle stores a subtitle track, replacing any track in the same language
func (m *MemoryRepository) UpsertSubtitle(ctx context.Context, sub *models.Subtitle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byLang, ok := m.subtitles[sub.AssetID]
	if !ok {
		byLang = make(map[string]*models.Subtitle)
		m.subtitles[sub.AssetID] = byLang
	}
	s := *sub
	byLang[s.Language] = &s
	return nil
}

// ListSubtitles returns the subtitle tracks of an asset, default first
func (m *MemoryRepository) ListSubtitles(ctx context.Context, assetID string) ([]*models.Subtitle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Subtitle
	for _, s := range m.subtitles[assetID] {
		c := *s
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].Language < out[j].Language
	})
	return out, nil
}
