package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/logging"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/metrics"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// Repository provides database operations
type Repository struct {
	db     *DB
	logger *logging.Logger
}

// NewRepository creates a new repository
func NewRepository(db *DB, logger *logging.Logger) *Repository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Repository{db: db, logger: logger.WithComponent("database")}
}

// observe records a database call; errp is read when the deferred call runs
func (r *Repository) observe(operation string, start time.Time, errp *error) {
	err := *errp
	if errors.Is(err, models.ErrNotFound) {
		err = nil
	}
	duration := time.Since(start)
	metrics.RecordDatabaseOperation(operation, metrics.Status(err), duration.Seconds())
	r.logger.LogDatabaseOperation(operation, duration, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Assets

// CreateAsset creates a new asset record
func (r *Repository) CreateAsset(ctx context.Context, asset *models.Asset) (err error) {
	defer r.observe("create_asset", time.Now(), &err)

	if asset.ID == "" {
		asset.ID = uuid.New().String()
	}

	query := `
		INSERT INTO assets (id, source_key, title, duration_seconds, poster_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		asset.ID, asset.SourceKey, asset.Title, asset.DurationSeconds, asset.PosterKey,
	).Scan(&asset.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create asset: %w", err)
	}

	return nil
}

// GetAsset retrieves an asset by ID
func (r *Repository) GetAsset(ctx context.Context, id string) (asset *models.Asset, err error) {
	defer r.observe("get_asset", time.Now(), &err)

	var a models.Asset

	query := `
		SELECT id, source_key, title, duration_seconds, poster_key, created_at
		FROM assets
		WHERE id = $1
	`

	err = r.db.Pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.SourceKey, &a.Title, &a.DurationSeconds, &a.PosterKey, &a.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("asset %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}

	return &a, nil
}

// ListAssets retrieves assets with pagination, newest first
func (r *Repository) ListAssets(ctx context.Context, limit, offset int) (assets []*models.Asset, err error) {
	defer r.observe("list_assets", time.Now(), &err)

	query := `
		SELECT id, source_key, title, duration_seconds, poster_key, created_at
		FROM assets
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.Asset
		if err = rows.Scan(&a.ID, &a.SourceKey, &a.Title, &a.DurationSeconds, &a.PosterKey, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, &a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}

	return assets, nil
}

// Jobs

const jobColumns = `id, asset_id, requested_ladder, status, external_job_id, attempts, last_error, created_at, updated_at`

func scanJob(row pgx.Row) (*models.TranscodeJob, error) {
	var job models.TranscodeJob
	err := row.Scan(
		&job.ID, &job.AssetID, &job.RequestedLadder, &job.Status, &job.ExternalJobID,
		&job.Attempts, &job.LastError, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJob inserts a job. A second non-terminal job for the same asset is
// rejected with ErrJobInProgress.
func (r *Repository) CreateJob(ctx context.Context, job *models.TranscodeJob) (err error) {
	defer r.observe("create_job", time.Now(), &err)

	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	query := `
		INSERT INTO transcode_jobs (id, asset_id, requested_ladder, status, external_job_id, attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.Pool.Exec(ctx, query,
		job.ID, job.AssetID, job.RequestedLadder, job.Status, job.ExternalJobID,
		job.Attempts, job.LastError, job.CreatedAt, job.UpdatedAt,
	)

	if isUniqueViolation(err) {
		return fmt.Errorf("asset %s: %w", job.AssetID, models.ErrJobInProgress)
	}
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJob retrieves a job by ID
func (r *Repository) GetJob(ctx context.Context, id string) (job *models.TranscodeJob, err error) {
	defer r.observe("get_job", time.Now(), &err)

	query := `SELECT ` + jobColumns + ` FROM transcode_jobs WHERE id = $1`

	job, err = scanJob(r.db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// UpdateJob writes job only if the stored status still equals expected
func (r *Repository) UpdateJob(ctx context.Context, job *models.TranscodeJob, expected models.JobStatus) (err error) {
	defer r.observe("update_job", time.Now(), &err)

	query := `
		UPDATE transcode_jobs
		SET status = $3, external_job_id = $4, attempts = $5, last_error = $6, updated_at = $7
		WHERE id = $1 AND status = $2
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		job.ID, expected, job.Status, job.ExternalJobID, job.Attempts, job.LastError, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s no longer %s: %w", job.ID, expected, models.ErrConcurrentUpdate)
	}

	return nil
}

// ActiveJobForAsset returns the non-terminal job for an asset, if any
func (r *Repository) ActiveJobForAsset(ctx context.Context, assetID string) (job *models.TranscodeJob, err error) {
	defer r.observe("active_job_for_asset", time.Now(), &err)

	query := `
		SELECT ` + jobColumns + `
		FROM transcode_jobs
		WHERE asset_id = $1 AND status NOT IN ('complete', 'failed')
	`

	job, err = scanJob(r.db.Pool.QueryRow(ctx, query, assetID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("active job for asset %s: %w", assetID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active job: %w", err)
	}

	return job, nil
}

// ListActiveJobs returns every non-terminal job, oldest first
func (r *Repository) ListActiveJobs(ctx context.Context) ([]*models.TranscodeJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM transcode_jobs
		WHERE status NOT IN ('complete', 'failed')
		ORDER BY created_at ASC
	`
	return r.queryJobs(ctx, "list_active_jobs", query)
}

// ListJobsForAsset returns the job history of an asset, newest first
func (r *Repository) ListJobsForAsset(ctx context.Context, assetID string) ([]*models.TranscodeJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM transcode_jobs
		WHERE asset_id = $1
		ORDER BY created_at DESC
	`
	return r.queryJobs(ctx, "list_jobs_for_asset", query, assetID)
}

func (r *Repository) queryJobs(ctx context.Context, operation, query string, args ...interface{}) (jobs []*models.TranscodeJob, err error) {
	defer r.observe(operation, time.Now(), &err)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}

	return jobs, nil
}

// Renditions

// RegisterRendition records a ready rendition. A rendition that is already
// ready is left untouched.
func (r *Repository) RegisterRendition(ctx context.Context, rendition *models.Rendition) (err error) {
	defer r.observe("register_rendition", time.Now(), &err)

	query := `
		INSERT INTO renditions (asset_id, quality_id, storage_key, ready)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (asset_id, quality_id) DO UPDATE
		SET storage_key = EXCLUDED.storage_key, ready = EXCLUDED.ready
		WHERE renditions.ready = false
	`

	_, err = r.db.Pool.Exec(ctx, query, rendition.AssetID, rendition.QualityID, rendition.StorageKey, rendition.Ready)
	if err != nil {
		return fmt.Errorf("failed to register rendition: %w", err)
	}

	return nil
}

// ReadyRenditions returns the ready renditions of an asset
func (r *Repository) ReadyRenditions(ctx context.Context, assetID string) ([]*models.Rendition, error) {
	query := `
		SELECT asset_id, quality_id, storage_key, ready, created_at
		FROM renditions
		WHERE asset_id = $1 AND ready = true
		ORDER BY quality_id
	`
	return r.queryRenditions(ctx, "ready_renditions", query, assetID)
}

// ListRenditions returns every rendition of an asset
func (r *Repository) ListRenditions(ctx context.Context, assetID string) ([]*models.Rendition, error) {
	query := `
		SELECT asset_id, quality_id, storage_key, ready, created_at
		FROM renditions
		WHERE asset_id = $1
		ORDER BY quality_id
	`
	return r.queryRenditions(ctx, "list_renditions", query, assetID)
}

func (r *Repository) queryRenditions(ctx context.Context, operation, query string, args ...interface{}) (renditions []*models.Rendition, err error) {
	defer r.observe(operation, time.Now(), &err)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query renditions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rd models.Rendition
		if err = rows.Scan(&rd.AssetID, &rd.QualityID, &rd.StorageKey, &rd.Ready, &rd.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rendition: %w", err)
		}
		renditions = append(renditions, &rd)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query renditions: %w", err)
	}

	return renditions, nil
}

// Subtitles

// UpsertSubtitle stores a subtitle track, replacing any track in the same language
func (r *Repository) UpsertSubtitle(ctx context.Context, sub *models.Subtitle) (err error) {
	defer r.observe("upsert_subtitle", time.Now(), &err)

	query := `
		INSERT INTO subtitles (asset_id, language, label, format, storage_key, is_default)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (asset_id, language) DO UPDATE
		SET label = EXCLUDED.label, format = EXCLUDED.format,
		    storage_key = EXCLUDED.storage_key, is_default = EXCLUDED.is_default
	`

	_, err = r.db.Pool.Exec(ctx, query, sub.AssetID, sub.Language, sub.Label, sub.Format, sub.StorageKey, sub.IsDefault)
	if err != nil {
		return fmt.Errorf("failed to upsert subtitle: %w", err)
	}

	return nil
}

// ListSubtitles returns the subtitle tracks of an asset
func (r *Repository) ListSubtitles(ctx context.Context, assetID string) (subs []*models.Subtitle, err error) {
	defer r.observe("list_subtitles", time.Now(), &err)

	query := `
		SELECT asset_id, language, label, format, storage_key, is_default
		FROM subtitles
		WHERE asset_id = $1
		ORDER BY is_default DESC, language
	`

	rows, err := r.db.Pool.Query(ctx, query, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subtitles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s models.Subtitle
		if err = rows.Scan(&s.AssetID, &s.Language, &s.Label, &s.Format, &s.StorageKey, &s.IsDefault); err != nil {
			return nil, fmt.Errorf("failed to scan subtitle: %w", err)
		}
		subs = append(subs, &s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list subtitles: %w", err)
	}

	return subs, nil
}
