package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/delivery"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/ladder"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/logging"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/manifest"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/metrics"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/middleware"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/orchestrator"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/storage"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/transcoder"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/upload"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/webhook"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxWebhookBytes = 1 << 20

// Store is everything the HTTP layer reads and writes
type Store interface {
	orchestrator.Store
	delivery.Store
	CreateAsset(ctx context.Context, asset *models.Asset) error
	ListAssets(ctx context.Context, limit, offset int) ([]*models.Asset, error)
	ListJobsForAsset(ctx context.Context, assetID string) ([]*models.TranscodeJob, error)
	ListRenditions(ctx context.Context, assetID string) ([]*models.Rendition, error)
	UpsertSubtitle(ctx context.Context, sub *models.Subtitle) error
}

// Prober reads source metadata at ingest
type Prober interface {
	Probe(ctx context.Context, inputPath string) (*transcoder.SourceInfo, error)
}

// API holds the handlers' dependencies
type API struct {
	store         Store
	keys          *storage.KeyManager
	uploads       *upload.Manager
	orchestrator  *orchestrator.Orchestrator
	resolver      *delivery.Resolver
	registry      *ladder.Registry
	prober        Prober
	health        func(ctx context.Context) error
	webhookSecret string
	maxUpload     int64
	tempDir       string
	logger        *logging.Logger
}

func setupRouter(api *API, limiter *middleware.RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(api.logger))
	if limiter != nil {
		router.Use(middleware.RateLimit(limiter))
	}

	// Health check
	router.GET("/health", api.healthCheck)

	// Encoder callbacks authenticate with a shared-secret signature
	router.POST("/webhooks/encoder", api.encoderWebhook)

	// Manifest links carry their own signature so players can follow them
	router.GET(delivery.ManifestRoute+":id", api.signedManifest)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.JWTAuth())
	{
		// Playback
		v1.GET("/assets", api.listAssets)
		v1.GET("/assets/:id", api.getAsset)
		v1.GET("/assets/:id/playback", api.playback)
		v1.GET("/assets/:id/manifest", api.playbackManifest)

		admin := v1.Group("")
		admin.Use(middleware.RequireRole(middleware.RoleAdmin))
		{
			// Ingest
			admin.POST("/assets", api.uploadAsset)
			admin.POST("/uploads", api.initiateUpload)
			admin.GET("/uploads/:id", api.getUpload)
			admin.PUT("/uploads/:id/parts/:part", api.uploadPart)
			admin.POST("/uploads/:id/complete", api.completeUpload)
			admin.DELETE("/uploads/:id", api.abortUpload)
			admin.POST("/assets/:id/subtitles", api.uploadSubtitle)

			// Jobs
			admin.POST("/assets/:id/transcode", api.createTranscodeJob)
			admin.GET("/assets/:id/jobs", api.getAssetJobs)
			admin.GET("/assets/:id/renditions", api.getAssetRenditions)
			admin.GET("/jobs/:id", api.getJob)
			admin.POST("/jobs/:id/poll", api.pollJob)

			// Ladder
			admin.GET("/ladder", api.getLadder)
		}
	}

	return router
}

// errorStatus maps pipeline errors onto HTTP status codes
func errorStatus(err error) int {
	var noPlayable *models.NoPlayableRenditionError
	switch {
	case errors.As(err, &noPlayable):
		if noPlayable.Reason == models.ReasonNotReady {
			return http.StatusConflict
		}
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound), errors.Is(err, upload.ErrUploadNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrJobInProgress), errors.Is(err, models.ErrConcurrentUpdate),
		errors.Is(err, upload.ErrUploadClosed), errors.Is(err, upload.ErrIncomplete):
		return http.StatusConflict
	case errors.Is(err, models.ErrUnknownPlan),
		errors.Is(err, delivery.ErrInvalidLink), errors.Is(err, delivery.ErrLinkExpired):
		return http.StatusForbidden
	case errors.Is(err, models.ErrInvalidLadder), errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, delivery.ErrUnsupportedFormat), errors.Is(err, upload.ErrInvalidPart):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrExternalJobRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrSubmissionFailed), errors.Is(err, models.ErrPollTransport),
		errors.Is(err, models.ErrSigningError):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (api *API) fail(c *gin.Context, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		api.logger.WithContext(c.Request.Context()).WithError(err).Error("Request failed")
		metrics.RecordError("api", http.StatusText(status))
	}

	body := gin.H{"error": err.Error()}
	var noPlayable *models.NoPlayableRenditionError
	if errors.As(err, &noPlayable) {
		body["reason"] = noPlayable.Reason
		if noPlayable.Reason == models.ReasonNotReady {
			body["error"] = "asset is still processing"
		}
	}
	c.JSON(status, body)
}

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if api.health != nil {
		if err := api.health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// Upload source endpoint
func (api *API) uploadAsset(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No source file provided"})
		return
	}
	if api.maxUpload > 0 && file.Size > api.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file exceeds %d bytes", api.maxUpload)})
		return
	}

	tempPath := filepath.Join(api.tempDir, uuid.New().String()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, tempPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}
	defer os.Remove(tempPath)

	asset, err := api.ingest(c.Request.Context(), tempPath, file.Filename, c.PostForm("title"))
	if err != nil {
		api.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, asset)
}

// ingest stores a local source file and records it as an asset
func (api *API) ingest(ctx context.Context, path, filename, title string) (*models.Asset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat source: %w", err)
	}

	var duration float64
	if api.prober != nil {
		if source, err := api.prober.Probe(ctx, path); err != nil {
			api.logger.WithError(err).Warnf("Failed to probe %s", filename)
		} else {
			duration = source.DurationSeconds
		}
	}

	key := api.keys.AllocateKey(filename)
	if err := api.keys.PutObject(ctx, key, f, info.Size(), storage.ContentType(filename)); err != nil {
		return nil, err
	}

	if title == "" {
		title = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}

	asset := &models.Asset{
		ID:              uuid.New().String(),
		SourceKey:       key,
		Title:           title,
		DurationSeconds: duration,
		PosterKey:       storage.PosterKey(key),
		CreatedAt:       time.Now().UTC(),
	}
	if err := api.store.CreateAsset(ctx, asset); err != nil {
		return nil, fmt.Errorf("failed to create asset: %w", err)
	}

	metrics.RecordUpload(info.Size())
	api.logger.WithAssetID(asset.ID).WithField("source_key", key).Info("Asset ingested")

	return asset, nil
}

// Initiate chunked upload endpoint
func (api *API) initiateUpload(c *gin.Context) {
	var req struct {
		Filename string `json:"filename" binding:"required"`
		Title    string `json:"title"`
		Size     int64  `json:"size" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if api.maxUpload > 0 && req.Size > api.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file exceeds %d bytes", api.maxUpload)})
		return
	}

	session, err := api.uploads.Initiate(req.Filename, req.Title, req.Size)
	if err != nil {
		api.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// Get chunked upload endpoint
func (api *API) getUpload(c *gin.Context) {
	session, err := api.uploads.Get(c.Param("id"))
	if err != nil {
		api.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"upload":  session,
		"missing": session.Missing(),
	})
}

// Upload part endpoint
func (api *API) uploadPart(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("part"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "part must be a number"})
		return
	}

	part, err := api.uploads.UploadPart(c.Param("id"), number, c.Request.Body)
	if err != nil {
		api.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, part)
}

// Complete chunked upload endpoint
func (api *API) completeUpload(c *gin.Context) {
	id := c.Param("id")

	path, session, err := api.uploads.Complete(id)
	if err != nil {
		api.fail(c, err)
		return
	}
	defer api.uploads.Release(id)

	asset, err := api.ingest(c.Request.Context(), path, session.Filename, session.Title)
	if err != nil {
		api.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, asset)
}

// Abort chunked upload endpoint
func (api *API) abortUpload(c *gin.Context) {
	if err := api.uploads.Abort(c.Param("id")); err != nil {
		api.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Upload aborted", "upload_id": c.Param("id")})
}

// Get asset endpoint
func (api *API) getAsset(c *gin.Context) {
	asset, err := api.store.GetAsset(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, asset)
}

// List assets endpoint
func (api *API) listAssets(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	assets, err := api.store.ListAssets(c.Request.Context(), limit, offset)
	if err != nil {
		api.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"assets": assets,
		"limit":  limit,
		"offset": offset,
	})
}

// Upload subtitle endpoint
func (api *API) uploadSubtitle(c *gin.Context) {
	ctx := c.Request.Context()

	asset, err := api.store.GetAsset(ctx, c.Param("id"))
	if err != nil {
		api.fail(c, err)
		return
	}

	language := strings.ToLower(strings.TrimSpace(c.PostForm("language")))
	if language == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "language is required"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No subtitle file provided"})
		return
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(file.Filename)), ".")
	if format != models.SubtitleFormatVTT && format != models.SubtitleFormatSRT {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subtitle must be .vtt or .srt"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
		return
	}
	defer src.Close()

	key := fmt.Sprintf("%s/subtitles/%s.%s", storage.BaseKey(asset.SourceKey), language, format)
	if err := api.keys.PutObject(ctx, key, src, file.Size, storage.ContentType(file.Filename)); err != nil {
		api.fail(c, err)
		return
	}

	sub := &models.Subtitle{
		AssetID:    asset.ID,
		Language:   language,
		Label:      c.PostForm("label"),
		Format:     format,
		StorageKey: key,
		IsDefault:  c.PostForm("default") == "true",
	}
	if err := api.store.UpsertSubtitle(ctx, sub); err != nil {
		api.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, sub)
}

// Create transcode job endpoint
func (api *API) createTranscodeJob(c *gin.Context) {
	var req struct {
		Qualities []string `json:"qualities" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := api.orchestrator.Submit(c.Request.Context(), c.Param("id"), req.Qualities)
	if err != nil {
		if job != nil {
			c.JSON(errorStatus(err), gin.H{"error": err.Error(), "job": job})
			return
		}
		api.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

// Get job endpoint
func (api *API) getJob(c *gin.Context) {
	job, err := api.orchestrator.Job(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// Poll job endpoint
func (api *API) pollJob(c *gin.Context) {
	job, err := api.orchestrator.Poll(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// Get asset jobs endpoint
func (api *API) getAssetJobs(c *gin.Context) {
	jobs, err := api.store.ListJobsForAsset(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// Get asset renditions endpoint
func (api *API) getAssetRenditions(c *gin.Context) {
	renditions, err := api.store.ListRenditions(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"renditions": renditions})
}

// Get ladder endpoint
func (api *API) getLadder(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"qualities": api.registry.Levels()})
}

// playbackRequest builds a resolver request from the token and query string
func playbackRequest(c *gin.Context) (delivery.Request, error) {
	plan, _ := middleware.PlanFromContext(c)
	req := delivery.Request{
		AssetID:  c.Param("id"),
		PlanTier: plan,
		Format:   models.StreamingFormat(strings.ToLower(c.Query("format"))),
	}

	if raw := c.Query("max_resolution"); raw != "" {
		res, err := models.ParseResolution(raw)
		if err != nil {
			return req, err
		}
		req.DeviceMaxResolution = &res
	}

	return req, nil
}

// Playback descriptor endpoint
func (api *API) playback(c *gin.Context) {
	req, err := playbackRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	desc, err := api.resolver.Resolve(c.Request.Context(), req)
	if err != nil {
		api.fail(c, err)
		return
	}

	c.Header("Cache-Control", "private, no-store")
	c.JSON(http.StatusOK, desc)
}

// Playback manifest endpoint
func (api *API) playbackManifest(c *gin.Context) {
	req, err := playbackRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	desc, err := api.resolver.Resolve(c.Request.Context(), req)
	if err != nil {
		api.fail(c, err)
		return
	}

	writeManifest(c, desc)
}

// Signed manifest link endpoint
func (api *API) signedManifest(c *gin.Context) {
	desc, err := api.resolver.ResolveLink(c.Request.Context(), c.Param("id"), c.Request.URL.Query())
	if err != nil {
		api.fail(c, err)
		return
	}

	writeManifest(c, desc)
}

func writeManifest(c *gin.Context, desc *models.StreamingDescriptor) {
	c.Header("Cache-Control", "private, no-store")
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", desc.Format.ManifestName()))
	c.Data(http.StatusOK, manifest.ContentType(desc.Format), desc.Manifest)
}

// Encoder status callback endpoint
func (api *API) encoderWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	event, err := webhook.Decode(payload, c.GetHeader(webhook.HeaderSignature), api.webhookSecret)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := api.orchestrator.ApplyStatus(c.Request.Context(), event.JobID, event.Status)
	if err != nil {
		api.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}
