// Package delivery composes playback descriptors from ready renditions,
// the viewer's plan and device, and the storage URL scheme.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/config"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/ladder"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/logging"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/manifest"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/metrics"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/storage"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/tracing"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
)

// ErrUnsupportedFormat is returned for a streaming format other than HLS or DASH
var ErrUnsupportedFormat = errors.New("unsupported streaming format")

// Store is the read side the resolver depends on
type Store interface {
	GetAsset(ctx context.Context, id string) (*models.Asset, error)
	ReadyRenditions(ctx context.Context, assetID string) ([]*models.Rendition, error)
	ListSubtitles(ctx context.Context, assetID string) ([]*models.Subtitle, error)
}

// Request describes one playback lookup
type Request struct {
	AssetID  string
	PlanTier models.PlanTier
	// DeviceMaxResolution drops qualities larger than the device can show; nil means no limit
	DeviceMaxResolution *models.Resolution
	// Format defaults to the configured format when empty
	Format models.StreamingFormat
}

// Config holds resolver settings
type Config struct {
	SignedURLTTL  time.Duration
	DefaultFormat models.StreamingFormat
	// Links signs the manifest URL handed out with each descriptor
	Links *LinkSigner
}

// ConfigFrom maps the delivery config section
func ConfigFrom(cfg config.DeliveryConfig) Config {
	return Config{
		SignedURLTTL:  cfg.DefaultSignedURLTTL,
		DefaultFormat: models.StreamingFormat(cfg.DefaultFormat),
		Links:         NewLinkSigner(cfg.PublicURL, cfg.LinkSecret),
	}
}

// Resolver turns a playback request into a StreamingDescriptor. It holds no
// mutable state and is safe for concurrent use.
type Resolver struct {
	store    Store
	registry *ladder.Registry
	policy   *AccessPolicy
	keys     *storage.KeyManager
	cfg      Config
	logger   *logging.Logger
	now      func() time.Time
}

// NewResolver creates a resolver. The signed URL TTL is clamped to the key
// manager's maximum.
func NewResolver(store Store, registry *ladder.Registry, policy *AccessPolicy, keys *storage.KeyManager, cfg Config, logger *logging.Logger) *Resolver {
	if limit := keys.MaxTTL(); limit > 0 && (cfg.SignedURLTTL <= 0 || cfg.SignedURLTTL > limit) {
		cfg.SignedURLTTL = limit
	}
	if !cfg.DefaultFormat.Valid() {
		cfg.DefaultFormat = models.StreamingFormatHLS
	}
	if cfg.Links == nil {
		cfg.Links = NewLinkSigner("", "")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Resolver{
		store:    store,
		registry: registry,
		policy:   policy,
		keys:     keys,
		cfg:      cfg,
		logger:   logger.WithComponent("delivery"),
		now:      time.Now,
	}
}

// Resolve builds the descriptor for req. It fails with ErrUnknownPlan for an
// unrecognized plan and with a *NoPlayableRenditionError when nothing can be
// streamed.
func (r *Resolver) Resolve(ctx context.Context, req Request) (desc *models.StreamingDescriptor, err error) {
	span, ctx := tracing.StartSpan(ctx, "delivery.resolve")
	tracing.SetTag(span, "asset_id", req.AssetID)
	tracing.SetTag(span, "plan", string(req.PlanTier))
	start := time.Now()

	format := req.Format
	if format == "" {
		format = r.cfg.DefaultFormat
	}

	defer func() {
		tracing.FinishSpan(span, err)
		metrics.RecordResolve(string(format), resolveOutcome(err), time.Since(start).Seconds())
		qualities := 0
		if desc != nil {
			qualities = len(desc.Qualities)
		}
		r.logger.LogResolve(req.AssetID, string(req.PlanTier), string(format), qualities, err)
	}()

	if !format.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if _, err := r.policy.Ceiling(req.PlanTier); err != nil {
		return nil, err
	}

	asset, err := r.store.GetAsset(ctx, req.AssetID)
	if err != nil {
		return nil, err
	}
	ready, err := r.store.ReadyRenditions(ctx, asset.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load renditions: %w", err)
	}

	qualities, err := r.permitted(req, ready)
	if err != nil {
		return nil, err
	}

	baseKey := storage.BaseKey(asset.SourceKey)
	baseURL := r.keys.CDNURL(baseKey)

	entries := make([]manifest.Entry, len(qualities))
	for i, q := range qualities {
		entries[i] = manifest.Entry{Quality: q, BaseURL: baseURL}
	}
	body, err := manifest.Generate(format, entries, manifest.WithDuration(asset.DurationSeconds))
	if err != nil {
		return nil, err
	}

	// Manifests are filtered per request; the link re-resolves with the same parameters
	expiresAt := r.now().Add(r.cfg.SignedURLTTL)
	link := Request{
		AssetID:             asset.ID,
		PlanTier:            req.PlanTier,
		DeviceMaxResolution: req.DeviceMaxResolution,
	}

	desc = &models.StreamingDescriptor{
		AssetID:         asset.ID,
		Format:          format,
		ManifestURL:     r.cfg.Links.Sign(link, format, expiresAt),
		CDNBaseURL:      baseURL,
		Qualities:       qualities,
		DurationSeconds: asset.DurationSeconds,
		ExpiresAt:       expiresAt,
		Manifest:        body,
	}

	if asset.PosterKey != "" {
		url, _, err := r.keys.SignedURL(ctx, asset.PosterKey, r.cfg.SignedURLTTL)
		if err != nil {
			return nil, err
		}
		desc.Poster = url
	}

	subs, err := r.store.ListSubtitles(ctx, asset.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subtitles: %w", err)
	}
	for _, s := range subs {
		url, _, err := r.keys.SignedURL(ctx, s.StorageKey, r.cfg.SignedURLTTL)
		if err != nil {
			return nil, err
		}
		desc.Subtitles = append(desc.Subtitles, models.SubtitleTrack{
			Language:  s.Language,
			Label:     s.Label,
			Format:    s.Format,
			URL:       url,
			IsDefault: s.IsDefault,
		})
	}

	return desc, nil
}

// ResolveLink resolves the request encoded in a manifest link issued by
// Resolve. It fails with ErrInvalidLink or ErrLinkExpired before touching
// the store.
func (r *Resolver) ResolveLink(ctx context.Context, assetID string, query url.Values) (*models.StreamingDescriptor, error) {
	req, err := r.cfg.Links.Verify(assetID, query, r.now())
	if err != nil {
		return nil, err
	}
	return r.Resolve(ctx, req)
}

// permitted intersects ready renditions with the plan and device limits and
// orders the result by descending bandwidth.
func (r *Resolver) permitted(req Request, ready []*models.Rendition) ([]models.QualityLevel, error) {
	var readyLevels []models.QualityLevel
	for _, rend := range ready {
		if !rend.Ready {
			continue
		}
		if q, ok := r.registry.Get(rend.QualityID); ok {
			readyLevels = append(readyLevels, q)
		}
	}
	if len(readyLevels) == 0 {
		return nil, &models.NoPlayableRenditionError{AssetID: req.AssetID, Reason: models.ReasonNotReady}
	}

	var entitled []models.QualityLevel
	for _, q := range readyLevels {
		ok, err := r.policy.Permits(req.PlanTier, q)
		if err != nil {
			return nil, err
		}
		if ok {
			entitled = append(entitled, q)
		}
	}
	if len(entitled) == 0 {
		return nil, &models.NoPlayableRenditionError{AssetID: req.AssetID, Reason: models.ReasonNotEntitled}
	}

	out := entitled
	if req.DeviceMaxResolution != nil {
		out = nil
		for _, q := range entitled {
			if q.Resolution.Fits(*req.DeviceMaxResolution) {
				out = append(out, q)
			}
		}
		if len(out) == 0 {
			return nil, &models.NoPlayableRenditionError{AssetID: req.AssetID, Reason: models.ReasonDeviceUnsupported}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BandwidthBps != out[j].BandwidthBps {
			return out[i].BandwidthBps > out[j].BandwidthBps
		}
		return r.registry.Position(out[i].ID) < r.registry.Position(out[j].ID)
	})
	return out, nil
}

func resolveOutcome(err error) string {
	var noPlay *models.NoPlayableRenditionError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &noPlay):
		return string(noPlay.Reason)
	case errors.Is(err, models.ErrUnknownPlan):
		return "unknown_plan"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
