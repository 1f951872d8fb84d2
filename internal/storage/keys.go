package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/config"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/logging"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/metrics"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/retry"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
)

// Options configures a KeyManager
type Options struct {
	Bucket         string
	Prefix         string
	PublicEndpoint string
	CDNBaseURL     string
	MaxTTL         time.Duration
	RequestTimeout time.Duration
	MaxAttempts    int
	Backoff        retry.Backoff
}

// OptionsFromConfig builds Options from the storage and delivery sections
func OptionsFromConfig(storage config.StorageConfig, delivery config.DeliveryConfig) Options {
	return Options{
		Bucket:         storage.BucketName,
		Prefix:         storage.KeyPrefix,
		PublicEndpoint: storage.PublicEndpoint,
		CDNBaseURL:     storage.CDNBaseURL,
		MaxTTL:         delivery.MaxSignedURLTTL,
		RequestTimeout: storage.RequestTimeout,
		MaxAttempts:    storage.MaxAttempts,
		Backoff:        retry.Backoff{Base: 200 * time.Millisecond, Max: 2 * time.Second},
	}
}

// KeyManager owns storage key naming, writes and URL issuance
type KeyManager struct {
	store  ObjectStore
	opts   Options
	logger *logging.Logger
	now    func() time.Time

	// lastStamp keeps allocated timestamps strictly increasing
	lastStamp atomic.Int64
}

// NewKeyManager creates a key manager over store
func NewKeyManager(store ObjectStore, opts Options, logger *logging.Logger) *KeyManager {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &KeyManager{
		store:  store,
		opts:   opts,
		logger: logger.WithComponent("storage"),
		now:    time.Now,
	}
}

// MaxTTL returns the upper bound on signed URL lifetimes
func (k *KeyManager) MaxTTL() time.Duration {
	return k.opts.MaxTTL
}

// AllocateKey returns a fresh canonical key for an uploaded file
func (k *KeyManager) AllocateKey(filename string) string {
	stamp := k.nextStamp()
	name := fmt.Sprintf("%d-%s", stamp, sanitizeFilename(filename))
	if k.opts.Prefix == "" {
		return name
	}
	return strings.Trim(k.opts.Prefix, "/") + "/" + name
}

func (k *KeyManager) nextStamp() int64 {
	for {
		now := k.now().UnixNano()
		last := k.lastStamp.Load()
		if now <= last {
			now = last + 1
		}
		if k.lastStamp.CompareAndSwap(last, now) {
			return now
		}
	}
}

// sanitizeFilename keeps the base name and replaces anything outside [A-Za-z0-9._-]
func sanitizeFilename(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	name := strings.TrimLeft(b.String(), ".")
	if name == "" {
		return "upload"
	}
	return name
}

// PutObject writes data under key, retrying transient failures. data must
// implement io.Seeker for more than one attempt to be made. On failure the
// key is deleted so no partial object remains.
func (k *KeyManager) PutObject(ctx context.Context, key string, data io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = ContentType(key)
	}

	attempts := k.opts.MaxAttempts
	seeker, seekable := data.(io.Seeker)
	if !seekable {
		attempts = 1
	}

	start := time.Now()
	err := retry.Do(ctx, attempts, k.opts.Backoff, nil, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return err
			}
		}

		callCtx, cancel := k.callContext(ctx)
		defer cancel()
		return k.store.Put(callCtx, key, data, size, contentType)
	})

	metrics.RecordStorageOperation("put", metrics.Status(err), time.Since(start).Seconds(), size)
	k.logger.LogStorageOperation("put", k.opts.Bucket, key, size, time.Since(start), err)

	if err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.requestTimeout())
		defer cancel()
		if derr := k.store.Delete(cleanupCtx, key); derr != nil {
			k.logger.WithError(derr).Warnf("Failed to remove partial object %s", key)
		}
		return fmt.Errorf("%w: failed to put %s: %w", models.ErrStorageUnavailable, key, err)
	}

	return nil
}

// SignedURL issues a time-limited GET URL for key. Nothing is cached; each
// call signs anew and reports the absolute expiry.
func (k *KeyManager) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		metrics.RecordSignedURL("rejected")
		return "", time.Time{}, fmt.Errorf("%w: ttl must be positive, got %s", models.ErrSigningError, ttl)
	}
	if k.opts.MaxTTL > 0 && ttl > k.opts.MaxTTL {
		metrics.RecordSignedURL("rejected")
		return "", time.Time{}, fmt.Errorf("%w: ttl %s exceeds maximum %s", models.ErrSigningError, ttl, k.opts.MaxTTL)
	}

	issuedAt := k.now()

	callCtx, cancel := k.callContext(ctx)
	defer cancel()

	url, err := k.store.Presign(callCtx, key, ttl)
	if err != nil {
		metrics.RecordSignedURL("error")
		return "", time.Time{}, fmt.Errorf("%w: failed to sign %s: %w", models.ErrSigningError, key, err)
	}

	metrics.RecordSignedURL("success")
	return url, issuedAt.Add(ttl), nil
}

// CDNURL returns the public URL for key, via the CDN when one is configured
func (k *KeyManager) CDNURL(key string) string {
	return k.BaseURL() + "/" + strings.TrimLeft(key, "/")
}

// BaseURL is the origin every CDN URL is built on
func (k *KeyManager) BaseURL() string {
	if k.opts.CDNBaseURL != "" {
		return strings.TrimRight(k.opts.CDNBaseURL, "/")
	}
	return strings.TrimRight(k.opts.PublicEndpoint, "/") + "/" + k.opts.Bucket
}

// List returns keys under prefix
func (k *KeyManager) List(ctx context.Context, prefix string) ([]string, error) {
	callCtx, cancel := k.callContext(ctx)
	defer cancel()

	keys, err := k.store.List(callCtx, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list %s: %w", models.ErrStorageUnavailable, prefix, err)
	}
	return keys, nil
}

// BaseKey strips the file extension from a canonical key
func BaseKey(key string) string {
	ext := path.Ext(key)
	if ext == "" || key == ext || strings.HasSuffix(key, "/"+ext) {
		return key
	}
	return strings.TrimSuffix(key, ext)
}

func (k *KeyManager) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, k.requestTimeout())
}

func (k *KeyManager) requestTimeout() time.Duration {
	if k.opts.RequestTimeout > 0 {
		return k.opts.RequestTimeout
	}
	return 30 * time.Second
}

// PosterKey is where the poster frame for a source key is stored
func PosterKey(sourceKey string) string {
	return BaseKey(sourceKey) + "/poster.jpg"
}

// RenditionKey names an encoded file under an output prefix
func RenditionKey(prefix, qualityID, name string) string {
	return strings.TrimRight(prefix, "/") + "/" + qualityID + "/" + name
}
