package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/retry"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(store ObjectStore) *KeyManager {
	return NewKeyManager(store, Options{
		Bucket:         "media",
		Prefix:         "uploads",
		PublicEndpoint: "http://localhost:9000",
		MaxTTL:         6 * time.Hour,
		RequestTimeout: time.Second,
		MaxAttempts:    3,
		Backoff:        retry.Backoff{},
	}, nil)
}

func TestContentType(t *testing.T) {
	tests := []struct {
		filePath string
		wantType string
	}{
		{"video.mp4", "video/mp4"},
		{"video.MOV", "video/quicktime"},
		{"video.avi", "video/x-msvideo"},
		{"video.mkv", "video/x-matroska"},
		{"video.webm", "video/webm"},
		{"playlist.m3u8", "application/vnd.apple.mpegurl"},
		{"manifest.mpd", "application/dash+xml"},
		{"segment.ts", "video/mp2t"},
		{"captions.vtt", "text/vtt"},
		{"poster.jpg", "image/jpeg"},
		{"unknown.xyz", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.filePath, func(t *testing.T) {
			contentType := ContentType(tt.filePath)
			if contentType != tt.wantType {
				t.Errorf("ContentType(%q) = %q, want %q", tt.filePath, contentType, tt.wantType)
			}
		})
	}
}

func TestAllocateKey(t *testing.T) {
	km := newTestManager(NewMemoryStore("http://localhost:9000/media"))
	km.now = func() time.Time { return time.Unix(0, 1700000000000000000) }

	key := km.AllocateKey("My Movie (final).mp4")
	assert.Equal(t, "uploads/1700000000000000000-My_Movie__final_.mp4", key)

	// Same clock reading still yields a distinct key
	next := km.AllocateKey("My Movie (final).mp4")
	assert.Equal(t, "uploads/1700000000000000001-My_Movie__final_.mp4", next)
}

func TestAllocateKeySanitizesPaths(t *testing.T) {
	km := newTestManager(NewMemoryStore(""))

	tests := []struct {
		filename string
		suffix   string
	}{
		{"../../etc/passwd", "-passwd"},
		{"C:\\videos\\clip.mov", "-clip.mov"},
		{"...", "-upload"},
		{"", "-upload"},
	}

	for _, tt := range tests {
		key := km.AllocateKey(tt.filename)
		assert.True(t, strings.HasPrefix(key, "uploads/"), key)
		assert.True(t, strings.HasSuffix(key, tt.suffix), "key %q for %q", key, tt.filename)
		assert.NotContains(t, strings.TrimPrefix(key, "uploads/"), "/")
	}
}

func TestAllocateKeyConcurrentUnique(t *testing.T) {
	km := newTestManager(NewMemoryStore(""))

	const n = 200
	keys := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keys <- km.AllocateKey("same.mp4")
		}()
	}
	wg.Wait()
	close(keys)

	seen := make(map[string]bool)
	for k := range keys {
		assert.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
	}
	assert.Len(t, seen, n)
}

func TestPutObject(t *testing.T) {
	store := NewMemoryStore("")
	km := newTestManager(store)

	err := km.PutObject(context.Background(), "uploads/a.mp4", bytes.NewReader([]byte("payload")), 7, "")
	require.NoError(t, err)

	data, contentType, ok := store.Get("uploads/a.mp4")
	require.True(t, ok)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, "video/mp4", contentType)
}

func TestPutObjectRetriesTransientFailure(t *testing.T) {
	store := NewMemoryStore("")
	store.FailPuts(2, true)
	km := newTestManager(store)

	err := km.PutObject(context.Background(), "uploads/a.mp4", bytes.NewReader([]byte("payload")), 7, "video/mp4")
	require.NoError(t, err)

	data, _, ok := store.Get("uploads/a.mp4")
	require.True(t, ok)
	assert.Equal(t, "payload", string(data))
}

func TestPutObjectExhaustedLeavesNoPartialObject(t *testing.T) {
	store := NewMemoryStore("")
	store.FailPuts(5, true)
	km := newTestManager(store)

	err := km.PutObject(context.Background(), "uploads/a.mp4", bytes.NewReader([]byte("payload")), 7, "video/mp4")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrStorageUnavailable))

	_, _, ok := store.Get("uploads/a.mp4")
	assert.False(t, ok, "partial object must be removed")
}

func TestPutObjectNonSeekableSingleAttempt(t *testing.T) {
	store := NewMemoryStore("")
	store.FailPuts(1, false)
	km := newTestManager(store)

	reader := io.MultiReader(strings.NewReader("payload"))
	err := km.PutObject(context.Background(), "uploads/a.mp4", reader, 7, "video/mp4")
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
}

func TestSignedURL(t *testing.T) {
	store := NewMemoryStore("http://localhost:9000/media")
	km := newTestManager(store)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	km.now = func() time.Time { return now }

	url, expiresAt, err := km.SignedURL(context.Background(), "uploads/poster.jpg", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, url, "uploads/poster.jpg")
	assert.Equal(t, now.Add(time.Hour), expiresAt)
}

func TestSignedURLTTLBounds(t *testing.T) {
	km := newTestManager(NewMemoryStore(""))

	tests := []struct {
		name string
		ttl  time.Duration
	}{
		{"zero", 0},
		{"negative", -time.Minute},
		{"above max", 6*time.Hour + time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := km.SignedURL(context.Background(), "k", tt.ttl)
			assert.ErrorIs(t, err, models.ErrSigningError)
		})
	}

	_, expiresAt, err := km.SignedURL(context.Background(), "k", 6*time.Hour)
	require.NoError(t, err)
	assert.False(t, expiresAt.After(time.Now().Add(6*time.Hour)))
}

func TestSignedURLPresignFailure(t *testing.T) {
	store := NewMemoryStore("")
	store.FailPresign(errors.New("credentials expired"))
	km := newTestManager(store)

	_, _, err := km.SignedURL(context.Background(), "k", time.Minute)
	assert.ErrorIs(t, err, models.ErrSigningError)
}

func TestCDNURL(t *testing.T) {
	km := newTestManager(NewMemoryStore(""))
	assert.Equal(t, "http://localhost:9000/media/uploads/a/master.m3u8", km.CDNURL("uploads/a/master.m3u8"))

	km.opts.CDNBaseURL = "https://cdn.example.com/"
	assert.Equal(t, "https://cdn.example.com/uploads/a/master.m3u8", km.CDNURL("/uploads/a/master.m3u8"))
}

func TestBaseKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"uploads/123-movie.mp4", "uploads/123-movie"},
		{"uploads/123-movie.tar.gz", "uploads/123-movie.tar"},
		{"uploads/123-movie", "uploads/123-movie"},
		{"uploads/.hidden", "uploads/.hidden"},
	}

	for _, tt := range tests {
		if got := BaseKey(tt.key); got != tt.want {
			t.Errorf("BaseKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestDerivedKeys(t *testing.T) {
	assert.Equal(t, "uploads/123-movie/poster.jpg", PosterKey("uploads/123-movie.mp4"))
	assert.Equal(t, "uploads/123-movie/hd720/playlist.m3u8", RenditionKey("uploads/123-movie/", "hd720", "playlist.m3u8"))
}

func TestMemoryStoreList(t *testing.T) {
	store := NewMemoryStore("")
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "a/2", strings.NewReader("x"), 1, ""))
	require.NoError(t, store.Put(ctx, "a/1", strings.NewReader("x"), 1, ""))
	require.NoError(t, store.Put(ctx, "b/1", strings.NewReader("x"), 1, ""))

	keys, err := store.List(ctx, "a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1", "a/2"}, keys)
}

// stallingStore blocks the first stallPuts Put calls, and every Presign call
// when stallPresign is set, until the call context ends
type stallingStore struct {
	*MemoryStore
	mu           sync.Mutex
	stallPuts    int
	stallPresign bool
	putCalls     int
}

func (s *stallingStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	s.mu.Lock()
	s.putCalls++
	stall := s.stallPuts > 0
	if stall {
		s.stallPuts--
	}
	s.mu.Unlock()

	if stall {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.MemoryStore.Put(ctx, key, reader, size, contentType)
}

func (s *stallingStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if s.stallPresign {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.MemoryStore.Presign(ctx, key, ttl)
}

func newStallingManager(store ObjectStore) *KeyManager {
	return NewKeyManager(store, Options{
		Bucket:         "media",
		Prefix:         "uploads",
		PublicEndpoint: "http://localhost:9000",
		MaxTTL:         time.Hour,
		RequestTimeout: 50 * time.Millisecond,
		MaxAttempts:    3,
	}, nil)
}

func TestPutObjectRetriesAfterCallTimeout(t *testing.T) {
	store := &stallingStore{MemoryStore: NewMemoryStore(""), stallPuts: 1}
	km := newStallingManager(store)

	err := km.PutObject(context.Background(), "uploads/a.mp4", bytes.NewReader([]byte("payload")), 7, "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, 2, store.putCalls)

	data, _, ok := store.Get("uploads/a.mp4")
	require.True(t, ok)
	assert.Equal(t, "payload", string(data))
}

func TestPutObjectEveryCallTimesOut(t *testing.T) {
	store := &stallingStore{MemoryStore: NewMemoryStore(""), stallPuts: 10}
	km := newStallingManager(store)

	start := time.Now()
	err := km.PutObject(context.Background(), "uploads/a.mp4", bytes.NewReader([]byte("payload")), 7, "video/mp4")
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 3, store.putCalls)
	assert.Less(t, time.Since(start), 2*time.Second)

	_, _, ok := store.Get("uploads/a.mp4")
	assert.False(t, ok)
}

func TestSignedURLPresignTimeout(t *testing.T) {
	store := &stallingStore{MemoryStore: NewMemoryStore(""), stallPresign: true}
	km := newStallingManager(store)

	start := time.Now()
	_, _, err := km.SignedURL(context.Background(), "uploads/poster.jpg", time.Minute)
	assert.ErrorIs(t, err, models.ErrSigningError)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
