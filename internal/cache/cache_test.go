package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	// Create a mini Redis server for testing
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	cache, err := NewCache(context.Background(), mr.Host(), mr.Server().Addr().Port, "", 0)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create cache: %v", err)
	}

	return cache, mr
}

func TestNewCache(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	if err := cache.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewCacheUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	host, port := mr.Host(), mr.Server().Addr().Port
	mr.Close()

	_, err = NewCache(context.Background(), host, port, "", 0)
	assert.Error(t, err)
}

func TestCache_EncodeStatus(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()

	_, err := cache.GetEncodeStatus(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	status := models.ExternalStatus{
		State: models.ExternalSuccess,
		Outputs: []models.EncodedOutput{
			{QualityID: models.QualitySD480, Key: "uploads/1-movie/sd480/playlist.m3u8"},
		},
	}
	require.NoError(t, cache.SetEncodeStatus(ctx, "enc-1", status, time.Hour))

	got, err := cache.GetEncodeStatus(ctx, "enc-1")
	require.NoError(t, err)
	assert.Equal(t, status, *got)

	mr.FastForward(2 * time.Hour)
	_, err = cache.GetEncodeStatus(ctx, "enc-1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCache_GetWithJSONMiss(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	var dest map[string]string
	found, err := cache.GetWithJSON(context.Background(), "nothing", &dest)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_Locks(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()

	ok, err := cache.AcquireLock(ctx, "job-1", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.AcquireLock(ctx, "job-1", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// A non-owner cannot release
	require.NoError(t, cache.ReleaseLock(ctx, "job-1", "b"))
	assert.True(t, mr.Exists("lock:job-1"))

	require.NoError(t, cache.ReleaseLock(ctx, "job-1", "a"))
	assert.False(t, mr.Exists("lock:job-1"))
}

func TestLocker_TryLock(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()
	locker := NewLocker(cache, time.Minute, nil)

	release, ok, err := locker.TryLock(ctx, "job:1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "job:1")
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire")

	release()

	release2, ok, err := locker.TryLock(ctx, "job:1")
	require.NoError(t, err)
	assert.True(t, ok)
	release2()
}

func TestLocker_ExpiredLockIsReacquirable(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()
	locker := NewLocker(cache, time.Second, nil)

	stale, ok, err := locker.TryLock(ctx, "job:2")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	fresh, ok, err := locker.TryLock(ctx, "job:2")
	require.NoError(t, err)
	require.True(t, ok)

	// The expired holder releasing must not free the new holder's lock
	stale()
	assert.True(t, mr.Exists("lock:job:2"))
	fresh()
}
