package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process ObjectStore for tests and local development
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	baseURL string

	// Fault injection
	putFailures      int
	presignErr       error
	partialOnFailure bool
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemoryStore creates an empty store whose presigned URLs start with baseURL
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// FailPuts makes the next n Put calls fail
func (m *MemoryStore) FailPuts(n int, leavePartial bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putFailures = n
	m.partialOnFailure = leavePartial
}

// FailPresign makes Presign return err until reset with nil
func (m *MemoryStore) FailPresign(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presignErr = err
}

// Put stores the object
func (m *MemoryStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read object body: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.putFailures > 0 {
		m.putFailures--
		if m.partialOnFailure && len(data) > 0 {
			m.objects[key] = memoryObject{data: data[:len(data)/2], contentType: contentType}
		}
		return fmt.Errorf("failed to upload object: connection reset")
	}

	m.objects[key] = memoryObject{data: data, contentType: contentType}
	return nil
}

// Presign returns a fake signed URL carrying the expiry as a query parameter
func (m *MemoryStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.presignErr != nil {
		return "", m.presignErr
	}

	q := url.Values{}
	q.Set("X-Amz-Expires", fmt.Sprintf("%d", int64(ttl.Seconds())))
	return fmt.Sprintf("%s/%s?%s", m.baseURL, key, q.Encode()), nil
}

// List returns keys under prefix in lexical order
func (m *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes the object if present
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Get returns a copy of the stored object body
func (m *MemoryStore) Get(key string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), obj.data...), obj.contentType, true
}
