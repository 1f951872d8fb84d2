package upload

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/config"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/logging"
	"github.com/google/uuid"
)

const (
	DefaultPartSize         = 8 * 1024 * 1024   // 8MB
	MinPartSize             = 1024 * 1024       // 1MB
	MaxPartSize             = 100 * 1024 * 1024 // 100MB
	DefaultUploadExpiration = 24 * time.Hour
	StatusActive            = "active"
	StatusAssembling        = "assembling"
	StatusCompleted         = "completed"
)

var (
	ErrUploadNotFound = errors.New("upload not found")
	ErrUploadClosed   = errors.New("upload is not active")
	ErrInvalidPart    = errors.New("invalid upload part")
	ErrIncomplete     = errors.New("upload is missing parts")
)

// Session is a chunked source upload in progress
type Session struct {
	ID          string        `json:"id"`
	Filename    string        `json:"filename"`
	Title       string        `json:"title"`
	TotalSize   int64         `json:"total_size"`
	PartSize    int64         `json:"part_size"`
	TotalParts  int           `json:"total_parts"`
	Parts       map[int]*Part `json:"parts"`
	Status      string        `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	ExpiresAt   time.Time     `json:"expires_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Part is one received chunk
type Part struct {
	Number     int       `json:"number"`
	Size       int64     `json:"size"`
	ETag       string    `json:"etag"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// expectedSize is the exact byte count part n must carry
func (s *Session) expectedSize(n int) int64 {
	if n == s.TotalParts {
		return s.TotalSize - int64(s.TotalParts-1)*s.PartSize
	}
	return s.PartSize
}

// Missing lists part numbers not yet received, ascending
func (s *Session) Missing() []int {
	var missing []int
	for i := 1; i <= s.TotalParts; i++ {
		if _, ok := s.Parts[i]; !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

func (s *Session) clone() *Session {
	c := *s
	c.Parts = make(map[int]*Part, len(s.Parts))
	for n, p := range s.Parts {
		part := *p
		c.Parts[n] = &part
	}
	return &c
}

// Manager stages chunked uploads on local disk until they are assembled
type Manager struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	tempDir    string
	partSize   int64
	expiration time.Duration
	logger     *logging.Logger
	now        func() time.Time
}

// NewManager creates an upload manager
func NewManager(cfg config.UploadConfig, logger *logging.Logger) *Manager {
	partSize := cfg.PartSize
	if partSize == 0 {
		partSize = DefaultPartSize
	}
	if partSize < MinPartSize {
		partSize = MinPartSize
	}
	if partSize > MaxPartSize {
		partSize = MaxPartSize
	}

	expiration := cfg.Expiration
	if expiration <= 0 {
		expiration = DefaultUploadExpiration
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Manager{
		sessions:   make(map[string]*Session),
		tempDir:    cfg.TempDir,
		partSize:   partSize,
		expiration: expiration,
		logger:     logger.WithComponent("upload"),
		now:        time.Now,
	}
}

func (m *Manager) dir(id string) string {
	return filepath.Join(m.tempDir, id)
}

func (m *Manager) partPath(id string, n int) string {
	return filepath.Join(m.dir(id), fmt.Sprintf("part_%05d", n))
}

// Initiate opens a new upload session for a file of totalSize bytes
func (m *Manager) Initiate(filename, title string, totalSize int64) (*Session, error) {
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", ErrInvalidPart)
	}
	if totalSize <= 0 {
		return nil, fmt.Errorf("%w: total size must be positive", ErrInvalidPart)
	}

	now := m.now()
	session := &Session{
		ID:         uuid.New().String(),
		Filename:   filepath.Base(filename),
		Title:      title,
		TotalSize:  totalSize,
		PartSize:   m.partSize,
		TotalParts: int((totalSize + m.partSize - 1) / m.partSize),
		Parts:      make(map[int]*Part),
		Status:     StatusActive,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.expiration),
	}

	if err := os.MkdirAll(m.dir(session.ID), 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	m.logger.WithFields(map[string]interface{}{
		"upload_id":   session.ID,
		"filename":    session.Filename,
		"total_size":  totalSize,
		"total_parts": session.TotalParts,
	}).Info("Initiated chunked upload")

	return session.clone(), nil
}

// active returns the session when it is still accepting parts
func (m *Manager) active(id string) (*Session, error) {
	session, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUploadNotFound, id)
	}
	if session.Status != StatusActive || m.now().After(session.ExpiresAt) {
		return nil, fmt.Errorf("%w: %s", ErrUploadClosed, id)
	}
	return session, nil
}

// UploadPart stores part n. Every part but the last must be exactly the
// session part size; re-sending a part replaces it.
func (m *Manager) UploadPart(id string, n int, data io.Reader) (*Part, error) {
	m.mu.Lock()
	session, err := m.active(id)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if n < 1 || n > session.TotalParts {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: part %d outside 1..%d", ErrInvalidPart, n, session.TotalParts)
	}
	want := session.expectedSize(n)
	m.mu.Unlock()

	tmp := fmt.Sprintf("%s.%s.tmp", m.partPath(id, n), uuid.New().String())
	file, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("failed to create part file: %w", err)
	}

	hash := md5.New()
	size, err := io.Copy(io.MultiWriter(file, hash), io.LimitReader(data, want+1))
	file.Close()
	if err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to write part: %w", err)
	}
	if size != want {
		os.Remove(tmp)
		return nil, fmt.Errorf("%w: part %d has %d bytes, want %d", ErrInvalidPart, n, size, want)
	}

	part := &Part{
		Number:     n,
		Size:       size,
		ETag:       hex.EncodeToString(hash.Sum(nil)),
		UploadedAt: m.now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// The session may have been aborted while the part was streaming
	session, err = m.active(id)
	if err != nil {
		os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, m.partPath(id, n)); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to store part: %w", err)
	}
	session.Parts[n] = part

	copied := *part
	return &copied, nil
}

// Complete concatenates all parts and returns the assembled file path.
// The caller must Release the session once the file has been consumed.
func (m *Manager) Complete(id string) (string, *Session, error) {
	m.mu.Lock()
	session, err := m.active(id)
	if err != nil {
		m.mu.Unlock()
		return "", nil, err
	}
	if missing := session.Missing(); len(missing) > 0 {
		m.mu.Unlock()
		return "", nil, fmt.Errorf("%w: %v", ErrIncomplete, missing)
	}
	session.Status = StatusAssembling
	totalParts := session.TotalParts
	finalPath := filepath.Join(m.dir(id), session.Filename)
	m.mu.Unlock()

	if err := m.assemble(id, finalPath, totalParts); err != nil {
		m.mu.Lock()
		session.Status = StatusActive
		m.mu.Unlock()
		return "", nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	session.Status = StatusCompleted
	session.CompletedAt = &now

	m.logger.WithField("upload_id", id).Info("Assembled chunked upload")

	return finalPath, session.clone(), nil
}

func (m *Manager) assemble(id, finalPath string, totalParts int) error {
	out, err := os.Create(finalPath)
	if err != nil {
		return fmt.Errorf("failed to create assembled file: %w", err)
	}
	defer out.Close()

	for i := 1; i <= totalParts; i++ {
		part, err := os.Open(m.partPath(id, i))
		if err != nil {
			return fmt.Errorf("failed to open part %d: %w", i, err)
		}
		_, err = io.Copy(out, part)
		part.Close()
		if err != nil {
			return fmt.Errorf("failed to copy part %d: %w", i, err)
		}
	}

	for i := 1; i <= totalParts; i++ {
		os.Remove(m.partPath(id, i))
	}

	return nil
}

// Get returns a snapshot of the session
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUploadNotFound, id)
	}
	return session.clone(), nil
}

// ListParts returns received parts ordered by number
func (m *Manager) ListParts(id string) ([]*Part, error) {
	session, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	parts := make([]*Part, 0, len(session.Parts))
	for _, part := range session.Parts {
		parts = append(parts, part)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Number < parts[j].Number })

	return parts, nil
}

// Abort discards an upload and its staged data
func (m *Manager) Abort(id string) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUploadNotFound, id)
	}
	if session.Status == StatusAssembling {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUploadClosed, id)
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	m.removeDir(id)
	m.logger.WithField("upload_id", id).Info("Aborted chunked upload")

	return nil
}

// Release forgets a completed session and removes its files
func (m *Manager) Release(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	m.removeDir(id)
}

func (m *Manager) removeDir(id string) {
	if err := os.RemoveAll(m.dir(id)); err != nil {
		m.logger.WithField("upload_id", id).WithError(err).Warn("Failed to remove upload directory")
	}
}

// PruneExpired drops active sessions past their expiry and returns how many
func (m *Manager) PruneExpired() int {
	now := m.now()

	m.mu.Lock()
	var expired []string
	for id, session := range m.sessions {
		if session.Status == StatusActive && now.After(session.ExpiresAt) {
			expired = append(expired, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.removeDir(id)
		m.logger.WithField("upload_id", id).Info("Cleaned up expired upload")
	}

	return len(expired)
}

// Cleanup prunes expired sessions every interval until ctx is done
func (m *Manager) Cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.PruneExpired()
		}
	}
}
