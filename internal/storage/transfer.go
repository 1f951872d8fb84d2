package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/metrics"
	"github.com/minio/minio-go/v7"
)

const (
	// Default part size for multipart transfers (16MB)
	DefaultTransferPartSize = 16 * 1024 * 1024

	// Minimum part size S3 accepts for multipart uploads (5MB)
	MinTransferPartSize = 5 * 1024 * 1024

	// Maximum number of concurrent parts
	MaxConcurrentParts = 8
)

// byteRange is an inclusive span of an object
type byteRange struct {
	start int64
	end   int64
}

// splitRanges divides size bytes into at most maxParts spans of roughly
// partSize bytes each
func splitRanges(size, partSize int64, maxParts int) []byteRange {
	if size <= 0 {
		return nil
	}

	parts := (size + partSize - 1) / partSize
	if parts > int64(maxParts) {
		parts = int64(maxParts)
	}
	span := size / parts

	ranges := make([]byteRange, parts)
	for i := int64(0); i < parts; i++ {
		start := i * span
		end := start + span - 1
		if i == parts-1 {
			end = size - 1
		}
		ranges[i] = byteRange{start: start, end: end}
	}

	return ranges
}

// ParallelTransfer moves large files between local disk and the bucket
// using concurrent multipart uploads and ranged downloads
type ParallelTransfer struct {
	*MinioStore
	partSize int64
	parts    int
}

// NewParallelTransfer wraps store for large-file transfers
func NewParallelTransfer(store *MinioStore, partSize int64) *ParallelTransfer {
	if partSize < MinTransferPartSize {
		partSize = DefaultTransferPartSize
	}

	return &ParallelTransfer{
		MinioStore: store,
		partSize:   partSize,
		parts:      MaxConcurrentParts,
	}
}

// UploadFile uploads filePath, splitting files larger than one part
func (t *ParallelTransfer) UploadFile(ctx context.Context, key, filePath string) (err error) {
	start := time.Now()
	var size int64
	defer func() {
		metrics.RecordStorageOperation("upload_file", metrics.Status(err), time.Since(start).Seconds(), size)
	}()

	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	size = info.Size()

	if size < t.partSize {
		return t.MinioStore.UploadFile(ctx, key, filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	_, err = t.client.PutObject(ctx, t.bucketName, key, file, size, minio.PutObjectOptions{
		PartSize:    uint64(t.partSize),
		ContentType: ContentType(filePath),
		NumThreads:  uint(t.parts),
	})
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}

	return nil
}

// DownloadFile downloads key to filePath with concurrent range requests
func (t *ParallelTransfer) DownloadFile(ctx context.Context, key, filePath string) (err error) {
	start := time.Now()
	var size int64
	defer func() {
		metrics.RecordStorageOperation("download_file", metrics.Status(err), time.Since(start).Seconds(), size)
	}()

	info, err := t.client.StatObject(ctx, t.bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to stat object: %w", err)
	}
	size = info.Size

	if size < t.partSize {
		return t.MinioStore.DownloadFile(ctx, key, filePath)
	}

	out, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for i, r := range splitRanges(size, t.partSize, t.parts) {
		wg.Add(1)
		go func(part int, r byteRange) {
			defer wg.Done()

			if err := t.downloadRange(ctx, key, r, out); err != nil {
				once.Do(func() {
					firstErr = fmt.Errorf("failed to download part %d: %w", part, err)
					cancel()
				})
			}
		}(i, r)
	}
	wg.Wait()

	if firstErr != nil {
		os.Remove(filePath)
		return firstErr
	}

	return nil
}

// downloadRange copies one span into out at its own offset
func (t *ParallelTransfer) downloadRange(ctx context.Context, key string, r byteRange, out io.WriterAt) error {
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(r.start, r.end); err != nil {
		return fmt.Errorf("failed to set range: %w", err)
	}

	object, err := t.client.GetObject(ctx, t.bucketName, key, opts)
	if err != nil {
		return fmt.Errorf("failed to get object: %w", err)
	}
	defer object.Close()

	written, err := io.Copy(io.NewOffsetWriter(out, r.start), object)
	if err != nil {
		return fmt.Errorf("failed to read object: %w", err)
	}
	if want := r.end - r.start + 1; written != want {
		return fmt.Errorf("short read: got %d bytes, want %d", written, want)
	}

	return nil
}
