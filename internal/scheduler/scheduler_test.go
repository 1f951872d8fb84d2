package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	mu       sync.Mutex
	jobs     []*models.TranscodeJob
	polled   []string
	pollErr  map[string]error
	expired  int
	listErr  error
	expireAt []time.Time
}

func (d *fakeDriver) ActiveJobs(ctx context.Context) ([]*models.TranscodeJob, error) {
	return d.jobs, d.listErr
}

func (d *fakeDriver) Poll(ctx context.Context, jobID string) (*models.TranscodeJob, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.polled = append(d.polled, jobID)
	return nil, d.pollErr[jobID]
}

func (d *fakeDriver) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expireAt = append(d.expireAt, now)
	return d.expired, nil
}

func TestPriorityQueue(t *testing.T) {
	pq := &PriorityQueue{}
	heap.Init(pq)

	base := time.Now()
	items := []*QueueItem{
		{Job: &models.TranscodeJob{ID: "job-1"}, Priority: models.JobStatusSubmitted.Rank(), Timestamp: base},
		{Job: &models.TranscodeJob{ID: "job-2"}, Priority: models.JobStatusProcessing.Rank(), Timestamp: base.Add(time.Second)},
		{Job: &models.TranscodeJob{ID: "job-3"}, Priority: models.JobStatusSubmitted.Rank(), Timestamp: base.Add(-time.Second)},
		{Job: &models.TranscodeJob{ID: "job-4"}, Priority: models.JobStatusProcessing.Rank(), Timestamp: base},
	}
	for _, item := range items {
		heap.Push(pq, item)
	}

	assert.Equal(t, 4, pq.Len())

	expectedOrder := []string{"job-4", "job-2", "job-3", "job-1"}
	for i, expectedID := range expectedOrder {
		item := heap.Pop(pq).(*QueueItem)
		assert.Equal(t, expectedID, item.Job.ID, "Job order mismatch at position %d", i)
	}
	assert.Equal(t, 0, pq.Len())
}

func TestTickPollsSubmittedJobs(t *testing.T) {
	driver := &fakeDriver{
		jobs: []*models.TranscodeJob{
			{ID: "queued", Status: models.JobStatusQueued},
			{ID: "a", Status: models.JobStatusSubmitted, ExternalJobID: "h-a"},
			{ID: "b", Status: models.JobStatusProcessing, ExternalJobID: "h-b"},
		},
		pollErr: map[string]error{"b": errors.New("poll transport")},
		expired: 2,
	}
	p := NewPoller(driver, time.Minute, 10, 2, nil)

	result := p.Tick(context.Background())

	assert.Equal(t, TickResult{Active: 3, Expired: 2, Polled: 2, Failed: 1}, result)
	assert.ElementsMatch(t, []string{"a", "b"}, driver.polled)
	assert.Len(t, driver.expireAt, 1)
}

func TestTickRespectsBatchSize(t *testing.T) {
	driver := &fakeDriver{}
	for i := 0; i < 5; i++ {
		driver.jobs = append(driver.jobs, &models.TranscodeJob{
			ID:            string(rune('a' + i)),
			Status:        models.JobStatusSubmitted,
			ExternalJobID: "h",
			UpdatedAt:     time.Unix(int64(i), 0),
		})
	}
	p := NewPoller(driver, time.Minute, 2, 1, nil)

	result := p.Tick(context.Background())

	assert.Equal(t, 2, result.Polled)
	assert.Equal(t, []string{"a", "b"}, driver.polled)
}

func TestTickListFailure(t *testing.T) {
	driver := &fakeDriver{listErr: errors.New("db down")}
	p := NewPoller(driver, time.Minute, 10, 2, nil)

	result := p.Tick(context.Background())
	assert.Equal(t, 0, result.Polled)
	assert.Empty(t, driver.polled)
}

func TestPollerStartStop(t *testing.T) {
	driver := &fakeDriver{}
	p := NewPoller(driver, 5*time.Millisecond, 10, 2, nil)

	p.Start(context.Background())
	require.Eventually(t, func() bool {
		driver.mu.Lock()
		defer driver.mu.Unlock()
		return len(driver.expireAt) > 0
	}, time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop()
}
