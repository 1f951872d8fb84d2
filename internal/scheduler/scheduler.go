// Package scheduler periodically drives active transcode jobs forward by
// polling the encoder and expiring jobs that ran past their deadline.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/logging"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/metrics"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
)

// JobDriver is the part of the orchestrator the poller needs
type JobDriver interface {
	ActiveJobs(ctx context.Context) ([]*models.TranscodeJob, error)
	Poll(ctx context.Context, jobID string) (*models.TranscodeJob, error)
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

// Poller polls active jobs on a fixed interval
type Poller struct {
	driver        JobDriver
	interval      time.Duration
	batchSize     int
	maxConcurrent int
	logger        *logging.Logger
	now           func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// TickResult summarizes one polling round
type TickResult struct {
	Active  int
	Expired int
	Polled  int
	Failed  int
}

// NewPoller creates a poller. batchSize bounds how many jobs are polled per
// tick; maxConcurrent bounds how many polls run at once.
func NewPoller(driver JobDriver, interval time.Duration, batchSize, maxConcurrent int, logger *logging.Logger) *Poller {
	if batchSize < 1 {
		batchSize = 100
	}
	if maxConcurrent < 1 {
		maxConcurrent = 4
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Poller{
		driver:        driver,
		interval:      interval,
		batchSize:     batchSize,
		maxConcurrent: maxConcurrent,
		logger:        logger.WithComponent("scheduler"),
		now:           time.Now,
	}
}

// Start begins the polling loop. It returns immediately.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.stopped = make(chan struct{})

	go p.loop(ctx, p.stopped)
	p.logger.Infof("Job poller started (interval %s)", p.interval)
}

// Stop ends the loop and waits for the current tick to finish
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, stopped := p.cancel, p.stopped
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
	p.logger.Info("Job poller stopped")
}

func (p *Poller) loop(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs one polling round: expire stale jobs, then poll the active ones
// in priority order.
func (p *Poller) Tick(ctx context.Context) TickResult {
	var result TickResult

	expired, err := p.driver.ExpireStale(ctx, p.now())
	if err != nil {
		p.logger.WithError(err).Warn("Failed to expire stale jobs")
	}
	result.Expired = expired

	jobs, err := p.driver.ActiveJobs(ctx)
	if err != nil {
		p.logger.WithError(err).Error("Failed to list active jobs")
		metrics.RecordError("scheduler", "list_active")
		return result
	}
	result.Active = len(jobs)
	metrics.UpdateActiveJobs(len(jobs))

	pq := &PriorityQueue{}
	heap.Init(pq)
	for _, job := range jobs {
		if job.ExternalJobID == "" {
			continue
		}
		heap.Push(pq, &QueueItem{
			Job:       job,
			Priority:  job.Status.Rank(),
			Timestamp: job.UpdatedAt,
		})
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		sem    = make(chan struct{}, p.maxConcurrent)
		polled int
		failed int
	)
	for n := 0; n < p.batchSize && pq.Len() > 0; n++ {
		item := heap.Pop(pq).(*QueueItem)

		select {
		case <-ctx.Done():
			wg.Wait()
			result.Polled, result.Failed = polled, failed
			return result
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(jobID string) {
			defer wg.Done()
			defer func() { <-sem }()

			_, err := p.driver.Poll(ctx, jobID)

			mu.Lock()
			defer mu.Unlock()
			polled++
			if err != nil {
				failed++
				p.logger.WithJobID(jobID).WithError(err).Warn("Poll failed")
			}
		}(item.Job.ID)
	}
	wg.Wait()

	result.Polled, result.Failed = polled, failed
	if result.Polled > 0 || result.Expired > 0 {
		p.logger.Debugf("Poll round: %d active, %d polled, %d failed, %d expired",
			result.Active, result.Polled, result.Failed, result.Expired)
	}
	return result
}

// PriorityQueue orders jobs so the furthest-along and least recently
// updated are polled first
type PriorityQueue []*QueueItem

// QueueItem represents a job in the priority queue
type QueueItem struct {
	Job       *models.TranscodeJob
	Priority  int
	Timestamp time.Time
	Index     int
}

func (pq PriorityQueue) Len() int { return len(pq) }

func (pq PriorityQueue) Less(i, j int) bool {
	// Higher priority first
	if pq[i].Priority != pq[j].Priority {
		return pq[i].Priority > pq[j].Priority
	}
	// If same priority, oldest update first
	return pq[i].Timestamp.Before(pq[j].Timestamp)
}

func (pq PriorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].Index = i
	pq[j].Index = j
}

func (pq *PriorityQueue) Push(x interface{}) {
	n := len(*pq)
	item := x.(*QueueItem)
	item.Index = n
	*pq = append(*pq, item)
}

func (pq *PriorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.Index = -1
	*pq = old[0 : n-1]
	return item
}
