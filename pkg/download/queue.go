package download

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/reelcache/reelcache/internal/logger"
	"github.com/reelcache/reelcache/pkg/metrics"
)

// ErrUnrecoverable marks a job failure that retrying cannot fix (missing
// record, missing remote object reference). The queue fails such jobs
// immediately without consuming the retry budget.
var ErrUnrecoverable = errors.New("unrecoverable job failure")

// Job is the queue envelope for one transfer. The download record is the
// source of truth for transfer state; the job only carries enough to find it.
type Job struct {
	DownloadID string
	UserID     string
	ContentID  string
	Quality    string

	// Attempt counts prior failed attempts for this job chain.
	Attempt int
}

// Processor executes a job. Implemented by *Worker.
type Processor interface {
	Process(ctx context.Context, job Job) error
}

// QueueConfig holds configuration for the job queue.
type QueueConfig struct {
	// QueueSize is the job channel capacity. Default: 256.
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`

	// Workers is the number of concurrent transfers. Kept deliberately
	// small to protect disk and network. Default: 2.
	Workers int `mapstructure:"workers" yaml:"workers"`

	// MaxAttempts bounds retries per job chain. Default: 3.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`

	// RetryBackoff is the initial retry delay, doubled per attempt.
	// Default: 5s.
	RetryBackoff time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`

	// JobTimeout bounds a single transfer attempt. Default: 30m.
	JobTimeout time.Duration `mapstructure:"job_timeout" yaml:"job_timeout"`
}

// DefaultQueueConfig returns the default queue configuration.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		QueueSize:    256,
		Workers:      2,
		MaxAttempts:  3,
		RetryBackoff: 5 * time.Second,
		JobTimeout:   30 * time.Minute,
	}
}

func (c *QueueConfig) applyDefaults() {
	def := DefaultQueueConfig()
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = def.RetryBackoff
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = def.JobTimeout
	}
}

// Queue is the in-process job queue feeding the transfer worker pool.
//
// Durability lives in the database, not here: every admitted transfer exists
// as a pending download record, and the reconciliation sweep re-enqueues
// records whose job was lost (process restart, full queue). The queue itself
// provides bounded concurrency, retry with exponential backoff, and a
// per-record lock so two jobs for the same record never run concurrently.
type Queue struct {
	processor Processor
	config    QueueConfig

	jobs chan Job

	// inFlight holds download IDs currently being processed.
	inFlight sync.Map

	wg        sync.WaitGroup
	stopCh    chan struct{}
	stoppedCh chan struct{}
	started   bool

	// Metrics
	mu          sync.Mutex
	pending     int
	completed   int
	failed      int
	lastError   error
	lastErrorAt time.Time

	collectors *metrics.DownloadMetrics // optional

	// onPermanentFailure runs when a job will never be retried again.
	onPermanentFailure func(job Job, cause error)
}

// NewQueue creates a new job queue. collectors may be nil.
func NewQueue(p Processor, config QueueConfig, collectors *metrics.DownloadMetrics) *Queue {
	config.applyDefaults()

	return &Queue{
		processor:  p,
		config:     config,
		jobs:       make(chan Job, config.QueueSize),
		stopCh:     make(chan struct{}),
		stoppedCh:  make(chan struct{}),
		collectors: collectors,
	}
}

// OnPermanentFailure registers a callback invoked when a job is dropped for
// good, either unrecoverable or out of retries. Must be set before Start.
func (q *Queue) OnPermanentFailure(fn func(job Job, cause error)) {
	q.onPermanentFailure = fn
}

// Start begins processing jobs.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	logger.Info("Starting download queue", "workers", q.config.Workers)

	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	// Monitor goroutine to close stoppedCh when all workers exit
	go func() {
		q.wg.Wait()
		close(q.stoppedCh)
	}()
}

// Stop gracefully shuts down the queue, waiting up to timeout for in-flight
// transfers to finish. Queued jobs that never started stay recoverable: their
// records are still pending and the sweep re-enqueues them after restart.
func (q *Queue) Stop(timeout time.Duration) {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	logger.Info("Stopping download queue", "pending", q.Pending())

	close(q.stopCh)

	select {
	case <-q.stoppedCh:
		logger.Info("Download queue stopped gracefully")
	case <-time.After(timeout):
		logger.Warn("Download queue stop timed out", "pending", q.Pending())
	}
}

// Enqueue adds a job to the queue. Returns false if the queue is full
// (non-blocking); callers treat that as a lost enqueue and rely on the
// reconciliation sweep.
func (q *Queue) Enqueue(job Job) bool {
	select {
	case q.jobs <- job:
		q.mu.Lock()
		q.pending++
		q.mu.Unlock()
		if q.collectors != nil {
			q.collectors.QueueDepth.Inc()
		}
		return true
	default:
		logger.Warn("Download queue full, dropping job",
			"downloadID", job.DownloadID)
		return false
	}
}

// InFlight reports whether a job for the given download is currently
// being processed.
func (q *Queue) InFlight(downloadID string) bool {
	_, ok := q.inFlight.Load(downloadID)
	return ok
}

// Pending returns the number of queued jobs not yet picked up.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Stats returns queue statistics.
func (q *Queue) Stats() (pending, completed, failed int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending, q.completed, q.failed
}

// LastError returns when the last error occurred and the error itself.
func (q *Queue) LastError() (time.Time, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastErrorAt, q.lastError
}

// worker pulls jobs until stopCh closes. Workers only exit on stopCh, never
// on a caller's context, so a short-lived startup context cannot kill the
// pool; each job gets its own fresh timeout context.
func (q *Queue) worker(id int) {
	defer q.wg.Done()

	logger.Debug("Download queue worker started", "workerID", id)

	for {
		select {
		case job := <-q.jobs:
			q.processJob(job)
		case <-q.stopCh:
			logger.Debug("Download queue worker stopped", "workerID", id)
			return
		}
	}
}

// processJob runs one job with the per-record lock held.
func (q *Queue) processJob(job Job) {
	q.mu.Lock()
	q.pending--
	q.mu.Unlock()
	if q.collectors != nil {
		q.collectors.QueueDepth.Dec()
	}

	// A job for a record already in flight is deferred, not run: two jobs
	// for one record must never stream concurrently.
	if _, loaded := q.inFlight.LoadOrStore(job.DownloadID, struct{}{}); loaded {
		logger.Debug("Download already in flight, deferring job",
			"downloadID", job.DownloadID)
		q.requeueAfter(job, q.config.RetryBackoff)
		return
	}
	defer q.inFlight.Delete(job.DownloadID)

	ctx, cancel := context.WithTimeout(context.Background(), q.config.JobTimeout)
	defer cancel()

	start := time.Now()
	err := q.processor.Process(ctx, job)
	if q.collectors != nil {
		q.collectors.TransferDuration.Observe(time.Since(start).Seconds())
	}

	if err == nil {
		q.mu.Lock()
		q.completed++
		q.mu.Unlock()
		if q.collectors != nil {
			q.collectors.JobsProcessed.WithLabelValues("ok").Inc()
		}
		return
	}

	q.mu.Lock()
	q.lastError = err
	q.lastErrorAt = time.Now()
	q.mu.Unlock()

	if errors.Is(err, ErrUnrecoverable) {
		logger.Error("Download job failed permanently",
			"downloadID", job.DownloadID, "error", err)
		q.recordFailure("unrecoverable")
		if q.onPermanentFailure != nil {
			q.onPermanentFailure(job, err)
		}
		return
	}

	if job.Attempt+1 >= q.config.MaxAttempts {
		logger.Error("Download job exhausted retries",
			"downloadID", job.DownloadID,
			"attempts", job.Attempt+1,
			"error", err)
		q.recordFailure("exhausted")
		if q.onPermanentFailure != nil {
			q.onPermanentFailure(job, err)
		}
		return
	}

	// Exponential backoff: base doubles per prior attempt.
	delay := q.config.RetryBackoff << uint(job.Attempt)
	logger.Warn("Download job failed, scheduling retry",
		"downloadID", job.DownloadID,
		"attempt", job.Attempt+1,
		"delay", delay,
		"error", err)
	if q.collectors != nil {
		q.collectors.JobsProcessed.WithLabelValues("retry").Inc()
	}

	retry := job
	retry.Attempt++
	q.requeueAfter(retry, delay)
}

func (q *Queue) recordFailure(outcome string) {
	q.mu.Lock()
	q.failed++
	q.mu.Unlock()
	if q.collectors != nil {
		q.collectors.JobsProcessed.WithLabelValues(outcome).Inc()
	}
}

// requeueAfter re-enqueues a job after a delay unless the queue stopped.
// The record stays pending/failed in the store either way, so a dropped
// requeue is recovered by the sweep.
func (q *Queue) requeueAfter(job Job, delay time.Duration) {
	time.AfterFunc(delay, func() {
		select {
		case <-q.stopCh:
			return
		default:
		}
		q.Enqueue(job)
	})
}
