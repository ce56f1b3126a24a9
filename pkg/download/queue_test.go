package download

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// stubProcessor scripts job outcomes by download ID.
type stubProcessor struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]int // fail this many times before succeeding
	err      error
	block    chan struct{} // when non-nil, Process waits on it

	concurrent    atomic.Int32
	maxConcurrent atomic.Int32
}

func newStubProcessor() *stubProcessor {
	return &stubProcessor{
		calls:    make(map[string]int),
		failures: make(map[string]int),
		err:      errors.New("boom"),
	}
}

func (p *stubProcessor) Process(_ context.Context, job Job) error {
	cur := p.concurrent.Add(1)
	defer p.concurrent.Add(-1)
	for {
		max := p.maxConcurrent.Load()
		if cur <= max || p.maxConcurrent.CompareAndSwap(max, cur) {
			break
		}
	}

	if p.block != nil {
		<-p.block
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[job.DownloadID]++
	if p.failures[job.DownloadID] > 0 {
		p.failures[job.DownloadID]--
		return p.err
	}
	return nil
}

func (p *stubProcessor) callCount(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[id]
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestQueue_Enqueue(t *testing.T) {
	cfg := DefaultQueueConfig()
	cfg.QueueSize = 10
	q := NewQueue(newStubProcessor(), cfg, nil)

	for i := 0; i < 5; i++ {
		if !q.Enqueue(Job{DownloadID: fmt.Sprintf("d%d", i)}) {
			t.Errorf("Enqueue(%d) returned false", i)
		}
	}

	if q.Pending() != 5 {
		t.Errorf("Pending() = %d, want 5", q.Pending())
	}
}

func TestQueue_Full(t *testing.T) {
	cfg := QueueConfig{QueueSize: 2, Workers: 1}
	q := NewQueue(newStubProcessor(), cfg, nil)
	// Workers not started, so the channel fills up.

	if !q.Enqueue(Job{DownloadID: "d1"}) {
		t.Error("Enqueue(1) should succeed")
	}
	if !q.Enqueue(Job{DownloadID: "d2"}) {
		t.Error("Enqueue(2) should succeed")
	}
	if q.Enqueue(Job{DownloadID: "d3"}) {
		t.Error("Enqueue(3) should fail (queue full)")
	}
}

func TestQueue_ProcessesJobs(t *testing.T) {
	p := newStubProcessor()
	cfg := DefaultQueueConfig()
	q := NewQueue(p, cfg, nil)

	q.Start(context.Background())
	defer q.Stop(time.Second)

	q.Enqueue(Job{DownloadID: "d1"})
	q.Enqueue(Job{DownloadID: "d2"})

	waitFor(t, time.Second, func() bool {
		_, completed, _ := q.Stats()
		return completed == 2
	})

	if p.callCount("d1") != 1 || p.callCount("d2") != 1 {
		t.Errorf("calls = %d/%d, want 1/1", p.callCount("d1"), p.callCount("d2"))
	}
}

func TestQueue_RetriesTransientFailures(t *testing.T) {
	p := newStubProcessor()
	p.failures["d1"] = 2 // fail twice, succeed on the third attempt

	cfg := DefaultQueueConfig()
	cfg.RetryBackoff = 5 * time.Millisecond
	q := NewQueue(p, cfg, nil)

	q.Start(context.Background())
	defer q.Stop(time.Second)

	q.Enqueue(Job{DownloadID: "d1"})

	waitFor(t, 2*time.Second, func() bool {
		_, completed, _ := q.Stats()
		return completed == 1
	})

	if got := p.callCount("d1"); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestQueue_ExhaustedRetriesFailPermanently(t *testing.T) {
	p := newStubProcessor()
	p.failures["d1"] = 100 // never succeeds

	cfg := DefaultQueueConfig()
	cfg.MaxAttempts = 3
	cfg.RetryBackoff = 5 * time.Millisecond
	q := NewQueue(p, cfg, nil)

	var failedJobs []Job
	var mu sync.Mutex
	q.OnPermanentFailure(func(job Job, cause error) {
		mu.Lock()
		failedJobs = append(failedJobs, job)
		mu.Unlock()
	})

	q.Start(context.Background())
	defer q.Stop(time.Second)

	q.Enqueue(Job{DownloadID: "d1"})

	waitFor(t, 2*time.Second, func() bool {
		_, _, failed := q.Stats()
		return failed == 1
	})

	if got := p.callCount("d1"); got != 3 {
		t.Errorf("attempts = %d, want exactly MaxAttempts (3)", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(failedJobs) != 1 || failedJobs[0].DownloadID != "d1" {
		t.Errorf("permanent-failure callback got %v, want one call for d1", failedJobs)
	}
}

func TestQueue_UnrecoverableSkipsRetries(t *testing.T) {
	p := newStubProcessor()
	p.failures["d1"] = 100
	p.err = fmt.Errorf("%w: record gone", ErrUnrecoverable)

	cfg := DefaultQueueConfig()
	cfg.RetryBackoff = 5 * time.Millisecond
	q := NewQueue(p, cfg, nil)

	q.Start(context.Background())
	defer q.Stop(time.Second)

	q.Enqueue(Job{DownloadID: "d1"})

	waitFor(t, time.Second, func() bool {
		_, _, failed := q.Stats()
		return failed == 1
	})

	if got := p.callCount("d1"); got != 1 {
		t.Errorf("attempts = %d, want 1 (no retries)", got)
	}

	when, err := q.LastError()
	if err == nil || when.IsZero() {
		t.Error("LastError() not recorded")
	}
}

func TestQueue_SameRecordNeverRunsConcurrently(t *testing.T) {
	p := newStubProcessor()
	p.block = make(chan struct{})

	cfg := DefaultQueueConfig()
	cfg.Workers = 4
	cfg.RetryBackoff = 5 * time.Millisecond
	q := NewQueue(p, cfg, nil)

	q.Start(context.Background())
	defer q.Stop(time.Second)

	// Several jobs for the same record: only one may hold the in-flight
	// lock, the rest are deferred.
	for i := 0; i < 4; i++ {
		q.Enqueue(Job{DownloadID: "d1"})
	}

	waitFor(t, time.Second, func() bool { return q.InFlight("d1") })
	close(p.block)

	waitFor(t, 2*time.Second, func() bool {
		_, completed, _ := q.Stats()
		return completed == 4
	})

	if max := p.maxConcurrent.Load(); max > 1 {
		t.Errorf("max concurrent processing for one record = %d, want 1", max)
	}
}

func TestQueue_StopNotStarted(t *testing.T) {
	q := NewQueue(newStubProcessor(), DefaultQueueConfig(), nil)
	q.Stop(time.Second) // must not panic
}

func TestQueue_DoubleStart(t *testing.T) {
	q := NewQueue(newStubProcessor(), DefaultQueueConfig(), nil)

	ctx := context.Background()
	q.Start(ctx)
	q.Start(ctx) // no-op

	q.Stop(time.Second)
}

func TestQueueConfig_Defaults(t *testing.T) {
	cfg := QueueConfig{QueueSize: -1, Workers: 0, MaxAttempts: 0}
	q := NewQueue(newStubProcessor(), cfg, nil)

	if cap(q.jobs) != 256 {
		t.Errorf("queue capacity = %d, want 256", cap(q.jobs))
	}
	if q.config.Workers != 2 {
		t.Errorf("workers = %d, want 2", q.config.Workers)
	}
	if q.config.MaxAttempts != 3 {
		t.Errorf("maxAttempts = %d, want 3", q.config.MaxAttempts)
	}
}
