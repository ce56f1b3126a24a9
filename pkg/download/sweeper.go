package download

import (
	"context"
	"time"

	"github.com/reelcache/reelcache/internal/logger"
)

// SweeperConfig holds reconciliation sweep configuration.
type SweeperConfig struct {
	// Interval between sweeps. Default: 2m.
	Interval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// StaleAfter is how long an active record may sit untouched before it
	// counts as orphaned. Must comfortably exceed the queue's retry
	// backoff so sweeps don't race scheduled retries. Default: 5m.
	StaleAfter time.Duration `mapstructure:"stale_after" yaml:"stale_after"`
}

// DefaultSweeperConfig returns the default sweep configuration.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:   2 * time.Minute,
		StaleAfter: 5 * time.Minute,
	}
}

func (c *SweeperConfig) applyDefaults() {
	def := DefaultSweeperConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = def.StaleAfter
	}
}

// Sweeper re-enqueues active records whose job got lost: a full queue at
// admission time, a process restart, a crash between admit and enqueue, or a
// worker that died mid-stream. Together with the rows in the database it
// upgrades the in-process queue to at-least-once delivery. Each pass also
// expires completed copies whose retention window ran out.
type Sweeper struct {
	store     Store
	queue     *Queue
	downloads *Service
	config    SweeperConfig

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewSweeper creates a reconciliation sweeper. downloads may be nil, which
// disables the expiry pass.
func NewSweeper(st Store, queue *Queue, downloads *Service, config SweeperConfig) *Sweeper {
	config.applyDefaults()

	return &Sweeper{
		store:     st,
		queue:     queue,
		downloads: downloads,
		config:    config,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start runs the periodic sweep until Stop is called. An immediate first
// sweep recovers records orphaned by the previous process.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.stoppedCh)

		logger.Info("Starting download sweeper",
			"interval", s.config.Interval,
			"staleAfter", s.config.StaleAfter)

		s.Sweep(ctx)
		s.expire(ctx)

		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
				s.expire(ctx)
			case <-s.stopCh:
				logger.Info("Download sweeper stopped")
				return
			}
		}
	}()
}

// Stop terminates the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.stoppedCh
}

// Sweep re-enqueues stale active records once. Returns how many jobs were
// enqueued. Records already in flight are skipped; everything else is safe
// to enqueue twice since the worker re-checks the record before streaming.
func (s *Sweeper) Sweep(ctx context.Context) int {
	cutoff := time.Now().Add(-s.config.StaleAfter)

	recs, err := s.store.ListStaleActive(ctx, cutoff)
	if err != nil {
		logger.Error("Sweep failed to list stale records", "error", err)
		return 0
	}

	enqueued := 0
	for _, rec := range recs {
		if s.queue.InFlight(rec.ID) {
			continue
		}
		if s.queue.Enqueue(Job{
			DownloadID: rec.ID,
			UserID:     rec.UserID,
			ContentID:  rec.ContentID,
			Quality:    rec.Quality,
		}) {
			enqueued++
		}
	}

	if enqueued > 0 {
		logger.Info("Sweep re-enqueued stale downloads", "count", enqueued)
	}

	return enqueued
}

func (s *Sweeper) expire(ctx context.Context) {
	if s.downloads == nil {
		return
	}
	s.downloads.ExpireOverdue(ctx)
}
