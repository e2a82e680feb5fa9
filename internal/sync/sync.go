// Package sync backs up the tutor registry to external destinations.
package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/tutorsheets/internal/metrics"
)

// Destination is the interface for a sync target (S3, git, file).
type Destination interface {
	// Write sends the JSONL payload to the destination.
	Write(ctx context.Context, data []byte) error
}

// Scheduler runs periodic backups to one or more destinations.
type Scheduler struct {
	src          Source
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// NewScheduler creates a scheduler that exports src to the given
// destinations at the specified interval.
func NewScheduler(src Source, destinations []Destination, interval time.Duration, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		src:          src,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start begins periodic sync. It runs an initial sync immediately, then
// on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current sync (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	_ = s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.RunOnce(ctx)
		}
	}
}

// RunOnce exports the registry and writes it to every destination. A failing
// destination does not stop the others; the joined errors are returned.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s.src, &buf); err != nil {
		s.logger.Error("sync export failed", "err", err)
		s.record("export_error")
		return fmt.Errorf("export: %w", err)
	}
	data := buf.Bytes()

	var errs []error
	for i, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			s.logger.Error("sync destination write failed", "destination", fmt.Sprintf("%d", i), "err", err)
			errs = append(errs, fmt.Errorf("destination %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		s.record("write_error")
		return errors.Join(errs...)
	}

	s.record("success")
	if s.metrics != nil {
		s.metrics.SyncLastSuccessSec.SetToCurrentTime()
	}
	s.logger.Info("sync completed", "destinations", len(s.destinations), "bytes", len(data))
	return nil
}

func (s *Scheduler) record(result string) {
	if s.metrics != nil {
		s.metrics.SyncRunsTotal.WithLabelValues(result).Inc()
	}
}
