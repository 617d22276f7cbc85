// Package sweeper implements the periodic DB-poll activity (§4.4): the
// authoritative liveness path that re-presents due tasks even if every
// pub/sub notification were lost.
package sweeper

import (
	"context"
	"time"

	"github.com/distask/scheduler/pkg/infrastructure/logging"
	"github.com/distask/scheduler/pkg/infrastructure/metrics"
	"github.com/distask/scheduler/pkg/scheduler/queue"
	"github.com/distask/scheduler/pkg/scheduler/store"
	"github.com/distask/scheduler/pkg/scheduler/types"
)

// Config mirrors the enumerated configuration §6 names for the Sweeper.
type Config struct {
	LookForNewTasksInterval    time.Duration
	MaxConcurrentTasksInMemory int
	MaxSecondsToSleep          time.Duration
}

// Sweeper is the single long-running poll activity.
type Sweeper struct {
	store   store.Store
	queue   *queue.WorkQueue
	cfg     Config
	log     *logging.Logger
	metrics *metrics.Metrics
}

// New builds a Sweeper sharing q's dedup set through q.IDs().
func New(cfg Config, st store.Store, q *queue.WorkQueue, log *logging.Logger) *Sweeper {
	return &Sweeper{store: st, queue: q, cfg: cfg, log: log.WithComponent("sweeper")}
}

// SetMetrics attaches a Prometheus metrics bundle; nil is a valid no-op
// state.
func (s *Sweeper) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Run performs one immediate startup sweep (recovery for tasks persisted
// while this process was down), then loops on LookForNewTasksInterval
// until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.cfg.LookForNewTasksInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopping: context done")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs one pass: fetch due tasks, enqueue the ones not already
// tracked locally, in execution_time ascending order (§4.4).
func (s *Sweeper) sweep(ctx context.Context) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveSweep(time.Since(start))
		}
	}()

	due, err := s.store.FetchDue(ctx, s.cfg.MaxConcurrentTasksInMemory, s.cfg.MaxSecondsToSleep)
	if err != nil {
		s.log.Warn("sweep failed, will retry next cycle", map[string]interface{}{"error": err.Error()})
		return
	}

	enqueued := 0
	for _, t := range due {
		id := t.ID.String()
		if s.queue.IDs().Contains(id) {
			continue
		}

		s.queue.IDs().Add(id)
		if !s.queue.TryEnqueue(types.NewTaskEvent(t.InFlight())) {
			s.queue.IDs().Remove(id)
			s.log.Warn("dropped sweep-sourced task under back-pressure", map[string]interface{}{"task_id": id})
			continue
		}
		enqueued++
	}

	s.log.Debug("sweep complete", map[string]interface{}{"fetched": len(due), "enqueued": enqueued})
}
