// Package queue implements the WorkQueue (§4.5): a bounded single-consumer
// channel plus two weighted semaphores bounding, respectively, in-memory
// pre-execution wait and concurrent active execution.
package queue

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/distask/scheduler/pkg/infrastructure/logging"
	"github.com/distask/scheduler/pkg/infrastructure/metrics"
	"github.com/distask/scheduler/pkg/scheduler/handlers"
	"github.com/distask/scheduler/pkg/scheduler/store"
	"github.com/distask/scheduler/pkg/scheduler/types"
)

// IDSet is the concurrent set of task ids this process currently tracks,
// shared by reference across the Listener, Sweeper, and WorkQueue to
// suppress duplicate ingress (§3 "in-process entities").
type IDSet struct {
	ids map[string]struct{}
	mu  chanMutex
}

// chanMutex is a channel-based mutex, matching the teacher's preference
// for channel-based synchronization over raw sync.Mutex where either
// reads equally well.
type chanMutex chan struct{}

func newChanMutex() chanMutex {
	m := make(chanMutex, 1)
	m <- struct{}{}
	return m
}

func (m chanMutex) Lock()   { <-m }
func (m chanMutex) Unlock() { m <- struct{}{} }

// NewIDSet builds an empty, ready-to-share dedup set.
func NewIDSet() *IDSet {
	return &IDSet{ids: make(map[string]struct{}), mu: newChanMutex()}
}

// Contains reports whether id is currently tracked. Racy-tolerant by
// design (§5): a false negative results at worst in a duplicate enqueue,
// which the store's claim protocol serializes correctly.
func (s *IDSet) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Add inserts id, returning false if it was already present.
func (s *IDSet) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Remove deletes id from the set.
func (s *IDSet) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}

// Len reports the current set size.
func (s *IDSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// enqueueBoundedWait is the fixed timeout every ingress path (Listener,
// Sweeper) uses for its bounded-wait channel send (§4.3, §4.4, §5).
const enqueueBoundedWait = 100 * time.Millisecond

// minRemainingCapacity is the back-pressure threshold: ingress paths
// check the channel has at least this many free slots before attempting
// a bounded-wait send (§4.3).
const minRemainingCapacity = 10

// WorkQueue owns the bounded channel, the two semaphores, and the shared
// dedup set.
type WorkQueue struct {
	events        chan types.QueueEvent
	sleepSem      *semaphore.Weighted
	execSem       *semaphore.Weighted
	ids      *IDSet
	store    store.Store
	handlers *handlers.Registry
	log      *logging.Logger
	capacity int
	metrics  *metrics.Metrics
}

// Config bounds the WorkQueue's channel and semaphore sizes, matching the
// enumerated configuration of §6.
type Config struct {
	MaxConcurrentTasksInMemory  int
	MaxConcurrentExecutingTasks int
}

// New builds a WorkQueue. ids is shared with the Listener and Sweeper.
func New(cfg Config, st store.Store, reg *handlers.Registry, ids *IDSet, log *logging.Logger) *WorkQueue {
	return &WorkQueue{
		events:   make(chan types.QueueEvent, cfg.MaxConcurrentTasksInMemory),
		sleepSem: semaphore.NewWeighted(int64(cfg.MaxConcurrentTasksInMemory)),
		execSem:  semaphore.NewWeighted(int64(cfg.MaxConcurrentExecutingTasks)),
		ids:      ids,
		store:    st,
		handlers: reg,
		log:      log.WithComponent("workqueue"),
		capacity: cfg.MaxConcurrentTasksInMemory,
	}
}

// SetMetrics attaches a Prometheus metrics bundle; nil is a valid
// no-op state (metrics are optional instrumentation, not load-bearing).
func (q *WorkQueue) SetMetrics(m *metrics.Metrics) {
	q.metrics = m
}

// RemainingCapacity returns the number of free slots left in the bounded
// channel, the quantity the Listener and Sweeper check before enqueueing.
func (q *WorkQueue) RemainingCapacity() int {
	return q.capacity - len(q.events)
}

// TryEnqueue attempts the standard bounded-wait send used by both the
// Listener and Sweeper (§4.3, §4.4). It first checks back-pressure, then
// issues a send with a short bounded wait; on insufficient capacity or
// timeout it drops the event and returns false (never an error — §7
// classifies this as a non-fatal Capacity condition). A closed channel is
// an invariant violation and panics, matching §7's fatal/process-abort
// treatment.
func (q *WorkQueue) TryEnqueue(ev types.QueueEvent) bool {
	if q.RemainingCapacity() < minRemainingCapacity {
		return false
	}

	timer := time.NewTimer(enqueueBoundedWait)
	defer timer.Stop()

	defer func() {
		if r := recover(); r != nil {
			panic("queue: send on closed WorkQueue channel: invariant violation")
		}
	}()

	select {
	case q.events <- ev:
		if q.metrics != nil {
			q.metrics.QueueDepth.Set(float64(len(q.events)))
		}
		return true
	case <-timer.C:
		return false
	}
}

// Stop enqueues the Stop event unconditionally (bypassing back-pressure,
// since shutdown must not be dropped).
func (q *WorkQueue) Stop() {
	q.events <- types.StopEvent()
}

// IDs returns the shared dedup set for the Listener/Sweeper to consult.
func (q *WorkQueue) IDs() *IDSet {
	return q.ids
}

// Run is the single consumer activity (§4.5). It returns when a Stop
// event is received or the channel is closed.
func (q *WorkQueue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.log.Info("workqueue consumer stopping: context done")
			return
		case ev, ok := <-q.events:
			if !ok {
				q.log.Warn("workqueue channel closed")
				return
			}
			if ev.IsStop() {
				q.log.Info("workqueue consumer received stop event")
				return
			}
			if q.metrics != nil {
				q.metrics.QueueDepth.Set(float64(len(q.events)))
			}
			q.dispatch(ctx, ev.Task())
		}
	}
}

// dispatch spawns the per-task activity described in §4.5, steps 1-7,
// only if a sleep permit is immediately available.
func (q *WorkQueue) dispatch(ctx context.Context, t types.InFlight) {
	if !q.sleepSem.TryAcquire(1) {
		q.log.Warn("no sleep permit available, dropping task", map[string]interface{}{"task_id": t.ID.String()})
		q.ids.Remove(t.ID.String())
		return
	}

	go q.runTask(ctx, t)
}

func (q *WorkQueue) runTask(ctx context.Context, t types.InFlight) {
	defer q.sleepSem.Release(1)
	defer q.ids.Remove(t.ID.String())
	if q.metrics != nil {
		q.metrics.SleepPermitsInUse.Inc()
		defer q.metrics.SleepPermitsInUse.Dec()
	}

	if err := q.sleepUntilDue(ctx, t.ExecutionTime); err != nil {
		q.log.Warn("sleep interrupted", map[string]interface{}{"task_id": t.ID.String(), "error": err.Error()})
		return
	}

	if err := q.execSem.Acquire(ctx, 1); err != nil {
		q.log.Warn("exec permit acquisition interrupted", map[string]interface{}{"task_id": t.ID.String()})
		return
	}
	defer q.execSem.Release(1)
	if q.metrics != nil {
		q.metrics.ExecPermitsInUse.Inc()
		defer q.metrics.ExecPermitsInUse.Dec()
	}

	claimStart := time.Now()
	result, err := q.store.Claim(ctx, t.ID.String())
	if q.metrics != nil {
		q.metrics.ObserveClaim(result == types.Claimed, time.Since(claimStart))
	}
	if err != nil {
		q.log.Error("claim failed", map[string]interface{}{"task_id": t.ID.String(), "error": err.Error()})
		return
	}
	if result == types.AlreadyHandled {
		q.log.Debug("task already handled by another worker", map[string]interface{}{"task_id": t.ID.String()})
		return
	}

	handler, ok := q.handlers.Lookup(t.TaskType)
	if !ok {
		q.log.Error("no handler registered for task type", map[string]interface{}{"task_id": t.ID.String(), "task_type": string(t.TaskType)})
		q.markFailed(ctx, t)
		return
	}

	if err := handler(ctx, t); err != nil {
		q.log.Warn("task body failed", map[string]interface{}{"task_id": t.ID.String(), "error": err.Error()})
		q.markFailed(ctx, t)
		return
	}

	if err := q.store.MarkDone(ctx, t.ID.String()); err != nil {
		q.log.Error("failed to mark task done", map[string]interface{}{"task_id": t.ID.String(), "error": err.Error()})
		return
	}
	if q.metrics != nil {
		q.metrics.TasksCompletedTotal.Inc()
	}
}

func (q *WorkQueue) markFailed(ctx context.Context, t types.InFlight) {
	if err := q.store.MarkFailed(ctx, t.ID.String()); err != nil {
		q.log.Error("failed to mark task failed", map[string]interface{}{"task_id": t.ID.String(), "error": err.Error()})
		return
	}
	if q.metrics != nil {
		q.metrics.TasksFailedTotal.Inc()
	}
}

// sleepUntilDue blocks until t is due. Negative durations (already past
// due) are treated as zero, never an error (§4.5 step 2).
func (q *WorkQueue) sleepUntilDue(ctx context.Context, executionTime time.Time) error {
	d := time.Until(executionTime)
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
