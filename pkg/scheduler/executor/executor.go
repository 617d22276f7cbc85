// Package executor implements the supervisor (§4.6) that wires the Store,
// WorkQueue, Listener, and Sweeper together and runs them as one
// cooperating process.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/distask/scheduler/pkg/infrastructure/config"
	"github.com/distask/scheduler/pkg/infrastructure/logging"
	"github.com/distask/scheduler/pkg/infrastructure/metrics"
	"github.com/distask/scheduler/pkg/scheduler/handlers"
	"github.com/distask/scheduler/pkg/scheduler/listener"
	"github.com/distask/scheduler/pkg/scheduler/queue"
	"github.com/distask/scheduler/pkg/scheduler/store"
	"github.com/distask/scheduler/pkg/scheduler/sweeper"
)

// Supervisor spawns and awaits the three cooperating activities sharing
// one Store adapter, one WorkQueue, and one dedup set.
type Supervisor struct {
	store    store.Store
	queue    *queue.WorkQueue
	listener *listener.Listener
	sweeper  *sweeper.Sweeper
	log      *logging.Logger
}

// New wires a Supervisor from application config, a connected Store, and
// a task body registry.
func New(cfg config.ServerConfig, st store.Store, reg *handlers.Registry, log *logging.Logger) *Supervisor {
	ids := queue.NewIDSet()

	q := queue.New(queue.Config{
		MaxConcurrentTasksInMemory:  cfg.MaxConcurrentTasksInMemory,
		MaxConcurrentExecutingTasks: cfg.MaxConcurrentExecutingTasks,
	}, st, reg, ids, log)

	l := listener.New(listener.Config{
		ChannelName:       cfg.TasksChannelName,
		MaxSecondsToSleep: cfg.MaxSecondsToSleep,
	}, st, q, log)

	s := sweeper.New(sweeper.Config{
		LookForNewTasksInterval:    time.Duration(cfg.LookForNewTasksInterval) * time.Second,
		MaxConcurrentTasksInMemory: cfg.MaxConcurrentTasksInMemory,
		MaxSecondsToSleep:          time.Duration(cfg.MaxSecondsToSleep) * time.Second,
	}, st, q, log)

	return &Supervisor{store: st, queue: q, sweeper: s, listener: l, log: log.WithComponent("executor")}
}

// SetMetrics attaches a Prometheus metrics bundle to the queue and
// sweeper activities; nil is a valid no-op state.
func (sv *Supervisor) SetMetrics(m *metrics.Metrics) {
	sv.queue.SetMetrics(m)
	sv.sweeper.SetMetrics(m)
}

// Run starts all three activities and blocks until any one of them
// returns, then cancels the others and waits for them to unwind (§4.6:
// "any returning activity signals termination").
func (sv *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var listenerErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		listenerErr = sv.listener.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		sv.sweeper.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		sv.queue.Run(ctx)
	}()

	wg.Wait()
	sv.log.Info("executor supervisor shut down")
	return listenerErr
}
