// Package listener implements the pub/sub subscriber activity (§4.3):
// parses incoming task announcements and forwards eligible ones to the
// WorkQueue.
package listener

import (
	"context"
	"time"

	"github.com/distask/scheduler/pkg/infrastructure/logging"
	"github.com/distask/scheduler/pkg/scheduler/notify"
	"github.com/distask/scheduler/pkg/scheduler/queue"
	"github.com/distask/scheduler/pkg/scheduler/store"
	"github.com/distask/scheduler/pkg/scheduler/types"
)

// Listener is the single long-running subscriber activity per process.
type Listener struct {
	store       store.Store
	queue       *queue.WorkQueue
	channelName string
	maxSleep    time.Duration
	log         *logging.Logger
}

// Config bounds the Listener's horizon check (§4.3 step 5b).
type Config struct {
	ChannelName       string
	MaxSecondsToSleep int
}

// New builds a Listener sharing q's dedup set through q.IDs().
func New(cfg Config, st store.Store, q *queue.WorkQueue, log *logging.Logger) *Listener {
	return &Listener{
		store:       st,
		queue:       q,
		channelName: cfg.ChannelName,
		maxSleep:    time.Duration(cfg.MaxSecondsToSleep) * time.Second,
		log:         log.WithComponent("listener"),
	}
}

// Run subscribes to the tasks channel and processes announcements until
// ctx is cancelled or a Stop announcement arrives.
func (l *Listener) Run(ctx context.Context) error {
	sub, err := l.store.Subscribe(ctx, l.channelName)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		raw, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.log.Warn("subscription error, retrying", map[string]interface{}{"error": err.Error()})
			continue
		}

		if stop := l.handle(raw); stop {
			return nil
		}
	}
}

// handle decodes and routes a single raw announcement. It returns true
// when a Stop announcement was received.
func (l *Listener) handle(raw string) (stop bool) {
	ann, err := notify.Decode(raw)
	if err != nil {
		l.log.Warn("dropping malformed announcement", map[string]interface{}{"error": err.Error()})
		return false
	}

	switch ann.Kind {
	case notify.KindStop:
		l.log.Info("received stop announcement")
		return true
	case notify.KindNewTask:
		l.handleNewTask(ann.Task)
		return false
	default:
		return false
	}
}

func (l *Listener) handleNewTask(t types.InFlight) {
	id := t.ID.String()

	if l.queue.IDs().Contains(id) {
		l.log.Debug("task already tracked locally, discarding", map[string]interface{}{"task_id": id})
		return
	}

	if time.Until(t.ExecutionTime) > l.maxSleep {
		l.log.Debug("task beyond sleep horizon, discarding", map[string]interface{}{"task_id": id})
		return
	}

	l.queue.IDs().Add(id)
	if !l.queue.TryEnqueue(types.NewTaskEvent(t)) {
		l.queue.IDs().Remove(id)
		l.log.Warn("dropped notification-sourced task under back-pressure", map[string]interface{}{"task_id": id})
	}
}
