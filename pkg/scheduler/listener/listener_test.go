package listener

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distask/scheduler/pkg/infrastructure/logging"
	"github.com/distask/scheduler/pkg/scheduler/handlers"
	"github.com/distask/scheduler/pkg/scheduler/notify"
	"github.com/distask/scheduler/pkg/scheduler/queue"
	"github.com/distask/scheduler/pkg/scheduler/store"
	"github.com/distask/scheduler/pkg/scheduler/types"
)

type fakeSub struct {
	payloads chan string
}

func (s *fakeSub) Next(ctx context.Context) (string, error) {
	select {
	case p := <-s.payloads:
		return p, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
func (s *fakeSub) Close() error { return nil }

type fakeStore struct {
	sub       *fakeSub
	claimed   map[string]bool
	done      map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{sub: &fakeSub{payloads: make(chan string, 10)}, claimed: map[string]bool{}, done: map[string]bool{}}
}

func (f *fakeStore) Create(ctx context.Context, in types.InFlight) (types.Task, error) { return types.Task{}, nil }
func (f *fakeStore) Get(ctx context.Context, id string) (types.Task, error)            { return types.Task{}, nil }
func (f *fakeStore) List(ctx context.Context, status *types.Status, taskType *types.TaskType) ([]types.Task, error) {
	return nil, nil
}
func (f *fakeStore) Delete(ctx context.Context, id string) error { return nil }
func (f *fakeStore) Claim(ctx context.Context, id string) (types.ClaimResult, error) {
	if f.claimed[id] {
		return types.AlreadyHandled, nil
	}
	f.claimed[id] = true
	return types.Claimed, nil
}
func (f *fakeStore) MarkDone(ctx context.Context, id string) error {
	f.done[id] = true
	return nil
}
func (f *fakeStore) MarkFailed(ctx context.Context, id string) error { return nil }
func (f *fakeStore) FetchDue(ctx context.Context, limit int, lookahead time.Duration) ([]types.Task, error) {
	return nil, nil
}
func (f *fakeStore) Publish(ctx context.Context, channel, payload string) error { return nil }
func (f *fakeStore) Subscribe(ctx context.Context, channel string) (store.Subscription, error) {
	return f.sub, nil
}
func (f *fakeStore) Close() {}

func testLogger() *logging.Logger { return logging.NewLogger(logging.DefaultConfig()) }

func newTestListener(fs *fakeStore, maxSleepSeconds int) (*Listener, *queue.WorkQueue) {
	reg := handlers.NewRegistry()
	reg.Register(types.TaskFoo, func(ctx context.Context, t types.InFlight) error { return nil })
	ids := queue.NewIDSet()
	wq := queue.New(queue.Config{MaxConcurrentTasksInMemory: 20, MaxConcurrentExecutingTasks: 20}, fs, reg, ids, testLogger())
	l := New(Config{ChannelName: "new_tasks", MaxSecondsToSleep: maxSleepSeconds}, fs, wq, testLogger())
	return l, wq
}

func TestListener_RoutesNewTaskToQueue(t *testing.T) {
	fs := newFakeStore()
	l, wq := newTestListener(fs, 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go wq.Run(ctx)
	go l.Run(ctx)

	taskID := uuid.New()
	payload, err := notify.EncodeNewTask(types.InFlight{ID: taskID, TaskType: types.TaskFoo, ExecutionTime: time.Now()})
	require.NoError(t, err)
	fs.sub.payloads <- payload

	require.Eventually(t, func() bool { return fs.done[taskID.String()] }, 2*time.Second, 10*time.Millisecond)
}

func TestListener_DiscardsBeyondHorizon(t *testing.T) {
	fs := newFakeStore()
	l, wq := newTestListener(fs, 1) // 1 second horizon

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go wq.Run(ctx)
	go l.Run(ctx)

	taskID := uuid.New()
	payload, err := notify.EncodeNewTask(types.InFlight{
		ID: taskID, TaskType: types.TaskFoo, ExecutionTime: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	fs.sub.payloads <- payload

	time.Sleep(200 * time.Millisecond)
	assert.False(t, wq.IDs().Contains(taskID.String()))
	assert.False(t, fs.claimed[taskID.String()])
}

func TestListener_DiscardsAlreadyTracked(t *testing.T) {
	fs := newFakeStore()
	l, wq := newTestListener(fs, 100)

	taskID := uuid.New()
	wq.IDs().Add(taskID.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go wq.Run(ctx)
	go l.Run(ctx)

	payload, err := notify.EncodeNewTask(types.InFlight{ID: taskID, TaskType: types.TaskFoo, ExecutionTime: time.Now()})
	require.NoError(t, err)
	fs.sub.payloads <- payload

	time.Sleep(200 * time.Millisecond)
	assert.False(t, fs.claimed[taskID.String()])
}

func TestListener_StopsOnStopAnnouncement(t *testing.T) {
	fs := newFakeStore()
	l, wq := newTestListener(fs, 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go wq.Run(ctx)

	fs.sub.payloads <- notify.EncodeStop()

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not exit on stop announcement")
	}
}

func TestListener_DropsMalformedAnnouncement(t *testing.T) {
	fs := newFakeStore()
	l, wq := newTestListener(fs, 100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go wq.Run(ctx)

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	fs.sub.payloads <- "unknown_kind foo"
	time.Sleep(100 * time.Millisecond)
	// No panic, no crash: the process is still responsive to a
	// subsequent, valid announcement.
	fs.sub.payloads <- notify.EncodeStop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not handle a valid announcement after a malformed one")
	}
}
