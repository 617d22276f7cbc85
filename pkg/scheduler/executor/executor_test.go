package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/distask/scheduler/pkg/infrastructure/config"
	"github.com/distask/scheduler/pkg/infrastructure/logging"
	"github.com/distask/scheduler/pkg/scheduler/handlers"
	"github.com/distask/scheduler/pkg/scheduler/store"
	"github.com/distask/scheduler/pkg/scheduler/types"
)

// noopStore satisfies store.Store with inert responses, enough to
// exercise the Supervisor's startup/shutdown wiring without a database.
type noopStore struct{}

func (noopStore) Create(ctx context.Context, in types.InFlight) (types.Task, error) {
	return types.Task{}, nil
}
func (noopStore) Get(ctx context.Context, id string) (types.Task, error) { return types.Task{}, nil }
func (noopStore) List(ctx context.Context, status *types.Status, taskType *types.TaskType) ([]types.Task, error) {
	return nil, nil
}
func (noopStore) Delete(ctx context.Context, id string) error { return nil }
func (noopStore) Claim(ctx context.Context, id string) (types.ClaimResult, error) {
	return types.AlreadyHandled, nil
}
func (noopStore) MarkDone(ctx context.Context, id string) error   { return nil }
func (noopStore) MarkFailed(ctx context.Context, id string) error { return nil }
func (noopStore) FetchDue(ctx context.Context, limit int, lookahead time.Duration) ([]types.Task, error) {
	return nil, nil
}
func (noopStore) Publish(ctx context.Context, channel, payload string) error { return nil }

type blockingSub struct{ done <-chan struct{} }

func (s blockingSub) Next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.done:
		return "", ctx.Err()
	}
}
func (blockingSub) Close() error { return nil }

func (noopStore) Subscribe(ctx context.Context, channel string) (store.Subscription, error) {
	return blockingSub{done: ctx.Done()}, nil
}
func (noopStore) Close() {}

func TestSupervisor_ShutsDownOnContextCancel(t *testing.T) {
	cfg := config.ServerConfig{
		MaxSecondsToSleep:           5,
		LookForNewTasksInterval:     60,
		MaxConcurrentTasksInMemory:  10,
		MaxConcurrentExecutingTasks: 10,
		TasksChannelName:            "new_tasks",
	}

	sv := New(cfg, noopStore{}, handlers.DefaultRegistry("http://example.invalid"), logging.NewLogger(logging.DefaultConfig()))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sv.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not shut down after context cancellation")
	}
}
