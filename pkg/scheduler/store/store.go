// Package store defines the thin contract over the relational backend
// that is the sole way the core touches persistence (§4.1). Concrete
// adapters live in subpackages, e.g. pkg/scheduler/store/postgres.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/distask/scheduler/pkg/scheduler/types"
)

// Sentinel errors surfaced by Store implementations.
var (
	ErrTaskNotFound      = errors.New("store: task not found")
	ErrInvalidTransition = errors.New("store: invalid status transition")
)

// Subscription is a long-lived pub/sub subscription yielding raw
// announcement payloads. It transparently reconnects on transport loss.
type Subscription interface {
	// Next blocks until the next raw payload arrives or ctx is done.
	Next(ctx context.Context) (string, error)
	// Close releases the underlying connection.
	Close() error
}

// Store is the persistence contract the executor core depends on.
type Store interface {
	// Create inserts a new submitted task and returns it with its
	// generated CreatedAt.
	Create(ctx context.Context, id types.InFlight) (types.Task, error)

	// Get fetches a single task by id. Returns ErrTaskNotFound if absent.
	Get(ctx context.Context, id string) (types.Task, error)

	// List returns tasks, optionally filtered by status and/or task type.
	List(ctx context.Context, status *types.Status, taskType *types.TaskType) ([]types.Task, error)

	// Delete transitions a task from submitted to deleted. Returns
	// ErrInvalidTransition if the task is not currently submitted, and
	// ErrTaskNotFound if it does not exist.
	Delete(ctx context.Context, id string) error

	// Claim atomically updates the row where id = :id AND status =
	// 'submitted' to started_executing. Returns Claimed iff exactly one
	// row was affected, else AlreadyHandled. This is the exactly-once
	// pivot (§5).
	Claim(ctx context.Context, id string) (types.ClaimResult, error)

	// MarkDone sets status = done and completed_at = now. Callers must
	// already hold a successful Claim.
	MarkDone(ctx context.Context, id string) error

	// MarkFailed sets status = failed and failed_at = now. Callers must
	// already hold a successful Claim.
	MarkFailed(ctx context.Context, id string) error

	// FetchDue returns at most limit rows where status = submitted and
	// execution_time <= now + lookahead, ordered by execution_time
	// ascending. Deleted rows are excluded.
	FetchDue(ctx context.Context, limit int, lookahead time.Duration) ([]types.Task, error)

	// Publish best-effort broadcasts a single serialized announcement on
	// the shared channel. Failure is non-fatal and is swallowed by
	// callers (§4.1).
	Publish(ctx context.Context, channel, payload string) error

	// Subscribe returns a long-lived subscription on channel.
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	// Close releases all held resources (connection pool, dedicated
	// listener connections).
	Close()
}
