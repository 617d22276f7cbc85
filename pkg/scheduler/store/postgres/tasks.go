package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/distask/scheduler/pkg/scheduler/store"
	"github.com/distask/scheduler/pkg/scheduler/types"
)

// Create inserts a new submitted task.
func (s *Store) Create(ctx context.Context, in types.InFlight) (types.Task, error) {
	var createdAt time.Time

	err := s.pool.QueryRow(ctx, `
		insert into tasks (id, status, execution_time, task_type)
		values ($1, 'submitted', $2, $3)
		returning created_at`,
		in.ID, in.ExecutionTime, string(in.TaskType),
	).Scan(&createdAt)
	if err != nil {
		return types.Task{}, fmt.Errorf("postgres: create task: %w", err)
	}

	return types.Task{
		ID:            in.ID,
		TaskType:      in.TaskType,
		ExecutionTime: in.ExecutionTime,
		Status:        types.StatusSubmitted,
		CreatedAt:     createdAt,
	}, nil
}

const selectColumns = `
	id, created_at, status, execution_time, task_type,
	started_executing_at, completed_at, failed_at, deleted_at`

func scanTask(row pgx.Row) (types.Task, error) {
	var t types.Task
	var status string
	var taskType string

	err := row.Scan(
		&t.ID, &t.CreatedAt, &status, &t.ExecutionTime, &taskType,
		&t.StartedExecutingAt, &t.CompletedAt, &t.FailedAt, &t.DeletedAt,
	)
	if err != nil {
		return types.Task{}, err
	}

	t.Status = types.Status(status)
	t.TaskType = types.TaskType(taskType)
	return t, nil
}

// Get fetches a single task, excluding rows already deleted, matching the
// original's exclusion of status = 'deleted' from reads.
func (s *Store) Get(ctx context.Context, id string) (types.Task, error) {
	row := s.pool.QueryRow(ctx, `select `+selectColumns+`
		from tasks where id = $1 and status != 'deleted'`, id)

	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Task{}, store.ErrTaskNotFound
	}
	if err != nil {
		return types.Task{}, fmt.Errorf("postgres: get task: %w", err)
	}
	return t, nil
}

// List returns tasks, optionally filtered by status and/or task type;
// deleted tasks are always excluded.
func (s *Store) List(ctx context.Context, status *types.Status, taskType *types.TaskType) ([]types.Task, error) {
	var statusFilter, typeFilter *string
	if status != nil {
		v := string(*status)
		statusFilter = &v
	}
	if taskType != nil {
		v := string(*taskType)
		typeFilter = &v
	}

	rows, err := s.pool.Query(ctx, `select `+selectColumns+`
		from tasks
		where ($1::text is null or status::text = $1) and
		      ($2::text is null or task_type::text = $2) and
		      status != 'deleted'
		order by execution_time asc`,
		statusFilter, typeFilter,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Delete transitions a task from submitted to deleted (invariant 2: only
// permitted from submitted).
func (s *Store) Delete(ctx context.Context, id string) error {
	var currentStatus string
	err := s.pool.QueryRow(ctx, `select status from tasks where id = $1`, id).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres: lookup task status: %w", err)
	}

	if currentStatus != string(types.StatusSubmitted) {
		return store.ErrInvalidTransition
	}

	tag, err := s.pool.Exec(ctx, `
		update tasks set status = 'deleted', deleted_at = now()
		where id = $1 and status = 'submitted'`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrInvalidTransition
	}
	return nil
}

// Claim is the exactly-once pivot (§4.1, §5): a single conditional update
// serialized by PostgreSQL's row-level locking under read-committed
// isolation. At most one concurrent caller observes RowsAffected() == 1.
func (s *Store) Claim(ctx context.Context, id string) (types.ClaimResult, error) {
	tag, err := s.pool.Exec(ctx, `
		update tasks set
			status = 'started_executing',
			started_executing_at = now()
		where id = $1 and status = 'submitted'`, id)
	if err != nil {
		return types.AlreadyHandled, fmt.Errorf("postgres: claim task: %w", err)
	}

	switch tag.RowsAffected() {
	case 0:
		return types.AlreadyHandled, nil
	case 1:
		return types.Claimed, nil
	default:
		// Impossible row count from claim — an invariant violation (§7).
		return types.AlreadyHandled, fmt.Errorf("postgres: claim affected %d rows, expected 0 or 1", tag.RowsAffected())
	}
}

// MarkDone sets the terminal done status. No precondition check — only a
// worker already holding a successful Claim calls this.
func (s *Store) MarkDone(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		update tasks set status = 'done', completed_at = now() where id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark task done: %w", err)
	}
	return nil
}

// MarkFailed sets the terminal failed status.
func (s *Store) MarkFailed(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		update tasks set status = 'failed', failed_at = now() where id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark task failed: %w", err)
	}
	return nil
}

// FetchDue is the Sweeper's authoritative liveness query (§4.4).
func (s *Store) FetchDue(ctx context.Context, limit int, lookahead time.Duration) ([]types.Task, error) {
	// Passed as a "N seconds" literal rather than a time.Duration value:
	// pgx has no default codec from time.Duration to interval.
	lookaheadLiteral := fmt.Sprintf("%d seconds", int64(lookahead.Seconds()))

	rows, err := s.pool.Query(ctx, `
		select id, task_type, execution_time
		from tasks
		where status = 'submitted' and execution_time <= now() + $1::interval
		order by execution_time asc
		limit $2`,
		lookaheadLiteral, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch due tasks: %w", err)
	}
	defer rows.Close()

	var tasks []types.Task
	for rows.Next() {
		var t types.Task
		var taskType string
		if err := rows.Scan(&t.ID, &taskType, &t.ExecutionTime); err != nil {
			return nil, fmt.Errorf("postgres: scan due task row: %w", err)
		}
		t.TaskType = types.TaskType(taskType)
		t.Status = types.StatusSubmitted
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
