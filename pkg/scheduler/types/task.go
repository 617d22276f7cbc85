// Package types defines the data shared across every scheduler component:
// the persisted Task, its status state machine, the closed set of task
// types, and the in-flight projection passed between the Listener,
// Sweeper, and WorkQueue.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Status is a task's lifecycle state. The legal transitions are
// submitted -> started_executing -> {done, failed} and submitted -> deleted.
type Status string

const (
	StatusSubmitted        Status = "submitted"
	StatusStartedExecuting Status = "started_executing"
	StatusDone             Status = "done"
	StatusFailed           Status = "failed"
	StatusDeleted          Status = "deleted"
)

// Valid reports whether s is one of the five defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSubmitted, StatusStartedExecuting, StatusDone, StatusFailed, StatusDeleted:
		return true
	default:
		return false
	}
}

// TaskType is a tagged variant identifying which handler runs a task's
// body. The set is closed at {Foo, Bar, Baz} in the reference. The Go type
// is an open string (see pkg/scheduler/handlers.Registry), but the
// task_type column is a PostgreSQL enum, so a new type also needs a
// migration that adds it to that enum.
type TaskType string

const (
	TaskFoo TaskType = "foo"
	TaskBar TaskType = "bar"
	TaskBaz TaskType = "baz"
)

// Task is the persisted row: immutable identity plus a mutable lifecycle.
type Task struct {
	ID                 uuid.UUID
	TaskType           TaskType
	ExecutionTime      time.Time
	Status             Status
	CreatedAt          time.Time
	StartedExecutingAt *time.Time
	CompletedAt        *time.Time
	FailedAt           *time.Time
	DeletedAt          *time.Time
}

// InFlight is the slim projection sent between components: no status,
// because an in-flight task is, by construction, submitted.
type InFlight struct {
	ID            uuid.UUID `json:"id"`
	TaskType      TaskType  `json:"task_type"`
	ExecutionTime time.Time `json:"execution_time"`
}

// InFlight projects a persisted Task down to its in-flight shape.
func (t Task) InFlight() InFlight {
	return InFlight{ID: t.ID, TaskType: t.TaskType, ExecutionTime: t.ExecutionTime}
}

// ClaimResult is the outcome of a claim attempt (§4.1).
type ClaimResult int

const (
	Claimed ClaimResult = iota
	AlreadyHandled
)

func (r ClaimResult) String() string {
	if r == Claimed {
		return "claimed"
	}
	return "already_handled"
}
