// Package handlers implements the task body interface (§6): a
// function-valued map keyed by task_type, each a cooperative operation
// (Task) -> error. Registration is static (§9's registry extension note).
package handlers

import (
	"context"

	"github.com/distask/scheduler/pkg/scheduler/types"
)

// Handler executes one task's body. An error means the task failed; the
// core makes no distinction between transient and permanent failure.
type Handler func(ctx context.Context, t types.InFlight) error

// Registry is a static map[TaskType]Handler, built once at startup.
type Registry struct {
	handlers map[types.TaskType]Handler
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[types.TaskType]Handler)}
}

// Register adds or replaces the handler for taskType.
func (r *Registry) Register(taskType types.TaskType, h Handler) {
	r.handlers[taskType] = h
}

// Lookup returns the handler for taskType, if any.
func (r *Registry) Lookup(taskType types.TaskType) (Handler, bool) {
	h, ok := r.handlers[taskType]
	return h, ok
}

// DefaultRegistry returns the three reference task bodies (§9 "the
// reference enumerates three handlers in a closed variant") registered
// under their respective task types.
func DefaultRegistry(barURL string) *Registry {
	reg := NewRegistry()
	reg.Register(types.TaskFoo, Foo)
	reg.Register(types.TaskBar, Bar(barURL))
	reg.Register(types.TaskBaz, Baz)
	return reg
}
