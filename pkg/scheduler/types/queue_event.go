package types

// QueueEvent is the tagged variant {Task(t) | Stop} passed from the
// Listener and Sweeper into the WorkQueue channel.
type QueueEvent struct {
	task InFlight
	stop bool
}

// NewTaskEvent wraps an in-flight task as a queue event.
func NewTaskEvent(t InFlight) QueueEvent {
	return QueueEvent{task: t}
}

// StopEvent builds the sentinel event that ends the WorkQueue consumer.
func StopEvent() QueueEvent {
	return QueueEvent{stop: true}
}

// IsStop reports whether this event is the Stop variant.
func (e QueueEvent) IsStop() bool {
	return e.stop
}

// Task returns the carried in-flight task. Only meaningful when
// IsStop() is false.
func (e QueueEvent) Task() InFlight {
	return e.task
}
