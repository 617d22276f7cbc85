// Package notify implements the wire codec for pub/sub announcements:
// text payloads of the form "<type> [SPACE <json-body>]". This is the
// contract between any producer (the HTTP submitter, the Sweeper) and
// any subscriber (the Listener).
package notify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/distask/scheduler/pkg/scheduler/types"
)

// Kind distinguishes the two announcement variants.
type Kind int

const (
	KindNewTask Kind = iota
	KindStop
)

// Announcement is the decoded form of a wire payload.
type Announcement struct {
	Kind Kind
	Task types.InFlight // only set when Kind == KindNewTask
}

const (
	newTaskKind = "new_task"
	stopKind    = "stop"
)

// EncodeNewTask serializes a NewTask announcement.
func EncodeNewTask(t types.InFlight) (string, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("notify: marshal task body: %w", err)
	}
	return newTaskKind + " " + string(body), nil
}

// EncodeStop serializes the Stop announcement. It has no body.
func EncodeStop() string {
	return stopKind
}

// Decode parses a raw announcement payload. Unknown kinds and malformed
// bodies are reported as an error — callers must log and drop, never
// propagate (§4.2); this function itself only classifies, it does not log.
func Decode(raw string) (Announcement, error) {
	kind, rest, _ := strings.Cut(raw, " ")

	switch kind {
	case stopKind:
		return Announcement{Kind: KindStop}, nil
	case newTaskKind:
		if rest == "" {
			return Announcement{}, fmt.Errorf("notify: %s announcement missing body", newTaskKind)
		}
		var t types.InFlight
		if err := json.Unmarshal([]byte(rest), &t); err != nil {
			return Announcement{}, fmt.Errorf("notify: decode %s body: %w", newTaskKind, err)
		}
		return Announcement{Kind: KindNewTask, Task: t}, nil
	default:
		return Announcement{}, fmt.Errorf("notify: unknown announcement kind %q", kind)
	}
}
