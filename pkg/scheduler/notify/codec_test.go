package notify

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distask/scheduler/pkg/scheduler/types"
)

// S1 — parse a task notification.
func TestDecode_NewTask(t *testing.T) {
	raw := `new_task {"id":"7658bfd8-f571-4925-8316-4a8fc75d930e","task_type":"bar","execution_time":"2024-11-24T20:34:36.909592Z"}`

	ann, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, KindNewTask, ann.Kind)
	assert.Equal(t, uuid.MustParse("7658bfd8-f571-4925-8316-4a8fc75d930e"), ann.Task.ID)
	assert.Equal(t, types.TaskBar, ann.Task.TaskType)

	wantTime, err := time.Parse(time.RFC3339Nano, "2024-11-24T20:34:36.909592Z")
	require.NoError(t, err)
	assert.True(t, wantTime.Equal(ann.Task.ExecutionTime))
}

// S2 — parse stop, and reject an unknown kind.
func TestDecode_Stop(t *testing.T) {
	ann, err := Decode("stop")
	require.NoError(t, err)
	assert.Equal(t, KindStop, ann.Kind)
}

func TestDecode_UnknownKind(t *testing.T) {
	_, err := Decode("unknown_kind foo")
	assert.Error(t, err)
}

func TestDecode_NewTaskMissingBody(t *testing.T) {
	_, err := Decode("new_task")
	assert.Error(t, err)
}

func TestDecode_NewTaskMalformedBody(t *testing.T) {
	_, err := Decode("new_task {not json")
	assert.Error(t, err)
}

func TestEncodeDecodeRoundTrip_NewTask(t *testing.T) {
	want := types.InFlight{
		ID:            uuid.New(),
		TaskType:      types.TaskFoo,
		ExecutionTime: time.Now().UTC().Truncate(time.Microsecond),
	}

	raw, err := EncodeNewTask(want)
	require.NoError(t, err)

	ann, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, KindNewTask, ann.Kind)
	assert.Equal(t, want.ID, ann.Task.ID)
	assert.Equal(t, want.TaskType, ann.Task.TaskType)
	assert.True(t, want.ExecutionTime.Equal(ann.Task.ExecutionTime))
}

func TestEncodeDecodeRoundTrip_Stop(t *testing.T) {
	raw := EncodeStop()
	ann, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, KindStop, ann.Kind)
}
