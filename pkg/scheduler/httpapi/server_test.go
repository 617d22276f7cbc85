package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distask/scheduler/pkg/infrastructure/logging"
	"github.com/distask/scheduler/pkg/scheduler/store"
	"github.com/distask/scheduler/pkg/scheduler/types"
)

type fakeStore struct {
	tasks     map[string]types.Task
	published []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[string]types.Task)}
}

func (f *fakeStore) Create(ctx context.Context, in types.InFlight) (types.Task, error) {
	t := types.Task{ID: in.ID, TaskType: in.TaskType, ExecutionTime: in.ExecutionTime, Status: types.StatusSubmitted, CreatedAt: time.Now()}
	f.tasks[in.ID.String()] = t
	return t, nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (types.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return types.Task{}, store.ErrTaskNotFound
	}
	return t, nil
}

func (f *fakeStore) List(ctx context.Context, status *types.Status, taskType *types.TaskType) ([]types.Task, error) {
	var out []types.Task
	for _, t := range f.tasks {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	t, ok := f.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	if t.Status != types.StatusSubmitted {
		return store.ErrInvalidTransition
	}
	t.Status = types.StatusDeleted
	f.tasks[id] = t
	return nil
}

func (f *fakeStore) Claim(ctx context.Context, id string) (types.ClaimResult, error) {
	return types.AlreadyHandled, nil
}
func (f *fakeStore) MarkDone(ctx context.Context, id string) error   { return nil }
func (f *fakeStore) MarkFailed(ctx context.Context, id string) error { return nil }
func (f *fakeStore) FetchDue(ctx context.Context, limit int, lookahead time.Duration) ([]types.Task, error) {
	return nil, nil
}
func (f *fakeStore) Publish(ctx context.Context, channel, payload string) error {
	f.published = append(f.published, payload)
	return nil
}
func (f *fakeStore) Subscribe(ctx context.Context, channel string) (store.Subscription, error) {
	return nil, nil
}
func (f *fakeStore) Close() {}

func testServer(fs *fakeStore) *Server {
	return New(Config{ChannelName: "new_tasks", MaxSecondsToSleep: 100}, fs, logging.NewLogger(logging.DefaultConfig()))
}

func TestCreateTask_PublishesWhenWithinHorizon(t *testing.T) {
	fs := newFakeStore()
	s := testServer(fs)

	body, _ := json.Marshal(map[string]interface{}{
		"task_type":      "foo",
		"execution_time": time.Now().Add(5 * time.Second).Format(time.RFC3339),
	})

	req := httptest.NewRequest(http.MethodPost, "/task", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, fs.published, 1)

	var resp createTaskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.TaskID)
}

func TestCreateTask_SkipsPublishBeyondHorizon(t *testing.T) {
	fs := newFakeStore()
	s := testServer(fs)

	body, _ := json.Marshal(map[string]interface{}{
		"task_type":      "foo",
		"execution_time": time.Now().Add(time.Hour).Format(time.RFC3339),
	})

	req := httptest.NewRequest(http.MethodPost, "/task", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, fs.published)
}

func TestGetTask_NotFound(t *testing.T) {
	fs := newFakeStore()
	s := testServer(fs)

	req := httptest.NewRequest(http.MethodGet, "/task/"+uuid.New().String(), nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteTask_SucceedsFromSubmitted(t *testing.T) {
	fs := newFakeStore()
	s := testServer(fs)

	created, err := fs.Create(context.Background(), types.InFlight{ID: uuid.New(), TaskType: types.TaskFoo, ExecutionTime: time.Now()})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/task/"+created.ID.String(), nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeleteTask_FailsFromNonSubmitted(t *testing.T) {
	fs := newFakeStore()
	s := testServer(fs)

	id := uuid.New()
	fs.tasks[id.String()] = types.Task{ID: id, Status: types.StatusDone}

	req := httptest.NewRequest(http.MethodDelete, "/task/"+id.String(), nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListTasks(t *testing.T) {
	fs := newFakeStore()
	s := testServer(fs)
	_, err := fs.Create(context.Background(), types.InFlight{ID: uuid.New(), TaskType: types.TaskBar, ExecutionTime: time.Now()})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/task", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp listTasksResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
}
