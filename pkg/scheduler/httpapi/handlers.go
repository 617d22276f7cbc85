package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/distask/scheduler/pkg/scheduler/notify"
	"github.com/distask/scheduler/pkg/scheduler/store"
	"github.com/distask/scheduler/pkg/scheduler/types"
)

type createTaskBody struct {
	TaskType      types.TaskType `json:"task_type"`
	ExecutionTime time.Time      `json:"execution_time"`
}

type createTaskResponse struct {
	TaskID string `json:"task_id"`
}

// createTask inserts the row then best-effort publishes a new_task
// announcement iff execution_time <= now + max_seconds_to_sleep (§6).
func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var body createTaskBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := types.InFlight{
		ID:            uuid.New(),
		TaskType:      body.TaskType,
		ExecutionTime: body.ExecutionTime,
	}

	task, err := s.store.Create(r.Context(), in)
	if err != nil {
		s.log.Error("create task failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	if !task.ExecutionTime.After(time.Now().Add(s.maxSecondsToSleep)) {
		payload, err := notify.EncodeNewTask(in)
		if err != nil {
			s.log.Warn("failed to encode new_task announcement", map[string]interface{}{"error": err.Error()})
		} else if err := s.store.Publish(r.Context(), s.channelName, payload); err != nil {
			// The transaction committing the task already succeeded; the
			// Sweeper will pick this up within its next pass regardless.
			s.log.Warn("publish failed, relying on sweeper", map[string]interface{}{"task_id": task.ID.String(), "error": err.Error()})
		}
	}

	if s.metrics != nil {
		s.metrics.TasksSubmittedTotal.Inc()
	}

	writeJSON(w, http.StatusOK, createTaskResponse{TaskID: task.ID.String()})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["task_id"]

	task, err := s.store.Get(r.Context(), taskID)
	if errors.Is(err, store.ErrTaskNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("get task failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to fetch task")
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// deleteTask is permitted only while status = submitted (invariant 2).
func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["task_id"]

	err := s.store.Delete(r.Context(), taskID)
	switch {
	case errors.Is(err, store.ErrTaskNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, store.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "task is not in a deletable state")
	case err != nil:
		s.log.Error("delete task failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to delete task")
	default:
		w.Write([]byte("OK"))
	}
}

type listTasksResponse struct {
	Count int          `json:"count"`
	Tasks []types.Task `json:"tasks"`
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	var statusFilter *types.Status
	if v := r.URL.Query().Get("status"); v != "" {
		st := types.Status(v)
		statusFilter = &st
	}

	var typeFilter *types.TaskType
	if v := r.URL.Query().Get("type"); v != "" {
		tt := types.TaskType(v)
		typeFilter = &tt
	}

	tasks, err := s.store.List(r.Context(), statusFilter, typeFilter)
	if err != nil {
		s.log.Error("list tasks failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	writeJSON(w, http.StatusOK, listTasksResponse{Count: len(tasks), Tasks: tasks})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
