// Package httpapi implements the HTTP submission surface (§6, an
// "external collaborator" left unimplemented by the core spec): simple
// CRUD over the tasks table, using gorilla/mux for routing.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/distask/scheduler/pkg/infrastructure/logging"
	"github.com/distask/scheduler/pkg/infrastructure/metrics"
	"github.com/distask/scheduler/pkg/scheduler/store"
)

// Server holds the dependencies the submission handlers need.
type Server struct {
	store             store.Store
	channelName       string
	maxSecondsToSleep time.Duration
	log               *logging.Logger
	metrics           *metrics.Metrics
}

// Config carries the subset of application config the submission API
// needs: the channel to publish on and the horizon to gate publishing.
type Config struct {
	ChannelName       string
	MaxSecondsToSleep int
}

// New builds the HTTP handler tree.
func New(cfg Config, st store.Store, log *logging.Logger) *Server {
	return &Server{
		store:             st,
		channelName:       cfg.ChannelName,
		maxSecondsToSleep: time.Duration(cfg.MaxSecondsToSleep) * time.Second,
		log:               log.WithComponent("httpapi"),
	}
}

// SetMetrics attaches a Prometheus metrics bundle and exposes it on
// /metrics; nil is a valid no-op state.
func (s *Server) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Router builds the four-route mux described in §6 and
// SPEC_FULL.md's supplemented feature 1, plus /metrics when wired.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/task", s.createTask).Methods(http.MethodPost)
	r.HandleFunc("/task", s.listTasks).Methods(http.MethodGet)
	r.HandleFunc("/task/{task_id}", s.getTask).Methods(http.MethodGet)
	r.HandleFunc("/task/{task_id}", s.deleteTask).Methods(http.MethodDelete)
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	return r
}
