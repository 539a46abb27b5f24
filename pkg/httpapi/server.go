// Package httpapi translates HTTP requests into pkg/queue operations.
// Routing uses github.com/gorilla/mux.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/taskbroker/broker/pkg/auth"
	"github.com/taskbroker/broker/pkg/queue"
	"github.com/taskbroker/broker/pkg/stats"
)

// Server owns every dependency a handler needs.
type Server struct {
	Queue    *queue.Queue
	Stats    *stats.Collector
	Auth     *auth.CredentialSet
	Logger   *logrus.Entry
	Registry *prometheus.Registry
}

// NewRouter builds the task/lock route table, plus the unauthenticated
// /metrics and /healthz endpoints.
func (s *Server) NewRouter() *mux.Router {
	r := mux.NewRouter()

	protect := func(h http.HandlerFunc) http.HandlerFunc {
		return s.Auth.Middleware(s.Logger, h)
	}

	r.HandleFunc("/task", protect(s.listTasks)).Methods(http.MethodGet)
	r.HandleFunc("/task", protect(s.addTask)).Methods(http.MethodPost)
	r.HandleFunc("/task/taken", protect(s.listTakenTasks)).Methods(http.MethodGet)
	r.HandleFunc("/task/pending", protect(s.getTask)).Methods(http.MethodPatch)
	r.HandleFunc("/task/{task_id}", protect(s.completeTask)).Methods(http.MethodPatch)
	r.HandleFunc("/task/{task_id}", protect(s.deleteTask)).Methods(http.MethodDelete)
	r.HandleFunc("/lock", protect(s.listLocks)).Methods(http.MethodGet)

	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	if s.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
