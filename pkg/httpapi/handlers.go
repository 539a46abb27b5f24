package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/google/uuid"

	"github.com/taskbroker/broker/pkg/queue"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// safeIntConversion parses raw as an int, falling back to fallback on a
// malformed or missing value, then clamps the result into [minVal, maxVal].
func safeIntConversion(raw string, fallback, minVal, maxVal int) int {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if v < minVal {
		v = minVal
	}
	if v > maxVal {
		v = maxVal
	}
	return v
}

func (s *Server) paging(r *http.Request, pendingCount int) (offset, limit int) {
	offset = safeIntConversion(r.URL.Query().Get("offset"), 0, 0, pendingCount)
	limit = safeIntConversion(r.URL.Query().Get("limit"), 50, 1, 50)
	return offset, limit
}

func sliceWindow(tasks []*queue.Task, offset, limit int) []*queue.Task {
	if offset >= len(tasks) {
		return []*queue.Task{}
	}
	end := offset + limit
	if end > len(tasks) {
		end = len(tasks)
	}
	return tasks[offset:end]
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks := s.Queue.Tasks()
	offset, limit := s.paging(r, len(tasks))
	window := sliceWindow(tasks, offset, limit)

	out := make([]map[string]interface{}, len(window))
	for i, t := range window {
		out[i] = t.ForJSON()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listTakenTasks(w http.ResponseWriter, r *http.Request) {
	tasks := s.Queue.TasksActive()
	offset, limit := s.paging(r, s.Queue.TaskCount())
	window := sliceWindow(tasks, offset, limit)

	out := make([]map[string]interface{}, len(window))
	for i, t := range window {
		out[i] = t.ForJSON()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) addTask(w http.ResponseWriter, r *http.Request) {
	var submission queue.Submission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed task body"})
		return
	}

	task, err := queue.NewTask(submission)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed task id"})
		return
	}

	query := r.URL.Query()
	unique := query.Get("unique") == "true"
	wait := query.Get("wait") == "true"

	ignoreKeys := make(map[string]struct{})
	for _, key := range query["unique_ignore_kwarg"] {
		ignoreKeys[key] = struct{}{}
	}

	added := s.Queue.Put(task, unique, ignoreKeys)
	s.Stats.PushTaskReceived(task.Pool)
	if !added {
		s.Stats.PushTaskDuplicate(task.Pool)
	}
	s.Stats.SetTasksQueued(s.Queue.TaskCount())

	if !wait {
		writeJSON(w, http.StatusOK, map[string]string{"result": "success"})
		return
	}

	payload, ok := task.Wait(r.Context())
	if !ok {
		return // client disconnected or server shutting down; no response to send
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	pool := r.URL.Query().Get("pool")
	if pool == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	task := s.Queue.Get(pool)
	if task == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, task.WorkerInfo())
}

func (s *Server) completeTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(mux.Vars(r)["task_id"])
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown task"})
		return
	}

	var outcome queue.Outcome
	if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed outcome body"})
		return
	}

	task, err := s.Queue.Complete(taskID, outcome)
	if errors.Is(err, queue.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown task"})
		return
	}

	s.Stats.PushTaskCompleted(task.Pool)
	s.Stats.PushTaskProcessing(task.Pool, task.ProcessingDuration())
	s.Stats.SetTasksQueued(s.Queue.TaskCount())

	writeJSON(w, http.StatusOK, map[string]string{"result": "Success"})
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(mux.Vars(r)["task_id"])
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown task"})
		return
	}

	if err := s.Queue.SafeRemove(taskID); errors.Is(err, queue.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown task"})
		return
	}

	s.Stats.SetTasksQueued(s.Queue.TaskCount())
	writeJSON(w, http.StatusOK, map[string]string{"result": "Success"})
}

func (s *Server) listLocks(w http.ResponseWriter, r *http.Request) {
	entries := s.Queue.IterLocks()
	out := make([]map[string]interface{}, len(entries))
	for i, e := range entries {
		out[i] = map[string]interface{}{
			"id":    e.Key,
			"task":  e.Task.ForJSON(),
			"taken": e.Acquired.Format("2006-01-02T15:04:05.000000"),
		}
	}
	writeJSON(w, http.StatusOK, out)
}
