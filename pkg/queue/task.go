// Package queue implements the in-memory scheduling core of the broker: task
// identity and lifecycle, the pending/active/locks queue, and the
// completion rendezvous submitters use to await a task's outcome.
package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the worker-reported outcome of a task. Only three values are
// ever produced by workers; the type stays a string so future statuses
// don't require a broker release.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
	StatusCancelled Status = "cancelled"
)

// CompletionPayload is what a submitter blocked on wait=true receives.
type CompletionPayload struct {
	Status Status          `json:"status"`
	Result json.RawMessage `json:"result"`
}

// Submission is the recognized shape of a POST /task body. Unknown fields
// are silently ignored by encoding/json's default decode behavior.
type Submission struct {
	ID     string                     `json:"id"`
	Name   string                     `json:"name"`
	Locks  []string                   `json:"locks"`
	Pool   string                     `json:"pool"`
	Args   []json.RawMessage          `json:"args"`
	Kwargs map[string]json.RawMessage `json:"kwargs"`
	Status string                     `json:"status"`
}

// Outcome is the recognized shape of a PATCH /task/{id} body.
type Outcome struct {
	Stdout    *string         `json:"stdout"`
	Stderr    *string         `json:"stderr"`
	Result    json.RawMessage `json:"result"`
	Status    string          `json:"status"`
	Traceback *string         `json:"traceback"`
}

// Task is identity plus mutable outcome fields. The identity fields
// (ID, Name, Pool, Locks, Args, Kwargs, Created) never change after
// construction; the remaining fields are guarded by mu: taken is set once
// at dispatch, and the outcome fields are written once, at completion.
type Task struct {
	ID     uuid.UUID
	Name   string
	Locks  map[string]struct{}
	Pool   string
	Args   []json.RawMessage
	Kwargs map[string]json.RawMessage

	Created time.Time

	mu        sync.Mutex
	status    Status
	taken     *time.Time
	finished  *time.Time
	stdout    *string
	stderr    *string
	result    json.RawMessage
	traceback *string

	once       sync.Once
	done       chan struct{}
	completion CompletionPayload
}

// NewTask builds a Task from a decoded submission, generating an ID when
// none was supplied and defaulting Args/Kwargs to empty collections.
func NewTask(s Submission) (*Task, error) {
	id := uuid.New()
	if s.ID != "" {
		parsed, err := uuid.Parse(s.ID)
		if err != nil {
			return nil, err
		}
		id = parsed
	}

	locks := make(map[string]struct{}, len(s.Locks))
	for _, l := range s.Locks {
		locks[l] = struct{}{}
	}

	args := s.Args
	if args == nil {
		args = []json.RawMessage{}
	}
	kwargs := s.Kwargs
	if kwargs == nil {
		kwargs = map[string]json.RawMessage{}
	}

	status := StatusPending
	if s.Status != "" {
		status = Status(s.Status)
	}

	return &Task{
		ID:      id,
		Name:    s.Name,
		Locks:   locks,
		Pool:    s.Pool,
		Args:    args,
		Kwargs:  kwargs,
		Created: time.Now().UTC(),
		status:  status,
		done:    make(chan struct{}),
	}, nil
}

// markTaken is called once by Queue.Get, under the queue's own lock. It
// also takes Task.mu, because ForJSON may read taken concurrently from a
// snapshot of the pending list taken before the dispatch.
func (t *Task) markTaken(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.taken = &at
}

// Complete applies a worker-reported outcome and fires the completion
// signal. A second call is a no-op: the protocol guarantees a task can
// only be completed once it has already left the active map, but the
// guard keeps this true even if that invariant is ever violated.
func (t *Task) Complete(data Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished != nil {
		return
	}

	if data.Stdout != nil {
		t.stdout = data.Stdout
	}
	if data.Stderr != nil {
		t.stderr = data.Stderr
	}
	if data.Result != nil {
		t.result = data.Result
	}
	if data.Status != "" {
		t.status = Status(data.Status)
	}
	if data.Traceback != nil {
		t.traceback = data.Traceback
	}

	now := time.Now().UTC()
	t.finished = &now

	t.signal(CompletionPayload{Status: t.status, Result: t.result})
}

// Cancel fires the completion signal with a cancelled status, without
// touching the outcome fields a worker would otherwise populate. Used by
// Queue.SafeRemove when the removed task was active, so a submitter
// blocked on Wait isn't left hanging forever.
func (t *Task) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished != nil {
		return
	}
	t.signal(CompletionPayload{Status: StatusCancelled})
}

// signal must be called with mu held.
func (t *Task) signal(payload CompletionPayload) {
	t.once.Do(func() {
		t.completion = payload
		close(t.done)
	})
}

// Wait blocks until the task completes or ctx is done, whichever comes
// first. The bool return is false when ctx ended the wait.
func (t *Task) Wait(ctx context.Context) (CompletionPayload, bool) {
	select {
	case <-t.done:
		t.mu.Lock()
		payload := t.completion
		t.mu.Unlock()
		return payload, true
	case <-ctx.Done():
		return CompletionPayload{}, false
	}
}

// ProcessingDuration is finished-created in whole seconds, or 0 if the
// task hasn't finished.
func (t *Task) ProcessingDuration() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished == nil {
		return 0
	}
	return int64(t.finished.Sub(t.Created).Seconds())
}

func (t *Task) lockSlice() []string {
	out := make([]string, 0, len(t.Locks))
	for l := range t.Locks {
		out = append(out, l)
	}
	return out
}

// WorkerInfo is the minimum a worker needs to execute the task.
func (t *Task) WorkerInfo() map[string]interface{} {
	return map[string]interface{}{
		"id":     t.ID.String(),
		"name":   t.Name,
		"args":   t.Args,
		"kwargs": t.Kwargs,
	}
}

// ForJSON is the full serializable view of a task including timing, used
// for the pending/active listing endpoints and the lock listing.
func (t *Task) ForJSON() map[string]interface{} {
	t.mu.Lock()
	taken := t.taken
	t.mu.Unlock()

	var takenStr interface{}
	if taken != nil {
		takenStr = taken.Format(time.RFC3339Nano)
	}

	return map[string]interface{}{
		"id":      t.ID.String(),
		"name":    t.Name,
		"locks":   t.lockSlice(),
		"pool":    t.Pool,
		"args":    t.Args,
		"kwargs":  t.Kwargs,
		"created": t.Created.Format(time.RFC3339Nano),
		"taken":   takenStr,
	}
}

// FullInfo is the full serializable view of a task, including outcome
// fields.
func (t *Task) FullInfo() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	return map[string]interface{}{
		"id":        t.ID.String(),
		"name":      t.Name,
		"args":      t.Args,
		"kwargs":    t.Kwargs,
		"locks":     t.lockSlice(),
		"pool":      t.Pool,
		"stdout":    t.stdout,
		"stderr":    t.stderr,
		"result":    t.result,
		"status":    t.status,
		"traceback": t.traceback,
	}
}
