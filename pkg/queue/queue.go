package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Complete and SafeRemove when the referenced
// task id is neither pending nor active.
var ErrNotFound = errors.New("task not found")

// lockHolder is the (owner, acquired-at) pair recorded per held lock key.
type lockHolder struct {
	task     *Task
	acquired time.Time
}

// ResultHandler is invoked, in registration order, after every successful
// Complete. A panicking handler is recovered and reported through the
// function set with SetPanicHandler; it never prevents sibling handlers
// from running and never unwinds into queue-mutating code.
type ResultHandler func(*Task)

// Queue is the scheduling core: a FIFO pending list, an active-task map,
// and a lock table, all guarded by one mutex. Every exported method is a
// single atomic operation with respect to every other.
type Queue struct {
	mu      sync.Mutex
	pending []*Task
	active  map[uuid.UUID]*Task
	locks   map[string]lockHolder

	handlers []ResultHandler
	onPanic  func(interface{})
}

// NewQueue constructs an empty queue.
func NewQueue() *Queue {
	return &Queue{
		active: make(map[uuid.UUID]*Task),
		locks:  make(map[string]lockHolder),
	}
}

// OnComplete registers a callback invoked after every successful Complete.
// Registration is dynamic: handlers may be added any time after
// construction, including after the server has started serving requests.
func (q *Queue) OnComplete(h ResultHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, h)
}

// SetPanicHandler overrides how a result handler's panic is reported.
// Defaults to a no-op; callers typically wire this to their logger.
func (q *Queue) SetPanicHandler(f func(interface{})) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onPanic = f
}

// Put enqueues task at the tail of pending. When unique is true, it first
// scans pending for an equivalent task (per the ignoreKeys-parameterized
// equivalence relation) and, if found, suppresses the enqueue, returning
// false. Returns true if the task was enqueued.
func (q *Queue) Put(task *Task, unique bool, ignoreKeys map[string]struct{}) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if unique {
		for _, existing := range q.pending {
			if equivalent(existing, task, ignoreKeys) {
				return false
			}
		}
	}

	q.pending = append(q.pending, task)
	return true
}

// Get scans pending in FIFO order for the first task whose pool matches
// and whose lock set is disjoint from every currently held lock. On match
// it dispatches the task: removes it from pending, marks it taken, files
// it under active, and acquires every one of its locks. Returns nil if no
// task is eligible.
func (q *Queue) Get(pool string) *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, task := range q.pending {
		if task.Pool != pool {
			continue
		}
		if q.blocked(task) {
			continue
		}

		q.pending = append(q.pending[:i:i], q.pending[i+1:]...)

		now := time.Now().UTC()
		task.markTaken(now)
		q.active[task.ID] = task
		for lock := range task.Locks {
			q.locks[lock] = lockHolder{task: task, acquired: now}
		}
		return task
	}
	return nil
}

// blocked reports whether any of task's declared locks is currently held.
// Callers must hold q.mu.
func (q *Queue) blocked(task *Task) bool {
	for lock := range task.Locks {
		if _, held := q.locks[lock]; held {
			return true
		}
	}
	return false
}

// Complete removes taskID from active, applies data as its outcome,
// releases its locks, and runs the registered result handlers. Returns
// ErrNotFound if taskID is not active.
func (q *Queue) Complete(taskID uuid.UUID, data Outcome) (*Task, error) {
	q.mu.Lock()
	task, ok := q.active[taskID]
	if !ok {
		q.mu.Unlock()
		return nil, ErrNotFound
	}
	delete(q.active, taskID)
	for lock := range task.Locks {
		delete(q.locks, lock)
	}
	handlers := append([]ResultHandler(nil), q.handlers...)
	onPanic := q.onPanic
	q.mu.Unlock()

	task.Complete(data)

	q.runResultHandlers(handlers, task, onPanic)

	return task, nil
}

func (q *Queue) runResultHandlers(handlers []ResultHandler, task *Task, onPanic func(interface{})) {
	for _, h := range handlers {
		q.invokeHandler(h, task, onPanic)
	}
}

func (q *Queue) invokeHandler(h ResultHandler, task *Task, onPanic func(interface{})) {
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(r)
		}
	}()
	h(task)
}

// SafeRemove removes taskID from wherever it currently lives. If it is
// active, its locks are released and its completion signal fires with a
// cancelled status, so waiters aren't left blocked forever. If it is
// pending, it is simply dropped. Returns ErrNotFound otherwise.
func (q *Queue) SafeRemove(taskID uuid.UUID) error {
	q.mu.Lock()

	if task, ok := q.active[taskID]; ok {
		delete(q.active, taskID)
		for lock := range task.Locks {
			delete(q.locks, lock)
		}
		q.mu.Unlock()
		task.Cancel()
		return nil
	}

	for i, task := range q.pending {
		if task.ID == taskID {
			q.pending = append(q.pending[:i:i], q.pending[i+1:]...)
			q.mu.Unlock()
			return nil
		}
	}

	q.mu.Unlock()
	return ErrNotFound
}

// TaskCount is the current pending length.
func (q *Queue) TaskCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Tasks is an immutable snapshot of the pending list in FIFO order.
func (q *Queue) Tasks() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Task, len(q.pending))
	copy(out, q.pending)
	return out
}

// TasksPending is a snapshot of pending task ids, in FIFO order.
func (q *Queue) TasksPending() []uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]uuid.UUID, len(q.pending))
	for i, t := range q.pending {
		out[i] = t.ID
	}
	return out
}

// TasksActiveIDs is a snapshot of active task ids.
func (q *Queue) TasksActiveIDs() []uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]uuid.UUID, 0, len(q.active))
	for id := range q.active {
		out = append(out, id)
	}
	return out
}

// Locks is the set of currently held lock keys.
func (q *Queue) Locks() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.locks))
	for key := range q.locks {
		out = append(out, key)
	}
	return out
}

// TasksActive is a snapshot of active task views, in no particular order
// (Go maps don't preserve insertion order; the protocol never promised
// one for the active listing).
func (q *Queue) TasksActive() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Task, 0, len(q.active))
	for _, t := range q.active {
		out = append(out, t)
	}
	return out
}

// LockEntry is one row of the held-lock listing.
type LockEntry struct {
	Key      string
	Task     *Task
	Acquired time.Time
}

// IterLocks is a snapshot of every held lock.
func (q *Queue) IterLocks() []LockEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]LockEntry, 0, len(q.locks))
	for key, holder := range q.locks {
		out = append(out, LockEntry{Key: key, Task: holder.task, Acquired: holder.acquired})
	}
	return out
}
