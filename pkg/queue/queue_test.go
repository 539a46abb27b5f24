package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTask(t *testing.T, pool string, locks []string, args ...int) *Task {
	t.Helper()
	raw := make([]json.RawMessage, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		require.NoError(t, err)
		raw[i] = b
	}
	task, err := NewTask(Submission{Name: "t", Pool: pool, Locks: locks, Args: raw})
	require.NoError(t, err)
	return task
}

func firstArg(t *testing.T, task *Task) int {
	t.Helper()
	var v int
	require.NoError(t, json.Unmarshal(task.Args[0], &v))
	return v
}

// a second task sharing any lock with an already-dispatched task is not
// eligible for dispatch until the first task completes.
func TestQueueLockExclusion(t *testing.T) {
	q := NewQueue()
	t1 := newTask(t, "p", []string{"1", "2", "3"}, 1)
	t2 := newTask(t, "p", []string{"1", "2", "3"}, 2)

	require.True(t, q.Put(t1, false, nil))
	require.True(t, q.Put(t2, false, nil))

	got := q.Get("p")
	require.NotNil(t, got)
	assert.Equal(t, 1, firstArg(t, got))

	assert.Nil(t, q.Get("p"))
}

// tasks with disjoint lock sets dispatch independently.
func TestQueueDisjointDispatch(t *testing.T) {
	q := NewQueue()
	t1 := newTask(t, "p", []string{"1", "2", "3"}, 1)
	t2 := newTask(t, "p", []string{"4", "5", "6"}, 2)

	q.Put(t1, false, nil)
	q.Put(t2, false, nil)

	got1 := q.Get("p")
	require.NotNil(t, got1)
	assert.Equal(t, 1, firstArg(t, got1))

	got2 := q.Get("p")
	require.NotNil(t, got2)
	assert.Equal(t, 2, firstArg(t, got2))

	assert.Len(t, q.Locks(), 6)
}

// Get only ever dispatches a task from the requested pool.
func TestQueuePoolIsolation(t *testing.T) {
	q := NewQueue()
	t1 := newTask(t, "p", nil, 1)
	t2 := newTask(t, "p2", nil, 2)

	q.Put(t1, false, nil)
	q.Put(t2, false, nil)

	assert.Nil(t, q.Get("p3"))

	got2 := q.Get("p2")
	require.NotNil(t, got2)
	assert.Equal(t, 2, firstArg(t, got2))

	got1 := q.Get("p")
	require.NotNil(t, got1)
	assert.Equal(t, 1, firstArg(t, got1))
}

// completing a task releases every lock it held.
func TestQueueCompleteReleasesLocks(t *testing.T) {
	q := NewQueue()
	task := newTask(t, "p", []string{"1", "2", "3"})
	q.Put(task, false, nil)

	got := q.Get("p")
	require.NotNil(t, got)
	require.Len(t, q.Locks(), 3)

	completed, err := q.Complete(task.ID, Outcome{Status: "success"})
	require.NoError(t, err)
	assert.Equal(t, task.ID, completed.ID)

	assert.Empty(t, q.Locks())
	assert.Zero(t, q.TaskCount())
	assert.Empty(t, q.TasksActiveIDs())
}

// a unique submission whose kwargs differ outside the ignored keys is not a
// duplicate and is enqueued.
func TestQueueUniqueWithIgnore(t *testing.T) {
	q := NewQueue()

	t1, err := NewTask(Submission{
		Name:   "t",
		Pool:   "p",
		Kwargs: map[string]json.RawMessage{"test": json.RawMessage("2"), "asd": json.RawMessage("1")},
	})
	require.NoError(t, err)

	t2, err := NewTask(Submission{
		Name:   "t",
		Pool:   "p",
		Kwargs: map[string]json.RawMessage{"test": json.RawMessage("1")},
	})
	require.NoError(t, err)

	require.True(t, q.Put(t1, false, nil))
	added := q.Put(t2, true, map[string]struct{}{"test": {}})
	assert.True(t, added)
	assert.Equal(t, 2, q.TaskCount())
}

func TestQueueUniqueDuplicateSuppressed(t *testing.T) {
	q := NewQueue()
	t1, err := NewTask(Submission{Name: "t", Pool: "p"})
	require.NoError(t, err)
	t2, err := NewTask(Submission{Name: "t", Pool: "p"})
	require.NoError(t, err)

	require.True(t, q.Put(t1, false, nil))
	added := q.Put(t2, true, nil)
	assert.False(t, added)
	assert.Equal(t, 1, q.TaskCount())
}

func TestQueueGetEmptyReturnsNil(t *testing.T) {
	q := NewQueue()
	assert.Nil(t, q.Get("p"))
}

func TestQueueCompleteMissingTask(t *testing.T) {
	q := NewQueue()
	_, err := q.Complete(uuid.New(), Outcome{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueueSafeRemoveActiveCancels(t *testing.T) {
	q := NewQueue()
	task := newTask(t, "p", []string{"1"})
	q.Put(task, false, nil)
	q.Get("p")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan CompletionPayload, 1)
	go func() {
		payload, ok := task.Wait(ctx)
		require.True(t, ok)
		done <- payload
	}()

	require.NoError(t, q.SafeRemove(task.ID))
	payload := <-done
	assert.EqualValues(t, StatusCancelled, payload.Status)
	assert.Empty(t, q.Locks())
}

func TestQueueSafeRemovePending(t *testing.T) {
	q := NewQueue()
	task := newTask(t, "p", []string{"1"})
	q.Put(task, false, nil)

	require.NoError(t, q.SafeRemove(task.ID))
	assert.Zero(t, q.TaskCount())
}

func TestQueueSafeRemoveNotFound(t *testing.T) {
	q := NewQueue()
	assert.ErrorIs(t, q.SafeRemove(uuid.New()), ErrNotFound)
}

func TestQueueResultHandlersRunAndSurvivePanic(t *testing.T) {
	q := NewQueue()
	var panicked interface{}
	q.SetPanicHandler(func(r interface{}) { panicked = r })

	var secondRan bool
	q.OnComplete(func(*Task) { panic("boom") })
	q.OnComplete(func(*Task) { secondRan = true })

	task := newTask(t, "p", nil)
	q.Put(task, false, nil)
	q.Get("p")

	_, err := q.Complete(task.ID, Outcome{Status: "success"})
	require.NoError(t, err)
	assert.True(t, secondRan)
	assert.Equal(t, "boom", panicked)
}

func TestQueueTasksPendingReturnsFIFOIDs(t *testing.T) {
	q := NewQueue()
	t1 := newTask(t, "p", nil, 1)
	t2 := newTask(t, "p", nil, 2)
	q.Put(t1, false, nil)
	q.Put(t2, false, nil)

	assert.Equal(t, []uuid.UUID{t1.ID, t2.ID}, q.TasksPending())
}

func TestQueueBlockedScanContinuesPastHeldLock(t *testing.T) {
	q := NewQueue()
	blocker := newTask(t, "p", []string{"x"}, 1)
	q.Put(blocker, false, nil)
	q.Get("p") // blocker now holds lock x

	stillBlocked := newTask(t, "p", []string{"x"}, 2)
	free := newTask(t, "p", []string{"y"}, 3)
	q.Put(stillBlocked, false, nil)
	q.Put(free, false, nil)

	got := q.Get("p")
	require.NotNil(t, got)
	assert.Equal(t, 3, firstArg(t, got))
	assert.Equal(t, 1, q.TaskCount())
}
