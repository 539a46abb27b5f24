package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectorDotReplacement(t *testing.T) {
	c := NewCollector()
	c.PushTaskReceived("a.b")

	found := false
	for _, m := range c.StatIter() {
		if m.Name == "tasks_received.pool.a_b" {
			found = true
			assert.Equal(t, int64(1), m.Value)
		}
	}
	assert.True(t, found)
}

func TestCollectorTotalsAndOrder(t *testing.T) {
	c := NewCollector()
	c.PushTaskReceived("b")
	c.PushTaskReceived("a")
	c.PushTaskReceived("b")

	metrics := c.StatIter()
	require := assert.New(t)
	require.Equal("tasks_received.total", metrics[0].Name)
	require.Equal(int64(3), metrics[0].Value)
	require.Equal("tasks_received.pool.b", metrics[1].Name)
	require.Equal("tasks_received.pool.a", metrics[2].Name)
}

func TestCollectorTasksQueuedGauge(t *testing.T) {
	c := NewCollector()
	c.SetTasksQueued(5)

	for _, m := range c.StatIter() {
		if m.Name == "tasks_queued" {
			assert.Equal(t, int64(5), m.Value)
			return
		}
	}
	t.Fatal("tasks_queued metric not found")
}

type fakeSink struct {
	received int
}

func (f *fakeSink) TaskReceived(pool string)             { f.received++ }
func (f *fakeSink) TaskCompleted(pool string)            {}
func (f *fakeSink) TaskDuplicate(pool string)            {}
func (f *fakeSink) TaskProcessing(pool string, s int64)  {}
func (f *fakeSink) TasksQueued(n int)                    {}

func TestCollectorForwardsToSink(t *testing.T) {
	c := NewCollector()
	sink := &fakeSink{}
	c.SetSink(sink)

	c.PushTaskReceived("p")
	c.PushTaskReceived("p")

	assert.Equal(t, 2, sink.received)
}
