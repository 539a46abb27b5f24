// Package stats collects the broker's pool-keyed counters and gauges and
// exposes them as a stable, ordered stream for the metric pushers in
// pkg/metrics to sample.
package stats

import (
	"strings"
	"sync"
)

// Sink receives the same per-pool increments the Collector applies to its
// own counters. Wiring a Sink (e.g. a Prometheus registry, see
// pkg/metrics) lets a second consumer track the same events without the
// Collector knowing anything about Prometheus.
type Sink interface {
	TaskReceived(pool string)
	TaskCompleted(pool string)
	TaskDuplicate(pool string)
	TaskProcessing(pool string, seconds int64)
	TasksQueued(n int)
}

// Collector accumulates monotonic counters and the tasks_queued gauge,
// all keyed by pool with a running total. Pool names are tracked in
// insertion order so StatIter yields a stable, reproducible sequence.
type Collector struct {
	mu sync.Mutex

	receivedTotal int64
	received      map[string]int64

	completedTotal int64
	completed      map[string]int64

	duplicatesTotal int64
	duplicates      map[string]int64

	processingTotal int64
	processing      map[string]int64

	tasksQueued int64

	poolOrder []string
	seenPool  map[string]struct{}

	sink Sink
}

// NewCollector builds an empty collector.
func NewCollector() *Collector {
	return &Collector{
		received:   make(map[string]int64),
		completed:  make(map[string]int64),
		duplicates: make(map[string]int64),
		processing: make(map[string]int64),
		seenPool:   make(map[string]struct{}),
	}
}

// SetSink wires a secondary consumer of the same events.
func (c *Collector) SetSink(s Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = s
}

func normalizePool(pool string) string {
	return strings.ReplaceAll(pool, ".", "_")
}

// trackPool must be called with c.mu held.
func (c *Collector) trackPool(pool string) {
	if _, ok := c.seenPool[pool]; ok {
		return
	}
	c.seenPool[pool] = struct{}{}
	c.poolOrder = append(c.poolOrder, pool)
}

// PushTaskReceived records a submission for pool.
func (c *Collector) PushTaskReceived(pool string) {
	pool = normalizePool(pool)
	c.mu.Lock()
	c.receivedTotal++
	c.received[pool]++
	c.trackPool(pool)
	sink := c.sink
	c.mu.Unlock()

	if sink != nil {
		sink.TaskReceived(pool)
	}
}

// PushTaskCompleted records any worker-reported outcome for pool,
// regardless of its status value: success and failure both count as
// completed. A task removed with DELETE is not counted here.
func (c *Collector) PushTaskCompleted(pool string) {
	pool = normalizePool(pool)
	c.mu.Lock()
	c.completedTotal++
	c.completed[pool]++
	c.trackPool(pool)
	sink := c.sink
	c.mu.Unlock()

	if sink != nil {
		sink.TaskCompleted(pool)
	}
}

// PushTaskDuplicate records a Put that was suppressed as a duplicate.
func (c *Collector) PushTaskDuplicate(pool string) {
	pool = normalizePool(pool)
	c.mu.Lock()
	c.duplicatesTotal++
	c.duplicates[pool]++
	c.trackPool(pool)
	sink := c.sink
	c.mu.Unlock()

	if sink != nil {
		sink.TaskDuplicate(pool)
	}
}

// PushTaskProcessing adds a completed task's processing duration, in
// seconds, to pool's running total.
func (c *Collector) PushTaskProcessing(pool string, seconds int64) {
	pool = normalizePool(pool)
	c.mu.Lock()
	c.processingTotal += seconds
	c.processing[pool] += seconds
	c.trackPool(pool)
	sink := c.sink
	c.mu.Unlock()

	if sink != nil {
		sink.TaskProcessing(pool, seconds)
	}
}

// SetTasksQueued sets the tasks_queued gauge to n.
func (c *Collector) SetTasksQueued(n int) {
	c.mu.Lock()
	c.tasksQueued = int64(n)
	sink := c.sink
	c.mu.Unlock()

	if sink != nil {
		sink.TasksQueued(n)
	}
}

// Metric is one (name, value) pair yielded by StatIter.
type Metric struct {
	Name  string
	Value int64
}

// StatIter returns every metric, total first then per-pool entries in
// pool insertion order, for each of the five metric families.
func (c *Collector) StatIter() []Metric {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Metric, 0, 4+4*len(c.poolOrder))

	out = append(out, Metric{"tasks_received.total", c.receivedTotal})
	for _, pool := range c.poolOrder {
		out = append(out, Metric{"tasks_received.pool." + pool, c.received[pool]})
	}

	out = append(out, Metric{"tasks_completed.total", c.completedTotal})
	for _, pool := range c.poolOrder {
		out = append(out, Metric{"tasks_completed.pool." + pool, c.completed[pool]})
	}

	out = append(out, Metric{"tasks_duplicates.total", c.duplicatesTotal})
	for _, pool := range c.poolOrder {
		out = append(out, Metric{"tasks_duplicates.pool." + pool, c.duplicates[pool]})
	}

	out = append(out, Metric{"task_processing.total", c.processingTotal})
	for _, pool := range c.poolOrder {
		out = append(out, Metric{"task_processing.pool." + pool, c.processing[pool]})
	}

	out = append(out, Metric{"tasks_queued", c.tasksQueued})

	return out
}
