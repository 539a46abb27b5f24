// Package metrics feeds pkg/stats.Collector's data to two independent
// consumers: a Graphite carbon-pickle receiver over TCP, which samples the
// collector on a fixed cadence, and a Prometheus exposition endpoint,
// which the collector updates on every event through its Sink.
package metrics

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/taskbroker/broker/pkg/stats"
)

const graphitePort = 2004

// Pusher runs a sample loop and a send loop: every Frequency, it
// snapshots the collector, frames the snapshot, and offers it to a
// bounded buffer; a second goroutine drains the buffer and delivers
// frames over TCP with bounded retries.
type Pusher struct {
	Collector *stats.Collector
	Host      string
	Port      int
	Prefix    string
	Frequency time.Duration

	logger *logrus.Entry
	queue  chan []byte

	now func() time.Time
}

// NewPusher builds a pusher with a 100-frame bounded buffer, matching the
// original asyncio.Queue(maxsize=100).
func NewPusher(collector *stats.Collector, host, prefix string, frequency time.Duration, logger *logrus.Entry) *Pusher {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pusher{
		Collector: collector,
		Host:      host,
		Port:      graphitePort,
		Prefix:    prefix,
		Frequency: frequency,
		logger:    logger.WithField("component", "graphite"),
		queue:     make(chan []byte, 100),
		now:       time.Now,
	}
}

// Start launches the sample and send loops; both run until ctx is
// cancelled.
func (p *Pusher) Start(ctx context.Context) {
	go p.sampleLoop(ctx)
	go p.sendLoop(ctx)
}

func (p *Pusher) sampleLoop(ctx context.Context) {
	ticker := time.NewTicker(p.Frequency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame := EncodeFrame(p.collectSamples())
			select {
			case p.queue <- frame:
			default:
				p.logger.Debug("dropping metrics frame, send buffer full")
			}
		}
	}
}

func (p *Pusher) collectSamples() []Sample {
	now := p.now().UTC().Unix()
	metrics := p.Collector.StatIter()
	samples := make([]Sample, len(metrics))
	for i, m := range metrics {
		samples[i] = Sample{Name: p.prefixKey(m.Name), Timestamp: now, Value: float64(m.Value)}
	}
	return samples
}

func (p *Pusher) prefixKey(key string) string {
	if p.Prefix == "" {
		return key
	}
	return p.Prefix + "." + key
}

func (p *Pusher) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-p.queue:
			p.send(ctx, frame)
		}
	}
}

// send attempts delivery up to three times. A connect timeout is
// retried; a refused connection gives up on this frame entirely; a
// successful dial writes the whole frame, flushes, and closes.
func (p *Pusher) send(ctx context.Context, frame []byte) {
	dialer := net.Dialer{Timeout: 5 * time.Second}
	addr := net.JoinHostPort(p.Host, strconv.Itoa(p.Port))

	for attempt := 0; attempt < 3; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			p.logger.WithError(err).Debug("graphite connection refused, dropping frame")
			return
		}

		_, writeErr := conn.Write(frame)
		conn.Close()
		if writeErr != nil {
			p.logger.WithError(writeErr).Warn("failed writing metrics frame")
		}
		return
	}
	p.logger.Warn("giving up on metrics frame after repeated connect timeouts")
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
