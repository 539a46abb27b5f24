// Command taskbroker runs the task dispatch broker HTTP server.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/taskbroker/broker/pkg/auth"
	"github.com/taskbroker/broker/pkg/config"
	"github.com/taskbroker/broker/pkg/httpapi"
	"github.com/taskbroker/broker/pkg/metrics"
	"github.com/taskbroker/broker/pkg/queue"
	"github.com/taskbroker/broker/pkg/stats"
)

func main() {
	cfg, err := config.ParseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	level, err := logrus.ParseLevel(normalizeLevel(cfg.LogLevel))
	if err != nil {
		log.Fatalf("invalid loglevel: %v", err)
	}
	logger := logrus.New()
	logger.SetLevel(level)
	root := logrus.NewEntry(logger)

	credentials := auth.NewCredentialSet()
	if err := credentials.AddBasic(cfg.AuthBasic); err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	credentials.AddBearer(cfg.AuthBearer)

	q := queue.NewQueue()
	q.SetPanicHandler(func(r interface{}) {
		root.WithField("component", "queue").Errorf("result handler panicked: %v", r)
	})

	collector := stats.NewCollector()
	promSink := metrics.NewPrometheusSink()
	collector.SetSink(promSink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Graphite != "" {
		pusher := metrics.NewPusher(collector, cfg.Graphite, cfg.GraphiteStatsRoot, cfg.GraphiteFreq, root)
		pusher.Start(ctx)
		root.WithField("component", "graphite").Infof("pushing metrics to %s every %s", cfg.Graphite, cfg.GraphiteFreq)
	}

	server := &httpapi.Server{
		Queue:    q,
		Stats:    collector,
		Auth:     credentials,
		Logger:   root.WithField("component", "http"),
		Registry: promSink.Registry(),
	}

	httpServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Host, cfg.Port),
		Handler: server.NewRouter(),
	}

	go func() {
		root.Infof("listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			root.WithError(err).Fatal("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	root.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		root.WithError(err).Warn("graceful shutdown failed")
	}
}

// normalizeLevel maps the broker's CLI log level names onto logrus's
// vocabulary.
func normalizeLevel(level string) string {
	switch level {
	case "CRITICAL":
		return "fatal"
	case "NOTSET":
		return "trace"
	default:
		return level
	}
}
