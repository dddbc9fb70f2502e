// Command corehttpd is the request-serving daemon: a prefork supervisor
// over either an HTTP/1.1 socket worker or a message-queue adapter worker,
// dispatching through a middleware pipeline.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"

	"corehttpd/internal/demoapp"
	"corehttpd/pkg/adminsrv"
	"corehttpd/pkg/banner"
	"corehttpd/pkg/config"
	"corehttpd/pkg/logger"
	"corehttpd/pkg/middleware"
	"corehttpd/pkg/pipeline"
	"corehttpd/pkg/supervisor"
	"corehttpd/pkg/worker"
)

// version is the daemon's build version; overridable via -ldflags.
var version = "dev"

func main() {
	if supervisor.IsWorkerProcess() {
		os.Exit(runWorker())
	}
	os.Exit(runSupervisor())
}

func buildPipeline(cfg config.Config) pipeline.Handler {
	b := pipeline.New().
		Append(middleware.Recover(logger.Log)).
		Append(middleware.AccessLog(logger.Log)).
		Append(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)).
		SetEndpoint(demoapp.Endpoint)
	return b.Handler()
}

func initSentry(dsn string) {
	if dsn == "" {
		return
	}
	if err := sentry.Init(sentry.ClientOptions{Dsn: dsn}); err != nil {
		logger.Warn("sentry init failed", "error", err)
	}
}

// runWorker is the entry point for a process re-exec'd by the supervisor
// (or run standalone) to serve requests. It never returns to main's normal
// control flow; the caller should os.Exit with its result.
func runWorker() int {
	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger.InitWithLevel(cfg.LogLevel)
	initSentry(cfg.SentryDSN)

	handler := buildPipeline(cfg)

	var hb worker.Heartbeat = worker.NoopHeartbeat
	if block, slot, ok, err := supervisor.InheritedHeartbeat(); err == nil && ok {
		hb = &supervisor.SlotHeartbeat{Block: block, Slot: slot}
	} else if err != nil {
		logger.Warn("worker: heartbeat unavailable", "error", err)
	}

	switch cfg.Transport {
	case "queue":
		return runQueueWorker(cfg, handler)
	default:
		return runHTTPWorker(cfg, handler, hb)
	}
}

func runHTTPWorker(cfg config.Config, handler pipeline.Handler, hb worker.Heartbeat) int {
	ln, inherited, err := supervisor.InheritedListener()
	if err != nil {
		logger.Error("worker: failed to use inherited listener", "error", err)
		return 1
	}

	httpCfg := worker.HTTPConfig{
		Addr:           cfg.Addr,
		ServerName:     cfg.ServerName,
		ServerPort:     cfg.ServerPort,
		AdapterVersion: version,
		Heartbeat:      hb,
		Logger:         logger.Log,
	}
	if inherited {
		httpCfg.Listener = ln
	}

	w := worker.NewHTTPWorker(httpCfg)
	if err := w.Run(handler); err != nil {
		logger.Error("worker: exited with error", "error", err)
		return 1
	}
	return 0
}

func runQueueWorker(cfg config.Config, handler pipeline.Handler) int {
	// The upstream queue proxy's address is out of this daemon's
	// configuration scope in this release; cfg.Addr doubles as the
	// upstream connection target for the queue transport.
	conn, err := net.Dial("tcp", cfg.Addr)
	if err != nil {
		logger.Error("queue worker: failed to connect to upstream", "error", err)
		return 1
	}
	transport := worker.NewStreamTransport(conn)

	w := worker.NewQueueWorker(worker.QueueConfig{
		Transport:      transport,
		ServerName:     cfg.ServerName,
		ServerPort:     cfg.ServerPort,
		AdapterVersion: version,
		Logger:         logger.Log,
	})
	if err := w.Run(context.Background(), handler); err != nil {
		logger.Error("queue worker: exited with error", "error", err)
		return 1
	}
	return 0
}

// runSupervisor is the entry point for the top-level process: it loads
// config, starts the admin surface, and runs the prefork supervisor loop
// until a graceful drain completes.
func runSupervisor() int {
	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger.InitWithLevel(cfg.LogLevel)
	initSentry(cfg.SentryDSN)
	banner.Print(os.Stdout, version, cfg)

	sup := supervisor.New(supervisor.Config{
		Workers:            cfg.Workers,
		Addr:               cfg.Addr,
		Mode:               supervisor.Mode(cfg.Transport),
		Interval:           time.Duration(cfg.SupervisorInterval),
		RollingRestartCron: cfg.RollingRestartCron,
		Logger:             logger.Log,
	})

	reg := prometheus.NewRegistry()
	metrics := adminsrv.NewMetrics(reg)
	admin := adminsrv.New(cfg.AdminAddr, reg)

	adminDone := make(chan struct{})
	go func() {
		defer close(adminDone)
		if err := admin.ListenAndServe(); err != nil {
			logger.Error("admin server: exited with error", "error", err)
		}
	}()

	stopMetrics := make(chan struct{})
	go refreshMetrics(sup, metrics, stopMetrics)

	err = sup.Run(context.Background())

	close(stopMetrics)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	admin.Shutdown(ctx)
	cancel()
	<-adminDone

	if err != nil {
		logger.Error("supervisor: exited with error", "error", err)
		return 1
	}
	return 0
}

// refreshMetrics polls the supervisor's accessor methods and updates the
// admin surface's Prometheus collectors until stop is closed.
func refreshMetrics(sup *supervisor.Supervisor, metrics *adminsrv.Metrics, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastRestarts uint64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			metrics.WorkersAlive.Set(float64(sup.OccupiedCount()))

			restarts := sup.Restarts()
			if restarts > lastRestarts {
				metrics.WorkerRestartsTotal.Add(float64(restarts - lastRestarts))
				lastRestarts = restarts
			}

			for slot := 0; slot < sup.Workers(); slot++ {
				if age, ok := sup.HeartbeatAge(slot); ok {
					metrics.WorkerHeartbeatAge.WithLabelValues(fmt.Sprintf("%d", slot)).Set(float64(age))
				}
			}
		}
	}
}
