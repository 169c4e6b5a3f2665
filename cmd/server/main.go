package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	actorhandler "terraguard/internal/actor/handler"
	actorservice "terraguard/internal/actor/service"
	"terraguard/internal/platform/config"
	"terraguard/internal/platform/httpserver"
	"terraguard/internal/platform/logger"
	httpmetrics "terraguard/internal/platform/metrics"
	"terraguard/internal/tracking/dispatcher"
	trackinghandler "terraguard/internal/tracking/handler"
	trackingmetrics "terraguard/internal/tracking/metrics"
	"terraguard/internal/tracking/monitor"
	"terraguard/internal/tracking/session"
	httptransport "terraguard/internal/transport/http"
	violationhandler "terraguard/internal/violation/handler"
	violationmetrics "terraguard/internal/violation/metrics"
	violationservice "terraguard/internal/violation/service"
	"terraguard/internal/zone"
	zonehandler "terraguard/internal/zone/handler"
)

const shutdownTimeout = 15 * time.Second

// main wires configuration, storage, alerting and the tracking pipeline, then
// serves HTTP until SIGINT or SIGTERM. Business logic lives in internal
// service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("terraguard stopped with error", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	zones := zone.NewRegistry(zone.WithLogger(log))
	if err := zones.Seed(); err != nil {
		return err
	}
	if cfg.ZonesFile != "" {
		n, err := zones.LoadFile(cfg.ZonesFile)
		if err != nil {
			return err
		}
		log.Info("zones loaded", "file", cfg.ZonesFile, "count", n)
	}

	stores, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stores.close()

	sinks, err := openAlertSinks(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer sinks.close()

	actors := actorservice.New(stores.actors, actorservice.WithLogger(log))
	violations := violationservice.New(stores.violations, actors,
		violationservice.WithLogger(log),
		violationservice.WithMetrics(violationmetrics.New(reg)),
		violationservice.WithTx(stores.tx),
	)

	trackMetrics := trackingmetrics.New(reg)
	mon := monitor.New(zones,
		monitor.WithLogger(log),
		monitor.WithMetrics(trackMetrics),
	)
	disp := dispatcher.New(violations,
		dispatcher.WithLogger(log),
		dispatcher.WithMetrics(trackMetrics),
		dispatcher.WithSink(sinks.fanout),
		dispatcher.WithShards(cfg.Dispatch.Shards),
		dispatcher.WithQueueSize(cfg.Dispatch.QueueSize),
		dispatcher.WithMaxRetry(cfg.Dispatch.MaxRetry),
	)
	disp.Run(ctx)
	sessions := session.NewManager(actors, mon, disp,
		session.WithLogger(log),
		session.WithMetrics(trackMetrics),
		session.WithInterval(cfg.Tracking.SampleInterval),
		session.WithFreezeOnBreach(cfg.Tracking.FreezeOnBreach),
	)

	checks := map[string]httptransport.HealthCheck{}
	if stores.db != nil {
		checks["postgres"] = stores.db.PingContext
	}
	if sinks.redis != nil {
		checks["redis"] = sinks.redis.Health
	}
	if sinks.kafka != nil {
		checks["kafka"] = sinks.kafka.Health
	}

	router := httptransport.NewRouter(httptransport.Config{
		Logger:   log,
		Metrics:  httpmetrics.New(reg),
		Gatherer: reg,
		Checks:   checks,
		Handlers: []httptransport.RouteRegistrar{
			actorhandler.New(actors, log),
			violationhandler.New(violations, log),
			zonehandler.New(zones, log),
			trackinghandler.New(sessions, log),
		},
	})
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting terraguard", "addr", cfg.Addr, "storage", cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info("shutting down")
		// Stop intake first, then drain queued breaches into the store.
		return errors.Join(
			srv.Shutdown(shutdownCtx),
			sessions.Shutdown(shutdownCtx),
			disp.Close(shutdownCtx),
		)
	})
	return g.Wait()
}
