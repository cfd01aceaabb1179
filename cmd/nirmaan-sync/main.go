package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"nirmaan/internal/amqp"
	"nirmaan/internal/backend"
	"nirmaan/internal/cli"
	"nirmaan/internal/config"
	"nirmaan/internal/connectivity"
	apphttp "nirmaan/internal/http"
	"nirmaan/internal/log"
	"nirmaan/internal/services"
	"nirmaan/internal/storage"
	"nirmaan/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg, logger := cli.LoadAndValidateConfig(log.ComponentApp)
	logger.Info("Starting nirmaan-sync", log.FieldOperation, log.OpStartup, log.FieldDevice, cfg.DeviceID)

	ctx := context.Background()
	kv, store := cli.OpenStore(ctx, logger, cfg.DBPath)
	endpoint, rc := cli.OpenEndpoint(ctx, logger, cfg, kv)
	logger.Info("Remote endpoint ready", log.FieldBackend, endpoint.Describe())

	policy, err := services.ParsePolicy(cfg.PullPolicy)
	if err != nil {
		logger.Error("Invalid pull policy", log.FieldError, err.Error())
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := services.NewSyncMetrics(reg)

	tracker := connectivity.NewTracker(true)
	cancelOnline := tracker.Subscribe(metrics.SetOnline)
	metrics.SetOnline(tracker.Online())

	probeAddr := cfg.ProbeAddr
	if probeAddr == "" {
		probeAddr = backend.ProbeAddress(rc)
	}
	var probe connectivity.ProbeFunc
	if probeAddr != "" {
		probe = connectivity.DialProbe(probeAddr, 5*time.Second)
	}
	prober := connectivity.NewProber(tracker, probe, cfg.ProbeInterval, logger)

	engineOpts := []services.EngineOption{
		services.WithPolicy(policy),
		services.WithMetrics(metrics),
		services.WithEngineLogger(logger),
	}

	var events *amqp.Client
	if cfg.AMQPURL != "" {
		events, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.DeviceID, logger)
		if err != nil {
			// Events are optional.
			logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
			events = nil
		} else {
			engineOpts = append(engineOpts, services.WithEvents(events))
		}
	}

	engine := services.NewSyncEngine(store, endpoint, tracker, engineOpts...)
	scheduler := worker.NewScheduler(engine, worker.SchedulerConfig{
		PushDelay:     cfg.PushDelay,
		PullInterval:  cfg.PullInterval,
		WatchInterval: cfg.WatchInterval,
	}, logger)
	detach := scheduler.AttachStore(store)

	srv := apphttp.NewServer(cfg.StatusAddr, engine, store, apphttp.Options{
		Gatherer: reg,
		Logger:   logger,
		Ready:    scheduler.IsRunning,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Status server shutdown failed", log.FieldError, err.Error())
		}
		detach()
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Error("Scheduler stop failed", log.FieldError, err.Error())
		}
		cancelOnline()
		if events != nil {
			events.Close()
		}
		if err := engine.Endpoint().Close(); err != nil {
			logger.Warn("Failed to close remote endpoint", log.FieldError, err.Error())
		}
		if err := kv.Close(); err != nil {
			logger.Warn("Failed to close local store", log.FieldError, err.Error())
		}
	})

	prober.Check(ctx)
	go prober.Run(ctx)

	// The scheduler gets its own context so Stop can flush a pending push
	// after the signal context is gone.
	if err := scheduler.Start(context.Background()); err != nil {
		logger.Error("Failed to start scheduler", log.FieldError, err.Error())
		os.Exit(1)
	}

	if events != nil {
		go func() {
			err := events.ConsumeSyncEvents(ctx, func(ev *amqp.SyncEvent) error {
				return scheduler.HandleSyncEvent(ctx, ev)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Sync event consumption stopped", log.FieldError, err.Error())
			}
		}()
	}

	go reloadOnHangup(ctx, logger, cfg, kv, engine)

	go func() {
		logger.Info("Status server listening", "addr", cfg.StatusAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server failed", log.FieldError, err.Error())
		}
	}()

	cli.WaitForShutdown(ctx, done)
}

// reloadOnHangup re-resolves the remote on SIGHUP, so settings saved with
// "nirmaan remote set" take effect without a restart.
func reloadOnHangup(ctx context.Context, logger *log.Logger, cfg *config.Config, kv storage.KV, engine *services.SyncEngine) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			ep, _ := cli.OpenEndpoint(ctx, logger, cfg, kv)
			old := engine.SetEndpoint(ep)
			logger.Info("Remote endpoint reloaded", log.FieldBackend, ep.Describe())
			if err := old.Close(); err != nil {
				logger.Warn("Failed to close previous remote endpoint", log.FieldError, err.Error())
			}
		}
	}
}
