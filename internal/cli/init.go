// Package cli provides common CLI initialization utilities shared by
// cmd/nirmaan and cmd/nirmaan-sync.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"nirmaan/internal/backend"
	"nirmaan/internal/config"
	"nirmaan/internal/ledger"
	"nirmaan/internal/log"
	"nirmaan/internal/remote"
	"nirmaan/internal/storage"
)

// SetupLogger builds the process logger from cfg and installs it as the
// default. A nil cfg uses the logging defaults.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	lc := log.DefaultConfig()
	if cfg != nil {
		lc = cfg.LoggerConfig(component)
	}
	lc.Component = component
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration, installs the logger it
// describes and validates it. Exits the process on validation failure.
func LoadAndValidateConfig(component string) (*config.Config, *log.Logger) {
	cfg := config.Load()
	logger := SetupLogger(cfg, component)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed",
			log.FieldError, err.Error(), log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}
	return cfg, logger
}

// OpenStore opens the SQLite key space at dbPath and loads the ledger
// from it. Exits the process on failure.
func OpenStore(ctx context.Context, logger *log.Logger, dbPath string) (storage.KV, *ledger.Store) {
	kv, err := storage.NewSQLiteKV(dbPath)
	if err != nil {
		logger.Error("Failed to open local store", log.FieldError, err.Error(), "path", dbPath)
		os.Exit(1)
	}
	return kv, ledger.Open(ctx, kv, ledger.WithLogger(logger))
}

// OpenEphemeralStore returns a ledger kept only in memory.
func OpenEphemeralStore(ctx context.Context, logger *log.Logger) (storage.KV, *ledger.Store) {
	kv := storage.NewMemoryKV()
	return kv, ledger.Open(ctx, kv, ledger.WithLogger(logger))
}

// OpenEndpoint resolves the remote settings (environment first, then the
// values saved on the device) and builds the endpoint. Any failure is
// logged and yields an unconfigured endpoint so the app keeps working
// offline.
func OpenEndpoint(ctx context.Context, logger *log.Logger, cfg *config.Config, kv storage.KV) (remote.Endpoint, backend.Config) {
	rc, err := cfg.ResolveRemote(ctx, kv)
	if err != nil {
		logger.Warn("Failed to resolve remote settings", log.FieldError, err.Error())
		return remote.Unconfigured(), rc
	}
	ep, err := backend.NewFactory(logger).CreateEndpoint(ctx, rc)
	if err != nil {
		logger.Error("Failed to create remote endpoint",
			log.FieldBackend, rc.Type.String(), log.FieldError, err.Error())
		return remote.Unconfigured(), rc
	}
	return ep, rc
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that is closed once cleanup has finished.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String(), log.FieldOperation, log.OpShutdown)

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
