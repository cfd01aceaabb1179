package backend

import (
	"context"
	"fmt"

	"nirmaan/internal/log"
	"nirmaan/internal/remote"
	"nirmaan/internal/remote/memory"
	"nirmaan/internal/remote/sheets"
	"nirmaan/internal/remote/sqlremote"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default(log.ComponentBackend)
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateEndpoint implements Factory.CreateEndpoint
func (f *DefaultFactory) CreateEndpoint(ctx context.Context, cfg Config) (remote.Endpoint, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Configured() {
		f.logger.Info("No remote configured, sync disabled")
		return remote.Unconfigured(), nil
	}

	switch cfg.Type {
	case SheetsBackend:
		return f.createSheetsEndpoint(ctx, cfg)
	case MySQLBackend:
		return f.createMySQLEndpoint(ctx, cfg)
	case MemoryBackend:
		return f.createMemoryEndpoint(cfg)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
}

func (f *DefaultFactory) createSheetsEndpoint(ctx context.Context, cfg Config) (remote.Endpoint, error) {
	cli, err := sheets.New(ctx, cfg.URL, cfg.Key, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend", "spreadsheet", sheets.SpreadsheetID(cfg.URL))
	return remote.Configured("sheets:"+sheets.SpreadsheetID(cfg.URL), cli, nil), nil
}

func (f *DefaultFactory) createMySQLEndpoint(ctx context.Context, cfg Config) (remote.Endpoint, error) {
	tables, err := sqlremote.Open(ctx, cfg.URL, cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MySQL backend: %w", err)
	}

	addr := ProbeAddress(cfg)
	f.logger.Info("Initialized MySQL backend", "addr", addr)
	return remote.Configured("mysql:"+addr, tables, tables.Close), nil
}

func (f *DefaultFactory) createMemoryEndpoint(cfg Config) (remote.Endpoint, error) {
	if cfg.URL == "" {
		f.logger.Info("Initialized in-process memory backend")
		return remote.Configured("memory", memory.New(), nil), nil
	}

	store, err := memory.NewFromFile(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory backend: %w", err)
	}
	f.logger.Info("Initialized memory backend", "file", cfg.URL)
	return remote.Configured("memory:"+cfg.URL, store, nil), nil
}
