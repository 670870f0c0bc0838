// Package app assembles the attendance components from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"qrattend/internal/attendance"
	"qrattend/internal/config"
	"qrattend/internal/crypto"
	"qrattend/internal/files"
	"qrattend/internal/ledger"
	"qrattend/internal/metrics"
	"qrattend/internal/parse"
	"qrattend/internal/registry"
	"qrattend/internal/scanner"
)

// App holds the wired components shared by the server and the CLI.
type App struct {
	Config      *config.Config
	Metrics     *metrics.Metrics
	Registry    *registry.Store
	Ledger      *ledger.Ledger
	Extractor   *scanner.Extractor
	Coordinator *attendance.Coordinator
	Batch       *attendance.BatchRegistrar

	logger *slog.Logger
	close  func() error
}

// New opens storage, loads both stores and wires the scan pipeline.
// Metrics are registered with reg; pass prometheus.NewRegistry() when the
// process does not serve /metrics.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*App, error) {
	kv, closeKV, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.New(reg)
	a := &App{Config: cfg, Metrics: m, logger: logger, close: closeKV}

	a.Registry = registry.New(kv,
		registry.WithLogger(logger.With("module", "registry")),
		registry.WithMetrics(m))
	a.Ledger = ledger.New(kv,
		ledger.WithLogger(logger.With("module", "ledger")),
		ledger.WithLocation(cfg.Location),
		ledger.WithMetrics(m))

	// A corrupt document is reported and the store starts empty.
	if err := a.Registry.Load(ctx); err != nil {
		logger.Error("registry not loaded", "error", err)
	}
	if err := a.Ledger.Load(ctx); err != nil {
		logger.Error("attendance not loaded", "error", err)
	}

	a.Extractor = scanner.NewExtractor(nil,
		scanner.WithMaxDimension(cfg.Image.MaxDimension),
		scanner.WithLogger(logger.With("module", "scanner")),
		scanner.WithMetrics(m))
	a.Coordinator = attendance.NewCoordinator(a.Registry, a.Ledger, cfg.Section.Default,
		attendance.WithParser(parse.New(parse.WithLogger(logger.With("module", "parse")))),
		attendance.WithLogger(logger.With("module", "attendance")),
		attendance.WithMetrics(m))
	a.Batch = attendance.NewBatchRegistrar(a.Extractor, a.Registry, a.Coordinator.ActiveSection,
		logger.With("module", "batch"))

	logger.Info("attendance core ready",
		"backend", cfg.Storage.Backend,
		"registered", a.Registry.Len(),
		"section", cfg.Section.Default)
	return a, nil
}

// Close releases the storage backend.
func (a *App) Close() error {
	if a.close == nil {
		return nil
	}
	return a.close()
}

// OpenStore returns the KV backend selected by cfg and a function that
// releases it.
func OpenStore(ctx context.Context, cfg *config.Config) (files.KV, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return files.NewMemoryKV(), noop, nil
	case config.BackendRedis:
		kv, err := files.DialRedis(ctx, cfg.Storage.RedisURL, cfg.Storage.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		return kv, kv.Close, nil
	case config.BackendFile:
		var opts []files.FileOption
		if cfg.Storage.Encrypt {
			key, err := crypto.ReadMasterKey(cfg.Storage.KeyFile)
			if err != nil {
				return nil, nil, fmt.Errorf("storage.encrypt is set: %w", err)
			}
			opts = append(opts, files.WithMasterKey(key))
		}
		kv, err := files.NewFileKV(cfg.DataDir, opts...)
		if err != nil {
			return nil, nil, err
		}
		return kv, noop, nil
	default:
		return nil, nil, errors.New("unknown storage backend " + cfg.Storage.Backend)
	}
}
