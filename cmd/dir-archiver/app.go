package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/raoulx24/dir-archiver/internal/config"
	"github.com/raoulx24/dir-archiver/internal/hooks"
	"github.com/raoulx24/dir-archiver/internal/logging"
	"github.com/raoulx24/dir-archiver/internal/mailbox"
	"github.com/raoulx24/dir-archiver/internal/metrics"
	"github.com/raoulx24/dir-archiver/internal/objectstore"
	"github.com/raoulx24/dir-archiver/internal/objectstore/s3"
	"github.com/raoulx24/dir-archiver/internal/retention"
	"github.com/raoulx24/dir-archiver/internal/worker"
)

// storeFactory opens the destination store once the region is known.
type storeFactory func(ctx context.Context, d config.DestinationConfig, region string) (objectstore.MultipartStore, error)

func newS3Store(ctx context.Context, d config.DestinationConfig, region string) (objectstore.MultipartStore, error) {
	return s3.New(ctx, s3.Config{
		Bucket:          d.Bucket,
		Region:          region,
		Endpoint:        d.Endpoint,
		AccessKeyID:     d.AccessKeyID,
		SecretAccessKey: d.SecretAccessKey,
		UsePathStyle:    d.UsePathStyle,
	})
}

// app is the wired runtime shared by every subcommand.
type app struct {
	mu       sync.Mutex
	cfg      *config.Config
	log      logging.Logger
	registry *prometheus.Registry
	mailbox  *mailbox.Mailbox[worker.Job]
	engine   *retention.Engine
	worker   *worker.Worker

	store    io.Closer
	closeLog io.Closer
}

func (o *rootOptions) newApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()

	cfg, err := o.load(o.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, err
	}

	logger, logCloser := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	a := &app{cfg: cfg, log: logger, closeLog: logCloser}

	region, err := config.ResolveRegion(ctx, cfg.Destination, nil)
	if err != nil {
		a.Close()
		return nil, err
	}

	store, err := o.newStore(ctx, cfg.Destination, region)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening destination: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	instrumented := objectstore.NewInstrumentedStore(store, metrics.NewObjectStoreMetricsWithRegistry(a.registry))
	a.store = instrumented

	settings, err := worker.SettingsFromConfig(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.engine = retention.New(cfg.Policy(), logger)
	a.mailbox = mailbox.New[worker.Job]()
	a.worker = worker.New(settings, worker.Deps{
		Store:     instrumented,
		Retention: a.engine,
		Hooks:     hooks.NewRunner(hookScripts(cfg.Hooks), logger),
		Mailbox:   a.mailbox,
		Metrics:   metrics.NewRunMetricsWithRegistry(a.registry),
		Log:       logger,
	})

	logger.Debug("dir-archiver: initialised",
		"bucket", cfg.Destination.Bucket,
		"region", region,
		"prefix", cfg.Destination.Prefix,
		"policy", cfg.Policy().String())
	return a, nil
}

func hookScripts(h config.HooksConfig) map[hooks.Stage]string {
	return map[hooks.Stage]string{
		hooks.PreBackup:   h.PreBackup,
		hooks.PostBackup:  h.PostBackup,
		hooks.PreRestore:  h.PreRestore,
		hooks.PostRestore: h.PostRestore,
	}
}

// apply pushes a reloaded configuration into the running components.
// Destination, hook and logging changes need a restart.
func (a *app) apply(cfg *config.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	settings, err := worker.SettingsFromConfig(cfg)
	if err != nil {
		return err
	}

	if cfg.Destination.Bucket != a.cfg.Destination.Bucket ||
		cfg.Destination.Endpoint != a.cfg.Destination.Endpoint ||
		cfg.Destination.Region != a.cfg.Destination.Region {
		a.log.Warn("config: destination changes take effect after restart")
	}
	if cfg.Hooks != a.cfg.Hooks {
		a.log.Warn("config: hook changes take effect after restart")
	}

	a.worker.UpdateConfig(settings)
	a.engine.UpdateConfig(cfg.Policy())
	a.cfg = cfg
	return nil
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("dir-archiver: closing store", "error", err)
		}
	}
	_ = a.closeLog.Close()
}
