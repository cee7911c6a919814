package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raoulx24/dir-archiver/internal/config"
	"github.com/raoulx24/dir-archiver/internal/metrics"
	"github.com/raoulx24/dir-archiver/internal/scheduler"
	"github.com/raoulx24/dir-archiver/internal/watcher"
)

func newDaemonCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run scheduled backups until interrupted",
		Long: `daemon runs a backup on every tick of schedule.cron, serves Prometheus
metrics when enabled and reloads the config file on change or SIGHUP.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return opts.runDaemon(cmd.Context(), a)
		},
	}
}

func (o *rootOptions) runDaemon(ctx context.Context, a *app) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := a.log
	log.Info("daemon: starting", "version", version, "config", o.configPath)

	sched := scheduler.New(a.mailbox, log)
	if err := sched.UpdateSchedule(a.cfg.Schedule.Cron); err != nil {
		return err
	}

	if a.cfg.Metrics.Enabled {
		srv := metrics.NewServerWithRegistry(a.cfg.Metrics.Addr, a.registry)
		if err := srv.Start(); err != nil {
			return err
		}
		defer srv.Close()
		log.Info("daemon: serving metrics", "addr", srv.Addr())

		go func() {
			select {
			case err := <-srv.Errors():
				log.Error("daemon: metrics server failed", "error", err)
			case <-ctx.Done():
			}
		}()
	}

	var watch *watcher.Watcher
	reload := func(cfg *config.Config) {
		if err := a.apply(cfg); err != nil {
			log.Error("daemon: config reload failed", "error", err)
			return
		}
		if err := sched.UpdateSchedule(cfg.Schedule.Cron); err != nil {
			log.Error("daemon: schedule not updated", "error", err)
		}
		if watch != nil {
			watch.UpdateConfig(cfg.ConfigReload)
		}
		log.Info("daemon: config applied")
	}
	load := func(path string) (*config.Config, error) {
		return o.load(path, true)
	}

	var wg sync.WaitGroup
	start := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	// Start worker loop
	start(func() { a.worker.Start(ctx) })
	start(func() { sched.Start(ctx) })

	if a.cfg.ConfigReload.Enabled {
		watch = watcher.New(o.configPath, a.cfg.ConfigReload, load, reload, log)
		start(func() {
			if err := watch.Start(ctx); err != nil {
				log.Error("daemon: config watcher stopped", "error", err)
			}
		})
	}

	// Hot reload on SIGHUP
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	start(func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				cfg, err := load(o.configPath)
				if err != nil {
					log.Error("daemon: config reload failed", "error", err)
					continue
				}
				reload(cfg)
			}
		}
	})

	if a.cfg.Schedule.RunOnStart {
		sched.Trigger("startup")
	}

	<-ctx.Done()
	log.Info("daemon: shutting down")
	wg.Wait()
	log.Info("daemon: exit complete")
	return nil
}
