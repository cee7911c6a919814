// Package watcher monitors the configuration file and hands every valid new
// version to the running daemon.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/raoulx24/dir-archiver/internal/config"
	"github.com/raoulx24/dir-archiver/internal/fsprobe"
	"github.com/raoulx24/dir-archiver/internal/logging"
)

// Loader reads and validates a configuration file.
type Loader func(path string) (*config.Config, error)

// ReloadFunc receives each successfully loaded configuration.
type ReloadFunc func(cfg *config.Config)

// Watcher observes the config file and reloads it when it changes.
type Watcher struct {
	mu sync.RWMutex

	path     string
	interval time.Duration
	mode     string
	debounce time.Duration

	load     Loader
	onReload ReloadFunc
	log      logging.Logger

	lastModTime time.Time
	lastSize    int64
}

// New creates a watcher for the config file at path. A nil load uses
// config.LoadValid.
func New(path string, cfg config.ReloadConfig, load Loader, onReload ReloadFunc, log logging.Logger) *Watcher {
	if load == nil {
		load = config.LoadValid
	}
	return &Watcher{
		path:     path,
		interval: cfg.PollInterval,
		mode:     cfg.Method,
		debounce: cfg.DebounceWindow,
		load:     load,
		onReload: onReload,
		log:      log,
	}
}

// Start chooses the watching strategy based on config and blocks until ctx
// ends.
func (w *Watcher) Start(ctx context.Context) error {
	w.prime()

	w.mu.RLock()
	mode := w.mode
	dir := filepath.Dir(w.path)
	w.mu.RUnlock()

	switch mode {
	case "fsnotify":
		return w.StartFsNotify(ctx)

	case "poll":
		w.StartPolling(ctx)
		return nil

	case "auto":
		res := fsprobe.Probe(dir)
		if res.FsnotifySupported {
			return w.StartFsNotify(ctx)
		}
		w.log.Warn("watcher: fsnotify disabled, polling", "reason", res.Reason)
		w.StartPolling(ctx)
		return nil

	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

// prime records the current file state so startup does not count as a change.
func (w *Watcher) prime() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if info, err := os.Stat(w.path); err == nil {
		w.lastModTime = info.ModTime()
		w.lastSize = info.Size()
	}
}
