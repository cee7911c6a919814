package watcher

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StartFsNotify triggers detect() when fsnotify reports changes to the config
// file. The parent directory is watched so editors that replace the file by
// rename are seen too.
func (w *Watcher) StartFsNotify(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	w.mu.RLock()
	dir := filepath.Dir(w.path)
	name := filepath.Base(w.path)
	w.mu.RUnlock()

	if err := watcher.Add(dir); err != nil {
		return err
	}
	w.log.Info("watcher: watching config", "dir", dir, "file", name, "mode", "fsnotify")

	// Channel to request debounce resets
	resetCh := make(chan struct{}, 1)
	defer close(resetCh)

	// Debounce goroutine
	go func() {
		var t *time.Timer
		for range resetCh {
			if t != nil {
				t.Stop()
			}
			t = time.AfterFunc(w.debounceWindow(), func() {
				defer func() {
					if r := recover(); r != nil {
						w.log.Error("watcher: detect panic", "panic", r)
					}
				}()
				if ctx.Err() == nil {
					w.detect()
				}
			})
		}
		if t != nil {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				w.log.Error("watcher: events channel closed")
				return nil
			}

			w.log.Debug("watcher: event", "name", ev.Name, "op", ev.Op.String())

			if filepath.Base(ev.Name) != name {
				continue
			}

			// Non-blocking send to reset debounce
			select {
			case resetCh <- struct{}{}:
			default:
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watcher: fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) debounceWindow() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.debounce
}
