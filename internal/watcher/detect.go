package watcher

import (
	"os"
	"time"
)

// detect reloads the config file if it changed since the last load.
func (w *Watcher) detect() {
	w.mu.RLock()
	path := w.path
	lastMod := w.lastModTime
	lastSize := w.lastSize
	w.mu.RUnlock()

	info, err := os.Stat(path)
	if err != nil {
		w.log.Warn("watcher: cannot stat config", "path", path, "error", err)
		return
	}

	if info.ModTime().Equal(lastMod) && info.Size() == lastSize {
		return
	}
	if !w.isStable(info) {
		w.log.Debug("watcher: config still being written", "path", path)
		return
	}

	w.mu.Lock()
	w.lastModTime = info.ModTime()
	w.lastSize = info.Size()
	w.mu.Unlock()

	cfg, err := w.load(path)
	if err != nil {
		w.log.Error("watcher: config reload rejected, keeping current", "path", path, "error", err)
		return
	}

	w.log.Info("watcher: config reloaded", "path", path)
	w.onReload(cfg)
}

// stabilityWindow is how long the file must stay unchanged before it is read.
const stabilityWindow = 50 * time.Millisecond

// isStable reports whether the file kept its size and mtime over stabilityWindow.
func (w *Watcher) isStable(before os.FileInfo) bool {
	time.Sleep(stabilityWindow)

	after, err := os.Stat(w.path)
	if err != nil {
		return false
	}
	return after.Size() == before.Size() && after.ModTime().Equal(before.ModTime())
}
