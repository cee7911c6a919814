// Package fsprobe checks whether fsnotify works reliably for a directory,
// such as the one holding the config file. Network and FUSE filesystems often
// accept a watch but never deliver events, so the probe performs a real
// create and rename and waits for the events to arrive.
package fsprobe

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultTimeout is how long Probe waits for the first event.
const DefaultTimeout = 200 * time.Millisecond

// Result reports whether fsnotify is usable and why.
type Result struct {
	FsnotifySupported bool
	// Reason explains an unsupported result.
	Reason string
}

func unsupported(format string, args ...any) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// Probe tests whether fsnotify reports file changes in dir within
// DefaultTimeout.
func Probe(dir string) Result {
	return ProbeTimeout(dir, DefaultTimeout)
}

// ProbeTimeout is Probe with an explicit wait.
func ProbeTimeout(dir string, timeout time.Duration) Result {
	st, err := os.Stat(dir)
	if err != nil {
		return unsupported("stat failed: %v", err)
	}
	if !st.IsDir() {
		return unsupported("not a directory")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return unsupported("fsnotify unavailable: %v", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return unsupported("cannot watch directory: %v", err)
	}

	// Unique names so concurrent probes of one directory do not interfere.
	tmp, err := os.CreateTemp(dir, ".fsprobe-*")
	if err != nil {
		return unsupported("cannot create temp file: %v", err)
	}
	tmpName := tmp.Name()
	_ = tmp.Close()

	final := tmpName + ".done"
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return unsupported("rename failed: %v", err)
	}
	defer os.Remove(final)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return unsupported("event channel closed")
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Write) {
				return Result{FsnotifySupported: true}
			}
		case err := <-w.Errors:
			return unsupported("watch error: %v", err)
		case <-deadline.C:
			return unsupported("no events received within %s", timeout)
		}
	}
}
