package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raoulx24/dir-archiver/internal/config"
	"github.com/raoulx24/dir-archiver/internal/logging"
)

type reloads struct {
	mu   sync.Mutex
	cfgs []*config.Config
}

func (r *reloads) record(cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfgs = append(r.cfgs, cfg)
}

func (r *reloads) buckets() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.cfgs))
	for _, c := range r.cfgs {
		out = append(out, c.Destination.Bucket)
	}
	return out
}

func configYAML(bucket string) string {
	return "source:\n  dirs: [/srv/app]\ndestination:\n  bucket: " + bucket + "\nretention:\n  pattern: \"1,1,1,1,1\"\n"
}

func writeConfig(t *testing.T, path, bucket string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(configYAML(bucket)), 0o600))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func startWatcher(t *testing.T, method, path string, rec *reloads) context.CancelFunc {
	t.Helper()
	w := New(path, config.ReloadConfig{
		Enabled:        true,
		Method:         method,
		PollInterval:   20 * time.Millisecond,
		DebounceWindow: 20 * time.Millisecond,
	}, nil, rec.record, logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		close(started)
		_ = w.Start(ctx)
	}()
	<-started
	// Give the watcher time to prime and register.
	time.Sleep(100 * time.Millisecond)
	return cancel
}

func TestWatcher_PollReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	base := time.Now().Add(-time.Hour)
	writeConfig(t, path, "first", base)

	rec := &reloads{}
	cancel := startWatcher(t, "poll", path, rec)
	defer cancel()

	assert.Empty(t, rec.buckets(), "startup is not a change")

	writeConfig(t, path, "second", base.Add(time.Minute))
	require.Eventually(t, func() bool {
		b := rec.buckets()
		return len(b) == 1 && b[0] == "second"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcher_PollRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	base := time.Now().Add(-time.Hour)
	writeConfig(t, path, "first", base)

	rec := &reloads{}
	cancel := startWatcher(t, "poll", path, rec)
	defer cancel()

	require.NoError(t, os.WriteFile(path, []byte("retention:\n  pattern: nope\n"), 0o600))
	require.NoError(t, os.Chtimes(path, base.Add(time.Minute), base.Add(time.Minute)))
	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, rec.buckets())

	writeConfig(t, path, "fixed", base.Add(2*time.Minute))
	require.Eventually(t, func() bool { return len(rec.buckets()) == 1 }, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"fixed"}, rec.buckets())
}

func TestWatcher_FsnotifyReloadsOnRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	base := time.Now().Add(-time.Hour)
	writeConfig(t, path, "first", base)

	rec := &reloads{}
	cancel := startWatcher(t, "fsnotify", path, rec)
	defer cancel()

	tmp := filepath.Join(dir, "config.yaml.tmp")
	writeConfig(t, tmp, "renamed", base.Add(time.Minute))
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool {
		b := rec.buckets()
		return len(b) > 0 && b[len(b)-1] == "renamed"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcher_UnknownMode(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "c.yaml"), config.ReloadConfig{Method: "inotify"}, nil, func(*config.Config) {}, logging.Nop())
	assert.Error(t, w.Start(context.Background()))
}

func TestWatcher_UpdateConfig(t *testing.T) {
	w := New("c.yaml", config.ReloadConfig{Method: "poll", PollInterval: time.Second}, nil, func(*config.Config) {}, logging.Nop())
	w.UpdateConfig(config.ReloadConfig{Method: "fsnotify", PollInterval: time.Minute, DebounceWindow: time.Second})

	assert.Equal(t, "fsnotify", w.mode)
	assert.Equal(t, time.Minute, w.interval)
	assert.Equal(t, time.Second, w.debounce)
}
