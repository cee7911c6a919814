package worker

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raoulx24/dir-archiver/internal/hooks"
	"github.com/raoulx24/dir-archiver/internal/logging"
	"github.com/raoulx24/dir-archiver/internal/mailbox"
	"github.com/raoulx24/dir-archiver/internal/metrics"
	"github.com/raoulx24/dir-archiver/internal/objectstore"
	"github.com/raoulx24/dir-archiver/internal/retention"
	"github.com/raoulx24/dir-archiver/internal/snapshot"
)

type fixture struct {
	w       *Worker
	store   *objectstore.MockStore
	src     string
	dump    string
	clock   time.Time
	metrics *metrics.RunMetrics
}

func newFixture(t *testing.T, policy retention.Policy, scripts map[hooks.Stage]string) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		store:   objectstore.NewMockStore(),
		src:     filepath.Join(root, "app"),
		dump:    filepath.Join(root, "dump"),
		clock:   time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		metrics: metrics.NewRunMetricsWithRegistry(prometheus.NewRegistry()),
	}
	writeFile(t, filepath.Join(f.src, "a.txt"), "v1")

	log := logging.Nop()
	f.w = New(Settings{
		Dirs:        []string{f.src},
		DumpDir:     f.dump,
		Parallelism: 2,
		Prefix:      "bk",
		PartSize:    5 << 20,
		Timeout:     time.Minute,
	}, Deps{
		Store:     f.store,
		Retention: retention.New(policy, log),
		Hooks:     hooks.NewRunner(scripts, log),
		Metrics:   f.metrics,
		Log:       log,
	})
	f.w.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) settings(mutate func(*Settings)) {
	s := f.w.current()
	mutate(&s)
	f.w.UpdateConfig(s)
}

func (f *fixture) key(stamp time.Time) string {
	return snapshot.NewArtifact(f.src, f.dump).Key(snapshot.NewID("bk", stamp))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func script(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	path := filepath.Join(t.TempDir(), "hook.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func put(t *testing.T, store *objectstore.MockStore, key string) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), key, bytes.NewReader(nil), 0, "", objectstore.PutOptions{}))
}

func TestBackup_UploadsAndRotates(t *testing.T) {
	f := newFixture(t, retention.Policy{1, 0, 0, 0, 0}, nil)
	put(t, f.store, "bk/2020-01-01-00-00-00/_old.tar.gz")
	f.settings(func(s *Settings) { s.ServerSideEncryption = "AES256" })

	res, err := f.w.Backup(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "bk/2024-06-01-10-00-00", res.Snapshot.ID)
	require.Len(t, res.Artifacts, 1)
	assert.Greater(t, res.Artifacts[0].Size, int64(0))
	assert.NoError(t, res.RotationErr)
	assert.Equal(t, []string{"bk/2020-01-01-00-00-00"}, snapshot.Catalog(res.Rotation.Deleted).IDs())

	assert.Equal(t, []string{f.key(f.clock)}, f.store.Keys())
	opts, ok := f.store.Options(f.key(f.clock))
	require.True(t, ok)
	assert.Equal(t, "AES256", opts.ServerSideEncryption)
	assert.Equal(t, f.src, opts.Metadata["source-dir"])

	assert.NoFileExists(t, res.Artifacts[0].Path, "staged archive is cleaned up")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RunsTotal.WithLabelValues(metrics.OpBackup, metrics.StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SnapshotsDeleted))
}

func TestBackup_InvalidDirectory(t *testing.T) {
	f := newFixture(t, retention.Policy{1, 1, 1, 1, 1}, nil)
	f.settings(func(s *Settings) { s.Dirs = append(s.Dirs, filepath.Join(f.src, "missing")) })

	_, err := f.w.Backup(context.Background())
	assert.ErrorIs(t, err, ErrInvalidDirectory)
	assert.Empty(t, f.store.Keys())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RunsTotal.WithLabelValues(metrics.OpBackup, metrics.StatusFailure)))
}

func TestBackup_FileIsNotADirectory(t *testing.T) {
	f := newFixture(t, retention.Policy{1, 1, 1, 1, 1}, nil)
	f.settings(func(s *Settings) { s.Dirs = []string{filepath.Join(f.src, "a.txt")} })

	_, err := f.w.Backup(context.Background())
	assert.ErrorIs(t, err, ErrInvalidDirectory)
}

func TestBackup_PreHookFailureAborts(t *testing.T) {
	f := newFixture(t, retention.Policy{1, 1, 1, 1, 1}, map[hooks.Stage]string{
		hooks.PreBackup: script(t, "exit 2"),
	})

	_, err := f.w.Backup(context.Background())
	assert.ErrorIs(t, err, ErrHookFailed)
	assert.Empty(t, f.store.Keys())
}

func TestBackup_PostHookFailureContinues(t *testing.T) {
	f := newFixture(t, retention.Policy{1, 1, 1, 1, 1}, map[hooks.Stage]string{
		hooks.PostBackup: script(t, "exit 1"),
	})

	res, err := f.w.Backup(context.Background())
	require.NoError(t, err)
	assert.False(t, res.PostHook.OK())
	assert.Len(t, f.store.Keys(), 1)
}

func TestBackup_MultipartUpload(t *testing.T) {
	f := newFixture(t, retention.Policy{1, 1, 1, 1, 1}, nil)
	noise := make([]byte, 64<<10)
	_, _ = rand.Read(noise)
	writeFile(t, filepath.Join(f.src, "noise.bin"), string(noise))
	f.settings(func(s *Settings) { s.PartSize = 8 << 10 })

	_, err := f.w.Backup(context.Background())
	require.NoError(t, err)
	assert.Zero(t, f.store.PendingUploads())

	// The reassembled object must be a valid archive.
	require.NoError(t, os.RemoveAll(f.src))
	res, err := f.w.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RestoreDone, res.State)
	assert.Equal(t, string(noise), readFile(t, filepath.Join(f.src, "noise.bin")))
}

func TestBackup_UploadFailureAbortsAndDiscards(t *testing.T) {
	f := newFixture(t, retention.Policy{1, 1, 1, 1, 1}, nil)
	noise := make([]byte, 32<<10)
	_, _ = rand.Read(noise)
	writeFile(t, filepath.Join(f.src, "noise.bin"), string(noise))
	other := filepath.Join(filepath.Dir(f.src), "other")
	writeFile(t, filepath.Join(other, "b.txt"), "b")
	f.settings(func(s *Settings) {
		s.PartSize = 8 << 10
		s.Dirs = append(s.Dirs, other)
	})
	f.store.FailOn("UploadPart", "", errors.New("connection reset"))

	_, err := f.w.Backup(context.Background())
	require.Error(t, err)
	assert.Zero(t, f.store.PendingUploads())
	assert.Empty(t, f.store.Keys(), "partial snapshot is removed")
}

func TestRotate_DeleteFailureIsSkipped(t *testing.T) {
	f := newFixture(t, retention.Policy{1, 0, 0, 0, 0}, nil)
	put(t, f.store, "bk/2024-01-01-00-00-00/_a.tar.gz")
	put(t, f.store, "bk/2024-01-02-00-00-00/_a.tar.gz")
	put(t, f.store, "bk/2024-01-03-00-00-00/_a.tar.gz")
	put(t, f.store, "bk/not-a-snapshot.txt")
	f.store.FailOn("Delete", "bk/2024-01-01-00-00-00/_a.tar.gz", objectstore.ErrAccessDenied)

	res, err := f.w.Rotate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"bk/2024-01-03-00-00-00"}, snapshot.Catalog(res.Plan.Keep).IDs())
	assert.Equal(t, []string{"bk/2024-01-02-00-00-00"}, snapshot.Catalog(res.Deleted).IDs())
	assert.Equal(t, []string{"bk/2024-01-01-00-00-00"}, snapshot.Catalog(res.Failed).IDs())
	assert.ElementsMatch(t, []string{
		"bk/2024-01-01-00-00-00/_a.tar.gz",
		"bk/2024-01-03-00-00-00/_a.tar.gz",
		"bk/not-a-snapshot.txt",
	}, f.store.Keys())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SnapshotDeleteFailures))
}

func TestRotate_ListFailure(t *testing.T) {
	f := newFixture(t, retention.Policy{1, 0, 0, 0, 0}, nil)
	f.store.FailOn("List", "", objectstore.ErrBucketNotFound)

	_, err := f.w.Rotate(context.Background())
	assert.ErrorIs(t, err, objectstore.ErrBucketNotFound)
}

func TestPlan_DoesNotDelete(t *testing.T) {
	f := newFixture(t, retention.Policy{1, 0, 0, 0, 0}, nil)
	put(t, f.store, "bk/2024-01-01-00-00-00/_a.tar.gz")
	put(t, f.store, "bk/2024-01-02-00-00-00/_a.tar.gz")

	plan, err := f.w.Plan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"bk/2024-01-02-00-00-00"}, snapshot.Catalog(plan.Keep).IDs())
	assert.Equal(t, []string{"bk/2024-01-01-00-00-00"}, snapshot.Catalog(plan.Delete).IDs())
	assert.Len(t, f.store.Keys(), 2)
}

func TestCatalog_EmptyPrefix(t *testing.T) {
	f := newFixture(t, retention.Policy{1, 0, 0, 0, 0}, nil)
	f.settings(func(s *Settings) { s.Prefix = "" })
	put(t, f.store, "2024-01-01-00-00-00/_a.tar.gz")

	cat, err := f.w.Catalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01-00-00-00"}, cat.IDs())
}

func TestRestore_RoundTrip(t *testing.T) {
	f := newFixture(t, retention.Policy{24, 7, 5, 12, 5}, nil)
	_, err := f.w.Backup(context.Background())
	require.NoError(t, err)

	writeFile(t, filepath.Join(f.src, "a.txt"), "clobbered")

	res, err := f.w.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RestoreDone, res.State)
	assert.Equal(t, []RestoreState{RestoreIdle, RestoreTargetResolved, RestoreDownloaded, RestoreExtracted, RestoreDone}, res.History)
	assert.Equal(t, "bk/2024-06-01-10-00-00", res.Snapshot.ID)
	assert.Equal(t, "v1", readFile(t, filepath.Join(f.src, "a.txt")))
	assert.NoFileExists(t, res.Restored[0].Path, "downloaded archive is cleaned up")
}

func TestRestore_ExplicitStamp(t *testing.T) {
	f := newFixture(t, retention.Policy{24, 7, 5, 12, 5}, nil)
	first := f.clock
	_, err := f.w.Backup(context.Background())
	require.NoError(t, err)

	writeFile(t, filepath.Join(f.src, "a.txt"), "v2")
	f.clock = f.clock.Add(time.Hour)
	_, err = f.w.Backup(context.Background())
	require.NoError(t, err)

	f.settings(func(s *Settings) { s.RestoreStamp = &first })
	res, err := f.w.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snapshot.NewID("bk", first), res.Snapshot.ID)
	assert.Equal(t, "v1", readFile(t, filepath.Join(f.src, "a.txt")))

	f.settings(func(s *Settings) { s.RestoreStamp = nil })
	res, err = f.w.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snapshot.NewID("bk", f.clock), res.Snapshot.ID)
	assert.Equal(t, "v2", readFile(t, filepath.Join(f.src, "a.txt")))
}

func TestBackup_SameHourKeepsNewest(t *testing.T) {
	f := newFixture(t, retention.Policy{24, 7, 5, 12, 5}, nil)
	first := f.clock
	_, err := f.w.Backup(context.Background())
	require.NoError(t, err)

	writeFile(t, filepath.Join(f.src, "a.txt"), "v2")
	f.clock = f.clock.Add(20 * time.Minute)
	res, err := f.w.Backup(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{snapshot.NewID("bk", f.clock)}, snapshot.Catalog(res.Rotation.Plan.Keep).IDs())
	assert.Equal(t, []string{snapshot.NewID("bk", first)}, snapshot.Catalog(res.Rotation.Deleted).IDs())
	assert.Equal(t, []string{f.key(f.clock)}, f.store.Keys())

	writeFile(t, filepath.Join(f.src, "a.txt"), "clobbered")
	restored, err := f.w.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snapshot.NewID("bk", f.clock), restored.Snapshot.ID)
	assert.Equal(t, "v2", readFile(t, filepath.Join(f.src, "a.txt")))
}

func TestRestore_NothingToRestore(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "post-ran")
	f := newFixture(t, retention.Policy{1, 1, 1, 1, 1}, map[hooks.Stage]string{
		hooks.PostRestore: script(t, "touch "+marker),
	})

	res, err := f.w.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RestoreFailed, res.State)
	assert.ErrorIs(t, res.Reason, ErrNoSnapshot)
	assert.Equal(t, []RestoreState{RestoreIdle, RestoreFailed}, res.History)
	assert.NoFileExists(t, marker)
	assert.Equal(t, "v1", readFile(t, filepath.Join(f.src, "a.txt")))
}

func TestRestore_DownloadFailure(t *testing.T) {
	f := newFixture(t, retention.Policy{1, 1, 1, 1, 1}, nil)
	_, err := f.w.Backup(context.Background())
	require.NoError(t, err)
	f.store.FailOn("Get", "", errors.New("timeout"))

	res, err := f.w.Restore(context.Background())
	require.Error(t, err)
	assert.Equal(t, RestoreFailed, res.State)
	assert.Equal(t, []RestoreState{RestoreIdle, RestoreTargetResolved, RestoreFailed}, res.History)
}

func TestRestore_CorruptArchive(t *testing.T) {
	f := newFixture(t, retention.Policy{1, 1, 1, 1, 1}, nil)
	key := f.key(f.clock)
	junk := []byte("definitely not gzip")
	require.NoError(t, f.store.Put(context.Background(), key, bytes.NewReader(junk), int64(len(junk)), "", objectstore.PutOptions{}))

	res, err := f.w.Restore(context.Background())
	require.Error(t, err)
	assert.Equal(t, RestoreFailed, res.State)
	assert.Contains(t, res.History, RestoreDownloaded)
	assert.NotContains(t, res.History, RestoreExtracted)
}

func TestRestore_PostHookFailure(t *testing.T) {
	f := newFixture(t, retention.Policy{1, 1, 1, 1, 1}, map[hooks.Stage]string{
		hooks.PostRestore: script(t, "exit 4"),
	})
	_, err := f.w.Backup(context.Background())
	require.NoError(t, err)

	res, err := f.w.Restore(context.Background())
	assert.ErrorIs(t, err, ErrHookFailed)
	assert.Equal(t, RestoreFailed, res.State)
	assert.Contains(t, res.History, RestoreExtracted)
}

func TestStart_RunsMailboxJobs(t *testing.T) {
	f := newFixture(t, retention.Policy{1, 1, 1, 1, 1}, nil)
	mb := mailbox.New[Job]()
	f.w.mb = mb

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.w.Start(ctx)
		close(done)
	}()

	mb.Put(Job{Kind: KindBackup, Reason: "test"})
	require.Eventually(t, func() bool { return len(f.store.Keys()) == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestHandle_UnknownKind(t *testing.T) {
	f := newFixture(t, retention.Policy{1, 1, 1, 1, 1}, nil)
	assert.Error(t, f.w.Handle(context.Background(), Job{Kind: Kind(42)}))
}

func TestRotator_DeleteMissingSnapshot(t *testing.T) {
	r := NewRotator(objectstore.NewMockStore(), logging.Nop())
	assert.NoError(t, r.DeleteSnapshot(context.Background(), snapshot.Snapshot{ID: "bk/2024-01-01-00-00-00"}))
}

func TestUpload_ReadsWholeFile(t *testing.T) {
	f := newFixture(t, retention.Policy{1, 1, 1, 1, 1}, nil)
	path := filepath.Join(t.TempDir(), "x.tar.gz")
	writeFile(t, path, "0123456789")

	a := snapshot.Artifact{Dir: f.src, Name: "x.tar.gz", Path: path}
	s := f.w.current()
	s.PartSize = 3
	require.NoError(t, f.w.upload(context.Background(), s, a, "k", logging.Nop()))

	body, err := f.store.Get(context.Background(), "k")
	require.NoError(t, err)
	defer body.Close()
	got, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(got))
}
