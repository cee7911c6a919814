package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raoulx24/dir-archiver/internal/config"
	"github.com/raoulx24/dir-archiver/internal/objectstore"
	"github.com/raoulx24/dir-archiver/internal/retention"
)

// keepOpen lets one MockStore outlive several command runs.
type keepOpen struct {
	*objectstore.MockStore
}

func (keepOpen) Close() error { return nil }

type env struct {
	store  *objectstore.MockStore
	config string
	src    string
	opened int
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	e := &env{
		store:  objectstore.NewMockStore(),
		config: filepath.Join(root, "config.yaml"),
		src:    filepath.Join(root, "app"),
	}
	require.NoError(t, os.MkdirAll(e.src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(e.src, "data.txt"), []byte("original"), 0o644))

	cfg := "source:\n" +
		"  dirs: [" + e.src + "]\n" +
		"  dumpDir: " + filepath.Join(root, "dump") + "\n" +
		"destination:\n" +
		"  bucket: test-bucket\n" +
		"  region: eu-west-1\n" +
		"  prefix: bk\n" +
		"retention:\n" +
		"  pattern: \"1,0,0,0,0\"\n" +
		"logging:\n" +
		"  file: " + filepath.Join(root, "dir-archiver.log") + "\n"
	require.NoError(t, os.WriteFile(e.config, []byte(cfg), 0o600))
	return e
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(func(_ context.Context, d config.DestinationConfig, region string) (objectstore.MultipartStore, error) {
		e.opened++
		assert.Equal(t, "test-bucket", d.Bucket)
		assert.Equal(t, "eu-west-1", region)
		return keepOpen{e.store}, nil
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--config", e.config))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *env) put(t *testing.T, key string) {
	t.Helper()
	require.NoError(t, e.store.Put(context.Background(), key, bytes.NewReader(nil), 0, "", objectstore.PutOptions{}))
}

func TestPlanCmd_ListsDecisionsWithoutDeleting(t *testing.T) {
	e := newEnv(t)
	e.put(t, "bk/2024-01-01-00-00-00/_x.tar.gz")
	e.put(t, "bk/2024-01-02-00-00-00/_x.tar.gz")

	out, err := e.run(t, "plan")
	require.NoError(t, err)

	assert.Contains(t, out, "keep    bk/2024-01-02-00-00-00")
	assert.Contains(t, out, "delete  bk/2024-01-01-00-00-00")
	assert.Contains(t, out, "policy 1,0,0,0,0: keep 1, delete 1")
	assert.Len(t, e.store.Keys(), 2)
}

func TestRotateCmd_PatternOverride(t *testing.T) {
	e := newEnv(t)
	e.put(t, "bk/2024-01-01-00-00-00/_x.tar.gz")
	e.put(t, "bk/2024-01-02-00-00-00/_x.tar.gz")

	out, err := e.run(t, "rotate", "--pattern", "0,0,0,0,0")
	require.NoError(t, err)
	assert.Contains(t, out, "kept 0, deleted 2, failed 0")
	assert.Empty(t, e.store.Keys())
}

func TestBackupThenRestoreCmd(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "backup")
	require.NoError(t, err)
	assert.Contains(t, out, "1 archive(s) uploaded")
	require.Len(t, e.store.Keys(), 1)

	require.NoError(t, os.WriteFile(filepath.Join(e.src, "data.txt"), []byte("changed"), 0o644))

	out, err = e.run(t, "restore")
	require.NoError(t, err)
	assert.Contains(t, out, "restored 1 director(ies)")

	got, err := os.ReadFile(filepath.Join(e.src, "data.txt"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))
}

func TestRestoreCmd_NothingToRestore(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "restore")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to restore")
}

func TestRestoreCmd_MalformedStamp(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "restore", "--stamp", "last-tuesday")

	var ce *config.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "restore.stamp", ce.Field)
	assert.Zero(t, e.opened, "nothing is opened before the config is valid")
}

func TestBackupCmd_InvalidDirectory(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "backup", "--dir", filepath.Join(e.src, "missing"))
	require.Error(t, err)
	assert.Empty(t, e.store.Keys())
}

func TestVersionCmd(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dir-archiver "+version, strings.TrimSpace(out))
}

func TestLoad_MissingDefaultConfigUsesFlags(t *testing.T) {
	opts := &rootOptions{
		dirs:    []string{"/srv/app"},
		bucket:  "b",
		pattern: "2,0,0,0,1",
	}
	missing := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := opts.load(missing, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"/srv/app"}, cfg.Source.Dirs)
	assert.Equal(t, retention.Policy{2, 0, 0, 0, 1}, cfg.Policy())

	_, err = opts.load(missing, true)
	assert.Error(t, err)
}

func TestLoad_DebugOverride(t *testing.T) {
	opts := &rootOptions{dirs: []string{"/x"}, bucket: "b", debug: true}
	cfg, err := opts.load(filepath.Join(t.TempDir(), "none.yaml"), false)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestApp_ApplyReload(t *testing.T) {
	e := newEnv(t)
	opts := &rootOptions{configPath: e.config, newStore: func(context.Context, config.DestinationConfig, string) (objectstore.MultipartStore, error) {
		return keepOpen{e.store}, nil
	}}
	cmd := newRootCmd(opts.newStore)
	cmd.SetContext(context.Background())

	a, err := opts.newApp(cmd)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, retention.Policy{1, 0, 0, 0, 0}, a.engine.Policy())

	opts.pattern = "3,3,3,3,3"
	cfg, err := opts.load(e.config, true)
	require.NoError(t, err)
	require.NoError(t, a.apply(cfg))
	assert.Equal(t, retention.Policy{3, 3, 3, 3, 3}, a.engine.Policy())
}
