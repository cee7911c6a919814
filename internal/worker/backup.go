package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raoulx24/dir-archiver/internal/archive"
	"github.com/raoulx24/dir-archiver/internal/hooks"
	"github.com/raoulx24/dir-archiver/internal/logging"
	"github.com/raoulx24/dir-archiver/internal/metrics"
	"github.com/raoulx24/dir-archiver/internal/retention"
	"github.com/raoulx24/dir-archiver/internal/snapshot"
)

// BackupResult describes a completed backup run.
type BackupResult struct {
	RunID     string
	Snapshot  snapshot.Snapshot
	Artifacts []snapshot.Artifact
	PostHook  hooks.Outcome
	Rotation  retention.Result
	// RotationErr is set when the catalog could not be read after upload.
	// The backup itself succeeded.
	RotationErr error
}

// Backup archives every configured directory, uploads the archives under a
// fresh snapshot and rotates old snapshots.
func (w *Worker) Backup(ctx context.Context) (res BackupResult, err error) {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	started := w.now()
	defer func() { w.recordRun(metrics.OpBackup, started, err) }()

	s := w.current()
	res.RunID = w.newID()
	log := w.log.With("run", res.RunID, "op", "backup")
	log.Info("backup: starting", "dirs", len(s.Dirs))

	if err := w.validateDirs(s); err != nil {
		log.Error("backup: invalid source", "error", err)
		return res, err
	}

	if out := w.hooks.Run(ctx, hooks.PreBackup); !out.OK() {
		return res, hookError(out)
	}

	if err := w.fs.MkdirAll(s.DumpDir); err != nil {
		return res, fmt.Errorf("creating dump dir: %w", err)
	}

	artifacts := make([]snapshot.Artifact, len(s.Dirs))
	for i, dir := range s.Dirs {
		artifacts[i] = snapshot.NewArtifact(dir, s.DumpDir)
	}
	defer w.removeStaged(artifacts, log)

	if err := w.archiveAll(ctx, s, artifacts, log); err != nil {
		return res, err
	}
	res.Artifacts = artifacts

	res.PostHook = w.hooks.Run(ctx, hooks.PostBackup)
	if !res.PostHook.OK() {
		log.Warn("backup: post-backup hook failed, continuing", "exit_code", res.PostHook.ExitCode)
	}

	stamp := w.now().UTC().Truncate(time.Second)
	res.Snapshot = snapshot.Snapshot{ID: snapshot.NewID(s.Prefix, stamp), Timestamp: stamp}
	log = log.With("snapshot", res.Snapshot.ID)

	if err := w.uploadAll(ctx, s, res.Snapshot, artifacts, log); err != nil {
		w.discardPartial(ctx, s, res.Snapshot, log)
		return res, err
	}
	log.Info("backup: snapshot uploaded", "artifacts", len(artifacts))

	res.Rotation, res.RotationErr = w.rotate(ctx, s, log)
	if res.RotationErr != nil {
		log.Error("backup: rotation skipped", "error", res.RotationErr)
	}

	log.Info("backup: complete", "duration", time.Since(started).String())
	return res, nil
}

func (w *Worker) validateDirs(s Settings) error {
	for _, dir := range s.Dirs {
		info, err := w.fs.Stat(dir)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidDirectory, dir, err)
		}
		if !info.IsDir {
			return fmt.Errorf("%w: %s is not a directory", ErrInvalidDirectory, dir)
		}
	}
	return nil
}

// archiveAll builds one archive per directory, Parallelism at a time.
func (w *Worker) archiveAll(ctx context.Context, s Settings, artifacts []snapshot.Artifact, log logging.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.Parallelism, 1))

	opts := archive.Options{Excludes: s.Excludes, Level: s.CompressionLevel}
	for i := range artifacts {
		a := &artifacts[i]
		g.Go(func() error {
			log.Info("backup: archiving", "dir", a.Dir, "archive", a.Path)
			size, err := archive.Create(gctx, a.Dir, a.Path, opts, log)
			if err != nil {
				return err
			}
			a.Size = size
			if w.metrics != nil {
				w.metrics.RecordArchive(a.Dir, size)
			}
			log.Debug("backup: archived", "dir", a.Dir, "bytes", size)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) uploadAll(ctx context.Context, s Settings, snap snapshot.Snapshot, artifacts []snapshot.Artifact, log logging.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.Parallelism, 1))

	for _, a := range artifacts {
		g.Go(func() error {
			return w.upload(gctx, s, a, a.Key(snap.ID), log)
		})
	}
	return g.Wait()
}

// discardPartial removes whatever part of a failed snapshot reached storage.
func (w *Worker) discardPartial(ctx context.Context, s Settings, snap snapshot.Snapshot, log logging.Logger) {
	cctx, cancel := withTimeout(context.WithoutCancel(ctx), s)
	defer cancel()
	if err := w.rotator(log).DeleteSnapshot(cctx, snap); err != nil {
		log.Warn("backup: could not remove partial snapshot", "error", err)
	}
}

func (w *Worker) removeStaged(artifacts []snapshot.Artifact, log logging.Logger) {
	for _, a := range artifacts {
		if err := w.fs.Remove(a.Path); err != nil {
			log.Warn("worker: could not remove staged archive", "path", a.Path, "error", err)
		}
	}
}
