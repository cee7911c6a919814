package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/raoulx24/dir-archiver/internal/archive"
	"github.com/raoulx24/dir-archiver/internal/hooks"
	"github.com/raoulx24/dir-archiver/internal/logging"
	"github.com/raoulx24/dir-archiver/internal/metrics"
	"github.com/raoulx24/dir-archiver/internal/snapshot"
)

// ErrNoSnapshot is the Reason of a restore that found nothing to restore.
var ErrNoSnapshot = errors.New("no snapshot available to restore")

// RestoreState is a step of a restore run.
type RestoreState int

const (
	RestoreIdle RestoreState = iota
	RestoreTargetResolved
	RestoreDownloaded
	RestoreExtracted
	RestoreDone
	RestoreFailed
)

func (s RestoreState) String() string {
	switch s {
	case RestoreIdle:
		return "idle"
	case RestoreTargetResolved:
		return "target-resolved"
	case RestoreDownloaded:
		return "downloaded"
	case RestoreExtracted:
		return "extracted"
	case RestoreDone:
		return "done"
	case RestoreFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RestoreResult describes a restore run. History lists every state entered,
// starting with RestoreIdle.
type RestoreResult struct {
	RunID    string
	State    RestoreState
	Reason   error
	Snapshot snapshot.Snapshot
	Restored []snapshot.Artifact
	History  []RestoreState
}

func (r *RestoreResult) enter(s RestoreState) {
	r.State = s
	r.History = append(r.History, s)
}

func (r *RestoreResult) fail(reason error) {
	r.Reason = reason
	r.enter(RestoreFailed)
}

// Restore downloads the selected snapshot and extracts each configured
// directory in place. Finding no snapshot is not an error: the result is
// RestoreFailed with Reason ErrNoSnapshot and nothing on disk is touched.
func (w *Worker) Restore(ctx context.Context) (res RestoreResult, err error) {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	started := w.now()
	defer func() { w.recordRun(metrics.OpRestore, started, err) }()

	s := w.current()
	res.RunID = w.newID()
	res.enter(RestoreIdle)
	log := w.log.With("run", res.RunID, "op", "restore")

	if out := w.hooks.Run(ctx, hooks.PreRestore); !out.OK() {
		err = hookError(out)
		res.fail(err)
		return res, err
	}

	cat, err := w.catalog(ctx, s, log)
	if err != nil {
		res.fail(err)
		return res, err
	}

	target, ok := w.retention.RestoreTarget(cat, s.RestoreStamp)
	if !ok {
		log.Warn("restore: no snapshot found, nothing to restore", "snapshots", len(cat))
		res.fail(ErrNoSnapshot)
		return res, nil
	}
	res.Snapshot = target
	res.enter(RestoreTargetResolved)
	log = log.With("snapshot", target.ID)
	log.Info("restore: target resolved", "stamp", target.Stamp())

	if err := w.fs.MkdirAll(s.DumpDir); err != nil {
		err = fmt.Errorf("creating dump dir: %w", err)
		res.fail(err)
		return res, err
	}

	artifacts := make([]snapshot.Artifact, len(s.Dirs))
	for i, dir := range s.Dirs {
		artifacts[i] = snapshot.NewArtifact(dir, s.DumpDir)
	}
	defer w.removeStaged(artifacts, log)

	for i := range artifacts {
		if err := w.download(ctx, s, &artifacts[i], target, log); err != nil {
			res.fail(err)
			return res, err
		}
	}
	res.enter(RestoreDownloaded)

	for _, a := range artifacts {
		dest := filepath.Dir(filepath.Clean(a.Dir))
		log.Info("restore: extracting", "archive", a.Path, "into", dest)
		if err := archive.Extract(ctx, a.Path, dest, log); err != nil {
			res.fail(err)
			return res, err
		}
		res.Restored = append(res.Restored, a)
	}
	res.enter(RestoreExtracted)

	if out := w.hooks.Run(ctx, hooks.PostRestore); !out.OK() {
		err = hookError(out)
		res.fail(err)
		return res, err
	}

	res.enter(RestoreDone)
	log.Info("restore: complete", "directories", len(res.Restored))
	return res, nil
}

func (w *Worker) download(ctx context.Context, s Settings, a *snapshot.Artifact, target snapshot.Snapshot, log logging.Logger) error {
	ctx, cancel := withTimeout(ctx, s)
	defer cancel()

	key := a.Key(target.ID)
	log.Info("restore: downloading", "key", key)

	body, err := w.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", key, err)
	}
	defer body.Close()

	n, err := w.fs.WriteFile(ctx, a.Path, body)
	if err != nil {
		return fmt.Errorf("writing %s: %w", a.Path, err)
	}
	a.Size = n
	return nil
}
