package worker

import (
	"context"
	"fmt"

	"github.com/raoulx24/dir-archiver/internal/logging"
	"github.com/raoulx24/dir-archiver/internal/metrics"
	"github.com/raoulx24/dir-archiver/internal/objectstore"
	"github.com/raoulx24/dir-archiver/internal/retention"
	"github.com/raoulx24/dir-archiver/internal/snapshot"
)

// Rotator deletes snapshots from the object store on behalf of the retention
// engine.
type Rotator struct {
	store objectstore.Store
	log   logging.Logger
}

// NewRotator creates a Rotator backed by store.
func NewRotator(store objectstore.Store, log logging.Logger) *Rotator {
	return &Rotator{store: store, log: log}
}

// DeleteSnapshot removes every object of snapshot s. Every key is attempted;
// the first failure is returned.
func (r *Rotator) DeleteSnapshot(ctx context.Context, s snapshot.Snapshot) error {
	objs, err := r.store.List(ctx, s.ID+"/")
	if err != nil {
		return fmt.Errorf("listing snapshot %s: %w", s.ID, err)
	}

	var first error
	for _, o := range objs {
		if err := r.store.Delete(ctx, o.Key); err != nil {
			r.log.Warn("rotate: delete failed", "key", o.Key, "error", err)
			if first == nil {
				first = err
			}
			continue
		}
		r.log.Debug("rotate: deleted", "key", o.Key)
	}
	return first
}

var _ retention.Deleter = (*Rotator)(nil)

func (w *Worker) rotator(log logging.Logger) *Rotator {
	return NewRotator(w.store, log)
}

// Catalog lists the snapshots stored under the configured prefix.
func (w *Worker) Catalog(ctx context.Context) (snapshot.Catalog, error) {
	return w.catalog(ctx, w.current(), w.log)
}

func (w *Worker) catalog(ctx context.Context, s Settings, log logging.Logger) (snapshot.Catalog, error) {
	ctx, cancel := withTimeout(ctx, s)
	defer cancel()

	listPrefix := ""
	if s.Prefix != "" {
		listPrefix = s.Prefix + "/"
	}
	objs, err := w.store.List(ctx, listPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	keys := make([]string, len(objs))
	for i, o := range objs {
		keys[i] = o.Key
	}
	cat := snapshot.CatalogFromKeys(s.Prefix, keys, log)
	log.Debug("catalog: loaded", "objects", len(objs), "snapshots", len(cat))
	return cat, nil
}

// Plan computes the rotation decision without deleting anything.
func (w *Worker) Plan(ctx context.Context) (retention.PrunePlan, error) {
	cat, err := w.Catalog(ctx)
	if err != nil {
		return retention.PrunePlan{}, err
	}
	return w.retention.Plan(cat), nil
}

// Rotate applies the retention policy to the stored snapshots.
func (w *Worker) Rotate(ctx context.Context) (res retention.Result, err error) {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	started := w.now()
	defer func() { w.recordRun(metrics.OpRotate, started, err) }()

	log := w.log.With("run", w.newID(), "op", "rotate")
	return w.rotate(ctx, w.current(), log)
}

func (w *Worker) rotate(ctx context.Context, s Settings, log logging.Logger) (retention.Result, error) {
	cat, err := w.catalog(ctx, s, log)
	if err != nil {
		return retention.Result{}, err
	}

	ctx, cancel := withTimeout(ctx, s)
	defer cancel()

	res := w.retention.Apply(ctx, cat, w.rotator(log))
	if w.metrics != nil {
		w.metrics.RecordRotation(len(res.Plan.Keep), len(res.Deleted), len(res.Failed))
	}
	return res, nil
}
