package retention

import (
	"context"
	"sync"
	"time"

	"github.com/raoulx24/dir-archiver/internal/logging"
	"github.com/raoulx24/dir-archiver/internal/snapshot"
)

// Deleter removes a whole snapshot from storage. Deleting a snapshot that no
// longer exists must succeed.
type Deleter interface {
	DeleteSnapshot(ctx context.Context, s snapshot.Snapshot) error
}

// Result summarises one rotation.
type Result struct {
	Plan    PrunePlan
	Deleted []snapshot.Snapshot
	Failed  []snapshot.Snapshot
}

// Engine holds the active policy and applies it to catalogs. The policy can be
// swapped at runtime on config reload.
type Engine struct {
	mu     sync.RWMutex
	policy Policy
	log    logging.Logger
}

func New(policy Policy, log logging.Logger) *Engine {
	return &Engine{
		policy: policy,
		log:    log,
	}
}

// UpdateConfig replaces the active policy.
func (e *Engine) UpdateConfig(policy Policy) {
	e.mu.Lock()
	e.policy = policy
	e.mu.Unlock()
	e.log.Info("retention: policy updated", "policy", policy.String())
}

// Policy returns the active policy.
func (e *Engine) Policy() Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy
}

// Plan computes the rotation decision for a catalog without deleting anything.
func (e *Engine) Plan(catalog snapshot.Catalog) PrunePlan {
	return Plan(catalog, e.Policy(), e.log)
}

// Apply plans a rotation and deletes every snapshot outside the keep set.
// A failed deletion is logged and skipped: the snapshot stays in storage and
// is picked up again by the next rotation.
func (e *Engine) Apply(ctx context.Context, catalog snapshot.Catalog, d Deleter) Result {
	plan := e.Plan(catalog)
	res := Result{Plan: plan}

	for _, s := range plan.Keep {
		e.log.Debug("retention: keeping snapshot", "snapshot", s.ID)
	}

	for i, s := range plan.Delete {
		if err := ctx.Err(); err != nil {
			e.log.Warn("retention: rotation interrupted", "error", err, "remaining", len(plan.Delete)-i)
			res.Failed = append(res.Failed, plan.Delete[i:]...)
			break
		}

		e.log.Info("retention: deleting snapshot", "snapshot", s.ID)
		if err := d.DeleteSnapshot(ctx, s); err != nil {
			e.log.Error("retention: delete failed", "snapshot", s.ID, "error", err)
			res.Failed = append(res.Failed, s)
			continue
		}
		res.Deleted = append(res.Deleted, s)
	}

	e.log.Info("retention: rotation complete",
		"kept", len(plan.Keep), "deleted", len(res.Deleted), "failed", len(res.Failed))
	return res
}

// RestoreTarget resolves the snapshot to restore from a catalog.
func (e *Engine) RestoreTarget(catalog snapshot.Catalog, explicit *time.Time) (snapshot.Snapshot, bool) {
	return SelectRestoreTarget(Classify(catalog, e.log), explicit, e.log)
}
