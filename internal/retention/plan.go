package retention

import (
	"github.com/raoulx24/dir-archiver/internal/logging"
	"github.com/raoulx24/dir-archiver/internal/snapshot"
)

// PrunePlan splits a catalog into survivors and deletions, newest first.
type PrunePlan struct {
	Keep   []snapshot.Snapshot
	Delete []snapshot.Snapshot
}

// PlanDeletions returns every catalog identifier missing from keep.
func PlanDeletions(catalog snapshot.Catalog, keep IDSet) IDSet {
	del := make(IDSet)
	for _, s := range catalog {
		if !keep.Has(s.ID) {
			del.Add(s.ID)
		}
	}
	return del
}

// Plan runs classification, selection and planning over a catalog.
func Plan(catalog snapshot.Catalog, policy Policy, log logging.Logger) PrunePlan {
	tiers := Classify(catalog, log)
	keep := SelectKeepSet(tiers, policy)

	for _, t := range snapshot.Tiers {
		n := min(policy.Keep(t), len(tiers[t]))
		log.Debug("retention: tier selection", "tier", t.String(), "available", len(tiers[t]), "kept", n)
	}

	var plan PrunePlan
	seen := make(IDSet, len(catalog))
	for _, s := range catalog {
		if seen.Has(s.ID) {
			continue
		}
		seen.Add(s.ID)
		if keep.Has(s.ID) {
			plan.Keep = append(plan.Keep, s)
		} else {
			plan.Delete = append(plan.Delete, s)
		}
	}
	sortNewestFirst(plan.Keep)
	sortNewestFirst(plan.Delete)

	return plan
}
