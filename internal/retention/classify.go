// Package retention decides which snapshots survive a rotation and which one a
// restore should use. It never touches storage: every function works on an
// in-memory catalog and returns decisions.
package retention

import (
	"sort"

	"github.com/raoulx24/dir-archiver/internal/logging"
	"github.com/raoulx24/dir-archiver/internal/snapshot"
)

// ClassifiedTiers maps each tier to its representatives, newest period first.
type ClassifiedTiers map[snapshot.Tier][]snapshot.Snapshot

// Classify assigns snapshots to tiers by calendar truncation of their
// timestamps. Each tier holds at most one snapshot per bucket key; a bucket is
// represented by its newest snapshot, so the latest backup of an hour stands for
// that hour and the latest backup of a day for that day.
//
// The input order is irrelevant. Snapshots without a timestamp are skipped.
func Classify(catalog snapshot.Catalog, log logging.Logger) ClassifiedTiers {
	sorted := make([]snapshot.Snapshot, 0, len(catalog))
	dup := make(map[string]struct{}, len(catalog))
	for _, s := range catalog {
		if s.Timestamp.IsZero() {
			log.Warn("classify: snapshot has no timestamp, excluding", "snapshot", s.ID)
			continue
		}
		if _, ok := dup[s.ID]; ok {
			continue
		}
		dup[s.ID] = struct{}{}
		sorted = append(sorted, s)
	}
	sortNewestFirst(sorted)

	tiers := make(ClassifiedTiers, snapshot.NumTiers)
	var claimed [snapshot.NumTiers]map[string]struct{}
	for _, t := range snapshot.Tiers {
		tiers[t] = []snapshot.Snapshot{}
		claimed[t] = make(map[string]struct{})
	}

	// Walking newest to oldest, the first snapshot to reach a bucket claims it.
	for _, s := range sorted {
		for _, t := range snapshot.Tiers {
			key, ok := t.BucketKey(s.Timestamp)
			if !ok {
				continue
			}
			if _, seen := claimed[t][key]; seen {
				continue
			}
			claimed[t][key] = struct{}{}
			tiers[t] = append(tiers[t], s)
		}
	}

	return tiers
}

// sortNewestFirst orders by timestamp descending, then ID descending so equal
// timestamps still produce a stable result.
func sortNewestFirst(s []snapshot.Snapshot) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].Timestamp.Equal(s[j].Timestamp) {
			return s[i].Timestamp.After(s[j].Timestamp)
		}
		return s[i].ID > s[j].ID
	})
}
