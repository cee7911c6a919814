package retention

import (
	"sort"
	"time"

	"github.com/raoulx24/dir-archiver/internal/logging"
	"github.com/raoulx24/dir-archiver/internal/snapshot"
)

// IDSet is a set of snapshot identifiers.
type IDSet map[string]struct{}

func (s IDSet) Add(id string) { s[id] = struct{}{} }

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the identifiers in lexical order, which for a shared prefix
// is also chronological order.
func (s IDSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SelectKeepSet takes the newest policy[tier] entries of every tier and
// returns the union of their identifiers.
func SelectKeepSet(tiers ClassifiedTiers, policy Policy) IDSet {
	keep := make(IDSet)
	for _, t := range snapshot.Tiers {
		seq := tiers[t]
		n := min(policy.Keep(t), len(seq))
		for _, s := range seq[:n] {
			keep.Add(s.ID)
		}
	}
	return keep
}

// restorePriority is the default restore fallback order. Yearly archives are
// never picked implicitly.
var restorePriority = [...]snapshot.Tier{snapshot.Hourly, snapshot.Daily, snapshot.Weekly, snapshot.Monthly}

// SelectRestoreTarget picks the snapshot to restore. An explicit timestamp
// wins when some tier holds a snapshot taken at exactly that second; otherwise
// a warning is logged and the newest entry of the first non-empty tier in
// hourly, daily, weekly, monthly order is used. The boolean is false when no
// backup exists at all.
func SelectRestoreTarget(tiers ClassifiedTiers, explicit *time.Time, log logging.Logger) (snapshot.Snapshot, bool) {
	if explicit != nil {
		for _, t := range snapshot.Tiers {
			for _, s := range tiers[t] {
				if s.Timestamp.Equal(*explicit) {
					return s, true
				}
			}
		}
		log.Warn("restore: requested stamp not found, falling back to latest",
			"stamp", snapshot.FormatStamp(*explicit))
	}

	for _, t := range restorePriority {
		if seq := tiers[t]; len(seq) > 0 {
			return seq[0], true
		}
	}

	return snapshot.Snapshot{}, false
}
