package snapshot

import (
	"sort"
	"strings"

	"github.com/raoulx24/dir-archiver/internal/logging"
)

// Catalog is the unordered set of snapshots discovered in storage.
type Catalog []Snapshot

// IDs returns the catalog identifiers.
func (c Catalog) IDs() []string {
	ids := make([]string, 0, len(c))
	for _, s := range c {
		ids = append(ids, s.ID)
	}
	return ids
}

// CatalogFromKeys groups object keys of the form "<prefix>/<stamp>/<file>" into
// snapshots. Keys that do not match that shape are logged and skipped.
func CatalogFromKeys(prefix string, keys []string, log logging.Logger) Catalog {
	seen := make(map[string]Snapshot)

	for _, key := range keys {
		snap, ok := parseKey(prefix, key)
		if !ok {
			log.Warn("catalog: unexpected key, skipping", "key", key)
			continue
		}
		seen[snap.ID] = snap
	}

	out := make(Catalog, 0, len(seen))
	for _, s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// parseKey extracts the snapshot a storage key belongs to.
func parseKey(prefix, key string) (Snapshot, bool) {
	rest := key
	if prefix != "" {
		var ok bool
		rest, ok = strings.CutPrefix(key, strings.TrimSuffix(prefix, "/")+"/")
		if !ok {
			return Snapshot{}, false
		}
	}

	stamp, file, ok := strings.Cut(rest, "/")
	if !ok || file == "" || strings.Contains(file, "/") {
		return Snapshot{}, false
	}

	ts, err := ParseStamp(stamp)
	if err != nil {
		return Snapshot{}, false
	}

	return Snapshot{
		ID:        strings.TrimSuffix(key, "/"+file),
		Timestamp: ts,
	}, true
}
