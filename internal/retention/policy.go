package retention

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/raoulx24/dir-archiver/internal/snapshot"
)

// DefaultPattern keeps 24 hourly, 7 daily, 5 weekly, 12 monthly and 5 yearly snapshots.
const DefaultPattern = "24,7,5,12,5"

// ErrInvalidPolicy is returned by ParsePolicy for malformed patterns.
var ErrInvalidPolicy = errors.New("invalid retention policy")

// Policy holds one keep-count per tier, indexed by snapshot.Tier.
type Policy [snapshot.NumTiers]int

// Keep returns the keep-count of a tier.
func (p Policy) Keep(t snapshot.Tier) int {
	if t < 0 || int(t) >= len(p) {
		return 0
	}
	return p[t]
}

func (p Policy) String() string {
	parts := make([]string, len(p))
	for i, n := range p {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

// ParsePolicy parses "hourly,daily,weekly,monthly,yearly" keep-counts.
func ParsePolicy(pattern string) (Policy, error) {
	var p Policy

	fields := strings.Split(pattern, ",")
	if len(fields) != len(p) {
		return p, fmt.Errorf("%w: %q: want %d comma-separated counts, got %d", ErrInvalidPolicy, pattern, len(p), len(fields))
	}

	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return Policy{}, fmt.Errorf("%w: %s count %q is not an integer", ErrInvalidPolicy, snapshot.Tiers[i], f)
		}
		if n < 0 {
			return Policy{}, fmt.Errorf("%w: %s count %d is negative", ErrInvalidPolicy, snapshot.Tiers[i], n)
		}
		p[i] = n
	}

	return p, nil
}
