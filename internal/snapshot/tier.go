package snapshot

import (
	"fmt"
	"time"
)

// Tier is a retention granularity. The declaration order is the priority order
// used by retention and restore fallback.
type Tier int

const (
	Hourly Tier = iota
	Daily
	Weekly
	Monthly
	Yearly
)

// Tiers lists every tier, most granular first.
var Tiers = [...]Tier{Hourly, Daily, Weekly, Monthly, Yearly}

// NumTiers is the number of retention tiers.
const NumTiers = len(Tiers)

func (t Tier) String() string {
	switch t {
	case Hourly:
		return "hourly"
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	case Yearly:
		return "yearly"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// BucketKey truncates ts to the tier's granularity. The second result is false
// when the tier does not admit ts at all: weekly buckets only exist for days of
// the month divisible by 7.
func (t Tier) BucketKey(ts time.Time) (string, bool) {
	ts = ts.UTC()
	switch t {
	case Hourly:
		return ts.Format("2006-01-02-15"), true
	case Daily:
		return ts.Format("2006-01-02"), true
	case Weekly:
		if ts.Day()%7 != 0 {
			return "", false
		}
		return ts.Format("2006-01-02"), true
	case Monthly:
		return ts.Format("2006-01"), true
	case Yearly:
		return ts.Format("2006"), true
	default:
		return "", false
	}
}
