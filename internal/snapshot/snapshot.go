// Package snapshot defines the snapshot catalog model shared by the retention
// engine and the storage collaborators.
package snapshot

import (
	"fmt"
	"time"
)

// StampLayout is the timestamp segment embedded in every snapshot key.
const StampLayout = "2006-01-02-15-04-05"

// Snapshot represents one completed backup run stored under a common key prefix.
type Snapshot struct {
	// ID is the key prefix "<prefix>/<stamp>" grouping all files of the run.
	ID        string
	Timestamp time.Time
}

func (s Snapshot) String() string {
	return s.ID
}

// Stamp formats the snapshot timestamp the way it is embedded in keys.
func (s Snapshot) Stamp() string {
	return FormatStamp(s.Timestamp)
}

// FormatStamp renders t in UTC using StampLayout.
func FormatStamp(t time.Time) string {
	return t.UTC().Format(StampLayout)
}

// ParseStamp parses a "YYYY-MM-DD-HH-mm-ss" timestamp as UTC.
func ParseStamp(s string) (time.Time, error) {
	t, err := time.ParseInLocation(StampLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stamp %q: %w", s, err)
	}
	return t, nil
}

// NewID joins a storage prefix and a timestamp into a snapshot identifier.
func NewID(prefix string, t time.Time) string {
	if prefix == "" {
		return FormatStamp(t)
	}
	return prefix + "/" + FormatStamp(t)
}
