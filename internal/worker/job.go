package worker

import (
	"time"
)

// Kind selects what a job does.
type Kind int

const (
	// KindBackup archives, uploads and then rotates.
	KindBackup Kind = iota
	// KindRotate only applies the retention policy.
	KindRotate
)

func (k Kind) String() string {
	switch k {
	case KindBackup:
		return "backup"
	case KindRotate:
		return "rotate"
	default:
		return "unknown"
	}
}

// Job represents a run request submitted to the worker.
type Job struct {
	Kind Kind
	// Reason is a short label for logs, e.g. "cron" or "startup".
	Reason    string
	Requested time.Time
}
