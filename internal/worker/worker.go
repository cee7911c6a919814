// Package worker executes backup, rotation and restore runs against the
// object store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raoulx24/dir-archiver/internal/archive"
	"github.com/raoulx24/dir-archiver/internal/config"
	"github.com/raoulx24/dir-archiver/internal/fs"
	"github.com/raoulx24/dir-archiver/internal/hooks"
	"github.com/raoulx24/dir-archiver/internal/logging"
	"github.com/raoulx24/dir-archiver/internal/mailbox"
	"github.com/raoulx24/dir-archiver/internal/metrics"
	"github.com/raoulx24/dir-archiver/internal/objectstore"
	"github.com/raoulx24/dir-archiver/internal/retention"
)

var (
	// ErrInvalidDirectory is returned when a configured source is missing or
	// not a directory. Nothing has been archived or uploaded at that point.
	ErrInvalidDirectory = errors.New("invalid backup directory")
	// ErrHookFailed is returned when a hook that guards a run fails.
	ErrHookFailed = errors.New("hook failed")
)

// Settings is the run configuration the worker reads on every job.
type Settings struct {
	Dirs             []string
	Excludes         []*regexp.Regexp
	DumpDir          string
	Parallelism      int
	CompressionLevel int

	Prefix               string
	PartSize             int64
	Timeout              time.Duration
	ServerSideEncryption string

	RestoreStamp *time.Time
}

// SettingsFromConfig derives worker settings from a validated config.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	excludes, err := archive.CompileExcludes(cfg.Source.Excludes)
	if err != nil {
		return Settings{}, &config.ConfigurationError{Field: "source.excludes", Err: err}
	}
	return Settings{
		Dirs:                 cfg.Source.Dirs,
		Excludes:             excludes,
		DumpDir:              cfg.Source.DumpDir,
		Parallelism:          cfg.Source.Parallelism,
		CompressionLevel:     cfg.Source.CompressionLevel,
		Prefix:               cfg.Destination.Prefix,
		PartSize:             cfg.Destination.PartSize,
		Timeout:              cfg.Destination.Timeout,
		ServerSideEncryption: cfg.Destination.ServerSideEncryption,
		RestoreStamp:         cfg.RestoreStamp(),
	}, nil
}

// Deps are the collaborators of a Worker. Metrics and FS are optional.
type Deps struct {
	Store     objectstore.MultipartStore
	Retention *retention.Engine
	Hooks     *hooks.Runner
	Mailbox   *mailbox.Mailbox[Job]
	FS        fs.FS
	Metrics   *metrics.RunMetrics
	Log       logging.Logger
}

// Worker runs one job at a time.
type Worker struct {
	mu       sync.RWMutex
	settings Settings

	// runMu serializes runs started from the loop and from direct calls.
	runMu sync.Mutex

	store     objectstore.MultipartStore
	retention *retention.Engine
	hooks     *hooks.Runner
	mb        *mailbox.Mailbox[Job]
	fs        fs.FS
	metrics   *metrics.RunMetrics
	log       logging.Logger

	now   func() time.Time
	newID func() string
}

// New creates a worker.
func New(s Settings, d Deps) *Worker {
	if d.FS == nil {
		d.FS = fs.New()
	}
	if d.Log == nil {
		d.Log = logging.Nop()
	}
	if d.Hooks == nil {
		d.Hooks = hooks.NewRunner(nil, d.Log)
	}
	if d.Mailbox == nil {
		d.Mailbox = mailbox.New[Job]()
	}
	return &Worker{
		settings:  s,
		store:     d.Store,
		retention: d.Retention,
		hooks:     d.Hooks,
		mb:        d.Mailbox,
		fs:        d.FS,
		metrics:   d.Metrics,
		log:       d.Log,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// UpdateConfig hot-reloads run settings. A run in progress keeps the
// settings it started with.
func (w *Worker) UpdateConfig(s Settings) {
	w.mu.Lock()
	w.settings = s
	w.mu.Unlock()
	w.log.Info("worker: settings updated", "dirs", len(s.Dirs), "prefix", s.Prefix)
}

func (w *Worker) current() Settings {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.settings
}

// Start runs the worker loop using mailbox semantics until ctx ends.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("worker: started")
	for {
		job, err := w.mb.Take(ctx)
		if err != nil {
			w.log.Info("worker: stopped")
			return
		}
		if err := w.Handle(ctx, job); err != nil {
			w.log.Error("worker: job failed", "job", job.Kind.String(), "reason", job.Reason, "error", err)
		}
	}
}

// Handle executes one job.
func (w *Worker) Handle(ctx context.Context, job Job) error {
	w.log.Debug("worker: handling job", "job", job.Kind.String(), "reason", job.Reason)
	switch job.Kind {
	case KindBackup:
		_, err := w.Backup(ctx)
		return err
	case KindRotate:
		_, err := w.Rotate(ctx)
		return err
	default:
		return fmt.Errorf("unknown job kind %d", job.Kind)
	}
}

func hookError(out hooks.Outcome) error {
	return fmt.Errorf("%w: %w", ErrHookFailed, out.Err)
}

func (w *Worker) recordRun(op string, started time.Time, err error) {
	if w.metrics != nil {
		w.metrics.RecordRun(op, started, err == nil)
	}
}

// withTimeout bounds one object store call chain.
func withTimeout(ctx context.Context, s Settings) (context.Context, context.CancelFunc) {
	if s.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.Timeout)
}
