// Package scheduler turns the configured cron expression into backup jobs.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/raoulx24/dir-archiver/internal/config"
	"github.com/raoulx24/dir-archiver/internal/logging"
	"github.com/raoulx24/dir-archiver/internal/mailbox"
	"github.com/raoulx24/dir-archiver/internal/worker"
)

// Scheduler posts a backup job to the mailbox on every cron tick. Ticks that
// fire while a job is still pending collapse into that job.
type Scheduler struct {
	mu    sync.Mutex
	cron  *cron.Cron
	entry cron.EntryID
	expr  string

	mb  *mailbox.Mailbox[worker.Job]
	log logging.Logger
}

// New creates a scheduler in UTC, matching snapshot stamps.
func New(mb *mailbox.Mailbox[worker.Job], log logging.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(config.CronParser),
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLogger{log}),
		),
		mb:  mb,
		log: log,
	}
}

// UpdateSchedule replaces the active expression. An empty expression disables
// scheduled backups.
func (s *Scheduler) UpdateSchedule(expr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expr == s.expr {
		return nil
	}

	var sched cron.Schedule
	if expr != "" {
		var err error
		sched, err = config.CronParser.Parse(expr)
		if err != nil {
			return &config.ConfigurationError{Field: "schedule.cron", Err: err}
		}
	}

	if s.entry != 0 {
		s.cron.Remove(s.entry)
		s.entry = 0
	}
	s.expr = expr

	if sched == nil {
		s.log.Info("scheduler: scheduled backups disabled")
		return nil
	}
	s.entry = s.cron.Schedule(sched, cron.FuncJob(func() { s.Trigger("cron") }))
	s.log.Info("scheduler: schedule updated", "cron", expr)
	return nil
}

// Trigger posts a backup job immediately.
func (s *Scheduler) Trigger(reason string) {
	replaced := s.mb.Put(worker.Job{Kind: worker.KindBackup, Reason: reason, Requested: time.Now().UTC()})
	if replaced {
		s.log.Warn("scheduler: previous backup still pending, coalesced", "reason", reason)
		return
	}
	s.log.Debug("scheduler: backup requested", "reason", reason)
}

// Next returns the next scheduled tick, or the zero time when disabled or not
// started.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// Start runs the cron loop until ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	s.log.Info("scheduler: started")
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("scheduler: stopped")
}

// cronLogger routes cron's own messages into the application log.
type cronLogger struct {
	log logging.Logger
}

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kv...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kv, "error", err)...)
}
