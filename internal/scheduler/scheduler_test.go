package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raoulx24/dir-archiver/internal/config"
	"github.com/raoulx24/dir-archiver/internal/logging"
	"github.com/raoulx24/dir-archiver/internal/mailbox"
	"github.com/raoulx24/dir-archiver/internal/worker"
)

func TestUpdateSchedule_Invalid(t *testing.T) {
	s := New(mailbox.New[worker.Job](), logging.Nop())

	err := s.UpdateSchedule("every tuesday-ish")
	var ce *config.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "schedule.cron", ce.Field)
	assert.True(t, s.Next().IsZero())
}

func TestTrigger_Coalesces(t *testing.T) {
	mb := mailbox.New[worker.Job]()
	s := New(mb, logging.Nop())

	s.Trigger("startup")
	s.Trigger("cron")

	job := mb.TryTake()
	require.NotNil(t, job)
	assert.Equal(t, worker.KindBackup, job.Kind)
	assert.Equal(t, "cron", job.Reason)
	assert.Nil(t, mb.TryTake())
}

func TestStart_FiresOnSchedule(t *testing.T) {
	mb := mailbox.New[worker.Job]()
	s := New(mb, logging.Nop())
	require.NoError(t, s.UpdateSchedule("@every 1s"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, mb.HasJob, 5*time.Second, 20*time.Millisecond)
	job := mb.TryTake()
	require.NotNil(t, job)
	assert.Equal(t, "cron", job.Reason)
	assert.False(t, s.Next().IsZero())

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestUpdateSchedule_Disable(t *testing.T) {
	s := New(mailbox.New[worker.Job](), logging.Nop())
	require.NoError(t, s.UpdateSchedule("@hourly"))
	require.NotZero(t, s.entry)

	require.NoError(t, s.UpdateSchedule(""))
	assert.Zero(t, s.entry)
	assert.True(t, s.Next().IsZero())
}
