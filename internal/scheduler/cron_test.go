package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/shaiso/Mender/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCronExpr(t *testing.T) {
	valid := []string{"*/5 * * * *", "0 9 * * 1-5", "@hourly", "@every 10m"}
	for _, expr := range valid {
		assert.NoError(t, ValidateCronExpr(expr), expr)
	}

	invalid := []string{"", "* * *", "61 * * * *", "0 0 * * * *"}
	for _, expr := range invalid {
		assert.Error(t, ValidateCronExpr(expr), expr)
	}
}

func TestNextRuns(t *testing.T) {
	from := time.Date(2026, 3, 10, 8, 7, 0, 0, time.UTC)

	runs, err := NextRuns("*/15 * * * *", from, 3)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		time.Date(2026, 3, 10, 8, 15, 0, 0, time.UTC),
		time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC),
		time.Date(2026, 3, 10, 8, 45, 0, 0, time.UTC),
	}, runs)

	_, err = NextRuns("bad", from, 1)
	require.Error(t, err)
}

func TestCron_JobSubmitsAndWaits(t *testing.T) {
	r := newFakeRunner(false)
	s := newScheduler(t, r, 1)
	c := NewCron(s, discard)

	job := c.job("@hourly", Request{ID: "fixed", Workflow: wf})
	job()
	job()

	assert.Equal(t, int32(2), r.runs.Load())
	tasks := s.List()
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.NotEqual(t, "fixed", task.ID)
		assert.Equal(t, domain.ExecutionCompleted, task.Status)
	}
}

func TestCron_AddAndStop(t *testing.T) {
	s := newScheduler(t, newFakeRunner(false), 1)
	c := NewCron(s, discard)

	_, err := c.Add("not a cron", Request{Workflow: wf})
	require.Error(t, err)
	_, err = c.Add("@hourly", Request{})
	require.ErrorIs(t, err, ErrNoWorkflow)

	_, err = c.Add("@hourly", Request{Workflow: wf})
	require.NoError(t, err)

	c.Start()
	require.Eventually(t, func() bool {
		entries := c.Entries()
		return len(entries) == 1 && !entries[0].IsZero()
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
}
