package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name     string
	schedule Schedule
}

func (j *countingJob) Name() string       { return j.name }
func (j *countingJob) Schedule() Schedule { return j.schedule }
func (j *countingJob) Execute(ctx context.Context) error {
	return nil
}

func testSlots() Slots {
	return Slots{DailyAt: ClockTime(6, 0), WeeklyOn: time.Sunday, WeeklyAt: ClockTime(8, 0)}
}

func TestClockTime(t *testing.T) {
	assert.Equal(t, "06:00", ClockTime(6, 0))
	assert.Equal(t, "23:05", ClockTime(23, 5))
}

func TestSchedulerService_AddJobAndStartStop(t *testing.T) {
	scheduler := NewSchedulerService(testSlots())
	ctx := context.Background()

	require.NoError(t, scheduler.Start(ctx))
	assert.False(t, scheduler.started, "no jobs means no start")

	require.NoError(t, scheduler.AddJob(&countingJob{name: "digest", schedule: Daily}))
	require.NoError(t, scheduler.AddJob(&countingJob{name: "trend", schedule: Weekly}))
	assert.Equal(t, []string{"digest", "trend"}, scheduler.Registered())

	require.NoError(t, scheduler.Start(ctx))
	assert.True(t, scheduler.started)
	require.NoError(t, scheduler.Start(ctx))

	require.NoError(t, scheduler.Stop(ctx))
	assert.False(t, scheduler.started)
	assert.Error(t, scheduler.ctx.Err(), "running jobs see cancellation")
	require.NoError(t, scheduler.Stop(ctx))
}

func TestSchedulerService_WeeklySlot(t *testing.T) {
	scheduler := NewSchedulerService(testSlots())
	require.NoError(t, scheduler.AddJob(&countingJob{name: "trend", schedule: Weekly}))
	require.NoError(t, scheduler.Start(context.Background()))
	defer scheduler.Stop(context.Background())

	jobs := scheduler.cron.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, []string{"trend"}, jobs[0].Tags())

	next := jobs[0].NextRun().UTC()
	assert.Equal(t, time.Sunday, next.Weekday())
	assert.Equal(t, 8, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.True(t, next.After(time.Now()))
}

func TestSchedulerService_RejectsUnknownSchedule(t *testing.T) {
	scheduler := NewSchedulerService(testSlots())

	assert.Error(t, scheduler.AddJob(&countingJob{name: "bogus", schedule: Schedule(42)}))
	assert.Equal(t, "schedule(42)", Schedule(42).String())
	assert.Empty(t, scheduler.Registered())
}

func TestSchedulerService_RejectsMalformedTime(t *testing.T) {
	scheduler := NewSchedulerService(Slots{DailyAt: "25:99"})

	assert.Error(t, scheduler.AddJob(&countingJob{name: "digest", schedule: Daily}))
	assert.Empty(t, scheduler.Registered())
}
