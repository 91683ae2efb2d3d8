package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"healthcompanion/config"
	"healthcompanion/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRouter struct {
	mock.Mock
}

func (m *mockRouter) RouteTick(ctx context.Context, tick services.ScheduleTick) (*services.TickReport, error) {
	args := m.Called(ctx, tick)
	report, _ := args.Get(0).(*services.TickReport)
	return report, args.Error(1)
}

func (m *mockRouter) SweepPending(ctx context.Context) ([]*services.PipelineRun, error) {
	args := m.Called(ctx)
	runs, _ := args.Get(0).([]*services.PipelineRun)
	return runs, args.Error(1)
}

func TestDailyDigestJob_Execute(t *testing.T) {
	router := &mockRouter{}
	job := NewDailyDigestJob(router, Daily)
	job.now = func() time.Time { return time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC) }

	router.On("RouteTick", mock.Anything, services.ScheduleTick{Date: job.now()}).
		Return(&services.TickReport{Users: 3}, nil).Once()

	require.NoError(t, job.Execute(context.Background()))
	assert.Equal(t, "DailyDigest", job.Name())
	assert.Equal(t, Daily, job.Schedule())
	router.AssertExpectations(t)
}

func TestDailyDigestJob_ExecuteFailure(t *testing.T) {
	router := &mockRouter{}
	job := NewDailyDigestJob(router, Daily)

	router.On("RouteTick", mock.Anything, mock.Anything).
		Return(nil, services.ErrActiveUsersUnavailable).Once()

	err := job.Execute(context.Background())
	assert.ErrorIs(t, err, services.ErrActiveUsersUnavailable)
}

func TestPendingSweepJob_Execute(t *testing.T) {
	router := &mockRouter{}
	job := NewPendingSweepJob(router, Hourly)

	router.On("SweepPending", mock.Anything).
		Return([]*services.PipelineRun{{State: services.RunStateDone}, {State: services.RunStateFailed}}, nil).Once()
	require.NoError(t, job.Execute(context.Background()))

	router.On("SweepPending", mock.Anything).Return(nil, errors.New("db down")).Once()
	assert.Error(t, job.Execute(context.Background()))

	assert.Equal(t, Hourly, job.Schedule())
	router.AssertExpectations(t)
}

type mockTrendRunner struct {
	mock.Mock
}

func (m *mockTrendRunner) RunWeekly(ctx context.Context, asOf time.Time) (*services.TrendReport, error) {
	args := m.Called(ctx, asOf)
	report, _ := args.Get(0).(*services.TrendReport)
	return report, args.Error(1)
}

func TestWeeklyTrendJob_Execute(t *testing.T) {
	runner := &mockTrendRunner{}
	job := NewWeeklyTrendJob(runner, Weekly)
	job.now = func() time.Time { return time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC) }

	runner.On("RunWeekly", mock.Anything, job.now()).
		Return(&services.TrendReport{Users: 4, Written: 3, Skipped: 1}, nil).Once()
	require.NoError(t, job.Execute(context.Background()))

	runner.On("RunWeekly", mock.Anything, job.now()).
		Return(&services.TrendReport{Users: 2, Failed: 2}, nil).Once()
	require.NoError(t, job.Execute(context.Background()), "per-user failures are only logged")

	assert.Equal(t, "WeeklyHealthTrend", job.Name())
	assert.Equal(t, Weekly, job.Schedule())
	runner.AssertExpectations(t)
}

func TestWeeklyTrendJob_ExecuteFailure(t *testing.T) {
	runner := &mockTrendRunner{}
	job := NewWeeklyTrendJob(runner, Weekly)

	runner.On("RunWeekly", mock.Anything, mock.Anything).
		Return(nil, services.ErrActiveUsersUnavailable).Once()

	assert.ErrorIs(t, job.Execute(context.Background()), services.ErrActiveUsersUnavailable)
}

func TestRegisterAllJobs(t *testing.T) {
	scheduler := services.NewSchedulerService(services.Slots{
		DailyAt:  services.ClockTime(6, 0),
		WeeklyOn: time.Sunday,
		WeeklyAt: services.ClockTime(8, 0),
	})
	svc := services.Service{}

	require.NoError(t, RegisterAllJobs(scheduler, config.Config{SchedulerEnabled: false}, svc))
	assert.Empty(t, scheduler.Registered())

	require.NoError(t, RegisterAllJobs(scheduler, config.Config{SchedulerEnabled: true}, svc))
	assert.Equal(t, []string{"DailyDigest", "PendingAnalysisSweep", "WeeklyHealthTrend"}, scheduler.Registered())
}
