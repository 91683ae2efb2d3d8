package jobs

import (
	"context"
	"time"

	"healthcompanion/internal/services"

	logger "github.com/Bparsons0904/goLogger"
)

type TrendRunner interface {
	RunWeekly(ctx context.Context, asOf time.Time) (*services.TrendReport, error)
}

// WeeklyTrendJob writes the long-term trend for every active user.
type WeeklyTrendJob struct {
	runner   TrendRunner
	log      logger.Logger
	schedule services.Schedule
	now      func() time.Time
}

func NewWeeklyTrendJob(runner TrendRunner, schedule services.Schedule) *WeeklyTrendJob {
	return &WeeklyTrendJob{
		runner:   runner,
		log:      logger.New("weeklyTrendJob"),
		schedule: schedule,
		now:      time.Now,
	}
}

func (j *WeeklyTrendJob) Name() string {
	return "WeeklyHealthTrend"
}

func (j *WeeklyTrendJob) Execute(ctx context.Context) error {
	log := j.log.Function("Execute")

	asOf := j.now().UTC()
	report, err := j.runner.RunWeekly(ctx, asOf)
	if err != nil {
		return log.Err("weekly trend run failed", err)
	}

	if report.Failed > 0 {
		log.Warn("weekly trend run had failures", "failed", report.Failed, "users", report.Users)
	}
	return nil
}

func (j *WeeklyTrendJob) Schedule() services.Schedule {
	return j.schedule
}
