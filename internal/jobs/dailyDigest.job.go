package jobs

import (
	"context"
	"time"

	"healthcompanion/internal/services"

	logger "github.com/Bparsons0904/goLogger"
)

type TickRouter interface {
	RouteTick(ctx context.Context, tick services.ScheduleTick) (*services.TickReport, error)
}

// DailyDigestJob emits the daily ScheduleTick.
type DailyDigestJob struct {
	router   TickRouter
	log      logger.Logger
	schedule services.Schedule
	now      func() time.Time
}

func NewDailyDigestJob(router TickRouter, schedule services.Schedule) *DailyDigestJob {
	log := logger.New("dailyDigestJob")
	log.Info("Creating new daily digest job", "schedule", schedule)

	return &DailyDigestJob{
		router:   router,
		log:      log,
		schedule: schedule,
		now:      time.Now,
	}
}

func (j *DailyDigestJob) Name() string {
	return "DailyDigest"
}

func (j *DailyDigestJob) Execute(ctx context.Context) error {
	log := j.log.Function("Execute")

	date := j.now().UTC()
	log.Info("Starting daily digest", "date", date.Format(time.DateOnly))

	report, err := j.router.RouteTick(ctx, services.ScheduleTick{Date: date})
	if err != nil {
		return log.Err("daily digest tick failed", err)
	}

	if report.Skipped {
		log.Info("Daily digest already handled elsewhere")
		return nil
	}

	log.Info("Daily digest completed",
		"users", report.Users,
		"failed", report.Failed,
		"swept", report.Swept)
	return nil
}

func (j *DailyDigestJob) Schedule() services.Schedule {
	return j.schedule
}
