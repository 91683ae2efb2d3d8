package jobs

import (
	"healthcompanion/config"
	"healthcompanion/internal/services"

	logger "github.com/Bparsons0904/goLogger"
)

const (
	Daily  = services.Daily
	Hourly = services.Hourly
	Weekly = services.Weekly
)

func RegisterAllJobs(
	schedulerService *services.SchedulerService,
	config config.Config,
	services services.Service,
) error {
	log := logger.New("jobs").Function("RegisterAllJobs")

	if !config.SchedulerEnabled {
		log.Info("Scheduler disabled, skipping job registration")
		return nil
	}

	log.Info("Registering jobs")

	dailyDigestJob := NewDailyDigestJob(services.Router, Daily)
	if err := schedulerService.AddJob(dailyDigestJob); err != nil {
		return log.Err("failed to register daily digest job", err)
	}
	log.Info("Registered daily digest job", "at", schedulerService.Slots().DailyAt)

	pendingSweepJob := NewPendingSweepJob(services.Router, Hourly)
	if err := schedulerService.AddJob(pendingSweepJob); err != nil {
		return log.Err("failed to register pending sweep job", err)
	}
	log.Info("Registered pending sweep job", "schedule", "hourly")

	weeklyTrendJob := NewWeeklyTrendJob(services.Trends, Weekly)
	if err := schedulerService.AddJob(weeklyTrendJob); err != nil {
		return log.Err("failed to register weekly trend job", err)
	}
	slots := schedulerService.Slots()
	log.Info("Registered weekly trend job", "on", slots.WeeklyOn, "at", slots.WeeklyAt)

	log.Info("Jobs registered", "jobs", schedulerService.Registered())
	return nil
}
