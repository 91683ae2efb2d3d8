package services

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/go-co-op/gocron"
)

type Schedule int

const (
	Hourly Schedule = iota
	Daily           // digest time, UTC
	Weekly          // trend weekday and time, UTC
)

func (s Schedule) String() string {
	switch s {
	case Hourly:
		return "hourly"
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	}
	return fmt.Sprintf("schedule(%d)", int(s))
}

type Job interface {
	Name() string
	Execute(ctx context.Context) error
	Schedule() Schedule
}

// Slots pins the wall-clock times, UTC, of Daily and Weekly jobs.
type Slots struct {
	DailyAt  string
	WeeklyOn time.Weekday
	WeeklyAt string
}

func ClockTime(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

// SchedulerService runs registered jobs on gocron. A job never overlaps a
// still-running instance of itself.
type SchedulerService struct {
	cron    *gocron.Scheduler
	slots   Slots
	names   []string
	log     logger.Logger
	started bool
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewSchedulerService(slots Slots) *SchedulerService {
	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()
	ctx, cancel := context.WithCancel(context.Background())

	return &SchedulerService{
		cron:   cron,
		slots:  slots,
		names:  []string{},
		log:    logger.New("scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *SchedulerService) Slots() Slots {
	return s.slots
}

// Registered lists job names in registration order.
func (s *SchedulerService) Registered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.names)
}

func (s *SchedulerService) every(schedule Schedule) (*gocron.Scheduler, error) {
	switch schedule {
	case Hourly:
		return s.cron.Every(1).Hour(), nil
	case Daily:
		return s.cron.Every(1).Day().At(s.slots.DailyAt), nil
	case Weekly:
		return s.cron.Every(1).Week().Weekday(s.slots.WeeklyOn).At(s.slots.WeeklyAt), nil
	}
	return nil, fmt.Errorf("unknown schedule %s", schedule)
}

func (s *SchedulerService) run(job Job) {
	log := s.log.Function("run")
	started := time.Now()

	if err := job.Execute(s.ctx); err != nil {
		_ = log.Err("scheduled job failed", err, "job", job.Name())
		return
	}
	log.Info("scheduled job finished", "job", job.Name(), "took", time.Since(started))
}

func (s *SchedulerService) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.log.Function("AddJob")

	slot, err := s.every(job.Schedule())
	if err == nil {
		_, err = slot.Tag(job.Name()).Do(func() { s.run(job) })
	}
	if err != nil {
		return log.Err("failed to register job", err, "job", job.Name(), "schedule", job.Schedule())
	}

	s.names = append(s.names, job.Name())
	log.Info("job registered", "job", job.Name(), "schedule", job.Schedule())
	return nil
}

// Start is a no-op when already running or when nothing is registered.
func (s *SchedulerService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.log.Function("Start")

	if s.started || len(s.names) == 0 {
		log.Info("scheduler not started", "running", s.started, "jobs", len(s.names))
		return nil
	}

	s.cron.StartAsync()
	s.started = true

	for _, job := range s.cron.Jobs() {
		log.Info("job scheduled", "tags", job.Tags(), "nextRun", job.NextRun())
	}
	return nil
}

// Stop cancels the context handed to running jobs and halts the scheduler.
func (s *SchedulerService) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.cancel()
	s.cron.Stop()
	s.started = false

	s.log.Function("Stop").Info("scheduler stopped")
	return nil
}
