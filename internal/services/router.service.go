package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"healthcompanion/internal/constants"
	"healthcompanion/internal/database"
	"healthcompanion/internal/metrics"
	"healthcompanion/internal/models"
	"healthcompanion/internal/repositories"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/valkey-io/valkey-go"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSweepLimit = 100
)

var ErrUnknownEvent = errors.New("unknown pipeline event")

// ScheduleTick starts the daily digest fan-out for Date. Force bypasses the
// cross-replica tick lock and the once-per-day notification guard.
type ScheduleTick struct {
	Date  time.Time `json:"date"`
	Force bool      `json:"force"`
}

type TickReport struct {
	Date     time.Time      `json:"date"`
	Users    int            `json:"users"`
	Failed   int            `json:"failed"`
	Swept    int            `json:"swept"`
	Skipped  bool           `json:"skipped"`
	Runs     []*PipelineRun `json:"runs"`
	Duration time.Duration  `json:"duration"`
}

// TickLock makes sure only one replica fans out a given day. Release hands
// the day back after an aborted tick so a later tick can retry it.
type TickLock interface {
	Acquire(ctx context.Context, date time.Time) (bool, error)
	Release(ctx context.Context, date time.Time) error
}

type CacheTickLock struct {
	client valkey.Client
	ttl    time.Duration
	owner  string
}

func NewCacheTickLock(client valkey.Client, ttl time.Duration) *CacheTickLock {
	owner, err := os.Hostname()
	if err != nil || owner == "" {
		owner = "unknown"
	}
	return &CacheTickLock{client: client, ttl: ttl, owner: owner}
}

func (l *CacheTickLock) Acquire(ctx context.Context, date time.Time) (bool, error) {
	return database.NewCacheBuilder(l.client, models.FormatDate(date)).
		WithHash(constants.DigestTickLockPrefix).
		WithValue(l.owner).
		WithTTL(l.ttl).
		WithContext(ctx).
		SetNX()
}

func (l *CacheTickLock) Release(ctx context.Context, date time.Time) error {
	return database.NewCacheBuilder(l.client, models.FormatDate(date)).
		WithHash(constants.DigestTickLockPrefix).
		WithContext(ctx).
		Delete()
}

type RouterConfig struct {
	WorkerPoolSize int
	SweepAge       time.Duration
	SweepLimit     int
}

// EventRouter turns incoming events into pipeline runs: one run per upload,
// one run per active user per tick.
type EventRouter struct {
	pipeline    *PipelineService
	preferences *PreferenceService
	uploads     repositories.UploadEventRepository
	tickLock    TickLock
	workers     int
	sweepAge    time.Duration
	sweepLimit  int
	metrics     metrics.MetricsCollector
	now         func() time.Time
	log         logger.Logger
}

func NewEventRouter(
	pipeline *PipelineService,
	preferences *PreferenceService,
	uploads repositories.UploadEventRepository,
	tickLock TickLock,
	config RouterConfig,
	collector metrics.MetricsCollector,
) *EventRouter {
	if config.WorkerPoolSize < 1 {
		config.WorkerPoolSize = 1
	}
	if config.SweepLimit < 1 {
		config.SweepLimit = defaultSweepLimit
	}
	return &EventRouter{
		pipeline:    pipeline,
		preferences: preferences,
		uploads:     uploads,
		tickLock:    tickLock,
		workers:     config.WorkerPoolSize,
		sweepAge:    config.SweepAge,
		sweepLimit:  config.SweepLimit,
		metrics:     collector,
		now:         time.Now,
		log:         logger.New("eventRouter"),
	}
}

// Route dispatches an UploadEvent or a ScheduleTick.
func (r *EventRouter) Route(ctx context.Context, event any) ([]*PipelineRun, error) {
	switch e := event.(type) {
	case *models.UploadEvent:
		run, err := r.RouteUpload(ctx, e)
		if err != nil || run == nil {
			return nil, err
		}
		return []*PipelineRun{run}, nil
	case models.UploadEvent:
		return r.Route(ctx, &e)
	case ScheduleTick:
		report, err := r.RouteTick(ctx, e)
		if err != nil {
			return nil, err
		}
		return report.Runs, nil
	case *ScheduleTick:
		return r.Route(ctx, *e)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, event)
	}
}

// RouteUpload records the upload and runs it. A replayed upload that was
// already processed or failed produces no run.
func (r *EventRouter) RouteUpload(ctx context.Context, event *models.UploadEvent) (*PipelineRun, error) {
	log := r.log.TraceFromContext(ctx).Function("RouteUpload")

	isNew, err := r.pipeline.Ingest(ctx, event)
	if err != nil {
		return nil, &RunError{UserID: event.UserID, Date: event.Date(), Stage: StageReceive, Cause: err}
	}

	target := *event
	if !isNew {
		stored, err := r.uploads.GetByArtifact(ctx, event.ArtifactRef)
		if err != nil {
			return nil, &RunError{UserID: event.UserID, Date: event.Date(), Stage: StageReceive, Cause: err}
		}
		if stored.Status != models.UploadStatusReceived {
			log.Info("duplicate upload ignored", "artifactRef", event.ArtifactRef, "status", stored.Status)
			return nil, nil
		}
		target = *stored
	}

	return r.pipeline.RunUpload(ctx, target), nil
}

// RouteTick sweeps stale pending uploads and then fans the digest out over
// every active user. When the active users cannot be listed nothing is
// fanned out and the day's lock is released for a later tick.
func (r *EventRouter) RouteTick(ctx context.Context, tick ScheduleTick) (*TickReport, error) {
	log := r.log.TraceFromContext(ctx).Function("RouteTick")
	started := time.Now()

	date := tick.Date
	if date.IsZero() {
		date = r.now()
	}
	report := &TickReport{Date: models.DateOf(date), Runs: []*PipelineRun{}}

	locked := false
	if r.tickLock != nil && !tick.Force {
		acquired, err := r.tickLock.Acquire(ctx, report.Date)
		switch {
		case err != nil:
			log.Warn("tick lock unavailable, continuing without it", "date", models.FormatDate(report.Date), "error", err)
		case !acquired:
			log.Info("tick already handled by another replica", "date", models.FormatDate(report.Date))
			report.Skipped = true
			return report, nil
		default:
			locked = true
		}
	}

	swept, err := r.SweepPending(ctx)
	if err != nil {
		log.Er("pending sweep failed, continuing with digest", err)
	}
	report.Swept = len(swept)

	users, err := r.preferences.ListActiveUsers(ctx, report.Date)
	if err != nil {
		r.metrics.RecordTick(0, 0, time.Since(started))
		if locked {
			if releaseErr := r.tickLock.Release(ctx, report.Date); releaseErr != nil {
				log.Er("failed to release tick lock", releaseErr, "date", models.FormatDate(report.Date))
			}
		}
		return report, log.Err("tick aborted, active users unavailable", err,
			"date", models.FormatDate(report.Date))
	}
	report.Users = len(users)

	runs := make([]*PipelineRun, len(users))
	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, user := range users {
		g.Go(func() error {
			runs[i] = r.pipeline.RunDigest(ctx, user, report.Date, tick.Force)
			return nil
		})
	}
	_ = g.Wait()

	for _, run := range runs {
		if run.Failed() {
			report.Failed++
		}
	}
	report.Runs = runs
	report.Duration = time.Since(started)
	r.metrics.RecordTick(report.Users, report.Failed, report.Duration)

	log.Info("tick completed",
		"date", models.FormatDate(report.Date),
		"users", report.Users,
		"failed", report.Failed,
		"swept", report.Swept,
		"duration", report.Duration)
	return report, nil
}

// SweepPending re-drives uploads that were recorded but never finished,
// e.g. after a crash mid-run.
func (r *EventRouter) SweepPending(ctx context.Context) ([]*PipelineRun, error) {
	log := r.log.TraceFromContext(ctx).Function("SweepPending")

	pending, err := r.uploads.ListPending(ctx, r.now().Add(-r.sweepAge), r.sweepLimit)
	if err != nil {
		return nil, log.Err("failed to list pending uploads", err)
	}
	if len(pending) == 0 {
		return []*PipelineRun{}, nil
	}

	runs := make([]*PipelineRun, len(pending))
	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, event := range pending {
		g.Go(func() error {
			runs[i] = r.pipeline.RunUpload(ctx, *event)
			return nil
		})
	}
	_ = g.Wait()

	log.Info("pending uploads re-driven", "count", len(runs))
	return runs, nil
}
