package app

import (
	"context"
	"sync"
	"time"

	"healthcompanion/config"
	"healthcompanion/internal/database"
	"healthcompanion/internal/events"
	"healthcompanion/internal/handlers/middleware"
	"healthcompanion/internal/jobs"
	"healthcompanion/internal/metrics"
	"healthcompanion/internal/services"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const backgroundDrainTimeout = 30 * time.Second

type App struct {
	Database   database.DB
	Middleware middleware.Middleware
	EventBus   *events.EventBus
	Config     config.Config
	Registry   *prometheus.Registry
	Metrics    *metrics.Collector
	Services   services.Service

	background sync.WaitGroup
}

func New() (*App, error) {
	log := logger.New("app").Function("New")

	config, err := config.InitConfig()
	if err != nil {
		return &App{}, log.Err("failed to initialize config", err)
	}

	db, err := database.New(config)
	if err != nil {
		return &App{}, log.Err("failed to create database", err)
	}

	eventBus := events.New(db.Cache.Events)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	ctx := context.Background()
	svc, err := services.New(ctx, db, config, eventBus, collector)
	if err != nil {
		return &App{}, log.Err("failed to create services", err)
	}

	if err := jobs.RegisterAllJobs(svc.Scheduler, config, svc); err != nil {
		return &App{}, log.Err("failed to register jobs", err)
	}

	app := &App{
		Database:   db,
		Config:     config,
		Middleware: middleware.New(config),
		EventBus:   eventBus,
		Registry:   registry,
		Metrics:    collector,
		Services:   svc,
	}

	if err := app.validate(); err != nil {
		return &App{}, log.Err("failed to validate app", err)
	}

	if config.SchedulerEnabled {
		if err := svc.Scheduler.Start(ctx); err != nil {
			return &App{}, log.Err("failed to start scheduler", err)
		}
	}

	return app, nil
}

func (a *App) validate() error {
	log := logger.New("app").Function("validate")
	if a.Database.SQL == nil {
		return log.ErrMsg("database is nil")
	}

	if a.Config == (config.Config{}) {
		return log.ErrMsg("config is nil")
	}

	switch {
	case a.EventBus == nil:
		return log.ErrMsg("event bus is nil")
	case a.Registry == nil || a.Metrics == nil:
		return log.ErrMsg("metrics are nil")
	case a.Services.Scheduler == nil:
		return log.ErrMsg("scheduler is nil")
	case a.Services.Preferences == nil || a.Services.Aggregator == nil:
		return log.ErrMsg("pipeline services are nil")
	case a.Services.Pipeline == nil || a.Services.Router == nil || a.Services.Trends == nil:
		return log.ErrMsg("pipeline is nil")
	}

	return nil
}

// Dispatch runs fn in the background on a context detached from the caller's
// cancellation. Close waits for dispatched work to drain.
func (a *App) Dispatch(ctx context.Context, fn func(ctx context.Context)) {
	detached := context.WithoutCancel(ctx)
	a.background.Add(1)
	go func() {
		defer a.background.Done()
		fn(detached)
	}()
}

func (a *App) drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		a.background.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (a *App) Close() (err error) {
	log := logger.New("app").Function("Close")

	if a.Services.Scheduler != nil {
		if closeErr := a.Services.Scheduler.Stop(context.Background()); closeErr != nil {
			err = closeErr
		}
	}

	if !a.drain(backgroundDrainTimeout) {
		log.Warn("background runs still in flight at shutdown", "timeout", backgroundDrainTimeout)
	}

	if a.EventBus != nil {
		if closeErr := a.EventBus.Close(); closeErr != nil {
			err = closeErr
		}
	}

	if dbErr := a.Database.Close(); dbErr != nil {
		err = dbErr
	}

	return err
}
