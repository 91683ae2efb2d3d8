package services

import (
	"context"
	"time"

	"healthcompanion/config"
	"healthcompanion/internal/constants"
	"healthcompanion/internal/database"
	"healthcompanion/internal/events"
	"healthcompanion/internal/metrics"
	"healthcompanion/internal/repositories"
)

const (
	runDeadlineSlack = 30 * time.Second
)

type Service struct {
	Transaction *TransactionService
	Scheduler   *SchedulerService
	Preferences *PreferenceService
	Analyzer    ContentAnalyzer
	Insights    *InsightService
	Alerts      *AlertService
	Aggregator  *SummaryAggregator
	Notifier    *NotificationService
	Pipeline    *PipelineService
	Router      *EventRouter
	Trends      *TrendService
}

func New(
	ctx context.Context,
	db database.DB,
	config config.Config,
	eventBus *events.EventBus,
	collector metrics.MetricsCollector,
) (Service, error) {
	transactionService := NewTransactionService(db)
	repos := repositories.New(db)

	geminiClient, err := NewGeminiClient(ctx, config.GeminiAPIKey)
	if err != nil {
		return Service{}, err
	}
	analyzerTimeout := config.AnalyzerTimeout()
	analyzer := NewGeminiAnalyzer(geminiClient.Models, NewFileArtifactStore(config.ArtifactRoot), GeminiAnalyzerConfig{
		Model:             config.GeminiModel,
		Timeout:           analyzerTimeout,
		RequestsPerMinute: config.AnalyzerRequestsPerMinute,
	})

	analyzerPolicy := RetryPolicy{
		MaxAttempts: config.AnalyzerMaxAttempts,
		Wait:        config.AnalyzerRetryWait(),
	}
	notifyTimeout := config.NotifyTimeout()
	notifyWait := config.NotifyRetryWait()

	preferenceService := NewPreferenceService(repos.UserPreferences, repos.UploadEvent, config.ActiveLookbackDays)
	insightService := NewInsightService(config.HistoryLookbackDays).
		WithTrendWindow(config.TrendLookbackDays, config.TrendMinDataPoints)
	alertService := NewAlertService()
	aggregator := NewSummaryAggregator(repos.DailySummary, config.MergeMaxAttempts, collector)
	notifier := NewNotificationService(
		NewQueueSender(db.Cache.Queue, config.NotificationQueue),
		aggregator,
		repos.NotificationLog,
		notifyTimeout,
		notifyWait,
		ContextSleep,
		collector,
	)

	var publisher events.Publisher
	if eventBus != nil {
		publisher = eventBus
	}

	pipeline := NewPipelineService(PipelineDeps{
		Uploads:     repos.UploadEvent,
		Analyses:    repos.AnalysisResult,
		Transactor:  transactionService,
		Preferences: preferenceService,
		Analyzer:    analyzer,
		Retry:       NewRetryScheduler(analyzerPolicy, ContextSleep),
		Insights:    insightService,
		Alerts:      alertService,
		Aggregator:  aggregator,
		Notifier:    notifier,
		Publisher:   publisher,
		Metrics:     collector,
		RunDeadline: RunDeadline(analyzerPolicy, analyzerTimeout, notifyTimeout, notifyWait, runDeadlineSlack),
	})

	var tickLock TickLock
	if db.Cache.General != nil {
		tickLock = NewCacheTickLock(db.Cache.General, constants.DigestTickLockExpiry)
	}

	router := NewEventRouter(pipeline, preferenceService, repos.UploadEvent, tickLock, RouterConfig{
		WorkerPoolSize: config.WorkerPoolSize,
		SweepAge:       config.PendingSweepAge(),
	}, collector)

	trends := NewTrendService(
		preferenceService,
		aggregator,
		insightService,
		repos.HealthTrend,
		publisher,
		config.WorkerPoolSize,
	)

	scheduler := NewSchedulerService(Slots{
		DailyAt:  ClockTime(config.DigestHour, config.DigestMinute),
		WeeklyOn: time.Weekday(config.TrendWeekday),
		WeeklyAt: ClockTime(config.TrendHour, config.TrendMinute),
	})

	return Service{
		Transaction: transactionService,
		Scheduler:   scheduler,
		Preferences: preferenceService,
		Analyzer:    analyzer,
		Insights:    insightService,
		Alerts:      alertService,
		Aggregator:  aggregator,
		Notifier:    notifier,
		Pipeline:    pipeline,
		Router:      router,
		Trends:      trends,
	}, nil
}
