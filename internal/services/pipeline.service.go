package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"healthcompanion/internal/events"
	"healthcompanion/internal/metrics"
	"healthcompanion/internal/models"
	"healthcompanion/internal/repositories"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RunState string

const (
	RunStateReceived       RunState = "received"
	RunStateAnalyzing      RunState = "analyzing"
	RunStateAnalyzed       RunState = "analyzed"
	RunStateAnalysisFailed RunState = "analysis_failed"
	RunStateInsighted      RunState = "insighted"
	RunStateAggregated     RunState = "aggregated"
	RunStateNotified       RunState = "notified"
	RunStateNotifySkipped  RunState = "notify_skipped"
	RunStateDone           RunState = "done"
	RunStateFailed         RunState = "failed"
)

type StageOutcome string

const (
	StageSucceeded StageOutcome = "succeeded"
	StageFailed    StageOutcome = "failed"
	StageSkipped   StageOutcome = "skipped"
)

type StageReport struct {
	Stage    Stage         `json:"stage"`
	Outcome  StageOutcome  `json:"outcome"`
	Attempts int           `json:"attempts,omitempty"`
	Duration time.Duration `json:"duration"`
	Reason   string        `json:"reason,omitempty"`
}

// PipelineRun is the record of one user's pass through the pipeline. Runs
// never share state, so one failing leaves every other untouched.
type PipelineRun struct {
	ID           uuid.UUID      `json:"id"`
	UserID       string         `json:"userId"`
	Date         time.Time      `json:"date"`
	Trigger      models.Trigger `json:"trigger"`
	ArtifactRef  string         `json:"artifactRef,omitempty"`
	State        RunState       `json:"state"`
	Stages       []StageReport  `json:"stages"`
	Alerts       []models.Alert `json:"alerts"`
	Notification *NotifyResult  `json:"notification,omitempty"`
	Err          error          `json:"-"`
}

func (r *PipelineRun) Failed() bool {
	return r.State == RunStateFailed
}

func (r *PipelineRun) Notified() bool {
	return r.Notification != nil && r.Notification.Sent()
}

// Outcome returns the recorded outcome of stage, or "" when it never ran.
func (r *PipelineRun) Outcome(stage Stage) StageOutcome {
	for i := len(r.Stages) - 1; i >= 0; i-- {
		if r.Stages[i].Stage == stage {
			return r.Stages[i].Outcome
		}
	}
	return ""
}

// Transactor runs fn inside one database transaction.
type Transactor interface {
	Execute(ctx context.Context, fn func(context.Context, *gorm.DB) error) error
}

type PipelineDeps struct {
	Uploads     repositories.UploadEventRepository
	Analyses    repositories.AnalysisResultRepository
	Transactor  Transactor
	Preferences *PreferenceService
	Analyzer    ContentAnalyzer
	Retry       *RetryScheduler
	Insights    *InsightService
	Alerts      *AlertService
	Aggregator  *SummaryAggregator
	Notifier    *NotificationService
	Publisher   events.Publisher
	Metrics     metrics.MetricsCollector
	// RunDeadline bounds one run end to end.
	RunDeadline time.Duration
}

type PipelineService struct {
	uploads     repositories.UploadEventRepository
	analyses    repositories.AnalysisResultRepository
	transactor  Transactor
	preferences *PreferenceService
	analyzer    ContentAnalyzer
	retry       *RetryScheduler
	insights    *InsightService
	alerts      *AlertService
	aggregator  *SummaryAggregator
	notifier    *NotificationService
	publisher   events.Publisher
	metrics     metrics.MetricsCollector
	deadline    time.Duration
	artifacts   *keyedMutex
	now         func() time.Time
	log         logger.Logger
}

func NewPipelineService(deps PipelineDeps) *PipelineService {
	return &PipelineService{
		uploads:     deps.Uploads,
		analyses:    deps.Analyses,
		transactor:  deps.Transactor,
		preferences: deps.Preferences,
		analyzer:    deps.Analyzer,
		retry:       deps.Retry,
		insights:    deps.Insights,
		alerts:      deps.Alerts,
		aggregator:  deps.Aggregator,
		notifier:    deps.Notifier,
		publisher:   deps.Publisher,
		metrics:     deps.Metrics,
		deadline:    deps.RunDeadline,
		artifacts:   newKeyedMutex(),
		now:         time.Now,
		log:         logger.New("pipelineService"),
	}
}

// RunDeadline is the sum of every stage timeout and retry wait a run can
// spend, plus slack for the store round trips.
func RunDeadline(analyzer RetryPolicy, analyzerTimeout, notifyTimeout, notifyWait, slack time.Duration) time.Duration {
	analyze := time.Duration(analyzer.MaxAttempts)*analyzerTimeout + analyzer.TotalWait()
	notify := notificationAttempts*notifyTimeout + notifyWait
	return analyze + notify + slack
}

// Ingest records an upload and its pending analysis atomically. Replayed
// events are reported as not new and change nothing.
func (s *PipelineService) Ingest(ctx context.Context, event *models.UploadEvent) (bool, error) {
	log := s.log.TraceFromContext(ctx).Function("Ingest")

	isNew := false
	err := s.transactor.Execute(ctx, func(ctx context.Context, tx *gorm.DB) error {
		recorded, err := s.uploads.Record(ctx, tx, event)
		if err != nil {
			return err
		}
		if !recorded {
			return nil
		}
		isNew = true
		_, err = s.analyses.CreatePending(ctx, tx, models.NewPendingAnalysis(*event))
		return err
	})
	if err != nil {
		return false, log.Err("failed to ingest upload", err, "artifactRef", event.ArtifactRef)
	}

	s.metrics.RecordUpload(string(event.Kind), !isNew)
	if isNew {
		s.publish(ctx, event.UserID, events.UPLOAD_RECEIVED, map[string]any{
			"artifactRef": event.ArtifactRef,
			"kind":        event.Kind,
		})
	}

	log.Info("upload ingested", "artifactRef", event.ArtifactRef, "new", isNew)
	return isNew, nil
}

// RunUpload drives one upload through analysis, insight, alerting,
// aggregation and the conditional notification.
func (s *PipelineService) RunUpload(ctx context.Context, event models.UploadEvent) *PipelineRun {
	run := s.newRun(event.UserID, event.Date(), models.TriggerUpload)
	run.ArtifactRef = event.ArtifactRef

	ctx, cancel := s.runContext(ctx, run)
	defer cancel()
	defer s.finish(ctx, run)

	unlock := s.artifacts.Lock(event.ArtifactRef)
	defer unlock()

	log := s.log.TraceFromContext(ctx).Function("RunUpload")
	log.Info("run started", "userID", run.UserID, "artifactRef", run.ArtifactRef)

	run.record(StageReceive, StageSucceeded, time.Now(), 0, "")

	prefs, ok := s.resolvePreferences(ctx, run)
	if !ok {
		return run
	}

	result, ok := s.analyze(ctx, run, event)
	if !ok {
		return run
	}

	history := s.history(ctx, run)

	started := time.Now()
	insight := s.insights.Generate(*result, run.Date, history)
	run.record(StageInsight, StageSucceeded, started, 0, "")
	run.State = RunStateInsighted

	insight = s.evaluate(run, insight, prefs)

	summary, ok := s.aggregate(ctx, run, insight)
	if !ok {
		return run
	}
	s.markUpload(ctx, event.ArtifactRef, models.UploadStatusProcessed, nil)

	if !insight.HasAlerts() {
		run.record(StageNotify, StageSkipped, time.Now(), 0, "no alerts")
		run.State = RunStateNotifySkipped
		return run
	}

	s.notify(ctx, run, summary, prefs.ChannelAddress, false)
	return run
}

// RunDigest is the schedule path for one active user on date.
func (s *PipelineService) RunDigest(ctx context.Context, user models.ActiveUser, date time.Time, force bool) *PipelineRun {
	run := s.newRun(user.UserID, date, models.TriggerSchedule)

	ctx, cancel := s.runContext(ctx, run)
	defer cancel()
	defer s.finish(ctx, run)

	log := s.log.TraceFromContext(ctx).Function("RunDigest")
	log.Info("run started", "userID", run.UserID, "date", models.FormatDate(run.Date))

	run.record(StageReceive, StageSucceeded, time.Now(), 0, "")

	prefs, ok := s.resolvePreferences(ctx, run)
	if !ok {
		return run
	}

	history := s.history(ctx, run)

	started := time.Now()
	insight := s.insights.GenerateDigest(run.UserID, run.Date, history)
	run.record(StageInsight, StageSucceeded, started, 0, "")
	run.State = RunStateInsighted

	if len(insight.Findings) == 0 && len(insight.Recommendations) == 0 {
		run.record(StageAlert, StageSkipped, time.Now(), 0, "no activity in window")
		run.record(StageAggregate, StageSkipped, time.Now(), 0, "no activity in window")
		run.record(StageNotify, StageSkipped, time.Now(), 0, "no activity in window")
		run.State = RunStateNotifySkipped
		return run
	}

	insight = s.evaluate(run, insight, prefs)

	summary, ok := s.aggregate(ctx, run, insight)
	if !ok {
		return run
	}

	if !insight.HasAlerts() && !prefs.DigestOptIn {
		run.record(StageNotify, StageSkipped, time.Now(), 0, "no alerts and digest not requested")
		run.State = RunStateNotifySkipped
		return run
	}

	address := prefs.ChannelAddress
	if address == "" {
		address = user.ChannelAddress
	}
	s.notify(ctx, run, summary, address, force)
	return run
}

func (s *PipelineService) newRun(userID string, date time.Time, trigger models.Trigger) *PipelineRun {
	return &PipelineRun{
		ID:      uuid.New(),
		UserID:  userID,
		Date:    models.DateOf(date),
		Trigger: trigger,
		State:   RunStateReceived,
		Stages:  make([]StageReport, 0, 8),
		Alerts:  []models.Alert{},
	}
}

// runContext tags logs with the run id and applies the run deadline.
func (s *PipelineService) runContext(ctx context.Context, run *PipelineRun) (context.Context, context.CancelFunc) {
	ctx = logger.ContextWithTraceID(ctx, run.ID.String())
	if s.deadline <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.deadline)
}

func (s *PipelineService) resolvePreferences(ctx context.Context, run *PipelineRun) (models.UserPreferences, bool) {
	started := time.Now()
	prefs, err := s.preferences.GetUserPreferences(ctx, run.UserID)
	if err != nil {
		s.fail(ctx, run, StagePreferences, started, 0, err)
		return models.UserPreferences{}, false
	}
	run.record(StagePreferences, StageSucceeded, started, 0, "")
	return prefs, true
}

func (s *PipelineService) analyze(
	ctx context.Context,
	run *PipelineRun,
	event models.UploadEvent,
) (*models.AnalysisResult, bool) {
	log := s.log.TraceFromContext(ctx).Function("analyze")
	started := time.Now()
	run.State = RunStateAnalyzing

	result, err := s.analyses.GetByArtifact(ctx, event.ArtifactRef)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		result = models.NewPendingAnalysis(event)
		if _, err := s.analyses.CreatePending(ctx, nil, result); err != nil {
			s.fail(ctx, run, StageAnalyze, started, 0, Transient(err))
			return nil, false
		}
	case err != nil:
		s.fail(ctx, run, StageAnalyze, started, 0, Transient(err))
		return nil, false
	case result.IsCompleted():
		log.Info("analysis already completed, reusing result", "artifactRef", event.ArtifactRef)
		run.record(StageAnalyze, StageSkipped, started, 0, "already analyzed")
		run.State = RunStateAnalyzed
		return result, true
	case result.Status == models.AnalysisStatusFailed && !result.Retryable:
		run.State = RunStateAnalysisFailed
		s.fail(ctx, run, StageAnalyze, started, 0, errors.New(result.ErrorMessage()))
		return nil, false
	}

	var output *AnalysisOutput
	attempts, err := s.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		out, err := s.analyzer.AnalyzeContent(ctx, event)
		switch {
		case err == nil:
			s.metrics.RecordAnalyzerAttempt("success")
			output = out
		case IsRetryable(err):
			s.metrics.RecordAnalyzerAttempt("transient")
		default:
			s.metrics.RecordAnalyzerAttempt("permanent")
		}
		return err
	})
	result.Attempts += attempts

	if err != nil {
		run.State = RunStateAnalysisFailed
		result.Fail(err.Error(), IsRetryable(err))
		if saveErr := s.analyses.Save(ctx, result); saveErr != nil {
			log.Er("failed to persist analysis failure", saveErr, "artifactRef", event.ArtifactRef)
		}
		detail := err.Error()
		s.markUpload(ctx, event.ArtifactRef, models.UploadStatusFailed, &detail)
		s.metrics.RecordAnalysis(string(models.AnalysisStatusFailed), time.Since(started))
		s.publish(ctx, run.UserID, events.ANALYSIS_FAILED, map[string]any{
			"artifactRef": event.ArtifactRef,
			"attempts":    attempts,
			"retryable":   result.Retryable,
			"error":       detail,
		})
		s.fail(ctx, run, StageAnalyze, started, attempts, err)
		return nil, false
	}

	result.Complete(output.Findings, output.Summary, s.now().UTC())
	if err := s.analyses.Save(ctx, result); err != nil {
		s.fail(ctx, run, StageAnalyze, started, attempts, Transient(err))
		return nil, false
	}

	s.metrics.RecordAnalysis(string(models.AnalysisStatusCompleted), time.Since(started))
	s.publish(ctx, run.UserID, events.ANALYSIS_COMPLETED, map[string]any{
		"artifactRef": event.ArtifactRef,
		"findings":    len(result.Findings),
		"attempts":    attempts,
	})

	run.record(StageAnalyze, StageSucceeded, started, attempts, "")
	run.State = RunStateAnalyzed
	return result, true
}

// history failures are not fatal: insights are still generated without
// trend recommendations.
func (s *PipelineService) history(ctx context.Context, run *PipelineRun) []*models.DailySummary {
	started := time.Now()
	from, to := s.insights.HistoryWindow(run.Date)
	history, err := s.aggregator.History(ctx, run.UserID, from, to)
	if err != nil {
		s.log.TraceFromContext(ctx).Function("history").Er("failed to load history, continuing without trends", err,
			"userID", run.UserID)
		run.record(StageHistory, StageFailed, started, 0, err.Error())
		return nil
	}
	run.record(StageHistory, StageSucceeded, started, 0, "")
	return history
}

func (s *PipelineService) evaluate(run *PipelineRun, insight models.Insight, prefs models.UserPreferences) models.Insight {
	started := time.Now()
	alerts := s.alerts.Evaluate(insight, prefs)
	for _, alert := range alerts {
		s.metrics.RecordAlert(alert.Category)
	}
	run.Alerts = alerts
	run.record(StageAlert, StageSucceeded, started, 0, "")
	return insight.WithAlerts(alerts)
}

func (s *PipelineService) aggregate(
	ctx context.Context,
	run *PipelineRun,
	insight models.Insight,
) (*models.DailySummary, bool) {
	started := time.Now()
	summary, err := s.aggregator.UpsertDailySummary(ctx, insight)
	if err != nil {
		s.fail(ctx, run, StageAggregate, started, 0, err)
		return nil, false
	}

	run.record(StageAggregate, StageSucceeded, started, 0, "")
	run.State = RunStateAggregated
	s.publish(ctx, run.UserID, events.SUMMARY_UPDATED, map[string]any{
		"date":    models.FormatDate(summary.Date),
		"version": summary.Version,
		"entries": len(summary.Insights()),
		"alerts":  summary.AlertCount(),
	})
	return summary, true
}

func (s *PipelineService) notify(
	ctx context.Context,
	run *PipelineRun,
	summary *models.DailySummary,
	address string,
	force bool,
) {
	started := time.Now()
	request := models.NotificationRequest{
		UserID:        run.UserID,
		Date:          run.Date,
		Trigger:       run.Trigger,
		Address:       address,
		CorrelationID: models.CorrelationID(run.UserID, run.Date, run.Trigger),
		Force:         force,
	}

	result, err := s.notifier.Notify(ctx, summary, request)
	run.Notification = &result
	if err != nil {
		s.fail(ctx, run, StageNotify, started, result.Attempts, err)
		return
	}

	if !result.Sent() {
		run.record(StageNotify, StageSkipped, started, result.Attempts, result.Reason)
		run.State = RunStateNotifySkipped
		return
	}

	run.record(StageNotify, StageSucceeded, started, result.Attempts, "")
	run.State = RunStateNotified
	s.publish(ctx, run.UserID, events.NOTIFICATION_SENT, map[string]any{
		"date":          models.FormatDate(run.Date),
		"trigger":       run.Trigger,
		"correlationId": request.CorrelationID,
	})
}

// fail moves the run to its terminal Failed state. Work already merged
// stays merged.
func (s *PipelineService) fail(
	ctx context.Context,
	run *PipelineRun,
	stage Stage,
	started time.Time,
	attempts int,
	cause error,
) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(cause, ErrRunDeadline) {
		cause = fmt.Errorf("%w: %w", ErrRunDeadline, cause)
	}
	run.record(stage, StageFailed, started, attempts, cause.Error())
	run.State = RunStateFailed
	run.Err = &RunError{UserID: run.UserID, Date: run.Date, Stage: stage, Cause: cause}
}

func (s *PipelineService) finish(ctx context.Context, run *PipelineRun) {
	log := s.log.TraceFromContext(ctx).Function("finish")

	for _, stage := range run.Stages {
		s.metrics.RecordStage(string(stage.Stage), string(stage.Outcome), stage.Duration)
	}

	if run.Failed() {
		s.metrics.RecordRun(string(run.Trigger), string(RunStateFailed))
		log.Er("run failed", run.Err, "userID", run.UserID, "date", models.FormatDate(run.Date))
		s.publish(ctx, run.UserID, events.RUN_FAILED, map[string]any{
			"runId":   run.ID.String(),
			"trigger": run.Trigger,
			"error":   run.Err.Error(),
		})
		return
	}

	run.State = RunStateDone
	s.metrics.RecordRun(string(run.Trigger), string(RunStateDone))
	if run.Trigger == models.TriggerSchedule {
		s.publish(ctx, run.UserID, events.DIGEST_COMPLETED, map[string]any{
			"runId":    run.ID.String(),
			"date":     models.FormatDate(run.Date),
			"alerts":   len(run.Alerts),
			"notified": run.Notified(),
		})
	}
	log.Info("run completed", "userID", run.UserID, "alerts", len(run.Alerts), "notified", run.Notified())
}

func (s *PipelineService) markUpload(ctx context.Context, artifactRef string, status models.UploadStatus, detail *string) {
	if err := s.uploads.MarkStatus(ctx, artifactRef, status, detail); err != nil {
		s.log.TraceFromContext(ctx).Function("markUpload").Er("failed to update upload status", err,
			"artifactRef", artifactRef,
			"status", status)
	}
}

func (s *PipelineService) publish(ctx context.Context, userID string, messageType events.MessageType, data map[string]any) {
	if s.publisher == nil {
		return
	}
	event := events.Event{
		Type:   messageType,
		UserID: userID,
		Data:   data,
	}
	if err := s.publisher.Publish(events.PIPELINE_CHANNEL, event); err != nil {
		s.log.TraceFromContext(ctx).Function("publish").Warn("failed to publish pipeline event",
			"type", messageType,
			"error", err)
	}
}

func (r *PipelineRun) record(stage Stage, outcome StageOutcome, started time.Time, attempts int, reason string) {
	r.Stages = append(r.Stages, StageReport{
		Stage:    stage,
		Outcome:  outcome,
		Attempts: attempts,
		Duration: time.Since(started),
		Reason:   reason,
	})
}
