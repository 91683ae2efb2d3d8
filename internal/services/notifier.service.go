package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"healthcompanion/internal/constants"
	"healthcompanion/internal/database"
	"healthcompanion/internal/metrics"
	"healthcompanion/internal/models"
	"healthcompanion/internal/repositories"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/valkey-io/valkey-go"
)

const notificationAttempts = 2

// NotificationSender hands a request to the external channel. A nil error
// means the channel confirmed the dispatch.
type NotificationSender interface {
	Send(ctx context.Context, request models.NotificationRequest) error
}

// QueueSender pushes requests onto a valkey list consumed by the delivery
// worker.
type QueueSender struct {
	client valkey.Client
	queue  string
	log    logger.Logger
}

func NewQueueSender(client valkey.Client, queue string) *QueueSender {
	if queue == "" {
		queue = constants.NotificationQueue
	}
	return &QueueSender{
		client: client,
		queue:  queue,
		log:    logger.New("queueSender"),
	}
}

func (s *QueueSender) Send(ctx context.Context, request models.NotificationRequest) error {
	log := s.log.TraceFromContext(ctx).Function("Send")

	if err := database.NewCacheBuilder(s.client, s.queue).
		WithStruct(request).
		WithContext(ctx).
		Lpush(); err != nil {
		return log.Err("failed to enqueue notification", err,
			"queue", s.queue,
			"correlationID", request.CorrelationID)
	}

	log.Info("notification enqueued", "queue", s.queue, "correlationID", request.CorrelationID)
	return nil
}

type NotifyResult struct {
	Status   models.NotificationStatus `json:"status"`
	Attempts int                       `json:"attempts"`
	Reason   string                    `json:"reason,omitempty"`
}

func (r NotifyResult) Sent() bool {
	return r.Status == models.NotificationStatusSent
}

type NotificationService struct {
	sender     NotificationSender
	aggregator *SummaryAggregator
	logs       repositories.NotificationLogRepository
	retry      *RetryScheduler
	timeout    time.Duration
	locks      *keyedMutex
	metrics    metrics.MetricsCollector
	now        func() time.Time
	log        logger.Logger
}

func NewNotificationService(
	sender NotificationSender,
	aggregator *SummaryAggregator,
	logs repositories.NotificationLogRepository,
	timeout time.Duration,
	retryWait time.Duration,
	sleep Sleeper,
	collector metrics.MetricsCollector,
) *NotificationService {
	return &NotificationService{
		sender:     sender,
		aggregator: aggregator,
		logs:       logs,
		retry:      NewRetryScheduler(RetryPolicy{MaxAttempts: notificationAttempts, Wait: retryWait}, sleep),
		timeout:    timeout,
		locks:      newKeyedMutex(),
		metrics:    collector,
		now:        time.Now,
		log:        logger.New("notificationService"),
	}
}

// Notify dispatches request for summary at most once per (user, date)
// unless request.Force is set. The summary's notification flag is only set
// after the channel confirmed the dispatch. A failed dispatch is final for
// the (user, date) and is never retried by a later run.
func (s *NotificationService) Notify(
	ctx context.Context,
	summary *models.DailySummary,
	request models.NotificationRequest,
) (NotifyResult, error) {
	log := s.log.TraceFromContext(ctx).Function("Notify")

	unlock := s.locks.Lock(models.SummaryKey(request.UserID, request.Date))
	defer unlock()

	if strings.TrimSpace(request.Address) == "" {
		return s.skip(ctx, request, "no notification channel"), nil
	}

	if !request.Force {
		if summary != nil && summary.NotificationSent {
			return s.skip(ctx, request, "already notified"), nil
		}

		previous, err := s.logs.ListByUserDate(ctx, request.UserID, request.Date)
		if err != nil {
			return NotifyResult{}, Transient(log.Err("failed to read notification log", err,
				"correlationID", request.CorrelationID))
		}
		for _, entry := range previous {
			switch entry.Status {
			case models.NotificationStatusSent:
				return s.skip(ctx, request, "already notified"), nil
			case models.NotificationStatusFailed:
				return s.skip(ctx, request, "earlier dispatch failed"), nil
			}
		}
	}

	request.Content = RenderNotification(summary, request)

	attempts, err := s.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if err := s.sender.Send(sendCtx, request); err != nil {
			return Transient(err)
		}
		return nil
	})
	if err != nil {
		message := err.Error()
		s.record(ctx, request, models.NotificationStatusFailed, attempts, &message)
		s.metrics.RecordNotification(string(models.NotificationStatusFailed))
		log.Er("notification dispatch failed", err,
			"correlationID", request.CorrelationID,
			"attempts", attempts)
		// final for this (user, date), so the cause is not wrapped as retryable
		return NotifyResult{Status: models.NotificationStatusFailed, Attempts: attempts, Reason: message},
			fmt.Errorf("%w after %d attempts: %v", ErrDispatchFailed, attempts, err)
	}

	s.record(ctx, request, models.NotificationStatusSent, attempts, nil)
	s.metrics.RecordNotification(string(models.NotificationStatusSent))

	if _, err := s.aggregator.MarkNotified(ctx, request.UserID, request.Date, s.now()); err != nil {
		// The log entry above still blocks a second dispatch.
		log.Er("failed to flag summary as notified", err, "correlationID", request.CorrelationID)
	}

	log.Info("notification sent", "correlationID", request.CorrelationID, "attempts", attempts)
	return NotifyResult{Status: models.NotificationStatusSent, Attempts: attempts}, nil
}

func (s *NotificationService) skip(ctx context.Context, request models.NotificationRequest, reason string) NotifyResult {
	s.log.TraceFromContext(ctx).Function("skip").Debug("notification skipped",
		"correlationID", request.CorrelationID,
		"reason", reason)
	s.metrics.RecordNotification(string(models.NotificationStatusSkipped))
	return NotifyResult{Status: models.NotificationStatusSkipped, Reason: reason}
}

func (s *NotificationService) record(
	ctx context.Context,
	request models.NotificationRequest,
	status models.NotificationStatus,
	attempts int,
	errorMessage *string,
) {
	entry := &models.NotificationLog{
		UserID:        request.UserID,
		Date:          models.DateOf(request.Date),
		CorrelationID: request.CorrelationID,
		Address:       request.Address,
		Status:        status,
		Attempts:      attempts,
		ErrorMessage:  errorMessage,
	}
	if err := s.logs.Record(ctx, entry); err != nil {
		s.log.TraceFromContext(ctx).Function("record").Er("failed to record notification log", err,
			"correlationID", request.CorrelationID,
			"status", status)
	}
}

// RenderNotification builds the message body from every alert and
// recommendation in the summary.
func RenderNotification(summary *models.DailySummary, request models.NotificationRequest) string {
	var b strings.Builder

	if request.Trigger == models.TriggerSchedule {
		fmt.Fprintf(&b, "Your daily health digest for %s\n", models.FormatDate(request.Date))
	} else {
		fmt.Fprintf(&b, "Health update for %s\n", models.FormatDate(request.Date))
	}

	if summary == nil {
		return b.String()
	}

	var alerts, recommendations []string
	for _, insight := range summary.Insights() {
		for _, alert := range insight.Alerts {
			alerts = append(alerts, alert.Message)
		}
		recommendations = append(recommendations, insight.Recommendations...)
	}

	if alerts = dedupe(alerts); len(alerts) > 0 {
		b.WriteString("\nAlerts:\n")
		for _, message := range alerts {
			fmt.Fprintf(&b, "- %s\n", message)
		}
	}
	if recommendations = dedupe(recommendations); len(recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, recommendation := range recommendations {
			fmt.Fprintf(&b, "- %s\n", recommendation)
		}
	}

	return b.String()
}
