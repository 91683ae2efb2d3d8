package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"healthcompanion/internal/events"
	"healthcompanion/internal/models"
	"healthcompanion/internal/repositories"

	logger "github.com/Bparsons0904/goLogger"
	"golang.org/x/sync/errgroup"
)

type TrendReport struct {
	AsOf     time.Time     `json:"asOf"`
	Users    int           `json:"users"`
	Written  int           `json:"written"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// TrendService writes the weekly HealthTrend for every active user.
// Reruns for the same week overwrite the stored record.
type TrendService struct {
	preferences *PreferenceService
	summaries   *SummaryAggregator
	insights    *InsightService
	trends      repositories.HealthTrendRepository
	publisher   events.Publisher
	workers     int
	now         func() time.Time
	log         logger.Logger
}

func NewTrendService(
	preferences *PreferenceService,
	summaries *SummaryAggregator,
	insights *InsightService,
	trends repositories.HealthTrendRepository,
	publisher events.Publisher,
	workers int,
) *TrendService {
	if workers < 1 {
		workers = 1
	}
	return &TrendService{
		preferences: preferences,
		summaries:   summaries,
		insights:    insights,
		trends:      trends,
		publisher:   publisher,
		workers:     workers,
		now:         time.Now,
		log:         logger.New("trendService"),
	}
}

// RunWeekly analyzes every user active as of asOf. One user failing does
// not stop the others.
func (s *TrendService) RunWeekly(ctx context.Context, asOf time.Time) (*TrendReport, error) {
	log := s.log.TraceFromContext(ctx).Function("RunWeekly")
	started := time.Now()

	if asOf.IsZero() {
		asOf = s.now()
	}
	report := &TrendReport{AsOf: models.DateOf(asOf)}

	users, err := s.preferences.ListActiveUsers(ctx, report.AsOf)
	if err != nil {
		return report, log.Err("trend run aborted, active users unavailable", err,
			"asOf", models.FormatDate(report.AsOf))
	}
	report.Users = len(users)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.workers)
	for _, user := range users {
		g.Go(func() error {
			trend, err := s.AnalyzeUser(ctx, user.UserID, report.AsOf)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
			case trend == nil:
				report.Skipped++
			default:
				report.Written++
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(started)
	log.Info("trend run completed",
		"asOf", models.FormatDate(report.AsOf),
		"users", report.Users,
		"written", report.Written,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration", report.Duration)
	return report, nil
}

// AnalyzeUser writes the trend for one user. It returns nil without error
// when the window holds too few uploads.
func (s *TrendService) AnalyzeUser(ctx context.Context, userID string, asOf time.Time) (*models.HealthTrend, error) {
	log := s.log.TraceFromContext(ctx).Function("AnalyzeUser")

	from, to := s.insights.TrendWindow(asOf)
	history, err := s.summaries.History(ctx, userID, from, to)
	if err != nil {
		return nil, log.Err("failed to load trend history", err, "userID", userID)
	}

	trend, ok := s.insights.GenerateTrend(userID, asOf, history)
	if !ok {
		log.Debug("not enough data for a trend", "userID", userID, "summaries", len(history))
		return nil, nil
	}

	if err := s.trends.Save(ctx, trend); err != nil {
		return nil, log.Err("failed to save trend", err, "userID", userID)
	}

	if s.publisher != nil {
		event := events.Event{
			Type:   events.TREND_UPDATED,
			UserID: userID,
			Data: map[string]any{
				"asOf":       models.FormatDate(trend.AsOf),
				"dataPoints": trend.DataPoints,
			},
		}
		if err := s.publisher.Publish(events.PIPELINE_CHANNEL, event); err != nil {
			log.Warn("failed to publish trend event", "userID", userID, "error", err)
		}
	}
	return trend, nil
}

// Latest returns the newest stored trend, or nil when none exists.
func (s *TrendService) Latest(ctx context.Context, userID string) (*models.HealthTrend, error) {
	trend, err := s.trends.Latest(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	return trend, err
}
