package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"healthcompanion/internal/metrics"
	"healthcompanion/internal/models"
	"healthcompanion/internal/repositories"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/lib/pq"
)

// Merge folds insight into summary and returns a new summary; neither input
// is modified. Entries are keyed by SourceID, so replaying an insight is a
// no-op and merge order does not matter. When two different insights share a
// SourceID the winner is chosen by preferInsight, which is symmetric.
// Version and notification state are left to the caller.
func Merge(summary *models.DailySummary, insight models.Insight) *models.DailySummary {
	var merged *models.DailySummary
	if summary == nil {
		merged = models.NewDailySummary(insight.UserID, insight.Date())
	} else {
		merged = summary.Clone()
	}

	bySource := make(map[string]models.Insight, len(merged.Insights())+1)
	for _, entry := range merged.Insights() {
		if existing, ok := bySource[entry.SourceID]; ok {
			entry = preferInsight(existing, entry)
		}
		bySource[entry.SourceID] = entry
	}
	if existing, ok := bySource[insight.SourceID]; ok {
		bySource[insight.SourceID] = preferInsight(existing, insight)
	} else {
		bySource[insight.SourceID] = insight
	}

	entries := make([]models.Insight, 0, len(bySource))
	for _, sourceID := range sortedKeys(bySource) {
		entries = append(entries, bySource[sourceID])
	}
	merged.SetInsights(entries)

	refs := make(map[string]bool, len(merged.AnalysisRefs)+1)
	for _, ref := range merged.AnalysisRefs {
		refs[ref] = true
	}
	if insight.AnalysisRef != "" {
		refs[insight.AnalysisRef] = true
	}
	merged.AnalysisRefs = pq.StringArray(sortedKeys(refs))

	return merged
}

// preferInsight picks between two insights for the same source. More alerts
// win, then the larger canonical encoding.
func preferInsight(a, b models.Insight) models.Insight {
	if len(a.Alerts) != len(b.Alerts) {
		if len(a.Alerts) > len(b.Alerts) {
			return a
		}
		return b
	}
	if bytes.Compare(canonical(a), canonical(b)) >= 0 {
		return a
	}
	return b
}

func canonical(value any) []byte {
	encoded, err := json.Marshal(value)
	if err != nil {
		return []byte(fmt.Sprintf("%v", value))
	}
	return encoded
}

// sameContent reports whether a write would change anything.
func sameContent(a, b *models.DailySummary) bool {
	if a == nil || b == nil {
		return a == b
	}
	refsA := append([]string{}, a.AnalysisRefs...)
	refsB := append([]string{}, b.AnalysisRefs...)
	sort.Strings(refsA)
	sort.Strings(refsB)
	return bytes.Equal(canonical(refsA), canonical(refsB)) &&
		bytes.Equal(canonical(a.Insights()), canonical(b.Insights())) &&
		a.NotificationSent == b.NotificationSent
}

// SummaryAggregator linearises writes per (user, date) inside the process
// and uses the version column to detect writers in other processes.
type SummaryAggregator struct {
	repo        repositories.DailySummaryRepository
	locks       *keyedMutex
	maxAttempts int
	metrics     metrics.MetricsCollector
	log         logger.Logger
}

func NewSummaryAggregator(
	repo repositories.DailySummaryRepository,
	maxAttempts int,
	collector metrics.MetricsCollector,
) *SummaryAggregator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &SummaryAggregator{
		repo:        repo,
		locks:       newKeyedMutex(),
		maxAttempts: maxAttempts,
		metrics:     collector,
		log:         logger.New("summaryAggregator"),
	}
}

func (a *SummaryAggregator) Get(ctx context.Context, userID string, date time.Time) (*models.DailySummary, error) {
	summary, err := a.repo.Get(ctx, userID, date)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	return summary, err
}

// History returns the summaries in [from, to).
func (a *SummaryAggregator) History(
	ctx context.Context,
	userID string,
	from, to time.Time,
) ([]*models.DailySummary, error) {
	return a.repo.ListRange(ctx, userID, from, to)
}

// UpsertDailySummary merges insight into its (user, date) summary, creating
// it when absent.
func (a *SummaryAggregator) UpsertDailySummary(
	ctx context.Context,
	insight models.Insight,
) (*models.DailySummary, error) {
	return a.update(ctx, insight.UserID, insight.Date(), "UpsertDailySummary",
		func(current *models.DailySummary) *models.DailySummary {
			return Merge(current, insight)
		})
}

// MarkNotified sets the notification flag after a confirmed dispatch.
func (a *SummaryAggregator) MarkNotified(
	ctx context.Context,
	userID string,
	date time.Time,
	at time.Time,
) (*models.DailySummary, error) {
	return a.update(ctx, userID, date, "MarkNotified",
		func(current *models.DailySummary) *models.DailySummary {
			var next *models.DailySummary
			if current == nil {
				next = models.NewDailySummary(userID, date)
			} else {
				next = current.Clone()
			}
			if !next.NotificationSent {
				next.NotificationSent = true
				notifiedAt := at.UTC()
				next.NotifiedAt = &notifiedAt
			}
			return next
		})
}

func (a *SummaryAggregator) update(
	ctx context.Context,
	userID string,
	date time.Time,
	operation string,
	apply func(current *models.DailySummary) *models.DailySummary,
) (*models.DailySummary, error) {
	log := a.log.TraceFromContext(ctx).Function(operation)
	key := models.SummaryKey(userID, date)

	unlock := a.locks.Lock(key)
	defer unlock()

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, Transient(err)
		}

		current, err := a.Get(ctx, userID, date)
		if err != nil {
			return nil, Transient(log.Err("failed to read daily summary", err, "key", key))
		}

		next := apply(current)

		if current == nil {
			err = a.repo.Create(ctx, next)
		} else if sameContent(current, next) {
			return current, nil
		} else {
			err = a.repo.CompareAndSwap(ctx, next, current.Version)
		}

		if err == nil {
			return next, nil
		}
		if !errors.Is(err, repositories.ErrVersionConflict) {
			return nil, Transient(log.Err("failed to write daily summary", err, "key", key))
		}

		a.metrics.RecordMergeConflict()
		log.Warn("daily summary changed underneath, re-merging", "key", key, "attempt", attempt)
	}

	return nil, Transient(log.Err("giving up on daily summary write", ErrMergeConflict,
		"key", key, "attempts", a.maxAttempts))
}
