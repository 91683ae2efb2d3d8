package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"healthcompanion/internal/events"
	"healthcompanion/internal/metrics"
	"healthcompanion/internal/models"
	"healthcompanion/internal/repositories"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

func testMetrics() *metrics.Collector {
	return metrics.NewCollector(prometheus.NewRegistry())
}

type fakeSummaryRepo struct {
	mu              sync.Mutex
	summaries       map[string]*models.DailySummary
	injectConflicts int
	getErr          error
	listErr         error
	writes          int
}

func newFakeSummaryRepo() *fakeSummaryRepo {
	return &fakeSummaryRepo{summaries: make(map[string]*models.DailySummary)}
}

func (r *fakeSummaryRepo) Get(ctx context.Context, userID string, date time.Time) (*models.DailySummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	stored, ok := r.summaries[models.SummaryKey(userID, date)]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return stored.Clone(), nil
}

func (r *fakeSummaryRepo) Create(ctx context.Context, summary *models.DailySummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.injectConflicts > 0 {
		r.injectConflicts--
		return repositories.ErrVersionConflict
	}
	if _, exists := r.summaries[summary.Key()]; exists {
		return repositories.ErrVersionConflict
	}
	summary.Version = 1
	r.summaries[summary.Key()] = summary.Clone()
	r.writes++
	return nil
}

func (r *fakeSummaryRepo) CompareAndSwap(ctx context.Context, summary *models.DailySummary, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.summaries[summary.Key()]
	if r.injectConflicts > 0 {
		r.injectConflicts--
		if ok {
			stored.Version++
		}
		return repositories.ErrVersionConflict
	}
	if !ok || stored.Version != expectedVersion {
		return repositories.ErrVersionConflict
	}
	summary.Version = expectedVersion + 1
	r.summaries[summary.Key()] = summary.Clone()
	r.writes++
	return nil
}

func (r *fakeSummaryRepo) ListRange(ctx context.Context, userID string, from, to time.Time) ([]*models.DailySummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*models.DailySummary
	for _, summary := range r.summaries {
		if summary.UserID == userID && !summary.Date.Before(models.DateOf(from)) && summary.Date.Before(models.DateOf(to)) {
			out = append(out, summary.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *fakeSummaryRepo) stored(userID string, date time.Time) *models.DailySummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	if summary, ok := r.summaries[models.SummaryKey(userID, date)]; ok {
		return summary.Clone()
	}
	return nil
}

func (r *fakeSummaryRepo) put(summary *models.DailySummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if summary.Version == 0 {
		summary.Version = 1
	}
	r.summaries[summary.Key()] = summary.Clone()
}

type fakeUploadRepo struct {
	mu         sync.Mutex
	events     map[string]*models.UploadEvent
	activeErr  error
	activeIDs  []string
	pendingErr error
}

func newFakeUploadRepo() *fakeUploadRepo {
	return &fakeUploadRepo{events: make(map[string]*models.UploadEvent)}
}

func (r *fakeUploadRepo) Record(ctx context.Context, tx *gorm.DB, event *models.UploadEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.events[event.ArtifactRef]; exists {
		return false, nil
	}
	copied := *event
	r.events[event.ArtifactRef] = &copied
	return true, nil
}

func (r *fakeUploadRepo) GetByArtifact(ctx context.Context, artifactRef string) (*models.UploadEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[artifactRef]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *event
	return &copied, nil
}

func (r *fakeUploadRepo) MarkStatus(ctx context.Context, artifactRef string, status models.UploadStatus, detail *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event, ok := r.events[artifactRef]; ok {
		event.Status = status
		event.ErrorDetail = detail
	}
	return nil
}

func (r *fakeUploadRepo) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]*models.UploadEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pendingErr != nil {
		return nil, r.pendingErr
	}
	var out []*models.UploadEvent
	for _, event := range r.events {
		if event.Status == models.UploadStatusReceived && event.ArrivedAt.Before(olderThan) {
			copied := *event
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ArrivedAt.Before(out[j].ArrivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeUploadRepo) ListActiveUserIDs(ctx context.Context, since time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeErr != nil {
		return nil, r.activeErr
	}
	seen := map[string]bool{}
	for _, id := range r.activeIDs {
		seen[id] = true
	}
	for _, event := range r.events {
		if !event.ArrivedAt.Before(since) {
			seen[event.UserID] = true
		}
	}
	return sortedKeys(seen), nil
}

func (r *fakeUploadRepo) status(artifactRef string) models.UploadStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event, ok := r.events[artifactRef]; ok {
		return event.Status
	}
	return ""
}

type fakeAnalysisRepo struct {
	mu      sync.Mutex
	results map[string]*models.AnalysisResult
	creates int
}

func newFakeAnalysisRepo() *fakeAnalysisRepo {
	return &fakeAnalysisRepo{results: make(map[string]*models.AnalysisResult)}
}

func (r *fakeAnalysisRepo) GetByArtifact(ctx context.Context, artifactRef string) (*models.AnalysisResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result, ok := r.results[artifactRef]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *result
	return &copied, nil
}

func (r *fakeAnalysisRepo) CreatePending(ctx context.Context, tx *gorm.DB, result *models.AnalysisResult) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.results[result.ArtifactRef]; exists {
		return false, nil
	}
	copied := *result
	r.results[result.ArtifactRef] = &copied
	r.creates++
	return true, nil
}

func (r *fakeAnalysisRepo) Save(ctx context.Context, result *models.AnalysisResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *result
	r.results[result.ArtifactRef] = &copied
	return nil
}

func (r *fakeAnalysisRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

type fakePreferencesRepo struct {
	mu        sync.Mutex
	prefs     map[string]models.UserPreferences
	getErr    error
	getErrFor string
	listErr   error
}

func newFakePreferencesRepo(prefs ...models.UserPreferences) *fakePreferencesRepo {
	repo := &fakePreferencesRepo{prefs: make(map[string]models.UserPreferences)}
	for _, p := range prefs {
		repo.prefs[p.UserID] = p
	}
	return repo
}

func (r *fakePreferencesRepo) GetByUserID(ctx context.Context, userID string) (*models.UserPreferences, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil && (r.getErrFor == "" || r.getErrFor == userID) {
		return nil, r.getErr
	}
	prefs, ok := r.prefs[userID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &prefs, nil
}

func (r *fakePreferencesRepo) Upsert(ctx context.Context, prefs *models.UserPreferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefs[prefs.UserID] = *prefs
	return nil
}

func (r *fakePreferencesRepo) ListDigestOptIn(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var ids []string
	for id, prefs := range r.prefs {
		if prefs.DigestOptIn {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *fakePreferencesRepo) ListByUserIDs(ctx context.Context, userIDs []string) ([]*models.UserPreferences, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*models.UserPreferences
	for _, id := range userIDs {
		if prefs, ok := r.prefs[id]; ok {
			copied := prefs
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeNotificationLogRepo struct {
	mu      sync.Mutex
	entries []*models.NotificationLog
}

func (r *fakeNotificationLogRepo) Record(ctx context.Context, entry *models.NotificationLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *entry
	r.entries = append(r.entries, &copied)
	return nil
}

func (r *fakeNotificationLogRepo) ListByUserDate(ctx context.Context, userID string, date time.Time) ([]*models.NotificationLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.NotificationLog
	for _, entry := range r.entries {
		if entry.UserID == userID && models.DateOf(entry.Date).Equal(models.DateOf(date)) {
			copied := *entry
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeNotificationLogRepo) statuses() []models.NotificationStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.NotificationStatus, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry.Status)
	}
	return out
}

type fakeSender struct {
	mu       sync.Mutex
	failures int
	requests []models.NotificationRequest
	attempts int
}

func (s *fakeSender) Send(ctx context.Context, request models.NotificationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.failures > 0 {
		s.failures--
		return context.DeadlineExceeded
	}
	s.requests = append(s.requests, request)
	return nil
}

func (s *fakeSender) sent() []models.NotificationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.NotificationRequest{}, s.requests...)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) Publish(channel events.Channel, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) types() []events.MessageType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.MessageType, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, event.Type)
	}
	return out
}

// fakeTransactor runs fn without a real transaction.
type fakeTransactor struct{}

func (fakeTransactor) Execute(ctx context.Context, fn func(context.Context, *gorm.DB) error) error {
	return fn(ctx, nil)
}

// scriptedAnalyzer returns the queued outcomes in order and then repeats
// the last one.
type scriptedAnalyzer struct {
	mu       sync.Mutex
	outcomes []analyzerOutcome
	calls    map[string]int
}

type analyzerOutcome struct {
	output *AnalysisOutput
	err    error
}

func newScriptedAnalyzer(outcomes ...analyzerOutcome) *scriptedAnalyzer {
	return &scriptedAnalyzer{outcomes: outcomes, calls: make(map[string]int)}
}

func (a *scriptedAnalyzer) AnalyzeContent(ctx context.Context, event models.UploadEvent) (*AnalysisOutput, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[event.ArtifactRef]++
	index := a.calls[event.ArtifactRef] - 1
	if index >= len(a.outcomes) {
		index = len(a.outcomes) - 1
	}
	outcome := a.outcomes[index]
	return outcome.output, outcome.err
}

func (a *scriptedAnalyzer) callCount(artifactRef string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[artifactRef]
}

func succeed(findings models.Findings) analyzerOutcome {
	return analyzerOutcome{output: &AnalysisOutput{Findings: findings, Summary: "analyzed"}}
}

func failTransient() analyzerOutcome {
	return analyzerOutcome{err: Transient(context.DeadlineExceeded)}
}

// recordingSleeper captures waits without sleeping.
type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func (s *recordingSleeper) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration{}, s.waits...)
}

type fakeTrendRepo struct {
	mu      sync.Mutex
	trends  map[string]*models.HealthTrend
	failFor map[string]bool
	saves   int
}

func newFakeTrendRepo() *fakeTrendRepo {
	return &fakeTrendRepo{trends: make(map[string]*models.HealthTrend), failFor: make(map[string]bool)}
}

func (r *fakeTrendRepo) Save(ctx context.Context, trend *models.HealthTrend) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[trend.UserID] {
		return errors.New("trend store unavailable")
	}
	copied := *trend
	r.trends[models.SummaryKey(trend.UserID, trend.AsOf)] = &copied
	r.saves++
	return nil
}

func (r *fakeTrendRepo) Latest(ctx context.Context, userID string) (*models.HealthTrend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.HealthTrend
	for _, trend := range r.trends {
		if trend.UserID == userID && (latest == nil || trend.AsOf.After(latest.AsOf)) {
			latest = trend
		}
	}
	if latest == nil {
		return nil, repositories.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (r *fakeTrendRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trends)
}
