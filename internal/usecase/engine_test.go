package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"flowengine/internal/config"
	"flowengine/internal/domain"
	"flowengine/internal/policy"
)

// fakeClock is a manually advanced clock for deterministic tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mockEffects records emitted effect commands.
type mockEffects struct {
	mu                    sync.Mutex
	blockerShown          int
	blockerHidden         int
	lastBlockerTarget     string
	notificationsOff      int
	notificationsRestored int
	softResets            int
	closedTargets         []string
}

func (m *mockEffects) ShowBlocker(message, appName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockerShown++
	m.lastBlockerTarget = appName
}

func (m *mockEffects) HideBlocker() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockerHidden++
}

func (m *mockEffects) SuppressNotifications() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notificationsOff++
}

func (m *mockEffects) RestoreNotifications() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notificationsRestored++
}

func (m *mockEffects) TriggerSoftReset(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.softResets++
}

func (m *mockEffects) CloseAppOrTab(identifier string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closedTargets = append(m.closedTargets, identifier)
}

// mockClassifier returns a fixed verdict, optionally blocking until released.
type mockClassifier struct {
	verdict domain.Verdict
	err     error
	gate    chan struct{} // when non-nil, ClassifyQuery blocks on it
	calls   int
	mu      sync.Mutex
}

func (m *mockClassifier) ClassifyQuery(ctx context.Context, query, engine string) (domain.Classification, error) {
	m.mu.Lock()
	m.calls++
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.Classification{}, ctx.Err()
		}
	}
	if m.err != nil {
		return domain.Classification{}, m.err
	}
	return domain.Classification{Verdict: m.verdict, Confidence: 0.9, Source: "ai"}, nil
}

// mockStore is a threadsafe in-memory domain.Store.
type mockStore struct {
	mu              sync.Mutex
	user            *domain.User
	sessions        []domain.SessionRecord
	closed          map[string]domain.SessionRecord
	appUsage        map[string]*domain.AppPattern
	flowWindows     []domain.FlowWindow
	autoBlocked     []string
	peakHours       []int
	hourly          []domain.HourQuality
	stats           domain.SessionStats
	saveUserCalls   int
	failFirstLookup bool
}

func newMockStore() *mockStore {
	return &mockStore{
		closed:   make(map[string]domain.SessionRecord),
		appUsage: make(map[string]*domain.AppPattern),
	}
}

func (m *mockStore) GetOrCreateUser(name string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		m.user = &domain.User{ID: 1, Name: name, Level: 1, BaselineFocusMinutes: 25}
	}
	u := *m.user
	return &u, nil
}

func (m *mockStore) SaveUser(u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *u
	m.user = &copied
	m.saveUserCalls++
	return nil
}

func (m *mockStore) CreateSession(id string, start time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, domain.SessionRecord{ID: id, StartTime: start})
	return nil
}

func (m *mockStore) CloseSession(rec domain.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed[rec.ID] = rec
	return nil
}

func (m *mockStore) RecentSessions(limit int) ([]domain.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SessionRecord, 0, len(m.closed))
	for _, rec := range m.closed {
		out = append(out, rec)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStore) FirstSessions(n int) ([]domain.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFirstLookup {
		return nil, assert.AnError
	}
	out := make([]domain.SessionRecord, 0, len(m.closed))
	for _, rec := range m.closed {
		out = append(out, rec)
	}
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *mockStore) ClosedSessionsSince(days, limit int) ([]domain.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SessionRecord, 0, len(m.closed))
	for _, rec := range m.closed {
		out = append(out, rec)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStore) SessionStats(days int) (domain.SessionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats, nil
}

func (m *mockStore) LogAppUsage(appName string, durationSeconds int, productive, brokeFlow bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.appUsage[appName]
	if !ok {
		p = &domain.AppPattern{AppName: appName}
		m.appUsage[appName] = p
	}
	p.TotalTimeSeconds += durationSeconds
	if brokeFlow {
		p.FlowBreaks++
		p.DistractionSessions++
	}
	if productive {
		p.ProductiveSessions++
	}
	return nil
}

func (m *mockStore) AppPatterns(limit int) ([]domain.AppPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AppPattern, 0, len(m.appUsage))
	for _, p := range m.appUsage {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockStore) FrequentDistractions(threshold int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name, p := range m.appUsage {
		if p.FlowBreaks >= threshold && !p.AutoBlocked {
			names = append(names, name)
		}
	}
	return names, nil
}

func (m *mockStore) AutoBlockApp(appName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.appUsage[appName]; ok {
		p.IsBlocked = true
		p.AutoBlocked = true
	}
	m.autoBlocked = append(m.autoBlocked, appName)
	return nil
}

func (m *mockStore) LogFlowWindow(w domain.FlowWindow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flowWindows = append(m.flowWindows, w)
	return nil
}

func (m *mockStore) PeakFlowHours(days int) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakHours, nil
}

func (m *mockStore) HourlyQuality(days int) ([]domain.HourQuality, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hourly, nil
}

func (m *mockStore) Close() error { return nil }

func zapNop() *zap.Logger {
	return zap.NewNop()
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.DataDir = ""
	return cfg
}

func testRules(cfg config.Config) *policy.Ruleset {
	return policy.NewRuleset(cfg.BlockedApps, cfg.DistractingKeywords, cfg.ProductiveKeywords)
}

// newTestEngine builds an in-memory engine with a fake clock and no store.
func newTestEngine(t *testing.T) (*Engine, *fakeClock, *mockEffects) {
	t.Helper()
	cfg := testConfig()
	clock := newFakeClock()
	effects := &mockEffects{}
	e := NewEngineWithClock(cfg, testRules(cfg), nil, effects, nil, zap.NewNop(), clock.Now)
	return e, clock, effects
}

func TestXPLevelProgression(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.mu.Lock()
	e.addXPLocked(250)
	e.mu.Unlock()

	assert.Equal(t, 250, e.user.TotalXP)
	assert.Equal(t, 3, e.user.Level) // 250/100 + 1
}

func TestLevelUpGrowsProfile(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.user.Profile = &domain.CognitiveProfile{Focus: 50, Stamina: 40, Resilience: 30, Consistency: 60}

	e.mu.Lock()
	e.addXPLocked(100) // level 1 -> 2, one level-up
	e.mu.Unlock()

	assert.InDelta(t, 51, e.user.Profile.Focus, 0.001)
	assert.InDelta(t, 41, e.user.Profile.Stamina, 0.001)
	assert.InDelta(t, 31, e.user.Profile.Resilience, 0.001)
	assert.InDelta(t, 60.5, e.user.Profile.Consistency, 0.001)
}

func TestNoStoreRunsInMemory(t *testing.T) {
	e, _, _ := newTestEngine(t)

	assert.Equal(t, "Victus", e.user.Name)
	assert.Equal(t, 1, e.user.Level)

	res := e.StartSession(domain.TriggerManual)
	assert.Equal(t, "started", res.Status)

	stop := e.StopSession()
	assert.Equal(t, "stopped", stop.Status)
}
