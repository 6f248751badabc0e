// Package usecase contains the flow-detection and intervention business
// logic: the tri-layer detector, the session manager, the intervention
// controller and the fatigue tracker.
package usecase

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"flowengine/internal/config"
	"flowengine/internal/domain"
	"flowengine/internal/policy"
)

// XP rules.
const (
	XPPerMinute   = 5
	XPResumeBonus = 10
	XPPerLevel    = 100

	// FlowBaselineMinutes is the starting focus baseline for new users.
	FlowBaselineMinutes = 25
)

// ClassifyTimeout bounds every AI oracle call. On expiry the engine fails
// open to neutral.
const ClassifyTimeout = 10 * time.Second

// distractionDecay tracks continued engagement with flagged content after an
// "open anyway" choice. Exists only while the flagged content stays focused
// during an active session.
type distractionDecay struct {
	identifier string
	start      time.Time
	lastCheck  time.Time
}

// Engine owns the process-wide flow state. Every event handler serializes on
// the single mutex; the only blocking I/O is the AI oracle call, which runs
// outside the lock with its result re-validated against the session epoch.
type Engine struct {
	mu sync.Mutex

	cfg        config.Config
	rules      *policy.Ruleset
	classifier domain.Classifier
	effects    domain.EffectExecutor
	store      domain.Store
	logger     *zap.Logger
	clock      func() time.Time

	user *domain.User

	// Session state.
	running          bool
	sessionID        string
	startTime        time.Time
	focusScore       float64
	resilience       int
	stamina          int
	distractionCount int
	energy           float64
	windowTitle      string
	windowProcess    string
	lastBrowserURL   string
	penaltyApplied   bool

	// epoch increments on every session start and stop; async classification
	// results from a previous epoch are discarded.
	epoch uint64

	// Tri-layer detection (reset on session start and end).
	layer1ProductiveStart *time.Time
	layer2LastDistraction *time.Time
	layer3StreakStart     *time.Time

	// Input activity.
	currentAPM float64
	pattern    domain.ActivityPattern

	// Cognitive fatigue.
	fatigueScore    float64
	baselineAPM     float64
	apmDegradation  int
	softResetActive bool

	// Intervention.
	interventionActive bool
	interventionTarget string

	decay *distractionDecay
}

// NewEngine creates the engine and loads (or creates) the user. A nil
// classifier disables the AI fallback; a nil store runs fully in-memory.
func NewEngine(
	cfg config.Config,
	rules *policy.Ruleset,
	classifier domain.Classifier,
	effects domain.EffectExecutor,
	store domain.Store,
	logger *zap.Logger,
) *Engine {
	return NewEngineWithClock(cfg, rules, classifier, effects, store, logger, time.Now)
}

// NewEngineWithClock creates an engine with an injectable clock (for tests).
func NewEngineWithClock(
	cfg config.Config,
	rules *policy.Ruleset,
	classifier domain.Classifier,
	effects domain.EffectExecutor,
	store domain.Store,
	logger *zap.Logger,
	clock func() time.Time,
) *Engine {
	e := &Engine{
		cfg:        cfg,
		rules:      rules,
		classifier: classifier,
		effects:    effects,
		store:      store,
		logger:     logger,
		clock:      clock,
		energy:     100,
		focusScore: 100,
		pattern:    domain.PatternIdle,
	}
	e.user = e.loadUser()
	return e
}

// loadUser fetches the user row, falling back to an in-memory user when the
// store is absent or unreachable.
func (e *Engine) loadUser() *domain.User {
	offline := &domain.User{
		ID:                   1,
		Name:                 e.cfg.UserName,
		Level:                1,
		BaselineFocusMinutes: FlowBaselineMinutes,
	}
	if e.store == nil {
		return offline
	}
	u, err := e.store.GetOrCreateUser(e.cfg.UserName)
	if err != nil {
		e.logger.Warn("failed to load user, running in-memory",
			zap.String("name", e.cfg.UserName),
			zap.Error(err))
		return offline
	}
	e.logger.Info("user loaded",
		zap.String("name", u.Name),
		zap.Int("level", u.Level),
		zap.Int("total_xp", u.TotalXP))
	return u
}

// addXPLocked adds XP to the lifetime total and recomputes the level.
// On level-up an existing cognitive profile receives its fixed increments.
func (e *Engine) addXPLocked(xp int) {
	e.user.TotalXP += xp
	newLevel := e.user.TotalXP/XPPerLevel + 1
	for e.user.Level < newLevel {
		e.user.Level++
		e.logger.Info("level up", zap.Int("level", e.user.Level))
		if p := e.user.Profile; p != nil {
			p.Focus = clamp100(p.Focus + 1)
			p.Stamina = clamp100(p.Stamina + 1)
			p.Resilience = clamp100(p.Resilience + 1)
			p.Consistency = clamp100(p.Consistency + 0.5)
		}
	}
}

// persistAsync runs a best-effort store write off the event path.
func (e *Engine) persistAsync(what string, fn func() error) {
	if e.store == nil {
		return
	}
	go func() {
		if err := fn(); err != nil {
			e.logger.Warn("persistence failed, continuing in-memory",
				zap.String("op", what),
				zap.Error(err))
		}
	}()
}

// saveUserLocked snapshots the user and persists it off the event path.
func (e *Engine) saveUserLocked() {
	if e.store == nil {
		return
	}
	snapshot := *e.user
	if e.user.Profile != nil {
		p := *e.user.Profile
		snapshot.Profile = &p
	}
	e.persistAsync("save user", func() error {
		return e.store.SaveUser(&snapshot)
	})
}

func clamp100(v float64) float64 {
	if v > 100 {
		return 100
	}
	if v < 0 {
		return 0
	}
	return v
}
