package usecase

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"flowengine/internal/domain"
)

// StartResult reports the outcome of a start request.
type StartResult struct {
	Status    string `json:"status"` // "started" | "already_running"
	SessionID string `json:"session_id,omitempty"`
}

// StopResult reports the outcome of a stop request.
type StopResult struct {
	Status          string             `json:"status"` // "stopped" | "not_running"
	DurationSeconds int                `json:"duration,omitempty"`
	XPEarned        int                `json:"xp_earned,omitempty"`
	XPBreakdown     domain.XPBreakdown `json:"xp_breakdown"`
}

// StartSession transitions Idle -> Running. Starting while running is a
// benign no-op reported back to the caller.
func (e *Engine) StartSession(trigger domain.SessionTrigger) StartResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startSessionLocked(trigger)
}

func (e *Engine) startSessionLocked(trigger domain.SessionTrigger) StartResult {
	if e.running {
		return StartResult{Status: "already_running", SessionID: e.sessionID}
	}

	now := e.clock()
	e.running = true
	e.sessionID = uuid.NewString()
	e.startTime = now
	e.epoch++

	// Session-scoped scores reset to their initial values.
	e.distractionCount = 0
	e.resilience = 0
	e.stamina = 0
	e.focusScore = 100
	e.fatigueScore = 0
	e.baselineAPM = 0
	e.apmDegradation = 0
	e.penaltyApplied = false
	e.interventionActive = false
	e.interventionTarget = ""
	e.decay = nil
	e.resetLayersLocked()

	e.effects.SuppressNotifications()

	id, start := e.sessionID, e.startTime
	e.persistAsync("create session", func() error {
		return e.store.CreateSession(id, start)
	})

	e.logger.Info("flow session started",
		zap.String("session_id", e.sessionID),
		zap.String("trigger", string(trigger)))

	return StartResult{Status: "started", SessionID: e.sessionID}
}

// StopSession transitions Running -> Idle, computes XP and persists the
// closed session. Stopping while idle is a benign no-op.
func (e *Engine) StopSession() StopResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return StopResult{Status: "not_running"}
	}

	now := e.clock()
	durationSeconds := int(now.Sub(e.startTime).Seconds())
	minutes := durationSeconds / 60
	if minutes < 0 {
		minutes = 0
	}

	focus := e.focusScore
	if focus < 0 {
		focus = 0
	}
	breakdown := domain.XPBreakdown{
		Base:       minutes * XPPerMinute,
		Resilience: e.resilience,
		Stamina:    e.stamina,
		Focus:      int(focus) / 10,
		Penalty:    e.distractionCount * 0,
	}
	xpEarned := breakdown.Total()

	e.addXPLocked(xpEarned)
	e.user.SessionsCompleted++

	rec := domain.SessionRecord{
		ID:               e.sessionID,
		StartTime:        e.startTime,
		EndTime:          &now,
		DurationSeconds:  durationSeconds,
		FocusScore:       e.focusScore,
		FatigueScore:     e.fatigueScore,
		APMAverage:       e.currentAPM,
		DistractionCount: e.distractionCount,
		ResilienceScore:  e.resilience,
		StaminaScore:     e.stamina,
		XPTotal:          xpEarned,
		XPBreakdown:      breakdown,
	}

	flowQuality := (e.focusScore + (100 - e.fatigueScore)) / 2
	window := domain.FlowWindow{
		Date:            e.startTime,
		Hour:            e.startTime.Hour(),
		FlowQuality:     flowQuality,
		APMAverage:      e.currentAPM,
		DurationMinutes: minutes,
	}

	// The decay ticker checks e.running under the same lock, so no decay can
	// apply to this session once we flip the flag here.
	e.running = false
	e.sessionID = ""
	e.epoch++
	e.decay = nil
	e.interventionActive = false
	e.interventionTarget = ""
	e.resetLayersLocked()

	e.effects.RestoreNotifications()

	if e.user.SessionsCompleted == 3 && e.user.Profile == nil {
		e.computeProfileLocked(rec)
	}
	e.saveUserLocked()
	e.persistAsync("close session", func() error {
		if err := e.store.CloseSession(rec); err != nil {
			return err
		}
		return e.store.LogFlowWindow(window)
	})

	e.logger.Info("flow session stopped",
		zap.String("session_id", rec.ID),
		zap.Int("duration_seconds", durationSeconds),
		zap.Int("xp_earned", xpEarned),
		zap.Int("distractions", rec.DistractionCount))

	return StopResult{
		Status:          "stopped",
		DurationSeconds: durationSeconds,
		XPEarned:        xpEarned,
		XPBreakdown:     breakdown,
	}
}

// computeProfileLocked builds the one-time cognitive profile from the first
// three completed sessions, each dimension normalized to 0-100. The session
// just closed may not be persisted yet, so it is passed in directly.
func (e *Engine) computeProfileLocked(latest domain.SessionRecord) {
	sessions := []domain.SessionRecord{latest}
	if e.store != nil {
		first, err := e.store.FirstSessions(3)
		if err != nil {
			e.logger.Warn("failed to load sessions for cognitive profile", zap.Error(err))
		} else {
			for _, s := range first {
				if s.ID != latest.ID && s.EndTime != nil {
					sessions = append(sessions, s)
				}
			}
		}
	}

	var focus, minutes, resilience, distractions float64
	for _, s := range sessions {
		focus += s.FocusScore
		minutes += float64(s.DurationSeconds) / 60
		resilience += float64(s.ResilienceScore)
		distractions += float64(s.DistractionCount)
	}
	n := float64(len(sessions))

	e.user.Profile = &domain.CognitiveProfile{
		Focus:       clamp100(focus / n),
		Stamina:     clamp100(minutes / n / 60 * 100),
		Resilience:  clamp100(resilience / n * 2),
		Consistency: clamp100(100 - distractions/n*10),
	}
	e.logger.Info("cognitive profile baseline computed",
		zap.Float64("focus", e.user.Profile.Focus),
		zap.Float64("stamina", e.user.Profile.Stamina),
		zap.Float64("resilience", e.user.Profile.Resilience),
		zap.Float64("consistency", e.user.Profile.Consistency))
}

// GetStatus returns the dashboard snapshot. Its only side effect is the
// simulated energy update: draining 0.5% per minute while running, recovering
// 1% per poll while idle.
func (e *Engine) GetStatus() domain.FlowStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	duration := 0
	if e.running {
		duration = int(e.clock().Sub(e.startTime).Seconds())
		e.energy = 100 - float64(duration)/60*0.5
		if e.energy < 0 {
			e.energy = 0
		}
	} else {
		e.energy = clamp100(e.energy + 1)
	}

	return domain.FlowStatus{
		IsRunning:       e.running,
		Energy:          e.energy,
		FocusScore:      e.focusScore,
		CurrentTask:     e.windowTitle,
		SessionDuration: duration,
		Resilience:      e.resilience,
		XP:              e.user.TotalXP,
		APM:             e.currentAPM,
		ActivityPattern: e.pattern,
		FatigueScore:    e.fatigueScore,
	}
}

// RecentSessions exposes the persisted session history.
func (e *Engine) RecentSessions(limit int) ([]domain.SessionRecord, error) {
	if e.store == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	return e.store.RecentSessions(limit)
}

// SessionUptime is a test seam: elapsed time of the active session.
func (e *Engine) SessionUptime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return 0
	}
	return e.clock().Sub(e.startTime)
}
