package usecase

import (
	"time"

	"go.uber.org/zap"

	"flowengine/internal/domain"
)

// Fatigue tuning. The baseline APM is captured once per session, on the
// first reading above minBaselineAPM.
const (
	minBaselineAPM       = 10
	degradationRatio     = 0.5
	degradationTripCount = 3
)

// detectFatigueLocked analyzes input degradation while a session runs.
// Indicators: APM falling below half the session baseline, and sustained
// passive activity. Crossing the fatigue threshold triggers a soft reset and
// zeroes the score.
func (e *Engine) detectFatigueLocked(newPattern domain.ActivityPattern) {
	if !e.running {
		return
	}

	if e.baselineAPM == 0 {
		if e.currentAPM > minBaselineAPM {
			e.baselineAPM = e.currentAPM
			e.logger.Info("baseline APM set", zap.Float64("apm", e.baselineAPM))
		}
		return
	}

	ratio := e.currentAPM / e.baselineAPM
	if ratio < degradationRatio && e.currentAPM > 0 {
		e.apmDegradation++
	} else {
		e.apmDegradation = floorZero(e.apmDegradation - 1)
	}

	// Sustained passive reading builds fatigue; active work drains it.
	if newPattern == domain.PatternPassive && e.pattern == domain.PatternPassive {
		e.fatigueScore = clamp100(e.fatigueScore + 2)
	} else if newPattern == domain.PatternActive {
		e.fatigueScore = clamp100(e.fatigueScore - 5)
	}

	if e.apmDegradation > degradationTripCount {
		e.fatigueScore = clamp100(e.fatigueScore + 10)
		e.logger.Warn("cognitive fatigue detected (APM degradation)",
			zap.Float64("fatigue_score", e.fatigueScore),
			zap.Float64("apm", e.currentAPM),
			zap.Float64("baseline", e.baselineAPM))
	}

	if e.fatigueScore > float64(e.cfg.FatigueThreshold) {
		e.logger.Info("fatigue threshold exceeded",
			zap.Float64("fatigue_score", e.fatigueScore),
			zap.Int("threshold", e.cfg.FatigueThreshold))
		if !e.softResetActive {
			e.startSoftResetLocked()
		}
		e.fatigueScore = 0
	}
}

// startSoftResetLocked emits the soft-reset command and arms the
// active-until timer so overlapping triggers are suppressed.
func (e *Engine) startSoftResetLocked() {
	duration := e.cfg.SoftResetDuration()
	e.softResetActive = true
	e.effects.TriggerSoftReset(duration)
	e.logger.Info("soft reset triggered", zap.Duration("duration", duration))

	time.AfterFunc(duration, func() {
		e.mu.Lock()
		e.softResetActive = false
		e.mu.Unlock()
	})
}
