package usecase

import (
	"time"

	"go.uber.org/zap"
)

const blockerMessage = "Focus breach detected. You are building resilience."

// ChoiceResult reports the outcome of an intervention choice.
type ChoiceResult struct {
	Status     string  `json:"status"` // "applied" | "no_intervention"
	Resilience int     `json:"resilience"`
	Stamina    int     `json:"stamina"`
	FocusScore float64 `json:"focus_score"`
}

// PenaltyResult reports the outcome of an external penalty.
type PenaltyResult struct {
	Status        string `json:"status"` // "applied" | "already_applied" | "ignored"
	NewResilience int    `json:"new_resilience_score"`
}

// SoftResetResult reports the outcome of a manual soft-reset trigger.
type SoftResetResult struct {
	Status string `json:"status"` // "triggered" | "already_active" | "not_running"
}

// triggerInterventionLocked raises the blocking overlay for a detected
// distraction. At most one intervention is visible at a time; a concurrent
// trigger is a no-op. Returns whether an intervention was actually raised.
func (e *Engine) triggerInterventionLocked(reason, identifier string) bool {
	if !e.running || e.interventionActive {
		return false
	}

	e.interventionActive = true
	e.interventionTarget = identifier
	e.distractionCount++

	e.logger.Warn("intervention triggered",
		zap.String("reason", reason),
		zap.String("target", identifier),
		zap.Int("distraction_count", e.distractionCount))

	e.effects.ShowBlocker(blockerMessage, identifier)
	return true
}

// OnChoiceWait applies the "wait for break" choice: score rewards, the
// originating app/tab is closed, and the resume bonus lands on lifetime XP
// immediately rather than at session end.
func (e *Engine) OnChoiceWait() ChoiceResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.interventionActive {
		return e.choiceResultLocked("no_intervention")
	}

	e.logger.Info("user chose to wait (stamina boost)")
	e.resilience += 5
	e.stamina += 10
	e.focusScore = clamp100(e.focusScore + 5)
	e.clearDecayLocked("wait choice")

	e.effects.CloseAppOrTab(e.interventionTarget)
	e.addXPLocked(XPResumeBonus)
	e.saveUserLocked()

	e.interventionActive = false
	e.interventionTarget = ""
	e.effects.HideBlocker()

	return e.choiceResultLocked("applied")
}

// OnChoiceProceed applies the "open anyway" choice: immediate penalties plus
// a decay record. Access is granted instantly - the gradual resilience decay
// is the compensating control.
func (e *Engine) OnChoiceProceed() ChoiceResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.interventionActive {
		return e.choiceResultLocked("no_intervention")
	}

	now := e.clock()
	e.logger.Info("user chose to open anyway (resilience hit)",
		zap.String("target", e.interventionTarget))

	e.resilience = floorZero(e.resilience - 10)
	if e.focusScore -= 15; e.focusScore < 0 {
		e.focusScore = 0
	}

	e.decay = &distractionDecay{
		identifier: e.interventionTarget,
		start:      now,
		lastCheck:  now,
	}

	e.interventionActive = false
	e.interventionTarget = ""
	e.effects.HideBlocker()

	return e.choiceResultLocked("applied")
}

func (e *Engine) choiceResultLocked(status string) ChoiceResult {
	return ChoiceResult{
		Status:     status,
		Resilience: e.resilience,
		Stamina:    e.stamina,
		FocusScore: e.focusScore,
	}
}

// DecayTick consumes an active decay record, subtracting one resilience
// point per whole minute elapsed since the last check. Runs once per minute
// while a session is active; a closed session never decays.
func (e *Engine) DecayTick() {
	now := e.clock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running || e.decay == nil {
		return
	}

	minutes := int(now.Sub(e.decay.lastCheck).Minutes())
	if minutes <= 0 {
		return
	}

	e.resilience = floorZero(e.resilience - minutes)
	e.decay.lastCheck = e.decay.lastCheck.Add(time.Duration(minutes) * time.Minute)

	e.logger.Info("distraction decay applied",
		zap.String("target", e.decay.identifier),
		zap.Int("minutes", minutes),
		zap.Int("resilience", e.resilience))
}

// clearDecayLocked destroys the decay record (context switched away from the
// flagged content, choice resolved, or session ended).
func (e *Engine) clearDecayLocked(reason string) {
	if e.decay == nil {
		return
	}
	e.logger.Info("distraction decay cleared",
		zap.String("target", e.decay.identifier),
		zap.String("reason", reason))
	e.decay = nil
}

// ApplyExternalPenalty handles the watchdog's forceful-termination report.
// Applied at most once per session; ignored while idle.
func (e *Engine) ApplyExternalPenalty(amount int, reason string) PenaltyResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return PenaltyResult{Status: "ignored", NewResilience: e.resilience}
	}
	if e.penaltyApplied {
		return PenaltyResult{Status: "already_applied", NewResilience: e.resilience}
	}
	if amount < 0 {
		amount = 0
	}

	e.penaltyApplied = true
	e.resilience = floorZero(e.resilience - amount)

	e.logger.Warn("external penalty applied",
		zap.Int("amount", amount),
		zap.String("reason", reason),
		zap.Int("resilience", e.resilience))

	return PenaltyResult{Status: "applied", NewResilience: e.resilience}
}

// TriggerSoftReset manually starts the restorative reset.
func (e *Engine) TriggerSoftReset() SoftResetResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.softResetActive {
		return SoftResetResult{Status: "already_active"}
	}
	e.startSoftResetLocked()
	return SoftResetResult{Status: "triggered"}
}

func floorZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
