package usecase

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"flowengine/internal/domain"
)

// ActivityResult is the response for browser/query activity callbacks.
type ActivityResult struct {
	Status string `json:"status"` // "ignored" | "recorded" | "intervention_triggered"
	Source string `json:"source,omitempty"`
}

// OnWindowFocusChanged handles a focus change reported by the window-tracking
// collaborator. While idle it maintains the layer-1 productive-app timer;
// while running it detects distractions and routes them to the intervention
// controller. The classification uses the captured app/title, never the
// window focused at processing time.
func (e *Engine) OnWindowFocusChanged(appName, title string) {
	now := e.clock()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.windowProcess = appName
	e.windowTitle = title

	c := e.rules.ClassifyWindow(appName, title)

	if e.running {
		switch c.Verdict {
		case domain.VerdictDistracting:
			e.layer2LastDistraction = &now
			target := appName
			if c.Source != "blocklist" {
				target = title
			}
			e.triggerInterventionLocked(c.Reasoning, target)
			e.persistAsync("log app usage", func() error {
				return e.store.LogAppUsage(strings.ToLower(appName), 0, false, true)
			})
		case domain.VerdictProductive:
			// Decay stops the moment focus returns to productive work. The
			// record is cleared, not paused.
			e.clearDecayLocked("productive window focused")
			e.persistAsync("log app usage", func() error {
				return e.store.LogAppUsage(strings.ToLower(appName), 0, true, false)
			})
		}
		return
	}

	// Idle: layer-1 bookkeeping. A running timer is never restarted.
	switch c.Verdict {
	case domain.VerdictProductive:
		if e.layer1ProductiveStart == nil {
			e.layer1ProductiveStart = &now
			e.logger.Debug("layer 1 timer started", zap.String("app", appName))
		}
	case domain.VerdictDistracting:
		e.layer1ProductiveStart = nil
		e.layer2LastDistraction = &now
	default:
		e.layer1ProductiveStart = nil
	}

	e.checkAllLayersLocked(now)
}

// OnInputActivity handles a periodic input-activity update (at most every
// 2s). It derives the activity pattern, maintains the layer-3 active-input
// streak while idle, and feeds fatigue detection while running.
func (e *Engine) OnInputActivity(apm float64, keyboardEvents, mouseEvents, scrollEvents int) {
	now := e.clock()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.currentAPM = apm
	newPattern := derivePattern(apm, keyboardEvents, scrollEvents)

	if e.running {
		e.detectFatigueLocked(newPattern)
		e.pattern = newPattern
		return
	}

	e.pattern = newPattern
	if newPattern == domain.PatternActive {
		if e.layer3StreakStart == nil {
			e.layer3StreakStart = &now
			e.logger.Debug("layer 3 streak started", zap.Float64("apm", apm))
		}
	} else {
		e.layer3StreakStart = nil
	}

	e.checkAllLayersLocked(now)
}

// derivePattern maps raw per-minute input counts to an activity pattern.
// High keyboard activity means active work; low keyboard with heavy scrolling
// means passive reading.
func derivePattern(apm float64, keyboardEvents, scrollEvents int) domain.ActivityPattern {
	if keyboardEvents > 30 {
		return domain.PatternActive
	}
	if keyboardEvents < 10 && scrollEvents > 20 {
		return domain.PatternPassive
	}
	if apm > 10 {
		return domain.PatternActive
	}
	return domain.PatternIdle
}

// CheckAutoStart evaluates the tri-layer predicates against now. Safe to
// call on every event and on a timer without double-starting.
func (e *Engine) CheckAutoStart() {
	now := e.clock()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkAllLayersLocked(now)
}

// checkAllLayersLocked auto-starts a session when all three layer predicates
// hold simultaneously. Layers 1 and 2 share the flow threshold; layer 3 uses
// the shorter active-streak requirement, which preserves the
// all-three-simultaneous semantics.
func (e *Engine) checkAllLayersLocked(now time.Time) {
	if e.running {
		return
	}

	threshold := e.cfg.FlowThreshold()
	layer1 := e.layer1ProductiveStart != nil && now.Sub(*e.layer1ProductiveStart) >= threshold
	layer2 := e.layer2LastDistraction == nil || now.Sub(*e.layer2LastDistraction) >= threshold
	layer3 := e.layer3StreakStart != nil && now.Sub(*e.layer3StreakStart) >= e.cfg.ActiveStreakThreshold()

	if layer1 && layer2 && layer3 {
		e.logger.Info("tri-layer detection satisfied, auto-starting flow")
		e.startSessionLocked(domain.TriggerAuto)
	}
}

// resetLayersLocked clears all three layer timers.
func (e *Engine) resetLayersLocked() {
	e.layer1ProductiveStart = nil
	e.layer2LastDistraction = nil
	e.layer3StreakStart = nil
}

// OnBrowserActivity handles a navigation reported by the browser-extension
// bridge. Layer-2 URL detection: a distracting URL records a distraction and
// triggers an intervention.
func (e *Engine) OnBrowserActivity(url, title string, _ float64) ActivityResult {
	now := e.clock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return ActivityResult{Status: "ignored"}
	}

	e.lastBrowserURL = url

	c := e.rules.ClassifyURL(url)
	if c.Verdict != domain.VerdictDistracting {
		return ActivityResult{Status: "recorded"}
	}

	e.layer2LastDistraction = &now
	if e.triggerInterventionLocked("distracting URL: "+url, url) {
		return ActivityResult{Status: "intervention_triggered", Source: c.Source}
	}
	return ActivityResult{Status: "recorded"}
}

// OnSearchQuery handles a search-box submission. Keyword matching runs
// first; the AI oracle is consulted only when keywords miss, outside the
// lock and bounded by ClassifyTimeout. Oracle failures fail open to neutral.
func (e *Engine) OnSearchQuery(query, engine string, _ float64) ActivityResult {
	now := e.clock()
	normalized := strings.ToLower(strings.TrimSpace(query))

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ActivityResult{Status: "ignored"}
	}
	if normalized == "" {
		e.mu.Unlock()
		return ActivityResult{Status: "ignored"}
	}

	if c := e.rules.ClassifyQuery(normalized); c.Verdict == domain.VerdictDistracting {
		e.layer2LastDistraction = &now
		triggered := e.triggerInterventionLocked("distracting query: "+query, query)
		e.mu.Unlock()
		if triggered {
			return ActivityResult{Status: "intervention_triggered", Source: c.Source}
		}
		return ActivityResult{Status: "recorded"}
	}

	if e.classifier == nil {
		e.mu.Unlock()
		return ActivityResult{Status: "recorded"}
	}
	epoch := e.epoch
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), ClassifyTimeout)
	defer cancel()
	c, err := e.classifier.ClassifyQuery(ctx, query, engine)
	if err != nil {
		e.logger.Warn("query classification failed, treating as neutral",
			zap.String("engine", engine),
			zap.Error(err))
		return ActivityResult{Status: "recorded"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// The session may have stopped (or restarted) while the oracle was
	// thinking; a stale verdict must not leak into a new session.
	if !e.running || e.epoch != epoch {
		return ActivityResult{Status: "recorded"}
	}

	if c.Verdict == domain.VerdictDistracting {
		at := e.clock()
		e.layer2LastDistraction = &at
		if e.triggerInterventionLocked("distracting query (AI): "+query, query) {
			return ActivityResult{Status: "intervention_triggered", Source: c.Source}
		}
	}
	return ActivityResult{Status: "recorded"}
}
