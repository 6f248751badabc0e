// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// SessionTrigger identifies how a flow session was started.
type SessionTrigger string

const (
	TriggerManual SessionTrigger = "manual"
	TriggerAuto   SessionTrigger = "auto"
)

// ActivityPattern describes the recent input activity shape.
type ActivityPattern string

const (
	PatternActive  ActivityPattern = "active"
	PatternPassive ActivityPattern = "passive"
	PatternIdle    ActivityPattern = "idle"
)

// Verdict is the classification outcome for a window, URL or search query.
type Verdict string

const (
	VerdictProductive  Verdict = "productive"
	VerdictDistracting Verdict = "distracting"
	VerdictNeutral     Verdict = "neutral"
)

// Classification is a tagged verdict with confidence and provenance.
// Source is one of "blocklist", "keyword", "ai".
type Classification struct {
	Verdict    Verdict
	Confidence float64
	Reasoning  string
	Source     string
}

// XPBreakdown itemizes how session XP was earned.
// Penalty is always zero: distractions are already penalized through the
// resilience score, charging them again here would double-count.
type XPBreakdown struct {
	Base       int `json:"base"`
	Resilience int `json:"resilience"`
	Stamina    int `json:"stamina"`
	Focus      int `json:"focus"`
	Penalty    int `json:"penalty"`
}

// Total sums the breakdown into the XP earned for the session.
func (b XPBreakdown) Total() int {
	return b.Base + b.Resilience + b.Stamina + b.Focus - b.Penalty
}

// SessionRecord is the persisted form of one flow-work interval.
type SessionRecord struct {
	ID               string
	StartTime        time.Time
	EndTime          *time.Time
	DurationSeconds  int
	FocusScore       float64
	FatigueScore     float64
	APMAverage       float64
	DistractionCount int
	ResilienceScore  int
	StaminaScore     int
	XPTotal          int
	XPBreakdown      XPBreakdown
}

// User holds lifetime progression state. Level is derived from TotalXP
// (100 XP per level).
type User struct {
	ID                   int64
	Name                 string
	Level                int
	TotalXP              int
	BaselineFocusMinutes int
	SessionsCompleted    int
	Profile              *CognitiveProfile
}

// CognitiveProfile is the one-time baseline computed after the user's third
// completed session. Each dimension is on a 0-100 scale. Subsequent level-ups
// apply small fixed increments instead of recomputing.
type CognitiveProfile struct {
	Focus       float64
	Stamina     float64
	Resilience  float64
	Consistency float64
}

// FlowStatus is the read-only snapshot returned to the dashboard.
type FlowStatus struct {
	IsRunning       bool            `json:"is_running"`
	Energy          float64         `json:"energy"`
	FocusScore      float64         `json:"focus_score"`
	CurrentTask     string          `json:"current_task"`
	SessionDuration int             `json:"session_duration"`
	Resilience      int             `json:"resilience"`
	XP              int             `json:"xp"`
	APM             float64         `json:"apm"`
	ActivityPattern ActivityPattern `json:"activity_pattern"`
	FatigueScore    float64         `json:"fatigue_score"`
}

// AppPattern aggregates how an application has historically interacted with
// flow sessions. Used by the pattern analyzer for auto-block recommendations.
type AppPattern struct {
	AppName             string
	TotalTimeSeconds    int
	FlowBreaks          int
	ProductiveSessions  int
	DistractionSessions int
	LastUsed            time.Time
	IsBlocked           bool
	AutoBlocked         bool
}

// FlowWindow logs the quality of one hour-of-day slot, feeding biological
// pattern detection (when during the day the user reaches flow).
type FlowWindow struct {
	Date            time.Time
	Hour            int
	FlowQuality     float64
	APMAverage      float64
	DurationMinutes int
}

// SessionStats is an aggregate over recent closed sessions.
type SessionStats struct {
	TotalSessions     int
	TotalSeconds      int
	AvgFocusScore     float64
	TotalDistractions int
}

// HourQuality is average flow quality for one hour of the day.
type HourQuality struct {
	Hour       int
	AvgQuality float64
	Sessions   int
}
