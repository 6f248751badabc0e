package domain

import (
	"context"
	"time"
)

// Classifier is the AI classification oracle. It is consulted only for
// ambiguous free-text search queries, after local keyword matching failed.
// Calls must be time-bounded by the caller's context; an error means the
// caller fails open to neutral.
type Classifier interface {
	// ClassifyQuery labels a search query as productive/distracting/neutral.
	ClassifyQuery(ctx context.Context, query, engine string) (Classification, error)
}

// EffectExecutor renders intervention effects. The engine only emits
// commands; the overlay, notification and audio plumbing live outside.
type EffectExecutor interface {
	// ShowBlocker displays the modal blocking overlay. The executor owns the
	// mandatory 3s countdown before the choice buttons enable.
	ShowBlocker(message, appName string)

	// HideBlocker dismisses the overlay.
	HideBlocker()

	// SuppressNotifications enables OS do-not-disturb for the session.
	SuppressNotifications()

	// RestoreNotifications restores the pre-session notification settings.
	RestoreNotifications()

	// TriggerSoftReset starts the restorative blur/audio-fade sequence.
	TriggerSoftReset(duration time.Duration)

	// CloseAppOrTab closes the app window or browser tab that triggered an
	// intervention.
	CloseAppOrTab(identifier string)
}

// Store persists sessions, users and learned patterns.
// All writes from the engine are best-effort: failures are logged and the
// engine keeps operating in-memory.
type Store interface {
	// GetOrCreateUser loads the named user, creating it on first run.
	GetOrCreateUser(name string) (*User, error)

	// SaveUser writes back lifetime XP, level, session count and profile.
	SaveUser(u *User) error

	// CreateSession inserts a new open session row.
	CreateSession(id string, start time.Time) error

	// CloseSession writes the final scores and XP for a session.
	CloseSession(rec SessionRecord) error

	// RecentSessions returns the most recent sessions, newest first.
	RecentSessions(limit int) ([]SessionRecord, error)

	// FirstSessions returns the oldest completed sessions (for the one-time
	// cognitive profile baseline).
	FirstSessions(n int) ([]SessionRecord, error)

	// ClosedSessionsSince returns completed sessions from the last N days.
	ClosedSessionsSince(days, limit int) ([]SessionRecord, error)

	// SessionStats aggregates the last N days of sessions.
	SessionStats(days int) (SessionStats, error)

	// LogAppUsage updates the usage pattern for an application.
	LogAppUsage(appName string, durationSeconds int, productive, brokeFlow bool) error

	// AppPatterns returns learned app patterns, most flow-breaking first.
	AppPatterns(limit int) ([]AppPattern, error)

	// FrequentDistractions returns apps whose flow-break count reached the
	// threshold and which are not yet auto-blocked.
	FrequentDistractions(threshold int) ([]string, error)

	// AutoBlockApp marks an app as auto-blocked.
	AutoBlockApp(appName string) error

	// LogFlowWindow upserts an hour-of-day flow quality slot.
	LogFlowWindow(w FlowWindow) error

	// PeakFlowHours returns hours with the best average flow quality.
	PeakFlowHours(days int) ([]int, error)

	// HourlyQuality returns per-hour quality aggregates for the last N days.
	HourlyQuality(days int) ([]HourQuality, error)

	// Close releases the database connection.
	Close() error
}

// ProcessManager handles OS process lookups.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByName returns PIDs of processes matching the pattern.
	FindByName(pattern string) ([]int, error)

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// KeyProvider abstracts the source of the local database encryption key.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}
