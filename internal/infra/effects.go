package infra

import (
	"time"

	"go.uber.org/zap"

	"flowengine/internal/domain"
)

// LoggingEffects implements domain.EffectExecutor by emitting structured log
// records for a desktop shell to act on. The daemon owns the decisions; the
// shell (overlay window, notification center integration) consumes them.
type LoggingEffects struct {
	logger *zap.Logger
}

func NewLoggingEffects(logger *zap.Logger) *LoggingEffects {
	return &LoggingEffects{logger: logger}
}

func (x *LoggingEffects) ShowBlocker(message, target string) {
	x.logger.Warn("EFFECT show blocker",
		zap.String("message", message),
		zap.String("target", target))
}

func (x *LoggingEffects) HideBlocker() {
	x.logger.Info("EFFECT hide blocker")
}

func (x *LoggingEffects) SuppressNotifications() {
	x.logger.Info("EFFECT suppress notifications")
}

func (x *LoggingEffects) RestoreNotifications() {
	x.logger.Info("EFFECT restore notifications")
}

func (x *LoggingEffects) TriggerSoftReset(duration time.Duration) {
	x.logger.Info("EFFECT soft reset", zap.Duration("duration", duration))
}

func (x *LoggingEffects) CloseAppOrTab(target string) {
	x.logger.Info("EFFECT close app or tab", zap.String("target", target))
}

var _ domain.EffectExecutor = (*LoggingEffects)(nil)
