package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"flowengine/internal/usecase"
)

// LoopConfig holds engine loop configuration.
type LoopConfig struct {
	DecayInterval      time.Duration // how often distraction decay is applied
	LayerCheckInterval time.Duration // how often tri-layer predicates are evaluated
}

// DefaultLoopConfig returns default engine loop configuration.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		DecayInterval:      60 * time.Second,
		LayerCheckInterval: 2 * time.Second,
	}
}

// Loop drives the engine's periodic work: the once-a-minute distraction decay
// and the tri-layer auto-start check. Event-driven input (window focus,
// browser activity, queries) arrives through the HTTP API instead.
type Loop struct {
	config LoopConfig
	engine *usecase.Engine
	logger *zap.Logger
}

// NewLoop creates the engine run loop.
func NewLoop(config LoopConfig, engine *usecase.Engine, logger *zap.Logger) *Loop {
	return &Loop{
		config: config,
		engine: engine,
		logger: logger,
	}
}

// Run blocks until the context is canceled.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("engine loop started",
		zap.Duration("decay_interval", l.config.DecayInterval),
		zap.Duration("layer_check_interval", l.config.LayerCheckInterval))

	decayTicker := time.NewTicker(l.config.DecayInterval)
	layerTicker := time.NewTicker(l.config.LayerCheckInterval)

	defer func() {
		decayTicker.Stop()
		layerTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("engine loop stopping")
			return ctx.Err()

		case <-decayTicker.C:
			l.engine.DecayTick()

		case <-layerTicker.C:
			l.engine.CheckAutoStart()
		}
	}
}
