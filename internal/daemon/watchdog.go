package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"flowengine/internal/domain"
)

// WatchdogConfig holds watchdog daemon configuration.
type WatchdogConfig struct {
	EngineProcessName string        // process name to look for
	EngineBaseURL     string        // engine HTTP API base URL
	CheckInterval     time.Duration // how often to probe the engine
	PenaltyAmount     int           // resilience penalty for forceful termination
}

// DefaultWatchdogConfig returns default watchdog configuration.
func DefaultWatchdogConfig(baseURL string) WatchdogConfig {
	return WatchdogConfig{
		EngineProcessName: "flowengine",
		EngineBaseURL:     baseURL,
		CheckInterval:     10 * time.Second,
		PenaltyAmount:     15,
	}
}

// Watchdog watches the engine process from outside. When an engine that was
// previously healthy disappears without a clean shutdown, the watchdog
// reports a forceful termination so the engine can penalize resilience on the
// next session. It never restarts the engine.
type Watchdog struct {
	config         WatchdogConfig
	processManager domain.ProcessManager
	client         *http.Client
	logger         *zap.Logger

	wasHealthy bool
	lastPID    int
}

// NewWatchdog creates a new engine watchdog.
func NewWatchdog(config WatchdogConfig, pm domain.ProcessManager, logger *zap.Logger) *Watchdog {
	return &Watchdog{
		config:         config,
		processManager: pm,
		client:         &http.Client{Timeout: 5 * time.Second},
		logger:         logger,
	}
}

// Run starts the watchdog loop. Blocks until the context is canceled.
func (w *Watchdog) Run(ctx context.Context) error {
	w.logger.Info("watchdog started",
		zap.String("process", w.config.EngineProcessName),
		zap.Duration("interval", w.config.CheckInterval))

	ticker := time.NewTicker(w.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watchdog stopping")
			return ctx.Err()

		case <-ticker.C:
			w.check(ctx)
		}
	}
}

func (w *Watchdog) check(ctx context.Context) {
	healthy := w.probeHealth(ctx)
	if healthy {
		if !w.wasHealthy {
			w.logger.Info("engine healthy")
		}
		w.wasHealthy = true
		w.rememberPID()
		return
	}

	if !w.wasHealthy {
		// Never saw a healthy engine; nothing to report.
		return
	}

	// Healthy before, unreachable now. Distinguish a clean exit from a kill:
	// a process that is still listed but not answering gets another chance.
	if w.lastPID != 0 && w.processManager.IsRunning(w.lastPID) {
		w.logger.Warn("engine unresponsive but process alive",
			zap.Int("pid", w.lastPID))
		return
	}

	w.logger.Warn("engine forcefully terminated", zap.Int("last_pid", w.lastPID))
	w.wasHealthy = false
	w.reportTermination(ctx)
}

func (w *Watchdog) probeHealth(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		w.config.EngineBaseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (w *Watchdog) rememberPID() {
	pids, err := w.processManager.FindByName(w.config.EngineProcessName)
	if err != nil || len(pids) == 0 {
		return
	}
	self := w.processManager.GetCurrentPID()
	for _, pid := range pids {
		if pid != self {
			w.lastPID = pid
			return
		}
	}
}

// reportTermination delivers the penalty once the engine is back. Retries a
// few times since the user usually restarts the engine shortly after killing
// it.
func (w *Watchdog) reportTermination(ctx context.Context) {
	payload, _ := json.Marshal(map[string]interface{}{
		"penalty_amount": w.config.PenaltyAmount,
		"reason":         "engine process forcefully terminated",
	})

	for attempt := 0; attempt < 6; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.config.CheckInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			w.config.EngineBaseURL+"/api/penalty/forceful-termination",
			bytes.NewReader(payload))
		if err != nil {
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			w.logger.Info("termination penalty reported")
			return
		}
	}
	w.logger.Error("failed to report termination penalty",
		zap.String("url", w.config.EngineBaseURL),
		zap.Error(fmt.Errorf("engine did not come back within retry window")))
}
