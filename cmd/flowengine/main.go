// Package main is the CLI entry point for flowengine.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"flowengine/internal/config"
	"flowengine/internal/daemon"
	"flowengine/internal/domain"
	"flowengine/internal/infra"
	"flowengine/internal/policy"
	"flowengine/internal/server"
	"flowengine/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "flowengine",
	Short: "Flow detection and intervention engine",
	Long: `flowengine watches activity signals for sustained productive work,
starts flow sessions automatically, and interrupts distractions with a
blocking intervention. Session history and learned patterns are stored
in a locally encrypted database.`,
	Version: Version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine and its HTTP API",
	Long: `Starts the flow engine: the HTTP API that activity collectors push
events into, plus the periodic decay and auto-start loops. Blocks until
interrupted.`,
	RunE: runServe,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a flow session manually",
	RunE:  runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the active flow session",
	RunE:  runStop,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the engine status",
	RunE:  runStatus,
}

var watchdogCmd = &cobra.Command{
	Use:   "watchdog",
	Short: "Run the external watchdog",
	Long: `Watches the engine process from a separate process. A forceful
termination of a healthy engine is reported back as a resilience
penalty once the engine returns. The watchdog never restarts the
engine.`,
	RunE: runWatchdog,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

var (
	configPath string
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Path to config file")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchdogCmd)
	rootCmd.AddCommand(versionCmd)
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "flowengine.yaml"
	}
	return filepath.Join(home, ".flowengine", "config.yaml")
}

func runServe(cmd *cobra.Command, args []string) error {
	bootLogger, _ := zap.NewProduction()
	cfg := config.Load(configPath, bootLogger)
	_ = bootLogger.Sync()

	logger := createLogger(cfg.LogPath)
	defer func() { _ = logger.Sync() }()

	// Encrypted pattern store; the engine runs in-memory if it cannot open.
	var store domain.Store
	keyProvider := infra.NewFileKeyProvider(cfg.DataDir)
	key, err := infra.EnsureKey(keyProvider)
	if err != nil {
		logger.Warn("failed to obtain database key, running in-memory", zap.Error(err))
	} else {
		s, err := infra.NewEncryptedStore(cfg.DataDir, key)
		if err != nil {
			logger.Warn("failed to open encrypted store, running in-memory", zap.Error(err))
		} else {
			store = s
			defer s.Close()
		}
	}

	// AI classifier only when a key is configured.
	var classifier domain.Classifier
	if cfg.AIAPIKey != "" {
		c, err := infra.NewGenAIClassifier(cmd.Context(), cfg.AIAPIKey, "", logger)
		if err != nil {
			logger.Warn("AI classifier unavailable, keyword rules only", zap.Error(err))
		} else {
			classifier = c
			logger.Info("AI query classifier enabled")
		}
	}

	rules := policy.NewRuleset(cfg.BlockedApps, cfg.DistractingKeywords, cfg.ProductiveKeywords)
	effects := infra.NewLoggingEffects(logger)
	engine := usecase.NewEngine(cfg, rules, classifier, effects, store, logger)
	analyzer := usecase.NewAnalyzer(store, logger)

	api := server.New(engine, analyzer, logger)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.Handler(),
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		loop := daemon.NewLoop(daemon.DefaultLoopConfig(), engine, logger)
		err := loop.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	g.Go(func() error {
		logger.Info("API listening", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		// Close any running session cleanly so XP is not lost.
		engine.StopSession()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("engine exited with error", zap.Error(err))
		return err
	}
	logger.Info("engine stopped")
	return nil
}

func runWatchdog(cmd *cobra.Command, args []string) error {
	bootLogger, _ := zap.NewProduction()
	cfg := config.Load(configPath, bootLogger)
	_ = bootLogger.Sync()

	logger := createLogger(cfg.LogPath)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	pm := infra.NewGopsProcessManager()
	wd := daemon.NewWatchdog(daemon.DefaultWatchdogConfig(baseURL()), pm, logger)
	if err := wd.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	return postAndPrint("/api/start")
}

func runStop(cmd *cobra.Command, args []string) error {
	return postAndPrint("/api/stop")
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(baseURL() + "/api/status")
	if err != nil {
		fmt.Println("Engine: NOT RUNNING")
		fmt.Println("\nRun 'flowengine serve' to start it.")
		return nil
	}
	defer resp.Body.Close()

	var status domain.FlowStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode status: %w", err)
	}

	fmt.Println("\n=== Flow Engine Status ===")
	if status.IsRunning {
		fmt.Printf("Session: ACTIVE (%s)\n", time.Duration(status.SessionDuration)*time.Second)
	} else {
		fmt.Println("Session: idle")
	}
	fmt.Printf("Energy: %.0f%%\n", status.Energy)
	fmt.Printf("Focus: %.0f\n", status.FocusScore)
	fmt.Printf("Resilience: %d\n", status.Resilience)
	fmt.Printf("XP: %d\n", status.XP)
	fmt.Printf("Fatigue: %.0f\n", status.FatigueScore)
	fmt.Printf("Activity: %s\n", status.ActivityPattern)
	fmt.Println("==========================")
	return nil
}

func postAndPrint(path string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(baseURL()+path, "application/json", strings.NewReader("{}"))
	if err != nil {
		return fmt.Errorf("engine unreachable (is 'flowengine serve' running?): %w", err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	out, _ := json.MarshalIndent(body, "", "  ")
	fmt.Println(string(out))
	return nil
}

func baseURL() string {
	bootLogger := zap.NewNop()
	cfg := config.Load(configPath, bootLogger)
	return "http://" + cfg.ListenAddr
}

func createLogger(logPath string) *zap.Logger {
	config := zap.NewProductionConfig()
	if logPath != "" {
		config.OutputPaths = []string{logPath}
		config.ErrorOutputPaths = []string{logPath}
	}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		// Fallback to stdout if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("flowengine %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
