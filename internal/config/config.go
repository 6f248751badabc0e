// Package config loads the user configuration file and environment.
// Missing or broken configuration is never fatal: hardcoded defaults apply.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config is the configuration surface consumed by the engine.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DataDir    string `yaml:"data_dir"`
	LogPath    string `yaml:"log_path"`
	UserName   string `yaml:"user_name"`

	BlockedApps         []string `yaml:"blocked_apps"`
	DistractingKeywords []string `yaml:"distracting_keywords"`
	ProductiveKeywords  []string `yaml:"productive_keywords"`

	FlowThresholdMinutes  int `yaml:"flow_threshold_minutes"`
	FatigueThreshold      int `yaml:"fatigue_threshold"`
	SoftResetSeconds      int `yaml:"soft_reset_seconds"`
	AutoFlowActiveSeconds int `yaml:"auto_flow_active_seconds"`

	// AIAPIKey comes from the environment (GENAI_API_KEY), never from the
	// config file.
	AIAPIKey string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr: "127.0.0.1:8000",
		DataDir:    defaultDataDir(),
		LogPath:    "",
		UserName:   "Victus",
		BlockedApps: []string{
			"valorant.exe", "league of legends.exe", "csgo.exe", "steam.exe", "discord.exe",
		},
		DistractingKeywords: []string{
			"netflix", "twitter", "facebook", "instagram", "reddit", "tiktok", "shorts", "gaming",
		},
		ProductiveKeywords: []string{
			"code", "visual studio", "docs",
		},
		FlowThresholdMinutes:  10,
		FatigueThreshold:      70,
		SoftResetSeconds:      45,
		AutoFlowActiveSeconds: 240,
	}
}

// Load reads the YAML config file, falling back to defaults for anything
// missing. A .env file in the working directory supplies the AI API key.
func Load(path string, logger *zap.Logger) Config {
	cfg := Default()

	// Best-effort .env; absence is the normal case.
	_ = godotenv.Load()
	cfg.AIAPIKey = os.Getenv("GENAI_API_KEY")

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read config file, using defaults",
				zap.String("path", path),
				zap.Error(err))
		}
		return cfg
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logger.Warn("failed to parse config file, using defaults",
			zap.String("path", path),
			zap.Error(err))
		return Default()
	}

	cfg.sanitize()
	logger.Info("user configuration loaded", zap.String("path", path))
	return cfg
}

// sanitize restores defaults for fields the file zeroed out.
func (c *Config) sanitize() {
	def := Default()
	if c.ListenAddr == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.UserName == "" {
		c.UserName = def.UserName
	}
	if len(c.BlockedApps) == 0 {
		c.BlockedApps = def.BlockedApps
	}
	if len(c.DistractingKeywords) == 0 {
		c.DistractingKeywords = def.DistractingKeywords
	}
	if len(c.ProductiveKeywords) == 0 {
		c.ProductiveKeywords = def.ProductiveKeywords
	}
	if c.FlowThresholdMinutes <= 0 {
		c.FlowThresholdMinutes = def.FlowThresholdMinutes
	}
	if c.FatigueThreshold <= 0 {
		c.FatigueThreshold = def.FatigueThreshold
	}
	if c.SoftResetSeconds <= 0 {
		c.SoftResetSeconds = def.SoftResetSeconds
	}
	if c.AutoFlowActiveSeconds <= 0 {
		c.AutoFlowActiveSeconds = def.AutoFlowActiveSeconds
	}
}

// FlowThreshold is the shared duration all three detection layers must hold.
func (c Config) FlowThreshold() time.Duration {
	return time.Duration(c.FlowThresholdMinutes) * time.Minute
}

// ActiveStreakThreshold is the layer-3 active-input streak requirement.
func (c Config) ActiveStreakThreshold() time.Duration {
	return time.Duration(c.AutoFlowActiveSeconds) * time.Second
}

// SoftResetDuration is how long the restorative reset runs.
func (c Config) SoftResetDuration() time.Duration {
	return time.Duration(c.SoftResetSeconds) * time.Second
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowengine"
	}
	return fmt.Sprintf("%s/.flowengine", home)
}
