package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds configuration for the rolefit controller.
type Config struct {
	// CDP connection settings
	CDPAddress string `yaml:"cdp_address" validate:"required"`
	CDPPort    int    `yaml:"cdp_port" validate:"min=1,max=65535"`

	// Control API
	BindAddr         string   `yaml:"bind_addr" validate:"required,hostname_port"`
	PortCandidates   []string `yaml:"port_candidates" validate:"dive,hostname_port"`
	PortAutoFallback bool     `yaml:"port_auto_fallback"`

	EvalTimeoutMS   int `yaml:"eval_timeout_ms" validate:"min=1000"`
	PromptTimeoutMS int `yaml:"prompt_timeout_ms" validate:"min=1000"`

	// Storage
	StorePath        string `yaml:"store_path" validate:"required"`
	JournalDir       string `yaml:"journal_dir"`
	JournalMaxSizeMB int    `yaml:"journal_max_size_mb" validate:"min=1"`
	SitesConfig      string `yaml:"sites_config"`

	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFile  string `yaml:"log_file"`

	// Browser launch
	LaunchBrowser bool   `yaml:"launch_browser"`
	ProfileDir    string `yaml:"profile_dir" validate:"required_if=LaunchBrowser true"`
	StartURL      string `yaml:"start_url" validate:"omitempty,url"`

	NavWatch  bool   `yaml:"navwatch"`
	NotifyURL string `yaml:"notify_url" validate:"omitempty,url"`

	// Destination rule
	DestinationHost    string `yaml:"destination_host" validate:"required,hostname"`
	DestinationSegment string `yaml:"destination_segment" validate:"required,startswith=/"`

	AttachTickMS    int `yaml:"attach_tick_ms" validate:"min=50"`
	TabSyncMS       int `yaml:"tab_sync_ms" validate:"min=100"`
	ConsumerDelayMS int `yaml:"consumer_delay_ms" validate:"min=0"`
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:         getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:            getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		BindAddr:           getEnvOrDefault("ROLEFIT_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:     getEnvListOrDefault("ROLEFIT_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192", "127.0.0.1:8193"}),
		PortAutoFallback:   getEnvBoolOrDefault("ROLEFIT_PORT_AUTO_FALLBACK", true),
		EvalTimeoutMS:      getEnvIntOrDefault("ROLEFIT_EVAL_TIMEOUT_MS", 5000),
		PromptTimeoutMS:    getEnvIntOrDefault("ROLEFIT_PROMPT_TIMEOUT_MS", 120000),
		StorePath:          getEnvOrDefault("ROLEFIT_STORE_PATH", "./data/store.json"),
		JournalDir:         getEnvOrDefault("ROLEFIT_JOURNAL_DIR", "./data/journal"),
		JournalMaxSizeMB:   getEnvIntOrDefault("ROLEFIT_JOURNAL_MAX_SIZE_MB", 20),
		SitesConfig:        getEnvOrDefault("ROLEFIT_SITES_CONFIG", "./config/sites.yaml"),
		LogLevel:           strings.ToLower(getEnvOrDefault("ROLEFIT_LOG_LEVEL", "info")),
		LogFile:            getEnvOrDefault("ROLEFIT_LOG_FILE", "logs/rolefit.log"),
		LaunchBrowser:      getEnvBoolOrDefault("ROLEFIT_LAUNCH_BROWSER", false),
		ProfileDir:         getEnvOrDefault("ROLEFIT_PROFILE_DIR", "./browser_profile"),
		StartURL:           getEnvOrDefault("ROLEFIT_START_URL", "https://www.linkedin.com/jobs/search/"),
		NavWatch:           getEnvBoolOrDefault("ROLEFIT_NAVWATCH", false),
		NotifyURL:          getEnvOrDefault("ROLEFIT_NOTIFY_URL", ""),
		DestinationHost:    getEnvOrDefault("ROLEFIT_DESTINATION_HOST", "chatgpt.com"),
		DestinationSegment: getEnvOrDefault("ROLEFIT_DESTINATION_SEGMENT", "/project"),
		AttachTickMS:       getEnvIntOrDefault("ROLEFIT_ATTACH_TICK_MS", 500),
		TabSyncMS:          getEnvIntOrDefault("ROLEFIT_TAB_SYNC_MS", 1000),
		ConsumerDelayMS:    getEnvIntOrDefault("ROLEFIT_CONSUMER_DELAY_MS", 1200),
	}
	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}
	if cfg.PromptTimeoutMS < cfg.EvalTimeoutMS {
		cfg.PromptTimeoutMS = cfg.EvalTimeoutMS
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CDPURL returns the CDP HTTP endpoint.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func (c *Config) EvalTimeout() time.Duration {
	return time.Duration(c.EvalTimeoutMS) * time.Millisecond
}

func (c *Config) PromptTimeout() time.Duration {
	return time.Duration(c.PromptTimeoutMS) * time.Millisecond
}

func (c *Config) AttachTick() time.Duration {
	return time.Duration(c.AttachTickMS) * time.Millisecond
}

func (c *Config) TabSyncInterval() time.Duration {
	return time.Duration(c.TabSyncMS) * time.Millisecond
}

func (c *Config) ConsumerDelay() time.Duration {
	return time.Duration(c.ConsumerDelayMS) * time.Millisecond
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
