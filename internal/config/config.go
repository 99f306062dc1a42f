// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Agent  AgentConfig     `mapstructure:"agent" yaml:"agent"`
	LLM    LLMRouterConfig `mapstructure:"llm" yaml:"llm"`
	Device DeviceConfig    `mapstructure:"device" yaml:"device"`
	Store  StoreConfig     `mapstructure:"store" yaml:"store"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ReplyMode selects how the agent obtains answers to ASK_USER questions.
type ReplyMode string

const (
	ReplyModeChannel ReplyMode = "channel" // The host answers through Agent.Reply.
	ReplyModeAuto    ReplyMode = "auto"    // The fast model answers on the user's behalf.
	ReplyModeAbort   ReplyMode = "abort"   // The run ends as soon as a question is asked.
)

// AgentConfig bounds and tunes the control loop.
type AgentConfig struct {
	MaxSteps           int           `mapstructure:"max_steps" yaml:"max_steps"`
	StepDelay          time.Duration `mapstructure:"step_delay" yaml:"step_delay"`
	Lang               string        `mapstructure:"lang" yaml:"lang"`
	SystemPrompt       string        `mapstructure:"system_prompt" yaml:"system_prompt"`
	MaxHistorySteps    int           `mapstructure:"max_history_steps" yaml:"max_history_steps"`
	ImageWindow        int           `mapstructure:"image_window" yaml:"image_window"`
	ModelTimeout       time.Duration `mapstructure:"model_timeout" yaml:"model_timeout"`
	ActionTimeout      time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	MaxModelFailures   int           `mapstructure:"max_model_failures" yaml:"max_model_failures"`
	MaxParseFailures   int           `mapstructure:"max_parse_failures" yaml:"max_parse_failures"`
	MaxCaptureFailures int           `mapstructure:"max_capture_failures" yaml:"max_capture_failures"`
	// MaxInteractions caps ASK_USER and TAKE_OVER per run. They do not
	// count toward MaxSteps.
	MaxInteractions    int           `mapstructure:"max_interactions" yaml:"max_interactions"`
	AutoAdvanceAfter   int           `mapstructure:"auto_advance_after" yaml:"auto_advance_after"`
	UsePlanning        bool          `mapstructure:"use_planning" yaml:"use_planning"`
	ReplyMode          ReplyMode     `mapstructure:"reply_mode" yaml:"reply_mode"`
	ReplyTimeout       time.Duration `mapstructure:"reply_timeout" yaml:"reply_timeout"`
	ResetToHome        bool          `mapstructure:"reset_to_home" yaml:"reset_to_home"`
	AutoWakeScreen     bool          `mapstructure:"auto_wake_screen" yaml:"auto_wake_screen"`
	Loop               LoopConfig    `mapstructure:"loop" yaml:"loop"`
}

// LoopConfig holds the repetition thresholds used by the loop detector.
type LoopConfig struct {
	IdenticalThreshold int `mapstructure:"identical_threshold" yaml:"identical_threshold"`
	SwipeThreshold     int `mapstructure:"swipe_threshold" yaml:"swipe_threshold"`
	StuckTapThreshold  int `mapstructure:"stuck_tap_threshold" yaml:"stuck_tap_threshold"`
	OscillationCycles  int `mapstructure:"oscillation_cycles" yaml:"oscillation_cycles"`
	PointTolerance     int `mapstructure:"point_tolerance" yaml:"point_tolerance"`
	SevereCount        int `mapstructure:"severe_count" yaml:"severe_count"`
	SevereSwipes       int `mapstructure:"severe_swipes" yaml:"severe_swipes"`
}

// LLMProvider defines the supported model providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderOpenAI LLMProvider = "openai" // Any OpenAI-compatible endpoint (vLLM, AutoGLM, ...).
)

// LLMRouterConfig configures the model routing logic. Models is keyed by a
// short alias because viper treats dots in keys as nesting.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	RequestsPerMinute    float64                   `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst                int                       `mapstructure:"burst" yaml:"burst"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single model.
type LLMModelConfig struct {
	Provider      LLMProvider       `mapstructure:"provider" yaml:"provider"`
	Model         string            `mapstructure:"model" yaml:"model"`
	APIKey        string            `mapstructure:"api_key" yaml:"api_key"`
	Endpoint      string            `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout    time.Duration     `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature   float32           `mapstructure:"temperature" yaml:"temperature"`
	TopP          float32           `mapstructure:"top_p" yaml:"top_p"`
	TopK          int               `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens     int               `mapstructure:"max_tokens" yaml:"max_tokens"`
	SafetyFilters map[string]string `mapstructure:"safety_filters" yaml:"safety_filters"`
}

// DeviceConfig configures the ADB device layer.
type DeviceConfig struct {
	ADBPath        string        `mapstructure:"adb_path" yaml:"adb_path"`
	Serials        []string      `mapstructure:"serials" yaml:"serials"`
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	SwipeFraction  float64       `mapstructure:"swipe_fraction" yaml:"swipe_fraction"`
	UseYADB        bool          `mapstructure:"use_yadb" yaml:"use_yadb"`
	ScreenshotPath string        `mapstructure:"screenshot_path" yaml:"screenshot_path"`
}

// StoreConfig selects the optional session archive backend.
type StoreConfig struct {
	Type     string         `mapstructure:"type" yaml:"type"` // none, sqlite or postgres
	SQLite   SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// SQLiteConfig locates the embedded session database.
type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// PostgresConfig holds the connection details for a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// DSN renders the connection settings as a postgres:// URL.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   p.Host + ":" + strconv.Itoa(p.Port),
		Path:   "/" + p.DBName,
	}
	if p.SSLMode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(p.SSLMode)
	}
	return u.String()
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults always decode.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "droidpilot")
	v.SetDefault("logger.log_file", "~/.droidpilot/droidpilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Agent --
	v.SetDefault("agent.max_steps", 100)
	v.SetDefault("agent.step_delay", "1s")
	v.SetDefault("agent.lang", "en")
	v.SetDefault("agent.max_history_steps", 8)
	v.SetDefault("agent.image_window", 0)
	v.SetDefault("agent.model_timeout", "60s")
	v.SetDefault("agent.action_timeout", "30s")
	v.SetDefault("agent.max_model_failures", 3)
	v.SetDefault("agent.max_parse_failures", 3)
	v.SetDefault("agent.max_capture_failures", 5)
	v.SetDefault("agent.max_interactions", 10)
	v.SetDefault("agent.auto_advance_after", 3)
	v.SetDefault("agent.use_planning", true)
	v.SetDefault("agent.reply_mode", string(ReplyModeChannel))
	v.SetDefault("agent.reply_timeout", "10m")
	v.SetDefault("agent.reset_to_home", true)
	v.SetDefault("agent.auto_wake_screen", true)
	v.SetDefault("agent.loop.identical_threshold", 3)
	v.SetDefault("agent.loop.swipe_threshold", 5)
	v.SetDefault("agent.loop.stuck_tap_threshold", 3)
	v.SetDefault("agent.loop.oscillation_cycles", 2)
	v.SetDefault("agent.loop.point_tolerance", 50)
	v.SetDefault("agent.loop.severe_count", 5)
	v.SetDefault("agent.loop.severe_swipes", 10)

	// -- LLM --
	v.SetDefault("llm.default_fast_model", "flash")
	v.SetDefault("llm.default_powerful_model", "vision")
	v.SetDefault("llm.requests_per_minute", 60.0)
	v.SetDefault("llm.burst", 2)
	v.SetDefault("llm.models.flash.provider", string(ProviderGemini))
	v.SetDefault("llm.models.flash.model", "gemini-2.5-flash")
	v.SetDefault("llm.models.flash.api_timeout", "60s")
	v.SetDefault("llm.models.flash.temperature", 0.3)
	v.SetDefault("llm.models.flash.max_tokens", 1024)
	v.SetDefault("llm.models.vision.provider", string(ProviderGemini))
	v.SetDefault("llm.models.vision.model", "gemini-2.5-pro")
	v.SetDefault("llm.models.vision.api_timeout", "120s")
	v.SetDefault("llm.models.vision.temperature", 0.7)
	v.SetDefault("llm.models.vision.max_tokens", 4096)

	// -- Device --
	v.SetDefault("device.adb_path", "adb")
	v.SetDefault("device.command_timeout", "30s")
	v.SetDefault("device.swipe_fraction", 0.3)
	v.SetDefault("device.use_yadb", true)
	v.SetDefault("device.screenshot_path", "/sdcard/droidpilot_screen.png")

	// -- Store --
	v.SetDefault("store.type", "sqlite")
	v.SetDefault("store.sqlite.path", "~/.droidpilot/sessions.db")
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.user", "postgres")
	v.SetDefault("store.postgres.password", "") // Should be set via env var
	v.SetDefault("store.postgres.dbname", "droidpilot")
	v.SetDefault("store.postgres.sslmode", "disable")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("store.postgres.password", "DROIDPILOT_DB_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.applySecretEnv(v)

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// applySecretEnv fills empty API keys from provider-wide environment
// variables so keys never have to live in the config file.
func (c *Config) applySecretEnv(v *viper.Viper) {
	_ = v.BindEnv("gemini_api_key", "DROIDPILOT_GEMINI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("openai_api_key", "DROIDPILOT_OPENAI_API_KEY", "OPENAI_API_KEY")

	for name, m := range c.LLM.Models {
		if m.APIKey != "" {
			continue
		}
		switch m.Provider {
		case ProviderGemini:
			m.APIKey = v.GetString("gemini_api_key")
		case ProviderOpenAI:
			m.APIKey = v.GetString("openai_api_key")
		}
		c.LLM.Models[name] = m
	}
}

// expandPaths resolves a leading "~" in file paths.
func (c *Config) expandPaths() error {
	var err error
	if c.Logger.LogFile, err = homedir.Expand(c.Logger.LogFile); err != nil {
		return fmt.Errorf("failed to expand logger.log_file: %w", err)
	}
	if c.Store.SQLite.Path, err = homedir.Expand(c.Store.SQLite.Path); err != nil {
		return fmt.Errorf("failed to expand store.sqlite.path: %w", err)
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	switch c.Store.Type {
	case "", "none", "sqlite", "postgres":
	default:
		return fmt.Errorf("store.type must be one of none, sqlite, postgres (got %q)", c.Store.Type)
	}
	if c.Device.SwipeFraction <= 0 || c.Device.SwipeFraction > 1 {
		return fmt.Errorf("device.swipe_fraction must be in (0, 1]")
	}
	return nil
}

// Validate checks the AgentConfig settings.
func (a *AgentConfig) Validate() error {
	if a.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be a positive integer")
	}
	if a.MaxParseFailures <= 0 || a.MaxModelFailures <= 0 || a.MaxCaptureFailures <= 0 {
		return fmt.Errorf("failure budgets must be positive integers")
	}
	if a.MaxInteractions <= 0 {
		return fmt.Errorf("max_interactions must be a positive integer")
	}
	if a.MaxHistorySteps < 0 || a.ImageWindow < 0 {
		return fmt.Errorf("max_history_steps and image_window must not be negative")
	}
	if a.AutoAdvanceAfter < 0 {
		return fmt.Errorf("auto_advance_after must not be negative (0 disables it)")
	}
	switch a.Lang {
	case "en", "zh":
	default:
		return fmt.Errorf("lang must be en or zh (got %q)", a.Lang)
	}
	switch a.ReplyMode {
	case ReplyModeChannel, ReplyModeAuto, ReplyModeAbort:
	default:
		return fmt.Errorf("reply_mode must be channel, auto or abort (got %q)", a.ReplyMode)
	}
	if a.ModelTimeout <= 0 || a.ActionTimeout <= 0 {
		return fmt.Errorf("model_timeout and action_timeout must be positive durations")
	}
	return a.Loop.Validate()
}

// Validate checks the LoopConfig thresholds.
func (l *LoopConfig) Validate() error {
	if l.IdenticalThreshold < 2 || l.SwipeThreshold < 2 || l.StuckTapThreshold < 2 {
		return fmt.Errorf("loop thresholds must be at least 2")
	}
	if l.OscillationCycles < 1 {
		return fmt.Errorf("loop.oscillation_cycles must be at least 1")
	}
	if l.SevereCount < l.IdenticalThreshold {
		return fmt.Errorf("loop.severe_count must be >= loop.identical_threshold")
	}
	if l.SevereSwipes < l.SwipeThreshold {
		return fmt.Errorf("loop.severe_swipes must be >= loop.swipe_threshold")
	}
	if l.PointTolerance < 0 {
		return fmt.Errorf("loop.point_tolerance must not be negative")
	}
	return nil
}

// Validate checks that the routing defaults point at configured models.
func (r *LLMRouterConfig) Validate() error {
	for _, alias := range []string{r.DefaultFastModel, r.DefaultPowerfulModel} {
		m, ok := r.Models[alias]
		if !ok {
			return fmt.Errorf("model alias %q is not defined under llm.models", alias)
		}
		switch m.Provider {
		case ProviderGemini, ProviderOpenAI:
		default:
			return fmt.Errorf("model %q has unsupported provider %q", alias, m.Provider)
		}
		if m.Model == "" {
			return fmt.Errorf("model %q has no model name", alias)
		}
	}
	if r.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must not be negative (0 disables limiting)")
	}
	return nil
}
