// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Engine() EngineConfig
	Classifier() ClassifierConfig
	Learning() LearningConfig
	Negotiation() NegotiationConfig
	Storage() StorageConfig

	// Browser setters used by CLI flags.
	SetBrowserHeadless(bool)
	SetBrowserDebug(bool)

	// Engine setters used by CLI flags.
	SetEngineSessionTimeout(d time.Duration)
	SetLearningEnabled(bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	BrowserCfg     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	EngineCfg      EngineConfig      `mapstructure:"engine" yaml:"engine"`
	ClassifierCfg  ClassifierConfig  `mapstructure:"classifier" yaml:"classifier"`
	LearningCfg    LearningConfig    `mapstructure:"learning" yaml:"learning"`
	NegotiationCfg NegotiationConfig `mapstructure:"negotiation" yaml:"negotiation"`
	StorageCfg     StorageConfig     `mapstructure:"storage" yaml:"storage"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig           { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig         { return c.BrowserCfg }
func (c *Config) Engine() EngineConfig           { return c.EngineCfg }
func (c *Config) Classifier() ClassifierConfig   { return c.ClassifierCfg }
func (c *Config) Learning() LearningConfig       { return c.LearningCfg }
func (c *Config) Negotiation() NegotiationConfig { return c.NegotiationCfg }
func (c *Config) Storage() StorageConfig         { return c.StorageCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)                { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserDebug(b bool)                   { c.BrowserCfg.Debug = b }
func (c *Config) SetEngineSessionTimeout(d time.Duration)  { c.EngineCfg.SessionTimeout = d }
func (c *Config) SetLearningEnabled(b bool)                { c.LearningCfg.Enabled = b }

// LoggerConfig configures the zap logger and file rotation.
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

// BrowserConfig configures the chromedp driver.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	Debug             bool          `mapstructure:"debug" yaml:"debug"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	ScanDebounce      time.Duration `mapstructure:"scan_debounce" yaml:"scan_debounce"`
}

// EngineConfig configures session-level processing.
type EngineConfig struct {
	// SessionTimeout bounds a whole attach-and-dismiss session.
	SessionTimeout time.Duration `mapstructure:"session_timeout" yaml:"session_timeout"`
	// ParallelTimeout is the shared budget for parallel strategy evaluation.
	ParallelTimeout time.Duration `mapstructure:"parallel_timeout" yaml:"parallel_timeout"`
	// VerifyDelay is how long to wait before checking that a clicked banner
	// actually went away.
	VerifyDelay time.Duration `mapstructure:"verify_delay" yaml:"verify_delay"`
	// MaxAttempts caps processing attempts per candidate.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// ClassifierConfig carries the tunable thresholds of the element classifier.
// The defaults mirror long-observed behavior; changing them shifts the
// precision/recall balance.
type ClassifierConfig struct {
	// AcceptConfidence is the minimum content confidence for a banner verdict.
	AcceptConfidence float64 `mapstructure:"accept_confidence" yaml:"accept_confidence"`
	// ContextThreshold is the minimum positional/contextual score.
	ContextThreshold float64 `mapstructure:"context_threshold" yaml:"context_threshold"`
	// SafeActionScore is the minimum reject score considered safe to click.
	SafeActionScore float64 `mapstructure:"safe_action_score" yaml:"safe_action_score"`
	// MinWidth/MinHeight gate the minimum banner geometry in CSS pixels.
	MinWidth  float64 `mapstructure:"min_width" yaml:"min_width"`
	MinHeight float64 `mapstructure:"min_height" yaml:"min_height"`
}

// LearningConfig configures the Q-learning optimizer.
type LearningConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Epsilon is the exploration probability for action selection.
	Epsilon float64 `mapstructure:"epsilon" yaml:"epsilon"`
	// LearningRate is the alpha in Q <- Q + alpha*(reward - Q).
	LearningRate float64 `mapstructure:"learning_rate" yaml:"learning_rate"`
	// SaveEvery flushes the table after this many recorded experiences.
	SaveEvery int `mapstructure:"save_every" yaml:"save_every"`
	// ExperienceCap bounds the raw experience log.
	ExperienceCap int `mapstructure:"experience_cap" yaml:"experience_cap"`
	// CallTimeout bounds a single Recommend call on the critical path.
	CallTimeout time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
}

// NegotiationConfig configures multi-step preference-center flows.
type NegotiationConfig struct {
	// PreferencePollInterval is the wait between preference-UI probes.
	PreferencePollInterval time.Duration `mapstructure:"preference_poll_interval" yaml:"preference_poll_interval"`
	// PreferenceTimeout is the ceiling for the preference UI to appear.
	PreferenceTimeout time.Duration `mapstructure:"preference_timeout" yaml:"preference_timeout"`
	// SettleDelay separates consecutive category mutations so reactive UIs
	// can settle.
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	// MaxProgressiveSteps caps continue/next wizard hops.
	MaxProgressiveSteps int `mapstructure:"max_progressive_steps" yaml:"max_progressive_steps"`
}

// StorageBackend selects the persistence implementation.
type StorageBackend string

const (
	BackendMemory   StorageBackend = "memory"
	BackendFile     StorageBackend = "file"
	BackendPostgres StorageBackend = "postgres"
)

// StorageConfig configures durable state (domain history, Q-table).
type StorageConfig struct {
	Backend StorageBackend `mapstructure:"backend" yaml:"backend"`
	// Path is the data directory for the file backend. Empty means
	// ~/.consentinel.
	Path string `mapstructure:"path" yaml:"path"`
	// URL is the connection string for the postgres backend.
	URL string `mapstructure:"url" yaml:"url"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
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
	v.SetDefault("logger.service_name", "consentinel")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.post_load_wait", "2s")
	v.SetDefault("browser.scan_debounce", "250ms")

	// -- Engine --
	v.SetDefault("engine.session_timeout", "60s")
	v.SetDefault("engine.parallel_timeout", "2s")
	v.SetDefault("engine.verify_delay", "400ms")
	v.SetDefault("engine.max_attempts", 3)

	// -- Classifier --
	v.SetDefault("classifier.accept_confidence", 0.7)
	v.SetDefault("classifier.context_threshold", 0.5)
	v.SetDefault("classifier.safe_action_score", 0.7)
	v.SetDefault("classifier.min_width", 200.0)
	v.SetDefault("classifier.min_height", 50.0)

	// -- Learning --
	v.SetDefault("learning.enabled", true)
	v.SetDefault("learning.epsilon", 0.1)
	v.SetDefault("learning.learning_rate", 0.1)
	v.SetDefault("learning.save_every", 10)
	v.SetDefault("learning.experience_cap", 1000)
	v.SetDefault("learning.call_timeout", "500ms")

	// -- Negotiation --
	v.SetDefault("negotiation.preference_poll_interval", "500ms")
	v.SetDefault("negotiation.preference_timeout", "10s")
	v.SetDefault("negotiation.settle_delay", "150ms")
	v.SetDefault("negotiation.max_progressive_steps", 5)

	// -- Storage --
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.url", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate performs sanity checks on configured values.
func (c *Config) Validate() error {
	if c.ClassifierCfg.AcceptConfidence < 0 || c.ClassifierCfg.AcceptConfidence > 1 {
		return fmt.Errorf("classifier.accept_confidence must be within [0,1], got %v", c.ClassifierCfg.AcceptConfidence)
	}
	if c.ClassifierCfg.SafeActionScore < 0 || c.ClassifierCfg.SafeActionScore > 1 {
		return fmt.Errorf("classifier.safe_action_score must be within [0,1], got %v", c.ClassifierCfg.SafeActionScore)
	}
	if c.LearningCfg.Epsilon < 0 || c.LearningCfg.Epsilon > 1 {
		return fmt.Errorf("learning.epsilon must be within [0,1], got %v", c.LearningCfg.Epsilon)
	}
	if c.LearningCfg.LearningRate <= 0 || c.LearningCfg.LearningRate > 1 {
		return fmt.Errorf("learning.learning_rate must be within (0,1], got %v", c.LearningCfg.LearningRate)
	}
	if c.EngineCfg.ParallelTimeout <= 0 {
		return fmt.Errorf("engine.parallel_timeout must be positive, got %v", c.EngineCfg.ParallelTimeout)
	}
	switch c.StorageCfg.Backend {
	case BackendMemory, BackendFile, BackendPostgres:
	default:
		return fmt.Errorf("storage.backend must be one of memory|file|postgres, got %q", c.StorageCfg.Backend)
	}
	if c.StorageCfg.Backend == BackendPostgres && c.StorageCfg.URL == "" {
		return fmt.Errorf("storage.url is required for the postgres backend")
	}
	return nil
}
