package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "consentinel", cfg.Logger().ServiceName)

	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, 250*time.Millisecond, cfg.Browser().ScanDebounce)

	assert.Equal(t, 60*time.Second, cfg.Engine().SessionTimeout)
	assert.Equal(t, 2*time.Second, cfg.Engine().ParallelTimeout)

	assert.InDelta(t, 0.7, cfg.Classifier().AcceptConfidence, 1e-9)
	assert.InDelta(t, 0.7, cfg.Classifier().SafeActionScore, 1e-9)
	assert.InDelta(t, 200.0, cfg.Classifier().MinWidth, 1e-9)

	assert.True(t, cfg.Learning().Enabled)
	assert.InDelta(t, 0.1, cfg.Learning().Epsilon, 1e-9)
	assert.Equal(t, 500*time.Millisecond, cfg.Learning().CallTimeout)

	assert.Equal(t, 10*time.Second, cfg.Negotiation().PreferenceTimeout)
	assert.Equal(t, 5, cfg.Negotiation().MaxProgressiveSteps)

	assert.Equal(t, BackendFile, cfg.Storage().Backend)

	require.NoError(t, cfg.Validate())
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()

	cfg.SetBrowserHeadless(false)
	cfg.SetBrowserDebug(true)
	cfg.SetEngineSessionTimeout(5 * time.Second)
	cfg.SetLearningEnabled(false)

	assert.False(t, cfg.Browser().Headless)
	assert.True(t, cfg.Browser().Debug)
	assert.Equal(t, 5*time.Second, cfg.Engine().SessionTimeout)
	assert.False(t, cfg.Learning().Enabled)
}

func TestNewConfigFromViper(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("engine.session_timeout", "10s")
	v.Set("storage.backend", "memory")

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Engine().SessionTimeout)
	assert.Equal(t, BackendMemory, cfg.Storage().Backend)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			"accept confidence out of range",
			func(c *Config) { c.ClassifierCfg.AcceptConfidence = 1.4 },
			"accept_confidence",
		},
		{
			"safe action score negative",
			func(c *Config) { c.ClassifierCfg.SafeActionScore = -0.1 },
			"safe_action_score",
		},
		{
			"epsilon above one",
			func(c *Config) { c.LearningCfg.Epsilon = 1.5 },
			"epsilon",
		},
		{
			"zero learning rate",
			func(c *Config) { c.LearningCfg.LearningRate = 0 },
			"learning_rate",
		},
		{
			"non-positive parallel timeout",
			func(c *Config) { c.EngineCfg.ParallelTimeout = 0 },
			"parallel_timeout",
		},
		{
			"unknown storage backend",
			func(c *Config) { c.StorageCfg.Backend = "redis" },
			"storage.backend",
		},
		{
			"postgres without url",
			func(c *Config) { c.StorageCfg.Backend = BackendPostgres; c.StorageCfg.URL = "" },
			"storage.url",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateAcceptsPostgresWithURL(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.StorageCfg.Backend = BackendPostgres
	cfg.StorageCfg.URL = "postgres://localhost:5432/consentinel"
	assert.NoError(t, cfg.Validate())
}
