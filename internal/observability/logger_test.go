package observability

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentinel/internal/config"
)

// syncBuffer adapts bytes.Buffer to zapcore.WriteSyncer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Sync() error { return nil }

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testLoggerConfig() config.LoggerConfig {
	cfg := config.NewDefaultConfig().Logger()
	cfg.Level = "debug"
	cfg.Format = "json"
	return cfg
}

func TestInitializeAndGetLogger(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	buf := &syncBuffer{}
	Initialize(testLoggerConfig(), buf)

	logger := GetLogger()
	require.NotNil(t, logger)

	logger.Info("initialization check", zap.String("component", "test"))
	out := buf.String()
	assert.Contains(t, out, "initialization check")
	assert.Contains(t, out, "consentinel")
}

func TestInitializeIsIdempotent(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	first := &syncBuffer{}
	second := &syncBuffer{}
	Initialize(testLoggerConfig(), first)
	Initialize(testLoggerConfig(), second)

	GetLogger().Info("routed to the first writer")
	assert.Contains(t, first.String(), "routed to the first writer")
	assert.Empty(t, second.String())
}

func TestGetLoggerBeforeInitializeFallsBack(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
	assert.True(t, strings.Contains(logger.Name(), "fallback"))
}

func TestLevelFiltering(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	cfg := testLoggerConfig()
	cfg.Level = "warn"
	buf := &syncBuffer{}
	Initialize(cfg, buf)

	GetLogger().Info("should be filtered")
	GetLogger().Warn("should appear")

	out := buf.String()
	assert.NotContains(t, out, "should be filtered")
	assert.Contains(t, out, "should appear")
}

func TestInvalidLevelDefaultsToInfo(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	cfg := testLoggerConfig()
	cfg.Level = "extremely-verbose"
	buf := &syncBuffer{}
	Initialize(cfg, buf)

	GetLogger().Debug("below the default level")
	GetLogger().Info("at the default level")

	out := buf.String()
	assert.NotContains(t, out, "below the default level")
	assert.Contains(t, out, "at the default level")
}

func TestConsoleEncoderColorsLevels(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	cfg := testLoggerConfig()
	cfg.Format = "console"
	cfg.Colors = config.ColorConfig{Warn: "yellow"}
	buf := &syncBuffer{}
	Initialize(cfg, buf)

	GetLogger().Warn("tinted")
	assert.Contains(t, buf.String(), colorYellow)
}

func TestSyncWithoutLoggerIsNoop(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)
	Sync()
}
