// Package notify delivers fire-and-forget user-facing toasts. The console
// implementation writes through the shared logger; callers are never blocked
// and never see an error.
package notify

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/consentinel/api/schemas"
)

// Console logs notifications at a level matching their kind.
type Console struct {
	logger *zap.Logger
}

// NewConsole creates a console notifier.
func NewConsole(logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{logger: logger.Named("Notify")}
}

// Notify implements schemas.Notifier.
func (c *Console) Notify(kind schemas.NotifyKind, message, detail string) {
	fields := []zap.Field{zap.String("detail", detail)}
	switch kind {
	case schemas.NotifyError:
		c.logger.Warn(message, fields...)
	default:
		c.logger.Info(message, fields...)
	}
}
