package observability

import (
	"github.com/socialdesklabs/socialdesk/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Module = fx.Module("observability",
	fx.Provide(NewLogger),
	fx.WithLogger(fxLogger),
)

// NewLogger builds the process-wide zap logger. Production environments get
// JSON output at info level, everything else gets the development console
// encoder at debug level.
func NewLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.Environment == "production" {
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		return zc.Build()
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	return zc.Build()
}
