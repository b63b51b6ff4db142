package observability

import (
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func fxLogger(log *zap.Logger) fxevent.Logger {
	return &fxevent.ZapLogger{Logger: log.Named("fx")}
}
