package billing

import (
	"github.com/socialdesklabs/socialdesk/internal/billing/service"
	"github.com/socialdesklabs/socialdesk/internal/billing/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("billing",
	fx.Provide(service.NewService),
	fx.Provide(webhook.NewService),
)
