package invoice

import (
	"github.com/socialdesklabs/socialdesk/internal/invoice/repository"
	"github.com/socialdesklabs/socialdesk/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
