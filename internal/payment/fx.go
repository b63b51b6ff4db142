package payment

import (
	"github.com/socialdesklabs/socialdesk/internal/config"
	"github.com/socialdesklabs/socialdesk/internal/payment/adapters/paypal"
	"github.com/socialdesklabs/socialdesk/internal/payment/adapters/stripe"
	paymentdomain "github.com/socialdesklabs/socialdesk/internal/payment/domain"
	"github.com/socialdesklabs/socialdesk/internal/payment/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment",
	fx.Provide(repository.ProvideEventRepository),
	fx.Provide(NewRegistry),
	fx.Provide(ProvideActiveAdapter),
)

// Registry holds every configured provider adapter, keyed by name. Webhook
// routing looks adapters up by the URL path; interactive operations use the
// single active adapter.
type Registry struct {
	adapters map[string]paymentdomain.Adapter
}

func NewRegistry(cfg config.Config, log *zap.Logger) *Registry {
	return &Registry{adapters: map[string]paymentdomain.Adapter{
		"stripe": stripe.New(cfg.Payment, log),
		"paypal": paypal.New(cfg.Payment, log),
	}}
}

func (r *Registry) Get(name string) (paymentdomain.Adapter, error) {
	adapter, ok := r.adapters[name]
	if !ok {
		return nil, paymentdomain.ErrInvalidProvider
	}
	return adapter, nil
}

func ProvideActiveAdapter(cfg config.Config, registry *Registry) (paymentdomain.Adapter, error) {
	return registry.Get(cfg.Payment.Provider)
}
