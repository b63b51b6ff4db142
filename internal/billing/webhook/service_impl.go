package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	billingdomain "github.com/socialdesklabs/socialdesk/internal/billing/domain"
	"github.com/socialdesklabs/socialdesk/internal/clock"
	"github.com/socialdesklabs/socialdesk/internal/payment"
	paymentdomain "github.com/socialdesklabs/socialdesk/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// replayGuardTTL covers the window in which providers typically retry a
// delivery; the durable event table remains the source of truth beyond it.
const replayGuardTTL = 24 * time.Hour

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	registry *payment.Registry
	events   paymentdomain.EventRepository
	billing  billingdomain.Service
	redis    *redis.Client
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock

	Registry *payment.Registry
	Events   paymentdomain.EventRepository
	Billing  billingdomain.Service
	Redis    *redis.Client `optional:"true"`
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("billing.webhook"),
		genID: p.GenID,
		clock: p.Clock,

		registry: p.Registry,
		events:   p.Events,
		billing:  p.Billing,
		redis:    p.Redis,
	}
}

// Process authenticates, deduplicates and applies one webhook delivery.
// Returned errors are classified by the caller: signature and payload
// errors reject the delivery, processing errors ask the provider to retry.
func (s *Service) Process(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	adapter, err := s.registry.Get(provider)
	if err != nil {
		return err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("webhook rejected", zap.String("provider", provider), zap.Error(err))
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			return nil
		}
		return err
	}

	if s.replaySeen(ctx, event) {
		rec, err := s.events.FindByProviderEventID(ctx, s.db, event.Provider, event.ProviderEventID)
		if err == nil && rec != nil && rec.ProcessedAt != nil {
			return nil
		}
	}

	now := s.clock.Now(ctx)
	rec := &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(event.RawPayload),
		ReceivedAt:      now,
		CreatedAt:       now,
	}

	err = s.events.Insert(ctx, s.db, rec)
	if errors.Is(err, paymentdomain.ErrDuplicateEvent) {
		existing, ferr := s.events.FindByProviderEventID(ctx, s.db, event.Provider, event.ProviderEventID)
		if ferr != nil {
			return ferr
		}
		if existing == nil {
			return err
		}
		if existing.ProcessedAt != nil {
			s.log.Debug("replayed event skipped",
				zap.String("provider", event.Provider),
				zap.String("event_id", event.ProviderEventID),
			)
			return nil
		}
		// Stored earlier but never successfully applied; run it again.
		rec = existing
	} else if err != nil {
		return err
	}

	if err := s.billing.ApplyEvent(ctx, event); err != nil {
		if rerr := s.events.RecordError(ctx, s.db, rec.ID, err.Error()); rerr != nil {
			s.log.Error("failed to record event error", zap.Error(rerr))
		}
		return err
	}

	return s.events.MarkProcessed(ctx, s.db, rec.ID)
}

// replaySeen is a Redis fast path in front of the durable dedupe table. It
// fails open: with Redis absent or erroring, every delivery takes the
// database path.
func (s *Service) replaySeen(ctx context.Context, event *paymentdomain.Event) bool {
	if s.redis == nil {
		return false
	}
	key := fmt.Sprintf("webhook:%s:%s", event.Provider, event.ProviderEventID)
	fresh, err := s.redis.SetNX(ctx, key, "1", replayGuardTTL).Result()
	if err != nil {
		return false
	}
	return !fresh
}
