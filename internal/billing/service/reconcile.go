package service

import (
	"context"
	"fmt"

	clientdomain "github.com/socialdesklabs/socialdesk/internal/client/domain"
	invoicedomain "github.com/socialdesklabs/socialdesk/internal/invoice/domain"
	paymentdomain "github.com/socialdesklabs/socialdesk/internal/payment/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ApplyEvent maps one provider event onto local state. Each branch only
// asserts the facts the event is authoritative for, so a webhook racing an
// interactive request cannot clobber unrelated fields. All writes for one
// event share a transaction.
func (s *Service) ApplyEvent(ctx context.Context, event *paymentdomain.Event) error {
	account, err := s.findEventAccount(ctx, event)
	if err != nil {
		return err
	}
	if account == nil {
		// Deliveries for subscriptions this service never tracked are
		// acknowledged, otherwise the provider retries them forever.
		s.log.Warn("event for unknown subscription",
			zap.String("provider", event.Provider),
			zap.String("subscription_id", event.SubscriptionID),
			zap.String("type", event.Type),
		)
		return nil
	}

	switch event.Type {
	case paymentdomain.EventTypeSubscriptionActivated:
		return s.applyActivated(ctx, account, event)
	case paymentdomain.EventTypeSubscriptionPastDue:
		return s.applyPastDue(ctx, account)
	case paymentdomain.EventTypeSubscriptionCanceled:
		return s.applyCanceled(ctx, account)
	case paymentdomain.EventTypePaymentSucceeded:
		return s.applyPaymentSucceeded(ctx, account, event)
	case paymentdomain.EventTypePaymentFailed:
		return s.applyPaymentFailed(ctx, account)
	default:
		return paymentdomain.ErrEventIgnored
	}
}

func (s *Service) applyActivated(ctx context.Context, account *clientdomain.Account, event *paymentdomain.Event) error {
	return s.mutateAccount(ctx, account.ID, func(a *clientdomain.Account) {
		if !isTransitionAllowed(a.SubscriptionStatus, clientdomain.SubscriptionActive) {
			s.log.Warn("activation event ignored for terminal state",
				zap.String("client", a.ExternalID),
				zap.String("current", string(a.SubscriptionStatus)),
			)
			return
		}
		// An event that resolved through the customer id fallback lands on
		// an account whose subscription id was already cleared. Adopt the
		// provider's id so an active row always carries one.
		if a.ProviderSubscriptionID == "" {
			if event.SubscriptionID == "" {
				s.log.Warn("activation event carries no subscription id",
					zap.String("client", a.ExternalID),
					zap.String("provider", event.Provider),
				)
				return
			}
			a.Provider = event.Provider
			a.ProviderSubscriptionID = event.SubscriptionID
		}

		a.SubscriptionStatus = clientdomain.SubscriptionActive
		a.PaymentStatus = clientdomain.PaymentPaid
		a.Status = clientdomain.AccountActive
		if event.PeriodStart != nil {
			a.CurrentPeriodStart = event.PeriodStart
		}
		if event.PeriodEnd != nil {
			a.CurrentPeriodEnd = event.PeriodEnd
		}
	})
}

func (s *Service) applyPastDue(ctx context.Context, account *clientdomain.Account) error {
	return s.mutateAccount(ctx, account.ID, func(a *clientdomain.Account) {
		if !isTransitionAllowed(a.SubscriptionStatus, clientdomain.SubscriptionPastDue) {
			return
		}
		a.SubscriptionStatus = clientdomain.SubscriptionPastDue
		a.PaymentStatus = clientdomain.PaymentOverdue
	})
}

func (s *Service) applyCanceled(ctx context.Context, account *clientdomain.Account) error {
	return s.mutateAccount(ctx, account.ID, func(a *clientdomain.Account) {
		if a.SubscriptionStatus == clientdomain.SubscriptionNone {
			return
		}
		a.ClearSubscription()
	})
}

func (s *Service) applyPaymentSucceeded(ctx context.Context, account *clientdomain.Account, event *paymentdomain.Event) error {
	now := s.clock.Now(ctx)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := s.clients.FindByID(ctx, tx, account.ID)
		if err != nil {
			return err
		}
		if a == nil {
			return nil
		}

		// Dedupe by provider invoice id; a replayed event returns the
		// existing ledger row without charging twice.
		_, created, err := s.invoices.AppendTx(ctx, tx, invoicedomain.AppendRequest{
			AccountID:         a.ID,
			Provider:          event.Provider,
			ProviderInvoiceID: event.ProviderInvoiceID,
			PlanCode:          a.PlanCode,
			AmountCents:       event.AmountCents,
			Currency:          event.Currency,
			Status:            invoicedomain.StatusPaid,
			Description:       fmt.Sprintf("Recurring payment for %s plan", a.PlanCode),
			PaidAt:            &event.OccurredAt,
		})
		if err != nil {
			return err
		}

		if a.ProviderSubscriptionID == "" && event.SubscriptionID != "" {
			a.Provider = event.Provider
			a.ProviderSubscriptionID = event.SubscriptionID
		}
		a.PaymentStatus = clientdomain.PaymentPaid
		// A payment never resurrects a subscription the account no longer
		// references; the provider's activation event handles resubscribes.
		if a.ProviderSubscriptionID != "" &&
			isTransitionAllowed(a.SubscriptionStatus, clientdomain.SubscriptionActive) {
			a.SubscriptionStatus = clientdomain.SubscriptionActive
		}
		if created {
			a.TotalSpentCents += event.AmountCents
		}
		if event.PeriodEnd != nil {
			a.NextPaymentAt = event.PeriodEnd
		} else {
			next := now.Add(advisoryCycle)
			a.NextPaymentAt = &next
		}
		if event.PeriodStart != nil {
			a.CurrentPeriodStart = event.PeriodStart
		}
		if event.PeriodEnd != nil {
			a.CurrentPeriodEnd = event.PeriodEnd
		}
		a.UpdatedAt = now
		return s.clients.Update(ctx, tx, a)
	})
}

func (s *Service) applyPaymentFailed(ctx context.Context, account *clientdomain.Account) error {
	return s.mutateAccount(ctx, account.ID, func(a *clientdomain.Account) {
		// Only the payment flag flips; plan and subscription state stay put
		// until the provider reports the subscription itself as past due.
		a.PaymentStatus = clientdomain.PaymentOverdue
	})
}

func (s *Service) findEventAccount(ctx context.Context, event *paymentdomain.Event) (*clientdomain.Account, error) {
	if event.SubscriptionID != "" {
		account, err := s.clients.FindByProviderSubscriptionID(ctx, s.db, event.Provider, event.SubscriptionID)
		if err != nil || account != nil {
			return account, err
		}
	}
	if event.CustomerID != "" {
		return s.clients.FindByProviderCustomerID(ctx, s.db, event.Provider, event.CustomerID)
	}
	return nil, nil
}

// isTransitionAllowed encodes the per-client subscription state machine:
// none -> active -> {past_due <-> active} -> canceled -> none.
func isTransitionAllowed(current, target clientdomain.SubscriptionStatus) bool {
	if current == target {
		return true
	}
	switch target {
	case clientdomain.SubscriptionActive:
		return current == clientdomain.SubscriptionNone ||
			current == clientdomain.SubscriptionPastDue ||
			current == clientdomain.SubscriptionCanceled
	case clientdomain.SubscriptionPastDue:
		return current == clientdomain.SubscriptionActive
	case clientdomain.SubscriptionCanceled:
		return current == clientdomain.SubscriptionActive ||
			current == clientdomain.SubscriptionPastDue
	case clientdomain.SubscriptionNone:
		return current == clientdomain.SubscriptionCanceled
	default:
		return false
	}
}
