package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	billingdomain "github.com/socialdesklabs/socialdesk/internal/billing/domain"
	clientdomain "github.com/socialdesklabs/socialdesk/internal/client/domain"
	"github.com/socialdesklabs/socialdesk/internal/clock"
	invoicedomain "github.com/socialdesklabs/socialdesk/internal/invoice/domain"
	paymentdomain "github.com/socialdesklabs/socialdesk/internal/payment/domain"
	"github.com/socialdesklabs/socialdesk/internal/plan"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// advisoryCycle approximates one billing cycle for the advisory
// next_payment_at field. Authoritative billing dates live with the provider.
const advisoryCycle = 30 * 24 * time.Hour

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	catalog  *plan.Catalog
	clients  clientdomain.Repository
	invoices invoicedomain.Service
	adapter  paymentdomain.Adapter
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock

	Catalog  *plan.Catalog
	Clients  clientdomain.Repository
	Invoices invoicedomain.Service
	Adapter  paymentdomain.Adapter
}

func NewService(p ServiceParam) billingdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("billing.service"),
		genID: p.GenID,
		clock: p.Clock,

		catalog:  p.Catalog,
		clients:  p.Clients,
		invoices: p.Invoices,
		adapter:  p.Adapter,
	}
}

func (s *Service) CreateSubscription(ctx context.Context, req billingdomain.CreateSubscriptionRequest) (*billingdomain.CreateSubscriptionResponse, error) {
	account, err := s.loadAccount(ctx, req.ClientExternalID)
	if err != nil {
		return nil, err
	}

	chosen, err := s.catalog.Get(strings.TrimSpace(req.PlanCode))
	if err != nil {
		return nil, billingdomain.ErrInvalidPlan
	}

	// A stored subscription id may be stale, so the provider has the last
	// word on whether the client is really still subscribed.
	if account.ProviderSubscriptionID != "" {
		current, err := s.adapter.GetSubscription(ctx, account.ProviderSubscriptionID)
		if err != nil {
			return nil, err
		}
		switch current.Status {
		case paymentdomain.SubscriptionStatusActive, paymentdomain.SubscriptionStatusPastDue:
			return nil, billingdomain.ErrAlreadySubscribed
		}
	}

	customerID := account.ProviderCustomerID
	if customerID == "" || account.Provider != s.adapter.Name() {
		customerID, err = s.adapter.EnsureCustomer(ctx, paymentdomain.EnsureCustomerRequest{
			ExternalID:  account.ExternalID,
			Email:       account.Email,
			DisplayName: account.DisplayName,
		})
		if err != nil {
			return nil, err
		}
	}

	created, err := s.adapter.CreateSubscription(ctx, customerID, chosen, uuid.NewString())
	if err != nil {
		return nil, err
	}

	now := s.clock.Now(ctx)
	nextPayment := now.Add(advisoryCycle)

	err = s.mutateAccount(ctx, account.ID, func(a *clientdomain.Account) {
		a.Provider = s.adapter.Name()
		a.ProviderCustomerID = customerID
		a.ProviderSubscriptionID = created.ID
		a.PlanCode = chosen.Code
		a.MonthlyFeeCents = chosen.AmountCents
		// Optimistically active; the activation webhook corrects this if
		// the payment authorization never completes.
		a.SubscriptionStatus = clientdomain.SubscriptionActive
		a.PaymentStatus = clientdomain.PaymentPending
		a.Status = clientdomain.AccountActive
		a.CancelAtPeriodEnd = false
		if !created.CurrentPeriodStart.IsZero() {
			start := created.CurrentPeriodStart
			a.CurrentPeriodStart = &start
		}
		if !created.CurrentPeriodEnd.IsZero() {
			end := created.CurrentPeriodEnd
			a.CurrentPeriodEnd = &end
		}
		a.NextPaymentAt = &nextPayment
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("subscription created",
		zap.String("client", account.ExternalID),
		zap.String("plan", chosen.Code),
		zap.String("subscription_id", created.ID),
	)

	return &billingdomain.CreateSubscriptionResponse{
		SubscriptionID:   created.ID,
		PlanCode:         chosen.Code,
		PlanName:         chosen.Name,
		AmountCents:      chosen.AmountCents,
		Currency:         chosen.Currency,
		Status:           string(clientdomain.SubscriptionActive),
		CompletionSecret: created.CompletionSecret,
		NextPaymentAt:    &nextPayment,
	}, nil
}

func (s *Service) ChangePlan(ctx context.Context, req billingdomain.ChangePlanRequest) (*billingdomain.ChangePlanResponse, error) {
	account, err := s.loadAccount(ctx, req.ClientExternalID)
	if err != nil {
		return nil, err
	}
	if account.ProviderSubscriptionID == "" {
		return nil, billingdomain.ErrNoActiveSubscription
	}

	newPlan, err := s.catalog.Get(strings.TrimSpace(req.NewPlanCode))
	if err != nil {
		return nil, billingdomain.ErrInvalidPlan
	}
	if newPlan.Code == account.PlanCode {
		return nil, billingdomain.ErrSamePlan
	}

	current, err := s.adapter.GetSubscription(ctx, account.ProviderSubscriptionID)
	if err != nil {
		return nil, err
	}
	switch current.Status {
	case paymentdomain.SubscriptionStatusActive, paymentdomain.SubscriptionStatusPastDue:
	default:
		return nil, billingdomain.ErrNoActiveSubscription
	}

	now := s.clock.Now(ctx)
	proration := computeProration(
		current.CurrentPeriodStart,
		current.CurrentPeriodEnd,
		now,
		account.MonthlyFeeCents,
		newPlan.AmountCents,
	)

	updated, err := s.adapter.ChangeSubscriptionPrice(ctx, account.ProviderSubscriptionID, newPlan)
	if err != nil {
		return nil, err
	}

	err = s.mutateAccount(ctx, account.ID, func(a *clientdomain.Account) {
		a.PlanCode = newPlan.Code
		a.MonthlyFeeCents = newPlan.AmountCents
		if !updated.CurrentPeriodStart.IsZero() {
			start := updated.CurrentPeriodStart
			a.CurrentPeriodStart = &start
		}
		if !updated.CurrentPeriodEnd.IsZero() {
			end := updated.CurrentPeriodEnd
			a.CurrentPeriodEnd = &end
		}
	})
	if err != nil {
		return nil, err
	}

	resp := &billingdomain.ChangePlanResponse{
		PlanCode:    newPlan.Code,
		PlanName:    newPlan.Name,
		AmountCents: newPlan.AmountCents,
		Proration:   proration,
	}

	// The provider applies its own proration; this ledger entry is the
	// local, human-readable record of the move. A failed append is a data
	// quality defect, not grounds to unwind a committed provider change.
	if proration.NetCents != 0 {
		direction := "upgrade"
		if proration.NetCents < 0 {
			direction = "downgrade"
		}
		rec, _, err := s.invoices.Append(ctx, invoicedomain.AppendRequest{
			AccountID:   account.ID,
			Provider:    s.adapter.Name(),
			PlanCode:    newPlan.Code,
			AmountCents: abs(proration.NetCents),
			Currency:    newPlan.Currency,
			Status:      invoicedomain.StatusPaid,
			Description: fmt.Sprintf("Plan %s to %s (prorated)", direction, newPlan.Name),
		})
		if err != nil {
			s.log.Warn("plan change ledger append failed",
				zap.String("client", account.ExternalID),
				zap.Error(err),
			)
		} else {
			resp.InvoiceNumber = rec.InvoiceNumber
		}
	}

	s.log.Info("plan changed",
		zap.String("client", account.ExternalID),
		zap.String("plan", newPlan.Code),
		zap.Int64("net_cents", proration.NetCents),
	)
	return resp, nil
}

func (s *Service) CancelSubscription(ctx context.Context, req billingdomain.CancelSubscriptionRequest) (*billingdomain.CancelSubscriptionResponse, error) {
	account, err := s.loadAccount(ctx, req.ClientExternalID)
	if err != nil {
		return nil, err
	}
	if account.ProviderSubscriptionID == "" {
		return nil, billingdomain.ErrNoActiveSubscription
	}

	planCode := account.PlanCode
	sub, err := s.adapter.CancelSubscription(ctx, account.ProviderSubscriptionID, req.Immediate)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now(ctx)
	resp := &billingdomain.CancelSubscriptionResponse{Immediate: req.Immediate}

	if req.Immediate {
		resp.EffectiveAt = &now
		err = s.mutateAccount(ctx, account.ID, func(a *clientdomain.Account) {
			a.ClearSubscription()
		})
	} else {
		// Benefits continue until the period lapses; the cancellation
		// webhook performs the actual teardown.
		if !sub.CurrentPeriodEnd.IsZero() {
			end := sub.CurrentPeriodEnd
			resp.EffectiveAt = &end
		}
		err = s.mutateAccount(ctx, account.ID, func(a *clientdomain.Account) {
			a.CancelAtPeriodEnd = true
		})
	}
	if err != nil {
		return nil, err
	}

	description := "Subscription cancellation scheduled at period end"
	if req.Immediate {
		description = "Subscription canceled immediately"
	}
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		description += ": " + reason
	}

	rec, _, err := s.invoices.Append(ctx, invoicedomain.AppendRequest{
		AccountID:   account.ID,
		Provider:    s.adapter.Name(),
		PlanCode:    planCode,
		AmountCents: 0,
		Status:      invoicedomain.StatusPaid,
		Description: description,
	})
	if err != nil {
		s.log.Warn("cancellation ledger append failed",
			zap.String("client", account.ExternalID),
			zap.Error(err),
		)
	} else {
		resp.InvoiceNumber = rec.InvoiceNumber
	}

	s.log.Info("subscription canceled",
		zap.String("client", account.ExternalID),
		zap.Bool("immediate", req.Immediate),
	)
	return resp, nil
}

func (s *Service) ReactivateSubscription(ctx context.Context, req billingdomain.ReactivateSubscriptionRequest) error {
	account, err := s.loadAccount(ctx, req.ClientExternalID)
	if err != nil {
		return err
	}
	if account.ProviderSubscriptionID == "" {
		return billingdomain.ErrNoActiveSubscription
	}

	current, err := s.adapter.GetSubscription(ctx, account.ProviderSubscriptionID)
	if err != nil {
		return err
	}
	if !current.CancelAtPeriodEnd {
		return billingdomain.ErrNotScheduledForCancel
	}

	if err := s.adapter.ReactivateSubscription(ctx, account.ProviderSubscriptionID); err != nil {
		return err
	}

	err = s.mutateAccount(ctx, account.ID, func(a *clientdomain.Account) {
		a.CancelAtPeriodEnd = false
	})
	if err != nil {
		return err
	}

	s.log.Info("subscription reactivated", zap.String("client", account.ExternalID))
	return nil
}

func (s *Service) GetSubscription(ctx context.Context, clientExternalID string) (*billingdomain.SubscriptionView, error) {
	account, err := s.loadAccount(ctx, clientExternalID)
	if err != nil {
		return nil, err
	}
	if account.ProviderSubscriptionID == "" || account.SubscriptionStatus == clientdomain.SubscriptionNone {
		return nil, nil
	}

	view := &billingdomain.SubscriptionView{
		PlanCode:      account.PlanCode,
		AmountCents:   account.MonthlyFeeCents,
		Currency:      "USD",
		Status:        string(account.SubscriptionStatus),
		PaymentStatus: string(account.PaymentStatus),
		CancelAtEnd:   account.CancelAtPeriodEnd,
		NextPaymentAt: account.NextPaymentAt,
		TotalSpent:    account.TotalSpentCents,
	}
	// The fee snapshot on the account survives catalog drift; the catalog
	// only decorates the view with name and features when the code still
	// resolves.
	if p, err := s.catalog.Get(account.PlanCode); err == nil {
		view.PlanName = p.Name
		view.Features = p.Features
		view.Currency = p.Currency
	}
	return view, nil
}

func (s *Service) loadAccount(ctx context.Context, externalID string) (*clientdomain.Account, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, billingdomain.ErrClientNotFound
	}
	account, err := s.clients.FindByExternalID(ctx, s.db, externalID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, billingdomain.ErrClientNotFound
	}
	return account, nil
}

// mutateAccount re-reads the account inside the write transaction and applies
// fn to the fresh row. Every writer asserts only the fields it is
// authoritative for, so a response persisted here cannot revert facts a
// concurrent webhook recorded between our read and our write.
func (s *Service) mutateAccount(ctx context.Context, id snowflake.ID, fn func(*clientdomain.Account)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.clients.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if account == nil {
			return billingdomain.ErrClientNotFound
		}
		fn(account)
		account.UpdatedAt = s.clock.Now(ctx)
		return s.clients.Update(ctx, tx, account)
	})
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
