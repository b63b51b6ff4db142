package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	billingdomain "github.com/socialdesklabs/socialdesk/internal/billing/domain"
	clientdomain "github.com/socialdesklabs/socialdesk/internal/client/domain"
	clientrepo "github.com/socialdesklabs/socialdesk/internal/client/repository"
	"github.com/socialdesklabs/socialdesk/internal/clock"
	invoicedomain "github.com/socialdesklabs/socialdesk/internal/invoice/domain"
	invoicerepo "github.com/socialdesklabs/socialdesk/internal/invoice/repository"
	invoiceservice "github.com/socialdesklabs/socialdesk/internal/invoice/service"
	paymentdomain "github.com/socialdesklabs/socialdesk/internal/payment/domain"
	"github.com/socialdesklabs/socialdesk/internal/plan"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeAdapter scripts provider responses and counts mutating calls so tests
// can assert that guard failures never reach the provider.
type fakeAdapter struct {
	subscription *paymentdomain.Subscription

	ensureCustomerCalls int
	createCalls         int
	changeCalls         int
	cancelCalls         int
	reactivateCalls     int

	lastImmediate bool

	// onChange runs before ChangeSubscriptionPrice returns, letting tests
	// interleave webhook deliveries with an in-flight plan change.
	onChange func()
}

func (f *fakeAdapter) Name() string { return "stripe" }

func (f *fakeAdapter) EnsureCustomer(ctx context.Context, req paymentdomain.EnsureCustomerRequest) (string, error) {
	f.ensureCustomerCalls++
	return "cus_" + req.ExternalID, nil
}

func (f *fakeAdapter) CreateSubscription(ctx context.Context, customerID string, p plan.Plan, idempotencyKey string) (*paymentdomain.CreatedSubscription, error) {
	f.createCalls++
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(30 * 24 * time.Hour)
	f.subscription = &paymentdomain.Subscription{
		ID:                 "sub_test_1",
		Status:             paymentdomain.SubscriptionStatusIncomplete,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
		PriceRef:           p.Code,
	}
	return &paymentdomain.CreatedSubscription{
		Subscription:     *f.subscription,
		CompletionSecret: "pi_secret_123",
	}, nil
}

func (f *fakeAdapter) GetSubscription(ctx context.Context, subscriptionID string) (*paymentdomain.Subscription, error) {
	if f.subscription == nil || f.subscription.ID != subscriptionID {
		return nil, &paymentdomain.ProviderError{Provider: "stripe", Code: "resource_missing", Message: "no such subscription"}
	}
	sub := *f.subscription
	return &sub, nil
}

func (f *fakeAdapter) ChangeSubscriptionPrice(ctx context.Context, subscriptionID string, p plan.Plan) (*paymentdomain.Subscription, error) {
	f.changeCalls++
	if f.onChange != nil {
		f.onChange()
	}
	f.subscription.PriceRef = p.Code
	sub := *f.subscription
	return &sub, nil
}

func (f *fakeAdapter) CancelSubscription(ctx context.Context, subscriptionID string, immediate bool) (*paymentdomain.Subscription, error) {
	f.cancelCalls++
	f.lastImmediate = immediate
	if immediate {
		f.subscription.Status = paymentdomain.SubscriptionStatusCanceled
	} else {
		f.subscription.CancelAtPeriodEnd = true
	}
	sub := *f.subscription
	return &sub, nil
}

func (f *fakeAdapter) ReactivateSubscription(ctx context.Context, subscriptionID string) error {
	f.reactivateCalls++
	f.subscription.CancelAtPeriodEnd = false
	return nil
}

func (f *fakeAdapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	return nil
}

func (f *fakeAdapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.Event, error) {
	return nil, paymentdomain.ErrEventIgnored
}

type testHarness struct {
	svc     *Service
	adapter *fakeAdapter
	db      *gorm.DB
	clients clientdomain.Repository
	now     time.Time
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&clientdomain.Account{},
		&invoicedomain.Record{},
		&paymentdomain.EventRecord{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	now := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	fixed := clock.Fixed{T: now}

	invoices := invoiceservice.NewService(invoiceservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fixed,
		Repo:  invoicerepo.Provide(),
	})

	adapter := &fakeAdapter{}
	clients := clientrepo.Provide()
	svc := &Service{
		db:       db,
		log:      zap.NewNop(),
		genID:    node,
		clock:    fixed,
		catalog:  plan.NewCatalog(),
		clients:  clients,
		invoices: invoices,
		adapter:  adapter,
	}

	return &testHarness{svc: svc, adapter: adapter, db: db, clients: clients, now: now}
}

func (h *testHarness) createAccount(t *testing.T, externalID string) *clientdomain.Account {
	t.Helper()
	account := &clientdomain.Account{
		ID:                 h.svc.genID.Generate(),
		ExternalID:         externalID,
		Email:              externalID + "@example.com",
		DisplayName:        "Test Client",
		Status:             clientdomain.AccountActive,
		SubscriptionStatus: clientdomain.SubscriptionNone,
		PaymentStatus:      clientdomain.PaymentPending,
		CreatedAt:          h.now,
		UpdatedAt:          h.now,
	}
	require.NoError(t, h.clients.Insert(context.Background(), h.db, account))
	return account
}

func (h *testHarness) reload(t *testing.T, externalID string) *clientdomain.Account {
	t.Helper()
	account, err := h.clients.FindByExternalID(context.Background(), h.db, externalID)
	require.NoError(t, err)
	require.NotNil(t, account)
	return account
}

func TestCreateSubscriptionOptimisticallyActive(t *testing.T) {
	h := newTestHarness(t)
	h.createAccount(t, "acme")

	resp, err := h.svc.CreateSubscription(context.Background(), billingdomain.CreateSubscriptionRequest{
		ClientExternalID: "acme",
		PlanCode:         "pro",
	})
	require.NoError(t, err)
	require.Equal(t, "sub_test_1", resp.SubscriptionID)
	require.Equal(t, "active", resp.Status)
	require.Equal(t, "pi_secret_123", resp.CompletionSecret)
	require.Equal(t, int64(25000), resp.AmountCents)

	account := h.reload(t, "acme")
	require.Equal(t, clientdomain.SubscriptionActive, account.SubscriptionStatus)
	require.Equal(t, clientdomain.PaymentPending, account.PaymentStatus)
	require.Equal(t, "pro", account.PlanCode)
	require.Equal(t, "cus_acme", account.ProviderCustomerID)
	require.NotNil(t, account.NextPaymentAt)
	require.Equal(t, h.now.Add(30*24*time.Hour), account.NextPaymentAt.UTC())
	require.Equal(t, 1, h.adapter.ensureCustomerCalls)
	require.Equal(t, 1, h.adapter.createCalls)
}

func TestCreateSubscriptionRejectsUnknownPlan(t *testing.T) {
	h := newTestHarness(t)
	h.createAccount(t, "acme")

	_, err := h.svc.CreateSubscription(context.Background(), billingdomain.CreateSubscriptionRequest{
		ClientExternalID: "acme",
		PlanCode:         "enterprise",
	})
	require.ErrorIs(t, err, billingdomain.ErrInvalidPlan)
	require.Zero(t, h.adapter.createCalls)
}

func TestCreateSubscriptionRejectsActiveDuplicate(t *testing.T) {
	h := newTestHarness(t)
	h.createAccount(t, "acme")

	_, err := h.svc.CreateSubscription(context.Background(), billingdomain.CreateSubscriptionRequest{
		ClientExternalID: "acme", PlanCode: "starter",
	})
	require.NoError(t, err)
	h.adapter.subscription.Status = paymentdomain.SubscriptionStatusActive

	_, err = h.svc.CreateSubscription(context.Background(), billingdomain.CreateSubscriptionRequest{
		ClientExternalID: "acme", PlanCode: "pro",
	})
	require.ErrorIs(t, err, billingdomain.ErrAlreadySubscribed)
	require.Equal(t, 1, h.adapter.createCalls)
}

func TestCreateSubscriptionUnknownClient(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.svc.CreateSubscription(context.Background(), billingdomain.CreateSubscriptionRequest{
		ClientExternalID: "ghost", PlanCode: "starter",
	})
	require.ErrorIs(t, err, billingdomain.ErrClientNotFound)
	require.Zero(t, h.adapter.ensureCustomerCalls)
}

func TestChangePlanRecordsProratedLedgerEntry(t *testing.T) {
	h := newTestHarness(t)
	h.createAccount(t, "acme")

	_, err := h.svc.CreateSubscription(context.Background(), billingdomain.CreateSubscriptionRequest{
		ClientExternalID: "acme", PlanCode: "starter",
	})
	require.NoError(t, err)
	h.adapter.subscription.Status = paymentdomain.SubscriptionStatusActive

	// Period is 2026-03-01 to 2026-03-31 and the clock sits at its exact
	// midpoint, so half the old fee is unused.
	resp, err := h.svc.ChangePlan(context.Background(), billingdomain.ChangePlanRequest{
		ClientExternalID: "acme",
		NewPlanCode:      "premium",
	})
	require.NoError(t, err)
	require.Equal(t, int64(5000), resp.Proration.UnusedCreditCents)
	require.Equal(t, int64(20000), resp.Proration.NewChargeCents)
	require.Equal(t, int64(15000), resp.Proration.NetCents)
	require.NotEmpty(t, resp.InvoiceNumber)

	account := h.reload(t, "acme")
	require.Equal(t, "premium", account.PlanCode)
	require.Equal(t, int64(40000), account.MonthlyFeeCents)
	require.Equal(t, 1, h.adapter.changeCalls)

	var recs []*invoicedomain.Record
	require.NoError(t, h.db.Raw(`SELECT * FROM invoice_records WHERE account_id = ?`, account.ID).Scan(&recs).Error)
	require.Len(t, recs, 1)
	require.Equal(t, int64(15000), recs[0].AmountCents)
	require.Contains(t, recs[0].Description, "upgrade")
}

func TestChangePlanPreservesConcurrentWebhookWrites(t *testing.T) {
	h := newTestHarness(t)
	h.createAccount(t, "acme")

	_, err := h.svc.CreateSubscription(context.Background(), billingdomain.CreateSubscriptionRequest{
		ClientExternalID: "acme", PlanCode: "starter",
	})
	require.NoError(t, err)
	h.adapter.subscription.Status = paymentdomain.SubscriptionStatusActive

	// A payment failure lands while the plan change is waiting on the
	// provider. Persisting the response must not revert it.
	h.adapter.onChange = func() {
		account := h.reload(t, "acme")
		require.NoError(t, h.svc.ApplyEvent(context.Background(), &paymentdomain.Event{
			Provider:       "stripe",
			Type:           paymentdomain.EventTypePaymentFailed,
			SubscriptionID: account.ProviderSubscriptionID,
			OccurredAt:     h.now,
		}))
	}

	_, err = h.svc.ChangePlan(context.Background(), billingdomain.ChangePlanRequest{
		ClientExternalID: "acme", NewPlanCode: "premium",
	})
	require.NoError(t, err)

	account := h.reload(t, "acme")
	require.Equal(t, "premium", account.PlanCode)
	require.Equal(t, clientdomain.PaymentOverdue, account.PaymentStatus)
}

func TestChangePlanSamePlanRejected(t *testing.T) {
	h := newTestHarness(t)
	h.createAccount(t, "acme")

	_, err := h.svc.CreateSubscription(context.Background(), billingdomain.CreateSubscriptionRequest{
		ClientExternalID: "acme", PlanCode: "pro",
	})
	require.NoError(t, err)
	h.adapter.subscription.Status = paymentdomain.SubscriptionStatusActive

	_, err = h.svc.ChangePlan(context.Background(), billingdomain.ChangePlanRequest{
		ClientExternalID: "acme", NewPlanCode: "pro",
	})
	require.ErrorIs(t, err, billingdomain.ErrSamePlan)
	require.Zero(t, h.adapter.changeCalls)
}

func TestChangePlanWithoutSubscription(t *testing.T) {
	h := newTestHarness(t)
	h.createAccount(t, "acme")

	_, err := h.svc.ChangePlan(context.Background(), billingdomain.ChangePlanRequest{
		ClientExternalID: "acme", NewPlanCode: "pro",
	})
	require.ErrorIs(t, err, billingdomain.ErrNoActiveSubscription)
	require.Zero(t, h.adapter.changeCalls)
}

func TestCancelSubscriptionImmediateClearsAccount(t *testing.T) {
	h := newTestHarness(t)
	h.createAccount(t, "acme")

	_, err := h.svc.CreateSubscription(context.Background(), billingdomain.CreateSubscriptionRequest{
		ClientExternalID: "acme", PlanCode: "pro",
	})
	require.NoError(t, err)
	h.adapter.subscription.Status = paymentdomain.SubscriptionStatusActive

	resp, err := h.svc.CancelSubscription(context.Background(), billingdomain.CancelSubscriptionRequest{
		ClientExternalID: "acme",
		Immediate:        true,
		Reason:           "moving in-house",
	})
	require.NoError(t, err)
	require.True(t, resp.Immediate)
	require.NotNil(t, resp.EffectiveAt)
	require.Equal(t, h.now, resp.EffectiveAt.UTC())
	require.True(t, h.adapter.lastImmediate)

	account := h.reload(t, "acme")
	require.Equal(t, clientdomain.SubscriptionNone, account.SubscriptionStatus)
	require.Equal(t, clientdomain.AccountPaused, account.Status)
	require.Empty(t, account.ProviderSubscriptionID)
	require.Empty(t, account.PlanCode)
	require.Zero(t, account.MonthlyFeeCents)
	require.Nil(t, account.NextPaymentAt)

	var recs []*invoicedomain.Record
	require.NoError(t, h.db.Raw(`SELECT * FROM invoice_records WHERE account_id = ?`, account.ID).Scan(&recs).Error)
	require.Len(t, recs, 1)
	require.Zero(t, recs[0].AmountCents)
	require.Contains(t, recs[0].Description, "moving in-house")
}

func TestCancelSubscriptionAtPeriodEndKeepsBenefits(t *testing.T) {
	h := newTestHarness(t)
	h.createAccount(t, "acme")

	_, err := h.svc.CreateSubscription(context.Background(), billingdomain.CreateSubscriptionRequest{
		ClientExternalID: "acme", PlanCode: "pro",
	})
	require.NoError(t, err)
	h.adapter.subscription.Status = paymentdomain.SubscriptionStatusActive

	resp, err := h.svc.CancelSubscription(context.Background(), billingdomain.CancelSubscriptionRequest{
		ClientExternalID: "acme",
	})
	require.NoError(t, err)
	require.False(t, resp.Immediate)
	require.NotNil(t, resp.EffectiveAt)
	require.Equal(t, h.adapter.subscription.CurrentPeriodEnd, resp.EffectiveAt.UTC())

	account := h.reload(t, "acme")
	require.True(t, account.CancelAtPeriodEnd)
	require.Equal(t, clientdomain.SubscriptionActive, account.SubscriptionStatus)
	require.Equal(t, "pro", account.PlanCode)
	require.NotEmpty(t, account.ProviderSubscriptionID)
}

func TestCancelSubscriptionWithoutSubscription(t *testing.T) {
	h := newTestHarness(t)
	h.createAccount(t, "acme")

	_, err := h.svc.CancelSubscription(context.Background(), billingdomain.CancelSubscriptionRequest{
		ClientExternalID: "acme", Immediate: true,
	})
	require.ErrorIs(t, err, billingdomain.ErrNoActiveSubscription)
	require.Zero(t, h.adapter.cancelCalls)
}

func TestReactivateSubscription(t *testing.T) {
	h := newTestHarness(t)
	h.createAccount(t, "acme")

	_, err := h.svc.CreateSubscription(context.Background(), billingdomain.CreateSubscriptionRequest{
		ClientExternalID: "acme", PlanCode: "pro",
	})
	require.NoError(t, err)
	h.adapter.subscription.Status = paymentdomain.SubscriptionStatusActive

	// Not scheduled for cancellation yet.
	err = h.svc.ReactivateSubscription(context.Background(), billingdomain.ReactivateSubscriptionRequest{
		ClientExternalID: "acme",
	})
	require.ErrorIs(t, err, billingdomain.ErrNotScheduledForCancel)
	require.Zero(t, h.adapter.reactivateCalls)

	_, err = h.svc.CancelSubscription(context.Background(), billingdomain.CancelSubscriptionRequest{
		ClientExternalID: "acme",
	})
	require.NoError(t, err)

	err = h.svc.ReactivateSubscription(context.Background(), billingdomain.ReactivateSubscriptionRequest{
		ClientExternalID: "acme",
	})
	require.NoError(t, err)
	require.Equal(t, 1, h.adapter.reactivateCalls)

	account := h.reload(t, "acme")
	require.False(t, account.CancelAtPeriodEnd)
}

func TestGetSubscriptionView(t *testing.T) {
	h := newTestHarness(t)
	h.createAccount(t, "acme")

	view, err := h.svc.GetSubscription(context.Background(), "acme")
	require.NoError(t, err)
	require.Nil(t, view)

	_, err = h.svc.CreateSubscription(context.Background(), billingdomain.CreateSubscriptionRequest{
		ClientExternalID: "acme", PlanCode: "premium",
	})
	require.NoError(t, err)

	view, err = h.svc.GetSubscription(context.Background(), "acme")
	require.NoError(t, err)
	require.NotNil(t, view)
	require.Equal(t, "premium", view.PlanCode)
	require.Equal(t, "Premium", view.PlanName)
	require.Equal(t, int64(40000), view.AmountCents)
	require.NotEmpty(t, view.Features)
}
