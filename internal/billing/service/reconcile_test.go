package service

import (
	"context"
	"testing"
	"time"

	billingdomain "github.com/socialdesklabs/socialdesk/internal/billing/domain"
	clientdomain "github.com/socialdesklabs/socialdesk/internal/client/domain"
	invoicedomain "github.com/socialdesklabs/socialdesk/internal/invoice/domain"
	paymentdomain "github.com/socialdesklabs/socialdesk/internal/payment/domain"
	"github.com/stretchr/testify/require"
)

func (h *testHarness) subscribe(t *testing.T, externalID, planCode string) *clientdomain.Account {
	t.Helper()
	h.createAccount(t, externalID)
	_, err := h.svc.CreateSubscription(context.Background(), billingdomain.CreateSubscriptionRequest{
		ClientExternalID: externalID,
		PlanCode:         planCode,
	})
	require.NoError(t, err)
	return h.reload(t, externalID)
}

func TestApplyEventActivation(t *testing.T) {
	h := newTestHarness(t)
	account := h.subscribe(t, "acme", "pro")
	account.SubscriptionStatus = clientdomain.SubscriptionNone
	account.PaymentStatus = clientdomain.PaymentPending
	require.NoError(t, h.clients.Update(context.Background(), h.db, account))

	start := h.now
	end := h.now.Add(30 * 24 * time.Hour)
	err := h.svc.ApplyEvent(context.Background(), &paymentdomain.Event{
		Provider:       "stripe",
		Type:           paymentdomain.EventTypeSubscriptionActivated,
		SubscriptionID: account.ProviderSubscriptionID,
		PeriodStart:    &start,
		PeriodEnd:      &end,
	})
	require.NoError(t, err)

	account = h.reload(t, "acme")
	require.Equal(t, clientdomain.SubscriptionActive, account.SubscriptionStatus)
	require.Equal(t, clientdomain.PaymentPaid, account.PaymentStatus)
	require.Equal(t, clientdomain.AccountActive, account.Status)
}

func TestApplyEventPastDueSetsBothFlags(t *testing.T) {
	h := newTestHarness(t)
	account := h.subscribe(t, "acme", "pro")

	err := h.svc.ApplyEvent(context.Background(), &paymentdomain.Event{
		Provider:       "stripe",
		Type:           paymentdomain.EventTypeSubscriptionPastDue,
		SubscriptionID: account.ProviderSubscriptionID,
	})
	require.NoError(t, err)

	account = h.reload(t, "acme")
	require.Equal(t, clientdomain.SubscriptionPastDue, account.SubscriptionStatus)
	require.Equal(t, clientdomain.PaymentOverdue, account.PaymentStatus)
}

func TestApplyEventPaymentFailedFlipsOnlyPaymentStatus(t *testing.T) {
	h := newTestHarness(t)
	account := h.subscribe(t, "acme", "premium")

	err := h.svc.ApplyEvent(context.Background(), &paymentdomain.Event{
		Provider:       "stripe",
		Type:           paymentdomain.EventTypePaymentFailed,
		SubscriptionID: account.ProviderSubscriptionID,
	})
	require.NoError(t, err)

	account = h.reload(t, "acme")
	require.Equal(t, clientdomain.PaymentOverdue, account.PaymentStatus)
	require.Equal(t, clientdomain.SubscriptionActive, account.SubscriptionStatus)
	require.Equal(t, "premium", account.PlanCode)
}

func TestApplyEventCanceledTearsDown(t *testing.T) {
	h := newTestHarness(t)
	account := h.subscribe(t, "acme", "starter")

	err := h.svc.ApplyEvent(context.Background(), &paymentdomain.Event{
		Provider:       "stripe",
		Type:           paymentdomain.EventTypeSubscriptionCanceled,
		SubscriptionID: account.ProviderSubscriptionID,
	})
	require.NoError(t, err)

	account = h.reload(t, "acme")
	require.Equal(t, clientdomain.SubscriptionNone, account.SubscriptionStatus)
	require.Equal(t, clientdomain.AccountPaused, account.Status)
	require.Empty(t, account.ProviderSubscriptionID)
}

func TestApplyEventPaymentSucceededReplayIsIdempotent(t *testing.T) {
	h := newTestHarness(t)
	account := h.subscribe(t, "acme", "pro")

	end := h.now.Add(30 * 24 * time.Hour)
	event := &paymentdomain.Event{
		Provider:          "stripe",
		Type:              paymentdomain.EventTypePaymentSucceeded,
		SubscriptionID:    account.ProviderSubscriptionID,
		ProviderInvoiceID: "in_abc123",
		AmountCents:       25000,
		Currency:          "USD",
		PeriodEnd:         &end,
		OccurredAt:        h.now,
	}

	require.NoError(t, h.svc.ApplyEvent(context.Background(), event))
	require.NoError(t, h.svc.ApplyEvent(context.Background(), event))

	account = h.reload(t, "acme")
	require.Equal(t, int64(25000), account.TotalSpentCents)
	require.Equal(t, clientdomain.PaymentPaid, account.PaymentStatus)
	require.NotNil(t, account.NextPaymentAt)
	require.Equal(t, end, account.NextPaymentAt.UTC())

	var recs []*invoicedomain.Record
	require.NoError(t, h.db.Raw(`SELECT * FROM invoice_records WHERE account_id = ?`, account.ID).Scan(&recs).Error)
	require.Len(t, recs, 1)
	require.Equal(t, "in_abc123", recs[0].ProviderInvoiceID)
}

func TestApplyEventUnknownSubscriptionAcknowledged(t *testing.T) {
	h := newTestHarness(t)

	err := h.svc.ApplyEvent(context.Background(), &paymentdomain.Event{
		Provider:       "stripe",
		Type:           paymentdomain.EventTypePaymentSucceeded,
		SubscriptionID: "sub_never_seen",
	})
	require.NoError(t, err)
}

func TestApplyEventActivationAfterCancelAdoptsNewSubscription(t *testing.T) {
	h := newTestHarness(t)
	account := h.subscribe(t, "acme", "pro")
	customerID := account.ProviderCustomerID

	require.NoError(t, h.svc.ApplyEvent(context.Background(), &paymentdomain.Event{
		Provider:       "stripe",
		Type:           paymentdomain.EventTypeSubscriptionCanceled,
		SubscriptionID: account.ProviderSubscriptionID,
	}))

	// The provider starts a replacement subscription. Its activation
	// resolves through the customer id because the stored subscription id
	// was cleared, and the new id is adopted so the active row carries one.
	require.NoError(t, h.svc.ApplyEvent(context.Background(), &paymentdomain.Event{
		Provider:       "stripe",
		Type:           paymentdomain.EventTypeSubscriptionActivated,
		SubscriptionID: "sub_test_2",
		CustomerID:     customerID,
	}))

	reloaded := h.reload(t, "acme")
	require.Equal(t, clientdomain.SubscriptionActive, reloaded.SubscriptionStatus)
	require.Equal(t, "sub_test_2", reloaded.ProviderSubscriptionID)
	require.Equal(t, "stripe", reloaded.Provider)
}

func TestApplyEventActivationWithoutSubscriptionIDIgnored(t *testing.T) {
	h := newTestHarness(t)
	account := h.subscribe(t, "acme", "pro")
	customerID := account.ProviderCustomerID

	require.NoError(t, h.svc.ApplyEvent(context.Background(), &paymentdomain.Event{
		Provider:       "stripe",
		Type:           paymentdomain.EventTypeSubscriptionCanceled,
		SubscriptionID: account.ProviderSubscriptionID,
	}))

	// An activation naming no subscription cannot leave the account active
	// without a provider subscription id, so it is acknowledged unapplied.
	require.NoError(t, h.svc.ApplyEvent(context.Background(), &paymentdomain.Event{
		Provider:   "stripe",
		Type:       paymentdomain.EventTypeSubscriptionActivated,
		CustomerID: customerID,
	}))

	reloaded := h.reload(t, "acme")
	require.Equal(t, clientdomain.SubscriptionNone, reloaded.SubscriptionStatus)
	require.Empty(t, reloaded.ProviderSubscriptionID)
}

func TestApplyEventActivationUnresolvedSubscriptionAcknowledged(t *testing.T) {
	h := newTestHarness(t)
	account := h.subscribe(t, "acme", "pro")

	require.NoError(t, h.svc.ApplyEvent(context.Background(), &paymentdomain.Event{
		Provider:       "stripe",
		Type:           paymentdomain.EventTypeSubscriptionCanceled,
		SubscriptionID: account.ProviderSubscriptionID,
	}))

	// Neither the cleared subscription id nor a customer id resolves an
	// account, so the delivery is acknowledged without effect.
	require.NoError(t, h.svc.ApplyEvent(context.Background(), &paymentdomain.Event{
		Provider:       "stripe",
		Type:           paymentdomain.EventTypeSubscriptionActivated,
		SubscriptionID: "sub_test_1",
	}))

	reloaded := h.reload(t, "acme")
	require.Equal(t, clientdomain.SubscriptionNone, reloaded.SubscriptionStatus)
}

func TestIsTransitionAllowed(t *testing.T) {
	cases := []struct {
		from    clientdomain.SubscriptionStatus
		to      clientdomain.SubscriptionStatus
		allowed bool
	}{
		{clientdomain.SubscriptionNone, clientdomain.SubscriptionActive, true},
		{clientdomain.SubscriptionActive, clientdomain.SubscriptionPastDue, true},
		{clientdomain.SubscriptionPastDue, clientdomain.SubscriptionActive, true},
		{clientdomain.SubscriptionActive, clientdomain.SubscriptionCanceled, true},
		{clientdomain.SubscriptionPastDue, clientdomain.SubscriptionCanceled, true},
		{clientdomain.SubscriptionCanceled, clientdomain.SubscriptionNone, true},
		{clientdomain.SubscriptionCanceled, clientdomain.SubscriptionActive, true},
		{clientdomain.SubscriptionNone, clientdomain.SubscriptionPastDue, false},
		{clientdomain.SubscriptionNone, clientdomain.SubscriptionCanceled, false},
		{clientdomain.SubscriptionCanceled, clientdomain.SubscriptionPastDue, false},
		{clientdomain.SubscriptionActive, clientdomain.SubscriptionActive, true},
		{clientdomain.SubscriptionPastDue, clientdomain.SubscriptionPastDue, true},
	}
	for _, tc := range cases {
		require.Equal(t, tc.allowed, isTransitionAllowed(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}
