package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	paymentdomain "github.com/socialdesklabs/socialdesk/internal/payment/domain"
)

// signatureTolerance bounds how stale a signed delivery may be before it is
// rejected as a possible replay.
const signatureTolerance = 5 * time.Minute

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return paymentdomain.ErrInvalidConfig
	}

	header := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if header == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures := splitSignatureHeader(header)
	if timestamp == "" || len(signatures) == 0 {
		return paymentdomain.ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	age := time.Since(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return paymentdomain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return paymentdomain.ErrInvalidSignature
}

func splitSignatureHeader(header string) (string, []string) {
	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.TrimSpace(kv[0]) {
		case "t":
			timestamp = strings.TrimSpace(kv[1])
		case "v1":
			signatures = append(signatures, strings.TrimSpace(kv[1]))
		}
	}
	return timestamp, signatures
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.Event, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "customer.subscription.created", "customer.subscription.updated":
		return a.parseSubscriptionEvent(event, payload)
	case "customer.subscription.deleted":
		return a.parseSubscriptionDeleted(event, payload)
	case "invoice.payment_succeeded", "invoice.paid":
		return a.parseInvoiceEvent(event, payload, paymentdomain.EventTypePaymentSucceeded)
	case "invoice.payment_failed":
		return a.parseInvoiceEvent(event, payload, paymentdomain.EventTypePaymentFailed)
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
}

type stripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripeWebhookSubscription struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
}

type stripeWebhookInvoice struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	AmountPaid   int64  `json:"amount_paid"`
	AmountDue    int64  `json:"amount_due"`
	Currency     string `json:"currency"`
	PeriodStart  int64  `json:"period_start"`
	PeriodEnd    int64  `json:"period_end"`
	Created      int64  `json:"created"`
}

func (a *Adapter) parseSubscriptionEvent(event stripeEvent, payload []byte) (*paymentdomain.Event, error) {
	var sub stripeWebhookSubscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if sub.ID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	var eventType string
	switch normalizeStatus(sub.Status) {
	case paymentdomain.SubscriptionStatusActive:
		eventType = paymentdomain.EventTypeSubscriptionActivated
	case paymentdomain.SubscriptionStatusPastDue:
		eventType = paymentdomain.EventTypeSubscriptionPastDue
	case paymentdomain.SubscriptionStatusCanceled:
		eventType = paymentdomain.EventTypeSubscriptionCanceled
	default:
		// Incomplete subscriptions settle via a later update or expiry.
		return nil, paymentdomain.ErrEventIgnored
	}

	start := unixTime(sub.CurrentPeriodStart)
	end := unixTime(sub.CurrentPeriodEnd)
	return &paymentdomain.Event{
		Provider:        "stripe",
		ProviderEventID: event.ID,
		Type:            eventType,
		SubscriptionID:  sub.ID,
		CustomerID:      sub.Customer,
		PeriodStart:     start,
		PeriodEnd:       end,
		OccurredAt:      eventTime(event.Created),
		RawPayload:      payload,
	}, nil
}

func (a *Adapter) parseSubscriptionDeleted(event stripeEvent, payload []byte) (*paymentdomain.Event, error) {
	var sub stripeWebhookSubscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if sub.ID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	return &paymentdomain.Event{
		Provider:        "stripe",
		ProviderEventID: event.ID,
		Type:            paymentdomain.EventTypeSubscriptionCanceled,
		SubscriptionID:  sub.ID,
		CustomerID:      sub.Customer,
		OccurredAt:      eventTime(event.Created),
		RawPayload:      payload,
	}, nil
}

func (a *Adapter) parseInvoiceEvent(event stripeEvent, payload []byte, eventType string) (*paymentdomain.Event, error) {
	var inv stripeWebhookInvoice
	if err := json.Unmarshal(event.Data.Object, &inv); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if inv.ID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	amount := inv.AmountPaid
	if eventType == paymentdomain.EventTypePaymentFailed {
		amount = inv.AmountDue
	}
	return &paymentdomain.Event{
		Provider:          "stripe",
		ProviderEventID:   event.ID,
		Type:              eventType,
		SubscriptionID:    inv.Subscription,
		CustomerID:        inv.Customer,
		ProviderInvoiceID: inv.ID,
		AmountCents:       amount,
		Currency:          strings.ToUpper(strings.TrimSpace(inv.Currency)),
		PeriodStart:       unixTime(inv.PeriodStart),
		PeriodEnd:         unixTime(inv.PeriodEnd),
		OccurredAt:        eventTime(event.Created),
		RawPayload:        payload,
	}, nil
}

func unixTime(value int64) *time.Time {
	if value == 0 {
		return nil
	}
	t := time.Unix(value, 0).UTC()
	return &t
}

func eventTime(created int64) time.Time {
	if created == 0 {
		return time.Now().UTC()
	}
	return time.Unix(created, 0).UTC()
}
