package paypal

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	paymentdomain "github.com/socialdesklabs/socialdesk/internal/payment/domain"
)

// Verify authenticates a delivery through PayPal's verification API. PayPal
// signs with its own certificate rather than a shared secret, so the check
// is a remote call instead of a local HMAC.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookID == "" {
		return paymentdomain.ErrInvalidConfig
	}

	transmissionID := headers.Get("Paypal-Transmission-Id")
	transmissionSig := headers.Get("Paypal-Transmission-Sig")
	transmissionTime := headers.Get("Paypal-Transmission-Time")
	certURL := headers.Get("Paypal-Cert-Url")
	authAlgo := headers.Get("Paypal-Auth-Algo")
	if transmissionID == "" || transmissionSig == "" || transmissionTime == "" || certURL == "" {
		return paymentdomain.ErrInvalidSignature
	}

	body := map[string]any{
		"auth_algo":         authAlgo,
		"cert_url":          certURL,
		"transmission_id":   transmissionID,
		"transmission_sig":  transmissionSig,
		"transmission_time": transmissionTime,
		"webhook_id":        a.webhookID,
		"webhook_event":     json.RawMessage(payload),
	}

	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := a.doJSON(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", body, "", &out); err != nil {
		return err
	}
	if !strings.EqualFold(out.VerificationStatus, "SUCCESS") {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.Event, error) {
	var event paypalEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	switch strings.ToUpper(strings.TrimSpace(event.EventType)) {
	case "BILLING.SUBSCRIPTION.ACTIVATED", "BILLING.SUBSCRIPTION.RE-ACTIVATED":
		return a.parseSubscriptionEvent(event, payload, paymentdomain.EventTypeSubscriptionActivated)
	case "BILLING.SUBSCRIPTION.SUSPENDED":
		return a.parseSubscriptionEvent(event, payload, paymentdomain.EventTypeSubscriptionPastDue)
	case "BILLING.SUBSCRIPTION.CANCELLED", "BILLING.SUBSCRIPTION.EXPIRED":
		return a.parseSubscriptionEvent(event, payload, paymentdomain.EventTypeSubscriptionCanceled)
	case "BILLING.SUBSCRIPTION.PAYMENT.FAILED":
		return a.parseSubscriptionEvent(event, payload, paymentdomain.EventTypePaymentFailed)
	case "PAYMENT.SALE.COMPLETED":
		return a.parseSale(event, payload, paymentdomain.EventTypePaymentSucceeded)
	case "PAYMENT.SALE.DENIED":
		return a.parseSale(event, payload, paymentdomain.EventTypePaymentFailed)
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
}

type paypalEvent struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	CreateTime string          `json:"create_time"`
	Resource   json.RawMessage `json:"resource"`
}

func (a *Adapter) parseSubscriptionEvent(event paypalEvent, payload []byte, eventType string) (*paymentdomain.Event, error) {
	var sub paypalSubscription
	if err := json.Unmarshal(event.Resource, &sub); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if sub.ID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	var start, end *time.Time
	if t := parseTime(sub.BillingInfo.LastPayment.Time); !t.IsZero() {
		start = &t
	}
	if t := parseTime(sub.BillingInfo.NextBillingTime); !t.IsZero() {
		end = &t
	}

	return &paymentdomain.Event{
		Provider:        "paypal",
		ProviderEventID: event.ID,
		Type:            eventType,
		SubscriptionID:  sub.ID,
		PeriodStart:     start,
		PeriodEnd:       end,
		OccurredAt:      occurredAt(event.CreateTime),
		RawPayload:      payload,
	}, nil
}

func (a *Adapter) parseSale(event paypalEvent, payload []byte, eventType string) (*paymentdomain.Event, error) {
	var sale struct {
		ID                 string `json:"id"`
		BillingAgreementID string `json:"billing_agreement_id"`
		Amount             struct {
			Total    string `json:"total"`
			Currency string `json:"currency"`
		} `json:"amount"`
	}
	if err := json.Unmarshal(event.Resource, &sale); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if sale.ID == "" || sale.BillingAgreementID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	return &paymentdomain.Event{
		Provider:          "paypal",
		ProviderEventID:   event.ID,
		Type:              eventType,
		SubscriptionID:    sale.BillingAgreementID,
		ProviderInvoiceID: sale.ID,
		AmountCents:       parseAmountCents(sale.Amount.Total),
		Currency:          strings.ToUpper(strings.TrimSpace(sale.Amount.Currency)),
		OccurredAt:        occurredAt(event.CreateTime),
		RawPayload:        payload,
	}, nil
}

func parseAmountCents(total string) int64 {
	total = strings.TrimSpace(total)
	if total == "" {
		return 0
	}
	negative := strings.HasPrefix(total, "-")
	total = strings.TrimPrefix(total, "-")

	whole, frac, _ := strings.Cut(total, ".")
	var cents int64
	for _, r := range whole {
		if r < '0' || r > '9' {
			return 0
		}
		cents = cents*10 + int64(r-'0')
	}
	cents *= 100
	if len(frac) > 0 {
		if len(frac) > 2 {
			frac = frac[:2]
		}
		var f int64
		for _, r := range frac {
			if r < '0' || r > '9' {
				return 0
			}
			f = f*10 + int64(r-'0')
		}
		if len(frac) == 1 {
			f *= 10
		}
		cents += f
	}
	if negative {
		cents = -cents
	}
	return cents
}

func occurredAt(value string) time.Time {
	if t := parseTime(value); !t.IsZero() {
		return t
	}
	return time.Now().UTC()
}
