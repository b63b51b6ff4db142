package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/socialdesklabs/socialdesk/internal/config"
	paymentdomain "github.com/socialdesklabs/socialdesk/internal/payment/domain"
	"github.com/socialdesklabs/socialdesk/internal/plan"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.stripe.com"

type Adapter struct {
	apiKey        string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
	log           *zap.Logger
}

func New(cfg config.PaymentConfig, log *zap.Logger) *Adapter {
	return &Adapter{
		apiKey:        cfg.StripeSecretKey,
		webhookSecret: cfg.StripeWebhookSecret,
		baseURL:       defaultBaseURL,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		log:           log.Named("payment.stripe"),
	}
}

// NewWithBaseURL points the adapter at a different API host, used by tests
// against a local fake.
func NewWithBaseURL(cfg config.PaymentConfig, log *zap.Logger, baseURL string) *Adapter {
	a := New(cfg, log)
	a.baseURL = strings.TrimRight(baseURL, "/")
	return a
}

func (a *Adapter) Name() string { return "stripe" }

func (a *Adapter) EnsureCustomer(ctx context.Context, req paymentdomain.EnsureCustomerRequest) (string, error) {
	form := url.Values{}
	form.Set("email", req.Email)
	form.Set("name", req.DisplayName)
	form.Set("metadata[external_id]", req.ExternalID)

	var out struct {
		ID string `json:"id"`
	}
	// The idempotency key pins customer creation to the external id, so a
	// retried call can never mint a second provider customer.
	if err := a.do(ctx, http.MethodPost, "/v1/customers", form, "customer-"+req.ExternalID, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (a *Adapter) CreateSubscription(ctx context.Context, customerID string, p plan.Plan, idempotencyKey string) (*paymentdomain.CreatedSubscription, error) {
	priceID, err := a.ensurePrice(ctx, p)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("items[0][price]", priceID)
	form.Set("payment_behavior", "default_incomplete")
	form.Set("payment_settings[save_default_payment_method]", "on_subscription")
	form.Add("expand[]", "latest_invoice.payment_intent")

	var out stripeSubscription
	if err := a.do(ctx, http.MethodPost, "/v1/subscriptions", form, idempotencyKey, &out); err != nil {
		return nil, err
	}

	created := &paymentdomain.CreatedSubscription{
		Subscription:     out.toDomain(),
		CompletionSecret: out.LatestInvoice.PaymentIntent.ClientSecret,
	}
	return created, nil
}

func (a *Adapter) GetSubscription(ctx context.Context, subscriptionID string) (*paymentdomain.Subscription, error) {
	var out stripeSubscription
	if err := a.do(ctx, http.MethodGet, "/v1/subscriptions/"+subscriptionID, nil, "", &out); err != nil {
		return nil, err
	}
	sub := out.toDomain()
	return &sub, nil
}

func (a *Adapter) ChangeSubscriptionPrice(ctx context.Context, subscriptionID string, p plan.Plan) (*paymentdomain.Subscription, error) {
	var current stripeSubscription
	if err := a.do(ctx, http.MethodGet, "/v1/subscriptions/"+subscriptionID, nil, "", &current); err != nil {
		return nil, err
	}
	if len(current.Items.Data) == 0 {
		return nil, &paymentdomain.ProviderError{Provider: "stripe", Message: "subscription has no items"}
	}

	priceID, err := a.ensurePrice(ctx, p)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("items[0][id]", current.Items.Data[0].ID)
	form.Set("items[0][price]", priceID)
	// Stripe computes and applies its own proration for the swap.
	form.Set("proration_behavior", "create_prorations")

	var out stripeSubscription
	if err := a.do(ctx, http.MethodPost, "/v1/subscriptions/"+subscriptionID, form, "", &out); err != nil {
		return nil, err
	}
	sub := out.toDomain()
	return &sub, nil
}

func (a *Adapter) CancelSubscription(ctx context.Context, subscriptionID string, immediate bool) (*paymentdomain.Subscription, error) {
	var out stripeSubscription
	if immediate {
		form := url.Values{}
		form.Set("prorate", "true")
		if err := a.do(ctx, http.MethodDelete, "/v1/subscriptions/"+subscriptionID, form, "", &out); err != nil {
			return nil, err
		}
	} else {
		form := url.Values{}
		form.Set("cancel_at_period_end", "true")
		if err := a.do(ctx, http.MethodPost, "/v1/subscriptions/"+subscriptionID, form, "", &out); err != nil {
			return nil, err
		}
	}
	sub := out.toDomain()
	return &sub, nil
}

func (a *Adapter) ReactivateSubscription(ctx context.Context, subscriptionID string) error {
	form := url.Values{}
	form.Set("cancel_at_period_end", "false")
	var out stripeSubscription
	return a.do(ctx, http.MethodPost, "/v1/subscriptions/"+subscriptionID, form, "", &out)
}

// ensurePrice resolves the Stripe price for a catalog plan, creating the
// price (and its product) on first use. The lookup key makes the create
// idempotent across processes.
func (a *Adapter) ensurePrice(ctx context.Context, p plan.Plan) (string, error) {
	lookupKey := "socialdesk_" + p.Code

	var list struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	query := url.Values{}
	query.Add("lookup_keys[]", lookupKey)
	query.Set("active", "true")
	if err := a.do(ctx, http.MethodGet, "/v1/prices?"+query.Encode(), nil, "", &list); err != nil {
		return "", err
	}
	if len(list.Data) > 0 {
		return list.Data[0].ID, nil
	}

	form := url.Values{}
	form.Set("currency", strings.ToLower(p.Currency))
	form.Set("unit_amount", strconv.FormatInt(p.AmountCents, 10))
	form.Set("recurring[interval]", p.Interval)
	form.Set("lookup_key", lookupKey)
	form.Set("product_data[name]", "SocialDesk "+p.Name)

	var out struct {
		ID string `json:"id"`
	}
	if err := a.do(ctx, http.MethodPost, "/v1/prices", form, "price-"+p.Code, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (a *Adapter) do(ctx context.Context, method, path string, form url.Values, idempotencyKey string, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &paymentdomain.ProviderError{Provider: "stripe", Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &paymentdomain.ProviderError{Provider: "stripe", Message: err.Error()}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return parseAPIError(resp.StatusCode, raw)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &paymentdomain.ProviderError{Provider: "stripe", Message: "malformed response: " + err.Error()}
		}
	}
	return nil
}

func parseAPIError(status int, raw []byte) error {
	var payload struct {
		Error struct {
			Type    string `json:"type"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Message != "" {
		return &paymentdomain.ProviderError{
			Provider: "stripe",
			Code:     payload.Error.Code,
			Message:  payload.Error.Message,
		}
	}
	return &paymentdomain.ProviderError{
		Provider: "stripe",
		Message:  fmt.Sprintf("unexpected status %d", status),
	}
}

type stripeSubscription struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Items              struct {
		Data []struct {
			ID    string `json:"id"`
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
	LatestInvoice struct {
		PaymentIntent struct {
			ClientSecret string `json:"client_secret"`
		} `json:"payment_intent"`
	} `json:"latest_invoice"`
}

func (s stripeSubscription) toDomain() paymentdomain.Subscription {
	priceRef := ""
	if len(s.Items.Data) > 0 {
		priceRef = s.Items.Data[0].Price.ID
	}
	return paymentdomain.Subscription{
		ID:                 s.ID,
		Status:             normalizeStatus(s.Status),
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		CurrentPeriodStart: time.Unix(s.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:   time.Unix(s.CurrentPeriodEnd, 0).UTC(),
		PriceRef:           priceRef,
	}
}

func normalizeStatus(status string) string {
	switch strings.TrimSpace(status) {
	case "active", "trialing":
		return paymentdomain.SubscriptionStatusActive
	case "past_due", "unpaid":
		return paymentdomain.SubscriptionStatusPastDue
	case "canceled", "incomplete_expired":
		return paymentdomain.SubscriptionStatusCanceled
	default:
		return paymentdomain.SubscriptionStatusIncomplete
	}
}
