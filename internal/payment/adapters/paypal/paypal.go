package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/socialdesklabs/socialdesk/internal/config"
	paymentdomain "github.com/socialdesklabs/socialdesk/internal/payment/domain"
	"github.com/socialdesklabs/socialdesk/internal/plan"
	"go.uber.org/zap"
)

type Adapter struct {
	baseURL    string
	clientID   string
	secret     string
	webhookID  string
	httpClient *http.Client
	log        *zap.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
	planIDs     map[string]string
}

func New(cfg config.PaymentConfig, log *zap.Logger) *Adapter {
	return &Adapter{
		baseURL:    strings.TrimRight(cfg.PayPalBaseURL, "/"),
		clientID:   cfg.PayPalClientID,
		secret:     cfg.PayPalSecret,
		webhookID:  cfg.PayPalWebhookID,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		log:        log.Named("payment.paypal"),
		planIDs:    map[string]string{},
	}
}

func (a *Adapter) Name() string { return "paypal" }

// EnsureCustomer is a local derivation: PayPal subscriptions identify the
// payer at approval time, so there is no provider-side customer object to
// create up front.
func (a *Adapter) EnsureCustomer(ctx context.Context, req paymentdomain.EnsureCustomerRequest) (string, error) {
	if req.ExternalID == "" {
		return "", paymentdomain.ErrInvalidConfig
	}
	return "paypal:" + req.ExternalID, nil
}

func (a *Adapter) CreateSubscription(ctx context.Context, customerID string, p plan.Plan, idempotencyKey string) (*paymentdomain.CreatedSubscription, error) {
	planID, err := a.ensureBillingPlan(ctx, p)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"plan_id":   planID,
		"custom_id": customerID,
	}
	var out paypalSubscription
	if err := a.doJSON(ctx, http.MethodPost, "/v1/billing/subscriptions", body, idempotencyKey, &out); err != nil {
		return nil, err
	}

	return &paymentdomain.CreatedSubscription{
		Subscription:     out.toDomain(),
		CompletionSecret: out.approveLink(),
	}, nil
}

func (a *Adapter) GetSubscription(ctx context.Context, subscriptionID string) (*paymentdomain.Subscription, error) {
	var out paypalSubscription
	if err := a.doJSON(ctx, http.MethodGet, "/v1/billing/subscriptions/"+subscriptionID, nil, "", &out); err != nil {
		return nil, err
	}
	sub := out.toDomain()
	return &sub, nil
}

func (a *Adapter) ChangeSubscriptionPrice(ctx context.Context, subscriptionID string, p plan.Plan) (*paymentdomain.Subscription, error) {
	planID, err := a.ensureBillingPlan(ctx, p)
	if err != nil {
		return nil, err
	}

	body := map[string]any{"plan_id": planID}
	if err := a.doJSON(ctx, http.MethodPost, "/v1/billing/subscriptions/"+subscriptionID+"/revise", body, "", nil); err != nil {
		return nil, err
	}
	return a.GetSubscription(ctx, subscriptionID)
}

func (a *Adapter) CancelSubscription(ctx context.Context, subscriptionID string, immediate bool) (*paymentdomain.Subscription, error) {
	// PayPal has no cancel-at-period-end flag; a suspend keeps the
	// subscription resumable until the period lapses, a cancel is final.
	path := "/v1/billing/subscriptions/" + subscriptionID + "/suspend"
	reason := "scheduled cancellation"
	if immediate {
		path = "/v1/billing/subscriptions/" + subscriptionID + "/cancel"
		reason = "immediate cancellation"
	}
	if err := a.doJSON(ctx, http.MethodPost, path, map[string]any{"reason": reason}, "", nil); err != nil {
		return nil, err
	}
	return a.GetSubscription(ctx, subscriptionID)
}

func (a *Adapter) ReactivateSubscription(ctx context.Context, subscriptionID string) error {
	body := map[string]any{"reason": "client reactivated"}
	return a.doJSON(ctx, http.MethodPost, "/v1/billing/subscriptions/"+subscriptionID+"/activate", body, "", nil)
}

// ensureBillingPlan creates the PayPal product and billing plan backing a
// catalog plan on first use and caches the mapping for the process lifetime.
func (a *Adapter) ensureBillingPlan(ctx context.Context, p plan.Plan) (string, error) {
	a.mu.Lock()
	if id, ok := a.planIDs[p.Code]; ok {
		a.mu.Unlock()
		return id, nil
	}
	a.mu.Unlock()

	productID := "SOCIALDESK-" + strings.ToUpper(p.Code)
	product := map[string]any{
		"id":   productID,
		"name": "SocialDesk " + p.Name,
		"type": "SERVICE",
	}
	err := a.doJSON(ctx, http.MethodPost, "/v1/catalogs/products", product, "product-"+p.Code, nil)
	if err != nil {
		if pe, ok := paymentdomain.AsProviderError(err); !ok || pe.Code != "DUPLICATE_RESOURCE_IDENTIFIER" {
			return "", err
		}
	}

	billingPlan := map[string]any{
		"product_id": productID,
		"name":       "SocialDesk " + p.Name + " Monthly",
		"billing_cycles": []map[string]any{{
			"frequency": map[string]any{
				"interval_unit":  strings.ToUpper(p.Interval),
				"interval_count": 1,
			},
			"tenure_type": "REGULAR",
			"sequence":    1,
			"total_cycles": 0,
			"pricing_scheme": map[string]any{
				"fixed_price": map[string]any{
					"value":         formatAmount(p.AmountCents),
					"currency_code": p.Currency,
				},
			},
		}},
		"payment_preferences": map[string]any{
			"auto_bill_outstanding": true,
			"payment_failure_threshold": 3,
		},
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := a.doJSON(ctx, http.MethodPost, "/v1/billing/plans", billingPlan, "plan-"+p.Code, &created); err != nil {
		return "", err
	}

	a.mu.Lock()
	a.planIDs[p.Code] = created.ID
	a.mu.Unlock()
	return created.ID, nil
}

func formatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

func (a *Adapter) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.accessToken != "" && time.Now().Before(a.tokenExpiry) {
		return a.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(a.clientID, a.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", &paymentdomain.ProviderError{Provider: "paypal", Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &paymentdomain.ProviderError{Provider: "paypal", Message: fmt.Sprintf("token request failed with status %d", resp.StatusCode)}
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &paymentdomain.ProviderError{Provider: "paypal", Message: err.Error()}
	}

	a.accessToken = out.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn-60) * time.Second)
	return a.accessToken, nil
}

func (a *Adapter) doJSON(ctx context.Context, method, path string, in any, requestID string, out any) error {
	token, err := a.token(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &paymentdomain.ProviderError{Provider: "paypal", Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &paymentdomain.ProviderError{Provider: "paypal", Message: err.Error()}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var payload struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Message != "" {
			return &paymentdomain.ProviderError{Provider: "paypal", Code: payload.Name, Message: payload.Message}
		}
		return &paymentdomain.ProviderError{Provider: "paypal", Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return &paymentdomain.ProviderError{Provider: "paypal", Message: "malformed response: " + err.Error()}
		}
	}
	return nil
}

type paypalSubscription struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	PlanID      string `json:"plan_id"`
	BillingInfo struct {
		NextBillingTime string `json:"next_billing_time"`
		LastPayment     struct {
			Time string `json:"time"`
		} `json:"last_payment"`
	} `json:"billing_info"`
	Links []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
}

func (s paypalSubscription) toDomain() paymentdomain.Subscription {
	return paymentdomain.Subscription{
		ID:                 s.ID,
		Status:             normalizeStatus(s.Status),
		CancelAtPeriodEnd:  strings.EqualFold(s.Status, "SUSPENDED"),
		CurrentPeriodStart: parseTime(s.BillingInfo.LastPayment.Time),
		CurrentPeriodEnd:   parseTime(s.BillingInfo.NextBillingTime),
		PriceRef:           s.PlanID,
	}
}

func (s paypalSubscription) approveLink() string {
	for _, link := range s.Links {
		if strings.EqualFold(link.Rel, "approve") {
			return link.Href
		}
	}
	return ""
}

func normalizeStatus(status string) string {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "ACTIVE":
		return paymentdomain.SubscriptionStatusActive
	case "SUSPENDED":
		return paymentdomain.SubscriptionStatusPastDue
	case "CANCELLED", "EXPIRED":
		return paymentdomain.SubscriptionStatusCanceled
	default:
		return paymentdomain.SubscriptionStatusIncomplete
	}
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
