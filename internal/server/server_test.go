package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	billingdomain "github.com/socialdesklabs/socialdesk/internal/billing/domain"
	"github.com/socialdesklabs/socialdesk/internal/billing/webhook"
	clientdomain "github.com/socialdesklabs/socialdesk/internal/client/domain"
	clientrepo "github.com/socialdesklabs/socialdesk/internal/client/repository"
	"github.com/socialdesklabs/socialdesk/internal/clock"
	"github.com/socialdesklabs/socialdesk/internal/config"
	invoicedomain "github.com/socialdesklabs/socialdesk/internal/invoice/domain"
	invoicerepo "github.com/socialdesklabs/socialdesk/internal/invoice/repository"
	invoiceservice "github.com/socialdesklabs/socialdesk/internal/invoice/service"
	"github.com/socialdesklabs/socialdesk/internal/payment"
	paymentdomain "github.com/socialdesklabs/socialdesk/internal/payment/domain"
	paymentrepo "github.com/socialdesklabs/socialdesk/internal/payment/repository"
	"github.com/socialdesklabs/socialdesk/internal/plan"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// stubBilling answers every billing call with scripted values.
type stubBilling struct {
	billingdomain.Service

	createResp *billingdomain.CreateSubscriptionResponse
	createErr  error
	view       *billingdomain.SubscriptionView
	viewErr    error
}

func (s *stubBilling) CreateSubscription(ctx context.Context, req billingdomain.CreateSubscriptionRequest) (*billingdomain.CreateSubscriptionResponse, error) {
	return s.createResp, s.createErr
}

func (s *stubBilling) GetSubscription(ctx context.Context, clientExternalID string) (*billingdomain.SubscriptionView, error) {
	return s.view, s.viewErr
}

func newTestServer(t *testing.T) (*Server, *stubBilling) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&clientdomain.Account{},
		&invoicedomain.Record{},
		&paymentdomain.EventRecord{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fixed := clock.Fixed{T: time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)}

	cfg := config.Config{Environment: "test", ServerAddr: ":0"}
	cfg.Payment.Provider = "stripe"
	cfg.Payment.StripeWebhookSecret = "whsec_test"

	invoices := invoiceservice.NewService(invoiceservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fixed,
		Repo:  invoicerepo.Provide(),
	})

	billing := &stubBilling{}
	webhookSvc := webhook.NewService(webhook.ServiceParam{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fixed,
		Registry: payment.NewRegistry(cfg, zap.NewNop()),
		Events:   paymentrepo.ProvideEventRepository(),
		Billing:  billing,
	})

	srv := NewServer(ServerParam{
		Cfg:        cfg,
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fixed,
		Catalog:    plan.NewCatalog(),
		Clients:    clientrepo.Provide(),
		InvoiceSvc: invoices,
		BillingSvc: billing,
		WebhookSvc: webhookSvc,
	})
	return srv, billing
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestListPlansOrderedByPrice(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/v1/billing/plans", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []plan.Plan `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 3)
	require.Equal(t, "starter", resp.Data[0].Code)
	require.Equal(t, "pro", resp.Data[1].Code)
	require.Equal(t, "premium", resp.Data[2].Code)
}

func TestCreateClientValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/v1/clients", map[string]string{"email": "a@b.co"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/v1/clients", map[string]string{"external_id": "acme", "email": "nomail"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/v1/clients", map[string]string{"external_id": "acme", "email": "a@b.co"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Same external id again conflicts.
	rec = doRequest(t, srv, http.MethodPost, "/v1/clients", map[string]string{"external_id": "acme", "email": "a@b.co"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetClientNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/v1/clients/ghost", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSubscriptionRequiresPlanCode(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/v1/billing/clients/acme/subscription", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Error struct {
			Code  string `json:"code"`
			Field string `json:"field"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "required", resp.Error.Code)
	require.Equal(t, "plan_code", resp.Error.Field)
}

func TestCreateSubscriptionConflictMapsTo409(t *testing.T) {
	srv, billing := newTestServer(t)
	billing.createErr = billingdomain.ErrAlreadySubscribed

	rec := doRequest(t, srv, http.MethodPost, "/v1/billing/clients/acme/subscription", map[string]string{"plan_code": "pro"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateSubscriptionProviderErrorMapsTo400(t *testing.T) {
	srv, billing := newTestServer(t)
	billing.createErr = &paymentdomain.ProviderError{Provider: "stripe", Code: "card_declined", Message: "Your card was declined."}

	rec := doRequest(t, srv, http.MethodPost, "/v1/billing/clients/acme/subscription", map[string]string{"plan_code": "pro"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Error struct {
			Code     string `json:"code"`
			Provider string `json:"provider"`
			Message  string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "payment_provider_error", resp.Error.Code)
	require.Equal(t, "stripe", resp.Error.Provider)
	require.Equal(t, "Your card was declined.", resp.Error.Message)
}

func TestGetSubscriptionReturnsView(t *testing.T) {
	srv, billing := newTestServer(t)
	billing.view = &billingdomain.SubscriptionView{PlanCode: "pro", AmountCents: 25000, Status: "active"}

	rec := doRequest(t, srv, http.MethodGet, "/v1/billing/clients/acme/subscription", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data billingdomain.SubscriptionView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "pro", resp.Data.PlanCode)
}

func TestWebhookRejectsUnsignedDelivery(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewBufferString(`{"id":"evt_1"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookRejectsUnknownProvider(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/square", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
}

func TestListInvoicesForClient(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/v1/clients", map[string]string{"external_id": "acme", "email": "a@b.co"})
	require.Equal(t, http.StatusOK, rec.Code)

	var created struct {
		Data clientdomain.Account `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	_, _, err := srv.invoiceSvc.Append(context.Background(), invoicedomain.AppendRequest{
		AccountID:   created.Data.ID,
		Provider:    "stripe",
		PlanCode:    "pro",
		AmountCents: 25000,
		Status:      invoicedomain.StatusPaid,
	})
	require.NoError(t, err)

	rec = doRequest(t, srv, http.MethodGet, fmt.Sprintf("/v1/billing/clients/%s/invoices", "acme"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []invoicedomain.Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	require.Equal(t, int64(25000), resp.Data[0].AmountCents)
}
