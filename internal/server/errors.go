package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/socialdesklabs/socialdesk/internal/billing/domain"
	clientdomain "github.com/socialdesklabs/socialdesk/internal/client/domain"
	paymentdomain "github.com/socialdesklabs/socialdesk/internal/payment/domain"
	"github.com/socialdesklabs/socialdesk/internal/plan"
)

type apiError struct {
	status  int
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *apiError) Error() string { return e.Message }

func newValidationError(field, code, message string) *apiError {
	return &apiError{status: http.StatusBadRequest, Code: code, Field: field, Message: message}
}

func invalidRequestError() *apiError {
	return &apiError{status: http.StatusBadRequest, Code: "invalid_request", Message: "invalid request body"}
}

// AbortWithError translates the error taxonomy into stable HTTP responses:
// validation 400, authorization 403, not found 404, conflicts 409, provider
// failures 400 with the provider's message passed through, everything else
// 500.
func AbortWithError(c *gin.Context, err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		c.AbortWithStatusJSON(ae.status, gin.H{"error": ae})
		return
	}

	if pe, ok := paymentdomain.AsProviderError(err); ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": gin.H{
			"code":     "payment_provider_error",
			"provider": pe.Provider,
			"message":  pe.Message,
		}})
		return
	}

	status := http.StatusInternalServerError
	code := "internal_error"
	message := "internal server error"

	switch {
	case errors.Is(err, billingdomain.ErrInvalidPlan), errors.Is(err, plan.ErrPlanNotFound):
		status, code, message = http.StatusBadRequest, "invalid_plan", "unknown plan"
	case errors.Is(err, billingdomain.ErrClientNotFound), errors.Is(err, clientdomain.ErrAccountNotFound):
		status, code, message = http.StatusNotFound, "client_not_found", "client account not found"
	case errors.Is(err, billingdomain.ErrAlreadySubscribed):
		status, code, message = http.StatusConflict, "already_subscribed", "client already has an active subscription"
	case errors.Is(err, billingdomain.ErrNoActiveSubscription):
		status, code, message = http.StatusConflict, "no_active_subscription", "client has no active subscription"
	case errors.Is(err, billingdomain.ErrSamePlan):
		status, code, message = http.StatusConflict, "same_plan", "client is already on the requested plan"
	case errors.Is(err, billingdomain.ErrNotScheduledForCancel):
		status, code, message = http.StatusConflict, "not_scheduled_for_cancellation", "subscription is not scheduled for cancellation"
	case errors.Is(err, billingdomain.ErrForbidden):
		status, code, message = http.StatusForbidden, "forbidden", "operation not permitted"
	case errors.Is(err, clientdomain.ErrDuplicateClient):
		status, code, message = http.StatusConflict, "client_exists", "client account already exists"
	case errors.Is(err, paymentdomain.ErrInvalidProvider):
		status, code, message = http.StatusBadRequest, "invalid_provider", "unknown payment provider"
	}

	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}
