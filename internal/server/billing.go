package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/socialdesklabs/socialdesk/internal/billing/domain"
)

func (s *Server) ListPlans(c *gin.Context) {
	respondData(c, s.catalog.List())
}

func (s *Server) GetSubscription(c *gin.Context) {
	clientID := strings.TrimSpace(c.Param("id"))

	view, err := s.billingSvc.GetSubscription(c.Request.Context(), clientID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, view)
}

type createSubscriptionRequest struct {
	PlanCode string `json:"plan_code"`
}

func (s *Server) CreateSubscription(c *gin.Context) {
	clientID := strings.TrimSpace(c.Param("id"))

	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.PlanCode) == "" {
		AbortWithError(c, newValidationError("plan_code", "required", "plan_code is required"))
		return
	}

	resp, err := s.billingSvc.CreateSubscription(c.Request.Context(), billingdomain.CreateSubscriptionRequest{
		ClientExternalID: clientID,
		PlanCode:         req.PlanCode,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, resp)
}

type changePlanRequest struct {
	PlanCode string `json:"plan_code"`
}

func (s *Server) ChangePlan(c *gin.Context) {
	clientID := strings.TrimSpace(c.Param("id"))

	var req changePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.PlanCode) == "" {
		AbortWithError(c, newValidationError("plan_code", "required", "plan_code is required"))
		return
	}

	resp, err := s.billingSvc.ChangePlan(c.Request.Context(), billingdomain.ChangePlanRequest{
		ClientExternalID: clientID,
		NewPlanCode:      req.PlanCode,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, resp)
}

type cancelSubscriptionRequest struct {
	Immediate bool   `json:"immediate"`
	Reason    string `json:"reason"`
}

func (s *Server) CancelSubscription(c *gin.Context) {
	clientID := strings.TrimSpace(c.Param("id"))

	var req cancelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.billingSvc.CancelSubscription(c.Request.Context(), billingdomain.CancelSubscriptionRequest{
		ClientExternalID: clientID,
		Immediate:        req.Immediate,
		Reason:           req.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, resp)
}

func (s *Server) ReactivateSubscription(c *gin.Context) {
	clientID := strings.TrimSpace(c.Param("id"))

	err := s.billingSvc.ReactivateSubscription(c.Request.Context(), billingdomain.ReactivateSubscriptionRequest{
		ClientExternalID: clientID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{"status": "active"})
}

func (s *Server) ListInvoices(c *gin.Context) {
	clientID := strings.TrimSpace(c.Param("id"))

	account, err := s.clients.FindByExternalID(c.Request.Context(), s.db, clientID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if account == nil {
		AbortWithError(c, billingdomain.ErrClientNotFound)
		return
	}

	records, err := s.invoiceSvc.ListByAccount(c.Request.Context(), account.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, records)
}
