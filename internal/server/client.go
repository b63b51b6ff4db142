package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	clientdomain "github.com/socialdesklabs/socialdesk/internal/client/domain"
)

type createClientRequest struct {
	ExternalID  string `json:"external_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

func (s *Server) CreateClient(c *gin.Context) {
	var req createClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	externalID := strings.TrimSpace(req.ExternalID)
	email := strings.TrimSpace(req.Email)
	if externalID == "" {
		AbortWithError(c, newValidationError("external_id", "required", "external_id is required"))
		return
	}
	if email == "" || !strings.Contains(email, "@") {
		AbortWithError(c, newValidationError("email", "invalid_email", "a valid email is required"))
		return
	}

	ctx := c.Request.Context()
	existing, err := s.clients.FindByExternalID(ctx, s.db, externalID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if existing != nil {
		AbortWithError(c, clientdomain.ErrDuplicateClient)
		return
	}

	now := s.clock.Now(ctx)
	account := &clientdomain.Account{
		ID:                 s.genID.Generate(),
		ExternalID:         externalID,
		Email:              email,
		DisplayName:        strings.TrimSpace(req.DisplayName),
		Status:             clientdomain.AccountActive,
		SubscriptionStatus: clientdomain.SubscriptionNone,
		PaymentStatus:      clientdomain.PaymentPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.clients.Insert(ctx, s.db, account); err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, account)
}

func (s *Server) GetClient(c *gin.Context) {
	externalID := strings.TrimSpace(c.Param("id"))

	account, err := s.clients.FindByExternalID(c.Request.Context(), s.db, externalID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if account == nil {
		AbortWithError(c, clientdomain.ErrAccountNotFound)
		return
	}
	respondData(c, account)
}
