package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/socialdesklabs/socialdesk/internal/clock"
	invoicedomain "github.com/socialdesklabs/socialdesk/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  invoicedomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  invoicedomain.Repository
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Append(ctx context.Context, req invoicedomain.AppendRequest) (*invoicedomain.Record, bool, error) {
	return s.AppendTx(ctx, s.db, req)
}

func (s *Service) AppendTx(ctx context.Context, tx *gorm.DB, req invoicedomain.AppendRequest) (*invoicedomain.Record, bool, error) {
	if req.ProviderInvoiceID != "" {
		existing, err := s.repo.FindByProviderInvoiceID(ctx, tx, req.Provider, req.ProviderInvoiceID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	now := s.clock.Now(ctx)
	number, err := s.nextInvoiceNumber(ctx, tx, req)
	if err != nil {
		return nil, false, err
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}

	paidAt := req.PaidAt
	if req.Status == invoicedomain.StatusPaid && paidAt == nil {
		paidAt = &now
	}

	rec := &invoicedomain.Record{
		ID:                s.genID.Generate(),
		InvoiceNumber:     number,
		AccountID:         req.AccountID,
		Provider:          req.Provider,
		ProviderInvoiceID: req.ProviderInvoiceID,
		PlanCode:          req.PlanCode,
		AmountCents:       req.AmountCents,
		Currency:          currency,
		Status:            req.Status,
		Description:       req.Description,
		IssuedAt:          now,
		PaidAt:            paidAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Insert(ctx, tx, rec); err != nil {
		return nil, false, err
	}

	s.log.Info("ledger entry appended",
		zap.String("invoice_number", rec.InvoiceNumber),
		zap.Int64("amount_cents", rec.AmountCents),
		zap.String("status", string(rec.Status)),
	)
	return rec, true, nil
}

func (s *Service) ListByAccount(ctx context.Context, accountID snowflake.ID) ([]*invoicedomain.Record, error) {
	return s.repo.ListByAccount(ctx, s.db, accountID)
}

// nextInvoiceNumber builds a human-meaningful unique number. Provider-issued
// invoices carry the provider's own id fragment; locally originated entries
// use the issue date plus an account fragment. Collisions get a numeric
// suffix, never an overwrite.
func (s *Service) nextInvoiceNumber(ctx context.Context, tx *gorm.DB, req invoicedomain.AppendRequest) (string, error) {
	var base string
	if req.ProviderInvoiceID != "" {
		base = fmt.Sprintf("%s-%s", strings.ToUpper(req.Provider), fragment(req.ProviderInvoiceID))
	} else {
		date := s.clock.Now(ctx).Format("20060102")
		base = fmt.Sprintf("INV-%s-%s", date, fragment(req.AccountID.String()))
	}

	candidate := base
	for suffix := 2; ; suffix++ {
		existing, err := s.repo.FindByNumber(ctx, tx, candidate)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, suffix)
	}
}

func fragment(value string) string {
	cleaned := strings.ToUpper(strings.TrimSpace(value))
	cleaned = strings.TrimPrefix(cleaned, "IN_")
	if len(cleaned) > 8 {
		cleaned = cleaned[len(cleaned)-8:]
	}
	return cleaned
}
