package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vetpms/backend/internal/domain/billing"
	"github.com/vetpms/backend/internal/domain/shared"
	"github.com/vetpms/backend/internal/domain/shared/valueobject"
	"github.com/vetpms/backend/internal/infrastructure/cache"
)

// ProcessPaymentRequest carries the inputs for processing a payment
type ProcessPaymentRequest struct {
	InvoiceID     uuid.UUID
	Amount        decimal.Decimal
	Method        string
	TransactionID string
	Notes         string
}

// PaymentResult is the outcome of a processed payment: the recorded
// payment and the invoice as read back from the store.
type PaymentResult struct {
	Payment *billing.PaymentRecord
	Invoice *billing.Invoice
}

// PaymentService processes payments against invoices. Processing is
// serialized per invoice id, so two concurrent payments for the same
// invoice can never both observe the pre-payment state.
type PaymentService struct {
	paymentRepo billing.PaymentRepository
	invoiceRepo billing.InvoiceRepository
	cache       cache.AnalyticsCache
	logger      *zap.Logger

	// One mutex per invoice id; entries are never reclaimed, which is
	// acceptable at clinic scale
	locks sync.Map
}

// PaymentServiceOption is a functional option for configuring PaymentService
type PaymentServiceOption func(*PaymentService)

// WithPaymentAnalyticsCache sets the analytics cache invalidated on writes
func WithPaymentAnalyticsCache(c cache.AnalyticsCache) PaymentServiceOption {
	return func(s *PaymentService) {
		s.cache = c
	}
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(paymentRepo billing.PaymentRepository, invoiceRepo billing.InvoiceRepository,
	logger *zap.Logger, opts ...PaymentServiceOption) *PaymentService {
	s := &PaymentService{
		paymentRepo: paymentRepo,
		invoiceRepo: invoiceRepo,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lockInvoice acquires the per-invoice mutex and returns its unlock
func (s *PaymentService) lockInvoice(id uuid.UUID) func() {
	mu, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// ProcessPayment validates and records a payment. A payment covering the
// full invoice total marks the invoice paid and persists both in a single
// store transaction; a smaller amount is recorded without touching the
// invoice.
func (s *PaymentService) ProcessPayment(ctx context.Context, req ProcessPaymentRequest) (*PaymentResult, error) {
	if !req.Amount.IsPositive() {
		return nil, shared.NewValidationError("payment amount must be positive")
	}
	method, err := billing.ParsePaymentMethod(req.Method)
	if err != nil {
		return nil, err
	}

	unlock := s.lockInvoice(req.InvoiceID)
	defer unlock()

	invoice, err := s.invoiceRepo.FindByID(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}

	if !invoice.Status.CanAcceptPayment() {
		return nil, shared.NewValidationError("invoice in status " + invoice.Status.String() + " cannot accept payments")
	}
	exceeds, err := valueobject.NewMoneyUSD(req.Amount).GreaterThan(invoice.GetTotalMoney())
	if err != nil {
		return nil, shared.NewValidationError(err.Error())
	}
	if exceeds {
		return nil, shared.NewValidationError("payment amount exceeds invoice total")
	}

	now := time.Now()
	payment, err := billing.NewPaymentRecord(req.InvoiceID, req.Amount, method, req.TransactionID, req.Notes, now)
	if err != nil {
		return nil, err
	}

	if payment.CoversTotal(invoice.Total) {
		if err := invoice.MarkPaid(method, now); err != nil {
			return nil, err
		}
		if err := s.paymentRepo.SaveWithInvoice(ctx, payment, invoice); err != nil {
			return nil, err
		}
	} else {
		// Recorded without a balance ledger; the invoice stays as it was
		s.logger.Warn("partial payment recorded without invoice transition",
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("amount", req.Amount.StringFixed(2)),
			zap.String("invoice_total", invoice.Total.StringFixed(2)))
		if err := s.paymentRepo.Save(ctx, payment); err != nil {
			return nil, err
		}
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}

	stored, err := s.invoiceRepo.FindByID(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment processed",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("transaction_id", payment.TransactionID),
		zap.String("method", method.String()),
		zap.String("status", stored.Status.String()))

	return &PaymentResult{Payment: payment, Invoice: stored}, nil
}

// ListPayments returns all payments, or those of one invoice when an id
// is supplied
func (s *PaymentService) ListPayments(ctx context.Context, invoiceID *uuid.UUID) ([]billing.PaymentRecord, error) {
	if invoiceID != nil {
		return s.paymentRepo.FindByInvoiceID(ctx, *invoiceID)
	}
	return s.paymentRepo.FindAll(ctx)
}
