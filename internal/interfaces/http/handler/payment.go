package handler

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	appbilling "github.com/vetpms/backend/internal/application/billing"
	"github.com/vetpms/backend/internal/domain/billing"
	"github.com/vetpms/backend/internal/interfaces/http/middleware"
)

// PaymentHandler serves the payment endpoints
type PaymentHandler struct {
	BaseHandler
	payments *appbilling.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(payments *appbilling.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// RegisterRoutes registers payment routes
func (h *PaymentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	payments := rg.Group("/payments")
	{
		payments.POST("", h.Process)
		payments.GET("", h.List)
	}
}

// processPaymentRequest is the POST /payments body. Amount is a
// json.Number so both numeric and quoted amounts are accepted.
type processPaymentRequest struct {
	InvoiceID     string      `json:"invoiceId" binding:"required"`
	Amount        json.Number `json:"amount" binding:"required"`
	Method        string      `json:"method" binding:"required"`
	TransactionID string      `json:"transactionId"`
	Notes         string      `json:"notes"`
}

// paymentResponse is a payment record on the wire
type paymentResponse struct {
	ID            string  `json:"id"`
	InvoiceID     string  `json:"invoiceId"`
	Amount        float64 `json:"amount"`
	Method        string  `json:"method"`
	TransactionID string  `json:"transactionId"`
	PaidDate      string  `json:"paidDate"`
	Notes         string  `json:"notes,omitempty"`
}

func toPaymentResponse(p *billing.PaymentRecord) paymentResponse {
	return paymentResponse{
		ID:            p.ID.String(),
		InvoiceID:     p.InvoiceID.String(),
		Amount:        p.Amount.InexactFloat64(),
		Method:        p.Method.String(),
		TransactionID: p.TransactionID,
		PaidDate:      p.PaidDate.UTC().Format(time.RFC3339),
		Notes:         p.Notes,
	}
}

// Process handles POST /payments
func (h *PaymentHandler) Process(c *gin.Context) {
	var req processPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, middleware.ValidationMessage(err))
		return
	}

	invoiceID, err := uuid.Parse(req.InvoiceID)
	if err != nil {
		h.BadRequest(c, "invalid invoiceId")
		return
	}
	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil {
		h.BadRequest(c, "invalid amount")
		return
	}

	result, err := h.payments.ProcessPayment(c.Request.Context(), appbilling.ProcessPaymentRequest{
		InvoiceID:     invoiceID,
		Amount:        amount,
		Method:        req.Method,
		TransactionID: req.TransactionID,
		Notes:         req.Notes,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, gin.H{
		"payment": toPaymentResponse(result.Payment),
		"invoice": toInvoiceResponse(result.Invoice, time.Now()),
	})
}

// List handles GET /payments
func (h *PaymentHandler) List(c *gin.Context) {
	var invoiceID *uuid.UUID
	if raw := c.Query("invoiceId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "invalid invoiceId")
			return
		}
		invoiceID = &id
	}

	records, err := h.payments.ListPayments(c.Request.Context(), invoiceID)
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := make([]paymentResponse, len(records))
	for i := range records {
		resp[i] = toPaymentResponse(&records[i])
	}
	h.OK(c, resp)
}
