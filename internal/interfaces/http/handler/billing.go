package handler

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appbilling "github.com/vetpms/backend/internal/application/billing"
	"github.com/vetpms/backend/internal/domain/billing"
	"github.com/vetpms/backend/internal/domain/shared"
)

// queryDateLayouts are the layouts accepted for date query parameters
var queryDateLayouts = []string{"2006-01-02", time.RFC3339}

// InvoiceHandler serves the invoice endpoints
type InvoiceHandler struct {
	BaseHandler
	invoices  *appbilling.InvoiceService
	analytics *appbilling.AnalyticsService
	imports   *appbilling.ImportService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoices *appbilling.InvoiceService, analytics *appbilling.AnalyticsService,
	imports *appbilling.ImportService) *InvoiceHandler {
	return &InvoiceHandler{
		invoices:  invoices,
		analytics: analytics,
		imports:   imports,
	}
}

// RegisterRoutes registers invoice routes
func (h *InvoiceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	invoices := rg.Group("/invoices")
	{
		invoices.GET("", h.List)
		invoices.POST("", h.Create)
		invoices.GET("/analytics", h.Analytics)
		invoices.POST("/sync", h.Sync)
		invoices.GET("/:id", h.Get)
		invoices.PUT("/:id", h.Update)
		invoices.DELETE("/:id", h.Delete)
	}
}

// invoiceItemResponse is a line item on the wire
type invoiceItemResponse struct {
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Total       float64 `json:"total"`
}

// invoiceResponse is an invoice on the wire. Status is the effective
// status at response time.
type invoiceResponse struct {
	ID               string                `json:"id"`
	InvoiceNumber    string                `json:"invoiceNumber"`
	PetID            string                `json:"petId,omitempty"`
	PetName          string                `json:"petName"`
	PetSpecies       string                `json:"petSpecies,omitempty"`
	OwnerID          string                `json:"ownerId,omitempty"`
	OwnerName        string                `json:"ownerName"`
	OwnerEmail       string                `json:"ownerEmail,omitempty"`
	VeterinarianID   string                `json:"veterinarianId,omitempty"`
	VeterinarianName string                `json:"veterinarianName"`
	IssueDate        string                `json:"issueDate"`
	DueDate          string                `json:"dueDate"`
	PaidDate         *string               `json:"paidDate,omitempty"`
	Items            []invoiceItemResponse `json:"items"`
	Subtotal         float64               `json:"subtotal"`
	Tax              float64               `json:"tax"`
	Discount         float64               `json:"discount"`
	Total            float64               `json:"total"`
	Status           string                `json:"status"`
	PaymentMethod    *string               `json:"paymentMethod,omitempty"`
	Notes            string                `json:"notes,omitempty"`
	CreatedAt        string                `json:"createdAt"`
	UpdatedAt        string                `json:"updatedAt"`
}

func toInvoiceResponse(inv *billing.Invoice, now time.Time) invoiceResponse {
	resp := invoiceResponse{
		ID:               inv.ID.String(),
		InvoiceNumber:    inv.InvoiceNumber,
		PetID:            inv.PetID,
		PetName:          inv.PetName,
		PetSpecies:       inv.PetSpecies,
		OwnerID:          inv.OwnerID,
		OwnerName:        inv.OwnerName,
		OwnerEmail:       inv.OwnerEmail,
		VeterinarianID:   inv.VeterinarianID,
		VeterinarianName: inv.VeterinarianName,
		IssueDate:        inv.IssueDate.UTC().Format(time.RFC3339),
		DueDate:          inv.DueDate.UTC().Format(time.RFC3339),
		Subtotal:         inv.Subtotal.InexactFloat64(),
		Tax:              inv.Tax.InexactFloat64(),
		Discount:         inv.Discount.InexactFloat64(),
		Total:            inv.Total.InexactFloat64(),
		Status:           inv.EffectiveStatus(now).String(),
		Notes:            inv.Notes,
		CreatedAt:        inv.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        inv.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if inv.PaidDate != nil {
		paid := inv.PaidDate.UTC().Format(time.RFC3339)
		resp.PaidDate = &paid
	}
	if inv.PaymentMethod != nil {
		method := inv.PaymentMethod.String()
		resp.PaymentMethod = &method
	}
	resp.Items = make([]invoiceItemResponse, len(inv.Items))
	for i, item := range inv.Items {
		resp.Items[i] = invoiceItemResponse{
			Description: item.Description,
			Category:    string(item.Category),
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.InexactFloat64(),
			Total:       item.Total.InexactFloat64(),
		}
	}
	return resp
}

// List handles GET /invoices
func (h *InvoiceHandler) List(c *gin.Context) {
	filter := appbilling.ListFilter{
		Status:  c.Query("status"),
		PetID:   c.Query("petId"),
		OwnerID: c.Query("ownerId"),
	}

	var err error
	if filter.StartDate, err = parseQueryDate(c.Query("startDate")); err != nil {
		h.BadRequest(c, "invalid startDate")
		return
	}
	if filter.EndDate, err = parseQueryDate(c.Query("endDate")); err != nil {
		h.BadRequest(c, "invalid endDate")
		return
	}

	invoices, err := h.invoices.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	now := time.Now()
	resp := make([]invoiceResponse, len(invoices))
	for i := range invoices {
		resp[i] = toInvoiceResponse(&invoices[i], now)
	}
	h.OK(c, resp)
}

// Create handles POST /invoices
func (h *InvoiceHandler) Create(c *gin.Context) {
	var raw billing.RawInvoiceRecord
	if err := c.ShouldBindJSON(&raw); err != nil {
		h.BadRequest(c, "invalid request body")
		return
	}

	inv, err := h.invoices.Create(c.Request.Context(), raw)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, toInvoiceResponse(inv, time.Now()))
}

// Get handles GET /invoices/:id
func (h *InvoiceHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, shared.ErrNotFound)
		return
	}

	inv, err := h.invoices.Get(c.Request.Context(), id)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, toInvoiceResponse(inv, time.Now()))
}

// Update handles PUT /invoices/:id
func (h *InvoiceHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, shared.ErrNotFound)
		return
	}

	var patch billing.RawInvoiceRecord
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.BadRequest(c, "invalid request body")
		return
	}

	inv, err := h.invoices.Update(c.Request.Context(), id, patch)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, toInvoiceResponse(inv, time.Now()))
}

// Delete handles DELETE /invoices/:id
func (h *InvoiceHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		// Deleting an unparseable id deletes nothing, successfully
		h.OK(c, gin.H{"success": true})
		return
	}

	if err := h.invoices.Delete(c.Request.Context(), id); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"success": true})
}

// analyticsResponse is the analytics object on the wire
type analyticsResponse struct {
	TotalRevenue      float64            `json:"totalRevenue"`
	PendingAmount     float64            `json:"pendingAmount"`
	TotalInvoices     int                `json:"totalInvoices"`
	PaidInvoices      int                `json:"paidInvoices"`
	OverdueInvoices   int                `json:"overdueInvoices"`
	PendingInvoices   int                `json:"pendingInvoices"`
	DraftInvoices     int                `json:"draftInvoices"`
	CancelledInvoices int                `json:"cancelledInvoices"`
	PaymentMethods    map[string]int     `json:"paymentMethods"`
	MonthlyRevenue    map[string]float64 `json:"monthlyRevenue"`
}

// Analytics handles GET /invoices/analytics
func (h *InvoiceHandler) Analytics(c *gin.Context) {
	startDate, err := parseQueryDate(c.Query("startDate"))
	if err != nil {
		h.BadRequest(c, "invalid startDate")
		return
	}
	endDate, err := parseQueryDate(c.Query("endDate"))
	if err != nil {
		h.BadRequest(c, "invalid endDate")
		return
	}

	analytics, err := h.analytics.GetAnalytics(c.Request.Context(), startDate, endDate)
	if err != nil {
		h.Error(c, err)
		return
	}

	resp := analyticsResponse{
		TotalRevenue:      analytics.TotalRevenue.InexactFloat64(),
		PendingAmount:     analytics.PendingAmount.InexactFloat64(),
		TotalInvoices:     analytics.TotalInvoices,
		PaidInvoices:      analytics.PaidInvoices,
		OverdueInvoices:   analytics.OverdueInvoices,
		PendingInvoices:   analytics.PendingInvoices,
		DraftInvoices:     analytics.DraftInvoices,
		CancelledInvoices: analytics.CancelledInvoices,
		PaymentMethods:    analytics.PaymentMethods,
		MonthlyRevenue:    make(map[string]float64, len(analytics.MonthlyRevenue)),
	}
	for month, amount := range analytics.MonthlyRevenue {
		resp.MonthlyRevenue[month] = amount.InexactFloat64()
	}
	h.OK(c, resp)
}

// Sync handles POST /invoices/sync
func (h *InvoiceHandler) Sync(c *gin.Context) {
	result, err := h.imports.SyncLegacyInvoices(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// parseQueryDate parses an optional date query parameter
func parseQueryDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range queryDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unparseable date %q", s)
}
