package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appbilling "github.com/vetpms/backend/internal/application/billing"
	"github.com/vetpms/backend/internal/domain/billing"
	"github.com/vetpms/backend/internal/domain/shared"
	"github.com/vetpms/backend/internal/infrastructure/cache"
	"github.com/vetpms/backend/internal/interfaces/http/middleware"
)

// memInvoiceRepo is a thread-safe in-memory invoice store for handler tests
type memInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]billing.Invoice
	seq      int
}

func newMemInvoiceRepo() *memInvoiceRepo {
	return &memInvoiceRepo{invoices: make(map[uuid.UUID]billing.Invoice)}
}

func (r *memInvoiceRepo) FindByID(_ context.Context, id uuid.UUID) (*billing.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &inv, nil
}

func (r *memInvoiceRepo) FindByInvoiceNumber(_ context.Context, number string) (*billing.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.InvoiceNumber == number {
			copied := inv
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memInvoiceRepo) FindByFilter(_ context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := make([]billing.Invoice, 0, len(r.invoices))
	for _, inv := range r.invoices {
		if len(filter.Statuses) > 0 {
			found := false
			for _, s := range filter.Statuses {
				if inv.Status == s {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if filter.PetID != "" && inv.PetID != filter.PetID {
			continue
		}
		if filter.OwnerID != "" && inv.OwnerID != filter.OwnerID {
			continue
		}
		if filter.StartDate != nil && inv.IssueDate.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && inv.IssueDate.After(*filter.EndDate) {
			continue
		}
		matched = append(matched, inv)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].IssueDate.After(matched[j].IssueDate)
	})
	return matched, nil
}

func (r *memInvoiceRepo) Save(_ context.Context, invoice *billing.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoices[invoice.ID] = *invoice
	return nil
}

func (r *memInvoiceRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.invoices, id)
	return nil
}

func (r *memInvoiceRepo) GenerateInvoiceNumber(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return fmt.Sprintf("INV-%s-%05d", time.Now().UTC().Format("20060102"), r.seq), nil
}

// memPaymentRepo is a thread-safe in-memory payment store for handler tests
type memPaymentRepo struct {
	mu       sync.Mutex
	payments []billing.PaymentRecord
	invoices *memInvoiceRepo
}

func (r *memPaymentRepo) FindAll(_ context.Context) ([]billing.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]billing.PaymentRecord(nil), r.payments...), nil
}

func (r *memPaymentRepo) FindByInvoiceID(_ context.Context, invoiceID uuid.UUID) ([]billing.PaymentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := make([]billing.PaymentRecord, 0)
	for _, p := range r.payments {
		if p.InvoiceID == invoiceID {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

func (r *memPaymentRepo) Save(_ context.Context, payment *billing.PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments = append(r.payments, *payment)
	return nil
}

func (r *memPaymentRepo) SaveWithInvoice(ctx context.Context, payment *billing.PaymentRecord, invoice *billing.Invoice) error {
	if err := r.Save(ctx, payment); err != nil {
		return err
	}
	return r.invoices.Save(ctx, invoice)
}

// emptyLegacySource backs the sync endpoint in tests
type emptyLegacySource struct{}

func (emptyLegacySource) FetchLegacyInvoices(context.Context) ([]billing.RawInvoiceRecord, error) {
	return []billing.RawInvoiceRecord{}, nil
}

type testServer struct {
	engine   *gin.Engine
	invoices *memInvoiceRepo
	payments *memPaymentRepo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()

	invoiceRepo := newMemInvoiceRepo()
	paymentRepo := &memPaymentRepo{invoices: invoiceRepo}
	log := zap.NewNop()
	analyticsCache := cache.NewInMemoryAnalyticsCache()

	invoiceSvc := appbilling.NewInvoiceService(invoiceRepo, log,
		appbilling.WithAnalyticsCache(analyticsCache))
	paymentSvc := appbilling.NewPaymentService(paymentRepo, invoiceRepo, log,
		appbilling.WithPaymentAnalyticsCache(analyticsCache))
	analyticsSvc := appbilling.NewAnalyticsService(invoiceRepo, analyticsCache, time.Minute, log)
	importSvc := appbilling.NewImportService(emptyLegacySource{}, invoiceRepo, log)

	engine := gin.New()
	root := engine.Group("")
	NewInvoiceHandler(invoiceSvc, analyticsSvc, importSvc).RegisterRoutes(root)
	NewPaymentHandler(paymentSvc).RegisterRoutes(root)

	return &testServer{engine: engine, invoices: invoiceRepo, payments: paymentRepo}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func invoiceBody(issueDate, dueDate time.Time) map[string]any {
	return map[string]any{
		"petId":            "pet-1",
		"petName":          "Clementine",
		"ownerId":          "owner-1",
		"ownerName":        "Jae Park",
		"veterinarianId":   "vet-1",
		"veterinarianName": "Dr. Ada Okafor",
		"issueDate":        issueDate.UTC().Format(time.RFC3339),
		"dueDate":          dueDate.UTC().Format(time.RFC3339),
		"items": []map[string]any{
			{
				"description": "Annual checkup",
				"category":    "consultation",
				"quantity":    1,
				"unitPrice":   75.00,
				"total":       75.00,
			},
		},
		"subtotal": 75.00,
		"tax":      6.00,
		"discount": 0,
		"total":    81.00,
		"status":   "sent",
	}
}

func createInvoice(t *testing.T, srv *testServer) map[string]any {
	t.Helper()
	now := time.Now()
	w := srv.do(t, http.MethodPost, "/invoices", invoiceBody(now.AddDate(0, 0, -5), now.AddDate(0, 0, 25)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decodeBody(t, w)
}

func TestCreateInvoiceEndpoint(t *testing.T) {
	srv := newTestServer(t)
	body := createInvoice(t, srv)

	assert.NotEmpty(t, body["id"])
	assert.Regexp(t, `^INV-\d{8}-\d{5}$`, body["invoiceNumber"])
	assert.Equal(t, "Clementine", body["petName"])
	assert.Equal(t, "sent", body["status"])
	assert.InDelta(t, 81.00, body["total"], 0.001)

	items, ok := body["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "consultation", item["category"])
	assert.InDelta(t, 75.00, item["unitPrice"], 0.001)
}

func TestCreateInvoiceRejectsBadEnum(t *testing.T) {
	srv := newTestServer(t)
	now := time.Now()
	body := invoiceBody(now, now.AddDate(0, 0, 30))
	body["status"] = "archived"

	w := srv.do(t, http.MethodPost, "/invoices", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeBody(t, w)
	assert.Contains(t, resp["error"], "archived")
}

func TestCreateInvoiceRejectsInconsistentTotal(t *testing.T) {
	srv := newTestServer(t)
	now := time.Now()
	body := invoiceBody(now, now.AddDate(0, 0, 30))
	body["total"] = 999.00

	w := srv.do(t, http.MethodPost, "/invoices", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, decodeBody(t, w)["error"])
}

func TestGetInvoiceNotFound(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/invoices/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not found", decodeBody(t, w)["error"])

	w = srv.do(t, http.MethodGet, "/invoices/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetInvoiceRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	created := createInvoice(t, srv)

	w := srv.do(t, http.MethodGet, "/invoices/"+created["id"].(string), nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, created["invoiceNumber"], body["invoiceNumber"])
	assert.Equal(t, created["total"], body["total"])
}

func TestUpdateInvoiceEndpoint(t *testing.T) {
	srv := newTestServer(t)
	created := createInvoice(t, srv)

	w := srv.do(t, http.MethodPut, "/invoices/"+created["id"].(string),
		map[string]any{"notes": "owner will pay at pickup"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	assert.Equal(t, "owner will pay at pickup", body["notes"])
	assert.Equal(t, created["invoiceNumber"], body["invoiceNumber"])
}

func TestDeleteInvoiceIdempotent(t *testing.T) {
	srv := newTestServer(t)
	created := createInvoice(t, srv)
	id := created["id"].(string)

	w := srv.do(t, http.MethodDelete, "/invoices/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["success"])

	// A second delete of the same id still succeeds
	w = srv.do(t, http.MethodDelete, "/invoices/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = srv.do(t, http.MethodGet, "/invoices/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListInvoicesStatusFilter(t *testing.T) {
	srv := newTestServer(t)
	createInvoice(t, srv)

	w := srv.do(t, http.MethodGet, "/invoices?status=sent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = srv.do(t, http.MethodGet, "/invoices?status=paid", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list)

	w = srv.do(t, http.MethodGet, "/invoices?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListInvoicesBadDate(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/invoices?startDate=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid startDate", decodeBody(t, w)["error"])
}

func TestAnalyticsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	createInvoice(t, srv)

	w := srv.do(t, http.MethodGet, "/invoices/analytics", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	assert.InDelta(t, 1.0, body["totalInvoices"], 0.001)
	assert.InDelta(t, 81.00, body["pendingAmount"], 0.001)
	assert.InDelta(t, 0.0, body["totalRevenue"], 0.001)
}

func TestSyncEndpoint(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodPost, "/invoices/sync", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.InDelta(t, 0.0, body["imported"], 0.001)
	assert.InDelta(t, 0.0, body["failed"], 0.001)
}
