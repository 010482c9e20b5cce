package billing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vetpms/backend/internal/domain/billing"
	"github.com/vetpms/backend/internal/domain/shared"
	"github.com/vetpms/backend/internal/infrastructure/clinic"
)

// Mock implementations

type mockInvoiceRepository struct {
	mock.Mock
}

func (m *mockInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *mockInvoiceRepository) FindByInvoiceNumber(ctx context.Context, number string) (*billing.Invoice, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

func (m *mockInvoiceRepository) FindByFilter(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Invoice), args.Error(1)
}

func (m *mockInvoiceRepository) Save(ctx context.Context, invoice *billing.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *mockInvoiceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockInvoiceRepository) GenerateInvoiceNumber(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

type mockPaymentRepository struct {
	mock.Mock
}

func (m *mockPaymentRepository) FindAll(ctx context.Context) ([]billing.PaymentRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.PaymentRecord), args.Error(1)
}

func (m *mockPaymentRepository) FindByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]billing.PaymentRecord, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.PaymentRecord), args.Error(1)
}

func (m *mockPaymentRepository) Save(ctx context.Context, payment *billing.PaymentRecord) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *mockPaymentRepository) SaveWithInvoice(ctx context.Context, payment *billing.PaymentRecord, invoice *billing.Invoice) error {
	args := m.Called(ctx, payment, invoice)
	return args.Error(0)
}

type mockClinicDirectory struct {
	mock.Mock
}

func (m *mockClinicDirectory) GetPet(ctx context.Context, id string) (*clinic.Pet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clinic.Pet), args.Error(1)
}

func (m *mockClinicDirectory) GetOwner(ctx context.Context, id string) (*clinic.Owner, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clinic.Owner), args.Error(1)
}

func (m *mockClinicDirectory) GetVeterinarian(ctx context.Context, id string) (*clinic.Veterinarian, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clinic.Veterinarian), args.Error(1)
}

type mockLegacySource struct {
	mock.Mock
}

func (m *mockLegacySource) FetchLegacyInvoices(ctx context.Context) ([]billing.RawInvoiceRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.RawInvoiceRecord), args.Error(1)
}

// fakeStore is an in-memory repository pair for concurrency tests, where
// call-counting mocks would serialize on their own internal lock and hide
// the race under test.
type fakeStore struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]billing.Invoice
	payments []billing.PaymentRecord
	seq      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{invoices: make(map[uuid.UUID]billing.Invoice)}
}

func (f *fakeStore) FindByID(_ context.Context, id uuid.UUID) (*billing.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := inv
	return &copied, nil
}

func (f *fakeStore) FindByInvoiceNumber(_ context.Context, number string) (*billing.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invoices {
		if inv.InvoiceNumber == number {
			copied := inv
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakeStore) FindByFilter(_ context.Context, _ billing.InvoiceFilter) ([]billing.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]billing.Invoice, 0, len(f.invoices))
	for _, inv := range f.invoices {
		out = append(out, inv)
	}
	return out, nil
}

func (f *fakeStore) Save(_ context.Context, invoice *billing.Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoices[invoice.ID] = *invoice
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.invoices, id)
	return nil
}

func (f *fakeStore) GenerateInvoiceNumber(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return fmt.Sprintf("INV-%s-%05d", time.Now().UTC().Format("20060102"), f.seq), nil
}

func (f *fakeStore) FindAll(_ context.Context) ([]billing.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]billing.PaymentRecord(nil), f.payments...), nil
}

func (f *fakeStore) FindByInvoiceID(_ context.Context, invoiceID uuid.UUID) ([]billing.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []billing.PaymentRecord
	for _, p := range f.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) SavePayment(_ context.Context, payment *billing.PaymentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments = append(f.payments, *payment)
	return nil
}

func (f *fakeStore) SaveWithInvoice(_ context.Context, payment *billing.PaymentRecord, invoice *billing.Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments = append(f.payments, *payment)
	f.invoices[invoice.ID] = *invoice
	return nil
}

// fakePaymentStore adapts fakeStore to billing.PaymentRepository, whose
// Save collides with the invoice Save method name
type fakePaymentStore struct {
	*fakeStore
}

func (f fakePaymentStore) Save(ctx context.Context, payment *billing.PaymentRecord) error {
	return f.SavePayment(ctx, payment)
}

// serviceInvoice builds a valid invoice for service tests
func serviceInvoice(t *testing.T, total string) *billing.Invoice {
	t.Helper()
	amount := decimal.RequireFromString(total)
	items := []billing.InvoiceItem{
		{Description: "Consultation", Category: billing.CategoryConsultation, Quantity: 1,
			UnitPrice: amount, Total: amount},
	}
	issue := time.Now().AddDate(0, 0, -5)
	inv, err := billing.NewInvoice("pet-1", "owner-1", "vet-1", issue, issue.AddDate(0, 0, 30), items,
		amount, decimal.Zero, decimal.Zero, amount)
	require.NoError(t, err)
	inv.InvoiceNumber = "INV-20250310-00001"
	inv.PetName = "Biscuit"
	inv.OwnerName = "Morgan Reyes"
	inv.VeterinarianName = "Dr. Okafor"
	return inv
}
