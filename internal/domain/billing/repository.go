package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// InvoiceFilter narrows invoice queries. Filters are single-dimension by
// contract; the service layer enforces the precedence order when a caller
// supplies more than one.
type InvoiceFilter struct {
	// Statuses filters on the stored status. An effective-status filter
	// (derived overdue) is resolved by the service before it reaches the
	// repository.
	Statuses []InvoiceStatus
	PetID    string
	OwnerID  string
	// Date range applies to the issue date, inclusive.
	StartDate *time.Time
	EndDate   *time.Time
}

// IsZero reports whether the filter selects everything
func (f InvoiceFilter) IsZero() bool {
	return len(f.Statuses) == 0 && f.PetID == "" && f.OwnerID == "" &&
		f.StartDate == nil && f.EndDate == nil
}

// InvoiceRepository is the persistence boundary for the Invoice aggregate
type InvoiceRepository interface {
	// FindByID returns the invoice or shared.ErrNotFound
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindByInvoiceNumber returns the invoice carrying the number or
	// shared.ErrNotFound. Numbers are unique, so at most one matches.
	FindByInvoiceNumber(ctx context.Context, number string) (*Invoice, error)

	// FindByFilter returns invoices matching the filter, ordered by issue
	// date descending then id for a stable order
	FindByFilter(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)

	// Save inserts or updates the aggregate together with its line items
	Save(ctx context.Context, invoice *Invoice) error

	// Delete removes the invoice. Deleting a missing id is a no-op success.
	Delete(ctx context.Context, id uuid.UUID) error

	// GenerateInvoiceNumber produces the next unique invoice number
	GenerateInvoiceNumber(ctx context.Context) (string, error)
}

// PaymentRepository is the persistence boundary for payment records
type PaymentRepository interface {
	// FindAll returns every payment record, newest first
	FindAll(ctx context.Context) ([]PaymentRecord, error)

	// FindByInvoiceID returns the payments recorded against one invoice
	FindByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]PaymentRecord, error)

	// Save persists a payment record on its own
	Save(ctx context.Context, payment *PaymentRecord) error

	// SaveWithInvoice persists the payment record and the updated invoice
	// in a single store transaction, so a payment can never be recorded
	// without its status transition (or vice versa).
	SaveWithInvoice(ctx context.Context, payment *PaymentRecord, invoice *Invoice) error
}
