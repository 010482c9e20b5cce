package billing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vetpms/backend/internal/domain/shared"
	"github.com/vetpms/backend/internal/domain/shared/valueobject"
)

// InvoiceStatus represents the stored status of an invoice.
// The canonical form is lower case throughout the domain.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"     // Created, not yet issued
	InvoiceStatusSent      InvoiceStatus = "sent"      // Issued to the owner, awaiting payment
	InvoiceStatusPaid      InvoiceStatus = "paid"      // Fully paid
	InvoiceStatusOverdue   InvoiceStatus = "overdue"   // Explicitly synced past due date
	InvoiceStatusCancelled InvoiceStatus = "cancelled" // Cancelled before payment
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid,
		InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// CanAcceptPayment returns true if payments can be processed in this status
func (s InvoiceStatus) CanAcceptPayment() bool {
	return s != InvoiceStatusPaid && s != InvoiceStatusCancelled
}

// CanCancel returns true if the invoice may transition to cancelled
func (s InvoiceStatus) CanCancel() bool {
	return s != InvoiceStatusPaid
}

// ItemCategory classifies an invoice line item
type ItemCategory string

const (
	CategoryConsultation ItemCategory = "consultation"
	CategoryProcedure    ItemCategory = "procedure"
	CategoryMedication   ItemCategory = "medication"
	CategorySupplies     ItemCategory = "supplies"
	CategoryBoarding     ItemCategory = "boarding"
	CategoryGrooming     ItemCategory = "grooming"
	CategoryOther        ItemCategory = "other"
)

// IsValid checks if the category is a recognized ItemCategory
func (c ItemCategory) IsValid() bool {
	switch c {
	case CategoryConsultation, CategoryProcedure, CategoryMedication,
		CategorySupplies, CategoryBoarding, CategoryGrooming, CategoryOther:
		return true
	}
	return false
}

// InvoiceItem is a line item within the Invoice aggregate. Items are kept
// in insertion order; the order matters for display only, never for totals.
type InvoiceItem struct {
	Description string          `json:"description"`
	Category    ItemCategory    `json:"category"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Total       decimal.Decimal `json:"total"`
}

// ExpectedTotal returns quantity * unitPrice rounded half-up to currency
// precision. This is the single rounding policy for line items.
func (i InvoiceItem) ExpectedTotal() decimal.Decimal {
	return valueobject.NewMoneyUSD(i.UnitPrice).
		MultiplyByInt(int64(i.Quantity)).
		RoundCurrency().
		Amount()
}

// Validate checks the line-item invariants
func (i InvoiceItem) Validate() error {
	if i.Description == "" {
		return shared.NewValidationError("item description is required")
	}
	if !i.Category.IsValid() {
		return shared.NewValidationError(fmt.Sprintf("unknown item category: %s", i.Category))
	}
	if i.Quantity <= 0 {
		return shared.NewValidationError("item quantity must be a positive integer")
	}
	if i.UnitPrice.IsNegative() {
		return shared.NewValidationError("item unit price cannot be negative")
	}
	if !valueobject.NewMoneyUSD(i.Total).EqualsAtPrecision(valueobject.NewMoneyUSD(i.ExpectedTotal())) {
		return shared.NewValidationError(fmt.Sprintf(
			"item %q total %s does not equal quantity * unit price (%s)",
			i.Description, i.Total.StringFixed(2), i.ExpectedTotal().StringFixed(2)))
	}
	return nil
}

// InvoiceItems is a collection of line items stored as a JSONB document
// alongside the invoice row.
type InvoiceItems []InvoiceItem

// Value implements driver.Valuer interface for GORM to store as JSONB
func (items InvoiceItems) Value() (driver.Value, error) {
	if items == nil {
		return "[]", nil
	}
	return json.Marshal(items)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (items *InvoiceItems) Scan(value interface{}) error {
	if value == nil {
		*items = InvoiceItems{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan InvoiceItems: unsupported type")
	}

	return json.Unmarshal(bytes, items)
}

// Invoice is the aggregate root for a billable document. Line items are
// owned by the invoice; payment records reference it without ownership.
type Invoice struct {
	shared.BaseAggregateRoot
	InvoiceNumber    string
	PetID            string
	PetName          string
	PetSpecies       string
	OwnerID          string
	OwnerName        string
	OwnerEmail       string
	VeterinarianID   string
	VeterinarianName string
	IssueDate        time.Time
	DueDate          time.Time
	PaidDate         *time.Time
	Items            InvoiceItems
	Subtotal         decimal.Decimal
	Tax              decimal.Decimal
	Discount         decimal.Decimal
	Total            decimal.Decimal
	Status           InvoiceStatus
	PaymentMethod    *PaymentMethod
	Notes            string
}

// NewInvoice creates a draft invoice and validates its monetary invariants
func NewInvoice(petID, ownerID, veterinarianID string, issueDate, dueDate time.Time, items []InvoiceItem,
	subtotal, tax, discount, total decimal.Decimal) (*Invoice, error) {
	inv := &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		PetID:             petID,
		OwnerID:           ownerID,
		VeterinarianID:    veterinarianID,
		IssueDate:         issueDate,
		DueDate:           dueDate,
		Items:             items,
		Subtotal:          subtotal,
		Tax:               tax,
		Discount:          discount,
		Total:             total,
		Status:            InvoiceStatusDraft,
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	return inv, nil
}

// Validate enforces the monetary invariants, reporting the first violation:
//
//	item.total == quantity * unitPrice   (per item, half-up at 2 places)
//	subtotal   == sum(item.total)
//	total      == subtotal - discount + tax
//
// All comparisons are made at currency precision.
func (inv *Invoice) Validate() error {
	if len(inv.Items) == 0 {
		return shared.NewValidationError("invoice requires at least one line item")
	}
	sum := valueobject.NewMoneyUSD(decimal.Zero)
	for _, item := range inv.Items {
		if err := item.Validate(); err != nil {
			return err
		}
		withItem, err := sum.Add(valueobject.NewMoneyUSD(item.Total))
		if err != nil {
			return shared.NewValidationError(err.Error())
		}
		sum = withItem
	}
	if inv.GetSubtotalMoney().IsNegative() || inv.Tax.IsNegative() ||
		inv.Discount.IsNegative() || inv.GetTotalMoney().IsNegative() {
		return shared.NewValidationError("monetary amounts cannot be negative")
	}
	if !inv.GetSubtotalMoney().EqualsAtPrecision(sum) {
		return shared.NewValidationError(fmt.Sprintf(
			"subtotal %s does not equal sum of item totals %s",
			inv.Subtotal.StringFixed(2), sum.Amount().StringFixed(2)))
	}
	net, err := inv.GetSubtotalMoney().Subtract(valueobject.NewMoneyUSD(inv.Discount))
	if err != nil {
		return shared.NewValidationError(err.Error())
	}
	expectedTotal, err := net.Add(valueobject.NewMoneyUSD(inv.Tax))
	if err != nil {
		return shared.NewValidationError(err.Error())
	}
	if !inv.GetTotalMoney().EqualsAtPrecision(expectedTotal) {
		return shared.NewValidationError(fmt.Sprintf(
			"total %s does not equal subtotal - discount + tax (%s)",
			inv.Total.StringFixed(2), expectedTotal.Amount().StringFixed(2)))
	}
	if !inv.Status.IsValid() && inv.Status != "" {
		return shared.NewValidationError(fmt.Sprintf("unknown invoice status: %s", inv.Status))
	}
	if inv.DueDate.Before(inv.IssueDate) {
		return shared.NewValidationError("due date cannot precede issue date")
	}
	return nil
}

// EffectiveStatus returns the status as presented to readers: a sent
// invoice past its due date reads as overdue without any stored mutation.
func (inv *Invoice) EffectiveStatus(now time.Time) InvoiceStatus {
	if inv.Status == InvoiceStatusSent && now.After(inv.DueDate) {
		return InvoiceStatusOverdue
	}
	return inv.Status
}

// IsOverdue reports whether the effective status at now is overdue
func (inv *Invoice) IsOverdue(now time.Time) bool {
	return inv.EffectiveStatus(now) == InvoiceStatusOverdue
}

// MarkSent transitions a draft invoice to sent
func (inv *Invoice) MarkSent() error {
	if inv.Status != InvoiceStatusDraft {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("cannot send invoice in status %s", inv.Status))
	}
	inv.Status = InvoiceStatusSent
	inv.Touch(time.Now())
	return nil
}

// MarkPaid records full payment of the invoice
func (inv *Invoice) MarkPaid(method PaymentMethod, paidAt time.Time) error {
	if !inv.Status.CanAcceptPayment() {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("cannot pay invoice in status %s", inv.Status))
	}
	inv.Status = InvoiceStatusPaid
	inv.PaymentMethod = &method
	inv.PaidDate = &paidAt
	inv.Touch(paidAt)
	return nil
}

// MarkOverdue syncs the stored status with the overdue derivation
func (inv *Invoice) MarkOverdue(now time.Time) error {
	if inv.Status != InvoiceStatusSent {
		return shared.NewDomainError(shared.ErrInvalidState.Code,
			fmt.Sprintf("cannot mark invoice overdue in status %s", inv.Status))
	}
	if !now.After(inv.DueDate) {
		return shared.NewDomainError(shared.ErrInvalidState.Code, "invoice is not past its due date")
	}
	inv.Status = InvoiceStatusOverdue
	inv.Touch(now)
	return nil
}

// Cancel cancels the invoice; paid invoices cannot be cancelled
func (inv *Invoice) Cancel() error {
	if !inv.Status.CanCancel() {
		return shared.NewDomainError(shared.ErrInvalidState.Code, "cannot cancel a paid invoice")
	}
	inv.Status = InvoiceStatusCancelled
	inv.Touch(time.Now())
	return nil
}

// GetTotalMoney returns the invoice total as Money
func (inv *Invoice) GetTotalMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(inv.Total)
}

// GetSubtotalMoney returns the invoice subtotal as Money
func (inv *Invoice) GetSubtotalMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(inv.Subtotal)
}
