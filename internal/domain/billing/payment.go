package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vetpms/backend/internal/domain/shared"
	"github.com/vetpms/backend/internal/domain/shared/valueobject"
)

// PaymentMethod represents how a payment was made.
// The canonical form is lower case throughout the domain.
type PaymentMethod string

const (
	PaymentMethodCash      PaymentMethod = "cash"
	PaymentMethodCard      PaymentMethod = "card"
	PaymentMethodCheck     PaymentMethod = "check"
	PaymentMethodInsurance PaymentMethod = "insurance"
	PaymentMethodOnline    PaymentMethod = "online"
)

// IsValid checks if the method is a recognized PaymentMethod
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodCheck,
		PaymentMethodInsurance, PaymentMethodOnline:
		return true
	}
	return false
}

// String returns the string representation of PaymentMethod
func (m PaymentMethod) String() string {
	return string(m)
}

// ParsePaymentMethod normalizes a wire value (any casing) to the canonical
// lower-case method, rejecting unrecognized values.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", shared.NewValidationError(fmt.Sprintf("unknown payment method: %s", s))
	}
	return m, nil
}

// PaymentRecord is an immutable record of funds received against an
// invoice. It references the invoice but is not owned by it and may
// outlive the invoice's in-memory representation.
type PaymentRecord struct {
	shared.BaseEntity
	InvoiceID     uuid.UUID
	Amount        decimal.Decimal
	Method        PaymentMethod
	TransactionID string
	PaidDate      time.Time
	Notes         string
}

// NewPaymentRecord creates a payment record for an invoice. A transaction
// id is generated when none is supplied.
func NewPaymentRecord(invoiceID uuid.UUID, amount decimal.Decimal, method PaymentMethod,
	transactionID, notes string, paidAt time.Time) (*PaymentRecord, error) {
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("payment amount must be positive")
	}
	if !method.IsValid() {
		return nil, shared.NewValidationError(fmt.Sprintf("unknown payment method: %s", method))
	}
	if transactionID == "" {
		transactionID = GenerateTransactionID(paidAt)
	}
	return &PaymentRecord{
		BaseEntity:    shared.NewBaseEntity(),
		InvoiceID:     invoiceID,
		Amount:        amount,
		Method:        method,
		TransactionID: transactionID,
		PaidDate:      paidAt,
		Notes:         notes,
	}, nil
}

// GenerateTransactionID builds a transaction reference for payments that
// arrive without one (cash, check).
func GenerateTransactionID(at time.Time) string {
	return fmt.Sprintf("TXN-%s-%s", at.UTC().Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))
}

// GetAmountMoney returns the payment amount as Money
func (p *PaymentRecord) GetAmountMoney() valueobject.Money {
	return valueobject.NewMoneyUSD(p.Amount)
}

// CoversTotal reports whether this payment settles the given invoice total
func (p *PaymentRecord) CoversTotal(total decimal.Decimal) bool {
	covered, err := valueobject.NewMoneyUSD(total).LessThanOrEqual(p.GetAmountMoney())
	if err != nil {
		return false
	}
	return covered
}
