package billing

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetpms/backend/internal/domain/shared"
)

func rawFixture() RawInvoiceRecord {
	return RawInvoiceRecord{
		ID:            "550e8400-e29b-41d4-a716-446655440000",
		InvoiceNumber: "INV-20250601-00001",
		Pet:           &RawRelatedEntity{ID: "7", Name: "Biscuit", Species: "dog"},
		Owner:         &RawRelatedEntity{ID: "12", FirstName: "Maya", LastName: "Okafor", Email: "maya@example.com"},
		Veterinarian:  &RawRelatedEntity{ID: "3", FirstName: "Sam", LastName: "Reyes"},
		IssueDate:     "2025-06-01",
		DueDate:       "2025-07-01",
		Status:        "SENT",
		PaymentMethod: "CARD",
		Items: []RawInvoiceItem{
			{Description: "Exam", Category: "CONSULTATION", Quantity: 2, UnitPrice: "50.00", Total: "100.00"},
		},
		Subtotal: "100.00",
		Tax:      "8.00",
		Discount: "0",
		Total:    "108.00",
	}
}

func TestNormalizeInvoice(t *testing.T) {
	t.Run("canonicalizes a well-formed record", func(t *testing.T) {
		inv, err := NormalizeInvoice(rawFixture())
		require.NoError(t, err)

		assert.Equal(t, "Biscuit", inv.PetName)
		assert.Equal(t, "dog", inv.PetSpecies)
		assert.Equal(t, "Maya Okafor", inv.OwnerName)
		assert.Equal(t, "maya@example.com", inv.OwnerEmail)
		assert.Equal(t, "Dr. Sam Reyes", inv.VeterinarianName)
		assert.Equal(t, InvoiceStatusSent, inv.Status)
		require.NotNil(t, inv.PaymentMethod)
		assert.Equal(t, PaymentMethodCard, *inv.PaymentMethod)
		assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), inv.IssueDate)
		assert.Equal(t, "108.00", inv.Total.StringFixed(2))
		require.Len(t, inv.Items, 1)
		assert.Equal(t, CategoryConsultation, inv.Items[0].Category)
	})

	t.Run("accepts RFC3339 dates", func(t *testing.T) {
		raw := rawFixture()
		raw.IssueDate = "2025-06-01T09:30:00Z"
		inv, err := NormalizeInvoice(raw)
		require.NoError(t, err)
		assert.Equal(t, 9, inv.IssueDate.Hour())
	})

	t.Run("missing issue date is malformed", func(t *testing.T) {
		raw := rawFixture()
		raw.IssueDate = ""
		_, err := NormalizeInvoice(raw)
		assert.True(t, errors.Is(err, shared.ErrMalformedRecord))
	})

	t.Run("unparseable due date is malformed", func(t *testing.T) {
		raw := rawFixture()
		raw.DueDate = "07/01/2025"
		_, err := NormalizeInvoice(raw)
		assert.True(t, errors.Is(err, shared.ErrMalformedRecord))
	})

	t.Run("paid date is optional", func(t *testing.T) {
		raw := rawFixture()
		raw.PaidDate = ""
		inv, err := NormalizeInvoice(raw)
		require.NoError(t, err)
		assert.Nil(t, inv.PaidDate)

		raw.PaidDate = "2025-06-20"
		inv, err = NormalizeInvoice(raw)
		require.NoError(t, err)
		require.NotNil(t, inv.PaidDate)
	})

	t.Run("empty status defaults to draft", func(t *testing.T) {
		raw := rawFixture()
		raw.Status = ""
		inv, err := NormalizeInvoice(raw)
		require.NoError(t, err)
		assert.Equal(t, InvoiceStatusDraft, inv.Status)
	})

	t.Run("unknown status is malformed", func(t *testing.T) {
		raw := rawFixture()
		raw.Status = "ARCHIVED"
		_, err := NormalizeInvoice(raw)
		assert.True(t, errors.Is(err, shared.ErrMalformedRecord))
	})

	t.Run("non-numeric amount is malformed", func(t *testing.T) {
		raw := rawFixture()
		raw.Total = json.Number("lots")
		_, err := NormalizeInvoice(raw)
		assert.True(t, errors.Is(err, shared.ErrMalformedRecord))
	})
}

func TestNormalizeFallbackChains(t *testing.T) {
	t.Run("flat fields used when nested entities absent", func(t *testing.T) {
		raw := rawFixture()
		raw.Pet, raw.Owner, raw.Veterinarian = nil, nil, nil
		raw.PetName, raw.OwnerName, raw.VeterinarianName = "Ziggy", "Lee Chan", "Dr. Patel"
		inv, err := NormalizeInvoice(raw)
		require.NoError(t, err)
		assert.Equal(t, "Ziggy", inv.PetName)
		assert.Equal(t, "Lee Chan", inv.OwnerName)
		assert.Equal(t, "Dr. Patel", inv.VeterinarianName)
	})

	t.Run("unknown literals when nothing resolves", func(t *testing.T) {
		raw := rawFixture()
		raw.Pet, raw.Owner, raw.Veterinarian = nil, nil, nil
		raw.PetName, raw.OwnerName, raw.VeterinarianName = "", "", ""
		inv, err := NormalizeInvoice(raw)
		require.NoError(t, err)
		assert.Equal(t, UnknownPet, inv.PetName)
		assert.Equal(t, UnknownOwner, inv.OwnerName)
		assert.Equal(t, UnknownVet, inv.VeterinarianName)
	})

	t.Run("explicit vet name preferred over composition", func(t *testing.T) {
		raw := rawFixture()
		raw.Veterinarian = &RawRelatedEntity{Name: "Dr. A. Okonkwo", FirstName: "Ada", LastName: "Okonkwo"}
		inv, err := NormalizeInvoice(raw)
		require.NoError(t, err)
		assert.Equal(t, "Dr. A. Okonkwo", inv.VeterinarianName)
	})

	t.Run("numeric ids decode as strings", func(t *testing.T) {
		var raw RawInvoiceRecord
		payload := `{"issueDate":"2025-06-01","dueDate":"2025-07-01","pet":{"id":42,"name":"Rex"},"items":[]}`
		require.NoError(t, json.Unmarshal([]byte(payload), &raw))
		inv, err := NormalizeInvoice(raw)
		require.NoError(t, err)
		assert.Equal(t, "42", inv.PetID)
	})
}

func TestNormalizePayment(t *testing.T) {
	raw := RawPaymentRecord{
		ID:            "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		InvoiceID:     "550e8400-e29b-41d4-a716-446655440000",
		Amount:        "137.50",
		Method:        "CASH",
		TransactionID: "TXN-1",
		PaidDate:      "2025-06-20T14:00:00Z",
	}

	t.Run("canonicalizes method and dates", func(t *testing.T) {
		p, err := NormalizePayment(raw)
		require.NoError(t, err)
		assert.Equal(t, PaymentMethodCash, p.Method)
		assert.Equal(t, "137.5", p.Amount.String())
		assert.Equal(t, 14, p.PaidDate.Hour())
	})

	t.Run("missing paid date is malformed", func(t *testing.T) {
		bad := raw
		bad.PaidDate = ""
		_, err := NormalizePayment(bad)
		assert.True(t, errors.Is(err, shared.ErrMalformedRecord))
	})

	t.Run("unknown method is malformed", func(t *testing.T) {
		bad := raw
		bad.Method = "barter"
		_, err := NormalizePayment(bad)
		assert.True(t, errors.Is(err, shared.ErrMalformedRecord))
	})
}
