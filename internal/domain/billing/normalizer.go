package billing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vetpms/backend/internal/domain/shared"
)

// The clinic-data service and legacy exports deliver invoices loosely
// typed: dates as strings, enums in arbitrary casing, related entities
// either nested or flattened, identifiers as strings or numbers. The
// normalizer is the single place where those records become canonical
// domain values. It is a pure transform with no side effects.

// Fallback display names used when no related-entity data resolves
const (
	UnknownPet   = "Unknown Pet"
	UnknownOwner = "Unknown Owner"
	UnknownVet   = "Unknown Vet"
)

// Date layouts accepted from the store, tried in order
var rawDateLayouts = []string{time.RFC3339, "2006-01-02"}

// StringOrNumber decodes a JSON string or number into a string. Legacy
// records carry numeric ids, newer ones uuids.
type StringOrNumber string

// UnmarshalJSON implements json.Unmarshaler
func (s *StringOrNumber) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = StringOrNumber(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*s = StringOrNumber(num.String())
	return nil
}

// String returns the decoded value
func (s StringOrNumber) String() string { return string(s) }

// RawRelatedEntity is a nested pet/owner/veterinarian object as the store
// ships it. Any field may be absent.
type RawRelatedEntity struct {
	ID        StringOrNumber `json:"id"`
	Name      string         `json:"name"`
	FirstName string         `json:"firstName"`
	LastName  string         `json:"lastName"`
	Email     string         `json:"email"`
	Species   string         `json:"species"`
}

// RawInvoiceItem is a loosely typed line item
type RawInvoiceItem struct {
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Quantity    int         `json:"quantity"`
	UnitPrice   json.Number `json:"unitPrice"`
	Total       json.Number `json:"total"`
}

// RawInvoiceRecord is an invoice as persisted or received on the wire,
// before normalization
type RawInvoiceRecord struct {
	ID               StringOrNumber    `json:"id"`
	InvoiceNumber    string            `json:"invoiceNumber"`
	Pet              *RawRelatedEntity `json:"pet"`
	Owner            *RawRelatedEntity `json:"owner"`
	Veterinarian     *RawRelatedEntity `json:"veterinarian"`
	PetID            StringOrNumber    `json:"petId"`
	PetName          string            `json:"petName"`
	PetSpecies       string            `json:"petSpecies"`
	OwnerID          StringOrNumber    `json:"ownerId"`
	OwnerName        string            `json:"ownerName"`
	OwnerEmail       string            `json:"ownerEmail"`
	VeterinarianID   StringOrNumber    `json:"veterinarianId"`
	VeterinarianName string            `json:"veterinarianName"`
	IssueDate        string            `json:"issueDate"`
	DueDate          string            `json:"dueDate"`
	PaidDate         string            `json:"paidDate"`
	Items            []RawInvoiceItem  `json:"items"`
	Subtotal         json.Number       `json:"subtotal"`
	Tax              json.Number       `json:"tax"`
	Discount         json.Number       `json:"discount"`
	Total            json.Number       `json:"total"`
	Status           string            `json:"status"`
	PaymentMethod    string            `json:"paymentMethod"`
	Notes            string            `json:"notes"`
}

// RawPaymentRecord is a payment as persisted or received on the wire
type RawPaymentRecord struct {
	ID            StringOrNumber `json:"id"`
	InvoiceID     StringOrNumber `json:"invoiceId"`
	Amount        json.Number    `json:"amount"`
	Method        string         `json:"method"`
	TransactionID string         `json:"transactionId"`
	PaidDate      string         `json:"paidDate"`
	Notes         string         `json:"notes"`
}

// NormalizeInvoice converts a raw record into a canonical Invoice. Issue
// and due dates are required; names resolve through the fallback chains;
// enumerations are lower-cased. The returned invoice is not validated
// against the monetary invariants - that is the lifecycle manager's job.
func NormalizeInvoice(raw RawInvoiceRecord) (*Invoice, error) {
	issue, err := parseRawDate(raw.IssueDate)
	if err != nil {
		return nil, shared.NewMalformedRecordError(fmt.Sprintf("invalid issue date %q", raw.IssueDate))
	}
	due, err := parseRawDate(raw.DueDate)
	if err != nil {
		return nil, shared.NewMalformedRecordError(fmt.Sprintf("invalid due date %q", raw.DueDate))
	}

	inv := &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		InvoiceNumber:     raw.InvoiceNumber,
		IssueDate:         issue,
		DueDate:           due,
		Notes:             raw.Notes,
	}

	if raw.ID != "" {
		if id, err := uuid.Parse(raw.ID.String()); err == nil {
			inv.ID = id
		}
	}

	if raw.PaidDate != "" {
		paid, err := parseRawDate(raw.PaidDate)
		if err != nil {
			return nil, shared.NewMalformedRecordError(fmt.Sprintf("invalid paid date %q", raw.PaidDate))
		}
		inv.PaidDate = &paid
	}

	inv.PetID, inv.PetName, inv.PetSpecies = normalizePet(raw)
	inv.OwnerID, inv.OwnerName, inv.OwnerEmail = normalizeOwner(raw)
	inv.VeterinarianID, inv.VeterinarianName = normalizeVeterinarian(raw)

	inv.Status, err = normalizeStatus(raw.Status)
	if err != nil {
		return nil, err
	}

	if raw.PaymentMethod != "" {
		method := PaymentMethod(strings.ToLower(raw.PaymentMethod))
		if !method.IsValid() {
			return nil, shared.NewMalformedRecordError(fmt.Sprintf("unknown payment method %q", raw.PaymentMethod))
		}
		inv.PaymentMethod = &method
	}

	if inv.Subtotal, err = parseRawAmount(raw.Subtotal, "subtotal"); err != nil {
		return nil, err
	}
	if inv.Tax, err = parseRawAmount(raw.Tax, "tax"); err != nil {
		return nil, err
	}
	if inv.Discount, err = parseRawAmount(raw.Discount, "discount"); err != nil {
		return nil, err
	}
	if inv.Total, err = parseRawAmount(raw.Total, "total"); err != nil {
		return nil, err
	}

	inv.Items = make([]InvoiceItem, 0, len(raw.Items))
	for idx, rawItem := range raw.Items {
		item, err := normalizeItem(rawItem, idx)
		if err != nil {
			return nil, err
		}
		inv.Items = append(inv.Items, item)
	}

	return inv, nil
}

// NormalizePayment converts a raw payment record into a canonical
// PaymentRecord. Method is lower-cased; the paid date is required.
func NormalizePayment(raw RawPaymentRecord) (*PaymentRecord, error) {
	paidAt, err := parseRawDate(raw.PaidDate)
	if err != nil {
		return nil, shared.NewMalformedRecordError(fmt.Sprintf("invalid paid date %q", raw.PaidDate))
	}

	method := PaymentMethod(strings.ToLower(raw.Method))
	if !method.IsValid() {
		return nil, shared.NewMalformedRecordError(fmt.Sprintf("unknown payment method %q", raw.Method))
	}

	amount, err := parseRawAmount(raw.Amount, "amount")
	if err != nil {
		return nil, err
	}

	p := &PaymentRecord{
		BaseEntity:    shared.NewBaseEntity(),
		Amount:        amount,
		Method:        method,
		TransactionID: raw.TransactionID,
		PaidDate:      paidAt,
		Notes:         raw.Notes,
	}
	if raw.ID != "" {
		if id, err := uuid.Parse(raw.ID.String()); err == nil {
			p.ID = id
		}
	}
	if raw.InvoiceID != "" {
		if id, err := uuid.Parse(raw.InvoiceID.String()); err == nil {
			p.InvoiceID = id
		}
	}
	return p, nil
}

func normalizeItem(raw RawInvoiceItem, idx int) (InvoiceItem, error) {
	category := ItemCategory(strings.ToLower(raw.Category))
	if raw.Category != "" && !category.IsValid() {
		return InvoiceItem{}, shared.NewMalformedRecordError(fmt.Sprintf("unknown item category %q", raw.Category))
	}
	if raw.Category == "" {
		category = CategoryOther
	}
	unitPrice, err := parseRawAmount(raw.UnitPrice, fmt.Sprintf("items[%d].unitPrice", idx))
	if err != nil {
		return InvoiceItem{}, err
	}
	total, err := parseRawAmount(raw.Total, fmt.Sprintf("items[%d].total", idx))
	if err != nil {
		return InvoiceItem{}, err
	}
	return InvoiceItem{
		Description: raw.Description,
		Category:    category,
		Quantity:    raw.Quantity,
		UnitPrice:   unitPrice,
		Total:       total,
	}, nil
}

// normalizePet resolves the pet fallback chain: nested name, flat field,
// Unknown literal
func normalizePet(raw RawInvoiceRecord) (id, name, species string) {
	id = raw.PetID.String()
	name = raw.PetName
	species = raw.PetSpecies
	if raw.Pet != nil {
		if raw.Pet.ID != "" {
			id = raw.Pet.ID.String()
		}
		if raw.Pet.Name != "" {
			name = raw.Pet.Name
		}
		if raw.Pet.Species != "" {
			species = raw.Pet.Species
		}
	}
	if name == "" {
		name = UnknownPet
	}
	return id, name, species
}

// normalizeOwner composes "First Last" from a nested owner before falling
// back to the flat field, then the Unknown literal
func normalizeOwner(raw RawInvoiceRecord) (id, name, email string) {
	id = raw.OwnerID.String()
	name = raw.OwnerName
	email = raw.OwnerEmail
	if raw.Owner != nil {
		if raw.Owner.ID != "" {
			id = raw.Owner.ID.String()
		}
		if composed := composeName(raw.Owner.FirstName, raw.Owner.LastName); composed != "" {
			name = composed
		} else if raw.Owner.Name != "" {
			name = raw.Owner.Name
		}
		if raw.Owner.Email != "" {
			email = raw.Owner.Email
		}
	}
	if name == "" {
		name = UnknownOwner
	}
	return id, name, email
}

// normalizeVeterinarian prefers an explicit name, then "Dr. First Last",
// then the flat field, then the Unknown literal
func normalizeVeterinarian(raw RawInvoiceRecord) (id, name string) {
	id = raw.VeterinarianID.String()
	name = raw.VeterinarianName
	if raw.Veterinarian != nil {
		if raw.Veterinarian.ID != "" {
			id = raw.Veterinarian.ID.String()
		}
		if raw.Veterinarian.Name != "" {
			name = raw.Veterinarian.Name
		} else if composed := composeName(raw.Veterinarian.FirstName, raw.Veterinarian.LastName); composed != "" {
			name = "Dr. " + composed
		}
	}
	if name == "" {
		name = UnknownVet
	}
	return id, name
}

func composeName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

// normalizeStatus lower-cases the stored status; empty defaults to draft,
// anything else outside the enum is malformed
func normalizeStatus(raw string) (InvoiceStatus, error) {
	if raw == "" {
		return InvoiceStatusDraft, nil
	}
	status := InvoiceStatus(strings.ToLower(raw))
	if !status.IsValid() {
		return "", shared.NewMalformedRecordError(fmt.Sprintf("unknown invoice status %q", raw))
	}
	return status, nil
}

func parseRawDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range rawDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// parseRawAmount parses a money field; an absent value is zero, a
// non-numeric one is malformed
func parseRawAmount(n json.Number, field string) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Decimal{}, shared.NewMalformedRecordError(fmt.Sprintf("invalid amount for %s: %q", field, n))
	}
	return d, nil
}
