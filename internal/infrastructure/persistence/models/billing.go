package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vetpms/backend/internal/domain/billing"
	"github.com/vetpms/backend/internal/domain/shared"
)

// InvoiceModel is the persistence model for the Invoice aggregate root.
// Line items live in a JSONB column; they are never queried individually.
type InvoiceModel struct {
	AggregateModel
	InvoiceNumber    string                 `gorm:"type:varchar(50);not null;uniqueIndex"`
	PetID            string                 `gorm:"type:varchar(64);index"`
	PetName          string                 `gorm:"type:varchar(200);not null"`
	PetSpecies       string                 `gorm:"type:varchar(100)"`
	OwnerID          string                 `gorm:"type:varchar(64);index"`
	OwnerName        string                 `gorm:"type:varchar(200);not null"`
	OwnerEmail       string                 `gorm:"type:varchar(320)"`
	VeterinarianID   string                 `gorm:"type:varchar(64);index"`
	VeterinarianName string                 `gorm:"type:varchar(200);not null"`
	IssueDate        time.Time              `gorm:"not null;index"`
	DueDate          time.Time              `gorm:"not null;index"`
	PaidDate         *time.Time             `gorm:"index"`
	Items            billing.InvoiceItems   `gorm:"type:jsonb;default:'[]'"`
	Subtotal         decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	Tax              decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	Discount         decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	Total            decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	Status           billing.InvoiceStatus  `gorm:"type:varchar(20);not null;default:'draft';index"`
	PaymentMethod    *billing.PaymentMethod `gorm:"type:varchar(20)"`
	Notes            string                 `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice entity.
func (m *InvoiceModel) ToDomain() *billing.Invoice {
	return &billing.Invoice{
		BaseAggregateRoot: shared.BaseAggregateRoot{
			BaseEntity: shared.BaseEntity{
				ID:        m.ID,
				CreatedAt: m.CreatedAt,
				UpdatedAt: m.UpdatedAt,
			},
			Version: m.Version,
		},
		InvoiceNumber:    m.InvoiceNumber,
		PetID:            m.PetID,
		PetName:          m.PetName,
		PetSpecies:       m.PetSpecies,
		OwnerID:          m.OwnerID,
		OwnerName:        m.OwnerName,
		OwnerEmail:       m.OwnerEmail,
		VeterinarianID:   m.VeterinarianID,
		VeterinarianName: m.VeterinarianName,
		IssueDate:        m.IssueDate,
		DueDate:          m.DueDate,
		PaidDate:         m.PaidDate,
		Items:            m.Items,
		Subtotal:         m.Subtotal,
		Tax:              m.Tax,
		Discount:         m.Discount,
		Total:            m.Total,
		Status:           m.Status,
		PaymentMethod:    m.PaymentMethod,
		Notes:            m.Notes,
	}
}

// FromDomain populates the persistence model from a domain Invoice entity.
func (m *InvoiceModel) FromDomain(inv *billing.Invoice) {
	m.FromDomainAggregateRoot(inv.BaseAggregateRoot)
	m.InvoiceNumber = inv.InvoiceNumber
	m.PetID = inv.PetID
	m.PetName = inv.PetName
	m.PetSpecies = inv.PetSpecies
	m.OwnerID = inv.OwnerID
	m.OwnerName = inv.OwnerName
	m.OwnerEmail = inv.OwnerEmail
	m.VeterinarianID = inv.VeterinarianID
	m.VeterinarianName = inv.VeterinarianName
	m.IssueDate = inv.IssueDate
	m.DueDate = inv.DueDate
	m.PaidDate = inv.PaidDate
	m.Items = inv.Items
	m.Subtotal = inv.Subtotal
	m.Tax = inv.Tax
	m.Discount = inv.Discount
	m.Total = inv.Total
	m.Status = inv.Status
	m.PaymentMethod = inv.PaymentMethod
	m.Notes = inv.Notes
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice.
func InvoiceModelFromDomain(inv *billing.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// PaymentRecordModel is the persistence model for payment records.
type PaymentRecordModel struct {
	BaseModel
	InvoiceID     uuid.UUID             `gorm:"type:uuid;not null;index"`
	Amount        decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	Method        billing.PaymentMethod `gorm:"type:varchar(20);not null"`
	TransactionID string                `gorm:"type:varchar(50);not null;uniqueIndex"`
	PaidDate      time.Time             `gorm:"not null;index"`
	Notes         string                `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (PaymentRecordModel) TableName() string {
	return "payment_records"
}

// ToDomain converts the persistence model to a domain PaymentRecord entity.
func (m *PaymentRecordModel) ToDomain() *billing.PaymentRecord {
	return &billing.PaymentRecord{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		InvoiceID:     m.InvoiceID,
		Amount:        m.Amount,
		Method:        m.Method,
		TransactionID: m.TransactionID,
		PaidDate:      m.PaidDate,
		Notes:         m.Notes,
	}
}

// FromDomain populates the persistence model from a domain PaymentRecord entity.
func (m *PaymentRecordModel) FromDomain(p *billing.PaymentRecord) {
	m.FromDomainBaseEntity(p.BaseEntity)
	m.InvoiceID = p.InvoiceID
	m.Amount = p.Amount
	m.Method = p.Method
	m.TransactionID = p.TransactionID
	m.PaidDate = p.PaidDate
	m.Notes = p.Notes
}

// PaymentRecordModelFromDomain creates a new persistence model from a domain PaymentRecord.
func PaymentRecordModelFromDomain(p *billing.PaymentRecord) *PaymentRecordModel {
	m := &PaymentRecordModel{}
	m.FromDomain(p)
	return m
}
