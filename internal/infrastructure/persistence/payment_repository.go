package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/vetpms/backend/internal/domain/billing"
	"github.com/vetpms/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormPaymentRepository implements billing.PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindAll returns every payment record, newest first
func (r *GormPaymentRepository) FindAll(ctx context.Context) ([]billing.PaymentRecord, error) {
	var paymentModels []models.PaymentRecordModel
	if err := r.db.WithContext(ctx).
		Order("paid_date DESC, id ASC").
		Find(&paymentModels).Error; err != nil {
		return nil, mapStoreError(err)
	}
	payments := make([]billing.PaymentRecord, len(paymentModels))
	for i, model := range paymentModels {
		payments[i] = *model.ToDomain()
	}
	return payments, nil
}

// FindByInvoiceID returns the payments recorded against one invoice
func (r *GormPaymentRepository) FindByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]billing.PaymentRecord, error) {
	var paymentModels []models.PaymentRecordModel
	if err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("paid_date DESC, id ASC").
		Find(&paymentModels).Error; err != nil {
		return nil, mapStoreError(err)
	}
	payments := make([]billing.PaymentRecord, len(paymentModels))
	for i, model := range paymentModels {
		payments[i] = *model.ToDomain()
	}
	return payments, nil
}

// Save persists a payment record on its own
func (r *GormPaymentRepository) Save(ctx context.Context, payment *billing.PaymentRecord) error {
	model := models.PaymentRecordModelFromDomain(payment)
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return mapStoreError(err)
	}
	return nil
}

// SaveWithInvoice persists the payment record and the updated invoice in a
// single transaction. Either both rows land or neither does.
func (r *GormPaymentRepository) SaveWithInvoice(ctx context.Context, payment *billing.PaymentRecord, invoice *billing.Invoice) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(models.PaymentRecordModelFromDomain(payment)).Error; err != nil {
			return err
		}
		return tx.Save(models.InvoiceModelFromDomain(invoice)).Error
	})
	if err != nil {
		return mapStoreError(err)
	}
	return nil
}

// Ensure GormPaymentRepository implements billing.PaymentRepository
var _ billing.PaymentRepository = (*GormPaymentRepository)(nil)
