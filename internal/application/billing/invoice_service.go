package billing

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vetpms/backend/internal/domain/billing"
	"github.com/vetpms/backend/internal/domain/shared"
	"github.com/vetpms/backend/internal/infrastructure/cache"
	"github.com/vetpms/backend/internal/infrastructure/clinic"
)

// ClinicDirectory resolves pet, owner and veterinarian details from the
// clinic-data service. Lookups are best effort: a failed lookup falls back
// to whatever the caller already has.
type ClinicDirectory interface {
	GetPet(ctx context.Context, id string) (*clinic.Pet, error)
	GetOwner(ctx context.Context, id string) (*clinic.Owner, error)
	GetVeterinarian(ctx context.Context, id string) (*clinic.Veterinarian, error)
}

// ListFilter narrows invoice list queries. Exactly one dimension is
// honored, with precedence status > pet > date range > owner.
type ListFilter struct {
	Status    string
	PetID     string
	OwnerID   string
	StartDate *time.Time
	EndDate   *time.Time
}

// InvoiceService provides application-level invoice lifecycle operations
type InvoiceService struct {
	invoiceRepo billing.InvoiceRepository
	directory   ClinicDirectory
	cache       cache.AnalyticsCache
	logger      *zap.Logger
}

// InvoiceServiceOption is a functional option for configuring InvoiceService
type InvoiceServiceOption func(*InvoiceService)

// WithClinicDirectory sets the clinic-data lookup used to fill party names
func WithClinicDirectory(d ClinicDirectory) InvoiceServiceOption {
	return func(s *InvoiceService) {
		s.directory = d
	}
}

// WithAnalyticsCache sets the analytics cache invalidated on writes
func WithAnalyticsCache(c cache.AnalyticsCache) InvoiceServiceOption {
	return func(s *InvoiceService) {
		s.cache = c
	}
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(invoiceRepo billing.InvoiceRepository, logger *zap.Logger, opts ...InvoiceServiceOption) *InvoiceService {
	s := &InvoiceService{
		invoiceRepo: invoiceRepo,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create normalizes and validates a new invoice, fills party names from
// the clinic-data service where they are missing, assigns an invoice
// number and persists. Validation happens before any store round trip.
func (s *InvoiceService) Create(ctx context.Context, raw billing.RawInvoiceRecord) (*billing.Invoice, error) {
	inv, err := billing.NormalizeInvoice(raw)
	if err != nil {
		return nil, asRequestError(err)
	}
	if inv.Status == "" {
		inv.Status = billing.InvoiceStatusDraft
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}

	s.enrichParties(ctx, inv)

	if err := s.saveWithFreshNumber(ctx, inv); err != nil {
		return nil, err
	}
	s.invalidateAnalytics(ctx)

	s.logger.Info("invoice created",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("status", inv.Status.String()))
	return inv, nil
}

// numberAttempts bounds the generate-and-insert retries when two creates
// race for the same invoice number
const numberAttempts = 3

// saveWithFreshNumber persists a new invoice, assigning the next invoice
// number when the caller supplied none. Number generation reads the
// current maximum and is not atomic with the insert, so a concurrent
// create can win the number first; the unique index catches that and the
// insert is retried with a regenerated number.
func (s *InvoiceService) saveWithFreshNumber(ctx context.Context, inv *billing.Invoice) error {
	generated := inv.InvoiceNumber == ""

	for attempt := 1; ; attempt++ {
		if generated {
			number, err := s.invoiceRepo.GenerateInvoiceNumber(ctx)
			if err != nil {
				return err
			}
			inv.InvoiceNumber = number
		}

		err := s.invoiceRepo.Save(ctx, inv)
		if err == nil {
			return nil
		}
		if !errors.Is(err, shared.ErrDuplicate) {
			return err
		}
		if !generated {
			return shared.NewValidationError("invoice number " + inv.InvoiceNumber + " is already in use")
		}
		if attempt >= numberAttempts {
			return err
		}
		s.logger.Warn("invoice number collision, regenerating",
			zap.String("invoice_number", inv.InvoiceNumber),
			zap.Int("attempt", attempt))
	}
}

// Update merges the patch over the stored invoice, re-validates the
// resulting invoice and persists it
func (s *InvoiceService) Update(ctx context.Context, id uuid.UUID, patch billing.RawInvoiceRecord) (*billing.Invoice, error) {
	inv, err := s.invoiceRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := applyPatch(inv, patch); err != nil {
		return nil, err
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}

	inv.Touch(time.Now())
	inv.IncrementVersion()
	if err := s.invoiceRepo.Save(ctx, inv); err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			return nil, shared.NewValidationError("invoice number " + inv.InvoiceNumber + " is already in use")
		}
		return nil, err
	}
	s.invalidateAnalytics(ctx)

	s.logger.Info("invoice updated", zap.String("invoice_id", inv.ID.String()))
	return inv, nil
}

// Get returns a single invoice by id
func (s *InvoiceService) Get(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	return s.invoiceRepo.FindByID(ctx, id)
}

// Delete removes an invoice. Deleting a missing id is a no-op success.
func (s *InvoiceService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.invoiceRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateAnalytics(ctx)
	return nil
}

// List returns invoices matching the filter. When more than one dimension
// is supplied only the highest-precedence one is honored. An overdue
// status filter matches by effective status, so invoices stored as sent
// but past due are included.
func (s *InvoiceService) List(ctx context.Context, filter ListFilter) ([]billing.Invoice, error) {
	repoFilter, effective, err := resolveFilter(filter)
	if err != nil {
		return nil, err
	}

	invoices, err := s.invoiceRepo.FindByFilter(ctx, repoFilter)
	if err != nil {
		return nil, err
	}

	if effective == "" {
		return invoices, nil
	}

	now := time.Now()
	matched := make([]billing.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if inv.EffectiveStatus(now) == effective {
			matched = append(matched, inv)
		}
	}
	return matched, nil
}

// resolveFilter reduces a multi-dimension filter to the single repository
// dimension with the highest precedence, and reports the effective status
// the results must additionally satisfy.
func resolveFilter(filter ListFilter) (billing.InvoiceFilter, billing.InvoiceStatus, error) {
	switch {
	case filter.Status != "":
		status := billing.InvoiceStatus(strings.ToLower(strings.TrimSpace(filter.Status)))
		if !status.IsValid() {
			return billing.InvoiceFilter{}, "", shared.NewValidationError("unknown status filter: " + filter.Status)
		}
		switch status {
		case billing.InvoiceStatusOverdue:
			// Lapsed sent invoices are effectively overdue too
			return billing.InvoiceFilter{
				Statuses: []billing.InvoiceStatus{billing.InvoiceStatusSent, billing.InvoiceStatusOverdue},
			}, billing.InvoiceStatusOverdue, nil
		case billing.InvoiceStatusSent:
			// Exclude sent invoices that have lapsed into overdue
			return billing.InvoiceFilter{
				Statuses: []billing.InvoiceStatus{billing.InvoiceStatusSent},
			}, billing.InvoiceStatusSent, nil
		default:
			return billing.InvoiceFilter{Statuses: []billing.InvoiceStatus{status}}, "", nil
		}
	case filter.PetID != "":
		return billing.InvoiceFilter{PetID: filter.PetID}, "", nil
	case filter.StartDate != nil || filter.EndDate != nil:
		return billing.InvoiceFilter{StartDate: filter.StartDate, EndDate: filter.EndDate}, "", nil
	case filter.OwnerID != "":
		return billing.InvoiceFilter{OwnerID: filter.OwnerID}, "", nil
	}
	return billing.InvoiceFilter{}, "", nil
}

// enrichParties fills missing party names from the clinic-data service.
// Lookups never fail the operation; the Unknown fallbacks stand when the
// directory cannot resolve an id.
func (s *InvoiceService) enrichParties(ctx context.Context, inv *billing.Invoice) {
	if s.directory == nil {
		return
	}

	if inv.PetID != "" && (inv.PetName == billing.UnknownPet || inv.PetSpecies == "") {
		if pet, err := s.directory.GetPet(ctx, inv.PetID); err == nil {
			if inv.PetName == billing.UnknownPet && pet.Name != "" {
				inv.PetName = pet.Name
			}
			if inv.PetSpecies == "" {
				inv.PetSpecies = pet.Species
			}
			if inv.OwnerID == "" {
				inv.OwnerID = pet.OwnerID
			}
		} else if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("pet lookup failed", zap.String("pet_id", inv.PetID), zap.Error(err))
		}
	}

	if inv.OwnerID != "" && (inv.OwnerName == billing.UnknownOwner || inv.OwnerEmail == "") {
		if owner, err := s.directory.GetOwner(ctx, inv.OwnerID); err == nil {
			if inv.OwnerName == billing.UnknownOwner && owner.DisplayName() != "" {
				inv.OwnerName = owner.DisplayName()
			}
			if inv.OwnerEmail == "" {
				inv.OwnerEmail = owner.Email
			}
		} else if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("owner lookup failed", zap.String("owner_id", inv.OwnerID), zap.Error(err))
		}
	}

	if inv.VeterinarianID != "" && inv.VeterinarianName == billing.UnknownVet {
		if vet, err := s.directory.GetVeterinarian(ctx, inv.VeterinarianID); err == nil {
			if vet.DisplayName() != "" {
				inv.VeterinarianName = vet.DisplayName()
			}
		} else if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("veterinarian lookup failed", zap.String("veterinarian_id", inv.VeterinarianID), zap.Error(err))
		}
	}
}

func (s *InvoiceService) invalidateAnalytics(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

// applyPatch merges the non-empty fields of a raw patch over an existing
// invoice. Dates, enums and amounts pass through the same normalization
// rules as full records.
func applyPatch(inv *billing.Invoice, patch billing.RawInvoiceRecord) error {
	merged := rawFromInvoice(inv)

	overrideString(&merged.InvoiceNumber, patch.InvoiceNumber)
	overrideString(&merged.IssueDate, patch.IssueDate)
	overrideString(&merged.DueDate, patch.DueDate)
	overrideString(&merged.PaidDate, patch.PaidDate)
	overrideString(&merged.Status, patch.Status)
	overrideString(&merged.PaymentMethod, patch.PaymentMethod)
	overrideString(&merged.Notes, patch.Notes)
	overrideString(&merged.PetName, patch.PetName)
	overrideString(&merged.PetSpecies, patch.PetSpecies)
	overrideString(&merged.OwnerName, patch.OwnerName)
	overrideString(&merged.OwnerEmail, patch.OwnerEmail)
	overrideString(&merged.VeterinarianName, patch.VeterinarianName)
	if patch.PetID != "" {
		merged.PetID = patch.PetID
	}
	if patch.OwnerID != "" {
		merged.OwnerID = patch.OwnerID
	}
	if patch.VeterinarianID != "" {
		merged.VeterinarianID = patch.VeterinarianID
	}
	if patch.Pet != nil {
		merged.Pet = patch.Pet
	}
	if patch.Owner != nil {
		merged.Owner = patch.Owner
	}
	if patch.Veterinarian != nil {
		merged.Veterinarian = patch.Veterinarian
	}
	if patch.Items != nil {
		merged.Items = patch.Items
	}
	if patch.Subtotal != "" {
		merged.Subtotal = patch.Subtotal
	}
	if patch.Tax != "" {
		merged.Tax = patch.Tax
	}
	if patch.Discount != "" {
		merged.Discount = patch.Discount
	}
	if patch.Total != "" {
		merged.Total = patch.Total
	}

	updated, err := billing.NormalizeInvoice(merged)
	if err != nil {
		return asRequestError(err)
	}

	// Identity and audit fields survive the merge untouched
	updated.ID = inv.ID
	updated.CreatedAt = inv.CreatedAt
	updated.Version = inv.Version
	if updated.InvoiceNumber == "" {
		updated.InvoiceNumber = inv.InvoiceNumber
	}

	*inv = *updated
	return nil
}

// rawFromInvoice renders an invoice back into the loose wire shape so a
// patch can be merged over it field by field
func rawFromInvoice(inv *billing.Invoice) billing.RawInvoiceRecord {
	raw := billing.RawInvoiceRecord{
		ID:               billing.StringOrNumber(inv.ID.String()),
		InvoiceNumber:    inv.InvoiceNumber,
		PetID:            billing.StringOrNumber(inv.PetID),
		PetName:          inv.PetName,
		PetSpecies:       inv.PetSpecies,
		OwnerID:          billing.StringOrNumber(inv.OwnerID),
		OwnerName:        inv.OwnerName,
		OwnerEmail:       inv.OwnerEmail,
		VeterinarianID:   billing.StringOrNumber(inv.VeterinarianID),
		VeterinarianName: inv.VeterinarianName,
		IssueDate:        inv.IssueDate.Format(time.RFC3339),
		DueDate:          inv.DueDate.Format(time.RFC3339),
		Subtotal:         json.Number(inv.Subtotal.String()),
		Tax:              json.Number(inv.Tax.String()),
		Discount:         json.Number(inv.Discount.String()),
		Total:            json.Number(inv.Total.String()),
		Status:           inv.Status.String(),
		Notes:            inv.Notes,
	}
	if inv.PaidDate != nil {
		raw.PaidDate = inv.PaidDate.Format(time.RFC3339)
	}
	if inv.PaymentMethod != nil {
		raw.PaymentMethod = inv.PaymentMethod.String()
	}
	raw.Items = make([]billing.RawInvoiceItem, len(inv.Items))
	for i, item := range inv.Items {
		raw.Items[i] = billing.RawInvoiceItem{
			Description: item.Description,
			Category:    string(item.Category),
			Quantity:    item.Quantity,
			UnitPrice:   json.Number(item.UnitPrice.String()),
			Total:       json.Number(item.Total.String()),
		}
	}
	return raw
}

func overrideString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// asRequestError downgrades a malformed-record error to a validation error.
// Records arriving on the API are requests, not stored state; rejecting
// them is the caller's 400, not our 500.
func asRequestError(err error) error {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) && domainErr.Code == shared.ErrMalformedRecord.Code {
		return shared.NewValidationError(domainErr.Message)
	}
	return err
}
