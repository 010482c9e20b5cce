package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vetpms/backend/internal/domain/billing"
	"github.com/vetpms/backend/internal/domain/shared"
	"github.com/vetpms/backend/internal/infrastructure/cache"
)

// legacyIDNamespace seeds uuids derived from non-uuid legacy ids, so the
// same legacy record maps to the same invoice id on every sync run
var legacyIDNamespace = uuid.MustParse("b41afe2c-8f19-4bb9-9d27-6c3a59c4f1d0")

// legacyInvoiceID maps a legacy export id (typically numeric) onto a
// stable uuid
func legacyInvoiceID(legacyID string) uuid.UUID {
	return uuid.NewSHA1(legacyIDNamespace, []byte(legacyID))
}

// LegacySource delivers raw invoice records from the clinic-data service's
// legacy export
type LegacySource interface {
	FetchLegacyInvoices(ctx context.Context) ([]billing.RawInvoiceRecord, error)
}

// ImportResult summarizes a legacy sync run
type ImportResult struct {
	Imported int      `json:"imported"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// ImportService pulls legacy invoice exports, normalizes each record and
// persists the well-formed ones. Malformed records are logged and skipped,
// never partially saved.
type ImportService struct {
	source      LegacySource
	invoiceRepo billing.InvoiceRepository
	cache       cache.AnalyticsCache
	logger      *zap.Logger
}

// ImportServiceOption is a functional option for configuring ImportService
type ImportServiceOption func(*ImportService)

// WithImportAnalyticsCache sets the analytics cache invalidated after a sync
func WithImportAnalyticsCache(c cache.AnalyticsCache) ImportServiceOption {
	return func(s *ImportService) {
		s.cache = c
	}
}

// NewImportService creates a new ImportService
func NewImportService(source LegacySource, invoiceRepo billing.InvoiceRepository,
	logger *zap.Logger, opts ...ImportServiceOption) *ImportService {
	s := &ImportService{
		source:      source,
		invoiceRepo: invoiceRepo,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncLegacyInvoices fetches the legacy export and imports it record by
// record. A record failure never aborts the run; the fetch itself failing
// does.
func (s *ImportService) SyncLegacyInvoices(ctx context.Context) (*ImportResult, error) {
	records, err := s.source.FetchLegacyInvoices(ctx)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for i, raw := range records {
		if err := s.importRecord(ctx, raw); err != nil {
			result.Failed++
			reason := fmt.Sprintf("record %d (id=%s): %v", i, raw.ID, err)
			result.Errors = append(result.Errors, reason)
			s.logger.Warn("legacy invoice skipped",
				zap.Int("index", i),
				zap.String("record_id", raw.ID.String()),
				zap.Error(err))
			continue
		}
		result.Imported++
	}

	if result.Imported > 0 && s.cache != nil {
		s.cache.Invalidate(ctx)
	}

	s.logger.Info("legacy invoice sync finished",
		zap.Int("imported", result.Imported),
		zap.Int("failed", result.Failed))
	return result, nil
}

// importRecord persists one normalized record. Re-running a sync must not
// duplicate what an earlier run stored, so the record's identity is pinned
// before saving: non-uuid legacy ids map onto a derived uuid, and records
// already present (matched by invoice number, then by id) are updated in
// place, keeping their number, creation time and version lineage.
func (s *ImportService) importRecord(ctx context.Context, raw billing.RawInvoiceRecord) error {
	inv, err := billing.NormalizeInvoice(raw)
	if err != nil {
		return err
	}
	if err := inv.Validate(); err != nil {
		return err
	}

	hasLegacyID := raw.ID.String() != ""
	if hasLegacyID {
		if _, err := uuid.Parse(raw.ID.String()); err != nil {
			inv.ID = legacyInvoiceID(raw.ID.String())
		}
	}

	if inv.InvoiceNumber != "" {
		existing, err := s.invoiceRepo.FindByInvoiceNumber(ctx, inv.InvoiceNumber)
		if err == nil {
			s.adoptExisting(inv, existing)
		} else if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		return s.invoiceRepo.Save(ctx, inv)
	}

	if hasLegacyID {
		existing, err := s.invoiceRepo.FindByID(ctx, inv.ID)
		if err == nil {
			inv.InvoiceNumber = existing.InvoiceNumber
			s.adoptExisting(inv, existing)
			return s.invoiceRepo.Save(ctx, inv)
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
	}

	number, err := s.invoiceRepo.GenerateInvoiceNumber(ctx)
	if err != nil {
		return err
	}
	inv.InvoiceNumber = number
	return s.invoiceRepo.Save(ctx, inv)
}

// adoptExisting carries the stored identity and audit lineage over to the
// re-imported record so the save updates rather than inserts
func (s *ImportService) adoptExisting(inv, existing *billing.Invoice) {
	inv.ID = existing.ID
	inv.CreatedAt = existing.CreatedAt
	inv.Version = existing.Version + 1
}
