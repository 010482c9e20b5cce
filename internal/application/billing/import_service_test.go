package billing

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vetpms/backend/internal/domain/billing"
	"github.com/vetpms/backend/internal/domain/shared"
)

func TestSyncLegacyInvoices(t *testing.T) {
	good := validRawInvoice()
	badDate := validRawInvoice()
	badDate.IssueDate = "not-a-date"
	badTotal := validRawInvoice()
	badTotal.Total = json.Number("1.00")

	source := new(mockLegacySource)
	source.On("FetchLegacyInvoices", mock.Anything).
		Return([]billing.RawInvoiceRecord{good, badDate, badTotal}, nil)

	repo := new(mockInvoiceRepository)
	repo.On("GenerateInvoiceNumber", mock.Anything).Return("INV-20250310-00001", nil).Once()
	repo.On("Save", mock.Anything, mock.AnythingOfType("*billing.Invoice")).Return(nil).Once()

	svc := NewImportService(source, repo, zap.NewNop())
	result, err := svc.SyncLegacyInvoices(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 2, result.Failed)
	assert.Len(t, result.Errors, 2)
	repo.AssertExpectations(t)
}

func TestSyncLegacyInvoicesKeepsExistingNumbers(t *testing.T) {
	numbered := validRawInvoice()
	numbered.InvoiceNumber = "INV-20240101-00042"

	source := new(mockLegacySource)
	source.On("FetchLegacyInvoices", mock.Anything).
		Return([]billing.RawInvoiceRecord{numbered}, nil)

	repo := new(mockInvoiceRepository)
	repo.On("FindByInvoiceNumber", mock.Anything, "INV-20240101-00042").
		Return(nil, shared.ErrNotFound).Once()
	repo.On("Save", mock.Anything, mock.MatchedBy(func(inv *billing.Invoice) bool {
		return inv.InvoiceNumber == "INV-20240101-00042"
	})).Return(nil).Once()

	svc := NewImportService(source, repo, zap.NewNop())
	result, err := svc.SyncLegacyInvoices(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	repo.AssertNotCalled(t, "GenerateInvoiceNumber", mock.Anything)
}

func TestSyncLegacyInvoicesIsIdempotent(t *testing.T) {
	legacy := validRawInvoice()
	legacy.ID = billing.StringOrNumber("1042")

	source := new(mockLegacySource)
	source.On("FetchLegacyInvoices", mock.Anything).
		Return([]billing.RawInvoiceRecord{legacy}, nil)

	store := newFakeStore()
	svc := NewImportService(source, store, zap.NewNop())

	first, err := svc.SyncLegacyInvoices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Imported)

	second, err := svc.SyncLegacyInvoices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Imported)
	assert.Zero(t, second.Failed)

	stored, err := store.FindByFilter(context.Background(), billing.InvoiceFilter{})
	require.NoError(t, err)
	require.Len(t, stored, 1)

	// The second run updated the row the first run created: same derived
	// id, same generated number, no fresh insert
	today := time.Now().UTC().Format("20060102")
	assert.Equal(t, "INV-"+today+"-00001", stored[0].InvoiceNumber)
	assert.Equal(t, legacyInvoiceID("1042"), stored[0].ID)
}

func TestSyncLegacyInvoicesUpdatesNumberedRecordsInPlace(t *testing.T) {
	numbered := validRawInvoice()
	numbered.InvoiceNumber = "INV-20240101-00042"

	source := new(mockLegacySource)
	source.On("FetchLegacyInvoices", mock.Anything).
		Return([]billing.RawInvoiceRecord{numbered}, nil)

	store := newFakeStore()
	svc := NewImportService(source, store, zap.NewNop())

	for i := 0; i < 2; i++ {
		result, err := svc.SyncLegacyInvoices(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, result.Imported, "run %d", i+1)
		assert.Zero(t, result.Failed, "run %d", i+1)
	}

	stored, err := store.FindByFilter(context.Background(), billing.InvoiceFilter{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "INV-20240101-00042", stored[0].InvoiceNumber)
}

func TestSyncLegacyInvoicesFetchFailureAborts(t *testing.T) {
	source := new(mockLegacySource)
	source.On("FetchLegacyInvoices", mock.Anything).
		Return(nil, shared.ErrPersistenceUnavailable)

	repo := new(mockInvoiceRepository)
	svc := NewImportService(source, repo, zap.NewNop())

	_, err := svc.SyncLegacyInvoices(context.Background())
	assert.ErrorIs(t, err, shared.ErrPersistenceUnavailable)
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}
