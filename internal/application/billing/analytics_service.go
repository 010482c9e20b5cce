package billing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vetpms/backend/internal/domain/billing"
	"github.com/vetpms/backend/internal/infrastructure/cache"
)

// AnalyticsService computes billing analytics over the invoice set,
// caching results per query range. The cache is advisory: any cache
// failure degrades to recomputation, never to an error.
type AnalyticsService struct {
	invoiceRepo billing.InvoiceRepository
	cache       cache.AnalyticsCache
	ttl         time.Duration
	logger      *zap.Logger
}

// NewAnalyticsService creates a new AnalyticsService
func NewAnalyticsService(invoiceRepo billing.InvoiceRepository, analyticsCache cache.AnalyticsCache,
	ttl time.Duration, logger *zap.Logger) *AnalyticsService {
	return &AnalyticsService{
		invoiceRepo: invoiceRepo,
		cache:       analyticsCache,
		ttl:         ttl,
		logger:      logger,
	}
}

// GetAnalytics returns the billing analytics for invoices whose issue date
// falls in the optional range
func (s *AnalyticsService) GetAnalytics(ctx context.Context, startDate, endDate *time.Time) (billing.Analytics, error) {
	key := rangeKey(startDate, endDate)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, key); ok {
			return *cached, nil
		}
	}

	invoices, err := s.invoiceRepo.FindByFilter(ctx, billing.InvoiceFilter{
		StartDate: startDate,
		EndDate:   endDate,
	})
	if err != nil {
		return billing.Analytics{}, err
	}

	analytics := billing.Aggregate(invoices, time.Now())

	if s.cache != nil {
		s.cache.Set(ctx, key, analytics, s.ttl)
	}

	s.logger.Debug("analytics computed",
		zap.String("range", key),
		zap.Int("invoices", analytics.TotalInvoices))
	return analytics, nil
}

// rangeKey derives a stable cache key from the query range
func rangeKey(startDate, endDate *time.Time) string {
	const layout = "2006-01-02"
	start, end := "", ""
	if startDate != nil {
		start = startDate.UTC().Format(layout)
	}
	if endDate != nil {
		end = endDate.UTC().Format(layout)
	}
	if start == "" && end == "" {
		return "all"
	}
	return start + ".." + end
}
