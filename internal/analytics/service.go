package analytics

import (
	"context"
	"time"

	"billdesk/internal/caching"
	"billdesk/internal/common"
	"billdesk/internal/models"
	"billdesk/internal/repositories"

	"github.com/sirupsen/logrus"
)

const statsCacheTTL = 5 * time.Minute

// Periods accepted by the stats endpoint.
var Periods = caching.StatsPeriods

// AnalyticsService calculates and caches bill statistics
type AnalyticsService struct {
	billRepo     repositories.BillRepository
	cacheService caching.CacheService
	now          func() time.Time
}

// NewAnalyticsService creates a new analytics service. cacheService may be nil.
func NewAnalyticsService(billRepo repositories.BillRepository, cacheService caching.CacheService) *AnalyticsService {
	return &AnalyticsService{
		billRepo:     billRepo,
		cacheService: cacheService,
		now:          time.Now,
	}
}

// PeriodStart returns the start of the window ending at now.
func PeriodStart(period string, now time.Time) (time.Time, bool) {
	switch period {
	case "week":
		return now.AddDate(0, 0, -7), true
	case "month":
		return now.AddDate(0, -1, 0), true
	case "year":
		return now.AddDate(-1, 0, 0), true
	}
	return time.Time{}, false
}

// GetBillStats returns cached statistics for period, computing them on a miss.
func (a *AnalyticsService) GetBillStats(ctx context.Context, period string) (*models.BillStats, error) {
	if period == "" {
		period = "month"
	}
	if _, ok := PeriodStart(period, a.now()); !ok {
		return nil, common.NewValidationError("period must be one of week, month, year")
	}

	if a.cacheService != nil {
		cached, err := a.cacheService.GetBillStats(ctx, period)
		if err != nil {
			logrus.WithError(err).Debug("bill stats cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	return a.RefreshBillStats(ctx, period)
}

// RefreshBillStats recomputes statistics for period and stores them in the cache.
func (a *AnalyticsService) RefreshBillStats(ctx context.Context, period string) (*models.BillStats, error) {
	since, ok := PeriodStart(period, a.now())
	if !ok {
		return nil, common.NewValidationError("period must be one of week, month, year")
	}

	stats, err := a.billRepo.Stats(ctx, since)
	if err != nil {
		return nil, common.SecureErrorMessage("calculate bill statistics", err)
	}
	stats.Period = period
	stats.Since = since

	if a.cacheService != nil {
		if err := a.cacheService.SetBillStats(ctx, period, stats, statsCacheTTL); err != nil {
			logrus.WithError(err).Warn("failed to cache bill stats")
		}
	}
	return stats, nil
}

// RefreshAll recomputes every period. Used by the background scheduler.
func (a *AnalyticsService) RefreshAll(ctx context.Context) error {
	for _, period := range Periods {
		stats, err := a.RefreshBillStats(ctx, period)
		if err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"period": period,
			"bills":  stats.TotalBills,
			"total":  stats.TotalAmount.StringFixed(2),
		}).Debug("bill stats refreshed")
	}
	return nil
}
