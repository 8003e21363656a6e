package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"billdesk/internal/common"
	"billdesk/internal/models"
	"billdesk/testhelpers"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var statsNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func seedBills(store *testhelpers.MemoryStore) {
	add := func(daysAgo int, total string, status models.PaymentStatus) {
		created := statsNow.AddDate(0, 0, -daysAgo)
		store.AddBill(&models.Bill{
			ID:            uuid.New(),
			BillNumber:    models.FormatBillNumber(created, daysAgo+1),
			CustomerID:    uuid.New(),
			TotalAmount:   decimal.RequireFromString(total),
			PaymentStatus: status,
			DueDate:       models.DueDateFrom(created),
			CreatedAt:     created,
		})
	}
	add(1, "344", models.PaymentStatusPaid)
	add(3, "100.50", models.PaymentStatusPending)
	add(20, "1000", models.PaymentStatusPaid)
	add(200, "50", models.PaymentStatusCancelled)
	add(400, "75", models.PaymentStatusPaid)
}

func TestPeriodStart(t *testing.T) {
	week, ok := PeriodStart("week", statsNow)
	assert.True(t, ok)
	assert.Equal(t, statsNow.AddDate(0, 0, -7), week)

	month, _ := PeriodStart("month", statsNow)
	assert.Equal(t, time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC), month)

	_, ok = PeriodStart("decade", statsNow)
	assert.False(t, ok)
}

func TestGetBillStats(t *testing.T) {
	store := testhelpers.NewMemoryStore()
	seedBills(store)
	cache := testhelpers.NewMemoryCache()
	svc := NewAnalyticsService(store.Bills(), cache)
	svc.now = func() time.Time { return statsNow }
	ctx := context.Background()

	week, err := svc.GetBillStats(ctx, "week")
	require.NoError(t, err)
	assert.Equal(t, "week", week.Period)
	assert.Equal(t, 2, week.TotalBills)
	assert.True(t, decimal.RequireFromString("444.50").Equal(week.TotalAmount))
	assert.True(t, decimal.NewFromInt(344).Equal(week.PaidAmount))
	assert.True(t, decimal.RequireFromString("100.50").Equal(week.PendingAmount))

	month, err := svc.GetBillStats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "month", month.Period)
	assert.Equal(t, 3, month.TotalBills)

	year, err := svc.GetBillStats(ctx, "year")
	require.NoError(t, err)
	assert.Equal(t, 4, year.TotalBills)
	assert.Equal(t, 1, year.StatusCounts[models.PaymentStatusCancelled])

	_, err = svc.GetBillStats(ctx, "decade")
	assert.True(t, common.IsKind(err, common.KindValidation))
}

func TestGetBillStats_ServesFromCache(t *testing.T) {
	store := testhelpers.NewMemoryStore()
	seedBills(store)
	cache := testhelpers.NewMemoryCache()
	svc := NewAnalyticsService(store.Bills(), cache)
	svc.now = func() time.Time { return statsNow }
	ctx := context.Background()

	first, err := svc.GetBillStats(ctx, "week")
	require.NoError(t, err)

	store.Err = errors.New("database offline")
	cached, err := svc.GetBillStats(ctx, "week")
	require.NoError(t, err)
	assert.Equal(t, first.TotalBills, cached.TotalBills)

	require.NoError(t, cache.InvalidateBillStats(ctx))
	_, err = svc.GetBillStats(ctx, "week")
	assert.True(t, common.IsKind(err, common.KindInternal))
}

func TestRefreshAll(t *testing.T) {
	store := testhelpers.NewMemoryStore()
	seedBills(store)
	cache := testhelpers.NewMemoryCache()
	svc := NewAnalyticsService(store.Bills(), cache)
	svc.now = func() time.Time { return statsNow }
	ctx := context.Background()

	require.NoError(t, svc.RefreshAll(ctx))
	for _, period := range Periods {
		stats, err := cache.GetBillStats(ctx, period)
		require.NoError(t, err)
		require.NotNil(t, stats, period)
		assert.Equal(t, period, stats.Period)
	}

	store.Err = errors.New("database offline")
	assert.Error(t, svc.RefreshAll(ctx))
}

func TestGetBillStats_WithoutCache(t *testing.T) {
	store := testhelpers.NewMemoryStore()
	seedBills(store)
	svc := NewAnalyticsService(store.Bills(), nil)
	svc.now = func() time.Time { return statsNow }

	stats, err := svc.GetBillStats(context.Background(), "year")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1494.50").Equal(stats.TotalAmount))
}
