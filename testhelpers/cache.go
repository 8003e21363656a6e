package testhelpers

import (
	"context"
	"sync"
	"time"

	"billdesk/internal/caching"
	"billdesk/internal/models"

	"github.com/google/uuid"
)

var _ caching.CacheService = (*MemoryCache)(nil)

// MemoryCache implements caching.CacheService without expiry. Rate limit
// windows never reset.
type MemoryCache struct {
	mu    sync.Mutex
	bills map[uuid.UUID]models.Bill
	stats map[string]models.BillStats
	hits  map[string]int

	// RateLimitErr, when set, is returned by IsRateLimited.
	RateLimitErr error
	Deletes      int
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		bills: map[uuid.UUID]models.Bill{},
		stats: map[string]models.BillStats{},
		hits:  map[string]int{},
	}
}

func (c *MemoryCache) GetBill(ctx context.Context, billID uuid.UUID) (*models.Bill, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.bills[billID]
	if !ok {
		return nil, nil
	}
	b.Items = append([]models.LineItem(nil), b.Items...)
	return &b, nil
}

func (c *MemoryCache) SetBill(ctx context.Context, bill *models.Bill, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *bill
	cp.Items = append([]models.LineItem(nil), bill.Items...)
	c.bills[bill.ID] = cp
	return nil
}

func (c *MemoryCache) DeleteBill(ctx context.Context, billID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.bills, billID)
	c.Deletes++
	return nil
}

func (c *MemoryCache) HasBill(billID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.bills[billID]
	return ok
}

func (c *MemoryCache) GetBillStats(ctx context.Context, period string) (*models.BillStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stats[period]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (c *MemoryCache) SetBillStats(ctx context.Context, period string, stats *models.BillStats, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats[period] = *stats
	return nil
}

func (c *MemoryCache) InvalidateBillStats(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = map[string]models.BillStats{}
	return nil
}

func (c *MemoryCache) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.RateLimitErr != nil {
		return true, c.RateLimitErr
	}
	c.hits[key]++
	return c.hits[key] > limit, nil
}

func (c *MemoryCache) Ping(ctx context.Context) error {
	return nil
}
