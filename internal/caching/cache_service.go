package caching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"billdesk/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "billdesk"

// StatsPeriods are the periods bill statistics are cached for.
var StatsPeriods = []string{"week", "month", "year"}

type CacheService interface {
	// Bill caching
	GetBill(ctx context.Context, billID uuid.UUID) (*models.Bill, error)
	SetBill(ctx context.Context, bill *models.Bill, ttl time.Duration) error
	DeleteBill(ctx context.Context, billID uuid.UUID) error

	// Stats caching
	GetBillStats(ctx context.Context, period string) (*models.BillStats, error)
	SetBillStats(ctx context.Context, period string, stats *models.BillStats, ttl time.Duration) error
	InvalidateBillStats(ctx context.Context) error

	// Rate limiting
	IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	Ping(ctx context.Context) error
}

type redisCacheService struct {
	client *redis.Client
}

func NewRedisCacheService(addr, password string, db int) CacheService {
	// Accept redis://host:port as well as host:port.
	parsedAddr := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://")

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		logrus.WithError(pingErr).WithField("addr", parsedAddr).Warn("redis ping failed on initialization")
	} else {
		logrus.WithField("addr", parsedAddr).Debug("redis connection established")
	}

	return &redisCacheService{client: client}
}

func billKey(billID uuid.UUID) string {
	return fmt.Sprintf("%s:bill:%s", keyPrefix, billID.String())
}

func statsKey(period string) string {
	return fmt.Sprintf("%s:stats:%s", keyPrefix, period)
}

func rateLimitKey(key string) string {
	return fmt.Sprintf("%s:ratelimit:%s", keyPrefix, key)
}

func (r *redisCacheService) getJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil // cache miss
		}
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (r *redisCacheService) setJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, ttl).Err()
}

func (r *redisCacheService) GetBill(ctx context.Context, billID uuid.UUID) (*models.Bill, error) {
	var bill models.Bill
	hit, err := r.getJSON(ctx, billKey(billID), &bill)
	if err != nil || !hit {
		return nil, err
	}
	return &bill, nil
}

func (r *redisCacheService) SetBill(ctx context.Context, bill *models.Bill, ttl time.Duration) error {
	return r.setJSON(ctx, billKey(bill.ID), bill, ttl)
}

func (r *redisCacheService) DeleteBill(ctx context.Context, billID uuid.UUID) error {
	return r.client.Del(ctx, billKey(billID)).Err()
}

func (r *redisCacheService) GetBillStats(ctx context.Context, period string) (*models.BillStats, error) {
	var stats models.BillStats
	hit, err := r.getJSON(ctx, statsKey(period), &stats)
	if err != nil || !hit {
		return nil, err
	}
	return &stats, nil
}

func (r *redisCacheService) SetBillStats(ctx context.Context, period string, stats *models.BillStats, ttl time.Duration) error {
	return r.setJSON(ctx, statsKey(period), stats, ttl)
}

func (r *redisCacheService) InvalidateBillStats(ctx context.Context) error {
	keys := make([]string, len(StatsPeriods))
	for i, period := range StatsPeriods {
		keys[i] = statsKey(period)
	}
	return r.client.Del(ctx, keys...).Err()
}

// IsRateLimited counts one hit against key and reports whether the
// window's limit is exceeded. A counter left without an expiry is given
// one, so a failed EXPIRE cannot block the key forever.
func (r *redisCacheService) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	cacheKey := rateLimitKey(key)

	var count *redis.IntCmd
	var ttl *redis.DurationCmd
	if _, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.Incr(ctx, cacheKey)
		ttl = pipe.TTL(ctx, cacheKey)
		return nil
	}); err != nil {
		return true, err
	}

	if ttl.Val() < 0 {
		if err := r.client.Expire(ctx, cacheKey, window).Err(); err != nil {
			return true, fmt.Errorf("set rate limit window: %w", err)
		}
	}

	return count.Val() > int64(limit), nil
}

func (r *redisCacheService) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
