package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/meridian/internal/config"
)

const (
	keyCheckoutClient = "checkout:discount:%s"
	keyBulkExecute    = "bulk:credit:execute:%s"
)

// Limiter guards the hot loyalty surfaces: a per-client token bucket on the
// checkout discount endpoint and a single-runner lock per bulk credit
// operation. A nil Limiter (rate limiting disabled) allows everything.
type Limiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	checkoutRate  float64
	checkoutBurst int
	bulkLockTTL   time.Duration
}

func NewLimiter(cfg config.Config) (*Limiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.CheckoutRate <= 0 || limitCfg.CheckoutBurst <= 0 {
		return nil, errors.New("checkout rate limit must be positive")
	}
	if limitCfg.BulkExecuteLockTTLSeconds <= 0 {
		return nil, errors.New("bulk execute lock ttl must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &Limiter{
		enabled:       true,
		bucket:        NewTokenBucket(client),
		locker:        NewLocker(client),
		checkoutRate:  limitCfg.CheckoutRate,
		checkoutBurst: limitCfg.CheckoutBurst,
		bulkLockTTL:   time.Duration(limitCfg.BulkExecuteLockTTLSeconds) * time.Second,
	}, nil
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowCheckout rate-limits one storefront client, keyed by whatever stable
// identity the caller has (shop domain or client IP).
func (l *Limiter) AllowCheckout(ctx context.Context, clientKey string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyCheckoutClient, strings.TrimSpace(clientKey))
	return l.bucket.Allow(ctx, key, l.checkoutRate, l.checkoutBurst)
}

// TryLockOperation claims the single-runner lock for one bulk operation.
func (l *Limiter) TryLockOperation(ctx context.Context, operationID string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, fmt.Sprintf(keyBulkExecute, strings.TrimSpace(operationID)), l.bulkLockTTL)
}

func (l *Limiter) ReleaseOperation(ctx context.Context, operationID, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, fmt.Sprintf(keyBulkExecute, strings.TrimSpace(operationID)), token)
}
