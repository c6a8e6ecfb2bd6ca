package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultVerificationKeyPrefix = "facepay:verify_failures"

var verificationCheckScript = redis.NewScript(`
local failures = tonumber(redis.call("GET", KEYS[1]) or "0")
local ttl = redis.call("PTTL", KEYS[1])
return {failures, ttl}
`)

var verificationFailureScript = redis.NewScript(`
local failures = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if failures == 1 or ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {failures, ttl}
`)

// VerificationDecision is the limiter's verdict for one vendor and customer pair.
type VerificationDecision struct {
	Allowed    bool
	Failures   int
	RetryAfter time.Duration
}

// VerificationLimiter counts failed face and PIN checks a vendor runs against a customer.
type VerificationLimiter interface {
	Check(ctx context.Context, vendorID, customerID uuid.UUID) (VerificationDecision, error)
	RecordFailure(ctx context.Context, vendorID, customerID uuid.UUID) (VerificationDecision, error)
	Reset(ctx context.Context, vendorID, customerID uuid.UUID) error
}

// verificationStore is the slice of the Redis client the limiter needs.
type verificationStore interface {
	redis.Scripter
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisVerificationLimiter blocks a vendor/customer pair after maxFailures failed
// verifications until the failure window expires. The window starts at the first failure.
type RedisVerificationLimiter struct {
	client      verificationStore
	prefix      string
	maxFailures int
	window      time.Duration
}

// NewRedisVerificationLimiter builds a limiter whose keys live under prefix.
func NewRedisVerificationLimiter(client redis.UniversalClient, prefix string, maxFailures int, window time.Duration) *RedisVerificationLimiter {
	return newVerificationLimiter(client, prefix, maxFailures, window)
}

func newVerificationLimiter(client verificationStore, prefix string, maxFailures int, window time.Duration) *RedisVerificationLimiter {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = defaultVerificationKeyPrefix
	}
	if window < time.Second {
		window = time.Second
	}
	return &RedisVerificationLimiter{
		client:      client,
		prefix:      trimmedPrefix,
		maxFailures: maxFailures,
		window:      window,
	}
}

func (r *RedisVerificationLimiter) enabled() bool {
	return r != nil && r.client != nil && r.maxFailures > 0
}

func (r *RedisVerificationLimiter) key(vendorID, customerID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, vendorID, customerID)
}

// Check reports whether another verification may run without counting it.
func (r *RedisVerificationLimiter) Check(ctx context.Context, vendorID, customerID uuid.UUID) (VerificationDecision, error) {
	if !r.enabled() {
		return VerificationDecision{Allowed: true}, nil
	}
	return r.run(ctx, verificationCheckScript, vendorID, customerID)
}

// RecordFailure counts one failed verification and returns the resulting decision.
func (r *RedisVerificationLimiter) RecordFailure(ctx context.Context, vendorID, customerID uuid.UUID) (VerificationDecision, error) {
	if !r.enabled() {
		return VerificationDecision{Allowed: true}, nil
	}
	return r.run(ctx, verificationFailureScript, vendorID, customerID, r.window.Milliseconds())
}

// Reset clears the pair's failures after a successful payment.
func (r *RedisVerificationLimiter) Reset(ctx context.Context, vendorID, customerID uuid.UUID) error {
	if !r.enabled() {
		return nil
	}
	return r.client.Del(ctx, r.key(vendorID, customerID)).Err()
}

func (r *RedisVerificationLimiter) run(ctx context.Context, script *redis.Script, vendorID, customerID uuid.UUID, args ...interface{}) (VerificationDecision, error) {
	raw, err := script.Run(ctx, r.client, []string{r.key(vendorID, customerID)}, args...).Result()
	if err != nil {
		return VerificationDecision{}, err
	}
	failures, ttlMs, err := parseLimiterReply(raw)
	if err != nil {
		return VerificationDecision{}, err
	}
	return r.decide(failures, ttlMs), nil
}

func (r *RedisVerificationLimiter) decide(failures, ttlMs int64) VerificationDecision {
	d := VerificationDecision{Failures: int(failures), Allowed: failures < int64(r.maxFailures)}
	if !d.Allowed {
		if ttlMs <= 0 {
			ttlMs = r.window.Milliseconds()
		}
		d.RetryAfter = time.Duration(ttlMs) * time.Millisecond
	}
	return d
}

func parseLimiterReply(raw interface{}) (failures, ttlMs int64, err error) {
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected verification limiter reply: %T", raw)
	}
	if failures, ok = values[0].(int64); !ok {
		return 0, 0, fmt.Errorf("unexpected verification limiter count type: %T", values[0])
	}
	if ttlMs, ok = values[1].(int64); !ok {
		return 0, 0, fmt.Errorf("unexpected verification limiter ttl type: %T", values[1])
	}
	return failures, ttlMs, nil
}
