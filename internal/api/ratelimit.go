/**
 * @description
 * Distributed request rate limiting for the management API, backed by a
 * Redis fixed-window counter so limits hold across replicas. Disabled when
 * no Redis client is configured.
 */
package api

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisRateLimiter implements distributed rate limiting using Redis.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

// NewRedisRateLimiter creates a limiter allowing limit requests per window
// per subject.
func NewRedisRateLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisRateLimiter {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "keygate:rate_limit"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisRateLimiter{
		client: client,
		prefix: trimmedPrefix,
		limit:  limit,
		window: window,
	}
}

// Allow consumes one request slot for the subject. It fails open: a Redis
// error never blocks the request.
func (r *RedisRateLimiter) Allow(ctx context.Context, subject string) (allowed bool, retryAfterSeconds int) {
	if r == nil || r.client == nil || r.limit <= 0 || r.window <= 0 || subject == "" {
		return true, 0
	}

	key := fmt.Sprintf("%s:%s", r.prefix, subject)
	result, err := rateLimitScript.Run(ctx, r.client, []string{key}, r.window.Milliseconds()).Slice()
	if err != nil || len(result) != 2 {
		return true, 0
	}

	count, _ := result[0].(int64)
	ttlMillis, _ := result[1].(int64)
	if count <= int64(r.limit) {
		return true, 0
	}
	return false, int(math.Ceil(float64(ttlMillis) / 1000.0))
}

// Middleware enforces the limit per authenticated user.
func (r *RedisRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		subject, _ := UserFromContext(req.Context())
		allowed, retryAfter := r.Allow(req.Context(), subject)
		if !allowed {
			if retryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			}
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}
