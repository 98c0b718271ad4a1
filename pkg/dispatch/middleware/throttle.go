package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"meridian-hq/vesta/pkg/dispatch"
)

// ThrottleError is returned when the token bucket rejects a request.
type ThrottleError struct {
	Rate float64
}

func (e *ThrottleError) Error() string {
	return "request rate limit exceeded"
}

// StatusCode returns 429.
func (e *ThrottleError) StatusCode() int { return http.StatusTooManyRequests }

// ErrorCode returns the structured code for throttled requests.
func (e *ThrottleError) ErrorCode() string { return "throttled" }

// Throttle is a named-middleware factory enforcing a token-bucket rate
// limit. The parameter suffix is the refill rate in requests per second
// ("throttle:25"); the burst capacity equals the rate. A missing or
// malformed rate falls back to 100 rps.
//
// Register it once and reference it per route:
//
//	d.RegisterNamed("throttle", middleware.Throttle())
//	table.Add(&dispatch.Route{..., Middleware: []string{"throttle:25"}})
//
// Each resolved parameterization shares one bucket per composition, so a
// route's limit applies across all its requests.
func Throttle() dispatch.NamedFactory {
	var mu sync.Mutex
	buckets := make(map[string]*tokenBucket)

	return func(arg string) dispatch.Middleware {
		rate, err := strconv.ParseFloat(arg, 64)
		if err != nil || rate <= 0 {
			rate = 100
		}

		mu.Lock()
		bucket, ok := buckets[arg]
		if !ok {
			bucket = newTokenBucket(int64(rate), rate)
			buckets[arg] = bucket
		}
		mu.Unlock()

		return func(c *dispatch.Context, next dispatch.Next) error {
			if !bucket.take(1) {
				return &ThrottleError{Rate: rate}
			}
			return next()
		}
	}
}

// tokenBucket implements the token bucket algorithm: tokens refill at a
// constant rate up to the capacity, each request consumes one, and an
// empty bucket rejects. Monotonic time avoids clock-skew issues.
type tokenBucket struct {
	capacity   int64
	tokens     float64
	refillRate float64
	lastRefill time.Time
	mu         sync.Mutex
}

func newTokenBucket(capacity int64, refillRate float64) *tokenBucket {
	return &tokenBucket{
		capacity:   capacity,
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// take attempts to consume n tokens, refilling for elapsed time first.
func (tb *tokenBucket) take(n int64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.lastRefill = now
	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > float64(tb.capacity) {
		tb.tokens = float64(tb.capacity)
	}

	if tb.tokens >= float64(n) {
		tb.tokens -= float64(n)
		return true
	}
	return false
}
