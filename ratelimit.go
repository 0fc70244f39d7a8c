package winevt

import (
	"strconv"
	"sync"

	"github.com/juju/clock"
)

// RateInfinite disables rate limiting.
const RateInfinite = -1

// RateLimiter caps the number of records delivered per wall-clock second.
type RateLimiter struct {
	clock   clock.Clock
	ceiling int

	mu        sync.Mutex
	window    int64
	delivered int
}

// NewRateLimiter returns a limiter for ceiling records per second. The
// ceiling must be RateInfinite or a positive multiple of 10.
func NewRateLimiter(ceiling int, clk clock.Clock) (*RateLimiter, error) {
	if err := ValidateRateLimit(ceiling); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &RateLimiter{clock: clk, ceiling: ceiling}, nil
}

// ValidateRateLimit reports a *ConfigurationError for unusable ceilings.
func ValidateRateLimit(ceiling int) error {
	if ceiling == RateInfinite {
		return nil
	}
	if ceiling <= 0 || ceiling%10 != 0 {
		return &ConfigurationError{
			Field:  "rate limit",
			Value:  strconv.Itoa(ceiling),
			Reason: "must be a positive multiple of 10 or RateInfinite",
		}
	}
	return nil
}

func (l *RateLimiter) Ceiling() int { return l.ceiling }

// Allow reports whether a fetch may go ahead. A new second resets the
// delivered count.
func (l *RateLimiter) Allow() bool {
	if l.ceiling == RateInfinite {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now().Unix()
	if now != l.window {
		l.window = now
		l.delivered = 0
		return true
	}
	return l.delivered < l.ceiling
}

// Consume records n delivered records in the current window.
func (l *RateLimiter) Consume(n int) {
	if l.ceiling == RateInfinite {
		return
	}
	l.mu.Lock()
	l.delivered += n
	l.mu.Unlock()
}
