package enrichment

import (
	"math/rand/v2"
	"time"
)

// BaseDelay computes min(maxBackoff, initialBackoff * 2^(attempt-1)),
// saturating rather than overflowing for large attempt counts.
func BaseDelay(attempt int, initialBackoff, maxBackoff time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := initialBackoff
	for i := 0; i < attempt-1; i++ {
		if delay > maxBackoff/2 {
			return maxBackoff
		}
		delay *= 2
	}
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

// Jitter transforms a base backoff delay into the actual sleep
// duration. attempt is the 1-indexed attempt that just failed.
type Jitter interface {
	Jittered(base time.Duration, attempt int) time.Duration
}

// DefaultJitter adds a random offset within [0, base/4], per §4.1.4.
type DefaultJitter struct{}

func (DefaultJitter) Jittered(base time.Duration, attempt int) time.Duration {
	maxOffset := base / 4
	if maxOffset <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(maxOffset) + 1))
	return base + offset
}
