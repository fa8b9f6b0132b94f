package session

import (
	"math/rand/v2"
	"time"
)

// Backoff computes exponential delays with full jitter: a uniform draw from
// [0, min(Cap, Base*2^attempt)].
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

func (b Backoff) Delay(attempt int) time.Duration {
	ceiling := b.Cap
	if attempt < 32 {
		if d := b.Base << attempt; d > 0 && d < ceiling {
			ceiling = d
		}
	}
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(ceiling) + 1))
}
