package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayStaysWithinCeiling(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: 30 * time.Second}

	for attempt := 0; attempt < 40; attempt++ {
		ceiling := 30 * time.Second
		if attempt < 5 {
			ceiling = time.Second << attempt
		}
		for i := 0; i < 50; i++ {
			d := b.Delay(attempt)
			assert.GreaterOrEqual(t, d, time.Duration(0))
			assert.LessOrEqual(t, d, ceiling, "attempt %d", attempt)
		}
	}
}

func TestBackoffZeroCap(t *testing.T) {
	assert.Zero(t, Backoff{}.Delay(3))
}
