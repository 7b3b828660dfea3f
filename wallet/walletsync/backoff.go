package walletsync

import (
	"time"

	"github.com/sethgrid/pester"
)

// backoff is the reconnect delay policy. The strategy gives the growth curve
// in seconds for attempt n, which is then scaled to min and capped at max.
// When disabled every delay is zero.
type backoff struct {
	enabled  bool
	min      time.Duration
	max      time.Duration
	strategy pester.BackoffStrategy
	attempt  int
}

func newBackoff(enabled bool, min, max time.Duration) backoff {
	return backoff{
		enabled:  enabled,
		min:      min,
		max:      max,
		strategy: pester.ExponentialBackoff,
	}
}

func (b *backoff) next() time.Duration {
	if !b.enabled {
		return 0
	}
	factor := b.strategy(b.attempt) / time.Second
	if factor < 1 {
		factor = 1
	}
	if factor > b.max/b.min {
		return b.max
	}
	b.attempt++
	d := b.min * factor
	if d > b.max {
		d = b.max
	}
	return d
}

func (b *backoff) reset() {
	b.attempt = 0
}
