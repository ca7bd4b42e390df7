package connection

import "time"

// Backoff yields the wait between failed bind attempts: Base every time,
// except every Threshold-th consecutive failure waits Base*Multiplier and
// starts counting again.
type Backoff struct {
	Base       time.Duration
	Threshold  int
	Multiplier int

	failures int
}

func (b *Backoff) Next() time.Duration {
	b.failures++
	if b.Threshold > 0 && b.failures >= b.Threshold {
		b.failures = 0
		return b.Base * time.Duration(b.Multiplier)
	}
	return b.Base
}

func (b *Backoff) Reset() {
	b.failures = 0
}
