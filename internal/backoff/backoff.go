// Package backoff computes the wait between webhook delivery attempts.
package backoff

import (
	"math"
	"time"
)

type Policy struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
}

// Default gives an immediate first attempt followed by waits of
// 1m, 5m, 25m, then capped at 1h.
func Default() Policy {
	return Policy{Base: 60 * time.Second, Multiplier: 5, Max: time.Hour}
}

// Delay returns the wait before attempt n+1, where n is the 1-indexed
// attempt that just failed: min(base * multiplier^(n-1), max).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.Base) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.Max > 0 && d > float64(p.Max) {
		return p.Max
	}
	return time.Duration(d)
}
