// Package backoff implements the capped exponential backoff shapes used
// by both the broker client (§4.A, min(2^n, 30s)) and the internal LLM
// provider (§4.F, 2^attempt seconds ±10% jitter).
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Capped returns 2^attempt seconds, capped at max.
func Capped(attempt int, max time.Duration) time.Duration {
	secs := math.Pow(2, float64(attempt))
	d := time.Duration(secs * float64(time.Second))
	if d > max {
		return max
	}
	return d
}

// Jitter applies +/-10% jitter to d.
func Jitter(d time.Duration) time.Duration {
	delta := float64(d) * 0.1
	return d + time.Duration((rand.Float64()*2-1)*delta)
}
