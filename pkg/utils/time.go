package utils

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"math"
	"time"
)

// Jitter applies symmetric random jitter to a duration: d * (1 +/- factor*r).
func Jitter(d time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return d
	}
	if factor > 1 {
		factor = 1
	}
	f := 1.0 + (secureRandomFloat64()*2-1)*factor
	return time.Duration(float64(d) * f)
}

// UniformDelay returns a random duration in [min, max).
func UniformDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(secureRandomFloat64()*float64(max-min))
}

// SleepWithContext sleeps for duration or until context is canceled
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// secureRandomFloat64 generates a cryptographically secure random float in [0,1)
func secureRandomFloat64() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return float64(time.Now().UnixNano()%1000) / 1000.0
	}
	n := binary.BigEndian.Uint64(buf[:])
	return float64(n) / float64(math.MaxUint64)
}
