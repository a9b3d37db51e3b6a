// internal/timer/timer.go
package timer

import (
	"context"
	"math"
	"sync"
	"time"
)

// Counter is the 32-bit free-running hardware tick register.
type Counter interface {
	TimingCount() uint32
}

// Timer extends a wrapping 32-bit hardware counter into a 64-bit count.
//
// Now must be called at least once per wrap period (2^32 / sample rate).
// Two wraps between consecutive calls look like one and the extended count
// is wrong from then on. Nothing here can detect that.
type Timer struct {
	mu       sync.Mutex
	hw       Counter
	rollover uint32
	prev     uint32
}

func New(hw Counter) *Timer {
	return &Timer{hw: hw}
}

// Now returns (rollovers << 32) | hardware count.
// Safe for concurrent use; callers are linearized by one lock.
func (t *Timer) Now() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := t.hw.TimingCount()
	if count < t.prev {
		t.rollover++
	}
	t.prev = count

	return uint64(t.rollover)<<32 | uint64(count)
}

// Rollovers returns how many wraps have been observed so far.
func (t *Timer) Rollovers() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rollover
}

// Keep calls Now every interval until ctx is done.
// It exists to satisfy the wrap-period precondition when no other caller does.
func (t *Timer) Keep(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Now()
		}
	}
}

// WrapPeriod is how long the 32-bit counter takes to wrap at sampleRateHz.
func WrapPeriod(sampleRateHz float64) time.Duration {
	if sampleRateHz <= 0 {
		return 0
	}
	return time.Duration(math.Exp2(32) / sampleRateHz * float64(time.Second))
}

// Seconds converts an extended count into seconds since counter zero.
func Seconds(count uint64, sampleRateHz float64) float64 {
	if sampleRateHz <= 0 {
		return 0
	}
	return float64(count) / sampleRateHz
}
