// internal/nap/sim/surface.go
package sim

import (
	"sync"
	"sync/atomic"

	"github.com/tamzrod/nap-bridge/internal/nap"
)

// Line is the interrupt line the surface asserts (bridge.Bridge.Interrupt).
type Line interface {
	Interrupt()
}

// Surface is an in-memory NAP register block.
// Software-side methods implement nap.Registers; the hardware side
// (Assert, Advance, RaiseError...) is what a test or Hardware drives.
type Surface struct {
	status  atomic.Uint32
	timing  atomic.Uint32
	pending atomic.Uint32
	errs    atomic.Uint32
	hash    atomic.Uint32

	mu      sync.Mutex
	line    Line
	onClear func(mask uint32)
}

var _ nap.Registers = (*Surface)(nil)

// NewSurface returns a surface reporting channels tracking channels.
func NewSurface(channels int) *Surface {
	s := &Surface{}
	s.status.Store(uint32(channels) << nap.StatusTrackingChShift & nap.StatusTrackingChMask)
	return s
}

// Connect attaches the interrupt line.
func (s *Surface) Connect(l Line) {
	s.mu.Lock()
	s.line = l
	s.mu.Unlock()
}

// OnClear installs a hook that runs after every write-back clear.
// Tests use it to set bits between a clear and the following re-read.
func (s *Surface) OnClear(fn func(mask uint32)) {
	s.mu.Lock()
	s.onClear = fn
	s.mu.Unlock()
}

// ---- hardware side ----

// Assert sets channel bits and fires the (edge-triggered) line.
func (s *Surface) Assert(mask uint32) {
	s.setBits(mask)
	s.mu.Lock()
	l := s.line
	s.mu.Unlock()
	if l != nil {
		l.Interrupt()
	}
}

// SetPending sets channel bits without an interrupt edge (a lost edge).
func (s *Surface) SetPending(mask uint32) {
	s.setBits(mask)
}

func (s *Surface) setBits(mask uint32) {
	for {
		old := s.pending.Load()
		if s.pending.CompareAndSwap(old, old|mask) {
			return
		}
	}
}

func (s *Surface) SetTimingCount(v uint32) { s.timing.Store(v) }

// Advance moves the tick counter forward, wrapping at 2^32.
func (s *Surface) Advance(ticks uint32) { s.timing.Add(ticks) }

func (s *Surface) RaiseError(mask uint32) {
	for {
		old := s.errs.Load()
		if s.errs.CompareAndSwap(old, old|mask) {
			return
		}
	}
}

func (s *Surface) SetHashStatus(v uint32) { s.hash.Store(v) }

// ---- nap.Registers ----

func (s *Surface) TimingCount() uint32 { return s.timing.Load() }

func (s *Surface) TrackIRQ() uint32 { return s.pending.Load() }

func (s *Surface) ClearTrackIRQ(mask uint32) {
	for {
		old := s.pending.Load()
		if s.pending.CompareAndSwap(old, old&^mask) {
			break
		}
	}

	s.mu.Lock()
	fn := s.onClear
	s.mu.Unlock()
	if fn != nil {
		fn(mask)
	}
}

func (s *Surface) TrackIRQError() uint32 { return s.errs.Swap(0) }

func (s *Surface) Status() uint32 { return s.status.Load() }

func (s *Surface) HashStatus() uint32 { return s.hash.Load() }
