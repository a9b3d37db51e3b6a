// internal/bridge/bridge.go
package bridge

import (
	"context"
	"errors"
	"log"
	"math/bits"
	"sync/atomic"
	"time"

	"github.com/tamzrod/nap-bridge/internal/metrics"
	"github.com/tamzrod/nap-bridge/internal/nap"
	"github.com/tamzrod/nap-bridge/internal/watchdog"
)

// DefaultProcessPeriod bounds how long the worker waits for an interrupt.
const DefaultProcessPeriod = 1000 * time.Millisecond

// Tracker is the tracking subsystem as driven by the bridge.
// None of these may block.
type Tracker interface {
	Update(mask uint32)
	MissedUpdateError(mask uint32)
	Process()
}

// Notifier is the liveness notifier.
type Notifier interface {
	Notify(id watchdog.ID)
}

// State is the worker state.
type State int32

const (
	StateWaiting State = iota
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Result describes one worker iteration.
type Result struct {
	At        time.Time
	Woken     bool   // false: process period elapsed
	Reads     int    // non-zero TRK_IRQ reads
	Serviced  uint32 // union of serviced channel masks
	ErrorMask uint32
}

type Config struct {
	ProcessPeriod time.Duration
}

// Bridge hands NAP interrupts off to a worker goroutine.
type Bridge struct {
	cfg     Config
	regs    nap.Registers
	tracker Tracker
	wd      Notifier
	m       *metrics.Metrics

	// binary wake signal: one pending wake at most
	wake chan struct{}

	state   atomic.Int32
	results chan<- Result
}

func New(cfg Config, regs nap.Registers, tracker Tracker, wd Notifier, m *metrics.Metrics) (*Bridge, error) {
	if regs == nil {
		return nil, errors.New("bridge: registers required")
	}
	if tracker == nil {
		return nil, errors.New("bridge: tracker required")
	}
	if wd == nil {
		return nil, errors.New("bridge: notifier required")
	}
	if m == nil {
		return nil, errors.New("bridge: metrics required")
	}
	if cfg.ProcessPeriod <= 0 {
		cfg.ProcessPeriod = DefaultProcessPeriod
	}

	return &Bridge{
		cfg:     cfg,
		regs:    regs,
		tracker: tracker,
		wd:      wd,
		m:       m,
		wake:    make(chan struct{}, 1),
	}, nil
}

// PublishResults makes Run emit one Result per iteration on out.
// Sends never block; a full channel drops the result.
// Must be called before Run.
func (b *Bridge) PublishResults(out chan<- Result) {
	b.results = out
}

// Interrupt is the interrupt handler. It only signals the worker.
// A wake that is already pending absorbs this one.
func (b *Bridge) Interrupt() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// State reports whether the worker is waiting or draining.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// Run is the worker loop. It returns only when ctx is done.
func (b *Bridge) Run(ctx context.Context) {
	timer := time.NewTimer(b.cfg.ProcessPeriod)
	defer timer.Stop()

	for {
		woken := false

		select {
		case <-ctx.Done():
			return
		case <-b.wake:
			woken = true
			if !timer.Stop() {
				<-timer.C
			}
		case <-timer.C:
		}

		res := b.Service(woken)
		timer.Reset(b.cfg.ProcessPeriod)

		if b.results != nil {
			select {
			case b.results <- res:
			default:
			}
		}
	}
}

// Service runs one draining pass: drain, errors, watchdog, process.
func (b *Bridge) Service(woken bool) Result {
	b.state.Store(int32(StateDraining))
	defer b.state.Store(int32(StateWaiting))

	if woken {
		b.m.Wakeups.WithLabelValues(metrics.WakeInterrupt).Inc()
	} else {
		b.m.Wakeups.WithLabelValues(metrics.WakeTimeout).Inc()
	}

	res := Result{At: time.Now(), Woken: woken}

	b.drain(&res)

	if errMask := b.regs.TrackIRQError(); errMask != 0 {
		log.Printf("bridge: NAP error: 0x%08X", errMask)
		b.m.HardwareErrors.Inc()
		b.tracker.MissedUpdateError(errMask)
		res.ErrorMask = errMask
	}

	b.wd.Notify(watchdog.NAPISR)
	b.m.WatchdogPings.Inc()

	b.tracker.Process()
	b.m.ProcessCalls.Inc()

	return res
}

// drain services TRK_IRQ until a read returns zero. The interrupt is edge
// triggered, so bits set while a mask is being serviced only show up on the
// re-read. ClearTrackIRQ writes back exactly the bits serviced.
func (b *Bridge) drain(res *Result) {
	irq := b.regs.TrackIRQ()

	for irq != 0 {
		b.tracker.Update(irq)
		b.regs.ClearTrackIRQ(irq)

		res.Reads++
		res.Serviced |= irq
		b.m.DrainReads.Inc()
		b.m.ChannelUpdates.Add(float64(bits.OnesCount32(irq)))

		// Registers implementations order the clear before this load
		// (atomics / lock), which stands in for the store barrier.
		irq = b.regs.TrackIRQ()
	}
}
