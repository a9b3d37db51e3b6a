// internal/status/publisher.go
package status

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/goburrow/modbus"

	"github.com/tamzrod/nap-bridge/internal/watchdog"
)

// Writer delivers a snapshot. internal/writer implements it.
type Writer interface {
	WriteStatus(s Snapshot) error
}

// Source tells which part of the receiver produced an Event.
type Source int

const (
	SourcePoll Source = iota
	SourceBridge
	SourceWatchdog
)

// Event is one observation fed to the publisher.
type Event struct {
	Source    Source
	Err       error  // SourcePoll: transport failure, nil on success
	ErrorMask uint32 // SourceBridge: TRK_IRQ_ERROR, 0 when clean

	// SourceWatchdog: the id that went overdue, or checked in again
	// when Recovered is set
	ID        watchdog.ID
	Recovered bool
}

// Gauges reports the counters copied into the block on every tick.
type Gauges interface {
	Running() int
	ValidCount() int
}

// Publisher owns the status snapshot. Health is derived from the last
// event of each source: a transport or hardware error wins over a missed
// liveness deadline, which wins over OK. Staleness is kept per watchdog id;
// a bridge result proves only the bridge worker alive.
type Publisher struct {
	w      Writer
	gauges Gauges

	pollCode uint16
	hwError  bool
	stale    map[watchdog.ID]bool
	seen     bool

	snap Snapshot
}

func NewPublisher(w Writer, g Gauges) (*Publisher, error) {
	if w == nil {
		return nil, errors.New("status: writer required")
	}
	return &Publisher{
		w:      w,
		gauges: g,
		stale:  make(map[watchdog.ID]bool),
		snap:   Snapshot{Health: HealthUnknown},
	}, nil
}

// Snapshot returns the current snapshot.
func (p *Publisher) Snapshot() Snapshot {
	return p.snap
}

// Observe applies ev and writes the snapshot if anything changed.
func (p *Publisher) Observe(ev Event) {
	p.seen = true

	switch ev.Source {
	case SourcePoll:
		p.pollCode = ErrorCode(ev.Err)
	case SourceBridge:
		// the worker ran, so it is alive again
		delete(p.stale, watchdog.NAPISR)
		p.hwError = ev.ErrorMask != 0
		if ev.ErrorMask != 0 {
			p.snap.LastErrorMask = ev.ErrorMask
		}
	case SourceWatchdog:
		if ev.Recovered {
			delete(p.stale, ev.ID)
		} else {
			p.stale[ev.ID] = true
		}
	}

	next := p.snap
	next.Health, next.LastErrorCode = p.derive()
	if next.Health == HealthOK {
		// Reset seconds-in-error on recovery.
		next.SecondsInError = 0
	}

	p.commit(next)
}

func (p *Publisher) derive() (health, code uint16) {
	switch {
	case !p.seen:
		return HealthUnknown, 0
	case p.pollCode != 0:
		return HealthError, p.pollCode
	case p.hwError:
		return HealthError, CodeMissedUpdate
	case len(p.stale) > 0:
		return HealthStale, CodeOverdue
	default:
		return HealthOK, 0
	}
}

// Tick is the 1 Hz step: seconds_in_error counts up while not OK
// (saturating) and the gauges are refreshed.
func (p *Publisher) Tick() {
	next := p.snap

	if next.Health != HealthOK && next.SecondsInError < 65535 {
		next.SecondsInError++
	}
	if p.gauges != nil {
		next.Channels = clamp16(p.gauges.Running())
		next.Ephemerides = clamp16(p.gauges.ValidCount())
	}

	p.commit(next)
}

func (p *Publisher) commit(next Snapshot) {
	if next == p.snap {
		return
	}
	p.snap = next
	if err := p.w.WriteStatus(next); err != nil {
		log.Printf("status write failed: %v", err)
	}
}

// Run writes the boot snapshot, then applies events and ticks once a
// second until ctx is done.
func (p *Publisher) Run(ctx context.Context, events <-chan Event) {
	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()

	// Full block write on start (identity re-assert).
	if err := p.w.WriteStatus(p.snap); err != nil {
		log.Printf("status write failed on start: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			p.Observe(ev)
		case <-secTicker.C:
			p.Tick()
		}
	}
}

// ErrorCode extracts a best-effort uint16 code from an error without
// assuming concrete types. Modbus exceptions map to their exception code.
// If the error does not expose a code, returns CodeGeneric.
func ErrorCode(err error) uint16 {
	if err == nil {
		return 0
	}

	var me *modbus.ModbusError
	if errors.As(err, &me) {
		return uint16(me.ExceptionCode)
	}

	type coderA interface{ Code() uint16 }
	type coderB interface{ ErrorCode() uint16 }

	var a coderA
	if errors.As(err, &a) {
		return a.Code()
	}
	var b coderB
	if errors.As(err, &b) {
		return b.ErrorCode()
	}

	return CodeGeneric
}

func clamp16(n int) uint16 {
	if n < 0 {
		return 0
	}
	if n > 65535 {
		return 65535
	}
	return uint16(n)
}
