// internal/poller/poller.go
package poller

import (
	"errors"
	"time"

	"github.com/tamzrod/nap-bridge/internal/metrics"
)

// Source is the remote register block. nap.Mirror implements it.
type Source interface {
	Refresh() (uint32, error)
}

// Line is the interrupt line the poller raises. bridge.Bridge implements it.
type Line interface {
	Interrupt()
}

// Config is the minimal runtime config the poller needs.
type Config struct {
	Interval time.Duration
}

// Poller is a dumb, clock-driven reader. It stands in for the interrupt
// line when the NAP is reached over a remote transport.
type Poller struct {
	cfg  Config
	src  Source
	line Line
	m    *metrics.Metrics
}

// New creates a poller with immutable config.
func New(cfg Config, src Source, line Line, m *metrics.Metrics) (*Poller, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if src == nil {
		return nil, errors.New("poller: source required")
	}
	if line == nil {
		return nil, errors.New("poller: interrupt line required")
	}
	if m == nil {
		return nil, errors.New("poller: metrics required")
	}
	return &Poller{cfg: cfg, src: src, line: line, m: m}, nil
}

// PollOnce performs exactly one poll cycle: refresh the block and raise
// the line when any channel is pending.
func (p *Poller) PollOnce() PollResult {
	res := PollResult{At: time.Now()}

	pending, err := p.src.Refresh()
	if err != nil {
		p.m.PollErrors.Inc()
		res.Err = err
		return res
	}

	res.Pending = pending
	if pending != 0 {
		p.line.Interrupt()
	}
	return res
}
