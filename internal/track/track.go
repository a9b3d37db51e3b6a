// internal/track/track.go
package track

import (
	"errors"
	"log"
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/tamzrod/nap-bridge/internal/nap"
)

// WeekMs is one GPS week in milliseconds.
const WeekMs int32 = 604800000

// DefaultDropAfter is how many Process calls a running channel may go
// without an update before it is disabled.
const DefaultDropAfter = 10

type State int

const (
	StateDisabled State = iota
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Record is a consistent copy of a channel's public fields.
type Record struct {
	Index         int
	PRN           uint8 // 1-based
	State         State
	TOWms         int32 // -1: unknown
	SubframeReady bool
	Updates       uint64
	Misses        uint64
}

// Channel is one tracking channel. The nav buffer is written by the
// tracking path and consumed by the navigation supervisor; mu guards both.
type Channel struct {
	index int

	mu          sync.Mutex
	state       State
	prn         uint8
	towMs       int32
	nav         NavMsg
	sinceUpdate int
	updates     uint64
	misses      uint64
}

func newChannel(index int) *Channel {
	return &Channel{
		index: index,
		towMs: -1,
		nav:   newNavMsg(),
	}
}

// Snapshot returns the channel record.
func (c *Channel) Snapshot() Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recordLocked()
}

func (c *Channel) recordLocked() Record {
	return Record{
		Index:         c.index,
		PRN:           c.prn,
		State:         c.state,
		TOWms:         c.towMs,
		SubframeReady: c.nav.SubframeReady(),
		Updates:       c.updates,
		Misses:        c.misses,
	}
}

// TakeSubframe hands a completed subframe to the caller. It returns false
// unless the channel is running with a subframe pending. The subframe is a
// copy: the caller decodes it without holding the channel lock.
func (c *Channel) TakeSubframe() (Record, []bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := c.recordLocked()
	if c.state != StateRunning || !c.nav.SubframeReady() {
		return rec, nil, false
	}

	sf, ok := c.nav.Take()
	if tow, ok := c.nav.popTOW(); ok {
		c.towMs = tow
	}
	rec.SubframeReady = false
	return rec, sf, ok
}

func (c *Channel) start(prn uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateRunning
	c.prn = prn
	c.towMs = -1
	c.nav.Reset()
	c.sinceUpdate = 0
}

func (c *Channel) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateDisabled
	c.towMs = -1
	c.nav.Reset()
}

func (c *Channel) update(corr nap.Correlation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return
	}

	c.updates++
	c.sinceUpdate = 0

	if c.towMs >= 0 {
		c.towMs = (c.towMs + corr.ElapsedMs) % WeekMs
	}

	c.nav.Append(corr.NavBit)
	if tow, ok := c.nav.popTOW(); ok {
		c.towMs = tow
	}
}

func (c *Channel) missed() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.misses++
	c.nav.Reset()
}

// process returns true when the channel has just been dropped.
func (c *Channel) process(dropAfter int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return false
	}
	c.sinceUpdate++
	if dropAfter > 0 && c.sinceUpdate > dropAfter {
		c.state = StateDisabled
		c.towMs = -1
		c.nav.Reset()
		return true
	}
	return false
}

// ---- Manager ----

type Config struct {
	Channels  int
	DropAfter int
}

// Manager owns the channel records and implements bridge.Tracker.
type Manager struct {
	cfg      Config
	corr     nap.Correlator
	channels []*Channel

	updates atomic.Uint64
	misses  atomic.Uint64
}

func NewManager(cfg Config, corr nap.Correlator) (*Manager, error) {
	if corr == nil {
		return nil, errors.New("track: correlator required")
	}
	if cfg.Channels <= 0 || cfg.Channels > nap.MaxTrackChannels {
		return nil, errors.New("track: channel count out of range")
	}
	if cfg.DropAfter == 0 {
		cfg.DropAfter = DefaultDropAfter
	}

	m := &Manager{
		cfg:      cfg,
		corr:     corr,
		channels: make([]*Channel, cfg.Channels),
	}
	for i := range m.channels {
		m.channels[i] = newChannel(i)
	}
	return m, nil
}

// Count is the number of channels.
func (m *Manager) Count() int {
	return len(m.channels)
}

func (m *Manager) Channel(i int) *Channel {
	if i < 0 || i >= len(m.channels) {
		return nil
	}
	return m.channels[i]
}

// Start assigns prn to channel i and starts it.
func (m *Manager) Start(i int, prn uint8) error {
	ch := m.Channel(i)
	if ch == nil {
		return errors.New("track: no such channel")
	}
	if prn == 0 {
		return errors.New("track: PRN is 1-based")
	}
	ch.start(prn)
	log.Printf("track: channel %d: PRN %d", i, prn)
	return nil
}

// Stop disables channel i.
func (m *Manager) Stop(i int) {
	if ch := m.Channel(i); ch != nil {
		ch.stop()
	}
}

// TakeSubframe is Channel(i).TakeSubframe for callers that only know indices.
func (m *Manager) TakeSubframe(i int) (Record, []bool, bool) {
	ch := m.Channel(i)
	if ch == nil {
		return Record{}, nil, false
	}
	return ch.TakeSubframe()
}

// Update runs one correlation per channel bit in mask.
func (m *Manager) Update(mask uint32) {
	for mask != 0 {
		i := bits.TrailingZeros32(mask)
		mask &^= 1 << i

		if i >= len(m.channels) {
			continue
		}
		m.channels[i].update(m.corr.Correlate(i))
		m.updates.Add(1)
	}
}

// MissedUpdateError drops nav bit continuity on the channels in mask.
func (m *Manager) MissedUpdateError(mask uint32) {
	for mask != 0 {
		i := bits.TrailingZeros32(mask)
		mask &^= 1 << i

		if i >= len(m.channels) {
			continue
		}
		m.channels[i].missed()
		m.misses.Add(1)
	}
}

// Process is the periodic bookkeeping pass.
func (m *Manager) Process() {
	for i, ch := range m.channels {
		if ch.process(m.cfg.DropAfter) {
			log.Printf("track: channel %d dropped: no updates", i)
		}
	}
}

// Running counts channels in StateRunning.
func (m *Manager) Running() int {
	n := 0
	for _, ch := range m.channels {
		if ch.Snapshot().State == StateRunning {
			n++
		}
	}
	return n
}

// Stats returns total updates and misses.
func (m *Manager) Stats() (updates, misses uint64) {
	return m.updates.Load(), m.misses.Load()
}
