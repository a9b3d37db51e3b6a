// internal/nap/mirror.go
package nap

import (
	"errors"
	"log"
	"sync"
)

// RegisterClient is the transport the mirror needs.
// internal/modbus.EndpointClient satisfies it.
type RegisterClient interface {
	ReadUint32s(addr uint16, n int) ([]uint32, error)
	WriteUint32(addr uint16, v uint32) error
	Close() error
}

// Register block layout, in 16-bit holding registers from the base address.
// Every register is 32 bits wide, high word first.
const (
	OffsetStatus      uint16 = 0
	OffsetTimingCount uint16 = 2
	OffsetTrackIRQ    uint16 = 4
	OffsetTrackIRQErr uint16 = 6
	OffsetHashStatus  uint16 = 8

	// OffsetCorrelation is the first per-channel correlation word:
	// bit 0 nav bit, bits 16..31 elapsed ms.
	OffsetCorrelation uint16 = 10

	blockWords = 5
)

// Mirror is a shadow of a NAP register block reached over a remote
// transport. Refresh pulls the block; the Registers methods serve the shadow.
//
// Refresh and ClearTrackIRQ hold the same lock, so a refresh that read the
// device before a clear can never publish the cleared bits afterwards.
type Mirror struct {
	mu       sync.Mutex
	cli      RegisterClient
	dial     func() (RegisterClient, error)
	base     uint16
	channels int

	status  uint32
	timing  uint32
	pending uint32
	errs    uint32
	hash    uint32
	corr    []uint32
}

// NewMirror builds a mirror of the register block plus channels
// correlation words. cli may be nil; dial is used on the next Refresh in
// that case and after any transport failure.
func NewMirror(base uint16, channels int, cli RegisterClient, dial func() (RegisterClient, error)) (*Mirror, error) {
	if cli == nil && dial == nil {
		return nil, errors.New("nap mirror: client or dial func required")
	}
	if channels < 0 || channels > MaxTrackChannels {
		return nil, errors.New("nap mirror: channel count out of range")
	}
	return &Mirror{
		cli:      cli,
		dial:     dial,
		base:     base,
		channels: channels,
		corr:     make([]uint32, channels),
	}, nil
}

// Refresh reads the whole block once and returns the pending channel mask.
// One dial attempt per call when disconnected.
func (m *Mirror) Refresh() (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cli == nil {
		if m.dial == nil {
			return m.pending, errors.New("nap mirror: not connected")
		}
		cli, err := m.dial()
		if err != nil {
			return m.pending, err
		}
		m.cli = cli
	}

	v, err := m.cli.ReadUint32s(m.base+OffsetStatus, blockWords+m.channels)
	if err != nil {
		m.dropLocked()
		return m.pending, err
	}
	if len(v) < blockWords+m.channels {
		m.dropLocked()
		return m.pending, errors.New("nap mirror: short register block")
	}

	m.status = v[0]
	m.timing = v[1]
	m.pending = v[2]
	// the device clears TRK_IRQ_ERROR on read: accumulate until consumed
	m.errs |= v[3]
	m.hash = v[4]
	copy(m.corr, v[blockWords:])

	return m.pending, nil
}

// Close releases the transport.
func (m *Mirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cli == nil {
		return nil
	}
	err := m.cli.Close()
	m.cli = nil
	return err
}

func (m *Mirror) dropLocked() {
	if m.cli != nil {
		_ = m.cli.Close()
	}
	m.cli = nil
}

// ---- Registers ----

// TimingCount returns the counter as of the last refresh.
func (m *Mirror) TimingCount() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timing
}

func (m *Mirror) TrackIRQ() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// ClearTrackIRQ clears the shadow bits and writes them back to the device
// (write-one-to-clear). A failed write drops the connection; the device
// still holds the bits, so the next refresh reports them again.
func (m *Mirror) ClearTrackIRQ(mask uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending &^= mask
	if m.cli == nil {
		return
	}
	if err := m.cli.WriteUint32(m.base+OffsetTrackIRQ, mask); err != nil {
		log.Printf("nap mirror: clear 0x%08X failed: %v", mask, err)
		m.dropLocked()
	}
}

func (m *Mirror) TrackIRQError() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.errs
	m.errs = 0
	return e
}

func (m *Mirror) Status() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Mirror) HashStatus() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hash
}

// ---- Correlator ----

// Correlate serves channel ch's correlation word from the last refresh.
func (m *Mirror) Correlate(ch int) Correlation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch < 0 || ch >= len(m.corr) {
		return Correlation{}
	}
	w := m.corr[ch]
	return Correlation{
		NavBit:    w&1 != 0,
		ElapsedMs: int32(w >> 16),
	}
}
