// internal/nap/sim/hardware.go
package sim

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/tamzrod/nap-bridge/internal/nap"
	"github.com/tamzrod/nap-bridge/internal/nav"
	"github.com/tamzrod/nap-bridge/internal/nav/lnav"
	"github.com/tamzrod/nap-bridge/internal/track"
)

// DefaultBitPeriod is the LNAV bit period.
const DefaultBitPeriod = 20 * time.Millisecond

type HardwareConfig struct {
	SampleRateHz float64
	BitPeriod    time.Duration

	// PRNs[i] is broadcast on channel i
	PRNs []uint8

	// GPS time of the first bit
	Week     int
	StartTOW float64
}

// stream is one satellite's bit stream as seen by a channel.
type stream struct {
	eph      nav.Ephemeris
	towCount uint32
	bits     []bool
	pos      int
	inverted bool
	latest   nap.Correlation
}

func (s *stream) next() bool {
	if s.pos == len(s.bits) {
		s.towCount = (s.towCount + 1) % (nav.SecondsPerWeek / 6)
		s.bits = subframeAt(s.eph, s.towCount)
		s.pos = 0
	}
	b := s.bits[s.pos] != s.inverted
	s.pos++
	return b
}

// subframeAt renders the subframe broadcast at TOW count c. Subframe ids
// follow the TOW count, so frames line up with the week.
func subframeAt(eph nav.Ephemeris, c uint32) []bool {
	return lnav.EncodeSubframe(eph, int(c%lnav.FrameSubframes)+1, c)
}

// Hardware drives a Surface like a NAP would: the tick counter runs at the
// sample rate and each channel raises its bit once per nav bit. It serves
// the matching correlations as a nap.Correlator.
type Hardware struct {
	surf *Surface
	cfg  HardwareConfig

	mu      sync.Mutex
	streams []*stream
	ticks   uint32 // per bit period
}

var _ nap.Correlator = (*Hardware)(nil)

func NewHardware(surf *Surface, cfg HardwareConfig) (*Hardware, error) {
	if surf == nil {
		return nil, errors.New("sim: surface required")
	}
	if cfg.SampleRateHz <= 0 {
		return nil, errors.New("sim: sample rate must be > 0")
	}
	if len(cfg.PRNs) > nap.MaxTrackChannels {
		return nil, errors.New("sim: too many channels")
	}
	if cfg.BitPeriod <= 0 {
		cfg.BitPeriod = DefaultBitPeriod
	}

	h := &Hardware{
		surf:  surf,
		cfg:   cfg,
		ticks: uint32(cfg.SampleRateHz * cfg.BitPeriod.Seconds()),
	}

	start := uint32(cfg.StartTOW/6) % (nav.SecondsPerWeek / 6)
	for i, prn := range cfg.PRNs {
		s := &stream{
			eph:      SyntheticEphemeris(prn, cfg.Week, float64(start/lnav.FrameSubframes*30)),
			towCount: start,
			// odd channels track with inverted phase
			inverted: i%2 == 1,
		}
		s.bits = subframeAt(s.eph, s.towCount)
		// start somewhere inside the subframe
		s.pos = int(prn) * 37 % track.SubframeBits
		h.streams = append(h.streams, s)
	}

	return h, nil
}

// Step produces one nav bit on every channel and raises the interrupt.
// A channel whose previous bit was never serviced is flagged in
// TRK_IRQ_ERROR.
func (h *Hardware) Step() {
	h.mu.Lock()
	var mask uint32
	for i, s := range h.streams {
		s.latest = nap.Correlation{
			NavBit:    s.next(),
			ElapsedMs: int32(h.cfg.BitPeriod / time.Millisecond),
		}
		mask |= 1 << i
	}
	h.mu.Unlock()

	if missed := h.surf.TrackIRQ() & mask; missed != 0 {
		h.surf.RaiseError(missed)
	}
	h.surf.Advance(h.ticks)
	if mask != 0 {
		h.surf.Assert(mask)
	}
}

// Run steps once per bit period until ctx is done.
func (h *Hardware) Run(ctx context.Context) {
	log.Printf("sim: %d channels, bit period %s", len(h.streams), h.cfg.BitPeriod)

	ticker := time.NewTicker(h.cfg.BitPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Step()
		}
	}
}

// Correlate implements nap.Correlator.
func (h *Hardware) Correlate(ch int) nap.Correlation {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch < 0 || ch >= len(h.streams) {
		return nap.Correlation{}
	}
	return h.streams[ch].latest
}

// SyntheticEphemeris is a plausible, PRN-dependent ephemeris.
func SyntheticEphemeris(prn uint8, week int, toe float64) nav.Ephemeris {
	p := float64(prn)
	iodc := uint16(prn) * 7 % 1024

	return nav.Ephemeris{
		PRN:      prn,
		Valid:    true,
		Healthy:  true,
		TOE:      nav.GPSTime{WN: week, TOW: toe},
		TOC:      nav.GPSTime{WN: week, TOW: toe},
		URA:      1,
		IODC:     iodc,
		IODE:     iodc & 0xFF,
		TGD:      -5e-9,
		Crs:      10 + p,
		Crc:      200 + p,
		Cuc:      1e-6,
		Cus:      5e-6,
		Cic:      1e-7,
		Cis:      -1e-7,
		Dn:       4e-9,
		M0:       -3 + p/10,
		Ecc:      0.001 * p,
		SqrtA:    5153.6,
		Omega0:   -3 + p/6,
		OmegaDot: -8e-9,
		W:        0.5,
		Inc:      0.96,
		IncDot:   1e-10,
		Af0:      1e-5 * p,
		Af1:      1e-12,
	}
}
