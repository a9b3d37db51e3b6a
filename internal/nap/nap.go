// internal/nap/nap.go
package nap

import (
	"errors"
	"log"
)

// Registers is the NAP hardware status surface as seen by the core.
// Everything is read-only except TRK_IRQ, which is cleared by write-back.
// Reads never fail: transport problems belong to the implementation.
type Registers interface {
	// TimingCount is the free-running sample counter. Wraps to 0 silently.
	TimingCount() uint32

	// TrackIRQ returns one pending bit per tracking channel.
	TrackIRQ() uint32

	// ClearTrackIRQ clears exactly the bits in mask.
	// Bits set by hardware after the matching read are left alone.
	ClearTrackIRQ(mask uint32)

	// TrackIRQError returns the error field. Reading clears it.
	TrackIRQError() uint32

	// Status returns the STATUS register.
	Status() uint32
}

// Correlation is one correlator output for a tracking channel,
// reduced to what the navigation path consumes.
type Correlation struct {
	NavBit    bool
	ElapsedMs int32 // integration time covered by this output
}

// Correlator serves the latest correlation for channel ch.
type Correlator interface {
	Correlate(ch int) Correlation
}

// HashReader is implemented by surfaces that expose the bitstream
// authentication register.
type HashReader interface {
	HashStatus() uint32
}

// ---- STATUS register geometry ----

// StatusTrackingChShift is the position of the channel-count field.
const StatusTrackingChShift = 8

// StatusTrackingChMask selects the channel-count field.
const StatusTrackingChMask uint32 = 0x3F << StatusTrackingChShift

// MaxTrackChannels is bounded by the width of the TRK_IRQ mask.
const MaxTrackChannels = 32

// ---- HASH_STATUS values ----

const (
	HashMatch    uint32 = 0
	HashMismatch uint32 = 1
)

// ErrHashMismatch means the loaded NAP image failed verification.
var ErrHashMismatch = errors.New("nap: bitstream verification failed")

// Info is what the rest of the receiver learns from the NAP at start-up.
type Info struct {
	Channels int
}

// SetupConfig bounds what Setup accepts from the hardware.
type SetupConfig struct {
	MaxChannels int
}

// ChannelCount extracts the tracking channel count from STATUS and clamps
// it to max (and to MaxTrackChannels).
func ChannelCount(status uint32, max int) int {
	n := int((status & StatusTrackingChMask) >> StatusTrackingChShift)
	if max <= 0 || max > MaxTrackChannels {
		max = MaxTrackChannels
	}
	if n > max {
		n = max
	}
	return n
}

// Setup discovers the channel count and verifies the bitstream hash when
// the surface exposes it.
func Setup(regs Registers, cfg SetupConfig) (Info, error) {
	if regs == nil {
		return Info{}, errors.New("nap: registers required")
	}

	if h, ok := regs.(HashReader); ok {
		if h.HashStatus() != HashMatch {
			return Info{}, ErrHashMismatch
		}
	}

	info := Info{
		Channels: ChannelCount(regs.Status(), cfg.MaxChannels),
	}

	log.Printf("nap: %d tracking channels", info.Channels)
	return info, nil
}
