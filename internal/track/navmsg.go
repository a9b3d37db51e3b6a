// internal/track/navmsg.go
package track

import "github.com/tamzrod/nap-bridge/internal/nav/parity"

// SubframeBits is the length of one LNAV subframe.
const SubframeBits = 300

const (
	preamble = 0x8B

	// one subframe pending plus the next one complete
	maxBufferedBits = 2 * SubframeBits

	maxTOWCount = 100800
)

// NavMsg accumulates navigation bits and synchronises on the LNAV
// preamble. Not safe for concurrent use; Channel guards it.
type NavMsg struct {
	bits     []bool
	ready    bool
	inverted bool

	// TOW (ms) at the end of the most recently synchronised subframe,
	// -1 when already consumed
	syncTOW int32
}

func newNavMsg() NavMsg {
	return NavMsg{syncTOW: -1}
}

// Append adds one bit. At most one subframe is held pending; if it is not
// taken by the time the next one completes it is dropped, and the next one
// becomes pending on its last bit.
func (n *NavMsg) Append(bit bool) {
	n.bits = append(n.bits, bit)

	if n.ready {
		if len(n.bits) >= maxBufferedBits {
			n.bits = n.bits[SubframeBits:]
			n.ready = false
			n.sync()
		}
		return
	}
	n.sync()
}

// SubframeReady reports whether a complete subframe is pending.
func (n *NavMsg) SubframeReady() bool {
	return n.ready
}

// Take copies out the pending subframe with polarity corrected and
// consumes it.
func (n *NavMsg) Take() ([]bool, bool) {
	if !n.ready {
		return nil, false
	}

	sf := n.subframe()

	rest := make([]bool, len(n.bits)-SubframeBits, maxBufferedBits)
	copy(rest, n.bits[SubframeBits:])
	n.bits = rest
	n.ready = false
	n.sync()

	return sf, true
}

// Reset drops everything. Used when bit continuity is lost.
func (n *NavMsg) Reset() {
	n.bits = n.bits[:0]
	n.ready = false
	n.inverted = false
	n.syncTOW = -1
}

// popTOW returns the TOW learned at the last sync, once.
func (n *NavMsg) popTOW() (int32, bool) {
	if n.syncTOW < 0 {
		return 0, false
	}
	t := n.syncTOW
	n.syncTOW = -1
	return t, true
}

// sync slides the window until a full subframe starts at bit 0: preamble
// in either polarity, TLM and HOW parity good, plausible HOW.
func (n *NavMsg) sync() {
	for !n.ready && len(n.bits) >= SubframeBits {
		var inverted bool
		switch word8(n.bits) {
		case preamble:
			inverted = false
		case preamble ^ 0xFF:
			inverted = true
		default:
			n.bits = n.bits[1:]
			continue
		}

		n.inverted = inverted
		tow, ok := howTOW(n.subframe())
		if !ok {
			n.bits = n.bits[1:]
			continue
		}
		n.ready = true
		n.syncTOW = tow
	}
}

func (n *NavMsg) subframe() []bool {
	sf := make([]bool, SubframeBits)
	for i := range sf {
		sf[i] = n.bits[i] != n.inverted
	}
	return sf
}

func word8(b []bool) uint8 {
	var v uint8
	for i := 0; i < 8; i++ {
		v <<= 1
		if b[i] {
			v |= 1
		}
	}
	return v
}

// howTOW checks the TLM and HOW words and returns the HOW TOW in ms. The
// HOW carries the time of the start of the next subframe, which is where
// the receiver stands once a subframe completes.
func howTOW(sf []bool) (int32, bool) {
	tlm := parity.Word(sf)
	if _, ok := parity.Check(0, tlm); !ok {
		return 0, false
	}
	how, ok := parity.Check(tlm&0x3, parity.Word(sf[parity.WordBits:]))
	if !ok {
		return 0, false
	}

	count := int32(how >> 7)
	id := (how >> 2) & 0x7
	if count >= maxTOWCount || id < 1 || id > 5 {
		return 0, false
	}
	return count * 6000, true
}
