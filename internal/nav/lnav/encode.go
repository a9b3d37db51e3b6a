// internal/nav/lnav/encode.go
package lnav

import (
	"math"

	"github.com/tamzrod/nap-bridge/internal/nav"
	"github.com/tamzrod/nap-bridge/internal/nav/parity"
	"github.com/tamzrod/nap-bridge/internal/track"
)

// FrameSubframes is the number of subframes in one 30 s frame.
const FrameSubframes = 5

const maxTOWCount = 100800

// EncodeFrame renders one frame whose first subframe starts at TOW count
// start (6 s units). Subframes 4 and 5 carry no payload.
func EncodeFrame(eph nav.Ephemeris, start uint32) [FrameSubframes][]bool {
	var out [FrameSubframes][]bool
	for i := range out {
		out[i] = EncodeSubframe(eph, i+1, start+uint32(i))
	}
	return out
}

// EncodeSubframe renders subframe id starting at TOW count towCount, with
// parity, in transmission polarity.
func EncodeSubframe(eph nav.Ephemeris, id int, towCount uint32) []bool {
	var w words

	w.set(preamble, fieldPreamble...)
	w.set((towCount+1)%maxTOWCount, fieldHOWTOW...)
	w.set(uint32(id), fieldSFID...)

	switch id {
	case 1:
		w.set(uint32(eph.TOE.WN%weekRollover), fieldWeek...)
		w.set(uint32(eph.URA), fieldURA...)
		w.set(uint32(eph.Health), fieldHealth...)
		w.set(uint32(eph.IODC), fieldIODC...)
		w.set(uint32(math.Round(eph.TOC.TOW/timeScale)), fieldTOC...)
	case 2:
		w.set(uint32(eph.IODE), fieldIODE2...)
		w.set(uint32(math.Round(eph.TOE.TOW/timeScale)), fieldTOE...)
		if eph.FitInterval {
			w.set(1, fieldFit...)
		}
	case 3:
		w.set(uint32(eph.IODE), fieldIODE3...)
	}

	for _, f := range scaledFields {
		if f.sf == id {
			f.encode(&w, *f.ref(&eph))
		}
	}

	return render(&w)
}

func render(w *words) []bool {
	out := make([]bool, 0, track.SubframeBits)
	var prev uint32

	for i := 0; i < wordsPerSF; i++ {
		data := w[i]
		if i == 1 || i == wordsPerSF-1 {
			data = parity.SolveTrailing(prev, data)
		}
		raw := parity.Encode(prev, data)
		for b := wordBits - 1; b >= 0; b-- {
			out = append(out, (raw>>b)&1 == 1)
		}
		prev = raw & 0x3
	}
	return out
}
