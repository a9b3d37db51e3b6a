// internal/nav/lnav/decode.go
package lnav

import (
	"time"

	"github.com/tamzrod/nap-bridge/internal/nav"
	"github.com/tamzrod/nap-bridge/internal/nav/parity"
	"github.com/tamzrod/nap-bridge/internal/track"
)

// Decode results.
const (
	ErrLength     = -1
	ErrParity     = -2
	ErrPreamble   = -3
	ErrSubframeID = -4

	Incomplete = 0
	Complete   = 1
)

var gpsEpoch = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

// frame collects subframes 1..3 of one satellite until they form a
// consistent issue of data.
type frame struct {
	sf   [3]words
	have [3]bool
}

// Decoder is a GPS L1 C/A LNAV ephemeris decoder. It keeps partial frames
// per PRN and is used from a single goroutine.
type Decoder struct {
	refWeek int
	now     func() time.Time
	frames  [nav.NumSats]frame
}

// NewDecoder builds a decoder. Broadcast week numbers are 10 bits; they
// are unwrapped against refWeek, or against the system clock when refWeek
// is 0.
func NewDecoder(refWeek int) *Decoder {
	return &Decoder{refWeek: refWeek, now: time.Now}
}

// Decode implements nav.Decoder.
func (d *Decoder) Decode(prn uint8, subframe []bool, eph *nav.Ephemeris) int {
	if len(subframe) != track.SubframeBits || prn == 0 || int(prn) > nav.NumSats {
		return ErrLength
	}

	w, ok := parseWords(subframe)
	if !ok {
		return ErrParity
	}
	if w.u(fieldPreamble...) != preamble {
		return ErrPreamble
	}

	id := int(w.u(fieldSFID...))
	switch id {
	case 1, 2, 3:
	case 4, 5:
		// almanac and ionosphere pages are not used
		return Incomplete
	default:
		return ErrSubframeID
	}

	f := &d.frames[prn-1]
	f.sf[id-1] = w
	f.have[id-1] = true

	if !f.have[0] || !f.have[1] || !f.have[2] {
		return Incomplete
	}

	iodc := f.sf[0].u(fieldIODC...)
	iode2 := f.sf[1].u(fieldIODE2...)
	iode3 := f.sf[2].u(fieldIODE3...)
	if iode2 != iode3 || iode2 != iodc&0xFF {
		// issue of data changed mid-frame; wait for the rest of the new one
		return Incomplete
	}

	d.fill(prn, f, eph)
	f.have = [3]bool{}
	return Complete
}

func (d *Decoder) fill(prn uint8, f *frame, eph *nav.Ephemeris) {
	week := d.adjustWeek(int(f.sf[0].u(fieldWeek...)))
	health := uint8(f.sf[0].u(fieldHealth...))

	*eph = nav.Ephemeris{
		PRN:         prn,
		Valid:       true,
		Healthy:     health == 0,
		Health:      health,
		URA:         int(f.sf[0].u(fieldURA...)),
		IODC:        uint16(f.sf[0].u(fieldIODC...)),
		IODE:        uint16(f.sf[1].u(fieldIODE2...)),
		FitInterval: f.sf[1].u(fieldFit...) == 1,
		TOC:         nav.GPSTime{WN: week, TOW: float64(f.sf[0].u(fieldTOC...) * timeScale)},
		TOE:         nav.GPSTime{WN: week, TOW: float64(f.sf[1].u(fieldTOE...) * timeScale)},
	}

	for _, sf := range scaledFields {
		*sf.ref(eph) = sf.decode(&f.sf[sf.sf-1])
	}
}

func (d *Decoder) adjustWeek(week int) int {
	ref := d.refWeek
	if ref <= 0 {
		ref = int(d.now().Sub(gpsEpoch) / (nav.SecondsPerWeek * time.Second))
	}
	return week + floorDiv(ref-week+weekRollover/2, weekRollover)*weekRollover
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// parseWords checks parity word by word and returns the source data.
// The bits before the subframe are taken as D29* = D30* = 0, which every
// subframe's last word guarantees.
func parseWords(sf []bool) (words, bool) {
	var w words
	var prev uint32

	for i := 0; i < wordsPerSF; i++ {
		raw := parity.Word(sf[i*wordBits:])
		data, ok := parity.Check(prev, raw)
		if !ok {
			return w, false
		}
		w[i] = data
		prev = raw & 0x3
	}
	return w, true
}
