// internal/nav/lnav/fields.go
package lnav

import (
	"math"

	"github.com/tamzrod/nap-bridge/internal/nav"
	"github.com/tamzrod/nap-bridge/internal/nav/parity"
)

const (
	wordBits   = parity.WordBits
	wordsPerSF = 10
)

const (
	p2_5  = 1.0 / (1 << 5)
	p2_19 = 1.0 / (1 << 19)
	p2_29 = 1.0 / (1 << 29)
	p2_31 = 1.0 / (1 << 31)
	p2_33 = 1.0 / (1 << 33)
	p2_43 = 1.0 / (1 << 43)
	p2_55 = 1.0 / (1 << 55)
)

// words holds the source data bits d1..d24 of the ten words of one
// subframe. Positions are subframe bit indices (0..299).
type words [wordsPerSF]uint32

func (w *words) bit(pos int) uint32 {
	return (w[pos/wordBits] >> (23 - pos%wordBits)) & 1
}

func (w *words) setBit(pos int, b uint32) {
	shift := 23 - pos%wordBits
	w[pos/wordBits] = w[pos/wordBits]&^(1<<shift) | (b&1)<<shift
}

type part struct{ pos, n int }

func (w *words) u(parts ...part) uint32 {
	var v uint32
	for _, p := range parts {
		for i := 0; i < p.n; i++ {
			v = v<<1 | w.bit(p.pos+i)
		}
	}
	return v
}

func (w *words) s(parts ...part) int32 {
	n := 0
	for _, p := range parts {
		n += p.n
	}
	shift := uint(32 - n)
	return int32(w.u(parts...)<<shift) >> shift
}

func (w *words) set(v uint32, parts ...part) {
	n := 0
	for _, p := range parts {
		n += p.n
	}
	for _, p := range parts {
		for i := 0; i < p.n; i++ {
			n--
			w.setBit(p.pos+i, v>>n)
		}
	}
}

// scaledField is a floating point ephemeris parameter broadcast as a
// scaled integer.
type scaledField struct {
	sf     int // 1..3
	parts  []part
	scale  float64
	signed bool
	ref    func(*nav.Ephemeris) *float64
}

var scaledFields = []scaledField{
	// subframe 1
	{1, []part{{196, 8}}, p2_31, true, func(e *nav.Ephemeris) *float64 { return &e.TGD }},
	{1, []part{{240, 8}}, p2_55, true, func(e *nav.Ephemeris) *float64 { return &e.Af2 }},
	{1, []part{{248, 16}}, p2_43, true, func(e *nav.Ephemeris) *float64 { return &e.Af1 }},
	{1, []part{{270, 22}}, p2_31, true, func(e *nav.Ephemeris) *float64 { return &e.Af0 }},

	// subframe 2
	{2, []part{{68, 16}}, p2_5, true, func(e *nav.Ephemeris) *float64 { return &e.Crs }},
	{2, []part{{90, 16}}, p2_43 * math.Pi, true, func(e *nav.Ephemeris) *float64 { return &e.Dn }},
	{2, []part{{106, 8}, {120, 24}}, p2_31 * math.Pi, true, func(e *nav.Ephemeris) *float64 { return &e.M0 }},
	{2, []part{{150, 16}}, p2_29, true, func(e *nav.Ephemeris) *float64 { return &e.Cuc }},
	{2, []part{{166, 8}, {180, 24}}, p2_33, false, func(e *nav.Ephemeris) *float64 { return &e.Ecc }},
	{2, []part{{210, 16}}, p2_29, true, func(e *nav.Ephemeris) *float64 { return &e.Cus }},
	{2, []part{{226, 8}, {240, 24}}, p2_19, false, func(e *nav.Ephemeris) *float64 { return &e.SqrtA }},

	// subframe 3
	{3, []part{{60, 16}}, p2_29, true, func(e *nav.Ephemeris) *float64 { return &e.Cic }},
	{3, []part{{76, 8}, {90, 24}}, p2_31 * math.Pi, true, func(e *nav.Ephemeris) *float64 { return &e.Omega0 }},
	{3, []part{{120, 16}}, p2_29, true, func(e *nav.Ephemeris) *float64 { return &e.Cis }},
	{3, []part{{136, 8}, {150, 24}}, p2_31 * math.Pi, true, func(e *nav.Ephemeris) *float64 { return &e.Inc }},
	{3, []part{{180, 16}}, p2_5, true, func(e *nav.Ephemeris) *float64 { return &e.Crc }},
	{3, []part{{196, 8}, {210, 24}}, p2_31 * math.Pi, true, func(e *nav.Ephemeris) *float64 { return &e.W }},
	{3, []part{{240, 24}}, p2_43 * math.Pi, true, func(e *nav.Ephemeris) *float64 { return &e.OmegaDot }},
	{3, []part{{278, 14}}, p2_43 * math.Pi, true, func(e *nav.Ephemeris) *float64 { return &e.IncDot }},
}

func (f scaledField) decode(w *words) float64 {
	if f.signed {
		return float64(w.s(f.parts...)) * f.scale
	}
	return float64(w.u(f.parts...)) * f.scale
}

func (f scaledField) encode(w *words, v float64) {
	w.set(uint32(int64(math.Round(v/f.scale))), f.parts...)
}

// integer fields
var (
	fieldPreamble = []part{{0, 8}}
	fieldHOWTOW   = []part{{30, 17}}
	fieldSFID     = []part{{49, 3}}

	fieldWeek   = []part{{60, 10}}
	fieldURA    = []part{{72, 4}}
	fieldHealth = []part{{76, 6}}
	fieldIODC   = []part{{82, 2}, {210, 8}}
	fieldTOC    = []part{{218, 16}}

	fieldIODE2 = []part{{60, 8}}
	fieldTOE   = []part{{270, 16}}
	fieldFit   = []part{{286, 1}}

	fieldIODE3 = []part{{270, 8}}
)

const (
	preamble     = 0x8B
	timeScale    = 16 // toe and toc LSB, seconds
	weekRollover = 1024
)
