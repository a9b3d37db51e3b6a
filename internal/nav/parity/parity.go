// internal/nav/parity/parity.go

// Package parity implements the LNAV word parity of IS-GPS-200.
//
// A word is handled in the layout D29* D30* d1..d24 (bits 31..6) followed
// by D25..D30 (bits 5..0), where D29* D30* are the last two bits of the
// previous word and d1..d24 the source data.
package parity

import "math/bits"

// WordBits is the length of one transmitted word.
const WordBits = 30

// table 20-XIV
var masks = [6]uint32{
	0xBB1F3480,
	0x5D8F9A40,
	0xAEC7CD00,
	0x5763E680,
	0x6BB1F340,
	0x8B7A89C0,
}

const dataMask = 0x3FFFFFC0

func compute(w uint32) uint32 {
	var p uint32
	for _, m := range masks {
		p = p<<1 | uint32(bits.OnesCount32(w&m)&1)
	}
	return p
}

// Check verifies one transmitted word. prev holds D29* D30* in its low two
// bits. It returns the source data d1..d24.
func Check(prev, raw uint32) (uint32, bool) {
	w := prev<<30 | raw&0x3FFFFFFF
	if w&(1<<30) != 0 {
		w ^= dataMask
	}
	return (w >> 6) & 0xFFFFFF, compute(w) == w&0x3F
}

// Encode is the inverse of Check.
func Encode(prev, data uint32) uint32 {
	w := prev<<30 | (data&0xFFFFFF)<<6
	p := compute(w)
	if prev&1 != 0 {
		data ^= 0xFFFFFF
	}
	return (data&0xFFFFFF)<<6 | p
}

// SolveTrailing picks d23 d24 so that the encoded word ends in
// D29 = D30 = 0.
func SolveTrailing(prev, data uint32) uint32 {
	data &^= 0x3
	for t := uint32(0); t < 4; t++ {
		if Encode(prev, data|t)&0x3 == 0 {
			return data | t
		}
	}
	return data
}

// Word packs bits b[0..29] MSB first.
func Word(b []bool) uint32 {
	var raw uint32
	for _, v := range b[:WordBits] {
		raw <<= 1
		if v {
			raw |= 1
		}
	}
	return raw
}
