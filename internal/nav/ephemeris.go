// internal/nav/ephemeris.go
package nav

import "fmt"

// NumSats is the size of the ephemeris table, one entry per GPS PRN.
const NumSats = 32

const (
	SecondsPerWeek = 604800
	halfWeek       = SecondsPerWeek / 2
)

// GPSTime is a week number plus seconds into the week.
type GPSTime struct {
	WN  int
	TOW float64
}

// Sub returns t - u in seconds, across weeks.
func (t GPSTime) Sub(u GPSTime) float64 {
	return float64(t.WN-u.WN)*SecondsPerWeek + (t.TOW - u.TOW)
}

func (t GPSTime) String() string {
	return fmt.Sprintf("%d:%.3f", t.WN, t.TOW)
}

// Ephemeris is one satellite's broadcast orbit and clock model.
type Ephemeris struct {
	PRN     uint8
	Valid   bool
	Healthy bool

	TOE GPSTime
	TOC GPSTime

	URA         int
	Health      uint8
	IODE        uint16
	IODC        uint16
	FitInterval bool

	TGD float64

	// harmonic corrections
	Crs, Crc float64
	Cuc, Cus float64
	Cic, Cis float64

	Dn       float64
	M0       float64
	Ecc      float64
	SqrtA    float64
	Omega0   float64
	OmegaDot float64
	W        float64
	Inc      float64
	IncDot   float64

	Af0, Af1, Af2 float64
}

// Equal compares field by field.
func (e Ephemeris) Equal(o Ephemeris) bool {
	return e.PRN == o.PRN &&
		e.Valid == o.Valid &&
		e.Healthy == o.Healthy &&
		e.TOE == o.TOE &&
		e.TOC == o.TOC &&
		e.URA == o.URA &&
		e.Health == o.Health &&
		e.IODE == o.IODE &&
		e.IODC == o.IODC &&
		e.FitInterval == o.FitInterval &&
		e.TGD == o.TGD &&
		e.Crs == o.Crs && e.Crc == o.Crc &&
		e.Cuc == o.Cuc && e.Cus == o.Cus &&
		e.Cic == o.Cic && e.Cis == o.Cis &&
		e.Dn == o.Dn &&
		e.M0 == o.M0 &&
		e.Ecc == o.Ecc &&
		e.SqrtA == o.SqrtA &&
		e.Omega0 == o.Omega0 &&
		e.OmegaDot == o.OmegaDot &&
		e.W == o.W &&
		e.Inc == o.Inc &&
		e.IncDot == o.IncDot &&
		e.Af0 == o.Af0 && e.Af1 == o.Af1 && e.Af2 == o.Af2
}

// ResolveWeek builds a full GPS time from a channel TOW estimate, taking
// the week from toe and moving it by one when the two are more than half a
// week apart. The result is advisory.
func ResolveWeek(toe GPSTime, towMs int32) GPSTime {
	t := GPSTime{WN: toe.WN, TOW: float64(towMs) / 1000}

	dt := t.Sub(toe)
	switch {
	case dt > halfWeek:
		t.WN--
	case dt < -halfWeek:
		t.WN++
	}
	return t
}

// index maps a 1-based PRN to its table slot.
func index(prn uint8) (int, bool) {
	if prn == 0 || int(prn) > NumSats {
		return 0, false
	}
	return int(prn) - 1, true
}
