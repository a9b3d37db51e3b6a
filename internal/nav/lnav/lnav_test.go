// internal/nav/lnav/lnav_test.go
package lnav

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tamzrod/nap-bridge/internal/nav"
)

func testEphemeris() nav.Ephemeris {
	return nav.Ephemeris{
		PRN:      12,
		Valid:    true,
		Healthy:  true,
		TOE:      nav.GPSTime{WN: 2200, TOW: 345600},
		TOC:      nav.GPSTime{WN: 2200, TOW: 345600},
		URA:      2,
		IODC:     325,
		IODE:     325 & 0xFF,
		TGD:      -1.1641532182693481e-08,
		Crs:      -12.5,
		Crc:      250.34375,
		Cuc:      -6.3e-7,
		Cus:      8.1e-6,
		Cic:      1.2e-7,
		Cis:      -3.5e-8,
		Dn:       4.5e-9,
		M0:       1.2,
		Ecc:      0.0123,
		SqrtA:    5153.65,
		Omega0:   -2.1,
		OmegaDot: -8.0e-9,
		W:        0.75,
		Inc:      0.96,
		IncDot:   2.1e-10,
		Af0:      1.5e-4,
		Af1:      -3.4e-12,
	}
}

func TestFrameRoundTrip(t *testing.T) {
	want := testEphemeris()
	frame := EncodeFrame(want, 1000)

	d := NewDecoder(2195)
	var got nav.Ephemeris

	require.Equal(t, Incomplete, d.Decode(12, frame[0], &got))
	require.Equal(t, Incomplete, d.Decode(12, frame[1], &got))
	require.Equal(t, nav.Ephemeris{}, got, "no output before the frame is complete")
	require.Equal(t, Complete, d.Decode(12, frame[2], &got))

	require.Equal(t, uint8(12), got.PRN)
	require.True(t, got.Valid)
	require.True(t, got.Healthy)
	require.Equal(t, want.TOE, got.TOE)
	require.Equal(t, want.TOC, got.TOC)
	require.Equal(t, want.IODE, got.IODE)
	require.Equal(t, want.IODC, got.IODC)
	require.Equal(t, want.URA, got.URA)

	for _, f := range scaledFields {
		require.InDelta(t, *f.ref(&want), *f.ref(&got), f.scale)
	}

	// subframes 4 and 5 are accepted and ignored
	require.Equal(t, Incomplete, d.Decode(12, frame[3], &got))
	require.Equal(t, Incomplete, d.Decode(12, frame[4], &got))

	// a decoded ephemeris survives another encode/decode unchanged
	again := EncodeFrame(got, 1005)
	var second nav.Ephemeris
	for i := 0; i < 3; i++ {
		d.Decode(12, again[i], &second)
	}
	require.True(t, got.Equal(second))
}

func TestHOWCarriesNextSubframeTOW(t *testing.T) {
	sf := EncodeSubframe(testEphemeris(), 2, 41)

	w, ok := parseWords(sf)
	require.True(t, ok)
	require.Equal(t, uint32(42), w.u(fieldHOWTOW...))
	require.Equal(t, uint32(2), w.u(fieldSFID...))
}

func TestDecodeNeedsFreshSetAfterComplete(t *testing.T) {
	frame := EncodeFrame(testEphemeris(), 0)
	d := NewDecoder(2195)
	var eph nav.Ephemeris

	for i := 0; i < 3; i++ {
		d.Decode(12, frame[i], &eph)
	}
	require.Equal(t, Incomplete, d.Decode(12, frame[0], &eph))
}

func TestDecodeRejectsIssueOfDataMismatch(t *testing.T) {
	old := testEphemeris()
	cur := testEphemeris()
	cur.IODE = 70
	cur.IODC = 70

	d := NewDecoder(2195)
	var eph nav.Ephemeris

	d.Decode(12, EncodeSubframe(old, 1, 0), &eph)
	d.Decode(12, EncodeSubframe(cur, 2, 1), &eph)
	require.Equal(t, Incomplete, d.Decode(12, EncodeSubframe(cur, 3, 2), &eph))

	require.Equal(t, Complete, d.Decode(12, EncodeSubframe(cur, 1, 5), &eph))
	require.Equal(t, uint16(70), eph.IODE)
}

func TestDecodeErrors(t *testing.T) {
	d := NewDecoder(2195)
	var eph nav.Ephemeris

	require.Equal(t, ErrLength, d.Decode(12, make([]bool, 299), &eph))
	require.Equal(t, ErrLength, d.Decode(0, make([]bool, 300), &eph))

	sf := EncodeSubframe(testEphemeris(), 1, 0)
	sf[100] = !sf[100]
	require.Equal(t, ErrParity, d.Decode(12, sf, &eph))

	// all zeros has valid parity and no preamble
	require.Equal(t, ErrPreamble, d.Decode(12, make([]bool, 300), &eph))

	require.Equal(t, ErrSubframeID, d.Decode(12, EncodeSubframe(testEphemeris(), 7, 0), &eph))
	require.Equal(t, nav.Ephemeris{}, eph)
}

func TestUnhealthyFlag(t *testing.T) {
	e := testEphemeris()
	e.Health = 0x3F
	frame := EncodeFrame(e, 0)

	d := NewDecoder(2195)
	var got nav.Ephemeris
	for i := 0; i < 3; i++ {
		d.Decode(12, frame[i], &got)
	}
	require.False(t, got.Healthy)
	require.Equal(t, uint8(0x3F), got.Health)
}

func TestAdjustWeek(t *testing.T) {
	d := NewDecoder(2195)
	require.Equal(t, 2200, d.adjustWeek(2200%1024))
	require.Equal(t, 2047, d.adjustWeek(1023))

	d = NewDecoder(1030)
	require.Equal(t, 1023, d.adjustWeek(1023))
	require.Equal(t, 1024, d.adjustWeek(0))
}
