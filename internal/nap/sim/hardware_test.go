// internal/nap/sim/hardware_test.go
package sim

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/nap-bridge/internal/bridge"
	"github.com/tamzrod/nap-bridge/internal/metrics"
	"github.com/tamzrod/nap-bridge/internal/nap"
	"github.com/tamzrod/nap-bridge/internal/nav"
	"github.com/tamzrod/nap-bridge/internal/nav/lnav"
	"github.com/tamzrod/nap-bridge/internal/track"
	"github.com/tamzrod/nap-bridge/internal/watchdog"
)

type countingReporter struct {
	failed int
	fresh  map[uint8]int
}

func (c *countingReporter) DecodeFailed(nav.Report) { c.failed++ }
func (c *countingReporter) Unhealthy(nav.Report)    {}
func (c *countingReporter) NewEphemeris(r nav.Report) {
	if c.fresh == nil {
		c.fresh = make(map[uint8]int)
	}
	c.fresh[r.PRN]++
}

func TestStepAdvancesCounterAndAssertsChannels(t *testing.T) {
	surf := NewSurface(2)
	hw, err := NewHardware(surf, HardwareConfig{
		SampleRateHz: 1000,
		PRNs:         []uint8{1, 2},
	})
	require.NoError(t, err)

	hw.Step()
	require.Equal(t, uint32(20), surf.TimingCount())
	require.Equal(t, uint32(0b11), surf.TrackIRQ())
	require.Equal(t, int32(20), hw.Correlate(1).ElapsedMs)
	require.Equal(t, nap.Correlation{}, hw.Correlate(7))
}

func TestStepFlagsUnservicedChannels(t *testing.T) {
	surf := NewSurface(2)
	hw, err := NewHardware(surf, HardwareConfig{SampleRateHz: 1000, PRNs: []uint8{1, 2}})
	require.NoError(t, err)

	hw.Step()
	surf.ClearTrackIRQ(0b01)
	hw.Step()

	require.Equal(t, uint32(0b10), surf.TrackIRQError())
}

func TestNewHardwareValidation(t *testing.T) {
	_, err := NewHardware(nil, HardwareConfig{SampleRateHz: 1})
	require.Error(t, err)
	_, err = NewHardware(NewSurface(1), HardwareConfig{})
	require.Error(t, err)

	hw, err := NewHardware(NewSurface(1), HardwareConfig{SampleRateHz: 1})
	require.NoError(t, err)
	require.Equal(t, DefaultBitPeriod, hw.cfg.BitPeriod)
}

// Bits go through the bridge, tracking and the supervisor exactly as in
// the running receiver, one step at a time.
func TestPipelineDecodesBroadcastEphemerides(t *testing.T) {
	prns := []uint8{3, 14, 27}

	surf := NewSurface(len(prns))
	hw, err := NewHardware(surf, HardwareConfig{
		SampleRateHz: 99375000,
		PRNs:         prns,
		Week:         2200,
		StartTOW:     3600,
	})
	require.NoError(t, err)

	mgr, err := track.NewManager(track.Config{Channels: len(prns)}, hw)
	require.NoError(t, err)
	for i, prn := range prns {
		require.NoError(t, mgr.Start(i, prn))
	}

	m := metrics.New(prometheus.NewRegistry())
	wd, err := watchdog.New(watchdog.Config{Timeout: time.Second, CheckInterval: time.Second})
	require.NoError(t, err)

	b, err := bridge.New(bridge.Config{}, surf, mgr, wd, m)
	require.NoError(t, err)
	surf.Connect(b)

	rep := &countingReporter{}
	sup, err := nav.New(nav.Config{}, mgr, lnav.NewDecoder(2195), rep, wd, m)
	require.NoError(t, err)

	for i := 0; i < 2700; i++ {
		hw.Step()
		b.Service(true)
		if i%50 == 0 {
			sup.Cycle()
		}
	}
	sup.Cycle()

	for _, prn := range prns {
		want := SyntheticEphemeris(prn, 2200, 3600)

		got, ok := sup.Ephemeris(prn)
		require.True(t, ok, "PRN %d", prn)
		require.Equal(t, want.IODE, got.IODE)
		require.Equal(t, want.TOE, got.TOE)
		require.InDelta(t, want.SqrtA, got.SqrtA, 1e-5)
		require.InDelta(t, want.Ecc, got.Ecc, 1e-9)
		require.Equal(t, 1, rep.fresh[prn])
	}

	require.Zero(t, rep.failed)
	require.Zero(t, testutil.ToFloat64(m.HardwareErrors))

	// channel TOW tracks the broadcast time
	rec := mgr.Channel(0).Snapshot()
	require.InDelta(t, 3600_000+2700*20, float64(rec.TOWms), 6000)
}
