// internal/bridge/bridge_test.go
package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/nap-bridge/internal/metrics"
	"github.com/tamzrod/nap-bridge/internal/nap/sim"
	"github.com/tamzrod/nap-bridge/internal/watchdog"
)

// ---- fakes ----

type fakeTracker struct {
	mu       sync.Mutex
	updates  []uint32
	errors   []uint32
	process  int
	sequence []string
}

func (f *fakeTracker) Update(mask uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, mask)
	f.sequence = append(f.sequence, "update")
}

func (f *fakeTracker) MissedUpdateError(mask uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, mask)
	f.sequence = append(f.sequence, "error")
}

func (f *fakeTracker) Process() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.process++
	f.sequence = append(f.sequence, "process")
}

type fakeNotifier struct {
	mu    sync.Mutex
	pings map[watchdog.ID]int
	trk   *fakeTracker
}

func (f *fakeNotifier) Notify(id watchdog.ID) {
	f.mu.Lock()
	if f.pings == nil {
		f.pings = make(map[watchdog.ID]int)
	}
	f.pings[id]++
	f.mu.Unlock()

	if f.trk != nil {
		f.trk.mu.Lock()
		f.trk.sequence = append(f.trk.sequence, "watchdog")
		f.trk.mu.Unlock()
	}
}

func (f *fakeNotifier) count(id watchdog.ID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings[id]
}

func newTestBridge(t *testing.T, period time.Duration) (*Bridge, *sim.Surface, *fakeTracker, *fakeNotifier, *metrics.Metrics) {
	t.Helper()

	surf := sim.NewSurface(12)
	trk := &fakeTracker{}
	wd := &fakeNotifier{trk: trk}
	m := metrics.New(prometheus.NewRegistry())

	b, err := New(Config{ProcessPeriod: period}, surf, trk, wd, m)
	require.NoError(t, err)
	surf.Connect(b)

	return b, surf, trk, wd, m
}

// ---- tests ----

func TestServiceEndToEndSingleChannel(t *testing.T) {
	b, surf, trk, wd, _ := newTestBridge(t, time.Second)

	surf.Assert(0b00100)
	res := b.Service(true)

	require.Equal(t, []uint32{0b00100}, trk.updates)
	require.Empty(t, trk.errors)
	require.Equal(t, 1, wd.count(watchdog.NAPISR))
	require.Equal(t, 1, trk.process)
	require.Equal(t, uint32(0), surf.TrackIRQ())
	require.Equal(t, []string{"update", "watchdog", "process"}, trk.sequence)

	require.Equal(t, 1, res.Reads)
	require.Equal(t, uint32(0b00100), res.Serviced)
	require.Equal(t, StateWaiting, b.State())
}

func TestDrainServicesBothBitsInOneRead(t *testing.T) {
	b, surf, trk, _, m := newTestBridge(t, time.Second)

	surf.SetPending(1<<2 | 1<<5)
	b.Service(true)

	require.Equal(t, []uint32{1<<2 | 1<<5}, trk.updates)
	require.Equal(t, uint32(0), surf.TrackIRQ())
	require.Equal(t, 1.0, testutil.ToFloat64(m.DrainReads))
	require.Equal(t, 2.0, testutil.ToFloat64(m.ChannelUpdates))
}

func TestDrainPicksUpBitsSetDuringClear(t *testing.T) {
	b, surf, trk, _, _ := newTestBridge(t, time.Second)

	injected := false
	surf.OnClear(func(mask uint32) {
		if !injected {
			injected = true
			// hardware sets channel 7 after the read, before the re-read
			surf.SetPending(1 << 7)
		}
	})

	surf.SetPending(1 << 1)
	res := b.Service(true)

	require.Equal(t, []uint32{1 << 1, 1 << 7}, trk.updates)
	require.Equal(t, 2, res.Reads)
	require.Equal(t, uint32(0), surf.TrackIRQ())
}

func TestDrainClearOnlyServicedBits(t *testing.T) {
	b, surf, trk, _, _ := newTestBridge(t, time.Second)

	// bit 3 lands between the read and the clear of bit 0
	surf.SetPending(1 << 0)
	first := surf.TrackIRQ()
	surf.SetPending(1 << 3)
	surf.ClearTrackIRQ(first)
	require.Equal(t, uint32(1<<3), surf.TrackIRQ(), "clear must not drop bits it did not read")

	b.Service(true)
	require.Equal(t, []uint32{1 << 3}, trk.updates)
}

func TestHardwareErrorReportedOnceNotRetried(t *testing.T) {
	b, surf, trk, wd, m := newTestBridge(t, time.Second)

	surf.RaiseError(0x3)
	res := b.Service(false)
	require.Equal(t, uint32(0x3), res.ErrorMask)
	require.Equal(t, []uint32{0x3}, trk.errors)

	b.Service(false)
	require.Equal(t, []uint32{0x3}, trk.errors)
	require.Equal(t, 2, wd.count(watchdog.NAPISR))
	require.Equal(t, 1.0, testutil.ToFloat64(m.HardwareErrors))
}

func TestInterruptCoalesces(t *testing.T) {
	b, _, _, _, _ := newTestBridge(t, time.Second)

	for i := 0; i < 5; i++ {
		b.Interrupt()
	}
	require.Equal(t, 1, len(b.wake))
}

func TestRunWakesOnInterrupt(t *testing.T) {
	b, surf, trk, wd, _ := newTestBridge(t, time.Hour)

	out := make(chan Result, 4)
	b.PublishResults(out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	surf.Assert(0b00100)

	select {
	case res := <-out:
		require.True(t, res.Woken)
		require.Equal(t, uint32(0b00100), res.Serviced)
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not wake on interrupt")
	}

	trk.mu.Lock()
	require.Equal(t, []uint32{0b00100}, trk.updates)
	trk.mu.Unlock()
	require.Equal(t, 1, wd.count(watchdog.NAPISR))
}

func TestRunServicesOnTimeoutWithoutInterrupts(t *testing.T) {
	b, _, trk, wd, m := newTestBridge(t, 5*time.Millisecond)

	out := make(chan Result, 16)
	b.PublishResults(out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		select {
		case res := <-out:
			require.False(t, res.Woken)
			require.Zero(t, res.Reads)
		case <-time.After(2 * time.Second):
			t.Fatalf("no timeout-driven iteration")
		}
	}
	cancel()
	<-done

	trk.mu.Lock()
	require.Empty(t, trk.updates)
	require.GreaterOrEqual(t, trk.process, 3)
	process := trk.process
	trk.mu.Unlock()

	// one ping per iteration, timeout or not
	require.Equal(t, process, wd.count(watchdog.NAPISR))
	require.GreaterOrEqual(t, testutil.ToFloat64(m.Wakeups.WithLabelValues(metrics.WakeTimeout)), 3.0)
}

func TestNewRequiresCollaborators(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	_, err := New(Config{}, nil, &fakeTracker{}, &fakeNotifier{}, m)
	require.Error(t, err)

	b, err := New(Config{}, sim.NewSurface(1), &fakeTracker{}, &fakeNotifier{}, m)
	require.NoError(t, err)
	require.Equal(t, DefaultProcessPeriod, b.cfg.ProcessPeriod)
}
