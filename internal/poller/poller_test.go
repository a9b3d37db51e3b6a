// internal/poller/poller_test.go
package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/nap-bridge/internal/metrics"
)

type fakeSource struct {
	pending []uint32
	fail    bool
}

func (f *fakeSource) Refresh() (uint32, error) {
	if f.fail {
		return 0, errors.New("read timeout")
	}
	if len(f.pending) == 0 {
		return 0, nil
	}
	v := f.pending[0]
	f.pending = f.pending[1:]
	return v, nil
}

type countingLine struct{ n int }

func (c *countingLine) Interrupt() { c.n++ }

func newTestPoller(t *testing.T, src Source, line Line) (*Poller, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	p, err := New(Config{Interval: time.Millisecond}, src, line, m)
	require.NoError(t, err)
	return p, m
}

func TestPollOnceRaisesLineWhenPending(t *testing.T) {
	src := &fakeSource{pending: []uint32{0, 0x5}}
	line := &countingLine{}
	p, _ := newTestPoller(t, src, line)

	res := p.PollOnce()
	require.NoError(t, res.Err)
	require.Zero(t, res.Pending)
	require.Zero(t, line.n)

	res = p.PollOnce()
	require.Equal(t, uint32(0x5), res.Pending)
	require.Equal(t, 1, line.n)
}

func TestPollOnceFailure(t *testing.T) {
	line := &countingLine{}
	p, m := newTestPoller(t, &fakeSource{fail: true}, line)

	res := p.PollOnce()
	require.Error(t, res.Err)
	require.Zero(t, line.n)
	require.Equal(t, 1.0, testutil.ToFloat64(m.PollErrors))
}

func TestRunEmitsUntilCancelled(t *testing.T) {
	p, _ := newTestPoller(t, &fakeSource{}, &countingLine{})

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan PollResult)
	done := make(chan struct{})
	go func() {
		p.Run(ctx, out)
		close(done)
	}()

	<-out
	<-out
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewValidates(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	_, err := New(Config{}, &fakeSource{}, &countingLine{}, m)
	require.Error(t, err)
	_, err = New(Config{Interval: time.Second}, nil, &countingLine{}, m)
	require.Error(t, err)
	_, err = New(Config{Interval: time.Second}, &fakeSource{}, nil, m)
	require.Error(t, err)
	_, err = New(Config{Interval: time.Second}, &fakeSource{}, &countingLine{}, nil)
	require.Error(t, err)
}
