// internal/status/status_test.go
package status

import (
	"errors"
	"fmt"
	"testing"

	"github.com/goburrow/modbus"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/nap-bridge/internal/watchdog"
)

type recordingWriter struct {
	writes []Snapshot
	fail   error
}

func (w *recordingWriter) WriteStatus(s Snapshot) error {
	w.writes = append(w.writes, s)
	return w.fail
}

func (w *recordingWriter) last() Snapshot {
	return w.writes[len(w.writes)-1]
}

type fixedGauges struct{ running, valid int }

func (g fixedGauges) Running() int    { return g.running }
func (g fixedGauges) ValidCount() int { return g.valid }

func newTestPublisher(t *testing.T, g Gauges) (*Publisher, *recordingWriter) {
	t.Helper()
	w := &recordingWriter{}
	p, err := NewPublisher(w, g)
	require.NoError(t, err)
	return p, w
}

func TestEncodeLayout(t *testing.T) {
	regs := Encode(Snapshot{
		Health:         HealthError,
		LastErrorCode:  CodeMissedUpdate,
		SecondsInError: 9,
		LastErrorMask:  0x00050003,
		Channels:       4,
		Ephemerides:    3,
	})

	require.Len(t, regs, SlotsPerDevice)
	require.Equal(t, HealthError, regs[SlotHealthCode])
	require.Equal(t, CodeMissedUpdate, regs[SlotLastErrorCode])
	require.Equal(t, uint16(9), regs[SlotSecondsInError])
	require.Equal(t, uint16(0x0005), regs[SlotErrorMaskHi])
	require.Equal(t, uint16(0x0003), regs[SlotErrorMaskLo])
	require.Equal(t, uint16(4), regs[SlotChannels])
	require.Equal(t, uint16(3), regs[SlotEphemerides])
	for i := SlotReservedStart; i < SlotsPerDevice; i++ {
		require.Zero(t, regs[i], "slot %d", i)
	}
}

func TestEncodeName(t *testing.T) {
	regs := EncodeName("RX\x01")
	require.Len(t, regs, SlotDeviceNameSlots)
	require.Equal(t, uint16('R')<<8|uint16('X'), regs[0])
	require.Equal(t, uint16('?')<<8, regs[1])

	long := EncodeName("abcdefghijklmnopqrstuvwxyz")
	require.Equal(t, uint16('o')<<8|uint16('p'), long[SlotDeviceNameSlots-1])
}

func TestObserveDerivesHealth(t *testing.T) {
	p, w := newTestPublisher(t, nil)
	require.Equal(t, HealthUnknown, p.Snapshot().Health)

	p.Observe(Event{Source: SourceBridge})
	require.Equal(t, HealthOK, w.last().Health)

	p.Observe(Event{Source: SourceBridge, ErrorMask: 0x4})
	require.Equal(t, HealthError, w.last().Health)
	require.Equal(t, CodeMissedUpdate, w.last().LastErrorCode)
	require.Equal(t, uint32(0x4), w.last().LastErrorMask)

	// clean iteration recovers; the last mask stays for diagnosis
	p.Observe(Event{Source: SourceBridge})
	require.Equal(t, HealthOK, w.last().Health)
	require.Zero(t, w.last().LastErrorCode)
	require.Equal(t, uint32(0x4), w.last().LastErrorMask)

	p.Observe(Event{Source: SourceWatchdog, ID: watchdog.NAPISR})
	require.Equal(t, HealthStale, w.last().Health)
	require.Equal(t, CodeOverdue, w.last().LastErrorCode)
}

func TestStaleNavSupervisorSurvivesCleanBridge(t *testing.T) {
	p, w := newTestPublisher(t, nil)

	p.Observe(Event{Source: SourceBridge})
	p.Observe(Event{Source: SourceWatchdog, ID: watchdog.NavMsg})
	require.Equal(t, HealthStale, w.last().Health)

	// the bridge keeps running; the supervisor is still overdue
	p.Observe(Event{Source: SourceBridge})
	require.Equal(t, HealthStale, p.Snapshot().Health)
	require.Equal(t, CodeOverdue, p.Snapshot().LastErrorCode)

	p.Observe(Event{Source: SourceWatchdog, ID: watchdog.NavMsg, Recovered: true})
	require.Equal(t, HealthOK, w.last().Health)
}

func TestStaleUntilEveryIDRecovers(t *testing.T) {
	p, w := newTestPublisher(t, nil)

	p.Observe(Event{Source: SourceWatchdog, ID: watchdog.NAPISR})
	p.Observe(Event{Source: SourceWatchdog, ID: watchdog.NavMsg})

	// bridge result clears the bridge worker only
	p.Observe(Event{Source: SourceBridge})
	require.Equal(t, HealthStale, w.last().Health)

	p.Observe(Event{Source: SourceWatchdog, ID: watchdog.NavMsg, Recovered: true})
	require.Equal(t, HealthOK, w.last().Health)
}

func TestTransportErrorOutranksCleanBridge(t *testing.T) {
	p, w := newTestPublisher(t, nil)

	p.Observe(Event{Source: SourcePoll, Err: errors.New("dial tcp: refused")})
	p.Observe(Event{Source: SourceBridge})
	require.Equal(t, HealthError, w.last().Health)
	require.Equal(t, CodeGeneric, w.last().LastErrorCode)

	p.Observe(Event{Source: SourcePoll})
	require.Equal(t, HealthOK, w.last().Health)
}

func TestObserveWritesOnlyOnChange(t *testing.T) {
	p, w := newTestPublisher(t, nil)

	p.Observe(Event{Source: SourceBridge})
	p.Observe(Event{Source: SourceBridge})
	p.Observe(Event{Source: SourcePoll})
	require.Len(t, w.writes, 1)
}

func TestTickCountsSecondsUntilRecovery(t *testing.T) {
	p, w := newTestPublisher(t, fixedGauges{running: 3, valid: 2})

	p.Observe(Event{Source: SourceWatchdog, ID: watchdog.NAPISR})
	p.Tick()
	p.Tick()
	require.Equal(t, uint16(2), w.last().SecondsInError)
	require.Equal(t, uint16(3), w.last().Channels)
	require.Equal(t, uint16(2), w.last().Ephemerides)

	p.Observe(Event{Source: SourceBridge})
	require.Equal(t, HealthOK, w.last().Health)
	require.Zero(t, w.last().SecondsInError)

	n := len(w.writes)
	p.Tick()
	require.Len(t, w.writes, n, "healthy tick with unchanged gauges writes nothing")
}

func TestSecondsInErrorSaturates(t *testing.T) {
	p, _ := newTestPublisher(t, nil)
	p.snap.Health = HealthError
	p.snap.SecondsInError = 65535

	p.Tick()
	require.Equal(t, uint16(65535), p.Snapshot().SecondsInError)
}

func TestWriteFailureKeepsSnapshot(t *testing.T) {
	p, w := newTestPublisher(t, nil)
	w.fail = errors.New("timeout")

	p.Observe(Event{Source: SourceBridge})
	require.Equal(t, HealthOK, p.Snapshot().Health)
}

type codedError uint16

func (e codedError) Error() string { return "coded" }
func (e codedError) Code() uint16  { return uint16(e) }

func TestErrorCode(t *testing.T) {
	require.Zero(t, ErrorCode(nil))
	require.Equal(t, CodeGeneric, ErrorCode(errors.New("x")))
	require.Equal(t, uint16(77), ErrorCode(fmt.Errorf("wrap: %w", codedError(77))))

	exc := &modbus.ModbusError{FunctionCode: 0x83, ExceptionCode: modbus.ExceptionCodeIllegalDataAddress}
	require.Equal(t, uint16(2), ErrorCode(fmt.Errorf("read: %w", exc)))
}

func TestNewPublisherRequiresWriter(t *testing.T) {
	_, err := NewPublisher(nil, nil)
	require.Error(t, err)
}
