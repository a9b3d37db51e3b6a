// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "napbridge"

// Wake causes.
const (
	WakeInterrupt = "interrupt"
	WakeTimeout   = "timeout"
)

// Metrics holds every collector the receiver exports.
type Metrics struct {
	// interrupt bridge
	Wakeups        *prometheus.CounterVec
	DrainReads     prometheus.Counter
	ChannelUpdates prometheus.Counter
	HardwareErrors prometheus.Counter
	WatchdogPings  prometheus.Counter
	ProcessCalls   prometheus.Counter

	// navigation supervisor
	NavCycles      prometheus.Counter
	DecodeFailures prometheus.Counter
	Unhealthy      prometheus.Counter
	NewEphemerides prometheus.Counter

	// watchdog
	WatchdogOverdue *prometheus.CounterVec

	// poller
	PollErrors prometheus.Counter
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Wakeups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "wakeups_total",
			Help:      "Worker wakeups by cause.",
		}, []string{"cause"}),
		DrainReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "drain_reads_total",
			Help:      "Non-zero TRK_IRQ reads serviced by the drain loop.",
		}),
		ChannelUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "channel_updates_total",
			Help:      "Per-channel updates delivered to tracking.",
		}),
		HardwareErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "hardware_errors_total",
			Help:      "Non-zero TRK_IRQ_ERROR reads.",
		}),
		WatchdogPings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "watchdog_pings_total",
			Help:      "Liveness notifications sent by the worker.",
		}),
		ProcessCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "process_calls_total",
			Help:      "Tracking process() invocations.",
		}),
		NavCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nav",
			Name:      "cycles_total",
			Help:      "Supervisor cycles.",
		}),
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nav",
			Name:      "decode_failures_total",
			Help:      "Subframe decodes that returned a negative result.",
		}),
		Unhealthy: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nav",
			Name:      "unhealthy_total",
			Help:      "Decoded ephemerides flagged unhealthy.",
		}),
		NewEphemerides: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nav",
			Name:      "new_ephemerides_total",
			Help:      "Ephemeris table entries that changed.",
		}),
		WatchdogOverdue: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watchdog",
			Name:      "overdue_total",
			Help:      "Checks that found a thread overdue.",
		}, []string{"id"}),
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "errors_total",
			Help:      "Failed register block refreshes.",
		}),
	}

	reg.MustRegister(
		m.Wakeups,
		m.DrainReads,
		m.ChannelUpdates,
		m.HardwareErrors,
		m.WatchdogPings,
		m.ProcessCalls,
		m.NavCycles,
		m.DecodeFailures,
		m.Unhealthy,
		m.NewEphemerides,
		m.WatchdogOverdue,
		m.PollErrors,
	)

	return m
}

// RegisterInfo exports read-only system info as a constant gauge.
func RegisterInfo(reg prometheus.Registerer, name string, channels int) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "info",
		Help:        "Receiver identity. Value is the tracking channel count.",
		ConstLabels: prometheus.Labels{"name": name},
	}, func() float64 { return float64(channels) }))
}

// RegisterRollovers exports the timer rollover count.
func RegisterRollovers(reg prometheus.Registerer, fn func() uint32) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "timer",
		Name:      "rollovers",
		Help:      "Observed wraps of the 32-bit hardware tick counter.",
	}, func() float64 { return float64(fn()) }))
}
