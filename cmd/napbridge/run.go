// cmd/napbridge/run.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tamzrod/nap-bridge/internal/archive"
	"github.com/tamzrod/nap-bridge/internal/bridge"
	"github.com/tamzrod/nap-bridge/internal/config"
	"github.com/tamzrod/nap-bridge/internal/metrics"
	"github.com/tamzrod/nap-bridge/internal/nap"
	"github.com/tamzrod/nap-bridge/internal/nap/sim"
	"github.com/tamzrod/nap-bridge/internal/nav"
	"github.com/tamzrod/nap-bridge/internal/nav/lnav"
	"github.com/tamzrod/nap-bridge/internal/poller"
	"github.com/tamzrod/nap-bridge/internal/status"
	"github.com/tamzrod/nap-bridge/internal/timer"
	"github.com/tamzrod/nap-bridge/internal/track"
	"github.com/tamzrod/nap-bridge/internal/watchdog"
	"github.com/tamzrod/nap-bridge/internal/writer"
)

// hardware is the NAP side as the rest of the receiver uses it.
type hardware struct {
	regs  nap.Registers
	corr  nap.Correlator
	start func(g *group, b *bridge.Bridge, m *metrics.Metrics, out chan<- poller.PollResult) error
	close func() error
}

// receiverGauges feeds the status block counters.
type receiverGauges struct {
	tracks *track.Manager
	sup    *nav.Supervisor
}

func (g receiverGauges) Running() int    { return g.tracks.Running() }
func (g receiverGauges) ValidCount() int { return g.sup.ValidCount() }

func run(ctx context.Context, cfgPath string) error {
	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	config.Normalize(cfg)
	r := cfg.Receiver

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	// --------------------
	// NAP
	// --------------------

	hw, err := buildHardware(r)
	if err != nil {
		return fmt.Errorf("hardware (%s): %w", r.Hardware.Source, err)
	}
	defer hw.close()

	info, err := nap.Setup(hw.regs, nap.SetupConfig{MaxChannels: r.MaxChannels})
	if err != nil {
		return err
	}

	tracks, err := track.NewManager(track.Config{Channels: info.Channels}, hw.corr)
	if err != nil {
		return err
	}
	for i, prn := range r.PRNs {
		if i >= info.Channels {
			log.Printf("track: no channel for PRN %d (%d channels)", prn, info.Channels)
			continue
		}
		if err := tracks.Start(i, prn); err != nil {
			return fmt.Errorf("track: channel %d: %w", i, err)
		}
	}

	wd, err := watchdog.New(watchdog.Config{
		Timeout:       config.Ms(r.Watchdog.TimeoutMs),
		CheckInterval: config.Ms(r.Watchdog.CheckIntervalMs),
		Required:      []watchdog.ID{watchdog.NAPISR, watchdog.NavMsg},
	})
	if err != nil {
		return err
	}

	b, err := bridge.New(bridge.Config{ProcessPeriod: config.Ms(r.Bridge.ProcessPeriodMs)}, hw.regs, tracks, wd, m)
	if err != nil {
		return err
	}

	t := timer.New(hw.regs)
	metrics.RegisterInfo(reg, r.Name, info.Channels)
	metrics.RegisterRollovers(reg, t.Rollovers)

	// --------------------
	// Navigation
	// --------------------

	reporters := nav.MultiReporter{nav.LogReporter{}}
	if r.Archive != nil {
		a, err := archive.Open(r.Archive.Path)
		if err != nil {
			return err
		}
		defer a.Close()
		logArchived(a, r.PRNs)
		reporters = append(reporters, a)
	}

	sup, err := nav.New(
		nav.Config{Period: config.Ms(r.Nav.PeriodMs)},
		tracks,
		lnav.NewDecoder(r.Nav.ReferenceWeek),
		reporters,
		wd,
		m,
	)
	if err != nil {
		return err
	}

	// --------------------
	// Status block (optional)
	// --------------------

	sw, closeStatus, err := writer.Build(r.Status)
	if err != nil {
		return fmt.Errorf("status writer: %w", err)
	}
	if sw != nil {
		defer closeStatus()
	}

	// Every goroutine below runs in g and has returned before the
	// deferred closes above run.
	g := newGroup(ctx)
	defer g.Stop()

	var pollOut chan poller.PollResult
	events := make(chan status.Event, 64)

	if sw != nil {
		pub, err := status.NewPublisher(sw, receiverGauges{tracks: tracks, sup: sup})
		if err != nil {
			return err
		}
		g.Go(func(ctx context.Context) { pub.Run(ctx, events) })

		results := make(chan bridge.Result, 64)
		b.PublishResults(results)
		pollOut = make(chan poller.PollResult, 64)
		g.Go(func(ctx context.Context) { forward(ctx, results, pollOut, events) })
	}

	wd.OnOverdue = func(o watchdog.Overdue) {
		m.WatchdogOverdue.WithLabelValues(string(o.ID)).Inc()
		if sw == nil {
			return
		}
		select {
		case events <- status.Event{Source: status.SourceWatchdog, ID: o.ID}:
		default:
		}
	}
	// overdue repeats every sweep; recovery is reported once, so it waits
	wd.OnRecovered = func(id watchdog.ID) {
		if sw == nil {
			return
		}
		select {
		case events <- status.Event{Source: status.SourceWatchdog, ID: id, Recovered: true}:
		case <-g.ctx.Done():
		}
	}

	// --------------------
	// Metrics endpoint
	// --------------------

	listen := r.Metrics.Listen
	if metricsListen != "" {
		listen = metricsListen
	}
	if listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: listen, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics: %v", err)
			}
		}()
		defer srv.Close()
	}

	// --------------------
	// Start
	// --------------------

	keep := config.Ms(r.Timer.KeepIntervalMs)

	g.Go(wd.Run)
	g.Go(func(ctx context.Context) { t.Keep(ctx, keep) })
	g.Go(b.Run)
	g.Go(sup.Run)
	if err := hw.start(g, b, m, pollOut); err != nil {
		return err
	}

	log.Printf("%s: %d tracking channels, %s sample clock, source %s, counter wraps every %s",
		r.Name, info.Channels, humanize.SI(r.SampleRateHz, "Hz"), r.Hardware.Source,
		timer.WrapPeriod(r.SampleRateHz))

	<-ctx.Done()
	log.Printf("%s: shutting down after %.1f s of sample time", r.Name, timer.Seconds(t.Now(), r.SampleRateHz))

	g.Stop()
	return nil
}

func buildHardware(r config.ReceiverConfig) (*hardware, error) {
	switch r.Hardware.Source {
	case config.SourceSim:
		surf := sim.NewSurface(r.MaxChannels)
		h, err := sim.NewHardware(surf, sim.HardwareConfig{
			SampleRateHz: r.SampleRateHz,
			PRNs:         r.PRNs,
			Week:         r.Hardware.StartWeek,
			StartTOW:     r.Hardware.StartTOW,
		})
		if err != nil {
			return nil, err
		}
		return &hardware{
			regs: surf,
			corr: h,
			start: func(g *group, b *bridge.Bridge, _ *metrics.Metrics, _ chan<- poller.PollResult) error {
				surf.Connect(b)
				g.Go(h.Run)
				return nil
			},
			close: func() error { return nil },
		}, nil

	case config.SourceModbus:
		mirror, err := poller.BuildMirror(r)
		if err != nil {
			return nil, err
		}
		return &hardware{
			regs: mirror,
			corr: mirror,
			start: func(g *group, b *bridge.Bridge, m *metrics.Metrics, out chan<- poller.PollResult) error {
				p, err := poller.New(poller.Config{Interval: config.Ms(r.Hardware.PollIntervalMs)}, mirror, b, m)
				if err != nil {
					return err
				}
				g.Go(func(ctx context.Context) { p.Run(ctx, out) })
				return nil
			},
			close: mirror.Close,
		}, nil
	}

	return nil, fmt.Errorf("unknown source %q", r.Hardware.Source)
}

// forward turns bridge and poller results into status events.
func forward(ctx context.Context, results <-chan bridge.Result, polls <-chan poller.PollResult, events chan<- status.Event) {
	for {
		var ev status.Event

		select {
		case <-ctx.Done():
			return
		case res := <-results:
			ev = status.Event{Source: status.SourceBridge, ErrorMask: res.ErrorMask}
		case res := <-polls:
			ev = status.Event{Source: status.SourcePoll, Err: res.Err}
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func logArchived(a *archive.Archive, prns []uint8) {
	for _, prn := range prns {
		eph, ok, err := a.Latest(prn)
		if err != nil {
			log.Printf("archive: %v", err)
			return
		}
		if ok {
			log.Printf("archive: PRN %02d last archived IODE %d, toe %s", prn, eph.IODE, eph.TOE)
		}
	}
}
