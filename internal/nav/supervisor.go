// internal/nav/supervisor.go
package nav

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/tamzrod/nap-bridge/internal/metrics"
	"github.com/tamzrod/nap-bridge/internal/track"
	"github.com/tamzrod/nap-bridge/internal/watchdog"
)

// DefaultPeriod is the supervisor cycle period.
const DefaultPeriod = time.Second

// Decoder turns one subframe into ephemeris updates. eph holds the current
// entry for prn and may be modified. Results: negative failure, 0 nothing
// new, positive new data (1: complete ephemeris).
type Decoder interface {
	Decode(prn uint8, subframe []bool, eph *Ephemeris) int
}

// Channels is the tracking side as the supervisor sees it.
type Channels interface {
	Count() int
	TakeSubframe(i int) (track.Record, []bool, bool)
}

type Notifier interface {
	Notify(id watchdog.ID)
}

type Config struct {
	Period time.Duration
}

// Supervisor polls tracking channels for completed subframes and keeps the
// ephemeris table. Only its own goroutine writes the table.
type Supervisor struct {
	cfg      Config
	channels Channels
	dec      Decoder
	rep      Reporter
	wd       Notifier
	m        *metrics.Metrics

	mu       sync.RWMutex
	current  [NumSats]Ephemeris
	previous [NumSats]Ephemeris
}

// New builds a supervisor. wd may be nil.
func New(cfg Config, channels Channels, dec Decoder, rep Reporter, wd Notifier, m *metrics.Metrics) (*Supervisor, error) {
	if channels == nil {
		return nil, errors.New("nav: channels required")
	}
	if dec == nil {
		return nil, errors.New("nav: decoder required")
	}
	if rep == nil {
		return nil, errors.New("nav: reporter required")
	}
	if m == nil {
		return nil, errors.New("nav: metrics required")
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}

	return &Supervisor{
		cfg:      cfg,
		channels: channels,
		dec:      dec,
		rep:      rep,
		wd:       wd,
		m:        m,
	}, nil
}

// Run cycles every Period until ctx is done.
func (s *Supervisor) Run(ctx context.Context) {
	log.Printf("nav: supervisor started (period %s)", s.cfg.Period)

	ticker := time.NewTicker(s.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cycle()
		}
	}
}

// Cycle is one supervisor pass.
func (s *Supervisor) Cycle() {
	s.m.NavCycles.Inc()
	if s.wd != nil {
		s.wd.Notify(watchdog.NavMsg)
	}

	// only this goroutine writes current; reading it here needs no lock
	s.previous = s.current

	var reported [NumSats]bool

	for i := 0; i < s.channels.Count(); i++ {
		rec, sf, ok := s.channels.TakeSubframe(i)
		if !ok {
			continue
		}

		idx, ok := index(rec.PRN)
		if !ok {
			log.Printf("nav: channel %d: PRN %d out of range", i, rec.PRN)
			continue
		}

		scratch := s.current[idx]
		ret := s.dec.Decode(rec.PRN, sf, &scratch)

		r := Report{PRN: rec.PRN, Channel: i, Code: ret}

		if ret < 0 {
			s.m.DecodeFailures.Inc()
			s.rep.DecodeFailed(r)
			continue
		}

		if ret > 0 {
			s.mu.Lock()
			s.current[idx] = scratch
			s.mu.Unlock()
		}

		eph := s.current[idx]
		r.Ephemeris = eph

		if ret == 1 && !eph.Healthy {
			s.m.Unhealthy.Inc()
			s.rep.Unhealthy(r)
		}

		if reported[idx] || eph.Equal(s.previous[idx]) {
			continue
		}
		reported[idx] = true

		if rec.TOWms >= 0 {
			r.Time = ResolveWeek(eph.TOE, rec.TOWms)
			r.TimeKnown = true
		}
		s.m.NewEphemerides.Inc()
		s.rep.NewEphemeris(r)
	}
}

// Ephemeris returns the current entry for prn.
func (s *Supervisor) Ephemeris(prn uint8) (Ephemeris, bool) {
	idx, ok := index(prn)
	if !ok {
		return Ephemeris{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.current[idx]
	return e, e.Valid
}

// Valid returns every valid entry, by PRN order.
func (s *Supervisor) Valid() []Ephemeris {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Ephemeris
	for _, e := range s.current {
		if e.Valid {
			out = append(out, e)
		}
	}
	return out
}

// ValidCount is len(Valid()) without the copy.
func (s *Supervisor) ValidCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.current {
		if e.Valid {
			n++
		}
	}
	return n
}
