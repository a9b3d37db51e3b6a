// internal/nav/reporter.go
package nav

import "log"

// Report is what the supervisor knows about one decode outcome.
type Report struct {
	PRN       uint8
	Channel   int
	Code      int // decoder result
	Ephemeris Ephemeris
	Time      GPSTime
	TimeKnown bool // false when the channel had no TOW estimate
}

// Reporter receives supervisor events. Calls come from the supervisor
// goroutine only.
type Reporter interface {
	DecodeFailed(r Report)
	Unhealthy(r Report)
	NewEphemeris(r Report)
}

// LogReporter writes events to the standard logger.
type LogReporter struct{}

func (LogReporter) DecodeFailed(r Report) {
	log.Printf("nav: PRN %02d (ch %d): decode failed: %d", r.PRN, r.Channel, r.Code)
}

func (LogReporter) Unhealthy(r Report) {
	log.Printf("nav: PRN %02d unhealthy (health 0x%02X)", r.PRN, r.Ephemeris.Health)
}

func (LogReporter) NewEphemeris(r Report) {
	if !r.TimeKnown {
		log.Printf("nav: PRN %02d: new ephemeris, IODE %d, toe %s", r.PRN, r.Ephemeris.IODE, r.Ephemeris.TOE)
		return
	}
	log.Printf("nav: PRN %02d: new ephemeris, IODE %d, toe %s, t %s",
		r.PRN, r.Ephemeris.IODE, r.Ephemeris.TOE, r.Time)
}

// MultiReporter fans events out in order.
type MultiReporter []Reporter

func (m MultiReporter) DecodeFailed(r Report) {
	for _, rep := range m {
		rep.DecodeFailed(r)
	}
}

func (m MultiReporter) Unhealthy(r Report) {
	for _, rep := range m {
		rep.Unhealthy(r)
	}
}

func (m MultiReporter) NewEphemeris(r Report) {
	for _, rep := range m {
		rep.NewEphemeris(r)
	}
}
