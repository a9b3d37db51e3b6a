// internal/watchdog/watchdog.go
package watchdog

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// ID names one thread that must check in.
type ID string

const (
	NAPISR ID = "nap_isr"
	NavMsg ID = "nav_msg"
)

// Config is the watchdog runtime config.
type Config struct {
	Timeout       time.Duration
	CheckInterval time.Duration
	Required      []ID
}

// Overdue is one id that missed its deadline.
type Overdue struct {
	ID       ID
	LastSeen time.Time // zero if never seen
}

// Watchdog records check-ins and reports ids that went quiet.
type Watchdog struct {
	cfg     Config
	started time.Time
	now     func() time.Time

	mu   sync.Mutex
	last map[ID]time.Time

	// OnOverdue is called from Run for every overdue id (optional).
	OnOverdue func(Overdue)
	// OnRecovered is called from Run once when an overdue id checks in
	// again (optional).
	OnRecovered func(ID)

	// ids reported overdue by the last sweep; Run goroutine only
	overdue map[ID]bool
}

func New(cfg Config) (*Watchdog, error) {
	if cfg.Timeout <= 0 {
		return nil, errors.New("watchdog: timeout must be > 0")
	}
	if cfg.CheckInterval <= 0 {
		return nil, errors.New("watchdog: check interval must be > 0")
	}
	return &Watchdog{
		cfg:     cfg,
		started: time.Now(),
		now:     time.Now,
		last:    make(map[ID]time.Time),
		overdue: make(map[ID]bool),
	}, nil
}

// Notify records that id is alive. Never blocks for long.
func (w *Watchdog) Notify(id ID) {
	t := w.now()
	w.mu.Lock()
	w.last[id] = t
	w.mu.Unlock()
}

// Check returns the required ids not seen within Timeout of now.
// Ids never seen get a grace period of Timeout from start.
func (w *Watchdog) Check(now time.Time) []Overdue {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []Overdue
	for _, id := range w.cfg.Required {
		seen, ok := w.last[id]
		ref := seen
		if !ok {
			ref = w.started
		}
		if now.Sub(ref) > w.cfg.Timeout {
			out = append(out, Overdue{ID: id, LastSeen: seen})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Run checks every CheckInterval and logs overdue and recovered ids.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(w.now())
		}
	}
}

// sweep is one Run check.
func (w *Watchdog) sweep(now time.Time) {
	current := make(map[ID]bool)

	for _, o := range w.Check(now) {
		current[o.ID] = true
		if o.LastSeen.IsZero() {
			log.Printf("watchdog: %s never checked in", o.ID)
		} else {
			log.Printf("watchdog: %s last checked in %s", o.ID,
				humanize.RelTime(o.LastSeen, now, "ago", "from now"))
		}
		if w.OnOverdue != nil {
			w.OnOverdue(o)
		}
	}

	for id := range w.overdue {
		if current[id] {
			continue
		}
		log.Printf("watchdog: %s checked in again", id)
		if w.OnRecovered != nil {
			w.OnRecovered(id)
		}
	}
	w.overdue = current
}
