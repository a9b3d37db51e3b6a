// internal/poller/types.go
package poller

import "time"

// PollResult is a snapshot produced by one poll cycle.
type PollResult struct {
	At time.Time

	// Pending is the TRK_IRQ mask as of this refresh.
	Pending uint32

	// Err is a transport failure. Pending is stale when set.
	Err error
}
