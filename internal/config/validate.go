// internal/config/validate.go
package config

import (
	"fmt"

	"github.com/tamzrod/nap-bridge/internal/nap"
	"github.com/tamzrod/nap-bridge/internal/timer"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	r := &cfg.Receiver

	// ------------------------------------------------------------
	// RECEIVER
	// ------------------------------------------------------------

	for i := 0; i < len(r.Name); i++ {
		if r.Name[i] > 0x7F {
			return fmt.Errorf("name must contain ASCII characters only")
		}
	}
	if r.SampleRateHz <= 0 {
		return fmt.Errorf("sample_rate_hz must be > 0")
	}
	if r.MaxChannels < 1 || r.MaxChannels > nap.MaxTrackChannels {
		return fmt.Errorf("max_channels must be in 1..%d", nap.MaxTrackChannels)
	}
	if len(r.PRNs) > r.MaxChannels {
		return fmt.Errorf("%d prns listed for %d channels", len(r.PRNs), r.MaxChannels)
	}
	seen := make(map[uint8]int)
	for i, prn := range r.PRNs {
		if prn < 1 || prn > 32 {
			return fmt.Errorf("prns[%d]: PRN %d out of range 1..32", i, prn)
		}
		if prev, ok := seen[prn]; ok {
			return fmt.Errorf("prns[%d]: PRN %d already assigned to channel %d", i, prn, prev)
		}
		seen[prn] = i
	}

	// ------------------------------------------------------------
	// HARDWARE
	// ------------------------------------------------------------

	hw := r.Hardware
	switch hw.Source {
	case SourceSim:
	case SourceModbus:
		if hw.Endpoint == "" {
			return fmt.Errorf("hardware: endpoint is required for source %q", hw.Source)
		}
		switch hw.Transport {
		case TransportTCP:
		case TransportRTU:
			if hw.BaudRate <= 0 {
				return fmt.Errorf("hardware: baud_rate is required for rtu")
			}
		default:
			return fmt.Errorf("hardware: unknown transport %q", hw.Transport)
		}
		if hw.PollIntervalMs <= 0 {
			return fmt.Errorf("hardware: poll_interval_ms must be > 0")
		}
	default:
		return fmt.Errorf("hardware: unknown source %q", hw.Source)
	}
	if hw.TimeoutMs <= 0 {
		return fmt.Errorf("hardware: timeout_ms must be > 0")
	}

	// ------------------------------------------------------------
	// TIMING
	// ------------------------------------------------------------

	if r.Bridge.ProcessPeriodMs <= 0 {
		return fmt.Errorf("bridge: process_period_ms must be > 0")
	}
	if r.Nav.PeriodMs <= 0 {
		return fmt.Errorf("nav: period_ms must be > 0")
	}
	if r.Nav.ReferenceWeek < 0 {
		return fmt.Errorf("nav: reference_week must be >= 0")
	}

	// the 64-bit timer is only correct if sampled at least once per wrap
	wrap := timer.WrapPeriod(r.SampleRateHz)
	if keep := Ms(r.Timer.KeepIntervalMs); keep <= 0 || keep >= wrap {
		return fmt.Errorf("timer: keep_interval_ms must be > 0 and below the counter wrap period (%s)", wrap)
	}

	if r.Watchdog.TimeoutMs <= 0 || r.Watchdog.CheckIntervalMs <= 0 {
		return fmt.Errorf("watchdog: timeout_ms and check_interval_ms must be > 0")
	}
	if r.Watchdog.TimeoutMs <= r.Bridge.ProcessPeriodMs {
		return fmt.Errorf("watchdog: timeout_ms must exceed bridge process_period_ms")
	}

	// ------------------------------------------------------------
	// DEVICE STATUS BLOCK VALIDATION (OPT-IN)
	// ------------------------------------------------------------

	if s := r.Status; s != nil {
		if s.Endpoint == "" {
			return fmt.Errorf("status: endpoint is required")
		}
		// device_name sanity (ASCII only)
		for i := 0; i < len(s.DeviceName); i++ {
			if s.DeviceName[i] > 0x7F {
				return fmt.Errorf("status: device_name must contain ASCII characters only")
			}
		}
		// the status block shares the device with the NAP block over modbus
		if hw.Source == SourceModbus && s.Endpoint == hw.Endpoint && s.UnitID == hw.UnitID {
			if overlaps(s.BaseSlot, hw.BaseAddress, r.MaxChannels) {
				return fmt.Errorf(
					"status: slot %d overlaps the NAP register block at %d on %s unit %d",
					s.BaseSlot, hw.BaseAddress, s.Endpoint, s.UnitID,
				)
			}
		}
	}

	if a := r.Archive; a != nil && a.Path == "" {
		return fmt.Errorf("archive: path is required")
	}

	return nil
}

// overlaps reports whether a status slot and the NAP register block share
// any holding register (inclusive ranges).
func overlaps(slot, base uint16, channels int) bool {
	sStart := int(slot) * statusSlotSize
	sEnd := sStart + statusSlotSize - 1

	nStart := int(base)
	nEnd := nStart + int(nap.OffsetCorrelation) + 2*channels - 1

	return !(sEnd < nStart || sStart > nEnd)
}
