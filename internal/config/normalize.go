// internal/config/normalize.go
package config

import "github.com/tamzrod/nap-bridge/internal/status"

// statusSlotSize mirrors the status block geometry for validation.
const statusSlotSize = status.SlotsPerDevice

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	r := &cfg.Receiver

	if r.Name == "" {
		r.Name = "napbridge"
	}

	// ------------------------------------------------------------
	// DEVICE STATUS BLOCK NORMALIZATION (OPT-IN)
	// ------------------------------------------------------------

	if r.Status != nil {
		// Normalize device_name:
		// - ASCII already validated
		// - Truncate to the status block name field
		if r.Status.DeviceName == "" {
			r.Status.DeviceName = r.Name
		}
		if len(r.Status.DeviceName) > status.DeviceNameMaxChars {
			r.Status.DeviceName = r.Status.DeviceName[:status.DeviceNameMaxChars]
		}
	}

	// No other normalization is performed here.
	// Channel assignment and runtime wiring belong to later stages.
}
