// internal/writer/builder.go
package writer

import (
	"errors"

	cfg "github.com/tamzrod/nap-bridge/internal/config"
	"github.com/tamzrod/nap-bridge/internal/modbus"
)

// BuildPlan converts the status config into a StatusPlan.
// Assumes config has already been validated and normalized.
func BuildPlan(s *cfg.StatusConfig) (StatusPlan, error) {
	if s == nil {
		return StatusPlan{}, errors.New("writer: status disabled")
	}
	return StatusPlan{
		Endpoint:   s.Endpoint,
		UnitID:     s.UnitID,
		BaseSlot:   s.BaseSlot,
		DeviceName: s.DeviceName,
	}, nil
}

// Build connects to the status endpoint and returns the writer and its closer.
// A nil status config means status is disabled: all results are nil.
func Build(s *cfg.StatusConfig) (StatusWriter, func() error, error) {
	if s == nil {
		return nil, nil, nil
	}

	plan, err := BuildPlan(s)
	if err != nil {
		return nil, nil, err
	}

	c, err := modbus.NewEndpointClient(modbus.Config{
		Transport: modbus.TransportTCP,
		Endpoint:  plan.Endpoint,
		UnitID:    plan.UnitID,
		Timeout:   cfg.Ms(s.TimeoutMs),
	})
	if err != nil {
		return nil, nil, err
	}

	sw, err := NewDeviceStatusWriter(plan, c)
	if err != nil {
		_ = c.Close()
		return nil, nil, err
	}
	return sw, c.Close, nil
}
