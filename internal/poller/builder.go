// internal/poller/builder.go
package poller

import (
	cfg "github.com/tamzrod/nap-bridge/internal/config"
	"github.com/tamzrod/nap-bridge/internal/modbus"
	"github.com/tamzrod/nap-bridge/internal/nap"
)

// BuildMirror constructs the NAP register mirror and wires the Modbus
// client lifecycle. The connection is reused while healthy. On transport
// death the mirror discards the client and dials again on a later refresh.
func BuildMirror(r cfg.ReceiverConfig) (*nap.Mirror, error) {
	hw := r.Hardware

	// client factory: ONE attempt per call
	factory := func() (nap.RegisterClient, error) {
		c, err := modbus.NewEndpointClient(modbus.Config{
			Transport: hw.Transport,
			Endpoint:  hw.Endpoint,
			BaudRate:  hw.BaudRate,
			UnitID:    hw.UnitID,
			Timeout:   cfg.Ms(hw.TimeoutMs),
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	// initial client (fail fast at startup)
	client, err := factory()
	if err != nil {
		return nil, err
	}

	m, err := nap.NewMirror(hw.BaseAddress, r.MaxChannels, client, factory)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	// prime the shadow so Setup sees real STATUS and HASH_STATUS
	if _, err := m.Refresh(); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}
