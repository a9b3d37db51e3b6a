// internal/modbus/client.go
package modbus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

const (
	TransportTCP = "tcp"
	TransportRTU = "rtu"
)

// handler is the part of a goburrow handler the client owns.
type handler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// EndpointClient is a single connection to one Modbus endpoint.
// It serializes requests because it mutates the slave id per write.
type EndpointClient struct {
	mu       sync.Mutex
	handler  handler
	client   modbus.Client
	setSlave func(uint8)
	unitID   uint8
}

type Config struct {
	Transport string // tcp (default) | rtu
	Endpoint  string // host:port or serial device
	BaudRate  int
	UnitID    uint8
	Timeout   time.Duration
}

// NewEndpointClient connects once. No retries.
func NewEndpointClient(cfg Config) (*EndpointClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("modbus: endpoint required")
	}

	c := &EndpointClient{unitID: cfg.UnitID}

	switch cfg.Transport {
	case "", TransportTCP:
		h := modbus.NewTCPClientHandler(cfg.Endpoint)
		h.Timeout = cfg.Timeout
		h.SlaveId = cfg.UnitID
		c.handler = h
		c.setSlave = func(id uint8) { h.SlaveId = id }

	case TransportRTU:
		h := modbus.NewRTUClientHandler(cfg.Endpoint)
		h.BaudRate = cfg.BaudRate
		h.DataBits = 8
		h.Parity = "N"
		h.StopBits = 1
		h.Timeout = cfg.Timeout
		h.SlaveId = cfg.UnitID
		c.handler = h
		c.setSlave = func(id uint8) { h.SlaveId = id }

	default:
		return nil, fmt.Errorf("modbus: unsupported transport %q", cfg.Transport)
	}

	if err := c.handler.Connect(); err != nil {
		return nil, err
	}
	c.client = modbus.NewClient(c.handler)

	return c, nil
}

func (c *EndpointClient) Close() error {
	if c == nil || c.handler == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

// ReadRegisters reads qty holding registers from the configured unit.
func (c *EndpointClient) ReadRegisters(addr, qty uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setSlave(c.unitID)

	raw, err := c.client.ReadHoldingRegisters(addr, qty)
	if err != nil {
		return nil, err
	}
	if len(raw) != int(qty)*2 {
		return nil, fmt.Errorf("modbus: short read: got %d bytes want %d", len(raw), int(qty)*2)
	}
	return unpackRegisters(raw), nil
}

// ReadUint32s reads n 32-bit values stored high word first.
func (c *EndpointClient) ReadUint32s(addr uint16, n int) ([]uint32, error) {
	regs, err := c.ReadRegisters(addr, uint16(n*2))
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(regs[2*i])<<16 | uint32(regs[2*i+1])
	}
	return out, nil
}

// WriteUint32 writes one 32-bit value (high word first) to the configured unit.
func (c *EndpointClient) WriteUint32(addr uint16, v uint32) error {
	return c.WriteRegisters(c.unitID, addr, []uint16{uint16(v >> 16), uint16(v)})
}

// WriteRegisters writes regs starting at addr on unitID.
func (c *EndpointClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setSlave(unitID)

	_, err := c.client.WriteMultipleRegisters(addr, uint16(len(regs)), packRegisters(regs))
	return err
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}
