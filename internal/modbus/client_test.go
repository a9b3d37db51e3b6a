// internal/modbus/client_test.go
package modbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackUnpackRegistersBigEndian(t *testing.T) {
	raw := packRegisters([]uint16{0x1234, 0xABCD})
	require.Equal(t, []byte{0x12, 0x34, 0xAB, 0xCD}, raw)
	require.Equal(t, []uint16{0x1234, 0xABCD}, unpackRegisters(raw))
}

func TestNewEndpointClientRejectsBadConfig(t *testing.T) {
	_, err := NewEndpointClient(Config{})
	require.Error(t, err)

	_, err = NewEndpointClient(Config{Endpoint: "x", Transport: "udp"})
	require.Error(t, err)
}
