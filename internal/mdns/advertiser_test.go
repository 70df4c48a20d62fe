package mdns

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestTXTFields(t *testing.T) {
	txt := TXT(Info{
		DeviceID: "abc123def456",
		Name:     "Porch Camera",
		Version:  "0.1.0",
		Port:     5000,
		AuthMode: "token",
	})

	require.Equal(t, []string{
		"id=abc123def456",
		"name=Porch Camera",
		"ver=0.1.0",
		"caps=stream,motion,snapshots",
		"auth=token",
		"api=v1",
		"path=/status",
		"proto=http",
	}, txt)
}

func TestShutdownWithoutStart(t *testing.T) {
	a := New(zerolog.Nop())
	a.Shutdown()
	a.Shutdown()
}
