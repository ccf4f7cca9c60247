package opcua

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/domain"
)

func loopbackEndpoint(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return fmt.Sprintf("opc.tcp://127.0.0.1:%d", port)
}

func TestAddressSpaceStartsWithZeroValues(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	as, err := NewAddressSpace(Config{Endpoint: loopbackEndpoint(t)}, domain.Machines)
	require.NoError(t, err)
	require.NoError(t, as.Start(ctx))
	defer as.Stop()

	for _, m := range domain.Machines {
		got, err := as.ReadPayload(ctx, m)
		require.NoError(t, err)
		require.Equal(t, domain.Payload{}, got)
	}
	require.Error(t, as.Start(ctx), "second start must fail")
}

func TestWriterRoundTripThroughAddressSpace(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := Config{Endpoint: loopbackEndpoint(t)}
	as, err := NewAddressSpace(cfg, domain.Machines)
	require.NoError(t, err)
	require.NoError(t, as.Start(ctx))
	defer as.Stop()

	w, err := NewWriter(cfg)
	require.NoError(t, err)
	require.NoError(t, w.Connect(ctx))
	defer w.Close(ctx)

	m := domain.Machines[1]
	want := domain.Payload{Timestamp: "2025-03-28T05:46:57.513491", Temperature: 27.31, Pressure: 1003.2}
	require.NoError(t, w.WritePayload(ctx, m, want))

	got, err := as.ReadPayload(ctx, m)
	require.NoError(t, err)
	require.Equal(t, want, got)

	other, err := as.ReadPayload(ctx, domain.Machines[0])
	require.NoError(t, err)
	require.Equal(t, domain.Payload{}, other)
}
