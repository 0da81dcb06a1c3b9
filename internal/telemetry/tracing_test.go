package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupNoopWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), " ", "escrow-hub")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupWithEndpointShutsDownCleanly(t *testing.T) {
	// Non-routable address; no spans are recorded so nothing is exported.
	shutdown, err := Setup(context.Background(), "http://192.0.2.1:4318", "escrow-hub")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
