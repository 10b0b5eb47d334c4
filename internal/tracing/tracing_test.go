package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), false, "", "dm-service", "test", zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupEnabledIsLazy(t *testing.T) {
	// the exporter connects lazily, so an unreachable endpoint still sets up
	shutdown, err := Setup(context.Background(), true, "127.0.0.1:1", "dm-service", "test", zap.NewNop())
	require.NoError(t, err)
	_ = shutdown(context.Background())
}
