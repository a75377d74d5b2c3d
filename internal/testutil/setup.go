package testutil

import (
	"io"
	"log/slog"
	"testing"

	"takeoffs/internal/telemetry"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

// NewMockDB creates a pgxmock pool and automatically handles cleanup via t.Cleanup
func NewMockDB(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)

	t.Cleanup(func() {
		mockPool.Close()
	})

	return mockPool
}

// NewTestLogger creates a standardized logger for tests. Swap io.Discard for
// os.Stdout when debugging with -v.
func NewTestLogger() *slog.Logger {
	baseHandler := slog.NewJSONHandler(io.Discard, nil)
	return slog.New(telemetry.NewTraceHandler(baseHandler))
}
