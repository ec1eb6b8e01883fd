package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/turbulent-flux-etl/internal/config"
)

func TestNewLogger_Level(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	ctx := context.Background()

	logger := NewLogger(&config.Config{LogLevel: "warn", LogFormat: "json"})
	require.NotNil(t, logger)
	assert.False(t, logger.Enabled(ctx, slog.LevelInfo))
	assert.True(t, logger.Enabled(ctx, slog.LevelWarn))
	assert.Same(t, logger.Handler(), slog.Default().Handler(), "installed as default")

	debug := NewLogger(&config.Config{LogLevel: "DEBUG", LogFormat: "text"})
	assert.True(t, debug.Enabled(ctx, slog.LevelDebug))
}

func TestNewMetricsForTesting_Independent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()

	a.Windows.WithLabelValues("ok").Add(3)
	a.BulkNonConverge.Inc()

	assert.InDelta(t, 3, testutil.ToFloat64(a.Windows.WithLabelValues("ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(a.BulkNonConverge), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(b.BulkNonConverge), 0)
}
