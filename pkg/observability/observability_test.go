package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "hedgeledger", config.ServiceName)
	require.Equal(t, "development", config.Environment)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.True(t, config.Enabled)
	require.False(t, config.Insecure)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)

	// Recording methods must be safe no-ops when disabled.
	ctx := context.Background()
	p.RecordPosting(ctx, AttrEventType.String("HEDGE_SETTLEMENT"))
	p.RecordFailure(ctx, "PERIOD_CLOSED")
	p.RecordDuration(ctx, 42*time.Millisecond)
	require.NoError(t, p.Shutdown(ctx))
}

func TestTrackPostingDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx, finish := p.TrackPosting(context.Background(), "EVT-1",
		AttrEventType.String("HEDGE_SETTLEMENT"),
		attribute.String("posting_model", "ACCRUAL"),
	)
	require.NotNil(t, ctx)
	finish("JOURNAL_IMBALANCE", errors.New("ledger GL out of balance"))
}

func TestTracerAndMeterFallBackToGlobals(t *testing.T) {
	p := &Provider{}
	require.NotNil(t, p.Tracer())
	require.NotNil(t, p.Meter())
}
