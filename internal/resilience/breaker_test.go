package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(threshold int, reset time.Duration) (*Breaker, *time.Time) {
	b := NewBreaker(BreakerConfig{FailureThreshold: threshold, ResetTimeout: reset})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func failing(ctx context.Context) error { return eris.New("source down") }
func succeeding(ctx context.Context) error { return nil }

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.Error(t, b.Call(ctx, failing))
	}
	assert.Equal(t, StateOpen, b.State())

	// Calls are now rejected without reaching the source.
	err := b.Call(ctx, func(ctx context.Context) error {
		t.Fatal("source called while breaker open")
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	require.Error(t, b.Call(ctx, failing))
	require.Error(t, b.Call(ctx, failing))
	require.NoError(t, b.Call(ctx, succeeding))
	require.Error(t, b.Call(ctx, failing))
	require.Error(t, b.Call(ctx, failing))

	// Only two consecutive failures since the success.
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)
	ctx := context.Background()

	require.Error(t, b.Call(ctx, failing))
	assert.Equal(t, StateOpen, b.State())

	*now = now.Add(2 * time.Minute)
	assert.Equal(t, StateHalfOpen, b.State())

	// A successful probe closes the breaker.
	require.NoError(t, b.Call(ctx, succeeding))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)
	ctx := context.Background()

	require.Error(t, b.Call(ctx, failing))
	*now = now.Add(2 * time.Minute)

	require.Error(t, b.Call(ctx, failing))
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Call(ctx, succeeding), ErrOpen)
}

func TestSourceBreakers_Isolated(t *testing.T) {
	sb := NewSourceBreakers(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	ctx := context.Background()

	require.Error(t, sb.Get("receita-ws").Call(ctx, failing))
	assert.ErrorIs(t, sb.Get("receita-ws").Call(ctx, succeeding), ErrOpen)

	// The other source is unaffected.
	require.NoError(t, sb.Get("serasa").Call(ctx, succeeding))

	states := sb.States()
	assert.Equal(t, "open", states["receita-ws"])
	assert.Equal(t, "closed", states["serasa"])
}
