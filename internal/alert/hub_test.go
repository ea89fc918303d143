package alert

import (
	"context"
	"errors"
	"testing"

	"github.com/couchcryptid/disaster-alert-service/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() (*Hub, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	return NewHub(m.AlertHubDropped), m
}

func TestHub_DeliversByRegionKey(t *testing.T) {
	h, _ := newTestHub()
	kerala, stopKerala := h.Subscribe("alerts:india:kerala", 1)
	goa, stopGoa := h.Subscribe("alerts:india:goa", 1)
	defer stopGoa()

	summaries := []Summary{{ID: "e1"}}
	require.NoError(t, h.Publish(context.Background(), "alerts:india:kerala", summaries))

	msg := <-kerala
	assert.Equal(t, "alerts:india:kerala", msg.RegionKey)
	assert.Equal(t, summaries, msg.Summaries)
	assert.Empty(t, goa)

	stopKerala()
	stopKerala()
	_, open := <-kerala
	assert.False(t, open, "unsubscribe closes the channel")
	require.NoError(t, h.Publish(context.Background(), "alerts:india:kerala", summaries))
}

func TestHub_FullBufferDrops(t *testing.T) {
	h, m := newTestHub()
	ch, stop := h.Subscribe("k", 1)
	defer stop()

	require.NoError(t, h.Publish(context.Background(), "k", nil))
	require.NoError(t, h.Publish(context.Background(), "k", nil))
	assert.Len(t, ch, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertHubDropped))
}

func TestHub_AllRegions(t *testing.T) {
	h, _ := newTestHub()
	all, stop := h.Subscribe(AllRegions, 2)
	defer stop()

	require.NoError(t, h.Publish(context.Background(), "alerts:india:kerala", nil))
	require.NoError(t, h.Publish(context.Background(), "alerts:india:goa", nil))
	assert.Equal(t, "alerts:india:kerala", (<-all).RegionKey)
	assert.Equal(t, "alerts:india:goa", (<-all).RegionKey)
}

type publisherFunc func(context.Context, string, []Summary) error

func (f publisherFunc) Publish(ctx context.Context, key string, s []Summary) error {
	return f(ctx, key, s)
}

func TestFanout_AttemptsEveryPublisher(t *testing.T) {
	var calls int
	ok := publisherFunc(func(context.Context, string, []Summary) error { calls++; return nil })
	boom := errors.New("broker unavailable")
	bad := publisherFunc(func(context.Context, string, []Summary) error { calls++; return boom })

	err := Fanout{bad, ok}.Publish(context.Background(), "k", nil)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)

	require.NoError(t, Fanout{ok}.Publish(context.Background(), "k", nil))
}
