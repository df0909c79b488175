package p2p

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestNodeWeightInitial(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	w := newNodeWeight(clock.Now)

	require.Equal(t, float64(initialSpeed), w.Weight())

	clock.now = clock.now.Add(3 * time.Second)
	require.Equal(t, float64(initialSpeed+3000), w.Weight())
}

func TestNodeWeightPenalties(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	a := newNodeWeight(clock.Now)
	b := newNodeWeight(clock.Now)

	for i := 0; i < 3; i++ {
		b.AddErrorResponse()
	}
	require.Greater(t, a.Weight(), b.Weight())
	require.InDelta(t, a.Weight()/4, b.Weight(), 1e-6)

	c := newNodeWeight(clock.Now)
	require.EqualValues(t, 1, c.AddTimeout())
	require.InDelta(t, a.Weight()/2, c.Weight(), 1e-6)

	timeouts, errs := b.Counters()
	require.Zero(t, timeouts)
	require.EqualValues(t, 3, errs)
}

func TestNodeWeightRollingSamples(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	clock := &fakeClock{now: start}
	w := newNodeWeight(clock.Now)

	for i := 0; i < 3; i++ {
		w.AppendSpeed(300)
		w.AppendRequestTime(start)
	}
	require.Equal(t, float64(300), w.Weight())

	// the fourth sample replaces the oldest one
	w.AppendSpeed(600)
	require.Equal(t, float64(400), w.Weight())

	clock.now = start.Add(time.Second)
	w.AppendRequestTime(clock.now)
	// ages are 1000, 1000 and 0 ms
	require.InDelta(t, 400+2000.0/3, w.Weight(), 1e-9)
}
