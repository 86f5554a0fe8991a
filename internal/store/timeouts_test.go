package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable clock safe for concurrent use.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTimeoutsStatus(t *testing.T) {
	clock := newFakeClock()
	tm := NewTimeoutsWithClock(testLogger(), clock.Now)

	_, ok := tm.Status(CategoryPixel, "u1")
	assert.False(t, ok)

	span, ok := tm.Begin(CategoryPixel, "u1", 30*time.Second)
	require.True(t, ok)
	assert.True(t, span.Ends.After(span.Started))

	clock.Advance(10 * time.Second)
	st, ok := tm.Status(CategoryPixel, "u1")
	require.True(t, ok)
	assert.Equal(t, int64(20000), st.RemainingMS)
	assert.Equal(t, int64(10000), st.ElapsedMS)
	assert.Equal(t, span.Ends, st.EndsAt)
	assert.Equal(t, clock.Now(), st.CheckedAt)

	_, ok = tm.Status(CategoryComment, "u1")
	assert.False(t, ok, "categories are independent")
}

func TestTimeoutsLazyExpiry(t *testing.T) {
	clock := newFakeClock()
	tm := NewTimeoutsWithClock(testLogger(), clock.Now)
	tm.Begin(CategoryPixel, "u1", time.Second)

	clock.Advance(time.Second)
	_, ok := tm.Status(CategoryPixel, "u1")
	assert.False(t, ok, "a span is never active at its end instant")
	assert.Equal(t, 0, tm.Len(), "reading an expired span deletes it")
}

func TestTimeoutsBeginOverwrites(t *testing.T) {
	clock := newFakeClock()
	tm := NewTimeoutsWithClock(testLogger(), clock.Now)
	tm.Begin(CategoryPixel, "u1", time.Minute)
	clock.Advance(5 * time.Second)
	tm.Begin(CategoryPixel, "u1", 10*time.Second)

	st, ok := tm.Status(CategoryPixel, "u1")
	require.True(t, ok)
	assert.Equal(t, int64(10000), st.RemainingMS)
	assert.Equal(t, 1, tm.Len())
}

func TestTimeoutsNonPositiveDurationClears(t *testing.T) {
	tm := NewTimeoutsWithClock(testLogger(), newFakeClock().Now)
	tm.Begin(CategoryPixel, "u1", time.Minute)

	_, ok := tm.Begin(CategoryPixel, "u1", 0)
	assert.False(t, ok)
	_, ok = tm.Status(CategoryPixel, "u1")
	assert.False(t, ok)
}

func TestTimeoutsClear(t *testing.T) {
	tm := NewTimeoutsWithClock(testLogger(), newFakeClock().Now)
	tm.Begin(CategoryPixel, "u1", time.Minute)
	tm.Clear(CategoryPixel, "u1")
	tm.Clear(CategoryPixel, "nobody")

	_, ok := tm.Status(CategoryPixel, "u1")
	assert.False(t, ok)
}

func TestTimeoutsSweep(t *testing.T) {
	clock := newFakeClock()
	tm := NewTimeoutsWithClock(testLogger(), clock.Now)
	tm.Begin(CategoryPixel, "short", time.Second)
	tm.Begin(CategoryComment, "short", time.Second)
	tm.Begin(CategoryPixel, "long", time.Hour)

	clock.Advance(2 * time.Second)
	assert.Equal(t, 2, tm.Sweep())
	assert.Equal(t, 1, tm.Len())
	assert.Equal(t, 0, tm.Sweep())
}

func TestTimeoutsRunStopsOnCancel(t *testing.T) {
	tm := NewTimeouts(testLogger())
	tm.Begin(CategoryPixel, "u1", time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tm.Run(ctx, 5*time.Millisecond) }()

	assert.Eventually(t, func() bool { return tm.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestTimeoutsTryBegin(t *testing.T) {
	clock := newFakeClock()
	tm := NewTimeoutsWithClock(testLogger(), clock.Now)

	_, ok := tm.TryBegin(CategoryPixel, "u1", 30*time.Second)
	require.True(t, ok)

	clock.Advance(12 * time.Second)
	st, ok := tm.TryBegin(CategoryPixel, "u1", 30*time.Second)
	assert.False(t, ok)
	assert.Equal(t, int64(18000), st.RemainingMS)

	clock.Advance(18 * time.Second)
	_, ok = tm.TryBegin(CategoryPixel, "u1", 30*time.Second)
	assert.True(t, ok, "an expired span does not block")

	_, ok = tm.TryBegin(CategoryComment, "u2", 0)
	assert.True(t, ok)
	assert.Equal(t, 1, tm.Len(), "a zero cooldown records nothing")
}
