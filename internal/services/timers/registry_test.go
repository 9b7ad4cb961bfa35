package timers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mcoot/escaperoom/internal/dependencies/mocks"
)

func newRegistry() (*Registry, *mocks.MockClock) {
	clk := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	return New(clk), clk
}

func TestScheduleFiresOnce(t *testing.T) {
	r, clk := newRegistry()
	calls := 0

	r.Schedule("k", time.Minute, func() { calls++ })
	assert.True(t, r.Pending("k"))

	clk.Advance(time.Minute)
	clk.Advance(time.Minute)

	assert.Equal(t, 1, calls)
	assert.False(t, r.Pending("k"))
}

func TestRescheduleReplacesPendingTimer(t *testing.T) {
	r, clk := newRegistry()
	var fired []string

	r.Schedule("k", time.Minute, func() { fired = append(fired, "first") })
	clk.Advance(30 * time.Second)
	r.Schedule("k", time.Minute, func() { fired = append(fired, "second") })

	clk.Advance(45 * time.Second)
	assert.Empty(t, fired, "first timer must not fire once replaced")

	clk.Advance(15 * time.Second)
	assert.Equal(t, []string{"second"}, fired)
	assert.Equal(t, 0, r.Len())
}

func TestCancel(t *testing.T) {
	r, clk := newRegistry()
	called := false

	r.Schedule("k", time.Minute, func() { called = true })
	assert.True(t, r.Cancel("k"))
	assert.False(t, r.Cancel("k"))

	clk.Advance(time.Hour)
	assert.False(t, called)
	assert.Equal(t, 0, clk.PendingTimers())
}

func TestCallbackMayRescheduleItself(t *testing.T) {
	r, clk := newRegistry()
	ticks := 0

	var tick func()
	tick = func() {
		ticks++
		if ticks < 3 {
			r.Schedule("tick", time.Second, tick)
		}
	}
	r.Schedule("tick", time.Second, tick)

	clk.Advance(10 * time.Second)

	assert.Equal(t, 3, ticks)
	assert.False(t, r.Pending("tick"))
}

func TestKeysAreDistinct(t *testing.T) {
	assert.NotEqual(t, RoomDeletionKey("ABC234"), TickKey("ABC234"))
	assert.NotEqual(t, PlayerRemovalKey("ABC234", "p1"), PlayerRemovalKey("ABC234", "p2"))
}
