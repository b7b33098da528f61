package feedback

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTimers collects scheduled callbacks so tests fire them by hand.
type fakeTimers struct {
	mu    sync.Mutex
	fires []func()
	delay []time.Duration
}

type fakeTimer struct{ stopped bool }

func (f *fakeTimer) Stop() bool {
	was := !f.stopped
	f.stopped = true
	return was
}

func (f *fakeTimers) afterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fires = append(f.fires, fn)
	f.delay = append(f.delay, d)
	return &fakeTimer{}
}

func (f *fakeTimers) fire(i int) {
	f.mu.Lock()
	fn := f.fires[i]
	f.mu.Unlock()
	fn()
}

func TestPostAndDismiss(t *testing.T) {
	ft := &fakeTimers{}
	b := NewBoard(WithAfterFunc(ft.afterFunc))

	b.Post(Success("Registered"))
	assert.Equal(t, Success("Registered"), b.Current())
	require.Len(t, ft.delay, 1)
	assert.Equal(t, DefaultDismissAfter, ft.delay[0])

	ft.fire(0)
	assert.True(t, b.Current().IsZero())
}

func TestStaleTimerNeverClearsNewerMessage(t *testing.T) {
	ft := &fakeTimers{}
	b := NewBoard(WithAfterFunc(ft.afterFunc))

	b.Post(Error("first"))
	b.Post(Success("second"))

	// The first timer fires late, after it was superseded.
	ft.fire(0)
	assert.Equal(t, Success("second"), b.Current())

	ft.fire(1)
	assert.True(t, b.Current().IsZero())
}

func TestOnChange(t *testing.T) {
	ft := &fakeTimers{}
	b := NewBoard(WithAfterFunc(ft.afterFunc))

	var seen []Message
	b.OnChange(func(m Message) { seen = append(seen, m) })

	b.Post(Error("Consultants can only register themselves"))
	ft.fire(0)
	b.Clear() // nothing visible, no callback

	assert.Equal(t, []Message{Error("Consultants can only register themselves"), {}}, seen)
}

func TestClear(t *testing.T) {
	ft := &fakeTimers{}
	b := NewBoard(WithAfterFunc(ft.afterFunc))

	b.Post(Success("x"))
	b.Clear()
	assert.True(t, b.Current().IsZero())

	b.Post(Success("y"))
	ft.fire(0)
	assert.Equal(t, Success("y"), b.Current(), "a timer from before Clear is stale")
}

func TestNoDismissWhenDisabled(t *testing.T) {
	ft := &fakeTimers{}
	b := NewBoard(WithDismissAfter(0), WithAfterFunc(ft.afterFunc))

	b.Post(Success("sticky"))
	assert.Empty(t, ft.fires)
	assert.Equal(t, Success("sticky"), b.Current())
}

func TestRealTimer(t *testing.T) {
	b := NewBoard(WithDismissAfter(10 * time.Millisecond))
	b.Post(Success("soon gone"))

	assert.Eventually(t, func() bool { return b.Current().IsZero() }, time.Second, 5*time.Millisecond)
}
