// Package timer implements the exam countdown.
//
// A Timer counts down whole seconds from a duration given in minutes. Every
// second it reports the elapsed time in fractional minutes through onTick, and
// when the countdown reaches zero it calls onTimeUp exactly once.
//
// Callbacks run on the timer's own goroutine. Stop may be called from any
// goroutine, including from inside a callback. Once Stop has returned true
// onTimeUp never fires and no new onTick begins. A tick callback already
// running when Stop is called finishes; callers that need to wait for it
// receive from Done after Stop.
package timer

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// TickInterval is the countdown granularity.
const TickInterval = time.Second

// Ticker delivers ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock creates tickers. Tests substitute a manual clock.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

type realClock struct{}

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// IntervalClock ticks every Interval regardless of the requested duration.
// Useful for accelerated countdowns in demos and tests.
type IntervalClock struct {
	Interval time.Duration
}

// NewTicker implements Clock.
func (c IntervalClock) NewTicker(time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(c.Interval)}
}

// Option configures a Timer.
type Option func(*Timer)

// WithClock replaces the wall clock tick source.
func WithClock(c Clock) Option {
	return func(t *Timer) {
		if c != nil {
			t.clock = c
		}
	}
}

// Timer is a cancellable one-second countdown.
type Timer struct {
	initial   int
	remaining atomic.Int64

	onTick   func(elapsedMinutes float64)
	onTimeUp func()
	clock    Clock

	started  atomic.Bool
	finished atomic.Bool

	// tickMu covers the finished check and the onTick call of one tick.
	tickMu sync.Mutex
	inTick atomic.Bool

	quit     chan struct{}
	done     chan struct{}
	quitOnce sync.Once
}

// New creates a countdown of durationMinutes. Either callback may be nil.
func New(durationMinutes float64, onTick func(elapsedMinutes float64), onTimeUp func(), opts ...Option) *Timer {
	secs := 0
	if durationMinutes > 0 && !math.IsInf(durationMinutes, 1) {
		secs = int(math.Round(durationMinutes * 60))
	}

	t := &Timer{
		initial:  secs,
		onTick:   onTick,
		onTimeUp: onTimeUp,
		clock:    realClock{},
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	t.remaining.Store(int64(secs))

	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins the countdown. A zero duration fires onTimeUp immediately,
// on the caller's goroutine, without ticking. Calling Start twice is a no-op.
func (t *Timer) Start() {
	if !t.started.CompareAndSwap(false, true) {
		return
	}

	if t.initial <= 0 {
		t.expire()
		close(t.done)
		return
	}

	ticker := t.clock.NewTicker(TickInterval)
	go t.run(ticker)
}

func (t *Timer) run(ticker Ticker) {
	defer close(t.done)
	defer ticker.Stop()

	for {
		select {
		case <-t.quit:
			return
		case <-ticker.C():
			left, ok := t.tick()
			if !ok {
				return
			}
			if left <= 0 {
				t.expire()
				return
			}
		}
	}
}

// tick counts one second down and reports it, unless Stop got there first.
func (t *Timer) tick() (int64, bool) {
	t.tickMu.Lock()
	defer t.tickMu.Unlock()

	if t.finished.Load() {
		return 0, false
	}
	left := t.remaining.Add(-1)
	if t.onTick != nil {
		t.inTick.Store(true)
		t.onTick(float64(int64(t.initial)-left) / 60)
		t.inTick.Store(false)
	}
	return left, true
}

// expire marks the countdown finished and fires onTimeUp unless Stop won.
func (t *Timer) expire() {
	if !t.finished.CompareAndSwap(false, true) {
		return
	}
	if t.onTimeUp != nil {
		t.onTimeUp()
	}
}

// Stop cancels the countdown. It reports whether it cancelled a countdown
// that had not yet expired. Safe to call repeatedly and from callbacks.
func (t *Timer) Stop() bool {
	stopped := t.finished.CompareAndSwap(false, true)
	t.quitOnce.Do(func() { close(t.quit) })
	if !t.inTick.Load() {
		// Wait out a tick that passed its check before finished was set.
		// Skipped while onTick runs so Stop can be called from it.
		t.tickMu.Lock()
		t.tickMu.Unlock()
	}
	if !t.started.Load() {
		// Never started: nothing will close done.
		if t.started.CompareAndSwap(false, true) {
			close(t.done)
		}
	}
	return stopped
}

// Remaining returns the seconds left on the countdown.
func (t *Timer) Remaining() int {
	r := t.remaining.Load()
	if r < 0 {
		return 0
	}
	return int(r)
}

// Initial returns the starting number of seconds.
func (t *Timer) Initial() int { return t.initial }

// Done is closed once the countdown goroutine has exited.
func (t *Timer) Done() <-chan struct{} { return t.done }

// FormatRemaining renders seconds as m:ss, e.g. 125 → "2:05".
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
