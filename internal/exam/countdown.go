package exam

import (
	"context"
	"sync"
	"time"
)

// Ticker delivers the countdown's one-second ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker with the given period.
type TickerFunc func(d time.Duration) Ticker

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker is the TickerFunc backed by time.Ticker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Countdown counts remaining seconds down to zero in its own goroutine.
// onExpire runs at most once, from the countdown goroutine, when the count
// reaches zero.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	expired   bool

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// StartCountdown starts counting down from seconds. onTick (optional) gets
// the remaining seconds after every tick. The countdown stops when ctx is
// cancelled, when Stop is called or after it expires.
func StartCountdown(ctx context.Context, seconds int, newTicker TickerFunc, onTick func(remaining int), onExpire func()) *Countdown {
	if newTicker == nil {
		newTicker = NewTimeTicker
	}
	ctx, cancel := context.WithCancel(ctx)
	c := &Countdown{
		remaining: seconds,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	ticker := newTicker(time.Second)
	go c.run(ctx, ticker, onTick, onExpire)
	return c
}

func (c *Countdown) run(ctx context.Context, ticker Ticker, onTick func(int), onExpire func()) {
	defer close(c.done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			c.mu.Lock()
			if c.remaining > 0 {
				c.remaining--
			}
			remaining := c.remaining
			if remaining == 0 {
				c.expired = true
			}
			c.mu.Unlock()

			if onTick != nil {
				onTick(remaining)
			}
			if remaining == 0 {
				if onExpire != nil {
					onExpire()
				}
				return
			}
		}
	}
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Expired reports whether the count reached zero.
func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// Stop cancels the countdown. It is safe to call more than once and from
// the expiry callback. Stop does not wait; use Done for that.
func (c *Countdown) Stop() {
	c.stopOnce.Do(c.cancel)
}

// Done is closed once the countdown goroutine has exited.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}
