package battle

import (
	"sync"
	"time"
)

// RoundTimer is the per-round countdown. It ticks once per second,
// reporting the remaining seconds, and fires onExpire when they run
// out. Stop cancels it; Stop and expiry are mutually exclusive, and
// neither holds any room lock while waiting.
type RoundTimer struct {
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func StartRoundTimer(seconds int, tf TickerFactory, onTick func(remaining int), onExpire func()) *RoundTimer {
	t := &RoundTimer{stop: make(chan struct{}), done: make(chan struct{})}

	ticks, cancel := tf.Create(time.Second)
	go func() {
		defer close(t.done)
		defer cancel()

		remaining := seconds
		onTick(remaining)
		for {
			select {
			case <-ticks:
				remaining--
				if remaining <= 0 {
					onExpire()
					return
				}
				onTick(remaining)
			case <-t.stop:
				return
			}
		}
	}()
	return t
}

// Stop cancels the countdown. Safe to call any number of times, from
// any goroutine, including after expiry.
func (t *RoundTimer) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// Done is closed once the countdown goroutine has exited, whether by
// expiry or cancellation.
func (t *RoundTimer) Done() <-chan struct{} {
	return t.done
}
