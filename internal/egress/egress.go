// Package egress implements a per-destination sliding-window rate limiter
// in front of an arbitrary send delegate, preserving FIFO order across
// concurrent callers and never dropping a message.
package egress

import (
	"context"
	"sync"
	"time"
)

// Sender delegates the actual transport; implemented by a channel binding
// (e.g. Discord) in production and a recording fake in tests.
type Sender func(ctx context.Context, payload any) error

// DefaultWindow and DefaultMax match the built-in 5 messages / 5 seconds
// sliding window.
const (
	DefaultMax    = 5
	DefaultWindow = 5 * time.Second
)

// Limiter rate-limits sends to one destination. The zero value is not
// usable; construct with New.
type Limiter struct {
	max    int
	window time.Duration
	send   Sender

	mu         sync.Mutex
	timestamps []time.Time
	now        func() time.Time
	sleep      func(context.Context, time.Duration) error
}

// New constructs a Limiter with the given window and send delegate. A
// max <= 0 or window <= 0 falls back to the defaults.
func New(max int, window time.Duration, send Sender) *Limiter {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		max:    max,
		window: window,
		send:   send,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send blocks until the sliding window has room, then delegates. The
// mutex is held for the full wait so that concurrent callers are served
// in FIFO order: whichever goroutine is first to acquire the lock is the
// first to have its timestamp admitted and its delegate invoked.
func (l *Limiter) Send(ctx context.Context, payload any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		now := l.now()
		l.evict(now)
		if len(l.timestamps) < l.max {
			break
		}
		wait := l.window - now.Sub(l.timestamps[0])
		if wait <= 0 {
			continue
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
	l.timestamps = append(l.timestamps, l.now())
	return l.send(ctx, payload)
}

func (l *Limiter) evict(now time.Time) {
	cut := 0
	for cut < len(l.timestamps) && now.Sub(l.timestamps[cut]) >= l.window {
		cut++
	}
	if cut > 0 {
		l.timestamps = append([]time.Time{}, l.timestamps[cut:]...)
	}
}
