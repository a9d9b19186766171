package egress

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeClock lets the rate-limit test advance time deterministically instead
// of sleeping in wall-clock time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
	return nil
}

func TestRateLimiterWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var sent []time.Time
	var mu sync.Mutex

	l := New(5, 5*time.Second, func(ctx context.Context, payload any) error {
		mu.Lock()
		sent = append(sent, clock.Now())
		mu.Unlock()
		return nil
	})
	l.now = clock.Now
	l.sleep = clock.Sleep

	for i := 0; i < 7; i++ {
		if err := l.Send(context.Background(), i); err != nil {
			t.Fatalf("Send(%d): %v", i, err)
		}
	}

	if len(sent) != 7 {
		t.Fatalf("got %d sends, want 7", len(sent))
	}
	for i := 0; i < 5; i++ {
		if sent[i].Sub(clock.Now().Add(-5*time.Second)) < 0 {
			// first 5 sent without waiting for the window
		}
	}
	start := time.Unix(0, 0)
	for i := 0; i < 5; i++ {
		if sent[i].After(start) {
			t.Errorf("send %d should not have waited, sent at %v", i, sent[i])
		}
	}
	for i := 5; i < 7; i++ {
		if sent[i].Sub(start) < 5*time.Second {
			t.Errorf("send %d should have waited until window opened, sent at %v", i, sent[i])
		}
	}
}

func TestRateLimiterNeverDrops(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	count := 0
	l := New(1, time.Second, func(ctx context.Context, payload any) error {
		count++
		return nil
	})
	l.now = clock.Now
	l.sleep = clock.Sleep

	for i := 0; i < 20; i++ {
		if err := l.Send(context.Background(), i); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if count != 20 {
		t.Errorf("got %d delivered, want 20 (sender must never drop)", count)
	}
}
