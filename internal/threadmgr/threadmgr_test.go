package threadmgr

import (
	"context"
	"errors"
	"testing"
	"time"
)

func blockingRunner(release chan struct{}) Runner {
	return func(ctx context.Context, t *Thread) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func TestCreateAndStartThreadLifecycle(t *testing.T) {
	release := make(chan struct{})
	m := New("agent1", blockingRunner(release), nil)
	th := m.CreateThread("hello", true)
	if th.Status() != Pending {
		t.Fatalf("want PENDING, got %s", th.Status())
	}
	m.StartThread(context.Background(), th)
	// give the goroutine a tick to flip to RUNNING
	deadline := time.Now().Add(time.Second)
	for th.Status() != Running && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if th.Status() != Running {
		t.Fatalf("want RUNNING, got %s", th.Status())
	}
	close(release)
	deadline = time.Now().Add(time.Second)
	for th.Status() != Completed && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if th.Status() != Completed {
		t.Fatalf("want COMPLETED, got %s", th.Status())
	}
}

func TestKillThreadReachesCancelled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	m := New("agent1", blockingRunner(release), nil)
	th := m.CreateThread("hello", true)
	m.StartThread(context.Background(), th)

	deadline := time.Now().Add(time.Second)
	for th.Status() != Running && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if !m.KillThread(th.ID) {
		t.Fatal("expected KillThread to succeed")
	}
	deadline = time.Now().Add(time.Second)
	for th.Status() != Cancelled && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if th.Status() != Cancelled {
		t.Fatalf("want CANCELLED, got %s", th.Status())
	}
	// Terminal: never returns to RUNNING.
	if m.KillThread(th.ID) {
		t.Fatal("killing an already-terminal thread should report false")
	}
}

func TestBreakMainThreadDetachesWithoutStopping(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	m := New("agent1", blockingRunner(release), nil)
	th := m.CreateThread("hello", true)
	m.StartThread(context.Background(), th)

	if main, ok := m.GetMainThread(); !ok || main.ID != th.ID {
		t.Fatal("expected main thread set")
	}
	m.BreakMainThread()
	if _, ok := m.GetMainThread(); ok {
		t.Fatal("expected no main thread after break")
	}
	deadline := time.Now().Add(time.Second)
	for th.Status() != Running && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if th.Status() != Running {
		t.Fatal("breaking main should not stop the underlying branch")
	}
}

func TestInjectRequiresRunningThread(t *testing.T) {
	m := New("agent1", blockingRunner(make(chan struct{})), nil)
	th := m.CreateThread("hello", false)
	if err := m.Inject(th.ID, Message{Role: "user", Content: "more"}); err == nil {
		t.Fatal("expected error injecting into a PENDING thread")
	}
}

func TestRouteMessageByEmittedReference(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	m := New("agent1", blockingRunner(release), nil)
	th := m.CreateThread("hello", true)
	m.RegisterEmittedMessage(th.ID, "discord-msg-123")

	found, ok := m.RouteMessage("discord-msg-123")
	if !ok || found.ID != th.ID {
		t.Fatalf("expected to route back to thread #%d, got %+v ok=%v", th.ID, found, ok)
	}
	if _, ok := m.RouteMessage("unknown-ref"); ok {
		t.Fatal("expected no route for unknown reference")
	}
}

// fakeClassifier returns a fixed response or error.
type fakeClassifier struct {
	response string
	err      error
	delay    time.Duration
}

func (f fakeClassifier) Classify(ctx context.Context, summary, currentStep, newMessage string) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.response, f.err
}

// TestRouterFallback covers seed scenario 7 verbatim: classifier raises
// -> INJECT; classifier returns "new_thread" -> NEW_THREAD.
func TestRouterFallback(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	m := New("agent1", blockingRunner(release), fakeClassifier{err: errors.New("boom")})
	th := m.CreateThread("hello", true)
	m.StartThread(context.Background(), th)
	waitForStatus(t, th, Running)

	if got := m.RouteInterjection(context.Background(), "anything"); got != Inject {
		t.Fatalf("classifier error: want INJECT, got %s", got)
	}

	m2 := New("agent2", blockingRunner(release), fakeClassifier{response: "new_thread"})
	th2 := m2.CreateThread("hello", true)
	m2.StartThread(context.Background(), th2)
	waitForStatus(t, th2, Running)

	if got := m2.RouteInterjection(context.Background(), "anything"); got != NewThread {
		t.Fatalf("classifier says new_thread: want NEW_THREAD, got %s", got)
	}
}

func TestRouterDefaultsToInjectOnAmbiguousOutput(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	m := New("agent1", blockingRunner(release), fakeClassifier{response: "inject or new_thread, unsure"})
	th := m.CreateThread("hello", true)
	m.StartThread(context.Background(), th)
	waitForStatus(t, th, Running)

	if got := m.RouteInterjection(context.Background(), "anything"); got != Inject {
		t.Fatalf("ambiguous output: want INJECT, got %s", got)
	}
}

func TestRouterTimeoutDefaultsToInject(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	m := New("agent1", blockingRunner(release), fakeClassifier{response: "new_thread", delay: 100 * time.Millisecond})
	m.classifierTimeout = 10 * time.Millisecond
	th := m.CreateThread("hello", true)
	m.StartThread(context.Background(), th)
	waitForStatus(t, th, Running)

	if got := m.RouteInterjection(context.Background(), "anything"); got != Inject {
		t.Fatalf("classifier timeout: want INJECT, got %s", got)
	}
}

func TestKillAllCancelsEveryNonTerminalThread(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	m := New("agent1", blockingRunner(release), nil)
	a := m.CreateThread("a", true)
	b := m.CreateThread("b", false)
	m.StartThread(context.Background(), a)
	m.StartThread(context.Background(), b)
	waitForStatus(t, a, Running)
	waitForStatus(t, b, Running)

	n := m.KillAll()
	if n != 2 {
		t.Fatalf("want 2 threads killed, got %d", n)
	}
	if a.Status() != Cancelled || b.Status() != Cancelled {
		t.Fatalf("expected both cancelled, got %s / %s", a.Status(), b.Status())
	}
}

func waitForStatus(t *testing.T, th *Thread, want Status) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for th.Status() != want && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if th.Status() != want {
		t.Fatalf("timed out waiting for status %s, got %s", want, th.Status())
	}
}
