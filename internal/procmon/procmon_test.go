package procmon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeWaiter struct {
	exitCode int
	ready    chan struct{}
}

func (w *fakeWaiter) Wait() (int, error) {
	<-w.ready
	return w.exitCode, nil
}

func TestMonitorLinesAndExit(t *testing.T) {
	stdoutR, stdoutW := io1Pipe()
	stderrR, stderrW := io1Pipe()
	waiter := &fakeWaiter{exitCode: 0, ready: make(chan struct{})}

	var mu sync.Mutex
	var lines []string
	exited := make(chan int, 1)

	logDir := t.TempDir()
	m := New(123, stdoutR, stderrR, waiter, logDir, 0,
		func(pid int, stream, line string) {
			mu.Lock()
			lines = append(lines, stream+":"+line)
			mu.Unlock()
		},
		func(pid int, exitCode int) { exited <- exitCode })

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	stdoutW.Write([]byte("go\n"))
	stderrW.Write([]byte("warn\n"))
	stdoutW.Write([]byte("done\n"))
	stdoutW.Close()
	stderrW.Close()
	close(waiter.ready)

	select {
	case code := <-exited:
		if code != 0 {
			t.Errorf("exit code = %d, want 0", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for on_exit")
	}
	m.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %v", len(lines), lines)
	}

	tail := m.RollingTail()
	found := false
	for _, l := range tail {
		if strings.HasPrefix(l, "err: ") {
			found = true
		}
	}
	if !found {
		t.Error("expected a stderr-prefixed line in rolling tail")
	}

	stdoutLog, err := os.ReadFile(filepath.Join(logDir, "stdout.log"))
	if err != nil || !strings.Contains(string(stdoutLog), "done") {
		t.Errorf("stdout.log missing expected content: %v, %q", err, stdoutLog)
	}
}

// io1Pipe is a tiny indirection so the test doesn't need to import io
// directly for the pipe constructor name.
func io1Pipe() (*os.File, *os.File) {
	r, w, err := os.Pipe()
	if err != nil {
		panic(err)
	}
	return r, w
}
