package console

import (
	"os"
	"sync"
	"testing"
	"time"
)

func TestRawReaderForwardsAndStops(t *testing.T) {
	rd, wr, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer rd.Close()
	defer wr.Close()

	var mu sync.Mutex
	var got []byte
	r := NewRawReader(rd, testLogger())
	if err := r.Start(func(chunk []byte) {
		mu.Lock()
		got = append(got, chunk...)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !r.Running() {
		t.Fatal("reader not running after Start")
	}

	wr.Write([]byte("abc"))
	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("bytes not forwarded: %q", got)
		}
		time.Sleep(time.Millisecond)
	}

	r.Stop()
	if r.Running() {
		t.Fatal("reader still running after Stop")
	}
	// Stopping twice is a no-op.
	r.Stop()
}

func TestRawReaderErrorExitThenStopIsSafe(t *testing.T) {
	rd, wr, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer rd.Close()

	r := NewRawReader(rd, testLogger())
	if err := r.Start(func([]byte) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// EOF drives the loop out through its error path, which restores the
	// terminal on its own since Stop may never come on this degraded path.
	wr.Close()
	time.Sleep(20 * time.Millisecond)
	if r.RawActive() {
		t.Fatal("raw mode still held after the read loop's error exit")
	}

	// A later Stop must neither deadlock against the exited loop nor
	// restore twice.
	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop deadlocked after loop error exit")
	}
}
