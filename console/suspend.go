package console

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/ryebridge/cobalt/errors"
)

// SuspendController arbitrates exclusive ownership of stdin between the
// hotkey read loop and a foreground line editor or approval prompt. At any
// instant exactly one of them consumes terminal bytes.
//
// Transitions are serialized under one mutex, so no caller can observe a
// half-transitioned state. The suspend boundary is deterministic: bytes the
// reader already delivered are fully decoded (and any pending escape prefix
// force-flushed) before Suspend returns; bytes typed afterwards wait in the
// kernel buffer for whoever reads next.
type SuspendController struct {
	// mu serializes transitions; suspended is atomic so the dispatch
	// path can read it without contending on a mid-transition lock.
	mu        sync.Mutex
	suspended atomic.Bool

	reader  *RawReader
	arbiter *Arbiter
	onBytes func([]byte)
	// drain pushes everything already read through the decoder and
	// flushes its in-flight state, synchronously.
	drain func()
	// stopped reports whether the owning console has shut down; a stopped
	// console must never restart the read loop.
	stopped func() bool

	// strict makes misuse panic instead of degrading to a logged no-op.
	// Wired to the COBALT_DEBUG environment variable.
	strict bool
	log    *log.Logger
}

// Suspend hands stdin to a foreground consumer: output draining pauses
// (Critical messages still flush), the read loop stops and cooked mode is
// restored. Suspending twice is a programming error.
func (s *SuspendController) Suspend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped() {
		return s.misuse("suspend after console stop")
	}
	if s.suspended.Load() {
		return s.misuse("suspend while already suspended")
	}
	// setSuspended blocks until the consumer's in-flight write finishes,
	// so the terminal is quiet when this returns.
	s.arbiter.setSuspended(true)
	s.reader.Stop()
	s.arbiter.setRawOutput(false)
	s.drain()
	s.suspended.Store(true)
	return nil
}

// Resume returns stdin to the hotkey reader: raw mode is re-acquired, the
// read loop restarts and all output queued during the suspension flushes in
// its original order. Resume without a matching Suspend is a programming
// error.
func (s *SuspendController) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped() {
		// Restarting the reader would feed a torn-down pipeline.
		return s.misuse("resume after console stop")
	}
	if !s.suspended.Load() {
		return s.misuse("resume without matching suspend")
	}
	s.suspended.Store(false)
	if err := s.reader.Start(s.onBytes); err != nil {
		// Hotkeys degrade; the application keeps its terminal.
		s.log.Printf("console: could not restart hotkey reader: %v", err)
	}
	s.arbiter.setRawOutput(s.reader.RawActive())
	s.arbiter.setSuspended(false)
	return nil
}

// Suspended reports the current state. Lock-free: the dispatch path calls
// this for every event.
func (s *SuspendController) Suspended() bool {
	return s.suspended.Load()
}

func (s *SuspendController) misuse(msg string) error {
	if s.strict {
		panic("console: " + msg)
	}
	s.log.Printf("console: %s (ignored)", msg)
	return errors.New("%s", msg)
}
