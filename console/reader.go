package console

import (
	"errors"
	"io"
	"log"
	"sync"

	"github.com/muesli/cancelreader"
	"golang.org/x/term"
)

// RawReader owns the terminal's raw-mode lifecycle and runs the blocking
// read loop on its own goroutine. Original terminal attributes are captured
// before the mode switch and restored on every Stop, however it is reached.
//
// When the input is not a terminal (tests, pipes) the mode switch is skipped
// and the reader degrades to a plain cancelable byte pump.
type RawReader struct {
	src io.Reader
	fd  int // -1 when src is not a terminal
	log *log.Logger

	mu      sync.Mutex
	cancel  cancelreader.CancelReader
	running bool
	wg      sync.WaitGroup

	// restoreMu guards saved separately from mu so the read loop can
	// restore terminal attributes on its error exit while Stop holds mu
	// waiting for the loop to join.
	restoreMu sync.Mutex
	saved     *term.State
}

// NewRawReader wraps src. Raw mode is only managed when src exposes a file
// descriptor that is a terminal.
func NewRawReader(src io.Reader, logger *log.Logger) *RawReader {
	fd := -1
	if f, ok := src.(interface{ Fd() uintptr }); ok {
		if candidate := int(f.Fd()); term.IsTerminal(candidate) {
			fd = candidate
		}
	}
	return &RawReader{src: src, fd: fd, log: logger}
}

// Start switches the terminal to raw mode and begins forwarding byte chunks
// to onBytes from a dedicated goroutine. onBytes receives a fresh slice each
// call; if it blocks, that simply exerts backpressure on the read loop.
func (r *RawReader) Start(onBytes func([]byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errAlreadyRunning
	}

	if r.fd >= 0 {
		saved, err := term.MakeRaw(r.fd)
		if err != nil {
			return err
		}
		r.restoreMu.Lock()
		r.saved = saved
		r.restoreMu.Unlock()
	}

	cr, err := cancelreader.NewReader(r.src)
	if err != nil {
		r.restore()
		return err
	}
	r.cancel = cr
	r.running = true
	r.wg.Add(1)
	go r.loop(cr, onBytes)
	return nil
}

// Stop cancels the blocking read, joins the loop and restores the saved
// terminal mode. In-flight onBytes callbacks have completed when Stop
// returns. Stopping a stopped reader is a no-op.
func (r *RawReader) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.cancel.Cancel()
	r.wg.Wait()
	_ = r.cancel.Close()
	r.cancel = nil
	r.running = false
	r.restore()
}

// Running reports whether the read loop is active.
func (r *RawReader) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// RawActive reports whether the terminal is currently held in raw mode.
func (r *RawReader) RawActive() bool {
	r.restoreMu.Lock()
	defer r.restoreMu.Unlock()
	return r.saved != nil
}

// restore puts the terminal back into its saved mode. Idempotent; called
// from Stop and from the read loop's error exit.
func (r *RawReader) restore() {
	r.restoreMu.Lock()
	defer r.restoreMu.Unlock()
	if r.saved != nil {
		if err := term.Restore(r.fd, r.saved); err != nil {
			r.log.Printf("console: failed to restore terminal mode: %v", err)
		}
		r.saved = nil
	}
}

func (r *RawReader) loop(cr cancelreader.CancelReader, onBytes func([]byte)) {
	defer r.wg.Done()
	buf := make([]byte, 256)
	for {
		n, err := cr.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onBytes(chunk)
		}
		if err != nil {
			if errors.Is(err, cancelreader.ErrCanceled) {
				return
			}
			// EOF or a device error kills hotkey support only; the rest
			// of the application keeps running — but the terminal must
			// not be left in raw mode, and Stop may never be called on
			// this degraded path.
			r.log.Printf("console: hotkey input ended: %v", err)
			r.restore()
			return
		}
	}
}

var errAlreadyRunning = errors.New("console: reader already running")
