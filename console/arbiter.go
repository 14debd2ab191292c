package console

import (
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Priority ranks queued output messages.
type Priority int

const (
	// Normal messages may be dropped, oldest first, when the queue is full.
	Normal Priority = iota
	// Critical messages (approval prompts, fatal notices) are never dropped.
	Critical
)

// Message is one unit of terminal output. A message's payload is written in
// a single call, so bytes from different producers never interleave inside it.
type Message struct {
	Producer string
	Seq      uint64
	Payload  string
	Priority Priority
}

// Arbiter is the sole writer to the terminal. Producers enqueue messages;
// a single consumer goroutine drains them in arrival order. Per-producer
// order is preserved because sequence numbers are assigned under the same
// lock that appends to the queue.
//
// While suspended (a foreground prompt owns the terminal) the consumer only
// drains up to and including the newest Critical message in the queue, which
// lets urgent notices through without ever reordering anything; everything
// else flushes on resume.
type Arbiter struct {
	out   io.Writer
	limit int
	log   *log.Logger

	// raw marks that the terminal is in raw mode, where OPOST is off and a
	// bare "\n" does not return the carriage. The consumer then writes
	// "\r\n" instead.
	raw atomic.Bool

	mu        sync.Mutex
	wake      *sync.Cond
	queue     []Message
	writing   int
	suspended bool
	closing   bool
	dropped   uint64
	started   bool
	done      chan struct{}
}

// NewArbiter creates an arbiter writing to out with the given queue bound.
// Internal diagnostics (drop counts) go to logger, never to out.
func NewArbiter(out io.Writer, queueSize int, logger *log.Logger) *Arbiter {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	a := &Arbiter{
		out:   out,
		limit: queueSize,
		log:   logger,
		done:  make(chan struct{}),
	}
	a.wake = sync.NewCond(&a.mu)
	return a
}

// Start launches the consumer loop. It may be called once.
func (a *Arbiter) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return
	}
	a.started = true
	go a.consume()
}

// Stop drains the queue within timeout, then discards whatever remains.
// Safe to call more than once.
func (a *Arbiter) Stop(timeout time.Duration) {
	a.mu.Lock()
	if !a.started || a.closing {
		a.mu.Unlock()
		return
	}
	a.closing = true
	a.suspended = false
	a.wake.Broadcast()
	a.mu.Unlock()

	select {
	case <-a.done:
	case <-time.After(timeout):
		a.mu.Lock()
		remaining := len(a.queue)
		a.queue = nil
		a.wake.Broadcast()
		a.mu.Unlock()
		if remaining > 0 {
			a.log.Printf("console: shutdown discarded %d queued messages", remaining)
		}
	}
}

// Producer returns an enqueue handle for one logical output source.
// Producers are cheap; create one per stream (model response, tool output,
// log lines) so their internal ordering is tracked independently.
func (a *Arbiter) Producer(name string) *Producer {
	return &Producer{a: a, name: name}
}

// Dropped reports how many Normal messages overflow has discarded.
func (a *Arbiter) Dropped() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Flush blocks until every queued message has been written or the timeout
// elapses. Returns false on timeout.
func (a *Arbiter) Flush(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		a.mu.Lock()
		idle := len(a.queue) == 0 && a.writing == 0
		a.mu.Unlock()
		if idle {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

// setSuspended is called by the suspend controller, never directly. Entering
// suspension blocks until the consumer's in-flight write (if any) completes,
// so when it returns the foreground prompt has the terminal to itself.
func (a *Arbiter) setSuspended(v bool) {
	a.mu.Lock()
	a.suspended = v
	if v {
		for a.writing > 0 {
			a.wake.Wait()
		}
	} else {
		a.wake.Broadcast()
	}
	a.mu.Unlock()
}

// setRawOutput tells the consumer whether the terminal is currently in raw
// mode and needs newline translation.
func (a *Arbiter) setRawOutput(v bool) {
	a.raw.Store(v)
}

func (a *Arbiter) enqueue(producer string, seq *uint64, payload string, pri Priority) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closing {
		return
	}

	if len(a.queue) >= a.limit {
		if i := a.oldestNormalLocked(); i >= 0 {
			a.queue = append(a.queue[:i], a.queue[i+1:]...)
			a.dropped++
			if a.dropped == 1 || a.dropped%100 == 0 {
				a.log.Printf("console: output queue full, dropped %d messages so far", a.dropped)
			}
		} else if pri == Normal {
			// Queue is entirely Critical; the incoming Normal message
			// loses instead.
			a.dropped++
			return
		}
		// A Critical message with no Normal victim exceeds the bound
		// rather than being lost.
	}

	*seq++
	a.queue = append(a.queue, Message{
		Producer: producer,
		Seq:      *seq,
		Payload:  payload,
		Priority: pri,
	})
	// Broadcast, not Signal: the suspend controller may be parked on the
	// same cond waiting for an in-flight write.
	a.wake.Broadcast()
}

// oldestNormalLocked returns the index of the oldest Normal message, or -1.
func (a *Arbiter) oldestNormalLocked() int {
	for i, m := range a.queue {
		if m.Priority == Normal {
			return i
		}
	}
	return -1
}

// drainableLocked returns how many messages from the head of the queue the
// consumer may write right now.
func (a *Arbiter) drainableLocked() int {
	if !a.suspended {
		return len(a.queue)
	}
	for i := len(a.queue) - 1; i >= 0; i-- {
		if a.queue[i].Priority == Critical {
			return i + 1
		}
	}
	return 0
}

func (a *Arbiter) consume() {
	defer close(a.done)
	for {
		a.mu.Lock()
		for a.drainableLocked() == 0 {
			if a.closing {
				a.mu.Unlock()
				return
			}
			a.wake.Wait()
		}
		// One message per claim: suspension is re-checked between writes,
		// so a suspend landing mid-stream stops the consumer at the next
		// message boundary instead of after a whole claimed batch.
		m := a.queue[0]
		a.queue = a.queue[1:]
		a.writing = 1
		a.mu.Unlock()

		payload := m.Payload
		if a.raw.Load() {
			payload = crlf(payload)
		}
		// One Write per message keeps the payload atomic on the wire.
		if _, err := io.WriteString(a.out, payload); err != nil {
			a.log.Printf("console: terminal write failed: %v", err)
		}

		a.mu.Lock()
		a.writing = 0
		a.wake.Broadcast()
		a.mu.Unlock()
	}
}

// crlf rewrites line feeds as CR+LF for a terminal with output processing
// disabled. Payloads that already carry "\r\n" pass through unchanged.
func crlf(s string) string {
	if !strings.Contains(s, "\n") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}

// Producer enqueues messages for a single named source. Methods must be
// called from one goroutine at a time per producer; that is what gives the
// per-producer ordering guarantee its meaning.
type Producer struct {
	a    *Arbiter
	name string
	seq  uint64
}

// Print enqueues payload at Normal priority.
func (p *Producer) Print(payload string) {
	p.a.enqueue(p.name, &p.seq, payload, Normal)
}

// Critical enqueues payload at Critical priority. It is never dropped.
func (p *Producer) Critical(payload string) {
	p.a.enqueue(p.name, &p.seq, payload, Critical)
}
