package console

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ryebridge/cobalt/console/key"
)

const (
	// escapeTimeout bounds how long a lone ESC byte may wait for a
	// follow-up before it is treated as a literal Escape press.
	escapeTimeout = 50 * time.Millisecond
	// debounceInterval coalesces auto-repeated key events.
	debounceInterval = 25 * time.Millisecond
	// defaultQueueSize bounds the output arbiter's queue.
	defaultQueueSize = 256
	// shutdownTimeout bounds the final output drain at Stop.
	shutdownTimeout = 2 * time.Second
	// byteChannelSize buffers chunks between the reader thread and the
	// decode loop.
	byteChannelSize = 64
)

// Outcome is the result of an approval prompt.
type Outcome int

const (
	// OutcomeYes approves the single pending operation.
	OutcomeYes Outcome = iota
	// OutcomeNo denies it.
	OutcomeNo
	// OutcomeAll approves it and every later operation this session.
	OutcomeAll
	// OutcomeCancel aborts the surrounding turn entirely.
	OutcomeCancel
)

func (o Outcome) String() string {
	switch o {
	case OutcomeYes:
		return "yes"
	case OutcomeNo:
		return "no"
	case OutcomeAll:
		return "all"
	default:
		return "cancel"
	}
}

// Options configures a Console. Zero values get sensible defaults bound to
// the real process terminal.
type Options struct {
	// Input is the byte source, normally os.Stdin. Raw mode is managed
	// only when it is a real terminal, so tests can drive a pipe.
	Input io.Reader
	// Output is where arbitrated messages are written, normally os.Stdout.
	Output io.Writer
	// QueueSize bounds the output queue; 0 means defaultQueueSize.
	QueueSize int
	// Logger receives subsystem diagnostics. Defaults to stderr so the
	// arbiter keeps exclusive ownership of Output.
	Logger *log.Logger
	// Schedule runs ExecScheduled handlers. Defaults to `go fn()`.
	Schedule func(func())
	// ExemptKeys stay dispatchable while suspended. Defaults to the
	// hard-cancel key, Ctrl+C.
	ExemptKeys []string
	// StrictStateChecks makes suspend/resume misuse panic instead of
	// logging. Defaults to true when COBALT_DEBUG is set.
	StrictStateChecks bool
}

// Console owns the whole hotkey/output subsystem: raw reader, decoder,
// dispatcher, suspend controller and output arbiter. All state is explicit
// and per-instance; nothing here is a package-level global.
type Console struct {
	Registry *Registry

	arbiter    *Arbiter
	reader     *RawReader
	decoder    *key.Decoder
	dispatcher *Dispatcher
	suspendCtl *SuspendController
	log        *log.Logger

	bytes  chan []byte
	syncCh chan chan struct{}

	lineMu sync.Mutex
	lineIn io.Reader
	rawOut io.Writer

	startOnce sync.Once
	stopOnce  sync.Once
	stopped   atomic.Bool
	loopDone  chan struct{}
}

// New wires up a console. Nothing starts until Start.
func New(opts Options) *Console {
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	if opts.Schedule == nil {
		opts.Schedule = func(fn func()) { go fn() }
	}
	if opts.ExemptKeys == nil {
		opts.ExemptKeys = []string{"Ctrl+C"}
	}
	if !opts.StrictStateChecks {
		opts.StrictStateChecks = os.Getenv("COBALT_DEBUG") != ""
	}

	c := &Console{
		Registry: NewRegistry(opts.Logger),
		arbiter:  NewArbiter(opts.Output, opts.QueueSize, opts.Logger),
		reader:   NewRawReader(opts.Input, opts.Logger),
		log:      opts.Logger,
		bytes:    make(chan []byte, byteChannelSize),
		syncCh:   make(chan chan struct{}),
		lineIn:   opts.Input,
		rawOut:   opts.Output,
		loopDone: make(chan struct{}),
	}
	c.decoder = key.NewDecoder(c.dispatch)
	c.dispatcher = newDispatcher(c.Registry, c.suspended, opts.Schedule, opts.ExemptKeys, opts.Logger)
	c.suspendCtl = &SuspendController{
		reader:  c.reader,
		arbiter: c.arbiter,
		onBytes: c.forward,
		drain:   c.drainDecoder,
		stopped: c.stopped.Load,
		strict:  opts.StrictStateChecks,
		log:     opts.Logger,
	}
	return c
}

// Start launches the arbiter, the decode loop and the raw reader. If raw
// mode cannot be acquired the console still runs output arbitration; only
// hotkeys are lost.
func (c *Console) Start() error {
	var err error
	c.startOnce.Do(func() {
		c.arbiter.Start()
		go c.decodeLoop()
		if startErr := c.reader.Start(c.forward); startErr != nil {
			c.log.Printf("console: hotkeys disabled: %v", startErr)
			err = startErr
		}
		c.arbiter.setRawOutput(c.reader.RawActive())
	})
	return err
}

// Stop shuts the subsystem down: the reader is joined and the terminal mode
// restored, the decode loop drained, and the arbiter given shutdownTimeout
// to flush. Safe to call from a deferred path or a signal handler, and safe
// to call twice.
func (c *Console) Stop() {
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		c.reader.Stop()
		c.arbiter.setRawOutput(false)
		close(c.bytes)
		<-c.loopDone
		c.arbiter.Stop(shutdownTimeout)
	})
}

// Producer returns an ordered output handle for one logical source.
func (c *Console) Producer(name string) *Producer {
	return c.arbiter.Producer(name)
}

// Dropped reports how many Normal messages the output queue has discarded.
func (c *Console) Dropped() uint64 { return c.arbiter.Dropped() }

// FlushOutput waits for the output queue to empty, bounded by timeout.
func (c *Console) FlushOutput(timeout time.Duration) bool {
	return c.arbiter.Flush(timeout)
}

// Suspend hands stdin to a foreground consumer. Prefer ReadLine or Approve,
// which pair it with the matching Resume on every exit path.
func (c *Console) Suspend() error { return c.suspendCtl.Suspend() }

// Resume returns stdin to the hotkey reader.
func (c *Console) Resume() error { return c.suspendCtl.Resume() }

// ReadLine suspends the hotkey reader, prints prompt, reads one line of
// cooked-mode input and resumes. Resume runs on every exit path.
//
// The read is unbuffered: exactly the bytes up to and including the newline
// are consumed, so anything typed after the line waits in the kernel buffer
// for the hotkey reader after Resume.
func (c *Console) ReadLine(prompt string) (string, error) {
	c.lineMu.Lock()
	defer c.lineMu.Unlock()

	if err := c.suspendCtl.Suspend(); err != nil {
		return "", err
	}
	defer func() {
		if err := c.suspendCtl.Resume(); err != nil {
			c.log.Printf("console: resume after line read failed: %v", err)
		}
	}()

	if prompt != "" {
		fmt.Fprint(c.rawOut, prompt)
	}
	line, err := readLine(c.lineIn)
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r"), nil
}

// readLine reads byte-at-a-time up to the first newline. A deliberately
// unbuffered read: a buffered reader could slurp bytes past the newline that
// belong to the raw reader after the suspend window closes.
func readLine(r io.Reader) (string, error) {
	var line []byte
	var b [1]byte
	for {
		n, err := r.Read(b[:])
		if n > 0 {
			if b[0] == '\n' {
				return string(line), nil
			}
			line = append(line, b[0])
		}
		if err != nil {
			return string(line), err
		}
	}
}

// Approve runs the approval-prompt protocol: the user answers yes, no, all
// (approve this and everything later this session) or cancel. EOF and read
// errors map to cancel so a dead terminal can never approve anything.
func (c *Console) Approve(prompt string) (Outcome, error) {
	for {
		line, err := c.ReadLine(prompt + " [y]es / [n]o / [a]ll / [c]ancel: ")
		if err != nil {
			return OutcomeCancel, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return OutcomeYes, nil
		case "n", "no":
			return OutcomeNo, nil
		case "a", "all":
			return OutcomeAll, nil
		case "c", "cancel", "q":
			return OutcomeCancel, nil
		}
		// Anything else reprompts.
	}
}

// forward runs on the reader goroutine.
func (c *Console) forward(chunk []byte) {
	c.bytes <- chunk
}

func (c *Console) dispatch(ev key.Event) {
	c.dispatcher.Dispatch(ev)
}

func (c *Console) suspended() bool {
	return c.suspendCtl.Suspended()
}

// drainDecoder synchronously pushes every chunk the reader already produced
// through the decoder and flushes in-flight state. Called by the suspend
// controller after the reader has stopped, so the channel cannot grow
// underneath it.
func (c *Console) drainDecoder() {
	ack := make(chan struct{})
	select {
	case c.syncCh <- ack:
		<-ack
	case <-c.loopDone:
		// Already shut down; nothing left to drain.
	}
}

// decodeLoop is the single consumer of reader chunks. It owns the decoder
// and the escape disambiguation timer: a lone ESC that stays silent for
// escapeTimeout becomes a literal Escape event, exactly once.
func (c *Console) decodeLoop() {
	defer close(c.loopDone)

	timer := time.NewTimer(escapeTimeout)
	stopTimer := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}
	stopTimer()
	defer stopTimer()

	for {
		select {
		case chunk, ok := <-c.bytes:
			if !ok {
				c.decoder.Flush()
				return
			}
			c.decoder.Feed(chunk)
			stopTimer()
			if c.decoder.Pending() {
				timer.Reset(escapeTimeout)
			}

		case <-timer.C:
			c.decoder.Flush()

		case ack := <-c.syncCh:
			for {
				select {
				case chunk, ok := <-c.bytes:
					if !ok {
						c.decoder.Flush()
						close(ack)
						return
					}
					c.decoder.Feed(chunk)
					continue
				default:
				}
				break
			}
			stopTimer()
			c.decoder.Flush()
			close(ack)
		}
	}
}
