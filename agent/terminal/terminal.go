package terminal

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ryebridge/cobalt/agent"
	"github.com/ryebridge/cobalt/console"
	"github.com/ryebridge/cobalt/console/key"
	"github.com/ryebridge/cobalt/errors"
	"github.com/ryebridge/cobalt/session"
	"github.com/ryebridge/cobalt/tools"
)

// Terminal handles the terminal/CLI interaction mode for the agent. All
// output flows through the console's arbiter so streamed model text, tool
// notices and hotkey feedback never interleave mid-message.
type Terminal struct {
	agent   *agent.Agent
	console *console.Console

	out     *console.Producer // streamed assistant text
	toolOut *console.Producer // tool call/result notices
	notice  *console.Producer // warnings, hotkey feedback

	mu         sync.Mutex
	cancelTurn context.CancelFunc // non-nil while a turn is running
	streamed   int                // bytes streamed for the current message

	quitting  atomic.Bool
	composeCh chan string
}

// New creates a Terminal bound to the process terminal.
func New(a *agent.Agent) *Terminal {
	return NewWithConsole(a, console.New(console.Options{
		QueueSize: a.Config.Console.QueueSize,
	}))
}

// NewWithConsole creates a Terminal on an existing console, which the
// terminal then owns. Used by tests to drive pipes instead of a TTY.
func NewWithConsole(a *agent.Agent, c *console.Console) *Terminal {
	t := &Terminal{
		agent:     a,
		console:   c,
		out:       c.Producer("assistant"),
		toolOut:   c.Producer("tools"),
		notice:    c.Producer("notices"),
		composeCh: make(chan string, 1),
	}
	// Shell commands stream their output through the tool producer as they
	// run, rather than only appearing after the command exits.
	for _, tool := range a.AvailableTools {
		if ect, ok := tool.(*tools.ExecuteCommandTool); ok {
			ect.OnOutput = func(line string) {
				if t.verbosity() == agent.ToolVerbosityAll {
					t.toolOut.Print(line)
				}
			}
		}
	}
	return t
}

// Run starts the interactive terminal session.
func (t *Terminal) Run(ctx context.Context, initialPrompt string) error {
	if err := t.console.Start(); err != nil {
		// Hotkeys are gone but the conversation loop still works.
		t.notice.Print("Note: hotkeys unavailable on this terminal.\n")
	}
	defer t.console.Stop()
	t.bindHotkeys()

	// If there's an initial prompt from the command line, use it first
	if initialPrompt != "" {
		if err := t.processTurn(ctx, initialPrompt); err != nil {
			return err
		}
	}

	for {
		if t.quitting.Load() || ctx.Err() != nil {
			return nil
		}

		userInput := t.pendingComposition()
		if userInput == "" {
			line, err := t.console.ReadLine("You: ")
			if err != nil {
				// EOF or read error ends the session
				return nil
			}
			userInput = strings.TrimSpace(line)
		}
		if userInput == "" {
			continue
		}

		// Exit commands
		if userInput == "/quit" || userInput == "/exit" {
			return nil
		}

		if err := t.processTurn(ctx, userInput); err != nil {
			switch {
			case errors.Is(err, agent.ErrTurnCanceled), errors.Is(err, context.Canceled):
				t.notice.Print("\n[turn canceled]\n")
			default:
				t.notice.Print(fmt.Sprintf("Error: %v\n", err))
			}
		}
	}
}

// bindHotkeys installs the built-in bindings, then layers the user's
// config overrides on top. Rebinding a built-in is allowed and logged.
func (t *Terminal) bindHotkeys() {
	builtin := []struct {
		spec   string
		action string
	}{
		{"Ctrl+C", "cancel"},
		{"Escape", "stop"},
		{"F2", "cycle_verbosity"},
		{"Ctrl+E", "compose"},
	}
	for _, b := range builtin {
		t.bindAction(b.spec, b.action)
	}
	for _, hk := range t.agent.Config.Console.Hotkeys {
		t.bindAction(hk.Key, hk.Action)
	}
}

func (t *Terminal) bindAction(spec, action string) {
	var mode console.ExecMode
	var fn console.Handler

	switch action {
	case "cancel":
		fn = func(key.Event) {
			if !t.cancelActiveTurn() {
				t.quitting.Store(true)
			}
		}
	case "stop":
		fn = func(key.Event) { t.cancelActiveTurn() }
	case "cycle_verbosity":
		fn = func(key.Event) {
			next := t.cycleVerbosity()
			t.notice.Print(fmt.Sprintf("\n[tool verbosity: %s]\n", next))
		}
	case "compose":
		// Editing blocks on an external process, so it must leave the
		// dispatch goroutine.
		mode = console.ExecScheduled
		fn = func(key.Event) { t.composeInEditor() }
	default:
		t.notice.Print(fmt.Sprintf("Unknown hotkey action '%s' for %s\n", action, spec))
		return
	}

	if _, err := t.console.Registry.Bind(spec, mode, fn); err != nil {
		t.notice.Print(fmt.Sprintf("Cannot bind %s: %v\n", spec, err))
	}
}

// processTurn handles a single user input turn.
func (t *Terminal) processTurn(ctx context.Context, userInput string) error {
	turnCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancelTurn = cancel
	t.streamed = 0
	t.mu.Unlock()
	defer func() {
		cancel()
		t.mu.Lock()
		t.cancelTurn = nil
		t.mu.Unlock()
	}()

	callbacks := agent.ProcessCallbacks{
		OnAssistantDelta: func(delta string) {
			t.mu.Lock()
			first := t.streamed == 0
			t.streamed += len(delta)
			t.mu.Unlock()
			if first {
				t.out.Print("Cobalt: ")
			}
			t.out.Print(delta)
		},
		OnAssistantMessage: func(message string) {
			t.mu.Lock()
			streamed := t.streamed
			t.streamed = 0
			t.mu.Unlock()
			if streamed > 0 {
				// The text already went out incrementally.
				t.out.Print("\n")
				return
			}
			t.out.Print(fmt.Sprintf("Cobalt: %s\n", message))
		},
		OnToolCall: func(toolCall session.ToolCall) {
			switch t.verbosity() {
			case agent.ToolVerbosityAll:
				t.toolOut.Print(fmt.Sprintf("Cobalt wants to call tool `%s` with args: %v\n", toolCall.Name, toolCall.Args))
			case agent.ToolVerbosityInfo:
				t.toolOut.Print(fmt.Sprintf("Cobalt wants to call tool `%s`\n", toolCall.Name))
			}
		},
		OnToolResult: func(toolCall session.ToolCall, result string) {
			if t.verbosity() == agent.ToolVerbosityAll {
				t.toolOut.Print(fmt.Sprintf("Tool `%s` output: %s\n", toolCall.Name, result))
			}
		},
		ShouldExecuteTool: func(toolCall session.ToolCall) console.Outcome {
			// The prompt must land even if the queue is flooded.
			t.toolOut.Critical(fmt.Sprintf("Tool request: %s %v\n", toolCall.Name, toolCall.Args))
			outcome, err := t.console.Approve("Allow this tool call?")
			if err != nil {
				return console.OutcomeCancel
			}
			return outcome
		},
		OnWarning: func(warning string) {
			t.notice.Print(fmt.Sprintf("Warning: %s\n", warning))
		},
	}

	return t.agent.ProcessUserInput(turnCtx, userInput, callbacks)
}

// cancelActiveTurn cancels the running turn, reporting whether there was one.
func (t *Terminal) cancelActiveTurn() bool {
	t.mu.Lock()
	cancel := t.cancelTurn
	t.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

func (t *Terminal) verbosity() agent.ToolVerbosity {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.agent.Verbosity
}

func (t *Terminal) cycleVerbosity() agent.ToolVerbosity {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.agent.Verbosity = t.agent.Verbosity.Next()
	return t.agent.Verbosity
}

// pendingComposition returns text queued by the compose hotkey, if any.
func (t *Terminal) pendingComposition() string {
	select {
	case text := <-t.composeCh:
		return strings.TrimSpace(text)
	default:
		return ""
	}
}

// composeInEditor suspends the console, opens the configured editor on a
// scratch file and queues its contents as the next prompt. Runs on the
// scheduler goroutine, never on the dispatch loop.
func (t *Terminal) composeInEditor() {
	tmp, err := os.CreateTemp("", "cobalt-compose-*.md")
	if err != nil {
		t.notice.Print(fmt.Sprintf("compose: %v\n", err))
		return
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	if err := t.console.Suspend(); err != nil {
		return
	}
	editor := t.agent.Config.EditorCommand()
	cmd := exec.Command(editor, tmp.Name())
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	runErr := cmd.Run()
	if err := t.console.Resume(); err != nil {
		t.notice.Print(fmt.Sprintf("compose: resume failed: %v\n", err))
	}
	if runErr != nil {
		t.notice.Print(fmt.Sprintf("compose: editor failed: %v\n", runErr))
		return
	}

	content, err := os.ReadFile(tmp.Name())
	if err != nil {
		t.notice.Print(fmt.Sprintf("compose: %v\n", err))
		return
	}
	if strings.TrimSpace(string(content)) == "" {
		t.notice.Print("compose: empty buffer discarded\n")
		return
	}

	select {
	case t.composeCh <- string(content):
		t.notice.Print("\n[composed prompt queued]\n")
	default:
		t.notice.Print("compose: a composed prompt is already queued\n")
	}
}
