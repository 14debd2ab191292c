package terminal

import (
	"context"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ryebridge/cobalt/agent"
	"github.com/ryebridge/cobalt/config"
	"github.com/ryebridge/cobalt/console"
	"github.com/ryebridge/cobalt/llm"
	"github.com/ryebridge/cobalt/session"
	"github.com/ryebridge/cobalt/tools"
)

// createTestConfig creates a config with a default toolset for testing
func createTestConfig() *config.Config {
	return &config.Config{
		Toolsets: []config.Toolset{
			{
				Name:  "default",
				Tools: []string{},
			},
		},
	}
}

type lockedBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

// newTestTerminal builds an agent plus a terminal whose console reads from a
// pipe, so tests can type into it.
func newTestTerminal(t *testing.T, mode agent.Mode, client llm.LLMClient) (*Terminal, *os.File, *lockedBuffer) {
	t.Helper()

	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })

	sess, err := session.New("test-session")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	testAgent, err := agent.New(createTestConfig(), sess, "default", mode, client, agent.ToolVerbosityNone)
	if err != nil {
		t.Fatalf("Failed to create agent: %v", err)
	}

	rd, wr, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { rd.Close(); wr.Close() })

	out := &lockedBuffer{}
	c := console.New(console.Options{
		Input:  rd,
		Output: out,
		Logger: log.New(io.Discard, "", 0),
	})
	return NewWithConsole(testAgent, c), wr, out
}

func TestTerminalNew(t *testing.T) {
	term, _, _ := newTestTerminal(t, agent.ModeAuto, &llm.MockLLMClient{})
	if term == nil {
		t.Fatal("Expected terminal instance, got nil")
	}
	if term.agent == nil || term.console == nil {
		t.Fatal("Terminal missing agent or console")
	}
}

func TestTerminalProcessTurn(t *testing.T) {
	term, _, out := newTestTerminal(t, agent.ModeAuto, &llm.MockLLMClient{})
	if err := term.console.Start(); err != nil {
		t.Fatalf("console start: %v", err)
	}
	defer term.console.Stop()

	if err := term.processTurn(context.Background(), "test input"); err != nil {
		t.Errorf("processTurn failed: %v", err)
	}
	if !term.console.FlushOutput(time.Second) {
		t.Fatal("output did not flush")
	}
	got := out.String()
	if !strings.Contains(got, "Cobalt: ") || !strings.Contains(got, "test input") {
		t.Errorf("streamed response missing from output: %q", got)
	}
}

func TestTerminalRunExitsOnQuitCommand(t *testing.T) {
	term, wr, out := newTestTerminal(t, agent.ModeAuto, &llm.MockLLMClient{})

	done := make(chan error, 1)
	go func() { done <- term.Run(context.Background(), "") }()

	go func() {
		time.Sleep(50 * time.Millisecond)
		wr.Write([]byte("hello\n"))
		time.Sleep(100 * time.Millisecond)
		wr.Write([]byte("/quit\n"))
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not exit on /quit")
	}
	if !strings.Contains(out.String(), "mock response to: hello") {
		t.Errorf("turn output missing: %q", out.String())
	}
}

func TestTerminalRunExitsOnEOF(t *testing.T) {
	term, wr, _ := newTestTerminal(t, agent.ModeAuto, &llm.MockLLMClient{})
	wr.Close()

	done := make(chan error, 1)
	go func() { done <- term.Run(context.Background(), "initial test prompt") }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not exit on EOF")
	}
}

func TestCancelActiveTurn(t *testing.T) {
	term, _, _ := newTestTerminal(t, agent.ModeAuto, &llm.MockLLMClient{})

	if term.cancelActiveTurn() {
		t.Error("cancelActiveTurn reported an active turn while idle")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	term.mu.Lock()
	term.cancelTurn = cancel
	term.mu.Unlock()

	if !term.cancelActiveTurn() {
		t.Error("cancelActiveTurn missed the active turn")
	}
	if ctx.Err() == nil {
		t.Error("turn context not canceled")
	}
}

func TestCycleVerbosityHotkeyOrder(t *testing.T) {
	term, _, _ := newTestTerminal(t, agent.ModeAuto, &llm.MockLLMClient{})

	if got := term.cycleVerbosity(); got != agent.ToolVerbosityInfo {
		t.Errorf("first cycle = %v, want info", got)
	}
	if got := term.cycleVerbosity(); got != agent.ToolVerbosityAll {
		t.Errorf("second cycle = %v, want all", got)
	}
	if got := term.cycleVerbosity(); got != agent.ToolVerbosityNone {
		t.Errorf("third cycle = %v, want none", got)
	}
}

func TestPendingCompositionQueue(t *testing.T) {
	term, _, _ := newTestTerminal(t, agent.ModeAuto, &llm.MockLLMClient{})

	if got := term.pendingComposition(); got != "" {
		t.Errorf("empty queue returned %q", got)
	}
	term.composeCh <- "  drafted in editor \n"
	if got := term.pendingComposition(); got != "drafted in editor" {
		t.Errorf("pendingComposition = %q", got)
	}
}

func TestPromptModeApprovalThroughConsole(t *testing.T) {
	tool := &approvalStubTool{}
	client := &llm.MockLLMClient{Responses: []*session.Message{
		{Role: "assistant", ToolCalls: []session.ToolCall{
			{ToolCallID: "tc", Name: "stub_tool", Args: map[string]interface{}{}},
		}},
		{Role: "assistant", Content: "done"},
	}}
	term, wr, out := newTestTerminal(t, agent.ModePrompt, client)
	term.agent.AvailableTools = append(term.agent.AvailableTools, tool)

	if err := term.console.Start(); err != nil {
		t.Fatalf("console start: %v", err)
	}
	defer term.console.Stop()

	go func() {
		// Answer the approval prompt once it appears.
		time.Sleep(100 * time.Millisecond)
		wr.Write([]byte("y\n"))
	}()

	if err := term.processTurn(context.Background(), "use the tool"); err != nil {
		t.Fatalf("processTurn: %v", err)
	}
	if tool.calls != 1 {
		t.Errorf("approved tool ran %d times, want 1", tool.calls)
	}
	if !term.console.FlushOutput(time.Second) {
		t.Fatal("output did not flush")
	}
	if !strings.Contains(out.String(), "Tool request: stub_tool") {
		t.Errorf("approval prompt missing: %q", out.String())
	}
}

func TestCommandOutputStreamsThroughToolProducer(t *testing.T) {
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })

	sess, err := session.New("stream-session")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	testAgent, err := agent.New(createTestConfig(), sess, "default", agent.ModeAuto, &llm.MockLLMClient{}, agent.ToolVerbosityAll)
	if err != nil {
		t.Fatalf("Failed to create agent: %v", err)
	}
	ect := &tools.ExecuteCommandTool{}
	testAgent.AvailableTools = append(testAgent.AvailableTools, ect)

	rd, wr, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { rd.Close(); wr.Close() })
	out := &lockedBuffer{}
	c := console.New(console.Options{Input: rd, Output: out, Logger: log.New(io.Discard, "", 0)})

	NewWithConsole(testAgent, c)
	if ect.OnOutput == nil {
		t.Fatal("command tool output not wired to the console")
	}

	if err := c.Start(); err != nil {
		t.Fatalf("console start: %v", err)
	}
	defer c.Stop()

	// Lines the running command produces land on the tool producer live.
	ect.OnOutput("building...\n")
	if !c.FlushOutput(time.Second) {
		t.Fatal("output did not flush")
	}
	if !strings.Contains(out.String(), "building...") {
		t.Errorf("streamed command output missing: %q", out.String())
	}
}

type approvalStubTool struct {
	calls int
}

func (s *approvalStubTool) Name() string        { return "stub_tool" }
func (s *approvalStubTool) Description() string { return "stub" }
func (s *approvalStubTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	s.calls++
	return "ok", nil
}
