package agent

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/ryebridge/cobalt/config"
	"github.com/ryebridge/cobalt/console"
	"github.com/ryebridge/cobalt/llm"
	"github.com/ryebridge/cobalt/session"
	"github.com/ryebridge/cobalt/tools"
)

type stubTool struct {
	name   string
	result string
	err    error
	calls  int
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	s.calls++
	return s.result, s.err
}

func newTestAgent(t *testing.T, mode Mode, client llm.LLMClient, availableTools ...tools.Tool) *Agent {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })

	sess, err := session.New("test")
	if err != nil {
		t.Fatal(err)
	}
	return &Agent{
		Config:         &config.Config{},
		Session:        sess,
		LLMClient:      client,
		AvailableTools: availableTools,
		Mode:           mode,
		Verbosity:      ToolVerbosityInfo,
	}
}

func TestProcessUserInputPlainResponse(t *testing.T) {
	client := &llm.MockLLMClient{Responses: []*session.Message{
		{Role: "assistant", Content: "hello there"},
	}}
	a := newTestAgent(t, ModeAuto, client)

	var got string
	err := a.ProcessUserInput(context.Background(), "hi", ProcessCallbacks{
		OnAssistantMessage: func(m string) { got = m },
	})
	if err != nil {
		t.Fatalf("ProcessUserInput: %v", err)
	}
	if got != "hello there" {
		t.Errorf("assistant message = %q", got)
	}
	if len(a.Session.Messages) != 2 {
		t.Errorf("session has %d messages, want 2", len(a.Session.Messages))
	}
}

func TestProcessUserInputExecutesToolsInAutoMode(t *testing.T) {
	tool := &stubTool{name: "read_file", result: "file contents"}
	client := &llm.MockLLMClient{Responses: []*session.Message{
		{Role: "assistant", ToolCalls: []session.ToolCall{
			{ToolCallID: "tc1", Name: "read_file", Args: map[string]interface{}{"path": "x"}},
		}},
		{Role: "assistant", Content: "the file says: file contents"},
	}}
	a := newTestAgent(t, ModeAuto, client, tool)

	var results []string
	err := a.ProcessUserInput(context.Background(), "read x", ProcessCallbacks{
		OnToolResult: func(tc session.ToolCall, result string) { results = append(results, result) },
	})
	if err != nil {
		t.Fatalf("ProcessUserInput: %v", err)
	}
	if tool.calls != 1 {
		t.Errorf("tool ran %d times, want 1", tool.calls)
	}
	if len(results) != 1 || results[0] != "file contents" {
		t.Errorf("results = %v", results)
	}
	// history: user, assistant(tool call), tool result, assistant answer
	if len(a.Session.Messages) != 4 {
		t.Errorf("session has %d messages, want 4", len(a.Session.Messages))
	}
	if a.Session.Messages[2].Role != "tool" {
		t.Errorf("message 2 role = %q, want tool", a.Session.Messages[2].Role)
	}
}

func TestPromptModeDenialSkipsExecution(t *testing.T) {
	tool := &stubTool{name: "write_file", result: "ok"}
	client := &llm.MockLLMClient{Responses: []*session.Message{
		{Role: "assistant", ToolCalls: []session.ToolCall{
			{ToolCallID: "tc1", Name: "write_file"},
		}},
		{Role: "assistant", Content: "understood"},
	}}
	a := newTestAgent(t, ModePrompt, client, tool)

	err := a.ProcessUserInput(context.Background(), "write it", ProcessCallbacks{
		ShouldExecuteTool: func(session.ToolCall) console.Outcome { return console.OutcomeNo },
	})
	if err != nil {
		t.Fatalf("ProcessUserInput: %v", err)
	}
	if tool.calls != 0 {
		t.Errorf("denied tool ran %d times", tool.calls)
	}
	if !strings.Contains(a.Session.Messages[2].Content, "denied") {
		t.Errorf("denial not recorded for the model: %q", a.Session.Messages[2].Content)
	}
}

func TestPromptModeAllStopsAsking(t *testing.T) {
	tool := &stubTool{name: "read_file", result: "data"}
	toolCall := session.ToolCall{ToolCallID: "tc", Name: "read_file"}
	client := &llm.MockLLMClient{Responses: []*session.Message{
		{Role: "assistant", ToolCalls: []session.ToolCall{toolCall}},
		{Role: "assistant", ToolCalls: []session.ToolCall{toolCall}},
		{Role: "assistant", Content: "done"},
	}}
	a := newTestAgent(t, ModePrompt, client, tool)

	asked := 0
	err := a.ProcessUserInput(context.Background(), "go", ProcessCallbacks{
		ShouldExecuteTool: func(session.ToolCall) console.Outcome {
			asked++
			return console.OutcomeAll
		},
	})
	if err != nil {
		t.Fatalf("ProcessUserInput: %v", err)
	}
	if asked != 1 {
		t.Errorf("approval asked %d times, want 1 (all covers the rest)", asked)
	}
	if tool.calls != 2 {
		t.Errorf("tool ran %d times, want 2", tool.calls)
	}
}

func TestPromptModeCancelAbortsTurn(t *testing.T) {
	tool := &stubTool{name: "read_file", result: "data"}
	client := &llm.MockLLMClient{Responses: []*session.Message{
		{Role: "assistant", ToolCalls: []session.ToolCall{
			{ToolCallID: "tc", Name: "read_file"},
		}},
	}}
	a := newTestAgent(t, ModePrompt, client, tool)

	err := a.ProcessUserInput(context.Background(), "go", ProcessCallbacks{
		ShouldExecuteTool: func(session.ToolCall) console.Outcome { return console.OutcomeCancel },
	})
	if err != ErrTurnCanceled {
		t.Fatalf("err = %v, want ErrTurnCanceled", err)
	}
	if tool.calls != 0 {
		t.Errorf("tool ran %d times after cancel", tool.calls)
	}
}

func TestUnknownToolReportedToModel(t *testing.T) {
	client := &llm.MockLLMClient{Responses: []*session.Message{
		{Role: "assistant", ToolCalls: []session.ToolCall{
			{ToolCallID: "tc", Name: "no_such_tool"},
		}},
		{Role: "assistant", Content: "sorry"},
	}}
	a := newTestAgent(t, ModeAuto, client)

	var result string
	err := a.ProcessUserInput(context.Background(), "go", ProcessCallbacks{
		OnToolResult: func(tc session.ToolCall, r string) { result = r },
	})
	if err != nil {
		t.Fatalf("ProcessUserInput: %v", err)
	}
	if !strings.Contains(result, "not available") {
		t.Errorf("missing-tool result = %q", result)
	}
}

func TestVerbosityCycle(t *testing.T) {
	v := ToolVerbosityNone
	if v = v.Next(); v != ToolVerbosityInfo {
		t.Fatalf("after none: %v", v)
	}
	if v = v.Next(); v != ToolVerbosityAll {
		t.Fatalf("after info: %v", v)
	}
	if v = v.Next(); v != ToolVerbosityNone {
		t.Fatalf("after all: %v", v)
	}
}
