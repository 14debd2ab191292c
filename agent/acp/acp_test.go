package acp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ryebridge/cobalt/agent"
	"github.com/ryebridge/cobalt/config"
	"github.com/ryebridge/cobalt/llm"
	"github.com/ryebridge/cobalt/session"
)

func newTestACPAgent(t *testing.T) *agent.Agent {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })

	cfg := &config.Config{
		LLMClient: "mock",
		Model:     "mock-model",
		Toolsets: []config.Toolset{
			{Name: "default", Tools: []string{}},
		},
	}
	sess, err := session.New("test-acp-session")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	a, err := agent.New(cfg, sess, "default", agent.ModePrompt, &llm.MockLLMClient{}, agent.ToolVerbosityNone)
	if err != nil {
		t.Fatalf("Failed to create agent: %v", err)
	}
	return a
}

// runACP feeds the newline-delimited requests through the server and returns
// the decoded response/notification lines.
func runACP(t *testing.T, a *agent.Agent, requests ...string) []map[string]any {
	t.Helper()
	var stdin bytes.Buffer
	for _, r := range requests {
		stdin.WriteString(r + "\n")
	}
	var stdout bytes.Buffer
	noTrace := false
	err := Run(context.Background(), a, bufio.NewReader(&stdin), bufio.NewWriter(&stdout), &noTrace)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(stdout.String()), "\n") {
		if line == "" {
			continue
		}
		var msg map[string]any
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			t.Fatalf("invalid JSON on stdout: %q: %v", line, err)
		}
		out = append(out, msg)
	}
	return out
}

func TestACPInitialize(t *testing.T) {
	a := newTestACPAgent(t)
	msgs := runACP(t, a,
		`{"jsonrpc":"2.0","id":0,"method":"initialize","params":{"protocolVersion":1}}`)

	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	result, ok := msgs[0]["result"].(map[string]any)
	if !ok {
		t.Fatalf("no result in %v", msgs[0])
	}
	if result["protocolVersion"] != float64(1) {
		t.Errorf("protocolVersion = %v", result["protocolVersion"])
	}
	caps, _ := result["agentCapabilities"].(map[string]any)
	if caps["loadSession"] != true {
		t.Errorf("loadSession capability missing: %v", caps)
	}
}

func TestACPSessionNewAndPrompt(t *testing.T) {
	a := newTestACPAgent(t)

	// session/new first, to learn the session ID.
	msgs := runACP(t, a, `{"jsonrpc":"2.0","id":1,"method":"session/new","params":{"cwd":"."}}`)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	result, _ := msgs[0]["result"].(map[string]any)
	sid, _ := result["sessionId"].(string)
	if !strings.HasPrefix(sid, "sess_") {
		t.Fatalf("sessionId = %q", sid)
	}

	// Prompting an unknown session must answer with an Invalid params
	// error rather than crashing the server.
	msgs = runACP(t, a,
		`{"jsonrpc":"2.0","id":2,"method":"session/prompt","params":{"sessionId":"sess_missing","prompt":[{"type":"text","text":"hello"}]}}`)
	if len(msgs) != 1 || msgs[0]["error"] == nil {
		t.Fatalf("prompt with unknown session did not error: %v", msgs)
	}
}

func TestACPPromptStreamsChunks(t *testing.T) {
	a := newTestACPAgent(t)

	var stdout bytes.Buffer
	server := &acpServer{
		ctx:          context.Background(),
		agent:        a,
		sessions:     make(map[string]*session.Session),
		StdinReader:  bufio.NewReader(&bytes.Buffer{}),
		StdoutWriter: bufio.NewWriter(&stdout),
		writeLock:    &sync.Mutex{},
		trace:        func(string) {},
	}

	server.handleSessionNew(&jsonrpcRequest{JSONRPC: "2.0", ID: 1, Method: "session/new"})

	var sid string
	for id := range server.sessions {
		sid = id
	}
	if sid == "" {
		t.Fatal("session/new did not register a session")
	}
	stdout.Reset()

	server.handleSessionPrompt(&jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "session/prompt",
		Params: map[string]any{
			"sessionId": sid,
			"prompt":    []map[string]any{{"type": "text", "text": "stream me"}},
		},
	})

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	var chunks []string
	var stopReason string
	for _, line := range lines {
		var msg map[string]any
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			t.Fatalf("invalid JSON %q: %v", line, err)
		}
		if msg["method"] == "session/update" {
			params, _ := msg["params"].(map[string]any)
			update, _ := params["update"].(map[string]any)
			if update["sessionUpdate"] == "agent_message_chunk" {
				content, _ := update["content"].(map[string]any)
				chunks = append(chunks, content["text"].(string))
			}
		}
		if result, ok := msg["result"].(map[string]any); ok {
			stopReason, _ = result["stopReason"].(string)
		}
	}

	// The mock client streams word by word, so the full reply arrives in
	// more than one chunk.
	if len(chunks) < 2 {
		t.Fatalf("expected streamed chunks, got %d: %v", len(chunks), chunks)
	}
	full := strings.Join(chunks, "")
	if !strings.Contains(full, "stream me") {
		t.Errorf("reassembled chunks = %q", full)
	}
	if stopReason != "end_turn" {
		t.Errorf("stopReason = %q, want end_turn", stopReason)
	}
}

func TestACPUnknownMethod(t *testing.T) {
	a := newTestACPAgent(t)
	msgs := runACP(t, a, `{"jsonrpc":"2.0","id":9,"method":"no/such/method"}`)
	if len(msgs) != 1 || msgs[0]["error"] == nil {
		t.Fatalf("unknown method response = %v", msgs)
	}
}

// TestExtractUserTextWithResourceLink tests the extractUserText function with ResourceLink content blocks
func TestExtractUserTextWithResourceLink(t *testing.T) {
	testDir := t.TempDir()
	testFile := filepath.Join(testDir, "test.txt")
	testContent := "This is test file content"
	if err := os.WriteFile(testFile, []byte(testContent), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	fileURI := "file://" + testFile

	tests := []struct {
		name     string
		blocks   []contentBlock
		expected string
		contains []string
	}{
		{
			name: "text only",
			blocks: []contentBlock{
				{Type: "text", Text: "Hello"},
				{Type: "text", Text: "World"},
			},
			expected: "Hello\nWorld",
		},
		{
			name: "resource_link with file",
			blocks: []contentBlock{
				{Type: "text", Text: "Check this file:"},
				{
					Type:        "resource_link",
					URI:         fileURI,
					Name:        "test.txt",
					MimeType:    "text/plain",
					Title:       "Test File",
					Description: "A test file",
				},
			},
			contains: []string{
				"Check this file:",
				"=== Resource: test.txt ===",
				"Title: Test File",
				"Description: A test file",
				"URI: file://",
				"Type: text/plain",
				"--- File Contents ---",
				testContent,
				"--- End of File ---",
			},
		},
		{
			name: "resource_link with non-file URI",
			blocks: []contentBlock{
				{
					Type:     "resource_link",
					URI:      "https://example.com/file.txt",
					Name:     "remote.txt",
					MimeType: "text/plain",
				},
			},
			contains: []string{
				"=== Resource: remote.txt ===",
				"URI: https://example.com/file.txt",
				"[External resource - content not available]",
			},
		},
		{
			name: "mixed content",
			blocks: []contentBlock{
				{Type: "text", Text: "Start"},
				{
					Type: "resource_link",
					URI:  "https://example.com/doc.pdf",
					Name: "document.pdf",
				},
				{Type: "text", Text: "End"},
			},
			contains: []string{
				"Start",
				"=== Resource: document.pdf ===",
				"End",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractUserText(tt.blocks)

			if tt.expected != "" {
				if result != tt.expected {
					t.Errorf("extractUserText() = %q, want %q", result, tt.expected)
				}
			}

			for _, substr := range tt.contains {
				if !strings.Contains(result, substr) {
					t.Errorf("extractUserText() result does not contain %q\nGot: %q", substr, result)
				}
			}
		})
	}
}
