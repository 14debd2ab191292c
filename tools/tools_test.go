package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ryebridge/cobalt/config"
	"github.com/ryebridge/cobalt/tools/mcp"
)

func TestIsPathRestricted(t *testing.T) {
	patterns := []string{".cobalt", ".cobalt/**", "secrets/*.pem"}

	cases := []struct {
		path string
		want bool
	}{
		{".cobalt", true},
		{".cobalt/sessions/work.json", true},
		{"secrets/server.pem", true},
		{"main.go", false},
		{"src/secrets.go", false},
	}
	for _, tc := range cases {
		got, err := isPathRestricted(tc.path, patterns)
		if err != nil {
			t.Fatalf("isPathRestricted(%q): %v", tc.path, err)
		}
		if got != tc.want {
			t.Errorf("isPathRestricted(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}

	if _, err := isPathRestricted("x", []string{"[bad"}); err == nil {
		t.Error("invalid glob pattern did not error")
	}
}

func TestIsCommandAllowed(t *testing.T) {
	allowed := []string{`^go (build|test)`, `^ls\b`}

	cases := []struct {
		cmd  string
		want bool
	}{
		{"go build ./...", true},
		{"go test -run TestX", true},
		{"ls -la", true},
		{"rm -rf /", false},
		{"", false},
	}
	for _, tc := range cases {
		got, err := isCommandAllowed(tc.cmd, allowed)
		if err != nil {
			t.Fatalf("isCommandAllowed(%q): %v", tc.cmd, err)
		}
		if got != tc.want {
			t.Errorf("isCommandAllowed(%q) = %v, want %v", tc.cmd, got, tc.want)
		}
	}
}

func TestReadWriteFileToolsHonorAccessRules(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(target, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	fs := &config.FilesystemAccess{
		Hidden:   []string{filepath.Join(dir, "hidden", "**")},
		ReadOnly: []string{filepath.Join(dir, "*.txt")},
	}
	reader := &ReadFileTool{fsAccess: fs}
	writer := &WriteFileTool{fsAccess: fs}
	ctx := context.Background()

	out, err := reader.Execute(ctx, map[string]interface{}{"path": target})
	if err != nil || out != "hello" {
		t.Errorf("read = %q, %v", out, err)
	}

	if _, err := writer.Execute(ctx, map[string]interface{}{"path": target, "content": "x"}); err == nil {
		t.Error("write to read-only path succeeded")
	}

	hiddenPath := filepath.Join(dir, "hidden", "secret")
	if _, err := reader.Execute(ctx, map[string]interface{}{"path": hiddenPath}); err == nil {
		t.Error("read of hidden path succeeded")
	}

	if _, err := reader.Execute(ctx, map[string]interface{}{}); err == nil {
		t.Error("missing path argument did not error")
	}
}

func TestExecuteCommandToolEnforcesAllowlist(t *testing.T) {
	tool := &ExecuteCommandTool{allowedCommands: []string{`^echo\b`}}
	ctx := context.Background()

	out, err := tool.Execute(ctx, map[string]interface{}{"command": "echo tools-ok"})
	if err != nil {
		t.Fatalf("allowed command failed: %v", err)
	}
	if !strings.Contains(out, "tools-ok") {
		t.Errorf("output missing command result: %q", out)
	}

	if _, err := tool.Execute(ctx, map[string]interface{}{"command": "cat /etc/passwd"}); err == nil {
		t.Error("disallowed command executed")
	}
}

func TestExecuteCommandToolStreamsOutputLines(t *testing.T) {
	var lines []string
	tool := &ExecuteCommandTool{
		allowedCommands: []string{`^printf\b`},
		OnOutput:        func(line string) { lines = append(lines, line) },
	}

	out, err := tool.Execute(context.Background(), map[string]interface{}{
		"command": `printf first\nsecond\n`,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "first") || !strings.Contains(out, "second") {
		t.Errorf("transcript incomplete: %q", out)
	}
	if len(lines) != 2 || lines[0] != "first\n" || lines[1] != "second\n" {
		t.Errorf("streamed lines = %q, want [first\\n second\\n]", lines)
	}
}

func TestExecuteCommandToolStreamsTrailingPartialLine(t *testing.T) {
	var lines []string
	tool := &ExecuteCommandTool{
		allowedCommands: []string{`^printf\b`},
		OnOutput:        func(line string) { lines = append(lines, line) },
	}

	if _, err := tool.Execute(context.Background(), map[string]interface{}{
		"command": "printf no-newline",
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(lines) != 1 || lines[0] != "no-newline" {
		t.Errorf("trailing partial line lost: %q", lines)
	}
}

func TestExecuteCommandToolRejectsEmptyCommand(t *testing.T) {
	tool := &ExecuteCommandTool{allowedCommands: []string{`.*`}}
	if _, err := tool.Execute(context.Background(), map[string]interface{}{"command": "  "}); err == nil {
		t.Error("blank command executed")
	}
}

func TestReadFileToolTruncatesLargeFiles(t *testing.T) {
	dir := t.TempDir()
	big := filepath.Join(dir, "big.log")
	if err := os.WriteFile(big, []byte(strings.Repeat("x", maxReadBytes+100)), 0644); err != nil {
		t.Fatal(err)
	}

	reader := &ReadFileTool{fsAccess: &config.FilesystemAccess{}}
	out, err := reader.Execute(context.Background(), map[string]interface{}{"path": big})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(out) > maxReadBytes+200 {
		t.Errorf("truncated read still %d bytes", len(out))
	}
	if !strings.Contains(out, "truncated") {
		t.Errorf("truncation notice missing: %q", out[len(out)-100:])
	}
}

func TestWriteFileToolCreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b", "notes.txt")

	writer := &WriteFileTool{fsAccess: &config.FilesystemAccess{}}
	if _, err := writer.Execute(context.Background(), map[string]interface{}{
		"path": nested, "content": "hi",
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got, err := os.ReadFile(nested)
	if err != nil || string(got) != "hi" {
		t.Errorf("nested write = %q, %v", got, err)
	}
}

func TestFileToolsCleanPathsBeforeAccessChecks(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "hidden"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "x"), 0755); err != nil {
		t.Fatal(err)
	}
	secret := filepath.Join(dir, "hidden", "secret")
	if err := os.WriteFile(secret, []byte("key"), 0644); err != nil {
		t.Fatal(err)
	}

	fs := &config.FilesystemAccess{Hidden: []string{filepath.Join(dir, "hidden", "**")}}
	reader := &ReadFileTool{fsAccess: fs}

	// The dodgy path resolves to the secret on disk but would not match
	// the glob uncleaned.
	dodgy := dir + "/x/../hidden/secret"
	if _, err := reader.Execute(context.Background(), map[string]interface{}{"path": dodgy}); err == nil {
		t.Errorf("unclean path %q bypassed the hidden glob for %q", dodgy, secret)
	}
}

func TestGetActiveTools(t *testing.T) {
	registry := &ToolRegistry{
		tools:      make(map[string]Tool),
		mcpClients: make(map[string]*mcp.MCPClient),
	}
	registry.Register(&ReadFileTool{fsAccess: &config.FilesystemAccess{}})

	ts := &config.Toolset{Name: "basic", Tools: []string{"read_file"}}
	active, err := registry.GetActiveTools(ts)
	if err != nil {
		t.Fatalf("GetActiveTools: %v", err)
	}
	if len(active) != 1 || active[0].Name() != "read_file" {
		t.Errorf("active = %v", active)
	}

	ts = &config.Toolset{Name: "broken", Tools: []string{"no_such_tool"}}
	if _, err := registry.GetActiveTools(ts); err == nil {
		t.Error("unknown tool did not error")
	}

	// MCP references ("server.tool", "server.*") require the server to be
	// registered; unknown servers fail loudly.
	ts = &config.Toolset{Name: "mcp", Tools: []string{"gopls.*"}}
	if _, err := registry.GetActiveTools(ts); err == nil {
		t.Error("unknown MCP server did not error")
	}
}
