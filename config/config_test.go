package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeProjectConfig(t *testing.T, yaml string) {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })

	if err := os.MkdirAll(filepath.Join(dir, ".cobalt"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".cobalt", "config.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfigReadsConsoleSection(t *testing.T) {
	writeProjectConfig(t, `
llm: anthropic
model: claude-sonnet-4
console:
  queue_size: 512
  editor: nano
  hotkeys:
    - key: Ctrl+E
      action: compose
    - key: F2
      action: cycle_verbosity
toolsets:
  - name: default
    tools: [read_file]
`)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Console.QueueSize != 512 {
		t.Errorf("queue_size = %d, want 512", cfg.Console.QueueSize)
	}
	if cfg.Console.Editor != "nano" {
		t.Errorf("editor = %q, want nano", cfg.Console.Editor)
	}
	if len(cfg.Console.Hotkeys) != 2 || cfg.Console.Hotkeys[0].Key != "Ctrl+E" || cfg.Console.Hotkeys[0].Action != "compose" {
		t.Errorf("hotkeys = %+v", cfg.Console.Hotkeys)
	}
}

func TestLoadConfigHidesOwnDirectory(t *testing.T) {
	writeProjectConfig(t, "llm: openai\n")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	found := false
	for _, h := range cfg.FilesystemAccess.Hidden {
		if h == ".cobalt" {
			found = true
		}
	}
	if !found {
		t.Errorf(".cobalt not hidden by default: %v", cfg.FilesystemAccess.Hidden)
	}
}

func TestGetToolset(t *testing.T) {
	cfg := &Config{Toolsets: []Toolset{
		{Name: "default", Tools: []string{"read_file"}},
		{Name: "full", Tools: []string{"read_file", "execute_command"}},
	}}

	ts, err := cfg.GetToolset("full")
	if err != nil || ts.Name != "full" {
		t.Errorf("GetToolset(full) = %v, %v", ts, err)
	}
	ts, err = cfg.GetToolset("")
	if err != nil || ts.Name != "default" {
		t.Errorf("GetToolset(empty) = %v, %v", ts, err)
	}
	ts, err = cfg.GetToolset("nonexistent")
	if err != nil || ts.Name != "default" {
		t.Errorf("GetToolset(nonexistent) = %v, %v", ts, err)
	}

	empty := &Config{}
	if _, err := empty.GetToolset(""); err == nil {
		t.Error("missing default toolset did not error")
	}
}

func TestEditorCommand(t *testing.T) {
	t.Setenv("EDITOR", "emacs")
	cfg := &Config{}
	if got := cfg.EditorCommand(); got != "emacs" {
		t.Errorf("EditorCommand = %q, want emacs", got)
	}
	cfg.Console.Editor = "nano"
	if got := cfg.EditorCommand(); got != "nano" {
		t.Errorf("EditorCommand = %q, want nano", got)
	}
	t.Setenv("EDITOR", "")
	cfg.Console.Editor = ""
	if got := cfg.EditorCommand(); got != "vi" {
		t.Errorf("EditorCommand = %q, want vi", got)
	}
}
