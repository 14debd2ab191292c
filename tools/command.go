package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/ryebridge/cobalt/errors"
)

// ExecuteCommandTool runs allowlisted shell commands. When OnOutput is set,
// combined stdout/stderr is surfaced line by line while the command runs, so
// long-running commands show progress instead of going silent until exit.
type ExecuteCommandTool struct {
	allowedCommands []string

	// OnOutput, if non-nil, receives each output line (newline included)
	// as it is produced. The full transcript is still returned to the
	// model when the command finishes.
	OnOutput func(line string)
}

func (t *ExecuteCommandTool) Name() string { return "execute_command" }
func (t *ExecuteCommandTool) Description() string {
	if len(t.allowedCommands) == 0 {
		return "Executes a shell command. No commands are currently allowed. Args: command (string)."
	}

	allowedList := "Allowed command wildcard patterns:\n"
	for _, cmd := range t.allowedCommands {
		allowedList += fmt.Sprintf("- %s\n", cmd)
	}

	return fmt.Sprintf("Executes a shell command. Args: command (string).\n%s", allowedList)
}

func (t *ExecuteCommandTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	command, ok := args["command"].(string)
	if !ok {
		return "", errors.New("missing or invalid 'command' argument")
	}

	allowed, err := isCommandAllowed(command, t.allowedCommands)
	if err != nil {
		return "", err
	}
	if !allowed {
		return "", errors.New("command '%s' is not in the list of allowed commands", command)
	}

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)

	// stdout and stderr share one sink so the transcript keeps the order
	// the process produced. exec copies the two pipes from separate
	// goroutines, hence the sink's own locking.
	sink := &transcript{onLine: t.OnOutput}
	cmd.Stdout = sink
	cmd.Stderr = sink

	runErr := cmd.Run()
	sink.close()

	if runErr != nil {
		return "", errors.Wrapf(runErr, "command execution failed. Output:\n%s", sink.String())
	}
	return fmt.Sprintf("Command executed successfully. Output:\n%s", sink.String()), nil
}

// transcript accumulates command output and optionally forwards it a line at
// a time. Safe for the concurrent writes os/exec performs when stdout and
// stderr point at the same non-file writer.
type transcript struct {
	onLine func(string)

	mu   sync.Mutex
	all  bytes.Buffer
	line bytes.Buffer
}

func (w *transcript) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.all.Write(p)
	if w.onLine == nil {
		return len(p), nil
	}
	for _, b := range p {
		w.line.WriteByte(b)
		if b == '\n' {
			w.onLine(w.line.String())
			w.line.Reset()
		}
	}
	return len(p), nil
}

// close flushes a trailing partial line once the command has exited.
func (w *transcript) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.onLine != nil && w.line.Len() > 0 {
		w.onLine(w.line.String())
		w.line.Reset()
	}
}

func (w *transcript) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.all.String()
}
