package agent

import (
	"context"
	"fmt"

	"github.com/ryebridge/cobalt/config"
	"github.com/ryebridge/cobalt/console"
	"github.com/ryebridge/cobalt/errors"
	"github.com/ryebridge/cobalt/llm"
	"github.com/ryebridge/cobalt/session"
	"github.com/ryebridge/cobalt/tools"
)

type Mode string

const (
	ModeAuto   Mode = "auto"
	ModePrompt Mode = "prompt"
)

// ToolVerbosity controls how much tool execution detail reaches the user.
type ToolVerbosity string

const (
	ToolVerbosityNone ToolVerbosity = "none"
	ToolVerbosityInfo ToolVerbosity = "info"
	ToolVerbosityAll  ToolVerbosity = "all"
)

// Next cycles to the following verbosity level, wrapping around. Used by the
// terminal's verbosity hotkey.
func (v ToolVerbosity) Next() ToolVerbosity {
	switch v {
	case ToolVerbosityNone:
		return ToolVerbosityInfo
	case ToolVerbosityInfo:
		return ToolVerbosityAll
	default:
		return ToolVerbosityNone
	}
}

// ErrTurnCanceled is returned by ProcessUserInput when the user cancels the
// turn from an approval prompt or a hotkey.
var ErrTurnCanceled = errors.New("turn canceled by user")

// ProcessCallbacks lets each interaction mode (terminal, ACP) decide how
// agent events are surfaced. Any callback may be nil.
type ProcessCallbacks struct {
	// OnAssistantDelta receives streamed response text as it arrives. When
	// set, providers that support streaming are used in streaming mode.
	OnAssistantDelta func(delta string)
	// OnAssistantMessage receives each complete assistant message.
	OnAssistantMessage func(message string)
	// OnToolCall fires before a tool is considered for execution.
	OnToolCall func(toolCall session.ToolCall)
	// OnToolResult fires after a tool ran (or failed).
	OnToolResult func(toolCall session.ToolCall, result string)
	// ShouldExecuteTool decides whether a tool call may run. Only consulted
	// in prompt mode, and skipped once a previous answer was "all".
	ShouldExecuteTool func(toolCall session.ToolCall) console.Outcome
	// OnWarning receives non-fatal problems (failed session save, etc).
	OnWarning func(warning string)
}

type Agent struct {
	Config         *config.Config
	Session        *session.Session
	LLMClient      llm.LLMClient
	AvailableTools []tools.Tool
	Mode           Mode
	Verbosity      ToolVerbosity

	registry   *tools.ToolRegistry
	approveAll bool
}

func New(cfg *config.Config, sess *session.Session, toolset string, mode Mode, client llm.LLMClient, verbosity ToolVerbosity) (*Agent, error) {
	ts, err := cfg.GetToolset(toolset)
	if err != nil {
		return nil, err
	}

	registry := tools.NewToolRegistry(cfg)
	activeTools, err := registry.GetActiveTools(ts)
	if err != nil {
		registry.Close()
		return nil, err
	}

	sess.Mode = string(mode)
	sess.Toolset = ts.Name
	sess.ToolVerbosity = string(verbosity)

	return &Agent{
		Config:         cfg,
		Session:        sess,
		LLMClient:      client,
		AvailableTools: activeTools,
		Mode:           mode,
		Verbosity:      verbosity,
		registry:       registry,
	}, nil
}

// Close releases agent resources, in particular MCP server subprocesses.
func (a *Agent) Close() {
	if a.registry != nil {
		a.registry.Close()
	}
}

// ProcessUserInput runs one full turn: the user message goes to the model,
// requested tools are (optionally after approval) executed with their results
// fed back, and the loop repeats until the model answers without tool calls.
func (a *Agent) ProcessUserInput(ctx context.Context, userInput string, callbacks ProcessCallbacks) error {
	a.Session.AddMessage(session.Message{Role: "user", Content: userInput})

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		response, err := llm.Chat(ctx, a.LLMClient, a.Session.Messages, a.AvailableTools, callbacks.OnAssistantDelta)
		if err != nil {
			return errors.Wrapf(err, "LLM chat failed")
		}

		a.Session.AddMessage(*response)
		if response.Content != "" && callbacks.OnAssistantMessage != nil {
			callbacks.OnAssistantMessage(response.Content)
		}

		a.saveSession(callbacks)

		if len(response.ToolCalls) == 0 {
			return nil
		}

		for _, toolCall := range response.ToolCalls {
			if callbacks.OnToolCall != nil {
				callbacks.OnToolCall(toolCall)
			}

			result, err := a.runTool(ctx, toolCall, callbacks)
			if err != nil {
				return err
			}

			a.Session.AddMessage(session.Message{
				Role:      "tool",
				Content:   result,
				ToolCalls: []session.ToolCall{toolCall},
			})
			if callbacks.OnToolResult != nil {
				callbacks.OnToolResult(toolCall, result)
			}
		}

		a.saveSession(callbacks)
	}
}

// runTool applies the approval policy and executes one tool call. The
// returned string is what the model sees as the tool result; execution
// failures are reported there rather than aborting the turn.
func (a *Agent) runTool(ctx context.Context, toolCall session.ToolCall, callbacks ProcessCallbacks) (string, error) {
	if a.Mode == ModePrompt && !a.approveAll {
		outcome := console.OutcomeYes
		if callbacks.ShouldExecuteTool != nil {
			outcome = callbacks.ShouldExecuteTool(toolCall)
		}
		switch outcome {
		case console.OutcomeAll:
			a.approveAll = true
		case console.OutcomeNo:
			return fmt.Sprintf("User denied execution of tool '%s'.", toolCall.Name), nil
		case console.OutcomeCancel:
			return "", ErrTurnCanceled
		}
	}

	tool := a.findTool(toolCall.Name)
	if tool == nil {
		return fmt.Sprintf("Error: tool '%s' is not available.", toolCall.Name), nil
	}

	result, err := tool.Execute(ctx, toolCall.Args)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return fmt.Sprintf("Error executing tool '%s': %v", toolCall.Name, err), nil
	}
	return result, nil
}

func (a *Agent) findTool(name string) tools.Tool {
	for _, t := range a.AvailableTools {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

func (a *Agent) saveSession(callbacks ProcessCallbacks) {
	if err := a.Session.Save(); err != nil && callbacks.OnWarning != nil {
		callbacks.OnWarning(fmt.Sprintf("failed to save session: %v", err))
	}
}
