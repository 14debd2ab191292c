// Package agent provides the core agent functionality for the Cobalt system.
//
// This package contains the common code and abstractions that are shared between
// different interaction modes (terminal CLI and ACP server). It defines the core
// Agent type and the processing logic for handling user input, LLM interactions,
// and tool executions.
//
// # Architecture
//
// The agent package is organized into three main components:
//
//   - Core agent (this package): Contains the shared Agent type and processing logic
//   - Terminal subpackage (agent/terminal): Implements the CLI interaction mode,
//     including hotkey handling and coordinated output via package console
//   - ACP subpackage (agent/acp): Implements the Agent Client Protocol server for IDE integration
//
// # Core Functionality
//
// The Agent type provides:
//
//   - Configuration management for LLM clients and toolsets
//   - Session management for conversation history
//   - Tool discovery and execution, including MCP-provided tools
//   - Processing loop for LLM interactions and tool calls
//   - Callback-based architecture for different interaction modes
//
// # Modes
//
// The agent supports two operation modes:
//
//   - ModeAuto: Tools are executed automatically without confirmation
//   - ModePrompt: Tool execution requires confirmation. The answer may be
//     yes (this call), no (skip it), all (this and every later call), or
//     cancel (abort the whole turn, ErrTurnCanceled)
//
// # Tool Verbosity
//
// Tool execution verbosity can be configured at three levels:
//
//   - ToolVerbosityNone: No tool execution details are shown
//   - ToolVerbosityInfo: Basic tool execution information is shown
//   - ToolVerbosityAll: Detailed tool execution information including arguments and results
//
// # Callbacks
//
// The ProcessCallbacks structure allows different interaction modes to customize
// how agent events are handled. This design enables the same core processing logic
// to be used by both the terminal CLI and the ACP server, while allowing each to
// handle events in their own way (e.g., routing through the console output
// arbiter vs. sending JSON-RPC notifications). OnAssistantDelta additionally
// enables streaming: when set, providers that support it deliver response
// text incrementally.
package agent
