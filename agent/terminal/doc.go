// Package terminal implements the command-line interface (CLI) mode for the Cobalt agent.
//
// This package provides an interactive terminal-based user interface where users can
// communicate with the agent through text prompts and receive responses directly in
// the terminal. It handles user input, displays agent responses, manages tool execution
// confirmations (in prompt mode), and provides appropriate verbosity levels for tool
// execution output.
//
// The terminal owns a console.Console: a raw-mode hotkey reader plus an
// output arbiter that keeps streamed model text, tool notices and hotkey
// feedback from interleaving. Line input and approval prompts suspend the
// hotkey reader for their duration and resume it afterwards.
//
// # Usage
//
// To use the terminal interface, create an agent instance and pass it to the terminal:
//
//	agent, err := agent.New(cfg, session, toolset, mode, llmClient, verbosity)
//	if err != nil {
//	    // handle error
//	}
//
//	term := terminal.New(agent)
//	err = term.Run(ctx, initialPrompt)
//
// # Features
//
//   - Interactive prompt-based conversation with the agent
//   - Streaming display of model responses as they arrive
//   - Support for initial prompts from command-line arguments
//   - Tool execution confirmation in prompt mode (yes / no / all / cancel)
//   - Configurable verbosity levels for tool execution output
//   - Session management with conversation history
//   - Exit commands (/quit, /exit) for graceful termination
//
// # Hotkeys
//
// Built-in bindings, all rebindable from the console section of the config:
//
//   - Ctrl+C: cancel the running turn; pressed again while idle, quit
//   - Escape: stop the current streamed response
//   - F2: cycle tool verbosity (none / info / all)
//   - Ctrl+E: compose the next prompt in the external editor
package terminal
