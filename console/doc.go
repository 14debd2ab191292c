// Package console implements terminal hotkey capture and coordinated output
// for the Cobalt agent.
//
// A background reader owns the terminal's raw mode and feeds bytes to an
// escape-sequence decoder (package console/key), whose events a dispatcher
// routes to registered hotkey handlers. All terminal output flows through a
// single arbiter goroutine, so a streaming model response, tool output and
// hotkey notices never interleave mid-message. A suspend controller hands
// exclusive stdin ownership to foreground prompts (line input, tool
// approvals) and back again without losing decoder state.
//
// The subsystem degrades rather than crashes: losing the terminal disables
// hotkeys but leaves the agent loop running, handler panics are contained at
// the dispatch boundary, and queue overflow drops only normal-priority
// messages (counted, never silent).
//
// Everything is owned by a Console instance created with New; there is no
// package-level state.
package console
