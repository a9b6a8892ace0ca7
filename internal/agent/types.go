package agent

import (
	"context"
	"time"
)

// Result represents the outcome of one agent invocation.
//
// Err is set only for process-level failures (the agent binary could not
// run or exited abnormally). A run that completed but reported an
// unsuccessful turn has Success=false with Err=nil; the orchestrator
// keeps iterating in that case but treats Err as fatal.
type Result struct {
	Success  bool          // Whether the agent reported a successful turn
	Output   string        // Full captured stdout text
	Duration time.Duration // How long the invocation took
	Tokens   int           // Total tokens used (if reported)
	Err      error         // Process-level failure, distinct from task failure
}

// Event represents a normalized event from any agent's output stream.
type Event struct {
	Type   EventType // Category of event
	Tool   string    // Tool name (read, write, run, etc.)
	Detail string    // Path, command, message, etc.
	Data   EventData // Additional structured data
}

// EventType categorizes agent output events.
type EventType string

const (
	EventInit    EventType = "init"    // Session initialization
	EventTool    EventType = "tool"    // Tool invocation
	EventText    EventType = "text"    // Text response
	EventResult  EventType = "result"  // Final result
	EventError   EventType = "error"   // Error occurred
	EventUnknown EventType = "unknown" // Unrecognized event
)

// EventData holds optional structured data for events.
type EventData struct {
	Model      string  // Model name (for init events)
	Success    bool    // Success status (for result events)
	Tokens     int     // Token count (for result events)
	DurationMs float64 // Duration in ms (for result events)
	Message    string  // Error or info message
}

// Engine defines the interface for external coding-agent integrations.
// Execute is a blocking call: it returns only once the agent process has
// terminated and its output is fully captured.
type Engine interface {
	// Name returns the engine identifier (e.g., "claude").
	Name() string

	// Execute runs the instruction payload and returns the result.
	// The display is used to show progress during execution.
	Execute(ctx context.Context, prompt string, display *Display) Result
}

// OutputParser parses engine-specific output into normalized Events.
type OutputParser interface {
	// ParseLine parses a single line of output and returns an Event.
	// Returns nil if the line should be ignored.
	ParseLine(line []byte) *Event
}
