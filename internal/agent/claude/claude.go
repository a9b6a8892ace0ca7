package claude

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/forgeworks/prdpilot/internal/agent"
)

func init() {
	agent.Register("claude", func() agent.Engine {
		return New()
	})
}

// Engine executes instruction payloads using the Claude Code CLI.
type Engine struct {
	Timeout time.Duration
}

// DefaultTimeout bounds a single invocation. Individual agent turns are
// otherwise unbounded per the orchestration model; this is a stuck-process
// backstop, not a scheduling mechanism.
const DefaultTimeout = 30 * time.Minute

// New creates a new Claude engine.
func New() *Engine {
	return &Engine{
		Timeout: DefaultTimeout,
	}
}

// Name returns the engine identifier.
func (e *Engine) Name() string {
	return "claude"
}

// CLICommand returns the CLI executable name.
func (e *Engine) CLICommand() string {
	return "claude"
}

// BuildArgs returns the CLI arguments for execution.
func (e *Engine) BuildArgs(prompt string) []string {
	return []string{
		"-p",
		"--dangerously-skip-permissions",
		"--verbose",
		"--output-format", "stream-json",
		prompt,
	}
}

// Execute runs the payload using the Claude Code CLI and blocks until the
// process exits. A process-level failure is reported via Result.Err;
// an unsuccessful turn is Success=false with Err=nil.
func (e *Engine) Execute(ctx context.Context, prompt string, display *agent.Display) agent.Result {
	timeout := e.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	startTime := time.Now()

	args := e.BuildArgs(prompt)
	cmd := exec.CommandContext(ctx, e.CLICommand(), args...)

	// Detach from the controlling TTY. The CLI writes interactive hints
	// straight to /dev/tty when it detects a terminal; with no stdin and
	// its own session it skips TTY detection and emits clean stream-json.
	cmd.Stdin = nil
	cmd.SysProcAttr = newSysProcAttr()

	var stdout, stderr bytes.Buffer
	parser := NewParser()
	streamWriter := &streamHandler{
		parser:  parser,
		display: display,
	}

	cmd.Stdout = io.MultiWriter(streamWriter, &stdout)
	cmd.Stderr = &stderr

	err := cmd.Run()
	streamWriter.Flush()

	output := stdout.String()
	duration := time.Since(startTime)

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return agent.Result{
				Output:   output,
				Duration: duration,
				Err:      fmt.Errorf("execution timed out after %s", timeout),
			}
		}
		return agent.Result{
			Output:   output,
			Duration: duration,
			Err:      fmt.Errorf("execution failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String())),
		}
	}

	return agent.Result{
		Success:  e.parseSuccess(output),
		Output:   output,
		Duration: duration,
		Tokens:   e.parseTokens(output),
	}
}

// parseSuccess checks if the final result event indicates success.
func (e *Engine) parseSuccess(output string) bool {
	if event := e.resultEvent(output); event != nil {
		return event.Data.Success
	}
	// If we can't parse, assume success if the process exited cleanly.
	return true
}

// parseTokens extracts the total token count from the result event.
func (e *Engine) parseTokens(output string) int {
	if event := e.resultEvent(output); event != nil {
		return event.Data.Tokens
	}
	return 0
}

func (e *Engine) resultEvent(output string) *agent.Event {
	parser := NewParser()
	for _, line := range strings.Split(output, "\n") {
		event := parser.ParseLine([]byte(line))
		if event != nil && event.Type == agent.EventResult {
			return event
		}
	}
	return nil
}

// streamHandler processes output line by line.
type streamHandler struct {
	parser  *Parser
	display *agent.Display
	buffer  []byte
}

func (h *streamHandler) Write(p []byte) (n int, err error) {
	h.buffer = append(h.buffer, p...)

	// Process complete lines
	for {
		idx := bytes.IndexByte(h.buffer, '\n')
		if idx == -1 {
			break
		}

		line := h.buffer[:idx]
		h.buffer = h.buffer[idx+1:]

		event := h.parser.ParseLine(line)
		h.display.ShowEvent(event)
	}

	return len(p), nil
}

func (h *streamHandler) Flush() {
	if len(h.buffer) > 0 {
		event := h.parser.ParseLine(h.buffer)
		h.display.ShowEvent(event)
		h.buffer = nil
	}
}
