package agent

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Progress bar characters
const (
	barFilled = "█"
	barEmpty  = "░"
	barWidth  = 20
)

// Flusher is an optional interface for writers that support flushing.
type Flusher interface {
	Sync() error
}

// Display handles terminal output with spinners and formatted status.
// All orchestrator console output goes through it so the control logic
// stays free of formatting concerns.
type Display struct {
	out       io.Writer
	mu        sync.Mutex
	spinMu    sync.Mutex // Separate mutex for spinner to avoid deadlock
	spinning  bool
	spinStop  chan struct{}
	spinDone  chan struct{}
	spinMsg   string
	lastTool  string
	loopStart time.Time
	toolStart time.Time

	// Stats tracking
	totalTokens int
}

// NewDisplay creates a new display writer.
func NewDisplay(out io.Writer) *Display {
	return &Display{
		out:       out,
		loopStart: time.Now(),
	}
}

// Out returns the underlying writer, for collaborators that log directly.
func (d *Display) Out() io.Writer { return d.out }

// flush attempts to flush the output if it supports it.
func (d *Display) flush() {
	if f, ok := d.out.(Flusher); ok {
		f.Sync()
	}
}

// StartSpinner begins the loading spinner with a message.
func (d *Display) StartSpinner(msg string) {
	d.spinMu.Lock()
	if d.spinning {
		d.spinMu.Unlock()
		return
	}
	d.spinning = true
	d.spinMsg = msg
	d.spinStop = make(chan struct{})
	d.spinDone = make(chan struct{})
	d.spinMu.Unlock()

	go func() {
		defer close(d.spinDone)
		frame := 0
		first := true
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-d.spinStop:
				// Move up, clear line, stay there for next output
				fmt.Fprintf(d.out, "\033[1A\r\033[K")
				d.flush()
				return
			case <-ticker.C:
				elapsed := formatElapsed(time.Since(d.toolStart))
				if first {
					fmt.Fprintf(d.out, "   %s %s (%s)\n", SpinnerFrames[frame], d.spinMsg, elapsed)
					first = false
				} else {
					fmt.Fprintf(d.out, "\033[1A\r\033[K   %s %s (%s)\n", SpinnerFrames[frame], d.spinMsg, elapsed)
				}
				d.flush()
				frame = (frame + 1) % len(SpinnerFrames)
			}
		}
	}()
}

// StopSpinner stops the loading spinner.
func (d *Display) StopSpinner() {
	d.spinMu.Lock()
	if !d.spinning {
		d.spinMu.Unlock()
		return
	}
	d.spinning = false
	close(d.spinStop)
	d.spinMu.Unlock()
	<-d.spinDone
}

// ShowEvent displays a normalized event.
func (d *Display) ShowEvent(e *Event) {
	if e == nil {
		return
	}

	// Stop any running spinner before showing new event
	d.StopSpinner()

	d.mu.Lock()

	var startSpinnerMsg string

	switch e.Type {
	case EventInit:
		if e.Data.Model != "" {
			fmt.Fprintf(d.out, "   %s\n", StyleMuted.Render("model: "+e.Data.Model))
		}
		d.toolStart = time.Now()
		startSpinnerMsg = "thinking..."

	case EventTool:
		// Avoid duplicate consecutive tool messages
		toolKey := e.Tool + e.Detail
		if toolKey == d.lastTool {
			d.mu.Unlock()
			return
		}
		d.lastTool = toolKey
		d.toolStart = time.Now()

		detail := e.Detail
		if detail != "" {
			detail = " " + detail
		}
		fmt.Fprintf(d.out, "   %s %s%s\n", StyleAccent.Render("▶"), e.Tool, StyleMuted.Render(detail))

		startSpinnerMsg = truncate(e.Tool+detail, 40)

	case EventResult:
		status := StyleSuccess.Render("[ok]")
		if !e.Data.Success {
			status = StyleError.Render("[!!]")
		}
		duration := int(e.Data.DurationMs / 1000)
		fmt.Fprintf(d.out, "   %s %ds", status, duration)
		if e.Data.Tokens > 0 {
			d.totalTokens += e.Data.Tokens
			fmt.Fprintf(d.out, " | %s tokens", formatTokens(e.Data.Tokens))
		}
		fmt.Fprintln(d.out)

	case EventError:
		fmt.Fprintf(d.out, "   %s %s\n", StyleError.Render("[!!]"), e.Data.Message)

	case EventText:
		// Text events are usually the final response; don't show inline,
		// but keep the spinner up so the user sees we're still working.
		startSpinnerMsg = "working..."
	}

	d.mu.Unlock()

	// Start spinner after releasing lock (if needed)
	if startSpinnerMsg != "" {
		d.StartSpinner(startSpinnerMsg)
	}
}

// ShowCampaignHeader displays the campaign banner.
func (d *Display) ShowCampaignHeader(engineName string, pending, total int) {
	d.loopStart = time.Now()
	lines := []string{
		StyleTitle.Render("PRD Campaign"),
		fmt.Sprintf("Engine: %s", engineName),
		fmt.Sprintf("PRDs: %d pending / %d total", pending, total),
	}
	fmt.Fprintln(d.out, HeaderBox().Render(strings.Join(lines, "\n")))
	fmt.Fprintln(d.out)
}

// ShowPRDHeader displays the banner for one PRD run.
func (d *Display) ShowPRDHeader(name, branch string, budget int) {
	lines := []string{
		StyleBold.Render(name),
		fmt.Sprintf("Branch: %s", branch),
		fmt.Sprintf("Iteration budget: %d", budget),
	}
	fmt.Fprintln(d.out, HeaderBox().Render(strings.Join(lines, "\n")))
	fmt.Fprintln(d.out)
}

// TaskInfo holds information about the task the agent is expected to
// work on next.
type TaskInfo struct {
	ID    string
	Title string
}

// ShowIterationHeader displays the iteration banner with progress bar.
func (d *Display) ShowIterationHeader(current, max int, task *TaskInfo) {
	d.lastTool = "" // Reset for new iteration

	progress := float64(current-1) / float64(max)
	filled := int(progress * barWidth)
	if filled > barWidth {
		filled = barWidth
	}

	bar := StyleProgressFilled.Render(strings.Repeat(barFilled, filled)) +
		StyleProgressEmpty.Render(strings.Repeat(barEmpty, barWidth-filled))
	elapsed := time.Since(d.loopStart).Round(time.Second)

	rule := StyleMuted.Render(strings.Repeat("─", 55))
	fmt.Fprintln(d.out, rule)
	fmt.Fprintf(d.out, "  Iteration %d/%d  [%s]  %s elapsed\n", current, max, bar, elapsed)
	if task != nil {
		taskLine := fmt.Sprintf("  >>> %s: %s", task.ID, task.Title)
		fmt.Fprintf(d.out, "%s\n", truncate(taskLine, 55))
	}
	fmt.Fprintln(d.out, rule)
}

// ShowIterationComplete displays iteration completion status.
func (d *Display) ShowIterationComplete(current int) {
	d.StopSpinner()
	fmt.Fprintf(d.out, "   %s\n\n", StyleMuted.Render(fmt.Sprintf("--- iteration %d complete ---", current)))
}

// ShowSuccess displays a success message with final stats.
func (d *Display) ShowSuccess(msg string) {
	d.StopSpinner()
	elapsed := time.Since(d.loopStart).Round(time.Second)

	lines := []string{
		StyleSuccess.Render("[ok] " + msg),
		fmt.Sprintf("Total time: %s", elapsed),
	}
	if d.totalTokens > 0 {
		lines = append(lines, fmt.Sprintf("Total tokens: %s", formatTokens(d.totalTokens)))
	}
	fmt.Fprintln(d.out)
	fmt.Fprintln(d.out, SuccessBox().Render(strings.Join(lines, "\n")))
}

// ShowError displays an error message.
func (d *Display) ShowError(msg string) {
	d.StopSpinner()
	fmt.Fprintln(d.out)
	fmt.Fprintln(d.out, ErrorBox().Render(StyleError.Render("[!!] ")+msg))
}

// ShowWarning displays a warning message.
func (d *Display) ShowWarning(format string, args ...interface{}) {
	d.StopSpinner()
	fmt.Fprintf(d.out, "%s %s", StyleWarning.Render("[warn]"), fmt.Sprintf(format, args...))
}

// ShowInfo displays an informational message.
func (d *Display) ShowInfo(format string, args ...interface{}) {
	fmt.Fprintf(d.out, format, args...)
}

// formatElapsed renders a short elapsed-time label.
func formatElapsed(elapsed time.Duration) string {
	if elapsed < time.Minute {
		return fmt.Sprintf("%ds", int(elapsed.Seconds()))
	}
	return fmt.Sprintf("%dm%ds", int(elapsed.Minutes()), int(elapsed.Seconds())%60)
}

// formatTokens renders a token count like "12.3k".
func formatTokens(tokens int) string {
	if tokens < 1000 {
		return fmt.Sprintf("%d", tokens)
	}
	return fmt.Sprintf("%.1fk", float64(tokens)/1000)
}

// truncate shortens a string to max characters, adding "..." if cut.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
