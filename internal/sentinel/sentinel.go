// Package sentinel scans agent transcripts for control signals.
//
// The scan is advisory: the authoritative completion check is always the
// task store on disk. Keeping the trigger phrases in one place lets the
// matching rules be tested independently of the iteration loop.
package sentinel

import "strings"

// Signal is a control signal recognized in agent output.
type Signal int

const (
	// None means no recognized signal.
	None Signal = iota
	// Complete means the agent emitted the completion marker.
	Complete
	// UsageLimit means the upstream agent service refused work due to
	// quota, billing, or rate constraints.
	UsageLimit
)

func (s Signal) String() string {
	switch s {
	case Complete:
		return "complete"
	case UsageLimit:
		return "usage-limit"
	default:
		return "none"
	}
}

// CompletionMarker is the exact literal the agent is instructed to emit
// when it believes every task in the PRD is done.
const CompletionMarker = "<promise>COMPLETE</promise>"

// usageLimitPhrases are matched case-insensitively. They distinguish
// "agent is rate-limited" from "agent is stuck", which get different
// failure handling.
var usageLimitPhrases = []string{
	"usage limit reached",
	"usage limit",
	"rate limit reached",
	"rate limit exceeded",
	"quota exceeded",
	"credit balance",
	"billing",
	"too many requests",
	"overloaded",
}

// Scan inspects agent output and returns the strongest signal found.
// UsageLimit wins over Complete: a throttled agent may still echo the
// completion marker from its own prompt.
func Scan(output string) Signal {
	lower := strings.ToLower(output)
	for _, phrase := range usageLimitPhrases {
		if strings.Contains(lower, phrase) {
			return UsageLimit
		}
	}
	if strings.Contains(output, CompletionMarker) {
		return Complete
	}
	return None
}
