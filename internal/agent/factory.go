package agent

import (
	"fmt"
	"sort"
	"strings"
)

// engineConstructors maps engine names to their constructors.
// Engines register themselves via Register from an init function.
var engineConstructors = make(map[string]func() Engine)

// Register registers an engine constructor by name.
func Register(name string, constructor func() Engine) {
	engineConstructors[strings.ToLower(name)] = constructor
}

// New creates an engine by name.
func New(name string) (Engine, error) {
	constructor, ok := engineConstructors[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown engine: %s (supported: %s)", name, strings.Join(Available(), ", "))
	}
	return constructor(), nil
}

// Available returns the registered engine names, sorted.
func Available() []string {
	names := make([]string, 0, len(engineConstructors))
	for name := range engineConstructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
