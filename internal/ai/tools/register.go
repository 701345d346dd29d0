package tools

import (
	"fmt"

	"github.com/nidoux/keet/internal/ai"
)

// BuildRegistry creates a Registry with all tools the assistant can call.
// Adding a tool means adding one entry here; nothing else changes.
func BuildRegistry() *ai.Registry {
	r := ai.NewRegistry()
	r.Register(NewGetWeather())
	r.Register(NewGetCurrentTime())
	return r
}

// --- arg extraction helpers ---

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter: %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %s must be a string", key)
	}
	return s, nil
}

// optionalStringArg extracts an optional string parameter, returning "" if absent.
func optionalStringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}
