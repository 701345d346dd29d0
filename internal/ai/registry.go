package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// Max JSON output length before truncation (~8KB, keeps token usage low)
	maxOutputLen = 8192
	// Per-tool execution timeout
	toolTimeout = 30 * time.Second
	// Max items in a list before truncation
	maxListItems = 10
)

// ParamSchema describes tool parameters using JSON Schema conventions.
type ParamSchema struct {
	Type        string                  `json:"type"`
	Description string                  `json:"description,omitempty"`
	Properties  map[string]*ParamSchema `json:"properties,omitempty"`
	Required    []string                `json:"required,omitempty"`
	Enum        []string                `json:"enum,omitempty"`
	Items       *ParamSchema            `json:"items,omitempty"`
}

// Tool is a single function the model can call.
type Tool interface {
	Name() string
	Description() string
	Parameters() *ParamSchema
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Registry holds all registered tools. It is populated once at startup and
// read-only afterwards, so it is safe to share across concurrent runs.
type Registry struct {
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
	return t, nil
}

// ExecuteTool validates args, applies a timeout, runs the tool, truncates
// large outputs, and logs execution duration.
func (r *Registry) ExecuteTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	t, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	if schema := t.Parameters(); schema != nil {
		if err := validateArgs(schema, args); err != nil {
			return nil, &ToolError{
				Type:    ErrValidation,
				Message: fmt.Sprintf("invalid arguments for %s: %v", name, err),
			}
		}
	}

	toolCtx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	start := time.Now()
	result, err := t.Execute(toolCtx, args)
	elapsed := time.Since(start)

	log.Debug().Str("tool", name).Dur("elapsed", elapsed).Msg("tool executed")

	if err != nil {
		return nil, err
	}

	return truncateOutput(result), nil
}

// validateArgs checks that all required parameters are present and have correct types.
func validateArgs(schema *ParamSchema, args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	for _, req := range schema.Required {
		v, ok := args[req]
		if !ok || v == nil {
			return fmt.Errorf("missing required parameter: %s", req)
		}

		prop, hasProp := schema.Properties[req]
		if !hasProp {
			continue
		}

		switch prop.Type {
		case "string":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("parameter %s must be a string", req)
			}
			if s == "" {
				return fmt.Errorf("parameter %s must not be empty", req)
			}
			if len(prop.Enum) > 0 {
				valid := false
				for _, e := range prop.Enum {
					if s == e {
						valid = true
						break
					}
				}
				if !valid {
					return fmt.Errorf("parameter %s must be one of: %v", req, prop.Enum)
				}
			}
		case "integer", "number":
			switch v.(type) {
			case float64, int:
				// ok
			default:
				return fmt.Errorf("parameter %s must be numeric", req)
			}
		}
	}
	return nil
}

// truncateOutput caps oversized list fields and the total payload size so a
// single tool result cannot blow the context window.
func truncateOutput(result map[string]any) map[string]any {
	for key, val := range result {
		if items, ok := val.([]map[string]any); ok && len(items) > maxListItems {
			originalCount := len(items)
			result[key] = items[:maxListItems]
			result["_truncated"] = true
			result["_truncated_field"] = key
			result["_original_count"] = originalCount
			result["_note"] = fmt.Sprintf("Showing %d of %d results. Suggest the user narrow the query.", maxListItems, originalCount)
			return result
		}
	}

	data, err := json.Marshal(result)
	if err != nil || len(data) <= maxOutputLen {
		return result
	}

	log.Warn().Int("from", len(data)).Int("to", maxOutputLen).Msg("tool output truncated")
	return map[string]any{
		"_truncated": true,
		"_summary":   string(data[:maxOutputLen]),
	}
}

// OpenAITools returns tool definitions for the OpenAI chat completion API,
// in stable name order. Schemas are strict: the model is told to reject
// arguments outside the declared properties.
func (r *Registry) OpenAITools() []map[string]any {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	tools := make([]map[string]any, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		fn := map[string]any{
			"name":        t.Name(),
			"description": t.Description(),
			"strict":      true,
		}
		if p := t.Parameters(); p != nil {
			fn["parameters"] = schemaToMap(p)
		}
		tools = append(tools, map[string]any{
			"type":     "function",
			"function": fn,
		})
	}
	return tools
}

func schemaToMap(s *ParamSchema) map[string]any {
	m := map[string]any{"type": s.Type}
	if s.Description != "" {
		m["description"] = s.Description
	}
	if s.Type == "object" {
		m["additionalProperties"] = false
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any)
		for k, v := range s.Properties {
			props[k] = schemaToMap(v)
		}
		m["properties"] = props
	}
	if len(s.Required) > 0 {
		m["required"] = s.Required
	}
	if len(s.Enum) > 0 {
		m["enum"] = s.Enum
	}
	if s.Items != nil {
		m["items"] = schemaToMap(s.Items)
	}
	return m
}
