package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/nidoux/keet/internal/conversation"
)

const (
	// maxToolRounds bounds the model-call/tool-execution cycle. A model that
	// keeps requesting tools past this many rounds aborts the run with
	// ErrToolLoopExceeded instead of looping forever.
	maxToolRounds = 8

	maxOutputTokens = 512
	defaultModel    = "gpt-4.1"
	openAIEndpoint  = "https://api.openai.com/v1/chat/completions"
)

// Agent drives the tool-calling protocol against the OpenAI chat completions
// API. One Agent is constructed at startup and shared by all runs; it holds
// no per-run mutable state.
type Agent struct {
	apiKey   string
	endpoint string
	model    string
	registry *Registry
	tools    []map[string]any
	http     *http.Client
}

// Option configures an Agent at construction time.
type Option func(*Agent)

// WithModel overrides the default model identifier.
func WithModel(model string) Option {
	return func(a *Agent) { a.model = model }
}

// WithEndpoint overrides the chat completions URL. Used by tests to point
// the agent at a stub server.
func WithEndpoint(url string) Option {
	return func(a *Agent) { a.endpoint = url }
}

func NewAgent(apiKey string, registry *Registry, opts ...Option) *Agent {
	a := &Agent{
		apiKey:   apiKey,
		endpoint: openAIEndpoint,
		model:    defaultModel,
		registry: registry,
		tools:    registry.OpenAITools(),
		http:     &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RunOptions carries the caller-supplied hooks for one orchestration run.
type RunOptions struct {
	// Persist is called for every assistant tool-call message and tool-result
	// message produced mid-loop, in the order they are produced. The loop does
	// not wait for persistence to complete; the hook must not block for long.
	// The final assistant message is NOT passed here — persisting it is the
	// caller's decision.
	Persist func(conversation.Message)

	// OnChunk is called with the final assistant message when it carries
	// non-empty text, before ChatWithTools returns.
	OnChunk func(conversation.Message)
}

// ChatWithTools runs the request/response protocol until the model yields a
// final textual answer. Each round sends the accumulated messages plus the
// full tool schema set; any requested tool invocations are executed
// concurrently and their results fed back. Tool failures are contained and
// reported to the model as data; model or transport failures propagate to
// the caller untouched.
func (a *Agent) ChatWithTools(ctx context.Context, messages []conversation.Message, opts RunOptions) (conversation.Message, error) {
	persist := opts.Persist
	if persist == nil {
		persist = func(conversation.Message) {}
	}

	for round := 0; round < maxToolRounds; round++ {
		resp, err := a.chatCompletion(ctx, messages)
		if err != nil {
			return conversation.Message{}, fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return conversation.Message{}, errors.New("openai: response carried no choices")
		}
		msg := resp.Choices[0].Message

		if len(msg.ToolCalls) == 0 {
			msg.Content = strings.TrimSpace(msg.Content)
			if msg.Content != "" && opts.OnChunk != nil {
				opts.OnChunk(msg)
			}
			return msg, nil
		}

		results := a.runToolBatch(ctx, msg.ToolCalls)

		messages = append(messages, msg)
		persist(msg)

		for i, tc := range msg.ToolCalls {
			payload, err := json.Marshal(results[i])
			if err != nil {
				payload = []byte(`{"error":"unserializable_result"}`)
			}
			toolMsg := conversation.Message{
				Role:       conversation.RoleTool,
				Name:       tc.Function.Name,
				ToolCallID: tc.ID,
				Content:    string(payload),
			}
			messages = append(messages, toolMsg)
			persist(toolMsg)
		}
	}

	return conversation.Message{}, ErrToolLoopExceeded
}

// runToolBatch executes all invocations of one round concurrently. Results
// land in the slot matching their call's position, so the tool-result
// messages keep the order the model listed the calls in, regardless of
// which executor finishes first.
func (a *Agent) runToolBatch(ctx context.Context, calls []conversation.ToolCall) []map[string]any {
	results := make([]map[string]any, len(calls))
	var wg conc.WaitGroup
	for i, call := range calls {
		i, call := i, call
		wg.Go(func() {
			results[i] = a.runToolCall(ctx, call)
		})
	}
	wg.Wait()
	return results
}

// runToolCall resolves and executes one invocation. Every failure mode maps
// to a structured result; nothing here can abort the batch or the run.
func (a *Agent) runToolCall(ctx context.Context, call conversation.ToolCall) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return map[string]any{"error": "bad_json_args"}
	}

	if _, err := a.registry.Get(call.Function.Name); err != nil {
		return map[string]any{"error": "unknown_tool"}
	}

	log.Debug().Str("tool", call.Function.Name).Str("call_id", call.ID).Msg("executing tool")
	result, err := a.registry.ExecuteTool(ctx, call.Function.Name, args)
	if err != nil {
		log.Warn().Err(err).Str("tool", call.Function.Name).Msg("tool execution failed")
		return map[string]any{"error": errorReason(err)}
	}
	return result
}

// --- OpenAI API types ---

type chatRequest struct {
	Model             string                 `json:"model"`
	Messages          []conversation.Message `json:"messages"`
	Tools             []map[string]any       `json:"tools,omitempty"`
	ParallelToolCalls *bool                  `json:"parallel_tool_calls,omitempty"`
	ToolChoice        string                 `json:"tool_choice,omitempty"`
	MaxTokens         int                    `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message conversation.Message `json:"message"`
}

func (a *Agent) chatCompletion(ctx context.Context, messages []conversation.Message) (*chatResponse, error) {
	reqBody := chatRequest{
		Model:     a.model,
		Messages:  messages,
		MaxTokens: maxOutputTokens,
	}
	if len(a.tools) > 0 {
		parallel := true
		reqBody.Tools = a.tools
		reqBody.ParallelToolCalls = &parallel
		reqBody.ToolChoice = "auto"
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai: status %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("openai: unmarshal: %w", err)
	}

	return &chatResp, nil
}
