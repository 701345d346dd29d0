package conversation

// Role values for a conversation message. They mirror the chat-completions
// wire format so stored history can be replayed to the model without
// translation.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in a user's conversation history.
//
// Turn tags which user-initiated exchange produced the message. It is
// assigned at append time and stripped before history leaves the actor,
// so the JSON tag only matters for the stored form.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Turn       int        `json:"t,omitempty"`
}

// ToolCall is a model-requested tool invocation carried by an assistant message.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the tool name and its raw JSON argument payload.
// Arguments are not validated here; the executor parses them.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// UserMessage builds a plain user message. The turn tag is assigned by Append.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// SystemMessage builds a system instruction message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}
