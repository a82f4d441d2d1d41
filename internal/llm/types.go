package llm

// Chat message roles of the OpenAI-compatible wire format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of the conversation history, in the wire format
// of the /chat/completions endpoint.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a model request to invoke a tool.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and its arguments as the raw JSON
// string the model produced. Arguments are parsed at dispatch time so a
// malformed payload can be reported back to the model.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool describes a callable tool exposed to the model. Parameters holds
// the JSON schema of the tool input; any JSON-marshalable value works,
// including *jsonschema.Schema from MCP tool listings.
type Tool struct {
	Name        string
	Description string
	Parameters  any
}

// Response is the accumulated result of one chat turn.
type Response struct {
	// Content is the assistant text, complete after streaming ends.
	Content string

	// ToolCalls are the tool invocations the model requested, if any.
	// An empty slice means the turn is final.
	ToolCalls []ToolCall
}
