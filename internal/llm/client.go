// Package llm implements a streaming client for OpenAI-compatible chat
// completion endpoints, including tool (function) calling.
//
// The client keeps the conversation history for the lifetime of one
// agent run: the system prompt and retrieval context seed the history,
// every Chat call appends the user and assistant messages, and
// AppendToolResult feeds tool outputs back for the next turn.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrMissingAPIKey indicates the client was built without credentials.
	ErrMissingAPIKey = errors.New("llm: missing API key")

	// ErrNoChoices indicates the stream ended without a single choice
	// delta, so there is no assistant message to return.
	ErrNoChoices = errors.New("llm: no response choices returned")
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 120 * time.Second

	// maxLineSize bounds a single SSE line. Tool arguments can be large
	// but a multi-megabyte single delta means something is wrong.
	maxLineSize = 1024 * 1024
)

// Config holds client configuration.
type Config struct {
	// APIKey authenticates against the endpoint (required).
	APIKey string

	// BaseURL is the endpoint root (default: https://api.openai.com/v1).
	BaseURL string

	// Model is the chat model identifier (default: gpt-4o-mini).
	Model string

	// SystemPrompt seeds the history as a system message when set.
	SystemPrompt string

	// Context is injected as the first user message when set. The agent
	// uses it for retrieved reference documents.
	Context string

	// Timeout bounds one whole streamed completion (default: 120s).
	Timeout time.Duration

	// OnDelta, when set, receives each streamed content chunk as it
	// arrives. Tool-call fragments are not reported.
	OnDelta func(chunk string)

	// Logger for debug output (default: discard via slog.Default()).
	Logger *slog.Logger
}

// Client talks to one OpenAI-compatible chat completion endpoint and
// owns the conversation history of a run. It is not safe for concurrent
// use; an agent run is strictly sequential.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	onDelta    func(string)
	logger     *slog.Logger

	messages []Message
	tools    []Tool
}

// NewClient creates a chat client and seeds the history from cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		onDelta:    cfg.OnDelta,
		logger:     cfg.Logger,
	}

	if cfg.SystemPrompt != "" {
		c.messages = append(c.messages, Message{Role: RoleSystem, Content: cfg.SystemPrompt})
	}
	if cfg.Context != "" {
		c.messages = append(c.messages, Message{Role: RoleUser, Content: cfg.Context})
	}

	return c, nil
}

// RegisterTools sets the tools advertised on every subsequent request.
func (c *Client) RegisterTools(tools []Tool) {
	c.tools = tools
}

// Messages returns a copy of the conversation history.
func (c *Client) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// AppendToolResult appends a tool output message for the given call ID.
// The next Chat turn lets the model consume it.
func (c *Client) AppendToolResult(toolCallID, output string) {
	c.messages = append(c.messages, Message{
		Role:       RoleTool,
		Content:    output,
		ToolCallID: toolCallID,
	})
}

// chatRequest is the /chat/completions request body.
type chatRequest struct {
	Model    string     `json:"model"`
	Messages []Message  `json:"messages"`
	Stream   bool       `json:"stream"`
	Tools    []wireTool `json:"tools,omitempty"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters,omitempty"`
}

// streamChunk is one SSE payload of a streamed completion.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// apiError is the error envelope OpenAI-compatible endpoints return on
// non-2xx responses.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Chat sends the history (plus prompt, when non-empty) to the endpoint
// and streams the reply. The assistant message, including any tool
// calls, is appended to the history before returning.
//
// Pass an empty prompt to continue after AppendToolResult.
func (c *Client) Chat(ctx context.Context, prompt string) (*Response, error) {
	if prompt != "" {
		c.messages = append(c.messages, Message{Role: RoleUser, Content: prompt})
	}

	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: c.messages,
		Stream:   true,
		Tools:    c.wireTools(),
	})
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.readAPIError(resp)
	}

	response, err := c.consumeStream(resp.Body)
	if err != nil {
		return nil, err
	}

	assistant := Message{
		Role:      RoleAssistant,
		Content:   response.Content,
		ToolCalls: response.ToolCalls,
	}
	c.messages = append(c.messages, assistant)

	c.logger.Debug("chat turn complete",
		"model", c.model,
		"content_len", len(response.Content),
		"tool_calls", len(response.ToolCalls))

	return response, nil
}

// consumeStream reads SSE lines and accumulates content and tool-call
// fragments. Fragments for the same tool call arrive with the same
// index and concatenate; distinct calls use distinct indexes.
func (c *Client) consumeStream(r io.Reader) (*Response, error) {
	var (
		content   strings.Builder
		toolCalls []ToolCall
		sawChoice bool
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return nil, fmt.Errorf("llm: decode stream chunk: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		sawChoice = true
		delta := chunk.Choices[0].Delta

		if delta.Content != "" {
			content.WriteString(delta.Content)
			if c.onDelta != nil {
				c.onDelta(delta.Content)
			}
		}

		for _, fragment := range delta.ToolCalls {
			for len(toolCalls) <= fragment.Index {
				toolCalls = append(toolCalls, ToolCall{Type: "function"})
			}
			call := &toolCalls[fragment.Index]
			call.ID += fragment.ID
			if fragment.Type != "" {
				call.Type = fragment.Type
			}
			call.Function.Name += fragment.Function.Name
			call.Function.Arguments += fragment.Function.Arguments
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("llm: read stream: %w", err)
	}
	if !sawChoice {
		return nil, ErrNoChoices
	}

	return &Response{
		Content:   content.String(),
		ToolCalls: toolCalls,
	}, nil
}

// readAPIError extracts the error message from a non-2xx response.
func (c *Client) readAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("llm: API status %d (reading body: %w)", resp.StatusCode, err)
	}

	var envelope apiError
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return fmt.Errorf("llm: API status %d: %s", resp.StatusCode, envelope.Error.Message)
	}
	return fmt.Errorf("llm: API status %d: %s", resp.StatusCode, string(body))
}

func (c *Client) wireTools() []wireTool {
	if len(c.tools) == 0 {
		return nil
	}
	out := make([]wireTool, len(c.tools))
	for i, tool := range c.tools {
		out[i] = wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		}
	}
	return out
}
