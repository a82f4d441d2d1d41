package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseServer returns an httptest server that records the decoded request
// body and replies with the given SSE lines.
func sseServer(t *testing.T, lines []string, captured *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func contentChunk(text string) string {
	return fmt.Sprintf(`data: {"choices":[{"delta":{"content":%q}}]}`, text)
}

func newTestClient(t *testing.T, srv *httptest.Server, cfg Config) *Client {
	t.Helper()
	cfg.APIKey = "sk-test"
	cfg.BaseURL = srv.URL
	cfg.Model = "test-model"
	client, err := NewClient(cfg)
	require.NoError(t, err)
	return client
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestChat_AccumulatesStreamedContent(t *testing.T) {
	var deltas []string
	srv := sseServer(t, []string{
		contentChunk("Hel"),
		contentChunk("lo "),
		contentChunk("world"),
		"data: [DONE]",
	}, nil)

	client := newTestClient(t, srv, Config{
		OnDelta: func(chunk string) { deltas = append(deltas, chunk) },
	})

	resp, err := client.Chat(context.Background(), "hi")
	require.NoError(t, err)

	assert.Equal(t, "Hello world", resp.Content)
	assert.Empty(t, resp.ToolCalls)
	assert.Equal(t, []string{"Hel", "lo ", "world"}, deltas)
}

func TestChat_AccumulatesToolCallFragments(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"fetch"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"url\":"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"https://example.com\"}"}},{"index":1,"id":"call_2","function":{"name":"read_file","arguments":"{}"}}]}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		"data: [DONE]",
	}, nil)

	client := newTestClient(t, srv, Config{})

	resp, err := client.Chat(context.Background(), "fetch the page")
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 2)

	first := resp.ToolCalls[0]
	assert.Equal(t, "call_1", first.ID)
	assert.Equal(t, "function", first.Type)
	assert.Equal(t, "fetch", first.Function.Name)
	assert.JSONEq(t, `{"url":"https://example.com"}`, first.Function.Arguments)

	second := resp.ToolCalls[1]
	assert.Equal(t, "call_2", second.ID)
	assert.Equal(t, "read_file", second.Function.Name)
}

func TestChat_HistoryOrder(t *testing.T) {
	srv := sseServer(t, []string{contentChunk("done"), "data: [DONE]"}, nil)

	client := newTestClient(t, srv, Config{
		SystemPrompt: "you are helpful",
		Context:      "reference documents",
	})

	_, err := client.Chat(context.Background(), "the task")
	require.NoError(t, err)

	messages := client.Messages()
	require.Len(t, messages, 4)
	assert.Equal(t, RoleSystem, messages[0].Role)
	assert.Equal(t, "you are helpful", messages[0].Content)
	assert.Equal(t, RoleUser, messages[1].Role)
	assert.Equal(t, "reference documents", messages[1].Content)
	assert.Equal(t, RoleUser, messages[2].Role)
	assert.Equal(t, "the task", messages[2].Content)
	assert.Equal(t, RoleAssistant, messages[3].Role)
	assert.Equal(t, "done", messages[3].Content)
}

func TestChat_AssistantToolCallsRecordedInHistory(t *testing.T) {
	srv := sseServer(t, []string{
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"fetch","arguments":"{}"}}]}}]}`,
		"data: [DONE]",
	}, nil)

	client := newTestClient(t, srv, Config{})

	_, err := client.Chat(context.Background(), "go")
	require.NoError(t, err)

	client.AppendToolResult("call_1", "the tool output")

	messages := client.Messages()
	require.Len(t, messages, 3)

	assistant := messages[1]
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "call_1", assistant.ToolCalls[0].ID)

	toolMsg := messages[2]
	assert.Equal(t, RoleTool, toolMsg.Role)
	assert.Equal(t, "call_1", toolMsg.ToolCallID)
	assert.Equal(t, "the tool output", toolMsg.Content)
}

func TestChat_EmptyPromptContinuesConversation(t *testing.T) {
	var captured chatRequest
	srv := sseServer(t, []string{contentChunk("ok"), "data: [DONE]"}, &captured)

	client := newTestClient(t, srv, Config{})
	client.AppendToolResult("call_1", "output")

	_, err := client.Chat(context.Background(), "")
	require.NoError(t, err)

	// No new user message was added for the empty prompt.
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, RoleTool, captured.Messages[0].Role)
}

func TestChat_SendsRegisteredTools(t *testing.T) {
	var captured chatRequest
	srv := sseServer(t, []string{contentChunk("ok"), "data: [DONE]"}, &captured)

	client := newTestClient(t, srv, Config{})
	client.RegisterTools([]Tool{
		{
			Name:        "fetch",
			Description: "Fetch a URL",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"url": map[string]any{"type": "string"}},
			},
		},
	})

	_, err := client.Chat(context.Background(), "hi")
	require.NoError(t, err)

	assert.True(t, captured.Stream)
	require.Len(t, captured.Tools, 1)
	assert.Equal(t, "function", captured.Tools[0].Type)
	assert.Equal(t, "fetch", captured.Tools[0].Function.Name)
	assert.Equal(t, "Fetch a URL", captured.Tools[0].Function.Description)
}

func TestChat_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key","type":"auth_error"}}`)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
	assert.Contains(t, err.Error(), "401")
}

func TestChat_StreamWithoutChoices(t *testing.T) {
	srv := sseServer(t, []string{"data: [DONE]"}, nil)

	client := newTestClient(t, srv, Config{})

	_, err := client.Chat(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestChat_MalformedChunk(t *testing.T) {
	srv := sseServer(t, []string{"data: {not json"}, nil)

	client := newTestClient(t, srv, Config{})

	_, err := client.Chat(context.Background(), "hi")
	assert.Error(t, err)
}
