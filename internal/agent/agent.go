// Package agent implements the tool-calling loop: it sends the task to
// the model, dispatches any requested tool calls to the connected MCP
// servers, feeds the results back, and repeats until the model answers
// with plain text.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"ragent/internal/llm"
	"ragent/internal/mcp"
)

var (
	// ErrMissingModel indicates the agent config has no chat model.
	ErrMissingModel = errors.New("agent: chat model is required")
)

// ChatModel is the conversational capability the agent drives.
// *llm.Client satisfies it.
type ChatModel interface {
	Chat(ctx context.Context, prompt string) (*llm.Response, error)
	AppendToolResult(toolCallID, output string)
	RegisterTools(tools []llm.Tool)
}

// ToolClient is one connected MCP server the agent can dispatch to.
// *mcp.Client satisfies it.
type ToolClient interface {
	Name() string
	Connect(ctx context.Context) error
	Tools() []mcp.ToolInfo
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	Close() error
}

// ToolEvent reports one tool invocation for display purposes.
type ToolEvent struct {
	Client    string
	Tool      string
	Arguments string
	Result    string
	Err       error
}

// Config holds agent configuration.
type Config struct {
	Model   ChatModel
	Clients []ToolClient
	Logger  *slog.Logger

	// OnToolEvent, when set, is called after every tool dispatch.
	OnToolEvent func(ToolEvent)
}

// Agent routes between one chat model and any number of MCP tool
// servers. Not safe for concurrent use.
type Agent struct {
	model       ChatModel
	clients     []ToolClient
	routes      map[string]ToolClient
	logger      *slog.Logger
	onToolEvent func(ToolEvent)
	initialized bool
}

// New creates an agent. Init must be called before Invoke.
func New(cfg Config) (*Agent, error) {
	if cfg.Model == nil {
		return nil, ErrMissingModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Agent{
		model:       cfg.Model,
		clients:     cfg.Clients,
		routes:      make(map[string]ToolClient),
		logger:      cfg.Logger,
		onToolEvent: cfg.OnToolEvent,
	}, nil
}

// Init connects every tool server, builds the tool routing table and
// registers the combined tool list with the model. When two servers
// advertise the same tool name the first connected server wins.
func (a *Agent) Init(ctx context.Context) error {
	var tools []llm.Tool

	for _, client := range a.clients {
		if err := client.Connect(ctx); err != nil {
			return fmt.Errorf("initializing agent: %w", err)
		}
		for _, info := range client.Tools() {
			if existing, ok := a.routes[info.Name]; ok {
				a.logger.Warn("duplicate tool name, keeping first",
					"tool", info.Name,
					"kept", existing.Name(),
					"ignored", client.Name())
				continue
			}
			a.routes[info.Name] = client
			tools = append(tools, llm.Tool{
				Name:        info.Name,
				Description: info.Description,
				Parameters:  info.InputSchema,
			})
		}
	}

	a.model.RegisterTools(tools)
	a.initialized = true
	a.logger.Info("agent initialized", "servers", len(a.clients), "tools", len(tools))
	return nil
}

// Invoke runs the task to completion and returns the model's final
// text answer. Tool failures are fed back to the model as tool results
// rather than aborting the run.
func (a *Agent) Invoke(ctx context.Context, task string) (string, error) {
	if !a.initialized {
		if err := a.Init(ctx); err != nil {
			return "", err
		}
	}

	runID := uuid.NewString()
	logger := a.logger.With("run_id", runID)
	logger.Info("task started", "task", task)

	response, err := a.model.Chat(ctx, task)
	if err != nil {
		return "", fmt.Errorf("agent run %s: %w", runID, err)
	}

	for len(response.ToolCalls) > 0 {
		for _, call := range response.ToolCalls {
			a.dispatch(ctx, logger, call)
		}

		// Empty prompt continues the conversation with the tool
		// results already appended to the history.
		response, err = a.model.Chat(ctx, "")
		if err != nil {
			return "", fmt.Errorf("agent run %s: %w", runID, err)
		}
	}

	logger.Info("task finished")
	return response.Content, nil
}

// dispatch executes one tool call and appends its result (or failure
// text) to the conversation.
func (a *Agent) dispatch(ctx context.Context, logger *slog.Logger, call llm.ToolCall) {
	name := call.Function.Name
	logger.Info("tool requested", "tool", name, "arguments", call.Function.Arguments)

	output, err := a.runTool(ctx, name, call.Function.Arguments)
	if err != nil {
		logger.Warn("tool failed", "tool", name, "error", err)
		output = fmt.Sprintf("tool %q failed: %v", name, err)
	}

	a.model.AppendToolResult(call.ID, output)

	if a.onToolEvent != nil {
		event := ToolEvent{
			Tool:      name,
			Arguments: call.Function.Arguments,
			Result:    output,
			Err:       err,
		}
		if client, ok := a.routes[name]; ok {
			event.Client = client.Name()
		}
		a.onToolEvent(event)
	}
}

func (a *Agent) runTool(ctx context.Context, name, rawArgs string) (string, error) {
	client, ok := a.routes[name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}

	args := map[string]any{}
	if strings.TrimSpace(rawArgs) != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return "", fmt.Errorf("invalid arguments for %q: %w", name, err)
		}
	}

	return client.CallTool(ctx, name, args)
}

// Close shuts down every tool server. All clients are closed even when
// some fail; the errors are joined.
func (a *Agent) Close() error {
	var errs []error
	for _, client := range a.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
