// Package mcp provides ragent's Model Context Protocol integration on
// top of the official SDK: a stdio client for spawning external tool
// servers, and a server exposing the knowledge retriever as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	// ErrNotConnected indicates a call before Connect (or after Close).
	ErrNotConnected = errors.New("mcp: client not connected")

	// ErrToolFailed indicates the server reported a tool error result.
	ErrToolFailed = errors.New("mcp: tool call failed")
)

// clientVersion identifies this client in the MCP handshake.
const clientVersion = "0.1.0"

// ToolInfo describes one tool advertised by a connected server.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema any
}

// Client manages one stdio MCP server: it spawns the configured command
// as a subprocess, speaks MCP over its stdin/stdout, and caches the
// advertised tools.
type Client struct {
	name    string
	command string
	args    []string
	env     map[string]string
	logger  *slog.Logger

	session *sdk.ClientSession
	tools   []ToolInfo
}

// NewClient creates a client for the named server. Connect must be
// called before tools can be listed or invoked.
func NewClient(name, command string, args []string, env map[string]string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		name:    name,
		command: command,
		args:    args,
		env:     env,
		logger:  logger,
	}
}

// Name returns the configured server name.
func (c *Client) Name() string {
	return c.name
}

// Connect spawns the server subprocess, performs the MCP handshake and
// caches the tool list.
func (c *Client) Connect(ctx context.Context) error {
	cmd := exec.Command(c.command, c.args...)
	cmd.Env = os.Environ()
	for key, value := range c.env {
		cmd.Env = append(cmd.Env, key+"="+value)
	}
	// The server's stderr is for diagnostics; keep it visible.
	cmd.Stderr = os.Stderr

	client := sdk.NewClient(&sdk.Implementation{
		Name:    "ragent",
		Version: clientVersion,
	}, nil)

	session, err := client.Connect(ctx, &sdk.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return fmt.Errorf("connecting to MCP server %q: %w", c.name, err)
	}

	listed, err := session.ListTools(ctx, nil)
	if err != nil {
		_ = session.Close()
		return fmt.Errorf("listing tools of MCP server %q: %w", c.name, err)
	}

	tools := make([]ToolInfo, 0, len(listed.Tools))
	names := make([]string, 0, len(listed.Tools))
	for _, tool := range listed.Tools {
		tools = append(tools, ToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
		names = append(names, tool.Name)
	}

	c.session = session
	c.tools = tools
	c.logger.Info("MCP server connected", "server", c.name, "tools", names)
	return nil
}

// Tools returns the tools advertised by the server at connect time.
func (c *Client) Tools() []ToolInfo {
	out := make([]ToolInfo, len(c.tools))
	copy(out, c.tools)
	return out
}

// HasTool reports whether the server advertises the named tool.
func (c *Client) HasTool(name string) bool {
	for _, tool := range c.tools {
		if tool.Name == name {
			return true
		}
	}
	return false
}

// CallTool invokes a tool and flattens its content to text. A tool
// error result is returned as an ErrToolFailed so callers can feed the
// message back to the model.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if c.session == nil {
		return "", ErrNotConnected
	}

	result, err := c.session.CallTool(ctx, &sdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("calling tool %q on %q: %w", name, c.name, err)
	}

	text := flattenContent(result.Content)
	if result.IsError {
		return "", fmt.Errorf("%w: %s: %s", ErrToolFailed, name, text)
	}
	return text, nil
}

// Close terminates the session and the server subprocess.
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	if err != nil {
		return fmt.Errorf("closing MCP server %q: %w", c.name, err)
	}
	c.logger.Debug("MCP server closed", "server", c.name)
	return nil
}

// flattenContent renders tool result content as plain text for the
// model: text blocks join with newlines, anything else is serialized
// as JSON rather than dropped.
func flattenContent(content []sdk.Content) string {
	parts := make([]string, 0, len(content))
	for _, item := range content {
		switch block := item.(type) {
		case *sdk.TextContent:
			parts = append(parts, block.Text)
		default:
			raw, err := json.Marshal(block)
			if err != nil {
				parts = append(parts, fmt.Sprintf("(unrenderable content: %v)", err))
				continue
			}
			parts = append(parts, string(raw))
		}
	}
	return strings.Join(parts, "\n")
}
