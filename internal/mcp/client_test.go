package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"ragent/internal/log"
)

func TestClient_CallToolBeforeConnect(t *testing.T) {
	client := NewClient("fetch", "uvx", []string{"mcp-server-fetch"}, nil, log.NewNop())

	_, err := client.CallTool(context.Background(), "fetch", nil)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("CallTool() error = %v, want ErrNotConnected", err)
	}
}

func TestClient_CloseBeforeConnect(t *testing.T) {
	client := NewClient("fetch", "uvx", nil, nil, log.NewNop())
	if err := client.Close(); err != nil {
		t.Errorf("Close() on unconnected client = %v, want nil", err)
	}
}

func TestClient_HasTool(t *testing.T) {
	client := NewClient("fetch", "uvx", nil, nil, log.NewNop())
	client.tools = []ToolInfo{{Name: "fetch"}, {Name: "read_file"}}

	if !client.HasTool("fetch") {
		t.Errorf("HasTool(fetch) = false, want true")
	}
	if client.HasTool("unknown") {
		t.Errorf("HasTool(unknown) = true, want false")
	}
}

func TestClient_ToolsReturnsCopy(t *testing.T) {
	client := NewClient("fetch", "uvx", nil, nil, log.NewNop())
	client.tools = []ToolInfo{{Name: "fetch"}}

	tools := client.Tools()
	tools[0].Name = "mutated"

	if client.tools[0].Name != "fetch" {
		t.Errorf("Tools() must return a copy, internal state was mutated")
	}
}

func TestFlattenContent(t *testing.T) {
	tests := []struct {
		name    string
		content []sdk.Content
		want    string
	}{
		{
			"single text block",
			[]sdk.Content{&sdk.TextContent{Text: "hello"}},
			"hello",
		},
		{
			"multiple text blocks join with newline",
			[]sdk.Content{
				&sdk.TextContent{Text: "line one"},
				&sdk.TextContent{Text: "line two"},
			},
			"line one\nline two",
		},
		{
			"empty content",
			nil,
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := flattenContent(tt.content); got != tt.want {
				t.Errorf("flattenContent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFlattenContent_NonTextSerializedAsJSON(t *testing.T) {
	content := []sdk.Content{
		&sdk.ImageContent{Data: []byte("xyz"), MIMEType: "image/png"},
	}

	got := flattenContent(content)
	if !strings.Contains(got, "image/png") {
		t.Errorf("non-text content should be JSON-serialized, got %q", got)
	}
}
