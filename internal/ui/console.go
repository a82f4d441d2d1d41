// Package ui provides console output helpers for the CLI.
//
// The console renders section titles, streamed model output, and tool
// activity. Styling degrades gracefully when stdout is not a terminal.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// titleWidth is the total rendered width of a section title line.
const titleWidth = 80

// resultPreviewLimit caps how much of a tool result is echoed to the
// console. The full result still goes back to the model.
const resultPreviewLimit = 200

// Console writes styled output for an agent run.
type Console struct {
	out io.Writer

	title lipgloss.Style
	tool  lipgloss.Style
	dim   lipgloss.Style
	fail  lipgloss.Style
}

// NewConsole creates a console writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{
		out:   out,
		title: lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true),
		tool:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		dim:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		fail:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// Title prints a section header padded with '=' to the full width,
// e.g. "================================ TOOLS ================================".
func (c *Console) Title(text string) {
	padding := max(0, titleWidth-lipgloss.Width(text)-2)
	left := strings.Repeat("=", padding/2)
	right := strings.Repeat("=", padding-padding/2)
	line := fmt.Sprintf("%s %s %s", left, text, right)
	fmt.Fprintln(c.out, c.title.Render(line))
}

// Delta writes a streamed content chunk without a trailing newline.
func (c *Console) Delta(chunk string) {
	fmt.Fprint(c.out, chunk)
}

// Newline terminates a streamed line.
func (c *Console) Newline() {
	fmt.Fprintln(c.out)
}

// Info prints a dimmed informational line.
func (c *Console) Info(format string, args ...any) {
	fmt.Fprintln(c.out, c.dim.Render(fmt.Sprintf(format, args...)))
}

// ToolCall announces a tool invocation with its raw JSON arguments.
func (c *Console) ToolCall(name, arguments string) {
	fmt.Fprintln(c.out, c.tool.Render(fmt.Sprintf("tool: %s", name)))
	if arguments != "" {
		fmt.Fprintln(c.out, c.dim.Render(fmt.Sprintf("args: %s", arguments)))
	}
}

// ToolResult prints a truncated preview of a tool result, or the error
// when the call failed.
func (c *Console) ToolResult(result string, err error) {
	if err != nil {
		fmt.Fprintln(c.out, c.fail.Render(fmt.Sprintf("tool error: %v", err)))
		return
	}
	fmt.Fprintln(c.out, c.dim.Render(fmt.Sprintf("result: %s", truncate(result, resultPreviewLimit))))
}

// Error prints an error line.
func (c *Console) Error(err error) {
	fmt.Fprintln(c.out, c.fail.Render(fmt.Sprintf("error: %v", err)))
}

// truncate shortens s to at most limit runes, appending an ellipsis
// when content was cut.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
