package cmd

import (
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"ragent/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the knowledge retriever as an MCP server on stdio",
	Long: `mcp indexes the knowledge directory and then serves retrieve_documents
and list_documents over the Model Context Protocol on stdin/stdout, so
MCP hosts (Claude Desktop, Cursor, another ragent) can search it.

All logging goes to stderr; stdout carries only JSON-RPC.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	logger := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	retriever, err := buildRetriever(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	server, err := mcp.NewServer(mcp.ServerConfig{
		Name:        "ragent",
		Version:     Version,
		Retriever:   retriever,
		DefaultTopK: cfg.TopK,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	logger.Info("MCP server ready", "name", "ragent", "version", Version, "transport", "stdio")

	if err := server.Run(cmd.Context(), &sdk.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}

	logger.Info("MCP server shut down")
	return nil
}
