// Package cmd provides the ragent CLI commands.
//
// Commands:
//   - ragent <task>: run a task through the agent loop with RAG context
//   - retrieve: query the knowledge index directly
//   - mcp: serve the knowledge retriever as an MCP server on stdio
//   - version: show version information
//
// Logging goes to stderr so the mcp command can keep stdout for
// JSON-RPC.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"ragent/internal/agent"
	"ragent/internal/config"
	"ragent/internal/llm"
	"ragent/internal/log"
	"ragent/internal/mcp"
	"ragent/internal/rag"
	"ragent/internal/ui"
)

// defaultSystemPrompt seeds the conversation when the config provides
// none.
const defaultSystemPrompt = "You are a helpful assistant. Use the available tools when they help, " +
	"and prefer the provided reference documents over guessing."

var (
	flagConfig string
	flagDebug  bool
	flagNoRAG  bool
	flagTopK   int
)

var rootCmd = &cobra.Command{
	Use:   "ragent [flags] <task>",
	Short: "ragent is a small tool-calling agent with local document retrieval",
	Long: `ragent runs a single task through an OpenAI-compatible chat model.

Before the run it indexes the local knowledge directory, retrieves the
documents most similar to the task, and injects them as context. Tool
calls requested by the model are dispatched to the MCP servers listed
in the configuration.`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTask(cmd.Context(), strings.Join(args, " "))
	},
}

// Execute runs the root command with signal-aware cancellation.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (default ~/.ragent/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&flagNoRAG, "no-rag", false, "skip document retrieval")
	rootCmd.Flags().IntVar(&flagTopK, "top-k", 0, "documents to retrieve (default from config)")
}

// newLogger builds the application logger. Stderr only, so stdout stays
// clean for streamed answers and for the MCP stdio transport.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if flagDebug || os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level})
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildRetriever creates the embedder-backed retriever and indexes the
// knowledge directory.
func buildRetriever(ctx context.Context, cfg *config.Config, logger log.Logger) (*rag.Retriever, error) {
	embedder, err := rag.NewEmbedder(rag.EmbedderConfig{
		APIKey:            cfg.EmbeddingKey,
		BaseURL:           cfg.EmbeddingBaseURL,
		Model:             cfg.EmbeddingModel,
		RequestsPerSecond: cfg.EmbeddingRPS,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	retriever := rag.NewRetriever(embedder, rag.NewStore(), logger)
	indexer := rag.NewIndexer(retriever, nil, logger)

	result, err := indexer.AddDirectory(ctx, cfg.KnowledgeDir)
	if err != nil {
		return nil, fmt.Errorf("indexing %s: %w", cfg.KnowledgeDir, err)
	}
	logger.Info("knowledge indexed",
		"dir", cfg.KnowledgeDir,
		"model", embedder.Model(),
		"indexed", result.Indexed,
		"skipped", result.Skipped,
		"failed", result.Failed)

	return retriever, nil
}

// buildContext retrieves the documents most similar to the task and
// renders them as a reference block for the model.
func buildContext(ctx context.Context, retriever *rag.Retriever, task string, topK int) (string, error) {
	docs, err := retriever.Retrieve(ctx, task, topK)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Reference documents. Use them when they are relevant to the task.\n")
	for _, doc := range docs {
		fmt.Fprintf(&b, "\n### %s\n%s\n", doc.Name, doc.Content)
	}
	return b.String(), nil
}

// mcpClients creates one client per enabled MCP server, in a stable
// name order so duplicate tool names resolve deterministically.
func mcpClients(cfg *config.Config, logger log.Logger) ([]agent.ToolClient, error) {
	servers, err := cfg.EnabledServers()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	clients := make([]agent.ToolClient, 0, len(names))
	for _, name := range names {
		srv := servers[name]
		clients = append(clients, mcp.NewClient(name, srv.Command, srv.Args, srv.Env, logger))
	}
	return clients, nil
}

func runTask(ctx context.Context, task string) error {
	logger := newLogger()
	console := ui.NewConsole(os.Stdout)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateChat(); err != nil {
		return err
	}

	topK := cfg.TopK
	if flagTopK > 0 {
		topK = flagTopK
	}

	ragContext := ""
	if !flagNoRAG {
		retriever, err := buildRetriever(ctx, cfg, logger)
		if err != nil {
			return err
		}
		if retriever.Size() > 0 {
			console.Title("RETRIEVAL")
			console.Info("matching %d of %d documents", min(topK, retriever.Size()), retriever.Size())
			ragContext, err = buildContext(ctx, retriever, task, topK)
			if err != nil {
				return fmt.Errorf("retrieving context: %w", err)
			}
		} else {
			logger.Info("no documents indexed, running without retrieval context")
		}
	}

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	model, err := llm.NewClient(llm.Config{
		APIKey:       cfg.OpenAIAPIKey,
		BaseURL:      cfg.OpenAIBaseURL,
		Model:        cfg.ChatModel,
		SystemPrompt: systemPrompt,
		Context:      ragContext,
		OnDelta:      console.Delta,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	clients, err := mcpClients(cfg, logger)
	if err != nil {
		return err
	}

	runner, err := agent.New(agent.Config{
		Model:   model,
		Clients: clients,
		Logger:  logger,
		OnToolEvent: func(e agent.ToolEvent) {
			console.Newline()
			console.ToolCall(e.Tool, e.Arguments)
			console.ToolResult(e.Result, e.Err)
		},
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := runner.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	console.Title("RESPONSE")
	if _, err := runner.Invoke(ctx, task); err != nil {
		console.Newline()
		console.Error(err)
		return err
	}
	console.Newline()
	return nil
}
