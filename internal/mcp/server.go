package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"ragent/internal/rag"
)

// Tool names exposed by the ragent MCP server.
const (
	ToolRetrieveDocuments = "retrieve_documents"
	ToolListDocuments     = "list_documents"
)

var (
	// ErrMissingName indicates the server config has no name.
	ErrMissingName = errors.New("mcp: server name is required")

	// ErrMissingVersion indicates the server config has no version.
	ErrMissingVersion = errors.New("mcp: server version is required")

	// ErrMissingRetriever indicates the server config has no retriever.
	ErrMissingRetriever = errors.New("mcp: retriever is required")
)

// DocumentRetriever is the retrieval capability the server exposes over
// MCP. *rag.Retriever satisfies it.
type DocumentRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]rag.ScoredDocument, error)
	Names() []string
}

// ServerConfig holds MCP server configuration.
type ServerConfig struct {
	Name        string
	Version     string
	Retriever   DocumentRetriever
	DefaultTopK int
	Logger      *slog.Logger
}

// Server exposes the knowledge retriever as MCP tools over a transport,
// so other MCP hosts (or another ragent) can search the corpus.
type Server struct {
	mcpServer   *sdk.Server
	retriever   DocumentRetriever
	defaultTopK int
	logger      *slog.Logger
}

// RetrieveInput is the input schema for retrieve_documents.
type RetrieveInput struct {
	Query string `json:"query" jsonschema:"the text to embed and match against the indexed documents"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"maximum number of documents to return (defaults to the server setting)"`
}

// ListInput is the (empty) input schema for list_documents.
type ListInput struct{}

// NewServer creates an MCP server serving the given retriever.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Name == "" {
		return nil, ErrMissingName
	}
	if cfg.Version == "" {
		return nil, ErrMissingVersion
	}
	if cfg.Retriever == nil {
		return nil, ErrMissingRetriever
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		mcpServer: sdk.NewServer(&sdk.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		retriever:   cfg.Retriever,
		defaultTopK: cfg.DefaultTopK,
		logger:      cfg.Logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}
	return s, nil
}

// Run serves MCP on the given transport until the context is canceled
// or the peer disconnects. Blocking.
func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

func (s *Server) registerTools() error {
	retrieveSchema, err := jsonschema.For[RetrieveInput](nil)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", ToolRetrieveDocuments, err)
	}
	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name: ToolRetrieveDocuments,
		Description: "Search the indexed knowledge documents by embedding similarity. " +
			"Returns the most relevant documents for the query, best match first.",
		InputSchema: retrieveSchema,
	}, s.retrieveDocuments)

	listSchema, err := jsonschema.For[ListInput](nil)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", ToolListDocuments, err)
	}
	sdk.AddTool(s.mcpServer, &sdk.Tool{
		Name:        ToolListDocuments,
		Description: "List the names of all indexed knowledge documents.",
		InputSchema: listSchema,
	}, s.listDocuments)

	return nil
}

// retrieveDocuments handles the retrieve_documents tool call. Retrieval
// failures (typically the embeddings endpoint) are reported as tool
// error results so the calling model can react, not as protocol errors.
func (s *Server) retrieveDocuments(ctx context.Context, _ *sdk.CallToolRequest, in RetrieveInput) (*sdk.CallToolResult, any, error) {
	if strings.TrimSpace(in.Query) == "" {
		return &sdk.CallToolResult{
			Content: []sdk.Content{&sdk.TextContent{Text: "query must not be empty"}},
			IsError: true,
		}, nil, nil
	}

	topK := in.TopK
	if topK <= 0 {
		topK = s.defaultTopK
	}

	docs, err := s.retriever.Retrieve(ctx, in.Query, topK)
	if err != nil {
		s.logger.Warn("retrieval failed", "error", err)
		return &sdk.CallToolResult{
			Content: []sdk.Content{&sdk.TextContent{Text: fmt.Sprintf("retrieval failed: %v", err)}},
			IsError: true,
		}, nil, nil
	}

	if len(docs) == 0 {
		return &sdk.CallToolResult{
			Content: []sdk.Content{&sdk.TextContent{Text: "no documents indexed"}},
		}, nil, nil
	}

	var out strings.Builder
	for i, doc := range docs {
		if i > 0 {
			out.WriteString("\n\n")
		}
		fmt.Fprintf(&out, "### %s (score %.3f)\n%s", doc.Name, doc.Score, doc.Content)
	}

	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: out.String()}},
	}, nil, nil
}

// listDocuments handles the list_documents tool call.
func (s *Server) listDocuments(_ context.Context, _ *sdk.CallToolRequest, _ ListInput) (*sdk.CallToolResult, any, error) {
	names := s.retriever.Names()
	if len(names) == 0 {
		return &sdk.CallToolResult{
			Content: []sdk.Content{&sdk.TextContent{Text: "no documents indexed"}},
		}, nil, nil
	}
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: strings.Join(names, "\n")}},
	}, nil, nil
}
