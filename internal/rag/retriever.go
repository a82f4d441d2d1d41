package rag

import (
	"context"
	"fmt"
	"log/slog"
)

// TextEmbedder generates an embedding vector for a text. Defined by the
// consumer so tests can substitute deterministic vectors.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever combines an embedder with the in-memory store: documents go
// in through EmbedDocument, queries come back ranked through Retrieve.
type Retriever struct {
	embedder TextEmbedder
	store    *Store
	logger   *slog.Logger
}

// NewRetriever creates a retriever. A nil store gets a fresh empty one.
func NewRetriever(embedder TextEmbedder, store *Store, logger *slog.Logger) *Retriever {
	if store == nil {
		store = NewStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
}

// EmbedDocument embeds a document and adds it to the store.
func (r *Retriever) EmbedDocument(ctx context.Context, name, content string) error {
	embedding, err := r.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embedding document %q: %w", name, err)
	}

	r.store.Add(name, content, embedding)
	r.logger.Debug("document embedded", "name", name, "dimensions", len(embedding))
	return nil
}

// Retrieve embeds the query and returns the topK most similar
// documents, best first.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]ScoredDocument, error) {
	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results := r.store.Search(embedding, topK)
	r.logger.Debug("documents retrieved", "query_len", len(query), "top_k", topK, "results", len(results))
	return results, nil
}

// Size returns the number of indexed documents.
func (r *Retriever) Size() int {
	return r.store.Size()
}

// Names returns the indexed document names.
func (r *Retriever) Names() []string {
	return r.store.Names()
}
