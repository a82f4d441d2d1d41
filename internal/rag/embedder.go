// Package rag implements retrieval-augmented generation over a small
// in-memory document set: an OpenAI-compatible embeddings client, a
// cosine-similarity vector store, a retriever tying the two together,
// and an indexer that loads a local knowledge directory.
package rag

import (
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

	"golang.org/x/time/rate"
)

var (
	// ErrMissingAPIKey indicates the embedder was built without credentials.
	ErrMissingAPIKey = errors.New("rag: missing API key")

	// ErrEmptyInput indicates an empty text was passed for embedding.
	ErrEmptyInput = errors.New("rag: empty embedding input")

	// ErrNoEmbedding indicates the endpoint returned no vectors.
	ErrNoEmbedding = errors.New("rag: no embedding returned")
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "text-embedding-3-small"
	defaultTimeout = 60 * time.Second
)

// EmbedderConfig holds configuration for the embeddings client.
type EmbedderConfig struct {
	// APIKey authenticates against the endpoint (required).
	APIKey string

	// BaseURL is the endpoint root (default: https://api.openai.com/v1).
	BaseURL string

	// Model is the embedding model identifier (default: text-embedding-3-small).
	Model string

	// Timeout bounds one request (default: 60s).
	Timeout time.Duration

	// RequestsPerSecond paces bulk indexing. Zero disables pacing.
	RequestsPerSecond float64

	// Logger for debug output (default: slog.Default()).
	Logger *slog.Logger
}

// Embedder generates vector embeddings via an OpenAI-compatible
// /embeddings endpoint.
type Embedder struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// embeddingRequest is the /embeddings request body.
type embeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format"`
}

// embeddingResponse is the /embeddings response body.
type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewEmbedder creates an embeddings client.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
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

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Embedder{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		limiter:    limiter,
		logger:     cfg.Logger,
	}, nil
}

// Embed generates the embedding vector for one text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || vectors[0] == nil {
		return nil, ErrNoEmbedding
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
// The result is ordered like the input.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyInput
		}
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rag: rate limit wait: %w", err)
		}
	}

	body, err := json.Marshal(embeddingRequest{
		Model:          e.model,
		Input:          texts,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, fmt.Errorf("rag: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rag: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rag: send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("rag: read response: %w", err)
	}

	var decoded embeddingResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("rag: decode response: %w", err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("rag: API status %d: %s", resp.StatusCode, decoded.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rag: API status %d: %s", resp.StatusCode, string(raw))
	}
	if len(decoded.Data) == 0 {
		return nil, ErrNoEmbedding
	}

	// Order by the index field; compatible endpoints may reorder data.
	vectors := make([][]float32, len(texts))
	for _, item := range decoded.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("rag: embedding index %d out of range", item.Index)
		}
		vector := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vector[i] = float32(v)
		}
		vectors[item.Index] = vector
	}

	e.logger.Debug("embedded batch", "model", e.model, "texts", len(texts))
	return vectors, nil
}

// Model returns the embedding model identifier.
func (e *Embedder) Model() string {
	return e.model
}
