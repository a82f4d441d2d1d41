package rag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// defaultExtensions are the file types the indexer embeds. The corpus
// is markdown persona documents plus the odd plain-text note.
var defaultExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
}

// IndexResult summarizes one indexing pass over a directory.
type IndexResult struct {
	Indexed int
	Skipped int
	Failed  int
}

// Indexer loads a local knowledge directory into a Retriever. Only
// regular files with supported extensions at the top level are indexed;
// dotfiles and subdirectories are skipped.
type Indexer struct {
	retriever  *Retriever
	extensions map[string]bool
	logger     *slog.Logger
}

// NewIndexer creates an indexer. extensions overrides the supported
// file types when non-empty (e.g. []string{".md"}).
func NewIndexer(retriever *Retriever, extensions []string, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}

	extMap := make(map[string]bool, len(defaultExtensions))
	if len(extensions) > 0 {
		for _, ext := range extensions {
			extMap[strings.ToLower(ext)] = true
		}
	} else {
		for ext := range defaultExtensions {
			extMap[ext] = true
		}
	}

	return &Indexer{
		retriever:  retriever,
		extensions: extMap,
		logger:     logger,
	}
}

// AddDirectory embeds every supported file in dir. A missing or empty
// directory indexes nothing and is not an error. Individual file
// failures are logged and counted but do not abort the pass.
func (idx *Indexer) AddDirectory(ctx context.Context, dir string) (IndexResult, error) {
	var result IndexResult

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			idx.logger.Warn("knowledge directory does not exist", "dir", dir)
			return result, nil
		}
		return result, fmt.Errorf("reading knowledge directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !idx.extensions[strings.ToLower(filepath.Ext(name))] {
			result.Skipped++
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			idx.logger.Warn("reading knowledge file failed", "file", name, "error", err)
			result.Failed++
			continue
		}
		if len(strings.TrimSpace(string(content))) == 0 {
			result.Skipped++
			continue
		}

		if err := idx.retriever.EmbedDocument(ctx, name, string(content)); err != nil {
			idx.logger.Warn("embedding knowledge file failed", "file", name, "error", err)
			result.Failed++
			continue
		}
		result.Indexed++
	}

	idx.logger.Info("knowledge directory indexed",
		"dir", dir,
		"indexed", result.Indexed,
		"skipped", result.Skipped,
		"failed", result.Failed)

	return result, nil
}
