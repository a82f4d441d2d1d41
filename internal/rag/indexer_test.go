package rag

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"ragent/internal/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestIndexer_AddDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "karianne.md", "Karianne is a painter.")
	writeFile(t, dir, "notes.txt", "Ervin is an engineer.")
	writeFile(t, dir, "data.bin", "not indexable")
	writeFile(t, dir, ".hidden.md", "dotfile")
	writeFile(t, dir, "empty.md", "   \n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o750))

	retriever, _ := newKeywordRetriever()
	indexer := NewIndexer(retriever, nil, log.NewNop())

	result, err := indexer.AddDirectory(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Indexed)
	assert.Equal(t, 4, result.Skipped) // .bin, dotfile, empty, subdir
	assert.Equal(t, 0, result.Failed)
	assert.ElementsMatch(t, []string{"karianne.md", "notes.txt"}, retriever.Names())
}

func TestIndexer_MissingDirectoryIsNotAnError(t *testing.T) {
	retriever, _ := newKeywordRetriever()
	indexer := NewIndexer(retriever, nil, log.NewNop())

	result, err := indexer.AddDirectory(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Equal(t, IndexResult{}, result)
}

func TestIndexer_EmbeddingFailureIsCountedNotFatal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "content a")
	writeFile(t, dir, "b.md", "content b")

	embedder := &keywordEmbedder{err: assert.AnError}
	retriever := NewRetriever(embedder, NewStore(), log.NewNop())
	indexer := NewIndexer(retriever, nil, log.NewNop())

	result, err := indexer.AddDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Indexed)
	assert.Equal(t, 2, result.Failed)
}

func TestIndexer_CustomExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "doc.rst", "restructured text")
	writeFile(t, dir, "doc.md", "markdown")

	retriever, _ := newKeywordRetriever()
	indexer := NewIndexer(retriever, []string{".rst"}, log.NewNop())

	result, err := indexer.AddDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Indexed)
	assert.Equal(t, []string{"doc.rst"}, retriever.Names())
}

func TestIndexer_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "content")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	retriever, _ := newKeywordRetriever()
	indexer := NewIndexer(retriever, nil, log.NewNop())

	_, err := indexer.AddDirectory(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}
