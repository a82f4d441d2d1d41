package rag

import (
	"math"
	"sort"
	"sync"
)

// ScoredDocument is a search hit with its cosine similarity score.
type ScoredDocument struct {
	// Name identifies the document (usually its file name).
	Name string

	// Content is the full document text.
	Content string

	// Score is the cosine similarity to the query, in [-1, 1].
	Score float64
}

type storeItem struct {
	name      string
	content   string
	embedding []float32
}

// Store is an in-memory vector store: a flat list of documents with
// their embeddings, searched by cosine similarity. It holds a handful
// of documents, so a linear scan is the whole search strategy.
//
// Store is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	items []storeItem
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Add stores a document with its embedding.
func (s *Store) Add(name, content string, embedding []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, storeItem{
		name:      name,
		content:   content,
		embedding: embedding,
	})
}

// Search returns the topK documents most similar to the query vector,
// in descending score order. Ties keep insertion order. topK larger
// than the store returns everything ranked; topK <= 0 returns nothing.
func (s *Store) Search(query []float32, topK int) []ScoredDocument {
	if topK <= 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	scored := make([]ScoredDocument, 0, len(s.items))
	for _, item := range s.items {
		scored = append(scored, ScoredDocument{
			Name:    item.name,
			Content: item.content,
			Score:   cosineSimilarity(query, item.embedding),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if topK < len(scored) {
		scored = scored[:topK]
	}
	return scored
}

// Size returns the number of stored documents.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Names returns the stored document names in insertion order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.items))
	for i, item := range s.items {
		names[i] = item.name
	}
	return names
}

// Clear removes all documents.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}

// cosineSimilarity computes the cosine similarity of two vectors.
// Mismatched lengths and zero-norm vectors score 0 rather than failing;
// a bad vector should rank last, not abort retrieval.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
