// Package rag keeps previously generated test cases in a small on-disk
// vector store and retrieves the closest ones as few-shot context.
package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/life4/genesis/slices"

	"github.com/mykhaliev/testcase-gen/logger"
	"github.com/mykhaliev/testcase-gen/model"
)

const FilePermission = 0644

// Embedder is the slice of the embeddings client the store needs.
// langchaingo's embeddings.Embedder satisfies it.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Document is one indexed test case plus its embedding.
type Document struct {
	ID        string         `json:"id"`
	APIName   string         `json:"api_name"`
	Type      model.TestType `json:"type"`
	Summary   string         `json:"summary"`
	TestCase  model.TestCase `json:"test_case"`
	Embedding []float32      `json:"embedding"`
}

// RetrievedExample is a query hit with its cosine similarity score.
type RetrievedExample struct {
	TestCase model.TestCase
	Score    float64
}

type storeFile struct {
	Documents []Document `json:"documents"`
}

// Store is a file-backed vector store. Safe for concurrent use.
type Store struct {
	path  string
	emb   Embedder
	floor float64

	mu   sync.RWMutex
	docs []Document
}

// Open loads the store at path, creating an empty one if the file does
// not exist yet. floor is the minimum similarity a hit must reach to be
// returned.
func Open(path string, emb Embedder, floor float64) (*Store, error) {
	s := &Store{path: path, emb: emb, floor: floor}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read vector store: %w", err)
	}
	var f storeFile
	if err := sonic.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse vector store %s: %w", path, err)
	}
	s.docs = f.Documents
	return s, nil
}

// Len returns the number of indexed documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Index embeds and stores test cases for later retrieval, then persists
// the store to disk. The embedding text is the case name, description
// and type.
func (s *Store) Index(ctx context.Context, apiName string, cases ...model.TestCase) error {
	if len(cases) == 0 {
		return nil
	}
	summaries := make([]string, len(cases))
	for i, tc := range cases {
		summaries[i] = summarize(tc)
	}
	vectors, err := s.emb.EmbedDocuments(ctx, summaries)
	if err != nil {
		return &model.ProviderError{Op: "embedding", Err: err}
	}
	if len(vectors) != len(cases) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(cases))
	}

	s.mu.Lock()
	for i, tc := range cases {
		s.docs = append(s.docs, Document{
			ID:        tc.ID,
			APIName:   apiName,
			Type:      tc.Type,
			Summary:   summaries[i],
			TestCase:  tc,
			Embedding: vectors[i],
		})
	}
	s.mu.Unlock()

	return s.save()
}

// Query returns up to k cases for the same API and test type, ranked by
// cosine similarity to text and cut off at the similarity floor. An
// empty or non-matching store returns no results and makes no embedding
// call.
func (s *Store) Query(ctx context.Context, apiName string, testType model.TestType, text string, k int) ([]RetrievedExample, error) {
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	candidates := slices.Filter(s.docs, func(d Document) bool {
		return d.APIName == apiName && d.Type == testType
	})
	s.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, nil
	}

	query, err := s.emb.EmbedQuery(ctx, text)
	if err != nil {
		return nil, &model.ProviderError{Op: "embedding", Err: err}
	}

	hits := make([]RetrievedExample, 0, len(candidates))
	for _, d := range candidates {
		score := cosine(query, d.Embedding)
		if score < s.floor {
			continue
		}
		hits = append(hits, RetrievedExample{TestCase: d.TestCase, Score: score})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *Store) save() error {
	s.mu.RLock()
	f := storeFile{Documents: s.docs}
	data, err := sonic.MarshalIndent(f, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal vector store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create vector store directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, FilePermission); err != nil {
		return fmt.Errorf("failed to write vector store: %w", err)
	}
	logger.Logger.Debug("Vector store persisted", "path", s.path, "documents", len(f.Documents))
	return nil
}

func summarize(tc model.TestCase) string {
	return fmt.Sprintf("%s\n%s\n%s", tc.Name, tc.Description, tc.Type)
}

// cosine computes cosine similarity, 0 when either vector is empty or
// all zeros.
func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
