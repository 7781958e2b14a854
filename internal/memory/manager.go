// Package memory maintains the user-scoped vector memory that lets the
// retrieval pipeline answer from previously summarized documents.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"

	"github.com/sira-labs/sira/internal/store"
	"github.com/sira-labs/sira/provider"
)

const storedTextCap = 1000

// Hit is one vector-search result.
type Hit struct {
	Title string
	URL   string
	Text  string
	Score float64
}

// VectorStore is the persistence slice of store.Store the manager needs.
type VectorStore interface {
	UpsertMemoryEntry(ctx context.Context, rec store.MemoryEntry) error
	SearchMemory(ctx context.Context, userID string, vector []float32, topK int) ([]store.MemoryHit, error)
}

// Manager embeds text and reads/writes the vector store.
type Manager struct {
	store      VectorStore
	llm        provider.Provider
	dimensions int
	logger     *log.Logger
}

func NewManager(st VectorStore, llm provider.Provider, dimensions int, logger *log.Logger) *Manager {
	if dimensions <= 0 {
		dimensions = 1536
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[MEMORY] ", log.LstdFlags)
	}
	return &Manager{store: st, llm: llm, dimensions: dimensions, logger: logger}
}

// UpsertText embeds a summary and stores it for the user. The row id is
// derived from URL plus a text prefix so re-ingesting the same document
// refreshes rather than duplicates.
func (m *Manager) UpsertText(ctx context.Context, userID, text, url, title string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	vec, err := m.embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed memory text: %w", err)
	}
	stored := text
	if len(stored) > storedTextCap {
		stored = stored[:storedTextCap]
	}
	return m.store.UpsertMemoryEntry(ctx, store.MemoryEntry{
		ID:     entryID(url, text),
		UserID: userID,
		Title:  title,
		URL:    url,
		Text:   stored,
		Vector: vec,
	})
}

// Search embeds the query and returns the user's top-k nearest memories with
// similarity scores. Failures come back as an empty list; stale memory must
// never break a live request.
func (m *Manager) Search(ctx context.Context, userID, query string, topK int) ([]Hit, error) {
	vec, err := m.embed(ctx, query)
	if err != nil {
		m.logger.Printf("search embed failed: %v", err)
		return nil, nil
	}
	rows, err := m.store.SearchMemory(ctx, userID, vec, topK)
	if err != nil {
		m.logger.Printf("vector search failed: %v", err)
		return nil, nil
	}
	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, Hit{Title: r.Title, URL: r.URL, Text: r.Text, Score: r.Score})
	}
	return hits, nil
}

// embed returns a zero vector of the configured dimensionality for empty
// input, per the embedding contract.
func (m *Manager) embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, m.dimensions), nil
	}
	vecs, err := m.llm.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedding provider returned no vectors")
	}
	return vecs[0], nil
}

func entryID(url, text string) string {
	prefix := text
	if len(prefix) > 50 {
		prefix = prefix[:50]
	}
	sum := sha256.Sum256([]byte(url + prefix))
	return hex.EncodeToString(sum[:16])
}
