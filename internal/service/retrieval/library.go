package retrieval

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/zhouzirui/z-concierge/backend/internal/model/agent"
)

// Library keeps one index per agent. An index is replaced wholesale on upload.
type Library struct {
	mu       sync.RWMutex
	indexes  map[agent.ID]*Index
	opts     Options
	topK     int
	embedder Embedder
}

// NewLibrary returns an empty library. embedder may be nil.
func NewLibrary(opts Options, topK int, embedder Embedder) *Library {
	if topK <= 0 {
		topK = 5
	}
	return &Library{
		indexes:  make(map[agent.ID]*Index),
		opts:     opts,
		topK:     topK,
		embedder: embedder,
	}
}

// Load builds a new index for the agent from raw documents.
func (l *Library) Load(ctx context.Context, id agent.ID, documents []string) (int, error) {
	ix, err := Build(ctx, documents, l.opts, l.embedder)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	l.indexes[id] = ix
	l.mu.Unlock()

	log.Printf("[retrieval] index for %s replaced, chunks=%d", id, ix.Len())
	return ix.Len(), nil
}

// LoadFiles reads the given paths and indexes their contents.
func (l *Library) LoadFiles(ctx context.Context, id agent.ID, paths []string) (int, error) {
	docs := make([]string, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("read document %s: %w", path, err)
		}
		docs = append(docs, string(data))
	}
	return l.Load(ctx, id, docs)
}

// Has reports whether the agent has an index.
func (l *Library) Has(id agent.ID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.indexes[id]
	return ok
}

// Retrieve returns the top passages for the agent's index; ok is false when
// no index has been loaded.
func (l *Library) Retrieve(ctx context.Context, id agent.ID, query string) (passages []string, ok bool, err error) {
	l.mu.RLock()
	ix, ok := l.indexes[id]
	l.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	passages, err = ix.Search(ctx, query, l.topK)
	return passages, true, err
}
