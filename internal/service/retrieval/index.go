package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/tmc/langchaingo/textsplitter"
)

// ErrNoDocuments is returned when an index is built from nothing.
var ErrNoDocuments = errors.New("retrieval: no document text to index")

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Options controls chunking.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultOptions mirrors the historical splitter settings.
func DefaultOptions() Options {
	return Options{ChunkSize: 100, ChunkOverlap: 50}
}

// Index is an immutable set of document chunks that can be searched.
type Index struct {
	chunks   []string
	vectors  [][]float32
	embedder Embedder
}

// Build chunks the documents and, when an embedder is given, embeds every chunk.
// Without an embedder the index falls back to lexical scoring.
func Build(ctx context.Context, documents []string, opts Options, embedder Embedder) (*Index, error) {
	if opts.ChunkSize <= 0 {
		opts = DefaultOptions()
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(opts.ChunkSize),
		textsplitter.WithChunkOverlap(opts.ChunkOverlap),
	)

	var chunks []string
	for _, doc := range documents {
		if strings.TrimSpace(doc) == "" {
			continue
		}
		parts, err := splitter.SplitText(doc)
		if err != nil {
			return nil, fmt.Errorf("split document: %w", err)
		}
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				chunks = append(chunks, part)
			}
		}
	}
	if len(chunks) == 0 {
		return nil, ErrNoDocuments
	}

	ix := &Index{chunks: chunks}
	if embedder != nil {
		vectors, err := embedder.Embed(ctx, chunks)
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
		if len(vectors) != len(chunks) {
			return nil, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(chunks))
		}
		ix.vectors = vectors
		ix.embedder = embedder
	}
	return ix, nil
}

// Len reports the number of chunks.
func (ix *Index) Len() int {
	return len(ix.chunks)
}

// Search returns up to k chunks ranked by relevance to query.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]string, error) {
	if k <= 0 {
		k = 5
	}

	var scores []float64
	if ix.embedder != nil {
		vectors, err := ix.embedder.Embed(ctx, []string{query})
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		if len(vectors) != 1 {
			return nil, fmt.Errorf("embed query: got %d vectors", len(vectors))
		}
		scores = make([]float64, len(ix.chunks))
		for i, vec := range ix.vectors {
			scores[i] = cosine(vectors[0], vec)
		}
	} else {
		scores = lexicalScores(query, ix.chunks)
	}

	order := make([]int, len(ix.chunks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	out := make([]string, 0, k)
	for _, i := range order {
		if len(out) == k {
			break
		}
		if ix.embedder == nil && scores[i] == 0 {
			break
		}
		out = append(out, ix.chunks[i])
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func lexicalScores(query string, chunks []string) []float64 {
	terms := tokenize(query)
	scores := make([]float64, len(chunks))
	if len(terms) == 0 {
		return scores
	}
	for i, chunk := range chunks {
		words := tokenize(chunk)
		for term := range terms {
			if _, ok := words[term]; ok {
				scores[i]++
			}
		}
		if len(words) > 0 {
			scores[i] /= math.Sqrt(float64(len(words)))
		}
	}
	return scores
}

func tokenize(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			out[f] = struct{}{}
		}
	}
	return out
}
