package retrieval

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

const embedBatchSize = 256

// OpenAIEmbedder computes embeddings through the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder wraps an existing client.
func NewOpenAIEmbedder(client *openai.Client, model string) *OpenAIEmbedder {
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAIEmbedder{client: client, model: openai.EmbeddingModel(model)}
}

// Embed implements Embedder, batching large inputs.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts[start:end],
			Model: e.model,
		})
		if err != nil {
			return nil, fmt.Errorf("create embeddings: %w", err)
		}
		for _, item := range resp.Data {
			if item.Index < 0 || start+item.Index >= end {
				return nil, fmt.Errorf("create embeddings: index %d out of range", item.Index)
			}
			out[start+item.Index] = item.Embedding
		}
	}
	for i, vec := range out {
		if vec == nil {
			return nil, fmt.Errorf("create embeddings: missing vector for input %d", i)
		}
	}
	return out, nil
}
