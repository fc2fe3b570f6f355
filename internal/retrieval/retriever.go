package retrieval

import (
	"context"
)

// Item is one retrieved context record
type Item struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// Retriever fetches the topK most relevant items for query
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Item, error)
}

// CypherRunner runs a read-only Cypher query. *graph.Client implements it.
type CypherRunner interface {
	Read(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
}

// Embedder turns text into vectors. langchaingo embedders implement it.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator completes a prompt with an LLM
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
