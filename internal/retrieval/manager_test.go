package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Taichi-iskw/vidgraph/internal/errors"
)

// memoryCache is an in-process Cache for manager tests
type memoryCache struct {
	entries map[string]*Result
	gets    int
	sets    int
	getErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string]*Result{}}
}

func (c *memoryCache) key(strategy Strategy, topK int, query string) string {
	return fmt.Sprintf("%s|%d|%s", strategy, topK, query)
}

func (c *memoryCache) Get(ctx context.Context, strategy Strategy, topK int, query string) (*Result, bool, error) {
	c.gets++
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	r, ok := c.entries[c.key(strategy, topK, query)]
	return r, ok, nil
}

func (c *memoryCache) Set(ctx context.Context, strategy Strategy, topK int, query string, result *Result) error {
	c.sets++
	c.entries[c.key(strategy, topK, query)] = result
	return nil
}

func TestManager_Search(t *testing.T) {
	vector := &stubRetriever{items: []Item{
		{Content: "GraphRAG uses a knowledge graph", Metadata: map[string]any{"title": "GraphRAG 101"}},
		{Content: "Vectors capture meaning", Metadata: map[string]any{}},
	}}
	generator := &fakeGenerator{replies: []string{"  It combines graphs with retrieval.  "}}
	m := NewManager(Retrievers{Vector: vector}, generator, Options{TopK: 3}, nil)

	result, err := m.Search(context.Background(), "what is graphrag", StrategyVector, Params{})

	require.NoError(t, err)
	assert.Equal(t, "It combines graphs with retrieval.", result.Answer)
	assert.Equal(t, StrategyVector, result.Strategy)
	assert.Len(t, result.Items, 2)
	assert.Equal(t, 3, vector.topK)

	require.Len(t, generator.prompts, 1)
	assert.Contains(t, generator.prompts[0], "[1] (GraphRAG 101) GraphRAG uses a knowledge graph")
	assert.Contains(t, generator.prompts[0], "[2] Vectors capture meaning")
	assert.Contains(t, generator.prompts[0], "what is graphrag")
}

func TestManager_SearchDefaults(t *testing.T) {
	vector := &stubRetriever{}
	m := NewManager(Retrievers{Vector: vector}, &fakeGenerator{replies: []string{"ok"}}, Options{}, nil)

	_, err := m.Search(context.Background(), "q", StrategyVector, Params{})
	require.NoError(t, err)
	assert.Equal(t, 5, vector.topK)

	_, err = m.Search(context.Background(), "q", StrategyVector, Params{TopK: 9})
	require.NoError(t, err)
	assert.Equal(t, 9, vector.topK)
}

func TestManager_SearchErrors(t *testing.T) {
	tests := []struct {
		name       string
		retrievers Retrievers
		generator  *fakeGenerator
		query      string
		strategy   Strategy
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "empty query",
			retrievers: Retrievers{Vector: &stubRetriever{}},
			generator:  &fakeGenerator{},
			query:      " ",
			strategy:   StrategyVector,
			wantCode:   errors.CodeInvalidArg,
		},
		{
			name:       "unconfigured strategy",
			retrievers: Retrievers{Vector: &stubRetriever{}},
			generator:  &fakeGenerator{},
			query:      "q",
			strategy:   StrategyHybrid,
			wantCode:   errors.CodeInvalidArg,
			wantMsg:    "invalid or unconfigured retriever type: hybrid",
		},
		{
			name:       "retriever fails",
			retrievers: Retrievers{Vector: &stubRetriever{err: errors.New(errors.CodeExternal, "graph search failed")}},
			generator:  &fakeGenerator{},
			query:      "q",
			strategy:   StrategyVector,
			wantCode:   errors.CodeExternal,
			wantMsg:    "graph search failed",
		},
		{
			name:       "generation fails",
			retrievers: Retrievers{Vector: &stubRetriever{}},
			generator:  &fakeGenerator{err: assert.AnError},
			query:      "q",
			strategy:   StrategyVector,
			wantCode:   errors.CodeExternal,
			wantMsg:    "failed to generate answer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.retrievers, tt.generator, Options{}, nil)
			result, err := m.Search(context.Background(), tt.query, tt.strategy, Params{})
			assert.Nil(t, result)
			assert.True(t, errors.HasCode(err, tt.wantCode), "got %v", err)
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestManager_SearchCache(t *testing.T) {
	vector := &stubRetriever{items: []Item{{Content: "ctx"}}}
	cache := newMemoryCache()
	m := NewManager(Retrievers{Vector: vector}, &fakeGenerator{replies: []string{"first", "second"}}, Options{Cache: cache}, nil)

	first, err := m.Search(context.Background(), "q", StrategyVector, Params{})
	require.NoError(t, err)
	second, err := m.Search(context.Background(), "q", StrategyVector, Params{})
	require.NoError(t, err)

	assert.Equal(t, "first", first.Answer)
	assert.Equal(t, "first", second.Answer)
	assert.Equal(t, 1, vector.calls)
	assert.Equal(t, 2, cache.gets)
	assert.Equal(t, 1, cache.sets)

	// different topK is a different entry
	_, err = m.Search(context.Background(), "q", StrategyVector, Params{TopK: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, vector.calls)
}

func TestManager_SearchCacheReadFailure(t *testing.T) {
	vector := &stubRetriever{}
	cache := newMemoryCache()
	cache.getErr = assert.AnError
	m := NewManager(Retrievers{Vector: vector}, &fakeGenerator{replies: []string{"answer"}}, Options{Cache: cache}, nil)

	result, err := m.Search(context.Background(), "q", StrategyVector, Params{})

	require.NoError(t, err)
	assert.Equal(t, "answer", result.Answer)
	assert.Equal(t, 1, vector.calls)
}

func TestManager_AutoRoutes(t *testing.T) {
	vector := &stubRetriever{}
	t2c := &stubRetriever{items: []Item{{Content: "count: 3"}}}
	generator := &fakeGenerator{replies: []string{"text2cypher", "There are 3 videos."}}
	m := NewManager(Retrievers{Vector: vector, Text2Cypher: t2c}, generator, Options{}, nil)

	result, err := m.Search(context.Background(), "how many videos mention neo4j?", StrategyAuto, Params{})

	require.NoError(t, err)
	assert.Equal(t, StrategyText2Cypher, result.Strategy)
	assert.Equal(t, "There are 3 videos.", result.Answer)
	assert.Equal(t, 0, vector.calls)
	assert.Equal(t, 1, t2c.calls)
	assert.Contains(t, generator.prompts[0], "Available strategies: vector, text2cypher")
}

func TestManager_Route(t *testing.T) {
	all := Retrievers{
		Vector:       &stubRetriever{},
		VectorCypher: &stubRetriever{},
		Hybrid:       &stubRetriever{},
		HybridCypher: &stubRetriever{},
	}

	tests := []struct {
		name       string
		retrievers Retrievers
		generator  *fakeGenerator
		want       Strategy
	}{
		{name: "exact", retrievers: all, generator: &fakeGenerator{replies: []string{"hybrid"}}, want: StrategyHybrid},
		{name: "longest match wins", retrievers: all, generator: &fakeGenerator{replies: []string{"Use HYBRID_CYPHER."}}, want: StrategyHybridCypher},
		{name: "unknown reply falls back", retrievers: all, generator: &fakeGenerator{replies: []string{"graph walk"}}, want: StrategyVector},
		{name: "unconfigured reply falls back", retrievers: Retrievers{VectorCypher: &stubRetriever{}}, generator: &fakeGenerator{replies: []string{"text2cypher"}}, want: StrategyVectorCypher},
		{name: "llm error falls back", retrievers: all, generator: &fakeGenerator{err: assert.AnError}, want: StrategyVector},
		{name: "nothing configured", retrievers: Retrievers{}, generator: &fakeGenerator{}, want: StrategyVector},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.retrievers, tt.generator, Options{}, nil)
			assert.Equal(t, tt.want, m.Route(context.Background(), "q"))
		})
	}
}

func TestManager_SetupText2Cypher(t *testing.T) {
	m := NewManager(Retrievers{}, &fakeGenerator{}, Options{}, nil)
	assert.True(t, errors.HasCode(m.SetupText2Cypher(DefaultSchema, nil), errors.CodeInvalidArg))

	m = NewManager(Retrievers{}, &fakeGenerator{}, Options{Runner: new(mockRunner)}, nil)
	require.NoError(t, m.SetupText2Cypher(DefaultSchema, DefaultExamples))
	assert.Equal(t, []Strategy{StrategyText2Cypher}, m.Configured())
}

func TestNewGraphManager_Configured(t *testing.T) {
	runner := new(mockRunner)
	embedder := new(mockEmbedder)

	vectorOnly := NewGraphManager(runner, embedder, &fakeGenerator{}, "video_content", "", Options{}, nil)
	assert.Equal(t, []Strategy{StrategyVector, StrategyVectorCypher}, vectorOnly.Configured())

	full := NewGraphManager(runner, embedder, &fakeGenerator{}, "video_content", "video_text", Options{}, nil)
	require.NoError(t, full.SetupText2Cypher("", nil))
	assert.Equal(t, Strategies, full.Configured())
}
