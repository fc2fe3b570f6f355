package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/Taichi-iskw/vidgraph/internal/errors"
	"github.com/Taichi-iskw/vidgraph/internal/logger"
)

// Retrievers holds one optional retriever per strategy; nil means not configured
type Retrievers struct {
	Vector       Retriever
	VectorCypher Retriever
	Hybrid       Retriever
	HybridCypher Retriever
	Text2Cypher  Retriever
}

func (r *Retrievers) get(s Strategy) Retriever {
	switch s {
	case StrategyVector:
		return r.Vector
	case StrategyVectorCypher:
		return r.VectorCypher
	case StrategyHybrid:
		return r.Hybrid
	case StrategyHybridCypher:
		return r.HybridCypher
	case StrategyText2Cypher:
		return r.Text2Cypher
	default:
		return nil
	}
}

// Params tunes a single search
type Params struct {
	TopK int // 0 uses the manager default
}

// Result is a generated answer with the context it was grounded on
type Result struct {
	Answer   string   `json:"answer"`
	Items    []Item   `json:"items"`
	Strategy Strategy `json:"strategy"`
}

// Cache stores search results
type Cache interface {
	Get(ctx context.Context, strategy Strategy, topK int, query string) (*Result, bool, error)
	Set(ctx context.Context, strategy Strategy, topK int, query string, result *Result) error
}

// Options configures a Manager
type Options struct {
	TopK   int
	Runner CypherRunner // required for SetupText2Cypher
	Cache  Cache        // optional
}

// Manager dispatches searches to the configured retrievers and generates answers
type Manager struct {
	retrievers Retrievers
	generator  Generator
	runner     CypherRunner
	cache      Cache
	topK       int
	log        *logger.Logger
}

// NewManager creates a Manager over retrievers
func NewManager(retrievers Retrievers, generator Generator, opts Options, log *logger.Logger) *Manager {
	if opts.TopK < 1 {
		opts.TopK = 5
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{
		retrievers: retrievers,
		generator:  generator,
		runner:     opts.Runner,
		cache:      opts.Cache,
		topK:       opts.TopK,
		log:        log.With("component", "retrieval"),
	}
}

// NewGraphManager wires the Neo4j index retrievers. Hybrid strategies are only
// configured when fulltextIndex is set.
func NewGraphManager(runner CypherRunner, embedder Embedder, generator Generator, vectorIndex, fulltextIndex string, opts Options, log *logger.Logger) *Manager {
	retrievers := Retrievers{
		Vector:       NewVectorRetriever(runner, embedder, vectorIndex),
		VectorCypher: NewVectorCypherRetriever(runner, embedder, vectorIndex),
	}
	if fulltextIndex != "" {
		retrievers.Hybrid = NewHybridRetriever(runner, embedder, vectorIndex, fulltextIndex)
		retrievers.HybridCypher = NewHybridCypherRetriever(runner, embedder, vectorIndex, fulltextIndex)
	}
	opts.Runner = runner
	return NewManager(retrievers, generator, opts, log)
}

// SetupText2Cypher enables the text2cypher strategy with a schema and few-shot examples
func (m *Manager) SetupText2Cypher(schema string, examples []string) error {
	if m.runner == nil {
		return errors.New(errors.CodeInvalidArg, "text2cypher requires a graph connection")
	}
	m.retrievers.Text2Cypher = NewText2CypherRetriever(m.runner, m.generator, schema, examples)
	return nil
}

// Configured lists the strategies that have a retriever
func (m *Manager) Configured() []Strategy {
	var out []Strategy
	for _, s := range Strategies {
		if m.retrievers.get(s) != nil {
			out = append(out, s)
		}
	}
	return out
}

// Search retrieves context for query with strategy and generates an answer
func (m *Manager) Search(ctx context.Context, query string, strategy Strategy, params Params) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New(errors.CodeInvalidArg, "query is required")
	}
	topK := params.TopK
	if topK < 1 {
		topK = m.topK
	}

	if strategy == StrategyAuto {
		strategy = m.Route(ctx, query)
	}
	retriever := m.retrievers.get(strategy)
	if retriever == nil {
		return nil, errors.New(errors.CodeInvalidArg, fmt.Sprintf("invalid or unconfigured retriever type: %s", strategy))
	}

	if m.cache != nil {
		if cached, ok, err := m.cache.Get(ctx, strategy, topK, query); err != nil {
			m.log.Warn("search cache read failed", "error", err)
		} else if ok {
			m.log.Debug("search cache hit", "strategy", strategy)
			return cached, nil
		}
	}

	items, err := retriever.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	answer, err := m.generator.Generate(ctx, buildAnswerPrompt(query, items))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeExternal, "failed to generate answer")
	}

	result := &Result{Answer: strings.TrimSpace(answer), Items: items, Strategy: strategy}
	if m.cache != nil {
		if err := m.cache.Set(ctx, strategy, topK, query, result); err != nil {
			m.log.Warn("search cache write failed", "error", err)
		}
	}

	m.log.Info("search completed", "strategy", strategy, "top_k", topK, "items", len(items))
	return result, nil
}

const routerPrompt = `Given a user query, determine the best retrieval strategy:

vector: for semantic similarity and concept understanding
vector_cypher: for relationship exploration and connected information
hybrid: for combining keyword matching with semantic search
text2cypher: for specific database queries (counts, lists, exact filters)

Available strategies: %s

Query: %s

Reply with the strategy name only.`

// Route asks the LLM which configured strategy suits query, falling back to the first configured one
func (m *Manager) Route(ctx context.Context, query string) Strategy {
	configured := m.Configured()
	if len(configured) == 0 {
		return StrategyVector
	}

	names := make([]string, len(configured))
	for i, s := range configured {
		names[i] = string(s)
	}

	reply, err := m.generator.Generate(ctx, fmt.Sprintf(routerPrompt, strings.Join(names, ", "), query))
	if err != nil {
		m.log.Warn("strategy routing failed, using default", "error", err)
		return configured[0]
	}

	if s := parseRoute(reply, configured); s != "" {
		return s
	}
	return configured[0]
}

// parseRoute picks the longest configured strategy name mentioned in reply,
// so "hybrid_cypher" wins over "hybrid"
func parseRoute(reply string, configured []Strategy) Strategy {
	reply = strings.ToLower(reply)
	var best Strategy
	for _, s := range configured {
		if strings.Contains(reply, string(s)) && len(s) > len(best) {
			best = s
		}
	}
	return best
}

const answerPrompt = `Answer the user question using the provided context.

Context:
%s

Question:
%s

Answer:
`

func buildAnswerPrompt(query string, items []Item) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] ", i+1)
		if title, ok := item.Metadata["title"].(string); ok && title != "" {
			fmt.Fprintf(&b, "(%s) ", title)
		}
		b.WriteString(item.Content)
	}
	return fmt.Sprintf(answerPrompt, b.String(), query)
}
