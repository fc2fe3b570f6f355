package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Taichi-iskw/vidgraph/internal/errors"
)

const vectorSearchQuery = `
CALL db.index.vector.queryNodes($vector_index, $top_k, $embedding) YIELD node, score
WITH node, score`

// Both result lists are normalized by their best score before merging so the
// vector and fulltext scales are comparable.
const hybridSearchQuery = `
CALL {
    CALL db.index.vector.queryNodes($vector_index, $top_k, $embedding) YIELD node, score
    WITH collect({node: node, score: score}) AS nodes, max(score) AS max_score
    UNWIND nodes AS n
    RETURN n.node AS node, (n.score / max_score) AS score
    UNION
    CALL db.index.fulltext.queryNodes($fulltext_index, $query_text, {limit: $top_k}) YIELD node, score
    WITH collect({node: node, score: score}) AS nodes, max(score) AS max_score
    UNWIND nodes AS n
    RETURN n.node AS node, (n.score / max_score) AS score
}
WITH node, max(score) AS score
ORDER BY score DESC
LIMIT $top_k`

const plainReturn = `
RETURN node.video_id AS video_id, node.title AS title, node.text AS text,
       node.metadata_json AS metadata, score
ORDER BY score DESC`

// traversalReturn expands each hit with its immediate neighbourhood
const traversalReturn = `
OPTIONAL MATCH (node)-[r]-(related)
WITH node, score,
     collect(DISTINCT type(r)) AS relationships,
     collect(DISTINCT coalesce(related.name, related.url, related.title, related.video_id)) AS related
RETURN node.video_id AS video_id, node.title AS title, node.text AS text,
       node.metadata_json AS metadata, relationships, related, score
ORDER BY score DESC`

// indexRetriever queries the Neo4j vector index, optionally fused with the fulltext index
type indexRetriever struct {
	runner        CypherRunner
	embedder      Embedder
	vectorIndex   string
	fulltextIndex string
	traverse      bool
}

// NewVectorRetriever searches the vector index
func NewVectorRetriever(runner CypherRunner, embedder Embedder, vectorIndex string) Retriever {
	return &indexRetriever{runner: runner, embedder: embedder, vectorIndex: vectorIndex}
}

// NewVectorCypherRetriever searches the vector index and adds graph neighbours
func NewVectorCypherRetriever(runner CypherRunner, embedder Embedder, vectorIndex string) Retriever {
	return &indexRetriever{runner: runner, embedder: embedder, vectorIndex: vectorIndex, traverse: true}
}

// NewHybridRetriever fuses vector and fulltext hits
func NewHybridRetriever(runner CypherRunner, embedder Embedder, vectorIndex, fulltextIndex string) Retriever {
	return &indexRetriever{runner: runner, embedder: embedder, vectorIndex: vectorIndex, fulltextIndex: fulltextIndex}
}

// NewHybridCypherRetriever fuses vector and fulltext hits and adds graph neighbours
func NewHybridCypherRetriever(runner CypherRunner, embedder Embedder, vectorIndex, fulltextIndex string) Retriever {
	return &indexRetriever{runner: runner, embedder: embedder, vectorIndex: vectorIndex, fulltextIndex: fulltextIndex, traverse: true}
}

// Query returns the Cypher statement the retriever runs
func (r *indexRetriever) Query() string {
	search := vectorSearchQuery
	if r.fulltextIndex != "" {
		search = hybridSearchQuery
	}
	if r.traverse {
		return search + traversalReturn
	}
	return search + plainReturn
}

func (r *indexRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Item, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New(errors.CodeInvalidArg, "query is required")
	}

	embedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeExternal, "failed to embed query")
	}

	params := map[string]any{
		"vector_index": r.vectorIndex,
		"top_k":        topK,
		"embedding":    toFloat64s(embedding),
	}
	if r.fulltextIndex != "" {
		params["fulltext_index"] = r.fulltextIndex
		params["query_text"] = EscapeLucene(query)
	}

	rows, err := r.runner.Read(ctx, r.Query(), params)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeExternal, "graph search failed")
	}

	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, segmentItem(row))
	}
	return items, nil
}

// segmentItem shapes a segment record: the text becomes the content, everything else metadata
func segmentItem(row map[string]any) Item {
	md := map[string]any{}
	if raw, ok := row["metadata"].(string); ok && raw != "" {
		_ = json.Unmarshal([]byte(raw), &md)
	}
	for _, key := range []string{"video_id", "title", "score", "relationships", "related"} {
		if v, ok := row[key]; ok && v != nil {
			md[key] = v
		}
	}

	content, _ := row["text"].(string)
	return Item{Content: content, Metadata: md}
}

var luceneReplacer = func() *strings.Replacer {
	special := []string{`\`, `+`, `-`, `&`, `|`, `!`, `(`, `)`, `{`, `}`, `[`, `]`, `^`, `"`, `~`, `*`, `?`, `:`, `/`}
	pairs := make([]string, 0, len(special)*2)
	for _, s := range special {
		pairs = append(pairs, s, `\`+s)
	}
	return strings.NewReplacer(pairs...)
}()

// EscapeLucene escapes fulltext query syntax so user text is matched literally
func EscapeLucene(text string) string {
	return luceneReplacer.Replace(text)
}

func toFloat64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

// formatRecord renders an arbitrary record as "key: value" lines in a stable order
func formatRecord(row map[string]any, keys []string) string {
	var b strings.Builder
	for _, k := range keys {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %v", k, row[k])
	}
	return b.String()
}
