package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/Taichi-iskw/vidgraph/internal/errors"
)

// DefaultSchema describes the graph written by the ingestion pipeline
const DefaultSchema = `Node properties:
Video {video_id: STRING, title: STRING, description: STRING, upload_date: STRING, duration: FLOAT}
Segment {id: STRING, video_id: STRING, index: INTEGER, title: STRING, text: STRING, start_time: FLOAT, end_time: FLOAT, speaker: STRING, metadata_json: STRING}
Speaker {name: STRING}
Tag {name: STRING}
Repository {url: STRING}
Chapter {id: STRING, video_id: STRING, title: STRING, start_time: FLOAT}
Relationships:
(:Video)-[:HAS_SEGMENT]->(:Segment)
(:Segment)-[:NEXT]->(:Segment)
(:Segment)-[:SPOKEN_BY]->(:Speaker)
(:Video)-[:TAGGED]->(:Tag)
(:Video)-[:REFERENCES]->(:Repository)
(:Video)-[:HAS_CHAPTER]->(:Chapter)`

// DefaultExamples are few-shot question/query pairs for DefaultSchema
var DefaultExamples = []string{
	"USER INPUT: 'Which repositories does the video about GraphRAG link to?' QUERY: MATCH (v:Video)-[:REFERENCES]->(r:Repository) WHERE toLower(v.title) CONTAINS 'graphrag' RETURN v.title AS title, r.url AS url",
	"USER INPUT: 'How many segments did each speaker say in video abc?' QUERY: MATCH (:Video {video_id: 'abc'})-[:HAS_SEGMENT]->(s:Segment)-[:SPOKEN_BY]->(p:Speaker) RETURN p.name AS speaker, count(s) AS segments ORDER BY segments DESC",
	"USER INPUT: 'List videos tagged neo4j' QUERY: MATCH (v:Video)-[:TAGGED]->(:Tag {name: 'neo4j'}) RETURN v.video_id AS video_id, v.title AS title",
}

const text2CypherPrompt = `Task: Generate a Cypher statement for querying a Neo4j graph database from a user input.

Schema:
%s

Examples (optional):
%s

Input:
%s

Do not use any properties or relationships not included in the schema.
Only generate read queries. Limit the result to %d rows.
Do not include triple backticks or any additional text except the generated Cypher statement in your response.

Cypher query:
`

// literalPattern matches quoted strings, quoted identifiers and comments, whose text is not Cypher syntax
var literalPattern = regexp.MustCompile(`'(?:[^'\\]|\\.)*'|"(?:[^"\\]|\\.)*"|` + "`[^`]*`" + `|//[^\n]*|(?s:/\*.*?\*/)`)

var writeClausePattern = regexp.MustCompile(`(?i)\b(CREATE|MERGE|DELETE|DETACH|SET|REMOVE|DROP|FOREACH|LOAD\s+CSV)\b|\bapoc\.(create|merge|refactor|periodic)|\bdbms\.`)

// text2CypherRetriever asks the LLM for a Cypher query and runs it read-only
type text2CypherRetriever struct {
	runner    CypherRunner
	generator Generator
	schema    string
	examples  []string
}

// NewText2CypherRetriever creates a Retriever that translates questions into Cypher
func NewText2CypherRetriever(runner CypherRunner, generator Generator, schema string, examples []string) Retriever {
	if strings.TrimSpace(schema) == "" {
		schema = DefaultSchema
	}
	return &text2CypherRetriever{
		runner:    runner,
		generator: generator,
		schema:    schema,
		examples:  examples,
	}
}

func (r *text2CypherRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Item, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New(errors.CodeInvalidArg, "query is required")
	}

	prompt := fmt.Sprintf(text2CypherPrompt, r.schema, strings.Join(r.examples, "\n"), query, topK)
	raw, err := r.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeExternal, "failed to generate Cypher query")
	}

	cypher := CleanCypher(raw)
	if err := ValidateReadOnly(cypher); err != nil {
		return nil, err
	}

	rows, err := r.runner.Read(ctx, cypher, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeExternal, fmt.Sprintf("generated Cypher query failed: %s", cypher))
	}

	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		md := make(map[string]any, len(row)+1)
		for k, v := range row {
			md[k] = v
		}
		md["cypher"] = cypher
		items = append(items, Item{Content: formatRecord(row, keys), Metadata: md})
	}
	return items, nil
}

// CleanCypher strips markdown fences and a leading language tag from LLM output
func CleanCypher(raw string) string {
	s := strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(s, "```"); ok {
		s = rest
		// a single word on the opening fence line is a language tag (cypher, Cypher, sql...)
		if tag, body, found := strings.Cut(s, "\n"); found && isFenceTag(tag) {
			s = body
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	s = strings.TrimSpace(s)
	return strings.TrimSuffix(s, ";")
}

func isFenceTag(line string) bool {
	line = strings.TrimSpace(line)
	switch strings.ToUpper(line) {
	case "MATCH", "OPTIONAL", "WITH", "UNWIND", "CALL", "RETURN":
		return false
	}
	for _, r := range line {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// ValidateReadOnly rejects empty queries and queries with write clauses
func ValidateReadOnly(cypher string) error {
	if cypher == "" {
		return errors.New(errors.CodeExternal, "LLM returned an empty Cypher query")
	}
	if m := writeClausePattern.FindString(literalPattern.ReplaceAllString(cypher, "''")); m != "" {
		return errors.New(errors.CodeInvalidArg, fmt.Sprintf("generated Cypher query is not read-only (%s)", strings.ToUpper(m)))
	}
	return nil
}
