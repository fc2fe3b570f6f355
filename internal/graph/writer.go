package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Taichi-iskw/vidgraph/internal/logger"
	"github.com/Taichi-iskw/vidgraph/internal/model"
)

// Indexes names the Neo4j indexes the retrieval layer queries
type Indexes struct {
	Vector     string
	Fulltext   string // empty disables the fulltext index
	Dimensions int
}

// VideoWriter upserts a video with its segments as a graph
type VideoWriter struct {
	client  *Client
	indexes Indexes
	log     *logger.Logger
}

// NewVideoWriter creates a VideoWriter on client
func NewVideoWriter(client *Client, indexes Indexes, log *logger.Logger) *VideoWriter {
	if log == nil {
		log = logger.NewNop()
	}
	return &VideoWriter{
		client:  client,
		indexes: indexes,
		log:     log.With("component", "graph_writer"),
	}
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// EmbeddingDimensions returns the vector size produced by an OpenAI embedding model
func EmbeddingDimensions(embeddingModel string) int {
	switch embeddingModel {
	case "text-embedding-3-large":
		return 3072
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	default:
		return 1536
	}
}

// SchemaStatements returns the constraint and index DDL for the configured indexes
func SchemaStatements(indexes Indexes) ([]string, error) {
	stmts := []string{
		`CREATE CONSTRAINT video_id_unique IF NOT EXISTS FOR (v:Video) REQUIRE v.video_id IS UNIQUE`,
		`CREATE CONSTRAINT segment_id_unique IF NOT EXISTS FOR (s:Segment) REQUIRE s.id IS UNIQUE`,
		`CREATE CONSTRAINT speaker_name_unique IF NOT EXISTS FOR (p:Speaker) REQUIRE p.name IS UNIQUE`,
		`CREATE CONSTRAINT tag_name_unique IF NOT EXISTS FOR (t:Tag) REQUIRE t.name IS UNIQUE`,
		`CREATE CONSTRAINT repository_url_unique IF NOT EXISTS FOR (r:Repository) REQUIRE r.url IS UNIQUE`,
	}

	if indexes.Vector != "" {
		if !identifierPattern.MatchString(indexes.Vector) {
			return nil, fmt.Errorf("invalid vector index name %q", indexes.Vector)
		}
		dims := indexes.Dimensions
		if dims <= 0 {
			dims = 1536
		}
		stmts = append(stmts, fmt.Sprintf(
			"CREATE VECTOR INDEX %s IF NOT EXISTS FOR (s:Segment) ON (s.embedding) "+
				"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'cosine'}}",
			indexes.Vector, dims))
	}
	if indexes.Fulltext != "" {
		if !identifierPattern.MatchString(indexes.Fulltext) {
			return nil, fmt.Errorf("invalid fulltext index name %q", indexes.Fulltext)
		}
		stmts = append(stmts, fmt.Sprintf(
			"CREATE FULLTEXT INDEX %s IF NOT EXISTS FOR (s:Segment) ON EACH [s.text, s.title]",
			indexes.Fulltext))
	}
	return stmts, nil
}

// SegmentID is the graph identity of the index-th segment of a video
func SegmentID(videoID string, index int) string {
	return fmt.Sprintf("%s#%d", videoID, index)
}

// EnsureSchema creates constraints and indexes. Failures are logged and skipped.
func (w *VideoWriter) EnsureSchema(ctx context.Context) error {
	stmts, err := SchemaStatements(w.indexes)
	if err != nil {
		return err
	}

	session := w.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: w.client.Database,
	})
	defer session.Close(ctx)

	for _, q := range stmts {
		if res, err := session.Run(ctx, q, nil); err != nil {
			w.log.Warn("neo4j schema init failed (continuing)", "error", err)
		} else {
			_, _ = res.Consume(ctx)
		}
	}
	return nil
}

// UpsertVideo writes the video, its segments and their relationships in one transaction.
// Segments, chapters and outgoing links left over from a previous ingestion are replaced.
func (w *VideoWriter) UpsertVideo(ctx context.Context, metadata *model.VideoMetadata, segments []model.TranscriptSegment) error {
	if metadata == nil || metadata.VideoID == "" {
		return fmt.Errorf("graph: video ID is required")
	}
	if err := w.EnsureSchema(ctx); err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	videoID := metadata.VideoID
	video := VideoNode(metadata, now)
	segRows, err := SegmentRows(metadata, segments)
	if err != nil {
		return err
	}
	nextRows := NextRows(videoID, len(segments))
	spokenRows := SpeakerRows(videoID, segments)
	chapterRows := ChapterRows(videoID, metadata.Chapters)

	session := w.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: w.client.Database,
	})
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		steps := []struct {
			query  string
			params map[string]any
			skip   bool
		}{
			{
				query: `
MERGE (v:Video {video_id: $video.video_id})
SET v += $video
WITH v
OPTIONAL MATCH (v)-[old:TAGGED|REFERENCES]->()
DELETE old
`,
				params: map[string]any{"video": video},
			},
			{
				query: `
MATCH (v:Video {video_id: $video_id})-[:HAS_SEGMENT]->(s:Segment)
WHERE s.index >= $count
DETACH DELETE s
`,
				params: map[string]any{"video_id": videoID, "count": len(segments)},
			},
			{
				query: `
MATCH (v:Video {video_id: $video_id})-[:HAS_SEGMENT]->(:Segment)-[old:SPOKEN_BY]->()
DELETE old
`,
				params: map[string]any{"video_id": videoID},
			},
			{
				query: `
MATCH (v:Video {video_id: $video_id})-[:HAS_CHAPTER]->(c:Chapter)
DETACH DELETE c
`,
				params: map[string]any{"video_id": videoID},
			},
			{
				query: `
MATCH (v:Video {video_id: $video_id})
UNWIND $segments AS seg
MERGE (s:Segment {id: seg.id})
SET s += seg
MERGE (v)-[:HAS_SEGMENT]->(s)
`,
				params: map[string]any{"video_id": videoID, "segments": segRows},
				skip:   len(segRows) == 0,
			},
			{
				query: `
UNWIND $pairs AS p
MATCH (a:Segment {id: p.from})
MATCH (b:Segment {id: p.to})
MERGE (a)-[:NEXT]->(b)
`,
				params: map[string]any{"pairs": nextRows},
				skip:   len(nextRows) == 0,
			},
			{
				query: `
UNWIND $rels AS r
MATCH (s:Segment {id: r.segment_id})
MERGE (p:Speaker {name: r.speaker})
MERGE (s)-[:SPOKEN_BY]->(p)
`,
				params: map[string]any{"rels": spokenRows},
				skip:   len(spokenRows) == 0,
			},
			{
				query: `
MATCH (v:Video {video_id: $video_id})
UNWIND $tags AS name
MERGE (t:Tag {name: name})
MERGE (v)-[:TAGGED]->(t)
`,
				params: map[string]any{"video_id": videoID, "tags": metadata.Tags},
				skip:   len(metadata.Tags) == 0,
			},
			{
				query: `
MATCH (v:Video {video_id: $video_id})
UNWIND $repos AS url
MERGE (r:Repository {url: url})
MERGE (v)-[:REFERENCES]->(r)
`,
				params: map[string]any{"video_id": videoID, "repos": metadata.CodeRepos},
				skip:   len(metadata.CodeRepos) == 0,
			},
			{
				query: `
MATCH (v:Video {video_id: $video_id})
UNWIND $chapters AS ch
MERGE (c:Chapter {id: ch.id})
SET c += ch
MERGE (v)-[:HAS_CHAPTER]->(c)
`,
				params: map[string]any{"video_id": videoID, "chapters": chapterRows},
				skip:   len(chapterRows) == 0,
			},
		}

		for _, step := range steps {
			if step.skip {
				continue
			}
			res, err := tx.Run(ctx, step.query, step.params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("graph: upsert video %s: %w", videoID, err)
	}

	w.log.Info("video graph upserted", "video_id", videoID, "segments", len(segRows), "speakers", len(metadata.Speakers))
	return nil
}

// DeleteVideo removes a video with its segments and chapters. Shared nodes stay.
func (w *VideoWriter) DeleteVideo(ctx context.Context, videoID string) error {
	session := w.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: w.client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (v:Video {video_id: $video_id})
OPTIONAL MATCH (v)-[:HAS_SEGMENT|HAS_CHAPTER]->(n)
DETACH DELETE n, v
`, map[string]any{"video_id": videoID})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("graph: delete video %s: %w", videoID, err)
	}
	return nil
}

// VideoNode returns the property map of a Video node
func VideoNode(metadata *model.VideoMetadata, syncedAt string) map[string]any {
	return map[string]any{
		"video_id":    metadata.VideoID,
		"title":       metadata.Title,
		"description": metadata.Description,
		"upload_date": metadata.UploadDate,
		"duration":    metadata.Duration,
		"synced_at":   syncedAt,
	}
}

// segmentMetadata is serialized into Segment.metadata_json for retrieval results
type segmentMetadata struct {
	VideoID        string   `json:"video_id"`
	StartTime      float64  `json:"start_time"`
	EndTime        float64  `json:"end_time"`
	Speaker        *string  `json:"speaker"`
	CodeBlocks     []string `json:"code_blocks"`
	TechnicalTerms []string `json:"technical_terms"`
}

// SegmentRows returns one property map per segment in order
func SegmentRows(metadata *model.VideoMetadata, segments []model.TranscriptSegment) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(segments))
	for i, s := range segments {
		meta, err := json.Marshal(segmentMetadata{
			VideoID:        metadata.VideoID,
			StartTime:      s.StartTime,
			EndTime:        s.EndTime,
			Speaker:        s.Speaker,
			CodeBlocks:     s.CodeBlocks,
			TechnicalTerms: s.TechnicalTerms,
		})
		if err != nil {
			return nil, fmt.Errorf("graph: encode segment metadata: %w", err)
		}

		row := map[string]any{
			"id":            SegmentID(metadata.VideoID, i),
			"video_id":      metadata.VideoID,
			"index":         i,
			"title":         metadata.Title,
			"text":          strings.TrimSpace(s.Text),
			"start_time":    s.StartTime,
			"end_time":      s.EndTime,
			"speaker":       nil,
			"metadata_json": string(meta),
			"embedding":     nil,
		}
		if s.Speaker != nil {
			row["speaker"] = *s.Speaker
		}
		if len(s.Embedding) > 0 {
			vec := make([]float64, len(s.Embedding))
			for j, v := range s.Embedding {
				vec[j] = float64(v)
			}
			row["embedding"] = vec
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// NextRows links consecutive segments
func NextRows(videoID string, count int) []map[string]any {
	if count < 2 {
		return nil
	}
	rows := make([]map[string]any, 0, count-1)
	for i := 0; i < count-1; i++ {
		rows = append(rows, map[string]any{
			"from": SegmentID(videoID, i),
			"to":   SegmentID(videoID, i+1),
		})
	}
	return rows
}

// SpeakerRows links attributed segments to their speaker
func SpeakerRows(videoID string, segments []model.TranscriptSegment) []map[string]any {
	rows := []map[string]any{}
	for i, s := range segments {
		if s.Speaker == nil || *s.Speaker == "" {
			continue
		}
		rows = append(rows, map[string]any{
			"segment_id": SegmentID(videoID, i),
			"speaker":    *s.Speaker,
		})
	}
	return rows
}

// ChapterRows returns one property map per chapter
func ChapterRows(videoID string, chapters []model.Chapter) []map[string]any {
	rows := make([]map[string]any, 0, len(chapters))
	for i, ch := range chapters {
		rows = append(rows, map[string]any{
			"id":         fmt.Sprintf("%s@%d", videoID, i),
			"video_id":   videoID,
			"title":      ch.Title,
			"start_time": ch.StartTime,
		})
	}
	return rows
}
