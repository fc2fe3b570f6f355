// Package library persists ingested videos to PostgreSQL and mirrors them
// into the knowledge graph.
package library

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Taichi-iskw/vidgraph/internal/errors"
	"github.com/Taichi-iskw/vidgraph/internal/logger"
	"github.com/Taichi-iskw/vidgraph/internal/model"
	"github.com/Taichi-iskw/vidgraph/internal/repository/common"
	"github.com/Taichi-iskw/vidgraph/internal/repository/segment"
	"github.com/Taichi-iskw/vidgraph/internal/repository/video"
)

// DefaultVersion is stored when Save is called without a version
const DefaultVersion = "1.0.0"

const (
	embedBatchSize   = 64
	embedConcurrency = 4
)

// GraphWriter mirrors stored videos into the graph
type GraphWriter interface {
	UpsertVideo(ctx context.Context, metadata *model.VideoMetadata, segments []model.TranscriptSegment) error
	DeleteVideo(ctx context.Context, videoID string) error
}

// Embedder computes segment embeddings
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Service is the video library
type Service interface {
	// Save stores a video with its segments, replacing any previous version
	Save(ctx context.Context, metadata *model.VideoMetadata, segments []model.TranscriptSegment, version string) error

	// Get returns a stored video with its segments
	Get(ctx context.Context, videoID string) (*model.VideoRecord, error)

	// List returns stored videos, newest first
	List(ctx context.Context, limit, offset int) ([]model.VideoSummary, error)

	// Delete removes a video, its segments and its graph nodes
	Delete(ctx context.Context, videoID string) error

	// SpeakerStats counts segments per speaker; unattributed segments count under ""
	SpeakerStats(ctx context.Context, videoID string) (map[string]int, error)
}

// Options wires the optional graph side of the library
type Options struct {
	Graph    GraphWriter
	Embedder Embedder // only used when Graph is set
}

// libraryService implements Service
type libraryService struct {
	pool     common.Pool
	graph    GraphWriter
	embedder Embedder
	log      *logger.Logger
}

// NewService creates a new library Service
func NewService(pool common.Pool, opts Options, log *logger.Logger) Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &libraryService{
		pool:     pool,
		graph:    opts.Graph,
		embedder: opts.Embedder,
		log:      log.With("component", "library"),
	}
}

func (s *libraryService) Save(ctx context.Context, metadata *model.VideoMetadata, segments []model.TranscriptSegment, version string) error {
	if metadata == nil || metadata.VideoID == "" {
		return errors.New(errors.CodeInvalidArg, "video ID is required")
	}
	if version == "" {
		version = DefaultVersion
	}

	// Embeddings go on copies so the caller's segments stay untouched
	stored := segments
	if s.graph != nil && s.embedder != nil && len(segments) > 0 {
		embedded, err := s.embed(ctx, segments)
		if err != nil {
			return err
		}
		stored = embedded
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return common.HandlePostgreSQLError(err, "failed to begin transaction")
	}

	if err := s.writeRows(ctx, tx, metadata, stored, version); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.log.Warn("rollback failed", "video_id", metadata.VideoID, "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return common.HandlePostgreSQLError(err, "failed to commit video")
	}
	s.log.Info("video saved", "video_id", metadata.VideoID, "segments", len(stored), "version", version)

	if s.graph == nil {
		return nil
	}
	if err := s.graph.UpsertVideo(ctx, metadata, stored); err != nil {
		return errors.Wrap(err, errors.CodeExternal, "video saved but graph sync failed: "+metadata.VideoID)
	}
	s.log.Info("video synced to graph", "video_id", metadata.VideoID)
	return nil
}

func (s *libraryService) writeRows(ctx context.Context, tx common.Querier, metadata *model.VideoMetadata, segments []model.TranscriptSegment, version string) error {
	if err := video.NewRepository(tx).Upsert(ctx, metadata, version); err != nil {
		return err
	}
	return segment.NewRepository(tx).ReplaceForVideo(ctx, metadata.VideoID, segments)
}

// embed returns copies of segments carrying embeddings of their text.
// Batches run concurrently; the first failure cancels the rest.
func (s *libraryService) embed(ctx context.Context, segments []model.TranscriptSegment) ([]model.TranscriptSegment, error) {
	out := make([]model.TranscriptSegment, len(segments))
	copy(out, segments)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for start := 0; start < len(out); start += embedBatchSize {
		end := min(start+embedBatchSize, len(out))
		batch := out[start:end]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, seg := range batch {
				texts[i] = seg.Text
			}
			vectors, err := s.embedder.EmbedDocuments(gctx, texts)
			if err != nil {
				return err
			}
			if len(vectors) != len(batch) {
				return errors.New(errors.CodeExternal, "embedding count does not match segment count")
			}
			for i := range batch {
				batch[i].Embedding = vectors[i]
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.HasCode(err, errors.CodeExternal) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.CodeExternal, "failed to embed segments")
	}
	return out, nil
}

func (s *libraryService) Get(ctx context.Context, videoID string) (*model.VideoRecord, error) {
	if videoID == "" {
		return nil, errors.New(errors.CodeInvalidArg, "video ID is required")
	}

	record, err := video.NewRepository(s.pool).GetByID(ctx, videoID)
	if err != nil {
		return nil, err
	}

	segments, err := segment.NewRepository(s.pool).GetByVideoID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	record.Segments = segments
	return record, nil
}

func (s *libraryService) List(ctx context.Context, limit, offset int) ([]model.VideoSummary, error) {
	if limit < 1 {
		return nil, errors.New(errors.CodeInvalidArg, "limit must be positive")
	}
	if offset < 0 {
		return nil, errors.New(errors.CodeInvalidArg, "offset must not be negative")
	}
	return video.NewRepository(s.pool).List(ctx, limit, offset)
}

func (s *libraryService) Delete(ctx context.Context, videoID string) error {
	if videoID == "" {
		return errors.New(errors.CodeInvalidArg, "video ID is required")
	}
	if err := video.NewRepository(s.pool).Delete(ctx, videoID); err != nil {
		return err
	}
	s.log.Info("video deleted", "video_id", videoID)

	if s.graph == nil {
		return nil
	}
	if err := s.graph.DeleteVideo(ctx, videoID); err != nil {
		return errors.Wrap(err, errors.CodeExternal, "video deleted but graph cleanup failed: "+videoID)
	}
	return nil
}

func (s *libraryService) SpeakerStats(ctx context.Context, videoID string) (map[string]int, error) {
	if videoID == "" {
		return nil, errors.New(errors.CodeInvalidArg, "video ID is required")
	}
	return segment.NewRepository(s.pool).CountBySpeaker(ctx, videoID)
}
