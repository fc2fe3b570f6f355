package segment

import (
	"context"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/Taichi-iskw/vidgraph/internal/errors"
	"github.com/Taichi-iskw/vidgraph/internal/model"
	"github.com/Taichi-iskw/vidgraph/internal/repository/common"
)

var segmentColumns = []string{
	"video_id", "segment_index", "start_time", "end_time", "text",
	"speaker", "code_blocks", "technical_terms", "embedding",
}

// Repository defines operations for transcript segment persistence
type Repository interface {
	// ReplaceForVideo deletes the video's segments and bulk-inserts segments in order
	ReplaceForVideo(ctx context.Context, videoID string, segments []model.TranscriptSegment) error

	// GetByVideoID retrieves all segments of a video ordered by segment index
	GetByVideoID(ctx context.Context, videoID string) ([]model.TranscriptSegment, error)

	// CountBySpeaker returns how many segments each speaker label owns
	CountBySpeaker(ctx context.Context, videoID string) (map[string]int, error)
}

// segmentRepository implements Repository using PostgreSQL
type segmentRepository struct {
	db common.Querier
}

// NewRepository creates a new instance of Repository on a pool or a transaction
func NewRepository(db common.Querier) Repository {
	return &segmentRepository{
		db: db,
	}
}

// ReplaceForVideo swaps the stored segments using COPY FROM.
// Run it inside a transaction to make the swap atomic.
func (r *segmentRepository) ReplaceForVideo(ctx context.Context, videoID string, segments []model.TranscriptSegment) error {
	if videoID == "" {
		return apperrors.New(apperrors.CodeInvalidArg, "video ID is required")
	}

	if _, err := r.db.Exec(ctx, "DELETE FROM transcript_segments WHERE video_id = $1", videoID); err != nil {
		return common.HandlePostgreSQLError(err, "failed to clear transcript segments")
	}
	if len(segments) == 0 {
		return nil
	}

	rows := make([][]any, len(segments))
	for i, s := range segments {
		rows[i] = []any{
			videoID,
			i,
			s.StartTime,
			s.EndTime,
			s.Text,
			s.Speaker,
			nonNil(s.CodeBlocks),
			nonNil(s.TechnicalTerms),
			s.Embedding,
		}
	}

	_, err := r.db.CopyFrom(ctx, pgx.Identifier{"transcript_segments"}, segmentColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return common.HandlePostgreSQLError(err, "failed to save transcript segments")
	}
	return nil
}

// GetByVideoID retrieves all segments for a video, ordered by segment_index
func (r *segmentRepository) GetByVideoID(ctx context.Context, videoID string) ([]model.TranscriptSegment, error) {
	sql := `SELECT start_time, end_time, text, speaker, code_blocks, technical_terms, embedding
		FROM transcript_segments
		WHERE video_id = $1
		ORDER BY segment_index`

	rows, err := r.db.Query(ctx, sql, videoID)
	if err != nil {
		return nil, common.HandlePostgreSQLError(err, "failed to get transcript segments")
	}
	defer rows.Close()

	segments := []model.TranscriptSegment{}
	for rows.Next() {
		var s model.TranscriptSegment
		if err := rows.Scan(&s.StartTime, &s.EndTime, &s.Text, &s.Speaker, &s.CodeBlocks, &s.TechnicalTerms, &s.Embedding); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan segment row")
		}
		s.CodeBlocks = nonNil(s.CodeBlocks)
		s.TechnicalTerms = nonNil(s.TechnicalTerms)
		segments = append(segments, s)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to iterate segment rows")
	}

	return segments, nil
}

// CountBySpeaker groups a video's segments by speaker; unattributed segments count under ""
func (r *segmentRepository) CountBySpeaker(ctx context.Context, videoID string) (map[string]int, error) {
	sql := `SELECT COALESCE(speaker, ''), COUNT(*)
		FROM transcript_segments
		WHERE video_id = $1
		GROUP BY speaker`

	rows, err := r.db.Query(ctx, sql, videoID)
	if err != nil {
		return nil, common.HandlePostgreSQLError(err, "failed to count segments by speaker")
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var (
			speaker string
			count   int
		)
		if err := rows.Scan(&speaker, &count); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan speaker count")
		}
		counts[speaker] = count
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to iterate speaker counts")
	}

	return counts, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
