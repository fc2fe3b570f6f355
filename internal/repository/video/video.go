package video

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/Taichi-iskw/vidgraph/internal/errors"
	"github.com/Taichi-iskw/vidgraph/internal/model"
	"github.com/Taichi-iskw/vidgraph/internal/repository/common"
)

// Repository defines operations for video metadata persistence
type Repository interface {
	// Upsert inserts a video or replaces its metadata, keeping the original created_at
	Upsert(ctx context.Context, metadata *model.VideoMetadata, version string) error

	// GetByID retrieves a video record (without segments) by its ID
	GetByID(ctx context.Context, id string) (*model.VideoRecord, error)

	// List retrieves video summaries, newest first
	List(ctx context.Context, limit, offset int) ([]model.VideoSummary, error)

	// Delete deletes a video and, through the foreign key, its segments
	Delete(ctx context.Context, id string) error
}

// videoRepository implements Repository using PostgreSQL
type videoRepository struct {
	db common.Querier
}

// NewRepository creates a new instance of Repository on a pool or a transaction
func NewRepository(db common.Querier) Repository {
	return &videoRepository{
		db: db,
	}
}

// Upsert inserts a video or replaces its metadata
func (r *videoRepository) Upsert(ctx context.Context, metadata *model.VideoMetadata, version string) error {
	if metadata == nil || metadata.VideoID == "" {
		return apperrors.New(apperrors.CodeInvalidArg, "video ID is required")
	}

	chapters, err := json.Marshal(nonNilChapters(metadata.Chapters))
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to encode chapters")
	}

	sql := `INSERT INTO videos
		(id, title, description, upload_date, duration, tags, speakers, code_repos, chapters, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			upload_date = EXCLUDED.upload_date,
			duration = EXCLUDED.duration,
			tags = EXCLUDED.tags,
			speakers = EXCLUDED.speakers,
			code_repos = EXCLUDED.code_repos,
			chapters = EXCLUDED.chapters,
			version = EXCLUDED.version`

	_, err = r.db.Exec(ctx, sql,
		metadata.VideoID,
		metadata.Title,
		metadata.Description,
		metadata.UploadDate,
		metadata.Duration,
		nonNil(metadata.Tags),
		nonNil(metadata.Speakers),
		nonNil(metadata.CodeRepos),
		string(chapters),
		version,
	)
	if err != nil {
		return common.HandlePostgreSQLError(err, "failed to save video")
	}
	return nil
}

// GetByID retrieves a video by its ID
func (r *videoRepository) GetByID(ctx context.Context, id string) (*model.VideoRecord, error) {
	sql := `SELECT id, title, description, upload_date, duration, tags, speakers, code_repos, chapters, version, created_at
		FROM videos WHERE id = $1`

	var (
		record   model.VideoRecord
		chapters []byte
		created  time.Time
	)
	m := &record.Metadata
	err := r.db.QueryRow(ctx, sql, id).Scan(
		&m.VideoID, &m.Title, &m.Description, &m.UploadDate, &m.Duration,
		&m.Tags, &m.Speakers, &m.CodeRepos, &chapters, &record.Version, &created,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.Wrap(err, apperrors.CodeNotFound, "video not found: "+id)
		}
		return nil, common.HandlePostgreSQLError(err, "failed to get video")
	}

	if err := json.Unmarshal(chapters, &m.Chapters); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to decode chapters")
	}
	m.Chapters = nonNilChapters(m.Chapters)
	m.Tags = nonNil(m.Tags)
	m.Speakers = nonNil(m.Speakers)
	m.CodeRepos = nonNil(m.CodeRepos)
	record.CreatedAt = created.UTC()

	return &record, nil
}

// List retrieves video summaries with pagination
func (r *videoRepository) List(ctx context.Context, limit, offset int) ([]model.VideoSummary, error) {
	sql := "SELECT id, title, upload_date FROM videos ORDER BY created_at DESC, id LIMIT $1 OFFSET $2"
	rows, err := r.db.Query(ctx, sql, limit, offset)
	if err != nil {
		return nil, common.HandlePostgreSQLError(err, "failed to list videos")
	}
	defer rows.Close()

	videos := []model.VideoSummary{}
	for rows.Next() {
		var v model.VideoSummary
		if err := rows.Scan(&v.VideoID, &v.Title, &v.UploadDate); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan video row")
		}
		videos = append(videos, v)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to iterate video rows")
	}

	return videos, nil
}

// Delete deletes a video by its ID
func (r *videoRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM videos WHERE id = $1", id)
	if err != nil {
		return common.HandlePostgreSQLError(err, "failed to delete video")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.CodeNotFound, "video not found: "+id)
	}
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nonNilChapters(chapters []model.Chapter) []model.Chapter {
	if chapters == nil {
		return []model.Chapter{}
	}
	return chapters
}
