package library

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Taichi-iskw/vidgraph/internal/errors"
	"github.com/Taichi-iskw/vidgraph/internal/model"
)

var segmentColumns = []string{
	"video_id", "segment_index", "start_time", "end_time", "text",
	"speaker", "code_blocks", "technical_terms", "embedding",
}

type mockGraphWriter struct {
	mock.Mock
}

func (m *mockGraphWriter) UpsertVideo(ctx context.Context, metadata *model.VideoMetadata, segments []model.TranscriptSegment) error {
	args := m.Called(ctx, metadata, segments)
	return args.Error(0)
}

func (m *mockGraphWriter) DeleteVideo(ctx context.Context, videoID string) error {
	args := m.Called(ctx, videoID)
	return args.Error(0)
}

type mockEmbedder struct {
	mock.Mock
	mu sync.Mutex
}

func (m *mockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func str(s string) *string { return &s }

func sampleVideo() (*model.VideoMetadata, []model.TranscriptSegment) {
	meta := &model.VideoMetadata{
		VideoID:    "abc123",
		Title:      "GraphRAG in practice",
		UploadDate: "20240115",
		Duration:   60,
		Speakers:   []string{"spk1"},
	}
	segments := []model.TranscriptSegment{
		{StartTime: 0, EndTime: 4, Text: "hello", Speaker: str("spk1"), CodeBlocks: []string{}, TechnicalTerms: []string{}},
		{StartTime: 4, EndTime: 9, Text: "graphs everywhere", CodeBlocks: []string{}, TechnicalTerms: []string{"graph"}},
	}
	return meta, segments
}

func expectRows(m pgxmock.PgxPoolIface) {
	m.ExpectExec("INSERT INTO videos").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	m.ExpectExec("DELETE FROM transcript_segments").WithArgs("abc123").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	m.ExpectCopyFrom(pgx.Identifier{"transcript_segments"}, segmentColumns).WillReturnResult(2)
}

func TestLibraryService_Save(t *testing.T) {
	tests := []struct {
		name         string
		withGraph    bool
		withEmbedder bool
		setup        func(pgxmock.PgxPoolIface, *mockGraphWriter, *mockEmbedder)
		wantErr      bool
		expectedCode string
		errContains  string
	}{
		{
			name: "relational only",
			setup: func(m pgxmock.PgxPoolIface, g *mockGraphWriter, e *mockEmbedder) {
				m.ExpectBegin()
				expectRows(m)
				m.ExpectCommit()
			},
		},
		{
			name:         "graph sync with embeddings",
			withGraph:    true,
			withEmbedder: true,
			setup: func(m pgxmock.PgxPoolIface, g *mockGraphWriter, e *mockEmbedder) {
				e.On("EmbedDocuments", mock.Anything, []string{"hello", "graphs everywhere"}).
					Return([][]float32{{0.1, 0.2}, {0.3, 0.4}}, nil)
				m.ExpectBegin()
				expectRows(m)
				m.ExpectCommit()
				g.On("UpsertVideo", mock.Anything, mock.Anything, mock.MatchedBy(func(segs []model.TranscriptSegment) bool {
					return len(segs) == 2 && segs[0].Embedding[0] == 0.1 && segs[1].Embedding[1] == 0.4
				})).Return(nil)
			},
		},
		{
			name:      "graph sync without embedder",
			withGraph: true,
			setup: func(m pgxmock.PgxPoolIface, g *mockGraphWriter, e *mockEmbedder) {
				m.ExpectBegin()
				expectRows(m)
				m.ExpectCommit()
				g.On("UpsertVideo", mock.Anything, mock.Anything, mock.MatchedBy(func(segs []model.TranscriptSegment) bool {
					return len(segs) == 2 && segs[0].Embedding == nil
				})).Return(nil)
			},
		},
		{
			name:         "embedding failure writes nothing",
			withGraph:    true,
			withEmbedder: true,
			setup: func(m pgxmock.PgxPoolIface, g *mockGraphWriter, e *mockEmbedder) {
				e.On("EmbedDocuments", mock.Anything, mock.Anything).Return(nil, assert.AnError)
			},
			wantErr:      true,
			expectedCode: errors.CodeExternal,
			errContains:  "failed to embed segments",
		},
		{
			name:         "embedding count mismatch",
			withGraph:    true,
			withEmbedder: true,
			setup: func(m pgxmock.PgxPoolIface, g *mockGraphWriter, e *mockEmbedder) {
				e.On("EmbedDocuments", mock.Anything, mock.Anything).Return([][]float32{{0.1}}, nil)
			},
			wantErr:      true,
			expectedCode: errors.CodeExternal,
			errContains:  "embedding count",
		},
		{
			name: "segment write failure rolls back",
			setup: func(m pgxmock.PgxPoolIface, g *mockGraphWriter, e *mockEmbedder) {
				m.ExpectBegin()
				m.ExpectExec("INSERT INTO videos").WillReturnResult(pgxmock.NewResult("INSERT", 1))
				m.ExpectExec("DELETE FROM transcript_segments").WillReturnError(assert.AnError)
				m.ExpectRollback()
			},
			wantErr:      true,
			expectedCode: errors.CodeInternal,
		},
		{
			name:      "graph failure after commit",
			withGraph: true,
			setup: func(m pgxmock.PgxPoolIface, g *mockGraphWriter, e *mockEmbedder) {
				m.ExpectBegin()
				expectRows(m)
				m.ExpectCommit()
				g.On("UpsertVideo", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)
			},
			wantErr:      true,
			expectedCode: errors.CodeExternal,
			errContains:  "video saved but graph sync failed",
		},
		{
			name: "begin fails",
			setup: func(m pgxmock.PgxPoolIface, g *mockGraphWriter, e *mockEmbedder) {
				m.ExpectBegin().WillReturnError(assert.AnError)
			},
			wantErr:     true,
			errContains: "failed to begin transaction",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer pool.Close()

			graph := new(mockGraphWriter)
			embedder := new(mockEmbedder)
			tt.setup(pool, graph, embedder)

			opts := Options{}
			if tt.withGraph {
				opts.Graph = graph
			}
			if tt.withEmbedder {
				opts.Embedder = embedder
			}
			svc := NewService(pool, opts, nil)

			meta, segments := sampleVideo()
			err = svc.Save(context.Background(), meta, segments, "")

			if tt.wantErr {
				require.Error(t, err)
				if tt.expectedCode != "" {
					assert.True(t, errors.HasCode(err, tt.expectedCode), "got %v", err)
				}
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
			} else {
				require.NoError(t, err)
			}

			// caller's segments never receive embeddings
			assert.Nil(t, segments[0].Embedding)
			assert.NoError(t, pool.ExpectationsWereMet())
			graph.AssertExpectations(t)
			embedder.AssertExpectations(t)
		})
	}
}

func TestLibraryService_SaveBatchesEmbeddings(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	meta := &model.VideoMetadata{VideoID: "long", Duration: 300}
	segments := make([]model.TranscriptSegment, 130)
	for i := range segments {
		segments[i] = model.TranscriptSegment{StartTime: float64(i), EndTime: float64(i + 1), Text: "t"}
	}

	embedder := new(mockEmbedder)
	for _, n := range []int{64, 2} {
		size := n
		vectors := make([][]float32, size)
		for i := range vectors {
			vectors[i] = []float32{float32(size)}
		}
		embedder.On("EmbedDocuments", mock.Anything, mock.MatchedBy(func(texts []string) bool {
			return len(texts) == size
		})).Return(vectors, nil)
	}
	graph := new(mockGraphWriter)
	graph.On("UpsertVideo", mock.Anything, meta, mock.MatchedBy(func(segs []model.TranscriptSegment) bool {
		return len(segs) == 130 && segs[0].Embedding[0] == 64 && segs[127].Embedding[0] == 64 && segs[129].Embedding[0] == 2
	})).Return(nil)

	pool.ExpectBegin()
	pool.ExpectExec("INSERT INTO videos").WithArgs(
		"long", "", "", "", 300.0, []string{}, []string{}, []string{}, `[]`, "2.0.0",
	).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectExec("DELETE FROM transcript_segments").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	pool.ExpectCopyFrom(pgx.Identifier{"transcript_segments"}, segmentColumns).WillReturnResult(130)
	pool.ExpectCommit()

	svc := NewService(pool, Options{Graph: graph, Embedder: embedder}, nil)
	require.NoError(t, svc.Save(context.Background(), meta, segments, "2.0.0"))

	embedder.AssertNumberOfCalls(t, "EmbedDocuments", 3)
	graph.AssertExpectations(t)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestLibraryService_SaveValidation(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	svc := NewService(pool, Options{}, nil)
	err = svc.Save(context.Background(), &model.VideoMetadata{}, nil, "")
	assert.True(t, errors.HasCode(err, errors.CodeInvalidArg))
	err = svc.Save(context.Background(), nil, nil, "")
	assert.True(t, errors.HasCode(err, errors.CodeInvalidArg))
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestLibraryService_Get(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	created := time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC)
	pool.ExpectQuery("SELECT (.+) FROM videos WHERE id = \\$1").WithArgs("abc123").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "title", "description", "upload_date", "duration",
			"tags", "speakers", "code_repos", "chapters", "version", "created_at",
		}).AddRow("abc123", "GraphRAG in practice", "", "20240115", 60.0,
			[]string{}, []string{"spk1"}, []string{}, []byte(`[]`), "1.0.0", created))
	pool.ExpectQuery("SELECT (.+) FROM transcript_segments WHERE video_id = \\$1").WithArgs("abc123").
		WillReturnRows(pgxmock.NewRows([]string{
			"start_time", "end_time", "text", "speaker", "code_blocks", "technical_terms", "embedding",
		}).AddRow(0.0, 4.0, "hello", str("spk1"), []string{}, []string{}, []float32(nil)))

	record, err := NewService(pool, Options{}, nil).Get(context.Background(), "abc123")

	require.NoError(t, err)
	assert.Equal(t, "GraphRAG in practice", record.Metadata.Title)
	assert.Equal(t, created, record.CreatedAt)
	require.Len(t, record.Segments, 1)
	assert.Equal(t, "spk1", *record.Segments[0].Speaker)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestLibraryService_GetNotFound(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	pool.ExpectQuery("SELECT (.+) FROM videos WHERE id = \\$1").WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	_, err = NewService(pool, Options{}, nil).Get(context.Background(), "missing")

	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestLibraryService_List(t *testing.T) {
	tests := []struct {
		name         string
		limit        int
		offset       int
		setup        func(pgxmock.PgxPoolIface)
		want         []model.VideoSummary
		expectedCode string
	}{
		{
			name:  "page",
			limit: 10,
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery("SELECT id, title, upload_date FROM videos").WithArgs(10, 0).
					WillReturnRows(pgxmock.NewRows([]string{"id", "title", "upload_date"}).
						AddRow("abc123", "GraphRAG in practice", "20240115"))
			},
			want: []model.VideoSummary{{VideoID: "abc123", Title: "GraphRAG in practice", UploadDate: "20240115"}},
		},
		{name: "zero limit", limit: 0, setup: func(pgxmock.PgxPoolIface) {}, expectedCode: errors.CodeInvalidArg},
		{name: "negative offset", limit: 5, offset: -1, setup: func(pgxmock.PgxPoolIface) {}, expectedCode: errors.CodeInvalidArg},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer pool.Close()
			tt.setup(pool)

			got, err := NewService(pool, Options{}, nil).List(context.Background(), tt.limit, tt.offset)

			if tt.expectedCode != "" {
				assert.True(t, errors.HasCode(err, tt.expectedCode))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, pool.ExpectationsWereMet())
		})
	}
}

func TestLibraryService_Delete(t *testing.T) {
	tests := []struct {
		name         string
		withGraph    bool
		setup        func(pgxmock.PgxPoolIface, *mockGraphWriter)
		expectedCode string
	}{
		{
			name:      "deletes row and graph nodes",
			withGraph: true,
			setup: func(m pgxmock.PgxPoolIface, g *mockGraphWriter) {
				m.ExpectExec("DELETE FROM videos").WithArgs("abc123").WillReturnResult(pgxmock.NewResult("DELETE", 1))
				g.On("DeleteVideo", mock.Anything, "abc123").Return(nil)
			},
		},
		{
			name: "not found skips graph",
			setup: func(m pgxmock.PgxPoolIface, g *mockGraphWriter) {
				m.ExpectExec("DELETE FROM videos").WithArgs("abc123").WillReturnResult(pgxmock.NewResult("DELETE", 0))
			},
			withGraph:    true,
			expectedCode: errors.CodeNotFound,
		},
		{
			name:      "graph cleanup fails",
			withGraph: true,
			setup: func(m pgxmock.PgxPoolIface, g *mockGraphWriter) {
				m.ExpectExec("DELETE FROM videos").WithArgs("abc123").WillReturnResult(pgxmock.NewResult("DELETE", 1))
				g.On("DeleteVideo", mock.Anything, "abc123").Return(assert.AnError)
			},
			expectedCode: errors.CodeExternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer pool.Close()

			graph := new(mockGraphWriter)
			tt.setup(pool, graph)
			opts := Options{}
			if tt.withGraph {
				opts.Graph = graph
			}

			err = NewService(pool, opts, nil).Delete(context.Background(), "abc123")

			if tt.expectedCode != "" {
				assert.True(t, errors.HasCode(err, tt.expectedCode), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, pool.ExpectationsWereMet())
			graph.AssertExpectations(t)
		})
	}
}

func TestLibraryService_SpeakerStats(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	pool.ExpectQuery("SELECT COALESCE\\(speaker, ''\\), COUNT\\(\\*\\)").WithArgs("abc123").
		WillReturnRows(pgxmock.NewRows([]string{"speaker", "count"}).AddRow("spk1", 3).AddRow("", 1))

	stats, err := NewService(pool, Options{}, nil).SpeakerStats(context.Background(), "abc123")

	require.NoError(t, err)
	assert.Equal(t, map[string]int{"spk1": 3, "": 1}, stats)
	assert.NoError(t, pool.ExpectationsWereMet())
}
