package acquisition

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Taichi-iskw/vidgraph/internal/errors"
	"github.com/Taichi-iskw/vidgraph/internal/logger"
	"github.com/Taichi-iskw/vidgraph/internal/service/common"
)

// PlaylistEntry is one video listed by a playlist or channel page
type PlaylistEntry struct {
	ID       string
	Title    string
	URL      string
	Duration float64
}

// PlaylistLister expands a playlist or channel URL into its video URLs
type PlaylistLister interface {
	// ListVideos returns up to limit entries; limit 0 lists everything
	ListVideos(ctx context.Context, playlistURL string, limit int) ([]PlaylistEntry, error)
}

type ytDlpPlaylistLister struct {
	cmdRunner common.CmdRunner
	log       *logger.Logger
}

// NewPlaylistLister creates a new PlaylistLister with default CmdRunner
func NewPlaylistLister(log *logger.Logger) PlaylistLister {
	return NewPlaylistListerWithCmdRunner(common.NewCmdRunner(), log)
}

// NewPlaylistListerWithCmdRunner creates a new PlaylistLister with custom CmdRunner (for testing)
func NewPlaylistListerWithCmdRunner(cmdRunner common.CmdRunner, log *logger.Logger) PlaylistLister {
	if log == nil {
		log = logger.NewNop()
	}
	return &ytDlpPlaylistLister{cmdRunner: cmdRunner, log: log.With("stage", "playlist")}
}

// ytDlpFlatEntry is one line of yt-dlp --flat-playlist output
type ytDlpFlatEntry struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	WebpageURL string  `json:"webpage_url"`
	Duration   float64 `json:"duration"`
}

func (l *ytDlpPlaylistLister) ListVideos(ctx context.Context, playlistURL string, limit int) ([]PlaylistEntry, error) {
	if err := validateURL(playlistURL); err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, errors.New(errors.CodeInvalidArg, "limit must not be negative")
	}

	args := []string{"--dump-json", "--flat-playlist"}
	// 0 means no limit
	if limit > 0 {
		args = append(args, "--playlist-end", fmt.Sprintf("%d", limit))
	}
	args = append(args, playlistURL)

	output, err := l.cmdRunner.Run(ctx, "yt-dlp", args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeAcquisition, "failed to list playlist videos with yt-dlp")
	}

	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	entries := make([]PlaylistEntry, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var raw ytDlpFlatEntry
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, errors.Wrap(err, errors.CodeAcquisition, "failed to parse yt-dlp output")
		}
		if raw.ID == "" {
			continue
		}

		entries = append(entries, PlaylistEntry{
			ID:       raw.ID,
			Title:    raw.Title,
			URL:      entryURL(raw),
			Duration: raw.Duration,
		})
	}

	if len(entries) == 0 {
		return nil, errors.New(errors.CodeNotFound, fmt.Sprintf("no videos found at '%s'", playlistURL))
	}

	l.log.Info("playlist expanded", "url", playlistURL, "videos", len(entries))
	return entries, nil
}

// entryURL prefers the watch page over the bare id yt-dlp sometimes puts in url
func entryURL(e ytDlpFlatEntry) string {
	switch {
	case e.WebpageURL != "":
		return e.WebpageURL
	case strings.HasPrefix(e.URL, "http"):
		return e.URL
	default:
		return "https://www.youtube.com/watch?v=" + e.ID
	}
}
