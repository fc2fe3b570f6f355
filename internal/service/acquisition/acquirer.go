// Package acquisition downloads the audio track of a remote video and parses
// the metadata its provider declares.
package acquisition

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Taichi-iskw/vidgraph/internal/errors"
	"github.com/Taichi-iskw/vidgraph/internal/logger"
	"github.com/Taichi-iskw/vidgraph/internal/model"
	"github.com/Taichi-iskw/vidgraph/internal/service/common"
)

// AudioExt is the container every acquired audio track is normalized to
const AudioExt = ".wav"

// Acquirer defines the source acquisition stage
type Acquirer interface {
	// Acquire downloads the audio for url into the output directory and returns its path with the video metadata
	Acquire(ctx context.Context, videoURL string) (string, *model.VideoMetadata, error)
}

// Options configures the yt-dlp acquirer
type Options struct {
	OutputDir string
	Retries   int // total attempts for transient failures
}

// ytDlpAcquirer implements Acquirer using yt-dlp
type ytDlpAcquirer struct {
	cmdRunner  common.CmdRunner
	opts       Options
	log        *logger.Logger
	newBackOff func() backoff.BackOff
}

// NewAcquirer creates a new Acquirer with default CmdRunner
func NewAcquirer(opts Options, log *logger.Logger) Acquirer {
	return NewAcquirerWithCmdRunner(common.NewCmdRunner(), opts, log)
}

// NewAcquirerWithCmdRunner creates a new Acquirer with custom CmdRunner (for testing)
func NewAcquirerWithCmdRunner(cmdRunner common.CmdRunner, opts Options, log *logger.Logger) Acquirer {
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &ytDlpAcquirer{
		cmdRunner: cmdRunner,
		opts:      opts,
		log:       log.With("stage", "acquire"),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 2 * time.Second
			b.MaxInterval = 30 * time.Second
			return b
		},
	}
}

// ytDlpChapter represents one entry of yt-dlp's chapters list
type ytDlpChapter struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Title     string  `json:"title"`
}

// ytDlpMediaInfo represents the yt-dlp JSON info document for a single video
type ytDlpMediaInfo struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	UploadDate  string         `json:"upload_date"`
	Duration    float64        `json:"duration"`
	Tags        []string       `json:"tags"`
	Chapters    []ytDlpChapter `json:"chapters"`
}

// Acquire downloads the best audio track, transcodes it to 16 kHz mono WAV and parses the metadata
func (s *ytDlpAcquirer) Acquire(ctx context.Context, videoURL string) (string, *model.VideoMetadata, error) {
	// Validate input
	if err := validateURL(videoURL); err != nil {
		return "", nil, err
	}
	if s.opts.OutputDir == "" {
		return "", nil, errors.New(errors.CodeInvalidArg, "output directory is required")
	}

	// Ensure output directory exists
	if err := os.MkdirAll(s.opts.OutputDir, 0755); err != nil {
		return "", nil, errors.Wrap(err, errors.CodeAcquisition, "failed to create output directory")
	}

	var info *ytDlpMediaInfo
	attempt := 0
	operation := func() error {
		attempt++
		var err error
		info, err = s.download(ctx, videoURL)
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		s.log.Warn("audio download failed, retrying", "url", videoURL, "attempt", attempt, "wait", wait, "error", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.opts.Retries-1)), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return "", nil, errors.Wrap(err, errors.CodeAcquisition, s.formatYtDlpError(err, videoURL))
	}

	metadata, err := toMetadata(info)
	if err != nil {
		return "", nil, err
	}

	audioPath := filepath.Join(s.opts.OutputDir, metadata.VideoID+AudioExt)
	if _, err := os.Stat(audioPath); err != nil {
		return "", nil, errors.Wrap(err, errors.CodeAcquisition, fmt.Sprintf("downloaded audio not found at %s", audioPath))
	}

	s.log.Info("audio acquired", "video_id", metadata.VideoID, "path", audioPath, "duration", metadata.Duration, "attempts", attempt)
	return audioPath, metadata, nil
}

// download runs yt-dlp once and parses its JSON info line
func (s *ytDlpAcquirer) download(ctx context.Context, videoURL string) (*ytDlpMediaInfo, error) {
	args := []string{
		"--dump-json",   // Print the info document...
		"--no-simulate", // ...and still download
		"--no-playlist",
		"-f", "bestaudio/best",
		"-x",                     // Extract audio only
		"--audio-format", "wav", // Normalized container
		"--postprocessor-args", "ffmpeg:-ac 1 -ar 16000",
		"--force-overwrites", // Same id always maps to the same file
		"--output", filepath.Join(s.opts.OutputDir, "%(id)s.%(ext)s"),
		videoURL,
	}

	output, err := s.cmdRunner.Run(ctx, "yt-dlp", args...)
	if err != nil {
		return nil, err
	}

	info, err := parseMediaInfo(output)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	return info, nil
}

// parseMediaInfo picks the JSON document out of yt-dlp's stdout
func parseMediaInfo(output []byte) (*ytDlpMediaInfo, error) {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var info ytDlpMediaInfo
		if err := json.Unmarshal([]byte(line), &info); err != nil {
			return nil, errors.Wrap(err, errors.CodeAcquisition, "failed to parse yt-dlp output")
		}
		return &info, nil
	}
	return nil, errors.New(errors.CodeAcquisition, "yt-dlp produced no video information")
}

// toMetadata converts yt-dlp info to VideoMetadata, rejecting unusable results
func toMetadata(info *ytDlpMediaInfo) (*model.VideoMetadata, error) {
	if info.ID == "" {
		return nil, errors.New(errors.CodeAcquisition, "yt-dlp output has no video id")
	}
	if info.Duration <= 0 {
		return nil, errors.New(errors.CodeAcquisition, fmt.Sprintf("video '%s' has zero duration", info.ID))
	}

	chapters := make([]model.Chapter, 0, len(info.Chapters))
	for _, ch := range info.Chapters {
		chapters = append(chapters, model.Chapter{Title: ch.Title, StartTime: ch.StartTime})
	}

	return &model.VideoMetadata{
		VideoID:     info.ID,
		Title:       info.Title,
		Description: info.Description,
		UploadDate:  info.UploadDate,
		Duration:    info.Duration,
		Tags:        dedupe(info.Tags),
		Speakers:    []string{},
		CodeRepos:   []string{},
		Chapters:    chapters,
	}, nil
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func validateURL(videoURL string) error {
	if videoURL == "" {
		return errors.New(errors.CodeAcquisition, "video URL is required")
	}
	u, err := url.Parse(videoURL)
	if err != nil {
		return errors.Wrap(err, errors.CodeAcquisition, "invalid video URL")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New(errors.CodeAcquisition, fmt.Sprintf("invalid video URL '%s' (expected http or https)", videoURL))
	}
	return nil
}

// isTransient reports whether a failed download is worth retrying
func isTransient(err error) bool {
	errMsg := err.Error()
	for _, marker := range []string{
		"HTTP Error 429",
		"HTTP Error 500",
		"HTTP Error 502",
		"HTTP Error 503",
		"HTTP Error 504",
		"timed out",
		"Connection reset",
		"Temporary failure in name resolution",
		"network",
	} {
		if strings.Contains(errMsg, marker) {
			return true
		}
	}
	return false
}

// formatYtDlpError provides user-friendly error messages for yt-dlp failures
func (s *ytDlpAcquirer) formatYtDlpError(err error, videoURL string) string {
	errMsg := err.Error()

	switch {
	case strings.Contains(errMsg, "Private video"):
		return "video is private and cannot be downloaded"
	case strings.Contains(errMsg, "Video unavailable"), strings.Contains(errMsg, "This video is not available"):
		return "video is not available (may be private, deleted, or region-blocked)"
	case strings.Contains(errMsg, "Video removed"), strings.Contains(errMsg, "has been removed"):
		return "video has been removed by the uploader"
	case strings.Contains(errMsg, "Unsupported URL"):
		return fmt.Sprintf("unsupported source: %s", videoURL)
	case strings.Contains(errMsg, "executable file not found"):
		return "yt-dlp is not installed or not found in PATH. Please install yt-dlp"
	case strings.Contains(errMsg, "ffmpeg not found"), strings.Contains(errMsg, "ffprobe and ffmpeg not found"):
		return "ffmpeg is required to extract audio. Please install ffmpeg"
	case strings.Contains(errMsg, "HTTP Error 404"):
		return "video not found - please check the URL"
	case strings.Contains(errMsg, "HTTP Error 403"):
		return "access denied - video may be region-blocked or require login"
	case strings.Contains(errMsg, "HTTP Error 429"):
		return "rate limited by provider - please try again later"
	case isTransient(err):
		return "network connection error - please check your internet connection"
	default:
		return fmt.Sprintf("audio download failed for '%s'", videoURL)
	}
}
