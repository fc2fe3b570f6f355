package ingest

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Taichi-iskw/vidgraph/cmd/video"
	"github.com/Taichi-iskw/vidgraph/internal/model"
	"github.com/Taichi-iskw/vidgraph/internal/service/acquisition"
	"github.com/Taichi-iskw/vidgraph/internal/service/pipeline"
)

// Pipeline processes video URLs, reporting each one as it finishes
type Pipeline interface {
	ProcessEach(ctx context.Context, urls []string, onOutcome func(i int, o pipeline.Outcome))
}

// Library stores ingested videos
type Library interface {
	Save(ctx context.Context, metadata *model.VideoMetadata, segments []model.TranscriptSegment, version string) error
}

// Dependencies are the services the ingest command drives
type Dependencies struct {
	Pipeline Pipeline
	Library  Library // nil in dry-run mode
	Lister   acquisition.PlaylistLister
}

// NewIngestCommand creates the ingest command. Nil deps are built from config on demand.
func NewIngestCommand(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [VIDEO_URL...]",
		Short: "Ingest videos into the library",
		Long: `Download each video's audio, transcribe it with Whisper, attribute speakers with
pyannote, detect code blocks and repository links, then store the result in
PostgreSQL and the knowledge graph.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			format, _ := cmd.Flags().GetString("format")
			version, _ := cmd.Flags().GetString("record-version")
			playlist, _ := cmd.Flags().GetBool("playlist")
			playlistLimit, _ := cmd.Flags().GetInt("playlist-limit")

			var formatter video.Formatter
			if dryRun {
				var err error
				if formatter, err = video.GetFormatter(format); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			active := deps
			if active == nil {
				overrides := Overrides{}
				overrides.OutputDir, _ = cmd.Flags().GetString("output-dir")
				overrides.Workers, _ = cmd.Flags().GetInt("workers")
				overrides.Device, _ = cmd.Flags().GetString("device")
				overrides.Model, _ = cmd.Flags().GetString("model")
				overrides.Language, _ = cmd.Flags().GetString("language")
				overrides.AllowMissingSpeakers, _ = cmd.Flags().GetBool("allow-missing-speakers")
				logMode, _ := cmd.Flags().GetString("log-mode")

				built, cleanup, err := Build(ctx, overrides, logMode, dryRun)
				if err != nil {
					return err
				}
				defer cleanup()
				active = built
			}

			urls := args
			if playlist {
				expanded, err := expandPlaylists(ctx, cmd, active.Lister, args, playlistLimit)
				if err != nil {
					return err
				}
				urls = expanded
			}

			return run(ctx, cmd, active, urls, dryRun, formatter, version)
		},
	}

	cmd.Flags().StringP("output-dir", "o", "", "Directory for downloaded audio (default from config)")
	cmd.Flags().IntP("workers", "w", 0, "Number of concurrent inference workers (default from config)")
	cmd.Flags().String("device", "", "Inference device: cpu, cuda, auto (default from config)")
	cmd.Flags().StringP("model", "m", "", "Whisper model: tiny, base, small, medium, large (default from config)")
	cmd.Flags().StringP("language", "l", "", "Transcription language, e.g. 'en', 'ja', 'auto' (default from config)")
	cmd.Flags().Bool("allow-missing-speakers", false, "Keep videos whose speaker diarization fails, without speaker labels")
	cmd.Flags().BoolP("dry-run", "n", false, "Print the result instead of saving it")
	cmd.Flags().StringP("format", "f", "text", "Output format for dry-run mode: text, json, srt")
	cmd.Flags().String("record-version", "", "Version label stored with each video (default 1.0.0)")
	cmd.Flags().Bool("playlist", false, "Treat each URL as a playlist or channel and ingest its videos")
	cmd.Flags().Int("playlist-limit", 0, "Maximum videos taken from each playlist (0 for all)")

	return cmd
}

// expandPlaylists replaces each playlist URL with the videos it lists, dropping duplicates
func expandPlaylists(ctx context.Context, cmd *cobra.Command, lister acquisition.PlaylistLister, playlists []string, limit int) ([]string, error) {
	if lister == nil {
		return nil, fmt.Errorf("playlist expansion is not available")
	}

	var urls []string
	seen := make(map[string]bool)
	for _, p := range playlists {
		entries, err := lister.ListVideos(ctx, p, limit)
		if err != nil {
			return nil, fmt.Errorf("❌ Failed to list videos in '%s': %w", p, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "📃 %s: %d video(s)\n", p, len(entries))
		for _, e := range entries {
			if seen[e.URL] {
				continue
			}
			seen[e.URL] = true
			urls = append(urls, e.URL)
		}
	}
	return urls, nil
}

func run(ctx context.Context, cmd *cobra.Command, deps *Dependencies, urls []string, dryRun bool, formatter video.Formatter, version string) error {
	out := cmd.OutOrStdout()
	if !dryRun && deps.Library == nil {
		return fmt.Errorf("no library configured for saving; use --dry-run")
	}

	fmt.Fprintf(out, "🎬 Ingesting %d video(s)...\n", len(urls))

	// each finished video is saved right away so an interrupted batch keeps its completed work
	var (
		failed    []error
		formatErr error
	)
	deps.Pipeline.ProcessEach(ctx, urls, func(_ int, o pipeline.Outcome) {
		if o.Err != nil {
			err := formatIngestError(o.Err, o.URL)
			failed = append(failed, err)
			fmt.Fprintln(cmd.ErrOrStderr(), err)
			return
		}

		if dryRun {
			output, err := formatter.Format(o.Metadata, o.Segments)
			if err != nil {
				if formatErr == nil {
					formatErr = err
				}
				return
			}
			fmt.Fprintln(out, output)
			return
		}

		// a batch cancelled after this video finished must not discard it
		if err := deps.Library.Save(context.WithoutCancel(ctx), o.Metadata, o.Segments, version); err != nil {
			err = fmt.Errorf("❌ Failed to save video '%s': %w", o.Metadata.VideoID, err)
			failed = append(failed, err)
			fmt.Fprintln(cmd.ErrOrStderr(), err)
			return
		}
		fmt.Fprintf(out, "✅ Saved %s: %s (%d segments, %d speakers)\n",
			o.Metadata.VideoID, o.Metadata.Title, len(o.Segments), len(o.Metadata.Speakers))
	})

	if formatErr != nil {
		return formatErr
	}

	if dryRun {
		fmt.Fprintf(out, "ℹ️  Results not saved to database (dry-run mode)\n")
	}

	switch {
	case len(failed) == 0:
		return nil
	case len(urls) == 1:
		return failed[0]
	default:
		return fmt.Errorf("%d of %d videos failed", len(failed), len(urls))
	}
}
