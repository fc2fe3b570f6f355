package video

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Taichi-iskw/vidgraph/internal/service/library"
)

// NewVideoCommand creates the video command. A nil service is built from config on demand.
func NewVideoCommand(service library.Service) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "video",
		Short: "Manage ingested videos",
		Long:  `List, inspect, and delete videos stored in the library.`,
	}

	cmd.AddCommand(newListCommand(service))
	cmd.AddCommand(newGetCommand(service))
	cmd.AddCommand(newDeleteCommand(service))
	cmd.AddCommand(newSpeakersCommand(service))

	return cmd
}

// withService runs fn with the injected service or one created from config
func withService(cmd *cobra.Command, service library.Service, fn func(ctx context.Context, svc library.Service) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
	defer cancel()

	if service != nil {
		return fn(ctx, service)
	}

	logMode, _ := cmd.Flags().GetString("log-mode")
	res, cleanup, err := NewServiceFactory(logMode).CreateService(ctx, false)
	if err != nil {
		return err
	}
	defer cleanup()

	return fn(ctx, res.Library)
}

func newListCommand(service library.Service) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored videos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			format, _ := cmd.Flags().GetString("format")

			return withService(cmd, service, func(ctx context.Context, svc library.Service) error {
				videos, err := svc.List(ctx, limit, offset)
				if err != nil {
					return fmt.Errorf("failed to list videos: %w", err)
				}

				if format == "json" {
					result, err := json.MarshalIndent(videos, "", "  ")
					if err != nil {
						return fmt.Errorf("failed to format result: %w", err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), string(result))
					return nil
				}

				if len(videos) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No videos found.")
					return nil
				}
				for _, v := range videos {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", v.VideoID, v.UploadDate, v.Title)
				}
				return nil
			})
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of videos to list")
	cmd.Flags().Int("offset", 0, "Number of videos to skip")
	cmd.Flags().StringP("format", "f", "text", "Output format: text, json")

	return cmd
}

func newGetCommand(service library.Service) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get [VIDEO_ID]",
		Short: "Show a video with its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			formatter, err := GetFormatter(format)
			if err != nil {
				return err
			}

			return withService(cmd, service, func(ctx context.Context, svc library.Service) error {
				record, err := svc.Get(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to get video: %w", err)
				}

				output, err := formatter.Format(&record.Metadata, record.Segments)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), output)
				return nil
			})
		},
	}

	cmd.Flags().StringP("format", "f", "text", "Output format: text, json, srt")

	return cmd
}

func newDeleteCommand(service library.Service) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [VIDEO_ID]",
		Short: "Delete a video, its segments and its graph nodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, service, func(ctx context.Context, svc library.Service) error {
				if err := svc.Delete(ctx, args[0]); err != nil {
					return fmt.Errorf("failed to delete video: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Video %s deleted\n", args[0])
				return nil
			})
		},
	}
}

func newSpeakersCommand(service library.Service) *cobra.Command {
	return &cobra.Command{
		Use:   "speakers [VIDEO_ID]",
		Short: "Count transcript segments per speaker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, service, func(ctx context.Context, svc library.Service) error {
				stats, err := svc.SpeakerStats(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to count speakers: %w", err)
				}
				if len(stats) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No segments found for video", args[0])
					return nil
				}

				speakers := make([]string, 0, len(stats))
				for s := range stats {
					speakers = append(speakers, s)
				}
				sort.Slice(speakers, func(i, j int) bool {
					if stats[speakers[i]] != stats[speakers[j]] {
						return stats[speakers[i]] > stats[speakers[j]]
					}
					return speakers[i] < speakers[j]
				})

				for _, s := range speakers {
					label := s
					if label == "" {
						label = "(unknown)"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%-12s %d\n", label, stats[s])
				}
				return nil
			})
		},
	}
}
