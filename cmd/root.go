// Package cmd implements the vidgraph command line.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Taichi-iskw/vidgraph/cmd/ingest"
	"github.com/Taichi-iskw/vidgraph/cmd/search"
	"github.com/Taichi-iskw/vidgraph/cmd/video"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vidgraph",
	Short: "Turn technical videos into a searchable knowledge graph",
	Long: `vidgraph ingests videos (audio download, Whisper transcription, speaker
diarization, code-block detection), stores them in PostgreSQL and Neo4j, and
answers questions over them with graph-backed retrieval.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-mode", "", "Log mode: dev or prod (default from config)")

	rootCmd.AddCommand(ingest.NewIngestCommand(nil))
	rootCmd.AddCommand(video.NewVideoCommand(nil))
	rootCmd.AddCommand(search.NewSearchCommand(nil))
}
