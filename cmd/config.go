package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Taichi-iskw/vidgraph/internal/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration settings",
	Long:  `Manage configuration settings for vidgraph.`,
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init [DATABASE_URL]",
	Short: "Initialize configuration file",
	Long:  `Create a new configuration file with database, graph, model and ingestion settings.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var databaseURL string
		if len(args) > 0 {
			databaseURL = args[0]
		}

		if err := config.InitConfig(databaseURL); err != nil {
			return err
		}

		configPath, err := config.GetConfigPath()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Created configuration file: %s\n", configPath)
		fmt.Fprintln(out, "Please edit database_url, neo4j and openai settings, then run 'vidgraph migrate up'.")

		return nil
	},
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the configuration file path and the effective settings. Secrets are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, err := config.GetConfigPath()
		if err != nil {
			return err
		}

		cfg, err := config.NewConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration file: %s\n\n", configPath)
		printConfig(out, cfg)
		return nil
	},
}

func printConfig(out io.Writer, cfg *config.Config) {
	fmt.Fprintf(out, "DATABASE_URL: %s\n", cfg.DatabaseURL)
	fmt.Fprintf(out, "REDIS_URL: %s\n", orNone(cfg.RedisURL))
	fmt.Fprintf(out, "log_mode: %s\n", orNone(cfg.LogMode))
	fmt.Fprintf(out, "neo4j: %s (user %s, password %s)\n", orNone(cfg.Neo4j.URI), cfg.Neo4j.Username, mask(cfg.Neo4j.Password))
	fmt.Fprintf(out, "openai: api_key %s, embedding %s, llm %s\n", mask(cfg.OpenAI.APIKey), cfg.OpenAI.EmbeddingModel, cfg.OpenAI.LLMModel)
	fmt.Fprintf(out, "retrieval: vector index %s, fulltext index %s, top_k %d\n",
		cfg.Retrieval.VectorIndexName, orNone(cfg.Retrieval.FulltextIndexName), cfg.Retrieval.TopK)
	fmt.Fprintf(out, "ingest: output_dir %s, workers %d, device %s, whisper %s, language %s, retries %d, allow_missing_speakers %t\n",
		cfg.Ingest.OutputDir, cfg.Ingest.Workers, cfg.Ingest.Device, cfg.Ingest.WhisperModel,
		cfg.Ingest.Language, cfg.Ingest.AcquireRetries, cfg.Ingest.AllowMissingSpeakers)
}

func orNone(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

// mask hides all but the last four characters of a secret
func mask(secret string) string {
	switch {
	case secret == "":
		return "(not set)"
	case len(secret) <= 4:
		return "****"
	default:
		return "****" + secret[len(secret)-4:]
	}
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
