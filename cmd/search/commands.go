package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Taichi-iskw/vidgraph/internal/retrieval"
)

// Searcher answers questions over the video graph
type Searcher interface {
	Search(ctx context.Context, query string, strategy retrieval.Strategy, params retrieval.Params) (*retrieval.Result, error)
}

// NewSearchCommand creates the search command. A nil searcher is built from config on demand.
func NewSearchCommand(searcher Searcher) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [QUESTION]",
		Short: "Ask a question about the ingested videos",
		Long: `Retrieve transcript segments from the knowledge graph and generate an answer.

Strategies:
  vector         semantic similarity over segment embeddings
  vector_cypher  vector search plus each hit's graph neighbourhood
  hybrid         vector and fulltext search merged by normalized score
  hybrid_cypher  hybrid search plus graph neighbourhood
  text2cypher    LLM-generated read-only Cypher query
  auto           let the LLM pick one of the above per question`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			strategyName, _ := cmd.Flags().GetString("strategy")
			topK, _ := cmd.Flags().GetInt("top-k")
			format, _ := cmd.Flags().GetString("format")
			showSources, _ := cmd.Flags().GetBool("sources")

			strategy, err := retrieval.ParseStrategy(strategyName)
			if err != nil {
				return err
			}
			if format != "text" && format != "json" {
				return fmt.Errorf("unsupported format: %s (supported: text, json)", format)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			active := searcher
			if active == nil {
				logMode, _ := cmd.Flags().GetString("log-mode")
				manager, cleanup, err := NewManager(ctx, logMode)
				if err != nil {
					return err
				}
				defer cleanup()
				active = manager
			}

			result, err := active.Search(ctx, query, strategy, retrieval.Params{TopK: topK})
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				data, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to format result: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			fmt.Fprint(out, FormatResult(result, showSources))
			return nil
		},
	}

	cmd.Flags().StringP("strategy", "s", string(retrieval.StrategyVector), "Retrieval strategy: vector, vector_cypher, hybrid, hybrid_cypher, text2cypher, auto")
	cmd.Flags().IntP("top-k", "k", 0, "Number of results to retrieve (default from config)")
	cmd.Flags().StringP("format", "f", "text", "Output format: text, json")
	cmd.Flags().Bool("sources", true, "Show the retrieved context under the answer")

	return cmd
}

// FormatResult renders an answer with its numbered sources
func FormatResult(result *retrieval.Result, showSources bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Strategy: %s\n\n", result.Strategy)
	b.WriteString(result.Answer)
	b.WriteString("\n")

	if !showSources || len(result.Items) == 0 {
		return b.String()
	}

	b.WriteString("\nSources:\n")
	for i, item := range result.Items {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, sourceLabel(item))
		fmt.Fprintf(&b, "    %s\n", truncate(strings.Join(strings.Fields(item.Content), " "), 160))
	}
	return b.String()
}

func sourceLabel(item retrieval.Item) string {
	var parts []string
	if title, ok := item.Metadata["title"].(string); ok && title != "" {
		parts = append(parts, title)
	}
	if id, ok := item.Metadata["video_id"].(string); ok && id != "" {
		ref := id
		if start, ok := item.Metadata["start_time"].(float64); ok {
			ref = fmt.Sprintf("%s @ %s", id, formatClock(start))
		}
		parts = append(parts, "("+ref+")")
	}
	if speaker, ok := item.Metadata["speaker"].(string); ok && speaker != "" {
		parts = append(parts, speaker)
	}
	if score, ok := item.Metadata["score"].(float64); ok {
		parts = append(parts, fmt.Sprintf("score %.2f", score))
	}
	if len(parts) == 0 {
		return "result"
	}
	return strings.Join(parts, " ")
}

func formatClock(seconds float64) string {
	total := int(seconds)
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// truncate shortens s to maxLen runes
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
