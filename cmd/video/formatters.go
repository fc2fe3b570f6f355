package video

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Taichi-iskw/vidgraph/internal/model"
)

// Formatter renders a video with its segments
type Formatter interface {
	Format(metadata *model.VideoMetadata, segments []model.TranscriptSegment) (string, error)
}

// TextFormatter formats output as plain text
type TextFormatter struct{}

// Format formats a video as plain text
func (f *TextFormatter) Format(metadata *model.VideoMetadata, segments []model.TranscriptSegment) (string, error) {
	var output strings.Builder

	output.WriteString(fmt.Sprintf("Video ID: %s\n", metadata.VideoID))
	output.WriteString(fmt.Sprintf("Title: %s\n", metadata.Title))
	if metadata.UploadDate != "" {
		output.WriteString(fmt.Sprintf("Uploaded: %s\n", metadata.UploadDate))
	}
	output.WriteString(fmt.Sprintf("Duration: %s\n", FormatSeconds(metadata.Duration)))
	if len(metadata.Speakers) > 0 {
		output.WriteString(fmt.Sprintf("Speakers: %s\n", strings.Join(metadata.Speakers, ", ")))
	}
	if len(metadata.CodeRepos) > 0 {
		output.WriteString(fmt.Sprintf("Repositories: %s\n", strings.Join(metadata.CodeRepos, ", ")))
	}
	output.WriteString("\n")

	output.WriteString(fmt.Sprintf("--- Segments (%d) ---\n", len(segments)))
	for _, seg := range segments {
		speaker := ""
		if seg.Speaker != nil {
			speaker = *seg.Speaker + ": "
		}
		output.WriteString(fmt.Sprintf("[%s -> %s] %s%s\n",
			FormatSeconds(seg.StartTime), FormatSeconds(seg.EndTime), speaker, seg.Text))
		for _, block := range seg.CodeBlocks {
			output.WriteString(fmt.Sprintf("    code: %s\n", firstLine(block)))
		}
	}

	return output.String(), nil
}

// JSONFormatter formats output as JSON
type JSONFormatter struct{}

// Format formats a video as JSON
func (f *JSONFormatter) Format(metadata *model.VideoMetadata, segments []model.TranscriptSegment) (string, error) {
	type Output struct {
		Metadata *model.VideoMetadata      `json:"metadata"`
		Segments []model.TranscriptSegment `json:"segments"`
	}

	jsonBytes, err := json.MarshalIndent(Output{Metadata: metadata, Segments: segments}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return string(jsonBytes), nil
}

// SRTFormatter formats segments as SRT subtitles
type SRTFormatter struct{}

// Format formats segments as SRT, prefixing the speaker label when known
func (f *SRTFormatter) Format(metadata *model.VideoMetadata, segments []model.TranscriptSegment) (string, error) {
	if len(segments) == 0 {
		return "", fmt.Errorf("SRT format requires segments with timing information")
	}

	var output strings.Builder
	for i, seg := range segments {
		output.WriteString(fmt.Sprintf("%d\n", i+1))
		output.WriteString(fmt.Sprintf("%s --> %s\n", formatSRTTime(seg.StartTime), formatSRTTime(seg.EndTime)))
		if seg.Speaker != nil {
			output.WriteString(fmt.Sprintf("[%s] ", *seg.Speaker))
		}
		output.WriteString(seg.Text)
		output.WriteString("\n\n")
	}

	return output.String(), nil
}

// GetFormatter returns the appropriate formatter based on format string
func GetFormatter(format string) (Formatter, error) {
	switch strings.ToLower(format) {
	case "text", "txt":
		return &TextFormatter{}, nil
	case "json":
		return &JSONFormatter{}, nil
	case "srt":
		return &SRTFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: text, json, srt)", format)
	}
}

// FormatSeconds converts seconds to HH:MM:SS.mmm
func FormatSeconds(seconds float64) string {
	return formatTimestamp(seconds, ".")
}

// formatSRTTime converts seconds to the SRT timestamp HH:MM:SS,mmm
func formatSRTTime(seconds float64) string {
	return formatTimestamp(seconds, ",")
}

func formatTimestamp(seconds float64, sep string) string {
	totalMillis := int64(seconds*1000 + 0.5)
	hours := totalMillis / 3_600_000
	minutes := (totalMillis % 3_600_000) / 60_000
	secs := (totalMillis % 60_000) / 1000
	millis := totalMillis % 1000
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", hours, minutes, secs, sep, millis)
}

func firstLine(s string) string {
	line, _, found := strings.Cut(s, "\n")
	if found {
		return line + " ..."
	}
	return line
}
