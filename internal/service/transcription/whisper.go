package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Taichi-iskw/vidgraph/internal/errors"
	"github.com/Taichi-iskw/vidgraph/internal/logger"
	"github.com/Taichi-iskw/vidgraph/internal/model"
	"github.com/Taichi-iskw/vidgraph/internal/service/common"
)

// Transcriber defines the speech-to-text stage
type Transcriber interface {
	// Transcribe converts an audio file into timed text segments ordered by start time
	Transcribe(ctx context.Context, audioPath string) ([]model.TimedText, error)
}

// Options represents configuration for Whisper transcription
type Options struct {
	Model    string // Model size: tiny, base, small, medium, large
	Language string // Language code: auto, en, ja, etc.
	Device   string // cpu, cuda or auto
}

// whisperTranscriber implements Transcriber using the Whisper CLI
type whisperTranscriber struct {
	cmdRunner common.CmdRunner
	opts      Options
	log       *logger.Logger
}

// NewTranscriber creates a new Transcriber with default CmdRunner
func NewTranscriber(opts Options, log *logger.Logger) Transcriber {
	return NewTranscriberWithCmdRunner(common.NewCmdRunner(), opts, log)
}

// NewTranscriberWithCmdRunner creates a new Transcriber with custom CmdRunner (for testing)
func NewTranscriberWithCmdRunner(cmdRunner common.CmdRunner, opts Options, log *logger.Logger) Transcriber {
	if opts.Model == "" {
		opts.Model = "base"
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &whisperTranscriber{
		cmdRunner: cmdRunner,
		opts:      opts,
		log:       log.With("stage", "transcribe"),
	}
}

// Transcribe runs Whisper on audioPath and returns its non-empty segments
func (s *whisperTranscriber) Transcribe(ctx context.Context, audioPath string) ([]model.TimedText, error) {
	if audioPath == "" {
		return nil, errors.New(errors.CodeTranscription, "audio path is required")
	}
	if _, err := os.Stat(audioPath); err != nil {
		return nil, errors.Wrap(err, errors.CodeTranscription, fmt.Sprintf("audio file not found: %s", filepath.Base(audioPath)))
	}

	tempDir, err := os.MkdirTemp("", "vidgraph-whisper-*")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeTranscription, "failed to create temp directory")
	}
	defer os.RemoveAll(tempDir)

	_, err = s.cmdRunner.Run(ctx, "whisper", s.buildArgs(audioPath, tempDir)...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(err, errors.CodeTranscription, s.formatWhisperError(err, audioPath))
	}

	// Whisper names its output after the input file
	baseName := filepath.Base(audioPath)
	baseName = strings.TrimSuffix(baseName, filepath.Ext(baseName))
	jsonData, err := os.ReadFile(filepath.Join(tempDir, baseName+".json"))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeTranscription, "failed to read whisper output")
	}

	var result model.WhisperResult
	if err := json.Unmarshal(jsonData, &result); err != nil {
		return nil, errors.Wrap(err, errors.CodeTranscription, "failed to parse whisper output")
	}

	timed := ToTimedText(result.Segments)
	s.log.Info("audio transcribed", "path", audioPath, "language", result.Language, "segments", len(timed), "dropped", len(result.Segments)-len(timed))
	return timed, nil
}

func (s *whisperTranscriber) buildArgs(audioPath, outputDir string) []string {
	args := []string{
		audioPath,
		"--model", s.opts.Model,
		"--output_format", "json",
		"--output_dir", outputDir,
		"--temperature", "0",
	}

	// Add language parameter only if not auto-detection
	if s.opts.Language != "" && s.opts.Language != "auto" {
		args = append(args, "--language", s.opts.Language)
	}
	if s.opts.Device != "" && s.opts.Device != "auto" {
		args = append(args, "--device", s.opts.Device)
	}
	return args
}

// ToTimedText converts Whisper segments, trimming text and dropping blank or zero-length entries
func ToTimedText(segments []model.WhisperSegment) []model.TimedText {
	timed := make([]model.TimedText, 0, len(segments))
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" || seg.End <= seg.Start {
			continue
		}
		timed = append(timed, model.TimedText{Start: seg.Start, End: seg.End, Text: text})
	}
	return timed
}

// formatWhisperError provides user-friendly error messages for Whisper failures
func (s *whisperTranscriber) formatWhisperError(err error, audioPath string) string {
	errMsg := err.Error()

	switch {
	case strings.Contains(errMsg, "executable file not found"):
		return "Whisper is not installed. Please install OpenAI Whisper: pip install openai-whisper"
	case strings.Contains(errMsg, "No module named"):
		return "Whisper dependencies missing. Please reinstall: pip install --upgrade openai-whisper"
	case strings.Contains(errMsg, "CUDA"):
		return "GPU/CUDA error detected. Retry with --device cpu"
	case strings.Contains(errMsg, "not enough memory") || strings.Contains(errMsg, "OutOfMemoryError"):
		return fmt.Sprintf("insufficient memory for model '%s'. Try using a smaller model (tiny, base, small)", s.opts.Model)
	case strings.Contains(errMsg, "Invalid language"), strings.Contains(errMsg, "Unsupported language"):
		return fmt.Sprintf("unsupported language '%s'. Use language codes like 'en', 'ja', 'es' or 'auto'", s.opts.Language)
	case strings.Contains(errMsg, "Invalid model"), strings.Contains(errMsg, "invalid choice"):
		return fmt.Sprintf("unsupported model '%s'. Available models: tiny, base, small, medium, large", s.opts.Model)
	case strings.Contains(errMsg, "Could not load model"):
		return fmt.Sprintf("failed to load Whisper model '%s'. The model may need to be downloaded on first use", s.opts.Model)
	case strings.Contains(errMsg, "Unsupported format") || strings.Contains(errMsg, "format not supported"):
		return fmt.Sprintf("unsupported audio format: %s", filepath.Ext(audioPath))
	case strings.Contains(errMsg, "exit status 2"):
		return fmt.Sprintf("Whisper processing failed. This may be due to corrupted audio or unsupported format (%s)", filepath.Ext(audioPath))
	default:
		return fmt.Sprintf("transcription failed with model '%s'", s.opts.Model)
	}
}
