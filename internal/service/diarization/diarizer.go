// Package diarization attributes time ranges of an audio file to speaker labels.
package diarization

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Taichi-iskw/vidgraph/internal/errors"
	"github.com/Taichi-iskw/vidgraph/internal/logger"
	"github.com/Taichi-iskw/vidgraph/internal/model"
	"github.com/Taichi-iskw/vidgraph/internal/service/common"
)

//go:embed assets/diarize.py
var helperScript []byte

// Diarizer defines the speaker diarization stage
type Diarizer interface {
	// Diarize returns speaker turns for audioPath ordered by start time
	Diarize(ctx context.Context, audioPath string) ([]model.SpeakerTurn, error)
}

// Options configures the pyannote helper
type Options struct {
	Python  string // interpreter with pyannote.audio installed
	Device  string // cpu, cuda or auto
	Model   string // pretrained pipeline; empty uses the helper default
	HFToken string // Hugging Face token for gated models
}

// pyannoteDiarizer implements Diarizer by running the embedded helper script
type pyannoteDiarizer struct {
	cmdRunner common.CmdRunner
	opts      Options
	log       *logger.Logger
}

type helperOutput struct {
	Segments []model.SpeakerTurn `json:"segments"`
}

// NewDiarizer creates a new Diarizer whose helper sees HF_TOKEN when one is configured
func NewDiarizer(opts Options, log *logger.Logger) Diarizer {
	var runner common.CmdRunner
	if opts.HFToken != "" {
		runner = common.NewCmdRunnerWithEnv("HF_TOKEN=" + opts.HFToken)
	} else {
		runner = common.NewCmdRunner()
	}
	return NewDiarizerWithCmdRunner(runner, opts, log)
}

// NewDiarizerWithCmdRunner creates a new Diarizer with custom CmdRunner (for testing)
func NewDiarizerWithCmdRunner(cmdRunner common.CmdRunner, opts Options, log *logger.Logger) Diarizer {
	if opts.Python == "" {
		opts.Python = "python3"
	}
	if opts.Device == "" {
		opts.Device = "auto"
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &pyannoteDiarizer{
		cmdRunner: cmdRunner,
		opts:      opts,
		log:       log.With("stage", "diarize"),
	}
}

// Diarize runs the helper against audioPath and parses its turns
func (d *pyannoteDiarizer) Diarize(ctx context.Context, audioPath string) ([]model.SpeakerTurn, error) {
	if audioPath == "" {
		return nil, errors.New(errors.CodeDiarization, "audio path is required")
	}
	if _, err := os.Stat(audioPath); err != nil {
		return nil, errors.Wrap(err, errors.CodeDiarization, fmt.Sprintf("audio file not found: %s", filepath.Base(audioPath)))
	}

	script, cleanup, err := writeHelper()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	args := []string{script, "--audio", audioPath, "--device", d.opts.Device}
	if d.opts.Model != "" {
		args = append(args, "--model", d.opts.Model)
	}

	output, err := d.cmdRunner.Run(ctx, d.opts.Python, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(err, errors.CodeDiarization, d.formatDiarizeError(err))
	}

	turns, err := ParseTurns(output)
	if err != nil {
		return nil, err
	}

	d.log.Info("speakers diarized", "path", audioPath, "turns", len(turns))
	return turns, nil
}

// ParseTurns decodes the helper's JSON document, dropping empty turns and sorting by start
func ParseTurns(output []byte) ([]model.SpeakerTurn, error) {
	var doc helperOutput
	if err := json.Unmarshal(output, &doc); err != nil {
		return nil, errors.Wrap(err, errors.CodeDiarization, "failed to parse diarization output")
	}

	turns := make([]model.SpeakerTurn, 0, len(doc.Segments))
	for _, t := range doc.Segments {
		if t.End < t.Start || strings.TrimSpace(t.Speaker) == "" {
			continue
		}
		turns = append(turns, t)
	}
	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].Start < turns[j].Start
	})
	return turns, nil
}

// writeHelper materializes the embedded script so the interpreter can run it
func writeHelper() (string, func(), error) {
	f, err := os.CreateTemp("", "vidgraph-diarize-*.py")
	if err != nil {
		return "", nil, errors.Wrap(err, errors.CodeDiarization, "failed to create diarization helper")
	}
	cleanup := func() { os.Remove(f.Name()) }

	if _, err := f.Write(helperScript); err != nil {
		f.Close()
		cleanup()
		return "", nil, errors.Wrap(err, errors.CodeDiarization, "failed to write diarization helper")
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, errors.Wrap(err, errors.CodeDiarization, "failed to write diarization helper")
	}
	return f.Name(), cleanup, nil
}

// formatDiarizeError provides user-friendly error messages for helper failures
func (d *pyannoteDiarizer) formatDiarizeError(err error) string {
	errMsg := err.Error()

	switch {
	case strings.Contains(errMsg, "executable file not found"):
		return fmt.Sprintf("python interpreter '%s' not found. Set ingest.python in the config", d.opts.Python)
	case strings.Contains(errMsg, "No module named 'pyannote'"):
		return "pyannote.audio is not installed. Please install it: pip install pyannote.audio"
	case strings.Contains(errMsg, "No module named"):
		return "diarization dependencies missing. Please install torch and pyannote.audio"
	case strings.Contains(errMsg, "could not load pipeline"), strings.Contains(errMsg, "401"), strings.Contains(errMsg, "gated"):
		return "failed to load diarization model. Check that HF_TOKEN is set and the model terms are accepted"
	case strings.Contains(errMsg, "CUDA"):
		return "GPU/CUDA error detected. Retry with --device cpu"
	default:
		return "speaker diarization failed"
	}
}
