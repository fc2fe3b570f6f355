package diarization

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Taichi-iskw/vidgraph/internal/errors"
	"github.com/Taichi-iskw/vidgraph/internal/logger"
	"github.com/Taichi-iskw/vidgraph/internal/model"
	"github.com/Taichi-iskw/vidgraph/internal/service/common"
)

type mockCmdRunner struct {
	mock.Mock
}

func (m *mockCmdRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	arguments := m.Called(ctx, name, args)
	if arguments.Get(0) == nil {
		return nil, arguments.Error(1)
	}
	return arguments.Get(0).([]byte), arguments.Error(1)
}

func (m *mockCmdRunner) Start(ctx context.Context, name string, args ...string) (common.Process, error) {
	arguments := m.Called(ctx, name, args)
	if arguments.Get(0) == nil {
		return nil, arguments.Error(1)
	}
	return arguments.Get(0).(common.Process), arguments.Error(1)
}

func newAudioFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "v1.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0644))
	return path
}

func TestDiarizer_Diarize(t *testing.T) {
	audioPath := newAudioFile(t)
	output := `{"segments": [
		{"start": 4.0, "end": 10.0, "speaker": "SPEAKER_01"},
		{"start": 0.0, "end": 4.0, "speaker": "SPEAKER_00"}
	]}`

	runner := new(mockCmdRunner)
	runner.On("Run", mock.Anything, "/opt/venv/bin/python", mock.MatchedBy(func(args []string) bool {
		// The helper is written to a temp file that exists while it runs
		if _, err := os.Stat(args[0]); err != nil {
			return false
		}
		return assert.ObjectsAreEqual([]string{"--audio", audioPath, "--device", "cuda"}, args[1:])
	})).Return([]byte(output), nil)

	diarizer := NewDiarizerWithCmdRunner(runner, Options{Python: "/opt/venv/bin/python", Device: "cuda"}, logger.NewNop())
	turns, err := diarizer.Diarize(context.Background(), audioPath)

	require.NoError(t, err)
	assert.Equal(t, []model.SpeakerTurn{
		{Start: 0.0, End: 4.0, Speaker: "SPEAKER_00"},
		{Start: 4.0, End: 10.0, Speaker: "SPEAKER_01"},
	}, turns)
	runner.AssertExpectations(t)
}

func TestDiarizer_HelperRemovedAfterRun(t *testing.T) {
	audioPath := newAudioFile(t)
	var script string

	runner := new(mockCmdRunner)
	runner.On("Run", mock.Anything, "python3", mock.AnythingOfType("[]string")).
		Run(func(args mock.Arguments) {
			script = args.Get(2).([]string)[0]
		}).
		Return([]byte(`{"segments": []}`), nil)

	turns, err := NewDiarizerWithCmdRunner(runner, Options{}, nil).Diarize(context.Background(), audioPath)

	require.NoError(t, err)
	assert.Empty(t, turns)
	assert.NoFileExists(t, script)
}

func TestDiarizer_ModelFlag(t *testing.T) {
	audioPath := newAudioFile(t)
	runner := new(mockCmdRunner)
	runner.On("Run", mock.Anything, "python3", mock.MatchedBy(func(args []string) bool {
		n := len(args)
		return args[n-2] == "--model" && args[n-1] == "pyannote/speaker-diarization-3.0"
	})).Return([]byte(`{"segments": []}`), nil)

	_, err := NewDiarizerWithCmdRunner(runner, Options{Model: "pyannote/speaker-diarization-3.0"}, nil).
		Diarize(context.Background(), audioPath)

	require.NoError(t, err)
	runner.AssertExpectations(t)
}

func TestDiarizer_Errors(t *testing.T) {
	tests := []struct {
		name          string
		audioPath     func(t *testing.T) string
		setup         func(m *mockCmdRunner)
		errorContains string
	}{
		{
			name:          "empty audio path",
			audioPath:     func(t *testing.T) string { return "" },
			setup:         func(m *mockCmdRunner) {},
			errorContains: "audio path is required",
		},
		{
			name:          "missing audio file",
			audioPath:     func(t *testing.T) string { return filepath.Join(t.TempDir(), "gone.wav") },
			setup:         func(m *mockCmdRunner) {},
			errorContains: "audio file not found: gone.wav",
		},
		{
			name:      "pyannote missing",
			audioPath: newAudioFile,
			setup: func(m *mockCmdRunner) {
				m.On("Run", mock.Anything, "python3", mock.Anything).
					Return(nil, &common.CommandError{Name: "python3", Err: assert.AnError, Stderr: "ModuleNotFoundError: No module named 'pyannote'"})
			},
			errorContains: "pyannote.audio is not installed",
		},
		{
			name:      "gated model",
			audioPath: newAudioFile,
			setup: func(m *mockCmdRunner) {
				m.On("Run", mock.Anything, "python3", mock.Anything).
					Return(nil, &common.CommandError{Name: "python3", Err: assert.AnError, Stderr: "could not load pipeline pyannote/speaker-diarization-3.1"})
			},
			errorContains: "HF_TOKEN",
		},
		{
			name:      "malformed output",
			audioPath: newAudioFile,
			setup: func(m *mockCmdRunner) {
				m.On("Run", mock.Anything, "python3", mock.Anything).Return([]byte("Traceback"), nil)
			},
			errorContains: "failed to parse diarization output",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := new(mockCmdRunner)
			tt.setup(runner)

			turns, err := NewDiarizerWithCmdRunner(runner, Options{}, logger.NewNop()).
				Diarize(context.Background(), tt.audioPath(t))

			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeDiarization))
			assert.Contains(t, err.Error(), tt.errorContains)
			assert.Nil(t, turns)
			runner.AssertExpectations(t)
		})
	}
}

func TestParseTurns(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   []model.SpeakerTurn
	}{
		{
			name:   "empty",
			output: `{"segments": []}`,
			want:   []model.SpeakerTurn{},
		},
		{
			name:   "drops blank labels and inverted ranges",
			output: `{"segments": [{"start": 1, "end": 2, "speaker": ""}, {"start": 5, "end": 3, "speaker": "A"}, {"start": 0, "end": 1, "speaker": "B"}]}`,
			want:   []model.SpeakerTurn{{Start: 0, End: 1, Speaker: "B"}},
		},
		{
			name:   "stable for equal starts",
			output: `{"segments": [{"start": 2, "end": 3, "speaker": "B"}, {"start": 1, "end": 2, "speaker": "A"}, {"start": 2, "end": 4, "speaker": "C"}]}`,
			want: []model.SpeakerTurn{
				{Start: 1, End: 2, Speaker: "A"},
				{Start: 2, End: 3, Speaker: "B"},
				{Start: 2, End: 4, Speaker: "C"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTurns([]byte(tt.output))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
