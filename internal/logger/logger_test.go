package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeKVs(t *testing.T) {
	got := sanitizeKVs([]interface{}{"video_id", "v1", "neo4j_password", "hunter2", "HF_TOKEN", "abc", "dangling"})
	assert.Equal(t, []interface{}{"video_id", "v1", "neo4j_password", "[REDACTED]", "HF_TOKEN", "[REDACTED]", "dangling"}, got)
}

func TestLogger_WithRedacts(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := &Logger{SugaredLogger: zap.New(core).Sugar()}

	log.With("api_key", "sk-123").Info("configured", "workers", 2)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["api_key"])
	assert.EqualValues(t, 2, fields["workers"])
}

func TestNew(t *testing.T) {
	for _, mode := range []string{"dev", "prod", ""} {
		log, err := New(mode)
		require.NoError(t, err)
		assert.NotNil(t, log.SugaredLogger)
	}
}
