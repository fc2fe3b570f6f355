package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Taichi-iskw/vidgraph/internal/errors"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		input   string
		want    Strategy
		wantErr bool
	}{
		{input: "vector", want: StrategyVector},
		{input: "Vector_Cypher", want: StrategyVectorCypher},
		{input: " hybrid ", want: StrategyHybrid},
		{input: "hybrid_cypher", want: StrategyHybridCypher},
		{input: "text2cypher", want: StrategyText2Cypher},
		{input: "auto", want: StrategyAuto},
		{input: "multimodal", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStrategy(tt.input)
			if tt.wantErr {
				assert.True(t, errors.HasCode(err, errors.CodeInvalidArg))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
