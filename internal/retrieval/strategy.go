// Package retrieval answers questions over the video graph with several
// retrieval strategies and an LLM generation step.
package retrieval

import (
	"fmt"
	"strings"

	"github.com/Taichi-iskw/vidgraph/internal/errors"
)

// Strategy names a retrieval strategy
type Strategy string

const (
	StrategyVector       Strategy = "vector"
	StrategyVectorCypher Strategy = "vector_cypher"
	StrategyHybrid       Strategy = "hybrid"
	StrategyHybridCypher Strategy = "hybrid_cypher"
	StrategyText2Cypher  Strategy = "text2cypher"
	// StrategyAuto lets the router pick one of the others per query
	StrategyAuto Strategy = "auto"
)

// Strategies lists the concrete strategies in routing preference order
var Strategies = []Strategy{
	StrategyVector,
	StrategyVectorCypher,
	StrategyHybrid,
	StrategyHybridCypher,
	StrategyText2Cypher,
}

// ParseStrategy validates a strategy name
func ParseStrategy(name string) (Strategy, error) {
	s := Strategy(strings.ToLower(strings.TrimSpace(name)))
	if s == StrategyAuto {
		return s, nil
	}
	for _, known := range Strategies {
		if s == known {
			return s, nil
		}
	}
	return "", errors.New(errors.CodeInvalidArg, fmt.Sprintf("unknown retrieval strategy '%s' (use vector, vector_cypher, hybrid, hybrid_cypher, text2cypher or auto)", name))
}
