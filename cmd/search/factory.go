package search

import (
	"context"
	"fmt"

	"github.com/Taichi-iskw/vidgraph/internal/config"
	"github.com/Taichi-iskw/vidgraph/internal/graph"
	"github.com/Taichi-iskw/vidgraph/internal/logger"
	"github.com/Taichi-iskw/vidgraph/internal/retrieval"
)

// NewManager builds a retrieval manager over the configured graph, OpenAI and optional Redis cache
func NewManager(ctx context.Context, logMode string) (*retrieval.Manager, func(), error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	mode := cfg.LogMode
	if logMode != "" {
		mode = logMode
	}
	log, err := logger.New(mode)
	if err != nil {
		return nil, nil, err
	}

	generator, embedder, err := retrieval.NewOpenAI(cfg.OpenAI)
	if err != nil {
		log.Sync()
		return nil, nil, err
	}

	client, err := graph.NewClient(ctx, cfg.Neo4j, log)
	if err != nil {
		log.Sync()
		return nil, nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}
	if client == nil {
		log.Sync()
		return nil, nil, fmt.Errorf("neo4j is not configured (set neo4j.uri or NEO4J_URI)")
	}

	opts := retrieval.Options{TopK: cfg.Retrieval.TopK}
	var cache *retrieval.RedisCache
	if cfg.RedisURL != "" {
		if cache, err = retrieval.NewRedisCache(cfg.RedisURL, retrieval.DefaultCacheTTL); err != nil {
			log.Warn("search cache disabled", "error", err)
		} else {
			opts.Cache = cache
		}
	}

	manager := retrieval.NewGraphManager(client, embedder, generator,
		cfg.Retrieval.VectorIndexName, cfg.Retrieval.FulltextIndexName, opts, log)
	if err := manager.SetupText2Cypher(retrieval.DefaultSchema, retrieval.DefaultExamples); err != nil {
		log.Warn("text2cypher disabled", "error", err)
	}

	cleanup := func() {
		if cache != nil {
			_ = cache.Close()
		}
		if err := client.Close(context.Background()); err != nil {
			log.Warn("failed to close neo4j driver", "error", err)
		}
		log.Sync()
	}
	return manager, cleanup, nil
}
