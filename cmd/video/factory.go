package video

import (
	"context"
	"fmt"

	"github.com/Taichi-iskw/vidgraph/internal/config"
	"github.com/Taichi-iskw/vidgraph/internal/graph"
	"github.com/Taichi-iskw/vidgraph/internal/logger"
	"github.com/Taichi-iskw/vidgraph/internal/retrieval"
	"github.com/Taichi-iskw/vidgraph/internal/service/library"
)

// ServiceFactory creates library service instances
type ServiceFactory struct {
	LogMode string // overrides log_mode from the config file when set
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(logMode string) *ServiceFactory {
	return &ServiceFactory{LogMode: logMode}
}

// Resources are the connections behind a library service
type Resources struct {
	Config  *config.Config
	Log     *logger.Logger
	Library library.Service
	Graph   *graph.Client // nil when neo4j is not configured
}

// CreateService opens PostgreSQL (and Neo4j when configured) and builds the library.
// withEmbedder also wires OpenAI embeddings for graph sync.
func (f *ServiceFactory) CreateService(ctx context.Context, withEmbedder bool) (*Resources, func(), error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	mode := cfg.LogMode
	if f.LogMode != "" {
		mode = f.LogMode
	}
	log, err := logger.New(mode)
	if err != nil {
		return nil, nil, err
	}

	dbPool, err := config.NewDatabasePool(ctx, cfg, log)
	if err != nil {
		log.Sync()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	graphClient, err := graph.NewClient(ctx, cfg.Neo4j, log)
	if err != nil {
		config.CloseDatabasePool(dbPool, log)
		log.Sync()
		return nil, nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}

	opts := library.Options{}
	if graphClient != nil {
		opts.Graph = graph.NewVideoWriter(graphClient, graph.Indexes{
			Vector:     cfg.Retrieval.VectorIndexName,
			Fulltext:   cfg.Retrieval.FulltextIndexName,
			Dimensions: graph.EmbeddingDimensions(cfg.OpenAI.EmbeddingModel),
		}, log)
		if withEmbedder && cfg.OpenAI.APIKey != "" {
			_, embedder, err := retrieval.NewOpenAI(cfg.OpenAI)
			if err != nil {
				log.Warn("embeddings disabled", "error", err)
			} else {
				opts.Embedder = embedder
			}
		}
	}

	cleanup := func() {
		if graphClient != nil {
			if err := graphClient.Close(context.Background()); err != nil {
				log.Warn("failed to close neo4j driver", "error", err)
			}
		}
		config.CloseDatabasePool(dbPool, log)
		log.Sync()
	}

	return &Resources{
		Config:  cfg,
		Log:     log,
		Library: library.NewService(dbPool, opts, log),
		Graph:   graphClient,
	}, cleanup, nil
}
