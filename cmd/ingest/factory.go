package ingest

import (
	"context"
	"fmt"

	"github.com/Taichi-iskw/vidgraph/cmd/video"
	"github.com/Taichi-iskw/vidgraph/internal/config"
	"github.com/Taichi-iskw/vidgraph/internal/logger"
	"github.com/Taichi-iskw/vidgraph/internal/service/acquisition"
	"github.com/Taichi-iskw/vidgraph/internal/service/common"
	"github.com/Taichi-iskw/vidgraph/internal/service/diarization"
	"github.com/Taichi-iskw/vidgraph/internal/service/pipeline"
	"github.com/Taichi-iskw/vidgraph/internal/service/transcription"
)

// Overrides are command-line values that take precedence over the config file
type Overrides struct {
	OutputDir            string
	Workers              int
	Device               string
	Model                string
	Language             string
	AllowMissingSpeakers bool
}

func (o Overrides) apply(cfg *config.Config) error {
	if o.OutputDir != "" {
		cfg.Ingest.OutputDir = o.OutputDir
	}
	if o.Workers != 0 {
		cfg.Ingest.Workers = o.Workers
	}
	if o.Device != "" {
		cfg.Ingest.Device = o.Device
	}
	if o.Model != "" {
		cfg.Ingest.WhisperModel = o.Model
	}
	if o.Language != "" {
		cfg.Ingest.Language = o.Language
	}
	if o.AllowMissingSpeakers {
		cfg.Ingest.AllowMissingSpeakers = true
	}
	return cfg.Validate()
}

// NewCoordinator builds the pipeline from the ingest settings
func NewCoordinator(cfg config.IngestConfig, log *logger.Logger) (*pipeline.Coordinator, *common.WorkerPool) {
	pool := common.NewWorkerPool(cfg.Workers)

	policy := pipeline.DiarizationRequired
	if cfg.AllowMissingSpeakers {
		policy = pipeline.DiarizationBestEffort
	}

	coordinator := pipeline.NewCoordinator(pipeline.Stages{
		Acquirer: acquisition.NewAcquirer(acquisition.Options{
			OutputDir: cfg.OutputDir,
			Retries:   cfg.AcquireRetries,
		}, log),
		Transcriber: transcription.NewTranscriber(transcription.Options{
			Model:    cfg.WhisperModel,
			Language: cfg.Language,
			Device:   cfg.Device,
		}, log),
		Diarizer: diarization.NewDiarizer(diarization.Options{
			Python:  cfg.Python,
			Device:  cfg.Device,
			HFToken: cfg.HFToken,
		}, log),
	}, pool, policy, log)

	return coordinator, pool
}

// Build wires the pipeline and, unless dryRun, the library it saves into
func Build(ctx context.Context, overrides Overrides, logMode string, dryRun bool) (*Dependencies, func(), error) {
	if dryRun {
		cfg, err := config.NewConfig()
		if err != nil {
			// dry runs do not need the database, so a missing config file is fine
			if cfg, err = config.Defaults(); err != nil {
				return nil, nil, err
			}
		}
		if err := overrides.apply(cfg); err != nil {
			return nil, nil, err
		}

		mode := cfg.LogMode
		if logMode != "" {
			mode = logMode
		}
		log, err := logger.New(mode)
		if err != nil {
			return nil, nil, err
		}

		coordinator, pool := NewCoordinator(cfg.Ingest, log)
		cleanup := func() {
			pool.Close()
			log.Sync()
		}
		return &Dependencies{Pipeline: coordinator, Lister: acquisition.NewPlaylistLister(log)}, cleanup, nil
	}

	res, closeLibrary, err := video.NewServiceFactory(logMode).CreateService(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	if err := overrides.apply(res.Config); err != nil {
		closeLibrary()
		return nil, nil, fmt.Errorf("invalid ingest options: %w", err)
	}

	coordinator, pool := NewCoordinator(res.Config.Ingest, res.Log)
	cleanup := func() {
		pool.Close()
		closeLibrary()
	}
	return &Dependencies{
		Pipeline: coordinator,
		Library:  res.Library,
		Lister:   acquisition.NewPlaylistLister(res.Log),
	}, cleanup, nil
}
