// Package pipeline orchestrates ingestion of a single video: acquisition,
// then transcription and diarization in parallel, then segment assembly.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Taichi-iskw/vidgraph/internal/errors"
	"github.com/Taichi-iskw/vidgraph/internal/logger"
	"github.com/Taichi-iskw/vidgraph/internal/model"
	"github.com/Taichi-iskw/vidgraph/internal/service/acquisition"
	"github.com/Taichi-iskw/vidgraph/internal/service/assembly"
	"github.com/Taichi-iskw/vidgraph/internal/service/codeblock"
	"github.com/Taichi-iskw/vidgraph/internal/service/common"
	"github.com/Taichi-iskw/vidgraph/internal/service/diarization"
	"github.com/Taichi-iskw/vidgraph/internal/service/transcription"
)

// DiarizationPolicy decides what a diarization failure does to the run
type DiarizationPolicy int

const (
	// DiarizationRequired fails the run when diarization fails
	DiarizationRequired DiarizationPolicy = iota
	// DiarizationBestEffort logs the failure and leaves every speaker unset
	DiarizationBestEffort
)

func (p DiarizationPolicy) String() string {
	switch p {
	case DiarizationRequired:
		return "required"
	case DiarizationBestEffort:
		return "best-effort"
	default:
		return fmt.Sprintf("DiarizationPolicy(%d)", int(p))
	}
}

// Stages groups the pluggable pipeline stages
type Stages struct {
	Acquirer    acquisition.Acquirer
	Transcriber transcription.Transcriber
	Diarizer    diarization.Diarizer
	Assembler   *assembly.Assembler // nil uses assembly.NewAssembler()
}

// Coordinator runs the ingestion pipeline. It holds no per-run state and is
// safe for concurrent use; all runs share its worker pool.
type Coordinator struct {
	stages Stages
	pool   *common.WorkerPool
	policy DiarizationPolicy
	log    *logger.Logger
}

// NewCoordinator creates a Coordinator that submits model inference to pool
func NewCoordinator(stages Stages, pool *common.WorkerPool, policy DiarizationPolicy, log *logger.Logger) *Coordinator {
	if stages.Assembler == nil {
		stages.Assembler = assembly.NewAssembler()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Coordinator{
		stages: stages,
		pool:   pool,
		policy: policy,
		log:    log,
	}
}

// ProcessVideo ingests one video URL and returns its metadata with assembled segments.
// The first stage failure is returned unchanged and cancels the sibling stage.
func (c *Coordinator) ProcessVideo(ctx context.Context, videoURL string) (*model.VideoMetadata, []model.TranscriptSegment, error) {
	log := c.log.With("run_id", uuid.NewString())
	started := time.Now()
	log.Info("processing video", "url", videoURL, "diarization", c.policy.String())

	audioPath, metadata, err := c.stages.Acquirer.Acquire(ctx, videoURL)
	if err != nil {
		log.Error("acquisition failed", "url", videoURL, "error", err)
		return nil, nil, err
	}
	log = log.With("video_id", metadata.VideoID)

	var (
		timed      []model.TimedText
		turns      []model.SpeakerTurn
		repos      []string
		descBlocks []string
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		result, err := common.RunInPool(gctx, c.pool, func(ctx context.Context) ([]model.TimedText, error) {
			return c.stages.Transcriber.Transcribe(ctx, audioPath)
		})
		if err != nil {
			return err
		}
		timed = result
		return nil
	})

	g.Go(func() error {
		result, err := common.RunInPool(gctx, c.pool, func(ctx context.Context) ([]model.SpeakerTurn, error) {
			return c.stages.Diarizer.Diarize(ctx, audioPath)
		})
		if err != nil {
			if c.policy == DiarizationBestEffort && gctx.Err() == nil {
				log.Warn("diarization failed, continuing without speakers", "error", err)
				return nil
			}
			return err
		}
		turns = result
		return nil
	})

	g.Go(func() error {
		repos = acquisition.ExtractRepoLinks(metadata.Description)
		descBlocks = codeblock.Detect(metadata.Description)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("processing failed", "error", err, "code", errors.CodeOf(err))
		return nil, nil, err
	}

	segments := c.stages.Assembler.Assemble(timed, turns, descBlocks)
	metadata.Speakers = assembly.Speakers(turns)
	metadata.CodeRepos = repos

	log.Info("video processed",
		"segments", len(segments),
		"speakers", len(metadata.Speakers),
		"code_repos", len(metadata.CodeRepos),
		"description_code_blocks", len(descBlocks),
		"elapsed", time.Since(started),
	)
	return metadata, segments, nil
}

// Outcome is the result of one URL in a batch
type Outcome struct {
	URL      string
	Metadata *model.VideoMetadata
	Segments []model.TranscriptSegment
	Err      error
}

// ProcessEach ingests urls concurrently, at most one run per pool worker, and
// hands each outcome to onOutcome as soon as its run finishes. Calls to
// onOutcome are serialized and carry the URL's index in urls. A failed URL
// does not stop the others.
func (c *Coordinator) ProcessEach(ctx context.Context, urls []string, onOutcome func(i int, o Outcome)) {
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(c.pool.Size())
	for i, u := range urls {
		g.Go(func() error {
			metadata, segments, err := c.ProcessVideo(ctx, u)
			mu.Lock()
			defer mu.Unlock()
			onOutcome(i, Outcome{URL: u, Metadata: metadata, Segments: segments, Err: err})
			return nil
		})
	}
	_ = g.Wait()
}

// ProcessAll ingests urls like ProcessEach and returns the outcomes in input order
func (c *Coordinator) ProcessAll(ctx context.Context, urls []string) []Outcome {
	outcomes := make([]Outcome, len(urls))
	c.ProcessEach(ctx, urls, func(i int, o Outcome) {
		outcomes[i] = o
	})
	return outcomes
}
