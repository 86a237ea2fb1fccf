package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/loquax/internal/archive"
	"github.com/MrWong99/loquax/internal/config"
	"github.com/MrWong99/loquax/internal/correct"
	"github.com/MrWong99/loquax/internal/media"
	"github.com/MrWong99/loquax/internal/modelcache"
	"github.com/MrWong99/loquax/internal/pipeline"
	"github.com/MrWong99/loquax/internal/recognize"
	"github.com/MrWong99/loquax/internal/resilience"
	"github.com/MrWong99/loquax/internal/tier"
	"github.com/MrWong99/loquax/pkg/provider/asr/whispercpp"
	"github.com/MrWong99/loquax/pkg/provider/embeddings"
	oaembed "github.com/MrWong99/loquax/pkg/provider/embeddings/openai"
	"github.com/MrWong99/loquax/pkg/provider/llm"
	"github.com/MrWong99/loquax/pkg/provider/llm/anyllm"
)

// defaultAcceleratorGiB is assumed when neither config nor --gpu-mem give a
// memory figure. Conservative enough for the medium tier on common hardware.
const defaultAcceleratorGiB = 8

// buildPipeline constructs the full pipeline from config. The returned
// cleanup function closes any backend connections and must be called even
// when Run fails.
func buildPipeline(ctx context.Context, cfg *config.Config) (*pipeline.Pipeline, func(), error) {
	cleanup := func() {}

	cacheDir := cfg.Recognition.CacheDir
	if cacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve cache dir: %w", err)
		}
		cacheDir = filepath.Join(base, "loquax", "models")
	}
	cache, err := modelcache.NewDiskCache(cacheDir)
	if err != nil {
		return nil, nil, fmt.Errorf("model cache: %w", err)
	}

	var engineOpts []whispercpp.Option
	if flagThreads > 0 {
		engineOpts = append(engineOpts, whispercpp.WithThreads(flagThreads))
	}
	engine := whispercpp.New(engineOpts...)

	var recOpts []recognize.Option
	if d := cfg.Recognition.AttemptTimeout.Std(); d > 0 {
		recOpts = append(recOpts, recognize.WithAttemptTimeout(d))
	}
	recognizer := recognize.New(cache, engine, recOpts...)

	plan, err := buildPlan(cfg)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("tier plan resolved", "plan", plan)

	var mediaOpts []media.Option
	if cfg.Media.FFmpegPath != "" {
		mediaOpts = append(mediaOpts, media.WithFFmpegPath(cfg.Media.FFmpegPath))
	}
	if cfg.Media.FFprobePath != "" {
		mediaOpts = append(mediaOpts, media.WithFFprobePath(cfg.Media.FFprobePath))
	}
	if cfg.Media.TempDir != "" {
		mediaOpts = append(mediaOpts, media.WithTempDir(cfg.Media.TempDir))
	}
	extractor := media.NewExtractor(mediaOpts...)

	pipeOpts := []pipeline.Option{
		pipeline.WithLanguage(cfg.Recognition.Language),
	}

	if corrector, err := buildCorrector(cfg); err != nil {
		return nil, nil, err
	} else if corrector != nil {
		pipeOpts = append(pipeOpts, pipeline.WithCorrector(corrector))
	}

	if cfg.Archive.Enabled {
		store, err := buildArchive(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		cleanup = store.Close
		pipeOpts = append(pipeOpts, pipeline.WithArchive(store))
	}

	return pipeline.New(extractor, recognizer, plan, pipeOpts...), cleanup, nil
}

// buildPlan resolves the tier fallback chain: an explicit model override
// plans from that tier downward, otherwise planning starts from the highest
// tier that fits the configured accelerator memory.
func buildPlan(cfg *config.Config) ([]tier.Tier, error) {
	if cfg.Recognition.Model != "" {
		t, err := tier.ParseTier(cfg.Recognition.Model)
		if err != nil {
			return nil, err
		}
		return tier.PlanFrom(t), nil
	}

	gib := cfg.Recognition.AcceleratorMemoryGiB
	if gib <= 0 {
		gib = defaultAcceleratorGiB
		slog.Debug("no accelerator memory configured, assuming default", "gib", gib)
	}
	return tier.Plan(uint64(gib*(1<<30)), tier.Priority(cfg.Recognition.Priority)), nil
}

func buildCorrector(cfg *config.Config) (*correct.Engine, error) {
	if !cfg.Correction.Enabled {
		return nil, nil
	}
	if cfg.Correction.Model == "" {
		slog.Warn("correction enabled but no model configured, skipping the stage")
		return nil, nil
	}

	var llmOpts []anyllmlib.Option
	if cfg.Correction.APIKey != "" {
		llmOpts = append(llmOpts, anyllmlib.WithAPIKey(cfg.Correction.APIKey))
	}
	if cfg.Correction.BaseURL != "" {
		llmOpts = append(llmOpts, anyllmlib.WithBaseURL(cfg.Correction.BaseURL))
	}
	primary, err := anyllm.New(strings.ToLower(cfg.Correction.Provider), cfg.Correction.Model, llmOpts...)
	if err != nil {
		return nil, fmt.Errorf("correction provider %q: %w", cfg.Correction.Provider, err)
	}

	var provider llm.Provider = primary
	if len(cfg.Correction.Fallbacks) > 0 {
		chain := resilience.NewChain(cfg.Correction.Provider, primary)
		for _, fb := range cfg.Correction.Fallbacks {
			var opts []anyllmlib.Option
			if fb.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(fb.APIKey))
			}
			if fb.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(fb.BaseURL))
			}
			p, err := anyllm.New(strings.ToLower(fb.Provider), fb.Model, opts...)
			if err != nil {
				return nil, fmt.Errorf("fallback provider %q: %w", fb.Provider, err)
			}
			chain.Add(fb.Provider, p)
		}
		provider = chain
	}

	engOpts := []correct.Option{
		correct.WithLedgerPolicy(correct.Policy(cfg.Correction.LedgerPolicy)),
		correct.WithTemperature(cfg.Correction.Temperature),
	}
	if cfg.Correction.CharBudget > 0 {
		engOpts = append(engOpts, correct.WithCharBudget(cfg.Correction.CharBudget))
	}
	if cfg.Correction.EditTolerance > 0 {
		engOpts = append(engOpts, correct.WithEditTolerance(cfg.Correction.EditTolerance))
	}
	if d := cfg.Correction.BatchTimeout.Std(); d > 0 {
		engOpts = append(engOpts, correct.WithBatchTimeout(d))
	}
	return correct.NewEngine(provider, engOpts...), nil
}

func buildArchive(ctx context.Context, cfg *config.Config) (archive.Store, error) {
	var embedder embeddings.Provider
	ec := cfg.Archive.Embeddings
	if strings.EqualFold(ec.Provider, "openai") && ec.APIKey != "" {
		var opts []oaembed.Option
		if ec.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(ec.BaseURL))
		}
		p, err := oaembed.New(ec.APIKey, ec.Model, opts...)
		if err != nil {
			return nil, fmt.Errorf("embeddings provider: %w", err)
		}
		embedder = p
	} else {
		slog.Info("no embeddings provider configured, archiving without semantic search")
	}

	store, err := archive.NewPostgresStore(ctx, cfg.Archive.PostgresDSN, embedder)
	if err != nil {
		return nil, fmt.Errorf("archive store: %w", err)
	}
	return store, nil
}
