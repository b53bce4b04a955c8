package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/agents"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/audio"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/cache"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/config"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/orchestrator"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/prompt"
)

// errCriticalFailures maps to exit code 1
var errCriticalFailures = errors.New("critical agents failed")

func generateCmd(flags *globalFlags) *cobra.Command {
	var noCache bool
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Extract the campaign and generate every dread level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, flags, noCache)
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Ignore cached and checkpointed results")
	return cmd
}

func runGenerate(cmd *cobra.Command, flags *globalFlags, noCache bool) error {
	ctx := cmd.Context()
	cfg, logger, err := setup(flags)
	if err != nil {
		return err
	}
	defer logger.Sync()

	registry, err := agents.LoadAll(cfg.SpecDirs, logger)
	if err != nil {
		return err
	}
	if err := registry.ValidateRequired(cfg.RequiredAgents); err != nil {
		return err
	}
	for _, w := range registry.Warnings() {
		logger.Warn("Agent spec override", zap.String("detail", w))
	}

	tokenizer, err := prompt.NewTokenizer(cfg.Tokenizer)
	if err != nil {
		return err
	}
	checkpoints, err := cache.NewCheckpointStore(cfg.CheckpointDir, logger)
	if err != nil {
		return err
	}
	recorder, err := newRecorder(cfg, logger)
	if err != nil {
		return err
	}

	ex, err := extract(ctx, cfg, logger, recorder)
	if err != nil {
		return err
	}
	if err := orchestrator.EnsureOutputDir(cfg.OutputDir); err != nil {
		return err
	}

	deps := orchestrator.Deps{
		Registry:    registry,
		Optimizer:   prompt.NewOptimizer(tokenizer, cfg.TokenBudget),
		Cache:       cache.New(cfg.CacheCapacity),
		Checkpoints: checkpoints,
		Recorder:    recorder,
		Logger:      logger,
	}
	if provider := newProvider(cfg); provider != nil {
		deps.Provider = provider
	} else {
		logger.Warn("No completion API key configured, only fallback artifacts will be produced")
	}
	if acquirer := newAcquirer(cfg, logger); acquirer != nil {
		deps.Audio = acquirer
	}

	orch, err := orchestrator.New(deps, orchestrator.Options{
		ParallelAgents:     cfg.ParallelAgents,
		ItemsPerBatch:      cfg.ItemsPerBatch,
		MaxRetries:         cfg.MaxRetries,
		RetryBaseDelay:     cfg.Completion.RetryBaseDelay,
		CheckpointInterval: cfg.CheckpointInterval,
		TargetCapabilities: cfg.TargetCapabilities,
		UseCache:           !noCache,
		Bundles:            ex.bundles,
		SamplePaths:        ex.samples,
		CanonicalTables:    canonicalTables(),
	})
	if err != nil {
		return err
	}

	report, err := orch.GenerateAllDreadLevels(ctx, cfg.OutputDir, ex.runContext())
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, report.Summary())
	fmt.Fprintf(os.Stdout, "manifest: %s\n", report.ManifestPath)

	if report.HasCriticalFailures() {
		return fmt.Errorf("%w, see %s", errCriticalFailures, report.ErrorsPath)
	}
	return nil
}

// newProvider returns nil when no API key is configured
func newProvider(cfg *config.ProjectConfig) agents.Provider {
	if cfg.Completion.APIKey == "" {
		return nil
	}
	return agents.NewOpenRouterClient(agents.ClientConfig{
		BaseURL: cfg.Completion.BaseURL,
		Model:   cfg.Completion.Model,
		APIKey:  cfg.Completion.APIKey,
	})
}

// newAcquirer returns nil unless sound acquisition is enabled and keyed
func newAcquirer(cfg *config.ProjectConfig, logger *zap.Logger) orchestrator.AudioAcquirer {
	if !cfg.Sound.Enabled {
		return nil
	}
	if cfg.Sound.APIKey == "" {
		logger.Warn("Sound acquisition enabled without FREESOUND_API_KEY, skipping audio")
		return nil
	}
	client := audio.NewClient(cfg.Sound.BaseURL, cfg.Sound.APIKey, nil)
	return audio.NewAcquirer(client, cfg.Sound.Interval, logger)
}
