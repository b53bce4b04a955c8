package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/audit"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/config"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/db"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/entities"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/orchestrator"
)

func extractCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "extract",
		Short: "Load the campaign database, classify entities and export samples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			defer logger.Sync()

			recorder, err := newRecorder(cfg, logger)
			if err != nil {
				return err
			}
			ex, err := extract(cmd.Context(), cfg, logger, recorder)
			if err != nil {
				return err
			}

			counts := ex.clusters.Counts()
			for _, c := range entities.AllCategories {
				fmt.Fprintf(os.Stdout, "%-14s %d\n", c, counts[c])
			}
			fmt.Fprintf(os.Stdout, "%-14s %d\n", "total", ex.clusters.Total())
			for _, c := range entities.CategoryOrder {
				if path, ok := ex.samples[c]; ok {
					fmt.Fprintf(os.Stdout, "samples: %s\n", path)
				}
			}
			return nil
		},
	}
}

// extraction is the outcome of loading, classifying and sampling the campaign
type extraction struct {
	snapshot *db.Snapshot
	clusters *entities.Clusters
	samples  map[entities.Category]string
	bundles  map[entities.Category]*entities.Bundle
}

// extract runs the source stages: load, classify, export samples
func extract(ctx context.Context, cfg *config.ProjectConfig, logger *zap.Logger, recorder orchestrator.Recorder) (*extraction, error) {
	if err := entities.ValidateTables(); err != nil {
		return nil, err
	}

	started := time.Now()
	snapshot, err := db.LoadSnapshot(ctx, cfg.CampaignDB)
	if err != nil {
		record(logger, recorder, audit.StageRecord{Stage: "extraction", Duration: time.Since(started), Timestamp: time.Now()})
		return nil, err
	}
	clusters := entities.Classify(snapshot)
	record(logger, recorder, audit.StageRecord{
		Stage:     "extraction",
		Duration:  time.Since(started),
		Items:     clusters.Total(),
		Success:   true,
		Timestamp: time.Now(),
	})
	logger.Info("Campaign loaded",
		zap.String("path", cfg.CampaignDB),
		zap.Int("entities", clusters.Total()),
		zap.Int("tiles", len(snapshot.Map.Tiles)))

	started = time.Now()
	if err := os.MkdirAll(cfg.BuildDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating build dir: %w", err)
	}
	thresholds := entities.Thresholds{HTML: cfg.SampleThresholds.HTML, JSON: cfg.SampleThresholds.JSON}
	samples, err := entities.ExportSamples(cfg.BuildDir, clusters, thresholds)
	if err != nil {
		return nil, err
	}

	bundles := make(map[entities.Category]*entities.Bundle, len(samples))
	var items int
	var size int64
	for c, path := range samples {
		b, err := entities.LoadBundle(path)
		if err != nil {
			return nil, err
		}
		bundles[c] = b
		items += len(b.Entities)
		if info, err := os.Stat(path); err == nil {
			size += info.Size()
		}
	}
	record(logger, recorder, audit.StageRecord{
		Stage:     "export",
		Duration:  time.Since(started),
		Items:     items,
		Files:     len(samples),
		Bytes:     size,
		Success:   true,
		Timestamp: time.Now(),
	})
	logger.Info("Samples exported", zap.String("dir", cfg.BuildDir), zap.Int("files", len(samples)), zap.Int("entities", items))

	return &extraction{snapshot: snapshot, clusters: clusters, samples: samples, bundles: bundles}, nil
}

// runContext is the context shared by every request of a run
func (ex *extraction) runContext() map[string]string {
	ctx := map[string]string{
		"entity_count": fmt.Sprint(ex.clusters.Total()),
	}
	var biomes []string
	for i, b := range ex.snapshot.BiomeCounts() {
		if i == 5 {
			break
		}
		biomes = append(biomes, fmt.Sprintf("%s (%d)", b.Biome, b.Tiles))
	}
	if len(biomes) > 0 {
		ctx["biomes"] = strings.Join(biomes, ", ")
	}
	return ctx
}

// canonicalTables converts the known-name tables for the manifest
func canonicalTables() map[string][]string {
	tables := make(map[string][]string)
	for c, names := range entities.CanonicalTables() {
		tables[string(c)] = names
	}
	return tables
}

func newRecorder(cfg *config.ProjectConfig, logger *zap.Logger) (orchestrator.Recorder, error) {
	if cfg.AuditReportsDir == "" {
		return nil, nil
	}
	recorder, err := audit.NewRecorder(cfg.AuditReportsDir, cfg.ArchiveRetention, logger)
	if err != nil {
		return nil, err
	}
	return recorder, nil
}

func record(logger *zap.Logger, recorder orchestrator.Recorder, rec audit.Record) {
	if recorder == nil {
		return
	}
	if err := recorder.Record(rec); err != nil {
		logger.Warn("Audit record failed", zap.String("category", rec.AuditCategory()), zap.Error(err))
	}
}
