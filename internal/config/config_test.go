package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "labyrinth.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestLoadProjectConfig tests file loading, defaults and validation
func TestLoadProjectConfig(t *testing.T) {
	t.Run("defaults fill omitted keys", func(t *testing.T) {
		path := writeTempConfig(t, "output_dir: out\nspec_dirs: [specs]\nparallel_agents: 2\n")
		cfg, err := LoadProjectConfig(path)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.ParallelAgents != 2 {
			t.Errorf("Expected parallel_agents 2, got %d", cfg.ParallelAgents)
		}
		if cfg.ItemsPerBatch != 100 || cfg.MaxRetries != 3 || cfg.CheckpointInterval != 10 {
			t.Errorf("Expected defaults 100/3/10, got %d/%d/%d", cfg.ItemsPerBatch, cfg.MaxRetries, cfg.CheckpointInterval)
		}
		if cfg.SampleThresholds.HTML != 10 || cfg.SampleThresholds.JSON != 5 {
			t.Errorf("Unexpected thresholds: %+v", cfg.SampleThresholds)
		}
		if cfg.Sound.Interval != 3*time.Second {
			t.Errorf("Expected sound interval 3s, got %s", cfg.Sound.Interval)
		}
	})

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := LoadProjectConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		if !errors.Is(err, apperrors.ErrConfigInvalid) {
			t.Fatalf("expected config error, got %v", err)
		}
	})

	t.Run("invalid parallelism", func(t *testing.T) {
		path := writeTempConfig(t, "parallel_agents: 0\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("duplicate spec dirs", func(t *testing.T) {
		path := writeTempConfig(t, "spec_dirs: [a, a]\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeTempConfig(t, "spec_dirs: [a\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})
}

// TestEnvOverrides tests environment variables taking precedence over the file
func TestEnvOverrides(t *testing.T) {
	t.Setenv("LABYRINTH_PARALLEL_AGENTS", "8")
	t.Setenv("LABYRINTH_SPEC_DIRS", "one,two")
	t.Setenv("LABYRINTH_SAMPLES_JSON", "3")
	t.Setenv("OPENROUTER_API_KEY", "secret")
	t.Setenv("LABYRINTH_TRUSTED_PROXIES", "10.0.0.0/8,192.0.2.7")

	path := writeTempConfig(t, "parallel_agents: 2\n")
	cfg, err := LoadProjectConfig(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.ParallelAgents != 8 {
		t.Errorf("Expected env override 8, got %d", cfg.ParallelAgents)
	}
	if len(cfg.SpecDirs) != 2 || cfg.SpecDirs[1] != "two" {
		t.Errorf("Unexpected spec dirs: %v", cfg.SpecDirs)
	}
	if cfg.SampleThresholds.JSON != 3 {
		t.Errorf("Expected json threshold 3, got %d", cfg.SampleThresholds.JSON)
	}
	if cfg.Completion.APIKey != "secret" {
		t.Errorf("Expected API key from env")
	}
	if len(cfg.Server.TrustedProxies) != 2 || cfg.Server.TrustedProxies[0] != "10.0.0.0/8" {
		t.Errorf("Unexpected trusted proxies: %v", cfg.Server.TrustedProxies)
	}
}
