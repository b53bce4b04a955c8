package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "labyrinth.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestExitCodes tests the exit code of each failure class through the root command
func TestExitCodes(t *testing.T) {
	dir := t.TempDir()
	valid := writeConfig(t, dir, fmt.Sprintf(
		"campaign_db: %s\noutput_dir: %s\nbuild_dir: %s\ncheckpoint_dir: %s\n",
		filepath.Join(dir, "missing.hbf"),
		filepath.Join(dir, "out"),
		filepath.Join(dir, "build"),
		filepath.Join(dir, "out", ".checkpoints"),
	))
	invalidDir := t.TempDir()
	invalid := writeConfig(t, invalidDir, "parallel_agents: 0\n")

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"version", []string{"version"}, apperrors.ExitOK},
		{"missing config file", []string{"--config", filepath.Join(dir, "nope.yaml"), "extract"}, apperrors.ExitConfig},
		{"invalid config", []string{"--config", invalid, "extract"}, apperrors.ExitConfig},
		{"missing campaign database", []string{"--config", valid, "extract"}, apperrors.ExitSource},
		{"critical agent failure", []string{"critical"}, apperrors.ExitCritical},
		{"unknown command", []string{"conjure"}, apperrors.ExitCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newRootCmd()
			root.AddCommand(&cobra.Command{
				Use: "critical",
				RunE: func(cmd *cobra.Command, args []string) error {
					return fmt.Errorf("%w, see %s", errCriticalFailures, "errors.toml")
				},
			})
			root.SetOut(io.Discard)
			root.SetErr(io.Discard)

			var stderr bytes.Buffer
			got := execute(context.Background(), root, tt.args, &stderr)
			if got != tt.want {
				t.Errorf("Expected exit code %d, got %d (%s)", tt.want, got, stderr.String())
			}
			if tt.want != apperrors.ExitOK && !strings.HasPrefix(stderr.String(), "Error: ") {
				t.Errorf("Expected error on stderr, got %q", stderr.String())
			}
		})
	}
}
