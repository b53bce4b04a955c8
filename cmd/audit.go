package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/audit"
	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
)

func auditCmd(flags *globalFlags) *cobra.Command {
	var dir string
	var rotate bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Summarize the audit reports of previous runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if dir == "" {
				dir = cfg.AuditReportsDir
			}
			if dir == "" {
				return apperrors.New(apperrors.CodeConfigInvalid, "no audit reports dir configured")
			}

			if rotate {
				recorder, err := audit.NewRecorder(dir, cfg.ArchiveRetention, logger)
				if err != nil {
					return err
				}
				path, err := recorder.Rotate(time.Now())
				if err != nil {
					return err
				}
				if path != "" {
					fmt.Fprintf(os.Stdout, "archived: %s\n", path)
				}
			}

			report, err := audit.Summarize(dir)
			if err != nil {
				return err
			}
			return report.Write(os.Stdout)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Audit reports dir (default from config)")
	cmd.Flags().BoolVar(&rotate, "rotate", false, "Archive the current reports before summarizing")
	return cmd
}
