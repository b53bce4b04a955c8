package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/config"
	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/logging"
)

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath string
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, newRootCmd(), os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "labyrinth",
		Short:         "Content generation pipeline for Dragon's Labyrinth",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVar(&flags.configPath, "config", config.DefaultPath, "Project config file")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(generateCmd(flags))
	root.AddCommand(extractCmd(flags))
	root.AddCommand(auditCmd(flags))
	root.AddCommand(serveCmd(flags))
	root.AddCommand(tokenCmd(flags))
	root.AddCommand(versionCmd())
	return root
}

// execute runs root with args and returns the process exit code
func execute(ctx context.Context, root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return apperrors.ExitCode(err)
	}
	return apperrors.ExitOK
}

// setup loads the project config and builds the logger
func setup(flags *globalFlags) (*config.ProjectConfig, *zap.Logger, error) {
	logger, err := logging.New(flags.verbose)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.LoadProjectConfig(flags.configPath)
	if err != nil {
		logger.Sync()
		return nil, nil, err
	}
	return cfg, logger, nil
}
