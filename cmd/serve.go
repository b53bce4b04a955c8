package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/api"
	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
	mw "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/middleware"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/timeouts"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the manifest, error report and audit summary over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if addr == "" {
				addr = cfg.Server.Addr
			}
			if cfg.Server.JWTSecret == "" {
				logger.Warn("LABYRINTH_JWT_SECRET not set, API is unauthenticated")
			}

			proxies, err := mw.ParseTrustedProxies(cfg.Server.TrustedProxies)
			if err != nil {
				return apperrors.Wrap(apperrors.CodeConfigInvalid, "server.trusted_proxies", err)
			}

			server := &http.Server{
				Addr: addr,
				Handler: api.NewServer(api.Options{
					OutputDir:      cfg.OutputDir,
					AuditDir:       cfg.AuditReportsDir,
					JWTSecret:      cfg.Server.JWTSecret,
					TrustedProxies: proxies,
					Logger:         logger,
				}),
				ReadHeaderTimeout: timeouts.ReadHeader,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Starting server", zap.String("addr", addr), zap.String("output_dir", cfg.OutputDir))
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-cmd.Context().Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
			defer cancel()
			logger.Info("Shutting down server")
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}

func tokenCmd(flags *globalFlags) *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the report server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.Server.JWTSecret == "" {
				return apperrors.New(apperrors.CodeConfigInvalid, "LABYRINTH_JWT_SECRET is required")
			}
			token, err := mw.IssueToken([]byte(cfg.Server.JWTSecret), subject, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "designer", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
