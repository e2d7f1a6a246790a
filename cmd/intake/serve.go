package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendant/video-intake/pkg/intake/api"
	"github.com/tendant/video-intake/pkg/intake/config"
	"github.com/tendant/video-intake/pkg/intake/metrics"
)

func newServeCmd(a *app) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve GET /upload-url",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.WithPort(port)(a.cfg); err != nil {
				return err
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	if err := cfg.ValidateServe(); err != nil {
		return err
	}
	cfg.LogEnvSanity(a.logger)

	backend, err := cfg.BuildS3Backend(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize S3 backend: %w", err)
	}
	signer, err := cfg.BuildSigner(backend, a.logger)
	if err != nil {
		return err
	}
	authenticator, err := cfg.BuildAuthenticator()
	if err != nil {
		return err
	}

	m := metrics.New()
	handler := api.NewUploadHandler(signer, authenticator,
		api.WithMintObserver(m),
		api.WithHandlerLogger(a.logger),
	)

	httpServer := &http.Server{
		Addr: fmt.Sprintf(":%s", cfg.Port),
		Handler: api.NewRouter(handler, api.RouterConfig{
			Environment: cfg.Environment,
			Metrics:     m.Handler(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("intake server starting", "port", cfg.Port, "env", cfg.Environment, "upload_style", cfg.S3.UploadStyle)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}
	a.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.logger.Info("server exiting")
	return nil
}
