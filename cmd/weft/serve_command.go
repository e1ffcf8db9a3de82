package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"weft/internal/api"
	"weft/internal/logging"
	"weft/internal/queueaccess"
)

const (
	defaultServeAddr     = "127.0.0.1:8085"
	serveShutdownTimeout = 10 * time.Second
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local content store over HTTP for remote dispatchers",
		Long: "Exposes the SQLite-backed content service as the HTTP API that\n" +
			"backend.kind = \"remote\" clients talk to. Requests must carry\n" +
			"backend.token as a bearer token when one is configured.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			runCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			logger = logging.NewComponentLogger(logger, "api")

			st, err := queueaccess.OpenLocal(runCtx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("listen %s: %w", listen, err)
			}
			srv := &http.Server{
				Handler:           api.NewHandler(st, cfg.Backend.Token, logger),
				ReadHeaderTimeout: 5 * time.Second,
			}
			if cfg.Backend.Token == "" {
				logger.Warn("serving without authentication",
					logging.String(logging.FieldEventType, "api_unauthenticated"),
					logging.String(logging.FieldErrorHint, "set backend.token to require a bearer token"),
				)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", st.Path(), ln.Addr())

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Serve(ln)
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-runCtx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown api server: %w", err)
			}
			logger.Info("api server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", defaultServeAddr, "Address for the content API")
	return cmd
}
