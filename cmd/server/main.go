package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/viki-777/colabio-backend/internal/bootstrap"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		port     string
		origins  string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "colabio-server",
		Short: "Realtime collaborative whiteboard server",
		Long: `Serves shared whiteboard rooms over websocket.

Configuration is read from the environment (and a .env file if present);
the flags below override it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("port") {
				cfg.ServerPort = port
			}
			if cmd.Flags().Changed("origins") {
				cfg.AllowedOrigins = bootstrap.SplitOrigins(origins)
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8080", "HTTP listen port (env PORT)")
	cmd.Flags().StringVar(&origins, "origins", "", "comma-separated allowed origins (env CLIENT_URL)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (env LOG_LEVEL)")
	return cmd
}

func run(parent context.Context, cfg *bootstrap.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	errCh := app.Start()
	select {
	case <-ctx.Done():
		logrus.Info("Shutdown signal received...")
	case err = <-errCh:
		logrus.WithError(err).Error("Server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app.Shutdown(shutdownCtx)
	return err
}
