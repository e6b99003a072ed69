package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fxbridge/mlclient/internal/client"
	"github.com/fxbridge/mlclient/internal/config"
	"github.com/fxbridge/mlclient/internal/logx"
	"github.com/fxbridge/mlclient/internal/metrics"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := buildRootCmd().ExecuteContext(ctx); err != nil {
		logx.Log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var cfg config.ClientConfig
	cfg.Defaults()

	root := &cobra.Command{
		Use:           "mlclient",
		Short:         "Client for a remote deep-learning image inference server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.Host, "host", cfg.Host, "inference server host")
	root.PersistentFlags().IntVar(&cfg.Port, "port", cfg.Port, "inference server port")
	root.PersistentFlags().StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML config file path")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	root.PersistentFlags().StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (disabled when empty)")
	root.PersistentFlags().StringVar(&cfg.StatusAddr, "status-addr", cfg.StatusAddr, "status HTTP listen address (enables /status and /version)")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cfg.ConfigFile != "" {
			if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("load config %s: %w", cfg.ConfigFile, err)
			}
		}
		logx.Configure(cfg.LogLevel)
		client.SetBuildInfo(version, buildSHA, buildDate)
		client.SetClientID(cfg.ClientID)
		if cfg.MetricsAddr != "" {
			if _, err := metrics.StartMetricsServer(cmd.Context(), cfg.MetricsAddr); err != nil {
				return err
			}
		}
		if cfg.StatusAddr != "" {
			if _, err := client.StartStatusServer(cmd.Context(), cfg.StatusAddr); err != nil {
				return err
			}
		}
		return nil
	}

	root.AddCommand(buildModelsCmd(&cfg))
	root.AddCommand(buildRunCmd(&cfg))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mlclient version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		},
	})
	return root
}

func newClient(cfg *config.ClientConfig) *client.Client {
	c := client.New(cfg.Host, cfg.Port)
	c.SetTimeouts(cfg.DialTimeout, cfg.RequestTimeout)
	return c
}
