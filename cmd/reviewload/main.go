// Command reviewload moves product reviews between Cloud Storage and
// BigQuery.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"go.nownabe.dev/reviewloader"
	"go.nownabe.dev/reviewloader/config"
	"go.nownabe.dev/reviewloader/metrics"
	"go.nownabe.dev/reviewloader/metrics/prompush"
)

var rootFlags struct {
	config string
	pretty bool
	level  string
}

var rootCmd = &cobra.Command{
	Use:           "reviewload",
	Short:         "Load product reviews from Cloud Storage into BigQuery",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootFlags.config, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVar(&rootFlags.pretty, "pretty", false, "Print human friendly logs")
	rootCmd.PersistentFlags().StringVar(&rootFlags.level, "log-level", "", "Log level (overrides config)")

	rootCmd.AddCommand(loadCmd, fetchCmd, validateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(rootFlags.config)
	if err != nil {
		return nil, xerrors.Errorf("failed to load config: %w", err)
	}

	if rootFlags.pretty {
		cfg.Log.Pretty = true
	}
	if rootFlags.level != "" {
		cfg.Log.Level = rootFlags.level
	}

	return cfg, nil
}

// newPipeline logs to stderr so that stdout stays free for data.
func newPipeline(cfg *config.Config, command string) (*reviewloader.Pipeline, error) {
	lvl, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse log level: %w", err)
	}

	var w io.Writer = os.Stderr
	if cfg.Log.Pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	l := zerolog.New(w).With().Timestamp().Str("command", command).Logger().Level(lvl)

	if cfg.Metrics.PushgatewayURL != "" {
		b, err := prompush.NewBackend(cfg.Metrics.Job, cfg.Metrics.PushgatewayURL, cfg.Timeout)
		if err != nil {
			return nil, xerrors.Errorf("failed to set up metrics: %w", err)
		}
		metrics.SetBackend(b)
	}

	return reviewloader.New(cfg, reviewloader.WithLogger(l))
}

func flushMetrics(cmd *cobra.Command, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
	defer cancel()

	if err := metrics.Flush(ctx); err != nil {
		cmd.PrintErrf("failed to push metrics: %v\n", err)
	}
}
