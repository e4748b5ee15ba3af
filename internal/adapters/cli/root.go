// Package cli exposes the classification pipeline as a command line tool.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/document-classifier/internal/bootstrap"
	"github.com/kirillkom/document-classifier/internal/config"
	"github.com/kirillkom/document-classifier/internal/core/ports"
	"github.com/kirillkom/document-classifier/internal/observability/logging"
)

// ClassifierFactory builds the pipeline for one command invocation. The
// returned func releases its resources.
type ClassifierFactory func(ctx context.Context, cfg config.Config) (ports.DocumentClassifier, func(), error)

type rootOptions struct {
	configFile string
	logLevel   string
}

func NewRootCommand(factory ClassifierFactory) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "classify",
		Short: "Classify documents with generated candidate labels and zero-shot scoring",
		Long: `classify runs the document classification pipeline locally.

Text is extracted from a PDF, DOCX, XLSX, TXT or Markdown file, a generative
model proposes candidate labels and a zero-shot model scores them.

Configuration is read from environment variables, then from the YAML file
given with --config (or CONFIG_FILE), then from built-in defaults.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.configFile != "" {
				if err := os.Setenv("CONFIG_FILE", opts.configFile); err != nil {
					return err
				}
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (default from LOG_LEVEL)")

	root.AddCommand(newFileCommand(opts, factory))
	root.AddCommand(newConfigCommand())
	return root
}

// Execute runs the CLI with the production pipeline.
func Execute(ctx context.Context) error {
	return NewRootCommand(defaultFactory).ExecuteContext(ctx)
}

func defaultFactory(ctx context.Context, cfg config.Config) (ports.DocumentClassifier, func(), error) {
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{})
	if err != nil {
		return nil, nil, err
	}
	return app.Classifier, app.Close, nil
}

func loadConfig(cmd *cobra.Command, opts *rootOptions) config.Config {
	cfg := config.Load()
	level := cfg.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	slog.SetDefault(logging.NewConsoleLogger(cmd.ErrOrStderr(), "classify", level))
	return cfg
}
