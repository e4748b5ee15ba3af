package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kirillkom/document-classifier/internal/core/domain"
)

func newFileCommand(opts *rootOptions, factory ClassifierFactory) *cobra.Command {
	var stream bool

	cmd := &cobra.Command{
		Use:   "file <path>",
		Short: "Classify a single document",
		Long: `Classify a single document and print the result as JSON.

With --stream every pipeline stage is printed as it completes, one
"data: <json>" record per stage, in the same framing the HTTP stream uses.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(cmd, opts)

			path := args[0]
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open document: %w", err)
			}
			defer file.Close()

			classifier, release, err := factory(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("init pipeline: %w", err)
			}
			defer release()

			upload := domain.Upload{Filename: filepath.Base(path)}
			if info, err := file.Stat(); err == nil {
				upload.Size = info.Size()
			}

			out := cmd.OutOrStdout()
			if stream {
				return classifier.ClassifyStream(cmd.Context(), upload, file, func(event domain.StageEvent) error {
					return writeEvent(out, event)
				})
			}

			result, err := classifier.Classify(cmd.Context(), upload, file)
			if err != nil {
				return err
			}
			if degraded := result.DegradedHeader(); degraded != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: degraded stages: %s\n", degraded)
			}
			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")
			return encoder.Encode(result)
		},
	}

	cmd.Flags().BoolVar(&stream, "stream", false, "print stage events as they happen")
	return cmd
}

func writeEvent(w io.Writer, event domain.StageEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal stage event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
