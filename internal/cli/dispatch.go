package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/debughawk/internal/logging"
	"github.com/telhawk-systems/debughawk/internal/model"
	"github.com/telhawk-systems/debughawk/internal/output"
	"github.com/telhawk-systems/debughawk/internal/service"
)

var dispatchOutput string

var dispatchCmd = &cobra.Command{
	Use:   "dispatch [file|-]",
	Short: "Dispatch envelopes from a file or stdin and print the records",
	Long: `Reads a JSON array of envelopes, a single envelope, or NDJSON from the
given file (or stdin when the argument is "-" or missing) and prints one
record per envelope that produced one.

Examples:
  dhawk dispatch events.json
  cat events.ndjson | dhawk dispatch --output yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDispatch,
}

func init() {
	dispatchCmd.Flags().StringVarP(&dispatchOutput, "output", "o", output.FormatJSON, "output format: json, yaml")
	rootCmd.AddCommand(dispatchCmd)
}

func runDispatch(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	envelopes, err := model.DecodeEnvelopes(data)
	if err != nil {
		return err
	}

	// Diagnostics go to stderr through the logger; stdout carries records only.
	p := buildPipeline(cfg, logger, logging.NewCollaborator(logger))
	defer p.Close(context.Background())

	svc := service.NewIngestService(p.dispatcher, nil, cfg.Pipeline.MaxWorkers, logger)
	records := svc.ProcessBatch(cmd.Context(), envelopes)

	return output.Write(cmd.OutOrStdout(), dispatchOutput, records)
}
