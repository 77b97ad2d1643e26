package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/debughawk/internal/seeder"
)

var (
	seedURL      string
	seedCount    int
	seedBatch    int
	seedInterval time.Duration
	seedKinds    string
	seedSeed     int64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Send generated envelopes to an ingress",
	Long: `Generates realistic envelopes of every built-in kind and posts them in
batches to a running ingress.

Examples:
  dhawk seed --count 500
  dhawk seed --url http://debug.local:8090 --kinds exception,executed_query`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedURL, "url", "", "ingress base URL (default: http://localhost:<server.port>)")
	seedCmd.Flags().IntVar(&seedCount, "count", 100, "number of envelopes to send")
	seedCmd.Flags().IntVar(&seedBatch, "batch", 25, "envelopes per request")
	seedCmd.Flags().DurationVar(&seedInterval, "interval", 0, "pause between batches")
	seedCmd.Flags().StringVar(&seedKinds, "kinds", "", "comma separated envelope types (default: all)")
	seedCmd.Flags().Int64Var(&seedSeed, "seed", 0, "random seed (0 picks one)")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	if seedCount < 1 {
		return fmt.Errorf("--count must be positive")
	}
	url := seedURL
	if url == "" {
		url = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	var kinds []string
	for _, k := range strings.Split(seedKinds, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds = append(kinds, k)
		}
	}

	runner := seeder.NewRunner(seeder.Config{
		URL:       url,
		Count:     seedCount,
		BatchSize: seedBatch,
		Interval:  seedInterval,
		Kinds:     kinds,
		Seed:      seedSeed,
	}, logger)

	res, err := runner.Run(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent %d, failed %d, records %d, dropped %d\n",
		res.Sent, res.Failed, res.Records, res.Dropped)
	if res.Failed > 0 {
		return fmt.Errorf("%d envelopes failed to send", res.Failed)
	}
	return nil
}
