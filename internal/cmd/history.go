package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/volscan/volscan/internal/core/store"
	"github.com/volscan/volscan/internal/output"
)

var (
	historyType   string
	historyLimit  int
	historyFailed bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent exchanges from the journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := resolveSinkTarget(cmd)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		exchanges, err := db.ListExchanges(cmd.Context(), store.ExchangeQuery{
			Type:   strings.TrimSpace(historyType),
			Limit:  historyLimit,
			Failed: historyFailed,
		})
		if err != nil {
			return err
		}

		sink, err := target.open("history")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		rendered, err := output.NewFormatter(target.format).FormatExchanges(exchanges)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historyType, "type", "", "only show one workload type")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", store.DefaultExchangeLimit, "maximum number of exchanges")
	historyCmd.Flags().BoolVar(&historyFailed, "failed", false, "only show failed exchanges")
	historyCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|markdown")
	historyCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	historyCmd.Flags().String("out-dir", "", "Write output to a directory")
}
