package cmd

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/volscan/volscan/internal/core/store"
	"github.com/volscan/volscan/internal/output"
)

var (
	rateLimitListAll    bool
	rateLimitListType   string
	rateLimitListPrefix string
)

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored bucket state",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := resolveSinkTarget(cmd)
		if err != nil {
			return err
		}
		format := target.format

		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		query := store.BucketQuery{
			All:    rateLimitListAll,
			Type:   strings.TrimSpace(rateLimitListType),
			Prefix: strings.TrimSpace(rateLimitListPrefix),
		}
		if query.Type == "" && query.Prefix == "" {
			query.All = true
		}

		entries, err := db.ListBuckets(cmd.Context(), query)
		if err != nil {
			return err
		}

		sink, err := target.open("rate-limit.list")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if len(entries) == 0 && format == output.FormatTable {
			_, err = fmt.Fprint(sink.writer, ascii.DrawBox("Rate Limits\n\n(no stored bucket state)", 0))
			return err
		}

		rendered, err := output.NewFormatter(format).FormatBuckets(snapshotsOf(entries))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

func init() {
	rateLimitListCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|markdown")
	rateLimitListCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	rateLimitListCmd.Flags().String("out-dir", "", "Write output to a directory")
	rateLimitListCmd.Flags().BoolVar(&rateLimitListAll, "all", false, "List all workload types")
	rateLimitListCmd.Flags().StringVar(&rateLimitListType, "type", "", "List a single workload type")
	rateLimitListCmd.Flags().StringVar(&rateLimitListPrefix, "prefix", "", "List workload types with matching prefix")
}
