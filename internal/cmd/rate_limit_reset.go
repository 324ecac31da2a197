package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/volscan/volscan/internal/core/store"
	"github.com/volscan/volscan/internal/output"
)

type resetFlags struct {
	all, yes, dryRun bool
	typ, prefix      string
}

var resetOpts resetFlags

// query validates the selection. Resetting everything needs --yes unless
// nothing is deleted.
func (f resetFlags) query() (store.BucketQuery, error) {
	q := store.BucketQuery{All: f.all, Type: strings.TrimSpace(f.typ), Prefix: strings.TrimSpace(f.prefix)}
	if err := q.Validate(); err != nil {
		return q, err
	}
	if q.All && !f.yes && !f.dryRun {
		return q, errors.New("--all requires --yes (or use --dry-run)")
	}
	return q, nil
}

// resetResult is what rate-limit reset reports.
type resetResult struct {
	Matched int   `json:"matched"`
	Deleted int64 `json:"deleted"`
	DryRun  bool  `json:"dry_run"`
}

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset stored bucket state",
	Long: `Delete persisted bucket state so the next run starts with fresh buckets.

Running processes keep their in-memory buckets until they restart.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		target, err := resolveSinkTarget(cmd)
		if err != nil {
			return err
		}
		if target.format == output.FormatMarkdown {
			return fmt.Errorf("unsupported output format: %s", target.format)
		}
		query, err := resetOpts.query()
		if err != nil {
			return err
		}

		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		db, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		result := resetResult{DryRun: resetOpts.dryRun}
		if result.Matched, err = db.CountBuckets(ctx, query); err != nil {
			return err
		}
		if !result.DryRun {
			if result.Deleted, err = db.ResetBuckets(ctx, query); err != nil {
				return err
			}
		}

		sink, err := target.open("rate-limit.reset")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()
		return writeRateLimitResetResult(target.format, sink.writer, result)
	},
}

func writeRateLimitResetResult(format output.Format, w io.Writer, r resetResult) error {
	var err error
	switch {
	case format == output.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(r)
	case r.DryRun:
		_, err = fmt.Fprintf(w, "Would delete %d bucket(s)\n", r.Matched)
	default:
		_, err = fmt.Fprintf(w, "Deleted %d/%d bucket(s)\n", r.Deleted, r.Matched)
	}
	return err
}

func init() {
	f := rateLimitResetCmd.Flags()
	f.BoolVar(&resetOpts.all, "all", false, "Reset all workload types")
	f.StringVar(&resetOpts.typ, "type", "", "Reset a single workload type (exact match)")
	f.StringVar(&resetOpts.prefix, "prefix", "", "Reset workload types with matching prefix")
	f.BoolVar(&resetOpts.yes, "yes", false, "Confirm destructive reset")
	f.BoolVar(&resetOpts.dryRun, "dry-run", false, "Show what would be deleted")
	f.String("output-format", string(output.FormatTable), "Output format: table|json")
	f.String("out", "", "Write output to a file (default stdout)")
	f.String("out-dir", "", "Write output to a directory")
}
