package cmd

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/volscan/volscan/internal/core"
	errwrap "github.com/volscan/volscan/internal/errors"
	"github.com/volscan/volscan/internal/fred"
	"github.com/volscan/volscan/internal/output"
)

var rateSeries string

var rateCmd = &cobra.Command{
	Use:   "rate",
	Short: "Show the latest risk-free rate from FRED",
	Long: `Fetch the latest observation of a FRED series (SOFR by default) through the
rate-limited client. Requires FRED_API_KEY or fred.api_key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		cfg, err := loadConfig(ctx)
		if err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "config load failed")
		}
		series := cfg.FRED.Series
		if cmd.Flags().Changed("series") {
			series = rateSeries
		}

		rt, err := newClientRuntime(ctx, cfg, runtimeOptions{})
		if err != nil {
			return errwrap.WrapDatabaseError(ctx, err, "client initialization failed")
		}
		defer func() { _ = rt.Close() }()

		client := fred.NewClient(rt, fred.Options{
			BaseURL:      cfg.FRED.BaseURL,
			APIKey:       cfg.FRED.APIKey,
			Series:       series,
			WorkloadType: core.WorkloadType(cfg.FRED.WorkloadType),
		})
		rate, err := client.RiskFreeRate(ctx)
		switch {
		case stderrors.Is(err, fred.ErrMissingAPIKey):
			return errwrap.WrapInvalidInput(ctx, err, "set FRED_API_KEY or fred.api_key")
		case err != nil:
			return errwrap.FromClientError(ctx, err)
		}
		return writeRate(cmd.OutOrStdout(), format, rate)
	},
}

func writeRate(w io.Writer, format output.Format, rate fred.Rate) error {
	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(rate, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	lines := []string{
		"Risk-free rate",
		"",
		fmt.Sprintf("Series:  %s", rate.Series),
		fmt.Sprintf("Date:    %s", rate.Date),
		fmt.Sprintf("Percent: %.4f%%", rate.Percent),
		fmt.Sprintf("Rate:    %.6f", rate.Value),
	}
	_, err := fmt.Fprint(w, ascii.DrawBox(strings.Join(lines, "\n"), 0))
	return err
}

func init() {
	rootCmd.AddCommand(rateCmd)
	rateCmd.Flags().StringVar(&rateSeries, "series", fred.DefaultSeries, "FRED series id")
	rateCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json")
}
