package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/volscan/volscan/internal/config"
	"github.com/volscan/volscan/internal/core"
	"github.com/volscan/volscan/internal/core/engine"
	errwrap "github.com/volscan/volscan/internal/errors"
	"github.com/volscan/volscan/internal/metrics"
	"github.com/volscan/volscan/internal/observability"
	"github.com/volscan/volscan/internal/output"
	"github.com/volscan/volscan/internal/watch"
	"github.com/volscan/volscan/internal/watchlist"
)

var (
	watchFile     string
	watchOnce     bool
	watchAnyHours bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll option chains for every watchlist entry",
	Long: `Load a watchlist and request the option chain of each entry through the
rate-limited client. Passes repeat every watch.interval and are skipped outside
NYSE trading hours unless --any-hours is given.

Watchlist entries: {"ticker", "date", "option_type", "min_overpriced",
"min_underpriced", "min_oi"} as a JSON array or YAML list.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(ctx)
		if err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "config load failed")
		}
		if cmd.Flags().Changed("file") {
			cfg.Watch.File = watchFile
		}
		if watchAnyHours {
			cfg.Watch.MarketHoursOnly = false
		}

		tracker := watch.NewTracker()
		rt, err := newClientRuntime(ctx, cfg, runtimeOptions{observers: []engine.Observer{tracker}})
		if err != nil {
			return errwrap.WrapDatabaseError(ctx, err, "client initialization failed")
		}
		defer func() { _ = rt.Close() }()

		w, err := newWatcher(cfg, rt, tracker)
		if err != nil {
			return errwrap.WrapInvalidInput(ctx, err, "watch setup failed")
		}

		formatter := output.NewFormatter(format)
		sink := cycleWriter(cmd.OutOrStdout(), formatter)
		if watchOnce {
			return sink(w.RunOnce(ctx))
		}

		rt.pruneJournal(ctx, cfg.Client.JournalRetention)
		err = w.Run(ctx, func(c watch.Cycle) {
			if err := sink(c); err != nil {
				observability.Active(config.AppName).Warn("Failed to write cycle", zap.Error(err))
			}
		})
		if stderrors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

// newWatcher builds a watcher for cfg.Watch over the given executor.
func newWatcher(cfg *config.Config, exec watch.Executor, tracker *watch.Tracker) (*watch.Watcher, error) {
	path := strings.TrimSpace(cfg.Watch.File)
	if path == "" {
		return nil, fmt.Errorf("no watchlist file configured (watch.file or --file)")
	}
	entries, err := watchlist.Load(path)
	if err != nil {
		return nil, err
	}
	return watch.New(exec, entries, watch.Options{
		WorkloadType:    core.WorkloadType(cfg.Watch.WorkloadType),
		PathTemplate:    cfg.Watch.PathTemplate,
		Workers:         cfg.Workers,
		Rate:            cfg.Watch.Rate,
		Burst:           cfg.Watch.Burst,
		Interval:        cfg.Watch.Interval,
		MarketHoursOnly: cfg.Watch.MarketHoursOnly,
		Logger:          observability.Active(config.AppName),
		Tracker:         tracker,
	})
}

// cycleWriter renders each cycle and records watch metrics.
func cycleWriter(w io.Writer, formatter output.Formatter) func(watch.Cycle) error {
	return func(c watch.Cycle) error {
		metrics.RecordWatchCycle(c.Skipped)
		if c.Skipped {
			_, err := fmt.Fprintf(w, "%s market closed, cycle skipped\n", c.Started.Local().Format(time.DateTime))
			return err
		}
		rendered, err := formatter.FormatResults(c.Rows)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n%s\n", c.Started.Local().Format(time.DateTime), rendered)
		return err
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVarP(&watchFile, "file", "f", "", "watchlist file (default watch.file)")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "run a single pass and exit")
	watchCmd.Flags().BoolVar(&watchAnyHours, "any-hours", false, "poll outside NYSE trading hours")
	watchCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|markdown")
}
