package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/volscan/volscan/internal/config"
	"github.com/volscan/volscan/internal/core/store"
	"github.com/volscan/volscan/internal/observability"
	"github.com/volscan/volscan/internal/watchlist"
)

// doctorCheck reports one diagnostic line. ok=false marks the run unhealthy.
type doctorCheck struct {
	name string
	run  func(ctx context.Context, cfg *config.Config) (detail string, ok bool)
}

var doctorChecks = []doctorCheck{
	{name: "Go version", run: func(context.Context, *config.Config) (string, bool) {
		v := runtime.Version()
		return v, v >= "go1.23"
	}},
	{name: "Crucible access", run: func(context.Context, *config.Config) (string, bool) {
		v := crucible.GetVersion()
		return fmt.Sprintf("gofulmen %s, crucible %s", v.Gofulmen, v.Crucible), v.Crucible != "" && v.Gofulmen != ""
	}},
	{name: "API base URL", run: func(_ context.Context, cfg *config.Config) (string, bool) {
		if cfg.Client.BaseURL == "" {
			return "not configured (client.base_url or VOLSCAN_API_BASE_URL)", false
		}
		return cfg.Client.BaseURL, true
	}},
	{name: "API token", run: func(_ context.Context, cfg *config.Config) (string, bool) {
		if cfg.Client.Token == "" {
			return "not set (VOLSCAN_API_TOKEN)", false
		}
		return "set", true
	}},
	{name: "Workload profiles", run: func(_ context.Context, cfg *config.Config) (string, bool) {
		return fmt.Sprintf("%d profile(s), %d bucket type(s)", len(cfg.Workloads), len(typeSettings(cfg))), true
	}},
	{name: "FRED API key", run: func(_ context.Context, cfg *config.Config) (string, bool) {
		if cfg.FRED.APIKey == "" {
			return "not set (FRED_API_KEY); 'rate' is unavailable", true
		}
		return "set", true
	}},
	{name: "Watchlist", run: func(_ context.Context, cfg *config.Config) (string, bool) {
		entries, err := watchlist.Load(cfg.Watch.File)
		if err != nil {
			return err.Error(), false
		}
		return fmt.Sprintf("%s (%d entries)", cfg.Watch.File, len(entries)), true
	}},
	{name: "Database", run: checkDatabase},
}

func checkDatabase(ctx context.Context, cfg *config.Config) (string, bool) {
	location := cfg.Store.URL
	if location == "" {
		location, _ = filepath.Abs(cfg.Store.Path)
		if info, err := os.Stat(location); err == nil {
			location = fmt.Sprintf("%s (%s)", location, formatFileSize(info.Size()))
		}
	}
	db, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Sprintf("%s: %v", location, err), false
	}
	defer db.Close() //nolint:errcheck

	buckets, err := db.CountBuckets(ctx, store.BucketQuery{All: true})
	if err != nil {
		return fmt.Sprintf("%s: %v", location, err), false
	}
	return fmt.Sprintf("%s, %d stored bucket(s)", location, buckets), true
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Run diagnostic checks on the configuration, store and client setup.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := observability.CLILogger
		log.Info("=== " + GetAppIdentity().BinaryName + " doctor ===")

		cfg, err := loadConfig(ctx)
		if err != nil {
			log.Error("Config load failed", zap.Error(err))
			return err
		}

		if !runDoctorChecks(ctx, log, cfg) {
			log.Warn("Some checks failed. Review the output above for details.")
			return nil
		}
		log.Info("All checks passed.")
		return nil
	},
}

func runDoctorChecks(ctx context.Context, log *logging.Logger, cfg *config.Config) bool {
	healthy := true
	total := len(doctorChecks)
	for i, check := range doctorChecks {
		detail, ok := check.run(ctx, cfg)
		line := fmt.Sprintf("[%d/%d] %s... %s", i+1, total, check.name, detail)
		if ok {
			log.Info("✅ " + line)
			continue
		}
		healthy = false
		log.Warn("⚠️  " + line)
	}
	return healthy
}

var doctorInitForce bool

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}
		if _, err := os.Stat(configPath); err == nil && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}
		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		if err := os.WriteFile(configPath, []byte(starterConfig), 0600); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}
		observability.CLILogger.Info("Config initialized", zap.String("path", configPath))
		return nil
	},
}

var doctorValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config file and workload profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		var problems []string
		for name, profile := range cfg.Workloads {
			if _, err := profile.Build(name); err != nil {
				problems = append(problems, err.Error())
			}
		}
		if len(problems) > 0 {
			return fmt.Errorf("invalid workload profiles:\n  %s", strings.Join(problems, "\n  "))
		}
		observability.CLILogger.Info("Config is valid", zap.Int("workloads", len(cfg.Workloads)))
		return nil
	},
}

const starterConfig = `# volscan config - created by 'volscan doctor init'
client:
  base_url: https://api.tradier.com
  # token: set VOLSCAN_API_TOKEN instead of storing it here
workloads:
  quotes:
    path: /v1/markets/quotes?symbols=SPY
    headers:
      Accept: application/json
  chains:
    path: /v1/markets/options/chains?symbol=SPY&expiration=2026-12-18&greeks=true
    headers:
      Accept: application/json
  orders:
    method: POST
    path: /v1/accounts/ACCOUNT_ID/orders
    payload: json
    special: true
    spacing: 1s
fred:
  series: SOFR
watch:
  file: watchlist.json
  workload_type: chains
  interval: 1m
  rate: 2
`

// formatFileSize returns a human-readable file size
func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.AddCommand(doctorInitCmd)
	doctorCmd.AddCommand(doctorValidateCmd)

	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "overwrite existing config file")
}
