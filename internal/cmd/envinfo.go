package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"

	"github.com/volscan/volscan/internal/config"
	"github.com/volscan/volscan/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration, and version information. Secrets are reported as set or not set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := observability.CLILogger
		version := crucible.GetVersion()
		identity := GetAppIdentity()

		section := func(title string, rows ...string) {
			log.Info(title + ":")
			for _, row := range rows {
				log.Info("  " + row)
			}
			log.Info("")
		}

		section("Application",
			"Name:       "+identity.BinaryName,
			"Version:    "+versionInfo.Version,
			"Commit:     "+versionInfo.Commit,
			"Built:      "+versionInfo.BuildDate,
		)
		section("SSOT",
			"Gofulmen:   "+version.Gofulmen,
			"Crucible:   "+version.Crucible,
		)
		section("Runtime",
			"Go Version: "+runtime.Version(),
			"GOOS:       "+runtime.GOOS,
			"GOARCH:     "+runtime.GOARCH,
			fmt.Sprintf("NumCPU:     %d", runtime.NumCPU()),
		)

		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}

		storeLocation := cfg.Store.Path
		if strings.TrimSpace(cfg.Store.URL) != "" {
			storeLocation = cfg.Store.URL + " (remote)"
		}
		section("Configuration",
			"Config File:    "+config.DefaultConfigPath(),
			fmt.Sprintf("Server:         %s:%d", cfg.Server.Host, cfg.Server.Port),
			"Log Level:      "+cfg.Logging.Level,
			"Store:          "+storeLocation,
			fmt.Sprintf("Metrics:        %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port),
			fmt.Sprintf("Workers:        %d", cfg.Workers),
		)
		section("Client",
			"Base URL:          "+cfg.Client.BaseURL,
			"Token:             "+secretStatus(cfg.Client.Token),
			"Acquire timeout:   "+cfg.Client.AcquireTimeout.String(),
			"Request timeout:   "+cfg.Client.RequestTimeout.String(),
			fmt.Sprintf("Reconnect tries:   %d", cfg.Client.MaxReconnectTries),
			fmt.Sprintf("Redirects:         %d", cfg.Client.MaxRedirects),
			fmt.Sprintf("429 retries:       %d", cfg.Client.MaxRateLimitRetries),
			fmt.Sprintf("Persist buckets:   %t", cfg.Client.PersistBuckets),
			fmt.Sprintf("Journal:           %t (retention %s)", cfg.Client.Journal, cfg.Client.JournalRetention),
		)
		section("FRED",
			"Series:   "+cfg.FRED.Series,
			"API key:  "+secretStatus(cfg.FRED.APIKey),
		)
		section("Watch",
			"File:       "+cfg.Watch.File,
			"Type:       "+cfg.Watch.WorkloadType,
			"Interval:   "+cfg.Watch.Interval.String(),
			fmt.Sprintf("Rate:       %.2f/s", cfg.Watch.Rate),
		)
		return nil
	},
}

func secretStatus(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(not set)"
	}
	return "(set)"
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
