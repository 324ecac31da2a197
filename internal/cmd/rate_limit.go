package cmd

import (
	"github.com/spf13/cobra"

	"github.com/volscan/volscan/internal/core"
	"github.com/volscan/volscan/internal/core/store"
)

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Manage persisted rate limit bucket state",
}

func snapshotsOf(entries []store.BucketEntry) []core.BucketSnapshot {
	out := make([]core.BucketSnapshot, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Snapshot)
	}
	return out
}

func init() {
	rateLimitCmd.AddCommand(rateLimitListCmd)
	rateLimitCmd.AddCommand(rateLimitResetCmd)
	rootCmd.AddCommand(rateLimitCmd)
}
