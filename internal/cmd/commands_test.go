package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volscan/volscan/internal/config"
	"github.com/volscan/volscan/internal/core"
	"github.com/volscan/volscan/internal/core/store"
	errwrap "github.com/volscan/volscan/internal/errors"
	"github.com/volscan/volscan/internal/fred"
	"github.com/volscan/volscan/internal/output"
	"github.com/volscan/volscan/internal/watch"
)

func TestExitCodeFor(t *testing.T) {
	ctx := context.Background()

	limited := errwrap.FromClientError(ctx, &core.RateLimitedError{Type: "quotes", Attempts: 6})
	assert.Equal(t, foundry.ExitExternalServiceUnavailable, ExitCodeFor(limited))

	wrapped := fmt.Errorf("rate: %w", errwrap.WrapTimeout(ctx, errors.New("slow"), "timed out"))
	assert.Equal(t, foundry.ExitExternalServiceUnavailable, ExitCodeFor(wrapped))

	assert.Equal(t, foundry.ExitConfigInvalid, ExitCodeFor(errwrap.NewConfigInvalidError("bad")))
	assert.Equal(t, foundry.ExitConfigInvalid, ExitCodeFor(errwrap.WrapInvalidInput(ctx, errors.New("x"), "bad flag")))
	assert.Equal(t, foundry.ExitFailure, ExitCodeFor(errwrap.NewInternalError("boom")))
	assert.Equal(t, foundry.ExitFailure, ExitCodeFor(errors.New("plain")))
}

func TestExitWithCodeStderrUsesFoundryCode(t *testing.T) {
	var got int
	original := osExit
	osExit = func(code int) { got = code }
	t.Cleanup(func() { osExit = original })

	ExitWithCodeStderr(foundry.ExitConfigInvalid, "bad config", errwrap.NewConfigInvalidError("missing base_url"))

	info, ok := foundry.GetExitCodeInfo(foundry.ExitConfigInvalid)
	require.True(t, ok)
	assert.Equal(t, info.Code, got)
}

func TestWriteVersion(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2026-10-01")
	t.Cleanup(func() { SetVersionInfo("", "", "") })

	var short bytes.Buffer
	writeVersion(&short, false)
	assert.Equal(t, "volscan 1.2.3\n", short.String())

	var long bytes.Buffer
	writeVersion(&long, true)
	assert.Contains(t, long.String(), "Commit: abc123")
	assert.Contains(t, long.String(), "Built: 2026-10-01")
	assert.Contains(t, long.String(), "Gofulmen:")
}

func TestWriteRateLimitResetResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRateLimitResetResult(output.FormatTable, &buf, resetResult{Matched: 3, DryRun: true}))
	assert.Equal(t, "Would delete 3 bucket(s)\n", buf.String())

	buf.Reset()
	require.NoError(t, writeRateLimitResetResult(output.FormatTable, &buf, resetResult{Matched: 3, Deleted: 2}))
	assert.Equal(t, "Deleted 2/3 bucket(s)\n", buf.String())

	buf.Reset()
	require.NoError(t, writeRateLimitResetResult(output.FormatJSON, &buf, resetResult{Matched: 1, Deleted: 1}))
	assert.JSONEq(t, `{"matched":1,"deleted":1,"dry_run":false}`, buf.String())
}

func TestResetFlagsQuery(t *testing.T) {
	_, err := resetFlags{}.query()
	require.ErrorIs(t, err, store.ErrEmptyBucketQuery)

	_, err = resetFlags{all: true}.query()
	require.ErrorContains(t, err, "--yes")

	q, err := resetFlags{all: true, dryRun: true}.query()
	require.NoError(t, err)
	assert.True(t, q.All)

	q, err = resetFlags{prefix: " chains "}.query()
	require.NoError(t, err)
	assert.Equal(t, "chains", q.Prefix)
}

func TestWriteRate(t *testing.T) {
	rate := fred.Rate{Series: "SOFR", Date: "2026-10-14", Percent: 4.31, Value: 0.0431}

	var box bytes.Buffer
	require.NoError(t, writeRate(&box, output.FormatTable, rate))
	assert.Contains(t, box.String(), "Series:  SOFR")
	assert.Contains(t, box.String(), "Percent: 4.3100%")

	var js bytes.Buffer
	require.NoError(t, writeRate(&js, output.FormatJSON, rate))
	assert.JSONEq(t, `{"series":"SOFR","date":"2026-10-14","percent":4.31,"value":0.0431}`, js.String())
}

func TestCycleWriter(t *testing.T) {
	var buf bytes.Buffer
	sink := cycleWriter(&buf, output.NewFormatter(output.FormatJSON))

	require.NoError(t, sink(watch.Cycle{Started: time.Now(), Skipped: true}))
	assert.Contains(t, buf.String(), "market closed")

	buf.Reset()
	require.NoError(t, sink(watch.Cycle{
		Started: time.Now(),
		Rows:    []output.ResultRow{{Label: "SPY 2026-12-18 calls", Type: "chains", Status: 200}},
	}))
	assert.Contains(t, buf.String(), `"label": "SPY 2026-12-18 calls"`)
}

func TestNewWatcherRequiresWatchlist(t *testing.T) {
	cfg := &config.Config{Watch: config.WatchConfig{WorkloadType: "chains", PathTemplate: "/v1/chains?symbol={ticker}"}}
	_, err := newWatcher(cfg, nil, nil)
	require.ErrorContains(t, err, "no watchlist")

	path := filepath.Join(t.TempDir(), "watchlist.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"ticker":"spy","date":20261218,"option_type":"calls"}]`), 0o600))
	cfg.Watch.File = path
	cfg.Workers = 2
	w, err := newWatcher(cfg, &replyExecutor{}, watch.NewTracker())
	require.NoError(t, err)
	require.NotNil(t, w)
}

func TestClientHealthChecker(t *testing.T) {
	require.Error(t, clientHealthChecker{}.CheckHealth(context.Background()))
	require.NoError(t, clientHealthChecker{baseURL: "https://api.example.com"}.CheckHealth(context.Background()))
}

func TestWorkloadTypeNames(t *testing.T) {
	assert.Equal(t, []string{"history", "quotes"}, workloadTypeNames(testClientConfig()))
}

func TestSecretStatusAndFileSize(t *testing.T) {
	assert.Equal(t, "(not set)", secretStatus("  "))
	assert.Equal(t, "(set)", secretStatus("key"))

	assert.Equal(t, "512 bytes", formatFileSize(512))
	assert.Equal(t, "1.5 KB", formatFileSize(1536))
	assert.Equal(t, "2.0 MB", formatFileSize(2*1024*1024))
}

type replyExecutor struct{}

func (replyExecutor) Execute(context.Context, core.Workload) (*core.Response, error) {
	return &core.Response{Status: 200}, nil
}

func TestSinkTargetWritesIntoOutDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	cmd := &cobra.Command{Use: "list"}
	cmd.Flags().String("output-format", "json", "")
	cmd.Flags().String("out", "", "")
	cmd.Flags().String("out-dir", dir, "")

	target, err := resolveSinkTarget(cmd)
	require.NoError(t, err)
	sink, err := target.open("rate-limit.list")
	require.NoError(t, err)
	_, err = sink.writer.Write([]byte("[]\n"))
	require.NoError(t, err)
	require.NoError(t, sink.close())

	assert.Equal(t, filepath.Join(dir, "rate-limit.list.json"), sink.path)
	data, err := os.ReadFile(sink.path)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))

	require.NoError(t, cmd.Flags().Set("out", "x.json"))
	_, err = resolveSinkTarget(cmd)
	require.ErrorContains(t, err, "mutually exclusive")
}

func TestSinkTargetWithoutOutDirFlag(t *testing.T) {
	cmd := &cobra.Command{Use: "history"}
	cmd.Flags().String("output-format", "markdown", "")
	cmd.Flags().String("out", "", "")

	target, err := resolveSinkTarget(cmd)
	require.NoError(t, err)
	assert.Equal(t, "md", target.extension())
	sink, err := target.open("history")
	require.NoError(t, err)
	assert.Equal(t, "-", sink.path)
}
