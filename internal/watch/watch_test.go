package watch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volscan/volscan/internal/core"
	"github.com/volscan/volscan/internal/watchlist"
)

type fakeExecutor struct {
	mu      sync.Mutex
	paths   []string
	tracker *Tracker
	fail    map[string]error
}

func (f *fakeExecutor) Execute(_ context.Context, w core.Workload) (*core.Response, error) {
	f.mu.Lock()
	f.paths = append(f.paths, w.Path)
	f.mu.Unlock()

	if f.tracker != nil {
		f.tracker.Completed(core.Exchange{Label: w.Label, Waited: 40 * time.Millisecond, Reconnects: 1}, core.BucketSnapshot{})
	}
	for ticker, err := range f.fail {
		if strings.Contains(w.Path, ticker) {
			return &core.Response{Status: 502}, err
		}
	}
	return &core.Response{Status: 200, Body: []byte(`{"options":{}}`)}, nil
}

func entries() []watchlist.Entry {
	return []watchlist.Entry{
		{Ticker: "SPY", Date: "2026-11-20", OptionType: watchlist.Calls, MinOI: 100},
		{Ticker: "QQQ", Date: "2026-11-20", OptionType: watchlist.Puts},
		{Ticker: "IWM", Date: "2026-12-18", OptionType: watchlist.Calls},
	}
}

func baseOptions() Options {
	return Options{
		WorkloadType: "chains",
		PathTemplate: "/v1/markets/options/chains?symbol={ticker}&expiration={date}",
		Workers:      2,
	}
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, entries(), baseOptions())
	require.Error(t, err)

	_, err = New(&fakeExecutor{}, nil, baseOptions())
	require.Error(t, err)

	opts := baseOptions()
	opts.PathTemplate = ""
	_, err = New(&fakeExecutor{}, entries(), opts)
	require.Error(t, err)
}

func TestWorkloadExpandsTemplate(t *testing.T) {
	w, err := New(&fakeExecutor{}, entries(), baseOptions())
	require.NoError(t, err)

	workload := w.Workload(entries()[0])
	assert.Equal(t, core.WorkloadType("chains"), workload.Type)
	assert.Equal(t, core.MethodGet, workload.Method)
	assert.Equal(t, "/v1/markets/options/chains?symbol=SPY&expiration=2026-11-20", workload.Path)
	assert.Equal(t, "SPY 2026-11-20 calls", workload.Label)
}

func TestRunOnceReportsEveryEntryInOrder(t *testing.T) {
	exec := &fakeExecutor{fail: map[string]error{"QQQ": errors.New("bad gateway")}}
	w, err := New(exec, entries(), baseOptions())
	require.NoError(t, err)

	cycle := w.RunOnce(context.Background())
	require.False(t, cycle.Skipped)
	require.Len(t, cycle.Rows, 3)
	assert.Equal(t, "SPY 2026-11-20 calls", cycle.Rows[0].Label)
	assert.Equal(t, "QQQ 2026-11-20 puts", cycle.Rows[1].Label)
	assert.Equal(t, "IWM 2026-12-18 calls", cycle.Rows[2].Label)
	assert.Equal(t, "oi>=100", cycle.Rows[0].Filters)
	assert.Empty(t, cycle.Rows[1].Filters)

	assert.Equal(t, 200, cycle.Rows[0].Status)
	assert.Equal(t, len(`{"options":{}}`), cycle.Rows[0].Bytes)
	assert.Empty(t, cycle.Rows[0].Error)
	assert.Equal(t, 502, cycle.Rows[1].Status)
	assert.Equal(t, "bad gateway", cycle.Rows[1].Error)
	assert.Len(t, exec.paths, 3)
}

func TestRunOnceUsesTrackerDetails(t *testing.T) {
	tracker := NewTracker()
	exec := &fakeExecutor{tracker: tracker}
	opts := baseOptions()
	opts.Tracker = tracker
	w, err := New(exec, entries()[:1], opts)
	require.NoError(t, err)

	cycle := w.RunOnce(context.Background())
	require.Len(t, cycle.Rows, 1)
	assert.Equal(t, 40*time.Millisecond, cycle.Rows[0].Waited)
	assert.Equal(t, 1, cycle.Rows[0].Reconnects)

	_, ok := tracker.take("SPY 2026-11-20 calls")
	assert.False(t, ok, "rows consume tracked exchanges")
}

func TestRunOnceCanceledContextSkipsRequests(t *testing.T) {
	exec := &fakeExecutor{}
	opts := baseOptions()
	opts.Rate = 1
	w, err := New(exec, entries(), opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cycle := w.RunOnce(ctx)
	require.Len(t, cycle.Rows, 3)
	for _, row := range cycle.Rows {
		assert.NotEmpty(t, row.Error)
	}
	assert.Empty(t, exec.paths)
}

func TestRunSkipsOutsideMarketHours(t *testing.T) {
	exec := &fakeExecutor{}
	opts := baseOptions()
	opts.MarketHoursOnly = true
	// Saturday.
	opts.Now = func() time.Time { return time.Date(2026, 10, 17, 15, 0, 0, 0, time.UTC) }
	w, err := New(exec, entries(), opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var cycles []Cycle
	err = w.Run(ctx, func(c Cycle) {
		cycles = append(cycles, c)
		cancel()
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, cycles, 1)
	assert.True(t, cycles[0].Skipped)
	assert.Empty(t, exec.paths)
}

func TestRunPollsDuringMarketHours(t *testing.T) {
	exec := &fakeExecutor{}
	opts := baseOptions()
	opts.MarketHoursOnly = true
	opts.Interval = time.Millisecond
	// Monday 11:00 New York.
	opts.Now = func() time.Time { return time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC) }
	w, err := New(exec, entries(), opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	count := 0
	err = w.Run(ctx, func(c Cycle) {
		require.False(t, c.Skipped)
		count++
		if count == 2 {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, count)
	assert.Len(t, exec.paths, 6)
}
