package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/volscan/volscan/internal/core"
)

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("md")
	require.NoError(t, err)
	require.Equal(t, FormatMarkdown, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func sampleBuckets() []core.BucketSnapshot {
	return []core.BucketSnapshot{
		{Type: "chains", BucketID: "c-1", Remaining: 0, ResetAfter: 2 * time.Second, SampledAt: time.Now(), MustWait: true},
		{Type: "quotes", Remaining: 9, Special: true, Spacing: time.Second},
	}
}

func sampleExchanges() []core.Exchange {
	return []core.Exchange{
		{ID: "a", Type: "quotes", Method: core.MethodGet, URL: "https://api.example.com/v1/quotes", Status: 200, Duration: 42 * time.Millisecond},
		{ID: "b", Type: "chains", Method: core.MethodGet, URL: "https://api.example.com/v1/chains", Reconnects: 3, Error: "transport failure"},
	}
}

func TestTableFormatter(t *testing.T) {
	f := NewFormatter(FormatTable)

	rendered, err := f.FormatBuckets(sampleBuckets())
	require.NoError(t, err)
	require.Contains(t, rendered, "chains")
	require.Contains(t, rendered, "must wait")
	require.Contains(t, rendered, "spaced 1s")
	require.Contains(t, rendered, "2 bucket(s)")

	rendered, err = f.FormatExchanges(sampleExchanges())
	require.NoError(t, err)
	require.Contains(t, rendered, "GET https://api.example.com/v1/quotes")
	require.Contains(t, rendered, "3/0/0")
	require.Contains(t, rendered, "1/2 failed")

	rendered, err = f.FormatResults([]ResultRow{
		{Label: "SPY 2026-03-20 calls", Type: "chains", Filters: "oi>=100", Status: 200, Bytes: 1024},
		{Label: "QQQ 2026-03-20 puts", Type: "chains", Error: "rate limited"},
	})
	require.NoError(t, err)
	require.Contains(t, rendered, "SPY 2026-03-20 calls")
	require.Contains(t, rendered, "oi>=100")
	require.Contains(t, rendered, "1/2 ok")
}

func TestMarkdownFormatter(t *testing.T) {
	rendered, err := NewFormatter(FormatMarkdown).FormatBuckets(sampleBuckets())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(rendered, "| Type |"), rendered)
	require.Contains(t, rendered, "| quotes |")
}

func TestJSONFormatter(t *testing.T) {
	f := NewFormatter(FormatJSON)

	rendered, err := f.FormatExchanges(sampleExchanges())
	require.NoError(t, err)
	var decoded []core.Exchange
	require.NoError(t, json.Unmarshal([]byte(rendered), &decoded))
	require.Len(t, decoded, 2)
	require.Equal(t, "transport failure", decoded[1].Error)

	rendered, err = f.FormatBuckets(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", rendered)
}
