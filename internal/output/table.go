package output

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/volscan/volscan/internal/core"
)

// TableFormatter renders results as an ASCII table, or a Markdown table when
// Markdown is set.
type TableFormatter struct {
	Markdown bool
}

// FormatBuckets renders bucket snapshots as a table.
func (f *TableFormatter) FormatBuckets(buckets []core.BucketSnapshot) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"Type", "Bucket", "Remaining", "Resets", "Mode", "State"})

	for _, b := range buckets {
		mode := "window"
		if b.Special {
			mode = "spaced " + formatDuration(b.Spacing)
		}
		t.AppendRow(table.Row{
			string(b.Type),
			dash(b.BucketID),
			b.Remaining,
			resetLabel(b),
			mode,
			bucketState(b),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", fmt.Sprintf("%d bucket(s)", len(buckets))})
	return f.render(t), nil
}

// FormatExchanges renders journal entries as a table.
func (f *TableFormatter) FormatExchanges(exchanges []core.Exchange) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"Started", "Type", "Request", "Status", "Waited", "Took", "Retries", "Error"})

	failed := 0
	for _, ex := range exchanges {
		if !ex.OK() {
			failed++
		}
		t.AppendRow(table.Row{
			ex.StartedAt.Local().Format(time.DateTime),
			string(ex.Type),
			string(ex.Method) + " " + ex.URL,
			statusCell(ex.Status),
			formatDuration(ex.Waited),
			formatDuration(ex.Duration),
			retriesCell(ex.Reconnects, ex.RateLimitRetries, ex.Redirects),
			dash(ex.Error),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "", fmt.Sprintf("%d/%d failed", failed, len(exchanges))})
	return f.render(t), nil
}

// FormatResults renders executed workloads as a table.
func (f *TableFormatter) FormatResults(rows []ResultRow) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"Label", "Type", "Filters", "Status", "Bytes", "Waited", "Took", "Error"})

	ok := 0
	for _, r := range rows {
		if r.Error == "" && core.IsSuccessStatus(r.Status) {
			ok++
		}
		t.AppendRow(table.Row{
			r.Label,
			r.Type,
			dash(r.Filters),
			statusCell(r.Status),
			r.Bytes,
			formatDuration(r.Waited),
			formatDuration(r.Duration),
			dash(r.Error),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "", fmt.Sprintf("%d/%d ok", ok, len(rows))})
	return f.render(t), nil
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

func (f *TableFormatter) render(t table.Writer) string {
	if f.Markdown {
		return t.RenderMarkdown()
	}
	return t.Render()
}

func resetLabel(b core.BucketSnapshot) string {
	if b.Remaining > 0 || b.ResetAfter <= 0 {
		return "-"
	}
	return b.ReadyAt().Local().Format(time.TimeOnly)
}

func bucketState(b core.BucketSnapshot) string {
	switch {
	case b.Held:
		return "held"
	case b.MustWait:
		return "must wait"
	case b.Remaining <= 0:
		return "exhausted"
	default:
		return "ready"
	}
}

func statusCell(status int) string {
	if status == 0 {
		return "-"
	}
	return strconv.Itoa(status)
}

func retriesCell(reconnects, rateLimited, redirects int) string {
	if reconnects == 0 && rateLimited == 0 && redirects == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d/%d", reconnects, rateLimited, redirects)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Millisecond).String()
}

func dash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
