package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/volscan/volscan/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ResultRow is one executed workload as shown by the watch and request
// commands.
type ResultRow struct {
	Label      string        `json:"label"`
	Type       string        `json:"workload_type"`
	Filters    string        `json:"filters,omitempty"`
	Status     int           `json:"status"`
	Bytes      int           `json:"bytes"`
	Waited     time.Duration `json:"waited"`
	Duration   time.Duration `json:"duration"`
	Reconnects int           `json:"reconnects,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Formatter renders client state.
type Formatter interface {
	FormatBuckets(buckets []core.BucketSnapshot) (string, error)
	FormatExchanges(exchanges []core.Exchange) (string, error)
	FormatResults(rows []ResultRow) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &TableFormatter{Markdown: true}
	default:
		return &TableFormatter{}
	}
}
