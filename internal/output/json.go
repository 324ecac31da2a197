package output

import (
	"encoding/json"

	"github.com/volscan/volscan/internal/core"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatBuckets renders bucket snapshots as a JSON array.
func (f *JSONFormatter) FormatBuckets(buckets []core.BucketSnapshot) (string, error) {
	return f.marshal(nonNil(buckets))
}

// FormatExchanges renders journal entries as a JSON array.
func (f *JSONFormatter) FormatExchanges(exchanges []core.Exchange) (string, error) {
	return f.marshal(nonNil(exchanges))
}

// FormatResults renders executed workloads as a JSON array.
func (f *JSONFormatter) FormatResults(rows []ResultRow) (string, error) {
	return f.marshal(nonNil(rows))
}

func (f *JSONFormatter) marshal(value any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(value, "", "  ")
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
