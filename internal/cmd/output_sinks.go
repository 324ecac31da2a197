package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/volscan/volscan/internal/output"
)

// outputSink is stdout or a created file.
type outputSink struct {
	writer io.Writer
	close  func() error
	path   string
}

// sinkTarget is where a report command writes: stdout, the --out file, or a
// file named after the command inside --out-dir.
type sinkTarget struct {
	format output.Format
	file   string
	dir    string
}

func resolveOutputFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("output-format")
	if err != nil {
		return "", err
	}
	return output.ParseFormat(value)
}

// resolveSinkTarget reads --output-format, --out and --out-dir. Commands that
// do not register --out-dir only honour --out.
func resolveSinkTarget(cmd *cobra.Command) (sinkTarget, error) {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return sinkTarget{}, err
	}
	target := sinkTarget{format: format}
	if f := cmd.Flags().Lookup("out"); f != nil {
		target.file = strings.TrimSpace(f.Value.String())
	}
	if f := cmd.Flags().Lookup("out-dir"); f != nil {
		target.dir = strings.TrimSpace(f.Value.String())
	}
	if target.file != "" && target.dir != "" {
		return sinkTarget{}, fmt.Errorf("--out and --out-dir are mutually exclusive")
	}
	return target, nil
}

// open creates the sink. stem names the file written inside --out-dir, for
// example "rate-limit.list" becomes rate-limit.list.json.
func (t sinkTarget) open(stem string) (*outputSink, error) {
	path := t.file
	if t.dir != "" {
		path = filepath.Join(t.dir, stem+"."+t.extension())
	}
	if path == "" || path == "-" {
		return &outputSink{writer: os.Stdout, close: func() error { return nil }, path: "-"}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &outputSink{writer: file, close: file.Close, path: path}, nil
}

func (t sinkTarget) extension() string {
	switch t.format {
	case output.FormatJSON:
		return "json"
	case output.FormatMarkdown:
		return "md"
	default:
		return "txt"
	}
}
