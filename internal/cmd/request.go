package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/volscan/volscan/internal/config"
	"github.com/volscan/volscan/internal/core"
	errwrap "github.com/volscan/volscan/internal/errors"
	"github.com/volscan/volscan/internal/observability"
	"github.com/volscan/volscan/internal/output"
)

// requestFlags holds the ad-hoc workload flags of the request command.
type requestFlags struct {
	profile   string
	typ       string
	method    string
	path      string
	baseURL   string
	headers   []string
	data      string
	dataFile  string
	multipart bool
}

var reqFlags requestFlags

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Execute one workload through the rate-limited client",
	Long: `Execute a named workload profile or an ad-hoc request.

Flags given alongside --profile override the profile's values.

Examples:
  volscan request --profile quotes
  volscan request --type orders --method POST --path /v1/accounts/X/orders --data '{"symbol":"SPY"}'
  volscan request --type quotes --path "/v1/markets/quotes?symbols=SPY" --header Accept=application/json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(ctx)
		if err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "config load failed")
		}

		workload, err := reqFlags.workload(cmd, cfg.Workload, cmd.InOrStdin())
		if err != nil {
			return errwrap.WrapInvalidInput(ctx, err, "invalid request")
		}

		rt, err := newClientRuntime(ctx, cfg, runtimeOptions{})
		if err != nil {
			return errwrap.WrapDatabaseError(ctx, err, "client initialization failed")
		}
		defer func() { _ = rt.Close() }()

		resp, execErr := rt.Execute(ctx, workload)
		if resp != nil {
			if err := writeResponse(cmd.OutOrStdout(), format, workload, resp); err != nil {
				return err
			}
		}
		if execErr != nil {
			observability.Active(config.AppName).Debug("Request failed",
				zap.String("workload_type", string(workload.Type)), zap.Error(execErr))
			return errwrap.FromClientError(ctx, execErr)
		}
		return nil
	},
}

// workload builds the request from a profile and the flags that were set.
func (f requestFlags) workload(cmd *cobra.Command, lookup func(string) (core.Workload, error), stdin io.Reader) (core.Workload, error) {
	var w core.Workload
	if name := strings.TrimSpace(f.profile); name != "" {
		profile, err := lookup(name)
		if err != nil {
			return core.Workload{}, err
		}
		w = profile
	}
	changed := func(name string) bool { return cmd.Flags().Changed(name) }

	if changed("type") || w.Type == "" {
		w.Type = core.WorkloadType(strings.TrimSpace(f.typ))
	}
	if changed("method") || w.Method == "" {
		method, err := core.ParseMethod(f.method)
		if err != nil {
			return core.Workload{}, err
		}
		w.Method = method
	}
	if changed("path") || w.Path == "" {
		w.Path = strings.TrimSpace(f.path)
	}
	if changed("base-url") {
		w.BaseURL = strings.TrimRight(strings.TrimSpace(f.baseURL), "/")
	}
	for _, raw := range f.headers {
		key, value, err := parseHeaderFlag(raw)
		if err != nil {
			return core.Workload{}, err
		}
		w.SetHeader(key, value)
	}

	body, err := f.body(stdin)
	if err != nil {
		return core.Workload{}, err
	}
	if body != nil {
		w.Body = body
		if w.Payload == core.PayloadNone {
			w.Payload = core.PayloadJSON
		}
	}
	if f.multipart {
		w.Payload = core.PayloadMultipart
	}
	if w.Label == "" {
		w.Label = fmt.Sprintf("%s %s", w.Method, core.RedactPath(w.Path))
	}

	if w.Type == "" {
		return core.Workload{}, fmt.Errorf("--type or --profile is required")
	}
	if w.Path == "" {
		return core.Workload{}, fmt.Errorf("--path or --profile is required")
	}
	return w, nil
}

// body returns the request body from --data or --data-file. "-" reads stdin.
func (f requestFlags) body(stdin io.Reader) ([]byte, error) {
	data := f.data
	file := strings.TrimSpace(f.dataFile)
	switch {
	case data != "" && file != "":
		return nil, fmt.Errorf("--data and --data-file are mutually exclusive")
	case data != "":
		return []byte(data), nil
	case file == "-":
		return io.ReadAll(stdin)
	case file != "":
		return os.ReadFile(file)
	default:
		return nil, nil
	}
}

// parseHeaderFlag splits "Key=Value" or "Key: Value".
func parseHeaderFlag(raw string) (string, string, error) {
	sep := strings.IndexAny(raw, "=:")
	if sep <= 0 {
		return "", "", fmt.Errorf("invalid header %q (expected key=value)", raw)
	}
	key := strings.TrimSpace(raw[:sep])
	if key == "" {
		return "", "", fmt.Errorf("invalid header %q (empty key)", raw)
	}
	return key, strings.TrimSpace(raw[sep+1:]), nil
}

type responseOutput struct {
	Type    core.WorkloadType `json:"workload_type"`
	Label   string            `json:"label,omitempty"`
	Status  int               `json:"status"`
	Message string            `json:"message,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
	Text    string            `json:"text,omitempty"`
}

func writeResponse(w io.Writer, format output.Format, workload core.Workload, resp *core.Response) error {
	if format == output.FormatJSON {
		out := responseOutput{
			Type:    workload.Type,
			Label:   workload.Label,
			Status:  resp.Status,
			Message: core.StatusMessage(resp.Status),
			Headers: resp.Headers,
		}
		if json.Valid(resp.Body) {
			out.Body = json.RawMessage(resp.Body)
		} else if len(resp.Body) > 0 {
			out.Text = string(resp.Body)
		}
		payload, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	if _, err := fmt.Fprintf(w, "%s\n", core.StatusLabel(resp.Status)); err != nil {
		return err
	}
	if len(resp.Body) == 0 {
		return nil
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, resp.Body, "", "  ") == nil {
		_, err := fmt.Fprintln(w, pretty.String())
		return err
	}
	_, err := fmt.Fprintln(w, string(resp.Body))
	return err
}

func init() {
	rootCmd.AddCommand(requestCmd)
	bindRequestFlags(requestCmd, &reqFlags)
}

func bindRequestFlags(cmd *cobra.Command, f *requestFlags) {
	cmd.Flags().StringVar(&f.profile, "profile", "", "workload profile from the workloads config section")
	cmd.Flags().StringVar(&f.typ, "type", "", "workload type (rate-limit bucket)")
	cmd.Flags().StringVar(&f.method, "method", "GET", "HTTP method: GET|PUT|POST|PATCH|DELETE")
	cmd.Flags().StringVar(&f.path, "path", "", "request path and query")
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "override client.base_url for this request")
	cmd.Flags().StringArrayVarP(&f.headers, "header", "H", nil, "request header key=value (repeatable)")
	cmd.Flags().StringVar(&f.data, "data", "", "request body")
	cmd.Flags().StringVar(&f.dataFile, "data-file", "", "read the request body from a file (- for stdin)")
	cmd.Flags().BoolVar(&f.multipart, "multipart", false, "send the body as multipart/form-data")
	cmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json")
}
