package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volscan/volscan/internal/core"
	"github.com/volscan/volscan/internal/output"
)

func newRequestTestCmd(t *testing.T, args ...string) (*cobra.Command, *requestFlags) {
	t.Helper()
	f := &requestFlags{}
	cmd := &cobra.Command{Use: "request"}
	bindRequestFlags(cmd, f)
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd, f
}

func profiles(name string) (core.Workload, error) {
	if name != "quotes" {
		return core.Workload{}, fmt.Errorf("unknown workload profile: %s", name)
	}
	w := core.Workload{Type: "quotes", Method: core.MethodGet, Path: "/v1/markets/quotes?symbols=SPY", Label: "quotes"}
	w.SetHeader("Accept", "application/json")
	return w, nil
}

func TestParseHeaderFlag(t *testing.T) {
	key, value, err := parseHeaderFlag("Accept=application/json")
	require.NoError(t, err)
	assert.Equal(t, "Accept", key)
	assert.Equal(t, "application/json", value)

	key, value, err = parseHeaderFlag("X-Trace: a=b")
	require.NoError(t, err)
	assert.Equal(t, "X-Trace", key)
	assert.Equal(t, "a=b", value)

	for _, raw := range []string{"novalue", "=x", " : x"} {
		_, _, err := parseHeaderFlag(raw)
		assert.Error(t, err, raw)
	}
}

func TestRequestWorkloadFromFlags(t *testing.T) {
	cmd, f := newRequestTestCmd(t, "--type", "orders", "--method", "post", "--path", "/v1/orders",
		"--data", `{"symbol":"SPY"}`, "-H", "X-Client=volscan")

	w, err := f.workload(cmd, profiles, nil)
	require.NoError(t, err)
	assert.Equal(t, core.WorkloadType("orders"), w.Type)
	assert.Equal(t, core.MethodPost, w.Method)
	assert.Equal(t, "/v1/orders", w.Path)
	assert.Equal(t, core.PayloadJSON, w.Payload)
	assert.Equal(t, `{"symbol":"SPY"}`, string(w.Body))
	assert.Equal(t, "POST /v1/orders", w.Label)
	client, ok := w.Header("x-client")
	assert.True(t, ok)
	assert.Equal(t, "volscan", client)
}

func TestRequestLabelMasksQuerySecrets(t *testing.T) {
	cmd, f := newRequestTestCmd(t, "--type", "quotes", "--path", "/v1/quotes?symbols=SPY&token=hunter2")

	w, err := f.workload(cmd, profiles, nil)
	require.NoError(t, err)
	assert.Equal(t, "GET /v1/quotes?symbols=SPY&token=REDACTED", w.Label)
	assert.Contains(t, w.Path, "token=hunter2")
}

func TestRequestWorkloadOverridesProfile(t *testing.T) {
	cmd, f := newRequestTestCmd(t, "--profile", "quotes", "--path", "/v1/markets/quotes?symbols=QQQ",
		"--base-url", "https://sandbox.example.com/")

	w, err := f.workload(cmd, profiles, nil)
	require.NoError(t, err)
	assert.Equal(t, core.WorkloadType("quotes"), w.Type)
	assert.Equal(t, core.MethodGet, w.Method)
	assert.Equal(t, "/v1/markets/quotes?symbols=QQQ", w.Path)
	assert.Equal(t, "https://sandbox.example.com", w.BaseURL)
	assert.Equal(t, "quotes", w.Label)
	_, ok := w.Header("Accept")
	assert.True(t, ok)
}

func TestRequestWorkloadErrors(t *testing.T) {
	cmd, f := newRequestTestCmd(t, "--path", "/x")
	_, err := f.workload(cmd, profiles, nil)
	require.ErrorContains(t, err, "--type")

	cmd, f = newRequestTestCmd(t, "--type", "quotes")
	_, err = f.workload(cmd, profiles, nil)
	require.ErrorContains(t, err, "--path")

	cmd, f = newRequestTestCmd(t, "--profile", "missing")
	_, err = f.workload(cmd, profiles, nil)
	require.ErrorContains(t, err, "unknown workload profile")

	cmd, f = newRequestTestCmd(t, "--type", "quotes", "--path", "/x", "--method", "TRACE")
	_, err = f.workload(cmd, profiles, nil)
	require.Error(t, err)
}

func TestRequestBodySources(t *testing.T) {
	cmd, f := newRequestTestCmd(t, "--type", "uploads", "--path", "/v1/files", "--data-file", "-", "--multipart")
	w, err := f.workload(cmd, profiles, strings.NewReader("from stdin"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", string(w.Body))
	assert.Equal(t, core.PayloadMultipart, w.Payload)

	path := filepath.Join(t.TempDir(), "body.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a":1}`), 0o600))
	body, err := requestFlags{dataFile: path}.body(nil)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(body))

	_, err = requestFlags{data: "x", dataFile: path}.body(nil)
	require.ErrorContains(t, err, "mutually exclusive")

	body, err = requestFlags{}.body(nil)
	require.NoError(t, err)
	assert.Nil(t, body)
}

func TestWriteResponse(t *testing.T) {
	w := core.Workload{Type: "quotes", Label: "quotes"}
	resp := &core.Response{Status: 200, Headers: map[string]string{"x-ratelimit-remaining": "9"}, Body: []byte(`{"ok":true}`)}

	var table bytes.Buffer
	require.NoError(t, writeResponse(&table, output.FormatTable, w, resp))
	assert.Contains(t, table.String(), "Code: 200")
	assert.Contains(t, table.String(), "\"ok\": true")

	var js bytes.Buffer
	require.NoError(t, writeResponse(&js, output.FormatJSON, w, resp))
	assert.Contains(t, js.String(), `"workload_type": "quotes"`)
	assert.Contains(t, js.String(), `"status": 200`)
	assert.Contains(t, js.String(), `"ok": true`)

	js.Reset()
	resp.Body = []byte("not json")
	require.NoError(t, writeResponse(&js, output.FormatJSON, w, resp))
	assert.Contains(t, js.String(), `"text": "not json"`)
}
