package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorkloadHeadersKeepInsertionOrder(t *testing.T) {
	w := Workload{Type: "quotes", Method: MethodGet}
	w.SetHeader("X-First", "1")
	w.SetHeader("X-Second", "2")
	w.SetHeader("x-first", "one")
	w.DefaultHeader("X-Second", "ignored")
	w.DefaultHeader("X-Third", "3")

	require.Equal(t, []Header{
		{Key: "X-First", Value: "one"},
		{Key: "X-Second", Value: "2"},
		{Key: "X-Third", Value: "3"},
	}, w.Headers)

	value, ok := w.Header("x-third")
	require.True(t, ok)
	require.Equal(t, "3", value)
}

func TestWorkloadCloneIsIndependent(t *testing.T) {
	w := Workload{Type: "orders", Method: MethodPost, Body: []byte(`{"a":1}`)}
	w.SetHeader("X-Trace", "a")

	clone := w.Clone()
	clone.Body[0] = '['
	clone.SetHeader("X-Trace", "b")

	require.Equal(t, byte('{'), w.Body[0])
	value, _ := w.Header("X-Trace")
	require.Equal(t, "a", value)
}

func TestWorkloadValidate(t *testing.T) {
	require.NoError(t, Workload{Type: "quotes", Method: MethodGet, Path: "/v1/quotes"}.Validate())
	require.Error(t, Workload{Method: MethodGet}.Validate())
	require.Error(t, Workload{Type: "quotes", Method: "TRACE"}.Validate())
	require.Error(t, Workload{Type: "quotes", Method: MethodGet, Path: "v1"}.Validate())
	require.Error(t, Workload{Type: "quotes", Method: MethodGet, Body: []byte("x")}.Validate())
}

func TestWorkloadDescribe(t *testing.T) {
	w := Workload{Method: MethodDelete, BaseURL: "https://api.example.com", Path: "/v1/orders/9", Label: "cancel"}
	require.Equal(t, "DELETE https://api.example.com/v1/orders/9 (cancel)", w.Describe())
}

func TestWorkloadURLMasksSecrets(t *testing.T) {
	w := Workload{
		Method:  MethodGet,
		BaseURL: "https://api.stlouisfed.org",
		Path:    "/fred/series/observations?series_id=SOFR&api_key=SECRETKEY123&file_type=json",
	}
	require.Equal(t, "https://api.stlouisfed.org/fred/series/observations?series_id=SOFR&api_key=REDACTED&file_type=json", w.URL())
	require.NotContains(t, w.Describe(), "SECRETKEY123")
	require.Contains(t, w.Path, "SECRETKEY123")
}

func TestRedactPath(t *testing.T) {
	cases := map[string]string{
		"/v1/quotes":                     "/v1/quotes",
		"/v1/quotes?symbol=SPY":          "/v1/quotes?symbol=SPY",
		"/x?Access_Token=abc&symbol=SPY": "/x?Access_Token=REDACTED&symbol=SPY",
		"/x?api%5Fkey=abc":               "/x?api%5Fkey=REDACTED",
		"/x?token":                       "/x?token",
		"/x?":                            "/x?",
	}
	for in, want := range cases {
		require.Equal(t, want, RedactPath(in), in)
	}
}

func TestPayloadKindContentType(t *testing.T) {
	kind, err := ParsePayloadKind("multipart")
	require.NoError(t, err)
	require.Equal(t, "multipart/form-data; boundary=boundary25", kind.ContentType())
	require.Equal(t, "application/json", PayloadJSON.ContentType())
	require.Empty(t, PayloadNone.ContentType())

	_, err = ParsePayloadKind("xml")
	require.Error(t, err)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("patch")
	require.NoError(t, err)
	require.Equal(t, MethodPatch, m)
	require.True(t, m.Mutating())

	m, err = ParseMethod("")
	require.NoError(t, err)
	require.Equal(t, MethodGet, m)
	require.False(t, m.Mutating())
}

func TestErrorTaxonomy(t *testing.T) {
	var err error = &AccessTimeoutError{Type: "quotes", Waited: 25 * time.Second}
	require.True(t, errors.Is(err, ErrEndpointAccessTimeout))

	cause := errors.New("connection refused")
	err = &TransportError{Op: "connect", Attempts: 3, Err: cause}
	require.True(t, errors.Is(err, ErrTransport))
	require.True(t, errors.Is(err, cause))

	err = &HTTPError{Status: 404, Request: "GET https://api.example.com/x", Body: []byte(`{"message":"nope"}`)}
	require.True(t, errors.Is(err, ErrHTTPStatus))
	require.Contains(t, err.Error(), "Code: 404, message: The resource at the location specified doesn't exist")

	err = &RateLimitedError{Type: "quotes", Attempts: 6}
	require.True(t, errors.Is(err, ErrRateLimited))
	require.True(t, errors.Is(&ProtocolError{Reason: "bad status"}, ErrProtocol))
}

func TestStatusLabelUnknown(t *testing.T) {
	require.Equal(t, "Code: 418, message: unrecognized status", StatusLabel(418))
	require.True(t, IsSuccessStatus(204))
	require.False(t, IsSuccessStatus(302))
}
