// Package fred looks up the risk-free rate from the FRED observations API.
package fred

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/volscan/volscan/internal/core"
)

const (
	DefaultBaseURL      = "https://api.stlouisfed.org"
	DefaultSeries       = "SOFR"
	DefaultWorkloadType = core.WorkloadType("fred")

	observationsPath = "/fred/series/observations"
)

var (
	ErrMissingAPIKey = errors.New("fred api key is required")
	ErrNoObservation = errors.New("no numeric observation")
)

// Executor runs a workload through the rate-limited client.
type Executor interface {
	Execute(ctx context.Context, w core.Workload) (*core.Response, error)
}

// Options configures a Client.
type Options struct {
	BaseURL      string
	APIKey       string
	Series       string
	WorkloadType core.WorkloadType
}

// Client fetches observations for one series.
type Client struct {
	exec Executor
	opts Options
}

// Rate is the latest observation of a series.
type Rate struct {
	Series  string  `json:"series"`
	Date    string  `json:"date"`
	Percent float64 `json:"percent"`
	// Value is Percent as a fraction, ready for pricing models.
	Value float64 `json:"value"`
}

func NewClient(exec Executor, opts Options) *Client {
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if strings.TrimSpace(opts.Series) == "" {
		opts.Series = DefaultSeries
	}
	opts.Series = strings.ToUpper(strings.TrimSpace(opts.Series))
	if opts.WorkloadType == "" {
		opts.WorkloadType = DefaultWorkloadType
	}
	return &Client{exec: exec, opts: opts}
}

// Workload returns the observations request for the configured series.
func (c *Client) Workload() core.Workload {
	query := url.Values{}
	query.Set("series_id", c.opts.Series)
	query.Set("api_key", c.opts.APIKey)
	query.Set("file_type", "json")
	return core.Workload{
		Type:    c.opts.WorkloadType,
		Method:  core.MethodGet,
		BaseURL: c.opts.BaseURL,
		Path:    observationsPath + "?" + query.Encode(),
		Label:   "fred " + c.opts.Series,
	}
}

// RiskFreeRate returns the most recent numeric observation. FRED reports
// missing values as ".", which are skipped.
func (c *Client) RiskFreeRate(ctx context.Context) (Rate, error) {
	if strings.TrimSpace(c.opts.APIKey) == "" {
		return Rate{}, ErrMissingAPIKey
	}
	resp, err := c.exec.Execute(ctx, c.Workload())
	if err != nil {
		return Rate{}, fmt.Errorf("fetch %s observations: %w", c.opts.Series, err)
	}
	return ParseObservations(c.opts.Series, resp.Body)
}

type observationsResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// ParseObservations extracts the latest numeric observation from a FRED
// observations document.
func ParseObservations(series string, body []byte) (Rate, error) {
	var doc observationsResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		return Rate{}, fmt.Errorf("decode %s observations: %w", series, err)
	}
	for i := len(doc.Observations) - 1; i >= 0; i-- {
		obs := doc.Observations[i]
		percent, err := strconv.ParseFloat(strings.TrimSpace(obs.Value), 64)
		if err != nil {
			continue
		}
		return Rate{
			Series:  series,
			Date:    obs.Date,
			Percent: percent,
			Value:   percent / 100,
		}, nil
	}
	return Rate{}, fmt.Errorf("%s: %w", series, ErrNoObservation)
}
