// Package watchlist loads the option chains to poll and cycles through them.
package watchlist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Option sides accepted in a watchlist.
const (
	Calls = "calls"
	Puts  = "puts"
)

// Entry is one watched option chain. The Min fields are pricing thresholds
// for the consumer of the fetched chain; the poller only reports them.
type Entry struct {
	Ticker         string  `json:"ticker" yaml:"ticker"`
	Date           Date    `json:"date" yaml:"date"`
	OptionType     string  `json:"option_type" yaml:"option_type"`
	MinOverpriced  float64 `json:"min_overpriced,omitempty" yaml:"min_overpriced,omitempty"`
	MinUnderpriced float64 `json:"min_underpriced,omitempty" yaml:"min_underpriced,omitempty"`
	MinOI          int     `json:"min_oi,omitempty" yaml:"min_oi,omitempty"`
}

// Label names the entry in logs and tables.
func (e Entry) Label() string {
	return fmt.Sprintf("%s %s %s", e.Ticker, e.Date, e.OptionType)
}

// Filters renders the thresholds that are set, such as
// "over>=0.05 under>=0.1 oi>=100". It is empty when none are.
func (e Entry) Filters() string {
	var parts []string
	if e.MinOverpriced > 0 {
		parts = append(parts, "over>="+strconv.FormatFloat(e.MinOverpriced, 'g', -1, 64))
	}
	if e.MinUnderpriced > 0 {
		parts = append(parts, "under>="+strconv.FormatFloat(e.MinUnderpriced, 'g', -1, 64))
	}
	if e.MinOI > 0 {
		parts = append(parts, "oi>="+strconv.Itoa(e.MinOI))
	}
	return strings.Join(parts, " ")
}

// Date is an expiration date. Watchlists write it either as a string or as a
// bare number such as 20260320.
type Date string

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*d = Date(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("date must be a string or number: %s", data)
	}
	*d = Date(n.String())
	return nil
}

func (d Date) String() string { return string(d) }

// Load reads a watchlist from a JSON array, or YAML when the file extension is
// .yaml or .yml. Entries are normalized and validated.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read watchlist: %w", err)
	}

	var entries []Entry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &entries)
	default:
		err = json.Unmarshal(data, &entries)
	}
	if err != nil {
		return nil, fmt.Errorf("parse watchlist %s: %w", path, err)
	}

	for i := range entries {
		if err := entries[i].normalize(); err != nil {
			return nil, fmt.Errorf("watchlist entry %d: %w", i+1, err)
		}
	}
	return entries, nil
}

func (e *Entry) normalize() error {
	e.Ticker = strings.ToUpper(strings.TrimSpace(e.Ticker))
	if e.Ticker == "" {
		return fmt.Errorf("ticker is required")
	}
	e.Date = Date(strings.TrimSpace(string(e.Date)))
	if e.Date == "" {
		return fmt.Errorf("%s: date is required", e.Ticker)
	}
	switch strings.ToLower(strings.TrimSpace(e.OptionType)) {
	case "call", Calls:
		e.OptionType = Calls
	case "put", Puts:
		e.OptionType = Puts
	default:
		return fmt.Errorf("%s: option_type must be calls or puts, got %q", e.Ticker, e.OptionType)
	}
	if e.MinOverpriced < 0 || e.MinUnderpriced < 0 || e.MinOI < 0 {
		return fmt.Errorf("%s: thresholds must not be negative", e.Ticker)
	}
	return nil
}

// Expand fills {ticker}, {date} and {option_type} in a path template.
func (e Entry) Expand(template string) string {
	return strings.NewReplacer(
		"{ticker}", e.Ticker,
		"{date}", string(e.Date),
		"{option_type}", e.OptionType,
	).Replace(template)
}

// Ring hands out entries round-robin. It is safe for concurrent use.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
}

func NewRing(entries []Entry) *Ring {
	return &Ring{entries: append([]Entry(nil), entries...)}
}

// Next returns the next entry, wrapping to the first after the last. It
// reports false when the ring is empty.
func (r *Ring) Next() (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return Entry{}, false
	}
	e := r.entries[r.next]
	r.next = (r.next + 1) % len(r.entries)
	return e, true
}

// Len returns the number of entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
