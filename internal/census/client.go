// Package census fetches ACS 5-year tables from the Census Bureau data API
// and turns them into typed state records.
package census

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"braindrain/internal/acs"
)

// DefaultBaseURL is the public Census Bureau data API.
const DefaultBaseURL = "https://api.census.gov/data"

// Fetcher retrieves one record per state for a table.
type Fetcher interface {
	Fetch(ctx context.Context, table acs.Table) ([]acs.StateRecord, error)
}

// Config holds census API client settings.
type Config struct {
	BaseURL string
	Year    int
	APIKey  string
	Timeout time.Duration
}

// Client talks to the census data API over HTTP.
type Client struct {
	baseURL string
	year    int
	apiKey  string
	http    *http.Client
	log     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a census API client.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		year:    cfg.Year,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fetch requests the table's variables for all states.
func (c *Client) Fetch(ctx context.Context, table acs.Table) ([]acs.StateRecord, error) {
	endpoint := c.requestURL(table)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &DataSourceError{Table: table.ID, Op: "request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &DataSourceError{Table: table.ID, Op: "request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &DataSourceError{
			Table: table.ID,
			Op:    "status",
			Err:   fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var rows [][]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, &DataSourceError{Table: table.ID, Op: "decode", Err: err}
	}

	records, err := Decode(table, rows)
	if err != nil {
		return nil, &DataSourceError{Table: table.ID, Op: "decode", Err: err}
	}

	c.log.Debug("fetched census table",
		zap.String("table", table.ID),
		zap.Int("rows", len(records)),
		zap.Duration("elapsed", time.Since(start)))

	return records, nil
}

func (c *Client) requestURL(table acs.Table) string {
	q := url.Values{}
	q.Set("get", strings.Join(table.Codes(), ","))
	q.Set("for", "state:*")
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	return fmt.Sprintf("%s/%d/acs/acs5?%s", c.baseURL, c.year, q.Encode())
}

// Decode converts the API's array-of-arrays body into state records.
// The first row holds column headers. Columns the table does not name are
// ignored; named columns absent from the header become null.
func Decode(table acs.Table, rows [][]any) ([]acs.StateRecord, error) {
	if len(rows) == 0 {
		return nil, errors.New("empty response")
	}

	header := rows[0]
	col := make(map[string]int, len(header))
	for i, h := range header {
		if s, ok := h.(string); ok {
			col[s] = i
		}
	}
	nameIdx, ok := col[acs.NameCode]
	if !ok {
		return nil, fmt.Errorf("response missing %s column", acs.NameCode)
	}
	stateIdx, hasState := col["state"]

	records := make([]acs.StateRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		name := cell(row, nameIdx)
		if name == "" {
			continue
		}
		rec := acs.StateRecord{
			State:  name,
			Fields: make(map[string]acs.Num, len(table.Fields)),
		}
		if hasState {
			rec.FIPS = cell(row, stateIdx)
		}
		for _, f := range table.Fields {
			idx, ok := col[f.Code]
			if !ok {
				rec.Fields[f.Name] = acs.Null
				continue
			}
			rec.Fields[f.Name] = acs.Parse(cell(row, idx))
		}
		records = append(records, rec)
	}
	return records, nil
}

// cell renders a value as text. The API sends strings, but numbers are
// accepted too; anything else (null, objects) is empty.
func cell(row []any, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	switch v := row[i].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
