// Package nbastats is the HTTP client for the upstream shot-chart
// endpoint. It resolves subject slugs to upstream IDs, issues one
// blocking request per call, and classifies failures so the fetch
// coordinator can decide what to retry.
package nbastats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/courtsight/shotcache/shots"
)

const (
	DefaultBaseURL = "https://stats.nba.com/stats"
	shotChartPath  = "/shotchartdetail"

	// DefaultTimeout bounds a single attempt; exceeding it counts as a
	// transient failure upstream.
	DefaultTimeout = 30 * time.Second
)

type Client struct {
	http    *http.Client
	baseURL *url.URL
	headers map[string]string
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if u, err := url.Parse(raw); err == nil {
			c.baseURL = u
		}
	}
}

// WithHeaders sets extra request headers. The upstream endpoint is
// picky about User-Agent/Referer; deployments supply them via config.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) { c.headers = h }
}

// WithProxy routes requests through a single proxy URL.
func WithProxy(raw string) Option {
	return func(c *Client) {
		u, err := url.Parse(raw)
		if err != nil {
			return
		}
		c.http = &http.Client{
			Timeout:   c.http.Timeout,
			Transport: &http.Transport{Proxy: http.ProxyURL(u)},
		}
	}
}

func New(opts ...Option) *Client {
	u, _ := url.Parse(DefaultBaseURL)
	c := &Client{
		http:    &http.Client{Timeout: DefaultTimeout},
		baseURL: u,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FetchShots fetches every shot attempt for the key's subject and
// period. Rows outside the court bounds are dropped. The returned
// error is always a classified *shots.FetchError (or nil).
func (c *Client) FetchShots(ctx context.Context, key shots.Key) ([]shots.Record, error) {
	subjectID, ok := ResolveSubject(key.Subject)
	if !ok {
		return nil, shots.NewFetchError(shots.ErrKindMalformed,
			fmt.Errorf("%w: %q", shots.ErrUnknownSubject, key.Subject))
	}

	u := *c.baseURL
	u.Path += shotChartPath
	q := u.Query()
	// team_id=0 returns the subject's shots across all teams for the
	// period; FGA includes both made and missed attempts.
	q.Set("TeamID", "0")
	q.Set("PlayerID", fmt.Sprint(subjectID))
	q.Set("Season", key.Period)
	q.Set("SeasonType", string(key.PeriodType))
	q.Set("ContextMeasure", "FGA")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, shots.NewFetchError(shots.ErrKindMalformed, err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, shots.NewFetchError(shots.ErrKindRateLimited,
			fmt.Errorf("GET %s: %s", shotChartPath, resp.Status))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, shots.NewFetchError(shots.ErrKindNetwork,
			fmt.Errorf("GET %s: %s: %s", shotChartPath, resp.Status, string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	rows, err := decodeShotChart(body)
	if err != nil {
		return nil, shots.NewFetchError(shots.ErrKindMalformed, err)
	}
	return shots.FilterInBounds(rows), nil
}

func classifyTransportError(err error) *shots.FetchError {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return shots.NewFetchError(shots.ErrKindTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return shots.NewFetchError(shots.ErrKindTimeout, err)
	}
	return shots.NewFetchError(shots.ErrKindNetwork, err)
}

// decodeShotChart maps the upstream tabular payload (named result set
// with parallel headers/rowSet arrays) onto shot records.
func decodeShotChart(body []byte) ([]shots.Record, error) {
	var payload struct {
		ResultSets []struct {
			Name    string              `json:"name"`
			Headers []string            `json:"headers"`
			RowSet  [][]json.RawMessage `json:"rowSet"`
		} `json:"resultSets"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	for _, rs := range payload.ResultSets {
		if rs.Name != "Shot_Chart_Detail" {
			continue
		}
		cols := make(map[string]int, len(rs.Headers))
		for i, h := range rs.Headers {
			cols[h] = i
		}
		for _, want := range []string{"LOC_X", "LOC_Y", "SHOT_MADE_FLAG"} {
			if _, ok := cols[want]; !ok {
				return nil, fmt.Errorf("result set missing column %s", want)
			}
		}

		rows := make([]shots.Record, 0, len(rs.RowSet))
		for _, raw := range rs.RowSet {
			rec, err := decodeRow(raw, cols)
			if err != nil {
				return nil, err
			}
			rows = append(rows, rec)
		}
		return rows, nil
	}
	return nil, errors.New("response has no Shot_Chart_Detail result set")
}

func decodeRow(raw []json.RawMessage, cols map[string]int) (shots.Record, error) {
	var rec shots.Record

	num := func(name string) (float64, error) {
		i, ok := cols[name]
		if !ok || i >= len(raw) {
			return 0, nil
		}
		var v float64
		if err := json.Unmarshal(raw[i], &v); err != nil {
			return 0, fmt.Errorf("column %s: %w", name, err)
		}
		return v, nil
	}

	x, err := num("LOC_X")
	if err != nil {
		return rec, err
	}
	y, err := num("LOC_Y")
	if err != nil {
		return rec, err
	}
	made, err := num("SHOT_MADE_FLAG")
	if err != nil {
		return rec, err
	}
	period, err := num("PERIOD")
	if err != nil {
		return rec, err
	}
	mins, err := num("MINUTES_REMAINING")
	if err != nil {
		return rec, err
	}
	secs, err := num("SECONDS_REMAINING")
	if err != nil {
		return rec, err
	}
	dist, err := num("SHOT_DISTANCE")
	if err != nil {
		return rec, err
	}

	rec.X = x
	rec.Y = y
	rec.Made = made != 0
	rec.PeriodNum = int(period)
	rec.ClockSecs = int(mins)*60 + int(secs)
	rec.Distance = dist

	if i, ok := cols["SHOT_ZONE_BASIC"]; ok && i < len(raw) {
		// Zone is optional; tolerate null.
		_ = json.Unmarshal(raw[i], &rec.Zone)
	}
	return rec, nil
}
