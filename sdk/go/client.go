package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"trackxp/core"
	"trackxp/engine"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the trackxp HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid baseURL: %w", err)
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithHeader sets an arbitrary header applied to every call.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// ValueEvent asks the server to value ev with the server's XP configuration.
func (c *Client) ValueEvent(ctx context.Context, ev core.Event, streakDays int, microXPAwardedToday int64) (int64, error) {
	return c.valueEvent(ctx, ev, streakDays, microXPAwardedToday, nil)
}

// ValueEventWith values ev against cfg instead of the server's configuration.
func (c *Client) ValueEventWith(ctx context.Context, ev core.Event, streakDays int, microXPAwardedToday int64, cfg core.Config) (int64, error) {
	return c.valueEvent(ctx, ev, streakDays, microXPAwardedToday, &cfg)
}

func (c *Client) valueEvent(ctx context.Context, ev core.Event, streakDays int, microXPAwardedToday int64, cfg *core.Config) (int64, error) {
	body := struct {
		Event               core.Event   `json:"event"`
		StreakDays          int          `json:"streak_days"`
		MicroXPAwardedToday int64        `json:"micro_xp_awarded_today"`
		Config              *core.Config `json:"config,omitempty"`
	}{ev, streakDays, microXPAwardedToday, cfg}

	var resp struct {
		XP int64 `json:"xp"`
	}
	if err := c.do(ctx, http.MethodPost, "/xp/value", nil, body, &resp); err != nil {
		return 0, err
	}
	return resp.XP, nil
}

// ResolveLevel maps a lifetime total onto the server's level curve.
func (c *Client) ResolveLevel(ctx context.Context, totalXP int64) (LevelInfo, error) {
	q := url.Values{"total": {strconv.FormatInt(totalXP, 10)}}
	var info LevelInfo
	if err := c.do(ctx, http.MethodGet, "/level", q, nil, &info); err != nil {
		return LevelInfo{}, err
	}
	return info, nil
}

// Curve lists the cost rows for levels from..to inclusive.
func (c *Client) Curve(ctx context.Context, from, to int64) ([]core.LevelCost, error) {
	q := url.Values{
		"from": {strconv.FormatInt(from, 10)},
		"to":   {strconv.FormatInt(to, 10)},
	}
	var rows []core.LevelCost
	if err := c.do(ctx, http.MethodGet, "/curve", q, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Replay runs a ledger replay on the server. An empty timezone uses the
// server's ledger timezone.
func (c *Client) Replay(ctx context.Context, events []engine.DatedEvent, timezone string) (engine.Report, error) {
	if events == nil {
		events = []engine.DatedEvent{}
	}
	body := struct {
		Events   []engine.DatedEvent `json:"events"`
		Timezone string              `json:"timezone,omitempty"`
	}{events, timezone}

	var report engine.Report
	if err := c.do(ctx, http.MethodPost, "/ledger", nil, body, &report); err != nil {
		return engine.Report{}, err
	}
	return report, nil
}

// Config fetches the XP configuration the server evaluates against.
func (c *Client) Config(ctx context.Context) (core.Config, error) {
	var cfg core.Config
	if err := c.do(ctx, http.MethodGet, "/config", nil, nil, &cfg); err != nil {
		return core.Config{}, err
	}
	return cfg, nil
}

// Health probes /healthz.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, nil, &hs); err != nil {
		return HealthStatus{}, err
	}
	return hs, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeJSON(resp, out)
}

func (c *Client) applyHeaders(req *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
}
