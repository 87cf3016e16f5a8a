package kenter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/kenter-mqtt/core/model"
	"github.com/kilianp07/kenter-mqtt/infra/logger"
)

// DefaultAPIURL is the production metering API.
const DefaultAPIURL = "https://api.kenter.nu"

const maxBodyBytes = 8 << 20

// Client performs single requests against the Kenter metering API.
type Client struct {
	http    *http.Client
	baseURL string
	log     logger.Logger
}

// NewClient creates a metering API client. A zero timeout defaults to 30s.
func NewClient(baseURL string, timeout time.Duration, log logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		log:     log,
	}
}

// DayURL returns the endpoint holding the readings of q for day.
func (c *Client) DayURL(q model.MeteringQuery, day time.Time) string {
	return fmt.Sprintf("%s/meetdata/v2/measurements/connections/%s/metering-points/%s/days/%04d/%02d/%02d",
		c.baseURL, url.PathEscape(q.ConnectionID), url.PathEscape(q.MeteringPointID),
		day.Year(), int(day.Month()), day.Day())
}

// Fetch issues one authenticated request for the readings of q on day.
// Failures are returned as *FetchError.
func (c *Client) Fetch(ctx context.Context, q model.MeteringQuery, day time.Time, tok model.AccessToken) ([]model.Measurement, error) {
	endpoint := c.DayURL(q, day)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindMalformed, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+tok.Value)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: KindTransient, Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.log.Warnf("close response body: %v", cerr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{Kind: KindTransient, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, body)
	}

	ms, err := ParseDay(body, day)
	if err != nil {
		return nil, &FetchError{Kind: KindMalformed, Status: resp.StatusCode, Err: err}
	}
	c.log.Debugw("fetched day", map[string]any{
		"metering_point": q.MeteringPointID,
		"day":            day.Format(time.DateOnly),
		"measurements":   len(ms),
	})
	return ms, nil
}

func statusError(resp *http.Response, body []byte) *FetchError {
	fe := &FetchError{Status: resp.StatusCode, Err: errors.New(snippet(body))}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		fe.Kind = KindUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		fe.Kind = KindNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		fe.Kind = KindRateLimited
		fe.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		fe.Kind = KindTransient
	default:
		// Remaining 4xx answers mean the request itself cannot be served.
		fe.Kind = KindMalformed
	}
	return fe
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		s = "empty body"
	}
	return s
}
