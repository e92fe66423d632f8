// Package ical fetches and reads channel availability calendars.
package ical

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"aparthotel/internal/adapters/observability"
	"aparthotel/internal/domain"
)

const maxBody = 8 << 20

type Client struct {
	hc      *http.Client
	rl      *rate.Limiter
	timeout time.Duration
}

// New builds a client whose whole fetch, retries included, is bounded by
// timeout. rps limits outbound requests across all feeds.
func New(timeout time.Duration, rps int) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		hc:      &http.Client{Timeout: timeout},
		rl:      rate.NewLimiter(rate.Limit(rps), rps),
		timeout: timeout,
	}
}

var _ domain.CalendarSource = (*Client)(nil)

func (c *Client) FetchCalendar(ctx context.Context, rawURL string) (domain.CalendarFeed, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.get(ctx, rawURL)
	if err != nil {
		return domain.CalendarFeed{}, err
	}
	return Parse(body)
}

var (
	errEmpty    = errors.New("empty response body")
	errTooLarge = fmt.Errorf("calendar larger than %d bytes", maxBody)
)

// get performs a GET with client-side rate limiting and retries on 429 and
// transient 5xx, honoring Retry-After when provided. Every failure comes
// back as *domain.FetchError.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	fail := func(status int, err error) ([]byte, error) {
		return nil, &domain.FetchError{URL: redact(rawURL), StatusCode: status, Err: err}
	}
	if err := c.rl.Wait(ctx); err != nil {
		return fail(0, err)
	}
	endpoint := host(rawURL)

	var lastErr error
	lastStatus := 0
	for i := 0; i < 4; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fail(0, err)
		}
		req.Header.Set("Accept", "text/calendar, */*;q=0.5")
		req.Header.Set("User-Agent", "aparthotel-sync/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("ical", endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return fail(0, ctx.Err())
			}
			lastErr, lastStatus = err, 0
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			return fail(lastStatus, lastErr)
		}
		observability.ObserveExternal("ical", endpoint, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK:
			b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
			resp.Body.Close()
			if err != nil {
				return fail(resp.StatusCode, err)
			}
			if len(b) > maxBody {
				return fail(resp.StatusCode, errTooLarge)
			}
			if len(strings.TrimSpace(string(b))) == 0 {
				return fail(resp.StatusCode, errEmpty)
			}
			return b, nil

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr, lastStatus = fmt.Errorf("remote %d", resp.StatusCode), resp.StatusCode
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			return fail(lastStatus, lastErr)

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return fail(resp.StatusCode, fmt.Errorf("bad status: %s", strings.TrimSpace(string(b))))
		}
	}
	return fail(lastStatus, lastErr)
}

// redact drops the query string; feed urls usually carry a secret token there.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	u.RawQuery, u.User = "", nil
	return u.String()
}

func host(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	return "unknown"
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff doubles from 200ms per attempt with up to +50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
