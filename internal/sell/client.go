// Package sell fetches deal records from the Sell CRM: single deals, paged
// stage listings, cursor-paged attribute search and the custom field
// catalog. Every network call goes through a retry policy.
package sell

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"incentives-engine/internal/retry"
)

const (
	pathDeals        = "/v2/deals"
	pathCustomFields = "/v3/deals/custom_fields"
	pathSearch       = "/v3/deals/search"
)

var (
	ErrNotFound           = errors.New("deal not found")
	ErrSearchUnsuccessful = errors.New("search API returned an unsuccessful response")
	ErrFieldUnresolved    = errors.New("custom field could not be resolved")
)

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.Status, e.Body)
}

// IsRetryable classifies transient failures: timeouts and HTTP 429/5xx
// gateway-style statuses.
func IsRetryable(err error) bool {
	if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, fasthttp.ErrDialTimeout) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.Status {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}

type Options struct {
	BaseURL       string
	SearchBaseURL string
	Token         string
	// Timeout bounds each individual call, not a whole multi-page fetch.
	Timeout time.Duration
	// Retry overrides the default policy. Its Retryable is always IsRetryable.
	Retry  *retry.Policy
	Logger *zap.Logger
}

type Client struct {
	baseURL       string
	searchBaseURL string
	token         string
	timeout       time.Duration
	http          *fasthttp.Client
	retry         retry.Policy
	log           *zap.Logger
}

func New(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	searchBase := opts.SearchBaseURL
	if searchBase == "" {
		searchBase = opts.BaseURL
	}

	policy := retry.Default(IsRetryable)
	if opts.Retry != nil {
		policy = *opts.Retry
		policy.Retryable = IsRetryable
	}

	c := &Client{
		baseURL:       opts.BaseURL,
		searchBaseURL: searchBase,
		token:         opts.Token,
		timeout:       timeout,
		http: &fasthttp.Client{
			Name:                      "incentives-engine",
			MaxConnsPerHost:           64,
			MaxIdleConnDuration:       90 * time.Second,
			ReadTimeout:               timeout,
			WriteTimeout:              timeout,
			MaxIdemponentCallAttempts: 1,
		},
		log: log,
	}
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, delay time.Duration, err error) {
			c.log.Warn("retrying CRM call",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
		}
	}
	c.retry = policy
	return c
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	return c.callJSON(ctx, fasthttp.MethodGet, url, nil, out)
}

func (c *Client) postJSON(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.callJSON(ctx, fasthttp.MethodPost, url, body, out)
}

// callJSON performs one logical call, retried as a unit, and decodes the
// response into out.
func (c *Client) callJSON(ctx context.Context, method, url string, body []byte, out any) error {
	var payload []byte
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		b, err := c.roundTrip(ctx, method, url, body)
		if err != nil {
			return err
		}
		payload = b
		return nil
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, url, err)
	}
	return nil
}

// roundTrip sends one request. The call is bounded by the client timeout
// or the context deadline, whichever is sooner; on cancellation the call is
// abandoned and its buffers are released once it finishes.
func (c *Client) roundTrip(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	release := func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}

	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- c.http.DoTimeout(req, resp, timeout)
	}()

	select {
	case <-ctx.Done():
		go func() {
			<-done
			release()
		}()
		return nil, ctx.Err()
	case err := <-done:
		defer release()
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, url, err)
		}
		status := resp.StatusCode()
		if status < 200 || status > 299 {
			return nil, &StatusError{Method: method, URL: url, Status: status, Body: snippet(resp.Body())}
		}
		return append([]byte(nil), resp.Body()...), nil
	}
}

func snippet(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
