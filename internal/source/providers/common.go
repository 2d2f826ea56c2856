package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Settings configures one provider client.
type Settings struct {
	Name    string
	BaseURL string
	// Timeout bounds every single outbound attempt.
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	UserAgent     string
	APIKey        string
	// RequireKey disables the client when APIKey is empty.
	RequireKey bool
	Disabled   bool
	Backoff    BackoffConfig
}

// DefaultBackoff mirrors the retry budget every provider starts with.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		MaxRetries:      2,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     4 * time.Second,
	}
}

var (
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errUnexpected    = errors.New("unexpected status code")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
	errMalformedBody = errors.New("malformed response body")
)

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("%v: %d", e.Unwrap(), e.code)
	}
	return fmt.Sprintf("%v: %d: %s", e.Unwrap(), e.code, e.body)
}

func (e *statusError) Unwrap() error {
	switch {
	case e.code == http.StatusTooManyRequests:
		return errRateLimited
	case e.code >= 500:
		return errServerError
	default:
		return errUnexpected
	}
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// Client performs outbound GETs for one provider with rate limiting, a
// circuit breaker and retries with exponential backoff.
type Client struct {
	name      string
	baseURL   string
	apiKey    string
	enabled   bool
	userAgent string
	timeout   time.Duration
	http      *http.Client
	limiter   *rate.Limiter
	circuit   *gobreaker.CircuitBreaker
	backoff   BackoffConfig
	logger    *slog.Logger
}

// NewClient builds the resilient client for one provider.
func NewClient(httpClient *http.Client, s Settings, logger *slog.Logger) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "source", name, "from", from.String(), "to", to.String())
		},
	})

	limit := rate.Inf
	if s.RatePerSecond > 0 {
		limit = rate.Limit(s.RatePerSecond)
	}
	burst := s.Burst
	if burst <= 0 {
		burst = 1
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}

	enabled := !s.Disabled
	if s.RequireKey && s.APIKey == "" {
		enabled = false
		logger.Warn("provider api key not configured; source will return no data", "source", s.Name)
	}

	return &Client{
		name:      s.Name,
		baseURL:   strings.TrimRight(s.BaseURL, "/"),
		apiKey:    s.APIKey,
		enabled:   enabled,
		userAgent: s.UserAgent,
		timeout:   timeout,
		http:      httpClient,
		limiter:   rate.NewLimiter(limit, burst),
		circuit:   cb,
		backoff:   s.Backoff,
		logger:    logger,
	}
}

// Enabled reports whether the provider should be queried at all.
func (c *Client) Enabled() bool {
	return c.enabled
}

// Name returns the provider name used for logs, metrics and breaker state.
func (c *Client) Name() string {
	return c.name
}

func (c *Client) endpoint(path string, values url.Values) string {
	u := c.baseURL + path
	if len(values) > 0 {
		u += "?" + values.Encode()
	}
	return u
}

// getJSON fetches rawURL and decodes the JSON body into out, retrying
// transport errors, 429 and 5xx responses.
func (c *Client) getJSON(ctx context.Context, rawURL string, header http.Header, out any) error {
	if c.http == nil {
		return errNoHTTPClient
	}
	if c.backoff.InitialInterval <= 0 {
		return errInvalidConfig
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoff.InitialInterval
	if c.backoff.MaxInterval > 0 {
		b.MaxInterval = c.backoff.MaxInterval
	}

	operation := func() (struct{}, error) {
		if err := c.wait(ctx); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}

		_, err := c.circuit.Execute(func() (interface{}, error) {
			return nil, c.attempt(ctx, rawURL, header, out)
		})
		if err == nil {
			return struct{}{}, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return struct{}{}, backoff.Permanent(fmt.Errorf("%w: %v", errCircuitOpen, err))
		}
		if errors.Is(err, errMalformedBody) {
			return struct{}{}, backoff.Permanent(err)
		}
		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.backoff.MaxRetries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Debug("retrying provider request", "source", c.name, "error", err, "backoff", next)
		}),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	return nil
}

// wait takes a limiter slot. A slot further away than the per-call timeout
// fails the call instead of queueing behind it.
func (c *Client) wait(ctx context.Context) error {
	r := c.limiter.Reserve()
	if !r.OK() {
		return errRateLimited
	}
	delay := r.Delay()
	if delay == 0 {
		return nil
	}
	if delay > c.timeout {
		r.Cancel()
		return fmt.Errorf("%w: next slot in %s", errRateLimited, delay.Round(time.Millisecond))
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// attempt performs a single request bounded by the per-call timeout.
func (c *Client) attempt(ctx context.Context, rawURL string, header http.Header, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return nil
}

// fanOut runs tasks on a bounded pool. A failing task contributes no records;
// its error is joined into the returned error. Results keep task order.
func fanOut[T any](ctx context.Context, limit int, tasks []func(context.Context) ([]T, error)) ([]T, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(tasks) {
		limit = len(tasks)
	}

	results := make([][]T, len(tasks))
	errs := make([]error, len(tasks))

	p := pool.New().WithMaxGoroutines(limit)
	for i, task := range tasks {
		p.Go(func() {
			recs, err := task(ctx)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = recs
		})
	}
	p.Wait()

	var out []T
	for _, recs := range results {
		out = append(out, recs...)
	}
	return out, errors.Join(errs...)
}

// parseTime accepts RFC3339 timestamps, returning the zero time otherwise.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC()
	}
	return time.Time{}
}
