package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/deusflow/newsflow/internal/ratelimit"
	"github.com/deusflow/newsflow/internal/retry"
)

const maxBodyBytes = 10 << 20

type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	// FailStatus is the lowest HTTP status treated as a failure.
	FailStatus  int
	MaxAttempts int
	RetryBase   time.Duration
	RetryJitter time.Duration
	UserAgents  []string
	Proxies     []string
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 5
	}
	if c.FailStatus <= 0 {
		c.FailStatus = http.StatusBadRequest
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	// Zero picks a default spread; a negative jitter disables it.
	switch {
	case c.RetryJitter == 0:
		c.RetryJitter = c.RetryBase / 2
	case c.RetryJitter < 0:
		c.RetryJitter = 0
	}
	return c
}

// Options tweak a single call.
type Options struct {
	Accept  string
	Headers map[string]string
}

type Response struct {
	URL        string // final URL after redirects
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Recorder receives one outcome per attempt: "ok", "retry" or "failed".
type Recorder interface {
	FetchAttempt(outcome string)
}

type proxyKey struct{}

type Client struct {
	cfg      Config
	http     *http.Client
	gate     *ratelimit.Gate
	rotator  *Rotator
	logger   *slog.Logger
	recorder Recorder
}

// New builds a client. gate is the process-wide dispatch gate; rec may be nil.
func New(cfg Config, gate *ratelimit.Gate, logger *slog.Logger, rec Recorder) (*Client, error) {
	cfg = cfg.withDefaults()

	rotator, err := NewRotator(cfg.UserAgents, cfg.Proxies)
	if err != nil {
		return nil, err
	}
	if gate == nil {
		gate = ratelimit.NewGate(0)
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = func(req *http.Request) (*url.URL, error) {
		if p, ok := req.Context().Value(proxyKey{}).(*url.URL); ok {
			return p, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	maxRedirects := cfg.MaxRedirects
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		gate:     gate,
		rotator:  rotator,
		logger:   logger.With("component", "fetch"),
		recorder: rec,
	}, nil
}

// Fetch downloads rawURL. Transient failures are retried with exponential
// backoff; permanent ones fail on the first attempt. Every attempt passes
// through the dispatch gate.
func (c *Client) Fetch(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &Error{URL: rawURL, Attempts: 0, Err: ErrMalformedURL}
	}

	var (
		resp     *Response
		attempts int
		lastCode int
	)

	policy := c.retryPolicy(ctx, rawURL)
	err = retry.WithRetry(ctx, policy, func() error {
		attempts++
		lastCode = 0
		r, err := c.do(ctx, u.String(), opts)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) {
				lastCode = se.code
			}
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		c.record("failed")
		return nil, &Error{URL: rawURL, StatusCode: lastCode, Attempts: attempts, Err: err}
	}
	c.record("ok")
	return resp, nil
}

// retryPolicy waits RetryBase * 2^(attempt-1) plus up to RetryJitter before
// each retry of a transient failure.
func (c *Client) retryPolicy(ctx context.Context, rawURL string) retry.RetryConfig {
	return retry.RetryConfig{
		MaxAttempts: c.cfg.MaxAttempts,
		Delay:       c.cfg.RetryBase,
		Backoff:     true,
		Jitter:      c.cfg.RetryJitter,
		Retryable: func(err error) bool {
			return ctx.Err() == nil && isTransient(err)
		},
		OnRetry: func(attempt int, err error, wait time.Duration) {
			c.record("retry")
			c.logger.Debug("retrying fetch", "url", rawURL, "attempt", attempt, "wait", wait, "error", err)
		},
	}
}

func (c *Client) do(ctx context.Context, target string, opts Options) (*Response, error) {
	if err := c.gate.Wait(ctx); err != nil {
		return nil, err
	}

	agent, proxy := c.rotator.Next()
	if proxy != nil {
		ctx = context.WithValue(ctx, proxyKey{}, proxy)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	req.Header.Set("User-Agent", agent)
	if opts.Accept != "" {
		req.Header.Set("Accept", opts.Accept)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode >= c.cfg.FailStatus {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
		return nil, &statusError{code: res.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Response{
		URL:        res.Request.URL.String(),
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       body,
	}, nil
}

func (c *Client) record(outcome string) {
	if c.recorder != nil {
		c.recorder.FetchAttempt(outcome)
	}
}
