package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/desertthunder/curatarr/internal/metrics"
	"github.com/desertthunder/curatarr/internal/shared"
)

// ClientOptions configures the transport shared by every vendor client.
type ClientOptions struct {
	Timeout    time.Duration // per-call timeout (default: 30s)
	RateLimit  float64       // requests per second, <= 0 disables limiting
	Burst      int           // limiter burst (default: 1)
	HTTPClient *http.Client  // defaults to a plain client; trakt passes an oauth2 client
	Logger     *log.Logger
}

// OptionsFromConfig builds [ClientOptions] from the providers section of the config file.
func OptionsFromConfig(cfg shared.ProvidersConfig, logger *log.Logger) ClientOptions {
	return ClientOptions{
		Timeout:   cfg.RequestTimeout.Duration,
		RateLimit: cfg.RateLimit,
		Burst:     cfg.Burst,
		Logger:    logger,
	}
}

// client wraps outbound calls with a timeout, a rate limiter and a circuit breaker.
//
// Only [KindUnreachable] failures count against the breaker; a bad API key should not open it.
type client struct {
	name    string
	baseURL string
	header  http.Header
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  *log.Logger
}

func newClient(name, baseURL string, opts ClientOptions) *client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	logger := shared.WithLogger(opts.Logger, "provider", name)
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
		IsSuccessful: func(err error) bool {
			return err == nil || KindOf(err) != KindUnreachable
		},
	})

	return &client{
		name:    name,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		header:  http.Header{},
		http:    opts.HTTPClient,
		timeout: opts.Timeout,
		limiter: rate.NewLimiter(limit, opts.Burst),
		breaker: breaker,
		logger:  logger,
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// guard runs fn under the call timeout, the limiter and the breaker. Errors returned by fn that are not
// already a [ProviderError] are reported as unreachable.
func (c *client) guard(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		metrics.RecordProviderCall(c.name, "rejected", time.Since(start))
		return unreachable(c.name, op, fmt.Errorf("rate limiter: %w", err))
	}

	_, err := c.breaker.Execute(func() (struct{}, error) {
		if err := fn(ctx); err != nil {
			return struct{}{}, unreachable(c.name, op, err)
		}
		return struct{}{}, nil
	})

	switch {
	case err == nil:
		metrics.RecordProviderCall(c.name, "ok", time.Since(start))
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordProviderCall(c.name, "rejected", time.Since(start))
		return newError(c.name, op, KindUnreachable, err)
	default:
		metrics.RecordProviderCall(c.name, KindOf(err).String(), time.Since(start))
		c.logger.Debug("provider call failed", "op", op, "error", err)
		return err
	}
}

// doJSON sends a request with an optional JSON body and decodes a JSON response into out (when not nil).
func (c *client) doJSON(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	return c.guard(ctx, op, func(ctx context.Context) error {
		raw, err := c.send(ctx, op, method, path, query, body)
		if err != nil {
			return err
		}
		if out == nil || len(bytes.TrimSpace(raw)) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return malformed(c.name, op, fmt.Errorf("failed to decode response: %w", err))
		}
		return nil
	})
}

func (c *client) get(ctx context.Context, op, path string, query url.Values, out any) error {
	return c.doJSON(ctx, op, http.MethodGet, path, query, nil, out)
}

func (c *client) post(ctx context.Context, op, path string, body, out any) error {
	return c.doJSON(ctx, op, http.MethodPost, path, nil, body, out)
}

func (c *client) send(ctx context.Context, op, method, path string, query url.Values, body any) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, unreachable(c.name, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unreachable(c.name, op, fmt.Errorf("failed to read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, newError(c.name, op, KindUnauthorized, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, newError(c.name, op, KindUnreachable, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(raw, 200)))
	}
	return raw, nil
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
