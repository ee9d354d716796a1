package apify

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
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jonboulle/clockwork"

	"igaudience/pkg/config"
	errs "igaudience/pkg/errors"
	"igaudience/pkg/logger"
	"igaudience/pkg/metrics"
	"igaudience/pkg/retry"
)

// DefaultBaseURL is the public Apify API
const DefaultBaseURL = "https://api.apify.com"

// ActorRunner invokes a named scraping actor and returns its dataset items
type ActorRunner interface {
	Run(ctx context.Context, actorID string, input map[string]interface{}, timeout time.Duration) ([]json.RawMessage, error)
}

// Client runs actors synchronously through the Apify REST API
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	retry      *retry.Config
	breaker    circuitbreaker.CircuitBreaker[[]json.RawMessage]
	clock      clockwork.Clock
	logger     logger.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry replaces the retry policy
func WithRetry(cfg *retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithLogger sets the client logger
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock sets the clock used for run durations
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// NewClient creates an Apify client from configuration
func NewClient(cfg config.ApifyConfig, opts ...Option) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	c := &Client{
		// Per-call deadlines come from ctx; this is only an upper guard.
		httpClient: &http.Client{Timeout: timeout + 30*time.Second},
		baseURL:    baseURL,
		token:      cfg.Token,
		clock:      clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.OrDefault(c.logger)

	if c.retry == nil {
		c.retry = retry.DefaultConfig()
		if cfg.MaxRetries > 0 {
			c.retry.MaxAttempts = cfg.MaxRetries
		}
	}
	if c.retry.Logger == nil {
		c.retry.Logger = c.logger
	}

	c.breaker = newBreaker(cfg.BreakerFailures, cfg.BreakerDelay, c.logger)
	return c
}

func newBreaker(failures int, delay time.Duration, log logger.Logger) circuitbreaker.CircuitBreaker[[]json.RawMessage] {
	if failures <= 0 {
		failures = 5
	}
	if delay <= 0 {
		delay = time.Minute
	}

	return circuitbreaker.NewBuilder[[]json.RawMessage]().
		HandleIf(func(_ []json.RawMessage, err error) bool {
			return err != nil && errs.IsRetryable(errs.TypeOf(err))
		}).
		WithFailureThreshold(uint(failures)).
		WithDelay(delay).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			to := stateName(event.NewState)
			metrics.CircuitBreakerStateChanges.WithLabelValues(to).Inc()
			log.WarnWithFields("Apify circuit breaker state change", map[string]interface{}{
				"from_state": stateName(event.OldState),
				"to_state":   to,
			})
		}).
		Build()
}

func stateName(s circuitbreaker.State) string {
	switch s {
	case circuitbreaker.ClosedState:
		return "closed"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	case circuitbreaker.OpenState:
		return "open"
	default:
		return "unknown"
	}
}

type retryGateKey struct{}

// WithRetryGate returns a context whose Run calls wait on gate before every
// retry attempt. The first attempt is not gated.
func WithRetryGate(ctx context.Context, gate func(ctx context.Context) error) context.Context {
	return context.WithValue(ctx, retryGateKey{}, gate)
}

func retryGate(ctx context.Context) func(ctx context.Context) error {
	gate, _ := ctx.Value(retryGateKey{}).(func(ctx context.Context) error)
	return gate
}

// BreakerOpen reports whether calls are currently being rejected
func (c *Client) BreakerOpen() bool {
	return c.breaker.IsOpen()
}

// Run executes actorID synchronously with input and returns the dataset items.
// Transient failures are retried, each retry first passing the context's
// retry gate when one is set; repeated transient failures open the breaker
// and later calls fail fast with a circuit_open error.
func (c *Client) Run(ctx context.Context, actorID string, input map[string]interface{}, timeout time.Duration) ([]json.RawMessage, error) {
	op := "apify.run " + actorID
	if c.token == "" {
		return nil, errs.New(errs.ErrorTypeConfig, op, "apify token is not configured")
	}
	if actorID == "" {
		return nil, errs.New(errs.ErrorTypeInvalidArgument, op, "actor id is empty")
	}

	gate := retryGate(ctx)
	attempt := 0
	start := c.clock.Now()
	items, err := retry.DoWithResult(ctx, c.retry, func(ctx context.Context) ([]json.RawMessage, error) {
		attempt++
		if attempt > 1 && gate != nil {
			if err := gate(ctx); err != nil {
				return nil, err
			}
		}
		items, err := failsafe.With[[]json.RawMessage](c.breaker).Get(func() ([]json.RawMessage, error) {
			return c.runOnce(ctx, op, actorID, input, timeout)
		})
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return nil, errs.Wrap(errs.ErrorTypeCircuitOpen, op, err)
		}
		return items, err
	})
	elapsed := c.clock.Since(start)

	status := "success"
	if err != nil {
		status = string(errs.TypeOf(err))
	}
	metrics.ActorRunsTotal.WithLabelValues(actorID, status).Inc()
	metrics.ActorRunDuration.WithLabelValues(actorID).Observe(elapsed.Seconds())
	logger.LogActorRun(c.logger, actorID, len(items), elapsed, err)

	return items, err
}

func (c *Client) runOnce(ctx context.Context, op, actorID string, input map[string]interface{}, timeout time.Duration) ([]json.RawMessage, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeInvalidArgument, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.runURL(actorID, timeout), bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	c.logger.DebugWithFields("Starting actor run", map[string]interface{}{
		"actor":   actorID,
		"timeout": timeout.String(),
	})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errs.Wrap(errs.ErrorTypeTimeout, op, err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.Wrap(errs.ErrorTypeNetwork, op, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.FromStatusCode(op, resp.StatusCode, apiErrorMessage(payload, resp.Status))
	}

	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, op, fmt.Errorf("decode dataset items: %w", err))
	}
	return items, nil
}

func (c *Client) runURL(actorID string, timeout time.Duration) string {
	path := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items", c.baseURL, url.PathEscape(strings.Replace(actorID, "/", "~", 1)))
	if timeout <= 0 {
		return path
	}
	q := url.Values{}
	q.Set("timeout", strconv.Itoa(int(timeout.Seconds())))
	return path + "?" + q.Encode()
}

// apiErrorMessage extracts the message from an Apify error envelope
func apiErrorMessage(body []byte, fallback string) string {
	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return fallback
}
