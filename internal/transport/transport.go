package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned without contacting the server while the circuit
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

const jitterPercent = 20

type Options struct {
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerInterval  time.Duration `mapstructure:"breaker_interval"`
	MaxRetries       uint64        `mapstructure:"max_retries"`
	BackoffDelay     time.Duration `mapstructure:"backoff_delay"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
}

// DefaultOptions mirrors the platform SDK client configuration.
func DefaultOptions() Options {
	return Options{
		BreakerThreshold: 11,
		BreakerInterval:  1200 * time.Millisecond,
		MaxRetries:       7,
		BackoffDelay:     4000 * time.Millisecond,
		RequestTimeout:   13000 * time.Millisecond,
	}
}

// statusError marks a retryable HTTP status. The buffered response is kept so
// it can be handed back when retries run out.
type statusError struct {
	resp *http.Response
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server responded %s", e.resp.Status)
}

type resilient struct {
	base    http.RoundTripper
	opts    Options
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// New wraps base with a circuit breaker, exponential backoff with jitter for
// transient failures, and a per-attempt timeout.
func New(base http.RoundTripper, opts Options, logger zerolog.Logger) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	logger = logger.With().Str("component", "transport").Logger()
	return &resilient{
		base:    base,
		opts:    opts,
		breaker: newBreaker(opts.BreakerThreshold, opts.BreakerInterval, logger),
		logger:  logger,
	}
}

// NewClient returns an http.Client using the resilient transport.
func NewClient(opts Options, logger zerolog.Logger) *http.Client {
	return &http.Client{Transport: New(http.DefaultTransport, opts, logger)}
}

func (t *resilient) backoff() retry.Backoff {
	b := retry.NewExponential(t.opts.BackoffDelay)
	b = retry.WithJitterPercent(jitterPercent, b)
	return retry.WithMaxRetries(t.opts.MaxRetries, b)
}

func (t *resilient) RoundTrip(req *http.Request) (*http.Response, error) {
	getBody := req.GetBody
	if req.Body != nil && req.Body != http.NoBody && getBody == nil {
		// Buffer once so every attempt can resend the payload.
		payload, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, errors.Wrap(err, "buffer request body")
		}
		getBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(payload)), nil
		}
	}

	var (
		result  *http.Response
		attempt int
	)
	err := retry.Do(req.Context(), t.backoff(), func(ctx context.Context) error {
		attempt++

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if t.opts.RequestTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, t.opts.RequestTimeout)
		}
		areq := req.Clone(attemptCtx)
		if getBody != nil {
			body, err := getBody()
			if err != nil {
				cancel()
				return errors.Wrap(err, "rewind request body")
			}
			areq.Body = body
		}

		resp, err := t.execute(func() (*http.Response, error) {
			resp, err := t.base.RoundTrip(areq)
			if err != nil {
				return nil, err
			}
			if retryableStatus(resp.StatusCode) {
				buffered, berr := bufferResponse(resp)
				if berr != nil {
					return nil, berr
				}
				return nil, &statusError{resp: buffered}
			}
			return resp, nil
		})
		if err != nil {
			cancel()
			if errors.Is(err, ErrCircuitOpen) {
				return err
			}
			if req.Context().Err() != nil {
				return req.Context().Err()
			}
			var se *statusError
			if errors.As(err, &se) {
				t.logger.Warn().Int("status", se.resp.StatusCode).Str("method", req.Method).Str("url", req.URL.Redacted()).Int("attempt", attempt).Msg("transient server response")
			} else {
				t.logger.Warn().Err(err).Str("method", req.Method).Str("url", req.URL.Redacted()).Int("attempt", attempt).Msg("request failed")
			}
			return retry.RetryableError(err)
		}

		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		result = resp
		return nil
	})
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return se.resp, nil
		}
		return nil, err
	}
	return result, nil
}

// execute runs fn through the circuit breaker. Transport errors and retryable
// statuses count as failures.
func (t *resilient) execute(fn func() (*http.Response, error)) (*http.Response, error) {
	if t.breaker == nil {
		return fn()
	}
	res, err := t.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return res.(*http.Response), nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func bufferResponse(resp *http.Response) (*http.Response, error) {
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(payload))
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
