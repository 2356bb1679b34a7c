package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mescon/Archivarr/internal/clock"
	"github.com/mescon/Archivarr/internal/config"
	"github.com/mescon/Archivarr/internal/logger"
)

// maxErrorBody bounds how much of an error response is kept in APIError.
const maxErrorBody = 1024

// HTTPRequester implements Requester over HTTP with rate limiting, a circuit
// breaker and retries. Only GET requests are retried: a write that timed out
// may have been applied, and repeating it could duplicate a record.
type HTTPRequester struct {
	baseURL    *url.URL
	token      string
	appID      string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *CircuitBreaker
	clock      clock.Clock
	maxRetries int

	// RetryBackoff is multiplied by the attempt number between GET retries.
	RetryBackoff time.Duration
	// OnFailure, when set, is called once for every request that finally fails.
	OnFailure func(method, path string, err error)
}

// NewHTTPRequester builds a requester from the API settings in cfg.
func NewHTTPRequester(cfg *config.Config, clk clock.Clock) (*HTTPRequester, error) {
	if cfg.APIURL == "" {
		return nil, errors.New("api url is empty")
	}
	base, err := url.Parse(cfg.APIURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url %q: %w", cfg.APIURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid api url %q: scheme and host are required", cfg.APIURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}

	return &HTTPRequester{
		baseURL: base,
		token:   cfg.APIToken,
		appID:   cfg.AppID,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		breaker: NewCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: cfg.BreakerFailureThreshold,
			ResetTimeout:     cfg.BreakerResetTimeout,
		}, clk),
		clock:        clk,
		maxRetries:   cfg.MaxRetries,
		RetryBackoff: 2 * time.Second,
	}, nil
}

// Breaker exposes the circuit breaker for reporting.
func (r *HTTPRequester) Breaker() *CircuitBreaker {
	return r.breaker
}

// Do implements Requester.
func (r *HTTPRequester) Do(ctx context.Context, method, path string, body, out interface{}) error {
	err := r.do(ctx, method, path, body, out)
	if err != nil && r.OnFailure != nil {
		r.OnFailure(method, path, err)
	}
	return err
}

func (r *HTTPRequester) do(ctx context.Context, method, path string, body, out interface{}) error {
	if !r.breaker.Allow() {
		logger.Warnf("Circuit breaker OPEN - rejecting %s %s", method, path)
		return fmt.Errorf("%w: %s %s", ErrCircuitOpen, method, path)
	}

	target, err := r.baseURL.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		r.breaker.RecordSuccess() // caller error, not an API failure
		return fmt.Errorf("invalid request path %q: %w", path, err)
	}

	var payload []byte
	if body != nil {
		if payload, err = json.Marshal(body); err != nil {
			r.breaker.RecordSuccess()
			return fmt.Errorf("failed to encode %s %s body: %w", method, path, err)
		}
	}

	attempts := 1
	if method == http.MethodGet {
		attempts += r.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			logger.Infof("API %s %s failed (attempt %d/%d): %v, retrying...", method, path, attempt, attempts, lastErr)
			if err := clock.Pause(ctx, r.clock, time.Duration(attempt)*r.RetryBackoff); err != nil {
				r.breaker.RecordFailure()
				return err
			}
		}

		if err := r.limiter.Wait(ctx); err != nil {
			r.breaker.RecordFailure()
			return fmt.Errorf("rate limiter: %w", err)
		}

		retry, err := r.attempt(ctx, method, target, path, payload, out)
		if err == nil {
			r.breaker.RecordSuccess()
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}

	var apiErr *APIError
	if errors.As(lastErr, &apiErr) && !apiErr.IsServerError() {
		// The API answered; a 4xx says nothing about its health.
		r.breaker.RecordSuccess()
	} else {
		r.breaker.RecordFailure()
	}
	return lastErr
}

// attempt performs one HTTP exchange. retry reports whether the failure is transient.
func (r *HTTPRequester) attempt(ctx context.Context, method string, target *url.URL, path string, payload []byte, out interface{}) (retry bool, err error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reqBody)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Token "+r.token)
	}
	if r.appID != "" {
		req.Header.Set("App-ID", r.appID)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logger.Debugf("API %s %s", method, path)
	resp, err := r.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return isRetryableError(err), fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Debugf("Failed to close response body: %v", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		// Drain the rest to allow connection reuse
		_, _ = io.Copy(io.Discard, resp.Body)
		apiErr := &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
		return apiErr.IsServerError(), apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return false, nil
}

// isRetryableError checks if an error is a transient network error worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if os.IsTimeout(err) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
		"i/o timeout",
		"eof",
		"connection timed out",
		"temporary failure",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
