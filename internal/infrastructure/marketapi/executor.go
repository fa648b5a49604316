package marketapi

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
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bricksync/backend/internal/domain/marketplace"
)

// maxResponseSize is the maximum allowed provider response size (10MB).
const maxResponseSize = 10 * 1024 * 1024

// AuthScheme selects how credentials are applied to a request.
type AuthScheme int

const (
	// AuthNone sends the request unauthenticated.
	AuthNone AuthScheme = iota
	// AuthOAuth1 signs the request with an OAuth1.0a Authorization header.
	AuthOAuth1
	// AuthAPIKeyParam injects the API key as a query parameter on GET and as
	// a form field on POST.
	AuthAPIKeyParam
	// AuthAPIKeyHeader sends the API key as `Authorization: key <k>`.
	AuthAPIKeyHeader
)

// RequestSpec describes one logical marketplace call.
type RequestSpec struct {
	// Operation is the logical name used in logs and metrics,
	// e.g. "bricklink.inventory.create".
	Operation string
	Method    string
	BaseURL   string
	Path      string
	Query     url.Values
	// JSONBody is marshaled as the request body when non-nil.
	JSONBody any
	// FormBody is sent urlencoded when non-nil; mutually exclusive with
	// JSONBody.
	FormBody url.Values
	Auth     AuthScheme
	Bucket   marketplace.Bucket
	// Retry overrides the executor's default policy when non-nil.
	Retry *RetryPolicy
	// IdempotencyKey enables response caching and permits POST retries.
	IdempotencyKey string
	// Idempotent explicitly marks a mutating call as safe to retry without
	// an idempotency key.
	Idempotent bool
	// CheckEnvelope inspects a 2xx body for an embedded provider error and
	// returns it as a raw failure, or nil when the body is a real success.
	CheckEnvelope func(body []byte) *RawFailure
}

// Response is the outcome of a successfully executed request.
type Response struct {
	Status        int
	Body          []byte
	Header        http.Header
	Attempts      int
	Duration      time.Duration
	CorrelationID string
}

// RequestExecutor orchestrates signing, quota, circuit breaking, retries and
// error normalization around a single logical request.
type RequestExecutor struct {
	httpClient     *http.Client
	quota          *QuotaTracker
	breaker        *CircuitBreaker
	signer         *SignatureBuilder
	creds          marketplace.CredentialProvider
	metrics        marketplace.MetricsSink
	logger         *zap.Logger
	defaultRetry   RetryPolicy
	attemptTimeout time.Duration
	cache          *responseCache
	clock          func() time.Time
	sleep          func(ctx context.Context, d time.Duration) error
}

// ExecutorConfig wires a RequestExecutor.
type ExecutorConfig struct {
	HTTPClient     *http.Client
	Quota          *QuotaTracker
	Breaker        *CircuitBreaker
	Signer         *SignatureBuilder
	Credentials    marketplace.CredentialProvider
	Metrics        marketplace.MetricsSink
	Logger         *zap.Logger
	Retry          RetryPolicy
	AttemptTimeout time.Duration
	// CacheTTL bounds the in-process idempotent response cache.
	CacheTTL time.Duration
}

// NewRequestExecutor creates an executor. A zero AttemptTimeout defaults to
// 30 seconds so a hung provider call cannot stall the retry loop forever.
func NewRequestExecutor(cfg ExecutorConfig) *RequestExecutor {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	retry := cfg.Retry
	if retry.Attempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	attemptTimeout := cfg.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = 30 * time.Second
	}
	signer := cfg.Signer
	if signer == nil {
		signer = NewSignatureBuilder()
	}
	return &RequestExecutor{
		httpClient:     httpClient,
		quota:          cfg.Quota,
		breaker:        cfg.Breaker,
		signer:         signer,
		creds:          cfg.Credentials,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
		defaultRetry:   retry,
		attemptTimeout: attemptTimeout,
		cache:          newResponseCache(cfg.CacheTTL),
		clock:          time.Now,
		sleep:          sleepContext,
	}
}

// Execute runs one logical request to completion: pre-flight breaker and
// quota checks, authentication, the HTTP exchange, embedded-error detection
// on 2xx bodies, and the retry loop. Failures come back as a normalized
// *marketplace.StoreOperationError.
func (e *RequestExecutor) Execute(ctx context.Context, spec *RequestSpec) (*Response, error) {
	correlationID := marketplace.NewCorrelationID()

	if spec.IdempotencyKey != "" {
		if cached, ok := e.cache.get(spec.IdempotencyKey); ok {
			e.logger.Debug("idempotent response cache hit",
				zap.String("operation", spec.Operation),
				zap.String("idempotency_key", spec.IdempotencyKey),
			)
			return cached, nil
		}
	}

	policy := e.defaultRetry
	if spec.Retry != nil {
		policy = *spec.Retry
	}

	start := e.clock()
	attempt := 0
	for {
		attempt++

		if openUntil, err := e.breaker.Allow(ctx, spec.Bucket); err != nil {
			return nil, e.fail(ctx, spec, correlationID, attempt, RawFailure{
				Message: fmt.Sprintf("circuit breaker state unavailable: %v", err),
			})
		} else if openUntil != nil {
			wait := openUntil.Sub(e.clock())
			return nil, e.fail(ctx, spec, correlationID, attempt, RawFailure{
				ProviderCode: providerCodeBreakerOpen,
				Message:      fmt.Sprintf("circuit breaker open for %s, retry in %s", spec.Bucket.Key(), wait.Round(time.Second)),
				RetryAfter:   &wait,
			})
		}

		decision, err := e.quota.Consume(ctx, spec.Bucket)
		if err != nil {
			return nil, e.fail(ctx, spec, correlationID, attempt, RawFailure{
				Message: fmt.Sprintf("quota state unavailable: %v", err),
			})
		}
		if !decision.Granted {
			wait := decision.ResetAt.Sub(e.clock())
			if wait < 0 {
				wait = 0
			}
			return nil, e.fail(ctx, spec, correlationID, attempt, RawFailure{
				ProviderCode: providerCodeRateLimit,
				Message:      fmt.Sprintf("quota exhausted for %s, window resets in %s", spec.Bucket.Key(), wait.Round(time.Second)),
				RetryAfter:   &wait,
			})
		}

		raw, resp := e.attempt(ctx, spec, correlationID, attempt)
		if raw == nil {
			// Success path: reset the breaker, cache, and return.
			if err := e.breaker.OnSuccess(ctx, spec.Bucket); err != nil {
				e.logger.Warn("failed to reset circuit breaker",
					zap.String("bucket", spec.Bucket.Key()), zap.Error(err))
			}
			resp.Attempts = attempt
			resp.Duration = e.clock().Sub(start)
			resp.CorrelationID = correlationID
			if spec.IdempotencyKey != "" {
				e.cache.put(spec.IdempotencyKey, resp)
			}
			return resp, nil
		}

		// Only failures that reached the provider count toward the breaker;
		// pre-flight rejections say nothing about the provider's health.
		if !raw.NotSent {
			if err := e.breaker.OnFailure(ctx, spec.Bucket); err != nil {
				e.logger.Warn("failed to record circuit breaker failure",
					zap.String("bucket", spec.Bucket.Key()), zap.Error(err))
			}
		}

		if !e.canRetry(spec, policy, attempt, *raw) {
			return nil, e.fail(ctx, spec, correlationID, attempt, *raw)
		}

		delay := policy.Delay(attempt, raw.RetryAfter)
		e.logger.Debug("retrying marketplace request",
			zap.String("operation", spec.Operation),
			zap.Int("attempt", attempt),
			zap.Int("status", raw.Status),
			zap.Duration("delay", delay),
		)
		if err := e.sleep(ctx, delay); err != nil {
			return nil, e.fail(ctx, spec, correlationID, attempt, RawFailure{
				Timeout: true,
				Message: "canceled while waiting to retry",
			})
		}
	}
}

// attempt performs one HTTP try. A nil RawFailure means success.
func (e *RequestExecutor) attempt(ctx context.Context, spec *RequestSpec, correlationID string, attempt int) (*RawFailure, *Response) {
	attemptStart := e.clock()

	// Per-attempt timeout: a hung provider call must not stall the retry
	// loop indefinitely.
	attemptCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
	defer cancel()

	req, rawErr := e.buildRequest(attemptCtx, spec)
	if rawErr != nil {
		e.emitAttempt(ctx, spec, correlationID, attempt, 0, rawErr.Message, e.clock().Sub(attemptStart))
		return rawErr, nil
	}

	httpResp, err := e.httpClient.Do(req)
	elapsed := e.clock().Sub(attemptStart)
	if err != nil {
		raw := classifyTransportError(err)
		e.emitAttempt(ctx, spec, correlationID, attempt, 0, raw.Message, elapsed)
		return &raw, nil
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		raw := classifyTransportError(err)
		e.emitAttempt(ctx, spec, correlationID, attempt, httpResp.StatusCode, raw.Message, elapsed)
		return &raw, nil
	}

	e.emitAttempt(ctx, spec, correlationID, attempt, httpResp.StatusCode, "", elapsed)

	if httpResp.StatusCode >= 400 {
		raw := RawFailure{
			Status:     httpResp.StatusCode,
			Message:    errorMessageFromBody(body, httpResp.StatusCode),
			RetryAfter: ParseRetryAfter(httpResp.Header.Get("Retry-After"), e.clock()),
		}
		return &raw, nil
	}

	// Some providers report business failures inside a 2xx envelope; those
	// are treated identically to the equivalent HTTP error.
	if spec.CheckEnvelope != nil {
		if raw := spec.CheckEnvelope(body); raw != nil {
			if raw.RetryAfter == nil {
				raw.RetryAfter = ParseRetryAfter(httpResp.Header.Get("Retry-After"), e.clock())
			}
			return raw, nil
		}
	}

	return nil, &Response{
		Status: httpResp.StatusCode,
		Body:   body,
		Header: httpResp.Header,
	}
}

// buildRequest assembles the URL, body and authentication for one attempt.
func (e *RequestExecutor) buildRequest(ctx context.Context, spec *RequestSpec) (*http.Request, *RawFailure) {
	fullURL := strings.TrimSuffix(spec.BaseURL, "/") + spec.Path
	query := cloneValues(spec.Query)
	form := cloneValues(spec.FormBody)

	var creds marketplace.Credentials
	if spec.Auth != AuthNone {
		var err error
		creds, err = e.creds.Credentials(ctx, spec.Bucket.AccountID, spec.Bucket.Provider)
		if err != nil {
			return nil, &RawFailure{
				Status:  http.StatusUnauthorized,
				Message: fmt.Sprintf("credentials unavailable for %s: %v", spec.Bucket.Key(), err),
				NotSent: true,
			}
		}
	}

	if spec.Auth == AuthAPIKeyParam {
		if spec.Method == http.MethodGet {
			query.Set("key", creds.APIKey)
		} else {
			form.Set("key", creds.APIKey)
		}
	}

	var body io.Reader
	contentType := ""
	switch {
	case spec.JSONBody != nil:
		encoded, err := json.Marshal(spec.JSONBody)
		if err != nil {
			return nil, &RawFailure{
				ProviderCode: providerCodeValidation,
				Message:      fmt.Sprintf("encode request body: %v", err),
				NotSent:      true,
			}
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	case len(form) > 0:
		body = strings.NewReader(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	requestURL := fullURL
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, requestURL, body)
	if err != nil {
		return nil, &RawFailure{
			ProviderCode: providerCodeValidation,
			Message:      fmt.Sprintf("build request: %v", err),
			NotSent:      true,
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	switch spec.Auth {
	case AuthOAuth1:
		req.Header.Set("Authorization", e.signer.AuthorizationHeader(creds, spec.Method, fullURL, query))
	case AuthAPIKeyHeader:
		req.Header.Set("Authorization", "key "+creds.APIKey)
	}

	return req, nil
}

// canRetry applies the eligibility rules: attempt budget, status allow-list,
// and the hard rule that a non-idempotent POST is never retried unless the
// caller marked it idempotent or supplied an idempotency key.
func (e *RequestExecutor) canRetry(spec *RequestSpec, policy RetryPolicy, attempt int, raw RawFailure) bool {
	if spec.Method == http.MethodPost && !spec.Idempotent && spec.IdempotencyKey == "" {
		return false
	}
	return policy.ShouldRetry(attempt, raw.Status, raw.NetworkErr || raw.Timeout)
}

// fail normalizes a raw failure, tags it with the correlation id, and logs it.
func (e *RequestExecutor) fail(ctx context.Context, spec *RequestSpec, correlationID string, attempts int, raw RawFailure) *marketplace.StoreOperationError {
	opErr := Normalize(raw, e.clock())
	if opErr.Details == nil {
		opErr.Details = map[string]any{}
	}
	opErr.Details["correlation_id"] = correlationID
	opErr.Details["operation"] = spec.Operation
	opErr.Details["attempts"] = attempts

	e.logger.Warn("marketplace request failed",
		zap.String("operation", spec.Operation),
		zap.String("correlation_id", correlationID),
		zap.String("code", string(opErr.Code)),
		zap.Int("attempts", attempts),
		zap.Bool("retryable", opErr.Retryable),
	)
	return opErr
}

// emitAttempt records the per-attempt telemetry event. Every attempt emits
// exactly one event regardless of outcome.
func (e *RequestExecutor) emitAttempt(ctx context.Context, spec *RequestSpec, correlationID string, attempt, status int, errMsg string, elapsed time.Duration) {
	e.metrics.Emit(ctx, EventRequestAttempt, marketplace.MetricAttrs{
		"operation":      spec.Operation,
		"method":         spec.Method,
		"provider":       spec.Bucket.Provider,
		"status":         status,
		"error":          errMsg,
		"attempt":        attempt,
		"duration_ms":    elapsed.Milliseconds(),
		"correlation_id": correlationID,
	})
}

// classifyTransportError distinguishes timeouts from other network failures.
func classifyTransportError(err error) RawFailure {
	var netErr net.Error
	timeout := errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout())
	return RawFailure{
		Timeout:    timeout,
		NetworkErr: !timeout,
		Message:    err.Error(),
	}
}

// errorMessageFromBody extracts a human-readable message from a provider
// error body, falling back to the status text.
func errorMessageFromBody(body []byte, status int) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Meta    struct {
			Message string `json:"message"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			return payload.Message
		case payload.Error != "":
			return payload.Error
		case payload.Meta.Message != "":
			return payload.Meta.Message
		}
	}
	return http.StatusText(status)
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// sleepContext waits for d or until the context is canceled.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
