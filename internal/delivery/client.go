// Package delivery posts outbound batches to the collection endpoint.
//
// SendAsync never blocks on the network: the request runs on its own
// goroutine and the result is reported through the callback exactly once.
// The callback always receives the plaintext JSON array that was attempted,
// so a caller can persist exactly what failed.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"smsrelay/internal/crypto"
	apperrors "smsrelay/internal/errors"
	"smsrelay/internal/metrics"
	"smsrelay/internal/models"
	"smsrelay/internal/tracing"
	"smsrelay/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/ratelimit"
)

const (
	contentType = "application/json; charset=utf-8"

	DefaultConnectTimeout = 15 * time.Second
	DefaultReadTimeout    = 15 * time.Second
	DefaultWriteTimeout   = 15 * time.Second

	maxErrorBodyBytes = 512
)

// ErrEmptyBatch is returned synchronously for a batch without records
var ErrEmptyBatch = apperrors.NewInvalidInputError("batch", "batch must contain at least one record")

// Envelope is the request body understood by the collection endpoint
type Envelope struct {
	Token string `json:"token"`
	Data  string `json:"data"`
}

// Result is the outcome of one delivery attempt
type Result struct {
	Success    bool
	Payload    string
	StatusCode int
	RequestID  string
	Err        error
}

// Sender is the asynchronous delivery contract used by the relay
type Sender interface {
	SendAsync(ctx context.Context, batch models.OutboundBatch, onResult func(Result)) error
}

// Config holds delivery client settings
type Config struct {
	URL             string
	Token           string
	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RateLimitPerSec int
}

// ConfigFromModel converts the endpoint section of the application config
func ConfigFromModel(c models.EndpointConfig) Config {
	return Config{
		URL:             c.URL,
		Token:           c.Token,
		ConnectTimeout:  time.Duration(c.ConnectTimeoutSec) * time.Second,
		ReadTimeout:     time.Duration(c.ReadTimeoutSec) * time.Second,
		WriteTimeout:    time.Duration(c.WriteTimeoutSec) * time.Second,
		RateLimitPerSec: c.RateLimitPerSec,
	}
}

// Client delivers batches over HTTP. It holds no queue state.
type Client struct {
	url        string
	token      string
	httpClient *http.Client
	sealer     *crypto.Sealer
	breaker    *circuitbreaker.CircuitBreaker
	limiter    ratelimit.Limiter
	metrics    *metrics.Registry
	logger     *logrus.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the timeout-configured HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithCircuitBreaker routes requests through breaker
func WithCircuitBreaker(breaker *circuitbreaker.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = breaker }
}

// WithMetrics records delivery metrics into registry
func WithMetrics(registry *metrics.Registry) Option {
	return func(c *Client) { c.metrics = registry }
}

// NewClient creates a delivery client; a nil sealer sends plaintext
func NewClient(cfg Config, sealer *crypto.Sealer, logger *logrus.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	if sealer == nil {
		sealer, _ = crypto.NewSealer(models.EncryptionModePlain, nil)
	}

	limiter := ratelimit.NewUnlimited()
	if cfg.RateLimitPerSec > 0 {
		limiter = ratelimit.New(cfg.RateLimitPerSec)
	}

	c := &Client{
		url:        cfg.URL,
		token:      cfg.Token,
		httpClient: newHTTPClient(cfg),
		sealer:     sealer,
		limiter:    limiter,
		metrics:    metrics.GetRegistry(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newHTTPClient maps connect/write/read timeouts onto net/http. The dialer
// and TLS handshake get the connect timeout, the wait for response headers
// gets write+read, and the overall client timeout bounds the whole exchange.
func newHTTPClient(cfg Config) *http.Client {
	connect := orDefault(cfg.ConnectTimeout, DefaultConnectTimeout)
	read := orDefault(cfg.ReadTimeout, DefaultReadTimeout)
	write := orDefault(cfg.WriteTimeout, DefaultWriteTimeout)

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = connect
	transport.ResponseHeaderTimeout = write + read

	return &http.Client{
		Transport: transport,
		Timeout:   connect + write + read,
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// SendAsync validates the batch and delivers it on a new goroutine. Invalid
// input is rejected synchronously and onResult is not called; otherwise
// onResult is called exactly once, never before SendAsync returns control
// to the scheduler.
func (c *Client) SendAsync(ctx context.Context, batch models.OutboundBatch, onResult func(Result)) error {
	if onResult == nil {
		return apperrors.NewInvalidInputError("onResult", "result callback is required")
	}
	if batch.Len() == 0 {
		return ErrEmptyBatch
	}

	go func() {
		onResult(c.send(ctx, batch))
	}()
	return nil
}

func (c *Client) send(ctx context.Context, batch models.OutboundBatch) Result {
	ctx, requestID := tracing.EnsureRequestID(ctx)
	ctx, span := tracing.StartSpan(ctx, "delivery.send",
		attribute.Int("batch.size", batch.Len()),
		attribute.String("encryption.mode", c.sealer.Mode()),
	)
	defer span.End()

	result := Result{RequestID: requestID}
	start := time.Now()
	defer func() {
		c.record(result, batch.Len(), time.Since(start))
	}()

	plain, err := json.Marshal(batch)
	if err != nil {
		result.Err = apperrors.NewInvalidInputError("batch", fmt.Sprintf("batch is not valid JSON: %v", err))
		tracing.RecordError(ctx, result.Err)
		return result
	}
	result.Payload = string(plain)

	data, err := c.sealer.Frame(plain)
	if err != nil {
		result.Err = err
		tracing.RecordError(ctx, err)
		return result
	}

	body, err := json.Marshal(Envelope{Token: c.token, Data: data})
	if err != nil {
		result.Err = apperrors.NewCryptoError("envelope", err)
		tracing.RecordError(ctx, result.Err)
		return result
	}

	c.limiter.Take()

	post := func(ctx context.Context) error {
		status, err := c.post(ctx, requestID, body)
		result.StatusCode = status
		return err
	}

	if c.breaker != nil {
		err = c.breaker.Execute(ctx, post)
	} else {
		err = post(ctx)
	}
	if err != nil {
		if circuitbreaker.IsCircuitBreakerError(err) {
			err = apperrors.NewNetworkError(c.url, 0, err)
		}
		result.Err = err
		tracing.RecordError(ctx, err, attribute.Int("http.status_code", result.StatusCode))
		return result
	}

	result.Success = true
	span.SetAttributes(attribute.Int("http.status_code", result.StatusCode))
	return result
}

func (c *Client) post(ctx context.Context, requestID string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, apperrors.NewNetworkError(c.url, 0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(tracing.RequestIDHeader, requestID)
	tracing.InjectHeaders(ctx, propagation.HeaderCarrier(req.Header))

	c.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"bytes":      len(body),
	}).Debug("Posting batch to collection endpoint")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, apperrors.NewNetworkError(c.url, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return resp.StatusCode, apperrors.NewNetworkError(c.url, resp.StatusCode,
			fmt.Errorf("endpoint responded: %s", strings.TrimSpace(string(snippet))))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (c *Client) record(result Result, records int, elapsed time.Duration) {
	c.metrics.IncrementCounter(metrics.DeliveriesTotal, nil, "Delivery attempts")
	c.metrics.RecordTimer(metrics.DeliveryDuration, elapsed, nil)
	c.recordBreaker()

	fields := logrus.Fields{
		"request_id": result.RequestID,
		"records":    records,
		"status":     result.StatusCode,
		"elapsed_ms": elapsed.Milliseconds(),
	}
	if result.Success {
		c.metrics.AddToCounter(metrics.RecordsDelivered, float64(records), nil, "Records accepted by the endpoint")
		c.logger.WithFields(fields).Info("Batch delivered")
		return
	}

	reason := string(apperrors.GetCode(result.Err))
	c.metrics.IncrementCounter(metrics.DeliveryFailures, map[string]string{"reason": reason}, "Failed delivery attempts")
	apperrors.NewLogger(c.logger).LogRetryableError(result.Err, "Batch delivery failed", fields)
}

// recordBreaker exports the breaker counters as gauges. State is 0 closed,
// 1 open, 2 half-open.
func (c *Client) recordBreaker() {
	if c.breaker == nil {
		return
	}
	stats := c.breaker.GetStats()
	labels := map[string]string{"breaker": stats.Name}
	c.metrics.SetGauge(metrics.BreakerState, float64(stats.State), labels, "Circuit breaker state")
	c.metrics.SetGauge(metrics.BreakerRequests, float64(stats.Requests), labels, "Requests let through the circuit breaker")
	c.metrics.SetGauge(metrics.BreakerSuccesses, float64(stats.Successes), labels, "Successes since the circuit breaker last changed state")
	c.metrics.SetGauge(metrics.BreakerFailures, float64(stats.Failures), labels, "Consecutive failures counted by the circuit breaker")
}
