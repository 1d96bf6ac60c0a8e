package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// maxBodyBytes bounds how much of a response body is read
const maxBodyBytes = 1 << 20

var (
	// ErrBodyTooLarge is returned for successful responses over the body limit
	ErrBodyTooLarge = errors.New("response body too large")
	// ErrMissingReply is returned when a chat response has no reply field
	ErrMissingReply = errors.New("missing reply field")
)

// API is the remote model-serving backend as seen by the chat controller
type API interface {
	Health(ctx context.Context) (HealthResponse, error)
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// Client talks to the backend over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	duration   metric.Float64Histogram
	limiter    *rate.Limiter
}

// NewClient creates a backend client. timeout bounds every request.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	histogram, err := meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram: %w", err)
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "backend"),
		tracer:     tracer,
		duration:   histogram,
	}, nil
}

// BaseURL returns the backend address
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetRateLimit throttles Chat to perMinute requests. Non-positive values
// remove the limit. Not safe to call while requests are in flight.
func (c *Client) SetRateLimit(perMinute int) {
	if perMinute <= 0 {
		c.limiter = nil
		return
	}
	c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

// CloseIdleConnections releases pooled keep-alive connections
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// Health calls GET /health
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	ctx, span := c.tracer.Start(ctx, "backend.health")
	defer span.End()

	var out HealthResponse
	if err := c.do(ctx, span, http.MethodGet, "/health", nil, &out); err != nil {
		return HealthResponse{}, err
	}
	span.SetAttributes(attribute.String("health.status", out.Status))
	return out, nil
}

// Chat calls POST /chat
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	ctx, span := c.tracer.Start(ctx, "backend.chat")
	defer span.End()

	span.SetAttributes(
		attribute.Int("chat.message_length", len(req.Message)),
		attribute.Int("chat.max_length", req.MaxLength),
		attribute.Float64("chat.temperature", req.Temperature),
	)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return ChatResponse{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	var out struct {
		Reply *string `json:"reply"`
	}
	if err := c.do(ctx, span, http.MethodPost, "/chat", jsonData, &out); err != nil {
		return ChatResponse{}, err
	}
	if out.Reply == nil {
		err := ErrMissingReply
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("backend request failed", "method", http.MethodPost, "path", "/chat", "error", err)
		return ChatResponse{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	span.SetAttributes(attribute.Int("chat.reply_length", len(*out.Reply)))
	return ChatResponse{Reply: *out.Reply}, nil
}

func (c *Client) do(ctx context.Context, span trace.Span, method, path string, body []byte, out any) (err error) {
	start := time.Now()
	defer func() {
		c.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(
				attribute.String("http.route", path),
				attribute.Bool("error", err != nil),
			))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.logger.Warn("backend request failed", "method", method, "path", path, "error", err)
		}
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	truncated := len(data) > maxBodyBytes
	if truncated {
		data = data[:maxBodyBytes]
		c.logger.Warn("response body truncated", "method", method, "path", path,
			"status", resp.StatusCode, "limit_bytes", maxBodyBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Status: resp.Status}
		var detail ErrorResponse
		if json.Unmarshal(data, &detail) == nil && detail.Detail != "" {
			apiErr.Detail = detail.Detail
		} else {
			apiErr.Detail = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if truncated {
		return fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, maxBodyBytes)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	c.logger.Debug("backend request completed", "method", method, "path", path,
		"status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
	return nil
}
