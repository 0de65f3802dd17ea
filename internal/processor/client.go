// Package processor talks to the external payment processor that hosts checkout pages.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/paygate/internal/config"
	"github.com/Additional-Code/paygate/pkg/signature"
)

var clientTracer = otel.Tracer("github.com/Additional-Code/paygate/processor")

var (
	// ErrNotConfigured means the create URL or shared secret is missing.
	ErrNotConfigured = errors.New("payment gateway is not configured")
	// ErrUpstream wraps every failure of the create call.
	ErrUpstream = errors.New("payment gateway error")
)

// maxResponseBytes bounds how much of the processor response is read.
const maxResponseBytes = 1 << 20

// Module provides the processor client to Fx.
var Module = fx.Provide(NewClient)

// Customer identifies the learner to the processor.
type Customer struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Metadata echoes the purchased course back to the processor.
type Metadata struct {
	CourseID string `json:"course_id"`
	Mode     string `json:"mode"`
}

// CreateRequest is the signed body of a payment creation call. Field order is fixed.
type CreateRequest struct {
	OrderUID  string   `json:"order_uid"`
	Amount    string   `json:"amount"`
	Currency  string   `json:"currency"`
	Provider  string   `json:"provider"`
	ReturnURL string   `json:"return_url"`
	Customer  Customer `json:"customer"`
	Metadata  Metadata `json:"metadata"`
}

// CreateResponse is what the processor answers on success.
type CreateResponse struct {
	CheckoutURL string `json:"checkout_url"`
	TxnID       string `json:"txn_id"`
}

// Client signs and posts payment creation requests.
type Client struct {
	http      *http.Client
	createURL string
	secret    []byte
	header    string
	logger    *zap.Logger
}

// NewClient builds a client from the payment configuration.
func NewClient(cfg config.Config, logger *zap.Logger) *Client {
	return &Client{
		http:      &http.Client{Timeout: cfg.Payment.RequestTimeout},
		createURL: cfg.Payment.CreateURL,
		secret:    []byte(cfg.Payment.SharedSecret),
		header:    cfg.Payment.SignatureHeader,
		logger:    logger,
	}
}

// Configured reports whether outbound calls can be made.
func (c *Client) Configured() bool {
	return c.createURL != "" && len(c.secret) > 0
}

// Secret exposes the shared secret for verifying inbound callbacks.
func (c *Client) Secret() []byte {
	return c.secret
}

// SignatureHeader is the header carrying the hex HMAC in both directions.
func (c *Client) SignatureHeader() string {
	return c.header
}

// Create posts a signed payment request. It never retries.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	ctx, span := clientTracer.Start(ctx, "Processor.Create",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("order.uid", req.OrderUID)),
	)
	defer span.End()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode create request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.createURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(c.header, signature.Sign(c.secret, body))
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUpstream, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		span.SetStatus(codes.Error, "non-2xx response")
		c.logger.Warn("payment processor rejected create",
			zap.String("order_uid", req.OrderUID),
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(raw), 256)),
			zap.Duration("elapsed", time.Since(started)),
		)
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var out CreateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		span.SetStatus(codes.Error, "invalid response")
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	out.CheckoutURL = strings.TrimSpace(out.CheckoutURL)
	if out.CheckoutURL == "" {
		span.SetStatus(codes.Error, "missing checkout_url")
		return nil, fmt.Errorf("%w: missing checkout_url", ErrUpstream)
	}
	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
