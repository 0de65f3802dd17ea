// Package lms calls the Open edX REST APIs on behalf of the gateway.
package lms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/Additional-Code/paygate/internal/config"
)

var clientTracer = otel.Tracer("github.com/Additional-Code/paygate/lms")

const (
	tokenPath      = "/oauth2/access_token"
	enrollmentPath = "/api/enrollment/v1/enrollment"
)

// ErrNotConfigured means no OAuth2 client credentials were provided.
var ErrNotConfigured = errors.New("lms client is not configured")

// Module provides the LMS client to Fx.
var Module = fx.Provide(NewClient)

type courseDetails struct {
	CourseID string `json:"course_id"`
}

type enrollmentRequest struct {
	User          string        `json:"user"`
	Mode          string        `json:"mode"`
	IsActive      bool          `json:"is_active"`
	CourseDetails courseDetails `json:"course_details"`
}

// Client enrolls learners through the LMS enrollment API.
type Client struct {
	http       *http.Client
	enrollURL  string
	configured bool
	logger     *zap.Logger
}

// NewClient builds a client authenticated with OAuth2 client credentials.
// The LMS issues JWT access tokens when asked with token_type=jwt.
func NewClient(cfg config.Config, logger *zap.Logger) *Client {
	base := &http.Client{Timeout: cfg.LMS.Timeout}
	cc := clientcredentials.Config{
		ClientID:       cfg.LMS.ClientID,
		ClientSecret:   cfg.LMS.ClientSecret,
		TokenURL:       cfg.LMS.BaseURL + tokenPath,
		EndpointParams: url.Values{"token_type": {"jwt"}},
		AuthStyle:      oauth2.AuthStyleInParams,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	httpClient := cc.Client(tokenCtx)
	httpClient.Timeout = cfg.LMS.Timeout

	return &Client{
		http:       httpClient,
		enrollURL:  cfg.LMS.BaseURL + enrollmentPath,
		configured: cfg.LMS.ClientID != "" && cfg.LMS.ClientSecret != "",
		logger:     logger,
	}
}

// Enroll activates the learner's enrollment in the course mode.
func (c *Client) Enroll(ctx context.Context, username, courseID, mode string) error {
	if !c.configured {
		return ErrNotConfigured
	}

	ctx, span := clientTracer.Start(ctx, "LMS.Enroll",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("course.id", courseID),
			attribute.String("course.mode", mode),
		),
	)
	defer span.End()

	body, err := json.Marshal(enrollmentRequest{
		User:          username,
		Mode:          mode,
		IsActive:      true,
		CourseDetails: courseDetails{CourseID: courseID},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.enrollURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return fmt.Errorf("enroll %s in %s: %w", username, courseID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		span.SetStatus(codes.Error, "non-2xx response")
		return fmt.Errorf("enroll %s in %s: lms answered %d: %s", username, courseID, resp.StatusCode, bytes.TrimSpace(detail))
	}

	c.logger.Info("learner enrolled",
		zap.String("username", username),
		zap.String("course_id", courseID),
		zap.String("mode", mode),
	)
	return nil
}
