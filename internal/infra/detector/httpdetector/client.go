// Package httpdetector implements the stage validator port against a remote
// pose detection service over HTTP.
package httpdetector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/liveness-gate/internal/app/scanning"
	"github.com/ahrav/liveness-gate/internal/config"
	"github.com/ahrav/liveness-gate/internal/domain/liveness"
	"github.com/ahrav/liveness-gate/pkg/common"
	"github.com/ahrav/liveness-gate/pkg/common/logger"
)

var _ scanning.StageValidator = (*Client)(nil)

// Client validates stages against a remote pose detector. Requests are rate
// limited so a tight poll loop cannot overwhelm the detector.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *common.RateLimiter
	retry      config.RetryConfig

	logger *logger.Logger
	tracer trace.Tracer
}

// NewClient creates a detector client for the configured endpoint.
func NewClient(cfg config.DetectorConfig, log *logger.Logger, tracer trace.Tracer) (*Client, error) {
	base, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid detector endpoint: %w", err)
	}

	var limiter *common.RateLimiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = common.NewRateLimiter(cfg.RateLimit, burst)
	}

	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		retry:      cfg.Retry,
		logger:     log.With("component", "detector_client"),
		tracer:     tracer,
	}, nil
}

// WaitForReady polls the detector's health endpoint with exponential backoff
// until it responds or the retry budget is spent. This handles temporary
// detector unavailability during startup.
func (c *Client) WaitForReady(ctx context.Context) error {
	expBackoff := backoff.NewExponentialBackOff()
	if c.retry.MaxWait > 0 {
		expBackoff.MaxElapsedTime = c.retry.MaxWait
	}
	if c.retry.InitialWait > 0 {
		expBackoff.InitialInterval = c.retry.InitialWait
	}

	operation := func() error {
		if err := c.ping(ctx); err != nil {
			c.logger.Warn(ctx, "detector not ready, will retry", "error", err)
			return err
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		return fmt.Errorf("detector not reachable after retries: %w", err)
	}
	return nil
}

func (c *Client) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.JoinPath("/v1/health").String(), nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("detector health check: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detector health check returned status %d", resp.StatusCode)
	}
	return nil
}

// validateRequest is the wire format for a pose validation call.
type validateRequest struct {
	Stage string `json:"stage"`
}

// validateResponse is the detector's verdict for a pose validation call.
type validateResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Validate asks the detector whether the subject currently satisfies the
// given pose. A negative verdict returns (false, nil); transport and
// protocol failures return an error.
func (c *Client) Validate(ctx context.Context, stageID liveness.StageID) (bool, error) {
	ctx, span := c.tracer.Start(ctx, "detector.validate",
		trace.WithAttributes(attribute.String("stage", stageID.String())))
	defer span.End()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			return false, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	body, err := json.Marshal(validateRequest{Stage: stageID.String()})
	if err != nil {
		return false, fmt.Errorf("encoding validate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL.JoinPath("/v1/poses/validate").String(), bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("building validate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validate request failed")
		return false, fmt.Errorf("detector validate request: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("detector returned status %d", resp.StatusCode)
		span.RecordError(err)
		span.SetStatus(codes.Error, "unexpected status")
		return false, err
	}

	var verdict validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("decoding validate response: %w", err)
	}

	span.SetAttributes(attribute.Bool("valid", verdict.Valid))
	c.logger.Debug(ctx, "detector verdict",
		"stage", stageID, "valid", verdict.Valid,
		"reason", verdict.Reason, "elapsed", time.Since(start))

	return verdict.Valid, nil
}
