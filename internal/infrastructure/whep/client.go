package whep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"edgeview/internal/core/domain"
	"edgeview/internal/core/ports"
	"edgeview/internal/infrastructure/monitoring"
	"edgeview/pkg/circuitbreaker"
	"edgeview/pkg/tracing"
	"edgeview/pkg/utils"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	contentTypeSDP = "application/sdp"
	maxAnswerBytes = 1 << 20
)

type Config struct {
	// Timeout bounds each POST; the fallback gets its own budget.
	Timeout         time.Duration
	FallbackEnabled bool
	FallbackFrom    string
	FallbackTo      string
}

func DefaultConfig() Config {
	return Config{
		Timeout:         10 * time.Second,
		FallbackEnabled: true,
		FallbackFrom:    "/live/cam/whep",
		FallbackTo:      "/whep?path=live/cam",
	}
}

// Client posts SDP offers to WHEP endpoints. It is safe for concurrent use
// by many sessions.
type Client struct {
	cfg      Config
	http     *http.Client
	breakers *circuitbreaker.Registry
	metrics  *monitoring.PrometheusCollector
	logger   *zap.SugaredLogger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithCircuitBreakers guards every endpoint host with its own breaker.
func WithCircuitBreakers(r *circuitbreaker.Registry) Option {
	return func(cl *Client) { cl.breakers = r }
}

func WithMetrics(m *monitoring.PrometheusCollector) Option {
	return func(cl *Client) { cl.metrics = m }
}

func NewClient(cfg Config, logger *zap.SugaredLogger, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FallbackURL derives the query-style endpoint from a path-style one. ok
// is false when the URL does not contain the path-style form.
func FallbackURL(primary, from, to string) (string, bool) {
	if from == "" || !strings.Contains(primary, from) {
		return "", false
	}
	return strings.Replace(primary, from, to, 1), true
}

// Exchange sends offer to endpoint and returns the SDP answer. A non-2xx
// or failed primary POST is retried exactly once against the fallback URL.
func (c *Client) Exchange(ctx context.Context, endpoint, offer string) (string, error) {
	answer, err := c.post(ctx, endpoint, offer, false)
	if err == nil {
		return answer, nil
	}
	if ctx.Err() != nil || !c.cfg.FallbackEnabled {
		return "", err
	}

	fallback, ok := FallbackURL(endpoint, c.cfg.FallbackFrom, c.cfg.FallbackTo)
	if !ok {
		return "", err
	}

	c.logger.Infow("primary WHEP endpoint failed, trying fallback",
		"url", endpoint,
		"fallback_url", fallback,
		"error", err,
	)
	return c.post(ctx, fallback, offer, true)
}

func (c *Client) post(ctx context.Context, endpoint, offer string, fallback bool) (string, error) {
	ctx, span := tracing.TraceSignalingPost(ctx, endpoint, fallback)
	defer span.End()

	answer, err := c.guarded(ctx, endpoint, func() (string, error) {
		return c.do(ctx, endpoint, offer)
	})

	outcome := classify(err)
	c.metrics.RecordSignaling(fallback, outcome)
	if err != nil {
		tracing.RecordError(ctx, err)
		c.logger.Debugw("WHEP POST failed", "url", endpoint, "fallback", fallback, "outcome", outcome, "error", err)
		return "", err
	}
	tracing.AddSpanAttributes(ctx, attribute.Int("whep.answer_bytes", len(answer)))
	return answer, nil
}

func (c *Client) guarded(ctx context.Context, endpoint string, fn func() (string, error)) (string, error) {
	if c.breakers == nil {
		return fn()
	}
	cb := c.breakers.Get(hostKey(endpoint))
	answer, err := circuitbreaker.Execute(ctx, cb, fn)
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return "", &domain.SignalingError{URL: endpoint, Cause: err}
	}
	return answer, err
}

func (c *Client) do(ctx context.Context, endpoint, offer string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, strings.NewReader(offer))
	if err != nil {
		return "", &domain.SignalingError{URL: endpoint, Cause: err}
	}
	req.Header.Set("Content-Type", contentTypeSDP)
	req.Header.Set("Accept", contentTypeSDP)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &domain.SignalingError{URL: endpoint, Timeout: isTimeout(reqCtx, err), Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerBytes))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &domain.SignalingError{
			Status: resp.StatusCode,
			URL:    endpoint,
			Cause:  fmt.Errorf("%s", utils.TruncateString(strings.TrimSpace(string(body)), 200)),
		}
	}
	if err != nil {
		return "", &domain.SignalingError{URL: endpoint, Timeout: isTimeout(reqCtx, err), Cause: err}
	}
	return string(body), nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func classify(err error) string {
	if err == nil {
		return monitoring.OutcomeOK
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return monitoring.OutcomeCircuitOpen
	}
	var se *domain.SignalingError
	if errors.As(err, &se) {
		switch {
		case se.Timeout:
			return monitoring.OutcomeTimeout
		case se.Status != 0:
			return monitoring.OutcomeHTTPError
		}
	}
	return monitoring.OutcomeNetwork
}

func hostKey(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}

// CountsAgainstEndpoint tells the breaker which signaling errors mean the
// endpoint is unhealthy. Caller cancellation and 4xx rejections do not.
func CountsAgainstEndpoint(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *domain.SignalingError
	if errors.As(err, &se) && se.Status >= 400 && se.Status < 500 {
		return false
	}
	return true
}

var _ ports.Signaler = (*Client)(nil)
