package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tridentsec/trident-analytics/internal/cache"
	"github.com/tridentsec/trident-analytics/internal/models"
	"github.com/tridentsec/trident-analytics/internal/utils"
)

const maxResponseBytes = 16 << 20

// ClientConfig configures a TridentClient.
type ClientConfig struct {
	BaseURL          string
	MetricsPath      string
	ModelMetricsPath string
	BaselinesPath    string
	AlertsPath       string
	Timeout          time.Duration
	Tokens           TokenSource
	Cache            cache.Provider
	CacheTTL         time.Duration
	Logger           *slog.Logger
}

// TridentClient wraps the TRIDENT backend REST endpoints consumed by the analytics view.
type TridentClient struct {
	baseURL          string
	metricsPath      string
	modelMetricsPath string
	baselinesPath    string
	alertsPath       string
	httpClient       *http.Client
	tokens           TokenSource
	cache            cache.Provider
	cacheTTL         time.Duration
	logger           *slog.Logger
}

// NewTridentClient constructs a client targeting the configured backend.
func NewTridentClient(cfg ClientConfig) *TridentClient {
	if cfg.Cache == nil {
		cfg.Cache = cache.NoopProvider{}
	}
	if cfg.Tokens == nil {
		cfg.Tokens = NewStaticTokenSource("")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &TridentClient{
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		metricsPath:      firstNonEmpty(cfg.MetricsPath, "/api/v1/metrics"),
		modelMetricsPath: firstNonEmpty(cfg.ModelMetricsPath, "/api/v1/metrics/model"),
		baselinesPath:    firstNonEmpty(cfg.BaselinesPath, "/api/v1/baseline"),
		alertsPath:       firstNonEmpty(cfg.AlertsPath, "/api/v1/alerts"),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tokens:   cfg.Tokens,
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
		logger:   cfg.Logger,
	}
}

// FetchMetrics retrieves the general metrics snapshot.
func (c *TridentClient) FetchMetrics(ctx context.Context) (models.MetricsSnapshot, error) {
	body, err := c.get(ctx, c.metricsPath, nil)
	if err != nil {
		return models.MetricsSnapshot{}, fmt.Errorf("trident metrics request failed: %w", err)
	}
	return ParseMetricsSnapshot(body)
}

// FetchModelMetrics retrieves the dedicated model-performance record.
func (c *TridentClient) FetchModelMetrics(ctx context.Context) (models.ModelPerformance, error) {
	body, err := c.get(ctx, c.modelMetricsPath, nil)
	if err != nil {
		return models.ModelPerformance{}, fmt.Errorf("trident model metrics request failed: %w", err)
	}
	return ParseModelPerformance(body)
}

// FetchBaselines retrieves the stored traffic baselines.
func (c *TridentClient) FetchBaselines(ctx context.Context) ([]models.Baseline, error) {
	body, err := c.get(ctx, c.baselinesPath, nil)
	if err != nil {
		return nil, fmt.Errorf("trident baselines request failed: %w", err)
	}
	return ParseBaselines(body)
}

// FetchAlerts retrieves up to limit alerts. A non-positive limit omits the parameter.
func (c *TridentClient) FetchAlerts(ctx context.Context, limit int) ([]models.AlertRecord, error) {
	var query url.Values
	if limit > 0 {
		query = url.Values{"limit": []string{strconv.Itoa(limit)}}
	}
	body, err := c.get(ctx, c.alertsPath, query)
	if err != nil {
		return nil, fmt.Errorf("trident alerts request failed: %w", err)
	}
	return ParseAlerts(body)
}

// Invalidate drops cached responses for every endpoint so the next cycle goes to
// the backend. alertLimit must match the limit passed to FetchAlerts.
func (c *TridentClient) Invalidate(ctx context.Context, alertLimit int) error {
	if c.cacheTTL <= 0 {
		return nil
	}
	var alertQuery url.Values
	if alertLimit > 0 {
		alertQuery = url.Values{"limit": []string{strconv.Itoa(alertLimit)}}
	}
	targets := []struct {
		path  string
		query url.Values
	}{
		{c.metricsPath, nil},
		{c.modelMetricsPath, nil},
		{c.baselinesPath, nil},
		{c.alertsPath, alertQuery},
	}
	var errs []error
	for _, t := range targets {
		endpoint, err := c.resolve(t.path, t.query)
		if err != nil {
			return err
		}
		if err := c.cache.Del(ctx, "resp:"+endpoint); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *TridentClient) resolve(p string, query url.Values) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("trident base URL not configured")
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	u.Path = path.Join(u.Path, "/"+strings.TrimLeft(p, "/"))
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// get performs a GET and returns the raw body of a 200 response. Successful
// bodies are cached under the resolved URL for cacheTTL.
func (c *TridentClient) get(ctx context.Context, p string, query url.Values) ([]byte, error) {
	endpoint, err := c.resolve(p, query)
	if err != nil {
		return nil, utils.Unavailable("GET "+p, err)
	}

	cacheKey := "resp:" + endpoint
	if c.cacheTTL > 0 {
		if cached, err := c.cache.Get(ctx, cacheKey); err == nil {
			return cached, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Debug("response cache read failed", slog.String("key", cacheKey), slog.Any("error", err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, utils.Unavailable("GET "+p, err)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("network error: no response from backend", slog.String("path", p), slog.Any("error", err))
		return nil, utils.Unavailable("GET "+p, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, utils.Unavailable("GET "+p, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Class: ClassifyStatus(resp.StatusCode), Message: errorMessage(body)}
		c.logStatus(p, statusErr)
		if resp.StatusCode == http.StatusUnauthorized {
			c.tokens.Clear()
		}
		return nil, utils.Unavailable("GET "+p, statusErr)
	}

	if c.cacheTTL > 0 {
		if err := c.cache.Set(ctx, cacheKey, body, c.cacheTTL); err != nil {
			c.logger.Debug("response cache write failed", slog.String("key", cacheKey), slog.Any("error", err))
		}
	}
	return body, nil
}

func (c *TridentClient) logStatus(p string, err *StatusError) {
	attrs := []any{slog.String("path", p), slog.Int("status", err.StatusCode), slog.String("message", err.Message)}
	switch err.Class {
	case StatusUnauthorized:
		c.logger.Warn("unauthorized, clearing token", attrs...)
	case StatusForbidden:
		c.logger.Error("access forbidden", attrs...)
	case StatusNotFound:
		c.logger.Error("resource not found", attrs...)
	case StatusRateLimited:
		c.logger.Error("rate limit exceeded", attrs...)
	case StatusServerError:
		c.logger.Error("server error", attrs...)
	default:
		c.logger.Error("api error", attrs...)
	}
}

// StatusClass buckets non-200 responses for logging.
type StatusClass string

const (
	StatusUnauthorized StatusClass = "unauthorized"
	StatusForbidden    StatusClass = "forbidden"
	StatusNotFound     StatusClass = "not_found"
	StatusRateLimited  StatusClass = "rate_limited"
	StatusServerError  StatusClass = "server_error"
	StatusOther        StatusClass = "other"
)

// ClassifyStatus maps an HTTP status code to its bucket.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code == http.StatusUnauthorized:
		return StatusUnauthorized
	case code == http.StatusForbidden:
		return StatusForbidden
	case code == http.StatusNotFound:
		return StatusNotFound
	case code == http.StatusTooManyRequests:
		return StatusRateLimited
	case code >= 500:
		return StatusServerError
	default:
		return StatusOther
	}
}

// StatusError is returned for any non-200 backend response.
type StatusError struct {
	StatusCode int
	Class      StatusClass
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("trident returned %d (%s): %s", e.StatusCode, e.Class, e.Message)
}

// errorMessage extracts detail or message from an error body.
func errorMessage(body []byte) string {
	var payload struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if s, ok := payload.Detail.(string); ok && s != "" {
			return s
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return "An error occurred"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
