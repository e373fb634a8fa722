package client

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/danielrs/building-forecast-service/internal/models"
	"github.com/danielrs/building-forecast-service/internal/observability"
)

// ForecastClient fetches the raw upstream forecast payload for a location.
// Implementations must treat the location as already rounded.
type ForecastClient interface {
	GetForecast(ctx context.Context, loc models.Location) (Result, error)
}

var (
	ErrMissingContact   = errors.New("upstream contact is required")
	ErrUpstreamStatus   = errors.New("unexpected upstream status")
	ErrRateLimited      = errors.New("rate limited")
	ErrCircuitOpen      = errors.New("circuit breaker open")
	ErrMalformedPayload = errors.New("malformed upstream payload")
)

// Result is a successful upstream fetch: the decoded document, the raw body
// for caching, and the cache deadline from the Expires header.
type Result struct {
	Document  Document
	Raw       []byte
	ExpiresAt time.Time
}

// MetNoClient talks to a met.no locationforecast-compatible endpoint.
// One request per call; failures are never retried here, the service layer
// degrades to a synthetic forecast instead.
type MetNoClient struct {
	baseURL    string
	userAgent  string
	defaultTTL time.Duration
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewMetNoClient creates a client for the given endpoint. contact identifies
// the operator (met.no TOS requires an identifying User-Agent); defaultTTL is
// the cache validity used when the upstream omits a usable Expires header.
func NewMetNoClient(baseURL, contact string, timeout, defaultTTL time.Duration) (*MetNoClient, error) {
	if strings.TrimSpace(contact) == "" {
		return nil, fmt.Errorf("%w: set upstream.contact or UPSTREAM_CONTACT", ErrMissingContact)
	}
	return &MetNoClient{
		baseURL:    baseURL,
		userAgent:  "BuildingEnergySimulator/1.0 (" + strings.TrimSpace(contact) + ")",
		defaultTTL: defaultTTL,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker installs an optional breaker around upstream calls.
// When the breaker is open, GetForecast fails fast with ErrCircuitOpen.
func (c *MetNoClient) SetCircuitBreaker(cb *gobreaker.CircuitBreaker) {
	c.breaker = cb
}

// GetForecast issues a single GET for the rounded coordinates and returns the
// parsed document together with the raw payload and its expiry deadline.
func (c *MetNoClient) GetForecast(ctx context.Context, loc models.Location) (Result, error) {
	if c.breaker == nil {
		return c.callAPI(ctx, loc)
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.callAPI(ctx, loc)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Result{}, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return Result{}, err
	}
	return out.(Result), nil
}

func (c *MetNoClient) callAPI(ctx context.Context, loc models.Location) (Result, error) {
	start := time.Now()

	req, err := c.buildRequest(ctx, loc)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.UpstreamCallsTotal.WithLabelValues("error").Inc()
		observability.UpstreamDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return Result{}, fmt.Errorf("request timeout: %w", err)
		}
		return Result{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(status).Inc()
	observability.UpstreamDuration.WithLabelValues(status).Observe(duration)

	if err := c.handleErrorResponse(resp); err != nil {
		return Result{}, err
	}

	body, err := decodeBody(resp)
	if err != nil {
		return Result{}, fmt.Errorf("read response body: %w", err)
	}

	doc, err := ParseDocument(body)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Document:  doc,
		Raw:       body,
		ExpiresAt: c.parseExpires(resp),
	}, nil
}

func (c *MetNoClient) buildRequest(ctx context.Context, loc models.Location) (*http.Request, error) {
	baseURL, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}

	params := url.Values{}
	params.Set("lat", models.FormatCoordinate(loc.Lat))
	params.Set("lon", models.FormatCoordinate(loc.Lon))
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	return req, nil
}

func (c *MetNoClient) handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP %d", ErrRateLimited, resp.StatusCode)
	default:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamStatus, resp.StatusCode)
	}
}

// parseExpires reads the cache deadline from the Expires header. A missing or
// unparsable header falls back to now+defaultTTL rather than failing the fetch.
func (c *MetNoClient) parseExpires(resp *http.Response) time.Time {
	if t, err := http.ParseTime(resp.Header.Get("Expires")); err == nil {
		return t
	}
	return time.Now().Add(c.defaultTTL)
}

// decodeBody reads the body, decompressing according to Content-Encoding.
// Needed because setting Accept-Encoding explicitly disables the transport's
// transparent gzip handling.
func decodeBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	}
	return io.ReadAll(reader)
}

// ParseDocument decodes a raw locationforecast payload. Used both on fresh
// responses and on cached payloads, since only the raw body is cached.
func ParseDocument(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return doc, nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
