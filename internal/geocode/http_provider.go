package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// maxBody bounds how much of a provider response is read.
const maxBody = 1 << 20

// HTTPProvider talks to a Nominatim-compatible JSON API
// (/search and /reverse with format=jsonv2).
//
// Outbound calls are paced by a token bucket so the service stays within the
// provider's usage policy; waiting for a token never outlives the caller's
// deadline.
type HTTPProvider struct {
	baseURL   string
	userAgent string
	apiKey    string
	client    *http.Client
	limiter   *rate.Limiter
}

// HTTPOption customizes an HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithUserAgent sets the User-Agent header. Public Nominatim requires one.
func WithUserAgent(ua string) HTTPOption {
	return func(p *HTTPProvider) { p.userAgent = ua }
}

// WithAPIKey sends key in the X-Api-Key header on every call.
func WithAPIKey(key string) HTTPOption {
	return func(p *HTTPProvider) { p.apiKey = key }
}

// WithRPS caps outbound calls per second. rps <= 0 disables pacing.
func WithRPS(rps float64) HTTPOption {
	return func(p *HTTPProvider) {
		if rps <= 0 {
			p.limiter = nil
			return
		}
		p.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvider) {
		if c != nil {
			p.client = c
		}
	}
}

// NewHTTPProvider returns a provider rooted at baseURL
// (e.g. "https://nominatim.openstreetmap.org").
func NewHTTPProvider(baseURL string, opts ...HTTPOption) *HTTPProvider {
	p := &HTTPProvider{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: "go-location-backend/1.0",
		client:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

type searchHit struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

type reverseHit struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// Forward implements Provider.
func (p *HTTPProvider) Forward(ctx context.Context, query string) ([]Coordinates, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("limit", "1")
	q.Set("q", query)

	var hits []searchHit
	if err := p.get(ctx, "/search", q, &hits); err != nil {
		return nil, err
	}
	out := make([]Coordinates, 0, len(hits))
	for _, h := range hits {
		lat, err1 := strconv.ParseFloat(h.Lat, 64)
		lng, err2 := strconv.ParseFloat(h.Lon, 64)
		if err1 != nil || err2 != nil || !ValidCoordinates(lat, lng) {
			continue
		}
		out = append(out, Coordinates{Lat: lat, Lng: lng, Display: h.DisplayName})
	}
	return out, nil
}

// Reverse implements Provider.
func (p *HTTPProvider) Reverse(ctx context.Context, lat, lng float64) ([]AddressResult, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', 6, 64))

	var hit reverseHit
	if err := p.get(ctx, "/reverse", q, &hit); err != nil {
		return nil, err
	}
	// Nominatim answers 200 {"error":"Unable to geocode"} for open water etc.
	if hit.Error != "" || strings.TrimSpace(hit.DisplayName) == "" {
		return nil, nil
	}
	return []AddressResult{{Address: hit.DisplayName, Display: hit.Name}}, nil
}

func (p *HTTPProvider) get(ctx context.Context, path string, q url.Values, dst any) error {
	if p.limiter != nil {
		// Wait fails fast when the next token lies beyond the deadline.
		if err := p.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: waiting for send slot: %v", ErrTimeout, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", p.userAgent)
	if p.apiKey != "" {
		req.Header.Set("X-Api-Key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		if isTimeout(ctx, err) {
			return fmt.Errorf("%w: reading body: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: reading body: %v", ErrUpstream, err)
	}

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	return nil
}

// classifyStatus maps non-2xx responses onto the provider error classes.
func classifyStatus(code int, body []byte) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrRateLimited, code)
	case code == http.StatusPaymentRequired:
		return fmt.Errorf("%w: status %d", ErrQuotaExceeded, code)
	case code == http.StatusForbidden && mentionsQuota(body):
		return fmt.Errorf("%w: status %d", ErrQuotaExceeded, code)
	default:
		return fmt.Errorf("%w: status %d", ErrUpstream, code)
	}
}

func mentionsQuota(body []byte) bool {
	s := strings.ToLower(string(body))
	return strings.Contains(s, "quota") || strings.Contains(s, "limit exceeded")
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
