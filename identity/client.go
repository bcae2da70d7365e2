package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	loginPath   = "/auth/login"
	signupPath  = "/auth/signup"
	refreshPath = "/auth/refresh"

	// RefreshTokenHeader carries the refresh token on refresh calls.
	RefreshTokenHeader = "refresh-token"

	tracerName      = "github.com/MrEthical07/authsession/identity"
	maxResponseBody = 1 << 20
)

// Client calls the identity provider.
//
// Client is safe for concurrent use.
type Client struct {
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	tracer    trace.Tracer
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRateLimit throttles outbound calls to r per second with the given
// burst. A non-positive r disables throttling.
func WithRateLimit(r float64, burst int) Option {
	return func(c *Client) {
		if r <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithTracerProvider sets the provider used for client spans. The global
// provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithUserAgent sets the User-Agent header of outbound calls.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New returns a Client for the provider at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid provider url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid provider url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("provider url has no host")
	}

	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// BaseURL returns the normalized provider URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login exchanges a username and password for a token.
//
// 400, 401, and 403 map to ErrInvalidCredentials; 422 to *ValidationError.
func (c *Client) Login(ctx context.Context, username, password string) (tok *Token, err error) {
	ctx, span := c.startSpan(ctx, "login")
	defer func() { endSpan(span, err) }()

	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	form.Set("grant_type", "password")

	status, body, err := c.post(ctx, span, loginPath, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), nil)
	if err != nil {
		return nil, err
	}

	switch {
	case status >= 200 && status < 300:
		return parseToken("login", status, body)
	case status == http.StatusBadRequest, status == http.StatusUnauthorized, status == http.StatusForbidden:
		if detail := parseDetail(body); detail != "" {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, detail)
		}
		return nil, ErrInvalidCredentials
	case status == http.StatusUnprocessableEntity:
		return nil, &ValidationError{Detail: detailOr(body, "Login failed")}
	default:
		return nil, &ProviderError{Op: "login", StatusCode: status, Detail: detailOr(body, "Login failed")}
	}
}

// Signup registers a new account. It does not log in.
//
// 400, 409, and 422 map to *ValidationError.
func (c *Client) Signup(ctx context.Context, p Profile) (res *SignupResult, err error) {
	ctx, span := c.startSpan(ctx, "signup")
	defer func() { endSpan(span, err) }()

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	status, body, err := c.post(ctx, span, signupPath, "application/json", bytes.NewReader(payload), nil)
	if err != nil {
		return nil, err
	}

	switch {
	case status >= 200 && status < 300:
		return parseSignup(status, body)
	case status == http.StatusBadRequest, status == http.StatusConflict, status == http.StatusUnprocessableEntity:
		return nil, &ValidationError{Detail: detailOr(body, "Signup failed")}
	default:
		return nil, &ProviderError{Op: "signup", StatusCode: status, Detail: detailOr(body, "Signup failed")}
	}
}

// Refresh exchanges a refresh token for a new access token. The returned
// Token carries a RefreshToken only when the provider rotated it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (tok *Token, err error) {
	ctx, span := c.startSpan(ctx, "refresh")
	defer func() { endSpan(span, err) }()

	header := http.Header{}
	header.Set(RefreshTokenHeader, refreshToken)

	status, body, err := c.post(ctx, span, refreshPath, "application/json", strings.NewReader("{}"), header)
	if err != nil {
		return nil, err
	}

	if status < 200 || status >= 300 {
		return nil, &ProviderError{Op: "refresh", StatusCode: status, Detail: detailOr(body, "Token refresh failed")}
	}
	return parseToken("refresh", status, body)
}

func (c *Client) post(ctx context.Context, span trace.Span, path, contentType string, body io.Reader, header http.Header) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, networkError(err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, networkError(err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, networkError(err)
	}
	return resp.StatusCode, data, nil
}

func (c *Client) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "identity."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", http.MethodPost),
			attribute.String("server.address", c.baseURL),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
