package keystone

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/rampfire/internal/auth"
	"github.com/torosent/rampfire/internal/runner"
	"github.com/torosent/rampfire/internal/tracing"
)

const (
	// TokensPath is the identity v3 token resource.
	TokensPath = "/v3/auth/tokens"
	// HeaderSubjectToken carries the issued token and names the token to validate.
	HeaderSubjectToken = "X-Subject-Token"

	maxErrorBody = 512
)

// Client issues and validates Keystone tokens.
type Client struct {
	tokensURL string
	authBody  []byte
	http      *http.Client
	tracer    trace.Tracer
	propagate bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(k *Client) {
		if c != nil {
			k.http = c
		}
	}
}

// WithTracer wraps every call in a client span. When propagate is set the
// W3C trace context is injected into request headers.
func WithTracer(tracer trace.Tracer, propagate bool) Option {
	return func(k *Client) {
		if tracer != nil {
			k.tracer = tracer
		}
		k.propagate = propagate
	}
}

// New creates a Client for the Keystone at baseURL.
func New(baseURL string, creds Credentials, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("keystone: base URL is required")
	}
	body, err := BuildAuthBody(creds)
	if err != nil {
		return nil, err
	}

	c := &Client{
		tokensURL: base + TokensPath,
		authBody:  body,
		http:      NewHTTPClient(0),
		tracer:    noop.NewTracerProvider().Tracer("rampfire"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// IssueToken authenticates once and returns the X-Subject-Token header and
// the response body.
func (c *Client) IssueToken(ctx context.Context) (string, []byte, error) {
	var token string
	var body []byte
	err := c.do(ctx, "issue", http.MethodPost, http.StatusCreated, nil, func(resp *http.Response) error {
		token = resp.Header.Get(HeaderSubjectToken)
		var err error
		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return "", nil, err
	}
	return token, body, nil
}

// IssueRequester returns a Requester that issues one token per call.
func (c *Client) IssueRequester() runner.Requester {
	return issueRequester{client: c}
}

// ValidateRequester returns a Requester that validates the provider's token
// with itself on every call.
func (c *Client) ValidateRequester(provider auth.Provider) runner.Requester {
	return validateRequester{client: c, provider: provider}
}

type issueRequester struct {
	client *Client
}

func (r issueRequester) Do(ctx context.Context) error {
	return r.client.do(ctx, "issue", http.MethodPost, http.StatusCreated, nil, nil)
}

type validateRequester struct {
	client   *Client
	provider auth.Provider
}

func (r validateRequester) Do(ctx context.Context) error {
	return r.client.do(ctx, "validate", http.MethodGet, http.StatusOK, func(req *http.Request) error {
		token, err := r.provider.Token(ctx)
		if err != nil {
			return fmt.Errorf("subject token: %w", err)
		}
		req.Header.Set(auth.HeaderAuthToken, token)
		req.Header.Set(HeaderSubjectToken, token)
		return nil
	}, nil)
}

func (c *Client) do(ctx context.Context, operation, method string, want int, prepare func(*http.Request) error, handle func(*http.Response) error) (err error) {
	ctx, span := tracing.StartRequestSpan(ctx, c.tracer, method, operation)
	status := 0
	defer func() {
		if status != 0 {
			tracing.EndSpan(span, err, tracing.AttrStatusCode.Int(status))
			return
		}
		tracing.EndSpan(span, err)
	}()

	var body io.Reader
	if method == http.MethodPost {
		body = bytes.NewReader(c.authBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.tokensURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prepare != nil {
		if err := prepare(req); err != nil {
			return err
		}
	}
	if c.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	if resp.StatusCode != want {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_, _ = io.Copy(io.Discard, resp.Body)
		return &runner.HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if handle != nil {
		return handle(resp)
	}
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

// NewHTTPClient returns an HTTP client with connection pooling sized for many
// concurrent closed-loop workers against one host.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          1024,
		MaxIdleConnsPerHost:   1024,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
