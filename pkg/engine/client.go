// Package engine is a client for the scanning engine's JSON control API
// (ZAP-compatible). Each method maps to one endpoint; sequencing, retries and
// timing belong to the orchestrator.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ssdt/authscan/pkg/defaults"
	"github.com/ssdt/authscan/pkg/httpclient"
	"github.com/ssdt/authscan/pkg/jsonutil"
)

// maxBody bounds how much of a response we read; reports can be large.
const maxBody = 64 << 20

// Options configures a Client.
type Options struct {
	// BaseURL is the engine API root, e.g. http://127.0.0.1:8080.
	BaseURL string

	// APIKey is sent in the X-ZAP-API-Key header when non-empty.
	APIKey string

	// HTTPClient overrides the pooled default client.
	HTTPClient *http.Client

	// RPS bounds calls per second (0 = unlimited).
	RPS float64

	// Logger for structured logging (default: slog.Default()).
	Logger *slog.Logger

	// Observer is called after every call with the endpoint name, the
	// outcome and the latency. Used for metrics.
	Observer func(endpoint string, err error, elapsed time.Duration)
}

// Client talks to one engine instance. Safe for concurrent use.
type Client struct {
	base     *url.URL
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
	observer func(string, error, time.Duration)
	tracer   trace.Tracer
}

// New validates opts and returns a Client.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = defaults.EngineURL
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("engine: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("engine: base url %q must be http or https", opts.BaseURL)
	}

	c := &Client{
		base:     base,
		apiKey:   opts.APIKey,
		http:     opts.HTTPClient,
		logger:   opts.Logger,
		observer: opts.Observer,
		tracer:   otel.Tracer("authscan/engine"),
	}
	if c.http == nil {
		c.http = httpclient.New(httpclient.DefaultConfig())
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if opts.RPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}
	return c, nil
}

// BaseURL returns the engine API root.
func (c *Client) BaseURL() string { return c.base.String() }

// call invokes /JSON/{component}/{kind}/{name}/ and decodes the response into
// out (which may be nil).
func (c *Client) call(ctx context.Context, component, kind, name string, params url.Values, out any) error {
	body, err := c.do(ctx, "JSON", component, kind, name, params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := jsonutil.Unmarshal(body, out); err != nil {
		return fmt.Errorf("engine: %s.%s: decode: %w", component, name, err)
	}
	return nil
}

// other invokes /OTHER/{component}/other/{name}/ and returns the raw body.
func (c *Client) other(ctx context.Context, component, name string, params url.Values) ([]byte, error) {
	return c.do(ctx, "OTHER", component, "other", name, params)
}

func (c *Client) do(ctx context.Context, format, component, kind, name string, params url.Values) (body []byte, err error) {
	endpoint := component + "." + name
	ctx, span := c.tracer.Start(ctx, "engine."+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("engine.endpoint", endpoint)))
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "engine call failed")
		}
		span.End()
		if c.observer != nil {
			c.observer(endpoint, err, time.Since(start))
		}
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("engine: rate limiter: %w", err)
		}
	}

	u := *c.base
	u.Path = strings.Join([]string{c.base.Path, format, component, kind, name}, "/") + "/"
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("engine: %s: build request: %w", endpoint, err)
	}
	if c.apiKey != "" {
		req.Header.Set(defaults.EngineAPIKeyHeader, c.apiKey)
	}
	req.Header.Set("Accept", defaults.ContentTypeJSON)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("engine: %s: %w", endpoint, httpclient.Classify(err))
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("engine: %s: read body: %w", endpoint, err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{}
		if jsonutil.Unmarshal(body, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		apiErr.Endpoint = endpoint
		apiErr.Status = resp.StatusCode
		c.logger.Debug("engine call rejected",
			slog.String("endpoint", endpoint),
			slog.Int("status", resp.StatusCode),
			slog.String("code", apiErr.Code))
		return nil, apiErr
	}
	return body, nil
}

// result is the shape of most action responses: {"Result":"OK"}.
type result struct {
	Result string `json:"Result"`
}

func (r result) check(endpoint string) error {
	if r.Result != "" && r.Result != "OK" {
		return &APIError{Endpoint: endpoint, Status: http.StatusOK, Code: "unexpected_result", Message: r.Result}
	}
	return nil
}

func (c *Client) action(ctx context.Context, component, name string, params url.Values) error {
	var r result
	if err := c.call(ctx, component, "action", name, params, &r); err != nil {
		return err
	}
	return r.check(component + "." + name)
}

// atoi parses the engine's string-encoded integers; garbage reads as 0.
func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func boolParam(b bool) string {
	return strconv.FormatBool(b)
}
