// Package authctx prepares the engine for an authenticated scan: a scoped
// context describing what may be crawled, and a request-header rule that
// attaches the user's session cookies to every outgoing request.
package authctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ssdt/authscan/pkg/engine"
	"github.com/ssdt/authscan/pkg/retry"
)

// ErrConfiguration is returned when the engine could not be prepared.
var ErrConfiguration = errors.New("authctx: configuration failed")

// Engine is the subset of the engine API the configurator drives.
type Engine interface {
	NewContext(ctx context.Context, name string) (string, error)
	IncludeInContext(ctx context.Context, name, regex string) error
	ExcludeFromContext(ctx context.Context, name, regex string) error
	SetContextInScope(ctx context.Context, name string, inScope bool) error
	RemoveContext(ctx context.Context, name string) error
	AddReplacerRule(ctx context.Context, r engine.ReplacerRule) error
	RemoveReplacerRule(ctx context.Context, description string) error
	ReplacerRules(ctx context.Context) ([]engine.ReplacerRule, error)
}

// Context is a prepared engine context.
type Context struct {
	ID       string
	Name     string
	Include  []string
	Exclude  []string
	RuleName string
}

// ContextName returns the engine context name for a scan.
func ContextName(scanID string) string { return "authscan-" + scanID }

// RuleName returns the cookie rule description for a scan.
func RuleName(scanID string) string { return "authscan-cookie-" + scanID }

// Configurator creates and tears down scan contexts.
type Configurator struct {
	engine Engine
	retry  retry.Config
	logger *slog.Logger
}

// Option configures a Configurator.
type Option func(*Configurator)

// WithRetry overrides the retry policy for transition calls.
func WithRetry(cfg retry.Config) Option {
	return func(c *Configurator) { c.retry = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Configurator) { c.logger = l }
}

// New returns a Configurator driving e.
func New(e Engine, opts ...Option) *Configurator {
	c := &Configurator{
		engine: e,
		retry:  retry.DefaultConfig(),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CreateContext creates the scan's context, adds include and exclude
// patterns derived from targetURL, and marks it in scope. A stale context
// left behind by an earlier run of the same scan is replaced.
func (c *Configurator) CreateContext(ctx context.Context, targetURL, scanID string) (*Context, error) {
	u, err := url.Parse(targetURL)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: invalid target url %q", ErrConfiguration, targetURL)
	}

	out := &Context{
		Name:     ContextName(scanID),
		RuleName: RuleName(scanID),
		Include:  IncludePatterns(u),
		Exclude:  ExcludePatterns(u),
	}

	if err := c.engine.RemoveContext(ctx, out.Name); err == nil {
		c.logger.Info("removed stale context", slog.String("context", out.Name))
	}

	err = c.do(ctx, func() error {
		id, err := c.engine.NewContext(ctx, out.Name)
		out.ID = id
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create context: %w", ErrConfiguration, err)
	}

	for _, re := range out.Include {
		if err := c.do(ctx, func() error { return c.engine.IncludeInContext(ctx, out.Name, re) }); err != nil {
			return out, fmt.Errorf("%w: include %q: %w", ErrConfiguration, re, err)
		}
	}
	for _, re := range out.Exclude {
		if err := c.do(ctx, func() error { return c.engine.ExcludeFromContext(ctx, out.Name, re) }); err != nil {
			return out, fmt.Errorf("%w: exclude %q: %w", ErrConfiguration, re, err)
		}
	}
	if err := c.do(ctx, func() error { return c.engine.SetContextInScope(ctx, out.Name, true) }); err != nil {
		return out, fmt.Errorf("%w: set in scope: %w", ErrConfiguration, err)
	}

	c.logger.Info("context created",
		slog.String("context", out.Name),
		slog.String("context_id", out.ID),
		slog.Int("include", len(out.Include)),
		slog.Int("exclude", len(out.Exclude)),
	)
	return out, nil
}

// InjectCookies installs a rule named rule that sets the Cookie request
// header on every engine request, then confirms the engine lists it.
func (c *Configurator) InjectCookies(ctx context.Context, rule string, cookies []Cookie) error {
	header := CookieHeader(cookies)
	if header == "" {
		return fmt.Errorf("%w: no usable cookies", ErrConfiguration)
	}

	// A rule with the same description would shadow the new one.
	if err := c.RemoveRule(ctx, rule); err != nil {
		c.logger.Debug("clear previous cookie rule", slog.String("rule", rule), slog.String("error", err.Error()))
	}

	want := engine.ReplacerRule{
		Description: rule,
		Enabled:     true,
		MatchType:   engine.MatchRequestHeader,
		MatchString: "Cookie",
		MatchRegex:  false,
		Replacement: header,
	}
	if err := c.do(ctx, func() error { return c.engine.AddReplacerRule(ctx, want) }); err != nil {
		return fmt.Errorf("%w: add cookie rule: %w", ErrConfiguration, err)
	}

	rules, err := c.engine.ReplacerRules(ctx)
	if err != nil {
		return fmt.Errorf("%w: list rules: %w", ErrConfiguration, err)
	}
	for _, r := range rules {
		if r.Description == rule && r.Enabled && r.Replacement == header {
			c.logger.Info("cookie rule installed", slog.String("rule", rule), slog.Int("cookies", strings.Count(header, "=")))
			return nil
		}
	}
	return fmt.Errorf("%w: cookie rule %q not active", ErrConfiguration, rule)
}

// RemoveRule deletes the cookie rule. A rule that is already gone is not an
// error.
func (c *Configurator) RemoveRule(ctx context.Context, rule string) error {
	if err := c.engine.RemoveReplacerRule(ctx, rule); err != nil && !isMissing(err) {
		return fmt.Errorf("remove cookie rule: %w", err)
	}
	return nil
}

// Remove deletes the cookie rule and the context. It is safe to call more
// than once; the returned error joins every failed step.
func (c *Configurator) Remove(ctx context.Context, sc *Context) error {
	if sc == nil {
		return nil
	}
	var errs []error
	if sc.RuleName != "" {
		if err := c.RemoveRule(ctx, sc.RuleName); err != nil {
			errs = append(errs, err)
		}
	}
	if sc.Name != "" {
		if err := c.engine.RemoveContext(ctx, sc.Name); err != nil && !isMissing(err) {
			errs = append(errs, fmt.Errorf("remove context: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Configurator) do(ctx context.Context, fn func() error) error {
	cfg := c.retry
	prev := cfg.OnRetry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logger.Warn("retrying engine call",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if prev != nil {
			prev(attempt, err, delay)
		}
	}
	return retry.Do(ctx, cfg, fn)
}

// isMissing reports whether err says the object does not exist.
func isMissing(err error) bool {
	var apiErr *engine.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case "does_not_exist", "context_not_found":
		return true
	}
	return false
}
