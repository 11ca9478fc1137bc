package authctx_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssdt/authscan/pkg/authctx"
	"github.com/ssdt/authscan/pkg/engine"
	"github.com/ssdt/authscan/pkg/engine/enginetest"
	"github.com/ssdt/authscan/pkg/retry"
)

func fastRetry() retry.Config {
	return retry.Config{
		MaxAttempts: 3,
		InitDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		Retryable:   retry.IsTransient,
	}
}

func newConfigurator(t *testing.T, script enginetest.Script) (*authctx.Configurator, *enginetest.Server) {
	t.Helper()
	srv := enginetest.New(script)
	t.Cleanup(srv.Close)
	client, err := engine.New(engine.Options{BaseURL: srv.URL})
	require.NoError(t, err)
	return authctx.New(client, authctx.WithRetry(fastRetry())), srv
}

func matchesAny(patterns []string, s string) bool {
	for _, p := range patterns {
		if regexp.MustCompile(`^(?:` + p + `)$`).MatchString(s) {
			return true
		}
	}
	return false
}

func TestIncludePatterns(t *testing.T) {
	t.Parallel()
	u, _ := url.Parse("https://app.example.co.uk/login")
	inc := authctx.IncludePatterns(u)

	for _, in := range []string{
		"https://app.example.co.uk/",
		"https://app.example.co.uk",
		"http://app.example.co.uk:8443/a?b=c",
		"https://api.example.co.uk/v1/users",
		"https://example.co.uk/",
	} {
		assert.True(t, matchesAny(inc, in), in)
	}
	for _, out := range []string{
		"https://example.com/",
		"https://evil-example.co.uk/",
		"https://app.example.co.uk.evil.com/",
	} {
		assert.False(t, matchesAny(inc, out), out)
	}
}

func TestIncludePatterns_ExactHostForIPAndLocalhost(t *testing.T) {
	t.Parallel()
	for _, target := range []string{"http://127.0.0.1:3000/", "http://localhost:8080/app"} {
		u, _ := url.Parse(target)
		inc := authctx.IncludePatterns(u)
		require.Len(t, inc, 1)
		assert.True(t, matchesAny(inc, target))
	}
	u, _ := url.Parse("http://127.0.0.1/")
	assert.False(t, matchesAny(authctx.IncludePatterns(u), "http://127.0.0.10/"))
}

func TestExcludePatterns(t *testing.T) {
	t.Parallel()
	u, _ := url.Parse("https://shop.example.com/")
	exc := authctx.ExcludePatterns(u)

	for _, in := range []string{
		"https://shop.example.com/logout",
		"https://shop.example.com/account/Sign-Out?next=/",
		"https://shop.example.com/auth/logoff.php",
		"https://www.google-analytics.com/collect",
		"https://cdn.jsdelivr.net/npm/x.js",
		"https://shop.example.com/files/manual.PDF",
		"https://shop.example.com/media/intro.mp4?t=3",
		"https://shop.example.com/fonts/a.woff2",
	} {
		assert.True(t, matchesAny(exc, in), in)
	}
	for _, out := range []string{
		"https://shop.example.com/",
		"https://shop.example.com/blog/logging",
		"https://shop.example.com/app.js",
		"https://shop.example.com/cart?item=1",
	} {
		assert.False(t, matchesAny(exc, out), out)
	}
}

func TestExcludePatterns_SkipsDomainCoveringTarget(t *testing.T) {
	t.Parallel()
	u, _ := url.Parse("https://dash.cloudflare.com/")
	exc := authctx.ExcludePatterns(u)
	assert.False(t, matchesAny(exc, "https://dash.cloudflare.com/profile"))
}

func TestCookieHeader(t *testing.T) {
	t.Parallel()
	got := authctx.CookieHeader([]authctx.Cookie{
		{Name: "session", Value: "abc"},
		{Name: "", Value: "dropped"},
		{Name: "csrf", Value: "x=y"},
	})
	assert.Equal(t, "session=abc; csrf=x=y", got)
	assert.Empty(t, authctx.CookieHeader(nil))
}

func TestCreateContext(t *testing.T) {
	t.Parallel()
	c, srv := newConfigurator(t, enginetest.Script{})

	sc, err := c.CreateContext(context.Background(), "https://app.example.com/", "s1")
	require.NoError(t, err)
	assert.Equal(t, "authscan-s1", sc.Name)
	assert.Equal(t, "authscan-cookie-s1", sc.RuleName)
	assert.Equal(t, "1", sc.ID)

	include, exclude, inScope, ok := srv.Context("authscan-s1")
	require.True(t, ok)
	assert.True(t, inScope)
	assert.Equal(t, sc.Include, include)
	assert.Equal(t, sc.Exclude, exclude)
}

func TestCreateContext_ReplacesStaleContext(t *testing.T) {
	t.Parallel()
	c, srv := newConfigurator(t, enginetest.Script{})
	ctx := context.Background()

	_, err := c.CreateContext(ctx, "https://app.example.com/", "s1")
	require.NoError(t, err)
	sc, err := c.CreateContext(ctx, "https://app.example.com/", "s1")
	require.NoError(t, err)
	assert.Equal(t, "2", sc.ID)
	assert.Equal(t, 2, srv.Count("context.removeContext"))
}

func TestCreateContext_RetriesHangUp(t *testing.T) {
	t.Parallel()
	c, srv := newConfigurator(t, enginetest.Script{
		Hang: map[string]int{"context.newContext": 1},
	})

	_, err := c.CreateContext(context.Background(), "https://app.example.com/", "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Count("context.newContext"))
}

func TestCreateContext_PermanentFailure(t *testing.T) {
	t.Parallel()
	c, srv := newConfigurator(t, enginetest.Script{
		Failures: map[string]int{"context.includeInContext": -1},
	})

	_, err := c.CreateContext(context.Background(), "https://app.example.com/", "s1")
	require.ErrorIs(t, err, authctx.ErrConfiguration)
	assert.Equal(t, 1, srv.Count("context.includeInContext"), "api errors are not retried")
}

func TestCreateContext_InvalidTarget(t *testing.T) {
	t.Parallel()
	c, _ := newConfigurator(t, enginetest.Script{})
	_, err := c.CreateContext(context.Background(), "not a url", "s1")
	assert.ErrorIs(t, err, authctx.ErrConfiguration)
}

func TestInjectCookies(t *testing.T) {
	t.Parallel()
	c, srv := newConfigurator(t, enginetest.Script{})
	ctx := context.Background()
	cookies := []authctx.Cookie{{Name: "sid", Value: "1"}, {Name: "theme", Value: "dark"}}

	require.NoError(t, c.InjectCookies(ctx, "authscan-cookie-s1", cookies))
	rule, ok := srv.Rule("authscan-cookie-s1")
	require.True(t, ok)
	assert.True(t, rule.Enabled)
	assert.Equal(t, engine.MatchRequestHeader, rule.MatchType)
	assert.Equal(t, "Cookie", rule.MatchString)
	assert.Equal(t, "sid=1; theme=dark", rule.Replacement)

	// Re-injecting replaces the prior rule instead of failing.
	require.NoError(t, c.InjectCookies(ctx, "authscan-cookie-s1", cookies[:1]))
	rule, _ = srv.Rule("authscan-cookie-s1")
	assert.Equal(t, "sid=1", rule.Replacement)
}

func TestInjectCookies_ClearsPreviousRuleQuietly(t *testing.T) {
	t.Parallel()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	srv := enginetest.New(enginetest.Script{})
	t.Cleanup(srv.Close)
	client, err := engine.New(engine.Options{BaseURL: srv.URL})
	require.NoError(t, err)
	c := authctx.New(client, authctx.WithRetry(fastRetry()), authctx.WithLogger(logger))

	// No previous rule: the engine's "does not exist" answer is expected.
	require.NoError(t, c.InjectCookies(context.Background(), "authscan-cookie-s1", []authctx.Cookie{{Name: "sid", Value: "1"}}))
	assert.NotContains(t, logs.String(), "clear previous cookie rule")

	// Any other removal failure is logged and installation continues.
	failing := enginetest.New(enginetest.Script{Failures: map[string]int{"replacer.removeRule": -1}})
	t.Cleanup(failing.Close)
	client, err = engine.New(engine.Options{BaseURL: failing.URL})
	require.NoError(t, err)
	c = authctx.New(client, authctx.WithRetry(fastRetry()), authctx.WithLogger(logger))

	require.NoError(t, c.InjectCookies(context.Background(), "authscan-cookie-s2", []authctx.Cookie{{Name: "sid", Value: "2"}}))
	assert.Contains(t, logs.String(), "clear previous cookie rule")
	_, ok := failing.Rule("authscan-cookie-s2")
	assert.True(t, ok)
}

func TestInjectCookies_NoCookies(t *testing.T) {
	t.Parallel()
	c, srv := newConfigurator(t, enginetest.Script{})
	err := c.InjectCookies(context.Background(), "r", []authctx.Cookie{{Value: "nameless"}})
	require.ErrorIs(t, err, authctx.ErrConfiguration)
	assert.Zero(t, srv.Count("replacer.addRule"))
}

func TestRemove_Idempotent(t *testing.T) {
	t.Parallel()
	c, srv := newConfigurator(t, enginetest.Script{})
	ctx := context.Background()

	sc, err := c.CreateContext(ctx, "https://app.example.com/", "s1")
	require.NoError(t, err)
	require.NoError(t, c.InjectCookies(ctx, sc.RuleName, []authctx.Cookie{{Name: "a", Value: "b"}}))

	require.NoError(t, c.Remove(ctx, sc))
	_, ok := srv.Rule(sc.RuleName)
	assert.False(t, ok)
	_, _, _, ok = srv.Context(sc.Name)
	assert.False(t, ok)

	assert.NoError(t, c.Remove(ctx, sc))
	assert.NoError(t, c.Remove(ctx, nil))
}

func TestRemove_JoinsFailures(t *testing.T) {
	t.Parallel()
	c, _ := newConfigurator(t, enginetest.Script{
		Failures: map[string]int{"replacer.removeRule": -1, "context.removeContext": -1},
	})
	err := c.Remove(context.Background(), &authctx.Context{Name: "authscan-x", RuleName: "authscan-cookie-x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrAPI)
	assert.Contains(t, err.Error(), "remove cookie rule")
	assert.Contains(t, err.Error(), "remove context")
}
