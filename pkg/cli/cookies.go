package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/ssdt/authscan/pkg/authctx"
	"github.com/ssdt/authscan/pkg/jsonutil"
)

// parseCookieHeader splits a Cookie header value ("a=1; b=2") into
// cookies. Pairs without a name are skipped.
func parseCookieHeader(h string) []authctx.Cookie {
	var out []authctx.Cookie
	for _, part := range strings.Split(h, ";") {
		name, value, _ := strings.Cut(strings.TrimSpace(part), "=")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, authctx.Cookie{Name: name, Value: strings.TrimSpace(value)})
	}
	return out
}

// loadCookieFile reads cookies from a JSON file holding either an array of
// cookies or an object with a "cookies" array (browser storage-state
// exports use the latter).
func loadCookieFile(path string) ([]authctx.Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cookie file: %w", err)
	}
	var list []authctx.Cookie
	if err := jsonutil.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var state struct {
		Cookies []authctx.Cookie `json:"cookies"`
	}
	if err := jsonutil.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse cookie file %s: %w", path, err)
	}
	return state.Cookies, nil
}
