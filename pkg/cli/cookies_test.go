package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssdt/authscan/pkg/authctx"
)

func TestParseCookieHeader(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []authctx.Cookie
	}{
		{"single", "sid=abc", []authctx.Cookie{{Name: "sid", Value: "abc"}}},
		{"several", "sid=abc; csrf=x=y", []authctx.Cookie{{Name: "sid", Value: "abc"}, {Name: "csrf", Value: "x=y"}}},
		{"spaces and empties", " ; sid = abc ;; =orphan", []authctx.Cookie{{Name: "sid", Value: "abc"}}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseCookieHeader(tt.in))
		})
	}
}

func TestLoadCookieFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("array", func(t *testing.T) {
		path := filepath.Join(dir, "list.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"name":"sid","value":"abc","httpOnly":true}]`), 0o600))

		got, err := loadCookieFile(path)
		require.NoError(t, err)
		assert.Equal(t, []authctx.Cookie{{Name: "sid", Value: "abc", HTTPOnly: true}}, got)
	})

	t.Run("storage state", func(t *testing.T) {
		path := filepath.Join(dir, "state.json")
		body := `{"cookies":[{"name":"sid","value":"abc","domain":".example.com","expires":-1,"sameSite":"Lax"}],"origins":[]}`
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

		got, err := loadCookieFile(path)
		require.NoError(t, err)
		assert.Equal(t, []authctx.Cookie{{Name: "sid", Value: "abc", Domain: ".example.com"}}, got)
	})

	t.Run("invalid", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))

		_, err := loadCookieFile(path)
		assert.Error(t, err)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := loadCookieFile(filepath.Join(dir, "nope.json"))
		assert.Error(t, err)
	})
}
