package httpclient

import (
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_AppliesDefaults(t *testing.T) {
	t.Parallel()

	c := New(Config{})
	assert.Equal(t, DefaultConfig().Timeout, c.Timeout)

	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 16, tr.MaxConnsPerHost)
	assert.False(t, tr.TLSClientConfig.InsecureSkipVerify)
	assert.Nil(t, tr.Proxy)
}

func TestNew_Proxy(t *testing.T) {
	t.Parallel()

	c := New(Config{Proxy: "http://127.0.0.1:3128", Timeout: time.Second})
	tr := c.Transport.(*http.Transport)
	require.NotNil(t, tr.Proxy)
	assert.Equal(t, time.Second, c.Timeout)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Classify(nil))

	dns := &net.DNSError{Err: "no such host", Name: "engine.local"}
	err := Classify(dns)
	assert.ErrorIs(t, err, ErrDNS)
	var got *net.DNSError
	assert.True(t, errors.As(err, &got), "original error stays reachable")

	plain := errors.New("boom")
	assert.Same(t, plain, Classify(plain))
}
