package engine

import (
	"context"
	"net/url"
)

// PscanRecordsToScan returns the passive scanner's backlog.
func (c *Client) PscanRecordsToScan(ctx context.Context) (int, error) {
	var r struct {
		RecordsToScan string `json:"recordsToScan"`
	}
	if err := c.call(ctx, "pscan", "view", "recordsToScan", nil, &r); err != nil {
		return 0, err
	}
	return atoi(r.RecordsToScan), nil
}

// AscanSetOption sets an integer attacker option.
func (c *Client) AscanSetOption(ctx context.Context, option string, value int) error {
	return c.setOption(ctx, "ascan", option, value)
}

// AscanScan starts an active scan of target scoped to contextID, so every
// generated request falls under the context's rules. Returns the scan id.
func (c *Client) AscanScan(ctx context.Context, target, contextID string) (string, error) {
	var r struct {
		Scan string `json:"scan"`
	}
	params := url.Values{
		"url":         {target},
		"recurse":     {"true"},
		"inScopeOnly": {"true"},
		"contextId":   {contextID},
	}
	if err := c.call(ctx, "ascan", "action", "scan", params, &r); err != nil {
		return "", err
	}
	return r.Scan, nil
}

// AscanStatus returns active scan completion in percent.
func (c *Client) AscanStatus(ctx context.Context, scanID string) (int, error) {
	var r struct {
		Status string `json:"status"`
	}
	if err := c.call(ctx, "ascan", "view", "status", url.Values{"scanId": {scanID}}, &r); err != nil {
		return 0, err
	}
	return atoi(r.Status), nil
}

// AscanStop stops one active scan.
func (c *Client) AscanStop(ctx context.Context, scanID string) error {
	return c.action(ctx, "ascan", "stop", url.Values{"scanId": {scanID}})
}

// AscanStopAll stops every active scan.
func (c *Client) AscanStopAll(ctx context.Context) error {
	return c.action(ctx, "ascan", "stopAllScans", nil)
}
