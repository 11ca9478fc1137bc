package engine

import (
	"context"
	"net/url"
)

// AjaxStatusRunning and AjaxStatusStopped are the JS crawler's states.
const (
	AjaxStatusRunning = "running"
	AjaxStatusStopped = "stopped"
)

// AjaxSpiderSetOption sets an integer JS-crawler option.
func (c *Client) AjaxSpiderSetOption(ctx context.Context, option string, value int) error {
	return c.setOption(ctx, "ajaxSpider", option, value)
}

// AjaxSpiderScan starts the JS-executing crawler. The engine runs a single
// global instance; there is no per-scan id.
func (c *Client) AjaxSpiderScan(ctx context.Context, target, contextName string) error {
	return c.action(ctx, "ajaxSpider", "scan", url.Values{
		"url":         {target},
		"inScope":     {"true"},
		"contextName": {contextName},
		"subtreeOnly": {"false"},
	})
}

// AjaxSpiderStatus returns "running" or "stopped".
func (c *Client) AjaxSpiderStatus(ctx context.Context) (string, error) {
	var r struct {
		Status string `json:"status"`
	}
	if err := c.call(ctx, "ajaxSpider", "view", "status", nil, &r); err != nil {
		return "", err
	}
	return r.Status, nil
}

// AjaxSpiderNumberOfResults returns how many resources the JS crawler found.
func (c *Client) AjaxSpiderNumberOfResults(ctx context.Context) (int, error) {
	var r struct {
		NumberOfResults string `json:"numberOfResults"`
	}
	if err := c.call(ctx, "ajaxSpider", "view", "numberOfResults", nil, &r); err != nil {
		return 0, err
	}
	return atoi(r.NumberOfResults), nil
}

// AjaxSpiderStop stops the JS crawler.
func (c *Client) AjaxSpiderStop(ctx context.Context) error {
	return c.action(ctx, "ajaxSpider", "stop", nil)
}
