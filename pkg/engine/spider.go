package engine

import (
	"context"
	"net/url"
	"strconv"
)

// Option names shared by the setOption* endpoints.
const (
	SpiderMaxDepth    = "MaxDepth"
	SpiderMaxDuration = "MaxDuration" // minutes
	SpiderMaxChildren = "MaxChildren"
	SpiderThreadCount = "ThreadCount"

	AjaxMaxDuration      = "MaxDuration" // minutes
	AjaxMaxCrawlDepth    = "MaxCrawlDepth"
	AjaxNumberOfBrowsers = "NumberOfBrowsers"

	AscanMaxScanDuration = "MaxScanDurationInMins"
	AscanMaxRuleDuration = "MaxRuleDurationInMins"
	AscanThreadPerHost   = "ThreadPerHost"
	AscanDelayInMs       = "DelayInMs"
)

func (c *Client) setOption(ctx context.Context, component, option string, value int) error {
	return c.action(ctx, component, "setOption"+option, url.Values{"Integer": {strconv.Itoa(value)}})
}

// SpiderSetOption sets an integer crawler option.
func (c *Client) SpiderSetOption(ctx context.Context, option string, value int) error {
	return c.setOption(ctx, "spider", option, value)
}

// SpiderScan starts a depth-first crawl of target scoped to contextName and
// returns the crawl id.
func (c *Client) SpiderScan(ctx context.Context, target, contextName string, maxChildren int) (string, error) {
	var r struct {
		Scan string `json:"scan"`
	}
	params := url.Values{
		"url":         {target},
		"maxChildren": {strconv.Itoa(maxChildren)},
		"recurse":     {"true"},
		"contextName": {contextName},
		"subtreeOnly": {"false"},
	}
	if err := c.call(ctx, "spider", "action", "scan", params, &r); err != nil {
		return "", err
	}
	return r.Scan, nil
}

// SpiderStatus returns crawl completion in percent.
func (c *Client) SpiderStatus(ctx context.Context, scanID string) (int, error) {
	var r struct {
		Status string `json:"status"`
	}
	if err := c.call(ctx, "spider", "view", "status", url.Values{"scanId": {scanID}}, &r); err != nil {
		return 0, err
	}
	return atoi(r.Status), nil
}

// SpiderResults returns the URLs discovered by a crawl.
func (c *Client) SpiderResults(ctx context.Context, scanID string) ([]string, error) {
	var r struct {
		Results []string `json:"results"`
	}
	if err := c.call(ctx, "spider", "view", "results", url.Values{"scanId": {scanID}}, &r); err != nil {
		return nil, err
	}
	return r.Results, nil
}

// SpiderStopAll stops every running crawl.
func (c *Client) SpiderStopAll(ctx context.Context) error {
	return c.action(ctx, "spider", "stopAllScans", nil)
}
