package engine

import (
	"context"
	"net/url"
	"strconv"

	"github.com/ssdt/authscan/pkg/defaults"
)

// Version returns the engine version. Used as the pre-flight liveness probe.
func (c *Client) Version(ctx context.Context) (string, error) {
	var r struct {
		Version string `json:"version"`
	}
	if err := c.call(ctx, "core", "view", "version", nil, &r); err != nil {
		return "", err
	}
	return r.Version, nil
}

// AccessURL makes the engine request target itself, so the request lands in
// its history with whatever replacer rules are active.
func (c *Client) AccessURL(ctx context.Context, target string) error {
	return c.call(ctx, "core", "action", "accessUrl", url.Values{"url": {target}, "followRedirects": {"true"}}, nil)
}

// Alert is one engine-reported issue instance.
type Alert struct {
	ID          string `json:"id"`
	PluginID    string `json:"pluginId"`
	Name        string `json:"name"`
	Alert       string `json:"alert"`
	Risk        string `json:"risk"`
	Confidence  string `json:"confidence"`
	Description string `json:"description"`
	Solution    string `json:"solution"`
	Reference   string `json:"reference"`
	CWEID       string `json:"cweid"`
	WASCID      string `json:"wascid"`
	URL         string `json:"url"`
	Method      string `json:"method"`
	Param       string `json:"param"`
	Attack      string `json:"attack"`
	Evidence    string `json:"evidence"`
}

// Title returns the alert name, falling back to the legacy "alert" field.
func (a Alert) Title() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Alert
}

// Alerts returns one page of alerts for baseURL.
func (c *Client) Alerts(ctx context.Context, baseURL string, start, count int) ([]Alert, error) {
	var r struct {
		Alerts []Alert `json:"alerts"`
	}
	params := url.Values{
		"baseurl": {baseURL},
		"start":   {strconv.Itoa(start)},
		"count":   {strconv.Itoa(count)},
	}
	if err := c.call(ctx, "core", "view", "alerts", params, &r); err != nil {
		return nil, err
	}
	return r.Alerts, nil
}

// AllAlerts pages through every alert for baseURL. A pageSize below one
// uses defaults.AlertPageSize.
func (c *Client) AllAlerts(ctx context.Context, baseURL string, pageSize int) ([]Alert, error) {
	if pageSize < 1 {
		pageSize = defaults.AlertPageSize
	}
	var all []Alert
	for start := 0; ; start += pageSize {
		page, err := c.Alerts(ctx, baseURL, start, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

// NumberOfAlerts returns the alert count for baseURL.
func (c *Client) NumberOfAlerts(ctx context.Context, baseURL string) (int, error) {
	var r struct {
		NumberOfAlerts string `json:"numberOfAlerts"`
	}
	if err := c.call(ctx, "core", "view", "numberOfAlerts", url.Values{"baseurl": {baseURL}}, &r); err != nil {
		return 0, err
	}
	return atoi(r.NumberOfAlerts), nil
}

// HTMLReport returns the engine's human-readable HTML report.
func (c *Client) HTMLReport(ctx context.Context) ([]byte, error) {
	return c.other(ctx, "core", "htmlreport", nil)
}
