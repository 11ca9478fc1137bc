package engine

import (
	"context"
	"net/url"
	"strings"
)

// ReplacerRule is a request/response rewrite rule.
type ReplacerRule struct {
	Description string
	Enabled     bool
	MatchType   string // e.g. REQ_HEADER
	MatchString string
	MatchRegex  bool
	Replacement string
}

// MatchRequestHeader replaces (or adds) a request header.
const MatchRequestHeader = "REQ_HEADER"

// AddReplacerRule installs a rewrite rule. Rules apply to every request the
// engine sends, from every tool.
func (c *Client) AddReplacerRule(ctx context.Context, r ReplacerRule) error {
	return c.action(ctx, "replacer", "addRule", url.Values{
		"description": {r.Description},
		"enabled":     {boolParam(r.Enabled)},
		"matchType":   {r.MatchType},
		"matchRegex":  {boolParam(r.MatchRegex)},
		"matchString": {r.MatchString},
		"replacement": {r.Replacement},
	})
}

// RemoveReplacerRule deletes the rule with the given description.
func (c *Client) RemoveReplacerRule(ctx context.Context, description string) error {
	return c.action(ctx, "replacer", "removeRule", url.Values{"description": {description}})
}

// ReplacerRules lists installed rules.
func (c *Client) ReplacerRules(ctx context.Context) ([]ReplacerRule, error) {
	var r struct {
		Rules []struct {
			Description string `json:"description"`
			Enabled     string `json:"enabled"`
			MatchType   string `json:"matchType"`
			MatchString string `json:"matchString"`
			MatchRegex  string `json:"matchRegex"`
			Replacement string `json:"replacement"`
		} `json:"rules"`
	}
	if err := c.call(ctx, "replacer", "view", "rules", nil, &r); err != nil {
		return nil, err
	}
	rules := make([]ReplacerRule, 0, len(r.Rules))
	for _, raw := range r.Rules {
		rules = append(rules, ReplacerRule{
			Description: raw.Description,
			Enabled:     strings.EqualFold(raw.Enabled, "true"),
			MatchType:   raw.MatchType,
			MatchString: raw.MatchString,
			MatchRegex:  strings.EqualFold(raw.MatchRegex, "true"),
			Replacement: raw.Replacement,
		})
	}
	return rules, nil
}
