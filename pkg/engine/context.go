package engine

import (
	"context"
	"net/url"
	"strings"
)

// NewContext creates a named context and returns its id.
func (c *Client) NewContext(ctx context.Context, name string) (string, error) {
	var r struct {
		ContextID string `json:"contextId"`
	}
	if err := c.call(ctx, "context", "action", "newContext", url.Values{"contextName": {name}}, &r); err != nil {
		return "", err
	}
	return r.ContextID, nil
}

// IncludeInContext adds a URL regex to the context's include list.
func (c *Client) IncludeInContext(ctx context.Context, name, regex string) error {
	return c.action(ctx, "context", "includeInContext", url.Values{"contextName": {name}, "regex": {regex}})
}

// ExcludeFromContext adds a URL regex to the context's exclude list.
func (c *Client) ExcludeFromContext(ctx context.Context, name, regex string) error {
	return c.action(ctx, "context", "excludeFromContext", url.Values{"contextName": {name}, "regex": {regex}})
}

// SetContextInScope marks the context in or out of scope.
func (c *Client) SetContextInScope(ctx context.Context, name string, inScope bool) error {
	return c.action(ctx, "context", "setContextInScope", url.Values{"contextName": {name}, "booleanInScope": {boolParam(inScope)}})
}

// RemoveContext deletes the named context.
func (c *Client) RemoveContext(ctx context.Context, name string) error {
	return c.action(ctx, "context", "removeContext", url.Values{"contextName": {name}})
}

// ContextInfo is the subset of the context view authscan reads.
type ContextInfo struct {
	ID      string
	Name    string
	InScope bool
}

// Context returns the named context.
func (c *Client) Context(ctx context.Context, name string) (ContextInfo, error) {
	var r struct {
		Context struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			InScope string `json:"inScope"`
		} `json:"context"`
	}
	if err := c.call(ctx, "context", "view", "context", url.Values{"contextName": {name}}, &r); err != nil {
		return ContextInfo{}, err
	}
	return ContextInfo{
		ID:      r.Context.ID,
		Name:    r.Context.Name,
		InScope: strings.EqualFold(r.Context.InScope, "true"),
	}, nil
}
