package remote

import (
	"context"
	"net/http"
	"net/url"

	"weft/internal/api"
	"weft/internal/backend"
)

func (c *Client) CompleteCurrentState(ctx context.Context, ref backend.ContentRef, status string) error {
	_, err := c.doJSON(ctx, call{method: http.MethodPost, path: "/state/complete", query: api.RefQuery(ref),
		json: api.CompleteStateRequest{Status: status}}, nil)
	return err
}

func (c *Client) SetState(ctx context.Context, ref backend.ContentRef, stateID, status string, immediate bool) error {
	_, err := c.doJSON(ctx, call{method: http.MethodPut, path: "/state", query: api.RefQuery(ref),
		json: api.SetStateRequest{State: stateID, Status: status, Immediate: immediate}}, nil)
	return err
}

func (c *Client) StateHistory(ctx context.Context, ref backend.ContentRef) ([]backend.StateEvent, error) {
	var events []backend.StateEvent
	_, err := c.doJSON(ctx, call{method: http.MethodGet, path: "/state/history", query: api.RefQuery(ref)}, &events)
	return events, err
}

func definitionPath(category backend.Category, key string) string {
	return "/definitions/" + url.PathEscape(string(category)) + "/" + url.PathEscape(key)
}

func (c *Client) FindDefinition(ctx context.Context, category backend.Category, key string) (*backend.Definition, error) {
	var def backend.Definition
	found, err := c.doJSON(ctx, call{method: http.MethodGet, path: definitionPath(category, key)}, &def)
	if err != nil || !found {
		return nil, err
	}
	return &def, nil
}

func (c *Client) CreateDefinition(ctx context.Context, def backend.Definition) error {
	_, err := c.doJSON(ctx, call{method: http.MethodPost, path: "/definitions", json: def}, nil)
	return err
}

func (c *Client) UpdateDefinition(ctx context.Context, def backend.Definition) error {
	_, err := c.doJSON(ctx, call{method: http.MethodPut, path: definitionPath(def.Category, def.Key), json: def}, nil)
	return err
}

func (c *Client) ListDefinitions(ctx context.Context, category backend.Category) ([]backend.Definition, error) {
	var defs []backend.Definition
	_, err := c.doJSON(ctx, call{method: http.MethodGet, path: "/definitions/" + url.PathEscape(string(category))}, &defs)
	return defs, err
}
