package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"weft/internal/api"
	"weft/internal/backend"
)

func (c *Client) CreateMetadata(ctx context.Context, in backend.MetadataInput, body io.Reader) (*backend.Metadata, error) {
	header, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode metadata input: %w", err)
	}
	var meta backend.Metadata
	if _, err := c.doJSON(ctx, call{
		method:  http.MethodPost,
		path:    "/metadata",
		body:    body,
		headers: map[string]string{api.MetadataHeader: string(header), "Content-Type": "application/octet-stream"},
	}, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (c *Client) CreateCollection(ctx context.Context, name string, attributes map[string]any) (*backend.Collection, error) {
	var coll backend.Collection
	if _, err := c.doJSON(ctx, call{method: http.MethodPost, path: "/collections",
		json: api.CollectionRequest{Name: name, Attributes: attributes}}, &coll); err != nil {
		return nil, err
	}
	return &coll, nil
}

func (c *Client) GetMetadata(ctx context.Context, id string, version int) (*backend.Metadata, error) {
	if err := requireID("get metadata", id); err != nil {
		return nil, err
	}
	query := url.Values{}
	if version > 0 {
		query.Set("version", strconv.Itoa(version))
	}
	var meta backend.Metadata
	if _, err := c.doJSON(ctx, call{method: http.MethodGet, path: "/metadata/" + url.PathEscape(id), query: query}, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (c *Client) GetCollection(ctx context.Context, id string) (*backend.Collection, error) {
	if err := requireID("get collection", id); err != nil {
		return nil, err
	}
	var coll backend.Collection
	if _, err := c.doJSON(ctx, call{method: http.MethodGet, path: "/collections/" + url.PathEscape(id)}, &coll); err != nil {
		return nil, err
	}
	return &coll, nil
}

func (c *Client) OpenContent(ctx context.Context, ref backend.ContentRef) (io.ReadCloser, error) {
	return c.doStream(ctx, call{method: http.MethodGet, path: "/content", query: api.RefQuery(ref)})
}

func (c *Client) PutSupplementary(ctx context.Context, ref backend.ContentRef, in backend.SupplementaryInput, body io.Reader) (*backend.Supplementary, error) {
	header, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode supplementary input: %w", err)
	}
	var item backend.Supplementary
	if _, err := c.doJSON(ctx, call{
		method:  http.MethodPut,
		path:    "/supplementary",
		query:   api.RefQuery(ref),
		body:    body,
		headers: map[string]string{api.SupplementaryHeader: string(header), "Content-Type": "application/octet-stream"},
	}, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) ListSupplementary(ctx context.Context, ref backend.ContentRef) ([]backend.Supplementary, error) {
	var items []backend.Supplementary
	_, err := c.doJSON(ctx, call{method: http.MethodGet, path: "/supplementary", query: api.RefQuery(ref)}, &items)
	return items, err
}

func (c *Client) OpenSupplementary(ctx context.Context, ref backend.ContentRef, key string) (io.ReadCloser, error) {
	return c.doStream(ctx, call{method: http.MethodGet, path: "/supplementary/" + url.PathEscape(key), query: api.RefQuery(ref)})
}

func (c *Client) SetAttributes(ctx context.Context, ref backend.ContentRef, attributes map[string]any) error {
	_, err := c.doJSON(ctx, call{method: http.MethodPatch, path: "/attributes", query: api.RefQuery(ref),
		json: api.AttributesRequest{Attributes: attributes}}, nil)
	return err
}

func (c *Client) IndexDocument(ctx context.Context, doc backend.SearchDocument) error {
	_, err := c.doJSON(ctx, call{method: http.MethodPost, path: "/search/documents", json: doc}, nil)
	return err
}

func (c *Client) RemoveDocument(ctx context.Context, ref backend.ContentRef) error {
	_, err := c.doJSON(ctx, call{method: http.MethodDelete, path: "/search/documents", query: api.RefQuery(ref)}, nil)
	return err
}

func (c *Client) Search(ctx context.Context, query backend.SearchQuery) ([]backend.SearchHit, error) {
	var hits []backend.SearchHit
	_, err := c.doJSON(ctx, call{method: http.MethodPost, path: "/search", json: query}, &hits)
	return hits, err
}
