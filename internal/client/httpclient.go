package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/listring/listring/internal/apierr"
	"github.com/listring/listring/internal/domain"
)

// NodeClient issues the storage node's REST calls (spec §6) against a
// single base URL. It classifies a non-2xx response back into the same
// apierr.Kind taxonomy the node used to choose the status code, so the
// sync loop's "409/404 treated as success" recovery policy (spec §7) can
// branch on Kind rather than raw status codes.
type NodeClient struct {
	baseURL string
	http    *http.Client
}

// NewNodeClient targets baseURL (e.g. "http://localhost:8001").
func NewNodeClient(baseURL string) *NodeClient {
	return &NodeClient{baseURL: baseURL, http: &http.Client{Timeout: 5 * time.Second}}
}

type errorBody struct {
	Error string `json:"error"`
}

func statusToKind(status int) apierr.Kind {
	switch status {
	case http.StatusBadRequest:
		return apierr.KindBadRequest
	case http.StatusNotFound:
		return apierr.KindNotFound
	case http.StatusConflict:
		return apierr.KindConflict
	case http.StatusServiceUnavailable:
		return apierr.KindQuorumUnavailable
	case http.StatusGatewayTimeout:
		return apierr.KindTimeout
	default:
		return apierr.KindInternal
	}
}

func newAPIError(status int, message string) error {
	switch statusToKind(status) {
	case apierr.KindBadRequest:
		return apierr.BadRequest(message, nil)
	case apierr.KindNotFound:
		return apierr.NotFound(message, nil)
	case apierr.KindConflict:
		return apierr.Conflict(message, nil)
	case apierr.KindQuorumUnavailable:
		return apierr.QuorumUnavailable(message, nil)
	case apierr.KindTimeout:
		return apierr.Timeout(message, nil)
	default:
		return apierr.Internal(message, nil)
	}
}

// do sends an HTTP request with an optional JSON body and decodes a
// successful JSON response into out (which may be nil for 204s).
func (c *NodeClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		if eb.Error == "" {
			eb.Error = fmt.Sprintf("%s %s: status %d", method, path, resp.StatusCode)
		}
		return newAPIError(resp.StatusCode, eb.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *NodeClient) CreateList(ctx context.Context, list domain.List) (domain.List, error) {
	req := map[string]any{
		"id":          list.ID,
		"name":        list.Name.Value,
		"vectorClock": list.VectorClock,
		"createdAt":   list.CreatedAt,
		"lastUpdated": list.LastUpdated,
	}
	var out domain.List
	err := c.do(ctx, http.MethodPost, "/api/lists", req, &out)
	return out, err
}

func (c *NodeClient) GetList(ctx context.Context, id string) (domain.ListSnapshot, error) {
	var out domain.ListSnapshot
	err := c.do(ctx, http.MethodGet, "/api/lists/"+id, nil, &out)
	return out, err
}

func (c *NodeClient) DeleteList(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/lists/"+id, nil, nil)
}

func (c *NodeClient) AddItem(ctx context.Context, item domain.Item) (domain.Item, error) {
	req := map[string]any{
		"id":          item.ID,
		"name":        item.Name.Value,
		"quantity":    item.Quantity.Value(),
		"acquired":    item.Acquired.Value(),
		"vectorClock": item.VectorClock,
		"createdAt":   item.CreatedAt,
		"lastUpdated": item.LastUpdated,
	}
	var out domain.Item
	err := c.do(ctx, http.MethodPost, "/api/lists/"+item.ListID+"/items", req, &out)
	return out, err
}

func (c *NodeClient) UpdateName(ctx context.Context, item domain.Item) (domain.Item, error) {
	req := map[string]any{
		"name":        item.Name.Value,
		"vectorClock": item.VectorClock,
		"lastUpdated": item.LastUpdated,
	}
	var out domain.Item
	err := c.do(ctx, http.MethodPatch, "/api/items/"+item.ID+"/name", req, &out)
	return out, err
}

func (c *NodeClient) UpdateQuantity(ctx context.Context, item domain.Item) (domain.Item, error) {
	acquired := item.Acquired.Value()
	req := map[string]any{
		"quantity":    item.Quantity.Value(),
		"acquired":    &acquired,
		"vectorClock": item.VectorClock,
		"lastUpdated": item.LastUpdated,
	}
	var out domain.Item
	err := c.do(ctx, http.MethodPatch, "/api/items/"+item.ID+"/quantity", req, &out)
	return out, err
}

func (c *NodeClient) ToggleItem(ctx context.Context, item domain.Item) (domain.Item, error) {
	acquired := item.Acquired.Value()
	req := map[string]any{
		"acquired":    &acquired,
		"vectorClock": item.VectorClock,
		"lastUpdated": item.LastUpdated,
	}
	var out domain.Item
	err := c.do(ctx, http.MethodPatch, "/api/items/"+item.ID+"/toggle", req, &out)
	return out, err
}

func (c *NodeClient) RemoveItem(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/items/"+id, nil, nil)
}

func (c *NodeClient) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}
