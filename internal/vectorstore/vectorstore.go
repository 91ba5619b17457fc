// Package vectorstore implements the three vector-store operations of
// spec.md §6.4 (get_collection, scroll, retrieve) as a plain net/http
// JSON client. No Qdrant (or any vector-store) Go SDK exists anywhere in
// the retrieved example pack — see DESIGN.md — and the interface is
// small enough that a direct client is the correct scope.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Point is a single vector-store point: an id, its embedding, and a
// free-form payload that may carry item_title/text fields (§6.4).
type Point struct {
	ID      string         `json:"id"`
	Vector  []float64      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// HoverText derives the point's hover text from payload fields
// item_title and text, joined by a blank line (§4.E vector-fetch
// protocol).
func (p Point) HoverText() string {
	title, _ := p.Payload["item_title"].(string)
	text, _ := p.Payload["text"].(string)
	switch {
	case title != "" && text != "":
		return title + "\n\n" + text
	case title != "":
		return title
	default:
		return text
	}
}

// Client is a thin REST binding over a vector-store HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("vectorstore: request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("vectorstore: %s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CollectionInfo is the response shape of get_collection (§6.4).
type CollectionInfo struct {
	PointsCount int64 `json:"points_count"`
}

func (c *Client) GetCollection(ctx context.Context, name string) (CollectionInfo, error) {
	var out CollectionInfo
	err := c.do(ctx, http.MethodGet, "/collections/"+name, nil, &out)
	return out, err
}

type scrollRequest struct {
	Limit        int    `json:"limit"`
	Offset       string `json:"offset,omitempty"`
	WithVectors  bool   `json:"with_vectors"`
	WithPayload  bool   `json:"with_payload"`
}

type scrollResponse struct {
	Points     []Point `json:"points"`
	NextOffset string  `json:"next_page_offset,omitempty"`
}

// Scroll pages through the named collection, limit points at a time,
// starting from offset (empty for the first page). It returns the page
// of points and the cursor for the next page (empty when exhausted).
func (c *Client) Scroll(ctx context.Context, collection string, limit int, offset string, withVectors, withPayload bool) ([]Point, string, error) {
	var out scrollResponse
	err := c.do(ctx, http.MethodPost, "/collections/"+collection+"/points/scroll", scrollRequest{
		Limit:       limit,
		Offset:      offset,
		WithVectors: withVectors,
		WithPayload: withPayload,
	}, &out)
	return out.Points, out.NextOffset, err
}

type retrieveRequest struct {
	IDs         []string `json:"ids"`
	WithVectors bool     `json:"with_vectors"`
	WithPayload bool     `json:"with_payload"`
}

// Retrieve fetches specific points by id.
func (c *Client) Retrieve(ctx context.Context, collection string, ids []string, withVectors, withPayload bool) ([]Point, error) {
	var out []Point
	err := c.do(ctx, http.MethodPost, "/collections/"+collection+"/points", retrieveRequest{
		IDs:         ids,
		WithVectors: withVectors,
		WithPayload: withPayload,
	}, &out)
	return out, err
}
