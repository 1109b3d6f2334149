// Package client talks to the catalog HTTP API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"turtle-internet/internal/game"
	"turtle-internet/internal/response"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api error: %d %s", e.Status, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the server at baseURL. A nil httpClient gets a
// client with a 30 second timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		apiErr := &APIError{Status: resp.StatusCode}
		var body response.ErrorBody
		if json.NewDecoder(resp.Body).Decode(&body) == nil {
			apiErr.Message = body.Error
		}
		return nil, apiErr
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	resp, err := c.do(ctx, http.MethodGet, path, query)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// FetchPage requests one catalog page. Zero values are left to the server.
func (c *Client) FetchPage(ctx context.Context, category string, sort game.SortKey, cursor game.Cursor, limit int) (*game.Page, error) {
	q := url.Values{}
	if category != "" {
		q.Set("category", category)
	}
	if sort != "" {
		q.Set("sort", string(sort))
	}
	if cursor != "" {
		q.Set("cursor", string(cursor))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var page game.Page
	if err := c.getJSON(ctx, "/api/games", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) GetGame(ctx context.Context, id string) (*game.Game, error) {
	var g game.Game
	if err := c.getJSON(ctx, "/api/games/"+url.PathEscape(id), nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (c *Client) ListCategories(ctx context.Context) ([]*game.Category, error) {
	var categories []*game.Category
	if err := c.getJSON(ctx, "/api/categories", nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// RecordPlay reports a play. The server counts it asynchronously.
func (c *Client) RecordPlay(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/games/"+url.PathEscape(id)+"/play", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// FetchROM downloads the file behind a download page URL through the relay.
func (c *Client) FetchROM(ctx context.Context, gameURL string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/proxy", url.Values{"url": {gameURL}})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rom: %w", err)
	}
	return data, nil
}
