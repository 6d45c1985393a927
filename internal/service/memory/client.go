// Package memory talks to the Mem0 cloud API. Every public call is best-effort:
// failures are logged and reported as false or empty results.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

var errNotConfigured = errors.New("mem0 api key not configured")

// Record is one memory returned by a search.
type Record struct {
	ID     string
	Memory string
	Score  float64
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type addRequest struct {
	Messages []message     `json:"messages"`
	UserID   string         `json:"user_id"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type searchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
	Limit  int    `json:"limit,omitempty"`
}

type client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

func (c *client) add(ctx context.Context, req addRequest) error {
	_, err := c.post(ctx, "/v1/memories/", req)
	return err
}

func (c *client) search(ctx context.Context, req searchRequest) ([]Record, error) {
	body, err := c.post(ctx, "/v1/memories/search/", req)
	if err != nil {
		return nil, err
	}
	return parseRecords(body)
}

func (c *client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	if c.apiKey == "" {
		return nil, errNotConfigured
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("post %s: status %d: %s", path, resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

// parseRecords accepts either a bare array or an object with a results array.
func parseRecords(body []byte) ([]Record, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid search response: %s", truncate(string(body), 200))
	}

	list := gjson.ParseBytes(body)
	if list.IsObject() {
		list = list.Get("results")
	}
	if !list.IsArray() {
		return nil, nil
	}

	var records []Record
	list.ForEach(func(_, item gjson.Result) bool {
		text := strings.TrimSpace(item.Get("memory").String())
		if text == "" {
			return true
		}
		records = append(records, Record{
			ID:     item.Get("id").String(),
			Memory: text,
			Score:  item.Get("score").Float(),
		})
		return true
	})
	return records, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
