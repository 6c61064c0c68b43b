// Package entries is the HTTP client for the mood entry endpoints.
package entries

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"moodtide/internal/identity"
	"moodtide/internal/mood"
	"moodtide/internal/search"
)

// ErrNotFound is returned when no entry exists for the requested day.
var ErrNotFound = errors.New("entry not found")

// TokenSource supplies the access token for each request. identity.Client
// satisfies it.
type TokenSource interface {
	Token() string
}

const defaultTimeout = 10 * time.Second

// Client calls the entry, insight and search endpoints with a bearer token.
type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
	timeout time.Duration
}

func NewClient(baseURL string, tokens TokenSource) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    &http.Client{Timeout: defaultTimeout},
		timeout: defaultTimeout,
	}
}

// Upsert records or replaces the entry for entry.Day.
func (c *Client) Upsert(ctx context.Context, entry mood.Entry) (mood.Entry, error) {
	var payload struct {
		Entry mood.Entry `json:"entry"`
	}
	err := c.call(ctx, http.MethodPost, "/api/entries", map[string]any{
		"moodValue": int(entry.Value),
		"reason":    entry.Reason,
		"day":       entry.Day,
	}, &payload)
	if err != nil {
		return mood.Entry{}, err
	}
	return payload.Entry, nil
}

// Get returns the entry for one day, or ErrNotFound.
func (c *Client) Get(ctx context.Context, day string) (mood.Entry, error) {
	var payload struct {
		Entry mood.Entry `json:"entry"`
	}
	err := c.call(ctx, http.MethodGet, "/api/entries/"+day, nil, &payload)
	if identity.KindOf(err) == identity.KindNotFound {
		return mood.Entry{}, ErrNotFound
	}
	if err != nil {
		return mood.Entry{}, err
	}
	return payload.Entry, nil
}

// List returns the entries between two day keys inclusive, newest first.
// Empty bounds leave that side open.
func (c *Client) List(ctx context.Context, fromDay, toDay string) ([]mood.Entry, error) {
	query := url.Values{}
	if fromDay != "" {
		query.Set("from", fromDay)
	}
	if toDay != "" {
		query.Set("to", toDay)
	}
	path := "/api/entries"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var payload struct {
		Entries []mood.Entry `json:"entries"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Entries, nil
}

// Delete removes the entry for one day.
func (c *Client) Delete(ctx context.Context, day string) error {
	return c.call(ctx, http.MethodDelete, "/api/entries/"+day, nil, nil)
}

// Reset removes every entry the user has.
func (c *Client) Reset(ctx context.Context) error {
	return c.call(ctx, http.MethodDelete, "/api/entries", nil, nil)
}

// Insights fetches the aggregate view over a window of "week", "month" or
// "all". today anchors the window and the current streak to the caller's
// local day; empty lets the server pick its own.
func (c *Client) Insights(ctx context.Context, today, window string) (mood.Insights, error) {
	query := url.Values{}
	if today != "" {
		query.Set("today", today)
	}
	if window != "" {
		query.Set("window", window)
	}
	path := "/api/insights"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var payload struct {
		Insights mood.Insights `json:"insights"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return mood.Insights{}, err
	}
	return payload.Insights, nil
}

// Search matches the query text against entry reasons.
func (c *Client) Search(ctx context.Context, text string, limit, offset int) (search.Response, error) {
	query := url.Values{}
	query.Set("q", text)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}

	var payload search.Response
	if err := c.call(ctx, http.MethodGet, "/api/search?"+query.Encode(), nil, &payload); err != nil {
		return search.Response{}, err
	}
	return payload, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("entries: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("entries: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return identity.FromTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return identity.FromResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("entries: decode response: %w", err)
	}
	return nil
}
