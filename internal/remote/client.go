package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Client talks to a swimsync record service over HTTP, with the event
// stream delivered over a websocket. It implements Service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the service at baseURL (e.g.
// "http://localhost:8787"). If httpClient is nil a default with a 30s
// timeout is used.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

type pushRequest struct {
	Upserts []Record `json:"upserts"`
	Deletes []string `json:"deletes"`
}

type pushReply struct {
	Results []PerRecordResult `json:"results"`
}

type pullRequest struct {
	Since []byte `json:"since,omitempty"`
}

// Push implements Service.Push.
func (c *Client) Push(ctx context.Context, zone string, upserts []Record, deletes []string) ([]PerRecordResult, error) {
	var reply pushReply
	err := c.post(ctx, "/zones/"+url.PathEscape(zone)+"/push",
		pushRequest{Upserts: upserts, Deletes: deletes}, &reply)
	if err != nil {
		return nil, err
	}
	return reply.Results, nil
}

// Pull implements Service.Pull.
func (c *Client) Pull(ctx context.Context, zone string, since []byte) (*PullResponse, error) {
	var reply PullResponse
	err := c.post(ctx, "/zones/"+url.PathEscape(zone)+"/pull", pullRequest{Since: since}, &reply)
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// CreateZone implements Service.CreateZone.
func (c *Client) CreateZone(ctx context.Context, zone string) error {
	return c.do(ctx, http.MethodPut, "/zones/"+url.PathEscape(zone), nil, nil)
}

// DeleteZone implements Service.DeleteZone.
func (c *Client) DeleteZone(ctx context.Context, zone string) error {
	return c.do(ctx, http.MethodDelete, "/zones/"+url.PathEscape(zone), nil, nil)
}

// Count implements Service.Count.
func (c *Client) Count(ctx context.Context, zone, kind string) (int, error) {
	var reply struct {
		Count int `json:"count"`
	}
	path := "/zones/" + url.PathEscape(zone) + "/count?kind=" + url.QueryEscape(kind)
	if err := c.do(ctx, http.MethodGet, path, nil, &reply); err != nil {
		return 0, err
	}
	return reply.Count, nil
}

// Events implements Service.Events by dialing the server's /events
// websocket. Decoded events are delivered until ctx is cancelled or the
// connection drops, after which the channel closes.
func (c *Client) Events(ctx context.Context) (<-chan Event, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/events"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to dial event stream: %v", ErrTransient, err)
	}
	conn.SetReadLimit(1 << 20)

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		defer conn.Close(websocket.StatusNormalClosure, "done")
		for {
			var ev Event
			if err := wsjson.Read(ctx, conn, &ev); err != nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// do issues one request and decodes the JSON reply. Connection failures and
// 5xx replies are classified transient; a 404 maps to ErrZoneNotFound.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrZoneNotFound
	case resp.StatusCode >= 500:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: server returned %d: %s", ErrTransient, resp.StatusCode, msg)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request rejected with %d: %s", resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
