// Package chat provides a polling client for the Redis-Chat incremental
// sync protocol.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// State is where the client sits in the sync state machine.
type State int

const (
	// StateInitial: nothing fetched yet; the next Sync does a full fetch.
	StateInitial State = iota
	// StateSynced: history is current up to the watermark; the next Sync
	// probes before deciding whether to fetch.
	StateSynced
	// StateFetching: a positive probe is being followed by a delta fetch.
	StateFetching
)

// Message is a chat message as returned by the server.
type Message struct {
	ID         string `json:"id"`
	Author     string `json:"author"`
	Body       string `json:"body"`
	Timestamp  int64  `json:"ts"`
	Visibility string `json:"vis,omitempty"`
}

// Client tracks a watermark and merges fetches idempotently, so
// overlapping polls or a just-completed local send never duplicate a
// message. Client is not safe for concurrent use.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	state     State
	watermark int64
	token     string
	seen      map[string]bool
	history   []Message
}

// NewClient creates a new chat client. The cookie jar carries the
// anonymous session the server assigns on first contact.
func NewClient(baseURL string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second, Jar: jar},
		seen:       make(map[string]bool),
	}
}

// State returns the current sync state.
func (c *Client) State() State {
	return c.state
}

// Watermark returns the newest timestamp the client has seen.
func (c *Client) Watermark() int64 {
	return c.watermark
}

// History returns all merged messages in arrival order.
func (c *Client) History() []Message {
	return c.history
}

// Sync advances the state machine one step and returns any newly seen
// messages. From StateInitial it does a full fetch; from StateSynced it
// probes first and only issues a delta fetch when the probe reports
// newer data; from StateFetching it retries the pending delta fetch
// without probing again.
func (c *Client) Sync(ctx context.Context) ([]Message, error) {
	if c.state == StateInitial {
		resp, err := c.fetch(ctx, "/api/messages")
		if err != nil {
			return nil, err
		}
		c.state = StateSynced
		return c.merge(resp), nil
	}

	// A failed delta leaves the client in StateFetching; in that case
	// data is already known to be waiting, so skip the probe and retry
	// the fetch directly.
	if c.state != StateFetching {
		probe, err := c.probe(ctx)
		if err != nil {
			return nil, err
		}
		if !probe.Changed {
			return nil, nil
		}
		c.state = StateFetching
	}

	resp, err := c.fetch(ctx, fmt.Sprintf("/api/messages?after=%d", c.watermark))
	if err != nil {
		return nil, err
	}
	c.state = StateSynced
	return c.merge(resp), nil
}

type messagesResponse struct {
	Messages []Message `json:"messages"`
	Latest   int64     `json:"latest"`
}

type probeResponse struct {
	Changed bool  `json:"changed"`
	Latest  int64 `json:"latest"`
}

// merge folds fetched messages into history, skipping IDs already seen,
// and advances the watermark.
func (c *Client) merge(resp *messagesResponse) []Message {
	var fresh []Message
	for _, msg := range resp.Messages {
		if c.seen[msg.ID] {
			continue
		}
		c.seen[msg.ID] = true
		c.history = append(c.history, msg)
		fresh = append(fresh, msg)
	}
	if resp.Latest > c.watermark {
		c.watermark = resp.Latest
	}
	return fresh
}

func (c *Client) fetch(ctx context.Context, path string) (*messagesResponse, error) {
	body, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	var resp messagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) probe(ctx context.Context) (*probeResponse, error) {
	body, err := c.doRequest(ctx, "GET", fmt.Sprintf("/api/sync?after=%d", c.watermark), nil)
	if err != nil {
		return nil, err
	}
	var resp probeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PostResponse is the server's acknowledgement of a posted message.
type PostResponse struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// Post submits a message, fetching an anti-forgery token first when the
// client does not hold one. A token rejection is retried once with a
// freshly issued token.
func (c *Client) Post(ctx context.Context, author, body string) (*PostResponse, error) {
	if c.token == "" {
		if err := c.refreshToken(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := c.post(ctx, author, body)
	if err != nil {
		// The token may have aged out server-side; re-issue and retry once.
		if reqErr, ok := err.(*RequestError); ok && reqErr.StatusCode == http.StatusForbidden {
			if err := c.refreshToken(ctx); err != nil {
				return nil, err
			}
			return c.post(ctx, author, body)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, author, body string) (*PostResponse, error) {
	payload, _ := json.Marshal(map[string]string{
		"author": author,
		"body":   body,
		"token":  c.token,
	})

	respBody, err := c.doRequest(ctx, "POST", "/api/messages", payload)
	if err != nil {
		return nil, err
	}

	var resp PostResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) refreshToken(ctx context.Context) error {
	body, err := c.doRequest(ctx, "GET", "/api/token", nil)
	if err != nil {
		return err
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return err
	}
	c.token = resp.Token
	return nil
}

// Heartbeat marks this session as active.
func (c *Client) Heartbeat(ctx context.Context) error {
	_, err := c.doRequest(ctx, "POST", "/api/heartbeat", nil)
	return err
}

// Online returns the server's count of recently active sessions.
func (c *Client) Online(ctx context.Context) (int64, error) {
	body, err := c.doRequest(ctx, "GET", "/api/online", nil)
	if err != nil {
		return 0, err
	}
	var resp struct {
		Online int64 `json:"online"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, err
	}
	return resp.Online, nil
}

// RequestError is a non-2xx response from the server.
type RequestError struct {
	StatusCode int
	Message    string
	RetryAfter int // seconds, set on rate limit responses
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("chat error %d: %s", e.StatusCode, e.Message)
}

// doRequest performs an HTTP request.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		reqErr := &RequestError{StatusCode: resp.StatusCode, Message: errResp.Error}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			fmt.Sscanf(ra, "%d", &reqErr.RetryAfter)
		}
		return nil, reqErr
	}

	return respBody, nil
}
