package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/tradectl/broker"
	"github.com/rustyeddy/tradectl/daemon"
	"github.com/rustyeddy/tradectl/journal"
)

// APIError is a non-2xx reply from the control plane.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("control plane error (status %d): %s", e.StatusCode, e.Message)
}

// Client talks to a running daemon's control plane.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(addr, token string) *Client {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return &Client{
		baseURL:    strings.TrimRight(addr, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Status(ctx context.Context) (daemon.Status, error) {
	var st daemon.Status
	err := c.do(ctx, http.MethodGet, "/status", nil, &st)
	return st, err
}

func (c *Client) Pause(ctx context.Context) (daemon.Status, error) {
	var st daemon.Status
	err := c.do(ctx, http.MethodPost, "/pause", nil, &st)
	return st, err
}

func (c *Client) Resume(ctx context.Context) (daemon.Status, error) {
	var st daemon.Status
	err := c.do(ctx, http.MethodPost, "/resume", nil, &st)
	return st, err
}

func (c *Client) SetMode(ctx context.Context, mode string) (daemon.Status, error) {
	var st daemon.Status
	err := c.do(ctx, http.MethodPost, "/mode", modeRequest{Mode: mode}, &st)
	return st, err
}

func (c *Client) StartPortfolio(ctx context.Context) (daemon.Status, error) {
	var st daemon.Status
	err := c.do(ctx, http.MethodPost, "/portfolio/start", nil, &st)
	return st, err
}

func (c *Client) StopPortfolio(ctx context.Context) (daemon.Status, error) {
	var st daemon.Status
	err := c.do(ctx, http.MethodPost, "/portfolio/stop", nil, &st)
	return st, err
}

func (c *Client) Order(ctx context.Context, o broker.Order) (OrderResponse, error) {
	var resp OrderResponse
	err := c.do(ctx, http.MethodPost, "/order", o, &resp)
	return resp, err
}

func (c *Client) Transactions(ctx context.Context, limit int) ([]journal.Transaction, error) {
	path := "/transactions"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var resp struct {
		Transactions []journal.Transaction `json:"transactions"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp.Transactions, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
