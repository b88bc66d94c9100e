// Package alpaca submits orders to the Alpaca trading REST API and reads
// the account's day P/L.
package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rustyeddy/tradectl/broker"
	"github.com/rustyeddy/tradectl/logger"
)

const (
	// PaperURL is Alpaca's paper-trading endpoint
	PaperURL = "https://paper-api.alpaca.markets"
	// LiveURL is Alpaca's live-trading endpoint
	LiveURL = "https://api.alpaca.markets"
)

// errBadBody is a 2xx reply whose body could not be decoded.
var errBadBody = errors.New("unreadable response body")

// Client is an Alpaca REST client implementing broker.Executor and
// broker.PLReporter.
type Client struct {
	baseURL    string
	keyID      string
	secretKey  string
	httpClient *http.Client
}

// NewClient creates a client. An empty baseURL selects the paper endpoint.
func NewClient(baseURL, keyID, secretKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = PaperURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type orderRequest struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	LimitPrice    string `json:"limit_price,omitempty"`
	ClientOrderID string `json:"client_order_id"`
}

type orderResponse struct {
	ID             string  `json:"id"`
	ClientOrderID  string  `json:"client_order_id"`
	Symbol         string  `json:"symbol"`
	Status         string  `json:"status"`
	Side           string  `json:"side"`
	Qty            string  `json:"qty"`
	FilledQty      string  `json:"filled_qty"`
	FilledAvgPrice *string `json:"filled_avg_price"`
	SubmittedAt    string  `json:"submitted_at"`
	FilledAt       *string `json:"filled_at"`
}

type accountResponse struct {
	Equity     string `json:"equity"`
	LastEquity string `json:"last_equity"`
}

// Submit posts the order to /v2/orders. Fractional quantities are forced to
// day time-in-force, which is all Alpaca accepts for them.
func (c *Client) Submit(ctx context.Context, o broker.Order) (broker.Fill, error) {
	tif := o.TimeInForce
	if o.Qty != math.Trunc(o.Qty) && tif != "day" {
		logger.Debugf("alpaca: forcing day time_in_force for fractional qty %g", o.Qty)
		tif = "day"
	}

	req := orderRequest{
		Symbol:        o.Symbol,
		Qty:           strconv.FormatFloat(o.Qty, 'f', -1, 64),
		Side:          string(o.Side),
		Type:          o.OrderType,
		TimeInForce:   tif,
		ClientOrderID: uuid.NewString(),
	}
	if o.OrderType == "limit" {
		req.LimitPrice = strconv.FormatFloat(o.LimitPrice, 'f', -1, 64)
	}

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/v2/orders", req, &resp); err != nil {
		if errors.Is(err, errBadBody) {
			fill := broker.Fill{Symbol: o.Symbol, Qty: o.Qty, Side: o.Side, Status: "unknown"}
			return fill, fmt.Errorf("alpaca submit %s (client_order_id %s): %w: %w", o.Symbol, req.ClientOrderID, broker.ErrUnknownOutcome, err)
		}
		return broker.Fill{}, fmt.Errorf("alpaca submit %s: %w", o.Symbol, err)
	}

	fill := broker.Fill{
		OrderID: resp.ID,
		Symbol:  resp.Symbol,
		Qty:     o.Qty,
		Side:    broker.Side(resp.Side),
		Status:  resp.Status,
	}
	if resp.FilledAvgPrice != nil {
		fill.Price, _ = strconv.ParseFloat(*resp.FilledAvgPrice, 64)
	}
	if q, err := strconv.ParseFloat(resp.FilledQty, 64); err == nil && q > 0 {
		fill.Qty = q
	}
	ts := resp.SubmittedAt
	if resp.FilledAt != nil {
		ts = *resp.FilledAt
	}
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		fill.FilledAt = t
	}
	return fill, nil
}

// DayPL returns equity minus the previous session's closing equity.
func (c *Client) DayPL(ctx context.Context) (float64, error) {
	var acct accountResponse
	if err := c.do(ctx, http.MethodGet, "/v2/account", nil, &acct); err != nil {
		return 0, fmt.Errorf("alpaca account: %w", err)
	}
	eq, err := strconv.ParseFloat(acct.Equity, 64)
	if err != nil {
		return 0, fmt.Errorf("parse equity %q: %w", acct.Equity, err)
	}
	last, err := strconv.ParseFloat(acct.LastEquity, 64)
	if err != nil {
		return 0, fmt.Errorf("parse last_equity %q: %w", acct.LastEquity, err)
	}
	return eq - last, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("APCA-API-KEY-ID", c.keyID)
	httpReq.Header.Set("APCA-API-SECRET-KEY", c.secretKey)
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// timeouts, resets and cancelled contexts all land here
		return fmt.Errorf("%w: %v", broker.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		kind := broker.ErrRejected
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			kind = broker.ErrTransient
		}
		return fmt.Errorf("%w: API error (status %d): %s", kind, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	// the request succeeded past this point; only the reply is in doubt
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty", errBadBody)
		}
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}
