package woox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"woox-trader/internal/market"
	"woox-trader/pkg/exchange"
)

const (
	defaultBaseURL  = "https://api.woo.org"
	pathKlines      = "/v1/public/kline"
	pathAlgoOrder   = "/v3/algo/order"
	rateLimitHeader = "x-ratelimit-used"
)

// Config carries WOO X credentials and transport settings.
type Config struct {
	APIKey        string
	APISecret     string
	ApplicationID string
	BaseURL       string
	Timeout       time.Duration
}

// Client is the WOO X REST gateway for algo orders plus the public kline
// endpoint used by the market feed. Failed calls are wrapped in
// *exchange.GatewayError and recorded through the Recorder when set.
type Client struct {
	cfg        Config
	HTTPClient *http.Client
	Limiter    *exchange.RateLimiter
	Recorder   exchange.ErrorRecorder
}

// NewClient builds a REST client with the exchange's documented private
// rate window.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		Limiter:    exchange.NewRateLimiter(600, 10*time.Second),
	}
}

func (c *Client) SubmitEntryOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderRef, error) {
	return c.submitAlgoOrder(ctx, req, false)
}

func (c *Client) SubmitStopOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderRef, error) {
	return c.submitAlgoOrder(ctx, req, true)
}

type algoOrderParams struct {
	Symbol               string `json:"symbol"`
	Side                 string `json:"side"`
	ReduceOnly           bool   `json:"reduceOnly"`
	Type                 string `json:"type"`
	Quantity             string `json:"quantity"`
	AlgoType             string `json:"algoType"`
	TriggerPrice         string `json:"triggerPrice"`
	OrderCombinationType string `json:"orderCombinationType"`
	OrderTag             string `json:"orderTag,omitempty"`
}

type algoOrderRow struct {
	AlgoOrderID int64  `json:"algoOrderId"`
	AlgoStatus  string `json:"algoStatus"`
}

func (c *Client) submitAlgoOrder(ctx context.Context, req exchange.OrderRequest, reduceOnly bool) (exchange.OrderRef, error) {
	params := algoOrderParams{
		Symbol:               req.Symbol,
		Side:                 string(req.Side),
		ReduceOnly:           reduceOnly,
		Type:                 string(exchange.OrderTypeMarket),
		Quantity:             formatFloat(req.Quantity),
		AlgoType:             string(exchange.AlgoTypeStop),
		TriggerPrice:         formatFloat(req.TriggerPrice),
		OrderCombinationType: "STOP_MARKET",
		OrderTag:             req.Tag,
	}

	var data struct {
		Rows []algoOrderRow `json:"rows"`
	}
	if err := c.signedRequest(ctx, http.MethodPost, pathAlgoOrder, params, &data); err != nil {
		return exchange.OrderRef{}, err
	}
	if len(data.Rows) == 0 {
		return exchange.OrderRef{}, c.apiError(ctx, pathAlgoOrder, params, fmt.Errorf("create response has no rows"))
	}

	row := data.Rows[0]
	status := exchange.Status(row.AlgoStatus)
	if status == "" {
		status = exchange.StatusNew
	}
	now := float64(time.Now().UnixMilli()) / 1000
	return exchange.OrderRef{
		OrderID:      row.AlgoOrderID,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Type:         exchange.OrderTypeMarket,
		AlgoType:     exchange.AlgoTypeStop,
		Quantity:     req.Quantity,
		ReduceOnly:   reduceOnly,
		TriggerPrice: req.TriggerPrice,
		Status:       status,
		Tag:          req.Tag,
		CreatedTime:  now,
		UpdatedTime:  now,
	}, nil
}

func (c *Client) AmendOrder(ctx context.Context, orderID int64, amend exchange.AmendRequest) (exchange.OrderRef, error) {
	params := map[string]string{}
	if amend.Quantity != nil {
		params["quantity"] = formatFloat(*amend.Quantity)
	}
	if amend.TriggerPrice != nil {
		params["triggerPrice"] = formatFloat(*amend.TriggerPrice)
	}
	path := fmt.Sprintf("%s/%d", pathAlgoOrder, orderID)

	var data struct {
		Status string `json:"status"`
	}
	if err := c.signedRequest(ctx, http.MethodPut, path, params, &data); err != nil {
		return exchange.OrderRef{}, err
	}
	if data.Status != "EDIT_SENT" {
		return exchange.OrderRef{}, c.apiError(ctx, path, params, fmt.Errorf("amend not accepted: %q", data.Status))
	}

	ref := exchange.OrderRef{OrderID: orderID, UpdatedTime: float64(time.Now().UnixMilli()) / 1000}
	if amend.Quantity != nil {
		ref.Quantity = *amend.Quantity
	}
	if amend.TriggerPrice != nil {
		ref.TriggerPrice = *amend.TriggerPrice
	}
	return ref, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID int64) error {
	path := fmt.Sprintf("%s/%d", pathAlgoOrder, orderID)
	return c.signedRequest(ctx, http.MethodDelete, path, nil, nil)
}

// Klines fetches the most recent finished 1m klines, oldest first.
// Implements the market feed's Source.
func (c *Client) Klines(ctx context.Context, symbol string, limit int) ([]market.Kline, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("type", "1m")
	q.Set("limit", strconv.Itoa(limit))
	u := c.cfg.BaseURL + pathKlines + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var body struct {
		Success bool `json:"success"`
		Rows    []struct {
			Open           float64 `json:"open"`
			High           float64 `json:"high"`
			Low            float64 `json:"low"`
			Close          float64 `json:"close"`
			Volume         float64 `json:"volume"`
			StartTimestamp int64   `json:"start_timestamp"`
		} `json:"rows"`
	}
	if err := c.do(ctx, req, pathKlines, symbol, &body, &body.Success); err != nil {
		return nil, err
	}

	klines := make([]market.Kline, 0, len(body.Rows))
	for _, r := range body.Rows {
		klines = append(klines, market.Kline{
			Symbol:           symbol,
			TimeframeMinutes: 1,
			StartTime:        r.StartTimestamp / 1000,
			Open:             r.Open,
			High:             r.High,
			Low:              r.Low,
			Close:            r.Close,
			Volume:           r.Volume,
		})
	}
	// rows arrive newest first
	for i, j := 0, len(klines)-1; i < j; i, j = i+1, j-1 {
		klines[i], klines[j] = klines[j], klines[i]
	}
	return klines, nil
}

// signedRequest sends a v3-signed JSON request and decodes the "data" field
// of a successful response into out.
func (c *Client) signedRequest(ctx context.Context, method, path string, params any, out any) error {
	var (
		bodyBytes []byte
		err       error
	)
	if params != nil {
		if bodyBytes, err = json.Marshal(params); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return err
	}

	ts := timestampMS()
	req.Header.Set("x-api-timestamp", ts)
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("x-api-signature", signV3(c.cfg.APISecret, ts, method, path, string(bodyBytes)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := c.do(ctx, req, path, string(bodyBytes), &envelope, &envelope.Success); err != nil {
		return err
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return c.apiError(ctx, path, params, fmt.Errorf("decode response data: %w", err))
		}
	}
	return nil
}

// do executes the request, decodes the body into envelope and verifies the
// exchange's success flag. Transport failures are classified; API failures
// carry the raw response.
func (c *Client) do(ctx context.Context, req *http.Request, path, params string, envelope any, success *bool) error {
	c.Limiter.Record()

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return c.recordError(ctx, &exchange.GatewayError{
			Kind:   exchange.ClassifyError(err),
			URL:    path,
			Params: params,
			Err:    err,
		})
	}
	defer resp.Body.Close()
	c.Limiter.UpdateFromHeader(resp.Header.Get(rateLimitHeader))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.recordError(ctx, &exchange.GatewayError{
			Kind:   exchange.ClassifyError(err),
			URL:    path,
			Params: params,
			Err:    err,
		})
	}
	if err := json.Unmarshal(raw, envelope); err != nil {
		return c.recordError(ctx, &exchange.GatewayError{
			Kind:   exchange.ErrorKindAPI,
			URL:    path,
			Params: params,
			Err:    fmt.Errorf("status %d: %w", resp.StatusCode, err),
		})
	}
	if !*success {
		return c.recordError(ctx, &exchange.GatewayError{
			Kind:   exchange.ErrorKindAPI,
			URL:    path,
			Params: params,
			Err:    fmt.Errorf("status %d: %s", resp.StatusCode, string(raw)),
		})
	}
	return nil
}

func (c *Client) apiError(ctx context.Context, path string, params any, err error) error {
	p, _ := json.Marshal(params)
	return c.recordError(ctx, &exchange.GatewayError{
		Kind:   exchange.ErrorKindAPI,
		URL:    path,
		Params: string(p),
		Err:    err,
	})
}

func (c *Client) recordError(ctx context.Context, ge *exchange.GatewayError) error {
	if c.Recorder != nil {
		c.Recorder.RecordGatewayError(ctx, ge.Kind, ge.URL, ge.Params, ge.Err.Error())
	}
	return ge
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
