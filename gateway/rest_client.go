package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// RESTClient 通过HTTP实现 Client 契约；HTTPClient 可注入 httptest。
// 错误在这里一次性映射为 *ExchangeError，上层只看分类。
type RESTClient struct {
	BaseURL    string
	APIKey     string
	Secret     string
	HTTPClient *http.Client
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

type placeOrderResp struct {
	ID string `json:"id"`
}

type orderStatusResp struct {
	Open   bool    `json:"open"`
	Filled bool    `json:"filled"`
	Price  float64 `json:"price"`
}

type tickerResp struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

type balanceResp struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

type feeResp struct {
	Fee float64 `json:"fee"`
}

// PlaceOrder 提交限价单。
func (c *RESTClient) PlaceOrder(ctx context.Context, side string, amount, price float64, pair string) (OrderAck, error) {
	params := map[string]string{
		"side":   side,
		"amount": strconv.FormatFloat(amount, 'f', -1, 64),
		"price":  strconv.FormatFloat(price, 'f', -1, 64),
		"pair":   pair,
	}
	var pr placeOrderResp
	if err := c.do(ctx, http.MethodPost, "/api/v1/order", params, "place_order", &pr); err != nil {
		return OrderAck{}, err
	}
	if pr.ID == "" {
		return OrderAck{}, NewExchangeError(KindRetryable, "place_order", fmt.Errorf("empty order id"))
	}
	return OrderAck{ID: pr.ID}, nil
}

// OrderStatus 查询订单状态。
func (c *RESTClient) OrderStatus(ctx context.Context, id string) (OrderState, error) {
	var sr orderStatusResp
	if err := c.do(ctx, http.MethodGet, "/api/v1/order", map[string]string{"id": id}, "order_status", &sr); err != nil {
		return OrderState{}, err
	}
	return OrderState{Open: sr.Open, Filled: sr.Filled, Price: sr.Price}, nil
}

// CancelOrder 撤销订单。
func (c *RESTClient) CancelOrder(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/order", map[string]string{"id": id}, "cancel_order", nil)
}

// Ticker 查询最优买卖价。
func (c *RESTClient) Ticker(ctx context.Context, pair string) (Ticker, error) {
	var tr tickerResp
	if err := c.do(ctx, http.MethodGet, "/api/v1/ticker", map[string]string{"pair": pair}, "ticker", &tr); err != nil {
		return Ticker{}, err
	}
	return Ticker{Bid: tr.Bid, Ask: tr.Ask}, nil
}

// Balances 查询余额。
func (c *RESTClient) Balances(ctx context.Context) ([]Balance, error) {
	var br []balanceResp
	if err := c.do(ctx, http.MethodGet, "/api/v1/balances", nil, "balances", &br); err != nil {
		return nil, err
	}
	out := make([]Balance, 0, len(br))
	for _, b := range br {
		out = append(out, Balance{Name: b.Name, Amount: b.Amount})
	}
	return out, nil
}

// Fee 查询手续费率。
func (c *RESTClient) Fee(ctx context.Context) (float64, error) {
	var fr feeResp
	if err := c.do(ctx, http.MethodGet, "/api/v1/fee", nil, "fee", &fr); err != nil {
		return 0, err
	}
	return fr.Fee, nil
}

func (c *RESTClient) do(ctx context.Context, method, path string, params map[string]string, op string, out any) error {
	if c == nil || c.HTTPClient == nil {
		return NewExchangeError(KindFatal, op, fmt.Errorf("http client not set"))
	}
	query, sig := SignParams(params, c.Secret)
	endpoint := c.BaseURL + path
	if query != "" {
		endpoint += "?" + query
		if sig != "" {
			endpoint += "&signature=" + url.QueryEscape(sig)
		}
	} else if sig != "" {
		endpoint += "?signature=" + url.QueryEscape(sig)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return NewExchangeError(KindFatal, op, err)
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-KEY", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return NewExchangeError(classifyTransport(err), op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return NewExchangeError(classifyStatus(resp.StatusCode), op,
			fmt.Errorf("status %d", resp.StatusCode))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewExchangeError(KindRetryable, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// classifyStatus 把HTTP状态码映射到闭合的错误分类。
func classifyStatus(code int) ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusNotFound:
		return KindNotFound
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	case code >= 500:
		return KindRetryable
	default:
		// 剩余的4xx是请求本身的问题，重试不会变好。
		return KindFatal
	}
}

// classifyTransport 网络层错误：超时单独归类，其余按可重试处理。
func classifyTransport(err error) ErrorKind {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindRetryable
}
