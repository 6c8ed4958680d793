package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newRESTClient(srv *httptest.Server) *RESTClient {
	return &RESTClient{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Secret:     "test-secret",
		HTTPClient: srv.Client(),
	}
}

func TestRESTClientPlaceOrderSignedRequest(t *testing.T) {
	var gotQuery, gotKey, gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-KEY")
		gotSig = r.URL.Query().Get("signature")
		q := r.URL.Query()
		q.Del("signature")
		gotQuery = q.Encode()
		w.Write([]byte(`{"id":"ex-55"}`))
	}))
	defer srv.Close()

	c := newRESTClient(srv)
	ack, err := c.PlaceOrder(context.Background(), "buy", 1.5, 100, "BTCUSD")
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if ack.ID != "ex-55" {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	if gotKey != "test-key" {
		t.Fatalf("api key header missing, got %q", gotKey)
	}

	// 签名必须覆盖按键排序后的查询串。
	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte(gotQuery))
	if want := hex.EncodeToString(mac.Sum(nil)); gotSig != want {
		t.Fatalf("signature mismatch: got %q want %q", gotSig, want)
	}
}

func TestRESTClientStatusClassification(t *testing.T) {
	cases := []struct {
		code int
		want ErrorKind
	}{
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusNotFound, KindNotFound},
		{http.StatusGatewayTimeout, KindTimeout},
		{http.StatusInternalServerError, KindRetryable},
		{http.StatusBadRequest, KindFatal},
	}
	for _, tc := range cases {
		code := tc.code
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))
		c := newRESTClient(srv)

		_, err := c.Ticker(context.Background(), "BTCUSD")
		srv.Close()
		var xe *ExchangeError
		if !errors.As(err, &xe) {
			t.Fatalf("status %d: expected ExchangeError, got %v", tc.code, err)
		}
		if xe.Kind != tc.want {
			t.Fatalf("status %d classified as %s, want %s", tc.code, xe.Kind, tc.want)
		}
	}
}

func TestRESTClientDecodesResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/ticker":
			w.Write([]byte(`{"bid":100.5,"ask":101}`))
		case "/api/v1/balances":
			w.Write([]byte(`[{"name":"USD","amount":1000},{"name":"BTC","amount":2}]`))
		case "/api/v1/fee":
			w.Write([]byte(`{"fee":0.0025}`))
		case "/api/v1/order":
			if r.Method == http.MethodGet {
				w.Write([]byte(`{"open":true,"filled":false,"price":99}`))
				return
			}
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()
	c := newRESTClient(srv)
	ctx := context.Background()

	tk, err := c.Ticker(ctx, "BTCUSD")
	if err != nil || tk.Bid != 100.5 || tk.Ask != 101 {
		t.Fatalf("ticker: %+v %v", tk, err)
	}
	bals, err := c.Balances(ctx)
	if err != nil || len(bals) != 2 || bals[0].Name != "USD" {
		t.Fatalf("balances: %+v %v", bals, err)
	}
	fee, err := c.Fee(ctx)
	if err != nil || fee != 0.0025 {
		t.Fatalf("fee: %v %v", fee, err)
	}
	st, err := c.OrderStatus(ctx, "ex-1")
	if err != nil || !st.Open || st.Price != 99 {
		t.Fatalf("status: %+v %v", st, err)
	}
}

func TestRESTClientEmptyOrderIDRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	c := newRESTClient(srv)

	_, err := c.PlaceOrder(context.Background(), "buy", 1, 100, "BTCUSD")
	var xe *ExchangeError
	if !errors.As(err, &xe) || xe.Kind != KindRetryable {
		t.Fatalf("empty order id must be retryable, got %v", err)
	}
}

func TestSignParamsDeterministicOrder(t *testing.T) {
	q1, s1 := SignParams(map[string]string{"b": "2", "a": "1", "c": "3"}, "secret")
	q2, s2 := SignParams(map[string]string{"c": "3", "a": "1", "b": "2"}, "secret")
	if q1 != "a=1&b=2&c=3" {
		t.Fatalf("query must be key-sorted, got %q", q1)
	}
	if q1 != q2 || s1 != s2 {
		t.Fatalf("signature must be independent of map order")
	}
}

func TestSignParamsPublicEndpoint(t *testing.T) {
	q, sig := SignParams(map[string]string{"pair": "BTCUSD"}, "")
	if q != "pair=BTCUSD" || sig != "" {
		t.Fatalf("public endpoint must carry no signature, got %q %q", q, sig)
	}
}
