package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"trading-robot/internal/model"
)

const testSecret = "JBSWY3DPEHPK3PXP"

// fakeBroker serves the routes the client uses.
type fakeBroker struct {
	t       *testing.T
	orders  map[string]OrderInfo
	lastReq map[string]any
}

func (f *fakeBroker) reply(w http.ResponseWriter, code int, status bool, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	raw, _ := json.Marshal(data)
	json.NewEncoder(w).Encode(map[string]any{"status": status, "message": msg, "data": json.RawMessage(raw)})
}

func (f *fakeBroker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-API-Key") != "key" {
		f.reply(w, http.StatusBadRequest, false, "missing api key", nil)
		return
	}
	authed := r.Header.Get("Authorization") == "Bearer access-1"

	switch {
	case r.URL.Path == "/v1/auth/login":
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		code, _ := body["totp"].(string)
		if body["password"] != "secret" || !totp.Validate(code, testSecret) {
			f.reply(w, http.StatusOK, false, "invalid credentials", nil)
			return
		}
		f.reply(w, http.StatusOK, true, "", map[string]string{"accessToken": "access-1", "refreshToken": "refresh-1", "userId": "U42"})

	case !authed:
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"status": false, "errorType": "TokenException", "message": "expired"})

	case r.URL.Path == "/v1/marketdata/FCEL/pricehistory":
		if r.URL.Query().Get("frequencyType") != "minute" {
			f.t.Errorf("frequencyType = %q", r.URL.Query().Get("frequencyType"))
		}
		start := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC).UnixMilli()
		f.reply(w, http.StatusOK, true, "", map[string]any{"candles": []Candle{
			{Datetime: start, Open: 5, High: 5.2, Low: 4.9, Close: 5.1, Volume: 1200},
			{Datetime: start + 60_000, Open: 5.1, High: 5.3, Low: 5.0, Close: 5.25, Volume: 900},
		}})

	case r.URL.Path == "/v1/accounts/ACC1/orders" && r.Method == http.MethodPost:
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.lastReq = body
		f.orders["ORD-1"] = OrderInfo{OrderID: "ORD-1", Status: "WORKING"}
		f.reply(w, http.StatusCreated, true, "", map[string]string{"orderId": "ORD-1"})

	case strings.HasPrefix(r.URL.Path, "/v1/accounts/ACC1/orders/"):
		id := strings.TrimPrefix(r.URL.Path, "/v1/accounts/ACC1/orders/")
		info, ok := f.orders[id]
		if !ok {
			f.reply(w, http.StatusNotFound, false, "no such order", nil)
			return
		}
		f.reply(w, http.StatusOK, true, "", info)

	case r.URL.Path == "/v1/marketdata/quotes":
		f.reply(w, http.StatusOK, true, "", map[string]Quote{"FCEL": {Symbol: "FCEL", LastPrice: 5.3}})

	default:
		f.reply(w, http.StatusNotFound, false, "no route "+r.URL.Path, nil)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeBroker) {
	t.Helper()
	fb := &fakeBroker{t: t, orders: map[string]OrderInfo{}}
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)
	return New(Config{APIKey: "key", AccountID: "ACC1", RootURL: srv.URL}), fb
}

func TestLogin_TOTP(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	if err := c.Login(ctx, "user", "wrong", testSecret); err == nil {
		t.Fatal("expected login failure with a bad password")
	}
	if err := c.Login(ctx, "user", "secret", testSecret); err != nil {
		t.Fatalf("login: %v", err)
	}
	if c.AccessToken() != "access-1" || c.UserID() != "U42" {
		t.Errorf("token=%q user=%q", c.AccessToken(), c.UserID())
	}
}

func TestGenerateTOTP(t *testing.T) {
	at := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	code, err := GenerateTOTP(testSecret, at)
	if err != nil {
		t.Fatal(err)
	}
	if len(code) != 6 {
		t.Errorf("code %q", code)
	}
	ok, err := totp.ValidateCustom(code, testSecret, at, totp.ValidateOpts{Period: 30, Digits: 6})
	if err != nil || !ok {
		t.Errorf("code does not validate: %v", err)
	}
	if _, err := GenerateTOTP("not base32!", at); err == nil {
		t.Error("expected error for invalid secret")
	}
}

func TestPriceHistory(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	if err := c.Login(ctx, "user", "secret", testSecret); err != nil {
		t.Fatal(err)
	}

	start := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	bars, err := c.PriceHistory(ctx, HistoryRequest{Symbol: "FCEL", Start: start, End: start.Add(time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d bars", len(bars))
	}
	if bars[0].Symbol != "FCEL" || !bars[0].TS.Equal(start) || bars[1].Close != 5.25 || bars[1].Volume != 900 {
		t.Errorf("bars %+v", bars)
	}
}

func TestSessionExpiry(t *testing.T) {
	c, _ := newTestClient(t)
	hooked := false
	c.SessionExpiryHook = func() { hooked = true }

	_, err := c.PriceHistory(context.Background(), HistoryRequest{Symbol: "FCEL"})
	if !errors.Is(err, ErrSession) {
		t.Fatalf("err = %v, want ErrSession", err)
	}
	if !hooked {
		t.Error("session expiry hook not called")
	}
}

func TestOrders(t *testing.T) {
	c, fb := newTestClient(t)
	ctx := context.Background()
	if err := c.Login(ctx, "user", "secret", testSecret); err != nil {
		t.Fatal(err)
	}

	order := model.Order{
		OrderType: "MARKET", Session: "NORMAL", Duration: "DAY", OrderStrategyType: "SINGLE",
		OrderLegCollection: []model.OrderLeg{{Instruction: model.InstructionBuy, Quantity: 1, Instrument: model.Instrument{Symbol: "FCEL", AssetType: "EQUITY"}}},
	}
	id, err := c.PlaceOrder(ctx, order)
	if err != nil {
		t.Fatal(err)
	}
	if id != "ORD-1" {
		t.Errorf("order id %q", id)
	}
	legs, _ := fb.lastReq["orderLegCollection"].([]any)
	if len(legs) != 1 {
		t.Fatalf("legs sent: %v", fb.lastReq)
	}

	info, err := c.GetOrder(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if info.OrderStatus() != model.OrderPending {
		t.Errorf("status %s", info.OrderStatus())
	}

	fb.orders["ORD-1"] = OrderInfo{OrderID: "ORD-1", Status: "FILLED", FilledQuantity: 1, AvgPrice: 5.3}
	info, _ = c.GetOrder(ctx, id)
	if info.OrderStatus() != model.OrderFilled || info.AvgPrice != 5.3 {
		t.Errorf("info %+v", info)
	}

	if _, err := c.GetOrder(ctx, "nope"); err == nil {
		t.Error("expected error for unknown order")
	}

	q, err := c.Quotes(ctx, []string{"FCEL"})
	if err != nil || q["FCEL"].LastPrice != 5.3 {
		t.Errorf("quotes %v %v", q, err)
	}
}

func TestOrderInfo_StatusMapping(t *testing.T) {
	for in, want := range map[string]model.OrderStatus{
		"FILLED": model.OrderFilled, "REJECTED": model.OrderRejected, "EXPIRED": model.OrderRejected,
		"CANCELED": model.OrderCanceled, "WORKING": model.OrderPending, "QUEUED": model.OrderPending,
	} {
		if got := (OrderInfo{Status: in}).OrderStatus(); got != want {
			t.Errorf("%s -> %s, want %s", in, got, want)
		}
	}
}
