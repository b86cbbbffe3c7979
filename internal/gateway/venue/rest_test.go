package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opto/internal/config"
)

func newTestREST(t *testing.T, handler http.Handler) (*REST, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	r, err := NewREST(config.Venue{APIURL: srv.URL, APIToken: "secret", TimeoutSeconds: 5})
	require.NoError(t, err)
	return r, srv
}

func TestRESTRequiresURL(t *testing.T) {
	_, err := NewREST(config.Venue{})
	assert.Error(t, err)
}

func TestRESTPlaceTrades(t *testing.T) {
	var orders atomic.Int64
	r, _ := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, http.MethodPost, req.Method)
		require.Equal(t, "/orders", req.URL.Path)
		require.Equal(t, "Bearer secret", req.Header.Get("Authorization"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
		assert.Equal(t, "BTC/USDT", payload["symbol"])
		assert.Equal(t, "BUY", payload["direction"])
		assert.NotEmpty(t, payload["client_id"])

		n := orders.Add(1)
		fmt.Fprintf(w, `{"id":"ord-%d","entry_price":65000.5}`, n)
	}))

	handles, err := r.PlaceTrades(context.Background(), "BTC/USDT", "BUY", 10, 2, 1)
	require.NoError(t, err)
	require.Len(t, handles, 2)
	assert.Equal(t, "ord-1", handles[0].ID)
	assert.Equal(t, "ord-2", handles[1].ID)
	assert.InDelta(t, 65000.5, handles[0].EntryPrice, 1e-9)
}

func TestRESTPlaceTradesPartialFailure(t *testing.T) {
	var orders atomic.Int64
	r, _ := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if orders.Add(1) > 1 {
			http.Error(w, `{"error":"insufficient balance"}`, http.StatusPaymentRequired)
			return
		}
		fmt.Fprint(w, `{"order_id":"ord-1"}`)
	}))

	handles, err := r.PlaceTrades(context.Background(), "BTC/USDT", "BUY", 10, 3, 1)
	require.Error(t, err)
	assert.Len(t, handles, 1, "已成功提交的句柄一并返回，调用方决定是否等待结算")
	assert.Equal(t, "ord-1", handles[0].ID)
}

func TestRESTAwaitResultSettled(t *testing.T) {
	r, _ := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "/orders/ord-1", req.URL.Path)
		fmt.Fprint(w, `{"status":"settled","success":true,"profit_loss":8.5}`)
	}))

	res, err := r.AwaitResult(context.Background(), TradeHandle{
		ID: "ord-1", Amount: 10, ExpirationMinutes: 1, PlacedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.InDelta(t, 8.5, res.ProfitLoss, 1e-9)
}

func TestRESTAwaitResultPayoutFallback(t *testing.T) {
	// 响应缺少 profit_loss 时按 payout 或注金折算
	r, _ := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"expired","result":"win","payout":0.85}`)
	}))
	res, err := r.AwaitResult(context.Background(), TradeHandle{
		ID: "ord-1", Amount: 10, ExpirationMinutes: 1, PlacedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.InDelta(t, 8.5, res.ProfitLoss, 1e-9)

	r, _ = newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"closed","result":"loss"}`)
	}))
	res, err = r.AwaitResult(context.Background(), TradeHandle{
		ID: "ord-1", Amount: 10, ExpirationMinutes: 1, PlacedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.InDelta(t, -10, res.ProfitLoss, 1e-9)
}

func TestRESTAwaitResultRejected(t *testing.T) {
	r, _ := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"rejected"}`)
	}))
	_, err := r.AwaitResult(context.Background(), TradeHandle{
		ID: "ord-1", ExpirationMinutes: 1, PlacedAt: time.Now(),
	})
	assert.Error(t, err)
}

func TestRESTAwaitResultContextCancel(t *testing.T) {
	r, _ := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"pending"}`)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.AwaitResult(ctx, TradeHandle{
		ID: "ord-1", ExpirationMinutes: 1, PlacedAt: time.Now(),
	})
	assert.ErrorIs(t, err, context.Canceled)
}
