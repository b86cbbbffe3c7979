package livehttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opto/internal/decision"
	"opto/internal/engine"
	"opto/internal/gateway/notifier"
	"opto/internal/gateway/venue"
	"opto/internal/indicator"
	"opto/internal/learning"
	"opto/internal/ledger"
	"opto/internal/manipulation"
	"opto/internal/market"
	"opto/internal/risk"
	"opto/internal/sizing"
)

type noopProvider struct{}

func (noopProvider) GetCandles(context.Context, string, string, int) ([]market.Candle, error) {
	return nil, nil
}

type noopVenue struct{}

func (noopVenue) PlaceTrades(context.Context, string, string, float64, int, int) ([]venue.TradeHandle, error) {
	return nil, nil
}

func (noopVenue) AwaitResult(context.Context, venue.TradeHandle) (venue.TradeResult, error) {
	return venue.TradeResult{}, nil
}

func (noopVenue) Close() error { return nil }

type noopIndicator struct{}

func (noopIndicator) Name() string                             { return "noop" }
func (noopIndicator) Calculate(market.Candles) decision.Signal { return decision.NeutralSignal() }
func (noopIndicator) AdjustWeight(bool)                        {}
func (noopIndicator) ResetWeight()                             {}
func (noopIndicator) Weight() float64                          { return 1 }
func (noopIndicator) InitialWeight() float64                   { return 1 }
func (noopIndicator) SetWeight(float64)                        {}

type serverHarness struct {
	handler http.Handler
	gate    *risk.Gate
	led     *ledger.Ledger
}

func newServerHarness(t *testing.T) *serverHarness {
	t.Helper()
	led := ledger.New([]ledger.TradeRecord{{
		ID: "trade-1", Timestamp: time.Now(), Asset: "BTC/USDT",
		Direction: decision.DirectionBuy, Amount: 10, Success: true, ProfitLoss: 8.5,
	}})
	gate := risk.NewGate(risk.Config{
		StartingBalance: 1000, MaxDailyLossPercent: 20, BreakerEnabled: true,
	}, led)

	eng, err := engine.New(engine.Options{
		Symbols:        []string{"BTC/USDT"},
		Timeframe:      "1m",
		Provider:       noopProvider{},
		Indicators:     []indicator.Indicator{noopIndicator{}},
		Aggregator:     decision.NewAggregator(0),
		Detector:       manipulation.NewDetector(),
		RiskGate:       gate,
		Ledger:         led,
		Learning:       learning.NewStore(nil),
		Venue:          noopVenue{},
		Events:         notifier.NewEventsWithSink(nil),
		NewTierMachine: func() *sizing.Machine { return sizing.NewMachine(3, 10) },
	})
	require.NoError(t, err)

	srv, err := NewServer(ServerConfig{Engine: eng, Ledger: led, StartingBalance: 1000})
	require.NoError(t, err)
	return &serverHarness{handler: srv.Handler(), gate: gate, led: led}
}

func (h *serverHarness) do(method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestNewServerRequiresEngine(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	h := newServerHarness(t)
	rec := h.do(http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	h := newServerHarness(t)
	rec := h.do(http.MethodGet, "/api/live/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var st engine.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.False(t, st.Halted)
	assert.Equal(t, 0, st.Tiers["BTC/USDT"])
	assert.InDelta(t, 1.0, st.Weights["noop"], 1e-9)
}

func TestStatsEndpoint(t *testing.T) {
	h := newServerHarness(t)
	rec := h.do(http.MethodGet, "/api/live/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Trades   int     `json:"trades"`
		DailyPnL float64 `json:"daily_pnl"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Trades)
	assert.InDelta(t, 8.5, body.DailyPnL, 1e-9)
}

func TestTradesEndpoint(t *testing.T) {
	h := newServerHarness(t)
	rec := h.do(http.MethodGet, "/api/live/trades")
	require.Equal(t, http.StatusOK, rec.Code)

	var records []ledger.TradeRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "trade-1", records[0].ID)
}

func TestReportEndpoint(t *testing.T) {
	h := newServerHarness(t)
	rec := h.do(http.MethodGet, "/api/live/report")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.NotZero(t, rec.Body.Len())
}

func TestResumeEndpoint(t *testing.T) {
	h := newServerHarness(t)
	h.gate.Halt("manual pause")

	rec := h.do(http.MethodPost, "/api/live/risk/resume")
	require.Equal(t, http.StatusOK, rec.Code)

	halted, _ := h.gate.Halted()
	assert.False(t, halted)
}
