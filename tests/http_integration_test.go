package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/api/rest"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/book"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/config"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/infra/health"
	ilog "github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/infra/log"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/infra/metrics"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/infra/version"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/sim"
)

// buildMux mirrors the HTTP setup in cmd/tradesim/main.go, backed by a
// book that is pre-seeded unless seed is false.
func buildMux(t *testing.T, seed bool) http.Handler {
	t.Helper()
	cfg := config.Load()
	logger := ilog.NewLogger(cfg)
	reg := metrics.Init(logger)

	b := book.New(cfg.Feed.Symbol)
	if seed {
		bids := []book.Level{level("100", "1"), level("99", "3")}
		asks := []book.Level{level("100.5", "1"), level("101", "2")}
		if err := b.ApplySnapshot(bids, asks, 1); err != nil {
			t.Fatalf("seed snapshot: %v", err)
		}
	}
	engine := sim.NewEngine(b, decimal.RequireFromString(cfg.Simulation.TakerFeeRate), logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.HandleFunc("/healthz", health.Healthz)
	health.SetReady(true)
	mux.HandleFunc("/readyz", health.Readyz)
	mux.HandleFunc("/version", version.Handler)
	mux.Handle("/", rest.New(engine).Handler())
	return mux
}

func level(price, qty string) book.Level {
	return book.Level{Price: decimal.RequireFromString(price), Quantity: decimal.RequireFromString(qty)}
}

func TestSimulateEndpoint(t *testing.T) {
	srv := httptest.NewServer(buildMux(t, true))
	t.Cleanup(srv.Close)

	body := bytes.NewBufferString(`{"side":"buy","sizing":"base","amount":"3"}`)
	resp, err := http.Post(srv.URL+"/simulate", "application/json", body)
	if err != nil {
		t.Fatalf("POST /simulate error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("/simulate expected 200, got %d: %s", resp.StatusCode, b)
	}

	var out struct {
		FilledBase  decimal.Decimal `json:"filled_base"`
		AvgPrice    decimal.Decimal `json:"avg_price"`
		Fee         decimal.Decimal `json:"fee"`
		FullyFilled bool            `json:"fully_filled"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// asks 100.5x1 + 101x2 fully consumed: 302.5 / 3
	if !out.FullyFilled {
		t.Fatalf("expected full fill, got %+v", out)
	}
	if got := out.FilledBase.String(); got != "3" {
		t.Fatalf("filled_base expected 3, got %s", got)
	}
	wantAvg := decimal.RequireFromString("302.5").Div(decimal.NewFromInt(3))
	if !out.AvgPrice.Equal(wantAvg) {
		t.Fatalf("avg_price expected %s, got %s", wantAvg, out.AvgPrice)
	}
	wantFee := decimal.RequireFromString("302.5").Mul(decimal.RequireFromString("0.0006"))
	if !out.Fee.Equal(wantFee) {
		t.Fatalf("fee expected %s, got %s", wantFee, out.Fee)
	}
}

func TestSimulateRejectsBadRequests(t *testing.T) {
	srv := httptest.NewServer(buildMux(t, true))
	t.Cleanup(srv.Close)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"unknown side", `{"side":"hold","amount":"1"}`, http.StatusBadRequest},
		{"zero amount", `{"side":"buy","amount":"0"}`, http.StatusBadRequest},
		{"negative amount", `{"side":"sell","amount":"-1"}`, http.StatusBadRequest},
		{"malformed json", `{"side":`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp, err := http.Post(srv.URL+"/simulate", "application/json", strings.NewReader(tc.body))
		if err != nil {
			t.Fatalf("%s: POST error: %v", tc.name, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, resp.StatusCode)
		}
	}
}

func TestSimulateUnavailableBeforeFirstSnapshot(t *testing.T) {
	srv := httptest.NewServer(buildMux(t, false))
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/simulate", "application/json", strings.NewReader(`{"side":"buy","amount":"1"}`))
	if err != nil {
		t.Fatalf("POST /simulate error: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before first snapshot, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/book")
	if err != nil {
		t.Fatalf("GET /book error: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("/book expected 503 before first snapshot, got %d", resp.StatusCode)
	}
}

func TestBookAndStatusEndpoints(t *testing.T) {
	srv := httptest.NewServer(buildMux(t, true))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/book?depth=1")
	if err != nil {
		t.Fatalf("GET /book error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/book expected 200, got %d", resp.StatusCode)
	}
	var bookOut struct {
		Symbol   string `json:"symbol"`
		Sequence int64  `json:"sequence"`
		Bids     []struct {
			Price decimal.Decimal `json:"price"`
		} `json:"bids"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&bookOut); err != nil {
		t.Fatalf("decode /book: %v", err)
	}
	if len(bookOut.Bids) != 1 {
		t.Fatalf("depth=1 expected one bid, got %d", len(bookOut.Bids))
	}
	if got := bookOut.Bids[0].Price.String(); got != "100" {
		t.Fatalf("best bid expected 100, got %s", got)
	}

	resp2, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status error: %v", err)
	}
	defer resp2.Body.Close()
	var status struct {
		State   string `json:"state"`
		BestBid string `json:"best_bid"`
		BestAsk string `json:"best_ask"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&status); err != nil {
		t.Fatalf("decode /status: %v", err)
	}
	if status.State != "synced" {
		t.Fatalf("status state expected synced, got %q", status.State)
	}
	if status.BestBid != "100" || status.BestAsk != "100.5" {
		t.Fatalf("unexpected best quotes: %+v", status)
	}
}

func TestReadyzAndVersion(t *testing.T) {
	srv := httptest.NewServer(buildMux(t, true))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/readyz expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/version")
	if err != nil {
		t.Fatalf("GET /version error: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("/version expected application/json, got %s", ct)
	}
}

func TestHealthzEndpoint(t *testing.T) {
	srv := httptest.NewServer(buildMux(t, true))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httptest.NewServer(buildMux(t, true))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	body := string(b)
	if body == "" || !(strings.Contains(body, "book_updates_total") || strings.Contains(body, "simulations_total")) {
		t.Fatalf("metrics output did not contain expected metrics, got: %q", body)
	}
}
