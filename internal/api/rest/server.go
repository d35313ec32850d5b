package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/book"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/sim"
)

// Server exposes the simulation API: POST /simulate, GET /book and
// GET /status.
type Server struct {
	mux    *http.ServeMux
	engine *sim.Engine
}

func New(engine *sim.Engine) *Server {
	s := &Server{mux: http.NewServeMux(), engine: engine}
	s.mux.HandleFunc("/simulate", s.handleSimulate)
	s.mux.HandleFunc("/book", s.handleBook)
	s.mux.HandleFunc("/status", s.handleStatus)
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

type simulateRequest struct {
	Side         string           `json:"side"`
	Sizing       string           `json:"sizing"`
	Amount       decimal.Decimal  `json:"amount"`
	TakerFeeRate *decimal.Decimal `json:"taker_fee_rate,omitempty"`
}

type fillDTO struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

type simulateResponse struct {
	FilledBase     decimal.Decimal `json:"filled_base"`
	FilledQuote    decimal.Decimal `json:"filled_quote"`
	AvgPrice       decimal.Decimal `json:"avg_price"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
	Slippage       decimal.Decimal `json:"slippage"`
	SlippageBps    float64         `json:"slippage_bps"`
	Fee            decimal.Decimal `json:"fee"`
	FullyFilled    bool            `json:"fully_filled"`
	Levels         []fillDTO       `json:"levels_consumed"`
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var in simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if in.Sizing == "" {
		in.Sizing = string(sim.ByBase)
	}
	fee := s.engine.DefaultFeeRate()
	if in.TakerFeeRate != nil {
		fee = *in.TakerFeeRate
	}
	res, err := s.engine.Quote(sim.Request{
		Side:         sim.Side(in.Side),
		Sizing:       sim.Sizing(in.Sizing),
		Amount:       in.Amount,
		TakerFeeRate: fee,
	})
	if err != nil {
		switch {
		case errors.Is(err, book.ErrBookNotSynced):
			writeError(w, http.StatusServiceUnavailable, "book not ready")
		case errors.Is(err, book.ErrEmptyBook), errors.Is(err, book.ErrNoFill):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, sim.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "simulation failed")
		}
		return
	}
	out := simulateResponse{
		FilledBase:     res.FilledBase,
		FilledQuote:    res.FilledQuote,
		AvgPrice:       res.AvgPrice,
		ReferencePrice: res.Reference,
		Slippage:       res.Slippage,
		SlippageBps:    sim.SlippageBps(res.Slippage),
		Fee:            res.Fee,
		FullyFilled:    res.FullyFilled,
		Levels:         make([]fillDTO, 0, len(res.Levels)),
	}
	for _, f := range res.Levels {
		out.Levels = append(out.Levels, fillDTO{Price: f.Price, Quantity: f.Quantity})
	}
	writeJSON(w, http.StatusOK, out)
}

type bookResponse struct {
	Symbol   string    `json:"symbol"`
	Sequence int64     `json:"sequence"`
	Bids     []fillDTO `json:"bids"`
	Asks     []fillDTO `json:"asks"`
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	depth := 20
	if v := r.URL.Query().Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "depth must be a positive integer")
			return
		}
		depth = n
	}
	snap, err := s.engine.Book().Snapshot()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "book not ready")
		return
	}
	out := bookResponse{Symbol: snap.Symbol, Sequence: snap.Sequence}
	for i, lv := range snap.Bids {
		if i >= depth {
			break
		}
		out.Bids = append(out.Bids, fillDTO{Price: lv.Price, Quantity: lv.Quantity})
	}
	for i, lv := range snap.Asks {
		if i >= depth {
			break
		}
		out.Asks = append(out.Asks, fillDTO{Price: lv.Price, Quantity: lv.Quantity})
	}
	writeJSON(w, http.StatusOK, out)
}

type statusResponse struct {
	Symbol       string `json:"symbol"`
	State        string `json:"state"`
	LastSequence int64  `json:"last_sequence"`
	BestBid      string `json:"best_bid,omitempty"`
	BestAsk      string `json:"best_ask,omitempty"`
	StalenessMs  int64  `json:"staleness_ms"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	b := s.engine.Book()
	out := statusResponse{
		Symbol:       b.Symbol(),
		State:        string(b.State()),
		LastSequence: b.LastSequence(),
	}
	if bb, ok := b.BestBid(); ok {
		out.BestBid = bb.String()
	}
	if ba, ok := b.BestAsk(); ok {
		out.BestAsk = ba.String()
	}
	if at := b.UpdatedAt(); !at.IsZero() {
		out.StalenessMs = time.Since(at).Milliseconds()
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
