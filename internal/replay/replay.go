package replay

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/book"
	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/sim"
)

// Simple CSV-based replay harness: drives a recorded depth stream
// through a real book and simulates a fixed-size buy after every
// applied update.
// CSV format: action,side,price,quantity,sequence
//   - consecutive "snap" rows sharing a sequence form one snapshot
//   - "delta" rows apply individually
// Env vars: TRADESIM_REPLAY_CSV=/path/to/file.csv, TRADESIM_REPLAY_QTY=0.1
func RunCSV() error {
	path := os.Getenv("TRADESIM_REPLAY_CSV")
	if path == "" {
		return nil
	}
	qty := decimal.NewFromFloat(0.1)
	if v := os.Getenv("TRADESIM_REPLAY_QTY"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil && d.IsPositive() {
			qty = d
		}
	}
	s, err := replayFile(path, qty)
	if err != nil {
		return err
	}
	avgBps := 0.0
	if s.sims > 0 {
		avgBps = sim.SlippageBps(s.slippageSum.Div(decimal.NewFromInt(int64(s.sims))))
	}
	fmt.Printf("replay rows=%d applied=%d gaps=%d sims=%d partials=%d avg_slippage_bps=%.4f at %s\n",
		s.rows, s.applied, s.gaps, s.sims, s.partials, avgBps, time.Now().Format(time.RFC3339))
	return nil
}

type summary struct {
	rows        int
	applied     int
	gaps        int
	sims        int
	partials    int
	slippageSum decimal.Decimal
}

func replayFile(path string, qty decimal.Decimal) (summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return summary{}, err
	}
	defer f.Close()

	b := book.New("replay")
	r := csv.NewReader(f)
	var (
		s summary

		snapSeq  int64 = -1
		snapBids []book.Level
		snapAsks []book.Level
	)
	flushSnap := func() {
		if snapSeq < 0 {
			return
		}
		if err := b.ApplySnapshot(snapBids, snapAsks, snapSeq); err == nil {
			s.applied++
		}
		snapSeq, snapBids, snapAsks = -1, nil, nil
	}
	simulate := func() {
		snap, err := b.Snapshot()
		if err != nil {
			return
		}
		res, err := sim.Simulate(snap, sim.Request{Side: sim.Buy, Sizing: sim.ByBase, Amount: qty})
		if err != nil {
			return
		}
		s.sims++
		s.slippageSum = s.slippageSum.Add(res.Slippage)
		if !res.FullyFilled {
			s.partials++
		}
	}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return s, err
		}
		if len(rec) < 5 {
			continue
		}
		s.rows++
		price, perr := decimal.NewFromString(rec[2])
		quantity, qerr := decimal.NewFromString(rec[3])
		seq, serr := strconv.ParseInt(rec[4], 10, 64)
		if perr != nil || qerr != nil || serr != nil {
			continue
		}
		side := book.Bid
		if rec[1] == "ask" {
			side = book.Ask
		}
		switch rec[0] {
		case "snap":
			if snapSeq >= 0 && seq != snapSeq {
				flushSnap()
			}
			snapSeq = seq
			if side == book.Bid {
				snapBids = append(snapBids, book.Level{Price: price, Quantity: quantity})
			} else {
				snapAsks = append(snapAsks, book.Level{Price: price, Quantity: quantity})
			}
		case "delta":
			flushSnap()
			err := b.ApplyDelta(side, price, quantity, seq)
			var gap *book.SequenceGapError
			switch {
			case err == nil:
				s.applied++
				simulate()
			case errors.As(err, &gap):
				s.gaps++
			}
		}
	}
	flushSnap()
	return s, nil
}
