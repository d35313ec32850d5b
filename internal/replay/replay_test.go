package replay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func writeCSV(t *testing.T, rows string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "depth.csv")
	if err := os.WriteFile(path, []byte(rows), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestReplayAppliesStreamAndCountsGaps(t *testing.T) {
	path := writeCSV(t,
		"snap,bid,100,1,1\n"+
			"snap,ask,101,2,1\n"+
			"delta,ask,101,3,2\n"+
			"delta,bid,99,1,5\n")

	s, err := replayFile(path, decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("replay error: %v", err)
	}
	if s.rows != 4 {
		t.Fatalf("expected 4 rows, got %d", s.rows)
	}
	// snapshot + contiguous delta apply; the seq-5 delta is a gap
	if s.applied != 2 {
		t.Fatalf("expected 2 applied updates, got %d", s.applied)
	}
	if s.gaps != 1 {
		t.Fatalf("expected 1 sequence gap, got %d", s.gaps)
	}
	if s.sims != 1 || s.partials != 0 {
		t.Fatalf("expected one fully-filled simulation, got sims=%d partials=%d", s.sims, s.partials)
	}
}

func TestReplaySkipsMalformedRows(t *testing.T) {
	path := writeCSV(t,
		"snap,bid,100,1,1\n"+
			"snap,ask,101,1,1\n"+
			"delta,ask,not-a-price,1,2\n"+
			"delta,ask,101,2,2\n")

	s, err := replayFile(path, decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("replay error: %v", err)
	}
	if s.applied != 2 {
		t.Fatalf("expected snapshot plus one delta applied, got %d", s.applied)
	}
}
