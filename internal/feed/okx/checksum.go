package okx

import (
	"hash/crc32"
	"strings"

	"github.com/Surekha-Bollineni-28/CryptoTradeSimulator/internal/book"
)

const checksumDepth = 25

// verifyChecksum implements the OKX books checksum: CRC32 over the top
// 25 bids and asks interleaved as "bidPx:bidSz:askPx:askSz:...", with
// the longer side's remainder appended. OKX transmits the value as a
// signed int32.
func verifyChecksum(bids, asks []book.Level, want int32) bool {
	return bookChecksum(bids, asks) == want
}

func bookChecksum(bids, asks []book.Level) int32 {
	nb, na := len(bids), len(asks)
	if nb > checksumDepth {
		nb = checksumDepth
	}
	if na > checksumDepth {
		na = checksumDepth
	}
	parts := make([]string, 0, 2*(nb+na))
	n := nb
	if na > n {
		n = na
	}
	for i := 0; i < n; i++ {
		if i < nb {
			parts = append(parts, bids[i].Price.String(), bids[i].Quantity.String())
		}
		if i < na {
			parts = append(parts, asks[i].Price.String(), asks[i].Quantity.String())
		}
	}
	sum := crc32.ChecksumIEEE([]byte(strings.Join(parts, ":")))
	return int32(sum)
}
