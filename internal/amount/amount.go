// Package amount normalizes star amounts received from the ledger server.
package amount

import (
	"context"

	"github.com/mbd888/starledger/internal/anomaly"
)

// Max is the largest star amount the client represents. Larger magnitudes are
// treated as server bugs and clamped.
const Max int64 = 1 << 51

// Normalize clamps raw into [-Max, Max], or [0, Max] when allowNegative is
// false. Out-of-range input is reported as an anomaly; it never fails.
func Normalize(ctx context.Context, raw int64, allowNegative bool) int64 {
	if InRange(raw, allowNegative) {
		return raw
	}
	switch {
	case raw < 0 && !allowNegative:
		anomaly.Report(ctx, anomaly.AmountOutOfRange, "receive negative star amount", "amount", raw)
		return 0
	case raw < -Max:
		anomaly.Report(ctx, anomaly.AmountOutOfRange, "receive star amount below range", "amount", raw)
		return -Max
	case raw > Max:
		anomaly.Report(ctx, anomaly.AmountOutOfRange, "receive star amount above range", "amount", raw)
		return Max
	}
	return raw
}

// InRange reports whether v already lies in the normalized range.
func InRange(v int64, allowNegative bool) bool {
	if v > Max {
		return false
	}
	if allowNegative {
		return v >= -Max
	}
	return v >= 0
}
