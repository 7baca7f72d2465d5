package placement

import "github.com/shopspring/decimal"

// DeriveFees recomputes Remaining and Status from Total and Received.
//
// When Total is unset the input is returned untouched: no zero is forced into
// Remaining. Overpayment yields a negative Remaining, which is kept as is.
func DeriveFees(f Fees) Fees {
	if f.Total == nil {
		return f
	}
	remaining := f.Total.Sub(f.Received)
	f.Remaining = &remaining

	switch {
	case remaining.IsZero() && f.Total.IsPositive():
		f.Status = FeesCompleted
	case f.Received.IsPositive():
		f.Status = FeesPartial
	default:
		f.Status = FeesPending
	}
	return f
}

// ZeroFees is the state ResetFees writes.
func ZeroFees() Fees {
	zero := decimal.Zero
	return DeriveFees(Fees{Total: &zero, Received: decimal.Zero})
}
