package audit

import "math/big"

// BpsDenominator is the basis-point scale shared by spread and threshold
// arithmetic. A spread of 10000 denotes no loss between input and output.
const BpsDenominator = 10_000

// MaxThresholdBps bounds every stored safety threshold.
const MaxThresholdBps = 10_000

// SwapRecord captures the immutable audit entry stored for every analyzed
// swap. Records are append-only: a second submission with the same identifying
// tuple is rejected as a duplicate, never merged.
type SwapRecord struct {
	ID        [32]byte
	Sender    [20]byte
	AmountIn  *big.Int
	AmountOut *big.Int
	TokenIn   [20]byte
	TokenOut  [20]byte
	Safe      bool
	SpreadBps uint64
	CreatedAt int64
}

// Clone returns a deep copy so callers can safely mutate the result without
// affecting the stored instance.
func (r *SwapRecord) Clone() *SwapRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.AmountIn != nil {
		clone.AmountIn = new(big.Int).Set(r.AmountIn)
	}
	if r.AmountOut != nil {
		clone.AmountOut = new(big.Int).Set(r.AmountOut)
	}
	return &clone
}

// Stats aggregates the registry counters.
type Stats struct {
	TotalSwaps  uint64
	UnsafeSwaps uint64
}

// fitsUint128 reports whether the amount lies in the unsigned 128-bit domain
// required of every audited amount.
func fitsUint128(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.BitLen() <= 128
}

// uint128Bytes returns the canonical 16-byte big-endian encoding used when
// deriving identifiers.
func uint128Bytes(v *big.Int) [16]byte {
	var buf [16]byte
	if v != nil {
		v.FillBytes(buf[:])
	}
	return buf
}
