package twap

import "math/big"

// MaxExecutorFeeBps caps the configurable executor fee at 10%.
const MaxExecutorFeeBps = 1_000

// BpsDenominator is the basis-point scale used for fee arithmetic.
const BpsDenominator = 10_000

// Order captures a TWAP order: a large swap intent split into equal-sized
// intervals executed over time. Orders are never deleted; terminal orders are
// retained as history.
type Order struct {
	ID                [32]byte
	Owner             [20]byte
	TokenIn           [20]byte
	TokenOut          [20]byte
	TotalAmountIn     *big.Int
	AmountPerInterval *big.Int
	TotalIntervals    uint64
	ExecutedIntervals uint64
	LastExecutedAt    int64
	CreatedAt         int64
	Active            bool
}

// Clone returns a deep copy so callers can safely mutate the result without
// affecting the stored instance.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	if o.TotalAmountIn != nil {
		clone.TotalAmountIn = new(big.Int).Set(o.TotalAmountIn)
	}
	if o.AmountPerInterval != nil {
		clone.AmountPerInterval = new(big.Int).Set(o.AmountPerInterval)
	}
	return &clone
}

// Execution reports the settled amounts of a single interval alongside the
// advanced order. Fee and Payout are the amounts actually transferred; their
// sum equals AmountOut.
type Execution struct {
	Order     *Order
	AmountOut *big.Int
	Fee       *big.Int
	Payout    *big.Int
}

// Remaining returns the unexecuted escrow balance of the order.
func (o *Order) Remaining() *big.Int {
	if o == nil || o.AmountPerInterval == nil || o.ExecutedIntervals >= o.TotalIntervals {
		return big.NewInt(0)
	}
	intervals := new(big.Int).SetUint64(o.TotalIntervals - o.ExecutedIntervals)
	return intervals.Mul(intervals, o.AmountPerInterval)
}

func fitsUint128(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.BitLen() <= 128
}

func uint128Bytes(v *big.Int) [16]byte {
	var buf [16]byte
	if v != nil {
		v.FillBytes(buf[:])
	}
	return buf
}
