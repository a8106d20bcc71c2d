package twap

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"swapguard/core/types"
	"swapguard/crypto"
)

const (
	TypeOrderCreated   = "twap.order.created"
	TypeOrderExecuted  = "twap.order.executed"
	TypeOrderCompleted = "twap.order.completed"
	TypeOrderCancelled = "twap.order.cancelled"
)

// OrderCreated is emitted when an order is persisted and its escrow pulled.
type OrderCreated struct {
	ID                [32]byte
	Owner             [20]byte
	TokenIn           [20]byte
	TokenOut          [20]byte
	TotalAmountIn     *big.Int
	AmountPerInterval *big.Int
	TotalIntervals    uint64
	CreatedAt         int64
}

func (OrderCreated) EventType() string { return TypeOrderCreated }

func (e OrderCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeOrderCreated,
		Attributes: map[string]string{
			"orderId":           hex.EncodeToString(e.ID[:]),
			"owner":             formatAddr(e.Owner),
			"tokenIn":           formatAddr(e.TokenIn),
			"tokenOut":          formatAddr(e.TokenOut),
			"totalAmountIn":     formatAmount(e.TotalAmountIn),
			"amountPerInterval": formatAmount(e.AmountPerInterval),
			"totalIntervals":    strconv.FormatUint(e.TotalIntervals, 10),
			"createdAt":         strconv.FormatInt(e.CreatedAt, 10),
		},
	}
}

// OrderExecuted is emitted for every successful interval execution.
type OrderExecuted struct {
	ID        [32]byte
	Interval  uint64
	AmountIn  *big.Int
	AmountOut *big.Int
	Fee       *big.Int
	Payout    *big.Int
	Executor  [20]byte
}

func (OrderExecuted) EventType() string { return TypeOrderExecuted }

func (e OrderExecuted) Event() *types.Event {
	return &types.Event{
		Type: TypeOrderExecuted,
		Attributes: map[string]string{
			"orderId":   hex.EncodeToString(e.ID[:]),
			"interval":  strconv.FormatUint(e.Interval, 10),
			"amountIn":  formatAmount(e.AmountIn),
			"amountOut": formatAmount(e.AmountOut),
			"fee":       formatAmount(e.Fee),
			"payout":    formatAmount(e.Payout),
			"executor":  formatAddr(e.Executor),
		},
	}
}

// OrderCompleted is emitted when the final interval executes.
type OrderCompleted struct {
	ID        [32]byte
	Owner     [20]byte
	Intervals uint64
}

func (OrderCompleted) EventType() string { return TypeOrderCompleted }

func (e OrderCompleted) Event() *types.Event {
	return &types.Event{
		Type: TypeOrderCompleted,
		Attributes: map[string]string{
			"orderId":   hex.EncodeToString(e.ID[:]),
			"owner":     formatAddr(e.Owner),
			"intervals": strconv.FormatUint(e.Intervals, 10),
		},
	}
}

// OrderCancelled is emitted when an order is cancelled and its remainder
// refunded.
type OrderCancelled struct {
	ID       [32]byte
	Owner    [20]byte
	Caller   [20]byte
	Refunded *big.Int
	Executed uint64
}

func (OrderCancelled) EventType() string { return TypeOrderCancelled }

func (e OrderCancelled) Event() *types.Event {
	return &types.Event{
		Type: TypeOrderCancelled,
		Attributes: map[string]string{
			"orderId":  hex.EncodeToString(e.ID[:]),
			"owner":    formatAddr(e.Owner),
			"caller":   formatAddr(e.Caller),
			"refunded": formatAmount(e.Refunded),
			"executed": strconv.FormatUint(e.Executed, 10),
		},
	}
}

func formatAddr(addr [20]byte) string {
	return crypto.NewAddress(crypto.SWGPrefix, addr[:]).String()
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
