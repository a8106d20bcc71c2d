package audit

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"swapguard/core/types"
	"swapguard/crypto"
)

const (
	TypeSwapAnalyzed         = "audit.swap.analyzed"
	TypeThresholdUpdated     = "audit.threshold.updated"
	TypePairThresholdUpdated = "audit.threshold.pair_updated"
)

// SwapAnalyzed is emitted for every swap accepted into the registry.
type SwapAnalyzed struct {
	ID        [32]byte
	Sender    [20]byte
	TokenIn   [20]byte
	TokenOut  [20]byte
	AmountIn  *big.Int
	AmountOut *big.Int
	Safe      bool
}

func (SwapAnalyzed) EventType() string { return TypeSwapAnalyzed }

func (e SwapAnalyzed) Event() *types.Event {
	return &types.Event{
		Type: TypeSwapAnalyzed,
		Attributes: map[string]string{
			"swapId":    hex.EncodeToString(e.ID[:]),
			"sender":    formatAddr(e.Sender),
			"tokenIn":   formatAddr(e.TokenIn),
			"tokenOut":  formatAddr(e.TokenOut),
			"amountIn":  formatAmount(e.AmountIn),
			"amountOut": formatAmount(e.AmountOut),
			"safe":      strconv.FormatBool(e.Safe),
		},
	}
}

// ThresholdUpdated is emitted when the global default threshold changes.
type ThresholdUpdated struct {
	Bps uint64
}

func (ThresholdUpdated) EventType() string { return TypeThresholdUpdated }

func (e ThresholdUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeThresholdUpdated,
		Attributes: map[string]string{
			"bps": strconv.FormatUint(e.Bps, 10),
		},
	}
}

// PairThresholdUpdated is emitted when a per-pair override changes.
type PairThresholdUpdated struct {
	TokenIn  [20]byte
	TokenOut [20]byte
	Bps      uint64
}

func (PairThresholdUpdated) EventType() string { return TypePairThresholdUpdated }

func (e PairThresholdUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypePairThresholdUpdated,
		Attributes: map[string]string{
			"tokenIn":  formatAddr(e.TokenIn),
			"tokenOut": formatAddr(e.TokenOut),
			"bps":      strconv.FormatUint(e.Bps, 10),
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
