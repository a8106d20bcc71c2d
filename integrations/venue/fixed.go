package venue

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrRateRequired indicates a zero conversion rate was supplied.
var ErrRateRequired = errors.New("venue: rate must be positive")

// Ledger is the account service the venue settles against.
type Ledger interface {
	Transfer(token, from, to [20]byte, amount *big.Int) error
	BalanceOf(token, addr [20]byte) (*big.Int, error)
}

var liquidityAddress = func() [20]byte {
	hash := ethcrypto.Keccak256([]byte("swapguard/venue/liquidity"))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}()

// LiquidityAddress returns the account the fixed-rate venue trades from. It
// must be funded with output tokens before swaps can settle.
func LiquidityAddress() [20]byte { return liquidityAddress }

// FixedRate is a development swap venue that converts at a constant
// basis-point rate against a liquidity account. It gives the scheduler a real
// counterparty in local deployments and integration tests.
type FixedRate struct {
	ledger  Ledger
	rateBps uint64
}

// NewFixedRate constructs a venue converting amountIn into
// amountIn*rateBps/10000 of the output token.
func NewFixedRate(ledger Ledger, rateBps uint64) (*FixedRate, error) {
	if ledger == nil {
		return nil, fmt.Errorf("venue: ledger required")
	}
	if rateBps == 0 {
		return nil, ErrRateRequired
	}
	return &FixedRate{ledger: ledger, rateBps: rateBps}, nil
}

// Swap implements the exchange adapter contract: it consumes amountIn of
// tokenIn from the initiator and credits the converted output back, reporting
// the obtained and spent amounts. Any transfer failure aborts the swap.
func (v *FixedRate) Swap(initiator, tokenIn, tokenOut [20]byte, amountIn *big.Int, _ []byte) (*big.Int, *big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, nil, fmt.Errorf("venue: amountIn must be positive")
	}
	out := new(big.Int).Mul(amountIn, new(big.Int).SetUint64(v.rateBps))
	out.Div(out, big.NewInt(10_000))
	if err := v.ledger.Transfer(tokenIn, initiator, liquidityAddress, amountIn); err != nil {
		return nil, nil, fmt.Errorf("venue: take input: %w", err)
	}
	if err := v.ledger.Transfer(tokenOut, liquidityAddress, initiator, out); err != nil {
		return nil, nil, fmt.Errorf("venue: deliver output: %w", err)
	}
	return out, new(big.Int).Set(amountIn), nil
}
