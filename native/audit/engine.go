package audit

import (
	"errors"
	"math/big"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"swapguard/core/events"
	nativecommon "swapguard/native/common"
)

var (
	// ErrCallerNotTrusted indicates the submitting caller is not in the
	// trusted-caller set.
	ErrCallerNotTrusted = errors.New("audit: caller not trusted")
	// ErrAmountRequired indicates amountIn was missing or non-positive.
	ErrAmountRequired = errors.New("audit: amountIn must be positive")
	// ErrTokenRequired indicates a zero token address was supplied.
	ErrTokenRequired = errors.New("audit: token address required")
	// ErrTokenUnknown indicates a token failed the ledger metadata probe.
	ErrTokenUnknown = errors.New("audit: token failed validity probe")
	// ErrPartyBlacklisted indicates the sender or one of the tokens is
	// blacklisted.
	ErrPartyBlacklisted = errors.New("audit: party blacklisted")
	// ErrAmountOverflow indicates an amount fell outside the unsigned
	// 128-bit domain.
	ErrAmountOverflow = errors.New("audit: amount exceeds 128-bit domain")
	// ErrSlippage indicates amountOut fell below the caller-specified
	// minimum.
	ErrSlippage = errors.New("audit: amountOut below minimum")
	// ErrDuplicateSwap indicates a record already exists for the identifying
	// tuple.
	ErrDuplicateSwap = errors.New("audit: duplicate swap record")
	// ErrThresholdRange indicates a threshold above 10000 bps was supplied.
	ErrThresholdRange = errors.New("audit: threshold exceeds 10000 bps")

	errNilStore = errors.New("audit: state not configured")
)

// Storage abstracts the subset of state manager functionality required by the
// swap registry.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// AccessView exposes the authorization checks consulted on every submission.
type AccessView interface {
	IsTrusted(addr [20]byte) (bool, error)
	IsBlacklisted(addr [20]byte) (bool, error)
	RequireOwner(caller [20]byte) error
}

// TokenLedger exposes the external token validity probe. A token passes when
// the ledger holds metadata for it; a failed probe is never cached as valid.
type TokenLedger interface {
	TokenExists(token [20]byte) (bool, error)
}

type storedSwapRecord struct {
	Sender    [20]byte
	AmountIn  *big.Int
	AmountOut *big.Int
	TokenIn   [20]byte
	TokenOut  [20]byte
	Safe      bool
	SpreadBps uint64
	CreatedAt uint64
}

type storedThreshold struct {
	Bps uint64
}

type storedStats struct {
	TotalSwaps  uint64
	UnsafeSwaps uint64
}

// Engine implements the risk auditor: spread classification against the
// threshold table plus the append-only swap registry.
type Engine struct {
	mu      sync.Mutex
	store   Storage
	access  AccessView
	pauses  nativecommon.PauseView
	tokens  TokenLedger
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates an auditor with a no-op emitter. Collaborators are wired
// through the setters below.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(store Storage) { e.store = store }

// SetAccess configures the authorization registry consulted by the engine.
func (e *Engine) SetAccess(view AccessView) { e.access = view }

// SetPauses configures the pause switch consulted at the top of AnalyzeSwap.
func (e *Engine) SetPauses(view nativecommon.PauseView) { e.pauses = view }

// SetTokenLedger configures the external ledger used for token validity
// probes.
func (e *Engine) SetTokenLedger(ledger TokenLedger) { e.tokens = ledger }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// SwapID derives the deterministic identifier for the identifying tuple.
func SwapID(sender [20]byte, amountIn, amountOut *big.Int, tokenIn, tokenOut [20]byte) [32]byte {
	inBytes := uint128Bytes(amountIn)
	outBytes := uint128Bytes(amountOut)
	return ethcrypto.Keccak256Hash(sender[:], inBytes[:], outBytes[:], tokenIn[:], tokenOut[:])
}

// AnalyzeSwap classifies a settled swap and appends it to the registry. The
// caller is the submitting integrator (typically the forwarding proxy); the
// sender identifies the party whose swap is being audited. Preconditions are
// evaluated in a fixed order so every rejection reason is distinguishable.
func (e *Engine) AnalyzeSwap(caller, sender [20]byte, amountIn, amountOut *big.Int, tokenIn, tokenOut [20]byte, minOut *big.Int) ([32]byte, bool, error) {
	if e == nil || e.store == nil {
		return [32]byte{}, false, errNilStore
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	trusted, err := e.access.IsTrusted(caller)
	if err != nil {
		return [32]byte{}, false, err
	}
	if !trusted {
		return [32]byte{}, false, ErrCallerNotTrusted
	}
	if err := nativecommon.Guard(e.pauses, "audit"); err != nil {
		return [32]byte{}, false, err
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return [32]byte{}, false, ErrAmountRequired
	}
	if tokenIn == ([20]byte{}) || tokenOut == ([20]byte{}) {
		return [32]byte{}, false, ErrTokenRequired
	}
	for _, token := range [][20]byte{tokenIn, tokenOut} {
		ok, err := e.tokens.TokenExists(token)
		if err != nil {
			return [32]byte{}, false, err
		}
		if !ok {
			return [32]byte{}, false, ErrTokenUnknown
		}
	}
	for _, party := range [][20]byte{sender, tokenIn, tokenOut} {
		listed, err := e.access.IsBlacklisted(party)
		if err != nil {
			return [32]byte{}, false, err
		}
		if listed {
			return [32]byte{}, false, ErrPartyBlacklisted
		}
	}
	if !fitsUint128(amountIn) || !fitsUint128(amountOut) {
		return [32]byte{}, false, ErrAmountOverflow
	}
	if minOut != nil && amountOut.Cmp(minOut) < 0 {
		return [32]byte{}, false, ErrSlippage
	}

	spread := new(big.Int).Mul(amountOut, big.NewInt(BpsDenominator))
	spread.Div(spread, amountIn)
	threshold, err := e.EffectiveThreshold(tokenIn, tokenOut)
	if err != nil {
		return [32]byte{}, false, err
	}
	safe := spread.Cmp(new(big.Int).SetUint64(threshold)) >= 0

	id := SwapID(sender, amountIn, amountOut, tokenIn, tokenOut)
	key := swapRecordKey(id)
	exists, err := e.store.KVGet(key, nil)
	if err != nil {
		return [32]byte{}, false, err
	}
	if exists {
		return [32]byte{}, false, ErrDuplicateSwap
	}

	now := e.nowFn()
	spreadBps := spread.Uint64()
	if !spread.IsUint64() {
		// amountOut/amountIn above 2^64/10^4 bps; clamp the stored figure,
		// classification already used the exact value.
		spreadBps = ^uint64(0)
	}
	record := storedSwapRecord{
		Sender:    sender,
		AmountIn:  amountIn,
		AmountOut: amountOut,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		Safe:      safe,
		SpreadBps: spreadBps,
		CreatedAt: uint64(now),
	}
	if err := e.store.KVPut(key, record); err != nil {
		return [32]byte{}, false, err
	}
	stats, err := e.loadStats()
	if err != nil {
		return [32]byte{}, false, err
	}
	stats.TotalSwaps++
	if !safe {
		stats.UnsafeSwaps++
	}
	if err := e.store.KVPut(statsKey, stats); err != nil {
		return [32]byte{}, false, err
	}

	e.emit(SwapAnalyzed{
		ID:        id,
		Sender:    sender,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  new(big.Int).Set(amountIn),
		AmountOut: new(big.Int).Set(amountOut),
		Safe:      safe,
	})
	return id, safe, nil
}

// GetSwapData returns the stored record for the identifier. Absence is a valid
// read result, reported through the boolean rather than an error.
func (e *Engine) GetSwapData(id [32]byte) (*SwapRecord, bool, error) {
	if e == nil || e.store == nil {
		return nil, false, errNilStore
	}
	var stored storedSwapRecord
	ok, err := e.store.KVGet(swapRecordKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	record := &SwapRecord{
		ID:        id,
		Sender:    stored.Sender,
		AmountIn:  stored.AmountIn,
		AmountOut: stored.AmountOut,
		TokenIn:   stored.TokenIn,
		TokenOut:  stored.TokenOut,
		Safe:      stored.Safe,
		SpreadBps: stored.SpreadBps,
		CreatedAt: int64(stored.CreatedAt),
	}
	if record.AmountIn == nil {
		record.AmountIn = big.NewInt(0)
	}
	if record.AmountOut == nil {
		record.AmountOut = big.NewInt(0)
	}
	return record, true, nil
}

// GetSwapStatus reports the safety flag for the identifier; unknown ids read
// as unsafe without error.
func (e *Engine) GetSwapStatus(id [32]byte) (bool, error) {
	record, ok, err := e.GetSwapData(id)
	if err != nil || !ok {
		return false, err
	}
	return record.Safe, nil
}

// Stats returns the registry counters.
func (e *Engine) Stats() (Stats, error) {
	if e == nil || e.store == nil {
		return Stats{}, errNilStore
	}
	stored, err := e.loadStats()
	if err != nil {
		return Stats{}, err
	}
	return Stats{TotalSwaps: stored.TotalSwaps, UnsafeSwaps: stored.UnsafeSwaps}, nil
}

// DefaultThreshold returns the global safety threshold in basis points.
func (e *Engine) DefaultThreshold() (uint64, error) {
	return e.threshold(defaultThresholdKey)
}

// PairThreshold returns the override recorded for the pair; zero means no
// override is set.
func (e *Engine) PairThreshold(tokenIn, tokenOut [20]byte) (uint64, error) {
	return e.threshold(pairThresholdKey(tokenIn, tokenOut))
}

// EffectiveThreshold resolves the threshold applied to the pair: the pair
// override when nonzero, the default otherwise. An override of exactly zero is
// indistinguishable from "not set" and falls back to the default.
func (e *Engine) EffectiveThreshold(tokenIn, tokenOut [20]byte) (uint64, error) {
	override, err := e.PairThreshold(tokenIn, tokenOut)
	if err != nil {
		return 0, err
	}
	if override > 0 {
		return override, nil
	}
	return e.DefaultThreshold()
}

// SetDefaultThreshold updates the global safety threshold. Owner-gated.
func (e *Engine) SetDefaultThreshold(caller [20]byte, bps uint64) error {
	if e == nil || e.store == nil {
		return errNilStore
	}
	if bps > MaxThresholdBps {
		return ErrThresholdRange
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.access.RequireOwner(caller); err != nil {
		return err
	}
	if err := e.store.KVPut(defaultThresholdKey, storedThreshold{Bps: bps}); err != nil {
		return err
	}
	e.emit(ThresholdUpdated{Bps: bps})
	return nil
}

// SetPairThreshold records a per-pair override. Owner-gated.
func (e *Engine) SetPairThreshold(caller, tokenIn, tokenOut [20]byte, bps uint64) error {
	if e == nil || e.store == nil {
		return errNilStore
	}
	if tokenIn == ([20]byte{}) || tokenOut == ([20]byte{}) {
		return ErrTokenRequired
	}
	if bps > MaxThresholdBps {
		return ErrThresholdRange
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.access.RequireOwner(caller); err != nil {
		return err
	}
	if err := e.store.KVPut(pairThresholdKey(tokenIn, tokenOut), storedThreshold{Bps: bps}); err != nil {
		return err
	}
	e.emit(PairThresholdUpdated{TokenIn: tokenIn, TokenOut: tokenOut, Bps: bps})
	return nil
}

func (e *Engine) threshold(key []byte) (uint64, error) {
	if e == nil || e.store == nil {
		return 0, errNilStore
	}
	var stored storedThreshold
	ok, err := e.store.KVGet(key, &stored)
	if err != nil || !ok {
		return 0, err
	}
	return stored.Bps, nil
}

func (e *Engine) loadStats() (storedStats, error) {
	var stats storedStats
	if _, err := e.store.KVGet(statsKey, &stats); err != nil {
		return storedStats{}, err
	}
	return stats, nil
}
