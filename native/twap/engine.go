package twap

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"swapguard/core/events"
	nativecommon "swapguard/native/common"
)

var (
	// ErrTokenRequired indicates a zero token address was supplied.
	ErrTokenRequired = errors.New("twap: token address required")
	// ErrAmountRequired indicates a non-positive amount was supplied.
	ErrAmountRequired = errors.New("twap: amount must be positive")
	// ErrIntervalsRequired indicates a zero interval count was supplied.
	ErrIntervalsRequired = errors.New("twap: intervals must be positive")
	// ErrAmountOverflow indicates an amount fell outside the unsigned
	// 128-bit domain.
	ErrAmountOverflow = errors.New("twap: amount exceeds 128-bit domain")
	// ErrAmountMismatch indicates totalAmountIn does not equal
	// amountPerInterval times the interval count.
	ErrAmountMismatch = errors.New("twap: total amount does not match interval schedule")
	// ErrPartyBlacklisted indicates the owner, executor or a token is
	// blacklisted.
	ErrPartyBlacklisted = errors.New("twap: party blacklisted")
	// ErrDuplicateOrder indicates the derived identifier already denotes an
	// active order.
	ErrDuplicateOrder = errors.New("twap: duplicate active order")
	// ErrOrderNotFound indicates no order exists for the identifier.
	ErrOrderNotFound = errors.New("twap: order not found")
	// ErrOrderInactive indicates the order was completed or cancelled.
	ErrOrderInactive = errors.New("twap: order inactive")
	// ErrOrderComplete indicates every interval has already executed.
	ErrOrderComplete = errors.New("twap: order complete")
	// ErrIntervalNotReached indicates the configured spacing since the last
	// execution has not elapsed.
	ErrIntervalNotReached = errors.New("twap: interval not reached")
	// ErrSlippage indicates the venue returned less than the executor's
	// minimum acceptable output.
	ErrSlippage = errors.New("twap: return amount below minimum")
	// ErrUnauthorizedCaller indicates the caller may not cancel the order.
	ErrUnauthorizedCaller = errors.New("twap: caller may not cancel order")
	// ErrFeeRange indicates an executor fee above 1000 bps was supplied.
	ErrFeeRange = errors.New("twap: executor fee exceeds 1000 bps")
	// ErrVenueReturn indicates the venue reported amounts inconsistent with
	// the delegated input.
	ErrVenueReturn = errors.New("twap: venue returned unexpected amounts")

	errNilStore    = errors.New("twap: state not configured")
	errNilLedger   = errors.New("twap: token ledger not configured")
	errNilExchange = errors.New("twap: exchange not configured")
)

// Storage abstracts the state manager functionality required by the order
// registry. Snapshots let an operation discard every write, including ledger
// movements routed through the same manager, when a later step fails.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	Snapshot() int
	RevertToSnapshot(rev int)
}

// TokenLedger exposes the external account/balance service holding order
// escrow. A failed transfer aborts the enclosing operation.
type TokenLedger interface {
	Transfer(token, from, to [20]byte, amount *big.Int) error
	BalanceOf(token, addr [20]byte) (*big.Int, error)
}

// Exchange is the opaque swap-execution venue. It consumes amountIn of
// tokenIn from the initiator and credits the output back, reporting the
// obtained and spent amounts.
type Exchange interface {
	Swap(initiator, tokenIn, tokenOut [20]byte, amountIn *big.Int, payload []byte) (returnAmount, spentAmount *big.Int, err error)
}

// AccessView exposes the authorization checks consulted by the scheduler.
type AccessView interface {
	IsBlacklisted(addr [20]byte) (bool, error)
	RequireOwner(caller [20]byte) error
}

type storedOrder struct {
	Owner             [20]byte
	TokenIn           [20]byte
	TokenOut          [20]byte
	TotalAmountIn     *big.Int
	AmountPerInterval *big.Int
	TotalIntervals    uint64
	ExecutedIntervals uint64
	LastExecutedAt    uint64
	CreatedAt         uint64
	Active            bool
}

var vaultAddress = func() [20]byte {
	hash := ethcrypto.Keccak256([]byte("swapguard/twap/vault"))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}()

// VaultAddress returns the module custody address holding order escrow.
func VaultAddress() [20]byte { return vaultAddress }

// Engine implements the TWAP order scheduler: order lifecycle, escrow
// custody, interval gating and executor fee accounting.
type Engine struct {
	store    Storage
	ledger   TokenLedger
	exchange Exchange
	access   AccessView
	pauses   nativecommon.PauseView
	emitter  events.Emitter
	guard    nativecommon.CallGuard
	feeBps   uint64
	interval time.Duration
	nowFn    func() int64
}

// NewEngine creates a scheduler with a no-op emitter, a one hour execution
// interval and no executor fee. Collaborators are wired through the setters.
func NewEngine() *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		interval: time.Hour,
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(store Storage) { e.store = store }

// SetTokenLedger configures the account service holding balances and escrow.
func (e *Engine) SetTokenLedger(ledger TokenLedger) { e.ledger = ledger }

// SetExchange configures the swap-execution venue.
func (e *Engine) SetExchange(exchange Exchange) { e.exchange = exchange }

// SetAccess configures the authorization registry.
func (e *Engine) SetAccess(view AccessView) { e.access = view }

// SetPauses configures the pause switch gating CreateOrder and
// ExecuteInterval. CancelOrder is deliberately not gated so owners retain an
// emergency exit while paused.
func (e *Engine) SetPauses(view nativecommon.PauseView) { e.pauses = view }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetExecutorFeeBps updates the fee paid to interval executors.
func (e *Engine) SetExecutorFeeBps(bps uint64) error {
	if bps > MaxExecutorFeeBps {
		return ErrFeeRange
	}
	e.feeBps = bps
	return nil
}

// ExecutorFeeBps returns the configured executor fee.
func (e *Engine) ExecutorFeeBps() uint64 { return e.feeBps }

// SetExecutionInterval updates the minimum spacing between interval
// executions of the same order.
func (e *Engine) SetExecutionInterval(interval time.Duration) {
	if interval < 0 {
		interval = 0
	}
	e.interval = interval
}

// ExecutionInterval returns the configured spacing.
func (e *Engine) ExecutionInterval() time.Duration { return e.interval }

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

// OrderID derives the deterministic identifier for an order.
func OrderID(owner, tokenIn, tokenOut [20]byte, createdAt int64, totalAmountIn *big.Int) [32]byte {
	var ts [8]byte
	if createdAt > 0 {
		for i := 0; i < 8; i++ {
			ts[7-i] = byte(createdAt >> (8 * i))
		}
	}
	total := uint128Bytes(totalAmountIn)
	return ethcrypto.Keccak256Hash(owner[:], tokenIn[:], tokenOut[:], ts[:], total[:])
}

// CreateOrder escrows totalAmountIn of tokenIn from the owner into the module
// vault and persists a new order. The escrow transfer is the single external
// suspension point; when it fails the call aborts with no state change.
func (e *Engine) CreateOrder(owner, tokenIn, tokenOut [20]byte, totalAmountIn, amountPerInterval *big.Int, intervals uint64) ([32]byte, error) {
	if e == nil || e.store == nil {
		return [32]byte{}, errNilStore
	}
	if e.ledger == nil {
		return [32]byte{}, errNilLedger
	}
	if err := nativecommon.Guard(e.pauses, "twap"); err != nil {
		return [32]byte{}, err
	}
	if owner == ([20]byte{}) {
		return [32]byte{}, ErrUnauthorizedCaller
	}
	if tokenIn == ([20]byte{}) || tokenOut == ([20]byte{}) {
		return [32]byte{}, ErrTokenRequired
	}
	if totalAmountIn == nil || totalAmountIn.Sign() <= 0 || amountPerInterval == nil || amountPerInterval.Sign() <= 0 {
		return [32]byte{}, ErrAmountRequired
	}
	if intervals == 0 {
		return [32]byte{}, ErrIntervalsRequired
	}
	if !fitsUint128(totalAmountIn) || !fitsUint128(amountPerInterval) {
		return [32]byte{}, ErrAmountOverflow
	}
	expected := new(big.Int).Mul(amountPerInterval, new(big.Int).SetUint64(intervals))
	if expected.Cmp(totalAmountIn) != 0 {
		return [32]byte{}, ErrAmountMismatch
	}
	if e.access != nil {
		for _, party := range [][20]byte{owner, tokenIn, tokenOut} {
			listed, err := e.access.IsBlacklisted(party)
			if err != nil {
				return [32]byte{}, err
			}
			if listed {
				return [32]byte{}, ErrPartyBlacklisted
			}
		}
	}

	now := e.nowFn()
	id := OrderID(owner, tokenIn, tokenOut, now, totalAmountIn)
	var existing storedOrder
	ok, err := e.store.KVGet(orderRecordKey(id), &existing)
	if err != nil {
		return [32]byte{}, err
	}
	if ok && existing.Active {
		return [32]byte{}, ErrDuplicateOrder
	}

	snap := e.store.Snapshot()
	if err := e.ledger.Transfer(tokenIn, owner, vaultAddress, totalAmountIn); err != nil {
		e.store.RevertToSnapshot(snap)
		return [32]byte{}, fmt.Errorf("twap: escrow transfer: %w", err)
	}
	stored := storedOrder{
		Owner:             owner,
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		TotalAmountIn:     totalAmountIn,
		AmountPerInterval: amountPerInterval,
		TotalIntervals:    intervals,
		CreatedAt:         uint64(now),
		Active:            true,
	}
	if err := e.store.KVPut(orderRecordKey(id), stored); err != nil {
		e.store.RevertToSnapshot(snap)
		return [32]byte{}, err
	}
	e.emit(OrderCreated{
		ID:                id,
		Owner:             owner,
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		TotalAmountIn:     new(big.Int).Set(totalAmountIn),
		AmountPerInterval: new(big.Int).Set(amountPerInterval),
		TotalIntervals:    intervals,
		CreatedAt:         now,
	})
	return id, nil
}

// ExecuteInterval delegates one interval of the order to the venue and splits
// the proceeds between the order owner and the executor. A slippage rejection
// leaves the order unchanged and retriable. The returned Execution carries the
// settled amounts of this interval.
func (e *Engine) ExecuteInterval(id [32]byte, executor [20]byte, payload []byte, minOut *big.Int) (*Execution, error) {
	if e == nil || e.store == nil {
		return nil, errNilStore
	}
	if e.ledger == nil {
		return nil, errNilLedger
	}
	if e.exchange == nil {
		return nil, errNilExchange
	}
	if err := nativecommon.Guard(e.pauses, "twap"); err != nil {
		return nil, err
	}
	if err := e.guard.Enter(); err != nil {
		return nil, err
	}
	defer e.guard.Exit()

	order, ok, err := e.loadOrder(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOrderNotFound
	}
	if !order.Active {
		return nil, ErrOrderInactive
	}
	if order.ExecutedIntervals >= order.TotalIntervals {
		return nil, ErrOrderComplete
	}
	now := e.nowFn()
	if order.LastExecutedAt != 0 && now-order.LastExecutedAt < int64(e.interval/time.Second) {
		return nil, ErrIntervalNotReached
	}
	if e.access != nil {
		listed, err := e.access.IsBlacklisted(executor)
		if err != nil {
			return nil, err
		}
		if listed {
			return nil, ErrPartyBlacklisted
		}
	}

	snap := e.store.Snapshot()
	returnAmount, spentAmount, err := e.exchange.Swap(vaultAddress, order.TokenIn, order.TokenOut, order.AmountPerInterval, payload)
	if err != nil {
		e.store.RevertToSnapshot(snap)
		return nil, fmt.Errorf("twap: venue swap: %w", err)
	}
	if returnAmount == nil || returnAmount.Sign() < 0 {
		e.store.RevertToSnapshot(snap)
		return nil, ErrVenueReturn
	}
	if spentAmount != nil && spentAmount.Cmp(order.AmountPerInterval) != 0 {
		e.store.RevertToSnapshot(snap)
		return nil, ErrVenueReturn
	}
	if minOut != nil && returnAmount.Cmp(minOut) < 0 {
		e.store.RevertToSnapshot(snap)
		return nil, ErrSlippage
	}

	fee := new(big.Int).Mul(returnAmount, new(big.Int).SetUint64(e.feeBps))
	fee.Div(fee, big.NewInt(BpsDenominator))
	payout := new(big.Int).Sub(returnAmount, fee)
	if payout.Sign() > 0 {
		if err := e.ledger.Transfer(order.TokenOut, vaultAddress, order.Owner, payout); err != nil {
			e.store.RevertToSnapshot(snap)
			return nil, fmt.Errorf("twap: payout transfer: %w", err)
		}
	}
	if fee.Sign() > 0 {
		if err := e.ledger.Transfer(order.TokenOut, vaultAddress, executor, fee); err != nil {
			e.store.RevertToSnapshot(snap)
			return nil, fmt.Errorf("twap: fee transfer: %w", err)
		}
	}

	order.ExecutedIntervals++
	order.LastExecutedAt = now
	completed := order.ExecutedIntervals == order.TotalIntervals
	if completed {
		order.Active = false
	}
	if err := e.storeOrder(order); err != nil {
		e.store.RevertToSnapshot(snap)
		return nil, err
	}

	e.emit(OrderExecuted{
		ID:        id,
		Interval:  order.ExecutedIntervals,
		AmountIn:  new(big.Int).Set(order.AmountPerInterval),
		AmountOut: new(big.Int).Set(returnAmount),
		Fee:       fee,
		Payout:    payout,
		Executor:  executor,
	})
	if completed {
		e.emit(OrderCompleted{ID: id, Owner: order.Owner, Intervals: order.TotalIntervals})
	}
	return &Execution{
		Order:     order.Clone(),
		AmountOut: new(big.Int).Set(returnAmount),
		Fee:       new(big.Int).Set(fee),
		Payout:    new(big.Int).Set(payout),
	}, nil
}

// CancelOrder deactivates the order and refunds the unexecuted remainder to
// its owner. Either the order owner or the system owner may cancel. The pause
// switch does not gate cancellation.
func (e *Engine) CancelOrder(id [32]byte, caller [20]byte) (*Order, error) {
	if e == nil || e.store == nil {
		return nil, errNilStore
	}
	if e.ledger == nil {
		return nil, errNilLedger
	}
	if err := e.guard.Enter(); err != nil {
		return nil, err
	}
	defer e.guard.Exit()

	order, ok, err := e.loadOrder(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOrderNotFound
	}
	if !order.Active {
		return nil, ErrOrderInactive
	}
	if caller != order.Owner {
		if e.access == nil {
			return nil, ErrUnauthorizedCaller
		}
		if err := e.access.RequireOwner(caller); err != nil {
			return nil, ErrUnauthorizedCaller
		}
	}

	remaining := order.Remaining()
	snap := e.store.Snapshot()
	if remaining.Sign() > 0 {
		if err := e.ledger.Transfer(order.TokenIn, vaultAddress, order.Owner, remaining); err != nil {
			e.store.RevertToSnapshot(snap)
			return nil, fmt.Errorf("twap: refund transfer: %w", err)
		}
	}
	order.Active = false
	if err := e.storeOrder(order); err != nil {
		e.store.RevertToSnapshot(snap)
		return nil, err
	}
	e.emit(OrderCancelled{
		ID:       id,
		Owner:    order.Owner,
		Caller:   caller,
		Refunded: remaining,
		Executed: order.ExecutedIntervals,
	})
	return order.Clone(), nil
}

// GetOrder returns the stored order for the identifier. Absence is a valid
// read result, reported through the boolean rather than an error.
func (e *Engine) GetOrder(id [32]byte) (*Order, bool, error) {
	if e == nil || e.store == nil {
		return nil, false, errNilStore
	}
	return e.loadOrder(id)
}

func (e *Engine) loadOrder(id [32]byte) (*Order, bool, error) {
	var stored storedOrder
	ok, err := e.store.KVGet(orderRecordKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	order := &Order{
		ID:                id,
		Owner:             stored.Owner,
		TokenIn:           stored.TokenIn,
		TokenOut:          stored.TokenOut,
		TotalAmountIn:     stored.TotalAmountIn,
		AmountPerInterval: stored.AmountPerInterval,
		TotalIntervals:    stored.TotalIntervals,
		ExecutedIntervals: stored.ExecutedIntervals,
		LastExecutedAt:    int64(stored.LastExecutedAt),
		CreatedAt:         int64(stored.CreatedAt),
		Active:            stored.Active,
	}
	if order.TotalAmountIn == nil {
		order.TotalAmountIn = big.NewInt(0)
	}
	if order.AmountPerInterval == nil {
		order.AmountPerInterval = big.NewInt(0)
	}
	return order, true, nil
}

func (e *Engine) storeOrder(order *Order) error {
	stored := storedOrder{
		Owner:             order.Owner,
		TokenIn:           order.TokenIn,
		TokenOut:          order.TokenOut,
		TotalAmountIn:     order.TotalAmountIn,
		AmountPerInterval: order.AmountPerInterval,
		TotalIntervals:    order.TotalIntervals,
		ExecutedIntervals: order.ExecutedIntervals,
		CreatedAt:         uint64(order.CreatedAt),
		Active:            order.Active,
	}
	if order.LastExecutedAt > 0 {
		stored.LastExecutedAt = uint64(order.LastExecutedAt)
	}
	return e.store.KVPut(orderRecordKey(order.ID), stored)
}
