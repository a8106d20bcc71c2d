package audit

import (
	"errors"
	"math/big"
	"testing"

	"swapguard/core/events"
	"swapguard/core/state"
	"swapguard/native/access"
	nativecommon "swapguard/native/common"
	"swapguard/storage"
)

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

var (
	owner    = addr(0x01)
	proxy    = addr(0x02)
	trader   = addr(0x03)
	tokenIn  = addr(0xAA)
	tokenOut = addr(0xBB)
)

type harness struct {
	engine   *Engine
	manager  *state.Manager
	registry *access.Registry
	recorder *events.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	registry := access.NewRegistry(manager)
	if err := registry.Initialize(owner); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if err := registry.SetTrustedCaller(owner, proxy, true); err != nil {
		t.Fatalf("trust proxy: %v", err)
	}
	for _, token := range [][20]byte{tokenIn, tokenOut} {
		if err := manager.RegisterToken(token, state.TokenInfo{Symbol: "T" + string(rune('A'+token[0]%26)), Decimals: 18}); err != nil {
			t.Fatalf("register token: %v", err)
		}
	}

	recorder := events.NewRecorder()
	engine := NewEngine()
	engine.SetState(manager)
	engine.SetAccess(registry)
	engine.SetPauses(registry)
	engine.SetTokenLedger(manager)
	engine.SetEmitter(recorder)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	if err := engine.SetDefaultThreshold(owner, 9_500); err != nil {
		t.Fatalf("seed threshold: %v", err)
	}
	recorder.Drain()
	return &harness{engine: engine, manager: manager, registry: registry, recorder: recorder}
}

func amount(raw string) *big.Int {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		panic("invalid amount " + raw)
	}
	return v
}

func TestAnalyzeSwapSafeAtThreshold(t *testing.T) {
	h := newHarness(t)

	id, safe, err := h.engine.AnalyzeSwap(proxy, trader, amount("1000000000000000000"), amount("950000000000000000"), tokenIn, tokenOut, nil)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !safe {
		t.Fatalf("spread exactly at threshold must classify safe")
	}
	if id != SwapID(trader, amount("1000000000000000000"), amount("950000000000000000"), tokenIn, tokenOut) {
		t.Fatalf("identifier mismatch")
	}

	record, ok, err := h.engine.GetSwapData(id)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if record.SpreadBps != 9_500 {
		t.Fatalf("spread = %d, want 9500", record.SpreadBps)
	}
	if !record.Safe || record.Sender != trader || record.CreatedAt != 1_700_000_000 {
		t.Fatalf("record mismatch: %+v", record)
	}

	safe, err = h.engine.GetSwapStatus(id)
	if err != nil || !safe {
		t.Fatalf("status = %v, err=%v", safe, err)
	}

	evts := h.recorder.Events()
	if len(evts) != 1 || evts[0].EventType() != TypeSwapAnalyzed {
		t.Fatalf("unexpected events: %+v", evts)
	}
}

func TestAnalyzeSwapUnsafeBelowThreshold(t *testing.T) {
	h := newHarness(t)

	// 0.9 out for 1.0 in is a 9000 bps spread, under the 9500 default.
	id, safe, err := h.engine.AnalyzeSwap(proxy, trader, amount("1000000000000000000"), amount("900000000000000000"), tokenIn, tokenOut, nil)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if safe {
		t.Fatalf("sub-threshold spread classified safe")
	}

	record, ok, err := h.engine.GetSwapData(id)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if record.SpreadBps != 9_000 || record.Safe {
		t.Fatalf("record mismatch: %+v", record)
	}

	stats, err := h.engine.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalSwaps != 1 || stats.UnsafeSwaps != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestAnalyzeSwapZeroAmountOut(t *testing.T) {
	h := newHarness(t)

	_, safe, err := h.engine.AnalyzeSwap(proxy, trader, amount("1000000000000000000"), big.NewInt(0), tokenIn, tokenOut, nil)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if safe {
		t.Fatalf("zero output classified safe")
	}
}

func TestAnalyzeSwapPreconditions(t *testing.T) {
	h := newHarness(t)
	one := amount("1000000000000000000")

	cases := []struct {
		name string
		prep func(t *testing.T)
		call func() error
		want error
	}{
		{
			name: "untrusted caller",
			call: func() error {
				_, _, err := h.engine.AnalyzeSwap(trader, trader, one, one, tokenIn, tokenOut, nil)
				return err
			},
			want: ErrCallerNotTrusted,
		},
		{
			name: "module paused",
			prep: func(t *testing.T) {
				if err := h.registry.SetPaused(owner, true); err != nil {
					t.Fatalf("pause: %v", err)
				}
				t.Cleanup(func() {
					if err := h.registry.SetPaused(owner, false); err != nil {
						t.Fatalf("unpause: %v", err)
					}
				})
			},
			call: func() error {
				_, _, err := h.engine.AnalyzeSwap(proxy, trader, one, one, tokenIn, tokenOut, nil)
				return err
			},
			want: nativecommon.ErrModulePaused,
		},
		{
			name: "zero amountIn",
			call: func() error {
				_, _, err := h.engine.AnalyzeSwap(proxy, trader, big.NewInt(0), one, tokenIn, tokenOut, nil)
				return err
			},
			want: ErrAmountRequired,
		},
		{
			name: "zero token",
			call: func() error {
				_, _, err := h.engine.AnalyzeSwap(proxy, trader, one, one, [20]byte{}, tokenOut, nil)
				return err
			},
			want: ErrTokenRequired,
		},
		{
			name: "unknown token",
			call: func() error {
				_, _, err := h.engine.AnalyzeSwap(proxy, trader, one, one, tokenIn, addr(0xCC), nil)
				return err
			},
			want: ErrTokenUnknown,
		},
		{
			name: "blacklisted sender",
			prep: func(t *testing.T) {
				if err := h.registry.SetBlacklisted(owner, trader, true); err != nil {
					t.Fatalf("blacklist: %v", err)
				}
				t.Cleanup(func() {
					if err := h.registry.SetBlacklisted(owner, trader, false); err != nil {
						t.Fatalf("unblacklist: %v", err)
					}
				})
			},
			call: func() error {
				_, _, err := h.engine.AnalyzeSwap(proxy, trader, one, one, tokenIn, tokenOut, nil)
				return err
			},
			want: ErrPartyBlacklisted,
		},
		{
			name: "amount overflow",
			call: func() error {
				over := new(big.Int).Lsh(big.NewInt(1), 128)
				_, _, err := h.engine.AnalyzeSwap(proxy, trader, over, one, tokenIn, tokenOut, nil)
				return err
			},
			want: ErrAmountOverflow,
		},
		{
			name: "slippage",
			call: func() error {
				_, _, err := h.engine.AnalyzeSwap(proxy, trader, one, amount("900000000000000000"), tokenIn, tokenOut, one)
				return err
			},
			want: ErrSlippage,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.prep != nil {
				tc.prep(t)
			}
			if err := tc.call(); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}

	// None of the rejections should have touched the registry counters.
	stats, err := h.engine.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalSwaps != 0 {
		t.Fatalf("rejections counted: %+v", stats)
	}
}

func TestAnalyzeSwapDuplicate(t *testing.T) {
	h := newHarness(t)
	in := amount("1000000000000000000")
	out := amount("970000000000000000")

	if _, _, err := h.engine.AnalyzeSwap(proxy, trader, in, out, tokenIn, tokenOut, nil); err != nil {
		t.Fatalf("first analyze: %v", err)
	}
	if _, _, err := h.engine.AnalyzeSwap(proxy, trader, in, out, tokenIn, tokenOut, nil); !errors.Is(err, ErrDuplicateSwap) {
		t.Fatalf("expected ErrDuplicateSwap, got %v", err)
	}

	stats, err := h.engine.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalSwaps != 1 {
		t.Fatalf("duplicate inflated counters: %+v", stats)
	}

	// A different amount produces a distinct identifier and is accepted.
	if _, _, err := h.engine.AnalyzeSwap(proxy, trader, in, amount("960000000000000000"), tokenIn, tokenOut, nil); err != nil {
		t.Fatalf("distinct tuple rejected: %v", err)
	}
}

func TestGetSwapDataUnknown(t *testing.T) {
	h := newHarness(t)

	record, ok, err := h.engine.GetSwapData([32]byte{0x01})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok || record != nil {
		t.Fatalf("unknown id reported present")
	}

	safe, err := h.engine.GetSwapStatus([32]byte{0x01})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if safe {
		t.Fatalf("unknown id reads safe")
	}
}

func TestThresholdAdministration(t *testing.T) {
	h := newHarness(t)

	bps, err := h.engine.DefaultThreshold()
	if err != nil || bps != 9_500 {
		t.Fatalf("default = %d, err=%v", bps, err)
	}

	if err := h.engine.SetDefaultThreshold(trader, 9_000); !errors.Is(err, access.ErrNotOwner) {
		t.Fatalf("non-owner update accepted: %v", err)
	}
	if err := h.engine.SetDefaultThreshold(owner, MaxThresholdBps+1); !errors.Is(err, ErrThresholdRange) {
		t.Fatalf("expected ErrThresholdRange, got %v", err)
	}

	if err := h.engine.SetPairThreshold(owner, tokenIn, tokenOut, 9_900); err != nil {
		t.Fatalf("set pair: %v", err)
	}
	bps, err = h.engine.EffectiveThreshold(tokenIn, tokenOut)
	if err != nil || bps != 9_900 {
		t.Fatalf("effective = %d, err=%v", bps, err)
	}
	// The override is directional.
	bps, err = h.engine.EffectiveThreshold(tokenOut, tokenIn)
	if err != nil || bps != 9_500 {
		t.Fatalf("reverse effective = %d, err=%v", bps, err)
	}

	// A zero override falls back to the default.
	if err := h.engine.SetPairThreshold(owner, tokenIn, tokenOut, 0); err != nil {
		t.Fatalf("clear pair: %v", err)
	}
	bps, err = h.engine.EffectiveThreshold(tokenIn, tokenOut)
	if err != nil || bps != 9_500 {
		t.Fatalf("effective after clear = %d, err=%v", bps, err)
	}
}

func TestPairThresholdGatesClassification(t *testing.T) {
	h := newHarness(t)

	if err := h.engine.SetPairThreshold(owner, tokenIn, tokenOut, 9_700); err != nil {
		t.Fatalf("set pair: %v", err)
	}
	// 9600 bps passes the 9500 default but not the 9700 override.
	_, safe, err := h.engine.AnalyzeSwap(proxy, trader, amount("1000000000000000000"), amount("960000000000000000"), tokenIn, tokenOut, nil)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if safe {
		t.Fatalf("pair override not applied")
	}
}
