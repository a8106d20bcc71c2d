package rpc

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"swapguard/core/events"
	"swapguard/core/state"
	"swapguard/integrations/venue"
	"swapguard/native/access"
	"swapguard/native/audit"
	"swapguard/native/twap"
	"swapguard/storage"
)

const testToken = "rpc-test-token"

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

var (
	ownerAddr    = testAddr(0x11)
	traderAddr   = testAddr(0x22)
	executorAddr = testAddr(0x33)
	tokenInAddr  = testAddr(0xAA)
	tokenOutAddr = testAddr(0xBB)
)

func newTestServer(t *testing.T) (*Server, *state.Manager) {
	t.Helper()
	t.Setenv("SWG_RPC_TOKEN", testToken)

	manager := state.NewManager(storage.NewMemDB())
	registry := access.NewRegistry(manager)
	require.NoError(t, registry.Initialize(ownerAddr))

	feed := events.NewRecorder()
	registry.SetEmitter(feed)

	require.NoError(t, manager.RegisterToken(tokenInAddr, state.TokenInfo{Symbol: "IN", Name: "Input", Decimals: 18}))
	require.NoError(t, manager.RegisterToken(tokenOutAddr, state.TokenInfo{Symbol: "OUT", Name: "Output", Decimals: 18}))
	require.NoError(t, manager.Mint(tokenInAddr, traderAddr, bigInt(t, "1000000000000000000000")))
	require.NoError(t, manager.Mint(tokenOutAddr, venue.LiquidityAddress(), bigInt(t, "1000000000000000000000")))

	auditor := audit.NewEngine()
	auditor.SetState(manager)
	auditor.SetAccess(registry)
	auditor.SetPauses(registry)
	auditor.SetTokenLedger(manager)
	auditor.SetEmitter(feed)
	require.NoError(t, auditor.SetDefaultThreshold(ownerAddr, 9_500))

	exchange, err := venue.NewFixedRate(manager, 9_800)
	require.NoError(t, err)

	orders := twap.NewEngine()
	orders.SetState(manager)
	orders.SetTokenLedger(manager)
	orders.SetExchange(exchange)
	orders.SetAccess(registry)
	orders.SetPauses(registry)
	orders.SetEmitter(feed)

	now := int64(1_700_000_000)
	auditor.SetNowFunc(func() int64 { return now })
	orders.SetNowFunc(func() int64 { return now })

	srv := NewServer(manager, auditor, orders, registry, slog.Default())
	srv.SetEventFeed(feed)
	return srv, manager
}

func bigInt(t *testing.T, raw string) *big.Int {
	t.Helper()
	value, ok := new(big.Int).SetString(raw, 10)
	require.True(t, ok, "invalid big integer %q", raw)
	return value
}

func call(t *testing.T, srv *Server, method string, params interface{}, authed bool) (int, RPCResponse) {
	t.Helper()
	body := map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  method,
	}
	if params != nil {
		body["params"] = []interface{}{params}
	}
	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(encoded))
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	rec := httptest.NewRecorder()
	srv.handle(rec, req)

	var resp RPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func resultMap(t *testing.T, resp RPCResponse) map[string]interface{} {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected rpc error: %+v", resp.Error)
	out, ok := resp.Result.(map[string]interface{})
	require.True(t, ok, "result is not an object: %T", resp.Result)
	return out
}

func TestHandleRejectsMalformedRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	srv.handle(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	status, resp := call(t, srv, "no_suchMethod", nil, false)
	require.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestMutationsRequireAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	status, resp := call(t, srv, "swap_analyze", map[string]interface{}{}, false)
	require.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
}

func TestSwapAnalyzeLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	params := map[string]interface{}{
		"caller":    formatAddress(ownerAddr),
		"sender":    formatAddress(traderAddr),
		"amountIn":  "1000000000000000000",
		"amountOut": "950000000000000000",
		"tokenIn":   formatAddress(tokenInAddr),
		"tokenOut":  formatAddress(tokenOutAddr),
	}
	status, resp := call(t, srv, "swap_analyze", params, true)
	require.Equal(t, http.StatusOK, status)
	result := resultMap(t, resp)
	require.Equal(t, true, result["safe"])
	swapID, ok := result["swapId"].(string)
	require.True(t, ok)

	status, resp = call(t, srv, "swap_getSwapData", map[string]interface{}{"swapId": swapID}, false)
	require.Equal(t, http.StatusOK, status)
	record := resultMap(t, resp)
	require.Equal(t, formatAddress(traderAddr), record["sender"])
	require.Equal(t, "1000000000000000000", record["amountIn"])
	require.Equal(t, float64(9_500), record["spreadBps"])

	status, resp = call(t, srv, "swap_getSwapStatus", map[string]interface{}{"swapId": swapID}, false)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, resultMap(t, resp)["safe"])

	// The identical tuple is rejected as a duplicate.
	status, resp = call(t, srv, "swap_analyze", params, true)
	require.Equal(t, http.StatusConflict, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeDuplicate, resp.Error.Code)

	status, resp = call(t, srv, "swap_getStats", nil, false)
	require.Equal(t, http.StatusOK, status)
	stats := resultMap(t, resp)
	require.Equal(t, float64(1), stats["totalSwaps"])
	require.Equal(t, float64(0), stats["unsafeSwaps"])
}

func TestSwapAnalyzeRejectsUntrustedCaller(t *testing.T) {
	srv, _ := newTestServer(t)

	params := map[string]interface{}{
		"caller":    formatAddress(executorAddr),
		"sender":    formatAddress(traderAddr),
		"amountIn":  "1000000000000000000",
		"amountOut": "950000000000000000",
		"tokenIn":   formatAddress(tokenInAddr),
		"tokenOut":  formatAddress(tokenOutAddr),
	}
	status, resp := call(t, srv, "swap_analyze", params, true)
	require.Equal(t, http.StatusForbidden, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
}

func TestTwapOrderLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	createParams := map[string]interface{}{
		"owner":             formatAddress(traderAddr),
		"tokenIn":           formatAddress(tokenInAddr),
		"tokenOut":          formatAddress(tokenOutAddr),
		"totalAmountIn":     "10000000000000000000",
		"amountPerInterval": "2000000000000000000",
		"totalIntervals":    5,
	}
	status, resp := call(t, srv, "twap_createOrder", createParams, true)
	require.Equal(t, http.StatusOK, status)
	orderID, ok := resultMap(t, resp)["orderId"].(string)
	require.True(t, ok)

	execParams := map[string]interface{}{
		"orderId":  orderID,
		"executor": formatAddress(executorAddr),
	}
	status, resp = call(t, srv, "twap_executeInterval", execParams, true)
	require.Equal(t, http.StatusOK, status)
	order := resultMap(t, resp)
	require.Equal(t, float64(1), order["executedIntervals"])
	require.Equal(t, true, order["active"])

	// A second execution inside the same interval is premature.
	status, resp = call(t, srv, "twap_executeInterval", execParams, true)
	require.Equal(t, http.StatusConflict, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codePrecondition, resp.Error.Code)

	cancelParams := map[string]interface{}{
		"orderId": orderID,
		"caller":  formatAddress(traderAddr),
	}
	status, resp = call(t, srv, "twap_cancelOrder", cancelParams, true)
	require.Equal(t, http.StatusOK, status)
	cancelled := resultMap(t, resp)
	require.Equal(t, false, cancelled["active"])

	status, resp = call(t, srv, "twap_getOrder", map[string]interface{}{"orderId": orderID}, false)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, false, resultMap(t, resp)["active"])
}

func TestAccessAdministration(t *testing.T) {
	srv, _ := newTestServer(t)

	status, resp := call(t, srv, "access_getOwner", nil, false)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, formatAddress(ownerAddr), resultMap(t, resp)["owner"])

	status, resp = call(t, srv, "access_setTrustedCaller", map[string]interface{}{
		"caller":  formatAddress(ownerAddr),
		"address": formatAddress(executorAddr),
		"trusted": true,
	}, true)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, resultMap(t, resp)["trusted"])

	status, resp = call(t, srv, "access_isTrusted", map[string]interface{}{"address": formatAddress(executorAddr)}, false)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, resultMap(t, resp)["trusted"])

	// Non-owner administration is rejected and leaves no trace.
	status, resp = call(t, srv, "access_setPaused", map[string]interface{}{
		"caller": formatAddress(executorAddr),
		"paused": true,
	}, true)
	require.Equal(t, http.StatusForbidden, status)
	require.NotNil(t, resp.Error)

	status, resp = call(t, srv, "access_isPaused", nil, false)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, false, resultMap(t, resp)["paused"])

	status, resp = call(t, srv, "access_getRouter", nil, false)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Result)

	status, resp = call(t, srv, "access_setRouter", map[string]interface{}{
		"caller": formatAddress(ownerAddr),
		"router": formatAddress(executorAddr),
	}, true)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, formatAddress(executorAddr), resultMap(t, resp)["router"])

	status, resp = call(t, srv, "access_getRouter", nil, false)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, formatAddress(executorAddr), resultMap(t, resp)["router"])
}

func feedEvents(t *testing.T, srv *Server) []map[string]interface{} {
	t.Helper()
	status, resp := call(t, srv, "events_list", nil, false)
	require.Equal(t, http.StatusOK, status)
	raw, ok := resultMap(t, resp)["events"].([]interface{})
	require.True(t, ok, "events is not a list")
	out := make([]map[string]interface{}, 0, len(raw))
	for _, entry := range raw {
		evt, ok := entry.(map[string]interface{})
		require.True(t, ok, "event is not an object")
		out = append(out, evt)
	}
	return out
}

func TestEventFeed(t *testing.T) {
	srv, _ := newTestServer(t)

	// Discard setup events so the assertions below see only this test's.
	feedEvents(t, srv)

	analyzeParams := map[string]interface{}{
		"caller":    formatAddress(ownerAddr),
		"sender":    formatAddress(traderAddr),
		"amountIn":  "1000000000000000000",
		"amountOut": "950000000000000000",
		"tokenIn":   formatAddress(tokenInAddr),
		"tokenOut":  formatAddress(tokenOutAddr),
	}
	status, _ := call(t, srv, "swap_analyze", analyzeParams, true)
	require.Equal(t, http.StatusOK, status)

	createParams := map[string]interface{}{
		"owner":             formatAddress(traderAddr),
		"tokenIn":           formatAddress(tokenInAddr),
		"tokenOut":          formatAddress(tokenOutAddr),
		"totalAmountIn":     "10000000000000000000",
		"amountPerInterval": "2000000000000000000",
		"totalIntervals":    5,
	}
	status, _ = call(t, srv, "twap_createOrder", createParams, true)
	require.Equal(t, http.StatusOK, status)

	got := feedEvents(t, srv)
	require.Len(t, got, 2)

	require.Equal(t, audit.TypeSwapAnalyzed, got[0]["type"])
	analyzed, ok := got[0]["attributes"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "true", analyzed["safe"])
	require.Equal(t, formatAddress(traderAddr), analyzed["sender"])

	require.Equal(t, twap.TypeOrderCreated, got[1]["type"])
	created, ok := got[1]["attributes"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "5", created["totalIntervals"])
	require.Equal(t, formatAddress(traderAddr), created["owner"])

	// The list drains on read.
	require.Empty(t, feedEvents(t, srv))
}
