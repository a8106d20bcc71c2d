package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"swapguard/native/audit"
	nativecommon "swapguard/native/common"
	"swapguard/observability"
)

type swapRecordResult struct {
	SwapID    string `json:"swapId"`
	Sender    string `json:"sender"`
	AmountIn  string `json:"amountIn"`
	AmountOut string `json:"amountOut"`
	TokenIn   string `json:"tokenIn"`
	TokenOut  string `json:"tokenOut"`
	Safe      bool   `json:"safe"`
	SpreadBps uint64 `json:"spreadBps"`
	CreatedAt int64  `json:"createdAt"`
}

func (s *Server) handleSwapAnalyze(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected analysis payload", nil)
		return
	}
	var payload struct {
		Caller       string `json:"caller"`
		Sender       string `json:"sender"`
		AmountIn     string `json:"amountIn"`
		AmountOut    string `json:"amountOut"`
		TokenIn      string `json:"tokenIn"`
		TokenOut     string `json:"tokenOut"`
		MinAmountOut string `json:"minAmountOut,omitempty"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	caller, err := parseAddress(payload.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	sender, err := parseAddress(payload.Sender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid sender", err.Error())
		return
	}
	tokenIn, err := parseAddress(payload.TokenIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid tokenIn", err.Error())
		return
	}
	tokenOut, err := parseAddress(payload.TokenOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid tokenOut", err.Error())
		return
	}
	amountIn, err := parseAmount(payload.AmountIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amountIn", err.Error())
		return
	}
	amountOut, err := parseAmount(payload.AmountOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amountOut", err.Error())
		return
	}
	minOut, err := parseOptionalAmount(payload.MinAmountOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid minAmountOut", err.Error())
		return
	}

	var (
		swapID [32]byte
		safe   bool
	)
	mutErr := s.mutate(func() error {
		var opErr error
		swapID, safe, opErr = s.auditor.AnalyzeSwap(caller, sender, amountIn, amountOut, tokenIn, tokenOut, minOut)
		return opErr
	})
	if mutErr != nil {
		observability.Audit().RecordRejected(rejectionReason(mutErr))
		switch {
		case errors.Is(mutErr, nativecommon.ErrModulePaused):
			writeError(w, http.StatusConflict, req.ID, codeModulePaused, mutErr.Error(), nil)
		case errors.Is(mutErr, audit.ErrCallerNotTrusted), errors.Is(mutErr, audit.ErrPartyBlacklisted):
			writeError(w, http.StatusForbidden, req.ID, codeUnauthorized, mutErr.Error(), nil)
		case errors.Is(mutErr, audit.ErrDuplicateSwap):
			writeError(w, http.StatusConflict, req.ID, codeDuplicate, mutErr.Error(), formatHash32(audit.SwapID(sender, amountIn, amountOut, tokenIn, tokenOut)))
		case errors.Is(mutErr, audit.ErrAmountRequired),
			errors.Is(mutErr, audit.ErrTokenRequired),
			errors.Is(mutErr, audit.ErrTokenUnknown),
			errors.Is(mutErr, audit.ErrAmountOverflow),
			errors.Is(mutErr, audit.ErrSlippage):
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, mutErr.Error(), nil)
		default:
			writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "swap analysis failed", mutErr.Error())
		}
		return
	}
	observability.Audit().RecordAnalyzed(safe)
	writeResult(w, req.ID, map[string]interface{}{"swapId": formatHash32(swapID), "safe": safe})
}

func (s *Server) handleSwapGetData(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	id, ok := s.swapIDParam(w, req)
	if !ok {
		return
	}
	record, found, err := s.auditor.GetSwapData(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "swap lookup failed", err.Error())
		return
	}
	if !found {
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, swapRecordResult{
		SwapID:    formatHash32(record.ID),
		Sender:    formatAddress(record.Sender),
		AmountIn:  record.AmountIn.String(),
		AmountOut: record.AmountOut.String(),
		TokenIn:   formatAddress(record.TokenIn),
		TokenOut:  formatAddress(record.TokenOut),
		Safe:      record.Safe,
		SpreadBps: record.SpreadBps,
		CreatedAt: record.CreatedAt,
	})
}

func (s *Server) handleSwapGetStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	id, ok := s.swapIDParam(w, req)
	if !ok {
		return
	}
	safe, err := s.auditor.GetSwapStatus(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "swap lookup failed", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"safe": safe})
}

func (s *Server) handleSwapGetStats(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	stats, err := s.auditor.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "stats lookup failed", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"totalSwaps":  stats.TotalSwaps,
		"unsafeSwaps": stats.UnsafeSwaps,
	})
}

func (s *Server) handleSwapGetThreshold(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var payload struct {
		TokenIn  string `json:"tokenIn,omitempty"`
		TokenOut string `json:"tokenOut,omitempty"`
	}
	if len(req.Params) == 1 {
		if err := json.Unmarshal(req.Params[0], &payload); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
			return
		}
	}
	if strings.TrimSpace(payload.TokenIn) == "" && strings.TrimSpace(payload.TokenOut) == "" {
		bps, err := s.auditor.DefaultThreshold()
		if err != nil {
			writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "threshold lookup failed", err.Error())
			return
		}
		writeResult(w, req.ID, map[string]interface{}{"thresholdBps": bps})
		return
	}
	tokenIn, err := parseAddress(payload.TokenIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid tokenIn", err.Error())
		return
	}
	tokenOut, err := parseAddress(payload.TokenOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid tokenOut", err.Error())
		return
	}
	bps, err := s.auditor.EffectiveThreshold(tokenIn, tokenOut)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "threshold lookup failed", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"thresholdBps": bps})
}

func (s *Server) handleSwapSetDefaultThreshold(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected threshold payload", nil)
		return
	}
	var payload struct {
		Caller       string `json:"caller"`
		ThresholdBps uint64 `json:"thresholdBps"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	caller, err := parseAddress(payload.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	if err := s.mutate(func() error {
		return s.auditor.SetDefaultThreshold(caller, payload.ThresholdBps)
	}); err != nil {
		s.writeThresholdError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"thresholdBps": payload.ThresholdBps})
}

func (s *Server) handleSwapSetPairThreshold(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected threshold payload", nil)
		return
	}
	var payload struct {
		Caller       string `json:"caller"`
		TokenIn      string `json:"tokenIn"`
		TokenOut     string `json:"tokenOut"`
		ThresholdBps uint64 `json:"thresholdBps"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	caller, err := parseAddress(payload.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	tokenIn, err := parseAddress(payload.TokenIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid tokenIn", err.Error())
		return
	}
	tokenOut, err := parseAddress(payload.TokenOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid tokenOut", err.Error())
		return
	}
	if err := s.mutate(func() error {
		return s.auditor.SetPairThreshold(caller, tokenIn, tokenOut, payload.ThresholdBps)
	}); err != nil {
		s.writeThresholdError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"thresholdBps": payload.ThresholdBps})
}

func (s *Server) writeThresholdError(w http.ResponseWriter, req *RPCRequest, err error) {
	switch {
	case isOwnershipError(err):
		writeError(w, http.StatusForbidden, req.ID, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, audit.ErrThresholdRange):
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "threshold update failed", err.Error())
	}
}

func (s *Server) swapIDParam(w http.ResponseWriter, req *RPCRequest) ([32]byte, bool) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected swapId parameter", nil)
		return [32]byte{}, false
	}
	var payload struct {
		SwapID string `json:"swapId"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		var direct string
		if err := json.Unmarshal(req.Params[0], &direct); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
			return [32]byte{}, false
		}
		payload.SwapID = direct
	}
	id, err := parseHash32(payload.SwapID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid swapId", err.Error())
		return [32]byte{}, false
	}
	return id, true
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, nativecommon.ErrModulePaused):
		return "paused"
	case errors.Is(err, audit.ErrCallerNotTrusted):
		return "untrusted_caller"
	case errors.Is(err, audit.ErrPartyBlacklisted):
		return "blacklisted"
	case errors.Is(err, audit.ErrDuplicateSwap):
		return "duplicate"
	case errors.Is(err, audit.ErrSlippage):
		return "slippage"
	case errors.Is(err, audit.ErrAmountOverflow):
		return "overflow"
	case errors.Is(err, audit.ErrAmountRequired), errors.Is(err, audit.ErrTokenRequired), errors.Is(err, audit.ErrTokenUnknown):
		return "invalid_input"
	default:
		return "internal"
	}
}
