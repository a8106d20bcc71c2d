package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	nativecommon "swapguard/native/common"
	"swapguard/native/twap"
	"swapguard/observability"
)

type orderResult struct {
	OrderID           string `json:"orderId"`
	Owner             string `json:"owner"`
	TokenIn           string `json:"tokenIn"`
	TokenOut          string `json:"tokenOut"`
	TotalAmountIn     string `json:"totalAmountIn"`
	AmountPerInterval string `json:"amountPerInterval"`
	TotalIntervals    uint64 `json:"totalIntervals"`
	ExecutedIntervals uint64 `json:"executedIntervals"`
	LastExecutedAt    int64  `json:"lastExecutedAt"`
	CreatedAt         int64  `json:"createdAt"`
	Active            bool   `json:"active"`
}

func formatOrder(order *twap.Order) orderResult {
	return orderResult{
		OrderID:           formatHash32(order.ID),
		Owner:             formatAddress(order.Owner),
		TokenIn:           formatAddress(order.TokenIn),
		TokenOut:          formatAddress(order.TokenOut),
		TotalAmountIn:     order.TotalAmountIn.String(),
		AmountPerInterval: order.AmountPerInterval.String(),
		TotalIntervals:    order.TotalIntervals,
		ExecutedIntervals: order.ExecutedIntervals,
		LastExecutedAt:    order.LastExecutedAt,
		CreatedAt:         order.CreatedAt,
		Active:            order.Active,
	}
}

type executionResult struct {
	orderResult
	AmountOut string `json:"amountOut"`
	Fee       string `json:"fee"`
	Payout    string `json:"payout"`
}

func formatExecution(exec *twap.Execution) executionResult {
	return executionResult{
		orderResult: formatOrder(exec.Order),
		AmountOut:   exec.AmountOut.String(),
		Fee:         exec.Fee.String(),
		Payout:      exec.Payout.String(),
	}
}

func (s *Server) handleTwapCreateOrder(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected order payload", nil)
		return
	}
	var payload struct {
		Owner             string `json:"owner"`
		TokenIn           string `json:"tokenIn"`
		TokenOut          string `json:"tokenOut"`
		TotalAmountIn     string `json:"totalAmountIn"`
		AmountPerInterval string `json:"amountPerInterval"`
		TotalIntervals    uint64 `json:"totalIntervals"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	owner, err := parseAddress(payload.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid owner", err.Error())
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
	totalAmountIn, err := parseAmount(payload.TotalAmountIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid totalAmountIn", err.Error())
		return
	}
	amountPerInterval, err := parseAmount(payload.AmountPerInterval)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amountPerInterval", err.Error())
		return
	}

	var orderID [32]byte
	mutErr := s.mutate(func() error {
		var opErr error
		orderID, opErr = s.orders.CreateOrder(owner, tokenIn, tokenOut, totalAmountIn, amountPerInterval, payload.TotalIntervals)
		return opErr
	})
	if mutErr != nil {
		s.writeTwapError(w, req, mutErr)
		return
	}
	observability.Twap().RecordOrder("created")
	writeResult(w, req.ID, map[string]interface{}{"orderId": formatHash32(orderID)})
}

func (s *Server) handleTwapExecuteInterval(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected execution payload", nil)
		return
	}
	var payload struct {
		OrderID      string `json:"orderId"`
		Executor     string `json:"executor"`
		Payload      string `json:"payload,omitempty"`
		MinAmountOut string `json:"minAmountOut,omitempty"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	orderID, err := parseHash32(payload.OrderID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid orderId", err.Error())
		return
	}
	executor, err := parseAddress(payload.Executor)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid executor", err.Error())
		return
	}
	minOut, err := parseOptionalAmount(payload.MinAmountOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid minAmountOut", err.Error())
		return
	}

	var exec *twap.Execution
	mutErr := s.mutate(func() error {
		var opErr error
		exec, opErr = s.orders.ExecuteInterval(orderID, executor, []byte(payload.Payload), minOut)
		return opErr
	})
	if mutErr != nil {
		s.writeTwapError(w, req, mutErr)
		return
	}
	// A dust return can truncate the fee to zero even when a fee is
	// configured, so the flag comes from the amount actually paid.
	observability.Twap().RecordInterval(exec.Fee.Sign() > 0)
	if !exec.Order.Active {
		observability.Twap().RecordOrder("completed")
	}
	writeResult(w, req.ID, formatExecution(exec))
}

func (s *Server) handleTwapCancelOrder(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected cancellation payload", nil)
		return
	}
	var payload struct {
		OrderID string `json:"orderId"`
		Caller  string `json:"caller"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return
	}
	orderID, err := parseHash32(payload.OrderID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid orderId", err.Error())
		return
	}
	caller, err := parseAddress(payload.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}

	var order *twap.Order
	mutErr := s.mutate(func() error {
		var opErr error
		order, opErr = s.orders.CancelOrder(orderID, caller)
		return opErr
	})
	if mutErr != nil {
		s.writeTwapError(w, req, mutErr)
		return
	}
	observability.Twap().RecordOrder("cancelled")
	writeResult(w, req.ID, formatOrder(order))
}

func (s *Server) handleTwapGetOrder(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected orderId parameter", nil)
		return
	}
	var payload struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		var direct string
		if err := json.Unmarshal(req.Params[0], &direct); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
			return
		}
		payload.OrderID = direct
	}
	orderID, err := parseHash32(payload.OrderID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid orderId", err.Error())
		return
	}
	order, found, err := s.orders.GetOrder(orderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "order lookup failed", err.Error())
		return
	}
	if !found {
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, formatOrder(order))
}

func (s *Server) writeTwapError(w http.ResponseWriter, req *RPCRequest, err error) {
	switch {
	case errors.Is(err, nativecommon.ErrModulePaused):
		writeError(w, http.StatusConflict, req.ID, codeModulePaused, err.Error(), nil)
	case errors.Is(err, nativecommon.ErrReentrantCall):
		writeError(w, http.StatusConflict, req.ID, codePrecondition, err.Error(), nil)
	case errors.Is(err, twap.ErrUnauthorizedCaller), errors.Is(err, twap.ErrPartyBlacklisted):
		writeError(w, http.StatusForbidden, req.ID, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, twap.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, err.Error(), nil)
	case errors.Is(err, twap.ErrDuplicateOrder):
		writeError(w, http.StatusConflict, req.ID, codeDuplicate, err.Error(), nil)
	case errors.Is(err, twap.ErrOrderInactive),
		errors.Is(err, twap.ErrOrderComplete),
		errors.Is(err, twap.ErrIntervalNotReached):
		writeError(w, http.StatusConflict, req.ID, codePrecondition, err.Error(), nil)
	case errors.Is(err, twap.ErrTokenRequired),
		errors.Is(err, twap.ErrAmountRequired),
		errors.Is(err, twap.ErrIntervalsRequired),
		errors.Is(err, twap.ErrAmountOverflow),
		errors.Is(err, twap.ErrAmountMismatch),
		errors.Is(err, twap.ErrSlippage),
		errors.Is(err, twap.ErrVenueReturn):
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "order operation failed", err.Error())
	}
}
