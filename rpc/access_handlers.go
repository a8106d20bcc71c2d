package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"swapguard/native/access"
)

func isOwnershipError(err error) bool {
	return errors.Is(err, access.ErrNotOwner) || errors.Is(err, access.ErrNotInitialised)
}

func (s *Server) handleAccessGetOwner(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	owner, found, err := s.access.Owner()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "owner lookup failed", err.Error())
		return
	}
	if !found {
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"owner": formatAddress(owner)})
}

func (s *Server) addressParam(w http.ResponseWriter, req *RPCRequest) ([20]byte, bool) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected address parameter", nil)
		return [20]byte{}, false
	}
	var payload struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		var direct string
		if err := json.Unmarshal(req.Params[0], &direct); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
			return [20]byte{}, false
		}
		payload.Address = direct
	}
	addr, err := parseAddress(payload.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return [20]byte{}, false
	}
	return addr, true
}

func (s *Server) handleAccessIsTrusted(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, ok := s.addressParam(w, req)
	if !ok {
		return
	}
	trusted, err := s.access.IsTrusted(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "trust lookup failed", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"trusted": trusted})
}

func (s *Server) handleAccessIsBlacklisted(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, ok := s.addressParam(w, req)
	if !ok {
		return
	}
	blacklisted, err := s.access.IsBlacklisted(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "blacklist lookup failed", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"blacklisted": blacklisted})
}

func (s *Server) handleAccessIsPaused(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	paused, err := s.access.Paused()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "pause lookup failed", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"paused": paused})
}

func (s *Server) handleAccessTransferOwnership(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected transfer payload", nil)
		return
	}
	var payload struct {
		Caller   string `json:"caller"`
		NewOwner string `json:"newOwner"`
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
	newOwner, err := parseAddress(payload.NewOwner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid newOwner", err.Error())
		return
	}
	if err := s.mutate(func() error {
		return s.access.TransferOwnership(caller, newOwner)
	}); err != nil {
		s.writeAccessError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"owner": formatAddress(newOwner)})
}

func (s *Server) handleAccessSetTrustedCaller(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	caller, addr, enabled, ok := s.flagParams(w, req, "trusted")
	if !ok {
		return
	}
	if err := s.mutate(func() error {
		return s.access.SetTrustedCaller(caller, addr, enabled)
	}); err != nil {
		s.writeAccessError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"address": formatAddress(addr), "trusted": enabled})
}

func (s *Server) handleAccessSetBlacklisted(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	caller, addr, enabled, ok := s.flagParams(w, req, "blacklisted")
	if !ok {
		return
	}
	if err := s.mutate(func() error {
		return s.access.SetBlacklisted(caller, addr, enabled)
	}); err != nil {
		s.writeAccessError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"address": formatAddress(addr), "blacklisted": enabled})
}

func (s *Server) handleAccessSetPaused(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected pause payload", nil)
		return
	}
	var payload struct {
		Caller string `json:"caller"`
		Paused bool   `json:"paused"`
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
		return s.access.SetPaused(caller, payload.Paused)
	}); err != nil {
		s.writeAccessError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"paused": payload.Paused})
}

func (s *Server) handleAccessGetRouter(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	router, found, err := s.access.Router()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "router lookup failed", err.Error())
		return
	}
	if !found {
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"router": formatAddress(router)})
}

func (s *Server) handleAccessSetRouter(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected router payload", nil)
		return
	}
	var payload struct {
		Caller string `json:"caller"`
		Router string `json:"router"`
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
	router, err := parseAddress(payload.Router)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid router", err.Error())
		return
	}
	if err := s.mutate(func() error {
		return s.access.SetRouter(caller, router)
	}); err != nil {
		s.writeAccessError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"router": formatAddress(router)})
}

func (s *Server) flagParams(w http.ResponseWriter, req *RPCRequest, field string) ([20]byte, [20]byte, bool, bool) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected flag payload", nil)
		return [20]byte{}, [20]byte{}, false, false
	}
	var payload struct {
		Caller      string `json:"caller"`
		Address     string `json:"address"`
		Trusted     *bool  `json:"trusted,omitempty"`
		Blacklisted *bool  `json:"blacklisted,omitempty"`
	}
	if err := json.Unmarshal(req.Params[0], &payload); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
		return [20]byte{}, [20]byte{}, false, false
	}
	caller, err := parseAddress(payload.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return [20]byte{}, [20]byte{}, false, false
	}
	addr, err := parseAddress(payload.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return [20]byte{}, [20]byte{}, false, false
	}
	var enabled *bool
	switch field {
	case "trusted":
		enabled = payload.Trusted
	case "blacklisted":
		enabled = payload.Blacklisted
	}
	if enabled == nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, field+" flag required", nil)
		return [20]byte{}, [20]byte{}, false, false
	}
	return caller, addr, *enabled, true
}

func (s *Server) writeAccessError(w http.ResponseWriter, req *RPCRequest, err error) {
	switch {
	case isOwnershipError(err):
		writeError(w, http.StatusForbidden, req.ID, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, access.ErrAddressRequired):
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "access update failed", err.Error())
	}
}
