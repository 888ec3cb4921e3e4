package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"escrowd/crypto"
	"escrowd/escrow"
	"escrowd/observability"
)

const (
	codeEscrowInvalidParams = -32021
	codeEscrowNotFound      = -32022
	codeEscrowForbidden     = -32023
	codeEscrowConflict      = -32024
	codeEscrowInternal      = -32025
)

type escrowCreateParams struct {
	ID       uint64 `json:"id"`
	Buyer    string `json:"buyer"`
	Retailer string `json:"retailer"`
	Amount   uint64 `json:"amount"`
}

type escrowActorParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
}

type escrowIDParams struct {
	ID uint64 `json:"id"`
}

type escrowJSON struct {
	ID                   uint64 `json:"id"`
	Buyer                string `json:"buyer"`
	Retailer             string `json:"retailer"`
	Amount               uint64 `json:"amount"`
	Status               string `json:"status"`
	CreatedAt            int64  `json:"createdAt"`
	DeliveryConfirmedAt  int64  `json:"deliveryConfirmedAt,omitempty"`
	ConfirmationDeadline int64  `json:"confirmationDeadline,omitempty"`
	CustodyAccount       string `json:"custodyAccount"`
	CustodyBalance       uint64 `json:"custodyBalance"`
}

func (s *Server) escrowToJSON(rec *escrow.Record) (*escrowJSON, error) {
	custody := s.state.CustodyAddress(rec.ID)
	balance, err := s.state.CustodyBalance(rec.ID)
	if err != nil {
		return nil, err
	}
	out := &escrowJSON{
		ID:             rec.ID,
		Buyer:          crypto.MustNewAddress(rec.Buyer[:]).String(),
		Retailer:       crypto.MustNewAddress(rec.Retailer[:]).String(),
		Amount:         rec.Amount,
		Status:         rec.Status.String(),
		CreatedAt:      rec.CreatedAt,
		CustodyAccount: crypto.MustNewAddress(custody[:]).String(),
		CustodyBalance: balance,
	}
	if rec.DeliveryConfirmedAt != 0 {
		out.DeliveryConfirmedAt = rec.DeliveryConfirmedAt
		out.ConfirmationDeadline = escrow.ConfirmationDeadline(rec.DeliveryConfirmedAt)
	}
	return out, nil
}

func decodeSingleParam(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeEscrowInvalidParams, Message: "invalid_params", Data: "exactly one parameter object expected"}
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return &RPCError{Code: codeEscrowInvalidParams, Message: "invalid_params", Data: err.Error()}
	}
	return nil
}

// writeEscrowError maps the engine's error taxonomy onto the module's RPC
// code space.
func writeEscrowError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, escrow.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, id, codeEscrowInvalidParams, "invalid_params", err.Error())
	case errors.Is(err, escrow.ErrNotFound):
		writeError(w, http.StatusNotFound, id, codeEscrowNotFound, "not_found", err.Error())
	case errors.Is(err, escrow.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeEscrowForbidden, "forbidden", err.Error())
	case errors.Is(err, escrow.ErrDuplicateEscrow),
		errors.Is(err, escrow.ErrInvalidState),
		errors.Is(err, escrow.ErrConfirmationExpired),
		errors.Is(err, escrow.ErrAutoReleaseNotReached),
		errors.Is(err, escrow.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, id, codeEscrowConflict, "conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeEscrowInternal, "internal_error", err.Error())
	}
}

func observe(operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.Metrics().Observe(operation, outcome, time.Since(start))
}

func (s *Server) handleEscrowCreate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params escrowCreateParams
	if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	buyer, err := crypto.DecodeAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	retailer, err := crypto.DecodeAddress(params.Retailer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}

	start := time.Now()
	rec, err := s.engine.Create(params.ID, buyer.Raw(), retailer.Raw(), params.Amount)
	observe("create", start, err)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	result, err := s.escrowToJSON(rec)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleEscrowConfirmDelivery(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params escrowActorParams
	if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	caller, err := crypto.DecodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}

	start := time.Now()
	rec, err := s.engine.ConfirmDelivery(params.ID, caller.Raw())
	observe("confirm_delivery", start, err)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	result, err := s.escrowToJSON(rec)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleEscrowConfirmReceipt(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params escrowActorParams
	if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	caller, err := crypto.DecodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}

	start := time.Now()
	rec, err := s.engine.ConfirmReceipt(params.ID, caller.Raw())
	observe("confirm_receipt", start, err)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	result, err := s.escrowToJSON(rec)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleEscrowAutoRelease(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params escrowIDParams
	if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}

	start := time.Now()
	rec, err := s.engine.AutoRelease(params.ID)
	observe("auto_release", start, err)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	result, err := s.escrowToJSON(rec)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleEscrowGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params escrowIDParams
	if rpcErr := decodeSingleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}

	rec, err := s.engine.Get(params.ID)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	result, err := s.escrowToJSON(rec)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, result)
}
