package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"escrowd/crypto"
	"escrowd/escrow"
	"escrowd/state"
)

type escrowRoutes struct {
	engine *escrow.Engine
	state  *state.EscrowState
}

type createRequest struct {
	ID       uint64 `json:"id"`
	Buyer    string `json:"buyer"`
	Retailer string `json:"retailer"`
	Amount   uint64 `json:"amount"`
}

type actorRequest struct {
	Caller string `json:"caller"`
}

type escrowResponse struct {
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

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, escrow.ErrInvalidAmount):
		status = http.StatusBadRequest
	case errors.Is(err, escrow.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, escrow.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, escrow.ErrDuplicateEscrow),
		errors.Is(err, escrow.ErrInvalidState),
		errors.Is(err, escrow.ErrConfirmationExpired),
		errors.Is(err, escrow.ErrAutoReleaseNotReached),
		errors.Is(err, escrow.ErrInsufficientFunds):
		status = http.StatusConflict
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (er *escrowRoutes) respond(w http.ResponseWriter, status int, rec *escrow.Record) {
	custody := er.state.CustodyAddress(rec.ID)
	balance, err := er.state.CustodyBalance(rec.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := escrowResponse{
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
		resp.DeliveryConfirmedAt = rec.DeliveryConfirmedAt
		resp.ConfirmationDeadline = escrow.ConfirmationDeadline(rec.DeliveryConfirmedAt)
	}
	writeJSON(w, status, resp)
}

func pathID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
}

func (er *escrowRoutes) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	buyer, err := crypto.DecodeAddress(req.Buyer)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "buyer: " + err.Error()})
		return
	}
	retailer, err := crypto.DecodeAddress(req.Retailer)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "retailer: " + err.Error()})
		return
	}
	rec, err := er.engine.Create(req.ID, buyer.Raw(), retailer.Raw(), req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	er.respond(w, http.StatusCreated, rec)
}

func (er *escrowRoutes) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid escrow id"})
		return
	}
	rec, err := er.engine.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	er.respond(w, http.StatusOK, rec)
}

func (er *escrowRoutes) withCaller(w http.ResponseWriter, r *http.Request, op func(id uint64, caller [crypto.AddressLength]byte) (*escrow.Record, error)) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid escrow id"})
		return
	}
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	caller, err := crypto.DecodeAddress(req.Caller)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "caller: " + err.Error()})
		return
	}
	rec, err := op(id, caller.Raw())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	er.respond(w, http.StatusOK, rec)
}

func (er *escrowRoutes) confirmDelivery(w http.ResponseWriter, r *http.Request) {
	er.withCaller(w, r, er.engine.ConfirmDelivery)
}

func (er *escrowRoutes) confirmReceipt(w http.ResponseWriter, r *http.Request) {
	er.withCaller(w, r, er.engine.ConfirmReceipt)
}

func (er *escrowRoutes) autoRelease(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid escrow id"})
		return
	}
	rec, err := er.engine.AutoRelease(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	er.respond(w, http.StatusOK, rec)
}
