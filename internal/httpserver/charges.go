package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"pharmabill/internal/billing"
	"pharmabill/internal/domain"
)

type Charges struct {
	Svc *billing.Service
}

func (a *Charges) Register(m *mux.Router) {
	m.HandleFunc("/v1/charges", a.handleCreate).Methods(http.MethodPost)
	m.HandleFunc("/v1/charges/{gatewayChargeId}/sync", a.handleSync).Methods(http.MethodPost)
	m.HandleFunc("/v1/charges/{gatewayChargeId}", a.handleCancel).Methods(http.MethodDelete)
}

func (a *Charges) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	resp, err := a.Svc.CreateCharge(r.Context(), req)
	if err != nil {
		writeBillingError(w, err, "create charge", req.TenantID)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(resp)
}

func (a *Charges) handleSync(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["gatewayChargeId"]
	if id == "" {
		http.Error(w, ErrMissingID, http.StatusBadRequest)
		return
	}

	res, err := a.Svc.SyncChargeStatus(r.Context(), id)
	if err != nil {
		writeBillingError(w, err, "sync charge", id)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"changed": res.Changed,
		"from":    res.From,
		"to":      res.To,
	})
}

func (a *Charges) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["gatewayChargeId"]
	if id == "" {
		http.Error(w, ErrMissingID, http.StatusBadRequest)
		return
	}

	if err := a.Svc.CancelCharge(r.Context(), id); err != nil {
		writeBillingError(w, err, "cancel charge", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeBillingError(w http.ResponseWriter, err error, op, ref string) {
	switch {
	case errors.Is(err, domain.ErrMissingFields):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, ErrNotFound, http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		slog.Error(op+" failed", "err", err, "ref", ref)
		http.Error(w, ErrDependency, http.StatusBadGateway)
	}
}
