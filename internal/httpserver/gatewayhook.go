package httpserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"pharmabill/internal/billing"
	"pharmabill/internal/domain"
	"pharmabill/internal/observability"
	"pharmabill/internal/store"
)

type GatewayEventStore interface {
	InsertGatewayEvent(ctx context.Context, in store.GatewayEventInsert) error
}

type ChargeSyncer interface {
	SyncChargeStatus(ctx context.Context, gatewayChargeID string) (billing.SyncResult, error)
}

// GatewayHook receives the push half of the push/poll pair: provider payment
// notifications. Whatever the provider claims, the charge is funneled through
// the same transition-only sync the reconciliation poll uses, so whichever
// path observes a confirmation first wins and the other no-ops.
type GatewayHook struct {
	Store  GatewayEventStore
	Syncer ChargeSyncer

	AsaasToken       string
	InfinityPayToken string
}

func (h *GatewayHook) Register(m *mux.Router) {
	m.HandleFunc("/v1/webhooks/asaas", h.handleAsaas).Methods(http.MethodPost)
	m.HandleFunc("/v1/webhooks/infinitypay", h.handleInfinityPay).Methods(http.MethodPost)
}

func tokenOK(provided, expected string) bool {
	return expected != "" && subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

type asaasEvent struct {
	Event       string `json:"event"`
	DateCreated string `json:"dateCreated"`
	Payment     struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"payment"`
}

func (h *GatewayHook) handleAsaas(w http.ResponseWriter, r *http.Request) {
	if !tokenOK(r.Header.Get("asaas-access-token"), h.AsaasToken) {
		http.Error(w, ErrInvalidToken, http.StatusUnauthorized)
		return
	}

	var ev asaasEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil || ev.Payment.ID == "" {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	h.process(w, r, "asaas", ev.Payment.ID, ev.Payment.Status, ev, parseEventTime("2006-01-02 15:04:05", ev.DateCreated))
}

type infinityPayEvent struct {
	ChargeID  string `json:"charge_id"`
	Status    string `json:"status"`
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
}

func (h *GatewayHook) handleInfinityPay(w http.ResponseWriter, r *http.Request) {
	if !tokenOK(r.Header.Get("X-Webhook-Token"), h.InfinityPayToken) {
		http.Error(w, ErrInvalidToken, http.StatusUnauthorized)
		return
	}

	var ev infinityPayEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil || ev.ChargeID == "" {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	h.process(w, r, "infinitypay", ev.ChargeID, ev.Status, ev, parseEventTime(time.RFC3339, ev.Timestamp))
}

// parseEventTime is lenient: providers version their payloads, and a missing
// or unparseable timestamp must not reject the event.
func parseEventTime(layout, v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(layout, v)
	if err != nil {
		return nil
	}
	return &t
}

func (h *GatewayHook) process(w http.ResponseWriter, r *http.Request, gw, gatewayChargeID, vendorStatus string, payload any, occurredAt *time.Time) {
	observability.GatewayEvents.WithLabelValues(gw, vendorStatus).Inc()

	if err := h.Store.InsertGatewayEvent(r.Context(), store.GatewayEventInsert{
		Gateway:         gw,
		GatewayChargeID: gatewayChargeID,
		VendorStatus:    vendorStatus,
		Payload:         payload,
		OccurredAt:      occurredAt,
	}); err != nil {
		slog.Error("insert gateway event failed", "err", err, "gateway", gw, "gateway_charge_id", gatewayChargeID)
		http.Error(w, ErrDependency, http.StatusInternalServerError)
		return
	}

	if _, err := h.Syncer.SyncChargeStatus(r.Context(), gatewayChargeID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// event for a charge we never recorded; acknowledge so the
			// provider stops resending, the audit row above keeps the trace
			slog.Warn("gateway event for unknown charge", "gateway", gw, "gateway_charge_id", gatewayChargeID)
			w.WriteHeader(http.StatusOK)
			return
		}
		slog.Error("gateway event sync failed", "err", err, "gateway", gw, "gateway_charge_id", gatewayChargeID)
		http.Error(w, ErrDependency, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
