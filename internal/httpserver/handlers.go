package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"pharmabill/internal/delivery"
	"pharmabill/internal/domain"
	"pharmabill/internal/store"
)

type DeliveryReader interface {
	GetDelivery(ctx context.Context, id string) (store.Delivery, bool, error)
}

// Webhooks is the outbound-notification API: submit a delivery, check on it.
type Webhooks struct {
	Intake     *delivery.Intake
	Deliveries DeliveryReader
}

func (a *Webhooks) Register(m *mux.Router) {
	m.HandleFunc("/v1/webhooks", a.handleSubmit).Methods(http.MethodPost)
	m.HandleFunc("/v1/webhooks/{id}", a.handleGet).Methods(http.MethodGet)
}

func (a *Webhooks) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	resp, err := a.Intake.CreateAndEnqueue(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrMissingFields) || errors.Is(err, domain.ErrInvalidTarget) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("submit webhook failed",
			"err", err,
			"tenant_id", req.TenantID,
			"target", req.TargetURL,
			"event", req.EventName,
		)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(resp)
}

type deliveryView struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId,omitempty"`
	TargetURL   string `json:"targetUrl"`
	EventName   string `json:"eventName"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	LastError   string `json:"lastError,omitempty"`
	NextRetryAt string `json:"nextRetryAt,omitempty"`
	DeliveredAt string `json:"deliveredAt,omitempty"`
}

func (a *Webhooks) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, ErrMissingID, http.StatusBadRequest)
		return
	}
	d, found, err := a.Deliveries.GetDelivery(r.Context(), id)
	if err != nil {
		slog.Error("get delivery failed", "err", err, "id", id)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}
	if !found {
		http.Error(w, ErrNotFound, http.StatusNotFound)
		return
	}

	view := deliveryView{
		ID:        d.ID,
		TenantID:  d.TenantID,
		TargetURL: d.TargetURL,
		EventName: d.EventName,
		Status:    d.Status,
		Attempts:  d.Attempts,
		LastError: d.LastError,
	}
	if d.NextRetryAt != nil {
		view.NextRetryAt = d.NextRetryAt.Format("2006-01-02T15:04:05Z07:00")
	}
	if d.DeliveredAt != nil {
		view.DeliveredAt = d.DeliveredAt.Format("2006-01-02T15:04:05Z07:00")
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(view)
}
