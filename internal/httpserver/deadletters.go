package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"pharmabill/internal/store"
)

type DeadLetterReader interface {
	ListPendingDeadLetters(ctx context.Context, limit int) ([]store.DeadLetter, error)
	CountPendingDeadLetters(ctx context.Context) (int, error)
}

// DeadLetters exposes the operator view of the backlog. Reprocessing is
// triggered on the scheduler binary (see Jobs), not here.
type DeadLetters struct {
	Store DeadLetterReader
}

func (a *DeadLetters) Register(m *mux.Router) {
	m.HandleFunc("/v1/deadletters", a.handleList).Methods(http.MethodGet)
}

type deadLetterView struct {
	ID         string `json:"id"`
	DeliveryID string `json:"deliveryId"`
	TenantID   string `json:"tenantId,omitempty"`
	TargetURL  string `json:"targetUrl"`
	EventName  string `json:"eventName"`
	Reason     string `json:"reason"`
	CreatedAt  string `json:"createdAt"`
}

func (a *DeadLetters) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := a.Store.ListPendingDeadLetters(r.Context(), limit)
	if err != nil {
		slog.Error("list dead letters failed", "err", err)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}
	pending, err := a.Store.CountPendingDeadLetters(r.Context())
	if err != nil {
		slog.Error("count dead letters failed", "err", err)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}

	views := make([]deadLetterView, 0, len(entries))
	for _, e := range entries {
		views = append(views, deadLetterView{
			ID:         e.ID,
			DeliveryID: e.DeliveryID,
			TenantID:   e.TenantID,
			TargetURL:  e.TargetURL,
			EventName:  e.EventName,
			Reason:     e.Reason,
			CreatedAt:  e.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"pending": pending,
		"entries": views,
	})
}
