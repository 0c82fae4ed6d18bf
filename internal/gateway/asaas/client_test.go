package asaas

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pharmabill/internal/domain"
	"pharmabill/internal/gateway"
)

func TestMapStatus(t *testing.T) {
	cases := map[string]domain.ChargeStatus{
		"PENDING":                domain.ChargePending,
		"AWAITING_RISK_ANALYSIS": domain.ChargePending,
		"CONFIRMED":              domain.ChargeConfirmed,
		"RECEIVED":               domain.ChargeConfirmed,
		"RECEIVED_IN_CASH":       domain.ChargeConfirmed,
		"OVERDUE":                domain.ChargeOverdue,
		"DELETED":                domain.ChargeCancelled,
		"REFUNDED":               domain.ChargeRefunded,
	}
	for vendor, want := range cases {
		got, err := mapStatus(vendor)
		if err != nil {
			t.Fatalf("mapStatus(%q): %v", vendor, err)
		}
		if got != want {
			t.Fatalf("mapStatus(%q) = %s, want %s", vendor, got, want)
		}
	}

	if _, err := mapStatus("SOMETHING_NEW"); err == nil {
		t.Fatalf("unknown vendor status must be an error, not a silent default")
	}
}

func TestCreateCharge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/payments" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("access_token") != "key123" {
			t.Fatalf("missing access_token header")
		}
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["value"] != "49.90" || req["billingType"] != "PIX" {
			t.Fatalf("bad request body: %v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id": "pay_1", "status": "PENDING", "dueDate": "2026-10-01",
			"pixQrCodePayload": "pixcode",
		})
	}))
	defer srv.Close()

	c := &Client{APIKey: "key123", BaseURL: srv.URL, HTTP: srv.Client()}
	ch, err := c.CreateCharge(context.Background(), gateway.CreateChargeRequest{
		AmountCents: 4990,
		Method:      domain.MethodPix,
		DueDate:     time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		Customer:    gateway.Customer{ID: "cus_1"},
	})
	if err != nil {
		t.Fatalf("create charge: %v", err)
	}
	if ch.ID != "pay_1" || ch.Status != domain.ChargePending || ch.PixPayload != "pixcode" {
		t.Fatalf("charge = %+v", ch)
	}
}

func TestGetChargeStatusErrorCarriesHTTPDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"description":"invalid api key"}]}`))
	}))
	defer srv.Close()

	c := &Client{APIKey: "bad", BaseURL: srv.URL, HTTP: srv.Client()}
	_, err := c.GetChargeStatus(context.Background(), "pay_1")
	var ce *gateway.CallError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *gateway.CallError", err)
	}
	if ce.HTTPStatus != http.StatusUnauthorized || ce.Err.Error() != "invalid api key" {
		t.Fatalf("call error = %+v", ce)
	}
}
