package infinitypay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"pharmabill/internal/domain"
)

func TestMapStatus(t *testing.T) {
	cases := map[string]domain.ChargeStatus{
		"pending":         domain.ChargePending,
		"waiting_payment": domain.ChargePending,
		"paid":            domain.ChargeConfirmed,
		"expired":         domain.ChargeOverdue,
		"canceled":        domain.ChargeCancelled,
		"refunded":        domain.ChargeRefunded,
		"chargeback":      domain.ChargeRefunded,
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

	if _, err := mapStatus("wat"); err == nil {
		t.Fatalf("unknown vendor status must be an error")
	}
}

func TestGetChargeStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/charges/chg_9" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Fatalf("missing bearer token")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "chg_9", "status": "paid"})
	}))
	defer srv.Close()

	c := &Client{APIKey: "tok", BaseURL: srv.URL, HTTP: srv.Client()}
	st, err := c.GetChargeStatus(context.Background(), "chg_9")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if st != domain.ChargeConfirmed {
		t.Fatalf("status = %s, want confirmed", st)
	}
}

func TestCancelCharge(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := &Client{APIKey: "tok", BaseURL: srv.URL, HTTP: srv.Client()}
	if err := c.CancelCharge(context.Background(), "chg_9"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if path != "/v2/charges/chg_9/cancel" {
		t.Fatalf("path = %s", path)
	}
}
