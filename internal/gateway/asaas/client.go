package asaas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pharmabill/internal/domain"
	"pharmabill/internal/gateway"
)

const Name = "asaas"

type Client struct {
	APIKey  string
	BaseURL string
	HTTP    *http.Client
}

func (c *Client) Name() string { return Name }

type chargeRequest struct {
	Customer    string `json:"customer"`
	BillingType string `json:"billingType"`
	Value       string `json:"value"`
	DueDate     string `json:"dueDate"`
	Description string `json:"description,omitempty"`
}

type chargeResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	DueDate     string `json:"dueDate"`
	PixPayload  string `json:"pixQrCodePayload"`
	BankSlipURL string `json:"bankSlipUrl"`
	Errors      []struct {
		Description string `json:"description"`
	} `json:"errors"`
}

func billingType(m domain.PaymentMethod) string {
	switch m {
	case domain.MethodPix:
		return "PIX"
	case domain.MethodBoleto:
		return "BOLETO"
	case domain.MethodCard:
		return "CREDIT_CARD"
	default:
		return "UNDEFINED"
	}
}

// mapStatus translates the Asaas payment status vocabulary onto the
// canonical charge statuses.
func mapStatus(s string) (domain.ChargeStatus, error) {
	switch s {
	case "PENDING", "AWAITING_RISK_ANALYSIS":
		return domain.ChargePending, nil
	case "CONFIRMED", "RECEIVED", "RECEIVED_IN_CASH":
		return domain.ChargeConfirmed, nil
	case "OVERDUE":
		return domain.ChargeOverdue, nil
	case "DELETED", "PAYMENT_DELETED":
		return domain.ChargeCancelled, nil
	case "REFUNDED", "REFUND_REQUESTED":
		return domain.ChargeRefunded, nil
	default:
		return "", fmt.Errorf("unmapped asaas status %q", s)
	}
}

func (c *Client) CreateCharge(ctx context.Context, req gateway.CreateChargeRequest) (gateway.Charge, error) {
	body := chargeRequest{
		Customer:    req.Customer.ID,
		BillingType: billingType(req.Method),
		Value:       fmt.Sprintf("%d.%02d", req.AmountCents/100, req.AmountCents%100),
		DueDate:     req.DueDate.Format("2006-01-02"),
		Description: req.Description,
	}
	var out chargeResponse
	if err := c.do(ctx, "create_charge", http.MethodPost, "/v3/payments", body, &out); err != nil {
		return gateway.Charge{}, err
	}

	status, err := mapStatus(out.Status)
	if err != nil {
		return gateway.Charge{}, &gateway.CallError{Gateway: Name, Op: "create_charge", Err: err}
	}
	due, _ := time.Parse("2006-01-02", out.DueDate)
	return gateway.Charge{
		ID:         out.ID,
		Status:     status,
		DueDate:    due,
		PixPayload: out.PixPayload,
		BoletoURL:  out.BankSlipURL,
	}, nil
}

func (c *Client) GetChargeStatus(ctx context.Context, gatewayChargeID string) (domain.ChargeStatus, error) {
	var out chargeResponse
	if err := c.do(ctx, "get_charge_status", http.MethodGet, "/v3/payments/"+gatewayChargeID, nil, &out); err != nil {
		return "", err
	}
	status, err := mapStatus(out.Status)
	if err != nil {
		return "", &gateway.CallError{Gateway: Name, Op: "get_charge_status", Err: err}
	}
	return status, nil
}

func (c *Client) CancelCharge(ctx context.Context, gatewayChargeID string) error {
	return c.do(ctx, "cancel_charge", http.MethodDelete, "/v3/payments/"+gatewayChargeID, nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	baseURL := strings.TrimRight(c.BaseURL, "/")
	httpReq, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("access_token", c.APIKey)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return &gateway.CallError{Gateway: Name, Op: op, Err: err}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errOut chargeResponse
		_ = json.Unmarshal(raw, &errOut)
		msg := "asaas request failed"
		if len(errOut.Errors) > 0 && errOut.Errors[0].Description != "" {
			msg = errOut.Errors[0].Description
		}
		return &gateway.CallError{Gateway: Name, Op: op, HTTPStatus: resp.StatusCode, Raw: raw, Err: errors.New(msg)}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &gateway.CallError{Gateway: Name, Op: op, HTTPStatus: resp.StatusCode, Raw: raw, Err: err}
		}
	}
	return nil
}
