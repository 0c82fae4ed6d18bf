package infinitypay

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

const Name = "infinitypay"

type Client struct {
	APIKey  string
	BaseURL string
	HTTP    *http.Client
}

func (c *Client) Name() string { return Name }

type chargeRequest struct {
	CustomerID    string `json:"customer_id"`
	PaymentMethod string `json:"payment_method"`
	AmountCents   int64  `json:"amount"`
	DueDate       string `json:"due_date"`
	Description   string `json:"description,omitempty"`
}

type chargeResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	DueDate      string `json:"due_date"`
	PixCopyPaste string `json:"pix_copy_paste"`
	BoletoURL    string `json:"boleto_url"`
	Message      string `json:"message"`
}

func paymentMethod(m domain.PaymentMethod) string {
	switch m {
	case domain.MethodPix:
		return "pix"
	case domain.MethodBoleto:
		return "boleto"
	case domain.MethodCard:
		return "credit_card"
	default:
		return string(m)
	}
}

func mapStatus(s string) (domain.ChargeStatus, error) {
	switch s {
	case "pending", "processing", "waiting_payment":
		return domain.ChargePending, nil
	case "paid", "authorized":
		return domain.ChargeConfirmed, nil
	case "expired", "overdue":
		return domain.ChargeOverdue, nil
	case "canceled", "cancelled", "voided":
		return domain.ChargeCancelled, nil
	case "refunded", "chargeback":
		return domain.ChargeRefunded, nil
	default:
		return "", fmt.Errorf("unmapped infinitypay status %q", s)
	}
}

func (c *Client) CreateCharge(ctx context.Context, req gateway.CreateChargeRequest) (gateway.Charge, error) {
	body := chargeRequest{
		CustomerID:    req.Customer.ID,
		PaymentMethod: paymentMethod(req.Method),
		AmountCents:   req.AmountCents,
		DueDate:       req.DueDate.Format("2006-01-02"),
		Description:   req.Description,
	}
	var out chargeResponse
	if err := c.do(ctx, "create_charge", http.MethodPost, "/v2/charges", body, &out); err != nil {
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
		PixPayload: out.PixCopyPaste,
		BoletoURL:  out.BoletoURL,
	}, nil
}

func (c *Client) GetChargeStatus(ctx context.Context, gatewayChargeID string) (domain.ChargeStatus, error) {
	var out chargeResponse
	if err := c.do(ctx, "get_charge_status", http.MethodGet, "/v2/charges/"+gatewayChargeID, nil, &out); err != nil {
		return "", err
	}
	status, err := mapStatus(out.Status)
	if err != nil {
		return "", &gateway.CallError{Gateway: Name, Op: "get_charge_status", Err: err}
	}
	return status, nil
}

func (c *Client) CancelCharge(ctx context.Context, gatewayChargeID string) error {
	return c.do(ctx, "cancel_charge", http.MethodPost, "/v2/charges/"+gatewayChargeID+"/cancel", nil, nil)
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
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return &gateway.CallError{Gateway: Name, Op: op, Err: err}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errOut chargeResponse
		_ = json.Unmarshal(raw, &errOut)
		msg := "infinitypay request failed"
		if errOut.Message != "" {
			msg = errOut.Message
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
