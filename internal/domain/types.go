package domain

import (
	"encoding/json"
	"errors"
	"net/url"
	"time"
)

type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryRetrying   DeliveryStatus = "retrying"
	DeliveryDelivered  DeliveryStatus = "delivered"
	DeliveryFailed     DeliveryStatus = "failed"
	DeliveryDeadLetter DeliveryStatus = "dead_letter"
)

type ChargeStatus string

const (
	ChargePending   ChargeStatus = "pending"
	ChargeConfirmed ChargeStatus = "confirmed"
	ChargeOverdue   ChargeStatus = "overdue"
	ChargeCancelled ChargeStatus = "cancelled"
	ChargeRefunded  ChargeStatus = "refunded"
)

// Terminal reports whether a charge can no longer change status.
func (s ChargeStatus) Terminal() bool {
	return s == ChargeConfirmed || s == ChargeCancelled || s == ChargeRefunded
}

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionSuspended SubscriptionStatus = "suspended"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

type DeadLetterStatus string

const (
	DeadLetterPending     DeadLetterStatus = "pending"
	DeadLetterReprocessed DeadLetterStatus = "reprocessed"
)

type PaymentMethod string

const (
	MethodPix    PaymentMethod = "pix"
	MethodBoleto PaymentMethod = "boleto"
	MethodCard   PaymentMethod = "credit_card"
)

var (
	ErrMissingFields = errors.New("missing required fields")
	ErrInvalidTarget = errors.New("invalid target url")
	ErrNotFound      = errors.New("not found")
	ErrInvalidState  = errors.New("invalid state")
)

type SubmitWebhookRequest struct {
	TenantID  string          `json:"tenantId,omitempty"`
	TargetURL string          `json:"targetUrl"`
	EventName string          `json:"eventName"`
	Payload   json.RawMessage `json:"payload"`
}

func (r SubmitWebhookRequest) Validate() error {
	if r.EventName == "" || len(r.Payload) == 0 {
		return ErrMissingFields
	}
	u, err := url.ParseRequestURI(r.TargetURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidTarget
	}
	return nil
}

type SubmitWebhookResponse struct {
	DeliveryID string `json:"deliveryId"`
	Status     string `json:"status"`
}

type CreateChargeRequest struct {
	TenantID    string        `json:"tenantId"`
	AmountCents int64         `json:"amountCents"`
	Description string        `json:"description"`
	Method      PaymentMethod `json:"method"`
	DueDate     *time.Time    `json:"dueDate,omitempty"`
}

func (r CreateChargeRequest) Validate() error {
	if r.TenantID == "" || r.AmountCents <= 0 || r.Method == "" {
		return ErrMissingFields
	}
	return nil
}

type CreateChargeResponse struct {
	ChargeID        string `json:"chargeId"`
	GatewayChargeID string `json:"gatewayChargeId"`
	Status          string `json:"status"`
	DueDate         string `json:"dueDate"`
	PixPayload      string `json:"pixPayload,omitempty"`
	BoletoURL       string `json:"boletoUrl,omitempty"`
}
