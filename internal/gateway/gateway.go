// Package gateway is the uniform surface over heterogeneous payment
// providers. Each provider client owns its auth and base URL and maps its
// own status vocabulary onto the canonical charge statuses.
package gateway

import (
	"context"
	"fmt"
	"time"

	"pharmabill/internal/domain"
)

type Customer struct {
	ID       string
	Name     string
	Document string
	Email    string
}

type CreateChargeRequest struct {
	AmountCents int64
	Description string
	Method      domain.PaymentMethod
	DueDate     time.Time
	Customer    Customer
}

type Charge struct {
	ID         string
	Status     domain.ChargeStatus
	DueDate    time.Time
	PixPayload string
	BoletoURL  string
}

type Gateway interface {
	Name() string
	CreateCharge(ctx context.Context, req CreateChargeRequest) (Charge, error)
	GetChargeStatus(ctx context.Context, gatewayChargeID string) (domain.ChargeStatus, error)
	CancelCharge(ctx context.Context, gatewayChargeID string) error
}

// CallError carries the HTTP detail of a failed provider call. Callers treat
// any gateway error as retryable-later; the detail is for logs and metrics.
type CallError struct {
	Gateway    string
	Op         string
	HTTPStatus int
	Raw        []byte
	Err        error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Gateway, e.Op, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Registry resolves a charge's stored gateway name to its client.
type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gws ...Gateway) *Registry {
	m := make(map[string]Gateway, len(gws))
	for _, g := range gws {
		m[g.Name()] = g
	}
	return &Registry{gateways: m}
}

func (r *Registry) Resolve(name string) (Gateway, error) {
	g, ok := r.gateways[name]
	if !ok {
		return nil, fmt.Errorf("unknown gateway %q: %w", name, domain.ErrNotFound)
	}
	return g, nil
}
