// Package billing reconciles locally-recorded charges against the payment
// gateways and applies the subscription renewal that follows a confirmed
// payment.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"pharmabill/internal/domain"
	"pharmabill/internal/gateway"
	"pharmabill/internal/observability"
	"pharmabill/internal/store"
	"pharmabill/internal/util"
)

type Store interface {
	InsertCharge(ctx context.Context, in store.ChargeInsert) error
	GetChargeByGatewayID(ctx context.Context, gatewayChargeID string) (store.Charge, bool, error)
	ListOpenCharges(ctx context.Context) ([]store.Charge, error)
	MarkChargeConfirmed(ctx context.Context, id string, now time.Time) (bool, error)
	UpdateChargeStatus(ctx context.Context, id, status string, now time.Time) (bool, error)
	GetSubscription(ctx context.Context, tenantID string) (store.Subscription, bool, error)
	ExtendSubscription(ctx context.Context, tenantID string, endDate time.Time, status string, now time.Time) error
	GetTenantBilling(ctx context.Context, tenantID string) (store.TenantBilling, bool, error)
}

type Service struct {
	Store    Store
	Gateways *gateway.Registry

	// Breaker and Limiter guard every outbound gateway call, the same
	// protection the delivery path gets. Either may be nil in tests.
	Breaker *gobreaker.CircuitBreaker
	Limiter *rate.Limiter

	IDGen func() string
	Now   func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return util.NowUTC()
}

type SyncResult struct {
	Changed bool
	From    domain.ChargeStatus
	To      domain.ChargeStatus
}

type SyncReport struct {
	Total  int `json:"total"`
	Synced int `json:"synced"`
	Errors int `json:"errors"`
}

func (s *Service) CreateCharge(ctx context.Context, req domain.CreateChargeRequest) (domain.CreateChargeResponse, error) {
	if err := req.Validate(); err != nil {
		return domain.CreateChargeResponse{}, err
	}

	tenant, found, err := s.Store.GetTenantBilling(ctx, req.TenantID)
	if err != nil {
		return domain.CreateChargeResponse{}, err
	}
	if !found {
		return domain.CreateChargeResponse{}, fmt.Errorf("tenant %s: %w", req.TenantID, domain.ErrNotFound)
	}

	gw, err := s.Gateways.Resolve(tenant.Gateway)
	if err != nil {
		return domain.CreateChargeResponse{}, err
	}

	now := s.now()
	dueDate := now.AddDate(0, 0, 7)
	if req.DueDate != nil {
		dueDate = *req.DueDate
	}

	created, err := s.callCreate(ctx, gw, gateway.CreateChargeRequest{
		AmountCents: req.AmountCents,
		Description: req.Description,
		Method:      req.Method,
		DueDate:     dueDate,
		Customer: gateway.Customer{
			ID:       tenant.GatewayCustomerID,
			Name:     tenant.Name,
			Document: tenant.Document,
			Email:    tenant.Email,
		},
	})
	if err != nil {
		return domain.CreateChargeResponse{}, err
	}

	meta, _ := json.Marshal(map[string]string{
		"pixPayload": created.PixPayload,
		"boletoUrl":  created.BoletoURL,
	})
	chargeID := s.IDGen()
	if err := s.Store.InsertCharge(ctx, store.ChargeInsert{
		ID:              chargeID,
		TenantID:        req.TenantID,
		AmountCents:     req.AmountCents,
		Method:          string(req.Method),
		Gateway:         gw.Name(),
		GatewayChargeID: created.ID,
		Status:          string(created.Status),
		DueDate:         created.DueDate,
		Metadata:        meta,
		Now:             now,
	}); err != nil {
		return domain.CreateChargeResponse{}, err
	}

	slog.Info("charge created",
		"charge_id", chargeID,
		"tenant_id", req.TenantID,
		"gateway", gw.Name(),
		"gateway_charge_id", created.ID,
		"amount_cents", req.AmountCents,
	)
	return domain.CreateChargeResponse{
		ChargeID:        chargeID,
		GatewayChargeID: created.ID,
		Status:          string(created.Status),
		DueDate:         created.DueDate.Format("2006-01-02"),
		PixPayload:      created.PixPayload,
		BoletoURL:       created.BoletoURL,
	}, nil
}

// SyncChargeStatus polls the gateway for one charge and applies the status
// transition if the gateway disagrees with the local record. The subscription
// extension fires only when the charge actually transitions into confirmed,
// which makes repeated polls of an unchanged charge no-ops.
func (s *Service) SyncChargeStatus(ctx context.Context, gatewayChargeID string) (SyncResult, error) {
	charge, found, err := s.Store.GetChargeByGatewayID(ctx, gatewayChargeID)
	if err != nil {
		return SyncResult{}, err
	}
	if !found {
		return SyncResult{}, fmt.Errorf("charge %s: %w", gatewayChargeID, domain.ErrNotFound)
	}

	current := domain.ChargeStatus(charge.Status)
	if current.Terminal() {
		// the other observer (push vs poll) already won
		return SyncResult{From: current, To: current}, nil
	}

	gw, err := s.Gateways.Resolve(charge.Gateway)
	if err != nil {
		return SyncResult{}, err
	}

	remote, err := s.callGetStatus(ctx, gw, gatewayChargeID)
	if err != nil {
		return SyncResult{}, err
	}

	if remote == current {
		return SyncResult{From: current, To: current}, nil
	}

	now := s.now()
	if remote == domain.ChargeConfirmed {
		applied, err := s.Store.MarkChargeConfirmed(ctx, charge.ID, now)
		if err != nil {
			return SyncResult{}, err
		}
		if applied {
			if err := s.extendSubscription(ctx, charge.TenantID, now); err != nil {
				return SyncResult{}, err
			}
			slog.Info("charge confirmed",
				"charge_id", charge.ID,
				"tenant_id", charge.TenantID,
				"gateway", charge.Gateway,
				"gateway_charge_id", gatewayChargeID,
			)
		}
		return SyncResult{Changed: applied, From: current, To: remote}, nil
	}

	applied, err := s.Store.UpdateChargeStatus(ctx, charge.ID, string(remote), now)
	if err != nil {
		return SyncResult{}, err
	}
	if applied {
		slog.Info("charge status updated",
			"charge_id", charge.ID,
			"gateway_charge_id", gatewayChargeID,
			"from", current,
			"to", remote,
		)
	}
	return SyncResult{Changed: applied, From: current, To: remote}, nil
}

// SyncAllCharges polls every open charge. A failure on one charge is counted
// and the loop continues; the charge keeps its last known status until the
// next scheduled run.
func (s *Service) SyncAllCharges(ctx context.Context) (SyncReport, error) {
	charges, err := s.Store.ListOpenCharges(ctx)
	if err != nil {
		return SyncReport{}, err
	}

	rep := SyncReport{Total: len(charges)}
	for _, c := range charges {
		res, err := s.SyncChargeStatus(ctx, c.GatewayChargeID)
		if err != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			observability.ReconcileCharges.WithLabelValues("error").Inc()
			slog.Error("charge sync failed",
				"charge_id", c.ID,
				"gateway", c.Gateway,
				"gateway_charge_id", c.GatewayChargeID,
				"err", err,
			)
			rep.Errors++
			continue
		}
		if res.Changed {
			observability.ReconcileCharges.WithLabelValues("synced").Inc()
			rep.Synced++
		} else {
			observability.ReconcileCharges.WithLabelValues("unchanged").Inc()
		}
	}

	slog.Info("charge reconciliation finished",
		"total", rep.Total,
		"synced", rep.Synced,
		"errors", rep.Errors,
	)
	return rep, nil
}

// CancelCharge refuses to touch paid or already-cancelled charges; otherwise
// it cancels at the gateway first and only then marks the local row.
func (s *Service) CancelCharge(ctx context.Context, gatewayChargeID string) error {
	charge, found, err := s.Store.GetChargeByGatewayID(ctx, gatewayChargeID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("charge %s: %w", gatewayChargeID, domain.ErrNotFound)
	}

	switch domain.ChargeStatus(charge.Status) {
	case domain.ChargeConfirmed:
		return fmt.Errorf("cannot cancel a confirmed charge: %w", domain.ErrInvalidState)
	case domain.ChargeCancelled:
		return fmt.Errorf("charge already cancelled: %w", domain.ErrInvalidState)
	case domain.ChargeRefunded:
		return fmt.Errorf("cannot cancel a refunded charge: %w", domain.ErrInvalidState)
	}

	gw, err := s.Gateways.Resolve(charge.Gateway)
	if err != nil {
		return err
	}
	if err := s.callCancel(ctx, gw, gatewayChargeID); err != nil {
		return err
	}

	if _, err := s.Store.UpdateChargeStatus(ctx, charge.ID, string(domain.ChargeCancelled), s.now()); err != nil {
		return err
	}
	slog.Info("charge cancelled", "charge_id", charge.ID, "gateway_charge_id", gatewayChargeID)
	return nil
}

// extendSubscription renews one billing cycle: the new end date is one month
// past the current end date, or past now when the subscription had lapsed.
// Callers must only invoke it on an observed pending/overdue -> confirmed
// transition; that calling guard is what keeps renewals from double-applying.
func (s *Service) extendSubscription(ctx context.Context, tenantID string, now time.Time) error {
	sub, found, err := s.Store.GetSubscription(ctx, tenantID)
	if err != nil {
		return err
	}

	base := now
	if found && sub.EndDate.After(now) {
		base = sub.EndDate
	}
	newEnd := base.AddDate(0, 1, 0)

	if err := s.Store.ExtendSubscription(ctx, tenantID, newEnd, string(domain.SubscriptionActive), now); err != nil {
		return err
	}
	observability.SubscriptionExtensions.Inc()
	slog.Info("subscription extended",
		"tenant_id", tenantID,
		"new_end_date", newEnd,
	)
	return nil
}

// --- gateway call plumbing (limiter + breaker + metrics) ---

func (s *Service) execute(ctx context.Context, gw gateway.Gateway, op string, call func() (any, error)) (any, error) {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	var out any
	var err error
	if s.Breaker != nil {
		out, err = s.Breaker.Execute(call)
	} else {
		out, err = call()
	}
	observability.GatewayLatency.Observe(time.Since(start).Seconds())

	result := "ok"
	if err != nil {
		result = "error"
	}
	observability.GatewayRequests.WithLabelValues(gw.Name(), op, result).Inc()
	return out, err
}

func (s *Service) callCreate(ctx context.Context, gw gateway.Gateway, req gateway.CreateChargeRequest) (gateway.Charge, error) {
	out, err := s.execute(ctx, gw, "create_charge", func() (any, error) {
		return gw.CreateCharge(ctx, req)
	})
	if err != nil {
		return gateway.Charge{}, err
	}
	return out.(gateway.Charge), nil
}

func (s *Service) callGetStatus(ctx context.Context, gw gateway.Gateway, gatewayChargeID string) (domain.ChargeStatus, error) {
	out, err := s.execute(ctx, gw, "get_charge_status", func() (any, error) {
		return gw.GetChargeStatus(ctx, gatewayChargeID)
	})
	if err != nil {
		return "", err
	}
	return out.(domain.ChargeStatus), nil
}

func (s *Service) callCancel(ctx context.Context, gw gateway.Gateway, gatewayChargeID string) error {
	_, err := s.execute(ctx, gw, "cancel_charge", func() (any, error) {
		return nil, gw.CancelCharge(ctx, gatewayChargeID)
	})
	return err
}
