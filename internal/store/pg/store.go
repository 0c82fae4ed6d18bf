package pg

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pharmabill/internal/store"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// --- webhook deliveries ---

func (s *Store) InsertDelivery(ctx context.Context, in store.DeliveryInsert) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO webhook_deliveries (id, tenant_id, target_url, event_name, payload, status, attempts, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,0,$7,$7)
	`, in.ID, nullIfEmpty(in.TenantID), in.TargetURL, in.EventName, in.Payload, in.Status, in.Now)
	return err
}

func (s *Store) GetDelivery(ctx context.Context, id string) (store.Delivery, bool, error) {
	var d store.Delivery
	row := s.DB.QueryRow(ctx, `
		SELECT id, COALESCE(tenant_id,''), target_url, event_name, payload, status, attempts,
		       COALESCE(last_error,''), next_retry_at, delivered_at, created_at, updated_at
		FROM webhook_deliveries WHERE id=$1
	`, id)
	err := row.Scan(&d.ID, &d.TenantID, &d.TargetURL, &d.EventName, &d.Payload, &d.Status, &d.Attempts,
		&d.LastError, &d.NextRetryAt, &d.DeliveredAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return store.Delivery{}, false, nil
		}
		return store.Delivery{}, false, err
	}
	return d, true, nil
}

// ClaimDelivery attempts to move a delivery into retrying for this worker.
// It allows reclaiming if the delivery is still "retrying" but stale, which
// means the loop that held it died mid-backoff.
func (s *Store) ClaimDelivery(ctx context.Context, id string, now time.Time, staleAfter time.Duration) (bool, error) {
	staleBefore := now.Add(-staleAfter)
	ct, err := s.DB.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status='retrying', updated_at=$2
		WHERE id=$1 AND (status='pending' OR (status='retrying' AND updated_at < $3))
	`, id, now, staleBefore)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) MarkDeliveryRetrying(ctx context.Context, in store.DeliveryRetryUpdate) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status='retrying', attempts=$2, last_error=$3, next_retry_at=$4, updated_at=$5
		WHERE id=$1
	`, in.ID, in.Attempts, nullIfEmpty(in.LastError), in.NextRetryAt, in.Now)
	return err
}

func (s *Store) MarkDeliveryDelivered(ctx context.Context, id string, attempts int, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status='delivered', attempts=$2, last_error=NULL, next_retry_at=NULL, delivered_at=$3, updated_at=$3
		WHERE id=$1
	`, id, attempts, now)
	return err
}

func (s *Store) MarkDeliveryFailed(ctx context.Context, in store.DeliveryFailUpdate) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status='failed', attempts=$2, last_error=$3, next_retry_at=NULL, updated_at=$4
		WHERE id=$1
	`, in.ID, in.Attempts, nullIfEmpty(in.LastError), in.Now)
	return err
}

func (s *Store) MarkDeliveryDeadLetter(ctx context.Context, id string, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE webhook_deliveries SET status='dead_letter', next_retry_at=NULL, updated_at=$2 WHERE id=$1
	`, id, now)
	return err
}

// --- dead letters ---

func (s *Store) InsertDeadLetter(ctx context.Context, in store.DeadLetterInsert) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO dead_letters (id, kind, delivery_id, tenant_id, target_url, event_name, payload, reason, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'pending',$9)
	`, in.ID, in.Kind, in.DeliveryID, nullIfEmpty(in.TenantID), in.TargetURL, in.EventName, in.Payload, in.Reason, in.Now)
	return err
}

func (s *Store) ListPendingDeadLetters(ctx context.Context, limit int) ([]store.DeadLetter, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, kind, delivery_id, COALESCE(tenant_id,''), target_url, event_name, payload,
		       reason, status, processed_at, created_at
		FROM dead_letters
		WHERE processed_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.DeadLetter
	for rows.Next() {
		var d store.DeadLetter
		if err := rows.Scan(&d.ID, &d.Kind, &d.DeliveryID, &d.TenantID, &d.TargetURL, &d.EventName,
			&d.Payload, &d.Reason, &d.Status, &d.ProcessedAt, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// MarkDeadLetterReprocessed flips a pending entry exactly once; a second call
// for the same id matches no rows.
func (s *Store) MarkDeadLetterReprocessed(ctx context.Context, id string, now time.Time) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE dead_letters SET status='reprocessed', processed_at=$2
		WHERE id=$1 AND processed_at IS NULL
	`, id, now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) CountPendingDeadLetters(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letters WHERE processed_at IS NULL`).Scan(&n)
	return n, err
}

func (s *Store) DeleteReprocessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := s.DB.Exec(ctx, `
		DELETE FROM dead_letters WHERE status='reprocessed' AND processed_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// --- charges ---

func (s *Store) InsertCharge(ctx context.Context, in store.ChargeInsert) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO charges (id, tenant_id, amount_cents, method, gateway, gateway_charge_id, status, due_date, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
	`, in.ID, in.TenantID, in.AmountCents, in.Method, in.Gateway, in.GatewayChargeID, in.Status, in.DueDate, in.Metadata, in.Now)
	return err
}

func (s *Store) GetChargeByGatewayID(ctx context.Context, gatewayChargeID string) (store.Charge, bool, error) {
	var c store.Charge
	row := s.DB.QueryRow(ctx, `
		SELECT id, tenant_id, amount_cents, method, gateway, gateway_charge_id, status, due_date,
		       confirmed_at, paid_at, COALESCE(metadata,'{}'), created_at, updated_at
		FROM charges WHERE gateway_charge_id=$1
	`, gatewayChargeID)
	err := row.Scan(&c.ID, &c.TenantID, &c.AmountCents, &c.Method, &c.Gateway, &c.GatewayChargeID,
		&c.Status, &c.DueDate, &c.ConfirmedAt, &c.PaidAt, &c.Metadata, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return store.Charge{}, false, nil
		}
		return store.Charge{}, false, err
	}
	return c, true, nil
}

func (s *Store) ListOpenCharges(ctx context.Context) ([]store.Charge, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, tenant_id, amount_cents, method, gateway, gateway_charge_id, status, due_date,
		       confirmed_at, paid_at, COALESCE(metadata,'{}'), created_at, updated_at
		FROM charges
		WHERE status IN ('pending','overdue') AND gateway_charge_id <> ''
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Charge
	for rows.Next() {
		var c store.Charge
		if err := rows.Scan(&c.ID, &c.TenantID, &c.AmountCents, &c.Method, &c.Gateway, &c.GatewayChargeID,
			&c.Status, &c.DueDate, &c.ConfirmedAt, &c.PaidAt, &c.Metadata, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkChargeConfirmed is the one-shot confirmation transition. The status
// guard makes concurrent observers (poll vs push) race safely: only the
// first caller sees RowsAffected > 0 and may extend the subscription.
func (s *Store) MarkChargeConfirmed(ctx context.Context, id string, now time.Time) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE charges
		SET status='confirmed', confirmed_at=$2, paid_at=$2, updated_at=$2
		WHERE id=$1 AND status IN ('pending','overdue')
	`, id, now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// UpdateChargeStatus applies a non-confirmation transition; terminal charges
// are never moved backwards.
func (s *Store) UpdateChargeStatus(ctx context.Context, id, status string, now time.Time) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE charges SET status=$2, updated_at=$3
		WHERE id=$1 AND status IN ('pending','overdue')
	`, id, status, now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// --- subscriptions / tenants ---

func (s *Store) GetSubscription(ctx context.Context, tenantID string) (store.Subscription, bool, error) {
	var sub store.Subscription
	row := s.DB.QueryRow(ctx, `
		SELECT tenant_id, end_date, status, updated_at FROM subscriptions WHERE tenant_id=$1
	`, tenantID)
	err := row.Scan(&sub.TenantID, &sub.EndDate, &sub.Status, &sub.UpdatedAt)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return store.Subscription{}, false, nil
		}
		return store.Subscription{}, false, err
	}
	return sub, true, nil
}

// ExtendSubscription writes the new end date to the subscription row and
// mirrors it onto the tenant row in one transaction.
func (s *Store) ExtendSubscription(ctx context.Context, tenantID string, endDate time.Time, status string, now time.Time) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO subscriptions (tenant_id, end_date, status, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (tenant_id)
		DO UPDATE SET end_date=$2, status=$3, updated_at=$4
	`, tenantID, endDate, status, now)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE tenants SET subscription_end_date=$2, subscription_status=$3, updated_at=$4 WHERE id=$1
	`, tenantID, endDate, status, now)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) GetTenantBilling(ctx context.Context, tenantID string) (store.TenantBilling, bool, error) {
	var t store.TenantBilling
	row := s.DB.QueryRow(ctx, `
		SELECT id, gateway, COALESCE(gateway_customer_id,''), name, COALESCE(document,''), COALESCE(email,'')
		FROM tenants WHERE id=$1
	`, tenantID)
	err := row.Scan(&t.TenantID, &t.Gateway, &t.GatewayCustomerID, &t.Name, &t.Document, &t.Email)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return store.TenantBilling{}, false, nil
		}
		return store.TenantBilling{}, false, err
	}
	return t, true, nil
}

// --- inbound gateway events ---

func (s *Store) InsertGatewayEvent(ctx context.Context, in store.GatewayEventInsert) error {
	b, _ := json.Marshal(in.Payload)
	_, err := s.DB.Exec(ctx, `
		INSERT INTO gateway_events (gateway, gateway_charge_id, vendor_status, payload_json, occurred_at)
		VALUES ($1,$2,$3,$4,$5)
	`, in.Gateway, in.GatewayChargeID, in.VendorStatus, b, in.OccurredAt)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
