package billing

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"pharmabill/internal/domain"
	"pharmabill/internal/gateway"
	"pharmabill/internal/store"
)

type fakeStore struct {
	charges       map[string]*store.Charge // by gateway charge id
	subscriptions map[string]*store.Subscription
	tenants       map[string]store.TenantBilling
	extensions    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		charges:       map[string]*store.Charge{},
		subscriptions: map[string]*store.Subscription{},
		tenants:       map[string]store.TenantBilling{},
	}
}

func (f *fakeStore) InsertCharge(ctx context.Context, in store.ChargeInsert) error {
	f.charges[in.GatewayChargeID] = &store.Charge{
		ID: in.ID, TenantID: in.TenantID, AmountCents: in.AmountCents,
		Method: in.Method, Gateway: in.Gateway, GatewayChargeID: in.GatewayChargeID,
		Status: in.Status, DueDate: in.DueDate, CreatedAt: in.Now, UpdatedAt: in.Now,
	}
	return nil
}

func (f *fakeStore) GetChargeByGatewayID(ctx context.Context, id string) (store.Charge, bool, error) {
	c, ok := f.charges[id]
	if !ok {
		return store.Charge{}, false, nil
	}
	return *c, true, nil
}

func (f *fakeStore) ListOpenCharges(ctx context.Context) ([]store.Charge, error) {
	var out []store.Charge
	for _, c := range f.charges {
		if (c.Status == "pending" || c.Status == "overdue") && c.GatewayChargeID != "" {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeStore) findByID(id string) *store.Charge {
	for _, c := range f.charges {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (f *fakeStore) MarkChargeConfirmed(ctx context.Context, id string, now time.Time) (bool, error) {
	c := f.findByID(id)
	if c == nil || (c.Status != "pending" && c.Status != "overdue") {
		return false, nil
	}
	c.Status = "confirmed"
	t := now
	c.ConfirmedAt = &t
	c.PaidAt = &t
	return true, nil
}

func (f *fakeStore) UpdateChargeStatus(ctx context.Context, id, status string, now time.Time) (bool, error) {
	c := f.findByID(id)
	if c == nil || (c.Status != "pending" && c.Status != "overdue") {
		return false, nil
	}
	c.Status = status
	return true, nil
}

func (f *fakeStore) GetSubscription(ctx context.Context, tenantID string) (store.Subscription, bool, error) {
	s, ok := f.subscriptions[tenantID]
	if !ok {
		return store.Subscription{}, false, nil
	}
	return *s, true, nil
}

func (f *fakeStore) ExtendSubscription(ctx context.Context, tenantID string, endDate time.Time, status string, now time.Time) error {
	f.extensions++
	f.subscriptions[tenantID] = &store.Subscription{
		TenantID: tenantID, EndDate: endDate, Status: status, UpdatedAt: now,
	}
	return nil
}

func (f *fakeStore) GetTenantBilling(ctx context.Context, tenantID string) (store.TenantBilling, bool, error) {
	t, ok := f.tenants[tenantID]
	return t, ok, nil
}

type fakeGateway struct {
	name     string
	statuses map[string]domain.ChargeStatus
	errOn    map[string]error
	created  gateway.Charge

	createCalls int
	cancelCalls int
	cancelled   []string
}

func (g *fakeGateway) Name() string { return g.name }

func (g *fakeGateway) CreateCharge(ctx context.Context, req gateway.CreateChargeRequest) (gateway.Charge, error) {
	g.createCalls++
	return g.created, nil
}

func (g *fakeGateway) GetChargeStatus(ctx context.Context, id string) (domain.ChargeStatus, error) {
	if err := g.errOn[id]; err != nil {
		return "", err
	}
	st, ok := g.statuses[id]
	if !ok {
		return "", errors.New("unknown charge at gateway")
	}
	return st, nil
}

func (g *fakeGateway) CancelCharge(ctx context.Context, id string) error {
	g.cancelCalls++
	g.cancelled = append(g.cancelled, id)
	return nil
}

func testService(fs *fakeStore, gw gateway.Gateway, now time.Time) *Service {
	n := 0
	return &Service{
		Store:    fs,
		Gateways: gateway.NewRegistry(gw),
		IDGen: func() string {
			n++
			return "ch_test" + strconv.Itoa(n)
		},
		Now: func() time.Time { return now },
	}
}

func seedCharge(fs *fakeStore, gwName, gwChargeID, status string) {
	fs.charges[gwChargeID] = &store.Charge{
		ID: "ch_" + gwChargeID, TenantID: "t1", AmountCents: 9900,
		Method: "pix", Gateway: gwName, GatewayChargeID: gwChargeID, Status: status,
	}
}

func TestSyncChargeStatusConfirmsOnceAndExtends(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	oldEnd := now.AddDate(0, 0, 10) // still in the future

	fs := newFakeStore()
	seedCharge(fs, "asaas", "pay_1", "pending")
	fs.subscriptions["t1"] = &store.Subscription{TenantID: "t1", EndDate: oldEnd, Status: "active"}

	gw := &fakeGateway{name: "asaas", statuses: map[string]domain.ChargeStatus{"pay_1": domain.ChargeConfirmed}}
	svc := testService(fs, gw, now)

	res, err := svc.SyncChargeStatus(context.Background(), "pay_1")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !res.Changed || res.To != domain.ChargeConfirmed {
		t.Fatalf("result = %+v", res)
	}

	c := fs.charges["pay_1"]
	if c.Status != "confirmed" || c.ConfirmedAt == nil || c.PaidAt == nil {
		t.Fatalf("charge not confirmed: %+v", c)
	}

	wantEnd := oldEnd.AddDate(0, 1, 0) // max(oldEnd, now) + 1 month
	sub := fs.subscriptions["t1"]
	if !sub.EndDate.Equal(wantEnd) {
		t.Fatalf("endDate = %v, want %v", sub.EndDate, wantEnd)
	}
	if fs.extensions != 1 {
		t.Fatalf("extensions = %d, want 1", fs.extensions)
	}

	// second poll with the gateway still reporting confirmed: no-op
	res, err = svc.SyncChargeStatus(context.Background(), "pay_1")
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if res.Changed {
		t.Fatalf("second sync must be a no-op")
	}
	if fs.extensions != 1 {
		t.Fatalf("extensions = %d after second sync, want still 1", fs.extensions)
	}
	if !fs.subscriptions["t1"].EndDate.Equal(wantEnd) {
		t.Fatalf("endDate moved on a no-op sync")
	}
}

func TestSyncLapsedSubscriptionExtendsFromNow(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	fs := newFakeStore()
	seedCharge(fs, "asaas", "pay_2", "overdue")
	fs.subscriptions["t1"] = &store.Subscription{
		TenantID: "t1", EndDate: now.AddDate(0, -2, 0), Status: "expired",
	}

	gw := &fakeGateway{name: "asaas", statuses: map[string]domain.ChargeStatus{"pay_2": domain.ChargeConfirmed}}
	svc := testService(fs, gw, now)

	if _, err := svc.SyncChargeStatus(context.Background(), "pay_2"); err != nil {
		t.Fatalf("sync: %v", err)
	}

	sub := fs.subscriptions["t1"]
	if !sub.EndDate.Equal(now.AddDate(0, 1, 0)) {
		t.Fatalf("endDate = %v, want now+1 month", sub.EndDate)
	}
	if sub.Status != "active" {
		t.Fatalf("status = %s, want active", sub.Status)
	}
}

func TestSyncUnchangedStatusIsNoOp(t *testing.T) {
	fs := newFakeStore()
	seedCharge(fs, "asaas", "pay_3", "pending")
	gw := &fakeGateway{name: "asaas", statuses: map[string]domain.ChargeStatus{"pay_3": domain.ChargePending}}
	svc := testService(fs, gw, time.Now())

	res, err := svc.SyncChargeStatus(context.Background(), "pay_3")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Changed || fs.extensions != 0 {
		t.Fatalf("unchanged status must not write: %+v", res)
	}
}

func TestSyncUnknownChargeIsNotFound(t *testing.T) {
	fs := newFakeStore()
	svc := testService(fs, &fakeGateway{name: "asaas"}, time.Now())

	_, err := svc.SyncChargeStatus(context.Background(), "pay_missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSyncAllChargesCountsErrorsWithoutAborting(t *testing.T) {
	fs := newFakeStore()
	seedCharge(fs, "asaas", "pay_a", "pending")
	seedCharge(fs, "asaas", "pay_b", "pending")
	seedCharge(fs, "asaas", "pay_c", "pending")

	gw := &fakeGateway{
		name: "asaas",
		statuses: map[string]domain.ChargeStatus{
			"pay_a": domain.ChargeConfirmed,
			"pay_c": domain.ChargeOverdue,
		},
		errOn: map[string]error{"pay_b": errors.New("gateway 500")},
	}
	svc := testService(fs, gw, time.Now())

	rep, err := svc.SyncAllCharges(context.Background())
	if err != nil {
		t.Fatalf("sync all: %v", err)
	}
	if rep.Total != 3 || rep.Synced != 2 || rep.Errors != 1 {
		t.Fatalf("report = %+v, want total=3 synced=2 errors=1", rep)
	}
	if fs.charges["pay_a"].Status != "confirmed" || fs.charges["pay_c"].Status != "overdue" {
		t.Fatalf("surviving charges must still sync")
	}
	// errored charge keeps its last known status for the next poll
	if fs.charges["pay_b"].Status != "pending" {
		t.Fatalf("errored charge moved: %s", fs.charges["pay_b"].Status)
	}
}

func TestCancelChargeRejectsConfirmedWithoutGatewayCall(t *testing.T) {
	fs := newFakeStore()
	seedCharge(fs, "asaas", "pay_paid", "confirmed")
	gw := &fakeGateway{name: "asaas"}
	svc := testService(fs, gw, time.Now())

	err := svc.CancelCharge(context.Background(), "pay_paid")
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	if gw.cancelCalls != 0 {
		t.Fatalf("no gateway call may happen for a confirmed charge")
	}
}

func TestCancelChargeCancelsAtGatewayThenLocally(t *testing.T) {
	fs := newFakeStore()
	seedCharge(fs, "asaas", "pay_open", "pending")
	gw := &fakeGateway{name: "asaas"}
	svc := testService(fs, gw, time.Now())

	if err := svc.CancelCharge(context.Background(), "pay_open"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if gw.cancelCalls != 1 || gw.cancelled[0] != "pay_open" {
		t.Fatalf("gateway cancel not called")
	}
	if fs.charges["pay_open"].Status != "cancelled" {
		t.Fatalf("local charge not cancelled: %s", fs.charges["pay_open"].Status)
	}

	// second cancel is InvalidState
	if err := svc.CancelCharge(context.Background(), "pay_open"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("second cancel err = %v, want ErrInvalidState", err)
	}
}

func TestCreateChargePersistsGatewayResult(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	fs := newFakeStore()
	fs.tenants["t1"] = store.TenantBilling{TenantID: "t1", Gateway: "asaas", GatewayCustomerID: "cus_1", Name: "Farmacia Central"}

	gw := &fakeGateway{name: "asaas", created: gateway.Charge{
		ID: "pay_new", Status: domain.ChargePending,
		DueDate: now.AddDate(0, 0, 7), PixPayload: "pix123",
	}}
	svc := testService(fs, gw, now)

	resp, err := svc.CreateCharge(context.Background(), domain.CreateChargeRequest{
		TenantID: "t1", AmountCents: 12990, Method: domain.MethodPix,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if resp.GatewayChargeID != "pay_new" || resp.Status != "pending" || resp.PixPayload != "pix123" {
		t.Fatalf("resp = %+v", resp)
	}
	c := fs.charges["pay_new"]
	if c == nil || c.Gateway != "asaas" || c.AmountCents != 12990 {
		t.Fatalf("charge row = %+v", c)
	}
}

func TestCreateChargeUnknownTenant(t *testing.T) {
	fs := newFakeStore()
	svc := testService(fs, &fakeGateway{name: "asaas"}, time.Now())

	_, err := svc.CreateCharge(context.Background(), domain.CreateChargeRequest{
		TenantID: "nope", AmountCents: 100, Method: domain.MethodPix,
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
