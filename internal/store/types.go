package store

import "time"

type Delivery struct {
	ID          string
	TenantID    string
	TargetURL   string
	EventName   string
	Payload     []byte
	Status      string
	Attempts    int
	LastError   string
	NextRetryAt *time.Time
	DeliveredAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type DeliveryInsert struct {
	ID        string
	TenantID  string
	TargetURL string
	EventName string
	Payload   []byte
	Status    string
	Now       time.Time
}

type DeliveryRetryUpdate struct {
	ID          string
	Attempts    int
	LastError   string
	NextRetryAt time.Time
	Now         time.Time
}

type DeliveryFailUpdate struct {
	ID        string
	Attempts  int
	LastError string
	Now       time.Time
}

type DeadLetter struct {
	ID          string
	Kind        string
	DeliveryID  string
	TenantID    string
	TargetURL   string
	EventName   string
	Payload     []byte
	Reason      string
	Status      string
	ProcessedAt *time.Time
	CreatedAt   time.Time
}

type DeadLetterInsert struct {
	ID         string
	Kind       string
	DeliveryID string
	TenantID   string
	TargetURL  string
	EventName  string
	Payload    []byte
	Reason     string
	Now        time.Time
}

type Charge struct {
	ID              string
	TenantID        string
	AmountCents     int64
	Method          string
	Gateway         string
	GatewayChargeID string
	Status          string
	DueDate         time.Time
	ConfirmedAt     *time.Time
	PaidAt          *time.Time
	Metadata        []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type ChargeInsert struct {
	ID              string
	TenantID        string
	AmountCents     int64
	Method          string
	Gateway         string
	GatewayChargeID string
	Status          string
	DueDate         time.Time
	Metadata        []byte
	Now             time.Time
}

type Subscription struct {
	TenantID  string
	EndDate   time.Time
	Status    string
	UpdatedAt time.Time
}

type TenantBilling struct {
	TenantID          string
	Gateway           string
	GatewayCustomerID string
	Name              string
	Document          string
	Email             string
}

type GatewayEventInsert struct {
	Gateway         string
	GatewayChargeID string
	VendorStatus    string
	Payload         any
	OccurredAt      *time.Time
}
