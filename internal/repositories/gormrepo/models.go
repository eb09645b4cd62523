package gormrepo

import "time"

// QuoteRecordModel is a row of the quote ledger.
type QuoteRecordModel struct {
	ID              string    `gorm:"primaryKey;size:26"`
	QuoteNumber     string    `gorm:"size:16;not null;index"`
	ContractNumber  string    `gorm:"size:16"`
	Folder          string    `gorm:"size:255"`
	ClientName      string    `gorm:"size:255"`
	ClientEmail     string    `gorm:"size:255"`
	DeviceCount     int       `gorm:"not null;default:0"`
	Total           float64   `gorm:"not null;default:0"`
	TravelFee       float64   `gorm:"not null;default:0"`
	ADomicile       bool      `gorm:"column:a_domicile;not null;default:false"`
	AppointmentDate string    `gorm:"size:10"`
	AppointmentSlot string    `gorm:"size:5"`
	Status          string    `gorm:"size:16;not null"`
	Error           string    `gorm:"type:text"`
	QuoteURL        string    `gorm:"column:quote_url;type:text"`
	ContractURL     string    `gorm:"column:contract_url;type:text"`
	CreatedAt       time.Time `gorm:"not null;index"`
}

func (QuoteRecordModel) TableName() string { return "quote_records" }

// CounterModel is a named sequence within a scope.
type CounterModel struct {
	Scope     string    `gorm:"primaryKey;size:64"`
	Name      string    `gorm:"primaryKey;size:64"`
	Value     int64     `gorm:"not null;default:0"`
	Step      int64     `gorm:"not null;default:1"`
	MaxValue  *int64
	UpdatedAt time.Time `gorm:"not null"`
}

func (CounterModel) TableName() string { return "counters" }

// WebhookEventModel records a processed Stripe event id.
type WebhookEventModel struct {
	ID          string    `gorm:"primaryKey;size:255"`
	Type        string    `gorm:"size:128;not null"`
	ProcessedAt time.Time `gorm:"not null"`
}

func (WebhookEventModel) TableName() string { return "webhook_events" }

// SubscriptionModel mirrors a Stripe subscription. Metadata is JSON text.
type SubscriptionModel struct {
	ID            string    `gorm:"primaryKey;size:255"`
	CustomerID    string    `gorm:"size:255"`
	CustomerEmail string    `gorm:"size:255"`
	Status        string    `gorm:"size:64"`
	LastInvoiceID string    `gorm:"size:255"`
	PaymentStatus string    `gorm:"size:64"`
	Metadata      string    `gorm:"type:text"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (SubscriptionModel) TableName() string { return "subscriptions" }

// CheckoutPaymentModel is a completed one-shot checkout session.
type CheckoutPaymentModel struct {
	SessionID     string    `gorm:"primaryKey;size:255"`
	CustomerEmail string    `gorm:"size:255"`
	AmountTotal   int64     `gorm:"not null;default:0"`
	Currency      string    `gorm:"size:8"`
	Status        string    `gorm:"size:64"`
	CompletedAt   time.Time `gorm:"not null"`
}

func (CheckoutPaymentModel) TableName() string { return "checkout_payments" }

// Models lists every table owned by this package, in migration order.
func Models() []any {
	return []any{
		&QuoteRecordModel{},
		&CounterModel{},
		&WebhookEventModel{},
		&SubscriptionModel{},
		&CheckoutPaymentModel{},
	}
}
