package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// OrderStatus is the lifecycle state of a payment order.
type OrderStatus string

const (
	OrderPending  OrderStatus = "PENDING"
	OrderPaid     OrderStatus = "PAID"
	OrderFailed   OrderStatus = "FAILED"
	OrderCanceled OrderStatus = "CANCELED"
)

// DefaultMode is the enrollment mode used when none is requested.
const DefaultMode = "verified"

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderPaid, OrderFailed, OrderCanceled:
		return true
	default:
		return false
	}
}

// Order is one attempted purchase of a course enrollment mode.
type Order struct {
	bun.BaseModel `bun:"table:payment_orders,alias:o"`

	ID             int64           `bun:",pk,autoincrement" json:"-"`
	UID            uuid.UUID       `bun:"uid,type:uuid,notnull,unique" json:"uid"`
	UserID         int64           `bun:"user_id,notnull" json:"user_id"`
	Username       string          `bun:"username,notnull" json:"username"`
	CourseID       string          `bun:"course_id,notnull" json:"course_id"`
	Mode           string          `bun:"mode,notnull" json:"mode"`
	Amount         decimal.Decimal `bun:"amount,type:numeric(12,2),notnull" json:"amount"`
	Currency       string          `bun:"currency,notnull" json:"currency"`
	Status         OrderStatus     `bun:"status,notnull" json:"status"`
	Provider       string          `bun:"provider,notnull" json:"provider"`
	ExternalTxnID  string          `bun:"external_txn_id,notnull" json:"external_txn_id"`
	IdempotencyKey string          `bun:"idempotency_key,notnull" json:"-"`
	CreatedAt      time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt      time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// AmountString renders the amount the way it travels on the wire: two decimal places.
func (o *Order) AmountString() string {
	return o.Amount.StringFixed(2)
}
