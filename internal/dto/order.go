package dto

import "time"

// OrderStatusResponse is the JSON form of the learner return page.
type OrderStatusResponse struct {
	OrderUID  string    `json:"order_uid"`
	CourseID  string    `json:"course_id"`
	Mode      string    `json:"mode"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConfirmationRequest is the processor webhook body.
type ConfirmationRequest struct {
	OrderUID string `json:"order_uid"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	TxnID    string `json:"txn_id,omitempty"`
}

// Ack acknowledges a processed webhook.
type Ack struct {
	OK bool `json:"ok"`
}

// StaleOrder is one row of the stale PENDING order report.
type StaleOrder struct {
	OrderUID      string    `json:"order_uid"`
	Username      string    `json:"username"`
	CourseID      string    `json:"course_id"`
	Mode          string    `json:"mode"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	ExternalTxnID string    `json:"external_txn_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
