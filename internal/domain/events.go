package domain

import "time"

const (
	EventNotificationRequested = "notification.email.requested"
	EventPaymentCompleted      = "facepay.payment.completed"
	EventRepudiationReported   = "facepay.repudiation.reported"
	EventLedgerTamperDetected  = "ledger.tamper.detected"
)

// NotificationEvent asks the notification pipeline to deliver a message to one recipient.
type NotificationEvent struct {
	EventID    string            `json:"event_id"`
	EventType  string            `json:"event_type"`
	Template   string            `json:"template"`
	Recipient  string            `json:"recipient"`
	Name       string            `json:"name"`
	Subject    string            `json:"subject"`
	Data       map[string]string `json:"data"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// PaymentCompletedEvent is published after a FacePay settlement commits.
type PaymentCompletedEvent struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	SessionID     string    `json:"session_id"`
	TransactionID string    `json:"transaction_id"`
	VendorID      string    `json:"vendor_id"`
	CustomerID    string    `json:"customer_id"`
	Amount        int64     `json:"amount"`
	BlockIndex    int64     `json:"block_index"`
	BlockHash     string    `json:"block_hash"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// RepudiationEvent reports a customer disowning a FacePay payment.
type RepudiationEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	SessionID  string    `json:"session_id"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// LedgerTamperEvent is published when a scheduled audit finds an invalid chain.
type LedgerTamperEvent struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	BlocksChecked int       `json:"blocks_checked"`
	InvalidBlocks []int64   `json:"invalid_blocks"`
	OccurredAt    time.Time `json:"occurred_at"`
}
