/**
 * @description
 * This file defines the core domain models for the facepay-service: accounts, settled
 * transactions and the record shape each transaction takes inside a ledger block.
 *
 * @notes
 * - Amounts are `int64` in the smallest currency unit, which keeps ledger records free of
 *   floating-point formatting and makes their canonical JSON reproducible.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	AccountTypeCustomer = "customer"
	AccountTypeVendor   = "vendor"
)

const (
	PaymentMethodFacePay  = "facepay"
	PaymentMethodTransfer = "transfer"
	PaymentMethodDeposit  = "deposit"

	TransactionStatusCompleted = "completed"
)

// CashAccountNumber is the counterparty recorded for deposits.
const CashAccountNumber = "CASH"

// Account is a customer or vendor bank account.
type Account struct {
	ID            uuid.UUID `json:"id"`
	AccountNumber string    `json:"account_number"`
	AccountType   string    `json:"account_type"`
	Name          string    `json:"name"`
	Mobile        string    `json:"mobile"`
	Email         string    `json:"email"`
	LoginPINHash  string    `json:"-"`
	Balance       int64     `json:"balance"`
	CreatedAt     time.Time `json:"created_at"`
}

// IsVendor reports whether the account may run FacePay sessions.
func (a Account) IsVendor() bool {
	return a.AccountType == AccountTypeVendor
}

// Transaction is an immutable record of a completed funds movement.
type Transaction struct {
	ID                    uuid.UUID  `json:"id"`
	SenderID              uuid.UUID  `json:"sender_id"`
	ReceiverID            uuid.UUID  `json:"receiver_id"`
	SenderAccountNumber   string     `json:"sender_account_number"`
	ReceiverAccountNumber string     `json:"receiver_account_number"`
	Amount                int64      `json:"amount"`
	Remarks               string     `json:"remarks"`
	PaymentMethod         string     `json:"payment_method"`
	SessionID             *uuid.UUID `json:"session_id,omitempty"`
	Status                string     `json:"status"`
	CreatedAt             time.Time  `json:"created_at"`
}

// LedgerRecord is the form a transaction takes inside a block's batch.
type LedgerRecord struct {
	TransactionID         string `json:"transaction_id"`
	SenderAccountNumber   string `json:"sender_account_number"`
	ReceiverAccountNumber string `json:"receiver_account_number"`
	Amount                int64  `json:"amount"`
	Remarks               string `json:"remarks"`
	PaymentMethod         string `json:"payment_method"`
	Status                string `json:"status"`
	Timestamp             string `json:"timestamp"`
}

// LedgerRecord projects the transaction into its ledger shape.
func (t Transaction) LedgerRecord() LedgerRecord {
	return LedgerRecord{
		TransactionID:         t.ID.String(),
		SenderAccountNumber:   t.SenderAccountNumber,
		ReceiverAccountNumber: t.ReceiverAccountNumber,
		Amount:                t.Amount,
		Remarks:               t.Remarks,
		PaymentMethod:         t.PaymentMethod,
		Status:                t.Status,
		Timestamp:             t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
