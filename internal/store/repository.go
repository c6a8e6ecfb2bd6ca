/**
 * @description
 * This file defines the storage contract for the facepay-service. `Queries` is the set of
 * reads and writes available both on the pool and inside a transaction; `Repository` adds
 * the unit of work used to settle a payment atomically.
 *
 * @dependencies
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain, internal/ledger: domain models and the block type.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/transfa/facepay-service/internal/domain"
	"github.com/transfa/facepay-service/internal/ledger"
)

var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrFaceTemplateNotFound  = errors.New("face template not found")
	ErrSessionNotFound       = errors.New("payment session not found")
	ErrSessionStateConflict  = errors.New("payment session state changed concurrently")
	ErrSessionExpired        = errors.New("payment session expired")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrDuplicateBlockIndex   = errors.New("ledger block index already exists")
	ErrDuplicateFaceTemplate = errors.New("face template already exists")
	ErrDuplicateMobile       = errors.New("an account with this mobile number already exists")
	ErrDuplicateAccount      = errors.New("an account with this account number already exists")
)

// Queries is implemented by the pool-backed repository and by a transaction.
type Queries interface {
	// Accounts
	// CreateAccount returns ErrDuplicateMobile or ErrDuplicateAccount on a uniqueness clash.
	CreateAccount(ctx context.Context, account *domain.Account) error
	FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	FindAccountByMobile(ctx context.Context, mobile string) (*domain.Account, error)
	FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	// DebitAccount subtracts amount only if the balance covers it; otherwise ErrInsufficientFunds.
	DebitAccount(ctx context.Context, id uuid.UUID, amount int64) (int64, error)
	CreditAccount(ctx context.Context, id uuid.UUID, amount int64) (int64, error)

	// Face templates
	FindFaceTemplateByAccountID(ctx context.Context, accountID uuid.UUID) (*domain.FaceTemplate, error)
	UpsertFaceTemplate(ctx context.Context, tmpl *domain.FaceTemplate) error
	SetFaceTemplateActive(ctx context.Context, accountID uuid.UUID, active bool) error

	// Payment sessions
	CreatePaymentSession(ctx context.Context, session *domain.PaymentSession) error
	FindPaymentSession(ctx context.Context, id uuid.UUID) (*domain.PaymentSession, error)
	// TransitionPaymentSession applies update only while the session is still in from and,
	// when update.At is set, not yet expired. A session that moved on returns
	// ErrSessionStateConflict; one that expired returns ErrSessionExpired.
	TransitionPaymentSession(ctx context.Context, id uuid.UUID, from domain.SessionStatus, update domain.SessionUpdate) (*domain.PaymentSession, error)

	// Transactions
	CreateTransaction(ctx context.Context, txn *domain.Transaction) error
	ListTransactionsByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Transaction, error)

	// Ledger
	LatestBlock(ctx context.Context) (*ledger.Block, error)
	InsertBlock(ctx context.Context, block ledger.Block) error
	ListBlocks(ctx context.Context) ([]ledger.Block, error)
}

// Tx is a unit of work. LockLedger serializes ledger appends until the transaction ends.
type Tx interface {
	Queries
	LockLedger(ctx context.Context) error
}

// Repository is the storage surface used by the application services.
type Repository interface {
	Queries
	// WithinTransaction runs fn in one database transaction; any error rolls everything back.
	WithinTransaction(ctx context.Context, fn func(tx Tx) error) error
}
