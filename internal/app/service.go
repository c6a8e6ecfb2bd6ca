/**
 * @description
 * This file contains the core wiring for the facepay-service business logic. The `Service`
 * struct coordinates the repository, the biometric and PIN envelopes, the similarity scorer,
 * the ledger and the event publisher.
 *
 * Key features:
 * - FacePay sessions: a vendor-driven state machine that ends in an atomic settlement.
 * - FacePay registration, status, toggle and repudiation for customers.
 * - Account-to-account transfers and deposits settled through the same unit of work.
 * - Account opening, balance and dashboard reads.
 * - Every settlement appends a block to the ledger inside its database transaction.
 *
 * @dependencies
 * - internal/store, internal/ledger: persistence and the block chain.
 * - pkg/similarity, pkg/rabbitmq: scoring and event publishing.
 */

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/facepay-service/internal/domain"
	"github.com/transfa/facepay-service/internal/ledger"
	"github.com/transfa/facepay-service/internal/store"
	"github.com/transfa/facepay-service/pkg/rabbitmq"
	"github.com/transfa/facepay-service/pkg/similarity"
)

// EmbeddingGenerator turns a face image into a fixed-length vector.
type EmbeddingGenerator interface {
	GenerateEmbedding(ctx context.Context, image []byte) ([]float32, error)
}

// TemplateCipher protects face embeddings at rest.
type TemplateCipher interface {
	EncryptEmbedding(vec []float32) (string, error)
	DecryptEmbedding(encoded string) ([]float32, error)
}

// PINCipher protects FacePay PINs in a server-recoverable form.
type PINCipher interface {
	EncryptPIN(pin string) (string, error)
	DecryptPIN(encoded string) (string, error)
}

// Dependencies are the collaborators the Service is built from.
type Dependencies struct {
	Repo      store.Repository
	Embedder  EmbeddingGenerator
	Templates TemplateCipher
	PINs      PINCipher
	Scorer    similarity.Scorer
	Ledger    *ledger.Ledger
	Notifier  Notifier
	Events    rabbitmq.Publisher
	Limiter   VerificationLimiter
	Tokens    *TokenIssuer
	Clock     func() time.Time
}

// Settings are the tunables read from configuration.
type Settings struct {
	SessionTTL          time.Duration
	DefaultFacePayLimit int64
	FrontendURL         string
}

// Service provides the core business logic for FacePay payments and transfers.
type Service struct {
	repo      store.Repository
	embedder  EmbeddingGenerator
	templates TemplateCipher
	pins      PINCipher
	scorer    similarity.Scorer
	ledger    *ledger.Ledger
	notifier  Notifier
	events    rabbitmq.Publisher
	limiter   VerificationLimiter
	tokens    *TokenIssuer
	now       func() time.Time
	settings  Settings
}

// NewService creates a new facepay service instance.
func NewService(deps Dependencies, settings Settings) *Service {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	l := deps.Ledger
	if l == nil {
		l = ledger.NewWithClock(now)
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = LogNotifier{}
	}
	events := deps.Events
	if events == nil {
		events = &rabbitmq.EventProducerFallback{}
	}
	if settings.SessionTTL <= 0 {
		settings.SessionTTL = 15 * time.Minute
	}
	return &Service{
		repo:      deps.Repo,
		embedder:  deps.Embedder,
		templates: deps.Templates,
		pins:      deps.PINs,
		scorer:    deps.Scorer,
		ledger:    l,
		notifier:  notifier,
		events:    events,
		limiter:   deps.Limiter,
		tokens:    deps.Tokens,
		now:       now,
		settings:  settings,
	}
}

// settlement is the outcome of one funds movement.
type settlement struct {
	Transaction *domain.Transaction
	Block       ledger.Block
	Sender      *domain.Account
	Receiver    *domain.Account
}

// moveFunds debits sender, credits receiver, records the transaction and appends a block.
// It must run inside a unit of work so every step commits or rolls back together.
func (s *Service) moveFunds(ctx context.Context, tx store.Tx, sender, receiver *domain.Account, amount int64, remarks, method string, sessionID *uuid.UUID, txnID uuid.UUID) (*settlement, error) {
	if err := tx.LockLedger(ctx); err != nil {
		return nil, err
	}
	if _, err := tx.DebitAccount(ctx, sender.ID, amount); err != nil {
		return nil, fmt.Errorf("debit sender: %w", err)
	}
	if _, err := tx.CreditAccount(ctx, receiver.ID, amount); err != nil {
		return nil, fmt.Errorf("credit receiver: %w", err)
	}

	txn := &domain.Transaction{
		ID:                    txnID,
		SenderID:              sender.ID,
		ReceiverID:            receiver.ID,
		SenderAccountNumber:   sender.AccountNumber,
		ReceiverAccountNumber: receiver.AccountNumber,
		Amount:                amount,
		Remarks:               remarks,
		PaymentMethod:         method,
		SessionID:             sessionID,
		Status:                domain.TransactionStatusCompleted,
		CreatedAt:             s.now().UTC().Truncate(time.Microsecond),
	}
	block, err := s.recordTransaction(ctx, tx, txn)
	if err != nil {
		return nil, err
	}
	return &settlement{Transaction: txn, Block: block, Sender: sender, Receiver: receiver}, nil
}

// recordTransaction stores txn and appends its ledger block. The caller holds the ledger lock.
func (s *Service) recordTransaction(ctx context.Context, tx store.Tx, txn *domain.Transaction) (ledger.Block, error) {
	if err := tx.CreateTransaction(ctx, txn); err != nil {
		return ledger.Block{}, fmt.Errorf("create transaction: %w", err)
	}
	record, err := json.Marshal(txn.LedgerRecord())
	if err != nil {
		return ledger.Block{}, fmt.Errorf("encode ledger record: %w", err)
	}
	block, err := s.ledger.Append(ctx, tx, record)
	if err != nil {
		return ledger.Block{}, fmt.Errorf("append ledger block: %w", err)
	}
	return block, nil
}

// publish sends an event and only logs failures; callers never fail on event delivery.
func (s *Service) publish(ctx context.Context, routingKey string, body interface{}) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.events.PublishEvent(ctx, routingKey, body); err != nil {
		log.Printf("level=warn component=facepay msg=\"event publish failed\" routing_key=%s err=%v", routingKey, err)
	}
}

// ListTransactions returns an account's transactions, newest first.
func (s *Service) ListTransactions(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListTransactionsByAccount(ctx, accountID, limit)
}

// ListBlocks returns the full chain in index order.
func (s *Service) ListBlocks(ctx context.Context) ([]ledger.Block, error) {
	return s.repo.ListBlocks(ctx)
}

// ValidateLedger recomputes every block and link.
func (s *Service) ValidateLedger(ctx context.Context) (ledger.ValidationReport, error) {
	return s.ledger.ValidateChain(ctx, s.repo)
}
