/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface. The
 * same query set runs against the pool or inside a `pgx.Tx`, so a payment settlement can
 * claim its session, move balances, record the transaction and append a ledger block in a
 * single commit.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain, internal/ledger: models persisted by this repository.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transfa/facepay-service/internal/domain"
	"github.com/transfa/facepay-service/internal/ledger"
)

// ledgerLockKey is the advisory lock id that serializes ledger appends.
const ledgerLockKey int64 = 0x46504c47

const (
	accountColumns  = `id, account_number, account_type, name, mobile, email, login_pin_hash, balance, created_at`
	templateColumns = `id, account_id, encrypted_embedding, encrypted_pin, facepay_limit, is_active, created_at, updated_at`
	sessionColumns  = `id, vendor_id, amount, status, customer_phone, customer_id, face_score, transaction_id, expires_at, created_at, updated_at`
	txnColumns      = `id, sender_id, receiver_id, sender_account_number, receiver_account_number, amount, remarks, payment_method, session_id, status, created_at`
	blockColumns    = `block_index, block_timestamp, transactions, previous_hash, merkle_root, hash`
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	db dbtx
}

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	queries
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{queries: queries{db: pool}, pool: pool}
}

// WithinTransaction runs fn inside a read-committed transaction and commits when it returns nil.
func (r *PostgresRepository) WithinTransaction(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{queries: queries{db: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	queries
}

// LockLedger takes a transaction-scoped advisory lock; the tip read after it is stable until commit.
func (t *pgTx) LockLedger(ctx context.Context) error {
	if _, err := t.db.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", ledgerLockKey); err != nil {
		return fmt.Errorf("lock ledger: %w", err)
	}
	return nil
}

// --- accounts ---

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.AccountNumber, &a.AccountType, &a.Name, &a.Mobile, &a.Email, &a.LoginPINHash, &a.Balance, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

// CreateAccount inserts a new account and fills in its creation time.
func (q *queries) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, account_number, account_type, name, mobile, email, login_pin_hash, balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING created_at
	`
	err := q.db.QueryRow(ctx, query,
		account.ID, account.AccountNumber, account.AccountType, account.Name, account.Mobile, account.Email, account.LoginPINHash, account.Balance,
	).Scan(&account.CreatedAt)
	if err != nil {
		return accountConflict(err)
	}
	return nil
}

// accountConflict names the unique column a failed insert collided on.
func accountConflict(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	if strings.Contains(pgErr.ConstraintName, "mobile") {
		return ErrDuplicateMobile
	}
	return ErrDuplicateAccount
}

// FindAccountByID retrieves an account by its primary key.
func (q *queries) FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

// FindAccountByMobile retrieves an account by its registered mobile number.
func (q *queries) FindAccountByMobile(ctx context.Context, mobile string) (*domain.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE mobile = btrim($1)`, mobile))
}

// FindAccountByNumber retrieves an account by its account number.
func (q *queries) FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return scanAccount(q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_number = btrim($1)`, accountNumber))
}

// DebitAccount performs a conditional debit and returns the new balance.
func (q *queries) DebitAccount(ctx context.Context, id uuid.UUID, amount int64) (int64, error) {
	var balance int64
	err := q.db.QueryRow(ctx,
		`UPDATE accounts SET balance = balance - $1 WHERE id = $2 AND balance >= $1 RETURNING balance`,
		amount, id,
	).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	var exists bool
	if err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrAccountNotFound
	}
	return 0, ErrInsufficientFunds
}

// CreditAccount adds amount to the balance and returns the new balance.
func (q *queries) CreditAccount(ctx context.Context, id uuid.UUID, amount int64) (int64, error) {
	var balance int64
	err := q.db.QueryRow(ctx, `UPDATE accounts SET balance = balance + $1 WHERE id = $2 RETURNING balance`, amount, id).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}
	return balance, nil
}

// --- face templates ---

// FindFaceTemplateByAccountID returns the customer's single template.
func (q *queries) FindFaceTemplateByAccountID(ctx context.Context, accountID uuid.UUID) (*domain.FaceTemplate, error) {
	var t domain.FaceTemplate
	err := q.db.QueryRow(ctx, `SELECT `+templateColumns+` FROM face_templates WHERE account_id = $1`, accountID).Scan(
		&t.ID, &t.AccountID, &t.EncryptedEmbedding, &t.EncryptedPIN, &t.FacePayLimit, &t.Active, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFaceTemplateNotFound
		}
		return nil, err
	}
	return &t, nil
}

// UpsertFaceTemplate replaces the customer's template, keeping the row id stable.
func (q *queries) UpsertFaceTemplate(ctx context.Context, tmpl *domain.FaceTemplate) error {
	query := `
		INSERT INTO face_templates (id, account_id, encrypted_embedding, encrypted_pin, facepay_limit, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (account_id) DO UPDATE SET
			encrypted_embedding = EXCLUDED.encrypted_embedding,
			encrypted_pin = EXCLUDED.encrypted_pin,
			facepay_limit = EXCLUDED.facepay_limit,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	if tmpl.ID == uuid.Nil {
		tmpl.ID = uuid.New()
	}
	err := q.db.QueryRow(ctx, query,
		tmpl.ID, tmpl.AccountID, tmpl.EncryptedEmbedding, tmpl.EncryptedPIN, tmpl.FacePayLimit, tmpl.Active,
	).Scan(&tmpl.ID, &tmpl.CreatedAt, &tmpl.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateFaceTemplate
		}
		return err
	}
	return nil
}

// SetFaceTemplateActive flips the active flag.
func (q *queries) SetFaceTemplateActive(ctx context.Context, accountID uuid.UUID, active bool) error {
	result, err := q.db.Exec(ctx, `UPDATE face_templates SET is_active = $1, updated_at = NOW() WHERE account_id = $2`, active, accountID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrFaceTemplateNotFound
	}
	return nil
}

// --- payment sessions ---

func scanSession(row pgx.Row) (*domain.PaymentSession, error) {
	var s domain.PaymentSession
	var status string
	err := row.Scan(&s.ID, &s.VendorID, &s.Amount, &status, &s.CustomerPhone, &s.CustomerID, &s.FaceScore, &s.TransactionID, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Status = domain.SessionStatus(status)
	return &s, nil
}

// CreatePaymentSession inserts a new session row.
func (q *queries) CreatePaymentSession(ctx context.Context, session *domain.PaymentSession) error {
	query := `
		INSERT INTO payment_sessions (id, vendor_id, amount, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	return q.db.QueryRow(ctx, query, session.ID, session.VendorID, session.Amount, string(session.Status), session.ExpiresAt).
		Scan(&session.CreatedAt, &session.UpdatedAt)
}

// FindPaymentSession loads a session by id.
func (q *queries) FindPaymentSession(ctx context.Context, id uuid.UUID) (*domain.PaymentSession, error) {
	s, err := scanSession(q.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM payment_sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return s, nil
}

// TransitionPaymentSession is a compare-and-set on the session status and expiry.
func (q *queries) TransitionPaymentSession(ctx context.Context, id uuid.UUID, from domain.SessionStatus, update domain.SessionUpdate) (*domain.PaymentSession, error) {
	query := `
		UPDATE payment_sessions SET
			status = $3,
			customer_phone = COALESCE($4, customer_phone),
			customer_id = COALESCE($5, customer_id),
			face_score = COALESCE($6, face_score),
			transaction_id = COALESCE($7, transaction_id),
			updated_at = NOW()
		WHERE id = $1 AND status = $2 AND ($8::timestamptz IS NULL OR expires_at > $8)
		RETURNING ` + sessionColumns
	s, err := scanSession(q.db.QueryRow(ctx, query,
		id, string(from), string(update.Status), update.CustomerPhone, update.CustomerID, update.FaceScore, update.TransactionID,
		transitionDeadline(update.At),
	))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	current, findErr := q.FindPaymentSession(ctx, id)
	if findErr != nil {
		return nil, findErr
	}
	return nil, transitionFailure(current, from, update.At)
}

// transitionDeadline maps a zero instant to NULL so the expiry predicate is skipped.
func transitionDeadline(at time.Time) *time.Time {
	if at.IsZero() {
		return nil
	}
	return &at
}

// transitionFailure explains why a compare-and-set matched no row.
func transitionFailure(current *domain.PaymentSession, from domain.SessionStatus, at time.Time) error {
	if current.Status == from && !at.IsZero() && current.Expired(at) {
		return ErrSessionExpired
	}
	return ErrSessionStateConflict
}

// --- transactions ---

// CreateTransaction inserts an immutable transaction record.
func (q *queries) CreateTransaction(ctx context.Context, txn *domain.Transaction) error {
	query := `
		INSERT INTO transactions (` + txnColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := q.db.Exec(ctx, query,
		txn.ID, txn.SenderID, txn.ReceiverID, txn.SenderAccountNumber, txn.ReceiverAccountNumber,
		txn.Amount, txn.Remarks, txn.PaymentMethod, txn.SessionID, txn.Status, txn.CreatedAt,
	)
	return err
}

// ListTransactionsByAccount returns the account's transactions, newest first.
func (q *queries) ListTransactionsByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Transaction, error) {
	query := `SELECT ` + txnColumns + ` FROM transactions WHERE sender_id = $1 OR receiver_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := q.db.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(
			&t.ID, &t.SenderID, &t.ReceiverID, &t.SenderAccountNumber, &t.ReceiverAccountNumber,
			&t.Amount, &t.Remarks, &t.PaymentMethod, &t.SessionID, &t.Status, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- ledger ---

func scanBlock(row pgx.Row) (*ledger.Block, error) {
	var b ledger.Block
	var raw []byte
	if err := row.Scan(&b.Index, &b.Timestamp, &raw, &b.PreviousHash, &b.MerkleRoot, &b.Hash); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &b.Transactions); err != nil {
		return nil, fmt.Errorf("decode block %d transactions: %w", b.Index, err)
	}
	return &b, nil
}

// LatestBlock returns the block with the highest index, or nil on an empty chain.
func (q *queries) LatestBlock(ctx context.Context) (*ledger.Block, error) {
	b, err := scanBlock(q.db.QueryRow(ctx, `SELECT `+blockColumns+` FROM ledger_blocks ORDER BY block_index DESC LIMIT 1`))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

// InsertBlock appends a block. A duplicate index means another writer won the tip.
func (q *queries) InsertBlock(ctx context.Context, block ledger.Block) error {
	records := block.Transactions
	if records == nil {
		records = []json.RawMessage{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode block transactions: %w", err)
	}
	query := `INSERT INTO ledger_blocks (` + blockColumns + `) VALUES ($1, $2, $3::jsonb, $4, $5, $6)`
	_, err = q.db.Exec(ctx, query, block.Index, block.Timestamp, string(payload), block.PreviousHash, block.MerkleRoot, block.Hash)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateBlockIndex
		}
		return err
	}
	return nil
}

// ListBlocks returns the whole chain ordered by index.
func (q *queries) ListBlocks(ctx context.Context) ([]ledger.Block, error) {
	rows, err := q.db.Query(ctx, `SELECT `+blockColumns+` FROM ledger_blocks ORDER BY block_index ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []ledger.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, *b)
	}
	return blocks, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
